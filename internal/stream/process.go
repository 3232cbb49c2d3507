package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"sync"
	"syscall"
)

// readBufferSize はプロセス主出力の読み取りバッファサイズ
const readBufferSize = 64 * 1024

// FFmpegSpawner はos/execで外部キャプチャプロセスを起動するSpawner実装
type FFmpegSpawner struct{}

// NewFFmpegSpawner は新しいFFmpegSpawnerを作成する
func NewFFmpegSpawner() *FFmpegSpawner {
	return &FFmpegSpawner{}
}

// Spawn は指定コマンドを起動してProcessを返す
func (s *FFmpegSpawner) Spawn(ctx context.Context, name string, args []string) (Process, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	// Terminateでプロセスツリーごと停止できるよう別プロセスグループにする
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdoutパイプの作成に失敗: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderrパイプの作成に失敗: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("プロセスの起動に失敗: %w", err)
	}

	p := &ffmpegProcess{
		cmd:         cmd,
		data:        make(chan []byte, 8),
		diagnostics: make(chan string, 8),
		done:        make(chan int, 1),
	}

	// 主出力（フレームデータ）をチャンク単位で読み取る
	go func() {
		defer close(p.data)

		buf := make([]byte, readBufferSize)
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				p.data <- chunk
			}
			if err != nil {
				return
			}
		}
	}()

	// 診断出力（stderr）を行単位で読み取る
	go func() {
		defer close(p.diagnostics)

		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			p.diagnostics <- scanner.Text()
		}
	}()

	// プロセス終了を監視して終了コードを一度だけ通知する
	go func() {
		err := cmd.Wait()
		code := 0
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				code = exitErr.ExitCode()
			} else {
				code = -1
			}
		}
		p.done <- code
		close(p.done)
	}()

	return p, nil
}

// ffmpegProcess は起動済みの外部プロセスを表す
type ffmpegProcess struct {
	cmd         *exec.Cmd
	data        chan []byte
	diagnostics chan string
	done        chan int

	terminateOnce sync.Once
}

// Data は主出力のチャンネルを返す
func (p *ffmpegProcess) Data() <-chan []byte {
	return p.data
}

// Diagnostics は診断出力のチャンネルを返す
func (p *ffmpegProcess) Diagnostics() <-chan string {
	return p.diagnostics
}

// Terminate はプロセスグループへSIGKILLを送信する
// 既に終了している場合など、失敗はログに記録するだけで呼び出し元へは返さない
func (p *ffmpegProcess) Terminate() {
	p.terminateOnce.Do(func() {
		pid := p.cmd.Process.Pid
		// プロセスグループ全体を停止（子プロセスも含む）
		if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
			// グループ停止に失敗した場合は単体のkillを試す
			if err := p.cmd.Process.Kill(); err != nil {
				log.Printf("プロセス %d の停止に失敗（無視します）: %v", pid, err)
			}
		}
	})
}

// Done は終了コードの通知チャンネルを返す
func (p *ffmpegProcess) Done() <-chan int {
	return p.done
}

// MockProcess はテスト用のProcess実装
// テスト側からチャンク・診断行・終了コードを任意に注入できる
type MockProcess struct {
	DataCh        chan []byte
	DiagnosticsCh chan string
	DoneCh        chan int

	mu         sync.Mutex
	terminated bool
}

// NewMockProcess は新しいMockProcessを作成する
func NewMockProcess() *MockProcess {
	return &MockProcess{
		DataCh:        make(chan []byte, 16),
		DiagnosticsCh: make(chan string, 16),
		DoneCh:        make(chan int, 1),
	}
}

// Data は主出力のチャンネルを返す
func (m *MockProcess) Data() <-chan []byte {
	return m.DataCh
}

// Diagnostics は診断出力のチャンネルを返す
func (m *MockProcess) Diagnostics() <-chan string {
	return m.DiagnosticsCh
}

// Terminate は終了済みフラグを立てる
func (m *MockProcess) Terminate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminated = true
}

// Done は終了コードの通知チャンネルを返す
func (m *MockProcess) Done() <-chan int {
	return m.DoneCh
}

// Terminated はTerminateが呼ばれたかどうかを返す
func (m *MockProcess) Terminated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.terminated
}

// Exit はテスト用にプロセス終了を発生させる
func (m *MockProcess) Exit(code int) {
	close(m.DataCh)
	close(m.DiagnosticsCh)
	m.DoneCh <- code
	close(m.DoneCh)
}

// MockSpawner はテスト用のSpawner実装
type MockSpawner struct {
	mu        sync.Mutex
	processes []*MockProcess
	failSpawn bool
}

// NewMockSpawner は新しいMockSpawnerを作成する
func NewMockSpawner() *MockSpawner {
	return &MockSpawner{}
}

// Spawn はMockProcessを作成して返す
func (m *MockSpawner) Spawn(_ context.Context, _ string, _ []string) (Process, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failSpawn {
		return nil, fmt.Errorf("モック: プロセスの起動に失敗")
	}

	p := NewMockProcess()
	m.processes = append(m.processes, p)
	return p, nil
}

// SetFailSpawn はテスト用にSpawn失敗を設定する
func (m *MockSpawner) SetFailSpawn(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSpawn = fail
}

// Processes は起動されたMockProcess一覧を返す
func (m *MockSpawner) Processes() []*MockProcess {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]*MockProcess, len(m.processes))
	copy(result, m.processes)
	return result
}
