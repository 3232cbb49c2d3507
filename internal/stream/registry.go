package stream

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"sync"
)

// Registry はデバイスIDごとのストリームセッションを管理する
// 1デバイスにつき同時に存在できるセッションは最大1つで、
// その不変条件を守るのはRegistryのみ
type Registry struct {
	spawner Spawner
	bus     *EventBus

	mu       sync.Mutex
	sessions map[string]*streamSession

	// キャプチャコマンドの設定
	ffmpegPath  string
	inputFormat string
	defaults    CaptureSettings
}

// NewRegistry は新しいRegistryを作成する
func NewRegistry(spawner Spawner, bus *EventBus, ffmpegPath, inputFormat string, defaults CaptureSettings) *Registry {
	return &Registry{
		spawner:     spawner,
		bus:         bus,
		sessions:    make(map[string]*streamSession),
		ffmpegPath:  ffmpegPath,
		inputFormat: inputFormat,
		defaults:    defaults,
	}
}

// Bus はRegistryが使用するEventBusを返す
func (r *Registry) Bus() *EventBus {
	return r.bus
}

// StartStream は指定デバイスのストリームを開始する
// 既にセッションが存在する場合は何もせず成功を返す（冪等）
// プロセス起動に失敗した場合はstart-errorイベントを発行してfalseを返す
func (r *Registry) StartStream(ctx context.Context, deviceID string) bool {
	return r.StartStreamWith(ctx, deviceID, r.defaults)
}

// StartStreamWith は指定設定でストリームを開始する
func (r *Registry) StartStreamWith(ctx context.Context, deviceID string, settings CaptureSettings) bool {
	r.mu.Lock()
	if _, exists := r.sessions[deviceID]; exists {
		r.mu.Unlock()
		return true
	}

	args := r.buildCaptureArgs(deviceID, settings)
	proc, err := r.spawner.Spawn(ctx, r.ffmpegPath, args)
	if err != nil {
		r.mu.Unlock()
		log.Printf("デバイス %s のキャプチャプロセス起動に失敗: %v", deviceID, err)
		r.bus.Emit(Event{
			Type:     EventError,
			DeviceID: deviceID,
			Kind:     ErrorKindStart,
			Detail:   err.Error(),
		})
		return false
	}

	session := newStreamSession(deviceID, settings, proc)
	r.sessions[deviceID] = session
	r.mu.Unlock()

	go session.consumeData(r.bus)
	go session.consumeDiagnostics(r.bus)
	go r.watchExit(session)

	r.bus.Emit(Event{
		Type:     EventStreamStarted,
		DeviceID: deviceID,
	})

	return true
}

// StopStream は指定デバイスのストリームを停止する
// セッションが存在しない場合は何もせずfalseを返す
// プロセスの実際の終了は待たない（ベストエフォート）
func (r *Registry) StopStream(deviceID string) bool {
	r.mu.Lock()
	session, exists := r.sessions[deviceID]
	if !exists {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, deviceID)
	r.mu.Unlock()

	session.proc.Terminate()

	// 停止要求による終了は同期的に終了コード0として報告する
	// 実際のプロセス終了通知はセッションが既に削除済みのため無視される
	r.bus.Emit(Event{
		Type:     EventStreamStopped,
		DeviceID: deviceID,
		ExitCode: 0,
	})

	return true
}

// StopAllStreams は登録済みの全ストリームを停止する
// セッションは互いに独立しているため停止順序は保証しない
func (r *Registry) StopAllStreams() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.StopStream(id)
	}
}

// IsStreaming は指定デバイスのセッションが存在するかを返す
func (r *Registry) IsStreaming(deviceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.sessions[deviceID]
	return exists
}

// ListActiveStreams はアクティブなデバイスID一覧を返す
func (r *Registry) ListActiveStreams() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}

// SessionStatuses はアクティブな全セッションの状態を返す
func (r *Registry) SessionStatuses() []SessionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	statuses := make([]SessionStatus, 0, len(r.sessions))
	for _, session := range r.sessions {
		statuses = append(statuses, session.status())
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].DeviceID < statuses[j].DeviceID
	})

	return statuses
}

// watchExit はプロセス終了を監視し、セッションを後始末する
// StopStreamで既に削除済みのセッションの終了通知は無視する
func (r *Registry) watchExit(session *streamSession) {
	code := <-session.proc.Done()

	r.mu.Lock()
	current, exists := r.sessions[session.deviceID]
	if !exists || current != session {
		// 既に停止済み、または別セッションに置き換わっている
		r.mu.Unlock()
		return
	}
	delete(r.sessions, session.deviceID)
	r.mu.Unlock()

	log.Printf("デバイス %s のキャプチャプロセスが終了しました (code=%d)", session.deviceID, code)
	r.bus.Emit(Event{
		Type:     EventStreamStopped,
		DeviceID: session.deviceID,
		ExitCode: code,
	})
}

// buildCaptureArgs はデバイスと設定からffmpegの引数を組み立てる
// 主出力へmotion-JPEGのバイトストリームを書き出す
func (r *Registry) buildCaptureArgs(deviceID string, settings CaptureSettings) []string {
	return []string{
		"-f", r.inputFormat,
		"-video_size", fmt.Sprintf("%dx%d", settings.Width, settings.Height),
		"-r", strconv.Itoa(settings.FrameRate),
		"-i", deviceID,
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", strconv.Itoa(settings.Quality),
		"-",
	}
}
