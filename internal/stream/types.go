package stream

import (
	"context"
	"time"
)

// EventType はイベント通知チャンネルを流れるイベントの種別を表す
type EventType string

const (
	EventFrame         EventType = "frame"          // 完成したJPEGフレーム
	EventStreamStarted EventType = "stream-started" // ストリーム開始
	EventStreamStopped EventType = "stream-stopped" // ストリーム停止
	EventError         EventType = "error"          // エラー発生
)

// ErrorKind はerrorイベントの分類を表す
type ErrorKind string

const (
	ErrorKindStart  ErrorKind = "start-error"  // 外部プロセスの起動に失敗
	ErrorKindFFmpeg ErrorKind = "ffmpeg-error" // 診断チャンネルにエラー行が出力された
	ErrorKindList   ErrorKind = "list-error"   // デバイス一覧の取得に失敗
)

// Event はイベント通知チャンネルを流れるイベント
// Typeに応じて使用されるフィールドが異なる
type Event struct {
	Type     EventType // イベント種別
	DeviceID string    // 対象デバイスID（list-errorでは空の場合がある）
	Data     []byte    // フレームデータ（frameのみ）
	ExitCode int       // プロセス終了コード（stream-stoppedのみ）
	Kind     ErrorKind // エラー分類（errorのみ）
	Detail   string    // エラー詳細（errorのみ）
}

// Handler はイベントを受け取るコールバック
type Handler func(Event)

// DeviceKind はキャプチャデバイスの種別を表す
type DeviceKind string

const (
	DeviceKindVideo DeviceKind = "video" // 映像デバイス
	DeviceKindAudio DeviceKind = "audio" // 音声デバイス
)

// DeviceDescriptor は列挙されたキャプチャデバイスの情報を表す
type DeviceDescriptor struct {
	ID   string     // デバイスの一意識別子（例: /dev/video0）
	Name string     // デバイスの表示名
	Kind DeviceKind // デバイス種別
}

// CaptureSettings はキャプチャプロセスへ渡す設定を表す
type CaptureSettings struct {
	FrameRate int // フレームレート (fps)
	Quality   int // JPEG品質 (2-31、小さいほど高品質)
	Width     int // 画像幅
	Height    int // 画像高さ
}

// SessionStatus はアクティブなストリームセッションの状態を表す
type SessionStatus struct {
	SessionID string          // セッションの一意識別子
	DeviceID  string          // 対象デバイスID
	Settings  CaptureSettings // 適用中のキャプチャ設定
	StartedAt time.Time       // 開始時刻
}

// Enumerator はキャプチャデバイスの列挙機能を提供する
type Enumerator interface {
	// ListDevices は利用可能なデバイス一覧を取得する
	// 失敗時はlist-errorイベントを発行し、空の一覧を返す
	ListDevices(ctx context.Context) []DeviceDescriptor
}

// Process は起動済みの外部キャプチャプロセスを表す
type Process interface {
	// Data は主出力（フレームデータのバイト列）のチャンネルを返す
	Data() <-chan []byte

	// Diagnostics は診断出力（stderrの行）のチャンネルを返す
	Diagnostics() <-chan string

	// Terminate はプロセスをベストエフォートで強制終了する
	// 終了の確認は待たず、失敗はログに記録されるのみ
	Terminate()

	// Done はプロセス終了時に終了コードを一度だけ通知するチャンネルを返す
	Done() <-chan int
}

// Spawner は外部キャプチャプロセスの起動機能を提供する
type Spawner interface {
	// Spawn は指定コマンドを起動してProcessを返す
	Spawn(ctx context.Context, name string, args []string) (Process, error)
}
