package stream

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// streamSession は1つのデバイスに対する外部プロセスとデマルチプレクサの対
// Registryの管理下でのみ生成・破棄される
type streamSession struct {
	sessionID string
	deviceID  string
	settings  CaptureSettings
	proc      Process
	demux     *FrameDemuxer
	startedAt time.Time
}

// newStreamSession は新しいstreamSessionを作成する
func newStreamSession(deviceID string, settings CaptureSettings, proc Process) *streamSession {
	return &streamSession{
		sessionID: uuid.New().String(),
		deviceID:  deviceID,
		settings:  settings,
		proc:      proc,
		demux:     NewFrameDemuxer(),
		startedAt: time.Now(),
	}
}

// status はセッションの現在の状態を返す
func (s *streamSession) status() SessionStatus {
	return SessionStatus{
		SessionID: s.sessionID,
		DeviceID:  s.deviceID,
		Settings:  s.settings,
		StartedAt: s.startedAt,
	}
}

// consumeData は主出力のチャンクをデマルチプレクサへ流し込み、
// 完成したフレームをframeイベントとして発行する
// チャンネルがクローズされるまでブロックする
func (s *streamSession) consumeData(bus *EventBus) {
	for chunk := range s.proc.Data() {
		for _, frame := range s.demux.Feed(chunk) {
			bus.Emit(Event{
				Type:     EventFrame,
				DeviceID: s.deviceID,
				Data:     frame,
			})
		}
	}
}

// consumeDiagnostics は診断出力の行を監視し、
// エラーを示す行のみをerrorイベントとして発行する
func (s *streamSession) consumeDiagnostics(bus *EventBus) {
	for line := range s.proc.Diagnostics() {
		if !isErrorLine(line) {
			continue
		}
		bus.Emit(Event{
			Type:     EventError,
			DeviceID: s.deviceID,
			Kind:     ErrorKindFFmpeg,
			Detail:   line,
		})
	}
}

// errorIndicators は診断行をエラーとみなす語彙（小文字）
var errorIndicators = []string{"error", "invalid"}

// isErrorLine は診断行がエラーを示しているかを判定する
func isErrorLine(line string) bool {
	lower := strings.ToLower(line)
	for _, indicator := range errorIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}
