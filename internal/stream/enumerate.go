package stream

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"regexp"
	"strings"
)

// FFmpegEnumerator は外部キャプチャツールを一度起動し、
// その出力を走査してデバイス一覧を取得するEnumerator実装
type FFmpegEnumerator struct {
	bus     *EventBus
	command string
	args    []string
}

// NewFFmpegEnumerator は新しいFFmpegEnumeratorを作成する
func NewFFmpegEnumerator(bus *EventBus, command string, args []string) *FFmpegEnumerator {
	return &FFmpegEnumerator{
		bus:     bus,
		command: command,
		args:    args,
	}
}

// ListDevices は利用可能なデバイス一覧を取得する
// 取得に失敗した場合はlist-errorイベントを発行し、空の一覧を返す
func (e *FFmpegEnumerator) ListDevices(ctx context.Context) []DeviceDescriptor {
	cmd := exec.CommandContext(ctx, e.command, e.args...)

	// デバイス一覧はstderrに出力され、入力なしのためプロセス自体は
	// 非ゼロで終了する。出力が解析できれば終了コードは無視する
	output, err := cmd.CombinedOutput()
	devices := parseDeviceList(string(output))

	if len(devices) == 0 && err != nil {
		log.Printf("デバイス一覧の取得に失敗: %v", err)
		e.bus.Emit(Event{
			Type:   EventError,
			Kind:   ErrorKindList,
			Detail: fmt.Sprintf("デバイス一覧の取得に失敗: %v", err),
		})
		return nil
	}

	return devices
}

// deviceEntryPattern は「[id] デバイス名」形式の行にマッチする
var deviceEntryPattern = regexp.MustCompile(`\[([^\[\]]+)\]\s*(\S.*)$`)

// parseDeviceList はキャプチャツールのデバイス一覧出力を解析する
//
// 想定する形式:
//
//	... video devices:
//	[0] Integrated Camera
//	... audio devices:
//	[0] Built-in Microphone
//
// セクション見出しが現れるまでの行は無視される
func parseDeviceList(output string) []DeviceDescriptor {
	var devices []DeviceDescriptor

	kind := DeviceKind("")
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)

		// ログプレフィックス（[dshow @ 0x...] など）を取り除く
		if idx := strings.Index(line, "] "); idx != -1 && strings.HasPrefix(line, "[") && strings.Contains(line[:idx], "@") {
			line = strings.TrimSpace(line[idx+2:])
		}

		lower := strings.ToLower(line)
		switch {
		case strings.HasSuffix(lower, "video devices:"):
			kind = DeviceKindVideo
			continue
		case strings.HasSuffix(lower, "audio devices:"):
			kind = DeviceKindAudio
			continue
		}

		if kind == "" {
			continue
		}

		matches := deviceEntryPattern.FindStringSubmatch(line)
		if matches == nil {
			continue
		}

		devices = append(devices, DeviceDescriptor{
			ID:   matches[1],
			Name: strings.TrimSpace(matches[2]),
			Kind: kind,
		})
	}

	return devices
}

// MockEnumerator はテスト用のEnumerator実装
type MockEnumerator struct {
	devices []DeviceDescriptor
}

// NewMockEnumerator は新しいMockEnumeratorを作成する
func NewMockEnumerator(devices []DeviceDescriptor) *MockEnumerator {
	return &MockEnumerator{devices: devices}
}

// ListDevices はモックデバイス一覧を返す
func (m *MockEnumerator) ListDevices(_ context.Context) []DeviceDescriptor {
	result := make([]DeviceDescriptor, len(m.devices))
	copy(result, m.devices)
	return result
}
