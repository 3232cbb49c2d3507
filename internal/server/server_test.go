package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"hyakume/internal/config"
	"hyakume/internal/stream"
)

// newTestServer はテスト用のServer一式を作成する
func newTestServer(t *testing.T) (*Server, *stream.MockSpawner) {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{
			Host:        "127.0.0.1",
			Port:        0, // ランダムポートを使用
			ReadTimeout: 5 * time.Second,
		},
		Capture: config.CaptureConfig{
			FFmpegPath:       "ffmpeg",
			InputFormat:      "v4l2",
			DefaultFrameRate: 15,
			DefaultQuality:   3,
			DefaultWidth:     1280,
			DefaultHeight:    720,
		},
	}

	spawner := stream.NewMockSpawner()
	bus := stream.NewEventBus()
	defaults := stream.CaptureSettings{
		FrameRate: cfg.Capture.DefaultFrameRate,
		Quality:   cfg.Capture.DefaultQuality,
		Width:     cfg.Capture.DefaultWidth,
		Height:    cfg.Capture.DefaultHeight,
	}
	registry := stream.NewRegistry(spawner, bus, cfg.Capture.FFmpegPath, cfg.Capture.InputFormat, defaults)

	enumerator := stream.NewMockEnumerator([]stream.DeviceDescriptor{
		{ID: "/dev/video0", Name: "テストカメラ 1", Kind: stream.DeviceKindVideo},
		{ID: "mic-1", Name: "テストマイク", Kind: stream.DeviceKindAudio},
	})

	return New(cfg, registry, enumerator), spawner
}

// doRequest はテスト用のHTTPリクエストを実行する
func doRequest(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, req)
	return w
}

// TestServerEndpoints は基本エンドポイントをテストする
func TestServerEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	testCases := []struct {
		name           string
		method         string
		endpoint       string
		expectedStatus int
	}{
		{"ヘルスチェックエンドポイント", http.MethodGet, "/health", http.StatusOK},
		{"ステータスエンドポイント", http.MethodGet, "/api/status", http.StatusOK},
		{"デバイス一覧エンドポイント", http.MethodGet, "/api/devices", http.StatusOK},
		{"ストリーム一覧エンドポイント", http.MethodGet, "/api/streams", http.StatusOK},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := doRequest(srv, tc.method, tc.endpoint, "")
			if w.Code != tc.expectedStatus {
				t.Errorf("予期しないステータスコード: got %d, want %d", w.Code, tc.expectedStatus)
			}
		})
	}
}

// TestDevicesEndpoint はデバイス一覧の内容をテストする
func TestDevicesEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(srv, http.MethodGet, "/api/devices", "")
	if w.Code != http.StatusOK {
		t.Fatalf("予期しないステータスコード: %d", w.Code)
	}

	var resp DevicesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスの解析に失敗しました: %v", err)
	}

	if len(resp.Devices) != 2 {
		t.Fatalf("Expected 2 devices, got %d", len(resp.Devices))
	}
	if resp.Devices[0].ID != "/dev/video0" || resp.Devices[0].Kind != "video" {
		t.Errorf("Unexpected first device: %+v", resp.Devices[0])
	}
	if resp.Devices[1].Kind != "audio" {
		t.Errorf("Unexpected second device: %+v", resp.Devices[1])
	}
}

// TestStreamLifecycle はAPI経由のストリーム開始・停止をテストする
func TestStreamLifecycle(t *testing.T) {
	srv, spawner := newTestServer(t)

	// 開始
	w := doRequest(srv, http.MethodPost, "/api/streams/start", `{"device":"/dev/video0","frame_rate":30}`)
	if w.Code != http.StatusOK {
		t.Fatalf("ストリーム開始に失敗: status %d, body %s", w.Code, w.Body.String())
	}

	// 一覧に反映されていること
	w = doRequest(srv, http.MethodGet, "/api/streams", "")
	var streams StreamsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &streams); err != nil {
		t.Fatalf("レスポンスの解析に失敗しました: %v", err)
	}
	if len(streams.Streams) != 1 {
		t.Fatalf("Expected 1 active stream, got %d", len(streams.Streams))
	}
	if streams.Streams[0].Device != "/dev/video0" {
		t.Errorf("Unexpected device: %s", streams.Streams[0].Device)
	}
	// リクエストで指定した値がデフォルトより優先される
	if streams.Streams[0].FrameRate != 30 {
		t.Errorf("Expected frame rate 30, got %d", streams.Streams[0].FrameRate)
	}
	if streams.Streams[0].Quality != 3 {
		t.Errorf("Expected default quality 3, got %d", streams.Streams[0].Quality)
	}

	// 停止
	w = doRequest(srv, http.MethodPost, "/api/streams/stop", `{"device":"/dev/video0"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("ストリーム停止に失敗: status %d", w.Code)
	}

	if !spawner.Processes()[0].Terminated() {
		t.Error("Expected capture process to be terminated")
	}

	// 存在しないストリームの停止は404
	w = doRequest(srv, http.MethodPost, "/api/streams/stop", `{"device":"/dev/video0"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for absent stream, got %d", w.Code)
	}
}

// TestStartStreamFailure は起動失敗時のレスポンスをテストする
func TestStartStreamFailure(t *testing.T) {
	srv, spawner := newTestServer(t)
	spawner.SetFailSpawn(true)

	w := doRequest(srv, http.MethodPost, "/api/streams/start", `{"device":"/dev/video0"}`)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 for spawn failure, got %d", w.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスの解析に失敗しました: %v", err)
	}
	if resp.Error != "start_failed" {
		t.Errorf("Unexpected error code: %s", resp.Error)
	}

	// デバイスID未指定は400
	w = doRequest(srv, http.MethodPost, "/api/streams/start", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing device, got %d", w.Code)
	}
}

// TestStopAllStreams は全停止エンドポイントをテストする
func TestStopAllStreams(t *testing.T) {
	srv, _ := newTestServer(t)

	doRequest(srv, http.MethodPost, "/api/streams/start", `{"device":"/dev/video0"}`)
	doRequest(srv, http.MethodPost, "/api/streams/start", `{"device":"/dev/video1"}`)

	w := doRequest(srv, http.MethodPost, "/api/streams/stop-all", "")
	if w.Code != http.StatusOK {
		t.Fatalf("全停止に失敗: status %d", w.Code)
	}

	w = doRequest(srv, http.MethodGet, "/api/streams", "")
	var streams StreamsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &streams); err != nil {
		t.Fatalf("レスポンスの解析に失敗しました: %v", err)
	}
	if len(streams.Streams) != 0 {
		t.Errorf("Expected 0 active streams after stop-all, got %d", len(streams.Streams))
	}
}

// TestMJPEGNotFound はストリームのないデバイスへのMJPEG要求をテストする
func TestMJPEGNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(srv, http.MethodGet, "/api/streams/mjpeg?device=/dev/video9", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for absent stream, got %d", w.Code)
	}
}

// TestServerStartAndShutdown はサーバーの起動とシャットダウンをテストする
func TestServerStartAndShutdown(t *testing.T) {
	srv, _ := newTestServer(t)

	// テスト用のコンテキスト（タイムアウト付き）
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// サーバーを別ゴルーチンで起動
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	// サーバーが起動するまで少し待つ
	time.Sleep(100 * time.Millisecond)

	// コンテキストをキャンセルしてサーバーを停止
	cancel()

	// エラーチャンネルから結果を受信
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("サーバーの起動/停止でエラーが発生しました: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("サーバーの停止がタイムアウトしました")
	}
}
