package server

import (
	"context"
	"encoding/base64"
	"io"
	"log"
	"net/http"
	"time"

	"hyakume/internal/stream"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// streamBufferSize はフレーム転送用チャンネルのバッファ数
// 消費の遅いクライアントには新しいフレームを捨てて追従させる
const streamBufferSize = 8

// HealthResponse はヘルスチェックのレスポンス
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusResponse はシステム状態のレスポンス
type StatusResponse struct {
	Status        string     `json:"status"`
	Server        ServerInfo `json:"server"`
	ActiveStreams int        `json:"active_streams"`
	Timestamp     time.Time  `json:"timestamp"`
}

// ServerInfo はサーバー情報
type ServerInfo struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// DeviceInfo は列挙されたデバイスの情報
type DeviceInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// DevicesResponse はデバイス一覧のレスポンス
type DevicesResponse struct {
	Devices []DeviceInfo `json:"devices"`
}

// StreamInfo はアクティブなストリームの情報
type StreamInfo struct {
	SessionID string    `json:"session_id"`
	Device    string    `json:"device"`
	FrameRate int       `json:"frame_rate"`
	Quality   int       `json:"quality"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	StartedAt time.Time `json:"started_at"`
}

// StreamsResponse はストリーム一覧のレスポンス
type StreamsResponse struct {
	Streams []StreamInfo `json:"streams"`
}

// StreamRequest はストリーム開始・停止のリクエスト
type StreamRequest struct {
	Device    string `json:"device" binding:"required"`
	FrameRate int    `json:"frame_rate"`
	Quality   int    `json:"quality"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// StreamResponse はストリーム操作のレスポンス
type StreamResponse struct {
	Device    string `json:"device"`
	Streaming bool   `json:"streaming"`
}

// ErrorResponse はエラーのレスポンス
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// EventMessage はSSEで配信するイベントの表現
// フレームデータはbase64でテキスト化する
type EventMessage struct {
	Device   string `json:"device,omitempty"`
	Data     string `json:"data,omitempty"`
	ExitCode *int   `json:"exit_code,omitempty"`
	Kind     string `json:"kind,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// handleHealth はヘルスチェックエンドポイントの実装
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// handleStatus はシステム状態取得エンドポイントの実装
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		Status: "running",
		Server: ServerInfo{
			Host: s.config.Server.Host,
			Port: s.config.Server.Port,
		},
		ActiveStreams: len(s.registry.ListActiveStreams()),
		Timestamp:     time.Now(),
	})
}

// handleDevices はデバイス一覧取得エンドポイントの実装
func (s *Server) handleDevices(c *gin.Context) {
	descriptors := s.enumerator.ListDevices(c.Request.Context())

	devices := make([]DeviceInfo, 0, len(descriptors))
	for _, d := range descriptors {
		devices = append(devices, DeviceInfo{
			ID:   d.ID,
			Name: d.Name,
			Kind: string(d.Kind),
		})
	}

	c.JSON(http.StatusOK, DevicesResponse{Devices: devices})
}

// handleStreams はアクティブなストリーム一覧取得エンドポイントの実装
func (s *Server) handleStreams(c *gin.Context) {
	statuses := s.registry.SessionStatuses()

	streams := make([]StreamInfo, 0, len(statuses))
	for _, st := range statuses {
		streams = append(streams, StreamInfo{
			SessionID: st.SessionID,
			Device:    st.DeviceID,
			FrameRate: st.Settings.FrameRate,
			Quality:   st.Settings.Quality,
			Width:     st.Settings.Width,
			Height:    st.Settings.Height,
			StartedAt: st.StartedAt,
		})
	}

	c.JSON(http.StatusOK, StreamsResponse{Streams: streams})
}

// handleStartStream はストリーム開始エンドポイントの実装
func (s *Server) handleStartStream(c *gin.Context) {
	var req StreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:     "invalid_request",
			Message:   "デバイスIDが指定されていません",
			Timestamp: time.Now(),
		})
		return
	}

	settings := s.captureSettings(req)

	// セッションはリクエストより長生きするため、リクエストの
	// コンテキストではなくバックグラウンドで起動する
	if !s.registry.StartStreamWith(context.Background(), req.Device, settings) {
		// 失敗の詳細はstart-errorイベントとして通知済み
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:     "start_failed",
			Message:   "キャプチャプロセスの起動に失敗しました",
			Timestamp: time.Now(),
		})
		return
	}

	c.JSON(http.StatusOK, StreamResponse{Device: req.Device, Streaming: true})
}

// handleStopStream はストリーム停止エンドポイントの実装
func (s *Server) handleStopStream(c *gin.Context) {
	var req StreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:     "invalid_request",
			Message:   "デバイスIDが指定されていません",
			Timestamp: time.Now(),
		})
		return
	}

	if !s.registry.StopStream(req.Device) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:     "stream_not_found",
			Message:   "指定されたデバイスのストリームがありません",
			Timestamp: time.Now(),
		})
		return
	}

	c.JSON(http.StatusOK, StreamResponse{Device: req.Device, Streaming: false})
}

// handleStopAllStreams は全ストリーム停止エンドポイントの実装
func (s *Server) handleStopAllStreams(c *gin.Context) {
	s.registry.StopAllStreams()
	c.JSON(http.StatusOK, gin.H{"stopped": true})
}

// captureSettings はリクエストからキャプチャ設定を組み立てる
// 未指定の項目は設定ファイルのデフォルト値を使う
func (s *Server) captureSettings(req StreamRequest) stream.CaptureSettings {
	settings := stream.CaptureSettings{
		FrameRate: s.config.Capture.DefaultFrameRate,
		Quality:   s.config.Capture.DefaultQuality,
		Width:     s.config.Capture.DefaultWidth,
		Height:    s.config.Capture.DefaultHeight,
	}

	if req.FrameRate > 0 {
		settings.FrameRate = req.FrameRate
	}
	if req.Quality > 0 {
		settings.Quality = req.Quality
	}
	if req.Width > 0 {
		settings.Width = req.Width
	}
	if req.Height > 0 {
		settings.Height = req.Height
	}

	return settings
}

// subscribeFrames は指定デバイスのフレームを受け取るチャンネルを購読する
// 返された解除関数は必ず呼ぶこと
func (s *Server) subscribeFrames(deviceID string) (<-chan []byte, func()) {
	frameCh := make(chan []byte, streamBufferSize)

	subID := s.registry.Bus().Subscribe(stream.EventFrame, func(e stream.Event) {
		if e.DeviceID != deviceID {
			return
		}
		// クライアントが追いつかない場合は新しいフレームを捨てる
		select {
		case frameCh <- e.Data:
		default:
		}
	})

	return frameCh, func() { s.registry.Bus().Unsubscribe(subID) }
}

// handleMJPEG はMJPEGストリーミングエンドポイントの実装
func (s *Server) handleMJPEG(c *gin.Context) {
	deviceID := c.Query("device")
	if !s.registry.IsStreaming(deviceID) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:     "stream_not_found",
			Message:   "指定されたデバイスのストリームがありません",
			Timestamp: time.Now(),
		})
		return
	}

	// レスポンスヘッダーを設定
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")

	writer := c.Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	frameCh, unsubscribe := s.subscribeFrames(deviceID)
	defer unsubscribe()

	// クライアント切断を検知するためのコンテキスト
	clientGone := c.Request.Context().Done()

	// ストリーミングループ
	for {
		select {
		case <-clientGone:
			// クライアントが切断された
			return

		case frame := <-frameCh:
			if err := writeMJPEGPart(writer, frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeMJPEGPart はMJPEGフレーム1枚をmultipart形式で書き込む
func writeMJPEGPart(w io.Writer, frame []byte) error {
	if _, err := w.Write([]byte("--frame\r\nContent-Type: image/jpeg\r\n\r\n")); err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	_, err := w.Write([]byte("\r\n"))
	return err
}

// handleEvents はSSEイベント配信エンドポイントの実装
// 全イベント種別を購読し、フレームデータはbase64で配信する
func (s *Server) handleEvents(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	type namedEvent struct {
		name    string
		message EventMessage
	}
	eventCh := make(chan namedEvent, streamBufferSize)

	bus := s.registry.Bus()
	var subIDs []string
	for _, eventType := range []stream.EventType{
		stream.EventFrame,
		stream.EventStreamStarted,
		stream.EventStreamStopped,
		stream.EventError,
	} {
		subIDs = append(subIDs, bus.Subscribe(eventType, func(e stream.Event) {
			select {
			case eventCh <- namedEvent{name: string(e.Type), message: toEventMessage(e)}:
			default:
			}
		}))
	}
	defer func() {
		for _, id := range subIDs {
			bus.Unsubscribe(id)
		}
	}()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return
		case ev := <-eventCh:
			c.SSEvent(ev.name, ev.message)
			c.Writer.Flush()
		}
	}
}

// toEventMessage はイベントをSSE配信用の表現に変換する
func toEventMessage(e stream.Event) EventMessage {
	msg := EventMessage{
		Device: e.DeviceID,
		Kind:   string(e.Kind),
		Detail: e.Detail,
	}

	if e.Type == stream.EventFrame {
		msg.Data = base64.StdEncoding.EncodeToString(e.Data)
	}
	if e.Type == stream.EventStreamStopped {
		code := e.ExitCode
		msg.ExitCode = &code
	}

	return msg
}

// upgrader はWebSocket接続へのアップグレード設定
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleWebSocket はWebSocketフレーム配信エンドポイントの実装
// 指定デバイスのフレームをバイナリメッセージとして送信する
func (s *Server) handleWebSocket(c *gin.Context) {
	deviceID := c.Query("device")
	if !s.registry.IsStreaming(deviceID) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:     "stream_not_found",
			Message:   "指定されたデバイスのストリームがありません",
			Timestamp: time.Now(),
		})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket接続のアップグレードに失敗: %v", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	frameCh, unsubscribe := s.subscribeFrames(deviceID)
	defer unsubscribe()

	// クライアント側からのクローズを検知する読み取りループ
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case frame := <-frameCh:
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return
			}
		}
	}
}
