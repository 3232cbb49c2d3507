package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Capture   CaptureConfig   `yaml:"capture"`
	Enumerate EnumerateConfig `yaml:"enumerate"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // 読み込みタイムアウト
	WriteTimeout time.Duration `yaml:"write_timeout"` // 書き込みタイムアウト
}

// CaptureConfig はキャプチャプロセスの設定
type CaptureConfig struct {
	FFmpegPath  string `yaml:"ffmpeg_path"`  // ffmpegのパス
	InputFormat string `yaml:"input_format"` // 入力フォーマット (例: v4l2)

	// デフォルトのキャプチャ設定
	DefaultFrameRate int `yaml:"default_frame_rate"` // フレームレート (fps)
	DefaultQuality   int `yaml:"default_quality"`    // JPEG品質 (2-31、小さいほど高品質)
	DefaultWidth     int `yaml:"default_width"`      // 画像幅
	DefaultHeight    int `yaml:"default_height"`     // 画像高さ
}

// EnumerateConfig はデバイス列挙の設定
type EnumerateConfig struct {
	Command string   `yaml:"command"` // 列挙に使うコマンド
	Args    []string `yaml:"args"`    // コマンド引数
}

// Load は設定を読み込む
// デフォルト値をHYAKUME_CONFIGで指定されたYAMLファイルと
// 環境変数で上書きする
func Load() (*Config, error) {
	cfg := defaultConfig()

	// 設定ファイルが指定されていれば読み込む
	if path := os.Getenv("HYAKUME_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
	}

	// 環境変数による上書き
	cfg.Server.Host = getEnvOrDefault("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvAsIntOrDefault("PORT", cfg.Server.Port)
	cfg.Capture.FFmpegPath = getEnvOrDefault("FFMPEG_PATH", cfg.Capture.FFmpegPath)

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// defaultConfig はデフォルト設定を返す
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 0, // ストリーミング用にタイムアウト無効化
		},
		Capture: CaptureConfig{
			FFmpegPath:       "ffmpeg",
			InputFormat:      "v4l2",
			DefaultFrameRate: 15,
			DefaultQuality:   3,
			DefaultWidth:     1280,
			DefaultHeight:    720,
		},
		Enumerate: EnumerateConfig{
			Command: "ffmpeg",
			Args:    []string{"-hide_banner", "-f", "v4l2", "-list_devices", "true", "-i", ""},
		},
	}
}

// loadFile はYAML設定ファイルを読み込んで上書きする
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("YAMLの解析に失敗: %w", err)
	}

	return nil
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	// サーバー設定の検証
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}

	// キャプチャ設定の検証
	if c.Capture.DefaultFrameRate < 1 || c.Capture.DefaultFrameRate > 60 {
		return fmt.Errorf("無効なフレームレート: %d", c.Capture.DefaultFrameRate)
	}
	if c.Capture.DefaultQuality < 2 || c.Capture.DefaultQuality > 31 {
		return fmt.Errorf("無効なJPEG品質: %d", c.Capture.DefaultQuality)
	}
	if c.Capture.DefaultWidth < 1 || c.Capture.DefaultWidth > 4096 {
		return fmt.Errorf("無効な幅: %d", c.Capture.DefaultWidth)
	}
	if c.Capture.DefaultHeight < 1 || c.Capture.DefaultHeight > 4096 {
		return fmt.Errorf("無効な高さ: %d", c.Capture.DefaultHeight)
	}
	if c.Capture.FFmpegPath == "" {
		return fmt.Errorf("ffmpegのパスが設定されていません")
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}
