// Package main はHyakumeサーバーコマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"hyakume/internal/config"
	"hyakume/internal/server"
	"hyakume/internal/stream"
)

func main() {
	// コマンドラインオプション
	var (
		host   = flag.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
		port   = flag.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
		ffmpeg = flag.String("ffmpeg", "", "ffmpegのパス (デフォルト: ffmpeg)")
		help   = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("Hyakume")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  server [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *ffmpeg != "" {
		cfg.Capture.FFmpegPath = *ffmpeg
	}

	// ストリームエンジンを組み立てる
	bus := stream.NewEventBus()
	defaults := stream.CaptureSettings{
		FrameRate: cfg.Capture.DefaultFrameRate,
		Quality:   cfg.Capture.DefaultQuality,
		Width:     cfg.Capture.DefaultWidth,
		Height:    cfg.Capture.DefaultHeight,
	}
	registry := stream.NewRegistry(stream.NewFFmpegSpawner(), bus, cfg.Capture.FFmpegPath, cfg.Capture.InputFormat, defaults)
	enumerator := stream.NewFFmpegEnumerator(bus, cfg.Enumerate.Command, cfg.Enumerate.Args)

	// サーバーを作成
	srv := server.New(cfg, registry, enumerator)

	// コンテキストを作成
	ctx := context.Background()

	// サーバーを起動
	log.Printf("Hyakume サーバーを起動します: %s", cfg.ServerAddress())
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("サーバーの起動に失敗しました: %v", err)
	}
}
