package main

import (
	"context"
	"log"

	"hyakume/internal/config"
	"hyakume/internal/server"
	"hyakume/internal/stream"
)

func main() {
	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
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
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("サーバーの起動に失敗しました: %v", err)
	}
}
