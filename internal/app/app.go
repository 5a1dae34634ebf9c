package app

import (
	"context"
	"fmt"
	"log"

	"kagemusha/internal/config"
	"kagemusha/internal/producer"
	"kagemusha/internal/server"
)

// App はプロデューサーとWebサーバーを同一プロセスで束ねる
type App struct {
	config   *config.Config
	producer *producer.Producer
	server   *server.Server
}

// New はアプリケーションを作成する
func New(cfg *config.Config) (*App, error) {
	prod, err := producer.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("プロデューサーの作成に失敗: %w", err)
	}

	return &App{
		config:   cfg,
		producer: prod,
		server:   server.New(cfg),
	}, nil
}

// Run は両方のサービスを起動し、先に終了した方に合わせて全体を停止する
// シグナルによる停止はエラーにしない
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Printf("一体起動します (解像度: %dx%d, FPS: %d, モード: %s)",
		a.config.Camera.Width, a.config.Camera.Height, a.config.Camera.FPS, a.config.Camera.Mode)

	errCh := make(chan error, 2)
	go func() {
		errCh <- a.server.Start(ctx)
	}()
	go func() {
		errCh <- a.producer.Run(ctx)
	}()

	// 先に終了した方を確認し、もう一方を巻き取る
	firstErr := <-errCh
	cancel()
	if secondErr := <-errCh; firstErr == nil {
		firstErr = secondErr
	}

	return firstErr
}
