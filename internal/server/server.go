package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"kagemusha/internal/config"
)

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	engine     *gin.Engine
	httpServer *http.Server
	handler    *KagemushaHandler
}

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		config:  cfg,
		engine:  engine,
		handler: NewHandler(cfg),
		httpServer: &http.Server{
			Addr:         cfg.ServerAddress(),
			Handler:      engine,
			ReadTimeout:  cfg.Display.ReadTimeout,
			WriteTimeout: cfg.Display.WriteTimeout,
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes() {
	// ビューワーページ
	s.engine.GET("/", s.handler.ViewerPage)
	s.engine.GET("/simple_web_viewer.html", s.handler.ViewerPage)

	// フレーム配信
	s.engine.GET("/current_frame.jpg", s.handler.CurrentFrame)
	s.engine.GET("/api/frame/stream", s.handler.StreamFrames)

	// ヘルスチェックエンドポイント
	s.engine.GET("/health", s.handler.HealthCheck)

	// APIエンドポイント
	s.engine.GET("/api/status", s.handler.GetStatus)

	// 配信ディレクトリの静的公開
	s.engine.StaticFS("/web", http.Dir(s.config.Paths.WebDir))
}

// Start はサーバーを起動する
func (s *Server) Start(ctx context.Context) error {
	// シャットダウン用のチャンネル
	shutdownCh := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		log.Printf("HTTPサーバーを起動しています: %s", s.config.ServerAddress())
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			shutdownCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// コンテキストかシグナルを待つ
	select {
	case <-ctx.Done():
		log.Println("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		log.Printf("シグナルを受信しました: %v", sig)
	case err := <-shutdownCh:
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
func (s *Server) Shutdown() error {
	log.Println("サーバーをシャットダウンしています...")

	// 5秒のタイムアウトを設定
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	log.Println("サーバーが正常にシャットダウンされました")
	return nil
}
