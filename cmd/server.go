// Package main はKagemusha配信専用サーバーコマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"kagemusha/internal/config"
	"kagemusha/internal/server"
)

func main() {
	// コマンドラインオプション
	var (
		host = flag.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
		port = flag.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
		dir  = flag.String("dir", "", "配信対象ディレクトリ (デフォルト: web)")
		help = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("Kagemusha 配信サーバー")
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
		cfg.Display.Host = *host
	}
	if *port != 0 {
		cfg.Display.WebPort = *port
	}
	if *dir != "" {
		cfg.Paths.WebDir = *dir
		cfg.Paths.FrameFile = filepath.Join(*dir, "current_frame.jpg")
	}

	gin.SetMode(gin.ReleaseMode)

	// サーバーを作成
	srv := server.New(cfg)

	// コンテキストを作成
	ctx := context.Background()

	// サーバーを起動
	log.Printf("Kagemusha 配信サーバーを起動します: %s", cfg.ServerAddress())
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("サーバーの起動に失敗しました: %v", err)
	}
}
