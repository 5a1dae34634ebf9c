package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"kagemusha/internal/analyzer"
	"kagemusha/internal/app"
	"kagemusha/internal/config"
	"kagemusha/internal/lifecycle"
	"kagemusha/internal/producer"
	"kagemusha/internal/server"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "start":
		err = runStart(args)
	case "stop":
		err = runStop(args)
	case "status":
		err = runStatus(args)
	case "run":
		err = runForeground(args)
	case "produce":
		err = runProduce(args)
	case "serve":
		err = runServe(args)
	case "analyze":
		err = runAnalyze(args)
	case "help", "-h", "-help", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "不明なコマンド: %s\n\n", command)
		printUsage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatalf("%sコマンドが失敗しました: %v", command, err)
	}
}

// printUsage は使い方を表示する
func printUsage() {
	fmt.Println("Kagemusha - 擬似カメラデモ")
	fmt.Println()
	fmt.Println("使用方法:")
	fmt.Println("  kagemusha <コマンド> [オプション]")
	fmt.Println()
	fmt.Println("コマンド:")
	fmt.Println("  start    プロデューサーとWebサーバーをバックグラウンド起動する")
	fmt.Println("  stop     バックグラウンド起動したプロセスを停止して掃除する")
	fmt.Println("  status   稼働状況を表示する")
	fmt.Println("  run      プロデューサーとWebサーバーを前面で一体実行する")
	fmt.Println("  produce  フレーム生成だけを前面実行する")
	fmt.Println("  serve    Webサーバーだけを前面実行する")
	fmt.Println("  analyze  フレームを解析する")
	fmt.Println("  help     このヘルプを表示する")
	fmt.Println()
	fmt.Println("各コマンドのオプション: kagemusha <コマンド> -help")
}

// cameraFlags は起動系コマンド共通のフラグ
type cameraFlags struct {
	configPath string
	image      string
	width      int
	height     int
	fps        int
	port       int
	mode       string
}

// newCameraFlagSet は起動系コマンド共通のフラグセットを作成する
func newCameraFlagSet(name string) (*flag.FlagSet, *cameraFlags) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	flags := &cameraFlags{}
	fs.StringVar(&flags.configPath, "config", "", "設定ファイルのパス (デフォルト: camera_config.yaml)")
	fs.StringVar(&flags.image, "image", "", "imageモードの元画像パス")
	fs.IntVar(&flags.width, "width", 0, "画像幅 (デフォルト: 1280)")
	fs.IntVar(&flags.height, "height", 0, "画像高さ (デフォルト: 720)")
	fs.IntVar(&flags.fps, "fps", 0, "フレームレート (デフォルト: 30)")
	fs.IntVar(&flags.port, "port", 0, "Webサーバーのポート (デフォルト: 8080)")
	fs.StringVar(&flags.mode, "mode", "", "生成モード (test_pattern/image)")
	return fs, flags
}

// loadConfig はフラグを解釈し、設定ファイルの上に重ねる
func loadConfig(fs *flag.FlagSet, flags *cameraFlags, args []string) (*config.Config, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// 設定ファイルのパスは環境変数経由で子プロセスにも引き継がれる
	if flags.configPath != "" {
		if err := os.Setenv(config.EnvConfigPath, flags.configPath); err != nil {
			return nil, fmt.Errorf("環境変数の設定に失敗: %w", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	// コマンドラインオプションで設定を上書き
	if flags.width != 0 {
		cfg.Camera.Width = flags.width
	}
	if flags.height != 0 {
		cfg.Camera.Height = flags.height
	}
	if flags.fps != 0 {
		cfg.Camera.FPS = flags.fps
	}
	if flags.port != 0 {
		cfg.Display.WebPort = flags.port
	}
	if flags.mode != "" {
		cfg.Camera.Mode = config.Mode(flags.mode)
	}
	if flags.image != "" {
		cfg.Camera.ImagePath = flags.image
		// 画像を指定されたらモード未指定でもimageモードとみなす
		if flags.mode == "" {
			cfg.Camera.Mode = config.ModeImage
		}
	}

	// 上書き後の値をあらためて検証する
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// loadConfigWithPath は-configフラグだけを受け取るコマンド向けの読み込み
func loadConfigWithPath(name string, args []string) (*config.Config, error) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", "", "設定ファイルのパス (デフォルト: camera_config.yaml)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *configPath != "" {
		if err := os.Setenv(config.EnvConfigPath, *configPath); err != nil {
			return nil, fmt.Errorf("環境変数の設定に失敗: %w", err)
		}
	}

	return config.Load()
}

// runStart はバックグラウンド起動を行う
func runStart(args []string) error {
	fs, flags := newCameraFlagSet("start")
	cfg, err := loadConfig(fs, flags, args)
	if err != nil {
		return err
	}

	manager, err := lifecycle.NewManager(cfg)
	if err != nil {
		return err
	}

	// 子プロセスには受け取ったフラグをそのまま引き継ぐ
	return manager.StartAll(context.Background(), args)
}

// runStop はバックグラウンド起動したプロセスを停止する
func runStop(args []string) error {
	cfg, err := loadConfigWithPath("stop", args)
	if err != nil {
		return err
	}

	manager, err := lifecycle.NewManager(cfg)
	if err != nil {
		return err
	}

	return manager.StopAll(context.Background())
}

// runStatus は稼働状況を表示する
func runStatus(args []string) error {
	cfg, err := loadConfigWithPath("status", args)
	if err != nil {
		return err
	}

	manager, err := lifecycle.NewManager(cfg)
	if err != nil {
		return err
	}

	report := manager.Status(context.Background())

	fmt.Println("Kagemusha 稼働状況")
	for _, p := range report.Processes {
		switch {
		case !p.HasPIDFile:
			fmt.Printf("  %-9s: 未起動（PIDファイルなし）\n", p.Target)
		case p.Alive:
			fmt.Printf("  %-9s: 稼働中 (PID %d)\n", p.Target, p.PID)
		default:
			fmt.Printf("  %-9s: 停止済み（PIDファイルが残っています: PID %d）\n", p.Target, p.PID)
		}
	}
	if report.FrameExists {
		fmt.Printf("  フレーム : %dバイト (%.1f秒前に更新)\n", report.FrameSize, report.FrameAge.Seconds())
	} else {
		fmt.Println("  フレーム : 未生成")
	}
	if report.HealthOK {
		fmt.Printf("  HTTP     : 応答あり (http://localhost:%d/)\n", cfg.Display.WebPort)
	} else {
		fmt.Println("  HTTP     : 応答なし")
	}

	return nil
}

// runForeground はプロデューサーとWebサーバーを一体で前面実行する
func runForeground(args []string) error {
	fs, flags := newCameraFlagSet("run")
	cfg, err := loadConfig(fs, flags, args)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)

	application, err := app.New(cfg)
	if err != nil {
		return err
	}

	return application.Run(context.Background())
}

// runProduce はフレーム生成だけを前面実行する
func runProduce(args []string) error {
	fs, flags := newCameraFlagSet("produce")
	cfg, err := loadConfig(fs, flags, args)
	if err != nil {
		return err
	}

	prod, err := producer.New(cfg)
	if err != nil {
		return err
	}

	// SIGTERMで外部エンコーダーごと確実に片付ける
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return prod.Run(ctx)
}

// runServe はWebサーバーだけを前面実行する
func runServe(args []string) error {
	fs, flags := newCameraFlagSet("serve")
	cfg, err := loadConfig(fs, flags, args)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)

	srv := server.New(cfg)
	return srv.Start(context.Background())
}

// runAnalyze はフレーム解析を実行する
func runAnalyze(args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	var (
		source       = fs.String("source", "fake", "フレーム取得元 (fake/image)")
		path         = fs.String("path", "", "imageソースの画像パス")
		configPath   = fs.String("config", "", "設定ファイルのパス (デフォルト: camera_config.yaml)")
		fps          = fs.Int("fps", 10, "解析FPS")
		maxFrames    = fs.Int("max-frames", 0, "処理する最大フレーム数 (0なら無制限)")
		saveInterval = fs.Int("save-interval", 0, "Nフレームごとにスナップショットを保存 (0なら保存しない)")
		outputDir    = fs.String("output-dir", ".", "スナップショットの保存先")
		verbose      = fs.Bool("verbose", false, "フレームごとの解析結果を表示する")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath != "" {
		if err := os.Setenv(config.EnvConfigPath, *configPath); err != nil {
			return fmt.Errorf("環境変数の設定に失敗: %w", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var frameSource analyzer.FrameSource
	switch *source {
	case "fake":
		frameSource = analyzer.NewFrameFileSource(cfg.Paths.FrameFile)
	case "image":
		if *path == "" {
			return fmt.Errorf("imageソースには-pathの指定が必要です")
		}
		frameSource = analyzer.NewImageSource(*path)
	default:
		return fmt.Errorf("不明なソース: %s (fake/imageを指定)", *source)
	}

	reader := analyzer.NewReader(frameSource, analyzer.Options{
		FPS:          *fps,
		MaxFrames:    *maxFrames,
		SaveInterval: *saveInterval,
		OutputDir:    *outputDir,
		Verbose:      *verbose,
	})
	reader.AddReaction(analyzer.LogReaction{})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := reader.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("解析サマリー")
	fmt.Printf("  処理フレーム数: %d\n", summary.TotalFrames)
	fmt.Printf("  動き検知回数  : %d\n", summary.MotionEvents)
	fmt.Printf("  経過時間      : %.1f秒\n", summary.Elapsed.Seconds())
	fmt.Printf("  平均FPS       : %.1f\n", summary.AverageFPS)

	return nil
}
