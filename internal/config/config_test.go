package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
)

// useMemFs はテスト中だけファイルアクセスをメモリ上に差し替える
func useMemFs(t *testing.T) afero.Fs {
	t.Helper()
	orig := fs
	fs = afero.NewMemMapFs()
	t.Cleanup(func() { fs = orig })
	return fs
}

// clearEnv はテストに影響する環境変数を退避してクリアする
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvConfigPath, "SERVER_HOST", "SERVER_PORT"} {
		orig, had := os.LookupEnv(key)
		_ = os.Unsetenv(key)
		t.Cleanup(func() {
			if had {
				_ = os.Setenv(key, orig)
			} else {
				_ = os.Unsetenv(key)
			}
		})
	}
}

// TestConfigLoadDefaults は設定ファイルなしでの読み込みをテストする
func TestConfigLoadDefaults(t *testing.T) {
	useMemFs(t)
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}
	if cfg == nil {
		t.Fatal("設定がnilです")
	}

	// カメラ設定のデフォルト値
	if cfg.Camera.Width != 1280 || cfg.Camera.Height != 720 {
		t.Errorf("デフォルト解像度が一致しません: got %dx%d, want 1280x720", cfg.Camera.Width, cfg.Camera.Height)
	}
	if cfg.Camera.FPS != 30 {
		t.Errorf("デフォルトFPSが一致しません: got %d, want 30", cfg.Camera.FPS)
	}
	if cfg.Camera.Mode != ModeTestPattern {
		t.Errorf("デフォルトモードが一致しません: got %s, want %s", cfg.Camera.Mode, ModeTestPattern)
	}

	// サーバー設定のデフォルト値
	if cfg.Display.WebPort != 8080 {
		t.Errorf("デフォルトポートが一致しません: got %d, want 8080", cfg.Display.WebPort)
	}
	if cfg.Display.ReadTimeout <= 0 {
		t.Error("読み込みタイムアウトが設定されていません")
	}
	// WriteTimeout は 0（無効）でも正常
	if cfg.Display.WriteTimeout < 0 {
		t.Error("書き込みタイムアウトが負の値です")
	}

	// フレーム生成のデフォルト値
	if cfg.Producer.Backend != BackendFFmpeg {
		t.Errorf("デフォルトバックエンドが一致しません: got %s, want %s", cfg.Producer.Backend, BackendFFmpeg)
	}
	if !cfg.Producer.AtomicWrite {
		t.Error("atomic_writeのデフォルトが有効になっていません")
	}
	if cfg.Paths.FrameFile == "" {
		t.Error("フレームファイルのパスが設定されていません")
	}
}

// TestConfigLoadFromFile は設定ファイルからの読み込みをテストする
func TestConfigLoadFromFile(t *testing.T) {
	memFs := useMemFs(t)
	clearEnv(t)

	content := `
camera:
  width: 640
  height: 480
  fps: 15
  mode: image
  image_path: /tmp/sample.png
display:
  web_port: 9000
autostart:
  enabled: false
producer:
  backend: native
  quality: 5
`
	path := filepath.Join("/", "etc", "kagemusha", DefaultFileName)
	if err := afero.WriteFile(memFs, path, []byte(content), 0644); err != nil {
		t.Fatalf("テスト用設定ファイルの作成に失敗しました: %v", err)
	}
	_ = os.Setenv(EnvConfigPath, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	if cfg.Camera.Width != 640 || cfg.Camera.Height != 480 {
		t.Errorf("解像度が反映されていません: got %dx%d, want 640x480", cfg.Camera.Width, cfg.Camera.Height)
	}
	if cfg.Camera.Mode != ModeImage {
		t.Errorf("モードが反映されていません: got %s, want %s", cfg.Camera.Mode, ModeImage)
	}
	if cfg.Display.WebPort != 9000 {
		t.Errorf("ポートが反映されていません: got %d, want 9000", cfg.Display.WebPort)
	}
	if cfg.Autostart.Enabled {
		t.Error("autostart.enabledの無効化が反映されていません")
	}
	if cfg.Producer.Backend != BackendNative {
		t.Errorf("バックエンドが反映されていません: got %s, want %s", cfg.Producer.Backend, BackendNative)
	}

	// ファイルに書かれていないキーはデフォルトのまま
	if cfg.Camera.Title != "Kagemusha" {
		t.Errorf("未指定キーのデフォルトが壊れています: got %s, want Kagemusha", cfg.Camera.Title)
	}
	if cfg.Producer.Quality != 5 {
		t.Errorf("品質が反映されていません: got %d, want 5", cfg.Producer.Quality)
	}
}

// TestConfigLoadMissingExplicitFile は明示指定ファイルの欠如をテストする
func TestConfigLoadMissingExplicitFile(t *testing.T) {
	useMemFs(t)
	clearEnv(t)

	_ = os.Setenv(EnvConfigPath, "/nonexistent/kagemusha.yaml")

	if _, err := Load(); err == nil {
		t.Error("存在しない明示指定ファイルでエラーが期待されましたが、エラーが発生しませんでした")
	}
}

// TestConfigValidation は設定の検証をテストする
func TestConfigValidation(t *testing.T) {
	testCases := []struct {
		name      string
		mutate    func(cfg *Config)
		expectErr bool
	}{
		{
			name:      "正常な設定",
			mutate:    func(_ *Config) {},
			expectErr: false,
		},
		{
			name: "無効なポート番号",
			mutate: func(cfg *Config) {
				cfg.Display.WebPort = 99999
			},
			expectErr: true,
		},
		{
			name: "無効なFPS",
			mutate: func(cfg *Config) {
				cfg.Camera.FPS = 0
			},
			expectErr: true,
		},
		{
			name: "FPSが上限超過",
			mutate: func(cfg *Config) {
				cfg.Camera.FPS = 120
			},
			expectErr: true,
		},
		{
			name: "無効なモード",
			mutate: func(cfg *Config) {
				cfg.Camera.Mode = "panorama"
			},
			expectErr: true,
		},
		{
			name: "imageモードで元画像なし",
			mutate: func(cfg *Config) {
				cfg.Camera.Mode = ModeImage
				cfg.Camera.ImagePath = ""
			},
			expectErr: true,
		},
		{
			name: "imageモードで元画像あり",
			mutate: func(cfg *Config) {
				cfg.Camera.Mode = ModeImage
				cfg.Camera.ImagePath = "/tmp/sample.png"
			},
			expectErr: false,
		},
		{
			name: "無効なJPEG品質",
			mutate: func(cfg *Config) {
				cfg.Producer.Quality = 50
			},
			expectErr: true,
		},
		{
			name: "無効なバックエンド",
			mutate: func(cfg *Config) {
				cfg.Producer.Backend = "quartz"
			},
			expectErr: true,
		},
		{
			name: "空のタイトル",
			mutate: func(cfg *Config) {
				cfg.Camera.Title = ""
			},
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)

			err := cfg.Validate()
			if tc.expectErr && err == nil {
				t.Error("エラーが期待されましたが、エラーが発生しませんでした")
			}
			if !tc.expectErr && err != nil {
				t.Errorf("予期しないエラーが発生しました: %v", err)
			}
		})
	}
}

// TestServerAddress はサーバーアドレスの生成をテストする
func TestServerAddress(t *testing.T) {
	cfg := Default()
	cfg.Display.Host = "192.168.1.100"
	cfg.Display.WebPort = 9090

	expected := "192.168.1.100:9090"
	actual := cfg.ServerAddress()

	if actual != expected {
		t.Errorf("サーバーアドレスが一致しません: got %s, want %s", actual, expected)
	}
}

// TestFramePeriod はフレーム間隔の計算をテストする
func TestFramePeriod(t *testing.T) {
	cfg := Default()
	cfg.Camera.FPS = 30

	if got := cfg.FramePeriod(); got != time.Second/30 {
		t.Errorf("フレーム間隔が一致しません: got %v, want %v", got, time.Second/30)
	}
}

// TestEnvironmentVariables は環境変数の処理をテストする
// 注意: このテストは環境変数を変更するため、parallelは使わない
func TestEnvironmentVariables(t *testing.T) {
	useMemFs(t)
	clearEnv(t)

	// 環境変数を設定
	_ = os.Setenv("SERVER_HOST", "test.example.com")
	_ = os.Setenv("SERVER_PORT", "9999")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	if cfg.Display.Host != "test.example.com" {
		t.Errorf("環境変数のホストが反映されていません: got %s, want test.example.com", cfg.Display.Host)
	}
	if cfg.Display.WebPort != 9999 {
		t.Errorf("環境変数のポートが反映されていません: got %d, want 9999", cfg.Display.WebPort)
	}
}
