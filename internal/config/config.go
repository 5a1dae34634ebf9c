package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/dealancer/validate.v2"
	"gopkg.in/yaml.v3"
)

// DefaultFileName はデフォルトの設定ファイル名
const DefaultFileName = "camera_config.yaml"

// EnvConfigPath は設定ファイルパスを上書きする環境変数名
const EnvConfigPath = "KAGEMUSHA_CONFIG"

// DefaultFontFile はオーバーレイ描画に使うデフォルトフォント
const DefaultFontFile = "/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf"

// fs はファイルアクセスの抽象化
// テストではMemMapFsに差し替える
var fs afero.Fs = afero.NewOsFs()

// Mode はフレーム生成モードを表す
type Mode string

const (
	// ModeTestPattern はテストパターン生成モード
	ModeTestPattern Mode = "test_pattern"
	// ModeImage は静止画ループモード
	ModeImage Mode = "image"
)

// Backend はフレーム生成バックエンドを表す
type Backend string

const (
	// BackendFFmpeg は外部ffmpegプロセスによる生成
	BackendFFmpeg Backend = "ffmpeg"
	// BackendNative はGo内蔵レンダラーによる生成
	BackendNative Backend = "native"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Camera    CameraConfig    `yaml:"camera"`
	Display   DisplayConfig   `yaml:"display"`
	Autostart AutostartConfig `yaml:"autostart"`
	Producer  ProducerConfig  `yaml:"producer"`
	Paths     PathsConfig     `yaml:"paths"`
}

// CameraConfig は擬似カメラの映像設定
type CameraConfig struct {
	Width     int    `yaml:"width" validate:"gte=16 & lte=4096"`        // 画像幅
	Height    int    `yaml:"height" validate:"gte=16 & lte=4096"`       // 画像高さ
	FPS       int    `yaml:"fps" validate:"gte=1 & lte=60"`             // フレームレート (fps)
	Mode      Mode   `yaml:"mode" validate:"one_of=test_pattern,image"` // 生成モード
	ImagePath string `yaml:"image_path"`                                // imageモードの元画像パス
	Title     string `yaml:"title" validate:"empty=false"`              // オーバーレイのタイトル文字列
}

// DisplayConfig はHTTPサーバーの設定
type DisplayConfig struct {
	Host    string `yaml:"host"`                                  // リッスンするホスト
	WebPort int    `yaml:"web_port" validate:"gte=1 & lte=65535"` // リッスンするポート番号

	// タイムアウト設定（設定ファイルからは変更しない）
	ReadTimeout  time.Duration `yaml:"-"` // 読み込みタイムアウト
	WriteTimeout time.Duration `yaml:"-"` // 書き込みタイムアウト
}

// AutostartConfig は一括起動コマンドの挙動設定
type AutostartConfig struct {
	Enabled bool `yaml:"enabled"`                         // falseなら起動コマンドは何もしない
	Delay   int  `yaml:"delay" validate:"gte=0 & lte=60"` // 起動前の待機秒数
}

// ProducerConfig はフレーム生成の詳細設定
type ProducerConfig struct {
	Backend     Backend `yaml:"backend" validate:"one_of=ffmpeg,native"` // 生成バックエンド
	Quality     int     `yaml:"quality" validate:"gte=1 & lte=31"`       // JPEG品質 (ffmpegの-q:v相当、小さいほど高品質)
	AtomicWrite bool    `yaml:"atomic_write"`                            // rename経由でフレームを公開するか
	FontFile    string  `yaml:"font_file"`                               // オーバーレイ文字のフォントファイル
}

// PathsConfig は成果物の配置設定
type PathsConfig struct {
	WebDir    string `yaml:"web_dir" validate:"empty=false"`    // 配信対象ディレクトリ
	FrameFile string `yaml:"frame_file" validate:"empty=false"` // フレームJPEGのパス
	RunDir    string `yaml:"run_dir"`                           // PIDファイル・ログの配置先
}

// Default はデフォルト設定を返す
// 設定ファイルなしでもデモが動くよう、全フィールドに実用値を入れる
func Default() *Config {
	return &Config{
		Camera: CameraConfig{
			Width:     1280,
			Height:    720,
			FPS:       30,
			Mode:      ModeTestPattern,
			ImagePath: "",
			Title:     "Kagemusha",
		},
		Display: DisplayConfig{
			Host:         "0.0.0.0",
			WebPort:      8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 0, // ストリーミング用にタイムアウト無効化
		},
		Autostart: AutostartConfig{
			Enabled: true,
			Delay:   2,
		},
		Producer: ProducerConfig{
			Backend:     BackendFFmpeg,
			Quality:     3,
			AtomicWrite: true,
			FontFile:    DefaultFontFile,
		},
		Paths: PathsConfig{
			WebDir:    "web",
			FrameFile: filepath.Join("web", "current_frame.jpg"),
			RunDir:    os.TempDir(),
		},
	}
}

// Load は設定を読み込む
// デフォルト値の上に設定ファイルを重ね、最後に環境変数で上書きする
func Load() (*Config, error) {
	cfg := Default()

	path, explicit := resolveConfigPath()
	data, err := afero.ReadFile(fs, path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("設定ファイルの解析に失敗 (%s): %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// デフォルトパスにファイルがないのは正常（デフォルト設定で動く）
	default:
		return nil, fmt.Errorf("設定ファイルの読み込みに失敗 (%s): %w", path, err)
	}

	// 環境変数による上書き
	cfg.Display.Host = getEnvOrDefault("SERVER_HOST", cfg.Display.Host)
	cfg.Display.WebPort = getEnvAsIntOrDefault("SERVER_PORT", cfg.Display.WebPort)

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// resolveConfigPath は設定ファイルのパスを決定する
// 環境変数が設定されていればそれを優先し、明示指定かどうかを併せて返す
func resolveConfigPath() (string, bool) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path, true
	}
	return DefaultFileName, false
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	if err := validate.Validate(c); err != nil {
		return err
	}

	// タグで表現できない相関チェック
	if c.Camera.Mode == ModeImage && c.Camera.ImagePath == "" {
		return fmt.Errorf("imageモードにはcamera.image_pathの指定が必要です")
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Display.Host, c.Display.WebPort)
}

// FramePeriod は1フレームあたりの時間を返す
func (c *Config) FramePeriod() time.Duration {
	return time.Second / time.Duration(c.Camera.FPS)
}

// RunDir はPIDファイル・ログの配置先を返す
// 未設定の場合はシステムの一時ディレクトリを使う
func (c *Config) RunDir() string {
	if c.Paths.RunDir != "" {
		return c.Paths.RunDir
	}
	return os.TempDir()
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
