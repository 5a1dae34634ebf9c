package producer

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"kagemusha/internal/config"
)

// nativeTestConfig は内蔵フォント代替を強制した設定を返す
func nativeTestConfig() *config.Config {
	cfg := testConfig()
	cfg.Camera.Width = 320
	cfg.Camera.Height = 240
	cfg.Producer.Backend = config.BackendNative
	cfg.Producer.FontFile = "" // 内蔵フォントへの代替を強制
	return cfg
}

// TestNativeRenderTestPattern はテストパターンの描画をテストする
func TestNativeRenderTestPattern(t *testing.T) {
	cfg := nativeTestConfig()
	cfg.Camera.Mode = config.ModeTestPattern

	enc := NewNativeEncoder(cfg)
	enc.loadFaces()

	frame, err := enc.renderFrame(time.Date(2026, 8, 25, 12, 34, 56, 0, time.Local))
	if err != nil {
		t.Fatalf("フレームの描画に失敗しました: %v", err)
	}

	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		t.Fatalf("JPEGのデコードに失敗しました: %v", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() != 320 || bounds.Dy() != 240 {
		t.Errorf("解像度が一致しません: got %dx%d, want 320x240", bounds.Dx(), bounds.Dy())
	}

	// 背景は青が支配的（文字のない左上近辺で確認）
	r, g, b, _ := img.At(10, 10).RGBA()
	if b <= r || b <= g {
		t.Errorf("背景が青になっていません: r=%d g=%d b=%d", r, g, b)
	}
}

// TestNativeRenderImageMode は静止画ループモードの描画をテストする
func TestNativeRenderImageMode(t *testing.T) {
	// 赤一色の元画像を用意する
	src := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			src.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	srcPath := filepath.Join(t.TempDir(), "source.png")
	f, err := os.Create(srcPath)
	if err != nil {
		t.Fatalf("元画像ファイルの作成に失敗しました: %v", err)
	}
	if err := png.Encode(f, src); err != nil {
		t.Fatalf("元画像のエンコードに失敗しました: %v", err)
	}
	_ = f.Close()

	cfg := nativeTestConfig()
	cfg.Camera.Mode = config.ModeImage
	cfg.Camera.ImagePath = srcPath

	enc := NewNativeEncoder(cfg)
	enc.loadFaces()
	if err := enc.loadBase(); err != nil {
		t.Fatalf("元画像の読み込みに失敗しました: %v", err)
	}

	frame, err := enc.renderFrame(time.Date(2026, 8, 25, 12, 34, 56, 0, time.Local))
	if err != nil {
		t.Fatalf("フレームの描画に失敗しました: %v", err)
	}

	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		t.Fatalf("JPEGのデコードに失敗しました: %v", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() != 320 || bounds.Dy() != 240 {
		t.Errorf("解像度が一致しません: got %dx%d, want 320x240", bounds.Dx(), bounds.Dy())
	}

	// オーバーレイから離れた位置は元画像の赤が支配的
	r, g, b, _ := img.At(200, 200).RGBA()
	if r <= g || r <= b {
		t.Errorf("元画像の色が反映されていません: r=%d g=%d b=%d", r, g, b)
	}
}

// TestNativeModesDiffer はモードごとに生成内容が変わることをテストする
func TestNativeModesDiffer(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 34, 56, 0, time.Local)

	patternCfg := nativeTestConfig()
	patternCfg.Camera.Mode = config.ModeTestPattern
	patternEnc := NewNativeEncoder(patternCfg)
	patternEnc.loadFaces()
	patternFrame, err := patternEnc.renderFrame(now)
	if err != nil {
		t.Fatalf("テストパターンの描画に失敗しました: %v", err)
	}

	src := image.NewRGBA(image.Rect(0, 0, 8, 8))
	srcPath := filepath.Join(t.TempDir(), "plain.png")
	f, err := os.Create(srcPath)
	if err != nil {
		t.Fatalf("元画像ファイルの作成に失敗しました: %v", err)
	}
	if err := png.Encode(f, src); err != nil {
		t.Fatalf("元画像のエンコードに失敗しました: %v", err)
	}
	_ = f.Close()

	imageCfg := nativeTestConfig()
	imageCfg.Camera.Mode = config.ModeImage
	imageCfg.Camera.ImagePath = srcPath
	imageEnc := NewNativeEncoder(imageCfg)
	imageEnc.loadFaces()
	if err := imageEnc.loadBase(); err != nil {
		t.Fatalf("元画像の読み込みに失敗しました: %v", err)
	}
	imageFrame, err := imageEnc.renderFrame(now)
	if err != nil {
		t.Fatalf("imageモードの描画に失敗しました: %v", err)
	}

	if bytes.Equal(patternFrame, imageFrame) {
		t.Error("モードが異なるのに同一のフレームが生成されました")
	}
}

// TestNativeEncoderStartStop はエンコーダーの開始と停止をテストする
func TestNativeEncoderStartStop(t *testing.T) {
	cfg := nativeTestConfig()
	cfg.Camera.Width = 64
	cfg.Camera.Height = 48
	cfg.Camera.FPS = 30

	enc := NewNativeEncoder(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := enc.Start(ctx); err != nil {
		t.Fatalf("エンコーダーの開始に失敗しました: %v", err)
	}

	// 二重開始はエラー
	if err := enc.Start(ctx); err == nil {
		t.Error("二重開始でエラーが期待されましたが、エラーが発生しませんでした")
	}

	// フレームが届くことを確認
	for i := 0; i < 2; i++ {
		select {
		case frame := <-enc.Frames():
			if len(frame) == 0 {
				t.Error("空のフレームを受信しました")
			}
		case err := <-enc.Errors():
			t.Fatalf("予期しないエラーが発生しました: %v", err)
		case <-ctx.Done():
			t.Fatal("フレームの受信がタイムアウトしました")
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer stopCancel()
	if err := enc.Stop(stopCtx); err != nil {
		t.Fatalf("エンコーダーの停止に失敗しました: %v", err)
	}

	// 停止後は再開始できる
	if err := enc.Start(ctx); err != nil {
		t.Fatalf("再開始に失敗しました: %v", err)
	}
	if err := enc.Stop(stopCtx); err != nil {
		t.Fatalf("再停止に失敗しました: %v", err)
	}
}

// TestJPEGQuality は品質値の変換をテストする
func TestJPEGQuality(t *testing.T) {
	testCases := []struct {
		name  string
		input int
		want  int
	}{
		{"最高品質", 1, 100},
		{"デフォルト品質", 3, 94},
		{"最低品質", 31, 10},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := jpegQuality(tc.input); got != tc.want {
				t.Errorf("品質変換が一致しません: got %d, want %d", got, tc.want)
			}
		})
	}
}
