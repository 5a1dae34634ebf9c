package producer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // imageモードの元画像デコード用
	"log"
	"os"
	"sync"
	"time"

	"github.com/fogleman/gg"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"

	"kagemusha/internal/config"
)

// NativeEncoder はGo内蔵の描画でフレームを生成する
// ffmpegが使えない環境向けの代替バックエンド
type NativeEncoder struct {
	cfg *config.Config

	frameChan chan []byte
	errorChan chan error

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	// 描画リソース（Start時に初期化）
	titleFace  font.Face
	clockFace  font.Face
	cornerFace font.Face
	base       *image.RGBA // imageモードのリサイズ済み背景
}

// NewNativeEncoder は新しいNativeEncoderを作成する
func NewNativeEncoder(cfg *config.Config) *NativeEncoder {
	return &NativeEncoder{
		cfg:       cfg,
		frameChan: make(chan []byte, 8),
		errorChan: make(chan error, 4),
	}
}

// Frames は生成されたJPEGフレームを受け取るチャンネルを返す
func (e *NativeEncoder) Frames() <-chan []byte {
	return e.frameChan
}

// Errors は生成中に発生したエラーを受け取るチャンネルを返す
func (e *NativeEncoder) Errors() <-chan error {
	return e.errorChan
}

// Start は描画ループを開始する
func (e *NativeEncoder) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return fmt.Errorf("エンコーダーは既に開始されています")
	}

	e.loadFaces()

	if e.cfg.Camera.Mode == config.ModeImage {
		if err := e.loadBase(); err != nil {
			return fmt.Errorf("元画像の読み込みに失敗: %w", err)
		}
	}

	e.stopCh = make(chan struct{})
	e.wg.Add(1)
	go e.renderLoop(ctx)

	e.running = true
	return nil
}

// Stop は描画ループを停止する
func (e *NativeEncoder) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil // 既に停止している
	}
	close(e.stopCh)
	e.mu.Unlock()

	// ゴルーチンの終了を待機
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("エンコーダーの停止がタイムアウト: %w", ctx.Err())
	}

	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
	return nil
}

// renderLoop はフレームレートに合わせてフレームを生成し続ける
func (e *NativeEncoder) renderLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.FramePeriod())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			frame, err := e.renderFrame(time.Now())
			if err != nil {
				e.errorChan <- fmt.Errorf("フレームの描画に失敗: %w", err)
				return
			}

			select {
			case e.frameChan <- frame:
			case <-e.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

// renderFrame は現在時刻入りのフレームを1枚描画してJPEGに変換する
func (e *NativeEncoder) renderFrame(now time.Time) ([]byte, error) {
	cam := e.cfg.Camera

	var dc *gg.Context
	if cam.Mode == config.ModeImage {
		// リサイズ済み背景の上に左上の時計オーバーレイを重ねる
		dc = gg.NewContextForImage(e.base)

		text := fmt.Sprintf("%s %s", cam.Title, now.Format("15:04:05"))
		dc.SetFontFace(e.cornerFace)
		tw, th := dc.MeasureString(text)

		dc.SetRGBA(0, 0, 0, 0.5)
		dc.DrawRectangle(5, 5, tw+10, th+10)
		dc.Fill()

		dc.SetRGB(1, 1, 1)
		dc.DrawStringAnchored(text, 10, 10, 0, 1)
	} else {
		// 青背景にタイトルと時計を中央揃えで描く
		dc = gg.NewContext(cam.Width, cam.Height)
		dc.SetRGB(0, 0, 1)
		dc.Clear()

		cx := float64(cam.Width) / 2
		cy := float64(cam.Height) / 2

		dc.SetRGB(1, 1, 1)
		dc.SetFontFace(e.titleFace)
		dc.DrawStringAnchored(cam.Title, cx, cy-40, 0.5, 0.5)

		dc.SetFontFace(e.clockFace)
		dc.DrawStringAnchored(now.Format("15:04:05"), cx, cy+40, 0.5, 0.5)
	}

	buf := bytes.Buffer{}
	opts := &jpeg.Options{Quality: jpegQuality(e.cfg.Producer.Quality)}
	if err := jpeg.Encode(&buf, dc.Image(), opts); err != nil {
		return nil, fmt.Errorf("JPEGエンコードに失敗: %w", err)
	}

	return buf.Bytes(), nil
}

// loadFaces はオーバーレイ用のフォントフェイスを準備する
// フォントファイルが読めない場合は内蔵フォントで代替する
func (e *NativeEncoder) loadFaces() {
	data, err := os.ReadFile(e.cfg.Producer.FontFile)
	if err == nil {
		var parsed *truetype.Font
		parsed, err = freetype.ParseFont(data)
		if err == nil {
			e.titleFace = truetype.NewFace(parsed, &truetype.Options{Size: 48, Hinting: font.HintingFull})
			e.clockFace = truetype.NewFace(parsed, &truetype.Options{Size: 36, Hinting: font.HintingFull})
			e.cornerFace = truetype.NewFace(parsed, &truetype.Options{Size: 24, Hinting: font.HintingFull})
			return
		}
	}

	log.Printf("フォントが読み込めないため内蔵フォントで代替します (%s): %v", e.cfg.Producer.FontFile, err)
	e.titleFace = basicfont.Face7x13
	e.clockFace = basicfont.Face7x13
	e.cornerFace = basicfont.Face7x13
}

// loadBase はimageモードの元画像を読み込み、出力解像度へ引き伸ばす
func (e *NativeEncoder) loadBase() error {
	f, err := os.Open(e.cfg.Camera.ImagePath)
	if err != nil {
		return fmt.Errorf("元画像が開けません (%s): %w", e.cfg.Camera.ImagePath, err)
	}
	defer func() {
		_ = f.Close()
	}()

	src, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("元画像のデコードに失敗 (%s): %w", e.cfg.Camera.ImagePath, err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, e.cfg.Camera.Width, e.cfg.Camera.Height))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	e.base = dst
	return nil
}

// jpegQuality はffmpegの-q:v相当の品質値をGoのJPEG品質へ変換する
// 品質1(高) -> 100, 品質31(低) -> 10
func jpegQuality(q int) int {
	quality := 100 - (q-1)*3
	if quality < 10 {
		quality = 10
	}
	if quality > 100 {
		quality = 100
	}
	return quality
}
