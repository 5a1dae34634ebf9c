package producer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"kagemusha/internal/config"
)

// FFmpegEncoder は外部ffmpegプロセスでフレームを生成する
// lavfiのカラーソースまたは静止画ループをMJPEGとしてパイプ出力させ、
// JPEGマーカーでフレーム単位に切り出す
type FFmpegEncoder struct {
	cfg *config.Config

	frameChan chan []byte
	errorChan chan error

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewFFmpegEncoder は新しいFFmpegEncoderを作成する
func NewFFmpegEncoder(cfg *config.Config) *FFmpegEncoder {
	return &FFmpegEncoder{
		cfg:       cfg,
		frameChan: make(chan []byte, 8),
		errorChan: make(chan error, 4),
	}
}

// Frames は生成されたJPEGフレームを受け取るチャンネルを返す
func (e *FFmpegEncoder) Frames() <-chan []byte {
	return e.frameChan
}

// Errors は生成中に発生したエラーを受け取るチャンネルを返す
func (e *FFmpegEncoder) Errors() <-chan error {
	return e.errorChan
}

// Start はffmpegプロセスを起動してフレーム生成を開始する
func (e *FFmpegEncoder) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return fmt.Errorf("エンコーダーは既に開始されています")
	}

	// ffmpegの存在確認
	if err := ValidateFFmpeg(ctx); err != nil {
		return err
	}

	// imageモードでは元画像の存在を事前に確認する
	if e.cfg.Camera.Mode == config.ModeImage {
		if _, err := os.Stat(e.cfg.Camera.ImagePath); err != nil {
			return fmt.Errorf("元画像が読み込めません (%s): %w", e.cfg.Camera.ImagePath, err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, "ffmpeg", e.buildArgs()...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stdoutパイプの作成に失敗: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stderrパイプの作成に失敗: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("ffmpegの起動に失敗: %w", err)
	}

	// stderrは診断用に末尾だけ保持する
	tail := &tailWriter{limit: 2048}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		_, _ = io.Copy(tail, stderr)
	}()

	// JPEGフレームを読み取り、異常終了ならエラーを通知する
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.readFrames(runCtx, stdout)

		waitErr := cmd.Wait()
		if runCtx.Err() != nil {
			return // 停止要求によるプロセス終了
		}
		if waitErr != nil {
			e.errorChan <- fmt.Errorf("ffmpegが異常終了: %w (stderr: %s)", waitErr, tail.String())
			return
		}
		e.errorChan <- fmt.Errorf("ffmpegが予期せず終了しました (stderr: %s)", tail.String())
	}()

	e.cancel = cancel
	e.running = true
	return nil
}

// Stop はffmpegプロセスを停止する
func (e *FFmpegEncoder) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil // 既に停止している
	}
	cancel := e.cancel
	e.mu.Unlock()

	cancel()

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

// buildArgs はffmpegのコマンドライン引数を組み立てる
func (e *FFmpegEncoder) buildArgs() []string {
	cam := e.cfg.Camera
	args := []string{"-hide_banner", "-loglevel", "error"}

	switch cam.Mode {
	case config.ModeImage:
		// 静止画を実時間でループ再生し、リサイズと時計オーバーレイを重ねる
		args = append(args,
			"-re",
			"-loop", "1",
			"-framerate", strconv.Itoa(cam.FPS),
			"-i", cam.ImagePath,
			"-vf", fmt.Sprintf("scale=%d:%d,%s", cam.Width, cam.Height, e.cornerClockFilter()),
		)
	default:
		// 青背景のカラーソースにタイトルと時計を重ねる
		args = append(args,
			"-f", "lavfi",
			"-i", fmt.Sprintf("color=c=blue:s=%dx%d:r=%d", cam.Width, cam.Height, cam.FPS),
			"-vf", e.centerTextFilter(),
		)
	}

	args = append(args,
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", strconv.Itoa(e.cfg.Producer.Quality),
		"-",
	)
	return args
}

// centerTextFilter はテストパターン用のdrawtextフィルタを組み立てる
// タイトルを中央上寄り、時計を中央下寄りに描く
func (e *FFmpegEncoder) centerTextFilter() string {
	font := e.cfg.Producer.FontFile
	title := e.cfg.Camera.Title
	return fmt.Sprintf(
		"drawtext=fontfile=%s:text='%s':fontcolor=white:fontsize=48:x=(w-text_w)/2:y=(h-text_h)/2-40,"+
			"drawtext=fontfile=%s:text='%%{localtime\\:%%X}':fontcolor=white:fontsize=36:x=(w-text_w)/2:y=(h-text_h)/2+40",
		font, title, font)
}

// cornerClockFilter はimageモード用のdrawtextフィルタを組み立てる
// 左上にタイトルと時計を半透明の黒箱付きで描く
func (e *FFmpegEncoder) cornerClockFilter() string {
	return fmt.Sprintf(
		"drawtext=fontfile=%s:text='%s %%{localtime\\:%%X}':fontcolor=white:fontsize=24:x=10:y=10:box=1:boxcolor=black@0.5:boxborderw=5",
		e.cfg.Producer.FontFile, e.cfg.Camera.Title)
}

// readFrames はパイプ出力からJPEGフレームを切り出してチャンネルへ送る
func (e *FFmpegEncoder) readFrames(ctx context.Context, r io.Reader) {
	buffer := make([]byte, 1024*1024) // 1MBバッファ
	frameBuffer := bytes.Buffer{}

	for {
		select {
		case <-ctx.Done():
			return
		default:
			n, err := r.Read(buffer)
			if err != nil {
				if err != io.EOF && ctx.Err() == nil {
					e.errorChan <- fmt.Errorf("フレーム読み取りエラー: %w", err)
				}
				return
			}

			frameBuffer.Write(buffer[:n])

			// JPEGマーカーを探してフレームを分割
			data := frameBuffer.Bytes()
			for {
				// JPEGの開始マーカー（FF D8）を探す
				startIdx := bytes.Index(data, jpegSOI)
				if startIdx == -1 {
					break
				}

				// JPEGの終了マーカー（FF D9）を探す
				endIdx := bytes.Index(data[startIdx+2:], jpegEOI)
				if endIdx == -1 {
					// 完全なフレームがまだない
					if startIdx > 0 {
						// 不要なデータを削除
						frameBuffer.Reset()
						frameBuffer.Write(data[startIdx:])
					}
					break
				}

				// 完全なJPEGフレームを抽出
				endIdx += startIdx + 2 + 2 // マーカーのサイズを含める
				frame := make([]byte, endIdx-startIdx)
				copy(frame, data[startIdx:endIdx])

				// フレームを送信
				select {
				case e.frameChan <- frame:
				case <-ctx.Done():
					return
				}

				// 処理済みデータを削除
				remaining := data[endIdx:]
				frameBuffer.Reset()
				if len(remaining) > 0 {
					frameBuffer.Write(remaining)
					data = frameBuffer.Bytes()
				} else {
					data = nil
					break
				}
			}
		}
	}
}

// jpegSOI / jpegEOI はJPEGの開始・終了マーカー
var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// ValidateFFmpeg はffmpegが利用可能かチェックする
func ValidateFFmpeg(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(checkCtx, "ffmpeg", "-version")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpegが見つかりません。インストールしてください: %w", err)
	}

	return nil
}

// tailWriter は書き込みの末尾だけを保持するライター
type tailWriter struct {
	limit int

	mu  sync.Mutex
	buf []byte
}

// Write は末尾limitバイトだけを残して書き込みを記録する
func (t *tailWriter) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if len(t.buf) > t.limit {
		t.buf = t.buf[len(t.buf)-t.limit:]
	}
	return len(p), nil
}

// String は保持している内容を返す
func (t *tailWriter) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(bytes.TrimSpace(t.buf))
}
