package analyzer

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Reaction は動き検知時に実行される処理
type Reaction interface {
	OnMotion(result Result)
}

// LogReaction は検知結果をログに出力するリアクション
type LogReaction struct{}

// OnMotion は検知内容をログに出力する
func (LogReaction) OnMotion(result Result) {
	log.Printf("動きを検知しました (フレーム%d, 変化率%.2f%%)", result.FrameNumber, result.ChangedPercent)
}

// Options は解析ループの動作設定
type Options struct {
	FPS          int    // 解析周期 (デフォルト10)
	MaxFrames    int    // 処理する最大フレーム数 (0なら無制限)
	SaveInterval int    // Nフレームごとにスナップショットを保存 (0なら保存しない)
	OutputDir    string // スナップショットの保存先 (デフォルトはカレントディレクトリ)
	Verbose      bool   // フレームごとに解析結果をログに出力する
}

// Summary は解析ループ全体の集計
type Summary struct {
	TotalFrames  int
	MotionEvents int
	Elapsed      time.Duration
	AverageFPS   float64
}

// Reader はフレーム取得元から定期的に読み込んで解析するループ
type Reader struct {
	source    FrameSource
	analyzer  *Analyzer
	reactions []Reaction
	opts      Options

	processed   int
	motionCount int
	startedAt   time.Time
}

// NewReader はリーダーを作成する
func NewReader(source FrameSource, opts Options) *Reader {
	if opts.FPS <= 0 {
		opts.FPS = 10
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}

	return &Reader{
		source:   source,
		analyzer: New(),
		opts:     opts,
	}
}

// AddReaction は動き検知時に実行する処理を登録する
func (r *Reader) AddReaction(reaction Reaction) {
	r.reactions = append(r.reactions, reaction)
}

// Run は解析ループを実行する
// MaxFramesに達するかコンテキストがキャンセルされるまで回り続ける
func (r *Reader) Run(ctx context.Context) (*Summary, error) {
	if err := r.source.Connect(); err != nil {
		return nil, fmt.Errorf("フレーム取得元への接続に失敗: %w", err)
	}
	defer func() {
		_ = r.source.Close()
	}()

	if r.opts.SaveInterval > 0 {
		if err := os.MkdirAll(r.opts.OutputDir, 0755); err != nil {
			return nil, fmt.Errorf("保存先ディレクトリの作成に失敗: %w", err)
		}
	}

	r.startedAt = time.Now()
	ticker := time.NewTicker(time.Second / time.Duration(r.opts.FPS))
	defer ticker.Stop()

	for {
		if r.opts.MaxFrames > 0 && r.processed >= r.opts.MaxFrames {
			return r.summary(), nil
		}

		img, err := r.source.ReadFrame()
		if err != nil {
			// 書き込み中などで一時的に読めないのは正常。次の周期で再試行する
			if r.opts.Verbose {
				log.Printf("フレームを読み込めませんでした: %v", err)
			}
		} else {
			r.handleFrame(img)
		}

		select {
		case <-ctx.Done():
			return r.summary(), nil
		case <-ticker.C:
		}
	}
}

// handleFrame は1フレーム分の解析と後処理を行う
func (r *Reader) handleFrame(img image.Image) {
	result := r.analyzer.Analyze(img)
	r.processed++

	if r.opts.Verbose {
		log.Printf("フレーム%d: 色=%s 明るさ=%s (%.1f) 複雑さ=%s 変化率=%.2f%%",
			result.FrameNumber, result.DominantColor, result.BrightnessLevel,
			result.AvgBrightness, result.Complexity, result.ChangedPercent)
	}

	if result.MotionDetected {
		r.motionCount++
		for _, reaction := range r.reactions {
			reaction.OnMotion(result)
		}
	}

	if r.opts.SaveInterval > 0 && r.processed%r.opts.SaveInterval == 0 {
		r.saveSnapshot(img)
	}
}

// saveSnapshot は現在のフレームを保存する
func (r *Reader) saveSnapshot(img image.Image) {
	name := fmt.Sprintf("frame_%06d_%s.jpg", r.processed, time.Now().Format("150405"))
	path := filepath.Join(r.opts.OutputDir, name)

	f, err := os.Create(path)
	if err != nil {
		log.Printf("スナップショットの作成に失敗: %v", err)
		return
	}
	defer func() {
		_ = f.Close()
	}()

	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 90}); err != nil {
		log.Printf("スナップショットの書き込みに失敗: %v", err)
		return
	}

	log.Printf("スナップショットを保存しました: %s", path)
}

// summary は集計結果を作成する
func (r *Reader) summary() *Summary {
	elapsed := time.Since(r.startedAt)

	s := &Summary{
		TotalFrames:  r.processed,
		MotionEvents: r.motionCount,
		Elapsed:      elapsed,
	}
	if elapsed > 0 {
		s.AverageFPS = float64(r.processed) / elapsed.Seconds()
	}

	return s
}
