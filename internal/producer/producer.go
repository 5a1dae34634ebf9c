package producer

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"kagemusha/internal/config"
)

// measureWindow は実測FPSの計算に使う直近フレーム数
const measureWindow = 30

// Producer はエンコーダーからフレームを受け取り、フレームファイルへ公開する
type Producer struct {
	cfg       *config.Config
	encoder   Encoder
	publisher Publisher

	mu      sync.RWMutex
	stats   Stats
	recent  []time.Time
	running bool
}

// New は設定に応じたProducerを作成する
func New(cfg *config.Config) (*Producer, error) {
	var enc Encoder
	switch cfg.Producer.Backend {
	case config.BackendNative:
		enc = NewNativeEncoder(cfg)
	default:
		enc = NewFFmpegEncoder(cfg)
	}

	pub, err := NewPublisher(cfg)
	if err != nil {
		return nil, err
	}

	return newProducer(cfg, enc, pub), nil
}

// newProducer は部品を差し替え可能な内部コンストラクタ
func newProducer(cfg *config.Config, enc Encoder, pub Publisher) *Producer {
	return &Producer{
		cfg:       cfg,
		encoder:   enc,
		publisher: pub,
		stats: Stats{
			SessionID: uuid.NewString(),
		},
	}
}

// Run はフレーム生成を開始し、停止要求かエラーまでブロックする
// コンテキストのキャンセルによる停止はエラーにしない
func (p *Producer) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("フレーム生成は既に開始されています")
	}
	p.running = true
	p.stats.StartedAt = time.Now()
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	if err := p.encoder.Start(ctx); err != nil {
		return fmt.Errorf("エンコーダーの開始に失敗: %w", err)
	}

	log.Printf("フレーム生成を開始しました: %dx%d %dfps mode=%s backend=%s -> %s",
		p.cfg.Camera.Width, p.cfg.Camera.Height, p.cfg.Camera.FPS,
		p.cfg.Camera.Mode, p.cfg.Producer.Backend, p.publisher.Path())

	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.encoder.Stop(stopCtx); err != nil {
			log.Printf("エンコーダーの停止に失敗: %v", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			stats := p.Stats()
			log.Printf("フレーム生成を停止しています... (公開%dフレーム, 実測%.1ffps)",
				stats.FramesWritten, stats.MeasuredFPS)
			return nil

		case frame, ok := <-p.encoder.Frames():
			if !ok {
				return fmt.Errorf("フレームチャンネルがクローズされました")
			}
			if err := p.publisher.Publish(frame); err != nil {
				return err
			}
			p.recordPublish(time.Now())

		case err := <-p.encoder.Errors():
			return fmt.Errorf("フレーム生成が停止しました: %w", err)
		}
	}
}

// Stats は現在の統計情報のスナップショットを返す
func (p *Producer) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats
}

// IsRunning は生成中かを返す
func (p *Producer) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// FramePath はフレームファイルの公開先パスを返す
func (p *Producer) FramePath() string {
	return p.publisher.Path()
}

// recordPublish は公開統計を更新する
func (p *Producer) recordPublish(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.FramesWritten++
	p.stats.LastPublish = now

	p.recent = append(p.recent, now)
	if len(p.recent) > measureWindow {
		p.recent = p.recent[1:]
	}
	if len(p.recent) >= 2 {
		span := p.recent[len(p.recent)-1].Sub(p.recent[0]).Seconds()
		if span > 0 {
			p.stats.MeasuredFPS = float64(len(p.recent)-1) / span
		}
	}
}
