package producer

import (
	"context"
	"errors"
	"sync"
	"time"
)

// errMockStartFailure はMockEncoderのStart失敗を表す
var errMockStartFailure = errors.New("モック: エンコーダー開始に失敗")

// Encoder は連続フレーム生成源を統一するインターフェース
type Encoder interface {
	// Start はフレーム生成を開始する
	Start(ctx context.Context) error

	// Stop はフレーム生成を停止する
	Stop(ctx context.Context) error

	// Frames は生成されたJPEGフレームを受け取るチャンネルを返す
	Frames() <-chan []byte

	// Errors は生成中に発生したエラーを受け取るチャンネルを返す
	Errors() <-chan error
}

// Stats はフレーム生成の統計情報を表す
type Stats struct {
	SessionID     string    // 生成セッションの識別子
	StartedAt     time.Time // 生成開始時刻
	FramesWritten uint64    // 公開済みフレーム数
	LastPublish   time.Time // 最後にフレームを公開した時刻
	MeasuredFPS   float64   // 直近の実測FPS
}

// MockEncoder はテスト用のモックエンコーダー
type MockEncoder struct {
	frameChan chan []byte
	errorChan chan error

	mu      sync.Mutex
	running bool

	// テスト制御用
	shouldFailStart bool
}

// NewMockEncoder は新しいMockEncoderを作成する
func NewMockEncoder() *MockEncoder {
	return &MockEncoder{
		frameChan: make(chan []byte, 8),
		errorChan: make(chan error, 4),
	}
}

// Start はモックエンコーダーを開始する
func (m *MockEncoder) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shouldFailStart {
		return errMockStartFailure
	}

	m.running = true
	return nil
}

// Stop はモックエンコーダーを停止する
func (m *MockEncoder) Stop(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	return nil
}

// Frames はフレームチャンネルを返す
func (m *MockEncoder) Frames() <-chan []byte {
	return m.frameChan
}

// Errors はエラーチャンネルを返す
func (m *MockEncoder) Errors() <-chan error {
	return m.errorChan
}

// EmitFrame はテスト用にフレームを注入する
func (m *MockEncoder) EmitFrame(frame []byte) {
	m.frameChan <- frame
}

// EmitError はテスト用にエラーを注入する
func (m *MockEncoder) EmitError(err error) {
	m.errorChan <- err
}

// SetShouldFailStart はテスト用にStart失敗を設定する
func (m *MockEncoder) SetShouldFailStart(shouldFail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldFailStart = shouldFail
}

// IsRunning は開始済みかを返す
func (m *MockEncoder) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
