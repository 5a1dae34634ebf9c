package producer

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"

	"kagemusha/internal/config"
)

// Publisher はフレームファイルへの書き込み戦略を統一するインターフェース
// 書き込むのは常に最新の1フレームのみで、キューは持たない
type Publisher interface {
	// Publish はフレームを公開する
	Publish(frame []byte) error

	// Path は公開先のパスを返す
	Path() string
}

// NewPublisher は設定に応じたPublisherを作成する
// 公開先の親ディレクトリはここで作成する
func NewPublisher(cfg *config.Config) (Publisher, error) {
	path := cfg.Paths.FrameFile
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("公開先ディレクトリの作成に失敗 (%s): %w", dir, err)
		}
	}

	if cfg.Producer.AtomicWrite {
		return &AtomicPublisher{path: path}, nil
	}
	return &DirectPublisher{path: path}, nil
}

// AtomicPublisher は一時ファイルへの書き込みとrenameでフレームを公開する
// 読み手が書き込み途中のフレームを観測することはない
type AtomicPublisher struct {
	path string
}

// Publish はフレームをrename経由で公開する
func (p *AtomicPublisher) Publish(frame []byte) error {
	if err := renameio.WriteFile(p.path, frame, 0644); err != nil {
		return fmt.Errorf("フレームの公開に失敗 (%s): %w", p.path, err)
	}
	return nil
}

// Path は公開先のパスを返す
func (p *AtomicPublisher) Path() string {
	return p.path
}

// DirectPublisher はフレームファイルをその場で上書きする
// 読み手が書き込み途中の内容を観測しうる点は許容する
type DirectPublisher struct {
	path string
}

// Publish はフレームを直接上書きで公開する
func (p *DirectPublisher) Publish(frame []byte) error {
	if err := os.WriteFile(p.path, frame, 0644); err != nil {
		return fmt.Errorf("フレームの書き込みに失敗 (%s): %w", p.path, err)
	}
	return nil
}

// Path は公開先のパスを返す
func (p *DirectPublisher) Path() string {
	return p.path
}

// MockPublisher はテスト用のモックパブリッシャー
type MockPublisher struct {
	mu     sync.Mutex
	frames [][]byte

	// テスト制御用
	shouldFail bool
}

// NewMockPublisher は新しいMockPublisherを作成する
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// Publish はフレームを記録する
func (m *MockPublisher) Publish(frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shouldFail {
		return fmt.Errorf("モック: フレームの公開に失敗")
	}

	stored := make([]byte, len(frame))
	copy(stored, frame)
	m.frames = append(m.frames, stored)
	return nil
}

// Path は公開先のパスを返す
func (m *MockPublisher) Path() string {
	return "mock://frame"
}

// Frames は記録したフレームのコピーを返す
func (m *MockPublisher) Frames() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	frames := make([][]byte, len(m.frames))
	copy(frames, m.frames)
	return frames
}

// SetShouldFail はテスト用にPublish失敗を設定する
func (m *MockPublisher) SetShouldFail(shouldFail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldFail = shouldFail
}
