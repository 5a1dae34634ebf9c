package analyzer

import (
	"fmt"
	"image"
	"os"

	// フレームファイルはJPEG、静止画はPNGの場合もある
	_ "image/jpeg"
	_ "image/png"
)

// FrameSource はフレームの取得元を抽象化する
type FrameSource interface {
	// Connect は取得元に接続する
	Connect() error
	// ReadFrame は最新のフレームを読み込む
	ReadFrame() (image.Image, error)
	// Close は取得元を解放する
	Close() error
}

// FileFrameSource は毎回ファイルを読み直すフレーム取得元
// 擬似カメラのフレームファイルにも静止画にも使う
type FileFrameSource struct {
	path string
	hint string
}

// NewFrameFileSource は擬似カメラのフレームファイルを取得元にする
func NewFrameFileSource(path string) *FileFrameSource {
	return &FileFrameSource{
		path: path,
		hint: "kagemusha start で擬似カメラを起動してください",
	}
}

// NewImageSource は静止画ファイルを取得元にする
func NewImageSource(path string) *FileFrameSource {
	return &FileFrameSource{path: path}
}

// Connect はファイルの存在を確認する
func (s *FileFrameSource) Connect() error {
	if _, err := os.Stat(s.path); err != nil {
		if s.hint != "" {
			return fmt.Errorf("フレームファイルが見つかりません (%s)。%s: %w", s.path, s.hint, err)
		}
		return fmt.Errorf("画像ファイルが見つかりません (%s): %w", s.path, err)
	}
	return nil
}

// ReadFrame はファイルを読み直して最新のフレームを返す
func (s *FileFrameSource) ReadFrame() (image.Image, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("フレームファイルの読み込みに失敗 (%s): %w", s.path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("フレームのデコードに失敗 (%s): %w", s.path, err)
	}

	return img, nil
}

// Close は何もしない（ファイルはReadFrameごとに閉じている）
func (s *FileFrameSource) Close() error {
	return nil
}

// MockFrameSource はテスト用のフレーム取得元
type MockFrameSource struct {
	frames     []image.Image
	index      int
	connectErr error
	closed     bool
}

// NewMockFrameSource はモックを作成する
// framesを順番に返し、末尾に達したら先頭へ戻る
func NewMockFrameSource(frames ...image.Image) *MockFrameSource {
	return &MockFrameSource{frames: frames}
}

// SetConnectError は接続失敗を再現する
func (m *MockFrameSource) SetConnectError(err error) {
	m.connectErr = err
}

// Connect は設定されたエラーを返す
func (m *MockFrameSource) Connect() error {
	return m.connectErr
}

// ReadFrame は登録されたフレームを巡回して返す
func (m *MockFrameSource) ReadFrame() (image.Image, error) {
	if len(m.frames) == 0 {
		return nil, fmt.Errorf("フレームが登録されていません")
	}

	img := m.frames[m.index%len(m.frames)]
	m.index++
	return img, nil
}

// Close は呼び出しを記録する
func (m *MockFrameSource) Close() error {
	m.closed = true
	return nil
}

// IsClosed はCloseが呼ばれたかを返す
func (m *MockFrameSource) IsClosed() bool {
	return m.closed
}
