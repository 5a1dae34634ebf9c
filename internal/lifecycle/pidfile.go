package lifecycle

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// fs はファイルアクセスの抽象化
// テストではMemMapFsに差し替える
var fs afero.Fs = afero.NewOsFs()

// Target は管理対象プロセスの種別を表す
type Target string

const (
	// TargetProducer はフレーム生成プロセス
	TargetProducer Target = "producer"
	// TargetWebServer はHTTP配信プロセス
	TargetWebServer Target = "webserver"
)

// Subcommand は対象プロセスを前面起動するサブコマンド名を返す
func (t Target) Subcommand() string {
	switch t {
	case TargetProducer:
		return "produce"
	case TargetWebServer:
		return "serve"
	}
	return string(t)
}

// PIDFilePath は対象プロセスのPIDファイルパスを返す
func PIDFilePath(runDir string, t Target) string {
	return filepath.Join(runDir, fmt.Sprintf("kagemusha_%s.pid", t))
}

// LogFilePath は対象プロセスのログファイルパスを返す
func LogFilePath(runDir string, t Target) string {
	return filepath.Join(runDir, fmt.Sprintf("kagemusha_%s.log", t))
}

// WritePIDFile はPIDファイルを作成する
func WritePIDFile(runDir string, t Target, pid int) error {
	if err := fs.MkdirAll(runDir, 0755); err != nil {
		return fmt.Errorf("実行ディレクトリの作成に失敗: %w", err)
	}

	path := PIDFilePath(runDir, t)
	content := strconv.Itoa(pid) + "\n"
	if err := afero.WriteFile(fs, path, []byte(content), 0644); err != nil {
		return fmt.Errorf("PIDファイルの書き込みに失敗 (%s): %w", path, err)
	}

	return nil
}

// ReadPIDFile はPIDファイルからプロセスIDを読み取る
// ファイルが存在しない場合はos.ErrNotExistを含むエラーを返す
func ReadPIDFile(runDir string, t Target) (int, error) {
	path := PIDFilePath(runDir, t)
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return 0, fmt.Errorf("PIDファイルの読み込みに失敗 (%s): %w", path, err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("PIDファイルの内容が不正 (%s): %w", path, err)
	}

	return pid, nil
}

// RemovePIDFile はPIDファイルを削除する
// ファイルが存在しない場合はエラーにしない
func RemovePIDFile(runDir string, t Target) error {
	path := PIDFilePath(runDir, t)
	if exists, _ := afero.Exists(fs, path); !exists {
		return nil
	}
	if err := fs.Remove(path); err != nil {
		return fmt.Errorf("PIDファイルの削除に失敗 (%s): %w", path, err)
	}
	return nil
}
