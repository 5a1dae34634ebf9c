package lifecycle

import (
	"errors"
	"os"
	"testing"

	"github.com/spf13/afero"
)

// useMemFs はテスト用にインメモリファイルシステムへ差し替える
func useMemFs(t *testing.T) {
	t.Helper()

	original := fs
	fs = afero.NewMemMapFs()
	t.Cleanup(func() {
		fs = original
	})
}

func TestPIDFileRoundTrip(t *testing.T) {
	useMemFs(t)

	if err := WritePIDFile("/run", TargetProducer, 12345); err != nil {
		t.Fatalf("PIDファイルの書き込みでエラーが発生しました: %v", err)
	}

	pid, err := ReadPIDFile("/run", TargetProducer)
	if err != nil {
		t.Fatalf("PIDファイルの読み込みでエラーが発生しました: %v", err)
	}
	if pid != 12345 {
		t.Errorf("PIDが一致しません: got %d, want 12345", pid)
	}
}

func TestReadPIDFileMissing(t *testing.T) {
	useMemFs(t)

	_, err := ReadPIDFile("/run", TargetWebServer)
	if err == nil {
		t.Fatal("存在しないPIDファイルでエラーが返されるべきです")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("os.ErrNotExistを含むエラーであるべきです: %v", err)
	}
}

func TestReadPIDFileInvalidContent(t *testing.T) {
	useMemFs(t)

	path := PIDFilePath("/run", TargetProducer)
	if err := afero.WriteFile(fs, path, []byte("not-a-pid\n"), 0644); err != nil {
		t.Fatalf("テストファイルの作成に失敗しました: %v", err)
	}

	if _, err := ReadPIDFile("/run", TargetProducer); err == nil {
		t.Error("不正な内容のPIDファイルでエラーが返されるべきです")
	}
}

func TestRemovePIDFile(t *testing.T) {
	useMemFs(t)

	if err := WritePIDFile("/run", TargetWebServer, 999); err != nil {
		t.Fatalf("PIDファイルの書き込みでエラーが発生しました: %v", err)
	}
	if err := RemovePIDFile("/run", TargetWebServer); err != nil {
		t.Fatalf("PIDファイルの削除でエラーが発生しました: %v", err)
	}
	if exists, _ := afero.Exists(fs, PIDFilePath("/run", TargetWebServer)); exists {
		t.Error("PIDファイルが削除されていません")
	}

	// 2回目の削除もエラーにならない
	if err := RemovePIDFile("/run", TargetWebServer); err != nil {
		t.Errorf("存在しないPIDファイルの削除はエラーにすべきではありません: %v", err)
	}
}

func TestTargetPaths(t *testing.T) {
	testCases := []struct {
		name       string
		target     Target
		wantPID    string
		wantLog    string
		wantSubcmd string
	}{
		{"プロデューサー", TargetProducer, "/tmp/kagemusha_producer.pid", "/tmp/kagemusha_producer.log", "produce"},
		{"Webサーバー", TargetWebServer, "/tmp/kagemusha_webserver.pid", "/tmp/kagemusha_webserver.log", "serve"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := PIDFilePath("/tmp", tc.target); got != tc.wantPID {
				t.Errorf("PIDファイルパスが一致しません: got %s, want %s", got, tc.wantPID)
			}
			if got := LogFilePath("/tmp", tc.target); got != tc.wantLog {
				t.Errorf("ログファイルパスが一致しません: got %s, want %s", got, tc.wantLog)
			}
			if got := tc.target.Subcommand(); got != tc.wantSubcmd {
				t.Errorf("サブコマンドが一致しません: got %s, want %s", got, tc.wantSubcmd)
			}
		})
	}
}
