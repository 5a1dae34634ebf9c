package lifecycle

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

func TestIsAlive(t *testing.T) {
	testCases := []struct {
		name string
		pid  int
		want bool
	}{
		{"自プロセスは生存", os.Getpid(), true},
		{"PID 0は非生存扱い", 0, false},
		{"負のPIDは非生存扱い", -1, false},
		{"存在しないPID", 99999999, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsAlive(tc.pid); got != tc.want {
				t.Errorf("IsAlive(%d) = %v, want %v", tc.pid, got, tc.want)
			}
		})
	}
}

// startSleepProcess はテスト用の長寿命プロセスを起動する
// ゾンビ化するとシグナル0が成功し続けるため、終了を別ゴルーチンで回収する
func startSleepProcess(t *testing.T, arg string) *exec.Cmd {
	t.Helper()

	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleepコマンドが利用できないためスキップします")
	}

	cmd := exec.Command("sleep", arg)
	if err := cmd.Start(); err != nil {
		t.Fatalf("テストプロセスの起動に失敗しました: %v", err)
	}

	go func() {
		_ = cmd.Wait()
	}()
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
	})

	return cmd
}

func TestTerminateAndWait(t *testing.T) {
	cmd := startSleepProcess(t, "60")
	pid := cmd.Process.Pid

	if !IsAlive(pid) {
		t.Fatalf("起動直後のプロセスが生存していません (PID %d)", pid)
	}

	if err := TerminateAndWait(context.Background(), pid, 3*time.Second); err != nil {
		t.Fatalf("プロセスの停止でエラーが発生しました: %v", err)
	}
	if IsAlive(pid) {
		t.Errorf("停止後もプロセスが生存しています (PID %d)", pid)
	}
}

func TestTerminateAndWaitDeadProcess(t *testing.T) {
	// 既に存在しないPIDに対してもエラーにならない
	if err := TerminateAndWait(context.Background(), 99999999, time.Second); err != nil {
		t.Errorf("停止済みプロセスの停止はエラーにすべきではありません: %v", err)
	}
}

func TestSweepPattern(t *testing.T) {
	if _, err := exec.LookPath("pgrep"); err != nil {
		t.Skip("pgrepコマンドが利用できないためスキップします")
	}

	// 他のプロセスと衝突しない引数で起動する
	cmd := startSleepProcess(t, "86399")
	pid := cmd.Process.Pid

	killed := SweepPattern(context.Background(), "sleep 86399")

	found := false
	for _, k := range killed {
		if k == pid {
			found = true
		}
	}
	if !found {
		t.Fatalf("対象プロセスが掃討されていません (PID %d, killed=%v)", pid, killed)
	}

	// 回収されて消滅するまで待つ
	deadline := time.Now().Add(2 * time.Second)
	for IsAlive(pid) && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if IsAlive(pid) {
		t.Errorf("掃討後もプロセスが生存しています (PID %d)", pid)
	}
}

func TestSweepPatternNoMatch(t *testing.T) {
	if _, err := exec.LookPath("pgrep"); err != nil {
		t.Skip("pgrepコマンドが利用できないためスキップします")
	}

	if killed := SweepPattern(context.Background(), "kagemusha-no-such-process-xyzzy"); killed != nil {
		t.Errorf("一致なしの場合はnilを返すべきです: got %v", killed)
	}
}

func TestSpawnDetached(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleepコマンドが利用できないためスキップします")
	}

	logPath := filepath.Join(t.TempDir(), "spawn.log")
	pid, err := SpawnDetached("sleep", []string{"30"}, logPath)
	if err != nil {
		t.Fatalf("デタッチ起動でエラーが発生しました: %v", err)
	}
	// ハンドルを解放済みのため終了は回収できない（終了後の生存確認はしない）
	t.Cleanup(func() {
		if proc, err := os.FindProcess(pid); err == nil {
			_ = proc.Kill()
		}
	})

	if !IsAlive(pid) {
		t.Fatalf("起動したプロセスが生存していません (PID %d)", pid)
	}
	if _, err := os.Stat(logPath); err != nil {
		t.Errorf("ログファイルが作成されていません: %v", err)
	}
}
