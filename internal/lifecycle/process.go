package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// livenessPollInterval は生存確認のポーリング間隔
const livenessPollInterval = 100 * time.Millisecond

// IsAlive はプロセスが生存しているかをシグナル0で確認する
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	// 権限エラーの場合もプロセス自体は存在している
	return errors.Is(err, syscall.EPERM)
}

// Terminate はプロセスにSIGTERMを送信する
func Terminate(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("プロセスの取得に失敗 (PID %d): %w", pid, err)
	}

	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("SIGTERMの送信に失敗 (PID %d): %w", pid, err)
	}

	return nil
}

// TerminateAndWait はSIGTERMを送信して停止を待つ
// 猶予時間を超えても停止しない場合はSIGKILLへ昇格する
func TerminateAndWait(ctx context.Context, pid int, grace time.Duration) error {
	if !IsAlive(pid) {
		return nil
	}

	if err := Terminate(pid); err != nil {
		return err
	}
	if waitGone(ctx, pid, grace) {
		return nil
	}

	log.Printf("プロセスが停止しないためSIGKILLを送信します (PID %d)", pid)
	if proc, err := os.FindProcess(pid); err == nil {
		_ = proc.Signal(syscall.SIGKILL)
	}
	if waitGone(ctx, pid, time.Second) {
		return nil
	}

	return fmt.Errorf("プロセスを停止できませんでした (PID %d)", pid)
}

// waitGone はプロセスの消滅をポーリングで待つ
func waitGone(ctx context.Context, pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(livenessPollInterval)
	defer ticker.Stop()

	for {
		if !IsAlive(pid) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}

		select {
		case <-ctx.Done():
			return !IsAlive(pid)
		case <-ticker.C:
		}
	}
}

// SweepPattern はコマンドラインがパターンに一致する残存プロセスを強制終了する
// 一致なしやpgrepが使えない環境では何もせずnilを返す
func SweepPattern(ctx context.Context, pattern string) []int {
	out, err := exec.CommandContext(ctx, "pgrep", "-f", pattern).Output()
	if err != nil {
		return nil
	}

	self := os.Getpid()
	var killed []int
	for _, field := range strings.Fields(string(out)) {
		pid, err := strconv.Atoi(field)
		if err != nil || pid == self {
			continue
		}

		proc, err := os.FindProcess(pid)
		if err != nil {
			continue
		}
		if err := proc.Signal(syscall.SIGKILL); err == nil {
			killed = append(killed, pid)
		}
	}

	return killed
}

// SpawnDetached は端末から切り離した子プロセスを起動し、そのPIDを返す
// 標準出力と標準エラーはlogPathのファイルへリダイレクトする
func SpawnDetached(execPath string, args []string, logPath string) (int, error) {
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return 0, fmt.Errorf("ログファイルの作成に失敗 (%s): %w", logPath, err)
	}
	defer func() {
		_ = logFile.Close()
	}()

	cmd := exec.Command(execPath, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	// 親の端末・シグナルグループから切り離す
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("プロセスの起動に失敗 (%s): %w", execPath, err)
	}

	pid := cmd.Process.Pid
	// 子の終了は待たない（親が先に終了するため）
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("プロセスハンドルの解放に失敗: %w", err)
	}

	return pid, nil
}
