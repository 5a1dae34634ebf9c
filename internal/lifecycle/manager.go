package lifecycle

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/afero"

	"kagemusha/internal/config"
)

// terminateGrace はSIGTERM後にSIGKILLへ昇格するまでの猶予
const terminateGrace = 3 * time.Second

// firstFrameTimeout は起動後に最初のフレームを待つ時間
const firstFrameTimeout = 5 * time.Second

// sweepPatterns は停止時に掃討する残存プロセスのコマンドラインパターン
var sweepPatterns = []string{
	"kagemusha produce",
	"kagemusha serve",
	"ffmpeg.*image2pipe.*mjpeg",
}

// Manager はWebサーバーとプロデューサーの起動・停止・状態確認を担う
type Manager struct {
	config   *config.Config
	execPath string
}

// NewManager はマネージャーを作成する
func NewManager(cfg *config.Config) (*Manager, error) {
	execPath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("実行ファイルパスの取得に失敗: %w", err)
	}

	return &Manager{
		config:   cfg,
		execPath: execPath,
	}, nil
}

// StartAll はWebサーバーとプロデューサーをバックグラウンド起動する
// forwardArgsは各サブコマンドへそのまま引き渡すフラグ引数
func (m *Manager) StartAll(ctx context.Context, forwardArgs []string) error {
	if !m.config.Autostart.Enabled {
		log.Println("設定で自動起動が無効になっています")
		return nil
	}

	runDir := m.config.RunDir()

	// 二重起動を防ぐ
	for _, t := range []Target{TargetWebServer, TargetProducer} {
		if pid, err := ReadPIDFile(runDir, t); err == nil && IsAlive(pid) {
			return fmt.Errorf("%sは既に起動しています (PID %d)。先にstopを実行してください", t, pid)
		}
	}

	if delay := m.config.Autostart.Delay; delay > 0 {
		log.Printf("起動前に%d秒待機します", delay)
		select {
		case <-time.After(time.Duration(delay) * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return fmt.Errorf("実行ディレクトリの作成に失敗: %w", err)
	}

	// Webサーバーを先に起動する（フレームがなくてもビューワーは開ける）
	for _, t := range []Target{TargetWebServer, TargetProducer} {
		args := append([]string{t.Subcommand()}, forwardArgs...)
		pid, err := SpawnDetached(m.execPath, args, LogFilePath(runDir, t))
		if err != nil {
			return fmt.Errorf("%sの起動に失敗: %w", t, err)
		}
		if err := WritePIDFile(runDir, t, pid); err != nil {
			return err
		}
		log.Printf("%sを起動しました (PID: %d, ログ: %s)", t, pid, LogFilePath(runDir, t))
	}

	// 最初のフレームが書かれるまで待つ
	if err := WaitForFrame(ctx, m.config.Paths.FrameFile, firstFrameTimeout); err != nil {
		log.Printf("最初のフレームを確認できませんでした: %v", err)
		log.Printf("ログを確認してください: %s", LogFilePath(runDir, TargetProducer))
	} else {
		log.Println("最初のフレームを確認しました")
	}

	printViewerURLs(m.config.Display.WebPort)

	return nil
}

// StopAll は起動済みプロセスを停止し、成果物を掃除する
// 対象がいない場合もエラーにしない
func (m *Manager) StopAll(ctx context.Context) error {
	runDir := m.config.RunDir()

	// プロデューサーから先に止め、フレームの書き込みを終わらせる
	for _, t := range []Target{TargetProducer, TargetWebServer} {
		pid, err := ReadPIDFile(runDir, t)
		switch {
		case err != nil:
			log.Printf("%sのPIDファイルが見つかりません（未起動か停止済み）", t)
		case !IsAlive(pid):
			log.Printf("%sは既に停止しています (PID %d)", t, pid)
		default:
			if err := TerminateAndWait(ctx, pid, terminateGrace); err != nil {
				log.Printf("%sの停止に失敗: %v", t, err)
			} else {
				log.Printf("%sを停止しました (PID %d)", t, pid)
			}
		}

		if err := RemovePIDFile(runDir, t); err != nil {
			log.Printf("%v", err)
		}
	}

	// 残存プロセスの掃討
	for _, pattern := range sweepPatterns {
		for _, pid := range SweepPattern(ctx, pattern) {
			log.Printf("残存プロセスを強制終了しました (PID %d, パターン: %s)", pid, pattern)
		}
	}

	// フレームファイルの削除
	framePath := m.config.Paths.FrameFile
	if exists, _ := afero.Exists(fs, framePath); exists {
		if err := fs.Remove(framePath); err != nil {
			return fmt.Errorf("フレームファイルの削除に失敗 (%s): %w", framePath, err)
		}
		log.Printf("フレームファイルを削除しました (%s)", framePath)
	}

	return nil
}

// ProcessStatus は管理対象プロセスの状態
type ProcessStatus struct {
	Target     Target
	PID        int
	HasPIDFile bool
	Alive      bool
}

// StatusReport は全体の稼働状況
type StatusReport struct {
	Processes   []ProcessStatus
	FrameExists bool
	FrameAge    time.Duration
	FrameSize   int64
	HealthOK    bool
}

// Status は現在の稼働状況を収集する
func (m *Manager) Status(ctx context.Context) *StatusReport {
	report := &StatusReport{}

	runDir := m.config.RunDir()
	for _, t := range []Target{TargetWebServer, TargetProducer} {
		status := ProcessStatus{Target: t}
		if pid, err := ReadPIDFile(runDir, t); err == nil {
			status.HasPIDFile = true
			status.PID = pid
			status.Alive = IsAlive(pid)
		}
		report.Processes = append(report.Processes, status)
	}

	if info, err := fs.Stat(m.config.Paths.FrameFile); err == nil {
		report.FrameExists = true
		report.FrameAge = time.Since(info.ModTime())
		report.FrameSize = info.Size()
	}

	report.HealthOK = m.checkHealth(ctx)

	return report
}

// WaitForFrame はフレームファイルが書かれるまで待つ
func WaitForFrame(ctx context.Context, framePath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(livenessPollInterval)
	defer ticker.Stop()

	for {
		if info, err := fs.Stat(framePath); err == nil && info.Size() > 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%v待ってもフレームファイルが生成されませんでした (%s)", timeout, framePath)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// checkHealth はヘルスチェックエンドポイントの応答を確認する
func (m *Manager) checkHealth(ctx context.Context) bool {
	host := m.config.Display.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	url := fmt.Sprintf("http://%s:%d/health", host, m.config.Display.WebPort)

	reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	return resp.StatusCode == http.StatusOK
}

// printViewerURLs はブラウザで開くURLを表示する
func printViewerURLs(port int) {
	fmt.Println()
	fmt.Println("ブラウザで開く:")
	fmt.Printf("  http://localhost:%d/simple_web_viewer.html\n", port)
	if ip := primaryIP(); ip != "" {
		fmt.Printf("  http://%s:%d/simple_web_viewer.html\n", ip, port)
	}
	fmt.Println()
	fmt.Println("停止するには: kagemusha stop")
}

// primaryIP はループバック以外のIPv4アドレスをひとつ返す
func primaryIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}

	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}

	return ""
}
