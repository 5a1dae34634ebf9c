package server

import (
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"kagemusha/internal/config"
)

// KagemushaHandler は各エンドポイントのハンドラを実装する
type KagemushaHandler struct {
	config     *config.Config
	instanceID string
	startedAt  time.Time
}

// NewHandler は新しいKagemushaHandlerを作成する
func NewHandler(cfg *config.Config) *KagemushaHandler {
	return &KagemushaHandler{
		config:     cfg,
		instanceID: uuid.NewString(),
		startedAt:  time.Now(),
	}
}

// HealthResponse はヘルスチェックの応答
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusResponse はシステム状態の応答
type StatusResponse struct {
	Status        string     `json:"status"`
	InstanceID    string     `json:"instance_id"`
	UptimeSeconds float64    `json:"uptime_seconds"`
	Server        ServerInfo `json:"server"`
	Camera        CameraInfo `json:"camera"`
	Frame         FrameInfo  `json:"frame"`
	Timestamp     time.Time  `json:"timestamp"`
}

// ServerInfo はサーバー設定の情報
type ServerInfo struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// CameraInfo は擬似カメラ設定の情報
type CameraInfo struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	FPS    int    `json:"fps"`
	Mode   string `json:"mode"`
	Title  string `json:"title"`
}

// FrameInfo はフレームファイルの鮮度情報
type FrameInfo struct {
	Exists     bool      `json:"exists"`
	Fresh      bool      `json:"fresh"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at"`
	AgeSeconds float64   `json:"age_seconds"`
}

// ErrorResponse はエラー応答
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthCheck はヘルスチェックエンドポイントの実装
func (h *KagemushaHandler) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	}

	c.JSON(http.StatusOK, response)
}

// GetStatus はシステム状態取得エンドポイントの実装
func (h *KagemushaHandler) GetStatus(c *gin.Context) {
	response := StatusResponse{
		Status:        "running",
		InstanceID:    h.instanceID,
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
		Server: ServerInfo{
			Host: h.config.Display.Host,
			Port: h.config.Display.WebPort,
		},
		Camera: CameraInfo{
			Width:  h.config.Camera.Width,
			Height: h.config.Camera.Height,
			FPS:    h.config.Camera.FPS,
			Mode:   string(h.config.Camera.Mode),
			Title:  h.config.Camera.Title,
		},
		Frame:     h.frameInfo(),
		Timestamp: time.Now(),
	}

	c.JSON(http.StatusOK, response)
}

// frameInfo はフレームファイルの鮮度を調べる
// 別プロセスで動く生成側の状態は、ファイルの更新時刻から推定する
func (h *KagemushaHandler) frameInfo() FrameInfo {
	info, err := os.Stat(h.config.Paths.FrameFile)
	if err != nil {
		return FrameInfo{Exists: false}
	}

	age := time.Since(info.ModTime())

	// フレーム間隔の3倍以内の更新なら生成は健在とみなす
	threshold := 3 * h.config.FramePeriod()
	if threshold < time.Second {
		threshold = time.Second
	}

	return FrameInfo{
		Exists:     true,
		Fresh:      age <= threshold,
		SizeBytes:  info.Size(),
		ModifiedAt: info.ModTime(),
		AgeSeconds: age.Seconds(),
	}
}

// ViewerPage はビューワーページ配信エンドポイントの実装
func (h *KagemushaHandler) ViewerPage(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", viewerHTML())
}

// CurrentFrame は最新フレーム配信エンドポイントの実装
func (h *KagemushaHandler) CurrentFrame(c *gin.Context) {
	path := h.config.Paths.FrameFile
	if _, err := os.Stat(path); err != nil {
		errorResponse := ErrorResponse{
			Error:     "frame_not_found",
			Message:   "フレームがまだ生成されていません",
			Timestamp: time.Now(),
		}
		c.JSON(http.StatusNotFound, errorResponse)
		return
	}

	// ポーリングで常に最新フレームを取らせるためキャッシュを無効化する
	c.Header("Cache-Control", "no-store, no-cache, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
	c.File(path)
}

// StreamFrames はMJPEGストリーミングエンドポイントの実装
// フレームファイルの更新を追いかけて multipart/x-mixed-replace で配信する
func (h *KagemushaHandler) StreamFrames(c *gin.Context) {
	// レスポンスヘッダーを設定
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")

	// レスポンスライターを取得
	writer := c.Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	ticker := time.NewTicker(h.config.FramePeriod())
	defer ticker.Stop()

	// クライアント切断を検知するためのコンテキスト
	clientGone := c.Request.Context().Done()

	var lastMod time.Time

	// ストリーミングループ
	for {
		select {
		case <-clientGone:
			// クライアントが切断された
			return

		case <-ticker.C:
			info, err := os.Stat(h.config.Paths.FrameFile)
			if err != nil {
				continue // フレーム未生成の間は何も送らない
			}
			if !info.ModTime().After(lastMod) {
				continue // 未更新のフレームは送り直さない
			}

			frame, err := os.ReadFile(h.config.Paths.FrameFile)
			if err != nil {
				continue // 差し替え中の読み失敗は次のティックに任せる
			}
			lastMod = info.ModTime()

			// MJPEGフレームを書き込み
			if _, err := writer.Write([]byte("--frame\r\n")); err != nil {
				return
			}
			if _, err := writer.Write([]byte("Content-Type: image/jpeg\r\n\r\n")); err != nil {
				return
			}
			if _, err := writer.Write(frame); err != nil {
				return
			}
			if _, err := writer.Write([]byte("\r\n")); err != nil {
				return
			}

			// バッファをフラッシュ
			flusher.Flush()
		}
	}
}
