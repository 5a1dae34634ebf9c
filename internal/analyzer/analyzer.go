package analyzer

import (
	"image"
	"image/draw"
	"time"
)

const (
	// diffThreshold はグレースケール差分の二値化しきい値
	diffThreshold = 25
	// motionPercentThreshold は動きとみなす変化画素の割合 (%)
	motionPercentThreshold = 0.30
	// edgeGradientThreshold はエッジ画素とみなす輝度勾配のしきい値
	edgeGradientThreshold = 100
	// edgeCountHigh は複雑な画像とみなすエッジ画素数
	edgeCountHigh = 10000
)

// Result は1フレーム分の解析結果
type Result struct {
	FrameNumber     int       // 解析順の連番（1始まり）
	Timestamp       time.Time // 解析時刻
	MotionDetected  bool      // 動きを検知したか
	ChangedPercent  float64   // 変化画素の割合 (%)
	DominantColor   string    // 支配色 (red/green/blue/white/black/mixed)
	AvgBrightness   float64   // 平均輝度 (0-255)
	BrightnessLevel string    // 明るさの分類
	EdgePixels      int       // エッジ画素数
	Complexity      string    // 複雑さの分類 (high/low)
}

// Analyzer は前フレームを保持しながらフレームを解析する
// 並行アクセスには対応しない（単一の解析ループから使う）
type Analyzer struct {
	prev       *image.Gray
	frameCount int
}

// New はアナライザーを作成する
func New() *Analyzer {
	return &Analyzer{}
}

// Analyze はフレームを解析して結果を返す
// 最初のフレームは比較対象がないため動きなしとして扱う
func (a *Analyzer) Analyze(img image.Image) Result {
	a.frameCount++

	gray := toGray(img)
	avgR, avgG, avgB := averageColor(img)
	brightness := averageBrightness(gray)
	edges := countEdges(gray)

	result := Result{
		FrameNumber:     a.frameCount,
		Timestamp:       time.Now(),
		DominantColor:   classifyColor(avgR, avgG, avgB),
		AvgBrightness:   brightness,
		BrightnessLevel: classifyBrightness(brightness),
		EdgePixels:      edges,
	}

	if edges > edgeCountHigh {
		result.Complexity = "high"
	} else {
		result.Complexity = "low"
	}

	result.ChangedPercent, result.MotionDetected = a.detectChange(gray)
	a.prev = gray

	return result
}

// detectChange は前フレームとの差分から変化画素の割合を求める
func (a *Analyzer) detectChange(curr *image.Gray) (float64, bool) {
	prev := a.prev
	if prev == nil || !prev.Bounds().Eq(curr.Bounds()) {
		return 0, false
	}

	changed := 0
	for i := range curr.Pix {
		d := int(curr.Pix[i]) - int(prev.Pix[i])
		if d < 0 {
			d = -d
		}
		if d > diffThreshold {
			changed++
		}
	}

	percent := float64(changed) / float64(len(curr.Pix)) * 100
	return percent, percent >= motionPercentThreshold
}

// toGray はフレームをグレースケールに変換する
func toGray(img image.Image) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, img, bounds.Min, draw.Src)
	return gray
}

// averageColor は各チャンネルの平均値を返す (0-255)
func averageColor(img image.Image) (float64, float64, float64) {
	bounds := img.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return 0, 0, 0
	}

	var sumR, sumG, sumB uint64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			sumR += uint64(r >> 8)
			sumG += uint64(g >> 8)
			sumB += uint64(b >> 8)
		}
	}

	n := float64(total)
	return float64(sumR) / n, float64(sumG) / n, float64(sumB) / n
}

// averageBrightness はグレースケールの平均輝度を返す
func averageBrightness(gray *image.Gray) float64 {
	if len(gray.Pix) == 0 {
		return 0
	}

	var sum uint64
	for _, p := range gray.Pix {
		sum += uint64(p)
	}
	return float64(sum) / float64(len(gray.Pix))
}

// countEdges は輝度勾配の大きい画素を数える
func countEdges(gray *image.Gray) int {
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < 3 || h < 3 {
		return 0
	}

	count := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := int(gray.GrayAt(bounds.Min.X+x+1, bounds.Min.Y+y).Y) -
				int(gray.GrayAt(bounds.Min.X+x-1, bounds.Min.Y+y).Y)
			gy := int(gray.GrayAt(bounds.Min.X+x, bounds.Min.Y+y+1).Y) -
				int(gray.GrayAt(bounds.Min.X+x, bounds.Min.Y+y-1).Y)
			if gx < 0 {
				gx = -gx
			}
			if gy < 0 {
				gy = -gy
			}
			if gx+gy > edgeGradientThreshold {
				count++
			}
		}
	}

	return count
}

// classifyColor は平均色から支配色を分類する
func classifyColor(r, g, b float64) string {
	switch {
	case r > g && r > b:
		return "red"
	case g > r && g > b:
		return "green"
	case b > r && b > g:
		return "blue"
	case r > 200 && g > 200 && b > 200:
		return "white"
	case r < 50 && g < 50 && b < 50:
		return "black"
	default:
		return "mixed"
	}
}

// classifyBrightness は平均輝度から明るさを分類する
func classifyBrightness(brightness float64) string {
	switch {
	case brightness > 200:
		return "very bright"
	case brightness > 150:
		return "bright"
	case brightness > 100:
		return "normal"
	case brightness > 50:
		return "dim"
	default:
		return "dark"
	}
}
