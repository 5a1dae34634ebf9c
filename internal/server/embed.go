package server

import (
	"embed"
	"log"
)

//go:embed web
var embedFS embed.FS

// viewerHTML は埋め込みビューワーページの内容を返す
func viewerHTML() []byte {
	data, err := embedFS.ReadFile("web/simple_web_viewer.html")
	if err != nil {
		log.Fatalf("埋め込みビューワーページの読み込みに失敗: %v", err)
	}
	return data
}
