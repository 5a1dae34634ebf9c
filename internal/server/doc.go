// Package server は、フレームファイルとビューワーページのHTTP配信を管理します。
//
// このパッケージは、HTTPサーバーの起動、ルーティング、
// 埋め込みビューワーページの配信、フレームファイルの公開を担当します。
//
// 責務:
//   - HTTPサーバーの起動と管理
//   - ビューワーページ（HTML/JS）の配信
//   - 最新フレームJPEGの配信（キャッシュ無効化付き）
//   - MJPEGストリームの配信
//   - ステータス・ヘルスチェックAPIの提供
//
// 仕様:
//   - ルーティングはgin-gonic/ginを使用
//   - ビューワーページはgo:embedでバイナリに埋め込む
//   - フレームはブラウザ側ポーリングで取得する（MJPEGは補助）
//   - グレースフルシャットダウンに対応
//   - 認証なしの読み取り専用配信
package server
