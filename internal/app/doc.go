// Package app プロデューサーとWebサーバーの一体起動を担う
//
// # 責務
// - 1つの親プロセス配下でフレーム生成とHTTP配信をまとめて起動する
// - どちらかの終了時にもう一方を巻き取って停止する
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - runコマンドで前面実行したい（開発時やコンテナのPID 1向け）
// - PIDファイル経由のデタッチ起動が不要な場合
package app
