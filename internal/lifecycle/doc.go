// Package lifecycle プロデューサーとWebサーバーのプロセスライフサイクルを担う
//
// # 責務
// - 自身のバイナリをサブコマンド付きでバックグラウンド起動する
// - PIDファイルの作成・読み取り・削除
// - プロセスの生存確認とシグナルによる停止
// - 停止時の成果物（フレームファイル）の掃除
// - パターンマッチによる残存プロセスの掃討
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - startコマンドで2プロセスをデタッチ起動したい
// - stopコマンドで起動済みプロセスを確実に片付けたい
// - statusコマンドで稼働状況を確認したい
//
// # 仕様
// - PIDファイルは実行ディレクトリ（デフォルトは一時ディレクトリ）に
//   kagemusha_producer.pid / kagemusha_webserver.pid として配置する
// - 各プロセスの出力は同じディレクトリのログファイルにリダイレクトする
// - 停止はSIGTERM送信後に生存を再確認し、猶予を超えたらSIGKILLへ昇格する
// - PIDファイルは停止のための目印にすぎず、正しさの根拠にはしない
// - 再起動や異常終了時の自動復帰は行わない
//
// # 前提要件
//   - pgrep: 残存プロセスの掃討に使用（procps）
//     Ubuntu/Debian: sudo apt install procps
package lifecycle
