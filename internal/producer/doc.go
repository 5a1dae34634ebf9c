// Package producer 擬似カメラのフレーム生成と公開を担う
//
// # 責務
// - テストパターン・静止画ループのJPEGフレーム生成
// - ffmpegプロセスの起動と連続フレームの取り出し
// - Go内蔵レンダラーによるフレーム生成（ffmpeg不要の代替手段）
// - フレームファイルへの公開（atomic renameまたは直接上書き）
// - 生成統計（フレーム数・実測FPS）の集計
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - カメラ実機なしで監視カメラ風の映像を生成したい
// - 最新フレームを単一のJPEGファイルとして公開したい
// - フレーム生成プロセスのライフサイクルを制御したい
//
// # 仕様
// - Encoder: フレーム生成源の統一インターフェース
// - FFmpegEncoder: ffmpegのimage2pipe出力からJPEGフレームを切り出す
// - NativeEncoder: fogleman/ggによる描画でフレームを生成する
// - Publisher: フレームファイルの書き込み戦略（atomic/直接）
// - フレームファイルは常に最新の1枚のみを保持する（キューなし）
//
// # 前提要件
//   - ffmpeg: FFmpegEncoderでのフレーム生成に使用
//     Ubuntu/Debian: sudo apt install ffmpeg
//     Red Hat/Fedora: sudo dnf install ffmpeg
//   - フォントファイル: オーバーレイ文字の描画に使用
//     デフォルトはDejaVuSans-Bold（fonts-dejavu-coreパッケージ）
package producer
