// Package analyzer フレームファイルの内容解析を担う
//
// # 責務
// - フレーム取得元（フレームファイル・静止画）からの定期読み込み
// - 前フレームとのグレースケール差分による動き検知
// - 支配色・明るさ・複雑さの分類
// - 動き検知時のリアクション実行と定期スナップショット保存
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - 擬似カメラの出力に対して動き検知を走らせたい
// - フレームの変化にフックして任意の処理を実行したい
// - 画像の内容を簡易的に分類したい
//
// # 仕様
// - 動き検知はグレースケール絶対差分を二値化（しきい値25）し、
//   変化画素の割合が0.30%以上なら動きとみなす
// - 解析は純粋なGoの画素走査で行い、外部ライブラリに依存しない
// - フレーム取得元はFrameSourceインターフェースで差し替え可能
package analyzer
