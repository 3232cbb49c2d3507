// Package stream キャプチャストリームの管理を担う
//
// # 責務
// - デバイスごとの外部キャプチャプロセスのライフサイクル管理
// - motion-JPEGバイトストリームからの完全なフレームの切り出し
// - デバイスIDをキーとしたセッションレジストリの管理
// - frame / stream-started / stream-stopped / error イベントの発行
// - キャプチャデバイスの列挙
//
// # 仕様
//   - Frame Demuxer: SOI(FF D8)/EOI(FF D9)マーカーによるフレーム境界の検出
//     チャンク境界でマーカーが分断されても正しく検出する
//   - Process Adapter: ffmpeg等の外部プロセスを起動し、主出力・診断出力・
//     終了通知をチャンネルとして公開する
//   - Registry: 1デバイスにつき最大1セッションを保証し、一括停止を提供する
//   - EventBus: 同期ファンアウトのpublish/subscribe
//     配信前スナップショットによりハンドラ内からの購読変更を許容する
//   - ストリームエンジン内部のエラーは全てイベントまたは戻り値として報告され、
//     セッション境界を越えて伝播することはない
//
// # 前提要件
//   - ffmpeg: キャプチャとデバイス列挙に使用
//     Ubuntu/Debian: sudo apt install ffmpeg
//     Red Hat/Fedora: sudo dnf install ffmpeg
package stream
