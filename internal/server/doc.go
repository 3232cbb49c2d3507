// Package server は、HTTPサーバーとストリーム配信を管理します。
//
// このパッケージは、HTTPサーバーの起動、ルーティング、
// キャプチャストリームの開始・停止API、フレームとイベントの配信を担当します。
//
// 責務:
//   - HTTPサーバーの起動と管理
//   - ストリーム操作API（開始・停止・一覧）の提供
//   - MJPEGストリーミング配信（multipart/x-mixed-replace）
//   - イベントのSSE配信（フレームはbase64エンコード）
//   - WebSocketによるバイナリフレーム配信
//
// 仕様:
//   - ルーティングはgin-gonic/ginを使用
//   - WebSocketはgorilla/websocketを使用
//   - フレーム・イベントは全てイベント通知チャンネル経由で受け取る
//   - グレースフルシャットダウンに対応（全ストリームの停止を含む）
//   - 複数クライアントの同時接続をサポート
package server
