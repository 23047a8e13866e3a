package model

import "encoding/json"

// ChannelState はプッシュチャネルの接続状態を表す。
// 遷移: closed → connecting → open、エラーまたは明示的な切断で open → closed。
type ChannelState string

const (
	// ChannelClosed は未接続状態を示す。
	ChannelClosed ChannelState = "closed"
	// ChannelConnecting は接続試行中を示す。
	ChannelConnecting ChannelState = "connecting"
	// ChannelOpen は接続確立済みを示す。
	ChannelOpen ChannelState = "open"
)

// イベント種別。未知の種別のフレームはエラーなしで破棄される。
const (
	// EventNotification は通知イベントのフレーム種別。
	EventNotification = "notification"
	// EventChatMessage はチャットメッセージイベントのフレーム種別。
	EventChatMessage = "chat_message"
)

// Envelope はプッシュチャネルの受信フレームを表す。
// クライアントからの送信フレームは存在しない（送信はREST経由のみ）。
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}
