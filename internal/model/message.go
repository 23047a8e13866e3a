package model

import "time"

// Message は1対1チャットのメッセージを表す。
// 送信者・受信者のうちローカルユーザーでない側が所属する会話を決定する。
// トランスクリプト内では作成日時の昇順に並ぶ。
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Body       string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
	Read       bool      `json:"read"`
}

// CounterpartOf はlocalUserIDから見た相手側のユーザーIDを返す。
// 自分宛でも自分発でもないメッセージは空文字列を返す。
func (m *Message) CounterpartOf(localUserID string) string {
	switch localUserID {
	case m.SenderID:
		return m.ReceiverID
	case m.ReceiverID:
		return m.SenderID
	}
	return ""
}

// Conversation は1人の相手との会話のサマリーを表す。
// CorrespondentIDをキーとして一意。
type Conversation struct {
	CorrespondentID    string    `json:"correspondent_id"`
	CorrespondentName  string    `json:"correspondent_name"`
	CorrespondentRole  Role      `json:"correspondent_role"`
	LastMessagePreview string    `json:"last_message_preview"`
	LastMessageAt      time.Time `json:"last_message_at"`
	UnreadCount        int       `json:"unread_count"`
}

// Contact は連絡先一覧の1エントリを表す。
// 会話履歴のある相手はConversationのメタデータで強化され、
// 未接触の相手はプレビューなし・未読0で並ぶ。
type Contact struct {
	Correspondent
	HasConversation    bool
	LastMessagePreview string
	LastMessageAt      time.Time
	UnreadCount        int
}
