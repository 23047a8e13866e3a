package model

import "time"

// Notification はユーザー宛の通知を表す。
// フィードは作成日時の降順（新しいものが先頭）で保持される。
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// UnreadCount は未読通知数のAPIレスポンスを表す。
type UnreadCount struct {
	Count int `json:"count"`
}
