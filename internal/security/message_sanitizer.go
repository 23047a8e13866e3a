// Package security はアプリケーションのセキュリティ機能を提供する。
//
// MessageSanitizerService はチャットメッセージの本文をサニタイズし、
// XSS攻撃などのセキュリティリスクから受信者を保護する。
// bluemondayライブラリの許可リストベースのポリシーを使用する。
package security

import "github.com/microcosm-cc/bluemonday"

// MessageSanitizerService はメッセージ本文のサニタイズ機能のインターフェースを定義する。
// 開発サーバーがメッセージ保存前に使用する。
type MessageSanitizerService interface {
	// Sanitize はメッセージ本文をサニタイズして安全なテキストを返す。
	// チャット本文はプレーンテキストとして扱うため、すべてのHTMLタグを除去する。
	// script, iframe, styleタグおよびon*イベント属性は内容ごと残らない。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// messageSanitizer はMessageSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type messageSanitizer struct {
	policy *bluemonday.Policy
}

// NewMessageSanitizer はMessageSanitizerServiceの新しいインスタンスを生成する。
// チャット本文に許可されるタグはない: StrictPolicyで全タグを除去し、
// テキストコンテンツのみを残す。
func NewMessageSanitizer() *messageSanitizer {
	return &messageSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はメッセージ本文をサニタイズして安全なテキストを返す。
func (s *messageSanitizer) Sanitize(raw string) string {
	return s.policy.Sanitize(raw)
}
