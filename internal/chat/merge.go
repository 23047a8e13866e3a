// Package chat は会話一覧とアクティブなトランスクリプトの管理を提供する。
// プッシュ配送とREST確認のマージ、および選択切替時の陳腐化応答の破棄を含む。
package chat

import (
	"sort"

	"github.com/hitoshi/carelink/internal/model"
)

// MergeContacts は連絡先一覧を合成する純粋関数。
// 生のCorrespondent一覧に、IDが一致するConversationのメタデータ
// （最終メッセージプレビュー・未読数）を重ねる。会話履歴のない相手は
// メタデータなしで残り、Correspondent一覧に現れない会話相手
// （無効化されたアカウント等）も会話側の情報から補完して含める。
//
// 並び順: 会話履歴のある相手を最終メッセージの新しい順、
// その後に未接触の相手を名前順。
func MergeContacts(correspondents []model.Correspondent, conversations []model.Conversation) []model.Contact {
	convByID := make(map[string]model.Conversation, len(conversations))
	for _, conv := range conversations {
		convByID[conv.CorrespondentID] = conv
	}

	contacts := make([]model.Contact, 0, len(correspondents)+len(conversations))
	seen := make(map[string]bool, len(correspondents))

	for _, corr := range correspondents {
		seen[corr.ID] = true
		contact := model.Contact{Correspondent: corr}
		if conv, ok := convByID[corr.ID]; ok {
			contact.HasConversation = true
			contact.LastMessagePreview = conv.LastMessagePreview
			contact.LastMessageAt = conv.LastMessageAt
			contact.UnreadCount = conv.UnreadCount
		}
		contacts = append(contacts, contact)
	}

	for _, conv := range conversations {
		if seen[conv.CorrespondentID] {
			continue
		}
		contacts = append(contacts, model.Contact{
			Correspondent: model.Correspondent{
				ID:   conv.CorrespondentID,
				Name: conv.CorrespondentName,
				Role: conv.CorrespondentRole,
			},
			HasConversation:    true,
			LastMessagePreview: conv.LastMessagePreview,
			LastMessageAt:      conv.LastMessageAt,
			UnreadCount:        conv.UnreadCount,
		})
	}

	sort.SliceStable(contacts, func(i, j int) bool {
		a, b := contacts[i], contacts[j]
		if a.HasConversation != b.HasConversation {
			return a.HasConversation
		}
		if a.HasConversation {
			if !a.LastMessageAt.Equal(b.LastMessageAt) {
				return a.LastMessageAt.After(b.LastMessageAt)
			}
		}
		return a.Name < b.Name
	})

	return contacts
}
