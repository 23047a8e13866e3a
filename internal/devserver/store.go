// Package devserver はポータルバックエンドのREST+プッシュ契約を実装する
// インメモリ開発サーバーを提供する。クライアントコアを本番バックエンドなしで
// エンドツーエンドに動かすための実装であり、データはプロセス内にのみ保持される。
package devserver

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/carelink/internal/model"
)

// User は開発サーバーに登録されたアカウントを表す。
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash []byte
	Role         model.Role
	CreatedAt    time.Time
}

// Store は全データをミューテックスで保護されたマップに保持する。
type Store struct {
	mu            sync.Mutex
	users         map[string]*User   // userID -> user
	usersByEmail  map[string]string  // email(lower) -> userID
	notifications map[string][]*model.Notification // userID -> 新しい順
	messages      []*model.Message   // 追加順（= 時系列昇順）
}

// NewStore は空のStoreを生成する。
func NewStore() *Store {
	return &Store{
		users:         make(map[string]*User),
		usersByEmail:  make(map[string]string),
		notifications: make(map[string][]*model.Notification),
	}
}

// CreateUser はユーザーを登録する。メールアドレス重複時はfalseを返す。
func (s *Store) CreateUser(name, email string, passwordHash []byte, role model.Role) (*User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(email)
	if _, exists := s.usersByEmail[key]; exists {
		return nil, false
	}

	user := &User{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    time.Now(),
	}
	s.users[user.ID] = user
	s.usersByEmail[key] = user.ID
	return user, true
}

// FindUserByEmail はメールアドレスでユーザーを検索する。
func (s *Store) FindUserByEmail(email string) *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.usersByEmail[strings.ToLower(email)]
	if !ok {
		return nil
	}
	return s.users[id]
}

// FindUserByID はIDでユーザーを検索する。
func (s *Store) FindUserByID(id string) *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id]
}

// ListUsersExcept は指定ユーザー以外の全ユーザーをCorrespondentとして返す。
// 並びは名前順。
func (s *Store) ListUsersExcept(userID string) []model.Correspondent {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Correspondent, 0, len(s.users))
	for _, u := range s.users {
		if u.ID == userID {
			continue
		}
		out = append(out, model.Correspondent{ID: u.ID, Name: u.Name, Role: u.Role})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AddNotification は通知を作成してユーザーのフィード先頭に追加する。
func (s *Store) AddNotification(userID, title, body string) *model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := &model.Notification{
		ID:        uuid.New().String(),
		Title:     title,
		Body:      body,
		Read:      false,
		CreatedAt: time.Now(),
	}
	s.notifications[userID] = append([]*model.Notification{n}, s.notifications[userID]...)
	cp := *n
	return &cp
}

// ListNotifications はユーザーの通知を新しい順に最大limit件返す。
func (s *Store) ListNotifications(userID string, limit int) []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	feed := s.notifications[userID]
	if limit > 0 && len(feed) > limit {
		feed = feed[:limit]
	}
	out := make([]model.Notification, 0, len(feed))
	for _, n := range feed {
		out = append(out, *n)
	}
	return out
}

// UnreadNotificationCount はユーザーの未読通知数を返す。
func (s *Store) UnreadNotificationCount(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, n := range s.notifications[userID] {
		if !n.Read {
			count++
		}
	}
	return count
}

// MarkNotificationRead は通知を既読にする。該当IDがない場合はfalseを返す。
func (s *Store) MarkNotificationRead(userID, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range s.notifications[userID] {
		if n.ID == id {
			n.Read = true
			return true
		}
	}
	return false
}

// MarkAllNotificationsRead はユーザーの全通知を既読にする。
func (s *Store) MarkAllNotificationsRead(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range s.notifications[userID] {
		n.Read = true
	}
}

// AddMessage はメッセージを作成して保存する。IDとタイムスタンプはここで採番される。
func (s *Store) AddMessage(senderID, receiverID, body string) *model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := &model.Message{
		ID:         uuid.New().String(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Body:       body,
		CreatedAt:  time.Now(),
		Read:       false,
	}
	s.messages = append(s.messages, m)
	cp := *m
	return &cp
}

// ListMessagesBetween は2ユーザー間のメッセージを時系列昇順で返す。
// limitが正の場合は直近のlimit件に切り詰める（切り詰め後も昇順）。
func (s *Store) ListMessagesBetween(userA, userB string, limit int) []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Message
	for _, m := range s.messages {
		if (m.SenderID == userA && m.ReceiverID == userB) ||
			(m.SenderID == userB && m.ReceiverID == userA) {
			out = append(out, *m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// MarkMessageRead はメッセージを既読にする。
// 受信者本人からの要求のみ有効。該当IDがない場合はfalseを返す。
func (s *Store) MarkMessageRead(receiverID, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.messages {
		if m.ID == id && m.ReceiverID == receiverID {
			m.Read = true
			return true
		}
	}
	return false
}

// Conversations はユーザーの会話サマリー一覧を最終メッセージの新しい順で返す。
// 未読数は相手から自分宛の未読メッセージ数。
func (s *Store) Conversations(userID string) []model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	byCorrespondent := make(map[string]*model.Conversation)
	for _, m := range s.messages {
		var counterpartID string
		switch userID {
		case m.SenderID:
			counterpartID = m.ReceiverID
		case m.ReceiverID:
			counterpartID = m.SenderID
		default:
			continue
		}

		conv, ok := byCorrespondent[counterpartID]
		if !ok {
			conv = &model.Conversation{CorrespondentID: counterpartID}
			if u := s.users[counterpartID]; u != nil {
				conv.CorrespondentName = u.Name
				conv.CorrespondentRole = u.Role
			}
			byCorrespondent[counterpartID] = conv
		}

		// messagesは時系列昇順のため、後勝ちで最終メッセージになる
		conv.LastMessagePreview = m.Body
		conv.LastMessageAt = m.CreatedAt
		if m.ReceiverID == userID && !m.Read {
			conv.UnreadCount++
		}
	}

	out := make([]model.Conversation, 0, len(byCorrespondent))
	for _, conv := range byCorrespondent {
		out = append(out, *conv)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out
}
