package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/carelink/internal/model"
)

// refreshTimeout はプッシュ起点の会話一覧リフレッシュのタイムアウト。
// プッシュコールバックをブロックしないよう、独立したコンテキストで実行する。
const refreshTimeout = 10 * time.Second

// ChatAPI はStoreが必要とするチャットエンドポイントのインターフェース。
// api.Clientの部分集合として定義する。
type ChatAPI interface {
	ListAvailableUsers(ctx context.Context) ([]model.Correspondent, error)
	ListConversations(ctx context.Context) ([]model.Conversation, error)
	ListMessages(ctx context.Context, correspondentID string, limit int) ([]model.Message, error)
	SendMessage(ctx context.Context, receiverID, body string) (*model.Message, error)
}

// Store は会話一覧とアクティブなトランスクリプトを管理する。
//
// トランスクリプトの取得には選択エポックによる陳腐化ガードがある:
// 相手Aのフェッチが未解決のまま相手Bが選択された場合、後から解決した
// Aの応答は適用されず破棄される。
//
// 取得失敗時は直前の状態を保持する（空にクリアしない）。
// 例外は新しい選択による明示的な置換のみ。
type Store struct {
	mu              sync.Mutex
	localUserID     string
	correspondents  []model.Correspondent
	conversations   []model.Conversation
	activeID        string
	selectionEpoch  uint64
	transcript      []model.Message

	api             ChatAPI
	logger          *slog.Logger
	transcriptLimit int
}

// NewStore はStoreを生成する。
// transcriptLimitが0以下の場合はデフォルト値50を使用する。
func NewStore(chatAPI ChatAPI, logger *slog.Logger, transcriptLimit int) *Store {
	if transcriptLimit <= 0 {
		transcriptLimit = 50
	}
	return &Store{
		api:             chatAPI,
		logger:          logger,
		transcriptLimit: transcriptLimit,
	}
}

// SetLocalUser はプッシュメッセージの相手解決に使うローカルユーザーIDを設定する。
// Identityの確立・消滅に合わせてワイヤリング層が呼び出す。
func (s *Store) SetLocalUser(userID string) {
	s.mu.Lock()
	s.localUserID = userID
	s.mu.Unlock()
}

// RefreshCorrespondents は連絡可能な相手の一覧を取得して置き換える。
// 失敗時は直前の一覧を保持したままエラーを返す。
func (s *Store) RefreshCorrespondents(ctx context.Context) error {
	correspondents, err := s.api.ListAvailableUsers(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.correspondents = correspondents
	s.mu.Unlock()
	return nil
}

// RefreshConversations は会話サマリーの一覧を取得して置き換える。
// 失敗時は直前の一覧を保持したままエラーを返す。
func (s *Store) RefreshConversations(ctx context.Context) error {
	conversations, err := s.api.ListConversations(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.conversations = conversations
	s.mu.Unlock()
	return nil
}

// ContactList は連絡先一覧（Correspondent一覧とConversationメタデータの合成）を返す。
func (s *Store) ContactList() []model.Contact {
	s.mu.Lock()
	correspondents := s.correspondents
	conversations := s.conversations
	s.mu.Unlock()
	return MergeContacts(correspondents, conversations)
}

// SelectConversation は指定相手のトランスクリプトを読み込み、アクティブにする。
// 選択の時点で前のトランスクリプトは即座に消去され、前の相手の内容が
// 新しいビューに漏れることはない。フェッチが解決した時点で選択が
// 別の相手に移っていた場合、その応答は破棄される。
func (s *Store) SelectConversation(ctx context.Context, correspondentID string) error {
	s.mu.Lock()
	s.activeID = correspondentID
	s.selectionEpoch++
	epoch := s.selectionEpoch
	s.transcript = nil
	s.mu.Unlock()

	messages, err := s.api.ListMessages(ctx, correspondentID, s.transcriptLimit)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// 陳腐化ガード: この選択がまだ現行である場合のみ適用する
	if s.selectionEpoch != epoch || s.activeID != correspondentID {
		s.logger.Info("陳腐化したトランスクリプト応答を破棄しました",
			slog.String("correspondent_id", correspondentID),
		)
		return nil
	}
	s.transcript = messages
	return nil
}

// ClearSelection はアクティブな会話の選択を解除し、トランスクリプトを消去する。
func (s *Store) ClearSelection() {
	s.mu.Lock()
	s.activeID = ""
	s.selectionEpoch++
	s.transcript = nil
	s.mu.Unlock()
}

// SendMessage はメッセージを送信する。
// 空白のみの本文はネットワーク呼び出しなしでローカルに拒否する。
// 送信は楽観的ではない: サーバーがIDとタイムスタンプを採番するため、
// 確認済みのMessageが返ってから、まだアクティブな相手であれば
// トランスクリプトへ追加する（ID重複時は追加しない）。
// 成功後は会話一覧をリフレッシュして並び順とプレビューを更新する。
func (s *Store) SendMessage(ctx context.Context, correspondentID, body string) (*model.Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, model.NewEmptyMessageError()
	}

	msg, err := s.api.SendMessage(ctx, correspondentID, body)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.activeID == correspondentID {
		s.appendIfAbsent(*msg)
	}
	s.mu.Unlock()

	if err := s.RefreshConversations(ctx); err != nil {
		s.logger.Warn("送信後の会話一覧リフレッシュに失敗しました",
			slog.String("error", err.Error()),
		)
	}

	return msg, nil
}

// OnPush はプッシュ配送されたメッセージを取り込む。
// 相手がアクティブな相手と一致する場合はトランスクリプトへ追加し
// （ID重複時は追加しない）、いずれの場合も会話一覧のリフレッシュを
// バックグラウンドで起動する。
func (s *Store) OnPush(msg model.Message) {
	s.mu.Lock()
	counterpart := msg.CounterpartOf(s.localUserID)
	if counterpart == "" {
		s.mu.Unlock()
		s.logger.Warn("ローカルユーザーが関与しないメッセージを破棄しました",
			slog.String("message_id", msg.ID),
		)
		return
	}
	if counterpart == s.activeID {
		s.appendIfAbsent(msg)
	}
	s.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		if err := s.RefreshConversations(ctx); err != nil {
			s.logger.Warn("プッシュ後の会話一覧リフレッシュに失敗しました",
				slog.String("error", err.Error()),
			)
		}
	}()
}

// appendIfAbsent はIDが未登場の場合のみトランスクリプト末尾に追加する。
// 自送信のREST確認とチャネル経由のエコーの二重観測への防御。呼び出し側がロックを保持する。
func (s *Store) appendIfAbsent(msg model.Message) {
	for _, existing := range s.transcript {
		if existing.ID == msg.ID {
			return
		}
	}
	s.transcript = append(s.transcript, msg)
}

// ActiveCorrespondent は現在アクティブな相手のIDを返す。未選択時は空文字列。
func (s *Store) ActiveCorrespondent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Transcript は現在のトランスクリプトのコピーを返す。
func (s *Store) Transcript() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	transcript := make([]model.Message, len(s.transcript))
	copy(transcript, s.transcript)
	return transcript
}

// Conversations は現在の会話サマリー一覧のコピーを返す。
func (s *Store) Conversations() []model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	conversations := make([]model.Conversation, len(s.conversations))
	copy(conversations, s.conversations)
	return conversations
}

// Reset はローカル状態を全消去する。ログアウト時に呼び出される。
func (s *Store) Reset() {
	s.mu.Lock()
	s.localUserID = ""
	s.correspondents = nil
	s.conversations = nil
	s.activeID = ""
	s.selectionEpoch++
	s.transcript = nil
	s.mu.Unlock()
}
