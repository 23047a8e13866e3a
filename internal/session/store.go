package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/carelink/internal/api"
	"github.com/hitoshi/carelink/internal/model"
)

// AuthAPI はSessionStoreが必要とする認証エンドポイントのインターフェース。
// api.Clientの部分集合として定義する。
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (*api.AuthResponse, error)
	Signup(ctx context.Context, req api.SignupRequest) (*api.AuthResponse, error)
	Me(ctx context.Context) (*api.Profile, error)
	Refresh(ctx context.Context) (*api.AuthResponse, error)
}

// Observer はIdentityの変化を受け取るコールバック。
// ログイン・復元成功時は新しいIdentity、ログアウト・無効化時はnilで呼び出される。
type Observer func(*model.Identity)

// Store はログイン中のIdentityとそのライフサイクルを管理する。
//
// 不変条件: Identityが存在するときtokenは必ず非空。
// tokenフィールドはIdentity確立前のログインフロー中（プロフィール取得前）にも
// 一時的に設定される。ApiClientはTokenProviderとしてこのフィールドを毎回読み直す。
type Store struct {
	mu       sync.Mutex
	token    string
	identity *model.Identity

	storage   TokenStorage
	authAPI   AuthAPI
	logger    *slog.Logger
	observers []Observer
}

// NewStore はStoreを生成する。
func NewStore(storage TokenStorage, authAPI AuthAPI, logger *slog.Logger) *Store {
	return &Store{
		storage: storage,
		authAPI: authAPI,
		logger:  logger,
	}
}

// Token は現在のBearerトークンを返す。api.TokenProviderを実装する。
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Identity は現在のIdentityのコピーを返す。匿名セッションではnil。
func (s *Store) Identity() *model.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return nil
	}
	cp := *s.identity
	return &cp
}

// OnChange はIdentityの変化を監視するObserverを登録する。
// ワイヤリング層はこれを使ってプッシュチャネルの開閉、ポーリングの起動停止、
// 各ストアのリセットを行う。
func (s *Store) OnChange(fn Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Restore は起動時に永続化トークンからセッションの復元を試みる。
// トークンが無効・期限切れの場合は永続化トークンを消去して匿名状態に戻る。
// 無人で実行されるため、失敗は呼び出し元にエラーとして返さない（ログのみ）。
func (s *Store) Restore(ctx context.Context) {
	token, err := s.storage.Load()
	if err != nil {
		s.logger.Error("永続化トークンの読み込みに失敗しました", slog.String("error", err.Error()))
		return
	}
	if token == "" {
		return
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	profile, err := s.authAPI.Me(ctx)
	if err != nil {
		// 期限切れ・無効トークン: 黙って匿名に降格する
		s.logger.Info("保存されたトークンでのセッション復元に失敗しました",
			slog.String("error", err.Error()),
		)
		s.clearLocked(false)
		return
	}

	identity := s.establish(token, profile)
	s.logger.Info("セッションを復元しました",
		slog.String("user_id", identity.ID),
		slog.String("role", string(identity.Role)),
	)
	s.notify(identity)
}

// Login は資格情報でログインし、セッションを確立する。
// 認証レスポンスの最小クレームではIdentityに不十分なため、
// セッション準備完了の前にプロフィール取得が必須となる。
func (s *Store) Login(ctx context.Context, email, password string) (*model.Identity, error) {
	auth, err := s.authAPI.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.completeAuth(ctx, auth)
}

// Signup は新規アカウントを作成し、セッションを確立する。
func (s *Store) Signup(ctx context.Context, req api.SignupRequest) (*model.Identity, error) {
	auth, err := s.authAPI.Signup(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.completeAuth(ctx, auth)
}

// completeAuth はトークン永続化とプロフィール取得でセッションを確立する。
// プロフィール取得に失敗した場合はトークンを巻き戻し、匿名のままエラーを返す。
func (s *Store) completeAuth(ctx context.Context, auth *api.AuthResponse) (*model.Identity, error) {
	if auth.AccessToken == "" {
		return nil, fmt.Errorf("認証レスポンスにアクセストークンが含まれていません")
	}

	if err := s.storage.Save(auth.AccessToken); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.token = auth.AccessToken
	s.mu.Unlock()

	profile, err := s.authAPI.Me(ctx)
	if err != nil {
		s.clearLocked(false)
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}

	identity := s.establish(auth.AccessToken, profile)
	s.logger.Info("ログインしました",
		slog.String("user_id", identity.ID),
		slog.String("role", string(identity.Role)),
	)
	s.notify(identity)
	cp := *identity
	return &cp, nil
}

// RefreshToken はアクセストークンをローテーションし、永続化トークンを上書きする。
func (s *Store) RefreshToken(ctx context.Context) error {
	auth, err := s.authAPI.Refresh(ctx)
	if err != nil {
		return err
	}
	if auth.AccessToken == "" {
		return fmt.Errorf("リフレッシュレスポンスにアクセストークンが含まれていません")
	}

	if err := s.storage.Save(auth.AccessToken); err != nil {
		return err
	}

	s.mu.Lock()
	s.token = auth.AccessToken
	if s.identity != nil {
		s.identity.Token = auth.AccessToken
	}
	s.mu.Unlock()

	s.logger.Info("アクセストークンをローテーションしました")
	return nil
}

// Logout はセッションを破棄する。
// 永続化トークンとIdentityを消去し、Observerにnilを通知する。
// 前のIdentityのデータが残らないよう、ワイヤリング層はこの通知で各ストアをリセットする。
func (s *Store) Logout() {
	s.logger.Info("ログアウトします")
	s.clearLocked(true)
}

// Invalidate は認証失敗を受けてセッションを破棄する。
// ApiClientのOnAuthFailureフックとして登録される。リトライは行わない。
func (s *Store) Invalidate() {
	s.logger.Warn("セッションが無効化されました")
	s.clearLocked(true)
}

// establish はtokenとプロフィールからIdentityを設定する。
func (s *Store) establish(token string, profile *api.Profile) *model.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = &model.Identity{
		ID:    profile.ID,
		Role:  profile.Role,
		Name:  profile.Name,
		Email: profile.Email,
		Token: token,
	}
	cp := *s.identity
	return &cp
}

// clearLocked はトークンとIdentityを同時に消去する。
// notifyObserversがtrueの場合、消去すべき状態が実際に存在したときのみ
// Observerにnilを通知する。
func (s *Store) clearLocked(notifyObservers bool) {
	if err := s.storage.Clear(); err != nil {
		s.logger.Error("永続化トークンの消去に失敗しました", slog.String("error", err.Error()))
	}

	s.mu.Lock()
	hadState := s.token != "" || s.identity != nil
	s.token = ""
	s.identity = nil
	s.mu.Unlock()

	if notifyObservers && hadState {
		s.notify(nil)
	}
}

// notify は登録済みObserverを順に呼び出す。
// Observerがstoreのメソッドを呼び戻せるよう、ロックの外で実行する。
func (s *Store) notify(identity *model.Identity) {
	s.mu.Lock()
	observers := make([]Observer, len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	for _, fn := range observers {
		fn(identity)
	}
}
