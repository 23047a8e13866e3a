package app

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hitoshi/carelink/internal/api"
	"github.com/hitoshi/carelink/internal/chat"
	"github.com/hitoshi/carelink/internal/config"
	"github.com/hitoshi/carelink/internal/metrics"
	"github.com/hitoshi/carelink/internal/model"
	"github.com/hitoshi/carelink/internal/notify"
	"github.com/hitoshi/carelink/internal/realtime"
	"github.com/hitoshi/carelink/internal/session"
)

// refreshTimeout はIdentity確立直後の初期フェッチに使うタイムアウト。
const refreshTimeout = 10 * time.Second

// Core はクライアントコアの全コンポーネントを束ねる。
// SessionStoreのIdentity変化を起点に、プッシュチャネルの開閉、
// 通知ポーリングの起動停止、各ストアのリセットを自動で行う。
type Core struct {
	Config        *config.Config
	Sessions      *session.Store
	API           *api.Client
	Channel       *realtime.Channel
	Notifications *notify.Center
	Chat          *chat.Store

	logger *slog.Logger

	mu         sync.Mutex
	pollCancel context.CancelFunc
}

// lazyTokens はapi.Clientとsession.Storeの相互依存を断ち切るTokenProvider。
// api.Clientの構築時点ではSessionStoreが存在しないため、後から差し込む。
type lazyTokens struct {
	mu    sync.Mutex
	store *session.Store
}

func (l *lazyTokens) set(store *session.Store) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.store = store
}

// Token はapi.TokenProviderを実装する。
func (l *lazyTokens) Token() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.store == nil {
		return ""
	}
	return l.store.Token()
}

// Wire は全コンポーネントを構築して接続する。
// collectorがnilの場合はNopコレクターを使用する。
func Wire(cfg *config.Config, storage session.TokenStorage, logger *slog.Logger, collector metrics.MetricsCollector) *Core {
	if collector == nil {
		collector = metrics.Nop{}
	}

	tokens := &lazyTokens{}
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	client := api.NewClient(cfg.APIBaseURL, httpClient, tokens, logger, collector)
	sessions := session.NewStore(storage, client, logger)
	tokens.set(sessions)

	notifications := notify.NewCenter(client, logger, collector, cfg.FeedLimit)
	chatStore := chat.NewStore(client, logger, cfg.TranscriptLimit)
	channel := realtime.NewChannel(cfg.WSBaseURL, sessions, realtime.Handlers{
		OnNotification: notifications.OnPush,
		OnChatMessage:  chatStore.OnPush,
	}, logger, collector, cfg.ReconnectDelay)

	core := &Core{
		Config:        cfg,
		Sessions:      sessions,
		API:           client,
		Channel:       channel,
		Notifications: notifications,
		Chat:          chatStore,
		logger:        logger,
	}

	// 認証済みリクエストの401はセッション破棄に直結する
	client.SetOnAuthFailure(sessions.Invalidate)
	sessions.OnChange(core.handleIdentityChange)

	return core
}

// handleIdentityChange はIdentityの確立・消滅に応じて周辺コンポーネントを同期する。
func (c *Core) handleIdentityChange(identity *model.Identity) {
	if identity == nil {
		c.teardown()
		return
	}

	c.Chat.SetLocalUser(identity.ID)
	c.Channel.Open(identity.ID)

	c.mu.Lock()
	if c.pollCancel != nil {
		c.pollCancel()
	}
	pollCtx, cancel := context.WithCancel(context.Background())
	c.pollCancel = cancel
	c.mu.Unlock()

	c.Notifications.StartPolling(pollCtx, c.Config.PollInterval)

	// 連絡先と会話サマリーの初期フェッチ。失敗してもセッションは維持される。
	ctx, cancelFetch := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancelFetch()
	if err := c.Chat.RefreshCorrespondents(ctx); err != nil {
		c.logger.Warn("連絡先の初期取得に失敗しました", slog.String("error", err.Error()))
	}
	if err := c.Chat.RefreshConversations(ctx); err != nil {
		c.logger.Warn("会話サマリーの初期取得に失敗しました", slog.String("error", err.Error()))
	}
}

// teardown はログアウト・セッション無効化時に全コンポーネントを匿名状態へ戻す。
func (c *Core) teardown() {
	c.mu.Lock()
	if c.pollCancel != nil {
		c.pollCancel()
		c.pollCancel = nil
	}
	c.mu.Unlock()

	c.Channel.Close()
	c.Notifications.Reset()
	c.Chat.Reset()
	c.Chat.SetLocalUser("")
	c.logger.Info("クライアントコアを匿名状態に戻しました")
}

// Shutdown はクライアントコアを停止する。セッションは破棄しない。
// 永続化トークンは残るため、次回起動時にRestoreで復元できる。
func (c *Core) Shutdown() {
	c.mu.Lock()
	if c.pollCancel != nil {
		c.pollCancel()
		c.pollCancel = nil
	}
	c.mu.Unlock()

	c.Channel.Close()
}
