// Package realtime はサーバー発のイベントを配送するプッシュチャネルを提供する。
// 認証済みIdentityごとに1本のwebsocket接続を維持し、切断後は固定遅延で自動再接続する。
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hitoshi/carelink/internal/api"
	"github.com/hitoshi/carelink/internal/metrics"
	"github.com/hitoshi/carelink/internal/model"
)

// defaultReconnectDelay は再接続の固定遅延のデフォルト値。
const defaultReconnectDelay = 3 * time.Second

// Handlers はプッシュイベントの購読コールバックをまとめる。
// nilのコールバックは単に呼び出されない。
type Handlers struct {
	OnNotification func(model.Notification)
	OnChatMessage  func(model.Message)
}

// Channel はIdentityにスコープされたプッシュ接続を管理する。
//
// 状態機械: closed → connecting → open。トランスポートエラーまたは明示的な
// 切断で open → closed となり、所有するIdentityが存続する限り固定遅延の後に
// closed → connecting へ自動遷移する。再接続ループはOpenで渡されたコンテキスト
// に紐付き、ログアウトでキャンセルされた後に接続を復活させることはない。
type Channel struct {
	baseURL        string
	tokens         api.TokenProvider
	handlers       Handlers
	logger         *slog.Logger
	collector      metrics.MetricsCollector
	reconnectDelay time.Duration
	dialer         *websocket.Dialer

	mu      sync.Mutex
	state   model.ChannelState
	scopeID string
	conn    *websocket.Conn
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewChannel はChannelを生成する。
// reconnectDelayが0以下の場合はデフォルト値3秒を使用する。
// collectorがnilの場合はNopコレクターを使用する。
func NewChannel(baseURL string, tokens api.TokenProvider, handlers Handlers, logger *slog.Logger, collector metrics.MetricsCollector, reconnectDelay time.Duration) *Channel {
	if reconnectDelay <= 0 {
		reconnectDelay = defaultReconnectDelay
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Channel{
		baseURL:        baseURL,
		tokens:         tokens,
		handlers:       handlers,
		logger:         logger,
		collector:      collector,
		reconnectDelay: reconnectDelay,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		state: model.ChannelClosed,
	}
}

// State は現在の接続状態を返す。
func (c *Channel) State() model.ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ScopeID は現在の接続スコープ（ユーザーID）を返す。未接続時は空文字列。
func (c *Channel) ScopeID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scopeID
}

// Open はuserIDにスコープされた接続ループを開始する。
// 既存のループがあれば先に完全に停止する。前のIdentityのスコープが
// 再利用されることはない。
func (c *Channel) Open(userID string) {
	c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	c.scopeID = userID
	c.cancel = cancel
	c.done = done
	c.state = model.ChannelConnecting
	c.mu.Unlock()

	go c.run(ctx, userID, done)
}

// Close は接続とその再接続ループを即座かつ無条件に停止する。
// ループの完全な終了を待ってから戻る。冪等。
func (c *Channel) Close() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	// 接続の読み出しはキャンセル後に行う。ダイヤル完了直後の接続が
	// キャンセルと入れ違いに格納されても、ここで確実に閉じてReadMessageの
	// ブロックを解除する（runはキャンセル後の接続を格納しない）。
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	if done != nil {
		<-done
	}

	c.mu.Lock()
	c.state = model.ChannelClosed
	c.scopeID = ""
	c.conn = nil
	c.done = nil
	c.mu.Unlock()
}

// run は接続・読み取り・再接続のループ本体。
// コンテキストがキャンセルされるまで実行を継続する。
func (c *Channel) run(ctx context.Context, userID string, done chan struct{}) {
	defer close(done)
	defer c.setState(model.ChannelClosed)

	url := c.baseURL + "/ws/" + userID

	for {
		if ctx.Err() != nil {
			return
		}

		c.setState(model.ChannelConnecting)

		conn, err := c.dial(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("プッシュチャネルの接続に失敗しました",
				slog.String("scope_id", userID),
				slog.String("error", err.Error()),
			)
			if !c.waitReconnect(ctx) {
				return
			}
			continue
		}

		c.mu.Lock()
		if ctx.Err() != nil {
			// ダイヤル中にCloseされた。Closeはこの接続を観測できないため、
			// 格納せずここで閉じる
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.conn = conn
		c.state = model.ChannelOpen
		c.mu.Unlock()

		c.logger.Info("プッシュチャネルを確立しました", slog.String("scope_id", userID))

		c.readLoop(conn)

		c.mu.Lock()
		c.conn = nil
		c.state = model.ChannelClosed
		c.mu.Unlock()

		if ctx.Err() != nil {
			return
		}

		c.logger.Info("プッシュチャネルが切断されました。再接続します",
			slog.String("scope_id", userID),
			slog.Duration("delay", c.reconnectDelay),
		)
		if !c.waitReconnect(ctx) {
			return
		}
	}
}

// dial はBearerトークンを付与してwebsocket接続を確立する。
// トークンはダイヤルの都度TokenProviderから読み直す。
func (c *Channel) dial(ctx context.Context, url string) (*websocket.Conn, error) {
	header := http.Header{}
	if token := c.tokens.Token(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, _, err := c.dialer.DialContext(ctx, url, header)
	return conn, err
}

// readLoop は受信フレームを読み続け、エラーで戻る。
// トランスポートエラーは購読側へ伝播せず、接続断として扱われるのみ。
func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			return
		}
		c.dispatch(data)
	}
}

// dispatch は受信フレームをデコードして購読コールバックへ配送する。
// 未知のイベント種別はエラーなしで破棄する。配送は重複し得るため、
// 消費側（NotificationCenter / ConversationStore）がIDで重複排除する。
func (c *Channel) dispatch(data []byte) {
	var env model.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn("プッシュフレームのパースに失敗しました", slog.String("error", err.Error()))
		return
	}

	switch env.Type {
	case model.EventNotification:
		var n model.Notification
		if err := json.Unmarshal(env.Data, &n); err != nil {
			c.logger.Warn("通知イベントのパースに失敗しました", slog.String("error", err.Error()))
			return
		}
		c.collector.RecordPushEvent(model.EventNotification)
		if c.handlers.OnNotification != nil {
			c.handlers.OnNotification(n)
		}
	case model.EventChatMessage:
		var m model.Message
		if err := json.Unmarshal(env.Data, &m); err != nil {
			c.logger.Warn("チャットイベントのパースに失敗しました", slog.String("error", err.Error()))
			return
		}
		c.collector.RecordPushEvent(model.EventChatMessage)
		if c.handlers.OnChatMessage != nil {
			c.handlers.OnChatMessage(m)
		}
	default:
		c.logger.Debug("未知のイベント種別を破棄しました", slog.String("type", env.Type))
	}
}

// waitReconnect は固定遅延の経過を待つ。
// コンテキストが先にキャンセルされた場合はfalseを返す。
func (c *Channel) waitReconnect(ctx context.Context) bool {
	c.collector.RecordReconnectAttempt()
	timer := time.NewTimer(c.reconnectDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// setState は接続状態を更新する。
func (c *Channel) setState(state model.ChannelState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}
