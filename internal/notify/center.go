// Package notify は未読カウントと通知フィードの管理を提供する。
// RESTポーリングによる全置換とプッシュ配送による差分適用をマージする。
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/carelink/internal/metrics"
	"github.com/hitoshi/carelink/internal/model"
)

// confirmTimeout はfire-and-forgetなバックエンド確認のタイムアウト。
// ログアウトで進行中の確認がキャンセルされないよう、独立したコンテキストを使う。
const confirmTimeout = 10 * time.Second

// NotificationAPI はCenterが必要とする通知エンドポイントのインターフェース。
// api.Clientの部分集合として定義する。
type NotificationAPI interface {
	ListNotifications(ctx context.Context, limit int) ([]model.Notification, error)
	UnreadCount(ctx context.Context) (int, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context) error
}

// Center は現在のIdentityに対する未読カウントと直近通知フィードの
// 権威的なローカル状態を保持する。
//
// ポーリングは全置換（last-writer-wins）、プッシュは差分適用であり、
// 両者の全順序は保証しない。未読カウントは次のポーリングまで最大1増分だけ
// 過大・過小になり得る（設計上の結果整合性であり、バグではない）。
type Center struct {
	mu     sync.Mutex
	feed   []model.Notification
	unread int

	api       NotificationAPI
	logger    *slog.Logger
	collector metrics.MetricsCollector
	feedLimit int
}

// NewCenter はCenterを生成する。
// feedLimitが0以下の場合はデフォルト値20を使用する。
func NewCenter(notificationAPI NotificationAPI, logger *slog.Logger, collector metrics.MetricsCollector, feedLimit int) *Center {
	if feedLimit <= 0 {
		feedLimit = 20
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Center{
		api:       notificationAPI,
		logger:    logger,
		collector: collector,
		feedLimit: feedLimit,
	}
}

// Refresh は直近N件の通知と未読カウントをバックエンドから取得し、
// ローカル状態を全置換する。取得失敗時は直前の状態を保持したままエラーを返す。
func (c *Center) Refresh(ctx context.Context) error {
	feed, err := c.api.ListNotifications(ctx, c.feedLimit)
	if err != nil {
		return err
	}
	unread, err := c.api.UnreadCount(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.feed = feed
	c.unread = unread
	c.mu.Unlock()

	return nil
}

// StartPolling は固定間隔のポーリングループをバックグラウンドで起動する。
// 起動直後に1回Refreshを実行し、以降は間隔ごとに実行する。
// コンテキストのキャンセルで停止する（匿名セッションにポーリングを残さない）。
func (c *Center) StartPolling(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		c.runPoll(ctx)

		for {
			select {
			case <-ctx.Done():
				c.logger.Info("通知ポーリングを停止しました")
				return
			case <-ticker.C:
				c.runPoll(ctx)
			}
		}
	}()
}

// runPoll はポーリング1サイクルを実行する。失敗はログのみ。
func (c *Center) runPoll(ctx context.Context) {
	c.collector.RecordPollCycle()
	if err := c.Refresh(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("通知の取得に失敗しました", slog.String("error", err.Error()))
	}
}

// OnPush はプッシュ配送された通知をフィード先頭に追加し、未読カウントを1増やす。
// 次のポーリングを待たずに「即時」通知を見せるための経路。
// 既にIDが存在する場合は何もしない（RESTとプッシュの二重観測への防御）。
func (c *Center) OnPush(n model.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, existing := range c.feed {
		if existing.ID == n.ID {
			return
		}
	}

	c.feed = append([]model.Notification{n}, c.feed...)
	if len(c.feed) > c.feedLimit {
		c.feed = c.feed[:c.feedLimit]
	}
	if !n.Read {
		c.unread++
	}
}

// MarkRead は通知を楽観的に既読へ反転し、未読カウントを減らす（下限0）。
// 既読済みエントリにはカウンタ上何もしない。バックエンドへの確認は
// fire-and-forgetで行い、失敗してもロールバックしない（ログのみ）。
// ローカル状態が提示上の真実となる。
func (c *Center) MarkRead(id string) {
	c.mu.Lock()
	flipped := false
	for i := range c.feed {
		if c.feed[i].ID == id {
			if !c.feed[i].Read {
				c.feed[i].Read = true
				flipped = true
			}
			break
		}
	}
	if flipped && c.unread > 0 {
		c.unread--
	}
	c.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), confirmTimeout)
		defer cancel()
		if err := c.api.MarkNotificationRead(ctx, id); err != nil {
			c.logger.Warn("既読化のバックエンド確認に失敗しました",
				slog.String("notification_id", id),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// MarkAllRead は全エントリを楽観的に既読へ反転し、未読カウントを0にする。
// バックエンドへの確認はMarkReadと同じfire-and-forgetポリシー。
func (c *Center) MarkAllRead() {
	c.mu.Lock()
	for i := range c.feed {
		c.feed[i].Read = true
	}
	c.unread = 0
	c.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), confirmTimeout)
		defer cancel()
		if err := c.api.MarkAllNotificationsRead(ctx); err != nil {
			c.logger.Warn("全既読化のバックエンド確認に失敗しました",
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Reset はローカル状態を全消去する。ログアウト時に呼び出される。
func (c *Center) Reset() {
	c.mu.Lock()
	c.feed = nil
	c.unread = 0
	c.mu.Unlock()
}

// Snapshot は現在のフィードのコピーと未読カウントを返す。
func (c *Center) Snapshot() ([]model.Notification, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	feed := make([]model.Notification, len(c.feed))
	copy(feed, c.feed)
	return feed, c.unread
}
