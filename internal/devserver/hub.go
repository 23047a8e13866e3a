package devserver

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/hitoshi/carelink/internal/metrics"
	"github.com/hitoshi/carelink/internal/model"
)

// Hub はユーザーごとのWebSocket接続を管理し、プッシュイベントを配送する。
// 1ユーザーにつき接続は1本のみ。新しい接続が来た場合は古い接続を閉じて置き換える。
type Hub struct {
	mu        sync.Mutex
	conns     map[string]*websocket.Conn // userID -> conn
	logger    *slog.Logger
	collector metrics.MetricsCollector
}

// NewHub はHubを生成する。collectorがnilの場合はNopコレクターを使用する。
func NewHub(logger *slog.Logger, collector metrics.MetricsCollector) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Hub{
		conns:     make(map[string]*websocket.Conn),
		logger:    logger,
		collector: collector,
	}
}

// Register はユーザーの接続を登録する。既存の接続があれば閉じる。
func (h *Hub) Register(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if prev, ok := h.conns[userID]; ok {
		prev.Close()
	}
	h.conns[userID] = conn
	h.logger.Info("WebSocket接続を登録しました", slog.String("user_id", userID))
}

// Unregister は接続を解除する。connが現在の登録と一致する場合のみ削除する。
// 置き換え済みの古い接続のクリーンアップで現行接続を巻き込まないための条件。
func (h *Hub) Unregister(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.conns[userID]; ok && current == conn {
		delete(h.conns, userID)
		h.logger.Info("WebSocket接続を解除しました", slog.String("user_id", userID))
	}
}

// Connected はユーザーが接続中かどうかを返す。
func (h *Hub) Connected(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.conns[userID]
	return ok
}

// Push は指定ユーザーへ{type, data}形式のイベントフレームを送信する。
// 未接続の場合は何もしない。書き込み失敗時は接続を閉じて登録を解除する。
func (h *Hub) Push(userID, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("プッシュペイロードのエンコードに失敗しました",
			slog.String("type", eventType),
			slog.String("error", err.Error()))
		return
	}
	frame, err := json.Marshal(model.Envelope{Type: eventType, Data: data})
	if err != nil {
		h.logger.Error("プッシュフレームのエンコードに失敗しました",
			slog.String("type", eventType),
			slog.String("error", err.Error()))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.conns[userID]
	if !ok {
		return
	}
	h.collector.RecordPushEvent(eventType)
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		h.logger.Warn("プッシュ送信に失敗したため接続を閉じます",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		conn.Close()
		delete(h.conns, userID)
	}
}
