package devserver

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/hitoshi/carelink/internal/middleware"
	"github.com/hitoshi/carelink/internal/model"
)

// upgrader はWebSocketハンドシェイクのアップグレーダー。
// 開発サーバーのためオリジン検査は行わない。
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleWS は GET /ws/{userID} を処理する。
// Bearerトークン（Authorizationヘッダーまたはtokenクエリパラメータ）を検証し、
// トークンのsubjectとパスのuserIDが一致する場合のみ接続を受け付ける。
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r)
	if !ok {
		// ブラウザのWebSocket APIはヘッダーを設定できないためクエリも許容する
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	userID, _, err := s.tokens.Verify(token)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	if pathID := chi.URLParam(r, "userID"); pathID != userID {
		middleware.WriteErrorResponse(w, http.StatusForbidden, &model.APIError{
			Code:     "FORBIDDEN",
			Message:  "他ユーザーのチャンネルには接続できません。",
			Category: "auth",
			Action:   "自分のユーザーIDで接続してください。",
		})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocketアップグレードに失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		return
	}

	s.hub.Register(userID, conn)
	defer func() {
		s.hub.Unregister(userID, conn)
		conn.Close()
	}()

	// プッシュ専用チャンネル。受信フレームは読み捨て、切断検知にのみ使う。
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
