package devserver

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/carelink/internal/middleware"
	"github.com/hitoshi/carelink/internal/model"
)

// NewRouter は全エンドポイントを束ねたルーターを構築する。
// 認証・レート制限は認証必須グループにのみ適用し、
// /auth/signup /auth/login /health /metrics /ws は公開する
// （/wsはハンドラー内で自前のトークン検証を行う）。
func NewRouter(server *Server, tokens *TokenService, limiter *middleware.RateLimiter, logger *slog.Logger, corsOrigin string, metricsHandler http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewCORSMiddleware(corsOrigin))

	r.Get("/health", server.HandleHealth)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Post("/auth/signup", server.HandleSignup)
	r.Post("/auth/login", server.HandleLogin)
	r.Get("/ws/{userID}", server.HandleWS)

	r.Group(func(pr chi.Router) {
		pr.Use(middleware.NewAuthMiddleware(tokens))
		pr.Use(limiter.GeneralMiddleware())

		pr.Get("/auth/me", server.HandleMe)
		pr.Post("/auth/refresh", server.HandleRefresh)

		pr.Get("/notifications", server.HandleListNotifications)
		pr.Get("/notifications/unread/count", server.HandleUnreadCount)
		pr.Put("/notifications/{id}/read", server.HandleMarkNotificationRead)
		pr.Put("/notifications/mark-all-read", server.HandleMarkAllNotificationsRead)
		pr.With(middleware.RequireRole(model.RoleAdmin)).Post("/notifications", server.HandleCreateNotification)

		pr.Get("/chat/available-users", server.HandleAvailableUsers)
		pr.Get("/chat/conversations", server.HandleConversations)
		pr.Get("/chat/{userID}/messages", server.HandleListMessages)
		pr.With(limiter.SendMiddleware()).Post("/chat/send", server.HandleSendMessage)
		pr.Put("/chat/messages/{id}/read", server.HandleMarkMessageRead)
	})

	return r
}
