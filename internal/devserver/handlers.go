package devserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/carelink/internal/middleware"
	"github.com/hitoshi/carelink/internal/model"
	"github.com/hitoshi/carelink/internal/security"
)

// Server は開発サーバーのHTTPハンドラー群を束ねる。
type Server struct {
	store     *Store
	tokens    *TokenService
	hub       *Hub
	sanitizer security.MessageSanitizerService
	logger    *slog.Logger
}

// NewServer はServerを生成する。
func NewServer(store *Store, tokens *TokenService, hub *Hub, sanitizer security.MessageSanitizerService, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:     store,
		tokens:    tokens,
		hub:       hub,
		sanitizer: sanitizer,
		logger:    logger,
	}
}

type authResponse struct {
	AccessToken string     `json:"access_token"`
	UserID      string     `json:"user_id"`
	Role        model.Role `json:"role"`
	Email       string     `json:"email"`
}

type signupRequest struct {
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Password string     `json:"password"`
	Role     model.Role `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type profileResponse struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Email string     `json:"email"`
	Role  model.Role `json:"role"`
}

type sendMessageRequest struct {
	ReceiverID string `json:"receiver_id"`
	Message    string `json:"message"`
}

type createNotificationRequest struct {
	UserID string `json:"user_id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// HandleSignup は POST /auth/signup を処理する。
func (s *Server) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "リクエストボディを解釈できません。")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" || req.Email == "" || req.Password == "" {
		writeValidationError(w, "名前・メールアドレス・パスワードは必須です。")
		return
	}
	if !req.Role.IsValid() {
		writeValidationError(w, "不明なロールが指定されました。")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		middleware.WriteInternalServerError(w)
		return
	}

	user, ok := s.store.CreateUser(req.Name, req.Email, hash, req.Role)
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusConflict, model.NewDuplicateEmailError(req.Email))
		return
	}

	s.logger.Info("ユーザーを登録しました",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)))
	s.writeAuthResponse(w, user)
}

// HandleLogin は POST /auth/login を処理する。
// 未知のメールアドレスとパスワード不一致は同じ401として扱う。
func (s *Server) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "リクエストボディを解釈できません。")
		return
	}

	user := s.store.FindUserByEmail(strings.TrimSpace(req.Email))
	if user == nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidCredentialsError())
		return
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(req.Password)); err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidCredentialsError())
		return
	}

	s.logger.Info("ログインしました", slog.String("user_id", user.ID))
	s.writeAuthResponse(w, user)
}

// HandleMe は GET /auth/me を処理する。
func (s *Server) HandleMe(w http.ResponseWriter, r *http.Request) {
	user := s.currentUser(w, r)
	if user == nil {
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
		Role:  user.Role,
	})
}

// HandleRefresh は POST /auth/refresh を処理する。
// 現在のトークンの持ち主へ新しいトークンを発行する。
func (s *Server) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	user := s.currentUser(w, r)
	if user == nil {
		return
	}
	s.writeAuthResponse(w, user)
}

// HandleListNotifications は GET /notifications を処理する。
func (s *Server) HandleListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	limit := queryLimit(r, 20)
	writeJSON(w, http.StatusOK, s.store.ListNotifications(userID, limit))
}

// HandleUnreadCount は GET /notifications/unread/count を処理する。
func (s *Server) HandleUnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	writeJSON(w, http.StatusOK, model.UnreadCount{Count: s.store.UnreadNotificationCount(userID)})
}

// HandleMarkNotificationRead は PUT /notifications/{id}/read を処理する。
func (s *Server) HandleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	id := chi.URLParam(r, "id")
	if !s.store.MarkNotificationRead(userID, id) {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewNotFoundError("通知"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleMarkAllNotificationsRead は PUT /notifications/mark-all-read を処理する。
func (s *Server) HandleMarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	s.store.MarkAllNotificationsRead(userID)
	w.WriteHeader(http.StatusNoContent)
}

// HandleCreateNotification は POST /notifications を処理する（管理者専用）。
// 通知を作成し、対象ユーザーが接続中であればプッシュ配送する。
func (s *Server) HandleCreateNotification(w http.ResponseWriter, r *http.Request) {
	var req createNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "リクエストボディを解釈できません。")
		return
	}
	if req.UserID == "" || strings.TrimSpace(req.Title) == "" {
		writeValidationError(w, "user_idとtitleは必須です。")
		return
	}
	if s.store.FindUserByID(req.UserID) == nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewNotFoundError("ユーザー"))
		return
	}

	n := s.store.AddNotification(req.UserID, strings.TrimSpace(req.Title), strings.TrimSpace(req.Body))
	s.hub.Push(req.UserID, model.EventNotification, n)
	writeJSON(w, http.StatusCreated, n)
}

// HandleAvailableUsers は GET /chat/available-users を処理する。
func (s *Server) HandleAvailableUsers(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	writeJSON(w, http.StatusOK, s.store.ListUsersExcept(userID))
}

// HandleConversations は GET /chat/conversations を処理する。
func (s *Server) HandleConversations(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	writeJSON(w, http.StatusOK, s.store.Conversations(userID))
}

// HandleListMessages は GET /chat/{userID}/messages を処理する。
// 指定相手とのトランスクリプトを時系列昇順で返す。
func (s *Server) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	correspondentID := chi.URLParam(r, "userID")
	limit := queryLimit(r, 50)
	messages := s.store.ListMessagesBetween(userID, correspondentID, limit)
	if messages == nil {
		messages = []model.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

// HandleSendMessage は POST /chat/send を処理する。
// 本文はHTMLを除去した上で保存され、受信者にのみプッシュ配送される。
// 送信者自身へのエコーは行わない。送信者はHTTPレスポンスで確定メッセージを受け取る。
func (s *Server) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "リクエストボディを解釈できません。")
		return
	}

	body := strings.TrimSpace(s.sanitizer.Sanitize(req.Message))
	if body == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewEmptyMessageError())
		return
	}
	if req.ReceiverID == userID || s.store.FindUserByID(req.ReceiverID) == nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewUnknownCorrespondentError(req.ReceiverID))
		return
	}

	msg := s.store.AddMessage(userID, req.ReceiverID, body)
	s.hub.Push(req.ReceiverID, model.EventChatMessage, msg)
	writeJSON(w, http.StatusCreated, msg)
}

// HandleMarkMessageRead は PUT /chat/messages/{id}/read を処理する。
// 受信者本人による既読化のみ受け付ける。
func (s *Server) HandleMarkMessageRead(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	id := chi.URLParam(r, "id")
	if !s.store.MarkMessageRead(userID, id) {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewNotFoundError("メッセージ"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleHealth は GET /health を処理する。
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// currentUser はコンテキストの認証済みユーザーを取得する。
// 取得できない場合はエラーレスポンスを書き込んでnilを返す。
func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) *User {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return nil
	}
	user := s.store.FindUserByID(userID)
	if user == nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return nil
	}
	return user
}

// writeAuthResponse はトークンを発行して認証レスポンスを書き込む。
func (s *Server) writeAuthResponse(w http.ResponseWriter, user *User) {
	token, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		s.logger.Error("トークン発行に失敗しました", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{
		AccessToken: token,
		UserID:      user.ID,
		Role:        user.Role,
		Email:       user.Email,
	})
}

// queryLimit はクエリパラメータlimitを読み取る。不正値は既定値にフォールバック。
func queryLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return def
	}
	return limit
}

// writeValidationError は入力検証エラーのレスポンスを書き込む。
func writeValidationError(w http.ResponseWriter, message string) {
	middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "VALIDATION_ERROR",
		Message:  message,
		Category: "validation",
		Action:   "入力内容を確認してください。",
	})
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("レスポンスのエンコードに失敗しました", slog.String("error", err.Error()))
	}
}
