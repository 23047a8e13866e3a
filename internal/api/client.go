// Package api はバックエンドRESTへのリクエストディスパッチを提供する。
// 全リクエストへのBearerトークン付与と、認証失敗時のセッション破棄の起点を担う。
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/carelink/internal/metrics"
	"github.com/hitoshi/carelink/internal/model"
)

// ErrUnauthorized は認証済みリクエストに対する401応答を示すセンチネル。
// このエラーが返るとき、OnAuthFailureフックは既に発火している。
var ErrUnauthorized = errors.New("unauthorized")

// TokenProvider は呼び出し時点のBearerトークンを供給する。
// トークンはローテーションやログアウトで変化するため、
// クライアント構築時に捕捉せず毎回読み直す。
type TokenProvider interface {
	// Token は現在のトークンを返す。匿名セッションでは空文字列。
	Token() string
}

// Client はバックエンドAPIのクライアント。
// 認証失敗（401）を一元的に検出し、フック経由でセッション破棄を起動する。
type Client struct {
	baseURL       string
	httpClient    *http.Client
	tokens        TokenProvider
	logger        *slog.Logger
	collector     metrics.MetricsCollector
	onAuthFailure func()
}

// NewClient はClientの新しいインスタンスを生成する。
// collectorがnilの場合はNopコレクターを使用する。
func NewClient(baseURL string, httpClient *http.Client, tokens TokenProvider, logger *slog.Logger, collector metrics.MetricsCollector) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		tokens:     tokens,
		logger:     logger,
		collector:  collector,
	}
}

// SetOnAuthFailure は認証失敗時に呼び出されるフックを設定する。
// 認証済みリクエストが401を受けたとき、1応答につき1回発火する。
func (c *Client) SetOnAuthFailure(fn func()) {
	c.onAuthFailure = fn
}

// AuthResponse は認証エンドポイントのレスポンスを表す。
type AuthResponse struct {
	AccessToken string     `json:"access_token"`
	UserID      string     `json:"user_id"`
	Role        model.Role `json:"role"`
	Email       string     `json:"email"`
}

// Profile は GET /auth/me のレスポンスを表す。
type Profile struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Email string     `json:"email"`
	Role  model.Role `json:"role"`
}

// LoginRequest はログインリクエストのボディ。
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignupRequest はサインアップリクエストのボディ。
type SignupRequest struct {
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Password string     `json:"password"`
	Role     model.Role `json:"role"`
}

// sendMessageRequest は POST /chat/send のボディ。
type sendMessageRequest struct {
	ReceiverID string `json:"receiver_id"`
	Message    string `json:"message"`
}

// Login は資格情報でログインし、アクセストークンを取得する。
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", LoginRequest{Email: email, Password: password}, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// Signup は新規アカウントを作成し、アクセストークンを取得する。
func (c *Client) Signup(ctx context.Context, req SignupRequest) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/signup", req, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me は現在のユーザーのフルプロフィールを取得する。
func (c *Client) Me(ctx context.Context) (*Profile, error) {
	var out Profile
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh はアクセストークンをローテーションする。
func (c *Client) Refresh(ctx context.Context) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListNotifications は直近の通知を最大limit件取得する。
func (c *Client) ListNotifications(ctx context.Context, limit int) ([]model.Notification, error) {
	var out []model.Notification
	path := fmt.Sprintf("/notifications?limit=%d", limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &out, true); err != nil {
		return nil, err
	}
	return out, nil
}

// UnreadCount はサーバー側の権威的な未読通知数を取得する。
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var out model.UnreadCount
	if err := c.do(ctx, http.MethodGet, "/notifications/unread/count", nil, &out, true); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// MarkNotificationRead は通知を既読にする。
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPut, "/notifications/"+id+"/read", nil, nil, true)
}

// MarkAllNotificationsRead は全通知を既読にする。
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPut, "/notifications/mark-all-read", nil, nil, true)
}

// ListAvailableUsers はチャット可能な相手の一覧を取得する。
// 会話履歴の有無は区別されない。
func (c *Client) ListAvailableUsers(ctx context.Context) ([]model.Correspondent, error) {
	var out []model.Correspondent
	if err := c.do(ctx, http.MethodGet, "/chat/available-users", nil, &out, true); err != nil {
		return nil, err
	}
	return out, nil
}

// ListConversations は会話履歴のある相手のサマリー一覧を取得する。
func (c *Client) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	var out []model.Conversation
	if err := c.do(ctx, http.MethodGet, "/chat/conversations", nil, &out, true); err != nil {
		return nil, err
	}
	return out, nil
}

// ListMessages は指定相手とのトランスクリプトを時系列昇順で最大limit件取得する。
func (c *Client) ListMessages(ctx context.Context, correspondentID string, limit int) ([]model.Message, error) {
	var out []model.Message
	path := fmt.Sprintf("/chat/%s/messages?limit=%d", correspondentID, limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &out, true); err != nil {
		return nil, err
	}
	return out, nil
}

// SendMessage はメッセージを送信し、サーバー確定済みのMessageを返す。
// IDとタイムスタンプはサーバーが採番する。
func (c *Client) SendMessage(ctx context.Context, receiverID, body string) (*model.Message, error) {
	var out model.Message
	if err := c.do(ctx, http.MethodPost, "/chat/send", sendMessageRequest{ReceiverID: receiverID, Message: body}, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkMessageRead はメッセージを既読にする。
func (c *Client) MarkMessageRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPut, "/chat/messages/"+id+"/read", nil, nil, true)
}

// do はHTTPリクエストを1回実行し、レスポンスをoutにデコードする。
// authedがtrueの場合はTokenProviderから読み直したBearerトークンを付与し、
// 401応答でOnAuthFailureフックを発火してErrUnauthorizedを返す。
// トランスポートエラーはリトライせず、networkカテゴリのエラーとして返す。
func (c *Client) do(ctx context.Context, method, path string, reqBody any, out any, authed bool) error {
	var bodyReader io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// トークンは構築時に捕捉せず、呼び出しの都度読み直す
	if authed {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.collector.RecordAPILatency(time.Since(start))
	if err != nil {
		c.logger.Error("RESTリクエストの送信に失敗しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return model.NewNetworkFailureError(err.Error())
	}
	defer resp.Body.Close()

	c.collector.RecordAPIRequest(resp.StatusCode)

	if resp.StatusCode == http.StatusUnauthorized {
		if authed {
			// 認証失敗は横断的な副作用: セッション破棄を一元的に起動する
			c.logger.Warn("認証失敗を検出しました。セッションを破棄します",
				slog.String("method", method),
				slog.String("path", path),
			)
			if c.onAuthFailure != nil {
				c.onAuthFailure()
			}
			return ErrUnauthorized
		}
		// 未認証エンドポイント（ログイン等）の401は資格情報の不一致
		return model.NewInvalidCredentialsError()
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.decodeErrorResponse(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
		}
	}

	return nil
}

// errorResponseBody はサーバーが返すエラーボディの候補フィールドをまとめた構造体。
// 統一フォーマット {code,message,category,action} を優先し、
// {error} / {message} のみのボディにもフォールバックする。
type errorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
	ErrorMsg string `json:"error"`
}

// decodeErrorResponse は4xx/5xx応答をAPIErrorにデコードする。
// ボディが解釈できない場合は汎用メッセージにフォールバックする。
func (c *Client) decodeErrorResponse(resp *http.Response) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return model.NewServerRejectionError(resp.StatusCode, "")
	}

	var body errorResponseBody
	if err := json.Unmarshal(data, &body); err != nil {
		return model.NewServerRejectionError(resp.StatusCode, "")
	}

	if body.Code != "" && body.Message != "" {
		return &model.APIError{
			Code:     body.Code,
			Message:  body.Message,
			Category: body.Category,
			Action:   body.Action,
		}
	}

	msg := body.Message
	if msg == "" {
		msg = body.ErrorMsg
	}
	return model.NewServerRejectionError(resp.StatusCode, msg)
}
