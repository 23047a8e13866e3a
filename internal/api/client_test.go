package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/carelink/internal/model"
)

// --- モック ---

type mockTokenProvider struct {
	tokenFn func() string
}

var _ TokenProvider = (*mockTokenProvider)(nil)

func (m *mockTokenProvider) Token() string {
	if m.tokenFn != nil {
		return m.tokenFn()
	}
	return ""
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestClient(serverURL, token string) *Client {
	return NewClient(serverURL, nil, &mockTokenProvider{tokenFn: func() string { return token }}, testLogger(), nil)
}

// --- テスト ---

// TestClient_AttachesFreshBearerToken は認証済みリクエストに毎回TokenProviderから
// 読み直したトークンが付与されることを検証する。
func TestClient_AttachesFreshBearerToken(t *testing.T) {
	var gotHeaders []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = append(gotHeaders, r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(Profile{ID: "u1"})
	}))
	defer server.Close()

	// トークンはローテーションで変化する
	current := "token-1"
	client := NewClient(server.URL, nil, &mockTokenProvider{tokenFn: func() string { return current }}, testLogger(), nil)

	if _, err := client.Me(context.Background()); err != nil {
		t.Fatalf("Me() returned error: %v", err)
	}
	current = "token-2"
	if _, err := client.Me(context.Background()); err != nil {
		t.Fatalf("Me() returned error: %v", err)
	}

	want := []string{"Bearer token-1", "Bearer token-2"}
	for i, header := range gotHeaders {
		if header != want[i] {
			t.Errorf("request %d Authorization = %q, want %q", i, header, want[i])
		}
	}
}

// TestClient_AuthedRequest401_FiresHookOnce は認証済みリクエストの401で
// OnAuthFailureフックが1回発火し、ErrUnauthorizedが返ることを検証する。
func TestClient_AuthedRequest401_FiresHookOnce(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(server.URL, "stale-token")
	hookCalls := 0
	client.SetOnAuthFailure(func() { hookCalls++ })

	_, err := client.Me(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Me() error = %v, want ErrUnauthorized", err)
	}
	if hookCalls != 1 {
		t.Errorf("hook calls = %d, want 1", hookCalls)
	}
}

// TestClient_Login401_DoesNotFireHook は未認証エンドポイントの401が
// セッション破棄ではなく資格情報エラーとして扱われることを検証する。
func TestClient_Login401_DoesNotFireHook(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(server.URL, "")
	hookCalls := 0
	client.SetOnAuthFailure(func() { hookCalls++ })

	_, err := client.Login(context.Background(), "taro@example.com", "wrong-password")
	if err == nil {
		t.Fatal("Login() should fail with 401 response")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Login() error = %T, want *model.APIError", err)
	}
	if apiErr.Code != "INVALID_CREDENTIALS" {
		t.Errorf("error code = %q, want INVALID_CREDENTIALS", apiErr.Code)
	}
	if hookCalls != 0 {
		t.Errorf("hook calls = %d, want 0 for login failure", hookCalls)
	}
}

// TestClient_DecodesUnifiedErrorFormat はサーバーの統一エラーフォーマットが
// そのままAPIErrorにデコードされることを検証する。
func TestClient_DecodesUnifiedErrorFormat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{
			"code":     "DUPLICATE_EMAIL",
			"message":  "このメールアドレスは既に登録されています。",
			"category": "validation",
			"action":   "別のメールアドレスを使用してください。",
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL, "")
	_, err := client.Signup(context.Background(), SignupRequest{Email: "taro@example.com"})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Signup() error = %T, want *model.APIError", err)
	}
	if apiErr.Code != "DUPLICATE_EMAIL" || apiErr.Category != "validation" {
		t.Errorf("decoded error = %+v", apiErr)
	}
}

// TestClient_FallsBackToLegacyErrorBody は{error}のみのボディが
// サーバー拒否エラーとして扱われることを検証する。
func TestClient_FallsBackToLegacyErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "something went wrong"})
	}))
	defer server.Close()

	client := newTestClient(server.URL, "token")
	err := client.MarkNotificationRead(context.Background(), "n1")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %T, want *model.APIError", err)
	}
	if apiErr.Code != "SERVER_REJECTION" {
		t.Errorf("error code = %q, want SERVER_REJECTION", apiErr.Code)
	}
}

// TestClient_TransportError_ReturnsNetworkFailure は到達不能なサーバーへの
// リクエストがnetworkカテゴリのエラーになることを検証する。
func TestClient_TransportError_ReturnsNetworkFailure(t *testing.T) {
	// 即座にクローズしてEconnrefusedにする
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := newTestClient(server.URL, "token")
	_, err := client.ListNotifications(context.Background(), 20)

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %T, want *model.APIError", err)
	}
	if apiErr.Category != "network" {
		t.Errorf("error category = %q, want network", apiErr.Category)
	}
}

// TestClient_SendMessage_PostsExpectedBody は送信リクエストのボディ形式を検証する。
func TestClient_SendMessage_PostsExpectedBody(t *testing.T) {
	var got sendMessageRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat/send" {
			t.Errorf("request = %s %s, want POST /chat/send", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(model.Message{ID: "m1", SenderID: "u1", ReceiverID: "u2", Body: "こんにちは"})
	}))
	defer server.Close()

	client := newTestClient(server.URL, "token")
	msg, err := client.SendMessage(context.Background(), "u2", "こんにちは")
	if err != nil {
		t.Fatalf("SendMessage() returned error: %v", err)
	}

	if got.ReceiverID != "u2" || got.Message != "こんにちは" {
		t.Errorf("request body = %+v", got)
	}
	if msg.ID != "m1" {
		t.Errorf("message ID = %q, want server-assigned m1", msg.ID)
	}
}

// TestClient_ListMessages_UsesCorrespondentPath はトランスクリプト取得のパスと
// limitパラメータを検証する。
func TestClient_ListMessages_UsesCorrespondentPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/u9/messages" {
			t.Errorf("path = %q, want /chat/u9/messages", r.URL.Path)
		}
		if r.URL.Query().Get("limit") != "50" {
			t.Errorf("limit = %q, want 50", r.URL.Query().Get("limit"))
		}
		json.NewEncoder(w).Encode([]model.Message{})
	}))
	defer server.Close()

	client := newTestClient(server.URL, "token")
	if _, err := client.ListMessages(context.Background(), "u9", 50); err != nil {
		t.Fatalf("ListMessages() returned error: %v", err)
	}
}
