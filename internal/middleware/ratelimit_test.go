package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/carelink/internal/model"
)

func newTestRateLimiter(t *testing.T, config RateLimiterConfig) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(config)
	t.Cleanup(rl.Stop)
	return rl
}

func authedRequest(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/notifications", nil)
	return req.WithContext(ContextWithUser(req.Context(), userID, model.RolePatient))
}

// TestRateLimiter_AllowsWithinBurst はバースト内のリクエストが通過することを検証する。
func TestRateLimiter_AllowsWithinBurst(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		GeneralRate:     rate.Limit(1),
		GeneralBurst:    3,
		SendRate:        rate.Limit(1),
		SendBurst:       3,
		CleanupInterval: time.Minute,
	})

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, authedRequest("u1"))
		if rec.Code != http.StatusOK {
			t.Errorf("request %d status = %d, want 200", i, rec.Code)
		}
	}
}

// TestRateLimiter_RejectsOverBurst はバースト超過が429とRetry-Afterで
// 拒否されることを検証する。
func TestRateLimiter_RejectsOverBurst(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		GeneralRate:     rate.Limit(0.01),
		GeneralBurst:    1,
		SendRate:        rate.Limit(0.01),
		SendBurst:       1,
		CleanupInterval: time.Minute,
	})

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest("u1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest("u1"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429 response should carry Retry-After header")
	}

	var body ErrorResponseBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if body.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("error code = %q, want RATE_LIMIT_EXCEEDED", body.Code)
	}
}

// TestRateLimiter_IsolatesUsers はユーザーごとに独立したリミッターが
// 使われることを検証する。
func TestRateLimiter_IsolatesUsers(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		GeneralRate:     rate.Limit(0.01),
		GeneralBurst:    1,
		SendRate:        rate.Limit(0.01),
		SendBurst:       1,
		CleanupInterval: time.Minute,
	})

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest("u1"))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest("u1"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("u1 second request status = %d, want 429", rec.Code)
	}

	// 別ユーザーは影響を受けない
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest("u2"))
	if rec.Code != http.StatusOK {
		t.Errorf("u2 first request status = %d, want 200", rec.Code)
	}

	if rl.GeneralLimiterCount() != 2 {
		t.Errorf("GeneralLimiterCount() = %d, want 2", rl.GeneralLimiterCount())
	}
}

// TestRateLimiter_SendLimiterIndependentFromGeneral は送信リミッターが
// API全般リミッターと独立に動作することを検証する。
func TestRateLimiter_SendLimiterIndependentFromGeneral(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		GeneralRate:     rate.Limit(0.01),
		GeneralBurst:    1,
		SendRate:        rate.Limit(0.01),
		SendBurst:       1,
		CleanupInterval: time.Minute,
	})

	general := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	send := rl.SendMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// API全般の枠を使い切る
	rec := httptest.NewRecorder()
	general.ServeHTTP(rec, authedRequest("u1"))
	rec = httptest.NewRecorder()
	general.ServeHTTP(rec, authedRequest("u1"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("general second request status = %d, want 429", rec.Code)
	}

	// 送信枠は独立して残っている
	rec = httptest.NewRecorder()
	send.ServeHTTP(rec, authedRequest("u1"))
	if rec.Code != http.StatusOK {
		t.Errorf("send request status = %d, want 200", rec.Code)
	}
}

// TestRateLimiter_UnauthenticatedRequest_Rejected は認証コンテキストのない
// リクエストが401で拒否されることを検証する。
func TestRateLimiter_UnauthenticatedRequest_Rejected(t *testing.T) {
	rl := newTestRateLimiter(t, NewRateLimiterConfig(60, 30))

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/notifications", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

// TestLimiterPool_Cleanup は期限切れエントリがクリーンアップされることを検証する。
func TestLimiterPool_Cleanup(t *testing.T) {
	pool := newLimiterPool(rate.Limit(1), 1)

	pool.get("u1")
	pool.get("u2")
	if pool.count() != 2 {
		t.Fatalf("count = %d, want 2", pool.count())
	}

	// TTL 0 で全エントリが期限切れになる
	time.Sleep(time.Millisecond)
	pool.cleanup(0)
	if pool.count() != 0 {
		t.Errorf("count after cleanup = %d, want 0", pool.count())
	}
}
