package config

import (
	"testing"
	"time"
)

// TestLoad_Defaults は環境変数未設定時にデフォルト値が使われることを検証する。
func TestLoad_Defaults(t *testing.T) {
	// 影響しうる環境変数をクリアする
	for _, key := range []string{
		"CARELINK_API_BASE_URL", "CARELINK_WS_BASE_URL",
		"CARELINK_POLL_INTERVAL", "CARELINK_RECONNECT_DELAY",
		"CARELINK_FEED_LIMIT", "CARELINK_TRANSCRIPT_LIMIT",
		"CARELINK_SERVER_PORT", "CARELINK_JWT_SECRET",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.APIBaseURL != "http://localhost:8080" {
		t.Errorf("APIBaseURL = %q, want default", cfg.APIBaseURL)
	}
	if cfg.WSBaseURL != "ws://localhost:8080" {
		t.Errorf("WSBaseURL = %q, want default", cfg.WSBaseURL)
	}
	if cfg.PollInterval != 30*time.Second {
		t.Errorf("PollInterval = %v, want 30s", cfg.PollInterval)
	}
	if cfg.ReconnectDelay != 3*time.Second {
		t.Errorf("ReconnectDelay = %v, want 3s", cfg.ReconnectDelay)
	}
	if cfg.FeedLimit != 20 {
		t.Errorf("FeedLimit = %d, want 20", cfg.FeedLimit)
	}
	if cfg.TranscriptLimit != 50 {
		t.Errorf("TranscriptLimit = %d, want 50", cfg.TranscriptLimit)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want 8080", cfg.ServerPort)
	}
}

// TestLoad_EnvOverrides は環境変数がデフォルトを上書きすることを検証する。
func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CARELINK_API_BASE_URL", "https://api.example.com")
	t.Setenv("CARELINK_POLL_INTERVAL", "10s")
	t.Setenv("CARELINK_FEED_LIMIT", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.APIBaseURL != "https://api.example.com" {
		t.Errorf("APIBaseURL = %q", cfg.APIBaseURL)
	}
	if cfg.PollInterval != 10*time.Second {
		t.Errorf("PollInterval = %v, want 10s", cfg.PollInterval)
	}
	if cfg.FeedLimit != 5 {
		t.Errorf("FeedLimit = %d, want 5", cfg.FeedLimit)
	}
}

// TestLoad_InvalidValues_FallBackToDefaults は不正な値がデフォルトにフォールバックすることを検証する。
func TestLoad_InvalidValues_FallBackToDefaults(t *testing.T) {
	t.Setenv("CARELINK_POLL_INTERVAL", "not-a-duration")
	t.Setenv("CARELINK_FEED_LIMIT", "abc")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.PollInterval != 30*time.Second {
		t.Errorf("PollInterval = %v, want default 30s", cfg.PollInterval)
	}
	if cfg.FeedLimit != 20 {
		t.Errorf("FeedLimit = %d, want default 20", cfg.FeedLimit)
	}
}

// TestValidateServe_RequiresJWTSecret はserveモードがJWTシークレットを必須とすることを検証する。
func TestValidateServe_RequiresJWTSecret(t *testing.T) {
	t.Setenv("CARELINK_JWT_SECRET", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if err := cfg.ValidateServe(); err == nil {
		t.Fatal("ValidateServe() should fail without CARELINK_JWT_SECRET")
	}

	t.Setenv("CARELINK_JWT_SECRET", "test-secret")
	cfg, _ = Load()
	if err := cfg.ValidateServe(); err != nil {
		t.Fatalf("ValidateServe() with secret returned error: %v", err)
	}
}
