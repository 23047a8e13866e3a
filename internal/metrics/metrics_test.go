package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TestCollector_RegistersAllMetrics は全メトリクスがレジストリに登録され、
// エンドポイント経由で公開されることを検証する。
func TestCollector_RegistersAllMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewCollector(registry)

	collector.RecordAPIRequest(200)
	collector.RecordAPILatency(120 * time.Millisecond)
	collector.RecordPushEvent("notification")
	collector.RecordReconnectAttempt()
	collector.RecordPollCycle()

	rec := httptest.NewRecorder()
	Handler(registry).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	body := rec.Body.String()
	wantMetrics := []string{
		"carelink_api_requests_total",
		"carelink_api_latency_seconds",
		"carelink_push_events_total",
		"carelink_channel_reconnect_attempts_total",
		"carelink_notification_poll_cycles_total",
	}
	for _, name := range wantMetrics {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output should contain %q", name)
		}
	}
}

// TestCollector_CountsByLabel はステータスコードとイベント種別のラベルで
// カウントが分かれることを検証する。
func TestCollector_CountsByLabel(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewCollector(registry)

	collector.RecordAPIRequest(200)
	collector.RecordAPIRequest(200)
	collector.RecordAPIRequest(401)
	collector.RecordPushEvent("notification")
	collector.RecordPushEvent("chat_message")

	rec := httptest.NewRecorder()
	Handler(registry).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	wantLines := []string{
		`carelink_api_requests_total{status_code="200"} 2`,
		`carelink_api_requests_total{status_code="401"} 1`,
		`carelink_push_events_total{type="notification"} 1`,
		`carelink_push_events_total{type="chat_message"} 1`,
	}
	for _, line := range wantLines {
		if !strings.Contains(body, line) {
			t.Errorf("metrics output should contain %q", line)
		}
	}
}

// TestNop_ImplementsInterface はNopがインターフェースを満たすことを検証する。
func TestNop_ImplementsInterface(t *testing.T) {
	var collector MetricsCollector = Nop{}

	// panicしないこと
	collector.RecordAPIRequest(500)
	collector.RecordAPILatency(time.Second)
	collector.RecordPushEvent("notification")
	collector.RecordReconnectAttempt()
	collector.RecordPollCycle()
}
