// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ApiClient、プッシュチャネル、ポーリングループから利用する。
type MetricsCollector interface {
	RecordAPIRequest(statusCode int)
	RecordAPILatency(duration time.Duration)
	RecordPushEvent(eventType string)
	RecordReconnectAttempt()
	RecordPollCycle()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	apiRequests       *prometheus.CounterVec
	apiLatency        prometheus.Histogram
	pushEvents        *prometheus.CounterVec
	reconnectAttempts prometheus.Counter
	pollCycles        prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carelink_api_requests_total",
			Help: "HTTPステータスコード別のRESTリクエスト数",
		}, []string{"status_code"}),
		apiLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "carelink_api_latency_seconds",
			Help:    "RESTリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		pushEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carelink_push_events_total",
			Help: "イベント種別ごとのプッシュ受信数",
		}, []string{"type"}),
		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "carelink_channel_reconnect_attempts_total",
			Help: "プッシュチャネルの再接続試行の合計数",
		}),
		pollCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "carelink_notification_poll_cycles_total",
			Help: "通知ポーリングサイクルの合計数",
		}),
	}

	reg.MustRegister(
		c.apiRequests,
		c.apiLatency,
		c.pushEvents,
		c.reconnectAttempts,
		c.pollCycles,
	)

	return c
}

// RecordAPIRequest はRESTリクエストの完了をステータスコード付きで記録する。
func (c *Collector) RecordAPIRequest(statusCode int) {
	c.apiRequests.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordAPILatency はRESTリクエストのレイテンシを記録する。
func (c *Collector) RecordAPILatency(duration time.Duration) {
	c.apiLatency.Observe(duration.Seconds())
}

// RecordPushEvent はプッシュイベントの受信を記録する。
func (c *Collector) RecordPushEvent(eventType string) {
	c.pushEvents.WithLabelValues(eventType).Inc()
}

// RecordReconnectAttempt はチャネル再接続の試行を記録する。
func (c *Collector) RecordReconnectAttempt() {
	c.reconnectAttempts.Inc()
}

// RecordPollCycle は通知ポーリングサイクルの実行を記録する。
func (c *Collector) RecordPollCycle() {
	c.pollCycles.Inc()
}

// Nop は何も記録しないMetricsCollector実装。
// テストおよびレジストリなしのワイヤリングに使用する。
type Nop struct{}

// RecordAPIRequest は何もしない。
func (Nop) RecordAPIRequest(statusCode int) {}

// RecordAPILatency は何もしない。
func (Nop) RecordAPILatency(duration time.Duration) {}

// RecordPushEvent は何もしない。
func (Nop) RecordPushEvent(eventType string) {}

// RecordReconnectAttempt は何もしない。
func (Nop) RecordReconnectAttempt() {}

// RecordPollCycle は何もしない。
func (Nop) RecordPollCycle() {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
