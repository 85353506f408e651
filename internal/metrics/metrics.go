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
// 認証フロー、プロフィールクライアント、Webフロント、クリーンアップワーカーから利用する。
type MetricsCollector interface {
	RecordAuthAttempt(operation, outcome string)
	RecordProfileRequest(operation, outcome string, duration time.Duration)
	RecordHTTPStatus(statusCode int)
	RecordHTTPLatency(duration time.Duration)
	RecordSessionsPurged(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authAttempts    *prometheus.CounterVec
	profileRequests *prometheus.CounterVec
	profileLatency  *prometheus.HistogramVec
	httpStatus      *prometheus.CounterVec
	httpLatency     prometheus.Histogram
	sessionsPurged  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uniconnect_auth_attempts_total",
			Help: "認証操作の結果別の合計数",
		}, []string{"operation", "outcome"}),
		profileRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uniconnect_profile_requests_total",
			Help: "プロフィールAPI呼び出しの結果別の合計数",
		}, []string{"operation", "outcome"}),
		profileLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "uniconnect_profile_request_latency_seconds",
			Help:    "プロフィールAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uniconnect_http_status_total",
			Help: "WebフロントのHTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "uniconnect_http_latency_seconds",
			Help:    "Webフロントのリクエスト処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		sessionsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "uniconnect_sessions_purged_total",
			Help: "削除された期限切れWebセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.authAttempts,
		c.profileRequests,
		c.profileLatency,
		c.httpStatus,
		c.httpLatency,
		c.sessionsPurged,
	)

	return c
}

// RecordAuthAttempt は認証操作の結果を記録する。outcomeは"success"またはエラーコード。
func (c *Collector) RecordAuthAttempt(operation, outcome string) {
	c.authAttempts.WithLabelValues(operation, outcome).Inc()
}

// RecordProfileRequest はプロフィールAPI呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordProfileRequest(operation, outcome string, duration time.Duration) {
	c.profileRequests.WithLabelValues(operation, outcome).Inc()
	c.profileLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordHTTPLatency はリクエスト処理時間を記録する。
func (c *Collector) RecordHTTPLatency(duration time.Duration) {
	c.httpLatency.Observe(duration.Seconds())
}

// RecordSessionsPurged は削除されたセッション数を記録する。
func (c *Collector) RecordSessionsPurged(count int) {
	c.sessionsPurged.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// 一部のコレクターが失敗しても、取得できたメトリクスは返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// SetupMetricsRoute はワーカー用のHTTPハンドラーを返す。
// /metrics でメトリクスを、/health でプロセスの生存を返す。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", Handler(gatherer))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	})
	return mux
}

var _ MetricsCollector = (*Collector)(nil)
