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
// ワーカーやAPIクライアント層から利用する。
type MetricsCollector interface {
	RecordScanSuccess(email string)
	RecordScanFailure(email string, reason string)
	RecordHTTPStatus(statusCode int)
	RecordGateClosure()
	RecordScanLatency(duration time.Duration)
	RecordTracksCollected(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	scanSuccess     prometheus.Counter
	scanFail        prometheus.Counter
	httpStatus      *prometheus.CounterVec
	gateClosures    prometheus.Counter
	scanLatency     prometheus.Histogram
	tracksCollected prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		scanSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xomify_scan_success_total",
			Help: "ユーザースキャン成功の合計数",
		}),
		scanFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xomify_scan_fail_total",
			Help: "ユーザースキャン失敗の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xomify_upstream_http_status_total",
			Help: "上流APIのHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		gateClosures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xomify_rate_gate_closures_total",
			Help: "レートゲート閉鎖の合計数",
		}),
		scanLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "xomify_scan_latency_seconds",
			Help:    "ユーザースキャンのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		tracksCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xomify_tracks_collected_total",
			Help: "収集されたトラックの合計数",
		}),
	}

	reg.MustRegister(
		c.scanSuccess,
		c.scanFail,
		c.httpStatus,
		c.gateClosures,
		c.scanLatency,
		c.tracksCollected,
	)

	return c
}

// RecordScanSuccess はスキャン成功を記録する。
func (c *Collector) RecordScanSuccess(email string) {
	c.scanSuccess.Inc()
}

// RecordScanFailure はスキャン失敗を記録する。
func (c *Collector) RecordScanFailure(email string, reason string) {
	c.scanFail.Inc()
}

// RecordHTTPStatus は上流APIのHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordGateClosure はレートゲートの閉鎖を記録する。
func (c *Collector) RecordGateClosure() {
	c.gateClosures.Inc()
}

// RecordScanLatency はスキャンのレイテンシを記録する。
func (c *Collector) RecordScanLatency(duration time.Duration) {
	c.scanLatency.Observe(duration.Seconds())
}

// RecordTracksCollected は収集されたトラック数を記録する。
func (c *Collector) RecordTracksCollected(count int) {
	c.tracksCollected.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// Noop は何も記録しないMetricsCollector実装。テスト用。
type Noop struct{}

// RecordScanSuccess は何もしない。
func (Noop) RecordScanSuccess(email string) {}

// RecordScanFailure は何もしない。
func (Noop) RecordScanFailure(email string, reason string) {}

// RecordHTTPStatus は何もしない。
func (Noop) RecordHTTPStatus(statusCode int) {}

// RecordGateClosure は何もしない。
func (Noop) RecordGateClosure() {}

// RecordScanLatency は何もしない。
func (Noop) RecordScanLatency(duration time.Duration) {}

// RecordTracksCollected は何もしない。
func (Noop) RecordTracksCollected(count int) {}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Noop{}
)
