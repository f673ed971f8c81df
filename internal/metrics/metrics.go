// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 問い合わせ送信の結果ラベル
const (
	ContactAccepted = "accepted"
	ContactRejected = "rejected"
	ContactFailed   = "failed"
)

// 認証ゲートの判定ラベル
const (
	GateAdmitted        = "admitted"
	GateUnauthenticated = "unauthenticated"
	GateForbidden       = "forbidden"
	GateError           = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェアやハンドラー層から利用する。
type MetricsCollector interface {
	RecordContactSubmission(result string)
	RecordStoreWrite(collection, op string, err error)
	RecordGateDecision(decision string)
	SubscriberOpened(collection string)
	SubscriberClosed(collection string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	contactSubmissions *prometheus.CounterVec
	storeWrites        *prometheus.CounterVec
	gateDecisions      *prometheus.CounterVec
	liveSubscribers    *prometheus.GaugeVec
	httpStatus         *prometheus.CounterVec
	requestLatency     prometheus.Histogram
}

var _ MetricsCollector = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		contactSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eliteeight_contact_submissions_total",
			Help: "問い合わせフォーム送信の結果別件数",
		}, []string{"result"}),
		storeWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eliteeight_store_writes_total",
			Help: "ドキュメントストアへの書き込み件数",
		}, []string{"collection", "op", "result"}),
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eliteeight_auth_gate_decisions_total",
			Help: "管理画面認証ゲートの判定件数",
		}, []string{"decision"}),
		liveSubscribers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "eliteeight_live_subscribers",
			Help: "コレクション別のライブ購読数",
		}, []string{"collection"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eliteeight_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "eliteeight_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.contactSubmissions,
		c.storeWrites,
		c.gateDecisions,
		c.liveSubscribers,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordContactSubmission は問い合わせ送信の結果を記録する。
func (c *Collector) RecordContactSubmission(result string) {
	c.contactSubmissions.WithLabelValues(result).Inc()
}

// RecordStoreWrite はストア書き込みを記録する。errがnilでなければ失敗として数える。
func (c *Collector) RecordStoreWrite(collection, op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.storeWrites.WithLabelValues(collection, op, result).Inc()
}

// RecordGateDecision は認証ゲートの判定を記録する。
func (c *Collector) RecordGateDecision(decision string) {
	c.gateDecisions.WithLabelValues(decision).Inc()
}

// SubscriberOpened はライブ購読の開始を記録する。
func (c *Collector) SubscriberOpened(collection string) {
	c.liveSubscribers.WithLabelValues(collection).Inc()
}

// SubscriberClosed はライブ購読の終了を記録する。
func (c *Collector) SubscriberClosed(collection string) {
	c.liveSubscribers.WithLabelValues(collection).Dec()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストの処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// Nop は何も記録しないMetricsCollector。メトリクスを無効にする場合やテストで使用する。
type Nop struct{}

func (Nop) RecordContactSubmission(string)         {}
func (Nop) RecordStoreWrite(string, string, error) {}
func (Nop) RecordGateDecision(string)              {}
func (Nop) SubscriberOpened(string)                {}
func (Nop) SubscriberClosed(string)                {}
func (Nop) RecordHTTPStatus(int)                   {}
func (Nop) RecordRequestLatency(time.Duration)     {}
