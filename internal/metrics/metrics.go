// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はゲートウェイのPrometheusメトリクスを収集する。
type Collector struct {
	registry *prometheus.Registry

	httpStatus      *prometheus.CounterVec
	validation      *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	storageOps      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、専用レジストリにメトリクスを登録する。
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edgegate_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		validation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edgegate_validation_total",
			Help: "クレデンシャル検証の結果別の回数",
		}, []string{"kind", "outcome"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "edgegate_upstream_latency_seconds",
			Help:    "上流呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"upstream"}),
		storageOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edgegate_storage_ops_total",
			Help: "ストレージ操作の種類別の回数",
		}, []string{"op"}),
	}

	c.registry.MustRegister(
		c.httpStatus,
		c.validation,
		c.upstreamLatency,
		c.storageOps,
	)

	return c
}

// RecordHTTPStatus はレスポンスのステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordValidation はクレデンシャル検証の結果を記録する。
// kindは "bearer" または "assertion"、outcomeは "ok" または "rejected"。
func (c *Collector) RecordValidation(kind, outcome string) {
	c.validation.WithLabelValues(kind, outcome).Inc()
}

// RecordUpstreamLatency は上流呼び出しのレイテンシを記録する。
// upstreamは "idp" または "storage"。
func (c *Collector) RecordUpstreamLatency(upstream string, duration time.Duration) {
	c.upstreamLatency.WithLabelValues(upstream).Observe(duration.Seconds())
}

// RecordStorageOp はストレージ操作を記録する。
// opは "list", "get", "head", "put", "delete" のいずれか。
func (c *Collector) RecordStorageOp(op string) {
	c.storageOps.WithLabelValues(op).Inc()
}

// Handler はメトリクス公開用のHTTPハンドラーを返す。
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Middleware はレスポンスステータスを記録するHTTPミドルウェアを返す。
func (c *Collector) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)
			c.RecordHTTPStatus(rec.statusCode)
		})
	}
}

// statusWriter はステータスコードを記録するResponseWriterラッパー。
type statusWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.written {
		sw.statusCode = code
		sw.written = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if !sw.written {
		sw.statusCode = http.StatusOK
		sw.written = true
	}
	return sw.ResponseWriter.Write(b)
}
