package wallet

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector receives wallet operation telemetry.
type MetricsCollector interface {
	RecordOperationDuration(operation string, duration time.Duration)
	RecordOperationResult(operation, result string)
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
	RecordError(operation, kind string)
	RecordTransaction(txType string, amount float64)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector
type NoopMetricsCollector struct{}

func (n *NoopMetricsCollector) RecordOperationDuration(string, time.Duration) {}
func (n *NoopMetricsCollector) RecordOperationResult(string, string)          {}
func (n *NoopMetricsCollector) RecordCacheHit(string)                         {}
func (n *NoopMetricsCollector) RecordCacheMiss(string)                        {}
func (n *NoopMetricsCollector) RecordError(string, string)                    {}
func (n *NoopMetricsCollector) RecordTransaction(string, float64)             {}

// PrometheusCollector exports wallet metrics under the scoutpay_wallet
// namespace.
type PrometheusCollector struct {
	duration     *prometheus.HistogramVec
	results      *prometheus.CounterVec
	cache        *prometheus.CounterVec
	errors       *prometheus.CounterVec
	transactions *prometheus.CounterVec
	volume       *prometheus.CounterVec
}

func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)
	return &PrometheusCollector{
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scoutpay",
			Subsystem: "wallet",
			Name:      "operation_duration_seconds",
			Help:      "Duration of wallet operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		results: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scoutpay",
			Subsystem: "wallet",
			Name:      "operations_total",
			Help:      "Wallet operations by result.",
		}, []string{"operation", "result"}),
		cache: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scoutpay",
			Subsystem: "wallet",
			Name:      "cache_requests_total",
			Help:      "Wallet cache lookups by outcome.",
		}, []string{"cache", "outcome"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scoutpay",
			Subsystem: "wallet",
			Name:      "errors_total",
			Help:      "Wallet errors by operation and kind.",
		}, []string{"operation", "kind"}),
		transactions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scoutpay",
			Subsystem: "wallet",
			Name:      "transactions_total",
			Help:      "Completed ledger transactions by type.",
		}, []string{"type"}),
		volume: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scoutpay",
			Subsystem: "wallet",
			Name:      "transaction_volume",
			Help:      "Sum of completed transaction amounts by type, in major units.",
		}, []string{"type"}),
	}
}

func (p *PrometheusCollector) RecordOperationDuration(operation string, d time.Duration) {
	p.duration.WithLabelValues(operation).Observe(d.Seconds())
}

func (p *PrometheusCollector) RecordOperationResult(operation, result string) {
	p.results.WithLabelValues(operation, result).Inc()
}

func (p *PrometheusCollector) RecordCacheHit(cacheType string) {
	p.cache.WithLabelValues(cacheType, "hit").Inc()
}

func (p *PrometheusCollector) RecordCacheMiss(cacheType string) {
	p.cache.WithLabelValues(cacheType, "miss").Inc()
}

func (p *PrometheusCollector) RecordError(operation, kind string) {
	p.errors.WithLabelValues(operation, kind).Inc()
}

func (p *PrometheusCollector) RecordTransaction(txType string, amount float64) {
	p.transactions.WithLabelValues(txType).Inc()
	if amount > 0 {
		p.volume.WithLabelValues(txType).Add(amount)
	}
}
