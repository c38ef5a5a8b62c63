package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation. A nil receiver is a no-op.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	enrollments     *prometheus.CounterVec
	invoices        *prometheus.CounterVec
	payments        prometheus.Counter
	paymentAmount   prometheus.Counter
	txConflicts     *prometheus.CounterVec
	billingDuration prometheus.Histogram
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	enrollments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_operations_total",
		Help: "Enrollment operations by kind and outcome",
	}, []string{"operation", "outcome"})

	invoices := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invoices_generated_total",
		Help: "Fees created by kind",
	}, []string{"kind"})

	payments := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payments_collected_total",
		Help: "Number of payment transactions recorded",
	})

	paymentAmount := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payments_collected_amount_total",
		Help: "Sum of collected payment amounts",
	})

	txConflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tx_conflicts_total",
		Help: "Transactions aborted by serialization failures or deadlocks",
	}, []string{"operation"})

	billingDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "billing_run_duration_seconds",
		Help:    "Duration of monthly billing runs",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheHits, cacheMisses,
		enrollments, invoices, payments, paymentAmount, txConflicts, billingDuration, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		enrollments:     enrollments,
		invoices:        invoices,
		payments:        payments,
		paymentAmount:   paymentAmount,
		txConflicts:     txConflicts,
		billingDuration: billingDuration,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		return
	}
	m.cacheMisses.Inc()
}

// RecordEnrollmentOperation counts an enrollment workflow by outcome code ("ok" on success).
func (m *MetricsService) RecordEnrollmentOperation(operation string, err error) {
	if m == nil {
		return
	}
	m.enrollments.WithLabelValues(operation, outcome(err)).Inc()
}

// RecordInvoice counts a created fee. kind is "initial" or "monthly".
func (m *MetricsService) RecordInvoice(kind string) {
	if m == nil {
		return
	}
	m.invoices.WithLabelValues(kind).Inc()
}

// RecordPayment counts a collected payment.
func (m *MetricsService) RecordPayment(amount float64) {
	if m == nil {
		return
	}
	m.payments.Inc()
	m.paymentAmount.Add(amount)
}

// RecordTxConflict counts an aborted transaction.
func (m *MetricsService) RecordTxConflict(operation string) {
	if m == nil {
		return
	}
	m.txConflicts.WithLabelValues(operation).Inc()
}

// ObserveBillingRun records the duration of a monthly run.
func (m *MetricsService) ObserveBillingRun(duration time.Duration) {
	if m == nil {
		return
	}
	m.billingDuration.Observe(duration.Seconds())
}
