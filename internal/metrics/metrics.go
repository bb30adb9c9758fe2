// Package metrics exposes Prometheus collectors for the bank.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "blxbank",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "blxbank",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "blxbank",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	ledgerOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "blxbank",
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Total number of ledger operations by outcome.",
		},
		[]string{"op", "result"},
	)

	pooledBalance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "blxbank",
			Subsystem: "ledger",
			Name:      "pooled_balance",
			Help:      "Bookkeeping mirror of the custodied pool balance.",
		},
	)

	activeAccounts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "blxbank",
			Subsystem: "ledger",
			Name:      "active_accounts",
			Help:      "Number of active bank accounts.",
		},
	)

	reconcileDrift = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "blxbank",
			Subsystem: "custody",
			Name:      "reconcile_drift",
			Help:      "Signed difference between pooled balance and custodied total at the last sweep.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		ledgerOperations,
		pooledBalance,
		activeAccounts,
		reconcileDrift,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordOperation counts a ledger operation and its outcome.
func RecordOperation(op string, err error) {
	result := "ok"
	if err != nil {
		result = errorResult(err)
	}
	ledgerOperations.WithLabelValues(op, result).Inc()
}

func errorResult(err error) string {
	for unwrapped := err; unwrapped != nil; unwrapped = errors.Unwrap(unwrapped) {
		err = unwrapped
	}
	return strings.ReplaceAll(err.Error(), " ", "_")
}

// SetPooledBalance updates the pooled-balance gauge.
func SetPooledBalance(v uint64) {
	pooledBalance.Set(float64(v))
}

// SetActiveAccounts updates the active-accounts gauge.
func SetActiveAccounts(v uint64) {
	activeAccounts.Set(float64(v))
}

// SetReconcileDrift records the drift observed by the reconciliation sweep.
func SetReconcileDrift(pooled, custodied uint64) {
	reconcileDrift.Set(float64(pooled) - float64(custodied))
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses account keys and lock indices so label cardinality
// stays bounded.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "accounts" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/accounts"
	}
	if len(parts) == 2 {
		return "/accounts/:key"
	}
	resource := parts[2]
	if len(parts) == 3 {
		return "/accounts/:key/" + resource
	}
	if resource == "locks" {
		if len(parts) >= 5 {
			return "/accounts/:key/locks/:index/" + parts[4]
		}
		return "/accounts/:key/locks/:index"
	}
	return "/accounts/:key/" + resource
}
