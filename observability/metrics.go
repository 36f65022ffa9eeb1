// Package observability holds the Prometheus instruments shared by the
// freedomain binaries.
package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "freedomain"

// VoucherMetrics records issuance outcomes and HTTP activity.
type VoucherMetrics struct {
	issuance  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	requests  *prometheus.CounterVec
	throttles prometheus.Counter
}

var (
	voucherMetricsOnce sync.Once
	voucherRegistry    *VoucherMetrics
)

// Voucher returns the process-wide metrics registered with the default
// Prometheus registerer.
func Voucher() *VoucherMetrics {
	voucherMetricsOnce.Do(func() {
		voucherRegistry = NewVoucherMetrics(prometheus.DefaultRegisterer)
	})
	return voucherRegistry
}

// NewVoucherMetrics builds and registers a fresh set of instruments. Tests pass
// a private registry.
func NewVoucherMetrics(reg prometheus.Registerer) *VoucherMetrics {
	m := &VoucherMetrics{
		issuance: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "voucher",
			Name:      "issuance_total",
			Help:      "Voucher requests segmented by outcome (issued or refusal kind).",
		}, []string{"outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "voucher",
			Name:      "issue_duration_seconds",
			Help:      "Time spent validating, signing and claiming a voucher.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests segmented by route and status code.",
		}, []string{"route", "status"}),
		throttles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "throttled_total",
			Help:      "Requests rejected by the per-client rate limiter.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.issuance, m.latency, m.requests, m.throttles)
	}
	return m
}

// ObserveIssue records one issuance attempt. An empty outcome counts as
// "issued".
func (m *VoucherMetrics) ObserveIssue(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "issued"
	}
	m.issuance.WithLabelValues(outcome).Inc()
	m.latency.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveRequest counts a served HTTP request.
func (m *VoucherMetrics) ObserveRequest(route string, status int) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// RecordThrottle counts a rate-limited request.
func (m *VoucherMetrics) RecordThrottle() {
	if m == nil {
		return
	}
	m.throttles.Inc()
}
