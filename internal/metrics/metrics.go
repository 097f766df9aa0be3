// Package metrics provides Prometheus metrics for the proxy.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for upstream and request latency. Health
// endpoints are expected to be fast, so the low end is denser.
var defaultBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Masking reasons used as label values.
const (
	ReasonUpstreamStatus   = "upstream_status"
	ReasonTransportFailure = "transport_failure"
)

// GraceClock is the part of the grace gate the metrics need.
type GraceClock interface {
	Expired(now time.Time) bool
	Remaining(now time.Time) time.Duration
}

// Metrics holds all Prometheus metric collectors for the proxy.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	UpstreamDuration  *prometheus.HistogramVec
	UpstreamResponses *prometheus.CounterVec
	TransportFailures prometheus.Counter
	MaskedResponses   *prometheus.CounterVec
}

// New creates a Metrics instance with a custom registry and all collectors
// registered. The grace gauges read the clock at scrape time.
func New(clock GraceClock) *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "graceful_hc_proxy_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "path_prefix"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "graceful_hc_proxy_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_prefix"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "graceful_hc_proxy_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "graceful_hc_proxy_upstream_request_duration_seconds",
			Help:    "Upstream call latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method"}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "graceful_hc_proxy_upstream_responses_total",
			Help: "Total upstream responses by method and status code.",
		}, []string{"method", "status_code"}),

		TransportFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "graceful_hc_proxy_upstream_transport_failures_total",
			Help: "Upstream calls that produced no response (refused, timed out, DNS, ...).",
		}),

		MaskedResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "graceful_hc_proxy_masked_responses_total",
			Help: "Failures turned into 200 responses because the grace period was in effect.",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.UpstreamDuration,
		m.UpstreamResponses,
		m.TransportFailures,
		m.MaskedResponses,
	)

	if clock != nil {
		reg.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "graceful_hc_proxy_grace_period_active",
				Help: "1 while upstream failures are being masked, 0 afterwards.",
			}, func() float64 {
				if clock.Expired(time.Now()) {
					return 0
				}
				return 1
			}),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "graceful_hc_proxy_grace_period_remaining_seconds",
				Help: "Seconds left until the grace period ends.",
			}, func() float64 {
				return clock.Remaining(time.Now()).Seconds()
			}),
		)
	}

	return m
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// NormalizeStatus returns the status code label. Codes outside the valid
// HTTP range collapse to "other".
func NormalizeStatus(code int) string {
	if code < 100 || code > 999 {
		return "other"
	}
	return strconv.Itoa(code)
}

// PathLabeler maps request paths to a bounded set of labels. The proxy is
// path-transparent, so anything that is not an admin route is "proxy".
type PathLabeler struct {
	admin map[string]bool
}

// NewPathLabeler returns a labeler that keeps the given admin paths as
// their own labels.
func NewPathLabeler(adminPaths ...string) *PathLabeler {
	admin := make(map[string]bool, len(adminPaths))
	for _, p := range adminPaths {
		if p != "" {
			admin[p] = true
		}
	}
	return &PathLabeler{admin: admin}
}

// NormalizePath returns a bounded path label for Prometheus metrics.
func (l *PathLabeler) NormalizePath(path string) string {
	if l != nil && l.admin[path] {
		return path
	}
	return "proxy"
}
