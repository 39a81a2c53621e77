// Prometheus metrics

package main

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Issuer metrics
type IssuerMetrics struct {
	// Registry of the collectors
	registry *prometheus.Registry

	// Issued tokens, by service and role
	tokensIssued *prometheus.CounterVec

	// Rejected requests, by error code
	requestsRejected *prometheus.CounterVec

	// Time to build the tokens of a request
	issueDuration prometheus.Histogram
}

// Creates new instance of IssuerMetrics
func NewIssuerMetrics() *IssuerMetrics {
	m := &IssuerMetrics{
		registry: prometheus.NewRegistry(),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "channel_tokens_issued_total",
			Help: "Number of issued tokens.",
		}, []string{"service", "role"}),
		requestsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "channel_token_requests_rejected_total",
			Help: "Number of rejected token requests.",
		}, []string{"code"}),
		issueDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "channel_token_issue_duration_seconds",
			Help:    "Time spent building the tokens of a request.",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 12),
		}),
	}

	m.registry.MustRegister(m.tokensIssued, m.requestsRejected, m.issueDuration)

	return m
}

// Counts the tokens of a successful request
func (m *IssuerMetrics) ObserveIssued(role string, duration time.Duration) {
	m.tokensIssued.WithLabelValues("rtc", role).Inc()
	m.tokensIssued.WithLabelValues("rtm", role).Inc()
	m.issueDuration.Observe(duration.Seconds())
}

// Counts a rejected request
func (m *IssuerMetrics) ObserveRejected(code string) {
	m.requestsRejected.WithLabelValues(code).Inc()
}

// Gets the HTTP handler to expose the metrics
func (m *IssuerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
