// Package metrics provides Prometheus metrics collection for the SAML IdP service
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics
var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "samlidp",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "samlidp",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"service", "method", "path"},
	)

	httpRequestsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "samlidp",
			Name:      "http_requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
		[]string{"service"},
	)
)

// SAML protocol metrics
var (
	artifactResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "samlidp",
			Name:      "artifact_resolutions_total",
			Help:      "Total number of artifact resolution requests",
		},
		[]string{"outcome"}, // outcome: redeemed, miss, denied, rejected, error
	)

	artifactsIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "samlidp",
			Name:      "artifacts_issued_total",
			Help:      "Total number of artifacts issued by the SSO path",
		},
	)

	ssoRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "samlidp",
			Name:      "sso_requests_total",
			Help:      "Total number of inbound SSO authentication requests",
		},
		[]string{"binding", "outcome"}, // binding: redirect, post, none; outcome: issued, login_redirect, unknown_sp, denied, rejected, error
	)

	artifactStoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "samlidp",
			Name:      "artifact_store_duration_seconds",
			Help:      "Artifact store operation duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		},
		[]string{"backend", "operation"}, // operation: put, pull
	)
)

// Middleware returns a Gin middleware that records HTTP metrics.
// serviceName is used as the "service" label on all metrics.
func Middleware(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}

		// Skip metrics endpoint itself to avoid recursion
		if path == "/metrics" {
			c.Next()
			return
		}

		httpRequestsInFlight.WithLabelValues(serviceName).Inc()
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method

		httpRequestsTotal.WithLabelValues(serviceName, method, path, status).Inc()
		httpRequestDuration.WithLabelValues(serviceName, method, path).Observe(duration)
		httpRequestsInFlight.WithLabelValues(serviceName).Dec()
	}
}

// Handler returns a gin.HandlerFunc that serves Prometheus metrics.
// Register this on the "/metrics" route.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordArtifactResolution records an artifact resolution attempt by outcome
func RecordArtifactResolution(outcome string) {
	artifactResolutionsTotal.WithLabelValues(outcome).Inc()
}

// RecordArtifactIssued records an artifact issued by the SSO path
func RecordArtifactIssued() {
	artifactsIssuedTotal.Inc()
}

// RecordSSORequest records an inbound SSO request by binding and outcome
func RecordSSORequest(binding, outcome string) {
	ssoRequestsTotal.WithLabelValues(binding, outcome).Inc()
}

// ObserveArtifactStore records an artifact store operation duration
func ObserveArtifactStore(backend, operation string, d time.Duration) {
	artifactStoreDuration.WithLabelValues(backend, operation).Observe(d.Seconds())
}
