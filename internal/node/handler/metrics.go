package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	aquaRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aqua_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	aquaRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aqua_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	aquaWebhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aqua_webhook_deliveries_total",
		Help: "Total webhook delivery attempts by outcome.",
	}, []string{"status"})

	aquaRejectedRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aqua_rejected_requests_total",
		Help: "Total ledger requests rejected, by error kind.",
	}, []string{"kind"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		aquaRequestsTotal.WithLabelValues(method, path, status).Inc()
		aquaRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordWebhookDelivery records a webhook delivery attempt.
func RecordWebhookDelivery(success bool) {
	if success {
		aquaWebhookDeliveriesTotal.WithLabelValues("success").Inc()
	} else {
		aquaWebhookDeliveriesTotal.WithLabelValues("failure").Inc()
	}
}

// recordRejection records a request turned away by the ledger.
func recordRejection(kind string) {
	aquaRejectedRequestsTotal.WithLabelValues(kind).Inc()
}
