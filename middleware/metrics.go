package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	checkoutTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_transitions_total",
			Help: "Total number of checkout modal state transitions",
		},
		[]string{"from", "to"},
	)

	fieldValidationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_field_validation_failures_total",
			Help: "Total number of rejected checkout fields",
		},
		[]string{"field"},
	)

	paymentOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_handoff_outcomes_total",
			Help: "Total number of payment handoffs by outcome",
		},
		[]string{"outcome"},
	)

	notificationsShownTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_shown_total",
			Help: "Total number of notifications shown",
		},
		[]string{"kind"},
	)

	notificationsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notifications_active",
			Help: "Number of notifications currently on screen",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(checkoutTransitionsTotal)
	prometheus.MustRegister(fieldValidationFailuresTotal)
	prometheus.MustRegister(paymentOutcomesTotal)
	prometheus.MustRegister(notificationsShownTotal)
	prometheus.MustRegister(notificationsActive)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

func RecordCheckoutTransition(from, to string) {
	checkoutTransitionsTotal.WithLabelValues(from, to).Inc()
}

func RecordFieldValidationFailure(field string) {
	fieldValidationFailuresTotal.WithLabelValues(field).Inc()
}

func RecordPaymentOutcome(outcome string) {
	paymentOutcomesTotal.WithLabelValues(outcome).Inc()
}

func RecordNotificationShown(kind string) {
	notificationsShownTotal.WithLabelValues(kind).Inc()
	notificationsActive.Inc()
}

func RecordNotificationRemoved() {
	notificationsActive.Dec()
}
