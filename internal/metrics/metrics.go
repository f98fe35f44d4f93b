package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks total HTTP requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "endpoint", "status"},
	)

	// RequestDuration tracks HTTP request duration
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "endpoint"},
	)

	// AuthorizationsTotal tracks card authorizations by outcome
	AuthorizationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_authorizations_total",
			Help: "Total number of authorization attempts",
		},
		[]string{"method", "result"},
	)

	// CapturesTotal tracks capture attempts by outcome and completion
	CapturesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_captures_total",
			Help: "Total number of capture attempts",
		},
		[]string{"method", "result", "completion"},
	)

	// PaymentAmount tracks authorized amounts
	PaymentAmount = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "payment_amount_dollars",
			Help:    "Authorized payment amounts in dollars",
			Buckets: []float64{10, 50, 100, 500, 1000, 5000},
		},
	)

	// PendingPayments tracks payments still awaiting full capture
	PendingPayments = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "payment_pending_captures",
			Help: "Number of payments in a non-complete state at the last sweep",
		},
	)

	// SweepDuration tracks capture sweep cycle duration
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "payment_capture_sweep_duration_seconds",
			Help:    "Duration of one capture sweep cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// CircuitBreakerState tracks gateway circuit breaker state (0=closed, 1=open, 2=half-open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_circuit_breaker_state",
			Help: "Gateway circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"gateway"},
	)

	// GatewayFailures tracks failed gateway calls
	GatewayFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_failures_total",
			Help: "Total number of failed gateway calls",
		},
		[]string{"gateway", "operation"},
	)
)

// PrometheusMiddleware creates a Gin middleware for automatic metrics collection
func PrometheusMiddleware(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		RequestsTotal.WithLabelValues(
			serviceName,
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()

		RequestDuration.WithLabelValues(
			serviceName,
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}
