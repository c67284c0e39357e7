package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"orderengine/internal/models"
)

const namespace = "orderengine"

// CheckoutMetrics implements orders.Observer.
type CheckoutMetrics struct {
	OrdersCreated     prometheus.Counter
	ItemsSold         prometheus.Counter
	CheckoutFailures  *prometheus.CounterVec
	CheckoutDuration  *prometheus.HistogramVec
	CartClearFailures prometheus.Counter
}

func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	m := &CheckoutMetrics{
		OrdersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Total number of committed orders.",
		}),
		ItemsSold: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_units_total",
			Help:      "Total number of product units reserved by committed orders.",
		}),
		CheckoutFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_failures_total",
			Help:      "Checkout attempts that were rejected or failed, by error kind.",
		}, []string{"kind"}),
		CheckoutDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkout_duration_seconds",
			Help:      "Checkout latency including the order transaction.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"outcome"}),
		CartClearFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_clear_failures_total",
			Help:      "Post-commit cart clears that gave up.",
		}),
	}
	reg.MustRegister(m.OrdersCreated, m.ItemsSold, m.CheckoutFailures, m.CheckoutDuration, m.CartClearFailures)
	return m
}

func (m *CheckoutMetrics) OrderPlaced(order *models.Order, elapsed time.Duration) {
	m.OrdersCreated.Inc()
	units := 0
	for _, item := range order.Items {
		units += item.Quantity
	}
	m.ItemsSold.Add(float64(units))
	m.CheckoutDuration.WithLabelValues("success").Observe(elapsed.Seconds())
}

func (m *CheckoutMetrics) OrderFailed(kind string, elapsed time.Duration) {
	m.CheckoutFailures.WithLabelValues(kind).Inc()
	m.CheckoutDuration.WithLabelValues("failure").Observe(elapsed.Seconds())
}

func (m *CheckoutMetrics) CartClearFailed() {
	m.CartClearFailures.Inc()
}

type ServerMetrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
}

func NewServerMetrics(reg prometheus.Registerer) *ServerMetrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler"})

	reg.MustRegister(requests, latency)
	return &ServerMetrics{Requests: requests, LatencyMS: latency}
}

// Middleware records every request under its route template.
func (m *ServerMetrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		handler := c.FullPath()
		if handler == "" {
			handler = "unmatched"
		}
		m.Requests.WithLabelValues(handler, strconv.Itoa(c.Writer.Status())).Inc()
		m.LatencyMS.WithLabelValues(handler).Observe(float64(time.Since(start).Milliseconds()))
	}
}

func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
