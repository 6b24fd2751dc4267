package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Metrics owns a private registry so tests and multiple servers in one
// process never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	salesCompleted  *prometheus.CounterVec
	saleRevenue     prometheus.Counter
	commitFailures  prometheus.Counter
	cartRejections  *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		salesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kedaipos",
			Name:      "sales_completed_total",
			Help:      "Completed sales by payment method.",
		}, []string{"payment_method"}),
		saleRevenue: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kedaipos",
			Name:      "sale_revenue_total",
			Help:      "Sum of completed sale totals, tax inclusive.",
		}),
		commitFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kedaipos",
			Name:      "sale_commit_failures_total",
			Help:      "Sale commits rejected or failed by the store.",
		}),
		cartRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kedaipos",
			Name:      "cart_rejections_total",
			Help:      "Cart mutations refused, by reason.",
		}, []string{"reason"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kedaipos",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.salesCompleted, m.saleRevenue, m.commitFailures, m.cartRejections, m.requestDuration,
	)
	return m
}

func (m *Metrics) SaleCompleted(method string, total decimal.Decimal) {
	if m == nil {
		return
	}
	m.salesCompleted.WithLabelValues(method).Inc()
	m.saleRevenue.Add(total.InexactFloat64())
}

func (m *Metrics) CommitFailed() {
	if m == nil {
		return
	}
	m.commitFailures.Inc()
}

func (m *Metrics) CartRejected(reason string) {
	if m == nil {
		return
	}
	m.cartRejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveRequest(method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
