package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes prometheus instruments for the HTTP surface and the
// commission/ledger domain.
type Metrics struct {
	requestDuration *prometheus.HistogramVec
	requestsTotal   *prometheus.CounterVec

	DebitsTotal        *prometheus.CounterVec
	CommissionsCreated *prometheus.CounterVec
	CascadeDepth       prometheus.Histogram
}

// New registers all instruments on the default registry.
func New() (*Metrics, error) {
	m := &Metrics{
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_server_duration_seconds",
			Help:    "HTTP request duration by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_server_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"route", "status"}),
		DebitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "credit_debits_total",
			Help: "Credit debit attempts by outcome.",
		}, []string{"outcome"}),
		CommissionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "commissions_created_total",
			Help: "Commission records created by type.",
		}, []string{"type"}),
		CascadeDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "commission_cascade_depth",
			Help:    "Depth of each upline commission created by the cascade.",
			Buckets: []float64{0, 1, 2, 3, 4, 5},
		}),
	}

	for _, collector := range []prometheus.Collector{
		m.requestDuration,
		m.requestsTotal,
		m.DebitsTotal,
		m.CommissionsCreated,
		m.CascadeDepth,
	} {
		if err := prometheus.Register(collector); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				_ = already
				continue
			}
			return nil, err
		}
	}

	return m, nil
}

// GinMiddleware records request duration and counts.
func GinMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unknown"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.requestDuration.WithLabelValues(route, status).Observe(time.Since(start).Seconds())
		m.requestsTotal.WithLabelValues(route, status).Inc()
	}
}
