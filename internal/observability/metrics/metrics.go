package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes application-level instruments.
type Metrics struct {
	paymentEvents   *prometheus.CounterVec
	ledgerEntries   *prometheus.CounterVec
	quotaRejections *prometheus.CounterVec
	partiesCreated  *prometheus.CounterVec
}

// HTTPMetrics instruments inbound HTTP traffic.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewRegistry builds the process registry with runtime collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// New configures the domain metrics instruments.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		paymentEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "licensia_payment_events_total",
			Help: "Payment events processed, by result.",
		}, []string{"result"}),
		ledgerEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "licensia_ledger_entries_total",
			Help: "Ledger entries appended, by entry type.",
		}, []string{"entry_type"}),
		quotaRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "licensia_quota_rejections_total",
			Help: "Creation attempts rejected by quota, by kind.",
		}, []string{"kind"}),
		partiesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "licensia_parties_created_total",
			Help: "Parties created, by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.paymentEvents, m.ledgerEntries, m.quotaRejections, m.partiesCreated)
	return m
}

func (m *Metrics) RecordPaymentEvent(result string) {
	if m == nil {
		return
	}
	m.paymentEvents.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *Metrics) RecordLedgerEntry(entryType string) {
	if m == nil {
		return
	}
	m.ledgerEntries.WithLabelValues(normalizeLabel(entryType)).Inc()
}

func (m *Metrics) RecordQuotaRejection(kind string) {
	if m == nil {
		return
	}
	m.quotaRejections.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *Metrics) RecordPartyCreated(kind string) {
	if m == nil {
		return
	}
	m.partiesCreated.WithLabelValues(normalizeLabel(kind)).Inc()
}

// NewHTTPMetrics configures HTTP instruments.
func NewHTTPMetrics(reg *prometheus.Registry) *HTTPMetrics {
	h := &HTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "licensia_http_requests_total",
			Help: "HTTP requests served, by method, route and status.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "licensia_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(h.requests, h.duration)
	return h
}

// GinMiddleware records request counts and latency per route.
func GinMiddleware(h *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		h.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		h.duration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry for Prometheus scrapes.
func Handler(reg *prometheus.Registry) gin.HandlerFunc {
	h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

func normalizeLabel(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return "unknown"
	}
	return value
}
