package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector of the service. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	LedgerOperations      *prometheus.CounterVec
	LedgerDuration        *prometheus.HistogramVec
	WithdrawalTransitions *prometheus.CounterVec
	PayoutCalls           *prometheus.CounterVec
	EventsPublished       *prometheus.CounterVec
	CacheLookups          *prometheus.CounterVec
	HTTPRequests          *prometheus.CounterVec
	HTTPDuration          *prometheus.HistogramVec
}

func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		LedgerOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_operations_total",
				Help: "Total balance ledger operations.",
			},
			[]string{"op", "result"},
		),
		LedgerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_operation_duration_seconds",
				Help:    "Balance ledger operation duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		WithdrawalTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "withdrawal_transitions_total",
				Help: "Total withdrawal state transitions.",
			},
			[]string{"from", "to"},
		),
		PayoutCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payout_calls_total",
				Help: "Total calls to the payout provider.",
			},
			[]string{"op", "status"},
		),
		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "events_published_total",
				Help: "Total published withdrawal events.",
			},
			[]string{"topic", "status"},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "balance_cache_lookups_total",
				Help: "Total balance cache lookups.",
			},
			[]string{"result"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}

	registry.MustRegister(
		m.LedgerOperations,
		m.LedgerDuration,
		m.WithdrawalTransitions,
		m.PayoutCalls,
		m.EventsPublished,
		m.CacheLookups,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}

func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveLedger(op, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.LedgerOperations.WithLabelValues(op, result).Inc()
	m.LedgerDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func (m *Metrics) IncTransition(from, to string) {
	if m == nil {
		return
	}
	m.WithdrawalTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) IncPayoutCall(op, status string) {
	if m == nil {
		return
	}
	m.PayoutCalls.WithLabelValues(op, status).Inc()
}

func (m *Metrics) IncEventPublished(topic, status string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(topic, status).Inc()
}

func (m *Metrics) IncCacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveHTTP(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, path, status).Inc()
	m.HTTPDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}
