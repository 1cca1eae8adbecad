package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveLedger("hold", "ok", time.Millisecond)
		m.IncTransition("CREATED", "PENDING_VERIFICATION")
		m.IncPayoutCall("create", "ok")
		m.IncEventPublished("topic", "ok")
		m.IncCacheLookup("hit")
		m.ObserveHTTP("GET", "/healthz", "200", time.Millisecond)
	})
}

func TestMetrics_Counters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.ObserveLedger("hold", "ok", time.Millisecond)
	m.ObserveLedger("hold", "ok", time.Millisecond)
	m.ObserveLedger("hold", "insufficient_funds", time.Millisecond)
	m.IncTransition("COMMITTED", "SUCCEEDED")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.LedgerOperations.WithLabelValues("hold", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LedgerOperations.WithLabelValues("hold", "insufficient_funds")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WithdrawalTransitions.WithLabelValues("COMMITTED", "SUCCEEDED")))
}

func TestHandler(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)
	m.IncCacheLookup("miss")

	rec := httptest.NewRecorder()
	Handler(registry).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `balance_cache_lookups_total{result="miss"} 1`)
}
