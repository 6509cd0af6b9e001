package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveMovement(t *testing.T) {
	m := NewMetrics()

	m.ObserveMovement("OUT", "ok", 10*time.Millisecond)
	m.ObserveMovement("OUT", "BATCH_QUARANTINE", time.Millisecond)
	m.ObserveMovement("OUT", "ok", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.movements.WithLabelValues("OUT", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.movements.WithLabelValues("OUT", "BATCH_QUARANTINE")))
}

func TestOutboxCounters(t *testing.T) {
	m := NewMetrics()

	m.OutboxPublished(3)
	m.OutboxPublished(2)
	m.OutboxDeadLettered(1)

	assert.Equal(t, 5.0, testutil.ToFloat64(m.outboxPublished))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outboxDLQ))
}

func TestHandlerExposesRegisteredGauge(t *testing.T) {
	m := NewMetrics()
	m.RegisterGauge("db", "pool_acquired_connections", "Acquired connections.", func() float64 { return 4 })
	m.ObserveRequest(http.MethodPost, "/api/v1/movements", http.StatusCreated, 5*time.Millisecond)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "pharmastock_db_pool_acquired_connections 4")
	assert.Contains(t, body, `pharmastock_http_requests_total{method="POST",route="/api/v1/movements",status="201"} 1`)
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Equal(t, "AlwaysOffSampler", sampler(0).Description())
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased")
}
