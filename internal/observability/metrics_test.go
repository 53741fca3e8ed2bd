package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.RecordLookup("exact")
	m.RecordLookup("miss")
	m.RecordLookup("miss")
	m.RecordEscalation()
	m.RecordResolution()
	m.RecordExpired(3)
	m.RecordExpired(0)
	m.RecordTurn("answered")
	m.RecordRequest("/api/help-requests", "GET", 200, 15*time.Millisecond)
	m.RecordError("/api/help-requests/:id/resolve", "POST", "NOT_FOUND")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.lookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.escalations))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.expirations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/api/help-requests", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("/api/help-requests/:id/resolve", "POST", "NOT_FOUND")))
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordLookup("exact")
		m.RecordEscalation()
		m.RecordResolution()
		m.RecordExpired(1)
		m.RecordTurn("failed")
		m.RecordRequest("/", "GET", 200, time.Second)
		m.RecordError("/", "GET", "X")
	})
	assert.Nil(t, m.Registry())
}
