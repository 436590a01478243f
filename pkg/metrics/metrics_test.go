package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New("wizard")
	require.NoError(t, m.Register(reg))

	m.RecordSessionStarted("BORROW")
	m.RecordTransition("advance", nil)
	m.RecordTransition("advance", errors.New("blocked"))
	m.RecordTransition("advance", errors.New("blocked"))
	m.RecordAttestation("SUCCEEDED", 1500*time.Millisecond)
	m.RecordCacheLookup(true)
	m.SetActiveSessions(3)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.SessionsStarted.WithLabelValues("BORROW")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Transitions.WithLabelValues("advance", "rejected")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AttestationsTotal.WithLabelValues("SUCCEEDED")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CatalogCacheTotal.WithLabelValues("hit")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.SessionsActive))

	assert.Error(t, m.Register(reg), "double registration must fail")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordSessionStarted("DEPOSIT")
		m.RecordTransition("back", nil)
		m.RecordSubmit(nil)
		m.RecordHTTPRequest("GET", "/x", 200, time.Millisecond)
	})
}
