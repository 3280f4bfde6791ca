package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics("tropa")

	m.Transition("next", "blocked")
	m.Transition("next", "blocked")
	m.Transition("next", "ok")
	m.Submission("ok", 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("next", "blocked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("next", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.submissions.WithLabelValues("ok")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Transition("next", "ok")
		m.Submission("error", time.Second)
		m.Lookup("region", "hit")
		m.ConnectionOpened()
		m.ConnectionClosed()
		m.Event("change")
		m.Panic()
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics("tropa")
	m.Lookup("region", "miss")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `tropa_lookup_requests_total{cache="miss",level="region"} 1`))
}
