package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(ctx context.Context) error { return nil }

func TestCheck_AllPass(t *testing.T) {
	hc := NewChecker("1.0.0", nil)
	hc.AddCheck("ping", ok, time.Second)
	hc.AddCriticalCheck("database", ok, time.Second)

	report := hc.Check(context.Background())
	assert.Equal(t, StatusHealthy, report.Status)
	assert.Len(t, report.Checks, 2)
	assert.Equal(t, "1.0.0", report.Version)
}

func TestCheck_NonCriticalFailureDegrades(t *testing.T) {
	hc := NewChecker("", nil)
	hc.AddCriticalCheck("database", ok, time.Second)
	hc.AddCheck("live", CapacityCheck(func() int { return 10 }, 10), time.Second)

	report := hc.Check(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Contains(t, report.Checks["live"].Error, "10/10")
}

func TestCheck_CriticalFailure(t *testing.T) {
	hc := NewChecker("", nil)
	hc.AddCriticalCheck("database", func(ctx context.Context) error {
		return errors.New("database is locked")
	}, time.Second)

	report := hc.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Equal(t, "database is locked", report.Checks["database"].Error)
}

func TestCheck_Timeout(t *testing.T) {
	hc := NewChecker("", nil)
	hc.AddCriticalCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, 10*time.Millisecond)

	report := hc.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, report.Status)
}

func TestReadinessHandler(t *testing.T) {
	hc := NewChecker("", nil)
	hc.AddCriticalCheck("database", func(ctx context.Context) error {
		return errors.New("down")
	}, time.Second)

	rec := httptest.NewRecorder()
	hc.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var report Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, StatusUnhealthy, report.Status)

	rec = httptest.NewRecorder()
	hc.LivenessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCapacityCheck_Disabled(t *testing.T) {
	assert.NoError(t, CapacityCheck(func() int { return 100 }, 0)(context.Background()))
}
