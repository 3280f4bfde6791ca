package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabrielmiguelok/tropa/internal/registration"
	"github.com/gabrielmiguelok/tropa/internal/storage"
	"github.com/gabrielmiguelok/tropa/pkg/health"
	"github.com/gabrielmiguelok/tropa/pkg/logging"
	"github.com/gabrielmiguelok/tropa/pkg/lookup"
	"github.com/gabrielmiguelok/tropa/pkg/wizard"
)

type fakeReader struct {
	scouts []storage.Scout
	filter storage.ListFilter
}

func (f *fakeReader) List(ctx context.Context, filter storage.ListFilter) ([]storage.Scout, error) {
	f.filter = filter
	var out []storage.Scout
	for _, s := range f.scouts {
		if filter.Rama == "" || s.Rama == filter.Rama {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeReader) Get(ctx context.Context, id string) (wizard.Record, error) {
	for _, s := range f.scouts {
		if s.ID == id {
			return wizard.Record{"id": s.ID, "nombres": s.Nombres, "rama": s.Rama}, nil
		}
	}
	return nil, storage.ErrNotFound
}

func newTestAPI(t *testing.T, checker *health.Checker) (*httptest.Server, *fakeReader) {
	t.Helper()
	reader := &fakeReader{scouts: []storage.Scout{
		{ID: "a", DisplayCode: "SC-2026-0001", Nombres: "Ana", Rama: "tropa"},
		{ID: "b", DisplayCode: "SC-2026-0002", Nombres: "Beto", Rama: "manada"},
	}}
	r := chi.NewRouter()
	New(r, Config{
		Scouts: reader,
		Places: registration.PlaceSources{
			Regions:    lookup.StaticSource{"": {{ID: "norte", Label: "Norte"}}},
			Subregions: lookup.StaticSource{"norte": {{ID: "costa", Label: "Costa"}}},
			Localities: lookup.StaticSource{"costa": {}},
		},
		Health: checker,
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, reader
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestListScouts(t *testing.T) {
	srv, reader := newTestAPI(t, nil)

	var all []storage.Scout
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v0/scouts", &all))
	assert.Len(t, all, 2)
	assert.Equal(t, 100, reader.filter.Limit)

	var tropa []storage.Scout
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v0/scouts?rama=tropa&limit=5", &tropa))
	require.Len(t, tropa, 1)
	assert.Equal(t, "SC-2026-0001", tropa[0].DisplayCode)
	assert.Equal(t, 5, reader.filter.Limit)

	var none []storage.Scout
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v0/scouts?rama=clan", &none))
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestListScouts_BadFilter(t *testing.T) {
	srv, _ := newTestAPI(t, nil)

	var body struct {
		Error apiErrorBody `json:"error"`
	}
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/v0/scouts?rama=pioneros", &body))
	assert.Equal(t, "bad_request", body.Error.Code)
}

func TestGetScout(t *testing.T) {
	srv, _ := newTestAPI(t, nil)

	var rec map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v0/scouts/a", &rec))
	assert.Equal(t, "Ana", rec["nombres"])

	var body struct {
		Error apiErrorBody `json:"error"`
	}
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/v0/scouts/zzz", &body))
	assert.Equal(t, "not_found", body.Error.Code)
}

func TestPlaces(t *testing.T) {
	srv, _ := newTestAPI(t, nil)

	var regions []lookup.Option
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v0/places/regions", &regions))
	assert.Equal(t, []lookup.Option{{ID: "norte", Label: "Norte"}}, regions)

	var subs []lookup.Option
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v0/places/regions/norte/subregions", &subs))
	assert.Equal(t, "costa", subs[0].ID)

	var locs []lookup.Option
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v0/places/subregions/costa/localities", &locs))
	assert.NotNil(t, locs)
	assert.Empty(t, locs)

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/v0/places/regions/sur/subregions", nil))
}

func TestHealth(t *testing.T) {
	checker := health.NewChecker("test", logging.NopLogger{})
	checker.AddCriticalCheck("sqlite", func(ctx context.Context) error {
		return errors.New("database is locked")
	}, time.Second)
	srv, _ := newTestAPI(t, checker)

	var report health.Report
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, srv.URL+"/v0/health", &report))
	assert.Equal(t, health.StatusUnhealthy, report.Status)
	assert.Equal(t, "database is locked", report.Checks["sqlite"].Error)
}

func TestOpenAPIDocument(t *testing.T) {
	srv, _ := newTestAPI(t, nil)

	var doc map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v0/openapi.json", &doc))
	paths, _ := doc["paths"].(map[string]any)
	assert.Contains(t, paths, "/v0/scouts/{id}")
}
