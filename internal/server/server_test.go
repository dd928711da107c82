package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ponytojas/go-cr310-ingest/config"
	"github.com/ponytojas/go-cr310-ingest/internal/database"
	"github.com/ponytojas/go-cr310-ingest/internal/ingest"
	"github.com/ponytojas/go-cr310-ingest/internal/metrics"
	"github.com/ponytojas/go-cr310-ingest/internal/models"
	"github.com/ponytojas/go-cr310-ingest/internal/normalizer"
)

const validBody = `{
	"equipo": "T101",
	"SO2_ppb": 25.43,
	"H2S_ppb": 2.18,
	"Reaction_Temp": 35.0,
	"IZS_Temp": 34.2,
	"PMT_Temp": 36.1,
	"SampleFlow": 452.3,
	"Pressure": 29.76,
	"UVLampIntensity": 403.5,
	"Box_Temp": 33.7,
	"HVPS_V": 671.2,
	"Conv_Temp": 35.9,
	"Ozone_flow": 480.5,
	"timestamp": "2025-10-27 18:30:00"
}`

type brokenPinger struct{}

func (brokenPinger) Ping(context.Context) error { return errors.New("no reachable servers") }

type brokenQuerier struct{}

func (brokenQuerier) Query(context.Context, ingest.QueryParams) (*models.Page, error) {
	return nil, &models.UnavailableError{Op: "query", Err: errors.New("password authentication failed")}
}

func setupServer(t *testing.T, opts ...ConfigOption) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.GetDefaultConfig()
	cfg.Server.Mode = gin.TestMode

	store := database.NewMemoryStore()
	reg := prometheus.NewRegistry()
	rec := metrics.NewPromRecorder(reg)

	base := []ConfigOption{
		WithIngester(ingest.NewPipeline(store, normalizer.New(), rec, nil)),
		WithQuerier(ingest.NewQueryService(store, rec, nil)),
		WithHealthCheck(store),
		WithGatherer(reg),
	}
	s, err := NewServer(cfg, append(base, opts...)...)
	require.NoError(t, err)
	return s
}

func do(t *testing.T, s *Server, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var out map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func TestNewServer_RequiresCollaborators(t *testing.T) {
	_, err := NewServer(config.GetDefaultConfig())
	assert.Error(t, err)

	_, err = NewServer(config.GetDefaultConfig(), WithIngester(nil))
	assert.Error(t, err)
}

func TestRootAndHealth(t *testing.T) {
	s := setupServer(t)

	w, body := do(t, s, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "CR310 Datalogger API is running", body["message"])
	assert.NotEmpty(t, w.Header().Get(headerProcessTime))

	w, body = do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
}

func TestHealth_StoreDown(t *testing.T) {
	s := setupServer(t, WithHealthCheck(brokenPinger{}))

	w, body := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, false, body["success"])
	assert.NotContains(t, body["message"], "no reachable servers")
}

func TestPostReading_Flow(t *testing.T) {
	s := setupServer(t)

	w, body := do(t, s, http.MethodPost, "/api/v1/readings", validBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Reading stored successfully", body["message"])
	assert.NotEmpty(t, body["id"])
	assert.NotEmpty(t, w.Header().Get(headerProcessTime))

	w, body = do(t, s, http.MethodPost, "/api/v1/readings", validBody)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "duplicate_reading", body["error"])
	assert.Contains(t, body["message"], "Duplicate reading detected")

	w, body = do(t, s, http.MethodPost, "/api/v1/readings", `{"equipo":"T101","SO2_ppb":25.43,"timestamp":"2025-10-27 18:40:00"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "missing_fields", body["error"])
	assert.Len(t, body["errors"], 11)

	w, body = do(t, s, http.MethodPost, "/api/v1/readings",
		strings.Replace(strings.Replace(validBody, "25.43", "99999", 1), "18:30:00", "18:50:00", 1))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "out_of_range", body["error"])

	w, body = do(t, s, http.MethodGet, "/api/v1/readings?equipo=T101&limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["count"])
	assert.EqualValues(t, 1, body["total"])
	data, ok := body["data"].([]any)
	require.True(t, ok)
	require.Len(t, data, 1)
	assert.Equal(t, "T101", data[0].(map[string]any)["equipo"])
	assert.Equal(t, "Retrieved 1 of 1 readings with filters: equipo=T101", body["message"])
}

func TestPostReading_RejectsNonObjectBodies(t *testing.T) {
	s := setupServer(t)

	for _, body := range []string{`not json`, `[1,2,3]`, `null`} {
		w, out := do(t, s, http.MethodPost, "/api/v1/readings", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, "invalid_json", out["error"], body)
	}
}

func TestGetReadings_EmptyStoreAndBadFilter(t *testing.T) {
	s := setupServer(t)

	w, body := do(t, s, http.MethodGet, "/api/v1/readings", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{}, body["data"])
	assert.EqualValues(t, 0, body["total"])

	w, body = do(t, s, http.MethodGet, "/api/v1/readings?limit=0&start_date=tomorrow", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_filter", body["error"])
	assert.Len(t, body["errors"], 2)
}

func TestGetReadings_UnavailableHidesCause(t *testing.T) {
	s := setupServer(t, WithQuerier(brokenQuerier{}))

	w, body := do(t, s, http.MethodGet, "/api/v1/readings", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Error retrieving readings from database", body["message"])
	assert.NotContains(t, w.Body.String(), "password")
}

func TestMetricsEndpoint(t *testing.T) {
	s := setupServer(t)
	do(t, s, http.MethodPost, "/api/v1/readings", validBody)

	w, _ := do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `cr310_readings_ingested_total{outcome="stored"} 1`)
}

func TestDescribeFilters(t *testing.T) {
	assert.Equal(t, "", describeFilters(ingest.QueryParams{}))
	assert.Equal(t, " with filters: equipo=T101, from 2025-10-27, to 2025-10-28",
		describeFilters(ingest.QueryParams{EquipmentID: "T101", StartDate: "2025-10-27", EndDate: "2025-10-28"}))
}
