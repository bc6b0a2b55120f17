package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facewatch/internal/api/ws"
	"github.com/your-org/facewatch/internal/config"
	"github.com/your-org/facewatch/internal/stream"
	"github.com/your-org/facewatch/internal/tracker"
	"github.com/your-org/facewatch/internal/watchlist"
)

func testRouter(t *testing.T, apiKey string) (*gin.Engine, *tracker.Tracker) {
	t.Helper()

	trk := tracker.New(tracker.DefaultConfig(), nil)
	manager := stream.NewManager(trk, nil, nil, 2, 1024)
	store := watchlist.Empty(config.WatchlistConfig{TopK: 1, Threshold: 0.45})
	hub := ws.NewHub()
	go hub.Run()

	r := NewRouter(RouterConfig{
		APIKey:  apiKey,
		Tracker: trk,
		Manager: manager,
		Store:   store,
		Hub:     hub,
		Ready: map[string]func(context.Context) error{
			"watchlist": store.Ping,
		},
	})
	return r, trk
}

func doRequest(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	r, _ := testRouter(t, "")
	w := doRequest(r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSharedStatsShape(t *testing.T) {
	r, _ := testRouter(t, "")
	w := doRequest(r, http.MethodGet, "/api/shared_stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	var stats map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	for _, key := range []string{
		"total_faces", "lifetime_faces", "active_faces", "suspicious_faces",
		"clean_faces", "database_entries", "suspicious_ids",
		"tracking_threshold", "consolidation_threshold", "face_timeout",
		"next_id", "consolidation_check_interval",
	} {
		assert.Contains(t, stats, key)
	}
	assert.EqualValues(t, 0, stats["total_faces"])
	assert.EqualValues(t, 0.5, stats["tracking_threshold"])
}

func TestListStreamsEmpty(t *testing.T) {
	r, _ := testRouter(t, "")
	w := doRequest(r, http.MethodGet, "/api/list_streams", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Streams []any `json:"streams"`
		Total   int   `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Total)
}

func TestStartStreamRequiresURL(t *testing.T) {
	r, _ := testRouter(t, "")
	w := doRequest(r, http.MethodPost, "/api/start_stream", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStopStreamRequiresStreamID(t *testing.T) {
	r, _ := testRouter(t, "")
	w := doRequest(r, http.MethodPost, "/api/stop_stream", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStreamStatusNotFound(t *testing.T) {
	r, _ := testRouter(t, "")
	w := doRequest(r, http.MethodGet, "/api/stream_status/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVideoFeedNotFound(t *testing.T) {
	r, _ := testRouter(t, "")
	w := doRequest(r, http.MethodGet, "/video_feed/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSuspiciousDataEmptyArray(t *testing.T) {
	r, _ := testRouter(t, "")
	w := doRequest(r, http.MethodGet, "/api/get-suspicious-data", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))
}

func TestCleanupAndConsolidateEndpoints(t *testing.T) {
	r, _ := testRouter(t, "")

	w := doRequest(r, http.MethodPost, "/api/cleanup_faces", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(r, http.MethodPost, "/api/consolidate_ids", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.EqualValues(t, 0, resp["merged"])
}

func TestReloadDBWithoutDatabase(t *testing.T) {
	r, _ := testRouter(t, "")
	w := doRequest(r, http.MethodPost, "/api/reload_db", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAPIKeyEnforced(t *testing.T) {
	r, _ := testRouter(t, "topsecret")

	w := doRequest(r, http.MethodGet, "/api/shared_stats", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/shared_stats", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/shared_stats", nil)
	req.Header.Set("X-API-Key", "topsecret")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// System endpoints stay open.
	w = doRequest(r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRootStatus(t *testing.T) {
	r, _ := testRouter(t, "")
	w := doRequest(r, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "running", resp["status"])
	assert.Equal(t, false, resp["streaming"])
}

func TestReadyzReportsChecks(t *testing.T) {
	r, _ := testRouter(t, "")
	w := doRequest(r, http.MethodGet, "/readyz", "")
	// The empty watchlist store has no database behind it.
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "not ready", resp.Status)
	assert.Contains(t, resp.Checks, "watchlist")
}
