package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/belfastbikes/belfastbikes/internal/api"
	"github.com/belfastbikes/belfastbikes/internal/api/models"
	"github.com/belfastbikes/belfastbikes/internal/feedback"
	"github.com/belfastbikes/belfastbikes/internal/gbfs"
	"github.com/belfastbikes/belfastbikes/internal/provider/resilience"
	"github.com/belfastbikes/belfastbikes/internal/station"
)

const (
	infoFeed = `{"last_updated":1,"ttl":0,"data":{"stations":[
		{"station_id":"3901","name":"City Hall","lat":54.5966,"lon":-5.9301,"capacity":20},
		{"station_id":3902,"name":"Queen's University","lat":54.5844,"lon":-5.9342}
	]}}`
	statusFeed = `{"last_updated":1,"ttl":0,"data":{"stations":[
		{"station_id":"3901","num_bikes_available":7,"num_docks_available":13,
		 "vehicle_types_available":[{"vehicle_type_id":"beryl_bike","count":5},{"vehicle_type_id":"bbe","count":2}],
		 "is_installed":true,"is_renting":true,"is_returning":false,"last_reported":1720535405}
	]}}`
)

// feedServer serves the two GBFS files. status overrides the status code per feed.
func feedServer(t *testing.T, status map[string]int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		feed := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/"), ".json")
		if code, ok := status[feed]; ok {
			w.WriteHeader(code)
			return
		}
		switch feed {
		case gbfs.FeedStationInformation:
			_, _ = io.WriteString(w, infoFeed)
		case gbfs.FeedStationStatus:
			_, _ = io.WriteString(w, statusFeed)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

type testEnv struct {
	router   http.Handler
	registry *resilience.Registry
	sender   *recordingSender
}

type recordingSender struct {
	sent []feedback.Message
	err  error
}

func (s *recordingSender) Send(_ context.Context, msg feedback.Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func newTestEnv(t *testing.T, feedStatus map[string]int) *testEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)

	registry := resilience.NewRegistry()
	client := gbfs.NewClient(gbfs.ClientConfig{
		BaseURL:  feedServer(t, feedStatus).URL,
		Registry: registry,
		Logger:   logger,
	})
	sender := &recordingSender{}

	router := api.NewRouter(api.RouterConfig{
		Version:   "test",
		BuildTime: "2024-01-01T00:00:00Z",
		Logger:    logger,
		Stations:  station.NewService(station.ServiceConfig{Feeds: client, Logger: logger}),
		Feedback: feedback.NewService(feedback.ServiceConfig{
			Sender: sender,
			From:   "bikes@example.com",
			To:     "ops@example.com",
			Logger: logger,
		}),
		Registry: registry,
		Assets: fstest.MapFS{
			"index.html": {Data: []byte("<!DOCTYPE html><title>Belfast Bikes</title>")},
			"sw.js":      {Data: []byte("const CACHE = 'belfast-bikes-v1';")},
		},
	})

	return &testEnv{router: router, registry: registry, sender: sender}
}

func (e *testEnv) do(method, target string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestRouter_HealthCheck(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/api/health", http.NoBody)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	var health models.Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))

	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "test", health.Details["version"])
	assert.Equal(t, "2024-01-01T00:00:00Z", health.Details["buildTime"])
}

func TestRouter_Stations(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/api/stations", http.NoBody)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	expected := `{"network":{"stations":[
		{"id":"3901","name":"City Hall","latitude":54.5966,"longitude":-5.9301,"capacity":20,
		 "free_bikes":7,"empty_slots":13,"bikes":5,"ebikes":2,"scooters":0,
		 "is_installed":true,"is_renting":true,"is_returning":false,"last_reported":1720535405},
		{"id":"3902","name":"Queen's University","latitude":54.5844,"longitude":-5.9342,
		 "free_bikes":0,"empty_slots":0,"bikes":0,"ebikes":0,"scooters":0}
	]}}`
	assert.JSONEq(t, expected, w.Body.String())
}

func TestRouter_Stations_UpstreamFailure(t *testing.T) {
	env := newTestEnv(t, map[string]int{gbfs.FeedStationInformation: http.StatusServiceUnavailable})

	w := env.do(http.MethodGet, "/api/stations", http.NoBody)

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var body models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, models.MessageStationsFailed, body.Error)
	assert.Contains(t, body.Detail, "station_information feed responded with 503")
	assert.Equal(t, w.Header().Get("X-Request-Id"), body.TraceID)
}

func TestRouter_Stations_CORS(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/stations", http.NoBody)
	req.Header.Set("Origin", "https://example.org")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_DebugStatus(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/api/debug/status?limit=1", http.NoBody)

	require.Equal(t, http.StatusOK, w.Code)

	var statuses []gbfs.StationStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &statuses))
	require.Len(t, statuses, 1)
	assert.Equal(t, gbfs.StationID("3901"), statuses[0].StationID)
}

func TestRouter_DebugStatus_InvalidLimit(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/api/debug/status?limit=lots", http.NoBody)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_Feedback(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodPost, "/api/feedback",
		strings.NewReader(`{"station":"City Hall","type":"Broken dock","message":"Dock 4 jammed"}`))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())

	require.Len(t, env.sender.sent, 1)
	assert.Equal(t, "Belfast Bikes feedback: City Hall", env.sender.sent[0].Subject)
	assert.Equal(t, "ops@example.com", env.sender.sent[0].To)
}

func TestRouter_Feedback_Errors(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		sendErr     error
		wantStatus  int
		wantError   string
	}{
		{
			name:       "missing station",
			body:       `{"type":"Broken dock"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  models.MessageMissingFields,
		},
		{
			name:       "missing type",
			body:       `{"station":"City Hall"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  models.MessageMissingFields,
		},
		{
			name:       "malformed body",
			body:       `{"station":`,
			wantStatus: http.StatusBadRequest,
			wantError:  models.MessageInvalidBody,
		},
		{
			name:        "wrong content type",
			body:        `station=City+Hall`,
			contentType: "application/x-www-form-urlencoded",
			wantStatus:  http.StatusUnsupportedMediaType,
			wantError:   models.MessageJSONRequired,
		},
		{
			name:       "send failure",
			body:       `{"station":"City Hall","type":"Broken dock"}`,
			sendErr:    errors.New("535 authentication failed"),
			wantStatus: http.StatusInternalServerError,
			wantError:  models.MessageEmailFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.sender.err = tt.sendErr

			req := httptest.NewRequest(http.MethodPost, "/api/feedback", bytes.NewBufferString(tt.body))
			contentType := tt.contentType
			if contentType == "" {
				contentType = "application/json"
			}
			req.Header.Set("Content-Type", contentType)
			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)

			var body models.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantError, body.Error)
			assert.Empty(t, body.Detail)
		})
	}
}

func TestRouter_SystemStatus(t *testing.T) {
	env := newTestEnv(t, map[string]int{gbfs.FeedStationStatus: http.StatusBadGateway})

	// Five consecutive failures open the station_status breaker.
	for i := 0; i < 5; i++ {
		w := env.do(http.MethodGet, "/api/debug/status", http.NoBody)
		require.Equal(t, http.StatusInternalServerError, w.Code)
	}

	w := env.do(http.MethodGet, "/api/status", http.NoBody)
	require.Equal(t, http.StatusOK, w.Code)

	var status models.SystemStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))

	assert.Equal(t, models.HealthStatusFail, status.Status)
	require.Len(t, status.Providers, 2)

	assert.Equal(t, gbfs.FeedStationInformation, status.Providers[0].Provider)
	assert.Equal(t, models.HealthStatusOK, status.Providers[0].Status)
	assert.Nil(t, status.Providers[0].LastFailureAt)

	assert.Equal(t, gbfs.FeedStationStatus, status.Providers[1].Provider)
	assert.Equal(t, models.HealthStatusFail, status.Providers[1].Status)
	assert.Equal(t, "open", status.Providers[1].CircuitState)
	assert.NotNil(t, status.Providers[1].LastFailureAt)
	require.NotNil(t, status.Providers[1].Message)
}

func TestRouter_SystemStatus_Healthy(t *testing.T) {
	env := newTestEnv(t, nil)

	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/stations", http.NoBody).Code)

	w := env.do(http.MethodGet, "/api/status", http.NoBody)

	var status models.SystemStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, models.HealthStatusOK, status.Status)
	for _, p := range status.Providers {
		assert.Equal(t, "closed", p.CircuitState)
		assert.NotNil(t, p.LastSuccessAt)
	}
}

func TestRouter_APINotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/api/unknown", http.NoBody)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), models.MessageNotFound)
}

func TestRouter_StaticFrontEnd(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/", http.NoBody)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "Belfast Bikes")

	// Cached by the service worker, so it must not redirect.
	w = env.do(http.MethodGet, "/index.html", http.NoBody)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Location"))
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "Belfast Bikes")

	w = env.do(http.MethodGet, "/sw.js", http.NoBody)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "belfast-bikes-v1")

	w = env.do(http.MethodGet, "/missing.png", http.NoBody)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_SecurityHeaders(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/api/health", http.NoBody)

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, w.Header().Get("Content-Security-Policy"))
}

func TestRouter_EmbeddedAssets(t *testing.T) {
	router := api.NewRouter(api.RouterConfig{Logger: zerolog.Nop()})

	for _, path := range []string{"/", "/index.html", "/manifest.json", "/icon.svg", "/sw.js"} {
		req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}
