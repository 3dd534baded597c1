package gbfs_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/belfastbikes/belfastbikes/internal/gbfs"
	"github.com/belfastbikes/belfastbikes/internal/provider/resilience"
)

const infoBody = `{
	"last_updated": 1700000000,
	"ttl": 60,
	"data": {
		"stations": [
			{"station_id": "1", "name": "City Hall", "lat": 54.5973, "lon": -5.9301, "capacity": 20},
			{"station_id": 42, "name": "Titanic Quarter", "lat": 54.6081, "lon": -5.9091}
		]
	}
}`

const statusBody = `{
	"last_updated": 1700000000,
	"ttl": 60,
	"data": {
		"stations": [
			{
				"station_id": "1",
				"num_bikes_available": 5,
				"num_docks_available": 15,
				"vehicle_types_available": [
					{"vehicle_type_id": "beryl_bike", "count": 3},
					{"vehicle_type_id": "bbe", "count": 2}
				],
				"is_installed": true,
				"is_renting": 1,
				"is_returning": false,
				"last_reported": 1699999999
			},
			{"station_id": 42}
		]
	}
}`

func newFeedServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestClient_Name(t *testing.T) {
	client := gbfs.NewClient(gbfs.ClientConfig{Logger: zerolog.Nop()})
	assert.Equal(t, "gbfs", client.Name())
}

func TestClient_StationInformation(t *testing.T) {
	server := newFeedServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/station_information.json", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(infoBody))
	})

	client := gbfs.NewClient(gbfs.ClientConfig{BaseURL: server.URL, Logger: zerolog.Nop()})

	stations, err := client.StationInformation(context.Background())
	require.NoError(t, err)
	require.Len(t, stations, 2)

	assert.Equal(t, gbfs.StationID("1"), stations[0].StationID)
	assert.Equal(t, "City Hall", stations[0].Name)
	assert.InDelta(t, 54.5973, stations[0].Lat, 1e-9)
	assert.InDelta(t, -5.9301, stations[0].Lon, 1e-9)
	assert.Equal(t, `20`, string(stations[0].Capacity))

	// Numeric ids are coerced to text.
	assert.Equal(t, gbfs.StationID("42"), stations[1].StationID)
	assert.Nil(t, stations[1].Capacity)
}

func TestClient_StationStatus(t *testing.T) {
	server := newFeedServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/station_status.json", r.URL.Path)
		w.Write([]byte(statusBody))
	})

	client := gbfs.NewClient(gbfs.ClientConfig{BaseURL: server.URL, Logger: zerolog.Nop()})

	statuses, err := client.StationStatus(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	s := statuses[0]
	assert.Equal(t, gbfs.Count(5), s.NumBikesAvailable)
	assert.Equal(t, gbfs.Count(15), s.NumDocksAvailable)
	assert.Equal(t, map[string]int{"beryl_bike": 3, "bbe": 2}, s.VehicleCounts())
	assert.Equal(t, `true`, string(s.IsInstalled))
	assert.Equal(t, `1`, string(s.IsRenting))
	assert.Equal(t, `false`, string(s.IsReturning))
	assert.Equal(t, `1699999999`, string(s.LastReported))

	bare := statuses[1]
	assert.Equal(t, gbfs.StationID("42"), bare.StationID)
	assert.Zero(t, bare.NumBikesAvailable)
	assert.Nil(t, bare.IsInstalled)
	assert.Nil(t, bare.LastReported)
	assert.Empty(t, bare.VehicleCounts())
}

func TestClient_UpstreamError(t *testing.T) {
	server := newFeedServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	client := gbfs.NewClient(gbfs.ClientConfig{BaseURL: server.URL, Logger: zerolog.Nop()})

	_, err := client.StationStatus(context.Background())
	require.Error(t, err)

	var upstreamErr *gbfs.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, gbfs.FeedStationStatus, upstreamErr.Feed)
	assert.Equal(t, http.StatusServiceUnavailable, upstreamErr.StatusCode)
	assert.Contains(t, err.Error(), "503")
}

func TestClient_OpenBreakerKeepsUpstreamStatus(t *testing.T) {
	var hits atomic.Int32
	server := newFeedServer(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	client := gbfs.NewClient(gbfs.ClientConfig{BaseURL: server.URL, Logger: zerolog.Nop()})

	for i := 0; i < 5; i++ {
		_, err := client.StationStatus(context.Background())
		require.Error(t, err)
		assert.False(t, errors.Is(err, resilience.ErrCircuitOpen), "request %d", i)
	}

	_, err := client.StationStatus(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(5), hits.Load(), "open breaker must not reach the feed")

	var upstreamErr *gbfs.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, gbfs.FeedStationStatus, upstreamErr.Feed)
	assert.Equal(t, http.StatusServiceUnavailable, upstreamErr.StatusCode)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, "station_status feed responded with 503: circuit breaker is open", err.Error())

	// The other feed has its own breaker.
	_, err = client.StationInformation(context.Background())
	require.ErrorAs(t, err, &upstreamErr)
	assert.Nil(t, upstreamErr.Err)
}

func TestClient_NotFoundIsUpstreamError(t *testing.T) {
	server := newFeedServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	client := gbfs.NewClient(gbfs.ClientConfig{BaseURL: server.URL, Logger: zerolog.Nop()})

	_, err := client.StationInformation(context.Background())

	var upstreamErr *gbfs.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, gbfs.FeedStationInformation, upstreamErr.Feed)
	assert.Equal(t, http.StatusNotFound, upstreamErr.StatusCode)
}

func TestClient_ParseErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "<html>maintenance</html>"},
		{name: "missing data", body: `{"last_updated": 1}`},
		{name: "missing stations", body: `{"data": {}}`},
		{name: "stations not a list", body: `{"data": {"stations": {"1": {}}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newFeedServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})

			client := gbfs.NewClient(gbfs.ClientConfig{BaseURL: server.URL, Logger: zerolog.Nop()})

			_, err := client.StationStatus(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, gbfs.ErrParse), "expected ErrParse, got %v", err)
		})
	}
}

func TestClient_EmptyStationList(t *testing.T) {
	server := newFeedServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": {"stations": []}}`))
	})

	client := gbfs.NewClient(gbfs.ClientConfig{BaseURL: server.URL, Logger: zerolog.Nop()})

	stations, err := client.StationInformation(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stations)
}

func TestClient_Timeout(t *testing.T) {
	server := newFeedServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})

	client := gbfs.NewClient(gbfs.ClientConfig{
		BaseURL: server.URL,
		Timeout: 50 * time.Millisecond,
		Logger:  zerolog.Nop(),
	})

	_, err := client.StationInformation(context.Background())
	require.Error(t, err)

	var upstreamErr *gbfs.UpstreamError
	assert.False(t, errors.As(err, &upstreamErr))
}

func TestClient_RegistersFeeds(t *testing.T) {
	server := newFeedServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/station_status.json" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(infoBody))
	})

	registry := resilience.NewRegistry()
	client := gbfs.NewClient(gbfs.ClientConfig{
		BaseURL:  server.URL,
		Registry: registry,
		Logger:   zerolog.Nop(),
	})

	_, err := client.StationInformation(context.Background())
	require.NoError(t, err)
	_, err = client.StationStatus(context.Background())
	require.Error(t, err)

	assert.Equal(t, 2, registry.ProviderCount())

	info := registry.GetHealth(gbfs.FeedStationInformation)
	require.NotNil(t, info)
	assert.NotNil(t, info.LastSuccessAt)
	assert.Nil(t, info.LastFailureAt)

	status := registry.GetHealth(gbfs.FeedStationStatus)
	require.NotNil(t, status)
	assert.NotNil(t, status.LastFailureAt)
	assert.Contains(t, status.LastError, "Bad Gateway")
}

func TestStationID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in   string
		want gbfs.StationID
	}{
		{in: `"abc"`, want: "abc"},
		{in: `"007"`, want: "007"},
		{in: `7`, want: "7"},
		{in: `7.0`, want: "7"},
		{in: `1.5`, want: "1.5"},
		{in: `null`, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var id gbfs.StationID
			require.NoError(t, id.UnmarshalJSON([]byte(tt.in)))
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestCount_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in   string
		want gbfs.Count
	}{
		{in: `3`, want: 3},
		{in: `3.0`, want: 3},
		{in: `"7"`, want: 7},
		{in: `" 4 "`, want: 4},
		{in: `null`, want: 0},
		{in: `"none"`, want: 0},
		{in: `false`, want: 0},
		{in: `[]`, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			c := gbfs.Count(99)
			require.NoError(t, c.UnmarshalJSON([]byte(tt.in)))
			assert.Equal(t, tt.want, c)
		})
	}
}
