package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subwaywatch/internal/config"
	"subwaywatch/internal/handler"
	"subwaywatch/internal/metrics"
	"subwaywatch/internal/realtime"
	"subwaywatch/internal/transit"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	routes, err := config.ParseRoutes([]byte(`
feeds:
  - {name: l, url: "https://feeds.example/l"}
routes:
  - {id: L, name: "14 St-Canarsie Local", feed: l, terminals: [L01, L29]}
`))
	require.NoError(t, err)

	now := time.Now().Unix()
	store := realtime.NewStore()
	store.Replace(transit.Schedule{"L": {Trips: []transit.Trip{{
		TripID: "l1", RouteID: "L",
		Stops: []transit.Stop{
			{StopID: "L03N", StopName: "Union Sq-14 St", ArrivalTime: "now", ArrivalTimeRaw: now - 5, DepartureTimeRaw: now + 25},
			{StopID: "L02N", StopName: "6 Av", ArrivalTime: "soon", ArrivalTimeRaw: now + 90, DepartureTimeRaw: now + 120},
		},
	}}}}, time.Now(), nil)

	cfg := &config.Config{Port: 0, Timezone: "America/New_York", CORSOrigins: []string{"*"}, PollInterval: time.Minute}
	h := handler.New(nil, store, nil, routes, nil, cfg, discard)
	return New(cfg, h, metrics.NewCollector(time.Minute).Handler(), discard)
}

func TestServerRoutes(t *testing.T) {
	s := newTestServer(t)
	s.SetReady()
	s.SetReady() // idempotent
	srv := s.Handler()

	tests := []struct {
		method, path string
		wantStatus   int
		wantBody     string
	}{
		{"GET", "/", http.StatusOK, "14 St-Canarsie Local"},
		{"GET", "/routes/L", http.StatusOK, "Union Sq-14 St"},
		{"GET", "/routes/Q", http.StatusNotFound, "There is no"},
		{"GET", "/api/health", http.StatusOK, `"ready":true`},
		{"GET", "/api/routes/L/statuses?status=at_station", http.StatusOK, `"tripId":"l1"`},
		{"GET", "/api/routes/Q/stops", http.StatusNotFound, "Route not found"},
		{"GET", "/metrics", http.StatusOK, "subwaywatch_poll_interval_seconds 60"},
		{"GET", "/static/css/main.css", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
			assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
		})
	}
}

func TestServerAPIPreflight(t *testing.T) {
	s := newTestServer(t)
	s.SetReady()

	req := httptest.NewRequest("OPTIONS", "/api/routes", nil)
	req.Header.Set("Origin", "https://example.org")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), "GET"))
}

func TestServerWaitsForData(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/routes/L", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
