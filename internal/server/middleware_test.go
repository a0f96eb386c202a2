package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
}

func TestWaitForData(t *testing.T) {
	ready := make(chan struct{})
	h := waitForData(okHandler(), ready)

	tests := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{"/", http.StatusServiceUnavailable, "Waiting for the first feed update"},
		{"/routes/A", http.StatusServiceUnavailable, "<!DOCTYPE html>"},
		{"/api/routes", http.StatusServiceUnavailable, "Waiting for first feed update"},
		{"/api/health", http.StatusOK, "ok"},
		{"/metrics", http.StatusOK, "ok"},
		{"/static/css/main.css", http.StatusOK, "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest("GET", tt.path, nil))
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}

	close(ready)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/routes/A", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	securityHeaders(okHandler()).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestStaticCacheHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	staticCacheHandler(okHandler()).ServeHTTP(rec, httptest.NewRequest("GET", "/css/main.css?v=abc", nil))
	assert.Contains(t, rec.Header().Get("Cache-Control"), "immutable")

	rec = httptest.NewRecorder()
	staticCacheHandler(okHandler()).ServeHTTP(rec, httptest.NewRequest("GET", "/css/main.css", nil))
	assert.Empty(t, rec.Header().Get("Cache-Control"))
}

func TestRequestLogger_CapturesStatus(t *testing.T) {
	var seen int
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		seen = w.(*statusWriter).status
	})
	rec := httptest.NewRecorder()
	requestLogger(inner, discard).ServeHTTP(rec, httptest.NewRequest("GET", "/x", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, http.StatusTeapot, seen)
}
