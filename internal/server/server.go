package server

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"subwaywatch/internal/config"
	"subwaywatch/internal/handler"
	"subwaywatch/web"
)

// Server is the HTTP server for the boards, the JSON API and metrics.
type Server struct {
	mux    *http.ServeMux
	cfg    *config.Config
	logger *slog.Logger
	ready  chan struct{} // closed when the first feed snapshot is stored
	srv    *http.Server
}

// New creates a new Server with all routes registered.
// metrics may be nil to leave /metrics unregistered.
func New(cfg *config.Config, h *handler.Handler, metrics http.Handler, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	s := &Server{mux: mux, cfg: cfg, logger: logger, ready: make(chan struct{})}

	// Static files, served from the embedded FS; versioned URLs get immutable caching
	staticFS, _ := fs.Sub(web.StaticFiles, "static")
	fileServer := http.FileServer(http.FS(staticFS))
	mux.Handle("GET /static/", http.StripPrefix("/static/", staticCacheHandler(fileServer)))

	// Pages
	mux.HandleFunc("GET /", h.Home)
	mux.HandleFunc("GET /routes/{id}", h.RouteBoard)
	mux.HandleFunc("POST /routes/{id}/refresh", h.RefreshRoute)
	mux.HandleFunc("GET /stations/{id}", h.StationDetail)

	// SSE
	mux.HandleFunc("GET /sse/routes/{id}", h.SSEBoard)

	// JSON API. Registered per method: a method-less "/api/" would conflict with "GET /".
	api := http.StripPrefix("/api", h.API())
	for _, m := range []string{"GET", "POST", "OPTIONS"} {
		mux.Handle(m+" /api/", api)
	}

	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	return s
}

// SetReady signals that live data is available and pages can be served.
func (s *Server) SetReady() {
	select {
	case <-s.ready:
		// already closed
	default:
		close(s.ready)
		s.logger.Info("server ready")
	}
}

// Handler returns the mux wrapped in middleware.
func (s *Server) Handler() http.Handler {
	return withMiddleware(s.mux, s.logger, s.ready)
}

// ListenAndServe starts the HTTP server and blocks until it stops.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("server starting", "addr", addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server. Open SSE streams end when their
// request contexts are cancelled.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
