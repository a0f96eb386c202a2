package handler

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"subwaywatch/internal/config"
	"subwaywatch/internal/geocode"
	"subwaywatch/internal/realtime"
	"subwaywatch/internal/storage"
	"subwaywatch/internal/templates"
	"subwaywatch/internal/transit"
)

// Refresher refetches the feed behind a single route on demand.
type Refresher interface {
	RefreshRoute(ctx context.Context, routeID string) (bool, error)
}

// Geocoder resolves place names to coordinates and back.
type Geocoder interface {
	Search(ctx context.Context, query string) (*geocode.Place, error)
	Reverse(ctx context.Context, lat, lon float64) (*geocode.Place, error)
}

// RefreshMetrics records on-demand refresh outcomes.
type RefreshMetrics interface {
	RefreshResult(route, result string)
}

// Handler holds shared dependencies for all HTTP handlers.
type Handler struct {
	db         *storage.DB
	store      *realtime.Store
	refresher  Refresher
	routes     *config.RouteTable
	classifier *transit.Classifier
	geo        Geocoder
	cfg        *config.Config
	metrics    RefreshMetrics
	logger     *slog.Logger
	version    string // content hash of static assets, for cache busting
	loc        *time.Location
	clock      func() time.Time
}

// New creates a Handler.
func New(db *storage.DB, store *realtime.Store, refresher Refresher, routes *config.RouteTable,
	geo Geocoder, cfg *config.Config, logger *slog.Logger) *Handler {
	v := computeAssetVersion("web/static")
	logger.Info("asset version computed", "version", v)

	c := transit.NewClassifier(routes.TerminalMap())
	c.Thresholds = cfg.Thresholds()

	return &Handler{
		db:         db,
		store:      store,
		refresher:  refresher,
		routes:     routes,
		classifier: c,
		geo:        geo,
		cfg:        cfg,
		logger:     logger,
		version:    v,
		loc:        cfg.Location(),
		clock:      time.Now,
	}
}

// SetMetrics enables refresh instrumentation.
func (h *Handler) SetMetrics(m RefreshMetrics) {
	h.metrics = m
}

// Classifier returns the classifier used for every response.
func (h *Handler) Classifier() *transit.Classifier {
	return h.classifier
}

// computeAssetVersion hashes all CSS and JS files in the static directory
// to produce a short version string. Changes to any file produce a new version.
func computeAssetVersion(staticDir string) string {
	h := md5.New()
	var paths []string
	filepath.Walk(staticDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if ext := filepath.Ext(path); ext == ".css" || ext == ".js" {
			paths = append(paths, path)
		}
		return nil
	})
	sort.Strings(paths) // deterministic order
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			continue
		}
		io.Copy(h, f)
		f.Close()
	}
	return fmt.Sprintf("%x", h.Sum(nil))[:8]
}

// page creates a templates.Page with the asset version pre-filled.
func (h *Handler) page(title, currentPath string) templates.Page {
	return templates.Page{
		Title:        title,
		CurrentPath:  currentPath,
		AssetVersion: h.version,
	}
}

// now is the classification instant: the at= query parameter (Unix
// seconds) when present, otherwise the wall clock.
func (h *Handler) now(r *http.Request) time.Time {
	if at := r.URL.Query().Get("at"); at != "" {
		if sec, err := strconv.ParseInt(at, 10, 64); err == nil && sec > 0 {
			return time.Unix(sec, 0)
		}
	}
	return h.clock()
}

// routeInfo builds display data for a configured route.
// Names fall back to the static GTFS long name.
func (h *Handler) routeInfo(ctx context.Context, rc config.RouteConfig) templates.RouteInfo {
	info := templates.RouteInfo{
		ID:        rc.ID,
		Name:      rc.Name,
		Color:     rc.Color,
		TextColor: rc.TextColor,
	}
	if fd, ok := h.store.Route(rc.ID); ok {
		info.Trips = len(fd.Trips)
	}
	if (info.Name != "" && info.Color != "") || h.db == nil {
		return info
	}
	if row, err := h.db.Route(ctx, rc.ID); err == nil {
		applyStatic(&info, *row)
	}
	return info
}

// routeInfos builds display data for every configured route, reading the
// static routes table once.
func (h *Handler) routeInfos(ctx context.Context) []templates.RouteInfo {
	static := map[string]storage.RouteRow{}
	if h.db != nil {
		rows, err := h.db.AllRoutes(ctx)
		if err != nil {
			h.logger.Warn("loading static routes", "error", err)
		}
		for _, row := range rows {
			static[row.RouteID] = row
		}
	}

	out := make([]templates.RouteInfo, 0, len(h.routes.Routes))
	for _, rc := range h.routes.Routes {
		info := templates.RouteInfo{
			ID:        rc.ID,
			Name:      rc.Name,
			Color:     rc.Color,
			TextColor: rc.TextColor,
		}
		if fd, ok := h.store.Route(rc.ID); ok {
			info.Trips = len(fd.Trips)
		}
		if row, ok := static[rc.ID]; ok {
			applyStatic(&info, row)
		}
		out = append(out, info)
	}
	return out
}

// applyStatic fills the name and colors the route table leaves empty.
func applyStatic(info *templates.RouteInfo, row storage.RouteRow) {
	if info.Name == "" {
		info.Name = row.RouteLong
	}
	if info.Color == "" {
		info.Color = row.RouteColor
		info.TextColor = row.RouteTextColor
	}
}

// routeView classifies the current trips of a route at now.
func (h *Handler) routeView(routeID string, now time.Time) (transit.RouteView, time.Time) {
	fd, _ := h.store.Route(routeID)
	_, fetchedAt := h.store.Snapshot()
	return transit.BuildRouteView(routeID, fd, h.classifier, now), fetchedAt
}
