package handler

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"subwaywatch/internal/geo"
	"subwaywatch/internal/geocode"
	"subwaywatch/internal/realtime"
	"subwaywatch/internal/storage"
	"subwaywatch/internal/transit"
)

// ErrorResponse is the JSON error response structure.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// HealthResponse is the JSON response for GET /api/health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Ready     bool      `json:"ready"`
	StaticDB  bool      `json:"staticData"`
	FetchedAt time.Time `json:"fetchedAt"`
	Routes    int       `json:"routes"`
	Trips     int       `json:"trips"`
}

// RouteSummary is one entry of GET /api/routes.
type RouteSummary struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Feed      string   `json:"feed"`
	Color     string   `json:"color,omitempty"`
	TextColor string   `json:"textColor,omitempty"`
	Terminals []string `json:"terminals"`
	Trips     int      `json:"trips"`
}

// StatusesResponse is the JSON response for GET /api/routes/{id}/statuses.
type StatusesResponse struct {
	RouteID   string               `json:"routeId"`
	At        time.Time            `json:"at"`
	FetchedAt time.Time            `json:"fetchedAt"`
	Statuses  []transit.TripStatus `json:"statuses"`
	Count     int                  `json:"count"`
}

// NearbyStation is a station with its distance from the query point.
// GridMeters is the street-grid distance, the sum of the north-south and
// east-west legs.
type NearbyStation struct {
	storage.NearbyStopRow
	Miles       float64 `json:"miles"`
	GridMeters  float64 `json:"gridMeters"`
	WalkMinutes int     `json:"walkMinutes"`
}

// StationsResponse is the JSON response for GET /api/stations.
type StationsResponse struct {
	Query    string            `json:"query"`
	Stations []storage.StopRow `json:"stations"`
	Count    int               `json:"count"`
}

// NearbyResponse is the JSON response for GET /api/nearby.
type NearbyResponse struct {
	Lat          float64         `json:"lat"`
	Lon          float64         `json:"lon"`
	Place        string          `json:"place,omitempty"`
	Neighborhood string          `json:"neighborhood,omitempty"`
	Borough      string          `json:"borough,omitempty"`
	RadiusMeters float64         `json:"radiusMeters"`
	Stations     []NearbyStation `json:"stations"`
}

// radiusTiers are the progressive search half-sides in meters. Manhattan
// stations sit a few hundred meters apart; the outer boroughs need more.
var radiusTiers = []float64{400, 800, 1600, 3200}

const (
	nearbyLimit = 10
	searchLimit = 20
)

// API returns the JSON API router, to be mounted under /api.
func (h *Handler) API() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.GetHealth)
	r.Get("/feeds", h.GetFeeds)
	r.Get("/nearby", h.GetNearby)
	r.Get("/stations", h.GetStations)
	r.Route("/routes", func(r chi.Router) {
		r.Get("/", h.GetRoutes)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/stops", h.GetRouteStops)
			r.Get("/stops/{stopID}", h.GetStopBoard)
			r.Get("/statuses", h.GetRouteStatuses)
			r.Get("/board", h.GetRouteBoard)
			r.Post("/refresh", h.PostRefresh)
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, details map[string]interface{}) {
	writeJSON(w, status, ErrorResponse{Error: msg, Details: details})
}

// knownRoute resolves the {id} URL parameter or writes a 404.
func (h *Handler) knownRoute(w http.ResponseWriter, r *http.Request) (string, bool) {
	routeID := chi.URLParam(r, "id")
	if _, ok := h.routes.Route(routeID); !ok {
		writeError(w, http.StatusNotFound, "Route not found", map[string]interface{}{"routeId": routeID})
		return "", false
	}
	return routeID, true
}

// GetHealth handles GET /api/health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	sched, fetchedAt := h.store.Snapshot()
	resp := HealthResponse{
		Status:    "ok",
		Ready:     h.store.Ready(),
		StaticDB:  h.db != nil && h.db.HasData(r.Context()),
		FetchedAt: fetchedAt,
		Routes:    len(sched),
		Trips:     sched.TripCount(),
	}
	status := http.StatusOK
	if !resp.Ready {
		resp.Status = "starting"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// GetFeeds handles GET /api/feeds.
func (h *Handler) GetFeeds(w http.ResponseWriter, r *http.Request) {
	feeds := h.store.Feeds()
	if feeds == nil {
		feeds = []realtime.FeedStatus{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"feeds": feeds})
}

// GetRoutes handles GET /api/routes.
func (h *Handler) GetRoutes(w http.ResponseWriter, r *http.Request) {
	infos := h.routeInfos(r.Context())
	out := make([]RouteSummary, 0, len(h.routes.Routes))
	for i, rc := range h.routes.Routes {
		info := infos[i]
		terms := rc.Terminals
		if terms == nil {
			terms = []string{}
		}
		out = append(out, RouteSummary{
			ID:        rc.ID,
			Name:      info.Name,
			Feed:      rc.Feed,
			Color:     info.Color,
			TextColor: info.TextColor,
			Terminals: terms,
			Trips:     info.Trips,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"routes": out, "count": len(out)})
}

// GetRouteStops handles GET /api/routes/{id}/stops.
func (h *Handler) GetRouteStops(w http.ResponseWriter, r *http.Request) {
	routeID, ok := h.knownRoute(w, r)
	if !ok {
		return
	}
	fd, _ := h.store.Route(routeID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"routeId": routeID,
		"stops":   transit.StopsForRoute(fd.Trips),
	})
}

// GetRouteStatuses handles GET /api/routes/{id}/statuses.
// Statuses carry a direction resolved against the route's canonical stops.
func (h *Handler) GetRouteStatuses(w http.ResponseWriter, r *http.Request) {
	routeID, ok := h.knownRoute(w, r)
	if !ok {
		return
	}
	now := h.now(r)
	fd, _ := h.store.Route(routeID)
	_, fetchedAt := h.store.Snapshot()

	canonical := transit.StopsForRoute(fd.Trips)
	statuses := h.classifier.ClassifyAll(fd, now)
	for i, s := range statuses {
		statuses[i] = s.WithDirection(transit.ResolveDirection(s, canonical))
	}

	if kind := r.URL.Query().Get("status"); kind != "" {
		var k transit.Kind
		if err := k.UnmarshalText([]byte(strings.ToUpper(kind))); err != nil {
			writeError(w, http.StatusBadRequest, "Unknown status filter", map[string]interface{}{"status": kind})
			return
		}
		filtered := statuses[:0]
		for _, s := range statuses {
			if s.Kind == k {
				filtered = append(filtered, s)
			}
		}
		statuses = filtered
	}

	writeJSON(w, http.StatusOK, StatusesResponse{
		RouteID:   routeID,
		At:        now,
		FetchedAt: fetchedAt,
		Statuses:  statuses,
		Count:     len(statuses),
	})
}

// GetRouteBoard handles GET /api/routes/{id}/board.
func (h *Handler) GetRouteBoard(w http.ResponseWriter, r *http.Request) {
	routeID, ok := h.knownRoute(w, r)
	if !ok {
		return
	}
	view, fetchedAt := h.routeView(routeID, h.now(r))
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, map[string]interface{}{"view": view, "fetchedAt": fetchedAt})
}

// GetStopBoard handles GET /api/routes/{id}/stops/{stopID}.
func (h *Handler) GetStopBoard(w http.ResponseWriter, r *http.Request) {
	routeID, ok := h.knownRoute(w, r)
	if !ok {
		return
	}
	stopID := chi.URLParam(r, "stopID")
	fd, _ := h.store.Route(routeID)
	canonical := transit.StopsForRoute(fd.Trips)

	stop := transit.StopRef{ID: stopID}
	for _, ref := range canonical {
		if ref.ID == stopID {
			stop = ref
			break
		}
	}
	statuses := h.classifier.ClassifyAll(fd, h.now(r))
	writeJSON(w, http.StatusOK, transit.BuildBoard(stop, statuses, canonical))
}

// PostRefresh handles POST /api/routes/{id}/refresh.
func (h *Handler) PostRefresh(w http.ResponseWriter, r *http.Request) {
	routeID, ok := h.knownRoute(w, r)
	if !ok {
		return
	}
	result := h.refresh(r, routeID)
	if result == "error" {
		writeError(w, http.StatusBadGateway, "Feed unavailable", map[string]interface{}{"routeId": routeID})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"routeId":   routeID,
		"refreshed": result == "fetched",
		"result":    result,
	})
}

// GetStations handles GET /api/stations?q=, matching station names that
// contain every word of q.
func (h *Handler) GetStations(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeError(w, http.StatusServiceUnavailable, "Station data not loaded", nil)
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required", nil)
		return
	}
	stations, err := h.db.SearchStations(r.Context(), q, searchLimit)
	if err != nil {
		h.logger.Error("searching stations", "query", q, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to search stations", nil)
		return
	}
	if stations == nil {
		stations = []storage.StopRow{}
	}
	writeJSON(w, http.StatusOK, StationsResponse{Query: q, Stations: stations, Count: len(stations)})
}

// GetNearby handles GET /api/nearby?lat=&lon= or ?q=.
// The search widens through radiusTiers until a station is found.
// label=1 with coordinates adds the reverse-geocoded street, neighborhood
// and borough.
func (h *Handler) GetNearby(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeError(w, http.StatusServiceUnavailable, "Station data not loaded", nil)
		return
	}
	q := r.URL.Query()
	resp := NearbyResponse{Stations: []NearbyStation{}}

	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(q.Get("lon"), 64)
	switch {
	case errLat == nil && errLon == nil:
		resp.Lat, resp.Lon = lat, lon
		if q.Get("label") == "1" && h.geo != nil {
			place, err := h.geo.Reverse(r.Context(), lat, lon)
			if err != nil {
				h.logger.Debug("reverse geocoding failed", "error", err)
			} else {
				resp.describe(place)
			}
		}
	case q.Get("q") != "" && h.geo != nil:
		res, err := h.geo.Search(r.Context(), q.Get("q"))
		if err != nil {
			h.logger.Warn("geocoding failed", "query", q.Get("q"), "error", err)
			writeError(w, http.StatusBadGateway, "Geocoding failed", nil)
			return
		}
		if res == nil {
			writeError(w, http.StatusNotFound, "Place not found", map[string]interface{}{"q": q.Get("q")})
			return
		}
		resp.Lat, resp.Lon = res.Lat, res.Lon
		resp.describe(res)
	default:
		writeError(w, http.StatusBadRequest, "lat and lon, or q, are required", nil)
		return
	}

	for _, radius := range radiusTiers {
		stations, err := h.nearbyWithin(r, resp.Lat, resp.Lon, radius)
		if err != nil {
			h.logger.Error("nearby stations", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to find stations", nil)
			return
		}
		resp.Stations = stations
		resp.RadiusMeters = radius
		if len(stations) > 0 {
			break
		}
	}
	sort.SliceStable(resp.Stations, func(i, j int) bool {
		return resp.Stations[i].DistanceMeters < resp.Stations[j].DistanceMeters
	})
	if len(resp.Stations) > nearbyLimit {
		resp.Stations = resp.Stations[:nearbyLimit]
	}
	writeJSON(w, http.StatusOK, resp)
}

func (resp *NearbyResponse) describe(p *geocode.Place) {
	resp.Place = p.Label()
	resp.Neighborhood = p.Neighborhood
	resp.Borough = p.Borough
}

// nearbyWithin returns stations within radius meters, unsorted.
func (h *Handler) nearbyWithin(r *http.Request, lat, lon, radius float64) ([]NearbyStation, error) {
	latDeg, lonDeg := geo.BoundingBoxRadius(lat, radius)
	rows, err := h.db.NearbyStations(r.Context(), lat, lon, max(latDeg, lonDeg), nearbyLimit*2)
	if err != nil {
		return nil, err
	}
	out := []NearbyStation{}
	for _, row := range rows {
		d := geo.Haversine(lat, lon, row.StopLat, row.StopLon)
		if d > radius {
			continue
		}
		row.DistanceMeters = d
		out = append(out, NearbyStation{
			NearbyStopRow: row,
			Miles:         geo.MetersToMiles(d),
			GridMeters:    geo.ManhattanDistance(lat, lon, row.StopLat, row.StopLon),
			WalkMinutes:   geo.WalkingMinutes(d),
		})
	}
	return out, nil
}
