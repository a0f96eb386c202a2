package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"subwaywatch/internal/transit"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// GetMetadata retrieves a value from the feed_metadata table.
func (db *DB) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM feed_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetMetadata stores a key-value pair in the feed_metadata table.
func (db *DB) SetMetadata(ctx context.Context, key, value string) error {
	_, err := db.ExecContext(ctx,
		`INSERT OR REPLACE INTO feed_metadata (key, value) VALUES (?, ?)`,
		key, value)
	return err
}

// StopRow is a station or platform from stops.txt.
type StopRow struct {
	StopID        string  `json:"stopId"`
	StopName      string  `json:"stopName"`
	StopLat       float64 `json:"lat"`
	StopLon       float64 `json:"lon"`
	LocationType  int     `json:"locationType"`
	ParentStation string  `json:"parentStation,omitempty"`
}

// StopTable loads every stop into the lookup used by the feed normalizer.
func (db *DB) StopTable(ctx context.Context) (transit.StopTable, error) {
	rows, err := db.QueryContext(ctx, `SELECT stop_id, stop_name, parent_station FROM stops`)
	if err != nil {
		return nil, fmt.Errorf("stop table query: %w", err)
	}
	defer rows.Close()

	table := make(transit.StopTable)
	for rows.Next() {
		var id, name string
		var parent sql.NullString
		if err := rows.Scan(&id, &name, &parent); err != nil {
			return nil, fmt.Errorf("scan stop: %w", err)
		}
		table[id] = transit.StopInfo{Name: name, ParentStation: parent.String}
	}
	return table, rows.Err()
}

// Stop returns a single stop by id.
func (db *DB) Stop(ctx context.Context, stopID string) (*StopRow, error) {
	var s StopRow
	var parent sql.NullString
	err := db.QueryRowContext(ctx, `
		SELECT stop_id, stop_name, stop_lat, stop_lon, location_type, parent_station
		FROM stops WHERE stop_id = ?`, stopID).
		Scan(&s.StopID, &s.StopName, &s.StopLat, &s.StopLon, &s.LocationType, &parent)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("stop %s: %w", stopID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("stop query: %w", err)
	}
	s.ParentStation = parent.String
	return &s, nil
}

// Platforms returns the child stops of a station, ordered by id.
func (db *DB) Platforms(ctx context.Context, stationID string) ([]StopRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT stop_id, stop_name, stop_lat, stop_lon, location_type, parent_station
		FROM stops WHERE parent_station = ?
		ORDER BY stop_id`, stationID)
	if err != nil {
		return nil, fmt.Errorf("platforms query: %w", err)
	}
	defer rows.Close()
	return scanStops(rows)
}

// NearbyStopRow is a station with its distance from a query point.
type NearbyStopRow struct {
	StopRow
	DistanceMeters float64 `json:"distanceMeters"` // Computed after query via Haversine
}

// NearbyStations finds parent stations within a bounding box using the R-Tree index.
// The caller should refine distances with Haversine and re-sort.
func (db *DB) NearbyStations(ctx context.Context, lat, lon, radiusDeg float64, limit int) ([]NearbyStopRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT s.stop_id, s.stop_name, s.stop_lat, s.stop_lon,
		       s.location_type, s.parent_station
		FROM stops_rtree AS r
		JOIN stops AS s ON s.rowid = r.id
		WHERE r.min_lat >= ? AND r.max_lat <= ?
		  AND r.min_lon >= ? AND r.max_lon <= ?
		  AND s.location_type = 1
		ORDER BY (s.stop_lat - ?)*(s.stop_lat - ?) + (s.stop_lon - ?)*(s.stop_lon - ?)
		LIMIT ?`,
		lat-radiusDeg, lat+radiusDeg,
		lon-radiusDeg, lon+radiusDeg,
		lat, lat, lon, lon,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("nearby stations query: %w", err)
	}
	defer rows.Close()

	stops, err := scanStops(rows)
	if err != nil {
		return nil, err
	}
	out := make([]NearbyStopRow, len(stops))
	for i, s := range stops {
		out[i] = NearbyStopRow{StopRow: s}
	}
	return out, nil
}

// SearchStations finds stations whose name contains every word of query.
func (db *DB) SearchStations(ctx context.Context, query string, limit int) ([]StopRow, error) {
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return nil, nil
	}

	var where []string
	args := make([]any, 0, len(words)+1)
	for _, w := range words {
		where = append(where, `LOWER(stop_name) LIKE '%' || ? || '%'`)
		args = append(args, w)
	}
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, `
		SELECT stop_id, stop_name, stop_lat, stop_lon, location_type, parent_station
		FROM stops
		WHERE location_type = 1 AND `+strings.Join(where, " AND ")+`
		ORDER BY stop_name, stop_id
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("search stations: %w", err)
	}
	defer rows.Close()
	return scanStops(rows)
}

func scanStops(rows *sql.Rows) ([]StopRow, error) {
	var stops []StopRow
	for rows.Next() {
		var s StopRow
		var parent sql.NullString
		if err := rows.Scan(&s.StopID, &s.StopName, &s.StopLat, &s.StopLon,
			&s.LocationType, &parent); err != nil {
			return nil, fmt.Errorf("scan stop: %w", err)
		}
		s.ParentStation = parent.String
		stops = append(stops, s)
	}
	return stops, rows.Err()
}

// RouteRow represents a subway route.
type RouteRow struct {
	RouteID        string `json:"routeId"`
	RouteShort     string `json:"shortName"`
	RouteLong      string `json:"longName"`
	RouteType      int    `json:"routeType"`
	RouteColor     string `json:"color"`
	RouteTextColor string `json:"textColor"`
}

// AllRoutes returns all routes ordered by sort order then route short name.
func (db *DB) AllRoutes(ctx context.Context) ([]RouteRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT route_id, route_short_name, route_long_name, route_type,
		       route_color, route_text_color
		FROM routes
		ORDER BY route_sort_order, route_short_name`)
	if err != nil {
		return nil, fmt.Errorf("all routes query: %w", err)
	}
	defer rows.Close()

	var routes []RouteRow
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		routes = append(routes, r)
	}
	return routes, rows.Err()
}

// Route returns a single route by id.
func (db *DB) Route(ctx context.Context, routeID string) (*RouteRow, error) {
	row := db.QueryRowContext(ctx, `
		SELECT route_id, route_short_name, route_long_name, route_type,
		       route_color, route_text_color
		FROM routes WHERE route_id = ?`, routeID)
	r, err := scanRoute(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("route %s: %w", routeID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRoute(s scanner) (RouteRow, error) {
	var r RouteRow
	var short, long, color, text sql.NullString
	if err := s.Scan(&r.RouteID, &short, &long, &r.RouteType, &color, &text); err != nil {
		return r, fmt.Errorf("scan route: %w", err)
	}
	r.RouteShort, r.RouteLong = short.String, long.String
	r.RouteColor, r.RouteTextColor = color.String, text.String
	return r, nil
}

// HasData returns true if the database has stop reference data imported.
func (db *DB) HasData(ctx context.Context) bool {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM stops`).Scan(&count)
	return err == nil && count > 0
}

// RebuildRTree repopulates the R-Tree index from the stops table.
func (db *DB) RebuildRTree(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM stops_rtree`); err != nil {
		return fmt.Errorf("clear rtree: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO stops_rtree(id, min_lat, max_lat, min_lon, max_lon)
		 SELECT rowid, stop_lat, stop_lat, stop_lon, stop_lon FROM stops`); err != nil {
		return fmt.Errorf("populate rtree: %w", err)
	}
	return nil
}
