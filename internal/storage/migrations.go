package storage

import "fmt"

// migrate creates the reference schema if it doesn't exist.
func (db *DB) migrate() error {
	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	db.logger.Info("database migrations applied")
	return nil
}

var migrations = []string{
	// Routes (colors and names for display)
	`CREATE TABLE IF NOT EXISTS routes (
		route_id         TEXT PRIMARY KEY,
		route_short_name TEXT,
		route_long_name  TEXT,
		route_type       INTEGER NOT NULL DEFAULT 1,
		route_color      TEXT,
		route_text_color TEXT,
		route_sort_order INTEGER
	)`,

	// Stops: stations (location_type 1) and their N/S platforms
	`CREATE TABLE IF NOT EXISTS stops (
		stop_id        TEXT PRIMARY KEY,
		stop_name      TEXT NOT NULL,
		stop_lat       REAL NOT NULL,
		stop_lon       REAL NOT NULL,
		location_type  INTEGER DEFAULT 0,
		parent_station TEXT
	)`,

	// R-Tree spatial index on stops for nearest-station queries
	`CREATE VIRTUAL TABLE IF NOT EXISTS stops_rtree USING rtree(
		id,
		min_lat, max_lat,
		min_lon, max_lon
	)`,

	// Feed metadata (last_modified, etag, imported_at, etc.)
	`CREATE TABLE IF NOT EXISTS feed_metadata (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_stops_parent ON stops(parent_station)`,
	`CREATE INDEX IF NOT EXISTS idx_stops_name ON stops(stop_name)`,
}
