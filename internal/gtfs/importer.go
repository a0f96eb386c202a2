package gtfs

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"subwaywatch/internal/storage"
)

// Importer loads parsed reference data into SQLite.
type Importer struct {
	db     *storage.DB
	logger *slog.Logger
}

// NewImporter creates an Importer.
func NewImporter(db *storage.DB, logger *slog.Logger) *Importer {
	return &Importer{db: db, logger: logger}
}

// Import replaces the routes and stops tables with feed.
// The entire operation runs in a single transaction for atomicity.
func (imp *Importer) Import(ctx context.Context, feed *Feed) error {
	start := time.Now()

	tx, err := imp.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, t := range []string{"stops", "routes", "stops_rtree"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", t)); err != nil {
			return fmt.Errorf("clear %s: %w", t, err)
		}
	}

	if err := imp.importRoutes(ctx, tx, feed.Routes); err != nil {
		return err
	}
	if err := imp.importStops(ctx, tx, feed.Stops); err != nil {
		return err
	}
	if err := imp.db.RebuildRTree(ctx, tx); err != nil {
		return fmt.Errorf("rebuild rtree: %w", err)
	}

	meta := map[string]string{
		"imported_at":   time.Now().UTC().Format(time.RFC3339),
		"last_modified": feed.LastModified,
		"etag":          feed.ETag,
	}
	for k, v := range meta {
		if v == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO feed_metadata (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("set %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	imp.logger.Info("GTFS import complete",
		"duration", time.Since(start).Round(time.Millisecond),
		"routes", len(feed.Routes),
		"stops", len(feed.Stops),
	)
	return nil
}

func (imp *Importer) importRoutes(ctx context.Context, tx *sql.Tx, routes []Route) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO routes (route_id, route_short_name, route_long_name,
		 route_type, route_color, route_text_color, route_sort_order)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare routes: %w", err)
	}
	defer stmt.Close()

	for _, r := range routes {
		if _, err := stmt.ExecContext(ctx, r.RouteID, r.RouteShortName, r.RouteLongName,
			atoiOr(r.RouteType, 1), r.RouteColor, r.RouteTextColor, nullInt(r.RouteSortOrder)); err != nil {
			return fmt.Errorf("insert route %s: %w", r.RouteID, err)
		}
	}
	imp.logger.Info("imported routes", "count", len(routes))
	return nil
}

func (imp *Importer) importStops(ctx context.Context, tx *sql.Tx, stops []Stop) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO stops (stop_id, stop_name, stop_lat, stop_lon, location_type, parent_station)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare stops: %w", err)
	}
	defer stmt.Close()

	skipped := 0
	for _, s := range stops {
		lat, errLat := strconv.ParseFloat(s.StopLat, 64)
		lon, errLon := strconv.ParseFloat(s.StopLon, 64)
		if errLat != nil || errLon != nil {
			skipped++
			continue
		}
		var parent any
		if s.ParentStation != "" {
			parent = s.ParentStation
		}
		if _, err := stmt.ExecContext(ctx, s.StopID, s.StopName, lat, lon,
			atoiOr(s.LocationType, 0), parent); err != nil {
			return fmt.Errorf("insert stop %s: %w", s.StopID, err)
		}
	}
	imp.logger.Info("imported stops", "count", len(stops)-skipped, "skipped", skipped)
	return nil
}

func atoiOr(s string, fallback int) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return fallback
}

func nullInt(s string) any {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return nil
}
