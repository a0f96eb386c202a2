package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seed(t *testing.T, db *DB) {
	t.Helper()
	ctx := context.Background()
	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()

	stops := []struct {
		id, name, parent string
		lat, lon         float64
		locType          int
	}{
		{"A27", "42 St-Port Authority Bus Terminal", "", 40.757308, -73.989735, 1},
		{"A27N", "42 St-Port Authority Bus Terminal", "A27", 40.757308, -73.989735, 0},
		{"A27S", "42 St-Port Authority Bus Terminal", "A27", 40.757308, -73.989735, 0},
		{"127", "Times Sq-42 St", "", 40.75529, -73.987495, 1},
		{"127N", "Times Sq-42 St", "127", 40.75529, -73.987495, 0},
		{"A02", "Inwood-207 St", "", 40.868072, -73.919899, 1},
	}
	for _, s := range stops {
		var parent any
		if s.parent != "" {
			parent = s.parent
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO stops (stop_id, stop_name, stop_lat, stop_lon, location_type, parent_station)
			 VALUES (?, ?, ?, ?, ?, ?)`, s.id, s.name, s.lat, s.lon, s.locType, parent)
		require.NoError(t, err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO routes (route_id, route_short_name, route_long_name, route_type, route_color, route_text_color, route_sort_order)
		 VALUES ('A', 'A', '8 Avenue Express', 1, '0039A6', 'FFFFFF', 1),
		        ('1', '1', 'Broadway - 7 Avenue Local', 1, 'EE352E', NULL, 0)`)
	require.NoError(t, err)
	require.NoError(t, db.RebuildRTree(ctx, tx))
	require.NoError(t, tx.Commit())
}

func TestHasData(t *testing.T) {
	db := openTestDB(t)
	assert.False(t, db.HasData(context.Background()))
	seed(t, db)
	assert.True(t, db.HasData(context.Background()))
}

func TestMetadata(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	v, err := db.GetMetadata(ctx, "etag")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, db.SetMetadata(ctx, "etag", `"abc"`))
	require.NoError(t, db.SetMetadata(ctx, "etag", `"def"`))
	v, err = db.GetMetadata(ctx, "etag")
	require.NoError(t, err)
	assert.Equal(t, `"def"`, v)
}

func TestStopTable(t *testing.T) {
	db := openTestDB(t)
	seed(t, db)

	table, err := db.StopTable(context.Background())
	require.NoError(t, err)
	assert.Len(t, table, 6)

	info, ok := table.LookupStop("A27N")
	require.True(t, ok)
	assert.Equal(t, "42 St-Port Authority Bus Terminal", info.Name)
	assert.Equal(t, "A27", info.ParentStation)

	_, ok = table.LookupStop("a27n")
	assert.False(t, ok, "lookup is case-sensitive")
}

func TestStopAndPlatforms(t *testing.T) {
	db := openTestDB(t)
	seed(t, db)
	ctx := context.Background()

	s, err := db.Stop(ctx, "127")
	require.NoError(t, err)
	assert.Equal(t, "Times Sq-42 St", s.StopName)
	assert.Equal(t, 1, s.LocationType)

	_, err = db.Stop(ctx, "ZZZ")
	assert.True(t, errors.Is(err, ErrNotFound))

	platforms, err := db.Platforms(ctx, "A27")
	require.NoError(t, err)
	require.Len(t, platforms, 2)
	assert.Equal(t, "A27N", platforms[0].StopID)
	assert.Equal(t, "A27S", platforms[1].StopID)
}

func TestNearbyStations(t *testing.T) {
	db := openTestDB(t)
	seed(t, db)

	// Bryant Park, a couple of blocks from Times Sq
	got, err := db.NearbyStations(context.Background(), 40.7536, -73.9832, 0.01, 10)
	require.NoError(t, err)
	require.Len(t, got, 2, "only parent stations in range")
	assert.Equal(t, "127", got[0].StopID)
	assert.Equal(t, "A27", got[1].StopID)
}

func TestSearchStations(t *testing.T) {
	db := openTestDB(t)
	seed(t, db)
	ctx := context.Background()

	got, err := db.SearchStations(ctx, "42 st", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A27", got[0].StopID)

	got, err = db.SearchStations(ctx, "inwood", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = db.SearchStations(ctx, "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRoutes(t *testing.T) {
	db := openTestDB(t)
	seed(t, db)
	ctx := context.Background()

	routes, err := db.AllRoutes(ctx)
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, "1", routes[0].RouteID)
	assert.Empty(t, routes[0].RouteTextColor)

	r, err := db.Route(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "0039A6", r.RouteColor)

	_, err = db.Route(ctx, "V")
	assert.True(t, errors.Is(err, ErrNotFound))
}
