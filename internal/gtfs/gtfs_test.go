package gtfs

import (
	"archive/zip"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subwaywatch/internal/storage"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

const routesTxt = "route_id,agency_id,route_short_name,route_long_name,route_type,route_color,route_text_color,route_sort_order\n" +
	"A,MTA NYCT,A,8 Avenue Express,1,0039A6,FFFFFF,1\n" +
	"G,MTA NYCT,G,Brooklyn-Queens Crosstown,1,6CBE45,,\n"

const stopsTxt = "\xef\xbb\xbfstop_id,stop_name,stop_lat,stop_lon,location_type,parent_station\n" +
	"A02,Inwood-207 St,40.868072,-73.919899,1,\n" +
	"A02N,Inwood-207 St,40.868072,-73.919899,,A02\n" +
	"A02S,Inwood-207 St,40.868072,-73.919899,,A02\n" +
	"BAD,\"Missing, coords\",,,,\n"

func writeZip(t *testing.T, files map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gtfs.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(w, body)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestParseZip(t *testing.T) {
	path := writeZip(t, map[string]string{
		"routes.txt": routesTxt,
		"stops.txt":  stopsTxt,
		"trips.txt":  "route_id,trip_id\nA,x\n",
	})

	feed, err := ParseZip(path, discard)
	require.NoError(t, err)

	require.Len(t, feed.Routes, 2)
	assert.Equal(t, "8 Avenue Express", feed.Routes[0].RouteLongName)
	assert.Empty(t, feed.Routes[1].RouteTextColor)

	require.Len(t, feed.Stops, 3, "row without coordinates is skipped")
	assert.Equal(t, "A02", feed.Stops[0].StopID, "BOM stripped from header")
	assert.Equal(t, "1", feed.Stops[0].LocationType)
	assert.Equal(t, "A02", feed.Stops[2].ParentStation)
}

func TestParseZip_NoStops(t *testing.T) {
	path := writeZip(t, map[string]string{"routes.txt": routesTxt})
	_, err := ParseZip(path, discard)
	assert.Error(t, err)

	_, err = ParseZip(filepath.Join(t.TempDir(), "nope.zip"), discard)
	assert.Error(t, err)
}

func openDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"), discard)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestImporter(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	path := writeZip(t, map[string]string{"routes.txt": routesTxt, "stops.txt": stopsTxt})

	feed, err := ParseZip(path, discard)
	require.NoError(t, err)
	feed.ETag = `"v1"`

	imp := NewImporter(db, discard)
	require.NoError(t, imp.Import(ctx, feed))
	// re-import replaces rather than duplicates
	require.NoError(t, imp.Import(ctx, feed))

	table, err := db.StopTable(ctx)
	require.NoError(t, err)
	assert.Len(t, table, 3)
	assert.Equal(t, "A02", table["A02S"].ParentStation)

	routes, err := db.AllRoutes(ctx)
	require.NoError(t, err)
	require.Len(t, routes, 2)

	etag, err := db.GetMetadata(ctx, "etag")
	require.NoError(t, err)
	assert.Equal(t, `"v1"`, etag)

	near, err := db.NearbyStations(ctx, 40.868, -73.92, 0.01, 5)
	require.NoError(t, err)
	require.Len(t, near, 1)
	assert.Equal(t, "A02", near[0].StopID)
}

func TestSchedulerImportFile(t *testing.T) {
	db := openDB(t)
	path := writeZip(t, map[string]string{"routes.txt": routesTxt, "stops.txt": stopsTxt})

	s := NewScheduler(NewDownloader("http://unused.invalid", t.TempDir(), discard), db, time.UTC, discard)
	var called bool
	s.OnImport = func(context.Context) { called = true }

	require.NoError(t, s.ImportFile(context.Background(), path))
	assert.True(t, called)
	assert.True(t, db.HasData(context.Background()))
}

func TestNextRun(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	before := time.Date(2024, 3, 1, 1, 30, 0, 0, ny)
	assert.Equal(t, time.Date(2024, 3, 1, 3, 0, 0, 0, ny), nextRun(before, ny))

	after := time.Date(2024, 3, 1, 3, 0, 0, 0, ny)
	assert.Equal(t, time.Date(2024, 3, 2, 3, 0, 0, 0, ny), nextRun(after, ny))
}

func TestDownloader(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		// first GET fails to exercise the retry path
		if r.Method == http.MethodGet && hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		io.WriteString(w, "zipbytes")
	}))
	defer srv.Close()

	d := NewDownloader(srv.URL, t.TempDir(), discard)
	ctx := context.Background()

	res, err := d.Check(ctx, "", `"v1"`)
	require.NoError(t, err)
	assert.False(t, res.NeedsUpdate)

	res, err = d.Check(ctx, "", "")
	require.NoError(t, err)
	assert.True(t, res.NeedsUpdate)
	assert.Equal(t, `"v1"`, res.ETag)

	path, _, etag, err := d.Download(ctx)
	require.NoError(t, err)
	assert.Equal(t, `"v1"`, etag)
	assert.EqualValues(t, 2, hits.Load())
	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "zipbytes", string(body))
}

func TestDownloader_ClientErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, _, _, err := NewDownloader(srv.URL, t.TempDir(), discard).Download(context.Background())
	assert.Error(t, err)
	assert.EqualValues(t, 1, hits.Load())
}
