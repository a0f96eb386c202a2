package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "subwaywatch-test", r.Header.Get("User-Agent"))
		assert.Equal(t, nycViewbox, r.URL.Query().Get("viewbox"))
		assert.Equal(t, "1", r.URL.Query().Get("addressdetails"))
		if r.URL.Query().Get("q") == "nowhere" {
			w.Write([]byte(`[]`))
			return
		}
		w.Write([]byte(`[{"lat":"40.7527","lon":"-73.9772","name":"Grand Central Terminal",
			"display_name":"Grand Central Terminal, East 42nd Street, Midtown, Manhattan, New York",
			"address":{"road":"East 42nd Street","neighbourhood":"Midtown East","suburb":"Manhattan"}}]`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "subwaywatch-test")
	res, err := c.Search(context.Background(), "grand central")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.InDelta(t, 40.7527, res.Lat, 1e-9)
	assert.InDelta(t, -73.9772, res.Lon, 1e-9)
	assert.Equal(t, "Grand Central Terminal", res.Name)
	assert.Equal(t, "Midtown East", res.Neighborhood)
	assert.Equal(t, "Manhattan", res.Borough)
	assert.Equal(t, "Grand Central Terminal, Midtown East, Manhattan", res.Label())

	res, err = c.Search(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestSearch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "ua").Search(context.Background(), "x")
	assert.Error(t, err)
}

func TestReverse(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantName    string
		wantBorough string
		wantLabel   string
	}{
		{"house and road",
			`{"address":{"house_number":"89","road":"East 42nd Street","suburb":"Manhattan"}}`,
			"89 East 42nd Street", "Manhattan", "89 East 42nd Street, Manhattan"},
		{"road and neighbourhood",
			`{"address":{"road":"Broadway","neighbourhood":"Inwood","suburb":"Manhattan"}}`,
			"Broadway", "Manhattan", "Broadway, Inwood, Manhattan"},
		{"borough from county",
			`{"address":{"road":"Fulton Street","suburb":"Bedford-Stuyvesant","county":"Kings County"}}`,
			"Fulton Street", "Brooklyn", "Fulton Street, Bedford-Stuyvesant, Brooklyn"},
		{"display name",
			`{"display_name":"Times Square, Manhattan, New York"}`,
			"Times Square", "", "Times Square"},
		{"outside the city",
			`{"address":{"road":"Main Street","suburb":"Hoboken"}}`,
			"Main Street", "", "Main Street, Hoboken"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/reverse", r.URL.Path)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			got, err := New(srv.URL, "ua").Reverse(context.Background(), 40.75, -73.98)
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, got.Name)
			assert.Equal(t, tt.wantBorough, got.Borough)
			assert.Equal(t, tt.wantLabel, got.Label())
			assert.InDelta(t, 40.75, got.Lat, 1e-9)
		})
	}
}

func TestReverse_NoAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "ua").Reverse(context.Background(), 40.75, -73.98)
	assert.Error(t, err)
}
