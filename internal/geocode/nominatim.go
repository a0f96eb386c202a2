package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the public Nominatim instance.
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

// nycViewbox bounds searches to the five boroughs.
const nycViewbox = "-74.26,40.49,-73.69,40.92"

var boroughs = map[string]string{
	"manhattan":     "Manhattan",
	"new york":      "Manhattan",
	"brooklyn":      "Brooklyn",
	"kings county":  "Brooklyn",
	"queens":        "Queens",
	"queens county": "Queens",
	"bronx":         "The Bronx",
	"the bronx":     "The Bronx",
	"staten island": "Staten Island",
	"richmond":      "Staten Island",
}

// Place is a geocoded point in New York City.
type Place struct {
	Lat          float64
	Lon          float64
	Name         string // street address or the leading part of the display name
	Neighborhood string
	Borough      string // empty outside the five boroughs
}

// Label is the short rider-facing description, e.g. "Inwood, Manhattan".
func (p Place) Label() string {
	var parts []string
	for _, s := range []string{p.Name, p.Neighborhood, p.Borough} {
		if s != "" && (len(parts) == 0 || parts[len(parts)-1] != s) {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

// Client is a Nominatim geocoding client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
}

// New creates a Nominatim geocoding client against baseURL
// (DefaultBaseURL when empty). userAgent is required by Nominatim's usage policy.
func New(baseURL, userAgent string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		userAgent:  userAgent,
	}
}

type address struct {
	HouseNumber   string `json:"house_number"`
	Road          string `json:"road"`
	Neighbourhood string `json:"neighbourhood"`
	Quarter       string `json:"quarter"`
	Suburb        string `json:"suburb"`
	Borough       string `json:"borough"`
	CityDistrict  string `json:"city_district"`
	County        string `json:"county"`
}

type place struct {
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	Name        string  `json:"name"`
	DisplayName string  `json:"display_name"`
	Address     address `json:"address"`
}

// Search geocodes a free-form query within New York City.
// Returns the top match, or nil if nothing was found.
func (c *Client) Search(ctx context.Context, query string) (*Place, error) {
	var results []place
	err := c.get(ctx, "/search", url.Values{
		"q":              {query},
		"format":         {"jsonv2"},
		"limit":          {"1"},
		"countrycodes":   {"us"},
		"viewbox":        {nycViewbox},
		"bounded":        {"1"},
		"addressdetails": {"1"},
	}, &results)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}

	p := results[0].toPlace()
	if p.Name == "" {
		p.Name = firstPart(results[0].DisplayName)
	}
	if p.Lat, err = strconv.ParseFloat(results[0].Lat, 64); err != nil {
		return nil, fmt.Errorf("parse lat: %w", err)
	}
	if p.Lon, err = strconv.ParseFloat(results[0].Lon, 64); err != nil {
		return nil, fmt.Errorf("parse lon: %w", err)
	}
	return &p, nil
}

// Reverse describes the street, neighborhood and borough at a point, used
// to label "stations near you" results.
func (c *Client) Reverse(ctx context.Context, lat, lon float64) (*Place, error) {
	var result place
	err := c.get(ctx, "/reverse", url.Values{
		"lat":            {strconv.FormatFloat(lat, 'f', 6, 64)},
		"lon":            {strconv.FormatFloat(lon, 'f', 6, 64)},
		"format":         {"jsonv2"},
		"zoom":           {"18"}, // street-level
		"addressdetails": {"1"},
	}, &result)
	if err != nil {
		return nil, err
	}

	p := result.toPlace()
	p.Lat, p.Lon = lat, lon
	if a := result.Address; a.Road != "" {
		p.Name = strings.TrimSpace(a.HouseNumber + " " + a.Road)
	} else if p.Name == "" {
		p.Name = firstPart(result.DisplayName)
	}
	if p.Label() == "" {
		return nil, fmt.Errorf("no address found")
	}
	return &p, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("nominatim %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("nominatim %s status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("nominatim %s decode: %w", path, err)
	}
	return nil
}

func (p place) toPlace() Place {
	a := p.Address
	out := Place{Name: p.Name}
	for _, s := range []string{a.Borough, a.CityDistrict, a.Suburb, a.County} {
		if b, ok := boroughs[strings.ToLower(s)]; ok {
			out.Borough = b
			break
		}
	}
	for _, s := range []string{a.Neighbourhood, a.Quarter, a.Suburb} {
		if _, isBorough := boroughs[strings.ToLower(s)]; s != "" && !isBorough {
			out.Neighborhood = s
			break
		}
	}
	return out
}

func firstPart(displayName string) string {
	if i := strings.Index(displayName, ","); i > 0 {
		return displayName[:i]
	}
	return displayName
}
