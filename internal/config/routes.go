package config

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"subwaywatch/internal/transit"
)

//go:embed routes.yml
var defaultRoutes []byte

// FeedConfig is one GTFS-RT endpoint.
type FeedConfig struct {
	Name string `yaml:"name" validate:"required"`
	URL  string `yaml:"url" validate:"required,url"`
}

// RouteConfig describes a subway line and the feed that carries it.
type RouteConfig struct {
	ID        string   `yaml:"id" validate:"required"`
	Name      string   `yaml:"name"`
	Feed      string   `yaml:"feed" validate:"required"`
	Color     string   `yaml:"color" validate:"omitempty,hexcolor"`
	TextColor string   `yaml:"text_color" validate:"omitempty,hexcolor"`
	Terminals []string `yaml:"terminals" validate:"dive,min=3,max=4"`
}

// RouteTable is the static route configuration. It is read once at
// startup and not modified afterwards.
type RouteTable struct {
	Feeds  []FeedConfig  `yaml:"feeds" validate:"required,min=1,dive"`
	Routes []RouteConfig `yaml:"routes" validate:"required,min=1,dive"`

	feeds  map[string]FeedConfig
	routes map[string]RouteConfig
}

// LoadRoutes reads a route table from path, or the built-in table when
// path is empty.
func LoadRoutes(path string) (*RouteTable, error) {
	if path == "" {
		return ParseRoutes(defaultRoutes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routes file: %w", err)
	}
	return ParseRoutes(data)
}

// ParseRoutes decodes and validates a YAML route table.
func ParseRoutes(data []byte) (*RouteTable, error) {
	var rt RouteTable
	if err := yaml.Unmarshal(data, &rt); err != nil {
		return nil, fmt.Errorf("parse routes: %w", err)
	}
	if err := validator.New().Struct(&rt); err != nil {
		return nil, fmt.Errorf("validate routes: %w", err)
	}

	rt.feeds = make(map[string]FeedConfig, len(rt.Feeds))
	for _, f := range rt.Feeds {
		if _, dup := rt.feeds[f.Name]; dup {
			return nil, fmt.Errorf("duplicate feed %q", f.Name)
		}
		rt.feeds[f.Name] = f
	}
	rt.routes = make(map[string]RouteConfig, len(rt.Routes))
	for _, r := range rt.Routes {
		if _, dup := rt.routes[r.ID]; dup {
			return nil, fmt.Errorf("duplicate route %q", r.ID)
		}
		if _, ok := rt.feeds[r.Feed]; !ok {
			return nil, fmt.Errorf("route %q references unknown feed %q", r.ID, r.Feed)
		}
		rt.routes[r.ID] = r
	}
	return &rt, nil
}

// Route returns the configuration for a route id.
func (rt *RouteTable) Route(id string) (RouteConfig, bool) {
	r, ok := rt.routes[id]
	return r, ok
}

// FeedForRoute returns the feed that carries a route.
func (rt *RouteTable) FeedForRoute(id string) (FeedConfig, bool) {
	r, ok := rt.routes[id]
	if !ok {
		return FeedConfig{}, false
	}
	return rt.feeds[r.Feed], true
}

// TerminalMap builds the classifier's terminal index.
func (rt *RouteTable) TerminalMap() transit.TerminalMap {
	m := make(map[string][]string, len(rt.Routes))
	for _, r := range rt.Routes {
		m[r.ID] = r.Terminals
	}
	return transit.NewTerminalMap(m)
}
