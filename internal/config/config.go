package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"subwaywatch/internal/transit"
)

// Config holds application configuration from environment variables.
type Config struct {
	Port       int
	DBPath     string
	GTFSDir    string
	GTFSURL    string // static GTFS zip with stops.txt and routes.txt
	RoutesPath string // route table YAML; empty uses the built-in table
	Timezone   string
	LogLevel   string
	ImportGTFS bool // CLI flag: force GTFS re-import
	Once       bool // CLI flag: poll once, print a summary, exit

	APIKey          string // sent as x-api-key to feed endpoints when set
	PollInterval    time.Duration
	RefreshCooldown time.Duration // minimum age before an on-demand refresh refetches
	FetchTimeout    time.Duration
	FetchMaxElapsed time.Duration // retry budget per feed fetch

	TerminalDeparting time.Duration
	TerminalStale     time.Duration
	MaxEnRouteGap     time.Duration

	NATSURL       string // publishing is disabled when empty
	NATSSubject   string
	CORSOrigins   []string
	MetricsEnable bool
}

// Load reads configuration from environment variables with defaults.
// A .env file in the working directory is applied first if present.
func Load() *Config {
	_ = godotenv.Load()

	d := transit.DefaultThresholds()
	return &Config{
		Port:       envInt("SUBWAYWATCH_PORT", 8080),
		DBPath:     envStr("SUBWAYWATCH_DB_PATH", "./subwaywatch.db"),
		GTFSDir:    envStr("SUBWAYWATCH_GTFS_DIR", "./data"),
		GTFSURL:    envStr("SUBWAYWATCH_GTFS_URL", "http://web.mta.info/developers/data/nyct/subway/google_transit.zip"),
		RoutesPath: envStr("SUBWAYWATCH_ROUTES", ""),
		Timezone:   envStr("SUBWAYWATCH_TIMEZONE", "America/New_York"),
		LogLevel:   envStr("SUBWAYWATCH_LOG_LEVEL", "info"),

		APIKey:          envStr("SUBWAYWATCH_API_KEY", ""),
		PollInterval:    envDuration("SUBWAYWATCH_POLL_INTERVAL", 60*time.Second),
		RefreshCooldown: envDuration("SUBWAYWATCH_REFRESH_COOLDOWN", 60*time.Second),
		FetchTimeout:    envDuration("SUBWAYWATCH_FETCH_TIMEOUT", 15*time.Second),
		FetchMaxElapsed: envDuration("SUBWAYWATCH_FETCH_MAX_ELAPSED", 30*time.Second),

		TerminalDeparting: envDuration("SUBWAYWATCH_TERMINAL_DEPARTING", d.TerminalDeparting),
		TerminalStale:     envDuration("SUBWAYWATCH_TERMINAL_STALE", d.TerminalStale),
		MaxEnRouteGap:     envDuration("SUBWAYWATCH_MAX_ENROUTE_GAP", d.MaxEnRouteGap),

		NATSURL:       envStr("SUBWAYWATCH_NATS_URL", ""),
		NATSSubject:   envStr("SUBWAYWATCH_NATS_SUBJECT", "subway.status"),
		CORSOrigins:   envList("SUBWAYWATCH_CORS_ORIGINS", []string{"*"}),
		MetricsEnable: envBool("SUBWAYWATCH_METRICS", true),
	}
}

// Thresholds returns the classifier tuning.
func (c *Config) Thresholds() transit.Thresholds {
	return transit.Thresholds{
		TerminalDeparting: c.TerminalDeparting,
		TerminalStale:     c.TerminalStale,
		MaxEnRouteGap:     c.MaxEnRouteGap,
	}
}

// Location returns the display timezone, falling back to a fixed
// Eastern offset if the zone database is unavailable.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.FixedZone("EST", -5*60*60)
	}
	return loc
}

// Level maps LogLevel to a slog level. Unknown values mean info.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// envDuration accepts Go durations ("90s", "2m") or a bare number of seconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
