package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration from environment variables.
type Config struct {
	Port            int
	DBPath          string // empty keeps the snapshot cache in memory
	FeedURL         string
	Agency          string
	RefreshInterval time.Duration
	RequestTimeout  time.Duration // one HTTP exchange
	FetchTimeout    time.Duration // one (route, feed) task
	AlertsURL       string        // GTFS-RT service alerts; empty disables
	RoutesFile      string        // YAML route table; empty uses DefaultRoutes
	Predictions     bool          // fetch representative-stop predictions each cycle

	LogFormat string // text|json
	LogLevel  string // debug|info|warn|error
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:            envInt("STREETWATCH_PORT", 8080),
		DBPath:          envStr("STREETWATCH_DB_PATH", "./streetwatch.db"),
		FeedURL:         envStr("STREETWATCH_FEED_URL", "https://retro.umoiq.com/service/publicXMLFeed"),
		Agency:          envStr("STREETWATCH_AGENCY", "ttc"),
		RefreshInterval: envDuration("STREETWATCH_REFRESH_INTERVAL", 10*time.Second),
		RequestTimeout:  envDuration("STREETWATCH_REQUEST_TIMEOUT", 15*time.Second),
		FetchTimeout:    envDuration("STREETWATCH_FETCH_TIMEOUT", 30*time.Second),
		AlertsURL:       envStr("STREETWATCH_ALERTS_URL", ""),
		RoutesFile:      envStr("STREETWATCH_ROUTES_FILE", ""),
		Predictions:     envBool("STREETWATCH_PREDICTIONS", true),
		LogFormat:       envStr("STREETWATCH_LOG_FORMAT", "text"),
		LogLevel:        envStr("STREETWATCH_LOG_LEVEL", "info"),
	}
}

func envStr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
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

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
