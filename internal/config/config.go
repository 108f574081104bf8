package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all settings, populated from environment variables.
type Config struct {
	APIKey      string
	BaseURL     string
	HTTPTimeout time.Duration

	// Retry and rate-limit policy for the feed API.
	MaxRetries  int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
	MinInterval time.Duration

	ChunkDays int
	CacheDir  string
	OutputDir string

	MetricsTextfile string
	HTTPAddr        string
	ShutdownTimeout time.Duration
	LogLevel        string
	LogFormat       string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	httpTimeout, err := parsePositiveDuration("NEOWS_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	baseDelay, err := parsePositiveDuration("NEOWS_BASE_DELAY", "1s")
	if err != nil {
		return nil, err
	}
	maxDelay, err := parsePositiveDuration("NEOWS_MAX_DELAY", "60s")
	if err != nil {
		return nil, err
	}
	minInterval, err := parseDuration("NEOWS_MIN_INTERVAL", "1s")
	if err != nil {
		return nil, err
	}
	maxRetries, err := parseIntInRange("NEOWS_MAX_RETRIES", "5", 0, 20)
	if err != nil {
		return nil, err
	}
	chunkDays, err := parseIntInRange("CHUNK_DAYS", "7", 1, 7)
	if err != nil {
		return nil, err
	}
	jitter, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("NEOWS_JITTER", "0.1"), 64)
	if err != nil || jitter < 0 || jitter > 1 {
		return nil, fmt.Errorf("invalid NEOWS_JITTER: must be between 0 and 1")
	}

	cfg := &Config{
		APIKey:      os.Getenv("NASA_API_KEY"),
		BaseURL:     sharedcfg.EnvOrDefault("NEOWS_BASE_URL", "https://api.nasa.gov/neo/rest/v1/feed"),
		HTTPTimeout: httpTimeout,

		MaxRetries:  maxRetries,
		BaseDelay:   baseDelay,
		MaxDelay:    maxDelay,
		Jitter:      jitter,
		MinInterval: minInterval,

		ChunkDays: chunkDays,
		CacheDir:  sharedcfg.EnvOrDefault("CACHE_DIR", "data/raw"),
		OutputDir: sharedcfg.EnvOrDefault("OUTPUT_DIR", "data/processed"),

		MetricsTextfile: os.Getenv("METRICS_TEXTFILE"),
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		ShutdownTimeout: shutdownTimeout,
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
	}

	if cfg.MaxDelay < cfg.BaseDelay {
		return nil, fmt.Errorf("invalid NEOWS_MAX_DELAY: must not be below NEOWS_BASE_DELAY")
	}

	return cfg, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := parseDuration(key, def)
	if err != nil || d == 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parseIntInRange(key, def string, lo, hi int) (int, error) {
	n, err := strconv.Atoi(sharedcfg.EnvOrDefault(key, def))
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s: must be an integer between %d and %d", key, lo, hi)
	}
	return n, nil
}
