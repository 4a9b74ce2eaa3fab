package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// NATS configuration. Empty disables the JetStream egress.
	NATSURL string

	// Feed endpoints, one list per network kind. Multiple URLs rotate on
	// reconnect.
	BitcoinWSURLs  []string
	EthereumWSURLs []string
	MarketWSURLs   []string

	// Exchange directory file, optional.
	ExchangeFile string

	// Whale thresholds in native units, keyed by network. DefaultThreshold
	// applies to networks without an entry.
	WhaleThresholds  map[string]float64
	DefaultThreshold float64

	// Queue and flush configuration
	MaxQueue      int
	MaxVisible    int
	FlushInterval time.Duration

	// EVM secondary-fetch throttling
	MaxInFlight      int
	MinFetchInterval time.Duration

	// Bitcoin co-spend clustering
	ClusterWindow    int
	RepeatThreshold  int
	DominantCap      int

	// Reconnect backoff cap
	MaxBackoff time.Duration
}

// Load reads configuration from environment variables and validates all
// required fields. Returns an error if any configuration is invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// NATS configuration
	cfg.NATSURL = os.Getenv("NATS_URL")

	// Feed endpoints
	cfg.BitcoinWSURLs = splitList(getEnvOrDefault("BTC_WS_URLS", "wss://ws.blockchain.info/inv"))
	cfg.EthereumWSURLs = splitList(os.Getenv("EVM_WS_URLS"))
	cfg.MarketWSURLs = splitList(getEnvOrDefault("MARKET_WS_URLS", "wss://stream.binance.com:9443/ws/btcusdt@aggTrade"))

	cfg.ExchangeFile = os.Getenv("EXCHANGE_FILE")

	// Whale thresholds: "bitcoin=100,ethereum=500"
	thresholds, err := parseThresholds("WHALE_THRESHOLDS")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.WhaleThresholds = thresholds
	}

	defaultThreshold, err := parseFloat("DEFAULT_WHALE_THRESHOLD", 100.0)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.DefaultThreshold = defaultThreshold
	}

	// Queue and flush configuration
	cfg.MaxQueue, err = parseInt("MAX_QUEUE", 200)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.MaxVisible, err = parseInt("MAX_VISIBLE", 50)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.FlushInterval, err = parseDuration("FLUSH_INTERVAL", "400ms")
	if err != nil {
		errs = append(errs, err)
	}

	// EVM throttling
	cfg.MaxInFlight, err = parseInt("MAX_IN_FLIGHT", 3)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.MinFetchInterval, err = parseDuration("MIN_FETCH_INTERVAL", "250ms")
	if err != nil {
		errs = append(errs, err)
	}

	// Clustering
	cfg.ClusterWindow, err = parseInt("CLUSTER_WINDOW", 4096)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.RepeatThreshold, err = parseInt("REPEAT_THRESHOLD", 2)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.DominantCap, err = parseInt("DOMINANT_CAP", 2)
	if err != nil {
		errs = append(errs, err)
	}

	cfg.MaxBackoff, err = parseDuration("MAX_BACKOFF", "15s")
	if err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.ServerAddr == "" {
		errs = append(errs, fmt.Errorf("ServerAddr is required"))
	}

	if len(c.BitcoinWSURLs) == 0 && len(c.EthereumWSURLs) == 0 && len(c.MarketWSURLs) == 0 {
		errs = append(errs, fmt.Errorf("at least one feed endpoint list is required"))
	}

	if c.MaxQueue <= 0 {
		errs = append(errs, fmt.Errorf("MaxQueue must be positive"))
	}

	if c.MaxVisible <= 0 {
		errs = append(errs, fmt.Errorf("MaxVisible must be positive"))
	}

	if c.FlushInterval <= 0 {
		errs = append(errs, fmt.Errorf("FlushInterval must be positive"))
	}

	if c.MaxInFlight <= 0 {
		errs = append(errs, fmt.Errorf("MaxInFlight must be positive"))
	}

	if c.DefaultThreshold < 0 {
		errs = append(errs, fmt.Errorf("DefaultThreshold cannot be negative"))
	}
	for network, threshold := range c.WhaleThresholds {
		if threshold < 0 {
			errs = append(errs, fmt.Errorf("whale threshold for %s cannot be negative", network))
		}
	}

	if c.ClusterWindow <= 0 {
		errs = append(errs, fmt.Errorf("ClusterWindow must be positive"))
	}

	if c.RepeatThreshold < 1 {
		errs = append(errs, fmt.Errorf("RepeatThreshold must be at least 1"))
	}

	if c.MaxBackoff < time.Second {
		errs = append(errs, fmt.Errorf("MaxBackoff must be at least 1 second"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// splitList splits a comma-separated list, dropping empty entries.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseThresholds parses "network=threshold" pairs from a comma-separated
// environment variable.
func parseThresholds(key string) (map[string]float64, error) {
	value := os.Getenv(key)
	out := make(map[string]float64)
	if value == "" {
		return out, nil
	}
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		network, raw, found := strings.Cut(part, "=")
		if !found {
			return nil, fmt.Errorf("%s: invalid entry %q, want network=threshold", key, part)
		}
		threshold, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid threshold %q: %w", key, raw, err)
		}
		out[strings.TrimSpace(network)] = threshold
	}
	return out, nil
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

// parseFloat parses a float from an environment variable or uses a default.
func parseFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, value, err)
	}
	return result, nil
}
