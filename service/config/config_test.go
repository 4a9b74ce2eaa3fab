package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cleanupEnv()
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.NATSURL)
	assert.Equal(t, []string{"wss://ws.blockchain.info/inv"}, cfg.BitcoinWSURLs)
	assert.Empty(t, cfg.EthereumWSURLs)
	assert.Len(t, cfg.MarketWSURLs, 1)
	assert.Equal(t, 100.0, cfg.DefaultThreshold)
	assert.Equal(t, 200, cfg.MaxQueue)
	assert.Equal(t, 50, cfg.MaxVisible)
	assert.Equal(t, 400*time.Millisecond, cfg.FlushInterval)
	assert.Equal(t, 3, cfg.MaxInFlight)
	assert.Equal(t, 250*time.Millisecond, cfg.MinFetchInterval)
	assert.Equal(t, 4096, cfg.ClusterWindow)
	assert.Equal(t, 2, cfg.RepeatThreshold)
	assert.Equal(t, 15*time.Second, cfg.MaxBackoff)
}

func TestLoad_CustomValues(t *testing.T) {
	cleanupEnv()
	os.Setenv("SERVER_ADDR", ":9090")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("NATS_URL", "nats://localhost:4222")
	os.Setenv("EVM_WS_URLS", "wss://eth-a.example, wss://eth-b.example")
	os.Setenv("WHALE_THRESHOLDS", "bitcoin=100, ethereum=500")
	os.Setenv("DEFAULT_WHALE_THRESHOLD", "250")
	os.Setenv("MAX_QUEUE", "500")
	os.Setenv("FLUSH_INTERVAL", "1s")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, []string{"wss://eth-a.example", "wss://eth-b.example"}, cfg.EthereumWSURLs)
	assert.Equal(t, map[string]float64{"bitcoin": 100, "ethereum": 500}, cfg.WhaleThresholds)
	assert.Equal(t, 250.0, cfg.DefaultThreshold)
	assert.Equal(t, 500, cfg.MaxQueue)
	assert.Equal(t, time.Second, cfg.FlushInterval)
}

func TestLoad_InvalidFlushInterval(t *testing.T) {
	cleanupEnv()
	os.Setenv("FLUSH_INTERVAL", "soon")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoad_InvalidThresholdEntry(t *testing.T) {
	cleanupEnv()
	os.Setenv("WHALE_THRESHOLDS", "bitcoin:100")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "network=threshold")
}

func TestLoad_InvalidInteger(t *testing.T) {
	cleanupEnv()
	os.Setenv("MAX_QUEUE", "lots")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "invalid integer")
}

func TestLoad_NoEndpoints(t *testing.T) {
	cleanupEnv()
	// Disable both defaulted feeds by pointing them at whitespace.
	os.Setenv("BTC_WS_URLS", " ")
	os.Setenv("MARKET_WS_URLS", " ")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "at least one feed endpoint")
}

func TestValidate(t *testing.T) {
	valid := &Config{
		ServerAddr:      ":8080",
		BitcoinWSURLs:   []string{"wss://x"},
		MaxQueue:        200,
		MaxVisible:      50,
		FlushInterval:   400 * time.Millisecond,
		MaxInFlight:     3,
		ClusterWindow:   4096,
		RepeatThreshold: 2,
		MaxBackoff:      15 * time.Second,
	}
	require.NoError(t, valid.Validate())

	bad := *valid
	bad.MaxQueue = 0
	assert.ErrorContains(t, bad.Validate(), "MaxQueue")

	bad = *valid
	bad.WhaleThresholds = map[string]float64{"bitcoin": -1}
	assert.ErrorContains(t, bad.Validate(), "cannot be negative")

	bad = *valid
	bad.MaxBackoff = time.Millisecond
	assert.ErrorContains(t, bad.Validate(), "MaxBackoff")
}

func cleanupEnv() {
	for _, key := range []string{
		"SERVER_ADDR", "LOG_LEVEL", "NATS_URL",
		"BTC_WS_URLS", "EVM_WS_URLS", "MARKET_WS_URLS",
		"EXCHANGE_FILE", "WHALE_THRESHOLDS", "DEFAULT_WHALE_THRESHOLD",
		"MAX_QUEUE", "MAX_VISIBLE", "FLUSH_INTERVAL",
		"MAX_IN_FLIGHT", "MIN_FETCH_INTERVAL",
		"CLUSTER_WINDOW", "REPEAT_THRESHOLD", "DOMINANT_CAP", "MAX_BACKOFF",
	} {
		os.Unsetenv(key)
	}
}
