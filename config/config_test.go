package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoLevSim/internal/adapters/logger"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no .env here
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.AdmissionLimit)
	assert.Equal(t, 50, cfg.HistoryLimit)
	assert.Equal(t, 0.0005, cfg.MarketOrderThreshold)
	assert.Equal(t, "BTCUSDT", cfg.DefaultSymbol)
	assert.Equal(t, "USDT", cfg.QuoteAsset)
	assert.Equal(t, 5*time.Second, cfg.FallbackPollInterval)
	assert.Equal(t, 3*time.Second, cfg.ReconnectDelay)
	assert.Equal(t, 30*time.Second, cfg.MaxReconnectDelay)
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.PersistInterval)
	assert.Equal(t, StoreSQLite, cfg.StoreBackend)
	assert.Equal(t, "./data/levsim.db", cfg.DBPath)
	assert.Equal(t, "levsim", cfg.StoreNamespace)
	assert.Equal(t, logger.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ADMISSION_LIMIT", "3")
	t.Setenv("MARKET_ORDER_THRESHOLD", "0.001")
	t.Setenv("DEFAULT_SYMBOL", " ethusdt ")
	t.Setenv("STORE_BACKEND", "Redis")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("FALLBACK_POLL_INTERVAL", "2s")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "JSON")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.AdmissionLimit)
	assert.Equal(t, 0.001, cfg.MarketOrderThreshold)
	assert.Equal(t, "ETHUSDT", cfg.DefaultSymbol)
	assert.Equal(t, StoreRedis, cfg.StoreBackend)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, 2*time.Second, cfg.FallbackPollInterval)
	assert.Equal(t, logger.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadConfig_ParseError(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ADMISSION_LIMIT", "many")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestValidate_CollectsAllViolations(t *testing.T) {
	cfg := &Config{
		AdmissionLimit:       0,
		HistoryLimit:         50,
		MarketOrderThreshold: 2,
		DefaultSymbol:        "BTCUSDT",
		QuoteAsset:           "USDT",
		FallbackPollInterval: time.Second,
		ReconnectDelay:       time.Second,
		MaxReconnectDelay:    time.Second,
		ConnectTimeout:       time.Second,
		PersistInterval:      time.Second,
		StoreNamespace:       "levsim",
		StoreBackend:         "postgres",
		LogFormat:            "text",
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ADMISSION_LIMIT must be positive")
	assert.Contains(t, err.Error(), "MARKET_ORDER_THRESHOLD")
	assert.Contains(t, err.Error(), "STORE_BACKEND must be one of")
}
