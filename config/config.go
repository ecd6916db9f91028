package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v7"
	"github.com/joho/godotenv"

	"cryptoLevSim/internal/adapters/logger" // Import the logger package for LogLevel
)

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Config holds all application configuration.
type Config struct {
	// Simulation rules
	AdmissionLimit       int     `env:"ADMISSION_LIMIT" envDefault:"5"`
	HistoryLimit         int     `env:"HISTORY_LIMIT" envDefault:"50"`
	MarketOrderThreshold float64 `env:"MARKET_ORDER_THRESHOLD" envDefault:"0.0005"` // relative distance, 0.0005 = 0.05%
	DefaultSymbol        string  `env:"DEFAULT_SYMBOL" envDefault:"BTCUSDT"`

	// Market data
	BinanceBaseURL       string        `env:"BINANCE_BASE_URL"`
	QuoteAsset           string        `env:"QUOTE_ASSET" envDefault:"USDT"`
	FallbackPollInterval time.Duration `env:"FALLBACK_POLL_INTERVAL" envDefault:"5s"`
	ReconnectDelay       time.Duration `env:"RECONNECT_DELAY" envDefault:"3s"`
	MaxReconnectDelay    time.Duration `env:"MAX_RECONNECT_DELAY" envDefault:"30s"`
	ConnectTimeout       time.Duration `env:"CONNECT_TIMEOUT" envDefault:"5s"`

	// Persistence
	StoreBackend    string        `env:"STORE_BACKEND" envDefault:"sqlite"`
	StoreNamespace  string        `env:"STORE_NAMESPACE" envDefault:"levsim"`
	PersistInterval time.Duration `env:"PERSIST_INTERVAL" envDefault:"250ms"`
	DBPath          string        `env:"DB_PATH" envDefault:"./data/levsim.db"`
	RedisAddr       string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	RedisDB         int           `env:"REDIS_DB" envDefault:"0"`

	// Logging
	LogLevel  logger.LogLevel `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string          `env:"LOG_FORMAT" envDefault:"text"`
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("configuration parsing failed: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and reports every violation at once.
func (c *Config) Validate() error {
	var errs []string // Collect validation errors

	c.DefaultSymbol = strings.ToUpper(strings.TrimSpace(c.DefaultSymbol))
	c.QuoteAsset = strings.ToUpper(strings.TrimSpace(c.QuoteAsset))
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))

	if c.AdmissionLimit <= 0 {
		errs = append(errs, "ADMISSION_LIMIT must be positive")
	}
	if c.HistoryLimit <= 0 {
		errs = append(errs, "HISTORY_LIMIT must be positive")
	}
	if c.MarketOrderThreshold < 0 || c.MarketOrderThreshold >= 1 {
		errs = append(errs, "MARKET_ORDER_THRESHOLD must be in [0, 1)")
	}
	if c.DefaultSymbol == "" {
		errs = append(errs, "DEFAULT_SYMBOL must be set")
	}
	if c.QuoteAsset == "" {
		errs = append(errs, "QUOTE_ASSET must be set")
	}
	if c.FallbackPollInterval <= 0 {
		errs = append(errs, "FALLBACK_POLL_INTERVAL must be positive")
	}
	if c.ReconnectDelay <= 0 {
		errs = append(errs, "RECONNECT_DELAY must be positive")
	}
	if c.MaxReconnectDelay < c.ReconnectDelay {
		errs = append(errs, "MAX_RECONNECT_DELAY must not be below RECONNECT_DELAY")
	}
	if c.ConnectTimeout <= 0 {
		errs = append(errs, "CONNECT_TIMEOUT must be positive")
	}
	if c.PersistInterval <= 0 {
		errs = append(errs, "PERSIST_INTERVAL must be positive")
	}
	if c.StoreNamespace == "" {
		errs = append(errs, "STORE_NAMESPACE must be set")
	}

	switch c.StoreBackend {
	case StoreSQLite:
		if c.DBPath == "" {
			errs = append(errs, "DB_PATH must be set")
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			errs = append(errs, "REDIS_ADDR must be set")
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Sprintf("STORE_BACKEND must be one of sqlite, redis, memory (got %q)", c.StoreBackend))
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, "LOG_FORMAT must be text or json")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
