package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"cryptoLevSim/config"
	"cryptoLevSim/internal/adapters/binanceclient"
	"cryptoLevSim/internal/adapters/logger"
	"cryptoLevSim/internal/adapters/memstore"
	"cryptoLevSim/internal/adapters/redisstore"
	"cryptoLevSim/internal/adapters/sqlite"
	"cryptoLevSim/internal/app"
	"cryptoLevSim/internal/ports"
)

// environment is everything a command needs, built from configuration.
type environment struct {
	logger *logger.LogrusLogger
	store  ports.KeyValueStore
	feed   *binanceclient.Client
	sim    *app.Simulator
}

// Close writes any queued state and closes the store.
func (e *environment) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.sim.Flush(ctx); err != nil {
		e.logger.Error(ctx, err, "Error flushing state on exit")
	}
	if err := e.store.Close(); err != nil {
		e.logger.Error(context.Background(), err, "Error closing state store")
	}
}

// bootstrap wires logger, state store, market data client and simulator, and
// loads persisted state.
func bootstrap(ctx context.Context, cfg *config.Config, logOutput io.Writer, notify func(app.Event)) (*environment, error) {
	appLogger := logger.NewLogrusLogger(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: logOutput})
	appLogger.Debug(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	store, err := openStore(ctx, cfg, appLogger)
	if err != nil {
		return nil, err
	}

	client, err := binanceclient.New(binanceclient.Config{
		BaseURL:    cfg.BinanceBaseURL,
		QuoteAsset: cfg.QuoteAsset,
		Logger:     appLogger,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("initialize Binance client: %w", err)
	}

	sim, err := app.NewSimulator(app.Dependencies{
		Config: cfg,
		Logger: appLogger,
		Feed:   client,
		Store:  store,
		Notify: notify,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("initialize simulator: %w", err)
	}
	if err := sim.Load(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return &environment{logger: appLogger, store: store, feed: client, sim: sim}, nil
}

func openStore(ctx context.Context, cfg *config.Config, log ports.Logger) (ports.KeyValueStore, error) {
	switch cfg.StoreBackend {
	case config.StoreRedis:
		store, err := redisstore.New(ctx, redisstore.Config{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			Namespace: cfg.StoreNamespace,
			Logger:    log,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize redis store: %w", err)
		}
		return store, nil
	case config.StoreMemory:
		log.Warn(ctx, "Using in-memory state store; nothing survives exit")
		return memstore.New(), nil
	default:
		repo, err := sqlite.NewRepository(sqlite.Config{
			DBPath:    cfg.DBPath,
			Namespace: cfg.StoreNamespace,
			Logger:    log,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize database repository: %w", err)
		}
		return repo, nil
	}
}
