package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"cryptoLevSim/internal/domain"
	"cryptoLevSim/internal/ports"
)

// Storage keys. Values are JSON documents.
const (
	KeyPositions     = "positions"
	KeyPendingOrders = "pendingOrders"
	KeyTakeProfits   = "takeProfitOrders"
	KeyStopLosses    = "stopLossOrders"
	KeyHistory       = "tradeHistory"
	KeyDisplayName   = "tradeUsername"

	// KeyLegacyActiveTrade held the single open trade of the old layout.
	KeyLegacyActiveTrade = "activeTrade"
)

// State is everything the simulator keeps across sessions.
type State struct {
	Positions     []*domain.Position
	PendingOrders []*domain.PendingOrder
	TakeProfits   []*domain.TriggerOrder
	StopLosses    []*domain.TriggerOrder
	History       []domain.HistoryEntry
	DisplayName   string
}

// Config holds Gateway dependencies.
type Config struct {
	Store         ports.KeyValueStore
	Logger        ports.Logger
	FlushInterval time.Duration // defaults to 250ms
}

// Gateway maps simulator state onto the key-value store. Saves are queued and
// written by Run in the background; only the latest value per key is kept, so a
// burst of tick updates costs one write.
type Gateway struct {
	store    ports.KeyValueStore
	logger   ports.Logger
	interval time.Duration

	mu    sync.Mutex
	dirty map[string][]byte
}

// NewGateway creates a Gateway over store.
func NewGateway(cfg Config) (*Gateway, error) {
	if cfg.Store == nil || cfg.Logger == nil {
		return nil, errors.New("persistence: store and logger are required")
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 250 * time.Millisecond
	}
	return &Gateway{
		store:    cfg.Store,
		logger:   cfg.Logger,
		interval: cfg.FlushInterval,
		dirty:    make(map[string][]byte),
	}, nil
}

// Load reads the persisted state. A legacy single-trade record is converted into
// the positions list once and removed. Documents that fail to decode are logged
// and treated as empty; only store read failures are returned.
func (g *Gateway) Load(ctx context.Context) (*State, error) {
	state := &State{}

	if err := g.loadKey(ctx, KeyPositions, &state.Positions); err != nil {
		return nil, err
	}
	if err := g.loadKey(ctx, KeyPendingOrders, &state.PendingOrders); err != nil {
		return nil, err
	}
	if err := g.loadKey(ctx, KeyTakeProfits, &state.TakeProfits); err != nil {
		return nil, err
	}
	if err := g.loadKey(ctx, KeyStopLosses, &state.StopLosses); err != nil {
		return nil, err
	}

	raw, ok, err := g.get(ctx, KeyHistory)
	if err != nil {
		return nil, err
	}
	if ok {
		history, derr := decodeHistory(raw)
		if derr != nil {
			g.discard(ctx, KeyHistory, derr)
		}
		state.History = history
	}

	raw, ok, err = g.get(ctx, KeyDisplayName)
	if err != nil {
		return nil, err
	}
	if ok {
		state.DisplayName = decodeDisplayName(raw)
	}

	if err := g.migrateLegacy(ctx, state); err != nil {
		return nil, err
	}

	g.logger.Info(ctx, "State loaded", map[string]interface{}{
		"positions": len(state.Positions), "pendingOrders": len(state.PendingOrders),
		"takeProfits": len(state.TakeProfits), "stopLosses": len(state.StopLosses), "history": len(state.History),
	})
	return state, nil
}

func (g *Gateway) get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, ok, err := g.store.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("load %s: %w: %w", key, ports.ErrPersistenceFailure, err)
	}
	return raw, ok, nil
}

func (g *Gateway) loadKey(ctx context.Context, key string, dst interface{}) error {
	raw, ok, err := g.get(ctx, key)
	if err != nil || !ok {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		g.discard(ctx, key, err)
	}
	return nil
}

func (g *Gateway) discard(ctx context.Context, key string, err error) {
	g.logger.Warn(ctx, "Discarding undecodable persisted value", map[string]interface{}{
		"key": key, "error": fmt.Errorf("%w: %w", ports.ErrInconsistentState, err).Error(),
	})
}

// decodeDisplayName accepts a JSON string or, from older sessions, a bare value.
func decodeDisplayName(raw []byte) string {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return name
	}
	return string(raw)
}

// SavePositions queues the open positions for writing.
func (g *Gateway) SavePositions(ctx context.Context, positions []*domain.Position) {
	g.enqueue(ctx, KeyPositions, nonNil(positions))
}

// SavePendingOrders queues the pending orders for writing.
func (g *Gateway) SavePendingOrders(ctx context.Context, orders []*domain.PendingOrder) {
	g.enqueue(ctx, KeyPendingOrders, nonNil(orders))
}

// SaveTriggers queues both trigger order books for writing.
func (g *Gateway) SaveTriggers(ctx context.Context, takeProfits, stopLosses []*domain.TriggerOrder) {
	g.enqueue(ctx, KeyTakeProfits, nonNil(takeProfits))
	g.enqueue(ctx, KeyStopLosses, nonNil(stopLosses))
}

// SaveHistory queues the trade history for writing.
func (g *Gateway) SaveHistory(ctx context.Context, history []domain.HistoryEntry) {
	g.enqueue(ctx, KeyHistory, nonNil(history))
}

// SaveDisplayName queues the display name for writing.
func (g *Gateway) SaveDisplayName(ctx context.Context, name string) {
	g.enqueue(ctx, KeyDisplayName, name)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (g *Gateway) enqueue(ctx context.Context, key string, v interface{}) {
	raw, err := json.Marshal(v)
	if err != nil {
		g.logger.Error(ctx, err, "Failed to encode state", map[string]interface{}{"key": key})
		return
	}
	g.mu.Lock()
	g.dirty[key] = raw
	g.mu.Unlock()
}

// Pending reports how many keys are waiting to be written.
func (g *Gateway) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.dirty)
}

// Flush writes every queued key now. Failed writes are logged and requeued unless
// a newer value arrived meanwhile; in-memory state is never rolled back.
func (g *Gateway) Flush(ctx context.Context) error {
	g.mu.Lock()
	batch := g.dirty
	g.dirty = make(map[string][]byte)
	g.mu.Unlock()

	keys := make([]string, 0, len(batch))
	for k := range batch {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	for _, key := range keys {
		if err := g.store.Set(ctx, key, batch[key]); err != nil {
			errs = append(errs, fmt.Errorf("save %s: %w: %w", key, ports.ErrPersistenceFailure, err))
			g.logger.Error(ctx, err, "Persistence write failed", map[string]interface{}{"key": key})
			g.mu.Lock()
			if _, newer := g.dirty[key]; !newer {
				g.dirty[key] = batch[key]
			}
			g.mu.Unlock()
		}
	}
	return errors.Join(errs...)
}

// Run writes queued state every flush interval until ctx is done, then flushes
// once more with a short grace period.
func (g *Gateway) Run(ctx context.Context) error {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return g.Flush(shutdownCtx)
		case <-ticker.C:
			if g.Pending() > 0 {
				_ = g.Flush(ctx)
			}
		}
	}
}
