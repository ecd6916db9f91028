package pending

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"cryptoLevSim/internal/domain"
	"cryptoLevSim/internal/id"
	"cryptoLevSim/internal/ports"
	"cryptoLevSim/internal/risk"
)

// Activator materializes a triggered order as a position. It is called while the
// manager's lock is held and must not call back into the Manager.
type Activator func(ctx context.Context, order *domain.PendingOrder, mark decimal.Decimal) (*domain.Position, error)

// Config holds the dependencies of a Manager.
type Config struct {
	Logger    ports.Logger
	Risk      *risk.RiskManager
	Activator Activator
	Now       func() time.Time
}

// Manager holds orders waiting for their target price.
type Manager struct {
	logger   ports.Logger
	risk     *risk.RiskManager
	activate Activator
	now      func() time.Time

	mu     sync.Mutex
	orders map[string]*domain.PendingOrder
}

// NewManager creates an empty pending order manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Logger == nil || cfg.Risk == nil || cfg.Activator == nil {
		return nil, errors.New("pending: logger, risk manager and activator are required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		logger:   cfg.Logger,
		risk:     cfg.Risk,
		activate: cfg.Activator,
		now:      cfg.Now,
		orders:   make(map[string]*domain.PendingOrder),
	}, nil
}

// OrderRequest describes an order to enter at TargetPrice.
type OrderRequest struct {
	Symbol      string
	Side        domain.Side
	Leverage    int
	Investment  decimal.Decimal
	TargetPrice decimal.Decimal
}

// Add validates the request, takes an admission slot and stores a new order.
func (m *Manager) Add(ctx context.Context, req OrderRequest) (*domain.PendingOrder, error) {
	if err := m.risk.ValidateOrder(req.Side, req.Leverage, req.Investment, req.TargetPrice); err != nil {
		return nil, fmt.Errorf("create pending order: %w", err)
	}
	if err := m.risk.Reserve(); err != nil {
		return nil, fmt.Errorf("create pending order: %w", err)
	}

	o := &domain.PendingOrder{
		ID:          id.WithPrefix("ord"),
		Symbol:      req.Symbol,
		Side:        req.Side,
		TargetPrice: req.TargetPrice,
		Leverage:    req.Leverage,
		Investment:  req.Investment,
		CreatedAt:   m.now(),
	}
	m.mu.Lock()
	m.orders[o.ID] = o
	m.mu.Unlock()

	m.logger.Info(ctx, "Pending order created", map[string]interface{}{
		"orderId": o.ID, "symbol": o.Symbol, "side": o.Side, "targetPrice": o.TargetPrice.String(),
	})
	c := *o
	return &c, nil
}

// Cancel removes an order and frees its slot.
func (m *Manager) Cancel(ctx context.Context, orderID string) error {
	m.mu.Lock()
	_, ok := m.orders[orderID]
	if ok {
		delete(m.orders, orderID)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("cancel order %s: %w", orderID, ports.ErrOrderNotFound)
	}
	m.risk.Release()
	m.logger.Info(ctx, "Pending order cancelled", map[string]interface{}{"orderId": orderID})
	return nil
}

// Evaluate activates every order on symbol whose target tickPrice has crossed and
// returns the ids of the activated orders. Removal and conversion happen under one
// lock, so duplicate or concurrent ticks never activate an order twice. Orders that
// cannot activate stay pending for the next tick.
func (m *Manager) Evaluate(ctx context.Context, symbol string, tickPrice decimal.Decimal) ([]string, error) {
	if err := risk.ValidatePrice(tickPrice); err != nil {
		return nil, fmt.Errorf("evaluate pending orders %s: %w", symbol, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var activated []string
	for _, o := range m.sortedLocked() {
		if o.Symbol != symbol || !o.Triggered(tickPrice) {
			continue
		}
		if !m.risk.CanActivate() {
			m.logger.Warn(ctx, "Pending order deferred: admission limit reached", map[string]interface{}{
				"orderId": o.ID, "symbol": symbol,
			})
			continue
		}

		delete(m.orders, o.ID)
		if _, err := m.activate(ctx, o, tickPrice); err != nil {
			m.orders[o.ID] = o
			m.logger.Error(ctx, err, "Pending order activation failed", map[string]interface{}{"orderId": o.ID})
			continue
		}
		activated = append(activated, o.ID)
	}
	return activated, nil
}

func (m *Manager) sortedLocked() []*domain.PendingOrder {
	out := make([]*domain.PendingOrder, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Orders returns copies of all pending orders, oldest first.
func (m *Manager) Orders() []*domain.PendingOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	sorted := m.sortedLocked()
	out := make([]*domain.PendingOrder, len(sorted))
	for i, o := range sorted {
		c := *o
		out[i] = &c
	}
	return out
}

// Len returns the number of pending orders.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

// Symbols returns the distinct symbols with pending orders.
func (m *Manager) Symbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]struct{}, len(m.orders))
	out := make([]string, 0, len(m.orders))
	for _, o := range m.orders {
		if _, ok := seen[o.Symbol]; !ok {
			seen[o.Symbol] = struct{}{}
			out = append(out, o.Symbol)
		}
	}
	sort.Strings(out)
	return out
}

// Restore replaces the pending set with persisted orders, discarding malformed
// and duplicate ones. The caller restores admission slots.
func (m *Manager) Restore(ctx context.Context, orders []*domain.PendingOrder) (discarded int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.orders = make(map[string]*domain.PendingOrder, len(orders))
	for _, o := range orders {
		if o == nil || o.ID == "" || !o.Side.Valid() || o.Leverage < 1 || !o.TargetPrice.IsPositive() || !o.Investment.IsPositive() {
			discarded++
			continue
		}
		if _, dup := m.orders[o.ID]; dup {
			discarded++
			continue
		}
		c := *o
		m.orders[o.ID] = &c
	}
	if discarded > 0 {
		m.logger.Warn(ctx, "Discarded malformed pending orders", map[string]interface{}{"count": discarded})
	}
	return discarded
}
