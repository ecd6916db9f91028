package ledger

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

var minusHundred = decimal.NewFromInt(-100)

// Config holds the dependencies of a Ledger.
type Config struct {
	Logger ports.Logger
	Risk   *risk.RiskManager
	// Now defaults to time.Now.
	Now func() time.Time
}

// Ledger owns the open positions and their take-profit and stop-loss orders.
// All exit decisions for a position happen under one lock, so a position is
// removed and recorded at most once no matter how ticks and closes interleave.
type Ledger struct {
	logger ports.Logger
	risk   *risk.RiskManager
	now    func() time.Time

	mu          sync.Mutex
	positions   map[string]*domain.Position
	takeProfits map[string]*domain.TriggerOrder
	stopLosses  map[string]*domain.TriggerOrder
}

// New creates an empty Ledger.
func New(cfg Config) (*Ledger, error) {
	if cfg.Logger == nil {
		return nil, errors.New("ledger: logger is required")
	}
	if cfg.Risk == nil {
		return nil, errors.New("ledger: risk manager is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Ledger{
		logger:      cfg.Logger,
		risk:        cfg.Risk,
		now:         cfg.Now,
		positions:   make(map[string]*domain.Position),
		takeProfits: make(map[string]*domain.TriggerOrder),
		stopLosses:  make(map[string]*domain.TriggerOrder),
	}, nil
}

// OpenRequest describes a position opened at the market.
type OpenRequest struct {
	Symbol     string
	Side       domain.Side
	Leverage   int
	Investment decimal.Decimal
	EntryPrice decimal.Decimal
}

// Open validates the request, takes an admission slot and adds a new position
// entered at req.EntryPrice.
func (l *Ledger) Open(ctx context.Context, req OpenRequest) (*domain.Position, error) {
	if err := l.risk.ValidateOrder(req.Side, req.Leverage, req.Investment, req.EntryPrice); err != nil {
		return nil, fmt.Errorf("open position: %w", err)
	}
	if err := l.risk.Reserve(); err != nil {
		return nil, fmt.Errorf("open position: %w", err)
	}

	p, err := l.newPosition(req.Symbol, req.Side, req.Leverage, req.Investment, req.EntryPrice, req.EntryPrice)
	if err != nil {
		l.risk.Release()
		return nil, fmt.Errorf("open position: %w", err)
	}

	l.mu.Lock()
	l.positions[p.ID] = p
	l.mu.Unlock()

	l.logger.Info(ctx, "Position opened", map[string]interface{}{
		"positionId": p.ID, "symbol": p.Symbol, "side": p.Side, "entryPrice": p.EntryPrice.String(),
		"leverage": p.Leverage, "investment": p.Investment.String(), "liquidationPrice": p.LiquidationPrice.String(),
	})
	return p.Clone(), nil
}

// Activate turns a pending order into a position entered at the order's target price.
// The order's admission slot moves to the position, so no slot is taken here.
func (l *Ledger) Activate(ctx context.Context, order *domain.PendingOrder, mark decimal.Decimal) (*domain.Position, error) {
	p, err := l.newPosition(order.Symbol, order.Side, order.Leverage, order.Investment, order.TargetPrice, mark)
	if err != nil {
		return nil, fmt.Errorf("activate order %s: %w", order.ID, err)
	}

	l.mu.Lock()
	l.positions[p.ID] = p
	l.mu.Unlock()

	l.logger.Info(ctx, "Pending order activated", map[string]interface{}{
		"orderId": order.ID, "positionId": p.ID, "symbol": p.Symbol, "side": p.Side,
		"entryPrice": p.EntryPrice.String(), "mark": mark.String(),
	})
	return p.Clone(), nil
}

func (l *Ledger) newPosition(symbol string, side domain.Side, leverage int, investment, entry, mark decimal.Decimal) (*domain.Position, error) {
	liq, err := risk.LiquidationPrice(entry, leverage, side)
	if err != nil {
		return nil, err
	}
	p := &domain.Position{
		ID:               id.WithPrefix("pos"),
		Symbol:           symbol,
		Side:             side,
		EntryPrice:       entry,
		Leverage:         leverage,
		Investment:       investment,
		LiquidationPrice: liq,
		IsActive:         true,
		OpenedAt:         l.now(),
	}
	markToMarket(p, mark)
	return p, nil
}

func markToMarket(p *domain.Position, mark decimal.Decimal) {
	p.CurrentPrice = mark
	p.UnrealizedPnL = risk.PnL(p, mark)
	p.UnrealizedROI = risk.ROI(p.UnrealizedPnL, p.Investment)
}

// ApplyTick marks every open position on symbol to markPrice and closes those
// whose exit condition is met. Liquidation wins over take-profit, which wins
// over stop-loss. A symbol with no positions is a no-op.
func (l *Ledger) ApplyTick(ctx context.Context, symbol string, markPrice decimal.Decimal) ([]domain.HistoryEntry, error) {
	if err := risk.ValidatePrice(markPrice); err != nil {
		l.logger.Warn(ctx, "Rejected tick", map[string]interface{}{"symbol": symbol, "price": markPrice.String()})
		return nil, fmt.Errorf("apply tick %s: %w", symbol, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var closed []domain.HistoryEntry
	for _, p := range l.sortedLocked() {
		if p.Symbol != symbol {
			continue
		}

		var reason domain.CloseReason
		switch {
		case risk.IsLiquidated(markPrice, p):
			reason = domain.CloseReasonLiquidation
		case l.hitLocked(l.takeProfits, p, markPrice):
			reason = domain.CloseReasonTakeProfit
		case l.hitLocked(l.stopLosses, p, markPrice):
			reason = domain.CloseReasonStopLoss
		default:
			markToMarket(p, markPrice)
			continue
		}

		entry := l.removeLocked(p, markPrice, reason)
		closed = append(closed, entry)
		fields := map[string]interface{}{
			"positionId": p.ID, "symbol": p.Symbol, "reason": reason,
			"exitPrice": markPrice.String(), "pnl": entry.RealizedPnL.String(),
		}
		if reason == domain.CloseReasonLiquidation {
			l.logger.Warn(ctx, "Position liquidated", fields)
		} else {
			l.logger.Info(ctx, "Position closed by trigger", fields)
		}
	}
	return closed, nil
}

func (l *Ledger) hitLocked(book map[string]*domain.TriggerOrder, p *domain.Position, mark decimal.Decimal) bool {
	o, ok := book[p.ID]
	return ok && o.Hit(p.Side, mark)
}

// Close closes a position at its last observed price.
// Closing a position that has already left the ledger returns ErrPositionNotFound.
func (l *Ledger) Close(ctx context.Context, positionID string) (domain.HistoryEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[positionID]
	if !ok {
		return domain.HistoryEntry{}, fmt.Errorf("close position %s: %w", positionID, ports.ErrPositionNotFound)
	}
	exit := p.CurrentPrice
	if !exit.IsPositive() {
		exit = p.EntryPrice
	}
	entry := l.removeLocked(p, exit, domain.CloseReasonManual)
	l.logger.Info(ctx, "Position closed", map[string]interface{}{
		"positionId": p.ID, "symbol": p.Symbol, "exitPrice": exit.String(), "pnl": entry.RealizedPnL.String(),
	})
	return entry, nil
}

// removeLocked drops p with its trigger orders, frees its slot and builds the history record.
func (l *Ledger) removeLocked(p *domain.Position, exit decimal.Decimal, reason domain.CloseReason) domain.HistoryEntry {
	delete(l.positions, p.ID)
	delete(l.takeProfits, p.ID)
	delete(l.stopLosses, p.ID)
	l.risk.Release()

	pnl := risk.PnL(p, exit)
	roi := risk.ROI(pnl, p.Investment)
	if reason == domain.CloseReasonLiquidation {
		pnl = p.Investment.Neg()
		roi = minusHundred
	}
	closedAt := l.now()
	return domain.HistoryEntry{
		ID:              id.WithPrefix("hist"),
		PositionID:      p.ID,
		Symbol:          p.Symbol,
		Side:            p.Side,
		EntryPrice:      p.EntryPrice,
		ExitPrice:       exit,
		Leverage:        p.Leverage,
		Investment:      p.Investment,
		RealizedPnL:     pnl,
		RealizedROI:     roi,
		OpenedAt:        p.OpenedAt,
		ClosedAt:        closedAt,
		DurationMinutes: domain.DurationMinutes(p.OpenedAt, closedAt),
		Status:          reason.Status(),
		CloseReason:     reason,
	}
}

// SetTakeProfit places or replaces the take-profit order of a position.
func (l *Ledger) SetTakeProfit(ctx context.Context, positionID string, price decimal.Decimal) (*domain.TriggerOrder, error) {
	return l.setTrigger(ctx, domain.TakeProfit, positionID, price)
}

// SetStopLoss places or replaces the stop-loss order of a position.
func (l *Ledger) SetStopLoss(ctx context.Context, positionID string, price decimal.Decimal) (*domain.TriggerOrder, error) {
	return l.setTrigger(ctx, domain.StopLoss, positionID, price)
}

// ClearTakeProfit removes the take-profit order of a position, if any.
func (l *Ledger) ClearTakeProfit(ctx context.Context, positionID string) error {
	return l.clearTrigger(ctx, domain.TakeProfit, positionID)
}

// ClearStopLoss removes the stop-loss order of a position, if any.
func (l *Ledger) ClearStopLoss(ctx context.Context, positionID string) error {
	return l.clearTrigger(ctx, domain.StopLoss, positionID)
}

func (l *Ledger) book(kind domain.TriggerKind) map[string]*domain.TriggerOrder {
	if kind == domain.TakeProfit {
		return l.takeProfits
	}
	return l.stopLosses
}

// setTrigger accepts targets on either side of entry; a take-profit below a
// long's entry simply realizes a loss when hit.
func (l *Ledger) setTrigger(ctx context.Context, kind domain.TriggerKind, positionID string, price decimal.Decimal) (*domain.TriggerOrder, error) {
	if err := risk.ValidatePrice(price); err != nil {
		return nil, fmt.Errorf("set %s: %w: %w", kind, ports.ErrInvalidInput, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[positionID]
	if !ok {
		return nil, fmt.Errorf("set %s for %s: %w", kind, positionID, ports.ErrPositionNotFound)
	}
	pnl := risk.PnL(p, price)
	o := &domain.TriggerOrder{
		PositionID:  positionID,
		Kind:        kind,
		TargetPrice: price,
		ExpectedPnL: pnl,
		ExpectedROI: risk.ROI(pnl, p.Investment),
		CreatedAt:   l.now(),
	}
	l.book(kind)[positionID] = o

	l.logger.Info(ctx, "Trigger order set", map[string]interface{}{
		"positionId": positionID, "kind": kind, "targetPrice": price.String(), "expectedPnl": pnl.String(),
	})
	c := *o
	return &c, nil
}

func (l *Ledger) clearTrigger(ctx context.Context, kind domain.TriggerKind, positionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.positions[positionID]; !ok {
		return fmt.Errorf("clear %s for %s: %w", kind, positionID, ports.ErrPositionNotFound)
	}
	book := l.book(kind)
	if _, ok := book[positionID]; ok {
		delete(book, positionID)
		l.logger.Debug(ctx, "Trigger order cleared", map[string]interface{}{"positionId": positionID, "kind": kind})
	}
	return nil
}

// Position returns a copy of one open position.
func (l *Ledger) Position(positionID string) (*domain.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[positionID]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Positions returns copies of all open positions, oldest first.
func (l *Ledger) Positions() []*domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	sorted := l.sortedLocked()
	out := make([]*domain.Position, len(sorted))
	for i, p := range sorted {
		out[i] = p.Clone()
	}
	return out
}

func (l *Ledger) sortedLocked() []*domain.Position {
	out := make([]*domain.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].OpenedAt.Before(out[j].OpenedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of open positions.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.positions)
}

// Symbols returns the distinct symbols with at least one open position.
func (l *Ledger) Symbols() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	seen := make(map[string]struct{})
	var out []string
	for _, p := range l.positions {
		if _, ok := seen[p.Symbol]; ok {
			continue
		}
		seen[p.Symbol] = struct{}{}
		out = append(out, p.Symbol)
	}
	sort.Strings(out)
	return out
}

// TakeProfits returns copies of all take-profit orders.
func (l *Ledger) TakeProfits() []*domain.TriggerOrder {
	return l.triggers(domain.TakeProfit)
}

// StopLosses returns copies of all stop-loss orders.
func (l *Ledger) StopLosses() []*domain.TriggerOrder {
	return l.triggers(domain.StopLoss)
}

func (l *Ledger) triggers(kind domain.TriggerKind) []*domain.TriggerOrder {
	l.mu.Lock()
	defer l.mu.Unlock()
	book := l.book(kind)
	out := make([]*domain.TriggerOrder, 0, len(book))
	for _, o := range book {
		c := *o
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PositionID < out[j].PositionID })
	return out
}

// Restore replaces the ledger contents with persisted state. Positions that fail
// basic checks and trigger orders whose position is gone are discarded and counted.
// The caller is responsible for restoring admission slots.
func (l *Ledger) Restore(ctx context.Context, positions []*domain.Position, takeProfits, stopLosses []*domain.TriggerOrder) (discarded int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.positions = make(map[string]*domain.Position, len(positions))
	l.takeProfits = make(map[string]*domain.TriggerOrder)
	l.stopLosses = make(map[string]*domain.TriggerOrder)

	for _, p := range positions {
		if p == nil || p.ID == "" || !p.Side.Valid() || p.Leverage < 1 ||
			!p.EntryPrice.IsPositive() || !p.Investment.IsPositive() {
			discarded++
			continue
		}
		if _, dup := l.positions[p.ID]; dup {
			discarded++
			continue
		}
		c := p.Clone()
		liq, err := risk.LiquidationPrice(c.EntryPrice, c.Leverage, c.Side)
		if err != nil {
			discarded++
			continue
		}
		// The liquidation price is derived from the position terms; a stored
		// value that disagrees is replaced.
		if !c.LiquidationPrice.Equal(liq) {
			l.logger.Warn(ctx, "Recomputed liquidation price of restored position", map[string]interface{}{
				"positionId": c.ID, "stored": c.LiquidationPrice.String(), "liquidationPrice": liq.String(),
			})
			c.LiquidationPrice = liq
		}
		l.positions[c.ID] = c
	}

	restoreBook := func(src []*domain.TriggerOrder, kind domain.TriggerKind) {
		for _, o := range src {
			if o == nil {
				continue
			}
			if _, ok := l.positions[o.PositionID]; !ok {
				discarded++
				l.logger.Warn(ctx, "Discarding trigger order for unknown position", map[string]interface{}{
					"positionId": o.PositionID, "kind": kind,
				})
				continue
			}
			c := *o
			c.Kind = kind
			l.book(kind)[o.PositionID] = &c
		}
	}
	restoreBook(takeProfits, domain.TakeProfit)
	restoreBook(stopLosses, domain.StopLoss)
	return discarded
}
