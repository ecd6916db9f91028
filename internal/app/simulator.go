package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"cryptoLevSim/config"
	"cryptoLevSim/internal/domain"
	"cryptoLevSim/internal/feed"
	"cryptoLevSim/internal/history"
	"cryptoLevSim/internal/ledger"
	"cryptoLevSim/internal/pending"
	"cryptoLevSim/internal/persistence"
	"cryptoLevSim/internal/ports"
	"cryptoLevSim/internal/risk"
)

const (
	// DefaultDisplayName is shown until the user picks a name.
	DefaultDisplayName = "Anonymous Trader"
	maxDisplayNameLen  = 20
)

// EventKind identifies a notification raised by the simulator.
type EventKind string

const (
	EventPositionClosed EventKind = "position_closed"
	EventOrderActivated EventKind = "order_activated"
)

// Event is a state change the user did not directly request.
type Event struct {
	Kind    EventKind
	Entry   *domain.HistoryEntry // for EventPositionClosed
	OrderID string               // for EventOrderActivated
}

// Dependencies holds the collaborators of a Simulator.
type Dependencies struct {
	Config *config.Config
	Logger ports.Logger
	Feed   ports.MarketDataFeed
	Store  ports.KeyValueStore
	// Notify, when set, receives events from tick handling. It runs on feed
	// goroutines and must not block.
	Notify func(Event)
}

// Simulator is the user-facing surface of the position engine. It routes ticks
// into the pending order manager and ledger, records closures and keeps the
// persisted state current.
type Simulator struct {
	cfg       *config.Config
	logger    ports.Logger
	feed      ports.MarketDataFeed
	notify    func(Event)
	threshold decimal.Decimal

	risk    *risk.RiskManager
	ledger  *ledger.Ledger
	pending *pending.Manager
	history *history.Store
	mux     *feed.Multiplexer
	gateway *persistence.Gateway

	reconcileCh chan struct{}
	persistMu   sync.Mutex // orders snapshot+enqueue pairs

	mu          sync.Mutex // protects the fields below
	selected    string
	marks       map[string]decimal.Decimal
	displayName string
	catalog     map[string]domain.Symbol
}

// NewSimulator wires a Simulator from its dependencies.
func NewSimulator(deps Dependencies) (*Simulator, error) {
	if deps.Config == nil || deps.Logger == nil || deps.Feed == nil || deps.Store == nil {
		return nil, fmt.Errorf("missing required dependencies for Simulator")
	}
	cfg := deps.Config

	s := &Simulator{
		cfg:         cfg,
		logger:      deps.Logger,
		feed:        deps.Feed,
		notify:      deps.Notify,
		threshold:   decimal.NewFromFloat(cfg.MarketOrderThreshold),
		history:     history.NewStore(cfg.HistoryLimit),
		risk:        risk.NewRiskManager(risk.RiskConfig{AdmissionLimit: cfg.AdmissionLimit}),
		reconcileCh: make(chan struct{}, 1),
		selected:    cfg.DefaultSymbol,
		marks:       make(map[string]decimal.Decimal),
		displayName: DefaultDisplayName,
	}
	if s.notify == nil {
		s.notify = func(Event) {}
	}

	var err error
	if s.ledger, err = ledger.New(ledger.Config{Logger: deps.Logger, Risk: s.risk}); err != nil {
		return nil, err
	}
	if s.pending, err = pending.NewManager(pending.Config{Logger: deps.Logger, Risk: s.risk, Activator: s.ledger.Activate}); err != nil {
		return nil, err
	}
	if s.gateway, err = persistence.NewGateway(persistence.Config{
		Store: deps.Store, Logger: deps.Logger, FlushInterval: cfg.PersistInterval,
	}); err != nil {
		return nil, err
	}
	if s.mux, err = feed.New(feed.Config{
		Logger:            deps.Logger,
		Feed:              deps.Feed,
		Handler:           s.handleTick,
		ConnectTimeout:    cfg.ConnectTimeout,
		ReconnectDelay:    cfg.ReconnectDelay,
		MaxReconnectDelay: cfg.MaxReconnectDelay,
		PollInterval:      cfg.FallbackPollInterval,
	}); err != nil {
		return nil, err
	}
	return s, nil
}

// Load restores persisted state. Inconsistent entries are dropped and the
// cleaned state is written back.
func (s *Simulator) Load(ctx context.Context) error {
	state, err := s.gateway.Load(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	discarded := s.ledger.Restore(ctx, state.Positions, state.TakeProfits, state.StopLosses)
	discarded += s.pending.Restore(ctx, state.PendingOrders)
	s.history.Restore(state.History)

	inUse := s.ledger.Len() + s.pending.Len()
	s.risk.Restore(inUse)
	if inUse > s.risk.Limit() {
		s.logger.Warn(ctx, "Restored state exceeds admission limit; new orders are refused until it drains", map[string]interface{}{
			"inUse": inUse, "limit": s.risk.Limit(),
		})
	}

	s.mu.Lock()
	if state.DisplayName != "" {
		s.displayName = state.DisplayName
	}
	for _, p := range s.ledger.Positions() {
		if p.CurrentPrice.IsPositive() {
			s.marks[p.Symbol] = p.CurrentPrice
		}
	}
	s.mu.Unlock()

	if discarded > 0 {
		s.logger.Warn(ctx, "Discarded inconsistent persisted entries", map[string]interface{}{"count": discarded})
		s.persistPositions(ctx)
		s.persistPending(ctx)
		s.persistTriggers(ctx)
	}
	s.requestReconcile()
	return nil
}

// Run keeps subscriptions aligned with the needed symbols, runs the fallback
// poller and the persistence writer until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) error {
	s.logger.Info(ctx, "Starting simulator...")
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.mux.Run(gctx) })
	g.Go(func() error { return s.gateway.Run(gctx) })
	g.Go(func() error {
		s.mux.Reconcile(gctx, s.neededSymbols())
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-s.reconcileCh:
				s.mux.Reconcile(gctx, s.neededSymbols())
			}
		}
	})
	err := g.Wait()
	s.logger.Info(context.Background(), "Simulator stopped.")
	return err
}

// Flush writes queued state immediately.
func (s *Simulator) Flush(ctx context.Context) error {
	return s.gateway.Flush(ctx)
}

func (s *Simulator) requestReconcile() {
	select {
	case s.reconcileCh <- struct{}{}:
	default:
	}
}

// neededSymbols is the selected symbol plus every symbol with an open position
// or a pending order.
func (s *Simulator) neededSymbols() []string {
	s.mu.Lock()
	needed := []string{s.selected}
	s.mu.Unlock()
	needed = append(needed, s.ledger.Symbols()...)
	return append(needed, s.pending.Symbols()...)
}

// handleTick runs on feed goroutines. It never reconciles subscriptions
// directly; symbol set changes are queued for Run.
func (s *Simulator) handleTick(ctx context.Context, tick domain.Tick) {
	if err := risk.ValidatePrice(tick.Price); err != nil {
		s.logger.Warn(ctx, "Ignoring tick with invalid price", map[string]interface{}{"symbol": tick.Symbol, "price": tick.Price.String()})
		return
	}

	s.mu.Lock()
	s.marks[tick.Symbol] = tick.Price
	s.mu.Unlock()

	activated, err := s.pending.Evaluate(ctx, tick.Symbol, tick.Price)
	if err != nil {
		s.logger.Error(ctx, err, "Pending order evaluation failed", map[string]interface{}{"symbol": tick.Symbol})
	}
	closed, err := s.ledger.ApplyTick(ctx, tick.Symbol, tick.Price)
	if err != nil {
		s.logger.Error(ctx, err, "Applying tick failed", map[string]interface{}{"symbol": tick.Symbol})
		return
	}

	for i := range closed {
		s.history.Append(closed[i])
	}
	if len(activated) > 0 {
		s.persistPending(ctx)
	}
	if len(activated) > 0 || len(closed) > 0 {
		s.persistTriggers(ctx)
		s.requestReconcile()
	}
	if len(closed) > 0 {
		s.persistHistory(ctx)
	}
	if len(activated) > 0 || len(closed) > 0 || slices.Contains(s.ledger.Symbols(), tick.Symbol) {
		s.persistPositions(ctx)
	}

	for _, orderID := range activated {
		s.notify(Event{Kind: EventOrderActivated, OrderID: orderID})
	}
	for i := range closed {
		s.notify(Event{Kind: EventPositionClosed, Entry: &closed[i]})
	}
}

// HandleTick feeds one tick through the same path as the live stream.
func (s *Simulator) HandleTick(ctx context.Context, tick domain.Tick) {
	s.handleTick(ctx, tick)
}

// OpenRequest is a user request to enter a position.
type OpenRequest struct {
	Symbol     string
	Side       domain.Side
	Leverage   int
	Investment decimal.Decimal
	// EntryPrice is the requested entry. Zero means "at market".
	EntryPrice decimal.Decimal
}

// OpenResult holds exactly one of Position or Order.
type OpenResult struct {
	Position *domain.Position
	Order    *domain.PendingOrder
}

// Open enters at the current mark when the requested price is within the
// market-order threshold, otherwise it places a pending order at the requested price.
func (s *Simulator) Open(ctx context.Context, req OpenRequest) (*OpenResult, error) {
	symbol := normalizeSymbol(req.Symbol)
	if symbol == "" {
		return nil, fmt.Errorf("open: %w: symbol is required", ports.ErrInvalidInput)
	}
	if req.EntryPrice.IsNegative() {
		return nil, fmt.Errorf("open: %w: %w", ports.ErrInvalidInput, ports.ErrInvalidPrice)
	}

	// Terms are checked before any price lookup. A market request has no price
	// yet, so a placeholder stands in for it.
	checkPrice := req.EntryPrice
	if checkPrice.IsZero() {
		checkPrice = decimal.NewFromInt(1)
	}
	if err := s.risk.ValidateOrder(req.Side, req.Leverage, req.Investment, checkPrice); err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	mark, err := s.markPrice(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	requested := req.EntryPrice
	if requested.IsZero() || risk.RelativeDistance(requested, mark).LessThanOrEqual(s.threshold) {
		p, err := s.ledger.Open(ctx, ledger.OpenRequest{
			Symbol: symbol, Side: req.Side, Leverage: req.Leverage, Investment: req.Investment, EntryPrice: mark,
		})
		if err != nil {
			return nil, err
		}
		s.persistPositions(ctx)
		s.requestReconcile()
		return &OpenResult{Position: p}, nil
	}

	o, err := s.pending.Add(ctx, pending.OrderRequest{
		Symbol: symbol, Side: req.Side, Leverage: req.Leverage, Investment: req.Investment, TargetPrice: requested,
	})
	if err != nil {
		return nil, err
	}
	s.persistPending(ctx)
	s.requestReconcile()
	return &OpenResult{Order: o}, nil
}

// markPrice returns the last observed price for symbol, fetching it when none is known yet.
func (s *Simulator) markPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	s.mu.Lock()
	mark, ok := s.marks[symbol]
	s.mu.Unlock()
	if ok {
		return mark, nil
	}

	tick, err := s.feed.FetchLastPrice(ctx, symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("no price for %s: %w: %w", symbol, ports.ErrFeedUnavailable, err)
	}
	if err := risk.ValidatePrice(tick.Price); err != nil {
		return decimal.Zero, fmt.Errorf("no usable price for %s: %w", symbol, err)
	}
	s.mu.Lock()
	if _, ok := s.marks[symbol]; !ok {
		s.marks[symbol] = tick.Price
	}
	mark = s.marks[symbol]
	s.mu.Unlock()
	return mark, nil
}

// MarkPrice returns the last observed price for symbol without fetching.
func (s *Simulator) MarkPrice(symbol string) (decimal.Decimal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.marks[normalizeSymbol(symbol)]
	return p, ok
}

// Close closes a position at its last observed price and records it.
func (s *Simulator) Close(ctx context.Context, positionID string) (domain.HistoryEntry, error) {
	entry, err := s.ledger.Close(ctx, positionID)
	if err != nil {
		return domain.HistoryEntry{}, err
	}
	s.history.Append(entry)
	s.persistPositions(ctx)
	s.persistTriggers(ctx)
	s.persistHistory(ctx)
	s.requestReconcile()
	return entry, nil
}

// CancelPendingOrder removes a pending order.
func (s *Simulator) CancelPendingOrder(ctx context.Context, orderID string) error {
	if err := s.pending.Cancel(ctx, orderID); err != nil {
		return err
	}
	s.persistPending(ctx)
	s.requestReconcile()
	return nil
}

// SetTakeProfit places or replaces the take-profit order of a position.
func (s *Simulator) SetTakeProfit(ctx context.Context, positionID string, price decimal.Decimal) (*domain.TriggerOrder, error) {
	o, err := s.ledger.SetTakeProfit(ctx, positionID, price)
	if err != nil {
		return nil, err
	}
	s.persistTriggers(ctx)
	return o, nil
}

// ClearTakeProfit removes the take-profit order of a position.
func (s *Simulator) ClearTakeProfit(ctx context.Context, positionID string) error {
	if err := s.ledger.ClearTakeProfit(ctx, positionID); err != nil {
		return err
	}
	s.persistTriggers(ctx)
	return nil
}

// SetStopLoss places or replaces the stop-loss order of a position.
func (s *Simulator) SetStopLoss(ctx context.Context, positionID string, price decimal.Decimal) (*domain.TriggerOrder, error) {
	o, err := s.ledger.SetStopLoss(ctx, positionID, price)
	if err != nil {
		return nil, err
	}
	s.persistTriggers(ctx)
	return o, nil
}

// ClearStopLoss removes the stop-loss order of a position.
func (s *Simulator) ClearStopLoss(ctx context.Context, positionID string) error {
	if err := s.ledger.ClearStopLoss(ctx, positionID); err != nil {
		return err
	}
	s.persistTriggers(ctx)
	return nil
}

// GetOpenPositions returns copies of the open positions, oldest first.
func (s *Simulator) GetOpenPositions() []*domain.Position {
	return s.ledger.Positions()
}

// GetPendingOrders returns copies of the pending orders, oldest first.
func (s *Simulator) GetPendingOrders() []*domain.PendingOrder {
	return s.pending.Orders()
}

// GetTakeProfits returns the take-profit orders.
func (s *Simulator) GetTakeProfits() []*domain.TriggerOrder {
	return s.ledger.TakeProfits()
}

// GetStopLosses returns the stop-loss orders.
func (s *Simulator) GetStopLosses() []*domain.TriggerOrder {
	return s.ledger.StopLosses()
}

// GetHistory returns closed positions matching filter, most recent first.
func (s *Simulator) GetHistory(filter history.Filter) []domain.HistoryEntry {
	return s.history.Query(filter)
}

// GetStatistics aggregates closed positions matching filter.
func (s *Simulator) GetStatistics(filter history.Filter) history.Statistics {
	return s.history.Statistics(filter)
}

// GetPerformance replays closed positions matching filter as a PnL curve.
func (s *Simulator) GetPerformance(filter history.Filter) history.Performance {
	return s.history.Performance(filter)
}

// ClearHistory empties the trade history.
func (s *Simulator) ClearHistory(ctx context.Context) {
	s.history.Clear()
	s.persistHistory(ctx)
	s.logger.Info(ctx, "Trade history cleared")
}

// Symbols returns the tradable catalog, fetched once and cached.
func (s *Simulator) Symbols(ctx context.Context) ([]domain.Symbol, error) {
	s.mu.Lock()
	cached := s.catalog
	s.mu.Unlock()
	if cached == nil {
		list, err := s.feed.ListTradableSymbols(ctx)
		if err != nil {
			return nil, fmt.Errorf("list symbols: %w", err)
		}
		cached = make(map[string]domain.Symbol, len(list))
		for _, sym := range list {
			cached[sym.Symbol] = sym
		}
		s.mu.Lock()
		s.catalog = cached
		s.mu.Unlock()
		return list, nil
	}
	out := make([]domain.Symbol, 0, len(cached))
	for _, sym := range cached {
		out = append(out, sym)
	}
	sortSymbols(out)
	return out, nil
}

// SelectSymbol makes symbol the one under active selection. When the catalog
// has been loaded the symbol must be part of it.
func (s *Simulator) SelectSymbol(ctx context.Context, symbol string) error {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return fmt.Errorf("select symbol: %w: symbol is required", ports.ErrInvalidInput)
	}
	s.mu.Lock()
	if s.catalog != nil {
		sym, ok := s.catalog[symbol]
		if !ok {
			s.mu.Unlock()
			return fmt.Errorf("select symbol %s: %w", symbol, ports.ErrSymbolNotFound)
		}
		if _, seen := s.marks[symbol]; !seen && sym.ReferencePrice.IsPositive() {
			s.marks[symbol] = sym.ReferencePrice
		}
	}
	s.selected = symbol
	s.mu.Unlock()

	s.logger.Info(ctx, "Symbol selected", map[string]interface{}{"symbol": symbol})
	s.requestReconcile()
	return nil
}

// SelectedSymbol returns the symbol under active selection.
func (s *Simulator) SelectedSymbol() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// ConnectionStatus reports the feed status of every needed symbol.
func (s *Simulator) ConnectionStatus() map[string]domain.ConnectionStatus {
	out := make(map[string]domain.ConnectionStatus)
	for _, symbol := range s.neededSymbols() {
		out[symbol] = s.mux.Status(symbol)
	}
	return out
}

// Subscriptions lists the live subscriptions.
func (s *Simulator) Subscriptions() []feed.SubscriptionInfo {
	return s.mux.Subscriptions()
}

// DisplayName returns the saved display name.
func (s *Simulator) DisplayName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayName
}

// SetDisplayName trims and stores name. An empty name restores the default.
func (s *Simulator) SetDisplayName(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > maxDisplayNameLen {
		return "", fmt.Errorf("%w: display name longer than %d characters", ports.ErrInvalidInput, maxDisplayNameLen)
	}
	if name == "" {
		name = DefaultDisplayName
	}
	s.mu.Lock()
	s.displayName = name
	s.mu.Unlock()
	s.persistMu.Lock()
	s.gateway.SaveDisplayName(ctx, name)
	s.persistMu.Unlock()
	return name, nil
}

func (s *Simulator) persistPositions(ctx context.Context) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	s.gateway.SavePositions(ctx, s.ledger.Positions())
}

func (s *Simulator) persistPending(ctx context.Context) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	s.gateway.SavePendingOrders(ctx, s.pending.Orders())
}

func (s *Simulator) persistTriggers(ctx context.Context) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	s.gateway.SaveTriggers(ctx, s.ledger.TakeProfits(), s.ledger.StopLosses())
}

func (s *Simulator) persistHistory(ctx context.Context) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	s.gateway.SaveHistory(ctx, s.history.Entries())
}

// IsUserError reports whether err is a rejection the user can fix.
func IsUserError(err error) bool {
	return errors.Is(err, ports.ErrInvalidInput) ||
		errors.Is(err, ports.ErrCapacityExceeded) ||
		errors.Is(err, ports.ErrPositionNotFound) ||
		errors.Is(err, ports.ErrOrderNotFound) ||
		errors.Is(err, ports.ErrSymbolNotFound)
}
