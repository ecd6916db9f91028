package feed

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"cryptoLevSim/internal/domain"
	"cryptoLevSim/internal/ports"
)

// TickHandler receives every tick from every open subscription. Ticks for one
// symbol arrive in order; ticks for different symbols arrive concurrently.
// A handler must not call Reconcile or Close from inside the callback.
type TickHandler func(ctx context.Context, tick domain.Tick)

// Config holds Multiplexer settings.
type Config struct {
	Logger  ports.Logger
	Feed    ports.MarketDataFeed
	Handler TickHandler

	ConnectTimeout    time.Duration
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	PollInterval      time.Duration
	PollConcurrency   int
}

// SubscriptionInfo describes one live subscription.
type SubscriptionInfo struct {
	Symbol     string
	Status     domain.ConnectionStatus
	LastTick   time.Time
	Reconnects int
}

// Multiplexer keeps exactly one live subscription per needed symbol and
// backs them with a periodic request/response poll.
type Multiplexer struct {
	cfg     Config
	logger  ports.Logger
	feed    ports.MarketDataFeed
	handler TickHandler

	mu     sync.Mutex
	subs   map[string]*subscription
	closed bool // set by Close; Reconcile is a no-op afterwards
}

// New creates a Multiplexer with no subscriptions.
func New(cfg Config) (*Multiplexer, error) {
	if cfg.Logger == nil || cfg.Feed == nil || cfg.Handler == nil {
		return nil, errors.New("feed: logger, feed and handler are required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	if cfg.MaxReconnectDelay < cfg.ReconnectDelay {
		cfg.MaxReconnectDelay = cfg.ReconnectDelay
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.PollConcurrency <= 0 {
		cfg.PollConcurrency = 4
	}
	return &Multiplexer{
		cfg:     cfg,
		logger:  cfg.Logger,
		feed:    cfg.Feed,
		handler: cfg.Handler,
		subs:    make(map[string]*subscription),
	}, nil
}

// Reconcile opens subscriptions for newly needed symbols and closes those no
// longer needed. Still-needed subscriptions are left untouched. When it returns,
// closed subscriptions deliver no further ticks.
func (m *Multiplexer) Reconcile(ctx context.Context, needed []string) {
	want := make(map[string]struct{}, len(needed))
	for _, s := range needed {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			want[s] = struct{}{}
		}
	}

	var opened []string
	var toClose []*subscription
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	for symbol, sub := range m.subs {
		if _, ok := want[symbol]; !ok {
			delete(m.subs, symbol)
			toClose = append(toClose, sub)
		}
	}
	for symbol := range want {
		if _, ok := m.subs[symbol]; ok {
			continue
		}
		sub := newSubscription(m, symbol)
		m.subs[symbol] = sub
		opened = append(opened, symbol)
		go sub.run()
	}
	m.mu.Unlock()

	for _, sub := range toClose {
		sub.close()
	}
	if len(opened) > 0 || len(toClose) > 0 {
		closed := make([]string, len(toClose))
		for i, sub := range toClose {
			closed[i] = sub.symbol
		}
		sort.Strings(opened)
		sort.Strings(closed)
		m.logger.Info(ctx, "Subscriptions reconciled", map[string]interface{}{"opened": opened, "closed": closed})
	}
}

// Status reports the connection status of symbol; unsubscribed symbols are disconnected.
func (m *Multiplexer) Status(symbol string) domain.ConnectionStatus {
	m.mu.Lock()
	sub, ok := m.subs[strings.ToUpper(symbol)]
	m.mu.Unlock()
	if !ok {
		return domain.ConnDisconnected
	}
	return sub.info().Status
}

// Subscriptions lists the open subscriptions sorted by symbol.
func (m *Multiplexer) Subscriptions() []SubscriptionInfo {
	subs := m.snapshot()
	out := make([]SubscriptionInfo, len(subs))
	for i, sub := range subs {
		out[i] = sub.info()
	}
	return out
}

func (m *Multiplexer) snapshot() []*subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].symbol < out[j].symbol })
	return out
}

// Run drives the fallback poller until ctx is done, then closes every subscription.
func (m *Multiplexer) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	defer m.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Poll(ctx)
		}
	}
}

// Poll fetches the last price of every subscribed symbol and delivers it
// through the same path as streamed ticks. Fetch failures are logged only.
func (m *Multiplexer) Poll(ctx context.Context) {
	subs := m.snapshot()
	if len(subs) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.PollConcurrency)
	for _, sub := range subs {
		g.Go(func() error {
			tick, err := m.feed.FetchLastPrice(gctx, sub.symbol)
			if err != nil {
				m.logger.Warn(gctx, "Fallback poll failed", map[string]interface{}{"symbol": sub.symbol, "error": err.Error()})
				return nil
			}
			tick.Source = "poll"
			sub.deliver(tick)
			return nil
		})
	}
	_ = g.Wait()
}

// Close closes every subscription and waits for their supervisors to exit.
func (m *Multiplexer) Close() {
	m.mu.Lock()
	m.closed = true
	subs := make([]*subscription, 0, len(m.subs))
	for symbol, sub := range m.subs {
		subs = append(subs, sub)
		delete(m.subs, symbol)
	}
	m.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
	for _, sub := range subs {
		<-sub.done
	}
}
