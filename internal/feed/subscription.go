package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"cryptoLevSim/internal/domain"
	"cryptoLevSim/internal/ports"
)

// subscription supervises the live trade stream of one symbol, reconnecting
// until it is closed.
type subscription struct {
	symbol string
	m      *Multiplexer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{} // closed when the supervise loop exits

	// deliverMu is read-held for every delivered tick and write-held by close,
	// so once close returns no tick is in flight and none will follow.
	deliverMu sync.RWMutex
	closed    bool

	stateMu    sync.Mutex
	status     domain.ConnectionStatus
	lastTick   time.Time
	reconnects int
}

func newSubscription(m *Multiplexer, symbol string) *subscription {
	ctx, cancel := context.WithCancel(context.Background())
	return &subscription{
		symbol: symbol,
		m:      m,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		status: domain.ConnConnecting,
	}
}

// close stops the stream and any scheduled reconnect, then waits out in-flight deliveries.
func (s *subscription) close() {
	s.cancel()
	s.deliverMu.Lock()
	s.closed = true
	s.deliverMu.Unlock()
	s.setStatus(domain.ConnDisconnected)
}

func (s *subscription) deliver(tick domain.Tick) {
	s.deliverMu.RLock()
	defer s.deliverMu.RUnlock()
	if s.closed {
		return
	}
	tick.Symbol = s.symbol
	s.stateMu.Lock()
	s.lastTick = tick.Time
	s.stateMu.Unlock()
	s.m.handler(s.ctx, tick)
}

func (s *subscription) setStatus(status domain.ConnectionStatus) {
	s.stateMu.Lock()
	prev := s.status
	s.status = status
	s.stateMu.Unlock()
	if prev != status {
		s.m.logger.Debug(s.ctx, "Subscription status changed", map[string]interface{}{
			"symbol": s.symbol, "from": prev, "to": status,
		})
	}
}

func (s *subscription) info() SubscriptionInfo {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return SubscriptionInfo{Symbol: s.symbol, Status: s.status, LastTick: s.lastTick, Reconnects: s.reconnects}
}

// run connects, waits for the stream to end and reconnects with backoff.
// It returns when the subscription is closed.
func (s *subscription) run() {
	defer close(s.done)
	op := "subscription"
	b := &backoff.Backoff{
		Min:    s.m.cfg.ReconnectDelay,
		Max:    s.m.cfg.MaxReconnectDelay,
		Factor: 2,
		Jitter: true,
	}

	for {
		s.setStatus(domain.ConnConnecting)
		doneC, stopC, err := s.connect()
		if err == nil {
			s.setStatus(domain.ConnConnected)
			b.Reset()
			select {
			case <-s.ctx.Done():
				close(stopC)
				return
			case <-doneC:
				s.setStatus(domain.ConnDisconnected)
				s.m.logger.Warn(s.ctx, op+": stream closed, scheduling reconnect", map[string]interface{}{"symbol": s.symbol})
			}
		} else {
			if s.ctx.Err() != nil {
				return
			}
			s.setStatus(domain.ConnError)
			s.m.logger.Error(s.ctx, err, op+": connect failed", map[string]interface{}{"symbol": s.symbol})
		}

		delay := b.Duration()
		s.m.logger.Info(s.ctx, op+": reconnecting", map[string]interface{}{"symbol": s.symbol, "delay": delay.String()})
		timer := time.NewTimer(delay)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		s.stateMu.Lock()
		s.reconnects++
		s.stateMu.Unlock()
	}
}

type connectResult struct {
	doneC, stopC chan struct{}
	err          error
}

// connect opens one stream, giving up after the configured timeout. A stream
// that comes up after the timeout is stopped straight away.
func (s *subscription) connect() (chan struct{}, chan struct{}, error) {
	resCh := make(chan connectResult, 1)
	go func() {
		doneC, stopC, err := s.m.feed.SubscribeTrades(s.ctx, s.symbol, s.deliver, s.onStreamError)
		resCh <- connectResult{doneC, stopC, err}
	}()

	timer := time.NewTimer(s.m.cfg.ConnectTimeout)
	defer timer.Stop()

	select {
	case r := <-resCh:
		if r.err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ports.ErrFeedUnavailable, r.err)
		}
		return r.doneC, r.stopC, nil
	case <-timer.C:
		go discardLate(resCh)
		return nil, nil, fmt.Errorf("%w: %w: connect %s after %s", ports.ErrFeedUnavailable, ports.ErrTimeout, s.symbol, s.m.cfg.ConnectTimeout)
	case <-s.ctx.Done():
		go discardLate(resCh)
		return nil, nil, s.ctx.Err()
	}
}

func discardLate(resCh <-chan connectResult) {
	if r := <-resCh; r.err == nil {
		close(r.stopC)
	}
}

func (s *subscription) onStreamError(err error) {
	if s.ctx.Err() != nil {
		return
	}
	s.setStatus(domain.ConnError)
	s.m.logger.Error(s.ctx, err, "subscription: stream error", map[string]interface{}{"symbol": s.symbol})
}
