package ports

import (
	"context"

	"cryptoLevSim/internal/domain"
)

// MarketDataFeed defines the interface for the external market data collaborator.
// This abstraction keeps the position engine independent of any particular exchange.
type MarketDataFeed interface {
	// ListTradableSymbols fetches the catalog of tradable symbols with reference prices.
	ListTradableSymbols(ctx context.Context) ([]domain.Symbol, error)

	// FetchLastPrice is a one-shot pull of the latest trade price, used by the fallback poller.
	FetchLastPrice(ctx context.Context, symbol string) (domain.Tick, error)

	// SubscribeTrades opens one live trade stream for symbol. Every trade is passed to handler;
	// transport errors go to errHandler. doneCh is closed when the stream ends for any reason;
	// sending on (or closing) stopCh asks it to end. Independent concurrent subscriptions
	// per symbol must be supported.
	SubscribeTrades(ctx context.Context, symbol string, handler func(tick domain.Tick), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error)
}
