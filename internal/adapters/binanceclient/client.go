package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"

	"cryptoLevSim/internal/domain"
	"cryptoLevSim/internal/ports"
)

const (
	// Base URLs
	baseURLProduction = "https://api.binance.com"
)

// wsTradeServe is swapped in tests.
var wsTradeServe = binance.WsTradeServe

// Client implements the ports.MarketDataFeed interface on Binance's public spot API.
type Client struct {
	spotClient *binance.Client
	logger     ports.Logger
	quoteAsset string
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	BaseURL    string // optional REST override
	QuoteAsset string // catalog filter, e.g. "USDT"
	Logger     ports.Logger
}

// New creates a new Binance client adapter. Only public endpoints are used, so no keys are needed.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}

	client := binance.NewClient("", "")
	client.BaseURL = baseURLProduction
	if cfg.BaseURL != "" {
		client.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	quote := strings.ToUpper(cfg.QuoteAsset)
	if quote == "" {
		quote = "USDT"
	}
	cfg.Logger.Info(context.Background(), "Binance market data client configured", map[string]interface{}{
		"baseURL": client.BaseURL, "quoteAsset": quote,
	})

	return &Client{spotClient: client, logger: cfg.Logger, quoteAsset: quote}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1007: // Timeout waiting for response from backend server
			mappedErr = ports.ErrTimeout
		case -1121: // Invalid symbol
			mappedErr = ports.ErrSymbolNotFound
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1128: // Parameter/Request format errors
			mappedErr = ports.ErrInvalidRequest
		default:
			mappedErr = ports.ErrFeedUnavailable
		}
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
	}

	// Handle non-API errors (network, context cancellation, etc.)
	var finalErr error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	case strings.Contains(err.Error(), "use of closed network connection"),
		strings.Contains(err.Error(), "connection refused"),
		strings.Contains(err.Error(), "connection reset by peer"),
		strings.Contains(err.Error(), "no such host"):
		finalErr = fmt.Errorf("%s failed: %w: %w: %w", operation, ports.ErrFeedUnavailable, ports.ErrConnectionFailed, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// ListTradableSymbols returns every symbol quoted in the configured asset, sorted by symbol,
// with its last price as reference.
func (c *Client) ListTradableSymbols(ctx context.Context) ([]domain.Symbol, error) {
	op := "ListTradableSymbols"
	stats, err := c.spotClient.NewListPriceChangeStatsService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	symbols := buildCatalog(stats, c.quoteAsset)
	c.logger.Debug(ctx, op+" successful", map[string]interface{}{"count": len(symbols)})
	return symbols, nil
}

func buildCatalog(stats []*binance.PriceChangeStats, quote string) []domain.Symbol {
	out := make([]domain.Symbol, 0, len(stats))
	for _, s := range stats {
		if s == nil || !strings.HasSuffix(s.Symbol, quote) || s.Symbol == quote {
			continue
		}
		price, err := decimal.NewFromString(s.LastPrice)
		if err != nil {
			continue
		}
		out = append(out, domain.Symbol{
			Symbol:         s.Symbol,
			BaseAsset:      strings.TrimSuffix(s.Symbol, quote),
			QuoteAsset:     quote,
			ReferencePrice: price,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// FetchLastPrice retrieves the latest traded price for a symbol.
func (c *Client) FetchLastPrice(ctx context.Context, symbol string) (domain.Tick, error) {
	op := "FetchLastPrice"
	prices, err := c.spotClient.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return domain.Tick{}, c.handleError(ctx, err, op)
	}
	if len(prices) == 0 {
		return domain.Tick{}, c.handleError(ctx, fmt.Errorf("no price data returned for symbol %s: %w", symbol, ports.ErrSymbolNotFound), op)
	}
	price, err := parsePrice(prices[0].Price)
	if err != nil {
		return domain.Tick{}, c.handleError(ctx, err, op)
	}
	return domain.Tick{Symbol: symbol, Price: price, Time: time.Now(), Source: "poll"}, nil
}

// SubscribeTrades opens one trade stream for symbol. The stream is not reconnected here;
// doneCh closes when it ends and the caller decides whether to resubscribe.
func (c *Client) SubscribeTrades(ctx context.Context, symbol string, handler func(tick domain.Tick), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error) {
	op := "SubscribeTrades"

	binanceHandler := func(event *binance.WsTradeEvent) {
		tick, err := translateTradeEvent(event)
		if err != nil {
			c.logger.Warn(ctx, op+": dropping trade event", map[string]interface{}{"symbol": symbol, "error": err.Error()})
			return
		}
		handler(tick)
	}
	binanceErrHandler := func(err error) {
		errHandler(fmt.Errorf("%w: %w", ports.ErrFeedUnavailable, err))
	}

	doneCh, stopCh, err = wsTradeServe(strings.ToLower(symbol), binanceHandler, binanceErrHandler)
	if err != nil {
		return nil, nil, c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+": stream open", map[string]interface{}{"symbol": symbol})
	return doneCh, stopCh, nil
}

func translateTradeEvent(event *binance.WsTradeEvent) (domain.Tick, error) {
	if event == nil {
		return domain.Tick{}, errors.New("nil trade event")
	}
	price, err := parsePrice(event.Price)
	if err != nil {
		return domain.Tick{}, err
	}
	ts := time.Now()
	if event.TradeTime > 0 {
		ts = time.UnixMilli(event.TradeTime)
	}
	return domain.Tick{Symbol: strings.ToUpper(event.Symbol), Price: price, Time: ts, Source: "stream"}, nil
}

func parsePrice(raw string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("could not parse price '%s': %w: %w", raw, ports.ErrInvalidPrice, err)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: got %s", ports.ErrInvalidPrice, raw)
	}
	return price, nil
}
