package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tick is one price observation for a symbol, from the live stream or the fallback poller.
type Tick struct {
	Symbol string
	Price  decimal.Decimal
	Time   time.Time
	Source string // "stream" or "poll"
}

// Symbol is a tradable pair from the market data catalog.
type Symbol struct {
	Symbol         string          `json:"symbol"`
	BaseAsset      string          `json:"baseAsset"`
	QuoteAsset     string          `json:"quoteAsset"`
	ReferencePrice decimal.Decimal `json:"referencePrice"`
}
