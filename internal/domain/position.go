package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position represents an open simulated leveraged trade.
type Position struct {
	ID               string          `json:"id"`
	Symbol           string          `json:"symbol"`
	Side             Side            `json:"side"`
	EntryPrice       decimal.Decimal `json:"entryPrice"`
	Leverage         int             `json:"leverage"`
	Investment       decimal.Decimal `json:"investment"`
	CurrentPrice     decimal.Decimal `json:"currentPrice"`
	UnrealizedPnL    decimal.Decimal `json:"unrealizedPnl"`
	UnrealizedROI    decimal.Decimal `json:"unrealizedRoi"` // percent
	LiquidationPrice decimal.Decimal `json:"liquidationPrice"`
	IsActive         bool            `json:"isActive"`
	OpenedAt         time.Time       `json:"openedAt"`
}

// Clone returns a copy that shares no mutable state with p.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
