package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PendingOrder waits for the market to reach TargetPrice before becoming a Position.
// It is never mutated after creation.
type PendingOrder struct {
	ID          string          `json:"id"`
	Symbol      string          `json:"symbol"`
	Side        Side            `json:"side"`
	TargetPrice decimal.Decimal `json:"targetPrice"`
	Leverage    int             `json:"leverage"`
	Investment  decimal.Decimal `json:"investment"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Triggered reports whether price has crossed the order's target.
// Longs fill at or below target, shorts at or above.
func (o *PendingOrder) Triggered(price decimal.Decimal) bool {
	if o.Side == Long {
		return price.LessThanOrEqual(o.TargetPrice)
	}
	return price.GreaterThanOrEqual(o.TargetPrice)
}

// TriggerOrder is a take-profit or stop-loss attached to one position.
// ExpectedPnL and ExpectedROI are informational, computed when the order was placed.
type TriggerOrder struct {
	PositionID  string          `json:"positionId"`
	Kind        TriggerKind     `json:"kind"`
	TargetPrice decimal.Decimal `json:"targetPrice"`
	ExpectedPnL decimal.Decimal `json:"expectedPnl"`
	ExpectedROI decimal.Decimal `json:"expectedRoi"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Hit reports whether mark crosses the trigger for a position on the given side.
func (o *TriggerOrder) Hit(side Side, mark decimal.Decimal) bool {
	switch o.Kind {
	case TakeProfit:
		if side == Long {
			return mark.GreaterThanOrEqual(o.TargetPrice)
		}
		return mark.LessThanOrEqual(o.TargetPrice)
	case StopLoss:
		if side == Long {
			return mark.LessThanOrEqual(o.TargetPrice)
		}
		return mark.GreaterThanOrEqual(o.TargetPrice)
	}
	return false
}
