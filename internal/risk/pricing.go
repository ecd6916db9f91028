package risk

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"cryptoLevSim/internal/domain"
	"cryptoLevSim/internal/ports"
)

var hundred = decimal.NewFromInt(100)

// leverageBand caps leverage for investments up to and including UpTo.
type leverageBand struct {
	UpTo        decimal.Decimal
	MaxLeverage int
}

var leverageBands = []leverageBand{
	{decimal.NewFromInt(500), 125},
	{decimal.NewFromInt(1000), 100},
	{decimal.NewFromInt(3000), 50},
	{decimal.NewFromInt(5000), 25},
	{decimal.NewFromInt(10000), 15},
	{decimal.NewFromInt(15000), 10},
}

const fallbackMaxLeverage = 10

// MaxLeverage returns the leverage ceiling for an investment amount.
// Band edges are inclusive: 500 maps to 125, 500.01 to 100.
func MaxLeverage(investment decimal.Decimal) int {
	for _, b := range leverageBands {
		if investment.LessThanOrEqual(b.UpTo) {
			return b.MaxLeverage
		}
	}
	return fallbackMaxLeverage
}

// LiquidationPrice returns entry - entry/leverage for longs and entry + entry/leverage for shorts.
func LiquidationPrice(entryPrice decimal.Decimal, leverage int, side domain.Side) (decimal.Decimal, error) {
	if leverage < 1 {
		return decimal.Zero, fmt.Errorf("liquidation price: %w: %d", ports.ErrInvalidLeverage, leverage)
	}
	change := entryPrice.Div(decimal.NewFromInt(int64(leverage)))
	if side == domain.Short {
		return entryPrice.Add(change), nil
	}
	return entryPrice.Sub(change), nil
}

// PositionSize is the notional quantity controlled: leverage * investment / entryPrice.
func PositionSize(entryPrice decimal.Decimal, leverage int, investment decimal.Decimal) decimal.Decimal {
	if entryPrice.IsZero() {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(leverage)).Mul(investment).Div(entryPrice)
}

// PnLAt computes profit or loss for the given terms at markPrice.
// The single division keeps results exact whenever the inputs allow it.
func PnLAt(side domain.Side, entryPrice decimal.Decimal, leverage int, investment, markPrice decimal.Decimal) decimal.Decimal {
	if entryPrice.IsZero() {
		return decimal.Zero
	}
	diff := markPrice.Sub(entryPrice)
	if side == domain.Short {
		diff = diff.Neg()
	}
	return diff.Mul(decimal.NewFromInt(int64(leverage))).Mul(investment).Div(entryPrice)
}

// PnL computes the position's profit or loss at markPrice.
func PnL(p *domain.Position, markPrice decimal.Decimal) decimal.Decimal {
	return PnLAt(p.Side, p.EntryPrice, p.Leverage, p.Investment, markPrice)
}

// ROI returns pnl as a percentage of investment.
func ROI(pnl, investment decimal.Decimal) decimal.Decimal {
	if investment.IsZero() {
		return decimal.Zero
	}
	return pnl.Div(investment).Mul(hundred)
}

// IsLiquidated reports whether markPrice has reached the liquidation price.
// Equality counts as liquidated.
func IsLiquidated(markPrice decimal.Decimal, p *domain.Position) bool {
	if p.Side == domain.Short {
		return markPrice.GreaterThanOrEqual(p.LiquidationPrice)
	}
	return markPrice.LessThanOrEqual(p.LiquidationPrice)
}

// ValidatePrice rejects zero and negative prices.
func ValidatePrice(price decimal.Decimal) error {
	if !price.IsPositive() {
		return fmt.Errorf("%w: got %s", ports.ErrInvalidPrice, price.String())
	}
	return nil
}

// PriceFromFloat converts a float price, rejecting NaN, infinities and non-positive values.
func PriceFromFloat(v float64) (decimal.Decimal, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero, fmt.Errorf("%w: got %v", ports.ErrInvalidPrice, v)
	}
	d := decimal.NewFromFloat(v)
	if err := ValidatePrice(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// ParsePrice parses a decimal price string such as the "p" field of a trade event.
func ParsePrice(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q: %v", ports.ErrInvalidPrice, raw, err)
	}
	if err := ValidatePrice(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// RelativeDistance returns |a-b|/b, used to decide whether a requested entry is "at market".
func RelativeDistance(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.NewFromInt(1)
	}
	return a.Sub(b).Abs().Div(b)
}
