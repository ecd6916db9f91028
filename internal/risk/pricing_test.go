package risk

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoLevSim/internal/domain"
	"cryptoLevSim/internal/ports"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecEqual(t *testing.T, want, got decimal.Decimal) {
	t.Helper()
	assert.True(t, want.Equal(got), "expected %s, got %s", want, got)
}

func TestMaxLeverage(t *testing.T) {
	tests := []struct {
		investment string
		want       int
	}{
		{"1", 125},
		{"500", 125},
		{"500.01", 100},
		{"1000", 100},
		{"1000.5", 50},
		{"3000", 50},
		{"5000", 25},
		{"10000", 15},
		{"15000", 10},
		{"15000.01", 10},
		{"1000000", 10},
	}
	for _, tt := range tests {
		t.Run(tt.investment, func(t *testing.T) {
			assert.Equal(t, tt.want, MaxLeverage(d(tt.investment)))
		})
	}
}

func TestMaxLeverage_MonotonicNonIncreasing(t *testing.T) {
	prev := MaxLeverage(d("0.01"))
	for inv := int64(1); inv <= 20000; inv += 50 {
		cur := MaxLeverage(decimal.NewFromInt(inv))
		assert.LessOrEqual(t, cur, prev, "investment %d", inv)
		prev = cur
	}
}

func TestLiquidationPrice(t *testing.T) {
	tests := []struct {
		name     string
		entry    string
		leverage int
		side     domain.Side
		want     string
	}{
		{"long 10x", "50000", 10, domain.Long, "45000"},
		{"short 5x", "3000", 5, domain.Short, "3600"},
		{"long 1x collapses to zero", "50000", 1, domain.Long, "0"},
		{"short 1x doubles", "50000", 1, domain.Short, "100000"},
		{"long 125x", "100", 125, domain.Long, "99.2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LiquidationPrice(d(tt.entry), tt.leverage, tt.side)
			require.NoError(t, err)
			assertDecEqual(t, d(tt.want), got)
		})
	}
}

func TestLiquidationPrice_InvalidLeverage(t *testing.T) {
	for _, lev := range []int{0, -1} {
		_, err := LiquidationPrice(d("100"), lev, domain.Long)
		assert.ErrorIs(t, err, ports.ErrInvalidLeverage)
	}
}

func TestLiquidationPrice_BeyondEntryInAdverseDirection(t *testing.T) {
	for lev := 1; lev <= 125; lev++ {
		long, err := LiquidationPrice(d("1234.5"), lev, domain.Long)
		require.NoError(t, err)
		short, err := LiquidationPrice(d("1234.5"), lev, domain.Short)
		require.NoError(t, err)
		assert.True(t, long.LessThan(d("1234.5")), "long lev %d", lev)
		assert.True(t, short.GreaterThan(d("1234.5")), "short lev %d", lev)
	}
}

func TestPnL_ZeroAtEntry(t *testing.T) {
	for _, side := range []domain.Side{domain.Long, domain.Short} {
		p := &domain.Position{Side: side, EntryPrice: d("3000.17"), Leverage: 37, Investment: d("321.5")}
		assert.True(t, PnL(p, p.EntryPrice).IsZero(), "side %s", side)
	}
}

func TestPnL_Scenarios(t *testing.T) {
	short := &domain.Position{Side: domain.Short, EntryPrice: d("3000"), Leverage: 5, Investment: d("200")}

	pnl := PnL(short, d("2700"))
	assertDecEqual(t, d("100"), pnl)
	assertDecEqual(t, d("50"), ROI(pnl, short.Investment))

	pnl = PnL(short, d("3300"))
	assertDecEqual(t, d("-100"), pnl)

	long := &domain.Position{Side: domain.Long, EntryPrice: d("50000"), Leverage: 10, Investment: d("100")}
	assertDecEqual(t, d("-100"), PnL(long, d("45000")))
	assertDecEqual(t, d("20"), PnL(long, d("51000")))
}

func TestPositionSize(t *testing.T) {
	size := PositionSize(d("3000"), 5, d("200"))
	assert.InDelta(t, 0.3333333, size.InexactFloat64(), 1e-6)
	assert.True(t, PositionSize(decimal.Zero, 5, d("200")).IsZero())
}

func TestROI(t *testing.T) {
	pnl := d("37.25")
	inv := d("150")
	assertDecEqual(t, pnl.Div(inv).Mul(decimal.NewFromInt(100)), ROI(pnl, inv))
	assert.True(t, ROI(pnl, decimal.Zero).IsZero())
}

func TestIsLiquidated(t *testing.T) {
	long := &domain.Position{Side: domain.Long, LiquidationPrice: d("45000")}
	short := &domain.Position{Side: domain.Short, LiquidationPrice: d("3600")}

	assert.True(t, IsLiquidated(d("45000"), long), "equality liquidates long")
	assert.True(t, IsLiquidated(d("44999.99"), long))
	assert.False(t, IsLiquidated(d("45000.01"), long))

	assert.True(t, IsLiquidated(d("3600"), short), "equality liquidates short")
	assert.True(t, IsLiquidated(d("3700"), short))
	assert.False(t, IsLiquidated(d("3599.99"), short))
}

func TestPriceFromFloat(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), 0, -5} {
		_, err := PriceFromFloat(v)
		assert.ErrorIs(t, err, ports.ErrInvalidPrice, "value %v", v)
	}
	p, err := PriceFromFloat(101.5)
	require.NoError(t, err)
	assertDecEqual(t, d("101.5"), p)
}

func TestParsePrice(t *testing.T) {
	p, err := ParsePrice("64123.45000000")
	require.NoError(t, err)
	assertDecEqual(t, d("64123.45"), p)

	_, err = ParsePrice("abc")
	assert.ErrorIs(t, err, ports.ErrInvalidPrice)
	_, err = ParsePrice("0")
	assert.ErrorIs(t, err, ports.ErrInvalidPrice)
}

func TestRelativeDistance(t *testing.T) {
	assertDecEqual(t, d("0.01"), RelativeDistance(d("101"), d("100")))
	assertDecEqual(t, d("0.0005"), RelativeDistance(d("99.95"), d("100")))
}
