package history

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoLevSim/internal/domain"
	"cryptoLevSim/internal/ports"
)

var base = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

func entry(n int, symbol string, side domain.Side, pnl, inv string, status domain.HistoryStatus) domain.HistoryEntry {
	p := decimal.RequireFromString(pnl)
	i := decimal.RequireFromString(inv)
	return domain.HistoryEntry{
		ID:              fmt.Sprintf("hist_%02d", n),
		PositionID:      fmt.Sprintf("pos_%02d", n),
		Symbol:          symbol,
		Side:            side,
		Investment:      i,
		RealizedPnL:     p,
		RealizedROI:     p.Div(i).Mul(decimal.NewFromInt(100)),
		OpenedAt:        base.Add(time.Duration(n) * time.Hour),
		ClosedAt:        base.Add(time.Duration(n)*time.Hour + 30*time.Minute),
		DurationMinutes: 30,
		Status:          status,
	}
}

func TestStore_AppendNewestFirstAndEvictsOldest(t *testing.T) {
	s := NewStore(3)
	evicted := 0
	for n := 1; n <= 5; n++ {
		evicted += s.Append(entry(n, "BTCUSDT", domain.Long, "1", "10", domain.StatusCompleted))
	}

	assert.Equal(t, 2, evicted)
	assert.Equal(t, 3, s.Len())
	got := s.Entries()
	require.Len(t, got, 3)
	assert.Equal(t, "hist_05", got[0].ID)
	assert.Equal(t, "hist_03", got[2].ID)
}

func TestNewStore_DefaultLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NewStore(0).Limit())
}

func TestStore_Query(t *testing.T) {
	s := NewStore(10)
	s.Append(entry(1, "BTCUSDT", domain.Long, "5", "100", domain.StatusCompleted))
	s.Append(entry(2, "ETHUSDT", domain.Short, "-5", "100", domain.StatusCompleted))
	s.Append(entry(3, "BTCUSDT", domain.Short, "-100", "100", domain.StatusLiquidated))

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all", Filter{}, []string{"hist_03", "hist_02", "hist_01"}},
		{"symbol", Filter{Symbol: "btcusdt"}, []string{"hist_03", "hist_01"}},
		{"side", Filter{Side: domain.Short}, []string{"hist_03", "hist_02"}},
		{"symbol and side", Filter{Symbol: "BTCUSDT", Side: domain.Long}, []string{"hist_01"}},
		{"since", Filter{Since: base.Add(2 * time.Hour)}, []string{"hist_03", "hist_02"}},
		{"nothing", Filter{Symbol: "SOLUSDT"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := []string{}
			for _, e := range s.Query(tt.filter) {
				got = append(got, e.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStore_ClearAndRestore(t *testing.T) {
	s := NewStore(2)
	s.Append(entry(1, "BTCUSDT", domain.Long, "1", "10", domain.StatusCompleted))
	s.Clear()
	assert.Equal(t, 0, s.Len())

	s.Restore([]domain.HistoryEntry{
		entry(1, "BTCUSDT", domain.Long, "1", "10", domain.StatusCompleted),
		entry(3, "BTCUSDT", domain.Long, "1", "10", domain.StatusCompleted),
		entry(2, "BTCUSDT", domain.Long, "1", "10", domain.StatusCompleted),
	})
	got := s.Entries()
	require.Len(t, got, 2)
	assert.Equal(t, "hist_03", got[0].ID)
	assert.Equal(t, "hist_02", got[1].ID)
}

func TestStatistics(t *testing.T) {
	s := NewStore(10)
	s.Append(entry(1, "BTCUSDT", domain.Long, "50", "100", domain.StatusCompleted))
	s.Append(entry(2, "BTCUSDT", domain.Long, "0", "100", domain.StatusCompleted))
	s.Append(entry(3, "ETHUSDT", domain.Short, "-200", "200", domain.StatusLiquidated))
	s.Append(entry(4, "ETHUSDT", domain.Short, "30", "100", domain.StatusCompleted))

	stats := s.Statistics(Filter{})
	assert.Equal(t, 4, stats.Count)
	assert.Equal(t, 2, stats.WinCount)
	assert.Equal(t, 2, stats.LossCount, "breakeven counts as a loss")
	assert.Equal(t, 1, stats.LiquidationCount)
	assert.True(t, decimal.NewFromInt(50).Equal(stats.WinRate))
	assert.True(t, decimal.NewFromInt(-120).Equal(stats.TotalPnL))
	assert.True(t, decimal.NewFromInt(-24).Equal(stats.TotalROI), "totalRoi is %s", stats.TotalROI)
	// (50 + 0 - 100 + 30) / 4
	assert.True(t, decimal.NewFromInt(-5).Equal(stats.AvgROI), "avgRoi is %s", stats.AvgROI)
	assert.True(t, decimal.NewFromInt(30).Equal(stats.AvgDurationMinutes))
	require.NotNil(t, stats.Best)
	require.NotNil(t, stats.Worst)
	assert.Equal(t, "hist_01", stats.Best.ID)
	assert.Equal(t, "hist_03", stats.Worst.ID)

	eth := s.Statistics(Filter{Symbol: "ETHUSDT"})
	assert.Equal(t, 2, eth.Count)
	assert.Equal(t, "hist_04", eth.Best.ID)
}

func TestStatistics_Empty(t *testing.T) {
	stats := NewStore(5).Statistics(Filter{})
	assert.Equal(t, 0, stats.Count)
	assert.Nil(t, stats.Best)
	assert.Nil(t, stats.Worst)
	assert.True(t, stats.WinRate.IsZero())
	assert.True(t, stats.TotalROI.IsZero())
}

func TestPeriodSince(t *testing.T) {
	now := time.Date(2024, 5, 31, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		period string
		want   time.Time
	}{
		{"all", time.Time{}},
		{"", time.Time{}},
		{"24h", now.Add(-24 * time.Hour)},
		{"7d", time.Date(2024, 5, 24, 12, 0, 0, 0, time.UTC)},
		{"30D", time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			got, err := PeriodSince(tt.period, now)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got))
		})
	}

	_, err := PeriodSince("1y", now)
	assert.ErrorIs(t, err, ports.ErrInvalidInput)
}
