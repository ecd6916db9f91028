package history

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"cryptoLevSim/internal/domain"
)

// Performance describes the realized PnL curve of a set of closed positions,
// replayed in closing order.
type Performance struct {
	AverageWin           decimal.Decimal // mean PnL of winning positions
	AverageLoss          decimal.Decimal // mean PnL of losing positions, zero or negative
	ProfitFactor         decimal.Decimal // gross profit / gross loss, zero without losses
	Expectancy           decimal.Decimal // mean PnL per position
	MaxConsecutiveWins   int
	MaxConsecutiveLosses int

	// MaxDrawdown is the deepest fall of cumulative realized PnL from its running peak.
	MaxDrawdown decimal.Decimal
	EquityCurve []EquityPoint
	MonthlyPnL  []MonthlyPnL
}

// EquityPoint is cumulative realized PnL after one closure.
type EquityPoint struct {
	Time     time.Time
	Value    decimal.Decimal
	Drawdown decimal.Decimal
}

// MonthlyPnL is the realized PnL of positions closed in one calendar month.
type MonthlyPnL struct {
	Month time.Time
	PnL   decimal.Decimal
}

// Performance replays the entries matching filter.
func (s *Store) Performance(filter Filter) Performance {
	return AnalyzePerformance(s.Query(filter))
}

// AnalyzePerformance computes Performance over entries in any order.
func AnalyzePerformance(entries []domain.HistoryEntry) Performance {
	perf := Performance{
		AverageWin:   decimal.Zero,
		AverageLoss:  decimal.Zero,
		ProfitFactor: decimal.Zero,
		Expectancy:   decimal.Zero,
		MaxDrawdown:  decimal.Zero,
	}
	if len(entries) == 0 {
		return perf
	}

	ordered := make([]domain.HistoryEntry, len(entries))
	copy(ordered, entries)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ClosedAt.Before(ordered[j].ClosedAt) })

	var (
		wins, losses             []decimal.Decimal
		consecWins, consecLosses int
		equity, peak             = decimal.Zero, decimal.Zero
		months                   = make(map[time.Time]decimal.Decimal)
	)
	for _, e := range ordered {
		if e.RealizedPnL.IsPositive() {
			wins = append(wins, e.RealizedPnL)
			consecWins++
			consecLosses = 0
		} else {
			losses = append(losses, e.RealizedPnL)
			consecLosses++
			consecWins = 0
		}
		perf.MaxConsecutiveWins = max(perf.MaxConsecutiveWins, consecWins)
		perf.MaxConsecutiveLosses = max(perf.MaxConsecutiveLosses, consecLosses)

		equity = equity.Add(e.RealizedPnL)
		if equity.GreaterThan(peak) {
			peak = equity
		}
		drawdown := peak.Sub(equity)
		if drawdown.GreaterThan(perf.MaxDrawdown) {
			perf.MaxDrawdown = drawdown
		}
		perf.EquityCurve = append(perf.EquityCurve, EquityPoint{Time: e.ClosedAt, Value: equity, Drawdown: drawdown})

		closed := e.ClosedAt.UTC()
		month := time.Date(closed.Year(), closed.Month(), 1, 0, 0, 0, 0, time.UTC)
		months[month] = months[month].Add(e.RealizedPnL)
	}

	grossProfit, grossLoss := sum(wins), sum(losses)
	if len(wins) > 0 {
		perf.AverageWin = grossProfit.Div(decimal.NewFromInt(int64(len(wins))))
	}
	if len(losses) > 0 {
		perf.AverageLoss = grossLoss.Div(decimal.NewFromInt(int64(len(losses))))
	}
	if grossLoss.IsNegative() {
		perf.ProfitFactor = grossProfit.Div(grossLoss.Neg())
	}
	perf.Expectancy = equity.Div(decimal.NewFromInt(int64(len(ordered))))

	for month, pnl := range months {
		perf.MonthlyPnL = append(perf.MonthlyPnL, MonthlyPnL{Month: month, PnL: pnl})
	}
	sort.Slice(perf.MonthlyPnL, func(i, j int) bool { return perf.MonthlyPnL[i].Month.Before(perf.MonthlyPnL[j].Month) })
	return perf
}
