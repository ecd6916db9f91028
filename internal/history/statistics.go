package history

import (
	"github.com/shopspring/decimal"

	"cryptoLevSim/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Statistics summarizes a filtered set of closed positions.
type Statistics struct {
	// Basic counts
	Count            int `json:"count"`
	WinCount         int `json:"winCount"`
	LossCount        int `json:"lossCount"` // breakeven counts as a loss
	LiquidationCount int `json:"liquidationCount"`

	// Percentages and totals
	WinRate            decimal.Decimal `json:"winRate"`
	TotalPnL           decimal.Decimal `json:"totalPnl"`
	TotalInvestment    decimal.Decimal `json:"totalInvestment"`
	TotalROI           decimal.Decimal `json:"totalRoi"`
	AvgROI             decimal.Decimal `json:"avgRoi"`
	AvgDurationMinutes decimal.Decimal `json:"avgDurationMinutes"`

	// Extremes by realized PnL, nil when Count is zero
	Best  *domain.HistoryEntry `json:"best"`
	Worst *domain.HistoryEntry `json:"worst"`
}

// Statistics aggregates the entries matching filter.
func (s *Store) Statistics(filter Filter) Statistics {
	return Summarize(s.Query(filter))
}

// Summarize computes Statistics over entries.
func Summarize(entries []domain.HistoryEntry) Statistics {
	stats := Statistics{
		WinRate:            decimal.Zero,
		TotalPnL:           decimal.Zero,
		TotalInvestment:    decimal.Zero,
		TotalROI:           decimal.Zero,
		AvgROI:             decimal.Zero,
		AvgDurationMinutes: decimal.Zero,
	}
	if len(entries) == 0 {
		return stats
	}

	rois := make([]decimal.Decimal, 0, len(entries))
	var totalMinutes int64
	for i := range entries {
		e := entries[i]
		stats.Count++
		if e.RealizedPnL.IsPositive() {
			stats.WinCount++
		} else {
			stats.LossCount++
		}
		if e.Status == domain.StatusLiquidated {
			stats.LiquidationCount++
		}
		stats.TotalPnL = stats.TotalPnL.Add(e.RealizedPnL)
		stats.TotalInvestment = stats.TotalInvestment.Add(e.Investment)
		rois = append(rois, e.RealizedROI)
		totalMinutes += e.DurationMinutes

		if stats.Best == nil || e.RealizedPnL.GreaterThan(stats.Best.RealizedPnL) {
			best := e
			stats.Best = &best
		}
		if stats.Worst == nil || e.RealizedPnL.LessThan(stats.Worst.RealizedPnL) {
			worst := e
			stats.Worst = &worst
		}
	}

	n := decimal.NewFromInt(int64(stats.Count))
	stats.WinRate = decimal.NewFromInt(int64(stats.WinCount)).Div(n).Mul(hundred)
	if stats.TotalInvestment.IsPositive() {
		stats.TotalROI = stats.TotalPnL.Div(stats.TotalInvestment).Mul(hundred)
	}
	stats.AvgROI = sum(rois).Div(n)
	stats.AvgDurationMinutes = decimal.NewFromInt(totalMinutes).Div(n)
	return stats
}

// sum adds values.
func sum(values []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
