package cli

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"cryptoLevSim/internal/domain"
	"cryptoLevSim/internal/history"
	"cryptoLevSim/internal/risk"
)

const timeLayout = "2006-01-02 15:04"

func newTable(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
}

func money(v decimal.Decimal) string {
	return v.StringFixed(2)
}

func signedMoney(v decimal.Decimal) string {
	if v.IsPositive() {
		return "+" + v.StringFixed(2)
	}
	return v.StringFixed(2)
}

func percent(v decimal.Decimal) string {
	return signedMoney(v) + "%"
}

func printPositions(out io.Writer, positions []*domain.Position, tps, sls []*domain.TriggerOrder) {
	if len(positions) == 0 {
		fmt.Fprintln(out, "No open positions.")
		return
	}
	tp := triggerIndex(tps)
	sl := triggerIndex(sls)

	w := newTable(out)
	fmt.Fprintln(w, "ID\tSYMBOL\tSIDE\tLEV\tINVEST\tSIZE\tENTRY\tMARK\tLIQ\tPNL\tROI\tTP\tSL")
	for _, p := range positions {
		size := risk.PositionSize(p.EntryPrice, p.Leverage, p.Investment)
		fmt.Fprintf(w, "%s\t%s\t%s\t%dx\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.Symbol, p.Side, p.Leverage, money(p.Investment), size.Round(8).String(),
			p.EntryPrice.String(), p.CurrentPrice.String(), p.LiquidationPrice.StringFixed(4),
			signedMoney(p.UnrealizedPnL), percent(p.UnrealizedROI),
			tp[p.ID], sl[p.ID])
	}
	_ = w.Flush()
}

func triggerIndex(orders []*domain.TriggerOrder) map[string]string {
	out := make(map[string]string, len(orders))
	for _, o := range orders {
		out[o.PositionID] = o.TargetPrice.String()
	}
	return out
}

func printOrders(out io.Writer, orders []*domain.PendingOrder) {
	if len(orders) == 0 {
		fmt.Fprintln(out, "No pending orders.")
		return
	}
	w := newTable(out)
	fmt.Fprintln(w, "ID\tSYMBOL\tSIDE\tLEV\tINVEST\tTARGET\tCREATED")
	for _, o := range orders {
		fmt.Fprintf(w, "%s\t%s\t%s\t%dx\t%s\t%s\t%s\n",
			o.ID, o.Symbol, o.Side, o.Leverage, money(o.Investment), o.TargetPrice.String(),
			o.CreatedAt.Local().Format(timeLayout))
	}
	_ = w.Flush()
}

func printHistory(out io.Writer, entries []domain.HistoryEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No closed positions.")
		return
	}
	w := newTable(out)
	fmt.Fprintln(w, "CLOSED\tSYMBOL\tSIDE\tLEV\tENTRY\tEXIT\tPNL\tROI\tMIN\tREASON")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%dx\t%s\t%s\t%s\t%s\t%d\t%s\n",
			e.ClosedAt.Local().Format(timeLayout), e.Symbol, e.Side, e.Leverage,
			e.EntryPrice.String(), e.ExitPrice.String(),
			signedMoney(e.RealizedPnL), percent(e.RealizedROI), e.DurationMinutes, reasonLabel(e))
	}
	_ = w.Flush()
}

func reasonLabel(e domain.HistoryEntry) string {
	if e.CloseReason != "" {
		return string(e.CloseReason)
	}
	return string(e.Status)
}

func printStatistics(out io.Writer, stats history.Statistics, perf history.Performance) {
	if stats.Count == 0 {
		fmt.Fprintln(out, "No closed positions in this period.")
		return
	}
	w := newTable(out)
	fmt.Fprintf(w, "Trades\t%d\n", stats.Count)
	fmt.Fprintf(w, "Wins / losses\t%d / %d\n", stats.WinCount, stats.LossCount)
	fmt.Fprintf(w, "Liquidations\t%d\n", stats.LiquidationCount)
	fmt.Fprintf(w, "Win rate\t%s%%\n", stats.WinRate.StringFixed(2))
	fmt.Fprintf(w, "Total PnL\t%s\n", signedMoney(stats.TotalPnL))
	fmt.Fprintf(w, "Total invested\t%s\n", money(stats.TotalInvestment))
	fmt.Fprintf(w, "Total ROI\t%s\n", percent(stats.TotalROI))
	fmt.Fprintf(w, "Average ROI\t%s\n", percent(stats.AvgROI))
	fmt.Fprintf(w, "Average duration\t%s min\n", stats.AvgDurationMinutes.StringFixed(1))
	if stats.Best != nil {
		fmt.Fprintf(w, "Best\t%s %s %s\n", stats.Best.Symbol, stats.Best.Side, signedMoney(stats.Best.RealizedPnL))
	}
	if stats.Worst != nil {
		fmt.Fprintf(w, "Worst\t%s %s %s\n", stats.Worst.Symbol, stats.Worst.Side, signedMoney(stats.Worst.RealizedPnL))
	}
	fmt.Fprintf(w, "Average win / loss\t%s / %s\n", signedMoney(perf.AverageWin), signedMoney(perf.AverageLoss))
	fmt.Fprintf(w, "Profit factor\t%s\n", perf.ProfitFactor.StringFixed(2))
	fmt.Fprintf(w, "Expectancy\t%s\n", signedMoney(perf.Expectancy))
	fmt.Fprintf(w, "Max drawdown\t%s\n", money(perf.MaxDrawdown))
	fmt.Fprintf(w, "Longest streaks\t%d wins, %d losses\n", perf.MaxConsecutiveWins, perf.MaxConsecutiveLosses)
	for _, m := range perf.MonthlyPnL {
		fmt.Fprintf(w, "  %s\t%s\n", m.Month.Format("2006-01"), signedMoney(m.PnL))
	}
	_ = w.Flush()
}

func printSymbols(out io.Writer, symbols []domain.Symbol) {
	w := newTable(out)
	fmt.Fprintln(w, "SYMBOL\tBASE\tQUOTE\tLAST")
	for _, s := range symbols {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Symbol, s.BaseAsset, s.QuoteAsset, s.ReferencePrice.String())
	}
	_ = w.Flush()
}

func printStatus(out io.Writer, statuses map[string]domain.ConnectionStatus, lastTick map[string]time.Time) {
	symbols := make([]string, 0, len(statuses))
	for s := range statuses {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	w := newTable(out)
	fmt.Fprintln(w, "SYMBOL\tSTATUS\tLAST TICK")
	for _, s := range symbols {
		last := "-"
		if t, ok := lastTick[s]; ok && !t.IsZero() {
			last = t.Local().Format("15:04:05")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", s, statuses[s], last)
	}
	_ = w.Flush()
}
