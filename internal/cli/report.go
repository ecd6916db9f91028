package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cryptoLevSim/internal/domain"
	"cryptoLevSim/internal/history"
	"cryptoLevSim/internal/ports"
	"cryptoLevSim/internal/utils"
)

var symbolsCmd = &cobra.Command{
	Use:   "symbols [filter]",
	Short: "List tradable symbols with their last price",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := bootstrap(cmd.Context(), cfg, cmd.ErrOrStderr(), nil)
		if err != nil {
			return err
		}
		defer env.Close()
		return NewConsole(env.sim, cmd.OutOrStdout()).symbols(cmd.Context(), args)
	},
}

var (
	reportPeriod string
	reportSymbol string
	reportSide   string
	historyCSV   string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show closed positions, most recent first",
	Long: `Show closed positions from the persisted trade history.

Examples:
  levsim history
  levsim history --period 7d --symbol BTCUSDT
  levsim history --side short
  levsim history --csv ./exports/history.csv`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := reportFilter(time.Now())
		if err != nil {
			return err
		}
		env, err := bootstrap(cmd.Context(), cfg, cmd.ErrOrStderr(), nil)
		if err != nil {
			return err
		}
		defer env.Close()
		entries := env.sim.GetHistory(filter)
		if historyCSV != "" {
			if err := utils.WriteHistoryCSVFile(historyCSV, entries); err != nil {
				return fmt.Errorf("export history: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d entries to %s\n", len(entries), historyCSV)
			return nil
		}
		printHistory(cmd.OutOrStdout(), entries)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show win rate, PnL and ROI statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := reportFilter(time.Now())
		if err != nil {
			return err
		}
		env, err := bootstrap(cmd.Context(), cfg, cmd.ErrOrStderr(), nil)
		if err != nil {
			return err
		}
		defer env.Close()
		printStatistics(cmd.OutOrStdout(), env.sim.GetStatistics(filter), env.sim.GetPerformance(filter))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(symbolsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(statsCmd)

	historyCmd.Flags().StringVar(&historyCSV, "csv", "", "write the entries to this CSV file instead of printing them")
	for _, c := range []*cobra.Command{historyCmd, statsCmd} {
		c.Flags().StringVarP(&reportPeriod, "period", "p", "all", "24h, 7d, 30d or all")
		c.Flags().StringVar(&reportSymbol, "symbol", "", "only this symbol")
		c.Flags().StringVar(&reportSide, "side", "", "only long or short positions")
	}
}

func reportFilter(now time.Time) (history.Filter, error) {
	since, err := history.PeriodSince(reportPeriod, now)
	if err != nil {
		return history.Filter{}, err
	}
	filter := history.Filter{Symbol: strings.TrimSpace(reportSymbol), Since: since}
	if reportSide != "" {
		side, ok := domain.ParseSide(reportSide)
		if !ok {
			return history.Filter{}, fmt.Errorf("%w: side %q", ports.ErrInvalidInput, reportSide)
		}
		filter.Side = side
	}
	return filter, nil
}
