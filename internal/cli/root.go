package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"cryptoLevSim/config"
	"cryptoLevSim/internal/adapters/logger"
)

var (
	cfg          *config.Config
	storeFlag    string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "levsim",
	Short: "Leveraged crypto trading simulator on live Binance prices",
	Long: `levsim simulates leveraged long and short positions against live spot prices.

It provides:
  - Market and limit entries with an admission limit on open exposure
  - Liquidation, take-profit and stop-loss exits evaluated on every trade tick
  - A bounded trade history with win rate and PnL statistics
  - State persisted in SQLite, Redis or memory

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadConfig()
		if err != nil {
			return err
		}
		if storeFlag != "" {
			loaded.StoreBackend = storeFlag
		}
		if logLevelFlag != "" {
			loaded.LogLevel = logger.ParseLevel(logLevelFlag)
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("flags: %w", err)
		}
		cfg = loaded
		return nil
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storeFlag, "store", "", "state backend: sqlite, redis or memory (overrides STORE_BACKEND)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "DEBUG, INFO, WARN or ERROR (overrides LOG_LEVEL)")
}
