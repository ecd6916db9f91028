package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"cryptoLevSim/internal/app"
)

var runSymbol string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the interactive simulator",
	Long: `Start streaming prices and open an interactive console.

State is restored from the configured store on start and written back while running.
Type help in the console for the list of commands.

Examples:
  levsim run
  levsim run --symbol ETHUSDT --store memory`,
	Args: cobra.NoArgs,
	RunE: runSimulator,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runSymbol, "symbol", "s", "", "symbol selected on start (overrides DEFAULT_SYMBOL)")
}

func runSimulator(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runSymbol != "" {
		cfg.DefaultSymbol = strings.ToUpper(strings.TrimSpace(runSymbol))
	}

	var console *Console
	env, err := bootstrap(ctx, cfg, cmd.ErrOrStderr(), func(ev app.Event) {
		if console != nil {
			console.Notify(ev)
		}
	})
	if err != nil {
		return err
	}
	defer env.Close()

	console = NewConsole(env.sim, cmd.OutOrStdout())
	fmt.Fprintf(cmd.OutOrStdout(), "Welcome, %s. Type help for commands.\n", env.sim.DisplayName())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return env.sim.Run(gctx) })
	g.Go(func() error {
		defer cancel()
		return console.Loop(gctx, cmd.InOrStdin())
	})
	if err := g.Wait(); err != nil {
		env.logger.Error(context.Background(), err, "Simulator exited with error")
		return err
	}
	env.logger.Info(context.Background(), "Application finished gracefully.")
	return nil
}
