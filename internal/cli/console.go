package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"cryptoLevSim/internal/app"
	"cryptoLevSim/internal/domain"
	"cryptoLevSim/internal/history"
	"cryptoLevSim/internal/ports"
	"cryptoLevSim/internal/risk"
)

const consoleHelp = `Commands:
  symbols [filter]                 list tradable symbols
  select <SYMBOL>                  switch the active symbol
  price [SYMBOL]                   last observed price
  long|short <invest> <lev> [price] open at market, or place a pending order at price
  close <position-id>              close at the last observed price
  cancel <order-id>                cancel a pending order
  tp <position-id> <price|clear>   set or clear take-profit
  sl <position-id> <price|clear>   set or clear stop-loss
  positions                        open positions
  orders                           pending orders
  history [24h|7d|30d|all] [SYMBOL] closed positions
  stats [24h|7d|30d|all]           performance statistics
  clear-history                    delete the trade history
  name [new name]                  show or change the display name
  status                           price feed connection status
  quit`

// Console executes the interactive commands against a Simulator.
type Console struct {
	sim *app.Simulator
	out io.Writer
	now func() time.Time
}

// NewConsole creates a console printing to out.
func NewConsole(sim *app.Simulator, out io.Writer) *Console {
	return &Console{sim: sim, out: &lockedWriter{w: out}, now: time.Now}
}

// lockedWriter serializes command output with event notifications.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// Loop reads commands from in until quit, EOF or ctx cancellation.
func (c *Console) Loop(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	c.prompt()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-scanErr:
			return err
		case line := <-lines:
			quit, err := c.Exec(ctx, line)
			if err != nil {
				printError(c.out, err)
			}
			if quit {
				return nil
			}
			c.prompt()
		}
	}
}

func (c *Console) prompt() {
	fmt.Fprintf(c.out, "%s@%s> ", c.sim.DisplayName(), c.sim.SelectedSymbol())
}

// Notify prints simulator events. It is safe to call from feed goroutines.
func (c *Console) Notify(ev app.Event) {
	switch ev.Kind {
	case app.EventPositionClosed:
		e := ev.Entry
		fmt.Fprintf(c.out, "\n[%s] %s %s closed at %s, PnL %s (%s)\n",
			reasonLabel(*e), e.Symbol, e.Side, e.ExitPrice.String(), signedMoney(e.RealizedPnL), percent(e.RealizedROI))
	case app.EventOrderActivated:
		fmt.Fprintf(c.out, "\n[FILLED] pending order %s is now a position\n", ev.OrderID)
	}
}

// Exec runs one command line.
func (c *Console) Exec(ctx context.Context, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "help", "?":
		fmt.Fprintln(c.out, consoleHelp)
	case "quit", "exit", "q":
		return true, nil
	case "symbols":
		return false, c.symbols(ctx, args)
	case "select":
		if len(args) != 1 {
			return false, usage("select <SYMBOL>")
		}
		if err := c.sim.SelectSymbol(ctx, args[0]); err != nil {
			return false, err
		}
		fmt.Fprintf(c.out, "Selected %s\n", c.sim.SelectedSymbol())
	case "price":
		symbol := c.sim.SelectedSymbol()
		if len(args) > 0 {
			symbol = strings.ToUpper(args[0])
		}
		if p, ok := c.sim.MarkPrice(symbol); ok {
			fmt.Fprintf(c.out, "%s %s\n", symbol, p.String())
		} else {
			fmt.Fprintf(c.out, "%s no price yet\n", symbol)
		}
	case "long", "short", "buy", "sell":
		return false, c.open(ctx, cmd, args)
	case "close":
		if len(args) != 1 {
			return false, usage("close <position-id>")
		}
		entry, err := c.sim.Close(ctx, args[0])
		if err != nil {
			return false, err
		}
		fmt.Fprintf(c.out, "Closed %s at %s, PnL %s (%s)\n",
			entry.Symbol, entry.ExitPrice.String(), signedMoney(entry.RealizedPnL), percent(entry.RealizedROI))
	case "cancel":
		if len(args) != 1 {
			return false, usage("cancel <order-id>")
		}
		if err := c.sim.CancelPendingOrder(ctx, args[0]); err != nil {
			return false, err
		}
		fmt.Fprintln(c.out, "Order cancelled")
	case "tp", "sl":
		return false, c.trigger(ctx, cmd, args)
	case "positions", "pos":
		printPositions(c.out, c.sim.GetOpenPositions(), c.sim.GetTakeProfits(), c.sim.GetStopLosses())
	case "orders":
		printOrders(c.out, c.sim.GetPendingOrders())
	case "history":
		filter, err := c.filter(args)
		if err != nil {
			return false, err
		}
		printHistory(c.out, c.sim.GetHistory(filter))
	case "stats":
		filter, err := c.filter(args)
		if err != nil {
			return false, err
		}
		printStatistics(c.out, c.sim.GetStatistics(filter), c.sim.GetPerformance(filter))
	case "clear-history":
		c.sim.ClearHistory(ctx)
		fmt.Fprintln(c.out, "History cleared")
	case "name":
		if len(args) == 0 {
			fmt.Fprintln(c.out, c.sim.DisplayName())
			return false, nil
		}
		name, err := c.sim.SetDisplayName(ctx, strings.Join(args, " "))
		if err != nil {
			return false, err
		}
		fmt.Fprintf(c.out, "Display name set to %s\n", name)
	case "status":
		last := make(map[string]time.Time)
		for _, info := range c.sim.Subscriptions() {
			last[info.Symbol] = info.LastTick
		}
		printStatus(c.out, c.sim.ConnectionStatus(), last)
	default:
		return false, fmt.Errorf("%w: unknown command %q, type help", ports.ErrInvalidInput, cmd)
	}
	return false, nil
}

func usage(s string) error {
	return fmt.Errorf("%w: usage: %s", ports.ErrInvalidInput, s)
}

func (c *Console) symbols(ctx context.Context, args []string) error {
	list, err := c.sim.Symbols(ctx)
	if err != nil {
		return err
	}
	if len(args) > 0 {
		needle := strings.ToUpper(args[0])
		filtered := list[:0:0]
		for _, s := range list {
			if strings.Contains(s.Symbol, needle) {
				filtered = append(filtered, s)
			}
		}
		list = filtered
	}
	printSymbols(c.out, list)
	return nil
}

func (c *Console) open(ctx context.Context, cmd string, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return usage(cmd + " <invest> <lev> [price]")
	}
	side, _ := domain.ParseSide(cmd)
	investment, err := decimal.NewFromString(args[0])
	if err != nil {
		return fmt.Errorf("%w: investment %q", ports.ErrInvalidInput, args[0])
	}
	leverage, err := strconv.Atoi(strings.TrimSuffix(strings.ToLower(args[1]), "x"))
	if err != nil {
		return fmt.Errorf("%w: leverage %q", ports.ErrInvalidInput, args[1])
	}
	var price decimal.Decimal
	if len(args) == 3 && !strings.EqualFold(args[2], "market") {
		if price, err = risk.ParsePrice(args[2]); err != nil {
			return fmt.Errorf("%w: %w", ports.ErrInvalidInput, err)
		}
	}

	res, err := c.sim.Open(ctx, app.OpenRequest{
		Symbol:     c.sim.SelectedSymbol(),
		Side:       side,
		Leverage:   leverage,
		Investment: investment,
		EntryPrice: price,
	})
	if err != nil {
		return err
	}
	if res.Position != nil {
		p := res.Position
		fmt.Fprintf(c.out, "Opened %s %s %dx at %s, liquidation %s (id %s)\n",
			p.Symbol, p.Side, p.Leverage, p.EntryPrice.String(), p.LiquidationPrice.StringFixed(4), p.ID)
		return nil
	}
	o := res.Order
	fmt.Fprintf(c.out, "Pending %s %s %dx at %s (id %s)\n", o.Symbol, o.Side, o.Leverage, o.TargetPrice.String(), o.ID)
	return nil
}

func (c *Console) trigger(ctx context.Context, cmd string, args []string) error {
	if len(args) != 2 {
		return usage(cmd + " <position-id> <price|clear>")
	}
	id := args[0]
	if strings.EqualFold(args[1], "clear") {
		var err error
		if cmd == "tp" {
			err = c.sim.ClearTakeProfit(ctx, id)
		} else {
			err = c.sim.ClearStopLoss(ctx, id)
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, strings.ToUpper(cmd)+" cleared")
		return nil
	}

	price, err := risk.ParsePrice(args[1])
	if err != nil {
		return fmt.Errorf("%w: %w", ports.ErrInvalidInput, err)
	}
	var order *domain.TriggerOrder
	if cmd == "tp" {
		order, err = c.sim.SetTakeProfit(ctx, id, price)
	} else {
		order, err = c.sim.SetStopLoss(ctx, id, price)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s at %s, expected PnL %s (%s)\n",
		strings.ToUpper(cmd), order.TargetPrice.String(), signedMoney(order.ExpectedPnL), percent(order.ExpectedROI))
	return nil
}

// filter parses "[period] [SYMBOL]" arguments.
func (c *Console) filter(args []string) (history.Filter, error) {
	var f history.Filter
	if len(args) > 0 {
		since, err := history.PeriodSince(args[0], c.now())
		if err != nil {
			return f, err
		}
		f.Since = since
	}
	if len(args) > 1 {
		f.Symbol = args[1]
	}
	return f, nil
}

// printError renders user errors plainly and everything else with detail.
func printError(out io.Writer, err error) {
	if app.IsUserError(err) || errors.Is(err, ports.ErrFeedUnavailable) {
		fmt.Fprintf(out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(out, "unexpected error: %+v\n", err)
}
