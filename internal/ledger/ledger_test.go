package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoLevSim/internal/domain"
	"cryptoLevSim/internal/ports"
	"cryptoLevSim/internal/risk"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct {
	mu    sync.Mutex
	warns []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warns = append(m.warns, msg)
}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecEqual(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, d(want).Equal(got), "expected %s, got %s", want, got)
}

func setupLedger(t *testing.T, limit int) (*Ledger, *risk.RiskManager) {
	t.Helper()
	rm := risk.NewRiskManager(risk.RiskConfig{AdmissionLimit: limit})
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	l, err := New(Config{
		Logger: &mockLogger{},
		Risk:   rm,
		Now: func() time.Time {
			clock = clock.Add(time.Minute)
			return clock
		},
	})
	require.NoError(t, err)
	return l, rm
}

func openPosition(t *testing.T, l *Ledger, symbol string, side domain.Side, entry string, lev int, inv string) *domain.Position {
	t.Helper()
	p, err := l.Open(context.Background(), OpenRequest{
		Symbol: symbol, Side: side, Leverage: lev, Investment: d(inv), EntryPrice: d(entry),
	})
	require.NoError(t, err)
	return p
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Config{Risk: risk.NewRiskManager(risk.RiskConfig{})})
	assert.Error(t, err)
	_, err = New(Config{Logger: &mockLogger{}})
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	l, rm := setupLedger(t, 5)
	p := openPosition(t, l, "BTCUSDT", domain.Long, "50000", 10, "100")

	assert.NotEmpty(t, p.ID)
	assert.True(t, p.IsActive)
	assertDecEqual(t, "45000", p.LiquidationPrice)
	assertDecEqual(t, "50000", p.CurrentPrice)
	assert.True(t, p.UnrealizedPnL.IsZero())
	assert.Equal(t, 1, rm.InUse())
	assert.Equal(t, []string{"BTCUSDT"}, l.Symbols())
}

func TestOpen_RejectsInvalidInputWithoutTakingSlot(t *testing.T) {
	l, rm := setupLedger(t, 5)
	_, err := l.Open(context.Background(), OpenRequest{
		Symbol: "BTCUSDT", Side: domain.Long, Leverage: 126, Investment: d("100"), EntryPrice: d("50000"),
	})
	assert.ErrorIs(t, err, ports.ErrInvalidLeverage)
	assert.Equal(t, 0, rm.InUse())
	assert.Equal(t, 0, l.Len())
}

func TestOpen_CapacityExceeded(t *testing.T) {
	l, rm := setupLedger(t, 2)
	openPosition(t, l, "BTCUSDT", domain.Long, "50000", 10, "100")
	openPosition(t, l, "ETHUSDT", domain.Short, "3000", 5, "200")

	_, err := l.Open(context.Background(), OpenRequest{
		Symbol: "SOLUSDT", Side: domain.Long, Leverage: 2, Investment: d("10"), EntryPrice: d("100"),
	})
	assert.ErrorIs(t, err, ports.ErrCapacityExceeded)
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, 2, rm.InUse())
}

func TestApplyTick_LongLiquidatesAtExactPrice(t *testing.T) {
	l, rm := setupLedger(t, 5)
	p := openPosition(t, l, "BTCUSDT", domain.Long, "50000", 10, "100")

	closed, err := l.ApplyTick(context.Background(), "BTCUSDT", d("45000"))
	require.NoError(t, err)
	require.Len(t, closed, 1)

	entry := closed[0]
	assert.Equal(t, p.ID, entry.PositionID)
	assert.Equal(t, domain.StatusLiquidated, entry.Status)
	assert.Equal(t, domain.CloseReasonLiquidation, entry.CloseReason)
	assertDecEqual(t, "-100", entry.RealizedPnL)
	assertDecEqual(t, "-100", entry.RealizedROI)
	assertDecEqual(t, "45000", entry.ExitPrice)
	assert.NotEqual(t, entry.PositionID, entry.ID)
	assert.Equal(t, 0, l.Len())
	assert.Equal(t, 0, rm.InUse())
}

func TestApplyTick_ShortMarkToMarket(t *testing.T) {
	l, _ := setupLedger(t, 5)
	p := openPosition(t, l, "ETHUSDT", domain.Short, "3000", 5, "200")
	assertDecEqual(t, "3600", p.LiquidationPrice)

	closed, err := l.ApplyTick(context.Background(), "ETHUSDT", d("2700"))
	require.NoError(t, err)
	assert.Empty(t, closed)

	got, ok := l.Position(p.ID)
	require.True(t, ok)
	assertDecEqual(t, "2700", got.CurrentPrice)
	assertDecEqual(t, "100", got.UnrealizedPnL)
	assertDecEqual(t, "50", got.UnrealizedROI)
}

func TestApplyTick_SamePriceTwiceIsIdempotent(t *testing.T) {
	l, _ := setupLedger(t, 5)
	p := openPosition(t, l, "ETHUSDT", domain.Short, "3000", 5, "200")

	_, err := l.ApplyTick(context.Background(), "ETHUSDT", d("2912.37"))
	require.NoError(t, err)
	first, _ := l.Position(p.ID)

	_, err = l.ApplyTick(context.Background(), "ETHUSDT", d("2912.37"))
	require.NoError(t, err)
	second, _ := l.Position(p.ID)

	assert.True(t, first.UnrealizedPnL.Equal(second.UnrealizedPnL))
	assert.True(t, first.UnrealizedROI.Equal(second.UnrealizedROI))
}

func TestApplyTick_AdverseTakeProfitRealizesLoss(t *testing.T) {
	l, _ := setupLedger(t, 5)
	p := openPosition(t, l, "ETHUSDT", domain.Short, "3000", 5, "200")

	tp, err := l.SetTakeProfit(context.Background(), p.ID, d("3300"))
	require.NoError(t, err)
	assertDecEqual(t, "-100", tp.ExpectedPnL)
	assertDecEqual(t, "-50", tp.ExpectedROI)

	closed, err := l.ApplyTick(context.Background(), "ETHUSDT", d("3300"))
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, domain.StatusCompleted, closed[0].Status)
	assert.Equal(t, domain.CloseReasonTakeProfit, closed[0].CloseReason)
	assertDecEqual(t, "-100", closed[0].RealizedPnL)
	assertDecEqual(t, "-50", closed[0].RealizedROI)
	assert.Empty(t, l.TakeProfits())
}

func TestApplyTick_Precedence(t *testing.T) {
	tests := []struct {
		name       string
		tp         string
		sl         string
		tick       string
		wantReason domain.CloseReason
	}{
		{"liquidation beats take-profit", "44000", "", "45000", domain.CloseReasonLiquidation},
		{"liquidation beats stop-loss", "", "46000", "44000", domain.CloseReasonLiquidation},
		{"take-profit beats stop-loss", "46000", "47000", "46000", domain.CloseReasonTakeProfit},
		{"stop-loss alone", "", "47000", "46500", domain.CloseReasonStopLoss},
		{"take-profit alone", "52000", "", "52500", domain.CloseReasonTakeProfit},
		{"no exit", "52000", "47000", "50500", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			l, _ := setupLedger(t, 5)
			p := openPosition(t, l, "BTCUSDT", domain.Long, "50000", 10, "100")
			if tt.tp != "" {
				_, err := l.SetTakeProfit(ctx, p.ID, d(tt.tp))
				require.NoError(t, err)
			}
			if tt.sl != "" {
				_, err := l.SetStopLoss(ctx, p.ID, d(tt.sl))
				require.NoError(t, err)
			}

			closed, err := l.ApplyTick(ctx, "BTCUSDT", d(tt.tick))
			require.NoError(t, err)
			if tt.wantReason == "" {
				assert.Empty(t, closed)
				assert.Equal(t, 1, l.Len())
				return
			}
			require.Len(t, closed, 1)
			assert.Equal(t, tt.wantReason, closed[0].CloseReason)
			assert.Empty(t, l.TakeProfits())
			assert.Empty(t, l.StopLosses())
		})
	}
}

func TestApplyTick_OnlyTouchesMatchingSymbol(t *testing.T) {
	l, _ := setupLedger(t, 5)
	btc := openPosition(t, l, "BTCUSDT", domain.Long, "50000", 10, "100")
	openPosition(t, l, "ETHUSDT", domain.Long, "3000", 10, "100")

	closed, err := l.ApplyTick(context.Background(), "ETHUSDT", d("100"))
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, "ETHUSDT", closed[0].Symbol)

	got, ok := l.Position(btc.ID)
	require.True(t, ok)
	assertDecEqual(t, "50000", got.CurrentPrice)

	closed, err = l.ApplyTick(context.Background(), "DOGEUSDT", d("1"))
	require.NoError(t, err)
	assert.Empty(t, closed)
}

func TestApplyTick_RejectsInvalidPrice(t *testing.T) {
	l, _ := setupLedger(t, 5)
	p := openPosition(t, l, "BTCUSDT", domain.Long, "50000", 10, "100")

	for _, price := range []string{"0", "-1"} {
		closed, err := l.ApplyTick(context.Background(), "BTCUSDT", d(price))
		assert.ErrorIs(t, err, ports.ErrInvalidPrice)
		assert.Empty(t, closed)
	}
	got, _ := l.Position(p.ID)
	assertDecEqual(t, "50000", got.CurrentPrice)
	assert.True(t, got.UnrealizedPnL.IsZero())
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	l, rm := setupLedger(t, 5)
	p := openPosition(t, l, "BTCUSDT", domain.Long, "50000", 10, "100")
	_, err := l.SetStopLoss(ctx, p.ID, d("48000"))
	require.NoError(t, err)
	_, err = l.ApplyTick(ctx, "BTCUSDT", d("51000"))
	require.NoError(t, err)

	entry, err := l.Close(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, entry.Status)
	assert.Equal(t, domain.CloseReasonManual, entry.CloseReason)
	assertDecEqual(t, "51000", entry.ExitPrice)
	assertDecEqual(t, "20", entry.RealizedPnL)
	assertDecEqual(t, "20", entry.RealizedROI)
	assert.Equal(t, int64(2), entry.DurationMinutes)
	assert.Empty(t, l.StopLosses())
	assert.Equal(t, 0, rm.InUse())

	_, err = l.Close(ctx, p.ID)
	assert.ErrorIs(t, err, ports.ErrPositionNotFound)
	assert.Equal(t, 0, rm.InUse())
}

func TestClose_ConcurrentWithTicksRecordsOnce(t *testing.T) {
	ctx := context.Background()
	for round := 0; round < 20; round++ {
		l, rm := setupLedger(t, 5)
		p := openPosition(t, l, "BTCUSDT", domain.Long, "50000", 10, "100")

		var wg sync.WaitGroup
		var mu sync.Mutex
		records := 0
		for i := 0; i < 8; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				closed, _ := l.ApplyTick(ctx, "BTCUSDT", d("44000"))
				mu.Lock()
				records += len(closed)
				mu.Unlock()
			}()
			go func() {
				defer wg.Done()
				if _, err := l.Close(ctx, p.ID); err == nil {
					mu.Lock()
					records++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, records)
		assert.Equal(t, 0, rm.InUse())
	}
}

func TestTriggerOrders_ReplaceAndClear(t *testing.T) {
	ctx := context.Background()
	l, _ := setupLedger(t, 5)
	p := openPosition(t, l, "BTCUSDT", domain.Long, "50000", 10, "100")

	_, err := l.SetTakeProfit(ctx, p.ID, d("55000"))
	require.NoError(t, err)
	_, err = l.SetTakeProfit(ctx, p.ID, d("56000"))
	require.NoError(t, err)

	tps := l.TakeProfits()
	require.Len(t, tps, 1)
	assertDecEqual(t, "56000", tps[0].TargetPrice)
	assertDecEqual(t, "120", tps[0].ExpectedPnL)

	require.NoError(t, l.ClearTakeProfit(ctx, p.ID))
	assert.Empty(t, l.TakeProfits())
	require.NoError(t, l.ClearTakeProfit(ctx, p.ID), "clearing twice is harmless")

	_, err = l.SetStopLoss(ctx, "pos_missing", d("1"))
	assert.ErrorIs(t, err, ports.ErrPositionNotFound)
	assert.ErrorIs(t, l.ClearStopLoss(ctx, "pos_missing"), ports.ErrPositionNotFound)

	_, err = l.SetStopLoss(ctx, p.ID, d("0"))
	assert.ErrorIs(t, err, ports.ErrInvalidPrice)
}

func TestActivate_EntersAtTargetPrice(t *testing.T) {
	l, rm := setupLedger(t, 5)
	order := &domain.PendingOrder{
		ID: "ord_1", Symbol: "BTCUSDT", Side: domain.Long,
		TargetPrice: d("40000"), Leverage: 10, Investment: d("100"),
	}
	p, err := l.Activate(context.Background(), order, d("39990"))
	require.NoError(t, err)
	assertDecEqual(t, "40000", p.EntryPrice)
	assertDecEqual(t, "39990", p.CurrentPrice)
	assertDecEqual(t, "36000", p.LiquidationPrice)
	assertDecEqual(t, "-0.25", p.UnrealizedPnL)
	assert.Equal(t, 0, rm.InUse(), "activation does not take a slot")
}

func TestRestore_DiscardsInconsistentEntries(t *testing.T) {
	ctx := context.Background()
	l, _ := setupLedger(t, 5)
	opened := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	positions := []*domain.Position{
		{ID: "pos_a", Symbol: "BTCUSDT", Side: domain.Long, EntryPrice: d("50000"), Leverage: 10,
			Investment: d("100"), CurrentPrice: d("50000"), LiquidationPrice: d("45000"), IsActive: true, OpenedAt: opened},
		{ID: "pos_a", Symbol: "BTCUSDT", Side: domain.Long, EntryPrice: d("1"), Leverage: 1, Investment: d("1")},
		{ID: "pos_bad", Symbol: "ETHUSDT", Side: domain.Side("flat"), EntryPrice: d("1"), Leverage: 1, Investment: d("1")},
		{ID: "pos_free", Symbol: "ETHUSDT", Side: domain.Long, EntryPrice: d("3000"), Leverage: 5, Investment: decimal.Zero},
		// No stored liquidation price.
		{ID: "pos_short", Symbol: "ETHUSDT", Side: domain.Short, EntryPrice: d("3000"), Leverage: 5,
			Investment: d("200"), CurrentPrice: d("3000"), IsActive: true, OpenedAt: opened},
	}
	tps := []*domain.TriggerOrder{
		{PositionID: "pos_a", TargetPrice: d("55000")},
		{PositionID: "pos_gone", TargetPrice: d("1")},
	}
	sls := []*domain.TriggerOrder{{PositionID: "pos_gone", TargetPrice: d("1")}}

	discarded := l.Restore(ctx, positions, tps, sls)
	assert.Equal(t, 5, discarded)
	assert.Equal(t, 2, l.Len())

	short, ok := l.Position("pos_short")
	require.True(t, ok)
	assertDecEqual(t, "3600", short.LiquidationPrice)

	closed, err := l.ApplyTick(ctx, "ETHUSDT", d("2990"))
	require.NoError(t, err)
	assert.Empty(t, closed)
	short, ok = l.Position("pos_short")
	require.True(t, ok)
	assert.True(t, short.UnrealizedPnL.IsPositive(), "got %s", short.UnrealizedPnL)
	require.Len(t, l.TakeProfits(), 1)
	assert.Equal(t, domain.TakeProfit, l.TakeProfits()[0].Kind)
	assert.Empty(t, l.StopLosses())

	closed, err = l.ApplyTick(ctx, "BTCUSDT", d("55000"))
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, domain.CloseReasonTakeProfit, closed[0].CloseReason)
}
