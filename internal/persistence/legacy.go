package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"cryptoLevSim/internal/domain"
	"cryptoLevSim/internal/id"
	"cryptoLevSim/internal/ports"
	"cryptoLevSim/internal/risk"
)

// legacyTrade is the single-position record written under KeyLegacyActiveTrade.
type legacyTrade struct {
	Symbol           string          `json:"symbol"`
	Type             string          `json:"type"`
	EntryPrice       decimal.Decimal `json:"entryPrice"`
	Leverage         int             `json:"leverage"`
	Investment       decimal.Decimal `json:"investment"`
	CurrentPrice     decimal.Decimal `json:"currentPrice"`
	PnL              decimal.Decimal `json:"pnl"`
	ROI              decimal.Decimal `json:"roi"`
	LiquidationPrice decimal.Decimal `json:"liquidationPrice"`
	IsActive         bool            `json:"isActive"`
	StartTime        time.Time       `json:"startTime"`
}

func (t *legacyTrade) toPosition() (*domain.Position, error) {
	side, ok := domain.ParseSide(t.Type)
	if !ok {
		return nil, fmt.Errorf("%w: legacy trade side %q", ports.ErrInconsistentState, t.Type)
	}
	if t.Leverage < 1 || !t.EntryPrice.IsPositive() || !t.Investment.IsPositive() {
		return nil, fmt.Errorf("%w: legacy trade terms", ports.ErrInconsistentState)
	}
	p := &domain.Position{
		ID:               id.WithPrefix("pos"),
		Symbol:           t.Symbol,
		Side:             side,
		EntryPrice:       t.EntryPrice,
		Leverage:         t.Leverage,
		Investment:       t.Investment,
		CurrentPrice:     t.CurrentPrice,
		UnrealizedPnL:    t.PnL,
		UnrealizedROI:    t.ROI,
		LiquidationPrice: t.LiquidationPrice,
		IsActive:         true,
		OpenedAt:         t.StartTime,
	}
	if !p.CurrentPrice.IsPositive() {
		p.CurrentPrice = p.EntryPrice
	}
	if p.LiquidationPrice.IsZero() {
		liq, err := risk.LiquidationPrice(p.EntryPrice, p.Leverage, side)
		if err != nil {
			return nil, err
		}
		p.LiquidationPrice = liq
	}
	return p, nil
}

// migrateLegacy converts a legacy active trade into a position, writes the new
// positions list and removes the legacy key, so the conversion happens once.
func (g *Gateway) migrateLegacy(ctx context.Context, state *State) error {
	raw, ok, err := g.get(ctx, KeyLegacyActiveTrade)
	if err != nil || !ok {
		return err
	}

	var trade legacyTrade
	if err := json.Unmarshal(raw, &trade); err != nil {
		g.discard(ctx, KeyLegacyActiveTrade, err)
	} else if trade.IsActive {
		p, err := trade.toPosition()
		if err != nil {
			g.discard(ctx, KeyLegacyActiveTrade, err)
		} else {
			state.Positions = append(state.Positions, p)
			encoded, err := json.Marshal(state.Positions)
			if err != nil {
				return fmt.Errorf("migrate legacy trade: %w", err)
			}
			if err := g.store.Set(ctx, KeyPositions, encoded); err != nil {
				return fmt.Errorf("migrate legacy trade: %w: %w", ports.ErrPersistenceFailure, err)
			}
			g.logger.Info(ctx, "Migrated legacy active trade", map[string]interface{}{
				"positionId": p.ID, "symbol": p.Symbol,
			})
		}
	}

	if err := g.store.Remove(ctx, KeyLegacyActiveTrade); err != nil {
		return fmt.Errorf("remove legacy trade: %w: %w", ports.ErrPersistenceFailure, err)
	}
	return nil
}

// historyRecord reads both the current history shape and the legacy one
// (type/pnl/roi/startTime/endTime/duration).
type historyRecord struct {
	domain.HistoryEntry
	Type      string           `json:"type"`
	PnL       *decimal.Decimal `json:"pnl"`
	ROI       *decimal.Decimal `json:"roi"`
	StartTime *time.Time       `json:"startTime"`
	EndTime   *time.Time       `json:"endTime"`
	Duration  *float64         `json:"duration"`
}

func (r *historyRecord) entry() (domain.HistoryEntry, error) {
	e := r.HistoryEntry
	if e.Side == "" && r.Type != "" {
		side, ok := domain.ParseSide(r.Type)
		if !ok {
			return e, fmt.Errorf("%w: history side %q", ports.ErrInconsistentState, r.Type)
		}
		e.Side = side
	}
	if !e.Side.Valid() || e.ID == "" {
		return e, fmt.Errorf("%w: history entry %q", ports.ErrInconsistentState, e.ID)
	}
	if r.PnL != nil && e.RealizedPnL.IsZero() {
		e.RealizedPnL = *r.PnL
	}
	if r.ROI != nil && e.RealizedROI.IsZero() {
		e.RealizedROI = *r.ROI
	}
	if r.StartTime != nil && e.OpenedAt.IsZero() {
		e.OpenedAt = *r.StartTime
	}
	if r.EndTime != nil && e.ClosedAt.IsZero() {
		e.ClosedAt = *r.EndTime
	}
	if r.Duration != nil && e.DurationMinutes == 0 {
		e.DurationMinutes = int64(*r.Duration)
	}
	if e.PositionID == "" {
		e.PositionID = e.ID
	}
	if e.Status == "" {
		e.Status = domain.StatusCompleted
	}
	return e, nil
}

// decodeHistory decodes the history list, skipping entries that cannot be read.
func decodeHistory(raw []byte) ([]domain.HistoryEntry, error) {
	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, err
	}
	out := make([]domain.HistoryEntry, 0, len(records))
	skipped := 0
	for _, rec := range records {
		var r historyRecord
		if err := json.Unmarshal(rec, &r); err != nil {
			skipped++
			continue
		}
		e, err := r.entry()
		if err != nil {
			skipped++
			continue
		}
		out = append(out, e)
	}
	if skipped > 0 {
		return out, fmt.Errorf("%w: skipped %d history entries", ports.ErrInconsistentState, skipped)
	}
	return out, nil
}
