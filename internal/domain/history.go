package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// HistoryEntry is the immutable record of a closed position.
type HistoryEntry struct {
	ID              string          `json:"id"`
	PositionID      string          `json:"positionId"`
	Symbol          string          `json:"symbol"`
	Side            Side            `json:"side"`
	EntryPrice      decimal.Decimal `json:"entryPrice"`
	ExitPrice       decimal.Decimal `json:"exitPrice"`
	Leverage        int             `json:"leverage"`
	Investment      decimal.Decimal `json:"investment"`
	RealizedPnL     decimal.Decimal `json:"realizedPnl"`
	RealizedROI     decimal.Decimal `json:"realizedRoi"`
	OpenedAt        time.Time       `json:"openedAt"`
	ClosedAt        time.Time       `json:"closedAt"`
	DurationMinutes int64           `json:"durationMinutes"`
	Status          HistoryStatus   `json:"status"`
	CloseReason     CloseReason     `json:"closeReason,omitempty"`
}

// DurationMinutes rounds the open interval to whole minutes.
func DurationMinutes(openedAt, closedAt time.Time) int64 {
	d := closedAt.Sub(openedAt)
	if d < 0 {
		return 0
	}
	return int64(d.Round(time.Minute) / time.Minute)
}
