package domain

import "strings"

// Side represents the direction of a position (long or short).
type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

// Valid reports whether s is one of the known sides.
func (s Side) Valid() bool {
	return s == Long || s == Short
}

// ParseSide converts user input such as "LONG" or "buy" into a Side.
func ParseSide(raw string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "long", "buy":
		return Long, true
	case "short", "sell":
		return Short, true
	default:
		return "", false
	}
}

// HistoryStatus records how a position left the open set.
type HistoryStatus string

const (
	StatusCompleted  HistoryStatus = "completed"
	StatusLiquidated HistoryStatus = "liquidated"
)

// CloseReason indicates why a position was closed.
type CloseReason string

const (
	CloseReasonLiquidation CloseReason = "Liquidation"
	CloseReasonTakeProfit  CloseReason = "TP"
	CloseReasonStopLoss    CloseReason = "SL"
	CloseReasonManual      CloseReason = "MANUAL"
)

// Status maps a close reason onto the history status it produces.
func (r CloseReason) Status() HistoryStatus {
	if r == CloseReasonLiquidation {
		return StatusLiquidated
	}
	return StatusCompleted
}

// ConnectionStatus is the health of a live price subscription.
type ConnectionStatus string

const (
	ConnConnecting   ConnectionStatus = "connecting"
	ConnConnected    ConnectionStatus = "connected"
	ConnDisconnected ConnectionStatus = "disconnected"
	ConnError        ConnectionStatus = "error"
)

// TriggerKind distinguishes take-profit from stop-loss orders.
type TriggerKind string

const (
	TakeProfit TriggerKind = "take_profit"
	StopLoss   TriggerKind = "stop_loss"
)
