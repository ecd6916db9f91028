package utils

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"cryptoLevSim/internal/domain"
)

var historyHeader = []string{
	"id", "position_id", "symbol", "side", "leverage", "investment",
	"entry_price", "exit_price", "realized_pnl", "realized_roi",
	"opened_at", "closed_at", "duration_minutes", "status", "close_reason",
}

// WriteHistoryCSV writes closed positions as CSV rows under a header line.
func WriteHistoryCSV(w io.Writer, entries []domain.HistoryEntry) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(historyHeader); err != nil {
		return err
	}
	for _, e := range entries {
		if err := writer.Write([]string{
			e.ID,
			e.PositionID,
			e.Symbol,
			string(e.Side),
			strconv.Itoa(e.Leverage),
			e.Investment.String(),
			e.EntryPrice.String(),
			e.ExitPrice.String(),
			e.RealizedPnL.String(),
			e.RealizedROI.String(),
			e.OpenedAt.UTC().Format(time.RFC3339),
			e.ClosedAt.UTC().Format(time.RFC3339),
			strconv.FormatInt(e.DurationMinutes, 10),
			string(e.Status),
			string(e.CloseReason),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteHistoryCSVFile writes closed positions to filename, creating parent directories.
func WriteHistoryCSVFile(filename string, entries []domain.HistoryEntry) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return WriteHistoryCSV(file, entries)
}
