package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warning", LevelWarn},
		{"Error", LevelError},
		{"verbose", LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestLogrusLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogrusLogger(Options{Level: LevelInfo, Format: "json", Output: &buf})

	l.Debug(context.Background(), "hidden")
	l.With(map[string]interface{}{"component": "ledger"}).
		Error(context.Background(), errors.New("boom"), "Position liquidated", map[string]interface{}{"symbol": "BTCUSDT"})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1, "debug is below the configured level")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "Position liquidated", entry["msg"])
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "BTCUSDT", entry["symbol"])
	assert.Equal(t, "ledger", entry["component"])
	assert.Equal(t, "boom", entry["error"])
}

func TestLogrusLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogrusLogger(Options{Level: LevelDebug, Output: &buf})
	l.Warn(context.Background(), "Rejected tick", map[string]interface{}{"price": "0"})
	assert.Contains(t, buf.String(), "Rejected tick")
	assert.Contains(t, buf.String(), "price=0")
}
