package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoLevSim/internal/ports"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func TestNew_Validation(t *testing.T) {
	_, err := New(context.Background(), Config{Addr: "localhost:6379"})
	assert.Error(t, err)

	_, err = New(context.Background(), Config{Logger: &mockLogger{}})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

func TestNew_UnreachableServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := New(ctx, Config{Addr: "127.0.0.1:1", Logger: &mockLogger{}})
	assert.ErrorIs(t, err, ports.ErrConnectionFailed)
}

func TestKeyPrefix(t *testing.T) {
	s := &Store{namespace: "levsim"}
	assert.Equal(t, "levsim:positions", s.key("positions"))
}

// TestStore_Integration runs against a live server when REDIS_TEST_ADDR is set.
func TestStore_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	ctx := context.Background()
	s, err := New(ctx, Config{Addr: addr, Namespace: "levsim-test", Logger: &mockLogger{}})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Remove(ctx, "positions"))
	_, ok, err := s.Get(ctx, "positions")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "positions", []byte(`[]`)))
	got, ok, err := s.Get(ctx, "positions")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[]`, string(got))
	require.NoError(t, s.Remove(ctx, "positions"))
}
