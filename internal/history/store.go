package history

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"cryptoLevSim/internal/domain"
	"cryptoLevSim/internal/ports"
)

// DefaultLimit is the number of entries kept when no limit is configured.
const DefaultLimit = 50

// Filter narrows history queries. Zero fields match everything.
type Filter struct {
	Symbol string
	Side   domain.Side
	Since  time.Time
}

func (f Filter) match(e *domain.HistoryEntry) bool {
	if f.Symbol != "" && !strings.EqualFold(f.Symbol, e.Symbol) {
		return false
	}
	if f.Side != "" && f.Side != e.Side {
		return false
	}
	if !f.Since.IsZero() && e.ClosedAt.Before(f.Since) {
		return false
	}
	return true
}

// Store is a bounded list of closed positions, newest first.
// Appending beyond the limit evicts the oldest entries.
type Store struct {
	limit int

	mu      sync.RWMutex
	entries []domain.HistoryEntry
}

// NewStore creates an empty store holding at most limit entries.
func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Store{limit: limit}
}

// Append records a closed position and returns how many entries were evicted.
func (s *Store) Append(entry domain.HistoryEntry) (evicted int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append([]domain.HistoryEntry{entry}, s.entries...)
	if len(s.entries) > s.limit {
		evicted = len(s.entries) - s.limit
		s.entries = s.entries[:s.limit]
	}
	return evicted
}

// Query returns the entries matching filter, most recent first.
func (s *Store) Query(filter Filter) []domain.HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.HistoryEntry, 0, len(s.entries))
	for i := range s.entries {
		if filter.match(&s.entries[i]) {
			out = append(out, s.entries[i])
		}
	}
	return out
}

// Entries returns every stored entry, most recent first.
func (s *Store) Entries() []domain.HistoryEntry {
	return s.Query(Filter{})
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Limit returns the retention bound.
func (s *Store) Limit() int {
	return s.limit
}

// Clear removes every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}

// Restore replaces the contents with persisted entries, ordering them newest
// first and trimming to the limit.
func (s *Store) Restore(entries []domain.HistoryEntry) {
	sorted := make([]domain.HistoryEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ClosedAt.After(sorted[j].ClosedAt)
	})
	if len(sorted) > s.limit {
		sorted = sorted[:s.limit]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = sorted
}

// PeriodSince converts a period name (24h, 7d, 30d or all) into a Filter.Since value.
func PeriodSince(period string, now time.Time) (time.Time, error) {
	switch strings.ToLower(strings.TrimSpace(period)) {
	case "", "all":
		return time.Time{}, nil
	case "24h", "1d":
		return now.Add(-24 * time.Hour), nil
	case "7d":
		return now.AddDate(0, 0, -7), nil
	case "30d":
		return now.AddDate(0, 0, -30), nil
	default:
		return time.Time{}, fmt.Errorf("%w: unknown period %q (want 24h, 7d, 30d or all)", ports.ErrInvalidInput, period)
	}
}
