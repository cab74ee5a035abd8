package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ajitpratap0/rulings/internal/models"
)

// MemoryStore is an in-memory implementation of Store. List returns entries in
// insertion order; replacing an entry keeps its position.
type MemoryStore struct {
	mu          sync.RWMutex
	order       []string
	entries     map[string]models.Entry
	usage       map[string]int64
	suggestions map[string]*storedSuggestion
	seq         int64
}

type storedSuggestion struct {
	suggestion models.Suggestion
	seq        int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:     make(map[string]models.Entry),
		usage:       make(map[string]int64),
		suggestions: make(map[string]*storedSuggestion),
	}
}

// List returns a copy of every entry in insertion order.
func (m *MemoryStore) List(_ context.Context) ([]models.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Entry, 0, len(m.order))
	for _, key := range m.order {
		out = append(out, m.entries[key].Clone())
	}
	return out, nil
}

// Get retrieves a single entry by key.
func (m *MemoryStore) Get(_ context.Context, key string) (*models.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, fmt.Errorf("entry %q: %w", key, ErrNotFound)
	}
	// Deep-copy so callers cannot mutate stored data.
	e = e.Clone()
	return &e, nil
}

// Upsert inserts or fully replaces an entry.
func (m *MemoryStore) Upsert(_ context.Context, entry models.Entry) (UpsertResult, error) {
	if entry.Key == "" {
		return 0, fmt.Errorf("upsert: empty key")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.entries[entry.Key]
	m.entries[entry.Key] = entry.Clone()
	if exists {
		return Updated, nil
	}
	m.order = append(m.order, entry.Key)
	return Inserted, nil
}

// Delete removes an entry by key.
func (m *MemoryStore) Delete(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; !ok {
		return false, nil
	}
	delete(m.entries, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// Count returns the number of entries.
func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// Filter returns entries matching f in insertion order.
func (m *MemoryStore) Filter(_ context.Context, f *Filters) ([]models.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Entry
	for _, key := range m.order {
		e := m.entries[key]
		if f.Matches(e) {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

// IncrementUsage adds one to the counter of key.
func (m *MemoryStore) IncrementUsage(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage[key]++
	return nil
}

// Usage returns the counter of key.
func (m *MemoryStore) Usage(_ context.Context, key string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.usage[key], nil
}

// TopUsage returns the n most used keys.
func (m *MemoryStore) TopUsage(_ context.Context, n int) ([]models.UsageStat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := make([]models.UsageStat, 0, len(m.usage))
	for k, c := range m.usage {
		stats = append(stats, models.UsageStat{Key: k, Count: c})
	}
	SortUsage(stats)
	if n > 0 && len(stats) > n {
		stats = stats[:n]
	}
	return stats, nil
}

// AddSuggestion stores a suggestion.
func (m *MemoryStore) AddSuggestion(_ context.Context, s models.Suggestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.suggestions[s.ID]; exists {
		return fmt.Errorf("suggestion %s already exists", s.ID)
	}
	m.seq++
	s.Entry = s.Entry.Clone()
	m.suggestions[s.ID] = &storedSuggestion{suggestion: s, seq: m.seq}
	return nil
}

// GetSuggestion retrieves a suggestion by ID.
func (m *MemoryStore) GetSuggestion(_ context.Context, id string) (*models.Suggestion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ss, ok := m.suggestions[id]
	if !ok {
		return nil, fmt.Errorf("suggestion %s: %w", id, ErrNotFound)
	}
	s := copySuggestion(ss.suggestion)
	return &s, nil
}

// ListSuggestions returns suggestions most recent first.
func (m *MemoryStore) ListSuggestions(_ context.Context, status *models.SuggestionStatus, limit int) ([]models.Suggestion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []*storedSuggestion
	for _, ss := range m.suggestions {
		if status != nil && ss.suggestion.Status != *status {
			continue
		}
		all = append(all, ss)
	}
	sort.Slice(all, func(i, j int) bool {
		ci, cj := all[i].suggestion.CreatedAt, all[j].suggestion.CreatedAt
		if !ci.Equal(cj) {
			return ci.After(cj)
		}
		return all[i].seq > all[j].seq
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}

	out := make([]models.Suggestion, len(all))
	for i, ss := range all {
		out[i] = copySuggestion(ss.suggestion)
	}
	return out, nil
}

// TransitionSuggestion moves a pending suggestion to a terminal status.
func (m *MemoryStore) TransitionSuggestion(_ context.Context, id string, to models.SuggestionStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ss, ok := m.suggestions[id]
	if !ok {
		return fmt.Errorf("suggestion %s: %w", id, ErrNotFound)
	}
	if err := ValidateTransition(ss.suggestion.Status, to); err != nil {
		return fmt.Errorf("suggestion %s: %w", id, err)
	}
	ss.suggestion.Status = to
	decided := at.UTC()
	ss.suggestion.DecidedAt = &decided
	return nil
}

// DeleteSuggestion removes a suggestion by ID.
func (m *MemoryStore) DeleteSuggestion(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.suggestions[id]; !ok {
		return false, nil
	}
	delete(m.suggestions, id)
	return true, nil
}

// Close is a no-op for the memory store.
func (m *MemoryStore) Close() error {
	return nil
}

// --- helpers ---

func copySuggestion(s models.Suggestion) models.Suggestion {
	s.Entry = s.Entry.Clone()
	if s.DecidedAt != nil {
		d := *s.DecidedAt
		s.DecidedAt = &d
	}
	return s
}

// SortUsage orders usage stats by count descending, then key.
func SortUsage(stats []models.UsageStat) {
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Key < stats[j].Key
	})
}
