// Package rulings is the lookup service. It fetches a fresh entry snapshot per
// call, runs the tiered matcher and the suggester over it, and owns the
// add/edit/delete policy on top of the store's upsert.
package rulings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ajitpratap0/rulings/internal/matcher"
	"github.com/ajitpratap0/rulings/internal/metrics"
	"github.com/ajitpratap0/rulings/internal/models"
	"github.com/ajitpratap0/rulings/internal/normalizer"
	"github.com/ajitpratap0/rulings/internal/store"
	"github.com/ajitpratap0/rulings/internal/suggest"
)

// ErrDuplicateKey is returned by Add when an entry with the same key exists.
var ErrDuplicateKey = errors.New("entry already exists")

// NotFoundHint is shown when a lookup has no match.
const NotFoundHint = "No ruling found for that query. Try another keyword."

// DefaultLimit is the default number of matches a lookup returns.
const DefaultLimit = 5

// Config tunes lookups.
type Config struct {
	Limit      int
	SuggestMax int
	// Floor is the minimum suggestion score; nil means suggest.DefaultFloor
	// and zero accepts every key.
	Floor      *float64
	Metric     suggest.Metric
}

// Service answers lookups and applies admin edits.
type Service struct {
	store     store.Store
	engine    *matcher.Engine
	suggester *suggest.Suggester
	limit     int
	logger    *slog.Logger
}

// NewService creates a Service. Zero or nil config fields take the package defaults.
func NewService(st store.Store, logger *slog.Logger, cfg Config) *Service {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.SuggestMax <= 0 {
		cfg.SuggestMax = suggest.DefaultMax
	}
	floor := suggest.DefaultFloor
	if cfg.Floor != nil {
		floor = *cfg.Floor
	}
	return &Service{
		store:  st,
		engine: matcher.New(),
		suggester: suggest.New(
			suggest.WithMetric(cfg.Metric),
			suggest.WithFloor(floor),
			suggest.WithMax(cfg.SuggestMax),
		),
		limit:  cfg.Limit,
		logger: logger,
	}
}

// Store exposes the underlying store to transports that need direct access.
func (s *Service) Store() store.Store { return s.store }

// Result is the answer to a lookup.
type Result struct {
	Query       string        `json:"query"`
	Best        *matcher.Hit  `json:"best,omitempty"`
	Others      []matcher.Hit `json:"others"`
	Suggestions []string      `json:"suggestions"`
	Hint        string        `json:"hint,omitempty"`
}

// Found reports whether the lookup matched an entry.
func (r *Result) Found() bool { return r.Best != nil }

// Lookup answers a free-text query. The best match's usage counter is
// incremented; a failure to count is logged and does not fail the lookup.
func (s *Service) Lookup(ctx context.Context, query string) (*Result, error) {
	metrics.Inc(metrics.LookupTotal)

	entries, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("lookup: %w", err)
	}

	keys := make([]string, len(entries))
	for i := range entries {
		keys[i] = entries[i].Key
	}

	res := &Result{
		Query:       query,
		Others:      []matcher.Hit{},
		Suggestions: s.suggester.Keys(query, keys),
	}

	hits := s.engine.Search(query, entries, s.limit)
	if len(hits) == 0 {
		metrics.Inc(metrics.LookupMiss)
		res.Hint = NotFoundHint
		s.logger.Debug("lookup miss", "query", query, "suggestions", len(res.Suggestions))
		return res, nil
	}

	best := hits[0]
	res.Best = &best
	res.Others = append(res.Others, hits[1:]...)

	if err := s.store.IncrementUsage(ctx, best.Entry.Key); err != nil {
		s.logger.Warn("usage increment failed", "key", best.Entry.Key, "error", err)
	} else {
		metrics.Inc(metrics.UsageIncrements)
	}
	s.logger.Debug("lookup hit", "query", query, "key", best.Entry.Key, "tier", best.Tier)
	return res, nil
}

// Suggest returns scored near-miss keys for query over the full key set.
func (s *Service) Suggest(ctx context.Context, query string) ([]suggest.Candidate, error) {
	entries, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest: %w", err)
	}
	keys := make([]string, len(entries))
	for i := range entries {
		keys[i] = entries[i].Key
	}
	return s.suggester.Candidates(query, keys), nil
}

// Get returns the entry stored under the normalized form of key.
func (s *Service) Get(ctx context.Context, key string) (*models.Entry, error) {
	return s.store.Get(ctx, normalizer.Key(key))
}

// List returns every entry in store order.
func (s *Service) List(ctx context.Context) ([]models.Entry, error) {
	return s.store.List(ctx)
}

// Filter returns entries matching f.
func (s *Service) Filter(ctx context.Context, f *store.Filters) ([]models.Entry, error) {
	return s.store.Filter(ctx, f)
}

// Add normalizes raw and inserts it. It refuses to overwrite an existing key.
func (s *Service) Add(ctx context.Context, raw models.RawEntry) (*models.Entry, error) {
	e, err := normalizer.Normalize(raw)
	if err != nil {
		return nil, fmt.Errorf("add: %w", err)
	}
	_, err = s.store.Get(ctx, e.Key)
	switch {
	case err == nil:
		return nil, fmt.Errorf("add %q: %w", e.Key, ErrDuplicateKey)
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("add %q: %w", e.Key, err)
	}
	if _, err := s.store.Upsert(ctx, e); err != nil {
		return nil, fmt.Errorf("add %q: %w", e.Key, err)
	}
	metrics.Inc(metrics.UpsertTotal)
	s.logger.Info("entry added", "key", e.Key)
	return &e, nil
}

// Put normalizes raw and inserts or replaces it.
func (s *Service) Put(ctx context.Context, raw models.RawEntry) (*models.Entry, store.UpsertResult, error) {
	e, err := normalizer.Normalize(raw)
	if err != nil {
		return nil, 0, fmt.Errorf("put: %w", err)
	}
	res, err := s.store.Upsert(ctx, e)
	if err != nil {
		return nil, 0, fmt.Errorf("put %q: %w", e.Key, err)
	}
	metrics.Inc(metrics.UpsertTotal)
	s.logger.Info("entry stored", "key", e.Key, "result", res.String())
	return &e, res, nil
}

// Edit applies a partial update to an existing entry. Fields absent from the
// patch are kept as stored.
func (s *Service) Edit(ctx context.Context, key string, patch models.EntryPatch) (*models.Entry, error) {
	existing, err := s.store.Get(ctx, normalizer.Key(key))
	if err != nil {
		return nil, fmt.Errorf("edit: %w", err)
	}
	e, err := normalizer.Apply(*existing, patch)
	if err != nil {
		return nil, fmt.Errorf("edit %q: %w", existing.Key, err)
	}
	if _, err := s.store.Upsert(ctx, e); err != nil {
		return nil, fmt.Errorf("edit %q: %w", e.Key, err)
	}
	metrics.Inc(metrics.UpsertTotal)
	s.logger.Info("entry edited", "key", e.Key)
	return &e, nil
}

// Delete removes an entry, returning ErrNotFound when it does not exist.
func (s *Service) Delete(ctx context.Context, key string) error {
	k := normalizer.Key(key)
	deleted, err := s.store.Delete(ctx, k)
	if err != nil {
		return fmt.Errorf("delete %q: %w", k, err)
	}
	if !deleted {
		return fmt.Errorf("delete %q: %w", k, store.ErrNotFound)
	}
	metrics.Inc(metrics.DeleteTotal)
	s.logger.Info("entry deleted", "key", k)
	return nil
}

// Stats summarizes the knowledge base.
func (s *Service) Stats(ctx context.Context, top int) (*models.Stats, error) {
	n, err := s.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	pendingStatus := models.StatusPending
	pending, err := s.store.ListSuggestions(ctx, &pendingStatus, 0)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	usage, err := s.store.TopUsage(ctx, top)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return &models.Stats{
		TotalEntries:       n,
		PendingSuggestions: len(pending),
		TopUsage:           usage,
	}, nil
}
