// Package moderation holds user-proposed entries until an operator approves
// or rejects them. A suggestion is created pending and moves exactly once to
// approved or rejected; approval is the only path that writes the entry store.
package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/rulings/internal/metrics"
	"github.com/ajitpratap0/rulings/internal/models"
	"github.com/ajitpratap0/rulings/internal/normalizer"
	"github.com/ajitpratap0/rulings/internal/store"
)

// Queue manages the suggestion lifecycle on top of a store.
type Queue struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock overrides the time source used for CreatedAt and DecidedAt.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithIDGenerator overrides suggestion ID generation.
func WithIDGenerator(gen func() string) Option {
	return func(q *Queue) { q.newID = gen }
}

// NewQueue creates a moderation queue.
func NewQueue(st store.Store, logger *slog.Logger, opts ...Option) *Queue {
	q := &Queue{
		store:  st,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Submit normalizes raw and records it as a pending suggestion.
func (q *Queue) Submit(ctx context.Context, raw models.RawEntry, author models.Author) (*models.Suggestion, error) {
	entry, err := normalizer.Normalize(raw)
	if err != nil {
		return nil, fmt.Errorf("submit suggestion: %w", err)
	}

	s := models.Suggestion{
		ID:                q.newID(),
		Entry:             entry,
		AuthorID:          author.ID,
		AuthorDisplayName: author.DisplayName,
		CreatedAt:         q.now(),
		Status:            models.StatusPending,
	}
	if err := q.store.AddSuggestion(ctx, s); err != nil {
		return nil, fmt.Errorf("submit suggestion: %w", err)
	}

	metrics.Inc(metrics.SuggestionSubmitted)
	q.logger.Info("suggestion submitted", "id", s.ID, "key", entry.Key, "author", author.ID)
	return &s, nil
}

// Get returns a suggestion by ID.
func (q *Queue) Get(ctx context.Context, id string) (*models.Suggestion, error) {
	return q.store.GetSuggestion(ctx, id)
}

// Pending returns pending suggestions, most recent first.
func (q *Queue) Pending(ctx context.Context, limit int) ([]models.Suggestion, error) {
	pending := models.StatusPending
	return q.store.ListSuggestions(ctx, &pending, limit)
}

// List returns suggestions of any status (nil) or of one status.
func (q *Queue) List(ctx context.Context, status *models.SuggestionStatus, limit int) ([]models.Suggestion, error) {
	return q.store.ListSuggestions(ctx, status, limit)
}

// Approve writes the suggested entry to the store and marks the suggestion
// approved. The suggestion must still be pending.
//
// The upsert happens before the status change, so if another operator decides
// the same suggestion in between, the entry is written and ErrNotPending is
// returned.
func (q *Queue) Approve(ctx context.Context, id string) (store.UpsertResult, error) {
	s, err := q.store.GetSuggestion(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("approve %s: %w", id, err)
	}
	if s.Status != models.StatusPending {
		return 0, fmt.Errorf("approve %s: %w", id, store.ErrNotPending)
	}

	entry, err := normalizer.Normalize(normalizer.FromEntry(s.Entry))
	if err != nil {
		return 0, fmt.Errorf("approve %s: %w", id, err)
	}
	res, err := q.store.Upsert(ctx, entry)
	if err != nil {
		return 0, fmt.Errorf("approve %s: %w", id, err)
	}
	metrics.Inc(metrics.UpsertTotal)

	if err := q.store.TransitionSuggestion(ctx, id, models.StatusApproved, q.now()); err != nil {
		return res, fmt.Errorf("approve %s: %w", id, err)
	}

	metrics.Inc(metrics.SuggestionApproved)
	q.logger.Info("suggestion approved", "id", id, "key", entry.Key, "result", res.String())
	return res, nil
}

// Reject marks a pending suggestion rejected without touching the entry store.
func (q *Queue) Reject(ctx context.Context, id string) error {
	if err := q.store.TransitionSuggestion(ctx, id, models.StatusRejected, q.now()); err != nil {
		return fmt.Errorf("reject %s: %w", id, err)
	}
	metrics.Inc(metrics.SuggestionRejected)
	q.logger.Info("suggestion rejected", "id", id)
	return nil
}
