package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ajitpratap0/rulings/internal/models"
)

// ErrNotFound is returned by Get, GetSuggestion and TransitionSuggestion when the
// requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrNotPending is returned by TransitionSuggestion when the suggestion has
// already been approved or rejected.
var ErrNotPending = errors.New("suggestion is not pending")

// UpsertResult tells whether Upsert created or replaced an entry.
type UpsertResult int

const (
	Inserted UpsertResult = iota + 1
	Updated
)

func (r UpsertResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return "unknown"
	}
}

// Store is the persistence contract of the knowledge base. Entry keys are
// expected to be normalized by the caller. Implementations must make Upsert
// atomic per key and TransitionSuggestion atomic per suggestion.
type Store interface {
	// List returns every entry in an order that is stable absent mutation.
	List(ctx context.Context) ([]models.Entry, error)

	// Get retrieves a single entry by key.
	Get(ctx context.Context, key string) (*models.Entry, error)

	// Upsert inserts the entry, or replaces every field of the entry with the same key.
	Upsert(ctx context.Context, entry models.Entry) (UpsertResult, error)

	// Delete removes an entry and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	// Filter returns entries matching every set field of f, in List order.
	Filter(ctx context.Context, f *Filters) ([]models.Entry, error)

	// IncrementUsage adds one to the lookup counter of key.
	IncrementUsage(ctx context.Context, key string) error

	// Usage returns the lookup counter of key (zero when never looked up).
	Usage(ctx context.Context, key string) (int64, error)

	// TopUsage returns the n most looked-up keys, highest count first.
	TopUsage(ctx context.Context, n int) ([]models.UsageStat, error)

	// AddSuggestion stores a new suggestion.
	AddSuggestion(ctx context.Context, s models.Suggestion) error

	// GetSuggestion retrieves a suggestion by ID.
	GetSuggestion(ctx context.Context, id string) (*models.Suggestion, error)

	// ListSuggestions returns suggestions most recent first, optionally filtered
	// by status. A limit of zero means no limit.
	ListSuggestions(ctx context.Context, status *models.SuggestionStatus, limit int) ([]models.Suggestion, error)

	// TransitionSuggestion moves a pending suggestion to a terminal status.
	TransitionSuggestion(ctx context.Context, id string, to models.SuggestionStatus, at time.Time) error

	// DeleteSuggestion removes a suggestion and reports whether it existed.
	DeleteSuggestion(ctx context.Context, id string) (bool, error)

	// Close cleans up resources.
	Close() error
}

// Filters selects entries by case-insensitive substring. Empty fields are ignored.
type Filters struct {
	Key       string `json:"key,omitempty"`
	Title     string `json:"title,omitempty"`
	Tag       string `json:"tag,omitempty"`
	Archetype string `json:"archetype,omitempty"`
	Format    string `json:"format,omitempty"`
}

// IsEmpty reports whether no filter field is set.
func (f *Filters) IsEmpty() bool {
	return f == nil || (f.Key == "" && f.Title == "" && f.Tag == "" && f.Archetype == "" && f.Format == "")
}

// Matches applies f to e. Backends without a native query language use it directly.
func (f *Filters) Matches(e models.Entry) bool {
	if f.IsEmpty() {
		return true
	}
	if !containsFold(e.Key, f.Key) || !containsFold(e.Title, f.Title) {
		return false
	}
	if !containsFold(e.Archetype, f.Archetype) || !containsFold(e.Format, f.Format) {
		return false
	}
	if f.Tag == "" {
		return true
	}
	for _, t := range e.Tags {
		if containsFold(t, f.Tag) {
			return true
		}
	}
	return false
}

func containsFold(s, sub string) bool {
	if sub == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// ValidateTransition checks that a suggestion in status from may move to to.
func ValidateTransition(from, to models.SuggestionStatus) error {
	if !to.IsTerminal() {
		return errors.New("target status must be approved or rejected")
	}
	if from != models.StatusPending {
		return ErrNotPending
	}
	return nil
}
