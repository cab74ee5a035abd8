package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ajitpratap0/rulings/internal/metrics"
	"github.com/ajitpratap0/rulings/internal/models"
	"github.com/ajitpratap0/rulings/internal/store"
)

// Report summarizes the results of a lifecycle run.
type Report struct {
	Purged   int `json:"purged"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

// Manager handles suggestion retention.
type Manager struct {
	store     store.Store
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewManager creates a new lifecycle manager. Decided suggestions older than
// retentionDays are purged; zero disables purging.
func NewManager(st store.Store, retentionDays int, logger *slog.Logger) *Manager {
	return &Manager{
		store:     st,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}
}

// Run executes all lifecycle operations. Failures do not stop the run: the
// report counts what was purged and the joined error lists what failed.
func (m *Manager) Run(ctx context.Context, dryRun bool) (*Report, error) {
	report := &Report{}
	if m.retention <= 0 {
		return report, nil
	}

	var errs []error
	for _, status := range []models.SuggestionStatus{models.StatusApproved, models.StatusRejected} {
		n, err := m.purgeDecided(ctx, status, dryRun)
		if err != nil {
			m.logger.Error("suggestion purge failed", "status", status, "error", err)
			errs = append(errs, err)
		}
		switch status {
		case models.StatusApproved:
			report.Approved = n
		case models.StatusRejected:
			report.Rejected = n
		}
		report.Purged += n
	}
	return report, errors.Join(errs...)
}

// purgeDecided removes suggestions in status decided before the retention window.
func (m *Manager) purgeDecided(ctx context.Context, status models.SuggestionStatus, dryRun bool) (int, error) {
	suggestions, err := m.store.ListSuggestions(ctx, &status, 0)
	if err != nil {
		return 0, fmt.Errorf("listing %s suggestions: %w", status, err)
	}

	cutoff := m.now().Add(-m.retention)
	purged := 0
	var errs []error

	for _, s := range suggestions {
		decided := s.CreatedAt
		if s.DecidedAt != nil {
			decided = *s.DecidedAt
		}
		if !decided.Before(cutoff) {
			continue
		}

		m.logger.Info("purging decided suggestion", "id", s.ID, "key", s.Entry.Key, "status", status, "decided", decided)
		if !dryRun {
			if _, err := m.store.DeleteSuggestion(ctx, s.ID); err != nil {
				m.logger.Error("deleting suggestion", "id", s.ID, "error", err)
				errs = append(errs, fmt.Errorf("deleting suggestion %s: %w", s.ID, err))
				continue
			}
			metrics.Inc(metrics.SuggestionPurged)
		}
		purged++
	}

	return purged, errors.Join(errs...)
}
