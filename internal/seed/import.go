package seed

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"

	"github.com/ajitpratap0/rulings/internal/metrics"
	"github.com/ajitpratap0/rulings/internal/models"
	"github.com/ajitpratap0/rulings/internal/normalizer"
	"github.com/ajitpratap0/rulings/internal/store"
)

//go:embed default.yaml
var defaultSeed []byte

// Defaults returns the built-in starter rulings.
func Defaults() ([]Record, error) {
	return ParseYAML("default.yaml", defaultSeed)
}

// Report summarizes an import.
type Report struct {
	Inserted   int       `json:"inserted"`
	Updated    int       `json:"updated"`
	Duplicates int       `json:"duplicates"`
	Skipped    int       `json:"skipped"`
	Problems   []Problem `json:"problems,omitempty"`
}

// Importer writes seed records into a store.
type Importer struct {
	store  store.Store
	logger *slog.Logger
}

// NewImporter creates an Importer.
func NewImporter(st store.Store, logger *slog.Logger) *Importer {
	return &Importer{store: st, logger: logger}
}

// Import normalizes every record and upserts the survivors in input order.
// Invalid records are skipped and reported. When a key appears more than once
// the last record wins, at the position of the first.
func (im *Importer) Import(ctx context.Context, records []Record) (*Report, error) {
	report := &Report{}

	var order []string
	byKey := make(map[string]models.Entry, len(records))
	for _, rec := range records {
		e, err := normalizer.Normalize(rec.Raw)
		if err != nil {
			report.Skipped++
			report.Problems = append(report.Problems, Problem{Source: rec.Source, Reason: err.Error()})
			metrics.Inc(metrics.SeedSkipped)
			im.logger.Warn("skipping seed record", "source", rec.Source, "error", err)
			continue
		}
		if _, dup := byKey[e.Key]; dup {
			report.Duplicates++
			im.logger.Debug("duplicate seed key, later record wins", "key", e.Key, "source", rec.Source)
		} else {
			order = append(order, e.Key)
		}
		byKey[e.Key] = e
	}

	for _, key := range order {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res, err := im.store.Upsert(ctx, byKey[key])
		if err != nil {
			return report, fmt.Errorf("import %q: %w", key, err)
		}
		switch res {
		case store.Inserted:
			report.Inserted++
		case store.Updated:
			report.Updated++
		}
		metrics.Inc(metrics.SeedImported)
	}

	im.logger.Info("seed import complete",
		"inserted", report.Inserted,
		"updated", report.Updated,
		"duplicates", report.Duplicates,
		"skipped", report.Skipped,
	)
	return report, nil
}

// ImportPath loads path and imports it. Parse problems are added to the report.
func (im *Importer) ImportPath(ctx context.Context, path string) (*Report, error) {
	records, problems, err := LoadPath(ctx, path)
	if err != nil {
		return nil, err
	}
	report, err := im.Import(ctx, records)
	if report != nil && len(problems) > 0 {
		report.Skipped += len(problems)
		report.Problems = append(problems, report.Problems...)
	}
	return report, err
}
