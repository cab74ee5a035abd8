package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/rulings/internal/config"
	"github.com/ajitpratap0/rulings/internal/moderation"
	"github.com/ajitpratap0/rulings/internal/rulings"
	"github.com/ajitpratap0/rulings/internal/seed"
	"github.com/ajitpratap0/rulings/internal/store"
	"github.com/ajitpratap0/rulings/internal/store/boltstore"
	"github.com/ajitpratap0/rulings/internal/store/sqlstore"
	"github.com/ajitpratap0/rulings/internal/suggest"
)

var cfg *config.Config

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	rootCmd := &cobra.Command{
		Use:   "rulings",
		Short: "Rulings: a keyed knowledge base with tiered lookup",
		Long:  "Rulings stores short keyed reference entries and answers free-text queries with the best match, secondary candidates and close spellings.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		rulingCmd(),
		getCmd(),
		addCmd(),
		setCmd(),
		editCmd(),
		deleteCmd(),
		listCmd(),
		statsCmd(),
		importCmd(),
		exportCmd(),
		proposeCmd(),
		queueCmd(),
		serveCmd(),
		mcpCmd(),
		healthCmd(),
	)

	rootCmd.SetContext(ctx)

	err := rootCmd.Execute()
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if cfg != nil {
		switch cfg.Logging.Level {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg != nil && cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// newStore opens the configured backend. The memory backend and newly created
// sqlite or bolt files start with the built-in rulings; an existing file is
// never reseeded, so deleting every ruling sticks.
func newStore(ctx context.Context, logger *slog.Logger) (store.Store, error) {
	var (
		st    store.Store
		fresh bool
		err   error
	)
	switch cfg.Store.Driver {
	case config.DriverMemory:
		st, fresh = store.NewMemoryStore(), true
	case config.DriverSQLite:
		if err := ensureDir(cfg.Store.SQLitePath); err != nil {
			return nil, err
		}
		fresh = isNewFile(cfg.Store.SQLitePath)
		st, err = openSQL(ctx, sqlstore.DriverSQLite, cfg.Store.SQLitePath)
	case config.DriverPostgres:
		st, err = openSQL(ctx, sqlstore.DriverPostgres, cfg.Store.PostgresDSN)
	case config.DriverBolt:
		if err := ensureDir(cfg.Store.BoltPath); err != nil {
			return nil, err
		}
		fresh = isNewFile(cfg.Store.BoltPath)
		st, err = openBolt(cfg.Store.BoltPath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if fresh {
		if err := seedDefaults(ctx, st, logger); err != nil {
			_ = st.Close()
			return nil, err
		}
	}
	return st, nil
}

// openSQL and openBolt keep a failed open from becoming a non-nil interface.
func openSQL(ctx context.Context, driver, dsn string) (store.Store, error) {
	st, err := sqlstore.Open(ctx, driver, dsn)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func openBolt(path string) (store.Store, error) {
	st, err := boltstore.Open(path)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func isNewFile(path string) bool {
	if path == ":memory:" {
		return true
	}
	_, err := os.Stat(path)
	return errors.Is(err, fs.ErrNotExist)
}

// seedDefaults loads the built-in rulings into an empty store.
func seedDefaults(ctx context.Context, st store.Store, logger *slog.Logger) error {
	n, err := st.Count(ctx)
	if err != nil {
		return fmt.Errorf("seeding defaults: %w", err)
	}
	if n > 0 {
		return nil
	}
	records, err := seed.Defaults()
	if err != nil {
		return fmt.Errorf("seeding defaults: %w", err)
	}
	report, err := seed.NewImporter(st, logger).Import(ctx, records)
	if err != nil {
		return fmt.Errorf("seeding defaults: %w", err)
	}
	logger.Debug("seeded built-in rulings", "inserted", report.Inserted)
	return nil
}

func ensureDir(path string) error {
	if path == ":memory:" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	return nil
}

func newService(st store.Store, logger *slog.Logger) (*rulings.Service, error) {
	metric, err := suggest.MetricByName(cfg.Lookup.Metric)
	if err != nil {
		return nil, err
	}
	return rulings.NewService(st, logger, rulings.Config{
		Limit:      cfg.Lookup.Limit,
		SuggestMax: cfg.Lookup.SuggestMax,
		Floor:      &cfg.Lookup.SimilarityFloor,
		Metric:     metric,
	}), nil
}

func newQueue(st store.Store, logger *slog.Logger) *moderation.Queue {
	return moderation.NewQueue(st, logger)
}

// openAll opens the store and builds the lookup service on top of it.
func openAll(ctx context.Context, logger *slog.Logger, op string) (store.Store, *rulings.Service, error) {
	st, err := newStore(ctx, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: opening store: %w", op, err)
	}
	svc, err := newService(st, logger)
	if err != nil {
		_ = st.Close()
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	return st, svc, nil
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen]) + "..."
	}
	return s
}
