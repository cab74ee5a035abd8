package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/rulings/internal/api"
	"github.com/ajitpratap0/rulings/internal/seed"
	"github.com/ajitpratap0/rulings/internal/store"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP/JSON API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, svc, err := openAll(ctx, logger, "serve")
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			if cfg.Seed.Path != "" {
				if err := importSeed(ctx, st, logger); err != nil {
					return fmt.Errorf("serve: %w", err)
				}
				if cfg.Seed.Watch {
					go func() {
						watchErr := seed.Watch(ctx, cfg.Seed.Path, seed.DefaultDebounce, logger, func() {
							if err := importSeed(ctx, st, logger); err != nil {
								logger.Error("seed reload failed", "error", err)
							}
						})
						if watchErr != nil {
							logger.Error("seed watch stopped", "error", watchErr)
						}
					}()
				}
			}

			srv := api.NewServer(svc, newQueue(st, logger), logger, cfg.API.AuthToken)

			if cfg.API.AuthToken == "" {
				logger.Warn("HTTP API: auth is DISABLED; set RULINGS_API_AUTH_TOKEN or api.auth_token for production use")
			}

			httpSrv := &http.Server{
				Addr:              cfg.API.ListenAddr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       30 * time.Second,
				WriteTimeout:      60 * time.Second,
				IdleTimeout:       120 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("HTTP API server starting", "addr", cfg.API.ListenAddr, "store", cfg.Store.String())
				if listenErr := httpSrv.ListenAndServe(); listenErr != nil && listenErr != http.ErrServerClosed {
					errCh <- fmt.Errorf("serve: HTTP server: %w", listenErr)
				}
				close(errCh)
			}()

			select {
			case <-ctx.Done():
				logger.Info("shutting down")
			case startErr := <-errCh:
				if startErr != nil {
					return startErr
				}
				return nil
			}

			const shutdownTimeout = 10 * time.Second
			if shutdownErr := api.Shutdown(httpSrv, shutdownTimeout); shutdownErr != nil {
				return fmt.Errorf("serve: graceful shutdown: %w", shutdownErr)
			}

			// Drain the errCh in case ListenAndServe returned after Shutdown.
			if startErr := <-errCh; startErr != nil {
				return startErr
			}

			return nil
		},
	}
	return cmd
}

// importSeed loads cfg.Seed.Path into st and logs the outcome.
func importSeed(ctx context.Context, st store.Store, logger *slog.Logger) error {
	report, err := seed.NewImporter(st, logger).ImportPath(ctx, cfg.Seed.Path)
	if err != nil {
		return fmt.Errorf("importing seed %s: %w", cfg.Seed.Path, err)
	}
	logger.Info("seed imported",
		"path", cfg.Seed.Path,
		"inserted", report.Inserted,
		"updated", report.Updated,
		"skipped", report.Skipped,
	)
	return nil
}
