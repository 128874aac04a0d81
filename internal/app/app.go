// Package app wires the service together: configuration, tracing, database,
// model providers, the retrieval pipeline, and the HTTP server. Dependencies
// are constructed explicitly in Setup and torn down in reverse order by
// Close.
package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/groundworkhq/groundwork/internal/config"
	"github.com/groundworkhq/groundwork/internal/log"
	"github.com/groundworkhq/groundwork/internal/telemetry"
)

// shutdownTimeout bounds graceful HTTP shutdown and trace flushing.
const shutdownTimeout = 10 * time.Second

// App is the assembled service.
type App struct {
	Config *config.Config
	Logger log.Logger

	Pool   *pgxpool.Pool
	Genkit *genkit.Genkit

	recorder     *telemetry.Recorder
	server       *http.Server
	otelShutdown func(context.Context) error
}

// Run serves HTTP until ctx is canceled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("listening", "addr", a.server.Addr)
		errCh <- a.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close releases resources in reverse construction order. Safe to call after
// a partial Setup failure.
func (a *App) Close() {
	if a.recorder != nil {
		a.recorder.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.otelShutdown(ctx); err != nil {
			slog.Warn("shutting down tracer provider", "error", err)
		}
	}
}
