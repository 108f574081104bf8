// Command serve loads the built tables from OUTPUT_DIR and serves them
// read-only over HTTP alongside health, readiness and metrics endpoints.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	httpadapter "github.com/couchcryptid/neows-etl/internal/adapter/http"
	"github.com/couchcryptid/neows-etl/internal/adapter/tables"
	"github.com/couchcryptid/neows-etl/internal/config"
	"github.com/couchcryptid/neows-etl/internal/observability"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	catalog := tables.NewCatalog()
	if err := catalog.Load(cfg.OutputDir); err != nil {
		logger.Error("failed to load tables", "dir", cfg.OutputDir, "error", err)
		os.Exit(1)
	}
	meta, _ := catalog.Metadata()
	logger.Info("tables loaded",
		"dir", cfg.OutputDir,
		"run_id", meta.RunID,
		"objects", meta.RowCounts.Objects,
		"approaches", meta.RowCounts.Approaches,
	)
	metrics.TableRows.WithLabelValues("objects").Set(float64(meta.RowCounts.Objects))
	metrics.TableRows.WithLabelValues("approaches").Set(float64(meta.RowCounts.Approaches))

	srv := httpadapter.NewServer(cfg.HTTPAddr, catalog, catalog, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
