// Command build turns a combined dataset, or a chunk cache directory, into the
// objects and approaches tables with their metadata.
//
// Usage:
//
//	go run ./cmd/build -input asteroid_data_full.json -outdir data/processed
//	go run ./cmd/build -input data/raw -orbiting-body Earth
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/couchcryptid/neows-etl/internal/adapter/filecache"
	"github.com/couchcryptid/neows-etl/internal/adapter/tables"
	"github.com/couchcryptid/neows-etl/internal/config"
	"github.com/couchcryptid/neows-etl/internal/domain"
	"github.com/couchcryptid/neows-etl/internal/observability"
	"github.com/couchcryptid/neows-etl/internal/pipeline"
)

const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2
)

func main() {
	_ = godotenv.Load()
	os.Exit(run(os.Args[1:], os.Stderr, clockwork.NewRealClock()))
}

func run(args []string, stderr io.Writer, clock clockwork.Clock) int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return exitFail
	}

	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	fs.SetOutput(stderr)
	input := fs.String("input", "asteroid_data_full.json", "combined dataset file or chunk cache directory")
	outDir := fs.String("outdir", cfg.OutputDir, "output directory for tables and metadata")
	body := fs.String("orbiting-body", domain.DefaultOrbitingBody, "orbiting body to select when building from a cache directory")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected arguments: %v\n", fs.Args())
		return exitUsage
	}

	logger := observability.NewLogger(cfg)
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetricsWith(reg)

	src, err := loadSource(*input, *body, logger)
	if err != nil {
		logger.Error("failed to read input", "input", *input, "error", err)
		return exitFail
	}

	writer := tables.NewWriter(*outDir)
	builder := pipeline.NewBuilder(writer, clock, logger, metrics)
	meta, err := builder.Build(src)
	if err != nil {
		logger.Error("build failed", "input", *input, "error", err)
		return exitFail
	}

	if cfg.MetricsTextfile != "" {
		if err := prometheus.WriteToTextfile(cfg.MetricsTextfile, reg); err != nil {
			logger.Warn("failed to write metrics textfile", "path", cfg.MetricsTextfile, "error", err)
		}
	}
	logger.Info("build complete", "outdir", writer.Dir(), "run_id", meta.RunID, "incomplete", meta.Incomplete)
	return exitOK
}

// loadSource reads input as a cache directory when it is one, else as a
// combined dataset file.
func loadSource(input, body string, logger *slog.Logger) (pipeline.Source, error) {
	info, err := os.Stat(input)
	if err != nil {
		return pipeline.Source{}, domain.NewError(domain.KindPersistence, "stat input", input, err)
	}
	if info.IsDir() {
		cache, err := filecache.New(input, logger)
		if err != nil {
			return pipeline.Source{}, err
		}
		return pipeline.CacheSource(cache, input, body, logger)
	}

	ds, sum, err := tables.ReadDataset(input)
	if err != nil {
		return pipeline.Source{}, err
	}
	return pipeline.DatasetSource(input, sum, ds), nil
}
