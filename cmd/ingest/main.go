// Command ingest downloads the NeoWs close-approach feed for a date range,
// one chunk at a time through the on-disk cache, and writes the merged
// records with a run summary to a single JSON dataset.
//
// Usage:
//
//	go run ./cmd/ingest -start 2024-01-01 -end 2024-03-31 -orbiting-body Earth \
//	  -out asteroid_data_full.json
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/couchcryptid/neows-etl/internal/adapter/filecache"
	"github.com/couchcryptid/neows-etl/internal/adapter/neows"
	"github.com/couchcryptid/neows-etl/internal/adapter/tables"
	"github.com/couchcryptid/neows-etl/internal/config"
	"github.com/couchcryptid/neows-etl/internal/domain"
	"github.com/couchcryptid/neows-etl/internal/observability"
	"github.com/couchcryptid/neows-etl/internal/pipeline"
)

// Exit codes.
const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2
)

// defaultSpan is how far past today the default range reaches.
const defaultSpan = 15

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	go func() {
		// The first signal lets the chunk in flight finish; restoring default
		// handling means a second one terminates immediately.
		<-ctx.Done()
		stop()
	}()

	code := run(ctx, os.Args[1:], os.Stderr, clockwork.NewRealClock())
	stop()
	os.Exit(code)
}

type options struct {
	start, end   string
	orbitingBody string
	out          string
	cacheDir     string
	refresh      bool
}

func parseFlags(args []string, stderr io.Writer, today time.Time) (options, error) {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var o options
	fs.StringVar(&o.start, "start", today.Format(domain.DateLayout), "first date to ingest (YYYY-MM-DD, inclusive)")
	fs.StringVar(&o.end, "end", today.AddDate(defaultSpan, 0, 0).Format(domain.DateLayout), "last date to ingest (YYYY-MM-DD, inclusive)")
	fs.StringVar(&o.orbitingBody, "orbiting-body", domain.DefaultOrbitingBody, `keep approaches to this body; "all" keeps every body`)
	fs.StringVar(&o.out, "out", "asteroid_data_full.json", "combined dataset output path")
	fs.StringVar(&o.cacheDir, "cache-dir", "", "chunk cache directory (overrides CACHE_DIR)")
	fs.BoolVar(&o.refresh, "refresh", false, "re-fetch chunks even when cached")

	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() > 0 {
		return o, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if strings.TrimSpace(o.orbitingBody) == "" {
		return o, errors.New(`-orbiting-body must name a body or "all"`)
	}
	return o, nil
}

func run(ctx context.Context, args []string, stderr io.Writer, clock clockwork.Clock) int {
	opts, err := parseFlags(args, stderr, clock.Now().UTC())
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	r, err := domain.ParseDateRange(opts.start, opts.end)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFail
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return exitFail
	}
	if opts.cacheDir != "" {
		cfg.CacheDir = opts.cacheDir
	}

	logger := observability.NewLogger(cfg)
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetricsWith(reg)
	defer writeMetrics(cfg.MetricsTextfile, reg, logger)

	cache, err := filecache.New(cfg.CacheDir, logger)
	if err != nil {
		logger.Error("failed to open cache", "error", err)
		return exitFail
	}
	client := neows.NewClient(cfg, clock, metrics, logger)
	ingester := pipeline.NewIngester(client, cache, clock, logger, metrics, cfg.ChunkDays)

	res, err := ingester.Run(ctx, pipeline.IngestRequest{
		Range:        r,
		OrbitingBody: opts.orbitingBody,
		Refresh:      opts.refresh,
	})
	if err != nil {
		logger.Error("ingestion failed", "error", err)
		return exitFail
	}

	if err := tables.WriteDataset(opts.out, res.Dataset()); err != nil {
		logger.Error("failed to write dataset", "path", opts.out, "error", err)
		return exitFail
	}
	logger.Info("dataset written",
		"path", opts.out,
		"records", len(res.Records),
		"chunks", res.Summary.ChunkCount,
		"failed", res.Summary.Failed,
	)

	if res.Summary.Incomplete {
		fmt.Fprintln(stderr, "ingestion interrupted")
		return exitFail
	}
	return exitOK
}

func writeMetrics(path string, g prometheus.Gatherer, logger *slog.Logger) {
	if path == "" {
		return
	}
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		logger.Warn("failed to write metrics textfile", "path", path, "error", err)
	}
}
