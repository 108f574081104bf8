package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/neows-etl/internal/domain"
	"github.com/couchcryptid/neows-etl/internal/observability"
)

// Fetcher retrieves the raw records for one chunk from the remote service.
type Fetcher interface {
	Fetch(ctx context.Context, chunk domain.Chunk) ([]domain.RawApproachRecord, error)
}

// ChunkStore persists the latest result per chunk identity.
type ChunkStore interface {
	Get(key domain.ChunkKey) (domain.ChunkResult, bool, error)
	Put(result domain.ChunkResult) error
	Invalidate(key domain.ChunkKey) error
	RecordFailure(key domain.ChunkKey, cause error, at time.Time) error
}

// IngestRequest describes one ingestion run.
type IngestRequest struct {
	Range        domain.DateRange
	OrbitingBody string
	Refresh      bool
}

// IngestResult is the outcome of a run: every processed chunk in order, the
// merged records and the aggregate summary.
type IngestResult struct {
	Results []domain.ChunkResult
	Records []domain.RawApproachRecord
	Summary domain.IngestSummary
}

// Dataset returns the combined dataset written by the ingest command.
func (r IngestResult) Dataset() domain.Dataset {
	summary := r.Summary
	return domain.Dataset{Summary: &summary, Records: r.Records}
}

// Ingester drives chunks through the cache and the remote client, one at a
// time and in chronological order.
type Ingester struct {
	fetcher   Fetcher
	store     ChunkStore
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
	chunkDays int
}

// NewIngester creates an Ingester that plans chunks of at most chunkDays days.
func NewIngester(f Fetcher, s ChunkStore, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics, chunkDays int) *Ingester {
	return &Ingester{
		fetcher:   f,
		store:     s,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
		chunkDays: chunkDays,
	}
}

// Run ingests the requested range. Cancelling ctx stops the run between
// chunks: the chunk in flight is finished and persisted, and the partial
// result comes back with Summary.Incomplete set and a nil error.
//
// Non-fatal chunk failures are persisted and counted. A fatal error
// (authentication, persistence) aborts the run and is returned.
func (in *Ingester) Run(ctx context.Context, req IngestRequest) (IngestResult, error) {
	chunks, err := domain.PlanChunks(req.Range, in.chunkDays, req.OrbitingBody)
	if err != nil {
		return IngestResult{}, err
	}

	in.metrics.IngestRunning.Set(1)
	defer in.metrics.IngestRunning.Set(0)

	summary := domain.IngestSummary{
		Range:        req.Range,
		OrbitingBody: domain.NormalizeBody(req.OrbitingBody),
		ChunkCount:   len(chunks),
	}
	in.logger.Info("ingestion started",
		"range", req.Range.String(),
		"orbiting_body", summary.OrbitingBody,
		"chunks", len(chunks),
		"refresh", req.Refresh,
	)

	results := make([]domain.ChunkResult, 0, len(chunks))
	for _, chunk := range chunks {
		if ctx.Err() != nil {
			summary.Incomplete = true
			in.logger.Warn("ingestion interrupted",
				"processed", len(results),
				"remaining", len(chunks)-len(results),
			)
			break
		}

		result, err := in.processChunk(context.WithoutCancel(ctx), chunk, req.Refresh)
		if err != nil {
			return IngestResult{}, err
		}
		results = append(results, result)
		in.metrics.Chunks.WithLabelValues(string(result.Status)).Inc()

		switch result.Status {
		case domain.StatusFresh:
			summary.Fresh++
		case domain.StatusCached:
			summary.Cached++
		case domain.StatusFailed:
			summary.Failed++
		}
	}

	merged, duplicates := domain.MergeResults(results)
	in.metrics.DuplicatesDropped.Add(float64(duplicates))
	summary.Duplicates = duplicates
	summary.CompletedAt = in.clock.Now().UTC()

	in.logger.Info("ingestion finished",
		"fresh", summary.Fresh,
		"cached", summary.Cached,
		"failed", summary.Failed,
		"records", len(merged),
		"duplicates", duplicates,
		"incomplete", summary.Incomplete,
	)
	return IngestResult{Results: results, Records: merged, Summary: summary}, nil
}

// processChunk returns the chunk's result, from the cache when a usable entry
// exists, else from the remote client. Refresh skips the cache lookup; the
// entry is only replaced once the refetch succeeds. Only fatal errors are
// returned.
func (in *Ingester) processChunk(ctx context.Context, chunk domain.Chunk, refresh bool) (domain.ChunkResult, error) {
	key := chunk.Key()
	logger := in.logger.With("start", key.Start, "end", key.End, "orbiting_body", key.OrbitingBody)

	if !refresh {
		cached, ok, err := in.store.Get(key)
		switch {
		case errors.Is(err, domain.ErrCacheCorruption):
			in.metrics.CacheCorruptions.Inc()
			logger.Warn("cache entry corrupt, refetching", "error", err)
			if err := in.store.RecordFailure(key, err, in.clock.Now()); err != nil {
				return domain.ChunkResult{}, err
			}
			if err := in.store.Invalidate(key); err != nil {
				return domain.ChunkResult{}, err
			}
		case err != nil:
			return domain.ChunkResult{}, err
		case ok && cached.Usable():
			result := cached.WithStatus(domain.StatusCached)
			result.Chunk.Sequence = chunk.Sequence
			logger.Info("chunk processed", "status", result.Status, "records", len(result.Records))
			return result, nil
		case ok:
			logger.Debug("previous attempt failed, refetching")
		}
	}

	records, err := in.fetcher.Fetch(ctx, chunk)
	now := in.clock.Now().UTC()
	if err != nil {
		if domain.IsFatal(err) {
			logger.Error("chunk failed, aborting run", "error", err)
			return domain.ChunkResult{}, err
		}
		result := domain.ChunkResult{
			Chunk:     chunk,
			Status:    domain.StatusFailed,
			Records:   []domain.RawApproachRecord{},
			Error:     domain.NewErrorInfo(err),
			FetchedAt: now,
		}
		keep, perr := in.keepOnFailedRefresh(key, refresh)
		if perr != nil {
			return domain.ChunkResult{}, perr
		}
		if keep {
			logger.Warn("refresh failed, keeping cached entry", "error", err)
		} else if err := in.store.Put(result); err != nil {
			return domain.ChunkResult{}, err
		}
		if err := in.store.RecordFailure(key, err, now); err != nil {
			return domain.ChunkResult{}, err
		}
		logger.Warn("chunk failed, continuing", "status", result.Status, "error", err)
		return result, nil
	}

	if records == nil {
		records = []domain.RawApproachRecord{}
	}
	result := domain.ChunkResult{
		Chunk:     chunk,
		Status:    domain.StatusFresh,
		Records:   records,
		FetchedAt: now,
	}
	if err := in.store.Put(result); err != nil {
		return domain.ChunkResult{}, err
	}
	logger.Info("chunk processed", "status", result.Status, "records", len(records))
	return result, nil
}

// keepOnFailedRefresh reports whether a usable entry already exists for key
// and must survive a failed refetch. A corrupt entry is not kept.
func (in *Ingester) keepOnFailedRefresh(key domain.ChunkKey, refresh bool) (bool, error) {
	if !refresh {
		return false, nil
	}
	prev, ok, err := in.store.Get(key)
	switch {
	case errors.Is(err, domain.ErrCacheCorruption):
		return false, nil
	case err != nil:
		return false, err
	}
	return ok && prev.Usable(), nil
}
