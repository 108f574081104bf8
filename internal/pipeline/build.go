package pipeline

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/neows-etl/internal/domain"
	"github.com/couchcryptid/neows-etl/internal/observability"
)

// TableSink stores built tables and their metadata.
type TableSink interface {
	Write(t domain.Tables, meta domain.Metadata) error
}

// EntryLister lists every readable chunk result in a cache, in chunk order,
// along with the number of corrupt entries skipped.
type EntryLister interface {
	Entries() ([]domain.ChunkResult, int, error)
}

// Source is the input to a build: merged raw records plus whatever is known
// about the ingestion run that produced them.
type Source struct {
	Path         string
	SHA256       string
	OrbitingBody string
	Summary      *domain.IngestSummary // nil when chunk outcomes are unknown
	Records      []domain.RawApproachRecord
	Notes        []string
}

// DatasetSource wraps a combined dataset read from path.
func DatasetSource(path, sha256 string, ds domain.Dataset) Source {
	src := Source{Path: path, SHA256: sha256, Summary: ds.Summary, Records: ds.Records}
	if ds.Summary != nil {
		src.OrbitingBody = ds.Summary.OrbitingBody
	}
	return src
}

// CacheSource merges every cache entry for orbitingBody, in chronological
// chunk order, and recomputes chunk counts from the entries.
func CacheSource(cache EntryLister, dir, orbitingBody string, logger *slog.Logger) (Source, error) {
	entries, corrupt, err := cache.Entries()
	if err != nil {
		return Source{}, err
	}

	body := domain.NormalizeBody(orbitingBody)
	var (
		selected   []domain.ChunkResult
		summary    = domain.IngestSummary{OrbitingBody: body}
		start, end string
	)
	for _, e := range entries {
		key := e.Chunk.Key()
		if !strings.EqualFold(key.OrbitingBody, body) {
			continue
		}
		if start == "" || key.Start < start {
			start = key.Start
		}
		if key.End > end {
			end = key.End
		}
		selected = append(selected, e)

		switch e.Status {
		case domain.StatusFresh:
			summary.Fresh++
		case domain.StatusCached:
			summary.Cached++
		case domain.StatusFailed:
			summary.Failed++
		}
	}
	if len(selected) == 0 {
		return Source{}, domain.NewError(domain.KindSchemaValidation, "load cache",
			fmt.Sprintf("no cache entries for orbiting body %q in %s", body, dir), nil)
	}

	summary.Range, err = domain.ParseDateRange(start, end)
	if err != nil {
		return Source{}, err
	}
	summary.ChunkCount = len(selected)

	records, duplicates := domain.MergeResults(selected)
	summary.Duplicates = duplicates

	src := Source{
		Path:         dir,
		OrbitingBody: body,
		Summary:      &summary,
		Records:      records,
		Notes:        []string{"built from cache directory"},
	}
	if corrupt > 0 {
		logger.Warn("skipped corrupt cache entries", "count", corrupt)
		src.Notes = append(src.Notes, fmt.Sprintf("%d corrupt cache entries skipped", corrupt))
	}
	return src, nil
}

// Builder turns a Source into the published tables.
type Builder struct {
	sink     TableSink
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics
	newRunID func() string
}

// NewBuilder creates a Builder that writes to sink.
func NewBuilder(sink TableSink, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Builder {
	return &Builder{
		sink:     sink,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
		newRunID: uuid.NewString,
	}
}

// Build derives the tables from src, writes them with fresh metadata and
// returns that metadata. Malformed records are dropped and counted; the
// build fails only when nothing valid remains or a write fails.
func (b *Builder) Build(src Source) (domain.Metadata, error) {
	built, stats, err := domain.BuildTables(src.Records)
	if err != nil {
		return domain.Metadata{}, fmt.Errorf("build %s: %w", src.Path, err)
	}
	if stats.DroppedRecords > 0 {
		b.logger.Warn("dropped invalid records",
			"count", stats.DroppedRecords,
			"by_field", stats.DroppedByField,
		)
	}
	b.metrics.RecordsDropped.Add(float64(stats.DroppedRecords))

	meta, err := b.metadata(src, built, stats)
	if err != nil {
		return domain.Metadata{}, err
	}
	if err := b.sink.Write(built, meta); err != nil {
		return domain.Metadata{}, err
	}

	b.metrics.TableRows.WithLabelValues("objects").Set(float64(len(built.Objects)))
	b.metrics.TableRows.WithLabelValues("approaches").Set(float64(len(built.Approaches)))
	b.logger.Info("tables built",
		"run_id", meta.RunID,
		"objects", meta.RowCounts.Objects,
		"approaches", meta.RowCounts.Approaches,
		"dropped", meta.DroppedRecords,
		"date_min", meta.DateMin,
		"date_max", meta.DateMax,
	)
	return meta, nil
}

func (b *Builder) metadata(src Source, t domain.Tables, stats domain.BuildStats) (domain.Metadata, error) {
	meta := domain.Metadata{
		RunID:               b.newRunID(),
		RunTimestamp:        b.clock.Now().UTC(),
		InputPath:           src.Path,
		InputSHA256:         src.SHA256,
		OrbitingBodyFilter:  src.OrbitingBody,
		DateMin:             stats.DateMin,
		DateMax:             stats.DateMax,
		RowCounts:           domain.RowCounts{Objects: len(t.Objects), Approaches: len(t.Approaches)},
		DroppedRecords:      stats.DroppedRecords,
		DuplicateApproaches: stats.DuplicateApproaches,
	}
	for _, o := range t.Objects {
		if o.IsPotentiallyHazardous {
			meta.HazardousObjects++
		}
		if o.IsSentryObject {
			meta.SentryObjects++
		}
	}
	for _, a := range t.Approaches {
		if a.IsPotentiallyHazardous {
			meta.HazardousApproaches++
		}
	}

	notes := append([]string(nil), src.Notes...)
	if s := src.Summary; s != nil {
		meta.DateRangeCovered = s.Range
		meta.ChunkSuccessCount = s.Succeeded()
		meta.ChunkFailureCount = s.Failed
		meta.ChunkFreshCount = s.Fresh
		meta.ChunkCachedCount = s.Cached
		meta.Incomplete = s.Incomplete
		meta.DuplicateApproaches += s.Duplicates
		if s.Incomplete {
			notes = append(notes, "ingestion was interrupted; tables cover part of the range")
		}
		if s.Failed > 0 {
			notes = append(notes, fmt.Sprintf("%d chunk(s) failed; see failures.csv in the cache directory", s.Failed))
		}
	} else {
		covered, err := domain.ParseDateRange(stats.DateMin, stats.DateMax)
		if err != nil {
			return domain.Metadata{}, err
		}
		meta.DateRangeCovered = covered
		notes = append(notes, "no ingestion summary; date coverage recomputed from records")
	}
	meta.Notes = strings.Join(notes, "; ")
	return meta, nil
}
