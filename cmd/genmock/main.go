// Command genmock writes deterministic synthetic feed chunks into a cache
// directory, so the build and serve commands can run offline without an API
// key. The same flags always produce byte-identical cache files.
//
// Usage:
//
//	go run ./cmd/genmock -cache-dir data/mock -start 2024-01-01 -end 2024-03-31 \
//	  -objects 40 -seed 7
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/neows-etl/internal/adapter/filecache"
	"github.com/couchcryptid/neows-etl/internal/domain"
)

// fetchedAt is stamped on every generated entry for reproducible output.
var fetchedAt = time.Date(2024, time.April, 27, 6, 0, 0, 0, time.UTC)

const (
	auKM      = 149597870.7
	lunarKM   = 384400.0
	kmToMiles = 0.621371
)

var bodies = []string{"Earth", "Earth", "Earth", "Mars", "Venus"}

type options struct {
	cacheDir     string
	start, end   string
	orbitingBody string
	objects      int
	perDay       int
	seed         uint64
	failEvery    int
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	var o options
	flag.StringVar(&o.cacheDir, "cache-dir", "data/mock", "cache directory to populate")
	flag.StringVar(&o.start, "start", "2024-01-01", "first date (YYYY-MM-DD)")
	flag.StringVar(&o.end, "end", "2024-03-31", "last date (YYYY-MM-DD)")
	flag.StringVar(&o.orbitingBody, "orbiting-body", domain.DefaultOrbitingBody, "chunk orbiting-body filter")
	flag.IntVar(&o.objects, "objects", 40, "size of the synthetic object population")
	flag.IntVar(&o.perDay, "per-day", 3, "approaches generated per day before filtering")
	flag.Uint64Var(&o.seed, "seed", 7, "random seed")
	flag.IntVar(&o.failEvery, "fail-every", 0, "store every Nth chunk as failed (0 disables)")
	flag.Parse()

	if o.objects < 1 || o.perDay < 1 {
		flag.Usage()
		return fmt.Errorf("-objects and -per-day must be positive")
	}

	stats, err := generate(o, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return err
	}
	log.Printf("wrote %d chunks (%d failed), %d records to %s", stats.chunks, stats.failed, stats.records, o.cacheDir)
	log.Printf("hazardous approaches: %d, sentry approaches: %d", stats.hazardous, stats.sentry)
	return nil
}

type genStats struct {
	chunks, failed, records int
	hazardous, sentry       int
}

// object holds the fixed attributes of one synthetic asteroid.
type object struct {
	id         string
	name       string
	magnitudeH float64
	hazardous  bool
	sentry     bool
	diamMinKM  float64
	diamMaxKM  float64
}

func generate(o options, logger *slog.Logger) (genStats, error) {
	var stats genStats

	r, err := domain.ParseDateRange(o.start, o.end)
	if err != nil {
		return stats, err
	}
	chunks, err := domain.PlanChunks(r, domain.MaxFeedWindowDays, o.orbitingBody)
	if err != nil {
		return stats, err
	}
	cache, err := filecache.New(o.cacheDir, logger)
	if err != nil {
		return stats, err
	}

	rng := rand.New(rand.NewPCG(o.seed, o.seed^0x9e3779b97f4a7c15))
	population := newPopulation(rng, o.objects)

	for _, chunk := range chunks {
		result := domain.ChunkResult{Chunk: chunk, FetchedAt: fetchedAt, Status: domain.StatusFresh}

		// Records are drawn even for failed chunks so the random stream, and
		// every later chunk, does not depend on -fail-every.
		records := chunkRecords(rng, population, chunk, o.perDay)
		if o.failEvery > 0 && (chunk.Sequence+1)%o.failEvery == 0 {
			result.Status = domain.StatusFailed
			result.Records = []domain.RawApproachRecord{}
			result.Error = &domain.ErrorInfo{Kind: domain.KindRemoteUnavailable, Message: "synthetic failure"}
			stats.failed++
		} else {
			result.Records = records
			stats.records += len(records)
			for _, rec := range records {
				if rec.IsPotentiallyHazardous {
					stats.hazardous++
				}
				if rec.IsSentryObject {
					stats.sentry++
				}
			}
		}

		if err := cache.Put(result); err != nil {
			return stats, fmt.Errorf("chunk %s: %w", chunk.Key(), err)
		}
		stats.chunks++
	}
	return stats, nil
}

func newPopulation(rng *rand.Rand, n int) []object {
	population := make([]object, n)
	for i := range population {
		h := 17 + rng.Float64()*12
		// Rough albedo-based size estimate, as the feed derives it from H.
		maxKM := 1329 / math.Sqrt(0.05) * math.Pow(10, -h/5)
		id := strconv.Itoa(3000000 + i*137)
		population[i] = object{
			id:         id,
			name:       fmt.Sprintf("(%d MK%d)", 2000+i%25, i),
			magnitudeH: round(h, 2),
			hazardous:  h < 22 && rng.Float64() < 0.4,
			sentry:     rng.Float64() < 0.05,
			diamMinKM:  round(maxKM*0.447, 6),
			diamMaxKM:  round(maxKM, 6),
		}
	}
	return population
}

func chunkRecords(rng *rand.Rand, population []object, chunk domain.Chunk, perDay int) []domain.RawApproachRecord {
	filter := domain.NormalizeBody(chunk.OrbitingBody)
	var records []domain.RawApproachRecord
	for day := chunk.Range.Start(); !day.After(chunk.Range.End()); day = day.AddDate(0, 0, 1) {
		for range perDay {
			obj := population[rng.IntN(len(population))]
			body := bodies[rng.IntN(len(bodies))]
			at := day.Add(time.Duration(rng.IntN(24*60)) * time.Minute)
			missAU := 0.002 + rng.Float64()*0.498
			velocity := 2 + rng.Float64()*38

			if filter != domain.BodyAll && !strings.EqualFold(body, filter) {
				continue
			}
			records = append(records, toRecord(obj, body, at, missAU, velocity))
		}
	}
	if records == nil {
		records = []domain.RawApproachRecord{}
	}
	return records
}

func toRecord(obj object, body string, at time.Time, missAU, velocityKMS float64) domain.RawApproachRecord {
	missKM := missAU * auKM
	return domain.RawApproachRecord{
		ID:                     obj.id,
		NeoReferenceID:         obj.id,
		Name:                   obj.name,
		NasaJPLURL:             "https://ssd.jpl.nasa.gov/tools/sbdb_lookup.html#/?sstr=" + obj.id,
		AbsoluteMagnitudeH:     ptr(obj.magnitudeH),
		IsPotentiallyHazardous: obj.hazardous,
		IsSentryObject:         obj.sentry,
		DiameterKMMin:          ptr(obj.diamMinKM),
		DiameterKMMax:          ptr(obj.diamMaxKM),
		DiameterMMin:           ptr(round(obj.diamMinKM*1000, 3)),
		DiameterMMax:           ptr(round(obj.diamMaxKM*1000, 3)),
		CloseApproachDate:      at.Format(domain.DateLayout),
		CloseApproachDateFull:  at.Format("2006-Jan-02 15:04"),
		EpochDateCloseApproach: ptr(at.UnixMilli()),
		VelocityKMS:            ptr(round(velocityKMS, 6)),
		VelocityKMH:            ptr(round(velocityKMS*3600, 3)),
		VelocityMPH:            ptr(round(velocityKMS*3600*kmToMiles, 3)),
		MissDistanceAU:         ptr(round(missAU, 9)),
		MissDistanceLunar:      ptr(round(missKM/lunarKM, 6)),
		MissDistanceKM:         ptr(round(missKM, 3)),
		MissDistanceMiles:      ptr(round(missKM*kmToMiles, 3)),
		OrbitingBody:           body,
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func ptr[T any](v T) *T { return &v }
