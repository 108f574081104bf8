package domain

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Epsilon is the floor applied before taking logarithms.
const Epsilon = 1e-9

// Tables holds the two published tables.
type Tables struct {
	Objects    []ObjectRow
	Approaches []ApproachRow
}

// BuildStats reports what BuildTables did with its input.
type BuildStats struct {
	InputRecords        int
	DroppedRecords      int
	DroppedByField      map[string]int
	DuplicateApproaches int
	DateMin             string
	DateMax             string
}

type approachKey struct {
	id           string
	date         string
	orbitingBody string
}

// BuildTables derives the objects and approaches tables from merged records.
//
// Records missing an id, a valid close-approach date, or a miss distance are
// dropped and counted. Approaches are unique on (id, date, orbiting body),
// first occurrence wins. Object attributes come from the most recently dated
// record for that id; ties keep the earliest-seen record.
//
// It fails with ErrSchemaValidation only when no record survives validation.
func BuildTables(records []RawApproachRecord) (Tables, BuildStats, error) {
	stats := BuildStats{InputRecords: len(records), DroppedByField: map[string]int{}}
	if len(records) == 0 {
		return Tables{}, stats, NewError(KindSchemaValidation, "build tables", "input is empty", nil)
	}

	latest := make(map[string]RawApproachRecord)
	seen := make(map[approachKey]struct{}, len(records))
	approaches := make([]ApproachRow, 0, len(records))

	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			stats.DroppedRecords++
			countMissing(stats.DroppedByField, rec)
			continue
		}

		k := approachKey{id: rec.ID, date: rec.CloseApproachDate, orbitingBody: rec.OrbitingBody}
		if _, dup := seen[k]; dup {
			stats.DuplicateApproaches++
			continue
		}
		seen[k] = struct{}{}
		approaches = append(approaches, toApproachRow(rec))

		if cur, ok := latest[rec.ID]; !ok || rec.CloseApproachDate > cur.CloseApproachDate {
			latest[rec.ID] = rec
		}

		if stats.DateMin == "" || rec.CloseApproachDate < stats.DateMin {
			stats.DateMin = rec.CloseApproachDate
		}
		if rec.CloseApproachDate > stats.DateMax {
			stats.DateMax = rec.CloseApproachDate
		}
	}

	if len(approaches) == 0 {
		return Tables{}, stats, NewError(KindSchemaValidation, "build tables",
			strconv.Itoa(stats.DroppedRecords)+" records, none valid", nil)
	}

	objects := make([]ObjectRow, 0, len(latest))
	for _, rec := range latest {
		objects = append(objects, toObjectRow(rec))
	}
	slices.SortFunc(objects, func(a, b ObjectRow) int { return cmp.Compare(a.ID, b.ID) })
	slices.SortStableFunc(approaches, func(a, b ApproachRow) int {
		return cmp.Or(
			cmp.Compare(a.CloseApproachDate, b.CloseApproachDate),
			cmp.Compare(a.ObjectID, b.ObjectID),
			cmp.Compare(a.OrbitingBody, b.OrbitingBody),
		)
	})

	return Tables{Objects: objects, Approaches: approaches}, stats, nil
}

func countMissing(counts map[string]int, rec RawApproachRecord) {
	if strings.TrimSpace(rec.ID) == "" {
		counts["id"]++
	}
	if _, err := ParseDate(rec.CloseApproachDate); err != nil {
		counts["close_approach_date"]++
	}
	if rec.MissDistanceKM == nil {
		counts["miss_distance_km"]++
	}
}

func toObjectRow(rec RawApproachRecord) ObjectRow {
	row := ObjectRow{
		ID:                     rec.ID,
		NeoReferenceID:         rec.NeoReferenceID,
		Name:                   rec.Name,
		NasaJPLURL:             rec.NasaJPLURL,
		AbsoluteMagnitudeH:     rec.AbsoluteMagnitudeH,
		IsPotentiallyHazardous: rec.IsPotentiallyHazardous,
		IsSentryObject:         rec.IsSentryObject,
		DiameterKMMin:          rec.DiameterKMMin,
		DiameterKMMax:          rec.DiameterKMMax,
		DiameterMMin:           rec.DiameterMMin,
		DiameterMMax:           rec.DiameterMMax,
		DiameterMidKM:          midpoint(rec.DiameterKMMin, rec.DiameterKMMax),
		DiameterMidM:           midpoint(rec.DiameterMMin, rec.DiameterMMax),
		LogDiameter:            SafeLog(rec.DiameterKMMax),
		LastSeenDate:           rec.CloseApproachDate,
	}
	if row.DiameterMidKM != nil && *row.DiameterMidKM != 0 {
		ratio := (*rec.DiameterKMMax - *rec.DiameterKMMin) / *row.DiameterMidKM
		row.DiameterUncertaintyRatioKM = &ratio
	}
	return row
}

func toApproachRow(rec RawApproachRecord) ApproachRow {
	return ApproachRow{
		ApproachID:             ApproachID(rec),
		ObjectID:               rec.ID,
		CloseApproachDate:      rec.CloseApproachDate,
		CloseApproachDateFull:  rec.CloseApproachDateFull,
		EpochDateCloseApproach: rec.EpochDateCloseApproach,
		VelocityKMS:            rec.VelocityKMS,
		VelocityKMH:            rec.VelocityKMH,
		VelocityMPH:            rec.VelocityMPH,
		MissDistanceAU:         rec.MissDistanceAU,
		MissDistanceLunar:      rec.MissDistanceLunar,
		MissDistanceKM:         *rec.MissDistanceKM,
		MissDistanceMiles:      rec.MissDistanceMiles,
		OrbitingBody:           rec.OrbitingBody,
		LogMissDistance:        SafeLog(rec.MissDistanceKM),
		IsPotentiallyHazardous: rec.IsPotentiallyHazardous,
		IsSentryObject:         rec.IsSentryObject,
	}
}

// ApproachID returns "<id>_<epoch ms>", or "<id>_<8 hex digits>" derived from
// the approach's date, miss distance and velocity when the epoch is absent.
func ApproachID(rec RawApproachRecord) string {
	if rec.EpochDateCloseApproach != nil {
		return rec.ID + "_" + strconv.FormatInt(*rec.EpochDateCloseApproach, 10)
	}
	input := strings.Join([]string{
		rec.ID,
		rec.CloseApproachDate,
		rec.CloseApproachDateFull,
		formatOptional(rec.MissDistanceKM),
		formatOptional(rec.VelocityKMS),
	}, "|")
	sum := sha256.Sum256([]byte(input))
	return rec.ID + "_" + hex.EncodeToString(sum[:4])
}

// SafeLog returns ln(max(v, Epsilon)). Nil and non-finite inputs map to
// ln(Epsilon), so the result is always finite.
func SafeLog(v *float64) float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) || *v < Epsilon {
		return math.Log(Epsilon)
	}
	return math.Log(*v)
}

func midpoint(lo, hi *float64) *float64 {
	if lo == nil || hi == nil {
		return nil
	}
	m := (*lo + *hi) / 2
	return &m
}
