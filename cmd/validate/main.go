// Command validate performs offline integrity checks on a built output
// directory: parquet tables, their CSV twins and metadata.json. It verifies
// key uniqueness, referential completeness, finite derived features and that
// metadata agrees with the tables.
//
// Usage:
//
//	go run ./cmd/validate -dir data/processed
package main

import (
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/couchcryptid/neows-etl/internal/adapter/tables"
	"github.com/couchcryptid/neows-etl/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// output is everything read from one output directory.
type output struct {
	tables        domain.Tables
	meta          domain.Metadata
	csvObjects    []domain.ObjectRow
	csvApproaches []domain.ApproachRow
}

func main() {
	dir := flag.String("dir", "data/processed", "output directory written by the build command")
	flag.Parse()

	os.Exit(run(*dir, os.Stdout))
}

func run(dir string, w io.Writer) int {
	fmt.Fprintln(w, "=== NEO Table Integrity Validation ===")
	fmt.Fprintln(w)

	out, err := load(dir)
	if err != nil {
		fmt.Fprintf(w, "FATAL: %v\n", err)
		return 1
	}

	phases := validate(out)

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Rows: %d objects, %d approaches (run %s)\n",
		len(out.tables.Objects), len(out.tables.Approaches), out.meta.RunID)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(w, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(w, "\nValidation FAILED.")
	return 1
}

func load(dir string) (output, error) {
	t, meta, err := tables.Load(dir)
	if err != nil {
		return output{}, err
	}
	objects, err := tables.ReadCSV[domain.ObjectRow](filepath.Join(dir, tables.ObjectsCSV))
	if err != nil {
		return output{}, err
	}
	approaches, err := tables.ReadCSV[domain.ApproachRow](filepath.Join(dir, tables.ApproachesCSV))
	if err != nil {
		return output{}, err
	}
	return output{tables: t, meta: meta, csvObjects: objects, csvApproaches: approaches}, nil
}

func validate(out output) []*phase {
	return []*phase{
		validateObjects(out.tables.Objects),
		validateApproaches(out.tables),
		validateMetadata(out.tables, out.meta),
		validateCSVTwins(out),
	}
}

// ── Objects ──

func validateObjects(objects []domain.ObjectRow) *phase {
	p := &phase{name: "Phase 1: Objects table"}
	if len(objects) == 0 {
		p.errorf("objects table is empty")
	}

	seen := make(map[string]bool, len(objects))
	for i, o := range objects {
		if o.ID == "" {
			p.errorf("row %d: empty id", i)
			continue
		}
		if seen[o.ID] {
			p.errorf("duplicate object id %s", o.ID)
		}
		seen[o.ID] = true

		if !finite(o.LogDiameter) {
			p.errorf("object %s: log_diameter %v is not finite", o.ID, o.LogDiameter)
		}
		if o.DiameterKMMin != nil && o.DiameterKMMax != nil && *o.DiameterKMMin > *o.DiameterKMMax {
			p.errorf("object %s: diameter_km_min %v exceeds max %v", o.ID, *o.DiameterKMMin, *o.DiameterKMMax)
		}
		if _, err := domain.ParseDate(o.LastSeenDate); err != nil {
			p.errorf("object %s: last_seen_date %q is not a date", o.ID, o.LastSeenDate)
		}
	}
	return p
}

// ── Approaches ──

type approachKey struct {
	id, date, body string
}

func validateApproaches(t domain.Tables) *phase {
	p := &phase{name: "Phase 2: Approaches table"}
	if len(t.Approaches) == 0 {
		p.errorf("approaches table is empty")
	}

	objects := make(map[string]bool, len(t.Objects))
	for _, o := range t.Objects {
		objects[o.ID] = true
	}

	ids := make(map[string]bool, len(t.Approaches))
	keys := make(map[approachKey]bool, len(t.Approaches))
	referenced := make(map[string]bool, len(t.Objects))
	prevDate := ""
	for i, a := range t.Approaches {
		if ids[a.ApproachID] {
			p.errorf("duplicate approach_id %s", a.ApproachID)
		}
		ids[a.ApproachID] = true

		k := approachKey{a.ObjectID, a.CloseApproachDate, a.OrbitingBody}
		if keys[k] {
			p.errorf("duplicate approach (%s, %s, %s)", k.id, k.date, k.body)
		}
		keys[k] = true

		if !objects[a.ObjectID] {
			p.errorf("approach %s references unknown object %s", a.ApproachID, a.ObjectID)
		}
		referenced[a.ObjectID] = true

		if _, err := domain.ParseDate(a.CloseApproachDate); err != nil {
			p.errorf("approach %s: close_approach_date %q is not a date", a.ApproachID, a.CloseApproachDate)
		} else if a.CloseApproachDate < prevDate {
			p.errorf("row %d: approaches not in date order (%s after %s)", i, a.CloseApproachDate, prevDate)
		}
		prevDate = max(prevDate, a.CloseApproachDate)

		if !finite(a.LogMissDistance) {
			p.errorf("approach %s: log_miss_distance %v is not finite", a.ApproachID, a.LogMissDistance)
		}
		if !finite(a.MissDistanceKM) || a.MissDistanceKM < 0 {
			p.errorf("approach %s: miss_distance_km %v is invalid", a.ApproachID, a.MissDistanceKM)
		}
	}

	for _, o := range t.Objects {
		if !referenced[o.ID] {
			p.errorf("object %s has no approaches", o.ID)
		}
	}
	return p
}

// ── Metadata ──

func validateMetadata(t domain.Tables, meta domain.Metadata) *phase {
	p := &phase{name: "Phase 3: Metadata consistency"}

	if meta.RunID == "" {
		p.errorf("run_id is empty")
	}
	if meta.RowCounts.Objects != len(t.Objects) {
		p.errorf("row_counts.objects is %d, table has %d", meta.RowCounts.Objects, len(t.Objects))
	}
	if meta.RowCounts.Approaches != len(t.Approaches) {
		p.errorf("row_counts.approaches is %d, table has %d", meta.RowCounts.Approaches, len(t.Approaches))
	}

	var hazardous, sentry, hazardousApproaches int
	for _, o := range t.Objects {
		if o.IsPotentiallyHazardous {
			hazardous++
		}
		if o.IsSentryObject {
			sentry++
		}
	}
	dateMin, dateMax := "", ""
	for _, a := range t.Approaches {
		if a.IsPotentiallyHazardous {
			hazardousApproaches++
		}
		if dateMin == "" || a.CloseApproachDate < dateMin {
			dateMin = a.CloseApproachDate
		}
		dateMax = max(dateMax, a.CloseApproachDate)
	}

	if meta.HazardousObjects != hazardous {
		p.errorf("hazardous_objects is %d, table has %d", meta.HazardousObjects, hazardous)
	}
	if meta.SentryObjects != sentry {
		p.errorf("sentry_objects is %d, table has %d", meta.SentryObjects, sentry)
	}
	if meta.HazardousApproaches != hazardousApproaches {
		p.errorf("hazardous_approaches is %d, table has %d", meta.HazardousApproaches, hazardousApproaches)
	}
	if meta.DateMin != dateMin || meta.DateMax != dateMax {
		p.errorf("date_min..date_max is %s..%s, table spans %s..%s", meta.DateMin, meta.DateMax, dateMin, dateMax)
	}
	if meta.ChunkSuccessCount != meta.ChunkFreshCount+meta.ChunkCachedCount {
		p.errorf("chunk_success_count %d != fresh %d + cached %d",
			meta.ChunkSuccessCount, meta.ChunkFreshCount, meta.ChunkCachedCount)
	}
	return p
}

// ── CSV twins ──

func validateCSVTwins(out output) *phase {
	p := &phase{name: "Phase 4: CSV twins match parquet"}

	if len(out.csvObjects) != len(out.tables.Objects) {
		p.errorf("%s has %d rows, parquet has %d", tables.ObjectsCSV, len(out.csvObjects), len(out.tables.Objects))
	} else {
		for i := range out.csvObjects {
			if out.csvObjects[i].ID != out.tables.Objects[i].ID {
				p.errorf("%s row %d: id %s, parquet has %s", tables.ObjectsCSV, i, out.csvObjects[i].ID, out.tables.Objects[i].ID)
			}
		}
	}

	if len(out.csvApproaches) != len(out.tables.Approaches) {
		p.errorf("%s has %d rows, parquet has %d", tables.ApproachesCSV, len(out.csvApproaches), len(out.tables.Approaches))
	} else {
		for i := range out.csvApproaches {
			if out.csvApproaches[i].ApproachID != out.tables.Approaches[i].ApproachID {
				p.errorf("%s row %d: approach_id %s, parquet has %s",
					tables.ApproachesCSV, i, out.csvApproaches[i].ApproachID, out.tables.Approaches[i].ApproachID)
			}
		}
	}
	return p
}

// ── Helpers ──

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
