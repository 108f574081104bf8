package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the ISO date format used by the feed, cache keys and tables.
const DateLayout = "2006-01-02"

// BodyAll disables orbiting-body filtering.
const BodyAll = "all"

// DefaultOrbitingBody is the filter applied when none is given.
const DefaultOrbitingBody = "Earth"

// ParseDate parses a YYYY-MM-DD date as UTC midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, NewError(KindInvalidRange, "parse date", fmt.Sprintf("invalid date %q", s), err)
	}
	return t, nil
}

// truncateDay drops the time-of-day component, in UTC.
func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateRange is an inclusive, immutable range of calendar days.
type DateRange struct {
	start time.Time
	end   time.Time
}

// NewDateRange builds a range from two dates. It fails with ErrInvalidRange
// when start is after end.
func NewDateRange(start, end time.Time) (DateRange, error) {
	start, end = truncateDay(start), truncateDay(end)
	if start.After(end) {
		return DateRange{}, NewError(KindInvalidRange, "new date range",
			fmt.Sprintf("start %s is after end %s", start.Format(DateLayout), end.Format(DateLayout)), nil)
	}
	return DateRange{start: start, end: end}, nil
}

// ParseDateRange is NewDateRange over two YYYY-MM-DD strings.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := ParseDate(start)
	if err != nil {
		return DateRange{}, err
	}
	e, err := ParseDate(end)
	if err != nil {
		return DateRange{}, err
	}
	return NewDateRange(s, e)
}

func (r DateRange) Start() time.Time { return r.start }
func (r DateRange) End() time.Time   { return r.end }

// Days returns the number of calendar days covered, inclusive.
func (r DateRange) Days() int {
	return int(r.end.Sub(r.start).Hours()/24) + 1
}

func (r DateRange) String() string {
	return r.start.Format(DateLayout) + ".." + r.end.Format(DateLayout)
}

type dateRangeJSON struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (r DateRange) MarshalJSON() ([]byte, error) {
	return json.Marshal(dateRangeJSON{
		Start: r.start.Format(DateLayout),
		End:   r.end.Format(DateLayout),
	})
}

func (r *DateRange) UnmarshalJSON(data []byte) error {
	var raw dateRangeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseDateRange(raw.Start, raw.End)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// NormalizeBody trims the filter and folds any casing of "all" to BodyAll.
func NormalizeBody(body string) string {
	body = strings.TrimSpace(body)
	if strings.EqualFold(body, BodyAll) {
		return BodyAll
	}
	return body
}

// Chunk is one unit of ingestion work. Identity is (Range, OrbitingBody);
// Sequence only records its position in a plan.
type Chunk struct {
	Range        DateRange `json:"range"`
	OrbitingBody string    `json:"orbiting_body"`
	Sequence     int       `json:"sequence_index"`
}

// ChunkKey is the stable identity of a chunk.
type ChunkKey struct {
	Start        string
	End          string
	OrbitingBody string
}

// Key returns the chunk's identity.
func (c Chunk) Key() ChunkKey {
	return ChunkKey{
		Start:        c.Range.Start().Format(DateLayout),
		End:          c.Range.End().Format(DateLayout),
		OrbitingBody: NormalizeBody(c.OrbitingBody),
	}
}

// SameIdentity reports whether two keys address the same chunk. Bodies are
// compared case-insensitively because the cache encodes them in lower case.
func (k ChunkKey) SameIdentity(o ChunkKey) bool {
	return k.Start == o.Start && k.End == o.End && strings.EqualFold(k.OrbitingBody, o.OrbitingBody)
}

func (k ChunkKey) String() string {
	return fmt.Sprintf("%s..%s/%s", k.Start, k.End, k.OrbitingBody)
}

// ChunkStatus is the outcome of processing a chunk.
type ChunkStatus string

const (
	StatusFresh  ChunkStatus = "fresh"
	StatusCached ChunkStatus = "cached"
	StatusFailed ChunkStatus = "failed"
)

// ErrorInfo is the persisted form of a chunk failure.
type ErrorInfo struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// NewErrorInfo captures err for persistence.
func NewErrorInfo(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	return &ErrorInfo{Kind: KindOf(err), Message: err.Error()}
}

// ChunkResult is the outcome of one attempt at a chunk. It is treated as
// immutable: callers copy it rather than editing a stored result.
type ChunkResult struct {
	Chunk     Chunk               `json:"chunk"`
	Status    ChunkStatus         `json:"status"`
	Records   []RawApproachRecord `json:"records"`
	Error     *ErrorInfo          `json:"error,omitempty"`
	FetchedAt time.Time           `json:"fetched_at"`
}

// Usable reports whether the result carries data the merger may consume.
func (r ChunkResult) Usable() bool {
	return r.Status == StatusFresh || r.Status == StatusCached
}

// WithStatus returns a copy of r carrying status s.
func (r ChunkResult) WithStatus(s ChunkStatus) ChunkResult {
	r.Status = s
	return r
}

// RawApproachRecord is one close-approach event as delivered by the feed,
// with the owning object's attributes copied onto it. Optional values are nil
// when the feed omitted them or sent something unparseable.
type RawApproachRecord struct {
	ID                     string   `json:"id"`
	NeoReferenceID         string   `json:"neo_reference_id,omitempty"`
	Name                   string   `json:"name,omitempty"`
	NasaJPLURL             string   `json:"nasa_jpl_url,omitempty"`
	AbsoluteMagnitudeH     *float64 `json:"absolute_magnitude_h"`
	IsPotentiallyHazardous bool     `json:"is_potentially_hazardous_asteroid"`
	IsSentryObject         bool     `json:"is_sentry_object"`
	DiameterKMMin          *float64 `json:"diameter_km_min"`
	DiameterKMMax          *float64 `json:"diameter_km_max"`
	DiameterMMin           *float64 `json:"diameter_m_min"`
	DiameterMMax           *float64 `json:"diameter_m_max"`
	CloseApproachDate      string   `json:"close_approach_date"`
	CloseApproachDateFull  string   `json:"close_approach_date_full,omitempty"`
	EpochDateCloseApproach *int64   `json:"epoch_date_close_approach"`
	VelocityKMS            *float64 `json:"velocity_km_s"`
	VelocityKMH            *float64 `json:"velocity_km_h"`
	VelocityMPH            *float64 `json:"velocity_mph"`
	MissDistanceAU         *float64 `json:"miss_distance_astronomical"`
	MissDistanceLunar      *float64 `json:"miss_distance_lunar"`
	MissDistanceKM         *float64 `json:"miss_distance_km"`
	MissDistanceMiles      *float64 `json:"miss_distance_miles"`
	OrbitingBody           string   `json:"orbiting_body"`
}

// Validate checks the fields every table row depends on: object id,
// close-approach date and miss distance.
func (r RawApproachRecord) Validate() error {
	var missing []string
	if strings.TrimSpace(r.ID) == "" {
		missing = append(missing, "id")
	}
	if _, err := time.Parse(DateLayout, r.CloseApproachDate); err != nil {
		missing = append(missing, "close_approach_date")
	}
	if r.MissDistanceKM == nil {
		missing = append(missing, "miss_distance_km")
	}
	if len(missing) == 0 {
		return nil
	}
	return NewError(KindSchemaValidation, "validate record",
		"missing or invalid "+strings.Join(missing, ", "), nil)
}

// ObjectRow is one row of the objects table.
type ObjectRow struct {
	ID                         string   `json:"id" csv:"id" parquet:"id"`
	NeoReferenceID             string   `json:"neo_reference_id" csv:"neo_reference_id" parquet:"neo_reference_id"`
	Name                       string   `json:"name" csv:"name" parquet:"name"`
	NasaJPLURL                 string   `json:"nasa_jpl_url" csv:"nasa_jpl_url" parquet:"nasa_jpl_url"`
	AbsoluteMagnitudeH         *float64 `json:"absolute_magnitude_h" csv:"absolute_magnitude_h,omitempty" parquet:"absolute_magnitude_h,optional"`
	IsPotentiallyHazardous     bool     `json:"is_potentially_hazardous_asteroid" csv:"is_potentially_hazardous_asteroid" parquet:"is_potentially_hazardous_asteroid"`
	IsSentryObject             bool     `json:"is_sentry_object" csv:"is_sentry_object" parquet:"is_sentry_object"`
	DiameterKMMin              *float64 `json:"diameter_km_min" csv:"diameter_km_min,omitempty" parquet:"diameter_km_min,optional"`
	DiameterKMMax              *float64 `json:"diameter_km_max" csv:"diameter_km_max,omitempty" parquet:"diameter_km_max,optional"`
	DiameterMMin               *float64 `json:"diameter_m_min" csv:"diameter_m_min,omitempty" parquet:"diameter_m_min,optional"`
	DiameterMMax               *float64 `json:"diameter_m_max" csv:"diameter_m_max,omitempty" parquet:"diameter_m_max,optional"`
	DiameterMidKM              *float64 `json:"diameter_mid_km" csv:"diameter_mid_km,omitempty" parquet:"diameter_mid_km,optional"`
	DiameterMidM               *float64 `json:"diameter_mid_m" csv:"diameter_mid_m,omitempty" parquet:"diameter_mid_m,optional"`
	DiameterUncertaintyRatioKM *float64 `json:"diameter_uncertainty_ratio_km" csv:"diameter_uncertainty_ratio_km,omitempty" parquet:"diameter_uncertainty_ratio_km,optional"`
	LogDiameter                float64  `json:"log_diameter" csv:"log_diameter" parquet:"log_diameter"`
	LastSeenDate               string   `json:"last_seen_date" csv:"last_seen_date" parquet:"last_seen_date"`
}

// ApproachRow is one row of the approaches table. ObjectID references
// ObjectRow.ID.
type ApproachRow struct {
	ApproachID             string   `json:"approach_id" csv:"approach_id" parquet:"approach_id"`
	ObjectID               string   `json:"id" csv:"id" parquet:"id"`
	CloseApproachDate      string   `json:"close_approach_date" csv:"close_approach_date" parquet:"close_approach_date"`
	CloseApproachDateFull  string   `json:"close_approach_date_full" csv:"close_approach_date_full" parquet:"close_approach_date_full"`
	EpochDateCloseApproach *int64   `json:"epoch_date_close_approach" csv:"epoch_date_close_approach,omitempty" parquet:"epoch_date_close_approach,optional"`
	VelocityKMS            *float64 `json:"velocity_km_s" csv:"velocity_km_s,omitempty" parquet:"velocity_km_s,optional"`
	VelocityKMH            *float64 `json:"velocity_km_h" csv:"velocity_km_h,omitempty" parquet:"velocity_km_h,optional"`
	VelocityMPH            *float64 `json:"velocity_mph" csv:"velocity_mph,omitempty" parquet:"velocity_mph,optional"`
	MissDistanceAU         *float64 `json:"miss_distance_astronomical" csv:"miss_distance_astronomical,omitempty" parquet:"miss_distance_astronomical,optional"`
	MissDistanceLunar      *float64 `json:"miss_distance_lunar" csv:"miss_distance_lunar,omitempty" parquet:"miss_distance_lunar,optional"`
	MissDistanceKM         float64  `json:"miss_distance_km" csv:"miss_distance_km" parquet:"miss_distance_km"`
	MissDistanceMiles      *float64 `json:"miss_distance_miles" csv:"miss_distance_miles,omitempty" parquet:"miss_distance_miles,optional"`
	OrbitingBody           string   `json:"orbiting_body" csv:"orbiting_body" parquet:"orbiting_body,dict"`
	LogMissDistance        float64  `json:"log_miss_distance" csv:"log_miss_distance" parquet:"log_miss_distance"`
	IsPotentiallyHazardous bool     `json:"is_potentially_hazardous_asteroid" csv:"is_potentially_hazardous_asteroid" parquet:"is_potentially_hazardous_asteroid"`
	IsSentryObject         bool     `json:"is_sentry_object" csv:"is_sentry_object" parquet:"is_sentry_object"`
}

// IngestSummary describes an ingestion run. It travels with the combined
// dataset so the build step can report chunk outcomes.
type IngestSummary struct {
	Range        DateRange `json:"range"`
	OrbitingBody string    `json:"orbiting_body"`
	ChunkCount   int       `json:"chunk_count"`
	Fresh        int       `json:"fresh"`
	Cached       int       `json:"cached"`
	Failed       int       `json:"failed"`
	Incomplete   bool      `json:"incomplete"`
	Duplicates   int       `json:"duplicates_dropped"`
	CompletedAt  time.Time `json:"completed_at"`
}

// Succeeded is the number of chunks whose records were used.
func (s IngestSummary) Succeeded() int {
	return s.Fresh + s.Cached
}

// Dataset is the merged output of an ingestion run.
type Dataset struct {
	Summary *IngestSummary      `json:"summary,omitempty"`
	Records []RawApproachRecord `json:"records"`
}

// RowCounts holds per-table row counts.
type RowCounts struct {
	Objects    int `json:"objects"`
	Approaches int `json:"approaches"`
}

// Metadata summarizes one build. It is recreated on every build.
type Metadata struct {
	RunID               string    `json:"run_id"`
	RunTimestamp        time.Time `json:"run_timestamp"`
	InputPath           string    `json:"input_path"`
	InputSHA256         string    `json:"input_sha256,omitempty"`
	OrbitingBodyFilter  string    `json:"orbiting_body_filter"`
	DateRangeCovered    DateRange `json:"date_range_covered"`
	DateMin             string    `json:"date_min"`
	DateMax             string    `json:"date_max"`
	ChunkSuccessCount   int       `json:"chunk_success_count"`
	ChunkFailureCount   int       `json:"chunk_failure_count"`
	ChunkFreshCount     int       `json:"chunk_fresh_count"`
	ChunkCachedCount    int       `json:"chunk_cached_count"`
	Incomplete          bool      `json:"incomplete"`
	RowCounts           RowCounts `json:"row_counts"`
	DroppedRecords      int       `json:"dropped_records"`
	DuplicateApproaches int       `json:"duplicate_approaches"`
	HazardousObjects    int       `json:"hazardous_objects"`
	HazardousApproaches int       `json:"hazardous_approaches"`
	SentryObjects       int       `json:"sentry_objects"`
	Notes               string    `json:"notes"`
}
