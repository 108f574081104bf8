package neows

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/couchcryptid/neows-etl/internal/domain"
)

// NeoWs feed response types.

type feedResponse struct {
	Links            links            `json:"links"`
	ElementCount     int              `json:"element_count"`
	NearEarthObjects map[string][]neo `json:"near_earth_objects"`
}

type links struct {
	Next string `json:"next"`
	Prev string `json:"prev"`
	Self string `json:"self"`
}

type neo struct {
	ID                     string            `json:"id"`
	NeoReferenceID         string            `json:"neo_reference_id"`
	Name                   string            `json:"name"`
	NasaJPLURL             string            `json:"nasa_jpl_url"`
	AbsoluteMagnitudeH     flexFloat         `json:"absolute_magnitude_h"`
	EstimatedDiameter      estimatedDiameter `json:"estimated_diameter"`
	IsPotentiallyHazardous bool              `json:"is_potentially_hazardous_asteroid"`
	IsSentryObject         bool              `json:"is_sentry_object"`
	CloseApproachData      []closeApproach   `json:"close_approach_data"`
}

type estimatedDiameter struct {
	Kilometers diameterRange `json:"kilometers"`
	Meters     diameterRange `json:"meters"`
}

type diameterRange struct {
	Min flexFloat `json:"estimated_diameter_min"`
	Max flexFloat `json:"estimated_diameter_max"`
}

type closeApproach struct {
	CloseApproachDate      string    `json:"close_approach_date"`
	CloseApproachDateFull  string    `json:"close_approach_date_full"`
	EpochDateCloseApproach flexFloat `json:"epoch_date_close_approach"`
	RelativeVelocity       struct {
		KilometersPerSecond flexFloat `json:"kilometers_per_second"`
		KilometersPerHour   flexFloat `json:"kilometers_per_hour"`
		MilesPerHour        flexFloat `json:"miles_per_hour"`
	} `json:"relative_velocity"`
	MissDistance struct {
		Astronomical flexFloat `json:"astronomical"`
		Lunar        flexFloat `json:"lunar"`
		Kilometers   flexFloat `json:"kilometers"`
		Miles        flexFloat `json:"miles"`
	} `json:"miss_distance"`
	OrbitingBody string `json:"orbiting_body"`
}

// flexFloat decodes a JSON number or decimal string. Null, empty,
// unparseable and non-finite values decode as absent.
type flexFloat struct {
	v *float64
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(strings.Trim(string(b), `"`))
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	f.v = &v
	return nil
}

func (f flexFloat) int64Ptr() *int64 {
	if f.v == nil {
		return nil
	}
	n := int64(*f.v)
	return &n
}

// records flattens the response into one record per close approach, in date
// order, keeping only approaches measured against body (or all for BodyAll).
// Bodies match case-insensitively, as the cache keys them.
func (r *feedResponse) records(body string) []domain.RawApproachRecord {
	dates := make([]string, 0, len(r.NearEarthObjects))
	for d := range r.NearEarthObjects {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	body = domain.NormalizeBody(body)
	keepAll := body == domain.BodyAll
	var out []domain.RawApproachRecord
	for _, d := range dates {
		for _, n := range r.NearEarthObjects[d] {
			for _, ca := range n.CloseApproachData {
				if !keepAll && !strings.EqualFold(ca.OrbitingBody, body) {
					continue
				}
				out = append(out, toRecord(n, ca))
			}
		}
	}
	return out
}

func toRecord(n neo, ca closeApproach) domain.RawApproachRecord {
	return domain.RawApproachRecord{
		ID:                     n.ID,
		NeoReferenceID:         n.NeoReferenceID,
		Name:                   n.Name,
		NasaJPLURL:             n.NasaJPLURL,
		AbsoluteMagnitudeH:     n.AbsoluteMagnitudeH.v,
		IsPotentiallyHazardous: n.IsPotentiallyHazardous,
		IsSentryObject:         n.IsSentryObject,
		DiameterKMMin:          n.EstimatedDiameter.Kilometers.Min.v,
		DiameterKMMax:          n.EstimatedDiameter.Kilometers.Max.v,
		DiameterMMin:           n.EstimatedDiameter.Meters.Min.v,
		DiameterMMax:           n.EstimatedDiameter.Meters.Max.v,
		CloseApproachDate:      ca.CloseApproachDate,
		CloseApproachDateFull:  ca.CloseApproachDateFull,
		EpochDateCloseApproach: ca.EpochDateCloseApproach.int64Ptr(),
		VelocityKMS:            ca.RelativeVelocity.KilometersPerSecond.v,
		VelocityKMH:            ca.RelativeVelocity.KilometersPerHour.v,
		VelocityMPH:            ca.RelativeVelocity.MilesPerHour.v,
		MissDistanceAU:         ca.MissDistance.Astronomical.v,
		MissDistanceLunar:      ca.MissDistance.Lunar.v,
		MissDistanceKM:         ca.MissDistance.Kilometers.v,
		MissDistanceMiles:      ca.MissDistance.Miles.v,
		OrbitingBody:           ca.OrbitingBody,
	}
}
