package domain

import "strconv"

// recordKey identifies exact duplicate approach events.
type recordKey struct {
	id           string
	date         string
	orbitingBody string
	missKM       string
}

func keyOf(r RawApproachRecord) recordKey {
	return recordKey{
		id:           r.ID,
		date:         r.CloseApproachDate,
		orbitingBody: r.OrbitingBody,
		missKM:       formatOptional(r.MissDistanceKM),
	}
}

// MergeResults concatenates the records of every usable result in order and
// drops exact duplicates on (id, date, orbiting body, miss distance), keeping
// the first occurrence. Failed results contribute nothing. It returns the
// merged records and the number of duplicates dropped.
func MergeResults(results []ChunkResult) ([]RawApproachRecord, int) {
	total := 0
	for _, res := range results {
		if res.Usable() {
			total += len(res.Records)
		}
	}

	merged := make([]RawApproachRecord, 0, total)
	seen := make(map[recordKey]struct{}, total)
	dropped := 0
	for _, res := range results {
		if !res.Usable() {
			continue
		}
		for _, rec := range res.Records {
			k := keyOf(rec)
			if _, dup := seen[k]; dup {
				dropped++
				continue
			}
			seen[k] = struct{}{}
			merged = append(merged, rec)
		}
	}
	return merged, dropped
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}
