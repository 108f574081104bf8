package domain

import "fmt"

// MaxFeedWindowDays is the widest window the feed accepts in one query.
const MaxFeedWindowDays = 7

// PlanChunks splits r into chronological, contiguous, non-overlapping chunks
// of at most maxDays days each. The final chunk is shorter when the range is
// not a multiple of maxDays.
func PlanChunks(r DateRange, maxDays int, orbitingBody string) ([]Chunk, error) {
	if maxDays < 1 || maxDays > MaxFeedWindowDays {
		return nil, NewError(KindInvalidRange, "plan chunks",
			fmt.Sprintf("chunk span %d outside 1..%d days", maxDays, MaxFeedWindowDays), nil)
	}
	if r.Start().After(r.End()) {
		return nil, NewError(KindInvalidRange, "plan chunks", "start is after end", nil)
	}

	body := NormalizeBody(orbitingBody)
	chunks := make([]Chunk, 0, (r.Days()+maxDays-1)/maxDays)
	for current := r.Start(); !current.After(r.End()); {
		chunkEnd := current.AddDate(0, 0, maxDays-1)
		if chunkEnd.After(r.End()) {
			chunkEnd = r.End()
		}
		// Bounds are already ordered, so NewDateRange cannot fail here.
		cr, _ := NewDateRange(current, chunkEnd)
		chunks = append(chunks, Chunk{Range: cr, OrbitingBody: body, Sequence: len(chunks)})
		current = chunkEnd.AddDate(0, 0, 1)
	}
	return chunks, nil
}
