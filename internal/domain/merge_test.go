package domain

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func testRecord(id, date, body string, missKM float64) RawApproachRecord {
	return RawApproachRecord{
		ID:                id,
		NeoReferenceID:    id,
		Name:              "(" + id + ")",
		CloseApproachDate: date,
		MissDistanceKM:    ptr(missKM),
		VelocityKMS:       ptr(12.5),
		DiameterKMMin:     ptr(0.1),
		DiameterKMMax:     ptr(0.3),
		OrbitingBody:      body,
	}
}

func result(status ChunkStatus, recs ...RawApproachRecord) ChunkResult {
	return ChunkResult{Status: status, Records: recs}
}

func TestMergeResults_DropsExactDuplicatesKeepingFirst(t *testing.T) {
	first := testRecord("2000433", "2024-01-03", "Earth", 1000)
	first.Name = "433 Eros"
	again := testRecord("2000433", "2024-01-03", "Earth", 1000)
	again.Name = "433 Eros (refetched)"

	merged, dropped := MergeResults([]ChunkResult{
		result(StatusCached, first, testRecord("3542519", "2024-01-04", "Earth", 2000)),
		result(StatusFresh, again),
	})

	require.Len(t, merged, 2)
	assert.Equal(t, 1, dropped)
	assert.Equal(t, "433 Eros", merged[0].Name)
}

func TestMergeResults_SkipsFailedChunks(t *testing.T) {
	merged, dropped := MergeResults([]ChunkResult{
		result(StatusFailed, testRecord("1", "2024-01-01", "Earth", 10)),
		result(StatusFresh, testRecord("2", "2024-01-08", "Earth", 20)),
	})

	require.Len(t, merged, 1)
	assert.Equal(t, "2", merged[0].ID)
	assert.Zero(t, dropped)
}

func TestMergeResults_DifferentMissDistanceIsNotDuplicate(t *testing.T) {
	merged, _ := MergeResults([]ChunkResult{
		result(StatusFresh,
			testRecord("1", "2024-01-01", "Earth", 10),
			testRecord("1", "2024-01-01", "Earth", 11),
			testRecord("1", "2024-01-01", "Mars", 10),
		),
	})
	assert.Len(t, merged, 3)
}

func TestMergeResults_PreservesChunkOrder(t *testing.T) {
	merged, _ := MergeResults([]ChunkResult{
		result(StatusCached, testRecord("b", "2024-01-01", "Earth", 1), testRecord("a", "2024-01-02", "Earth", 1)),
		result(StatusFresh, testRecord("c", "2024-01-08", "Earth", 1)),
	})
	ids := make([]string, 0, len(merged))
	for _, r := range merged {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"b", "a", "c"}, ids)
}

func TestProperty_MergeLeavesNoDuplicates(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bodies := []string{"Earth", "Mars"}

	// Each int encodes (id, day, body, miss) drawn from small domains so collisions are common.
	toRecord := func(n int) RawApproachRecord {
		return testRecord(
			fmt.Sprintf("neo-%d", n%3),
			base.AddDate(0, 0, (n/3)%4).Format(DateLayout),
			bodies[(n/12)%2],
			float64((n/24)%2),
		)
	}

	properties.Property("no two merged records share (id, date, body, miss)", prop.ForAll(
		func(a, b []int) bool {
			chunks := []ChunkResult{{Status: StatusCached}, {Status: StatusFresh}}
			for _, n := range a {
				chunks[0].Records = append(chunks[0].Records, toRecord(n))
			}
			for _, n := range b {
				chunks[1].Records = append(chunks[1].Records, toRecord(n))
			}

			merged, dropped := MergeResults(chunks)
			if len(merged)+dropped != len(a)+len(b) {
				return false
			}
			seen := map[recordKey]bool{}
			for _, r := range merged {
				if seen[keyOf(r)] {
					return false
				}
				seen[keyOf(r)] = true
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 47)),
		gen.SliceOf(gen.IntRange(0, 47)),
	))

	properties.TestingRun(t)
}
