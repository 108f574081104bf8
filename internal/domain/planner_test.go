package domain

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRange(t *testing.T, start, end string) DateRange {
	t.Helper()
	r, err := ParseDateRange(start, end)
	require.NoError(t, err)
	return r
}

func TestPlanChunks_ThreeFullWeeks(t *testing.T) {
	chunks, err := PlanChunks(mustRange(t, "2024-01-01", "2024-01-21"), 7, "Earth")
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	want := [][2]string{
		{"2024-01-01", "2024-01-07"},
		{"2024-01-08", "2024-01-14"},
		{"2024-01-15", "2024-01-21"},
	}
	for i, c := range chunks {
		assert.Equal(t, want[i][0], c.Key().Start)
		assert.Equal(t, want[i][1], c.Key().End)
		assert.Equal(t, "Earth", c.OrbitingBody)
		assert.Equal(t, i, c.Sequence)
	}
}

func TestPlanChunks_ShortFinalChunk(t *testing.T) {
	chunks, err := PlanChunks(mustRange(t, "2024-01-01", "2024-01-08"), 7, "Earth")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 7, chunks[0].Range.Days())
	assert.Equal(t, 1, chunks[1].Range.Days())
	assert.Equal(t, "2024-01-08", chunks[1].Key().Start)
	assert.Equal(t, "2024-01-08", chunks[1].Key().End)
}

func TestPlanChunks_SingleDay(t *testing.T) {
	chunks, err := PlanChunks(mustRange(t, "2024-02-29", "2024-02-29"), 7, "all")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, BodyAll, chunks[0].OrbitingBody)
}

func TestPlanChunks_InvalidSpan(t *testing.T) {
	r := mustRange(t, "2024-01-01", "2024-01-21")
	for _, span := range []int{0, -1, 8} {
		_, err := PlanChunks(r, span, "Earth")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidRange)
	}
}

func TestNewDateRange_StartAfterEnd(t *testing.T) {
	_, err := ParseDateRange("2024-01-10", "2024-01-01")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRange)
	assert.True(t, IsFatal(err), "invalid ranges abort the run")
}

func TestParseDate_Invalid(t *testing.T) {
	_, err := ParseDate("2024-13-01")
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestProperty_PlanChunksCoverRange(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	properties.Property("chunks are contiguous, non-overlapping, bounded and cover the range", prop.ForAll(
		func(offset, length, span int) bool {
			start := base.AddDate(0, 0, offset)
			r, err := NewDateRange(start, start.AddDate(0, 0, length))
			if err != nil {
				return false
			}
			chunks, err := PlanChunks(r, span, "Earth")
			if err != nil || len(chunks) == 0 {
				return false
			}
			if !chunks[0].Range.Start().Equal(r.Start()) || !chunks[len(chunks)-1].Range.End().Equal(r.End()) {
				return false
			}
			covered := 0
			for i, c := range chunks {
				if c.Range.Days() > span || c.Range.Days() < 1 {
					return false
				}
				if i > 0 && !chunks[i-1].Range.End().AddDate(0, 0, 1).Equal(c.Range.Start()) {
					return false
				}
				covered += c.Range.Days()
			}
			return covered == r.Days()
		},
		gen.IntRange(0, 3650),
		gen.IntRange(0, 800),
		gen.IntRange(1, MaxFeedWindowDays),
	))

	properties.TestingRun(t)
}
