package filecache

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/neows-etl/internal/domain"
)

func TestCache_RecordFailure_AppendsWithSingleHeader(t *testing.T) {
	c := testCache(t)
	first := testChunk(t, "2024-01-01", "2024-01-07", "Earth").Key()
	second := testChunk(t, "2024-01-08", "2024-01-14", "Earth").Key()

	require.NoError(t, c.RecordFailure(first,
		domain.NewError(domain.KindRemoteUnavailable, "fetch feed", "giving up after 6 attempts", nil), fetchedAt))
	require.NoError(t, c.RecordFailure(second,
		domain.NewError(domain.KindCacheCorruption, "read cache entry", "bad, \"quoted\" json", nil), fetchedAt.Add(time.Minute)))

	data, err := os.ReadFile(filepath.Join(c.Dir(), FailuresFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "start_date,end_date,orbiting_body,kind,error,recorded_at", lines[0])

	rows, err := c.Failures()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2024-01-01", rows[0].StartDate)
	assert.Equal(t, "remote_unavailable", rows[0].Kind)
	assert.True(t, fetchedAt.Equal(rows[0].RecordedAt))
	assert.Equal(t, "2024-01-08", rows[1].StartDate)
	assert.Equal(t, "cache_corruption", rows[1].Kind)
	assert.Contains(t, rows[1].Error, `bad, "quoted" json`)
}

func TestCache_RecordFailure_UntypedError(t *testing.T) {
	c := testCache(t)
	key := testChunk(t, "2024-01-01", "2024-01-07", "all").Key()

	require.NoError(t, c.RecordFailure(key, errors.New("boom"), fetchedAt))

	rows, err := c.Failures()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "all", rows[0].OrbitingBody)
	assert.Empty(t, rows[0].Kind)
	assert.Equal(t, "boom", rows[0].Error)
}

func TestCache_Failures_MissingLog(t *testing.T) {
	rows, err := testCache(t).Failures()
	require.NoError(t, err)
	assert.Empty(t, rows)
}
