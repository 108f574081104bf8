package filecache

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/neows-etl/internal/domain"
)

var fetchedAt = time.Date(2024, time.February, 1, 12, 0, 0, 0, time.UTC)

func testCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return c
}

func testChunk(t *testing.T, start, end, body string) domain.Chunk {
	t.Helper()
	r, err := domain.ParseDateRange(start, end)
	require.NoError(t, err)
	return domain.Chunk{Range: r, OrbitingBody: body}
}

func freshResult(t *testing.T, start, end string) domain.ChunkResult {
	t.Helper()
	miss := 37399468.7
	return domain.ChunkResult{
		Chunk:  testChunk(t, start, end, "Earth"),
		Status: domain.StatusFresh,
		Records: []domain.RawApproachRecord{{
			ID:                "2099942",
			Name:              "99942 Apophis (2004 MN4)",
			CloseApproachDate: start,
			MissDistanceKM:    &miss,
			OrbitingBody:      "Earth",
		}},
		FetchedAt: fetchedAt,
	}
}

func TestCache_GetMissing(t *testing.T) {
	c := testCache(t)
	_, ok, err := c.Get(testChunk(t, "2024-01-01", "2024-01-07", "Earth").Key())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_PutGetRoundTrip(t *testing.T) {
	c := testCache(t)
	want := freshResult(t, "2024-01-01", "2024-01-07")

	require.NoError(t, c.Put(want))

	got, ok, err := c.Get(want.Chunk.Key())
	require.NoError(t, err)
	require.True(t, ok)
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(domain.DateRange{})); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestCache_FileLayout(t *testing.T) {
	c := testCache(t)
	result := freshResult(t, "2024-01-01", "2024-01-07")
	require.NoError(t, c.Put(result))

	path := filepath.Join(c.Dir(), "feed_2024-01-01_2024-01-07_earth.json")
	assert.Equal(t, path, c.Path(result.Chunk.Key()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status": "fresh"`, "entries are indented, human-readable JSON")

	entries, err := os.ReadDir(c.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temporary files left behind")
}

func TestCache_BodyIsPartOfIdentity(t *testing.T) {
	c := testCache(t)
	earth := freshResult(t, "2024-01-01", "2024-01-07")
	require.NoError(t, c.Put(earth))

	_, ok, err := c.Get(testChunk(t, "2024-01-01", "2024-01-07", "Mars").Key())
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = c.Get(testChunk(t, "2024-01-01", "2024-01-07", "EARTH").Key())
	require.NoError(t, err)
	assert.True(t, ok, "body comparison ignores case")
}

func TestCache_PutReplacesWholesale(t *testing.T) {
	c := testCache(t)
	first := freshResult(t, "2024-01-01", "2024-01-07")
	require.NoError(t, c.Put(first))

	failed := domain.ChunkResult{
		Chunk:     first.Chunk,
		Status:    domain.StatusFailed,
		Error:     &domain.ErrorInfo{Kind: domain.KindRemoteUnavailable, Message: "status 503"},
		FetchedAt: fetchedAt.Add(time.Hour),
	}
	require.NoError(t, c.Put(failed))

	got, ok, err := c.Get(first.Chunk.Key())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Empty(t, got.Records)
	require.NotNil(t, got.Error)
	assert.Equal(t, domain.KindRemoteUnavailable, got.Error.Kind)
}

func TestCache_Invalidate(t *testing.T) {
	c := testCache(t)
	result := freshResult(t, "2024-01-01", "2024-01-07")
	require.NoError(t, c.Put(result))

	require.NoError(t, c.Invalidate(result.Chunk.Key()))
	_, ok, err := c.Get(result.Chunk.Key())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Invalidate(result.Chunk.Key()), "invalidating a missing entry is a no-op")
}

func TestCache_CorruptEntry(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"truncated json", `{"chunk": {"range": {"start": "2024-01-01"`},
		{"unknown status", `{"chunk": {"range": {"start": "2024-01-01", "end": "2024-01-07"}, "orbiting_body": "Earth"}, "status": "weird"}`},
		{"invalid range", `{"chunk": {"range": {"start": "2024-01-09", "end": "2024-01-07"}, "orbiting_body": "Earth"}, "status": "fresh"}`},
		{"other chunk", `{"chunk": {"range": {"start": "2024-02-01", "end": "2024-02-07"}, "orbiting_body": "Earth"}, "status": "fresh"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testCache(t)
			key := testChunk(t, "2024-01-01", "2024-01-07", "Earth").Key()
			require.NoError(t, os.WriteFile(c.Path(key), []byte(tt.content), 0o644))

			_, ok, err := c.Get(key)
			require.Error(t, err)
			assert.False(t, ok)
			assert.ErrorIs(t, err, domain.ErrCacheCorruption)
			assert.False(t, domain.IsFatal(err))
		})
	}
}

func TestCache_EntriesSortedAndSkipsCorrupt(t *testing.T) {
	c := testCache(t)
	require.NoError(t, c.Put(freshResult(t, "2024-01-15", "2024-01-21")))
	require.NoError(t, c.Put(freshResult(t, "2024-01-01", "2024-01-07")))
	require.NoError(t, c.Put(freshResult(t, "2024-01-08", "2024-01-14")))
	require.NoError(t, os.WriteFile(filepath.Join(c.Dir(), "feed_2024-01-22_2024-01-28_earth.json"), []byte("{"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(c.Dir(), "notes.txt"), []byte("ignored"), 0o644))

	results, corrupt, err := c.Entries()
	require.NoError(t, err)
	assert.Equal(t, 1, corrupt)
	require.Len(t, results, 3)
	assert.Equal(t, "2024-01-01", results[0].Chunk.Key().Start)
	assert.Equal(t, "2024-01-08", results[1].Chunk.Key().Start)
	assert.Equal(t, "2024-01-15", results[2].Chunk.Key().Start)
}

func TestCache_PutIntoMissingDirectoryIsPersistenceError(t *testing.T) {
	c := testCache(t)
	require.NoError(t, os.RemoveAll(c.Dir()))

	err := c.Put(freshResult(t, "2024-01-01", "2024-01-07"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.True(t, domain.IsFatal(err))
}

func TestSanitizeBody(t *testing.T) {
	assert.Equal(t, "earth", sanitizeBody("Earth"))
	assert.Equal(t, "all", sanitizeBody("ALL"))
	assert.Equal(t, "juptr_", sanitizeBody("Juptr/"))
	assert.Equal(t, "none", sanitizeBody("  "))
}

func TestWriteFileAtomic_ReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	require.NoError(t, WriteFileAtomic(path, []byte("new")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestWriteFileAtomic_FailedRenameCleansUp(t *testing.T) {
	dir := t.TempDir()

	// Renaming a file over a directory fails after the temp file is written.
	target := filepath.Join(dir, "sub")
	require.NoError(t, os.MkdirAll(filepath.Join(target, "child"), 0o755))
	require.Error(t, WriteFileAtomic(target, []byte("new")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "only the directory remains")
	assert.Equal(t, "sub", entries[0].Name())
}
