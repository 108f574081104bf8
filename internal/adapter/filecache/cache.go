// Package filecache persists chunk results on disk, one JSON file per chunk
// identity, and keeps an append-only log of failed chunks.
package filecache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/couchcryptid/neows-etl/internal/domain"
)

const (
	entryPrefix = "feed_"
	entrySuffix = ".json"
)

// Cache is a directory of chunk results. A single process is expected to
// write to it at a time; writes for one identity are atomic.
type Cache struct {
	dir    string
	logger *slog.Logger
}

// New opens the cache at dir, creating the directory if needed.
func New(dir string, logger *slog.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, domain.NewError(domain.KindPersistence, "open cache", dir, err)
	}
	return &Cache{dir: dir, logger: logger}, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// Path returns the file that holds the entry for key.
func (c *Cache) Path(key domain.ChunkKey) string {
	return filepath.Join(c.dir, fileName(key))
}

func fileName(key domain.ChunkKey) string {
	return fmt.Sprintf("%s%s_%s_%s%s", entryPrefix, key.Start, key.End, sanitizeBody(key.OrbitingBody), entrySuffix)
}

// sanitizeBody lower-cases the body and replaces anything outside [a-z0-9-].
func sanitizeBody(body string) string {
	body = strings.ToLower(strings.TrimSpace(body))
	if body == "" {
		return "none"
	}
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return '_'
	}, body)
}

// Get returns the stored result for key. ok is false when nothing is stored.
// An entry that cannot be parsed or belongs to another chunk yields
// ErrCacheCorruption; the caller treats it as a miss.
func (c *Cache) Get(key domain.ChunkKey) (result domain.ChunkResult, ok bool, err error) {
	path := c.Path(key)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.ChunkResult{}, false, nil
	}
	if err != nil {
		return domain.ChunkResult{}, false, domain.NewError(domain.KindPersistence, "read cache entry", path, err)
	}

	result, err = decodeEntry(data)
	if err != nil {
		return domain.ChunkResult{}, false, domain.NewError(domain.KindCacheCorruption, "read cache entry", path, err)
	}
	if got := result.Chunk.Key(); !got.SameIdentity(key) {
		return domain.ChunkResult{}, false, domain.NewError(domain.KindCacheCorruption, "read cache entry", path,
			fmt.Errorf("entry holds chunk %s, want %s", got, key))
	}
	return result, true, nil
}

func decodeEntry(data []byte) (domain.ChunkResult, error) {
	var result domain.ChunkResult
	if err := json.Unmarshal(data, &result); err != nil {
		return domain.ChunkResult{}, err
	}
	switch result.Status {
	case domain.StatusFresh, domain.StatusCached, domain.StatusFailed:
	default:
		return domain.ChunkResult{}, fmt.Errorf("unknown status %q", result.Status)
	}
	return result, nil
}

// Put stores result under its chunk's identity, replacing any previous
// entry. The file is written to a temporary name and renamed into place, so
// readers see either the old entry or the new one.
func (c *Cache) Put(result domain.ChunkResult) error {
	path := c.Path(result.Chunk.Key())
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return domain.NewError(domain.KindPersistence, "write cache entry", path, err)
	}
	if err := WriteFileAtomic(path, data); err != nil {
		return domain.NewError(domain.KindPersistence, "write cache entry", path, err)
	}
	return nil
}

// Invalidate removes the entry for key. Removing a missing entry is not an error.
func (c *Cache) Invalidate(key domain.ChunkKey) error {
	path := c.Path(key)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return domain.NewError(domain.KindPersistence, "invalidate cache entry", path, err)
	}
	return nil
}

// Entries loads every readable entry in chronological chunk order. Corrupt
// entries are logged and skipped; their count is returned.
func (c *Cache) Entries() ([]domain.ChunkResult, int, error) {
	paths, err := filepath.Glob(filepath.Join(c.dir, entryPrefix+"*"+entrySuffix))
	if err != nil {
		return nil, 0, domain.NewError(domain.KindPersistence, "list cache", c.dir, err)
	}

	var (
		results []domain.ChunkResult
		corrupt int
	)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, 0, domain.NewError(domain.KindPersistence, "read cache entry", path, err)
		}
		result, err := decodeEntry(data)
		if err == nil && fileName(result.Chunk.Key()) != filepath.Base(path) {
			err = fmt.Errorf("entry holds chunk %s", result.Chunk.Key())
		}
		if err != nil {
			corrupt++
			c.logger.Warn("skipping corrupt cache entry", "path", path, "error", err)
			continue
		}
		results = append(results, result)
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i].Chunk.Key(), results[j].Chunk.Key()
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.End != b.End {
			return a.End < b.End
		}
		return a.OrbitingBody < b.OrbitingBody
	})
	return results, corrupt, nil
}

// WriteFileAtomic writes data to a temporary file in path's directory, syncs
// it and renames it over path.
func WriteFileAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
