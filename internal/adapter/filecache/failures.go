package filecache

import (
	"encoding/csv"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/jszwec/csvutil"

	"github.com/couchcryptid/neows-etl/internal/domain"
)

// FailuresFile is the failure log's name inside the cache directory.
const FailuresFile = "failures.csv"

// Failure is one row of the failure log.
type Failure struct {
	StartDate    string    `csv:"start_date"`
	EndDate      string    `csv:"end_date"`
	OrbitingBody string    `csv:"orbiting_body"`
	Kind         string    `csv:"kind"`
	Error        string    `csv:"error"`
	RecordedAt   time.Time `csv:"recorded_at"`
}

// RecordFailure appends a row for key to the failure log, writing the header
// only when the log is new.
func (c *Cache) RecordFailure(key domain.ChunkKey, cause error, at time.Time) error {
	path := filepath.Join(c.dir, FailuresFile)
	info, statErr := os.Stat(path)
	newFile := errors.Is(statErr, fs.ErrNotExist) || (statErr == nil && info.Size() == 0)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return domain.NewError(domain.KindPersistence, "record failure", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	enc := csvutil.NewEncoder(w)
	enc.AutoHeader = newFile

	row := Failure{
		StartDate:    key.Start,
		EndDate:      key.End,
		OrbitingBody: key.OrbitingBody,
		Kind:         string(domain.KindOf(cause)),
		Error:        cause.Error(),
		RecordedAt:   at.UTC(),
	}
	if err := enc.Encode(row); err != nil {
		return domain.NewError(domain.KindPersistence, "record failure", path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return domain.NewError(domain.KindPersistence, "record failure", path, err)
	}
	return nil
}

// Failures reads the failure log. A missing log yields no rows.
func (c *Cache) Failures() ([]Failure, error) {
	path := filepath.Join(c.dir, FailuresFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.NewError(domain.KindPersistence, "read failures", path, err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var rows []Failure
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		return nil, domain.NewError(domain.KindPersistence, "read failures", path, err)
	}
	return rows, nil
}
