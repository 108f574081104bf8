// Package tables reads and writes the built tables, their metadata and the
// combined raw dataset produced by ingestion.
package tables

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jszwec/csvutil"
	"github.com/parquet-go/parquet-go"

	"github.com/couchcryptid/neows-etl/internal/adapter/filecache"
	"github.com/couchcryptid/neows-etl/internal/domain"
)

// File names inside an output directory.
const (
	ObjectsParquet    = "objects.parquet"
	ApproachesParquet = "approaches.parquet"
	ObjectsCSV        = "objects.csv"
	ApproachesCSV     = "approaches.csv"
	MetadataFile      = "metadata.json"
)

// Writer writes tables into a fixed output directory.
type Writer struct {
	dir string
}

// NewWriter creates a Writer for dir.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Dir returns the output directory.
func (w *Writer) Dir() string { return w.dir }

// Write stores t and meta in the writer's directory.
func (w *Writer) Write(t domain.Tables, meta domain.Metadata) error {
	return Write(w.dir, t, meta)
}

// Write stores both tables as parquet with CSV twins, then metadata.json.
// Metadata goes last so its presence marks a complete output directory.
func Write(dir string, t domain.Tables, meta domain.Metadata) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return persistErr("create output dir", dir, err)
	}

	if err := writeParquet(filepath.Join(dir, ObjectsParquet), t.Objects); err != nil {
		return err
	}
	if err := writeParquet(filepath.Join(dir, ApproachesParquet), t.Approaches); err != nil {
		return err
	}
	if err := writeCSV(filepath.Join(dir, ObjectsCSV), t.Objects); err != nil {
		return err
	}
	if err := writeCSV(filepath.Join(dir, ApproachesCSV), t.Approaches); err != nil {
		return err
	}
	return WriteMetadata(dir, meta)
}

func writeParquet[T any](path string, rows []T) error {
	var buf bytes.Buffer
	if err := parquet.Write(&buf, rows, parquet.Compression(&parquet.Snappy)); err != nil {
		return persistErr("encode parquet", path, err)
	}
	if err := filecache.WriteFileAtomic(path, buf.Bytes()); err != nil {
		return persistErr("write parquet", path, err)
	}
	return nil
}

func writeCSV[T any](path string, rows []T) error {
	data, err := csvutil.Marshal(rows)
	if err != nil {
		return persistErr("encode csv", path, err)
	}
	if err := filecache.WriteFileAtomic(path, data); err != nil {
		return persistErr("write csv", path, err)
	}
	return nil
}

// WriteMetadata writes meta as indented JSON.
func WriteMetadata(dir string, meta domain.Metadata) error {
	path := filepath.Join(dir, MetadataFile)
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return persistErr("encode metadata", path, err)
	}
	if err := filecache.WriteFileAtomic(path, append(data, '\n')); err != nil {
		return persistErr("write metadata", path, err)
	}
	return nil
}

// Load reads the parquet tables and metadata from dir.
func Load(dir string) (domain.Tables, domain.Metadata, error) {
	objects, err := parquet.ReadFile[domain.ObjectRow](filepath.Join(dir, ObjectsParquet))
	if err != nil {
		return domain.Tables{}, domain.Metadata{}, fmt.Errorf("read %s: %w", ObjectsParquet, err)
	}
	approaches, err := parquet.ReadFile[domain.ApproachRow](filepath.Join(dir, ApproachesParquet))
	if err != nil {
		return domain.Tables{}, domain.Metadata{}, fmt.Errorf("read %s: %w", ApproachesParquet, err)
	}
	meta, err := ReadMetadata(dir)
	if err != nil {
		return domain.Tables{}, domain.Metadata{}, err
	}
	return domain.Tables{Objects: objects, Approaches: approaches}, meta, nil
}

// ReadMetadata reads metadata.json from dir.
func ReadMetadata(dir string) (domain.Metadata, error) {
	var meta domain.Metadata
	data, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if err != nil {
		return meta, fmt.Errorf("read %s: %w", MetadataFile, err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("decode %s: %w", MetadataFile, err)
	}
	return meta, nil
}

// ReadCSV decodes one of the CSV twins.
func ReadCSV[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	var rows []T
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return rows, nil
}

// Exists reports whether dir holds a complete output.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, MetadataFile))
	return err == nil
}

func persistErr(op, path string, err error) error {
	return domain.NewError(domain.KindPersistence, op, path, err)
}
