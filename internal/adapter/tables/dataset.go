package tables

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/couchcryptid/neows-etl/internal/adapter/filecache"
	"github.com/couchcryptid/neows-etl/internal/domain"
)

// WriteDataset stores the combined dataset at path, atomically.
func WriteDataset(path string, ds domain.Dataset) error {
	if ds.Records == nil {
		ds.Records = []domain.RawApproachRecord{}
	}
	data, err := json.Marshal(ds)
	if err != nil {
		return persistErr("encode dataset", path, err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return persistErr("create dataset dir", dir, err)
		}
	}
	if err := filecache.WriteFileAtomic(path, data); err != nil {
		return persistErr("write dataset", path, err)
	}
	return nil
}

// ReadDataset loads a combined dataset and returns it with the hex SHA-256
// of the file. A bare JSON array of records is accepted as a dataset
// without a summary.
func ReadDataset(path string) (domain.Dataset, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Dataset{}, "", persistErr("read dataset", path, err)
	}
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])

	var ds domain.Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		var records []domain.RawApproachRecord
		if arrErr := json.Unmarshal(data, &records); arrErr != nil {
			return domain.Dataset{}, "", domain.NewError(domain.KindSchemaValidation, "decode dataset", path, err)
		}
		ds = domain.Dataset{Records: records}
	}
	return ds, digest, nil
}
