package tables

import (
	"context"
	"errors"
	"sync"

	"github.com/couchcryptid/neows-etl/internal/domain"
)

var errNotLoaded = errors.New("tables not loaded")

// ApproachQuery filters the approaches table. Zero values match everything.
type ApproachQuery struct {
	ObjectID  string
	Hazardous *bool
	Limit     int
}

// Catalog is an in-memory, read-only view over a built output directory.
// It is safe for concurrent use.
type Catalog struct {
	mu       sync.RWMutex
	loaded   bool
	meta     domain.Metadata
	objects  map[string]domain.ObjectRow
	byObject map[string][]domain.ApproachRow
	all      []domain.ApproachRow
}

// NewCatalog returns an empty catalog that reports not ready until loaded.
func NewCatalog() *Catalog {
	return &Catalog{}
}

// Load reads the tables in dir and replaces the catalog contents.
func (c *Catalog) Load(dir string) error {
	if !Exists(dir) {
		return domain.NewError(domain.KindPersistence, "load tables", dir, errors.New("no built tables, run the build command first"))
	}
	t, meta, err := Load(dir)
	if err != nil {
		return err
	}
	c.Set(t, meta)
	return nil
}

// Set replaces the catalog contents with t and meta.
func (c *Catalog) Set(t domain.Tables, meta domain.Metadata) {
	objects := make(map[string]domain.ObjectRow, len(t.Objects))
	for _, o := range t.Objects {
		objects[o.ID] = o
	}
	byObject := make(map[string][]domain.ApproachRow, len(t.Objects))
	for _, a := range t.Approaches {
		byObject[a.ObjectID] = append(byObject[a.ObjectID], a)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = true
	c.meta = meta
	c.objects = objects
	c.byObject = byObject
	c.all = t.Approaches
}

// CheckReadiness reports an error until tables have been loaded.
func (c *Catalog) CheckReadiness(_ context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded {
		return errNotLoaded
	}
	return nil
}

// Metadata returns the metadata of the loaded tables.
func (c *Catalog) Metadata() (domain.Metadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.meta, c.loaded
}

// Object returns the object with id and its approaches in date order.
func (c *Catalog) Object(id string) (domain.ObjectRow, []domain.ApproachRow, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o, ok := c.objects[id]
	if !ok {
		return domain.ObjectRow{}, nil, false
	}
	return o, c.byObject[id], true
}

// Approaches returns the approaches matching q in date order, at most q.Limit
// rows when the limit is positive.
func (c *Catalog) Approaches(q ApproachQuery) []domain.ApproachRow {
	c.mu.RLock()
	defer c.mu.RUnlock()

	src := c.all
	if q.ObjectID != "" {
		src = c.byObject[q.ObjectID]
	}

	out := make([]domain.ApproachRow, 0, min(len(src), max(q.Limit, 0)))
	for _, a := range src {
		if q.Hazardous != nil && a.IsPotentiallyHazardous != *q.Hazardous {
			continue
		}
		out = append(out, a)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out
}
