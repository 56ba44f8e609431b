// Package query serves read-only lookups over the catalog.
package query

import (
	"context"
	"database/sql"

	"github.com/hpungsan/lib/internal/catalog"
	"github.com/hpungsan/lib/internal/db"
	"github.com/hpungsan/lib/internal/errors"
)

// Default and maximum result counts.
const (
	DefaultSearchLimit   = 100
	MaxSearchLimit       = 1000
	DefaultFullTextLimit = 50
	MaxFullTextLimit     = 200
	DefaultRunsLimit     = 10
	MaxRunsLimit         = 100
)

// Filters narrows a metadata search. Empty strings are ignored.
type Filters struct {
	Query     string
	Extension string
	MediaType string
	ScanRoot  string
	Kind      catalog.Kind
}

// Engine answers queries. It never writes.
type Engine struct {
	db *sql.DB
}

// New creates an Engine over database.
func New(database *sql.DB) *Engine {
	return &Engine{db: database}
}

// Lookup returns the live record at path, or nil when there is none.
func (e *Engine) Lookup(ctx context.Context, path string) (*catalog.FileRecord, error) {
	if path == "" {
		return nil, errors.NewInvalidRequest("path is required")
	}
	normalized, err := catalog.NormalizePath(path)
	if err != nil {
		return nil, errors.NewInvalidPath("invalid path", path)
	}
	rec, err := db.GetByPath(ctx, e.db, normalized)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Search returns live records matching f, ordered by path.
func (e *Engine) Search(ctx context.Context, f Filters, limit int) ([]*catalog.FileRecord, error) {
	if f.Kind != "" && !f.Kind.Valid() {
		return nil, errors.NewInvalidRequest("kind must be one of file, dir, symlink")
	}

	var filters db.SearchFilters
	if f.Query != "" {
		filters.PathContains = &f.Query
	}
	if ext := catalog.NormalizeExtension(f.Extension); ext != "" {
		filters.Extension = &ext
	}
	if f.MediaType != "" {
		filters.MediaType = &f.MediaType
	}
	if f.ScanRoot != "" {
		root, err := catalog.NormalizePath(f.ScanRoot)
		if err != nil {
			return nil, errors.NewInvalidPath("invalid scan root", f.ScanRoot)
		}
		filters.ScanRoot = &root
	}
	if f.Kind != "" {
		filters.Kind = &f.Kind
	}

	return db.SearchMetadata(ctx, e.db, filters, ClampLimit(limit, DefaultSearchLimit, MaxSearchLimit))
}

// FullTextSearch returns ranked hits for q.
func (e *Engine) FullTextSearch(ctx context.Context, q string, limit int) ([]catalog.SnippetResult, error) {
	if q == "" {
		return nil, errors.NewInvalidRequest("query is required")
	}
	return db.SearchFullText(ctx, e.db, q, ClampLimit(limit, DefaultFullTextLimit, MaxFullTextLimit))
}

// Runs returns recent scan runs, newest first.
func (e *Engine) Runs(ctx context.Context, limit int) ([]*catalog.ScanRun, error) {
	return db.ListRuns(ctx, e.db, ClampLimit(limit, DefaultRunsLimit, MaxRunsLimit))
}

// Run returns a single scan run by ID.
func (e *Engine) Run(ctx context.Context, id string) (*catalog.ScanRun, error) {
	if id == "" {
		return nil, errors.NewInvalidRequest("run id is required")
	}
	return db.GetRun(ctx, e.db, id)
}

// Stats summarizes the catalog.
func (e *Engine) Stats(ctx context.Context) (*catalog.Stats, error) {
	return db.CatalogStats(ctx, e.db)
}

// ClampLimit applies def to non-positive limits and caps the rest at max.
func ClampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
