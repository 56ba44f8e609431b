package catalog

// Kind classifies a cataloged path.
type Kind string

const (
	KindFile    Kind = "file"
	KindDir     Kind = "dir"
	KindSymlink Kind = "symlink"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindFile, KindDir, KindSymlink:
		return true
	}
	return false
}

// FileRecord is one row of the catalog: the last observed state of a path.
type FileRecord struct {
	// ID is the surrogate key, assigned monotonically by the store
	ID int64 `json:"id"`

	// Path is the absolute filesystem path
	Path string `json:"path"`

	// ContentHash is the hex SHA-256 of the file bytes (nil for dirs and symlinks)
	ContentHash *string `json:"content_hash,omitempty"`

	// SizeBytes is the byte length (0 for dirs and symlinks)
	SizeBytes int64 `json:"size_bytes"`

	// ModifiedAt is the Unix timestamp of the last observed modification
	ModifiedAt int64 `json:"modified_at"`

	Kind Kind `json:"kind"`

	// Extension is lowercase with a leading dot, e.g. ".md"
	Extension *string `json:"extension,omitempty"`

	MediaType *string `json:"media_type,omitempty"`

	// ScanRoot is the root directory of the scan that last wrote this record
	ScanRoot string `json:"scan_root"`

	// ContentSnippet is extracted text that feeds the full-text index.
	// It is not an authoritative copy of the file.
	ContentSnippet *string `json:"content_snippet,omitempty"`

	// DeletedAt is the Unix timestamp for soft delete (nullable)
	DeletedAt *int64 `json:"deleted_at,omitempty"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// IsLive reports whether the record has not been soft-deleted.
func (r *FileRecord) IsLive() bool {
	return r.DeletedAt == nil
}

// StatMatches reports whether the cheap stat facts (kind, size, mtime) equal the record's.
func (r *FileRecord) StatMatches(kind Kind, size, modifiedAt int64) bool {
	return r.Kind == kind && r.SizeBytes == size && r.ModifiedAt == modifiedAt
}

// SnippetResult is one ranked full-text hit.
type SnippetResult struct {
	Path       string  `json:"path"`
	SizeBytes  int64   `json:"size_bytes"`
	ModifiedAt int64   `json:"modified_at"`
	Extension  *string `json:"extension,omitempty"`
	MediaType  *string `json:"media_type,omitempty"`
	Snippet    string  `json:"snippet"`
	// Rank is the bm25 score; lower is more relevant.
	Rank float64 `json:"rank"`
}

// Stats summarizes the live catalog.
type Stats struct {
	LiveFiles    int    `json:"live_files"`
	LiveDirs     int    `json:"live_dirs"`
	LiveSymlinks int    `json:"live_symlinks"`
	TotalBytes   int64  `json:"total_bytes"`
	Tombstones   int    `json:"tombstones"`
	IndexedDocs  int    `json:"indexed_docs"`
	LastRunID    string `json:"last_run_id,omitempty"`
	LastRunAt    *int64 `json:"last_run_at,omitempty"`
}
