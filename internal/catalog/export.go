package catalog

// ExportHeader is the first line of a JSONL catalog export.
type ExportHeader struct {
	LibExport     bool   `json:"_lib_export"`
	SchemaVersion string `json:"schema_version"`
	ExportedAt    int64  `json:"exported_at"`
	Compressed    bool   `json:"compressed,omitempty"`
}

// ExportRecord is one FileRecord line in a JSONL export.
type ExportRecord struct {
	ID             int64   `json:"id"`
	Path           string  `json:"path"`
	ContentHash    *string `json:"content_hash"`
	SizeBytes      int64   `json:"size_bytes"`
	ModifiedAt     int64   `json:"modified_at"`
	Kind           Kind    `json:"kind"`
	Extension      *string `json:"extension"`
	MediaType      *string `json:"media_type"`
	ScanRoot       string  `json:"scan_root"`
	ContentSnippet *string `json:"content_snippet,omitempty"`
	CreatedAt      int64   `json:"created_at"`
	UpdatedAt      int64   `json:"updated_at"`
}

// ToExportRecord converts a FileRecord for export.
// Snippets are only carried when includeSnippets is set.
func ToExportRecord(r *FileRecord, includeSnippets bool) *ExportRecord {
	rec := &ExportRecord{
		ID:          r.ID,
		Path:        r.Path,
		ContentHash: r.ContentHash,
		SizeBytes:   r.SizeBytes,
		ModifiedAt:  r.ModifiedAt,
		Kind:        r.Kind,
		Extension:   r.Extension,
		MediaType:   r.MediaType,
		ScanRoot:    r.ScanRoot,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if includeSnippets {
		rec.ContentSnippet = r.ContentSnippet
	}
	return rec
}
