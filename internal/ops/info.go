package ops

import (
	"context"
	"encoding/json"

	"github.com/hpungsan/lib/internal/catalog"
	"github.com/hpungsan/lib/internal/errors"
)

// GetFileInfoInput contains parameters for the GetFileInfo operation.
type GetFileInfoInput struct {
	Path string // required
}

// GetFileInfoOutput is the live record at Path, or a not-found marker.
// A miss is a successful result, not an error.
type GetFileInfoOutput struct {
	Record *catalog.FileRecord
	Path   string
}

// Found reports whether a live record exists.
func (o *GetFileInfoOutput) Found() bool {
	return o.Record != nil
}

// MarshalJSON renders the record's fields, or {"error":"not found","path":...}.
func (o *GetFileInfoOutput) MarshalJSON() ([]byte, error) {
	if o.Record == nil {
		return json.Marshal(struct {
			Error string `json:"error"`
			Path  string `json:"path"`
		}{Error: "not found", Path: o.Path})
	}
	return json.Marshal(o.Record)
}

// GetFileInfo returns the catalog record for a single path.
func (s *Service) GetFileInfo(ctx context.Context, input GetFileInfoInput) (*GetFileInfoOutput, error) {
	path := cleanString(input.Path)
	if path == "" {
		return nil, errors.NewInvalidRequest("path is required")
	}

	rec, err := s.query.Lookup(ctx, path)
	if err != nil {
		return nil, err
	}
	return &GetFileInfoOutput{Record: rec, Path: path}, nil
}
