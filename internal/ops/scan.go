package ops

import (
	"context"
	stderrors "errors"
	"io/fs"
	"os"

	"github.com/hpungsan/lib/internal/catalog"
	"github.com/hpungsan/lib/internal/errors"
)

// ScanDirectoryInput contains parameters for the ScanDirectory operation.
type ScanDirectoryInput struct {
	Path string // required, must be an existing directory
}

// ScanDirectoryOutput contains the result of a scan of one directory.
type ScanDirectoryOutput struct {
	Path  string           `json:"path"`
	RunID string           `json:"run_id"`
	Stats catalog.RunStats `json:"stats"`
}

// ScanDirectory runs a scan scoped to a single directory.
func (s *Service) ScanDirectory(ctx context.Context, input ScanDirectoryInput) (*ScanDirectoryOutput, error) {
	raw := cleanString(input.Path)
	if raw == "" {
		return nil, errors.NewInvalidRequest("path is required")
	}
	path, err := catalog.NormalizePath(raw)
	if err != nil {
		return nil, errors.NewInvalidPath("invalid path", raw)
	}

	info, err := os.Stat(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.NewInvalidPath("path does not exist", raw)
		}
		return nil, errors.NewInvalidPath(err.Error(), raw)
	}
	if !info.IsDir() {
		return nil, errors.NewInvalidPath("path is not a directory", raw)
	}

	s.logger.Info().Str("path", path).Msg("scan requested")
	res, err := s.scanner.Scan(ctx, []string{path})
	if err != nil {
		return nil, err
	}

	return &ScanDirectoryOutput{
		Path:  res.Roots[0],
		RunID: res.RunID,
		Stats: res.Stats,
	}, nil
}

// ScanRootsOutput contains the result of a scan of every configured root.
type ScanRootsOutput struct {
	Roots []string         `json:"roots"`
	RunID string           `json:"run_id"`
	Stats catalog.RunStats `json:"stats"`
}

// ScanRoots scans every configured root as one run.
func (s *Service) ScanRoots(ctx context.Context) (*ScanRootsOutput, error) {
	if len(s.cfg.ScanRoots) == 0 {
		return nil, errors.NewInvalidRequest("no scan roots configured")
	}

	s.logger.Info().Strs("roots", s.cfg.ScanRoots).Msg("scan of configured roots requested")
	res, err := s.scanner.Scan(ctx, s.cfg.ScanRoots)
	if err != nil {
		return nil, err
	}

	return &ScanRootsOutput{
		Roots: res.Roots,
		RunID: res.RunID,
		Stats: res.Stats,
	}, nil
}
