package ops

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/hpungsan/lib/internal/catalog"
	"github.com/hpungsan/lib/internal/db"
	"github.com/hpungsan/lib/internal/errors"
)

// ExportSchemaVersion is written into every export header.
const ExportSchemaVersion = "1.0"

// ExportInput contains parameters for the ExportCatalog operation.
type ExportInput struct {
	Path            string // optional, default: <baseDir>/exports/catalog-<timestamp>.jsonl[.zst]
	Compress        bool   // zstd-compress the whole stream
	IncludeSnippets bool
}

// ExportOutput contains the result of the ExportCatalog operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Count      int    `json:"count"`
	ExportedAt int64  `json:"exported_at"`
	Compressed bool   `json:"compressed"`
}

// ExportCatalog writes every live record to a JSONL file: a header line, then
// one record per line in path order. The file is written to a temp name and
// renamed into place, so an existing export survives a failed one.
func (s *Service) ExportCatalog(ctx context.Context, input ExportInput) (*ExportOutput, error) {
	now := time.Now()
	exportedAt := now.Unix()

	exportPath := cleanString(input.Path)
	if exportPath == "" {
		exportPath = s.defaultExportPath(input.Compress, now)
	}
	if err := ValidateExportPath(exportPath, s.ExportsDir(), input.Compress); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(exportPath), 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := exportPath + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	count, err := s.writeExport(ctx, file, input, exportedAt)
	if err != nil {
		return nil, err
	}

	if err := file.Sync(); err != nil {
		return nil, errors.NewInternal(err)
	}
	// Close before rename (required on Windows; fine elsewhere).
	if err := file.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlink at the destination.
	if info, err := os.Lstat(exportPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return nil, errors.NewInvalidPath("export path is a symlink", exportPath)
	}

	// On Windows os.Rename fails when the destination exists. Fail and keep the
	// existing file rather than delete-then-rename.
	if err := os.Rename(tempPath, exportPath); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(exportPath); statErr == nil {
				return nil, errors.NewConflict("export destination already exists; choose a new path or delete the existing file")
			}
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	s.logger.Info().Str("path", exportPath).Int("count", count).Bool("compressed", input.Compress).Msg("catalog exported")
	return &ExportOutput{
		Path:       exportPath,
		Count:      count,
		ExportedAt: exportedAt,
		Compressed: input.Compress,
	}, nil
}

// writeExport streams the header and live records to w, through zstd when asked.
func (s *Service) writeExport(ctx context.Context, w io.Writer, input ExportInput, exportedAt int64) (int, error) {
	var zw *zstd.Encoder
	if input.Compress {
		var err error
		zw, err = zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return 0, errors.NewInternal(fmt.Errorf("failed to create zstd writer: %w", err))
		}
		defer func() {
			if zw != nil {
				zw.Close()
			}
		}()
		w = zw
	}

	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)

	header := catalog.ExportHeader{
		LibExport:     true,
		SchemaVersion: ExportSchemaVersion,
		ExportedAt:    exportedAt,
		Compressed:    input.Compress,
	}
	if err := enc.Encode(header); err != nil {
		return 0, errors.NewInternal(err)
	}

	count := 0
	err := db.StreamLive(ctx, s.db, func(r *catalog.FileRecord) error {
		if ctx.Err() != nil {
			return errors.NewCancelled("export")
		}
		if err := enc.Encode(catalog.ToExportRecord(r, input.IncludeSnippets)); err != nil {
			return errors.NewInternal(err)
		}
		count++
		return nil
	})
	if err != nil {
		return 0, err
	}

	if err := bw.Flush(); err != nil {
		return 0, errors.NewInternal(err)
	}
	if zw != nil {
		err := zw.Close()
		zw = nil
		if err != nil {
			return 0, errors.NewInternal(fmt.Errorf("failed to finish zstd stream: %w", err))
		}
	}
	return count, nil
}

// defaultExportPath is <baseDir>/exports/catalog-<timestamp>.jsonl[.zst].
func (s *Service) defaultExportPath(compress bool, now time.Time) string {
	ext := ExtJSONL
	if compress {
		ext = ExtJSONLZstd
	}
	filename := fmt.Sprintf("catalog-%s%s", now.Format("2006-01-02T150405"), ext)
	return filepath.Join(s.ExportsDir(), filename)
}
