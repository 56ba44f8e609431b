package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/lib/internal/errors"
)

// Export file extensions.
const (
	ExtJSONL     = ".jsonl"
	ExtJSONLZstd = ".jsonl.zst"
)

// ValidateExportPath checks a destination for ExportCatalog:
// 1. Path traversal (.. sequences)
// 2. Extension (.jsonl, or .jsonl.zst when compressing)
// 3. The file must be DIRECTLY in exportsDir (no subdirectories)
// 4. Neither the parent directory nor the file may be a symlink
//
// Requiring the file to sit directly in exportsDir leaves no intermediate
// directory component to swap between validation and open; O_NOFOLLOW covers
// the final component.
func ValidateExportPath(path, exportsDir string, compress bool) error {
	if path == "" {
		return errors.NewInvalidRequest("path is required")
	}

	if containsTraversal(path) {
		return errors.NewInvalidPath("path must not contain directory traversal (..)", path)
	}

	cleaned := filepath.Clean(path)
	want := ExtJSONL
	if compress {
		want = ExtJSONLZstd
	}
	if !strings.HasSuffix(strings.ToLower(cleaned), want) {
		return errors.NewInvalidPath(fmt.Sprintf("path must have %s extension", want), path)
	}

	absPath, err := filepath.Abs(cleaned)
	if err != nil {
		return errors.NewInvalidPath(fmt.Sprintf("invalid path: %v", err), path)
	}

	allowed, err := resolveDir(exportsDir)
	if err != nil {
		return err
	}

	parentDir := filepath.Dir(absPath)
	if filepath.Clean(parentDir) != allowed {
		return errors.NewInvalidPath(
			fmt.Sprintf("file must be directly in the exports directory (no subdirectories); allowed: %s", allowed),
			path)
	}

	if info, err := os.Lstat(parentDir); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidPath("parent directory must not be a symlink", path)
	}
	if info, err := os.Lstat(absPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidPath("path must not be a symlink", path)
	}

	return nil
}

// resolveDir returns dir absolute and cleaned, with a symlinked dir resolved
// to its target.
func resolveDir(dir string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(dir))
	if err != nil {
		return "", errors.NewInternal(fmt.Errorf("invalid exports directory: %w", err))
	}
	if info, err := os.Lstat(abs); err == nil && info.Mode()&os.ModeSymlink != 0 {
		resolved, err := filepath.EvalSymlinks(abs)
		if err != nil {
			return "", errors.NewInternal(fmt.Errorf("cannot resolve exports directory: %w", err))
		}
		abs = resolved
	}
	return abs, nil
}

// containsTraversal checks if path contains ".." directory traversal.
func containsTraversal(path string) bool {
	for _, part := range strings.Split(path, string(filepath.Separator)) {
		if part == ".." {
			return true
		}
	}
	if filepath.Separator != '/' {
		for _, part := range strings.Split(path, "/") {
			if part == ".." {
				return true
			}
		}
	}
	return false
}
