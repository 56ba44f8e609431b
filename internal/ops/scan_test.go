package ops

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hpungsan/lib/internal/catalog"
	"github.com/hpungsan/lib/internal/config"
	"github.com/hpungsan/lib/internal/errors"
)

func TestScanDirectory_Stats(t *testing.T) {
	svc, root := setupService(t, nil)
	writeFile(t, filepath.Join(root, "a.txt"), "a")
	writeFile(t, filepath.Join(root, "sub", "b.txt"), "b")

	ctx := context.Background()
	out, err := svc.ScanDirectory(ctx, ScanDirectoryInput{Path: root})
	if err != nil {
		t.Fatalf("ScanDirectory failed: %v", err)
	}
	if out.Path != root {
		t.Errorf("Path = %q, want %q", out.Path, root)
	}
	if out.RunID == "" {
		t.Error("RunID should be set")
	}
	want := catalog.RunStats{Scanned: 3, New: 3}
	if out.Stats != want {
		t.Errorf("Stats = %+v, want %+v", out.Stats, want)
	}

	out, err = svc.ScanDirectory(ctx, ScanDirectoryInput{Path: root})
	if err != nil {
		t.Fatalf("second ScanDirectory failed: %v", err)
	}
	if want := (catalog.RunStats{Scanned: 3}); out.Stats != want {
		t.Errorf("rescan Stats = %+v, want %+v", out.Stats, want)
	}
}

func TestScanDirectory_InvalidPaths(t *testing.T) {
	svc, root := setupService(t, nil)
	file := filepath.Join(root, "plain.txt")
	writeFile(t, file, "x")

	tests := []struct {
		name    string
		path    string
		message string
	}{
		{"empty", "", "path is required"},
		{"missing", filepath.Join(root, "nope"), "path does not exist"},
		{"file", file, "path is not a directory"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.ScanDirectory(context.Background(), ScanDirectoryInput{Path: tc.path})
			libErr, ok := errors.As(err)
			if !ok || libErr.Code != errors.ErrInvalidRequest {
				t.Fatalf("expected ErrInvalidRequest, got: %v", err)
			}
			if libErr.Message != tc.message {
				t.Errorf("Message = %q, want %q", libErr.Message, tc.message)
			}
		})
	}

	runs, err := svc.QueryRuns(context.Background(), QueryRunsInput{})
	if err != nil {
		t.Fatalf("QueryRuns failed: %v", err)
	}
	if runs.Count != 0 {
		t.Errorf("rejected scans recorded %d runs", runs.Count)
	}
}

func TestScanRoots(t *testing.T) {
	rootA, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("EvalSymlinks failed: %v", err)
	}
	rootB, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("EvalSymlinks failed: %v", err)
	}
	writeFile(t, filepath.Join(rootA, "a.txt"), "a")
	writeFile(t, filepath.Join(rootB, "b.txt"), "b")

	svc, _ := setupService(t, func(c *config.Config) { c.ScanRoots = []string{rootA, rootB} })

	out, err := svc.ScanRoots(context.Background())
	if err != nil {
		t.Fatalf("ScanRoots failed: %v", err)
	}
	if len(out.Roots) != 2 {
		t.Errorf("Roots = %v, want 2 roots", out.Roots)
	}
	if out.Stats.New != 2 {
		t.Errorf("Stats.New = %d, want 2", out.Stats.New)
	}
}

func TestScanRoots_NoneConfigured(t *testing.T) {
	svc, _ := setupService(t, nil)

	_, err := svc.ScanRoots(context.Background())
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got: %v", err)
	}
}

func TestScanRoots_MissingRootFailsRun(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "gone")
	svc, _ := setupService(t, func(c *config.Config) { c.ScanRoots = []string{missing} })

	_, err := svc.ScanRoots(context.Background())
	if !errors.Is(err, errors.ErrScanTraversal) {
		t.Fatalf("expected ErrScanTraversal, got: %v", err)
	}

	runs, err := svc.QueryRuns(context.Background(), QueryRunsInput{})
	if err != nil {
		t.Fatalf("QueryRuns failed: %v", err)
	}
	if runs.Count != 1 || runs.Runs[0].Status != catalog.RunFailed {
		t.Errorf("expected one failed run, got %+v", runs.Runs)
	}
}

func TestCatalogStats(t *testing.T) {
	svc, root := setupService(t, nil)
	writeFile(t, filepath.Join(root, "a.txt"), "hello")
	writeFile(t, filepath.Join(root, "dir", "b.txt"), "world!")
	if err := os.Symlink(filepath.Join(root, "a.txt"), filepath.Join(root, "link")); err != nil {
		t.Fatalf("Symlink failed: %v", err)
	}

	ctx := context.Background()
	scan, err := svc.ScanDirectory(ctx, ScanDirectoryInput{Path: root})
	if err != nil {
		t.Fatalf("ScanDirectory failed: %v", err)
	}

	out, err := svc.CatalogStats(ctx)
	if err != nil {
		t.Fatalf("CatalogStats failed: %v", err)
	}
	if out.LiveFiles != 2 || out.LiveDirs != 1 || out.LiveSymlinks != 1 {
		t.Errorf("live counts = %d/%d/%d, want 2/1/1", out.LiveFiles, out.LiveDirs, out.LiveSymlinks)
	}
	if out.TotalBytes != 11 {
		t.Errorf("TotalBytes = %d, want 11", out.TotalBytes)
	}
	if out.TotalSize != "11 B" {
		t.Errorf("TotalSize = %q, want %q", out.TotalSize, "11 B")
	}
	if out.LastRunID != scan.RunID {
		t.Errorf("LastRunID = %q, want %q", out.LastRunID, scan.RunID)
	}
	if !out.FullTextSearchEnabled {
		t.Error("FullTextSearchEnabled should default to true")
	}
}

func TestScanDirectory_ThroughSymlink(t *testing.T) {
	svc, root := setupService(t, nil)
	target := filepath.Join(root, "real")
	link := filepath.Join(root, "link")
	writeFile(t, filepath.Join(target, "a.txt"), "alpha")
	if err := os.Symlink(target, link); err != nil {
		t.Fatalf("Symlink failed: %v", err)
	}

	ctx := context.Background()
	out, err := svc.ScanDirectory(ctx, ScanDirectoryInput{Path: link})
	if err != nil {
		t.Fatalf("ScanDirectory failed: %v", err)
	}
	if out.Path != link {
		t.Errorf("Path = %q, want %q", out.Path, link)
	}
	if want := (catalog.RunStats{Scanned: 1, New: 1}); out.Stats != want {
		t.Errorf("Stats = %+v, want %+v", out.Stats, want)
	}

	info, err := svc.GetFileInfo(ctx, GetFileInfoInput{Path: filepath.Join(link, "a.txt")})
	if err != nil {
		t.Fatalf("GetFileInfo failed: %v", err)
	}
	if !info.Found() {
		t.Fatal("record under the link path should be found")
	}

	res, err := svc.SearchFiles(ctx, SearchFilesInput{ScanRoot: link})
	if err != nil {
		t.Fatalf("SearchFiles failed: %v", err)
	}
	if res.Count != 1 {
		t.Errorf("Count = %d, want 1", res.Count)
	}
}
