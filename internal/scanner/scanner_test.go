package scanner

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/lib/internal/catalog"
	"github.com/hpungsan/lib/internal/config"
	"github.com/hpungsan/lib/internal/db"
	"github.com/hpungsan/lib/internal/errors"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func setupScanner(t *testing.T, mutate func(*config.Config)) (*Scanner, *sql.DB) {
	t.Helper()
	database, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	cfg.ScanWorkers = 4
	if mutate != nil {
		mutate(cfg)
	}
	return New(database, cfg, zerolog.Nop()), database
}

func writeFile(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func mkdir(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(path, 0755))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestScan_Scenario(t *testing.T) {
	s, database := setupScanner(t, nil)
	ctx := context.Background()
	root := t.TempDir()
	file := filepath.Join(root, "note.txt")

	res, err := s.Scan(ctx, []string{root})
	require.NoError(t, err)
	require.Equal(t, catalog.RunStats{}, res.Stats)

	writeFile(t, file, "0123456789", baseTime)
	res, err = s.Scan(ctx, []string{root})
	require.NoError(t, err)
	require.Equal(t, catalog.RunStats{Scanned: 1, New: 1}, res.Stats)

	writeFile(t, file, "abcdefghij", baseTime.Add(time.Minute))
	res, err = s.Scan(ctx, []string{root})
	require.NoError(t, err)
	require.Equal(t, catalog.RunStats{Scanned: 1, Updated: 1}, res.Stats)

	require.NoError(t, os.Remove(file))
	res, err = s.Scan(ctx, []string{root})
	require.NoError(t, err)
	require.Equal(t, catalog.RunStats{Deleted: 1}, res.Stats)

	_, err = db.GetByPath(ctx, database, file)
	require.True(t, errors.Is(err, errors.ErrNotFound), "got %v", err)

	runs, err := db.ListRuns(ctx, database, 10)
	require.NoError(t, err)
	require.Len(t, runs, 4)
	for _, run := range runs {
		require.Equal(t, catalog.RunCompleted, run.Status)
	}
	require.Equal(t, res.RunID, runs[0].ID)
	require.Equal(t, 1, runs[0].FilesDeleted)
}

func TestScan_Idempotent(t *testing.T) {
	s, _ := setupScanner(t, nil)
	ctx := context.Background()
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "a.txt"), "alpha", baseTime)
	writeFile(t, filepath.Join(root, "docs", "b.md"), "# Beta\n\nbody", baseTime)
	writeFile(t, filepath.Join(root, "docs", "deep", "c.go"), "package c", baseTime)
	mkdir(t, filepath.Join(root, "docs", "deep"), baseTime)
	mkdir(t, filepath.Join(root, "docs"), baseTime)
	require.NoError(t, os.Symlink(filepath.Join(root, "a.txt"), filepath.Join(root, "link")))

	first, err := s.Scan(ctx, []string{root})
	require.NoError(t, err)
	// a.txt, docs, docs/b.md, docs/deep, docs/deep/c.go, link
	require.Equal(t, catalog.RunStats{Scanned: 6, New: 6}, first.Stats)

	second, err := s.Scan(ctx, []string{root})
	require.NoError(t, err)
	require.Equal(t, catalog.RunStats{Scanned: 6}, second.Stats)
	require.NotEqual(t, first.RunID, second.RunID)
}

func TestScan_RecordsMetadata(t *testing.T) {
	s, database := setupScanner(t, nil)
	ctx := context.Background()
	root := t.TempDir()
	path := filepath.Join(root, "Report.MD")
	writeFile(t, path, "# Quarterly\n\nRevenue grew.", baseTime)

	_, err := s.Scan(ctx, []string{root})
	require.NoError(t, err)

	rec, err := db.GetByPath(ctx, database, path)
	require.NoError(t, err)
	require.Equal(t, catalog.KindFile, rec.Kind)
	require.Equal(t, int64(len("# Quarterly\n\nRevenue grew.")), rec.SizeBytes)
	require.Equal(t, baseTime.Unix(), rec.ModifiedAt)
	require.Equal(t, ".md", *rec.Extension)
	require.Equal(t, "text/markdown", *rec.MediaType)
	require.Equal(t, root, rec.ScanRoot)
	// sha256("# Quarterly\n\nRevenue grew.") is 64 hex chars
	require.Len(t, *rec.ContentHash, 64)
	require.NotNil(t, rec.ContentSnippet)
	require.Contains(t, *rec.ContentSnippet, "Quarterly")
	require.NotContains(t, *rec.ContentSnippet, "#")
}

func TestScan_SymlinkNotFollowed(t *testing.T) {
	s, database := setupScanner(t, nil)
	ctx := context.Background()
	root := t.TempDir()
	outside := t.TempDir()
	writeFile(t, filepath.Join(outside, "secret.txt"), "outside the root", baseTime)

	link := filepath.Join(root, "elsewhere")
	require.NoError(t, os.Symlink(outside, link))

	res, err := s.Scan(ctx, []string{root})
	require.NoError(t, err)
	require.Equal(t, 1, res.Stats.Scanned)

	rec, err := db.GetByPath(ctx, database, link)
	require.NoError(t, err)
	require.Equal(t, catalog.KindSymlink, rec.Kind)
	require.Nil(t, rec.ContentHash)
	require.Nil(t, rec.ContentSnippet)
	require.Equal(t, int64(0), rec.SizeBytes)

	_, err = db.GetByPath(ctx, database, filepath.Join(link, "secret.txt"))
	require.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestScan_DirectoriesHaveNoHash(t *testing.T) {
	s, database := setupScanner(t, nil)
	ctx := context.Background()
	root := t.TempDir()
	dir := filepath.Join(root, "sub.d")
	mkdir(t, dir, baseTime)

	_, err := s.Scan(ctx, []string{root})
	require.NoError(t, err)

	rec, err := db.GetByPath(ctx, database, dir)
	require.NoError(t, err)
	require.Equal(t, catalog.KindDir, rec.Kind)
	require.Nil(t, rec.ContentHash)
	require.Nil(t, rec.Extension)
	require.Equal(t, int64(0), rec.SizeBytes)
}

func TestScan_MtimeOnlyChangeIsUpdate(t *testing.T) {
	s, database := setupScanner(t, nil)
	ctx := context.Background()
	root := t.TempDir()
	path := filepath.Join(root, "same.txt")
	writeFile(t, path, "unchanged bytes", baseTime)

	_, err := s.Scan(ctx, []string{root})
	require.NoError(t, err)
	before, err := db.GetByPath(ctx, database, path)
	require.NoError(t, err)

	require.NoError(t, os.Chtimes(path, baseTime.Add(time.Hour), baseTime.Add(time.Hour)))
	res, err := s.Scan(ctx, []string{root})
	require.NoError(t, err)
	require.Equal(t, catalog.RunStats{Scanned: 1, Updated: 1}, res.Stats)

	after, err := db.GetByPath(ctx, database, path)
	require.NoError(t, err)
	require.Equal(t, *before.ContentHash, *after.ContentHash)
	require.Equal(t, before.ID, after.ID)
	require.Equal(t, baseTime.Add(time.Hour).Unix(), after.ModifiedAt)
}

func TestScan_SnippetRules(t *testing.T) {
	s, database := setupScanner(t, func(c *config.Config) { c.ContentMaxSizeKB = 1 })
	ctx := context.Background()
	root := t.TempDir()

	html := filepath.Join(root, "page.html")
	writeFile(t, html, `<html><head><style>p{}</style><script>var x=1;</script></head><body><p>Visible   words</p></body></html>`, baseTime)
	binary := filepath.Join(root, "blob.txt")
	writeFile(t, binary, "abc\x00def", baseTime)
	big := filepath.Join(root, "big.txt")
	writeFile(t, big, strings.Repeat("x", 2048), baseTime)
	image := filepath.Join(root, "photo.png")
	writeFile(t, image, "not really a png", baseTime)

	_, err := s.Scan(ctx, []string{root})
	require.NoError(t, err)

	rec, err := db.GetByPath(ctx, database, html)
	require.NoError(t, err)
	require.NotNil(t, rec.ContentSnippet)
	require.Equal(t, "Visible words", *rec.ContentSnippet)

	for _, p := range []string{binary, big, image} {
		rec, err := db.GetByPath(ctx, database, p)
		require.NoError(t, err)
		require.Nil(t, rec.ContentSnippet, "expected no snippet for %s", p)
		require.NotNil(t, rec.ContentHash, "expected a hash for %s", p)
	}
}

func TestScan_ExtractionDisabled(t *testing.T) {
	s, database := setupScanner(t, func(c *config.Config) { c.ContentExtractionEnabled = false })
	ctx := context.Background()
	root := t.TempDir()
	path := filepath.Join(root, "plain.txt")
	writeFile(t, path, "searchable words", baseTime)

	_, err := s.Scan(ctx, []string{root})
	require.NoError(t, err)

	rec, err := db.GetByPath(ctx, database, path)
	require.NoError(t, err)
	require.Nil(t, rec.ContentSnippet)
	require.NotNil(t, rec.ContentHash)
}

func TestScan_ExcludePatterns(t *testing.T) {
	s, database := setupScanner(t, func(c *config.Config) {
		c.ExcludePatterns = []string{".git/", "node_modules/", "*.tmp"}
	})
	ctx := context.Background()
	root := t.TempDir()

	writeFile(t, filepath.Join(root, ".git", "HEAD"), "ref", baseTime)
	writeFile(t, filepath.Join(root, "app", "node_modules", "x", "index.js"), "js", baseTime)
	writeFile(t, filepath.Join(root, "scratch.tmp"), "tmp", baseTime)
	keep := filepath.Join(root, "app", "main.go")
	writeFile(t, keep, "package main", baseTime)

	res, err := s.Scan(ctx, []string{root})
	require.NoError(t, err)
	// app and app/main.go
	require.Equal(t, 2, res.Stats.Scanned)

	_, err = db.GetByPath(ctx, database, keep)
	require.NoError(t, err)
	_, err = db.GetByPath(ctx, database, filepath.Join(root, ".git"))
	require.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestScan_MissingRootFailsRun(t *testing.T) {
	s, database := setupScanner(t, nil)
	ctx := context.Background()
	missing := filepath.Join(t.TempDir(), "nope")

	_, err := s.Scan(ctx, []string{missing})
	require.Error(t, err)
	require.True(t, errors.Is(err, errors.ErrScanTraversal), "got %v", err)

	libErr, ok := errors.As(err)
	require.True(t, ok)
	runID, _ := libErr.Details["run_id"].(string)
	require.NotEmpty(t, runID)

	run, err := db.GetRun(ctx, database, runID)
	require.NoError(t, err)
	require.Equal(t, catalog.RunFailed, run.Status)
	require.NotNil(t, run.Notes)
	require.Contains(t, *run.Notes, "nope")
	require.NotNil(t, run.FinishedAt)
}

func TestScan_RootIsFile(t *testing.T) {
	s, _ := setupScanner(t, nil)
	file := filepath.Join(t.TempDir(), "f.txt")
	writeFile(t, file, "x", baseTime)

	_, err := s.Scan(context.Background(), []string{file})
	require.True(t, errors.Is(err, errors.ErrScanTraversal), "got %v", err)
}

func TestScan_NoRoots(t *testing.T) {
	s, database := setupScanner(t, nil)

	_, err := s.Scan(context.Background(), nil)
	require.True(t, errors.Is(err, errors.ErrInvalidRequest), "got %v", err)

	runs, err := db.ListRuns(context.Background(), database, 10)
	require.NoError(t, err)
	require.Empty(t, runs)
}

func TestScan_CancelledContext(t *testing.T) {
	s, database := setupScanner(t, nil)
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "a", baseTime)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Scan(ctx, []string{root})
	require.Error(t, err)

	runs, err := db.ListRuns(context.Background(), database, 10)
	require.NoError(t, err)
	// CreateRun itself may observe the cancellation; if a run exists it must be failed.
	for _, run := range runs {
		require.Equal(t, catalog.RunFailed, run.Status)
	}
}

func TestScan_UnreadableDirectoryKeepsRecords(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	s, database := setupScanner(t, nil)
	ctx := context.Background()
	root := t.TempDir()
	locked := filepath.Join(root, "locked")
	inner := filepath.Join(locked, "inner.txt")
	writeFile(t, inner, "still here", baseTime)

	_, err := s.Scan(ctx, []string{root})
	require.NoError(t, err)

	require.NoError(t, os.Chmod(locked, 0000))
	t.Cleanup(func() { os.Chmod(locked, 0755) })

	res, err := s.Scan(ctx, []string{root})
	require.NoError(t, err)
	require.Equal(t, 0, res.Stats.Deleted)

	_, err = db.GetByPath(ctx, database, inner)
	require.NoError(t, err)
}

func TestScan_MultipleRoots(t *testing.T) {
	s, database := setupScanner(t, nil)
	ctx := context.Background()
	rootA := t.TempDir()
	rootB := t.TempDir()
	writeFile(t, filepath.Join(rootA, "a.txt"), "a", baseTime)
	writeFile(t, filepath.Join(rootB, "b.txt"), "b", baseTime)

	res, err := s.Scan(ctx, []string{rootA, rootB, rootA})
	require.NoError(t, err)
	require.Equal(t, []string{rootA, rootB}, res.Roots)
	require.Equal(t, catalog.RunStats{Scanned: 2, New: 2}, res.Stats)

	// Scanning only rootA never deletes rootB's records
	require.NoError(t, os.Remove(filepath.Join(rootA, "a.txt")))
	res, err = s.Scan(ctx, []string{rootA})
	require.NoError(t, err)
	require.Equal(t, catalog.RunStats{Deleted: 1}, res.Stats)

	_, err = db.GetByPath(ctx, database, filepath.Join(rootB, "b.txt"))
	require.NoError(t, err)
}

func TestScan_FullTextIndexFollowsScans(t *testing.T) {
	s, database := setupScanner(t, nil)
	ctx := context.Background()
	root := t.TempDir()
	path := filepath.Join(root, "memo.txt")
	writeFile(t, path, "the zebra crossing memo", baseTime)

	_, err := s.Scan(ctx, []string{root})
	require.NoError(t, err)

	hits, err := db.SearchFullText(ctx, database, `"zebra crossing"`, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, path, hits[0].Path)

	require.NoError(t, os.Remove(path))
	_, err = s.Scan(ctx, []string{root})
	require.NoError(t, err)

	hits, err = db.SearchFullText(ctx, database, `"zebra crossing"`, 10)
	require.NoError(t, err)
	require.Empty(t, hits)
}

func TestWithBusyRetry(t *testing.T) {
	ctx := context.Background()

	calls := 0
	err := withBusyRetry(ctx, func() error {
		calls++
		if calls < 3 {
			return errors.NewStorageBusy(nil)
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)

	calls = 0
	err = withBusyRetry(ctx, func() error {
		calls++
		return errors.NewStorageBusy(nil)
	})
	require.True(t, errors.Is(err, errors.ErrStorageBusy))
	require.Equal(t, busyAttempts, calls)

	calls = 0
	err = withBusyRetry(ctx, func() error {
		calls++
		return errors.NewInternal(nil)
	})
	require.True(t, errors.Is(err, errors.ErrInternal))
	require.Equal(t, 1, calls)
}

func TestScan_SymlinkedRootKeepsLinkPaths(t *testing.T) {
	s, database := setupScanner(t, nil)
	ctx := context.Background()
	dir := t.TempDir()
	target := filepath.Join(dir, "real")
	link := filepath.Join(dir, "link")
	writeFile(t, filepath.Join(target, "a.txt"), "alpha", baseTime)
	require.NoError(t, os.Symlink(target, link))

	res, err := s.Scan(ctx, []string{link})
	require.NoError(t, err)
	require.Equal(t, []string{link}, res.Roots)
	require.Equal(t, catalog.RunStats{Scanned: 1, New: 1}, res.Stats)

	rec, err := db.GetByPath(ctx, database, filepath.Join(link, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, link, rec.ScanRoot)
	require.NotNil(t, rec.ContentHash)

	_, err = db.GetByPath(ctx, database, filepath.Join(target, "a.txt"))
	require.True(t, errors.Is(err, errors.ErrNotFound), "got %v", err)

	res, err = s.Scan(ctx, []string{link})
	require.NoError(t, err)
	require.Equal(t, catalog.RunStats{Scanned: 1}, res.Stats)

	require.NoError(t, os.Remove(filepath.Join(target, "a.txt")))
	res, err = s.Scan(ctx, []string{link})
	require.NoError(t, err)
	require.Equal(t, catalog.RunStats{Deleted: 1}, res.Stats)
}

func TestScan_NestedRootsWalkedOnce(t *testing.T) {
	s, _ := setupScanner(t, nil)
	ctx := context.Background()
	root := t.TempDir()
	sub := filepath.Join(root, "sub")
	writeFile(t, filepath.Join(root, "a.txt"), "a", baseTime)
	writeFile(t, filepath.Join(sub, "b.txt"), "b", baseTime)

	res, err := s.Scan(ctx, []string{sub, root})
	require.NoError(t, err)
	require.Equal(t, []string{root}, res.Roots)
	// a.txt, sub, sub/b.txt
	require.Equal(t, catalog.RunStats{Scanned: 3, New: 3}, res.Stats)
}

func TestScan_ScopedScanKeepsConfiguredRoot(t *testing.T) {
	root := t.TempDir()
	s, database := setupScanner(t, func(c *config.Config) {
		c.ScanRoots = []string{root}
	})
	ctx := context.Background()
	sub := filepath.Join(root, "sub")
	changed := filepath.Join(sub, "b.txt")
	writeFile(t, changed, "b", baseTime)

	_, err := s.Scan(ctx, []string{root})
	require.NoError(t, err)

	writeFile(t, changed, "b, edited", baseTime.Add(time.Minute))
	added := filepath.Join(sub, "c.txt")
	writeFile(t, added, "c", baseTime)

	res, err := s.Scan(ctx, []string{sub})
	require.NoError(t, err)
	require.Equal(t, []string{sub}, res.Roots)

	for _, path := range []string{changed, added} {
		rec, err := db.GetByPath(ctx, database, path)
		require.NoError(t, err)
		require.Equal(t, root, rec.ScanRoot, path)
	}
}

func TestNormalizeRoots(t *testing.T) {
	base := t.TempDir()
	a := filepath.Join(base, "a")
	ab := filepath.Join(base, "a", "b")
	abc := filepath.Join(base, "abc")

	tests := []struct {
		name  string
		roots []string
		want  []string
	}{
		{"duplicates", []string{a, a + "/", a}, []string{a}},
		{"nested dropped", []string{ab, a}, []string{a}},
		{"sibling prefix kept", []string{a, abc}, []string{a, abc}},
		{"unclean path", []string{filepath.Join(ab, "..")}, []string{a}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeRoots(tt.roots)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestScan_ReadersNotBlocked(t *testing.T) {
	s, database := setupScanner(t, nil)
	ctx := context.Background()
	root := t.TempDir()

	const fileCount = 300
	for i := 0; i < fileCount; i++ {
		dir := filepath.Join(root, fmt.Sprintf("d%02d", i%20))
		writeFile(t, filepath.Join(dir, fmt.Sprintf("f%03d.txt", i)), fmt.Sprintf("shared body number %d", i), baseTime)
	}
	watched := filepath.Join(root, "d00", "f000.txt")

	done := make(chan error, 1)
	go func() {
		_, err := s.Scan(ctx, []string{root})
		done <- err
	}()

	reads := 0
	lastLive := 0
	var scanErr error
	for finished := false; !finished; {
		select {
		case scanErr = <-done:
			finished = true
		default:
		}

		_, err := db.GetByPath(ctx, database, watched)
		if err != nil && !errors.Is(err, errors.ErrNotFound) {
			t.Fatalf("GetByPath during scan: %v", err)
		}

		ext := ".txt"
		if _, err := db.SearchMetadata(ctx, database, db.SearchFilters{Extension: &ext}, 50); err != nil {
			t.Fatalf("SearchMetadata during scan: %v", err)
		}
		if _, err := db.SearchFullText(ctx, database, "shared", 10); err != nil {
			t.Fatalf("SearchFullText during scan: %v", err)
		}

		// Each read sees committed state, so the live count never goes back.
		stats, err := db.CatalogStats(ctx, database)
		if err != nil {
			t.Fatalf("CatalogStats during scan: %v", err)
		}
		if stats.LiveFiles < lastLive {
			t.Fatalf("live files went from %d to %d", lastLive, stats.LiveFiles)
		}
		lastLive = stats.LiveFiles
		reads++
	}

	require.NoError(t, scanErr)
	require.Greater(t, reads, 0)

	stats, err := db.CatalogStats(ctx, database)
	require.NoError(t, err)
	require.Equal(t, fileCount, stats.LiveFiles)

	hits, err := db.SearchFullText(ctx, database, "shared", fileCount+10)
	require.NoError(t, err)
	require.Len(t, hits, fileCount)
}
