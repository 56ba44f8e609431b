// Package scanner walks directory trees and reconciles the catalog with what it finds.
package scanner

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/hpungsan/lib/internal/catalog"
	"github.com/hpungsan/lib/internal/config"
	"github.com/hpungsan/lib/internal/db"
	"github.com/hpungsan/lib/internal/errors"
)

const (
	maxWorkers   = 16
	busyAttempts = 3
	busyBackoff  = 50 * time.Millisecond
)

// Scanner performs incremental scans. It holds no state between scans, so a
// single Scanner may be reused, but two scans should not run at once.
type Scanner struct {
	db       *sql.DB
	cfg      *config.Config
	logger   zerolog.Logger
	exclude  *excluder
	workers  int
	maxBytes int64
}

// Result summarizes a completed scan.
type Result struct {
	RunID    string           `json:"run_id"`
	Roots    []string         `json:"roots"`
	Stats    catalog.RunStats `json:"stats"`
	Duration time.Duration    `json:"-"`
}

// New creates a Scanner. A nil cfg uses the defaults.
func New(database *sql.DB, cfg *config.Config, logger zerolog.Logger) *Scanner {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	workers := cfg.ScanWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > maxWorkers {
		workers = maxWorkers
	}
	return &Scanner{
		db:       database,
		cfg:      cfg,
		logger:   logger.With().Str("component", "scanner").Logger(),
		exclude:  newExcluder(cfg.ExcludePatterns),
		workers:  workers,
		maxBytes: cfg.ContentMaxBytes(),
	}
}

// counters are shared by the walker and the hashing pool.
type counters struct {
	scanned atomic.Int64
	new     atomic.Int64
	updated atomic.Int64
	deleted atomic.Int64
	hashed  atomic.Int64
}

func (c *counters) stats() catalog.RunStats {
	return catalog.RunStats{
		Scanned: int(c.scanned.Load()),
		New:     int(c.new.Load()),
		Updated: int(c.updated.Load()),
		Deleted: int(c.deleted.Load()),
	}
}

// pass is the bookkeeping for one scan across all of its roots.
type pass struct {
	counters

	mu       sync.Mutex
	observed map[string]struct{}
	// skipped holds paths (and directories) that could not be read; records
	// at or under them are never soft-deleted by this pass.
	skipped []string
	known   map[string]db.LiveEntry
}

func (p *pass) observe(path string) {
	p.mu.Lock()
	p.observed[path] = struct{}{}
	p.mu.Unlock()
}

func (p *pass) skip(path string) {
	p.mu.Lock()
	p.skipped = append(p.skipped, path)
	p.mu.Unlock()
}

func (p *pass) protected(path string) bool {
	for _, dir := range p.skipped {
		if catalog.IsUnder(path, dir) {
			return true
		}
	}
	return false
}

// Scan reconciles the catalog with the trees under roots.
// A run is recorded for every call that gets past argument checks, and it is
// finished exactly once: completed on success, failed (with the error as notes)
// otherwise. Failures are returned as SCAN_TRAVERSAL; work already committed
// is kept.
func (s *Scanner) Scan(ctx context.Context, roots []string) (*Result, error) {
	normalized, err := normalizeRoots(roots)
	if err != nil {
		return nil, err
	}

	run, err := db.CreateRun(ctx, s.db, normalized)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	log := s.logger.With().Str("run_id", run.ID).Logger()
	log.Info().Strs("roots", normalized).Int("workers", s.workers).Msg("scan started")

	p := &pass{
		observed: make(map[string]struct{}),
		known:    make(map[string]db.LiveEntry),
	}

	scanErr := s.scan(ctx, log, p, normalized)
	stats := p.stats()

	if scanErr != nil {
		notes := scanErr.Error()
		// The caller's context may be what failed; the terminal write must still land.
		if err := db.CompleteRun(context.WithoutCancel(ctx), s.db, run.ID, stats, catalog.RunFailed, &notes); err != nil {
			log.Error().Err(err).Msg("failed to record scan failure")
		}
		log.Error().Err(scanErr).
			Int("scanned", stats.Scanned).
			Dur("elapsed", time.Since(started)).
			Msg("scan failed")
		return nil, errors.NewScanTraversal(run.ID, scanErr)
	}

	if err := db.CompleteRun(ctx, s.db, run.ID, stats, catalog.RunCompleted, nil); err != nil {
		return nil, err
	}

	duration := time.Since(started)
	log.Info().
		Int("scanned", stats.Scanned).
		Int("new", stats.New).
		Int("updated", stats.Updated).
		Int("deleted", stats.Deleted).
		Str("hashed", humanize.Bytes(uint64(p.hashed.Load()))).
		Dur("elapsed", duration).
		Msg("scan completed")

	return &Result{
		RunID:    run.ID,
		Roots:    normalized,
		Stats:    stats,
		Duration: duration,
	}, nil
}

// scan traverses every root, then applies deletions once all traversal is done.
func (s *Scanner) scan(ctx context.Context, log zerolog.Logger, p *pass, roots []string) error {
	for _, root := range roots {
		if err := s.scanRoot(ctx, log, p, root); err != nil {
			return err
		}
	}
	return s.deleteVanished(ctx, log, p)
}

// scanRoot walks one root. Records keep the path as reached through root, even
// when root is (or passes through) a symlink to the real directory.
func (s *Scanner) scanRoot(ctx context.Context, log zerolog.Logger, p *pass, root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("scan root %s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("scan root %s is not a directory", root)
	}

	// WalkDir does not descend into a symlinked root, so walk its target and
	// map every path back under root.
	walkRoot := root
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		walkRoot = resolved
	}
	owner := s.owningRoot(root)

	live, err := db.ListLiveUnder(ctx, s.db, root)
	if err != nil {
		return fmt.Errorf("load catalog under %s: %w", root, err)
	}
	for path, entry := range live {
		p.known[path] = entry
	}

	workers := pool.New().WithMaxGoroutines(s.workers).WithContext(ctx).WithCancelOnError().WithFirstError()
	before := p.stats()

	walkErr := filepath.WalkDir(walkRoot, func(walked string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		rel, relErr := filepath.Rel(walkRoot, walked)
		if relErr != nil {
			return relErr
		}
		path := filepath.Join(root, rel)
		if err != nil {
			if rel == "." {
				return err
			}
			// ReadDir failed: the directory entry itself was already visited.
			log.Warn().Err(err).Str("path", path).Msg("directory unreadable, keeping its records")
			p.skip(path)
			return nil
		}
		if rel == "." {
			return nil
		}
		if s.exclude.excluded(rel, d.IsDir()) {
			log.Debug().Str("path", path).Msg("excluded")
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		kind, ok := kindOf(d)
		if !ok {
			log.Debug().Str("path", path).Str("mode", d.Type().String()).Msg("skipping special file")
			return nil
		}

		info, err := d.Info()
		if err != nil {
			if stderrors.Is(err, fs.ErrNotExist) {
				return nil
			}
			log.Warn().Err(err).Str("path", path).Msg("stat failed, keeping its record")
			p.skip(path)
			return nil
		}

		p.observe(path)
		p.scanned.Add(1)

		var size int64
		if kind == catalog.KindFile {
			size = info.Size()
		}
		mtime := info.ModTime().Unix()

		prev, known := p.known[path]
		if known && prev.Kind == kind && prev.SizeBytes == size && prev.ModifiedAt == mtime {
			return nil
		}

		rec := &catalog.FileRecord{
			Path:       path,
			SizeBytes:  size,
			ModifiedAt: mtime,
			Kind:       kind,
			ScanRoot:   owner,
		}
		isNew := !known

		if kind != catalog.KindFile {
			return s.upsert(ctx, p, rec, isNew)
		}

		rec.Extension = catalog.Extension(path)
		rec.MediaType = catalog.MediaType(rec.Extension)
		workers.Go(func(ctx context.Context) error {
			if err := s.hashFile(rec, walked, p); err != nil {
				if stderrors.Is(err, fs.ErrNotExist) {
					return nil
				}
				log.Warn().Err(err).Str("path", rec.Path).Msg("read failed, keeping its record")
				p.skip(rec.Path)
				return nil
			}
			return s.upsert(ctx, p, rec, isNew)
		})
		return nil
	})

	// Always drain the pool, even when the walk stopped early.
	poolErr := workers.Wait()
	if walkErr != nil {
		return fmt.Errorf("walk %s: %w", root, walkErr)
	}
	if poolErr != nil {
		return poolErr
	}

	after := p.stats()
	log.Info().
		Str("root", root).
		Int("scanned", after.Scanned-before.Scanned).
		Int("new", after.New-before.New).
		Int("updated", after.Updated-before.Updated).
		Msg("root scanned")
	return nil
}

// deleteVanished soft-deletes live records under the scanned roots that were
// not observed in this pass and are not under a path that could not be read.
func (s *Scanner) deleteVanished(ctx context.Context, log zerolog.Logger, p *pass) error {
	vanished := make([]string, 0)
	for path := range p.known {
		if _, seen := p.observed[path]; seen || p.protected(path) {
			continue
		}
		vanished = append(vanished, path)
	}
	sort.Strings(vanished)

	for _, path := range vanished {
		if err := ctx.Err(); err != nil {
			return err
		}
		var deleted bool
		err := withBusyRetry(ctx, func() error {
			var err error
			deleted, err = db.SoftDeleteFile(ctx, s.db, path)
			return err
		})
		if err != nil {
			return fmt.Errorf("soft delete %s: %w", path, err)
		}
		if deleted {
			p.deleted.Add(1)
			log.Debug().Str("path", path).Msg("soft-deleted")
		}
	}
	return nil
}

func (s *Scanner) upsert(ctx context.Context, p *pass, rec *catalog.FileRecord, isNew bool) error {
	err := withBusyRetry(ctx, func() error {
		return db.UpsertFile(ctx, s.db, rec)
	})
	if err != nil {
		return fmt.Errorf("catalog %s: %w", rec.Path, err)
	}
	if isNew {
		p.new.Add(1)
	} else {
		p.updated.Add(1)
	}
	return nil
}

// withBusyRetry retries fn while it fails with STORAGE_BUSY, backing off linearly.
func withBusyRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= busyAttempts; attempt++ {
		err = fn()
		if err == nil || !errors.IsRetryable(err) {
			return err
		}
		if attempt == busyAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * busyBackoff):
		}
	}
	return err
}

func kindOf(d fs.DirEntry) (catalog.Kind, bool) {
	switch {
	case d.Type()&fs.ModeSymlink != 0:
		return catalog.KindSymlink, true
	case d.IsDir():
		return catalog.KindDir, true
	case d.Type().IsRegular():
		return catalog.KindFile, true
	}
	return "", false
}

// normalizeRoots makes roots absolute and clean, drops duplicates and drops
// roots nested under another root in the same call. Symlinks are kept as given
// so records carry the paths the caller asked about.
func normalizeRoots(roots []string) ([]string, error) {
	if len(roots) == 0 {
		return nil, errors.NewInvalidRequest("at least one scan root is required")
	}
	seen := make(map[string]bool, len(roots))
	unique := make([]string, 0, len(roots))
	for _, r := range roots {
		if r == "" {
			return nil, errors.NewInvalidRequest("scan root must not be empty")
		}
		abs, err := catalog.NormalizePath(r)
		if err != nil {
			return nil, errors.NewInvalidPath("invalid scan root", r)
		}
		if !seen[abs] {
			seen[abs] = true
			unique = append(unique, abs)
		}
	}

	out := make([]string, 0, len(unique))
	for _, r := range unique {
		if !nestedInAny(r, unique) {
			out = append(out, r)
		}
	}
	return out, nil
}

// nestedInAny reports whether path lies strictly beneath one of roots.
func nestedInAny(path string, roots []string) bool {
	for _, root := range roots {
		if root != path && catalog.IsUnder(path, root) {
			return true
		}
	}
	return false
}

// owningRoot returns the outermost configured root containing root, or root
// itself when no configured root does. A scoped scan of a subdirectory thus
// records the same scan_root a full scan would.
func (s *Scanner) owningRoot(root string) string {
	owner := root
	for _, configured := range s.cfg.ScanRoots {
		abs, err := catalog.NormalizePath(configured)
		if err != nil {
			continue
		}
		if catalog.IsUnder(root, abs) && len(abs) < len(owner) {
			owner = abs
		}
	}
	return owner
}
