package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/hpungsan/lib/internal/config"
	"github.com/hpungsan/lib/internal/errors"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// DBFileName is the catalog file inside the base directory.
const DBFileName = "lib.db"

// Options tunes the connection pragmas.
type Options struct {
	// BusyTimeoutMS bounds how long a statement waits on a lock before SQLITE_BUSY.
	BusyTimeoutMS int
	// CacheSizeKB sizes the page cache (applied as a negative cache_size).
	CacheSizeKB int
}

// DefaultOptions returns the pragmas used when no config is supplied.
func DefaultOptions() Options {
	return Options{BusyTimeoutMS: 5000, CacheSizeKB: 64 * 1024}
}

// OptionsFromConfig maps config values onto connection options.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	if cfg == nil {
		return opts
	}
	if cfg.DBBusyTimeoutMS > 0 {
		opts.BusyTimeoutMS = cfg.DBBusyTimeoutMS
	}
	if cfg.DBCacheSizeKB > 0 {
		opts.CacheSizeKB = cfg.DBCacheSizeKB
	}
	return opts
}

// Init initializes the SQLite catalog at baseDir/lib.db with default options.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.lib.
func Init(baseDir string) (*sql.DB, error) {
	return Open(baseDir, DefaultOptions())
}

// Open creates the catalog if absent and migrates it to the current schema.
// It is idempotent. Failures are STORAGE_INIT, or STORAGE_CORRUPT when the
// file exists but is not a usable database.
func Open(baseDir string, opts Options) (*sql.DB, error) {
	// Create base directory with restricted permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, errors.NewStorageInit(fmt.Errorf("failed to create base directory: %w", err))
	}
	_ = os.Chmod(baseDir, 0700)

	exportsDir := filepath.Join(baseDir, "exports")
	if err := os.MkdirAll(exportsDir, 0700); err != nil {
		return nil, errors.NewStorageInit(fmt.Errorf("failed to create exports directory: %w", err))
	}
	_ = os.Chmod(exportsDir, 0700)

	// Pragmas in the DSN apply to every pooled connection.
	// _txlock=immediate takes the write lock at BEGIN so busy_timeout covers it.
	dbPath := filepath.Join(baseDir, DBFileName)
	dsn := fmt.Sprintf(
		"%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=cache_size(-%d)&_pragma=foreign_keys(ON)&_txlock=immediate",
		dbPath, opts.BusyTimeoutMS, opts.CacheSizeKB,
	)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.NewStorageInit(fmt.Errorf("failed to open database: %w", err))
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, initError(err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, initError(err)
	}

	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// initError keeps corruption distinct from other startup failures.
func initError(err error) error {
	if isCorrupt(err) {
		return errors.NewStorageCorrupt(err)
	}
	return errors.NewStorageInit(err)
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: files, full-text shadow, scan runs
	if version < 1 {
		if _, err := db.Exec(schemaV1); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	return nil
}

// schemaV1 keeps files_fts in lock-step with files through triggers, so every
// write path updates the index inside the statement's own transaction.
// A soft delete removes the FTS row; revival re-inserts it.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS files (
  id              INTEGER PRIMARY KEY AUTOINCREMENT,
  path            TEXT NOT NULL,
  content_hash    TEXT,
  size_bytes      INTEGER NOT NULL DEFAULT 0,
  modified_at     INTEGER NOT NULL,
  kind            TEXT NOT NULL CHECK (kind IN ('file', 'dir', 'symlink')),
  extension       TEXT,
  media_type      TEXT,
  scan_root       TEXT NOT NULL,
  content_snippet TEXT,
  deleted_at      INTEGER,
  created_at      INTEGER NOT NULL,
  updated_at      INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_files_hash_path
ON files(content_hash, path);

CREATE UNIQUE INDEX IF NOT EXISTS idx_files_path_live
ON files(path)
WHERE deleted_at IS NULL;

CREATE INDEX IF NOT EXISTS idx_files_extension
ON files(extension)
WHERE deleted_at IS NULL;

CREATE INDEX IF NOT EXISTS idx_files_media_type
ON files(media_type)
WHERE deleted_at IS NULL;

CREATE INDEX IF NOT EXISTS idx_files_scan_root
ON files(scan_root)
WHERE deleted_at IS NULL;

CREATE INDEX IF NOT EXISTS idx_files_deleted_at
ON files(deleted_at)
WHERE deleted_at IS NOT NULL;

CREATE VIRTUAL TABLE IF NOT EXISTS files_fts USING fts5(
  path,
  extension,
  media_type,
  content_snippet,
  tokenize = 'unicode61 remove_diacritics 2'
);

CREATE TRIGGER IF NOT EXISTS files_fts_after_insert
AFTER INSERT ON files
WHEN new.deleted_at IS NULL
BEGIN
  INSERT INTO files_fts(rowid, path, extension, media_type, content_snippet)
  VALUES (new.id, new.path, new.extension, new.media_type, new.content_snippet);
END;

CREATE TRIGGER IF NOT EXISTS files_fts_after_update
AFTER UPDATE ON files
BEGIN
  DELETE FROM files_fts WHERE rowid = old.id;
  INSERT INTO files_fts(rowid, path, extension, media_type, content_snippet)
  SELECT new.id, new.path, new.extension, new.media_type, new.content_snippet
  WHERE new.deleted_at IS NULL;
END;

CREATE TRIGGER IF NOT EXISTS files_fts_after_delete
AFTER DELETE ON files
BEGIN
  DELETE FROM files_fts WHERE rowid = old.id;
END;

CREATE TABLE IF NOT EXISTS scan_runs (
  id               TEXT PRIMARY KEY,
  started_at       INTEGER NOT NULL,
  finished_at      INTEGER,
  roots_json       TEXT NOT NULL,
  files_scanned    INTEGER NOT NULL DEFAULT 0,
  files_new        INTEGER NOT NULL DEFAULT 0,
  files_updated    INTEGER NOT NULL DEFAULT 0,
  files_deleted    INTEGER NOT NULL DEFAULT 0,
  status           TEXT NOT NULL CHECK (status IN ('running', 'completed', 'failed')),
  duration_seconds REAL,
  notes            TEXT
);

CREATE INDEX IF NOT EXISTS idx_scan_runs_started
ON scan_runs(started_at DESC);
`

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}

// sqliteCode returns the primary result code of a driver error, or 0.
func sqliteCode(err error) int {
	var sqliteErr *sqlite.Error
	if stderrors.As(err, &sqliteErr) {
		return sqliteErr.Code() & 0xff
	}
	return 0
}

func isBusy(err error) bool {
	switch sqliteCode(err) {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

func isCorrupt(err error) bool {
	switch sqliteCode(err) {
	case sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_NOTADB:
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "file is not a database") || strings.Contains(msg, "malformed")
}

// isFTSSyntaxError matches MATCH expressions the FTS5 parser rejected.
func isFTSSyntaxError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "fts5: syntax error") || strings.Contains(msg, "unterminated string") ||
		strings.Contains(msg, "no such column")
}

// classifyError maps driver errors onto the storage taxonomy.
// LibErrors pass through unchanged.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.As(err); ok {
		return err
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return errors.NewCancelled("storage operation")
	}
	switch {
	case isBusy(err):
		return errors.NewStorageBusy(err)
	case isCorrupt(err):
		return errors.NewStorageCorrupt(err)
	}
	return errors.NewInternal(err)
}
