package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/hpungsan/lib/internal/catalog"
	"github.com/hpungsan/lib/internal/errors"
)

const fileColumns = `id, path, content_hash, size_bytes, modified_at, kind, extension,
	media_type, scan_root, content_snippet, deleted_at, created_at, updated_at`

// SearchFilters narrows a metadata search. Nil fields are ignored.
type SearchFilters struct {
	// PathContains matches a case-insensitive substring of the path
	PathContains *string
	Extension    *string
	MediaType    *string
	ScanRoot     *string
	Kind         *catalog.Kind
}

// LiveEntry is the cheap-stat view of a live record used for change detection.
type LiveEntry struct {
	Kind       catalog.Kind
	SizeBytes  int64
	ModifiedAt int64
}

// UpsertFile writes rec in a single transaction.
// A live row with the same path is updated; otherwise a tombstone with the same
// (content_hash, path) is revived; otherwise a new row is inserted.
// rec.ID, CreatedAt and UpdatedAt are set from the stored row.
func UpsertFile(ctx context.Context, db *sql.DB, rec *catalog.FileRecord) error {
	if rec == nil || rec.Path == "" {
		return errors.NewInvalidRequest("record path is required")
	}
	if !rec.Kind.Valid() {
		return errors.NewInvalidRequest("invalid kind: " + string(rec.Kind))
	}

	now := time.Now().Unix()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return classifyError(err)
	}
	defer tx.Rollback()

	var id, createdAt int64
	err = tx.QueryRowContext(ctx,
		`SELECT id, created_at FROM files WHERE path = ? AND deleted_at IS NULL`, rec.Path,
	).Scan(&id, &createdAt)

	switch {
	case err == nil:
		// An older tombstone may already own (hash, path); it is superseded.
		if rec.ContentHash != nil {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM files WHERE content_hash = ? AND path = ? AND deleted_at IS NOT NULL`,
				*rec.ContentHash, rec.Path,
			); err != nil {
				return classifyError(err)
			}
		}
		if err := updateRow(ctx, tx, id, rec, now); err != nil {
			return err
		}

	case stderrors.Is(err, sql.ErrNoRows):
		revived := false
		if rec.ContentHash != nil {
			err := tx.QueryRowContext(ctx,
				`SELECT id, created_at FROM files WHERE content_hash = ? AND path = ? AND deleted_at IS NOT NULL`,
				*rec.ContentHash, rec.Path,
			).Scan(&id, &createdAt)
			switch {
			case err == nil:
				if err := updateRow(ctx, tx, id, rec, now); err != nil {
					return err
				}
				revived = true
			case !stderrors.Is(err, sql.ErrNoRows):
				return classifyError(err)
			}
		}
		if !revived {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO files (
					path, content_hash, size_bytes, modified_at, kind, extension,
					media_type, scan_root, content_snippet, deleted_at, created_at, updated_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)`,
				rec.Path, toNullString(rec.ContentHash), rec.SizeBytes, rec.ModifiedAt, string(rec.Kind),
				toNullString(rec.Extension), toNullString(rec.MediaType), rec.ScanRoot,
				toNullString(rec.ContentSnippet), now, now,
			)
			if err != nil {
				return classifyError(err)
			}
			if id, err = res.LastInsertId(); err != nil {
				return errors.NewInternal(err)
			}
			createdAt = now
		}

	default:
		return classifyError(err)
	}

	if err := tx.Commit(); err != nil {
		return classifyError(err)
	}

	rec.ID = id
	rec.CreatedAt = createdAt
	rec.UpdatedAt = now
	rec.DeletedAt = nil
	return nil
}

// updateRow overwrites the mutable columns of row id and clears deleted_at.
func updateRow(ctx context.Context, tx *sql.Tx, id int64, rec *catalog.FileRecord, now int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE files SET
			content_hash = ?, size_bytes = ?, modified_at = ?, kind = ?, extension = ?,
			media_type = ?, scan_root = ?, content_snippet = ?, deleted_at = NULL, updated_at = ?
		WHERE id = ?`,
		toNullString(rec.ContentHash), rec.SizeBytes, rec.ModifiedAt, string(rec.Kind),
		toNullString(rec.Extension), toNullString(rec.MediaType), rec.ScanRoot,
		toNullString(rec.ContentSnippet), now, id,
	)
	if err != nil {
		return classifyError(err)
	}
	return nil
}

// SoftDeleteFile marks the live record at path as deleted.
// Returns false (no error) when there is no live record.
// The update trigger drops the row from files_fts in the same transaction.
func SoftDeleteFile(ctx context.Context, db *sql.DB, path string) (bool, error) {
	now := time.Now().Unix()
	result, err := db.ExecContext(ctx,
		`UPDATE files SET deleted_at = ?, updated_at = ? WHERE path = ? AND deleted_at IS NULL`,
		now, now, path,
	)
	if err != nil {
		return false, classifyError(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return rows > 0, nil
}

// GetByPath retrieves the live record for path.
func GetByPath(ctx context.Context, db *sql.DB, path string) (*catalog.FileRecord, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE path = ? AND deleted_at IS NULL`, path)
	rec, err := scanFile(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(path)
	}
	if err != nil {
		return nil, classifyError(err)
	}
	return rec, nil
}

// SearchMetadata returns live records matching every set filter, ordered by path.
func SearchMetadata(ctx context.Context, db *sql.DB, f SearchFilters, limit int) ([]*catalog.FileRecord, error) {
	conditions := []string{"deleted_at IS NULL"}
	var args []any

	if f.PathContains != nil && *f.PathContains != "" {
		conditions = append(conditions, `path LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(*f.PathContains)+"%")
	}
	if f.Extension != nil {
		conditions = append(conditions, "extension = ?")
		args = append(args, *f.Extension)
	}
	if f.MediaType != nil {
		conditions = append(conditions, "media_type = ?")
		args = append(args, *f.MediaType)
	}
	if f.ScanRoot != nil {
		conditions = append(conditions, "scan_root = ?")
		args = append(args, *f.ScanRoot)
	}
	if f.Kind != nil {
		conditions = append(conditions, "kind = ?")
		args = append(args, string(*f.Kind))
	}

	query := `SELECT ` + fileColumns + ` FROM files WHERE ` + strings.Join(conditions, " AND ") +
		` ORDER BY path ASC LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	results := make([]*catalog.FileRecord, 0)
	for rows.Next() {
		rec, err := scanFile(rows)
		if err != nil {
			return nil, classifyError(err)
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError(err)
	}
	return results, nil
}

// ListLiveUnder returns the cheap-stat view of every live record strictly beneath root.
func ListLiveUnder(ctx context.Context, db *sql.DB, root string) (map[string]LiveEntry, error) {
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT path, kind, size_bytes, modified_at
		FROM files
		WHERE deleted_at IS NULL AND substr(path, 1, length(?1)) = ?1`,
		prefix,
	)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	entries := make(map[string]LiveEntry)
	for rows.Next() {
		var path, kind string
		var e LiveEntry
		if err := rows.Scan(&path, &kind, &e.SizeBytes, &e.ModifiedAt); err != nil {
			return nil, classifyError(err)
		}
		e.Kind = catalog.Kind(kind)
		entries[path] = e
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError(err)
	}
	return entries, nil
}

// PurgeDeleted physically removes soft-deleted records.
// If olderThanDays is set, only tombstones deleted more than that many days ago are removed.
func PurgeDeleted(ctx context.Context, db *sql.DB, olderThanDays *int) (int, error) {
	query := `DELETE FROM files WHERE deleted_at IS NOT NULL`
	var args []any
	if olderThanDays != nil {
		cutoff := time.Now().Add(-time.Duration(*olderThanDays) * 24 * time.Hour).Unix()
		query += ` AND deleted_at < ?`
		args = append(args, cutoff)
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, classifyError(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return int(n), nil
}

// CatalogStats counts live records per kind, tombstones and indexed documents,
// and reports the most recent scan run.
func CatalogStats(ctx context.Context, db *sql.DB) (*catalog.Stats, error) {
	s := &catalog.Stats{}
	err := db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN deleted_at IS NULL AND kind = 'file' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN deleted_at IS NULL AND kind = 'dir' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN deleted_at IS NULL AND kind = 'symlink' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN deleted_at IS NULL THEN size_bytes ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN deleted_at IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM files`,
	).Scan(&s.LiveFiles, &s.LiveDirs, &s.LiveSymlinks, &s.TotalBytes, &s.Tombstones)
	if err != nil {
		return nil, classifyError(err)
	}

	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files_fts`).Scan(&s.IndexedDocs); err != nil {
		return nil, classifyError(err)
	}

	var lastID string
	var lastAt int64
	err = db.QueryRowContext(ctx,
		`SELECT id, started_at FROM scan_runs ORDER BY started_at DESC, id DESC LIMIT 1`,
	).Scan(&lastID, &lastAt)
	switch {
	case err == nil:
		s.LastRunID = lastID
		s.LastRunAt = &lastAt
	case !stderrors.Is(err, sql.ErrNoRows):
		return nil, classifyError(err)
	}

	return s, nil
}

// StreamLive iterates every live record in path order, calling fn for each.
// Iteration stops at the first error fn returns.
func StreamLive(ctx context.Context, db *sql.DB, fn func(*catalog.FileRecord) error) error {
	rows, err := db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE deleted_at IS NULL ORDER BY path ASC`)
	if err != nil {
		return classifyError(err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanFile(rows)
		if err != nil {
			return classifyError(err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return classifyError(rows.Err())
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanFile scans a row selected with fileColumns.
func scanFile(row rowScanner) (*catalog.FileRecord, error) {
	var rec catalog.FileRecord
	var kind string
	var contentHash, extension, mediaType, snippet sql.NullString
	var deletedAt sql.NullInt64

	err := row.Scan(
		&rec.ID, &rec.Path, &contentHash, &rec.SizeBytes, &rec.ModifiedAt, &kind, &extension,
		&mediaType, &rec.ScanRoot, &snippet, &deletedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Kind = catalog.Kind(kind)
	rec.ContentHash = fromNullString(contentHash)
	rec.Extension = fromNullString(extension)
	rec.MediaType = fromNullString(mediaType)
	rec.ContentSnippet = fromNullString(snippet)
	if deletedAt.Valid {
		rec.DeletedAt = &deletedAt.Int64
	}
	return &rec, nil
}

// escapeLike escapes LIKE wildcards so s matches literally under ESCAPE '\'.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return strings.ReplaceAll(s, `_`, `\_`)
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
