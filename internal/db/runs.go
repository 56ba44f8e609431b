package db

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/lib/internal/catalog"
	"github.com/hpungsan/lib/internal/errors"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewRunID returns a new time-sortable ULID string.
func NewRunID() (string, error) {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

const runColumns = `id, started_at, finished_at, roots_json, files_scanned, files_new,
	files_updated, files_deleted, status, duration_seconds, notes`

// CreateRun records the start of a scan over roots with status running.
func CreateRun(ctx context.Context, db *sql.DB, roots []string) (*catalog.ScanRun, error) {
	id, err := NewRunID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if roots == nil {
		roots = []string{}
	}
	rootsJSON, err := json.Marshal(roots)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	run := &catalog.ScanRun{
		ID:        id,
		StartedAt: time.Now().Unix(),
		Roots:     roots,
		Status:    catalog.RunRunning,
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO scan_runs (id, started_at, roots_json, status)
		VALUES (?, ?, ?, ?)`,
		run.ID, run.StartedAt, string(rootsJSON), string(run.Status),
	)
	if err != nil {
		return nil, classifyError(err)
	}
	return run, nil
}

// CompleteRun writes the terminal state of a running scan exactly once.
// The duration is measured from the millisecond timestamp embedded in the run ID.
// A run that is missing or already terminal yields CONFLICT.
func CompleteRun(ctx context.Context, db *sql.DB, id string, stats catalog.RunStats, status catalog.RunStatus, notes *string) error {
	if !status.Terminal() {
		return errors.NewInvalidRequest("run status must be completed or failed")
	}

	now := time.Now()
	var duration sql.NullFloat64
	if parsed, err := ulid.Parse(id); err == nil {
		duration = sql.NullFloat64{Float64: now.Sub(ulid.Time(parsed.Time())).Seconds(), Valid: true}
	}

	result, err := db.ExecContext(ctx, `
		UPDATE scan_runs SET
			finished_at = ?, files_scanned = ?, files_new = ?, files_updated = ?, files_deleted = ?,
			status = ?, duration_seconds = ?, notes = ?
		WHERE id = ? AND status = 'running'`,
		now.Unix(), stats.Scanned, stats.New, stats.Updated, stats.Deleted,
		string(status), duration, toNullString(notes), id,
	)
	if err != nil {
		return classifyError(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rows == 0 {
		return errors.NewConflict("scan run is not running: " + id)
	}
	return nil
}

// GetRun retrieves a run by ID.
func GetRun(ctx context.Context, db *sql.DB, id string) (*catalog.ScanRun, error) {
	row := db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM scan_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, classifyError(err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func ListRuns(ctx context.Context, db *sql.DB, limit int) ([]*catalog.ScanRun, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM scan_runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	runs := make([]*catalog.ScanRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, classifyError(err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError(err)
	}
	return runs, nil
}

func scanRun(row rowScanner) (*catalog.ScanRun, error) {
	var run catalog.ScanRun
	var status, rootsJSON string
	var finishedAt sql.NullInt64
	var duration sql.NullFloat64
	var notes sql.NullString

	err := row.Scan(
		&run.ID, &run.StartedAt, &finishedAt, &rootsJSON, &run.FilesScanned, &run.FilesNew,
		&run.FilesUpdated, &run.FilesDeleted, &status, &duration, &notes,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(rootsJSON), &run.Roots); err != nil {
		return nil, err
	}
	run.Status = catalog.RunStatus(status)
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Int64
	}
	if duration.Valid {
		run.DurationSeconds = &duration.Float64
	}
	run.Notes = fromNullString(notes)
	return &run, nil
}
