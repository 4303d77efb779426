package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/models"
)

const jobColumns = `id, kind, user_id, dedup_key, payload, status, result, error, attempts, created_at, updated_at`

func scanJob(s rowScanner) (*models.Job, error) {
	var (
		j               models.Job
		payload, result []byte
		status          string
	)
	if err := s.Scan(&j.ID, &j.Kind, &j.UserID, &j.DedupKey, &payload, &status, &result,
		&j.Error, &j.Attempts, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.Status = models.JobStatus(status)
	if len(payload) > 0 {
		j.Payload = json.RawMessage(payload)
	}
	if len(result) > 0 {
		j.Result = json.RawMessage(result)
	}
	return &j, nil
}

// CreateJob persists a new PENDING job record.
func (db *DB) CreateJob(ctx context.Context, j models.Job) (*models.Job, error) {
	now := db.now()
	j.Status = models.JobPending
	j.CreatedAt, j.UpdatedAt = now, now
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO jobs (id, kind, user_id, dedup_key, payload, status, error, attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, '', 0, ?, ?)
	`, j.ID, j.Kind, j.UserID, j.DedupKey, []byte(j.Payload), string(j.Status), now, now)
	if err != nil {
		return nil, fmt.Errorf("store: insert job: %w", err)
	}
	return &j, nil
}

// GetJob returns a job by id.
func (db *DB) GetJob(ctx context.Context, id string) (*models.Job, error) {
	j, err := scanJob(db.conn.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: job %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get job: %w", err)
	}
	return j, nil
}

// PendingJobByDedupKey returns the job holding key that has not started yet, if any.
func (db *DB) PendingJobByDedupKey(ctx context.Context, key string) (*models.Job, error) {
	j, err := scanJob(db.conn.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE dedup_key = ? AND status = 'PENDING'
		ORDER BY created_at LIMIT 1
	`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: job for %s: %w", key, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: job by dedup key: %w", err)
	}
	return j, nil
}

// MarkJobRunning moves a job to RUNNING and bumps its attempt counter.
func (db *DB) MarkJobRunning(ctx context.Context, id string) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE jobs SET status = 'RUNNING', attempts = attempts + 1, updated_at = ? WHERE id = ?
	`, db.now(), id)
	if err != nil {
		return fmt.Errorf("store: mark job running: %w", err)
	}
	return nil
}

// FinishJob stores the terminal state of a job.
func (db *DB) FinishJob(ctx context.Context, id string, status models.JobStatus, result json.RawMessage, errMsg string) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE jobs SET status = ?, result = ?, error = ?, updated_at = ? WHERE id = ?
	`, string(status), []byte(result), errMsg, db.now(), id)
	if err != nil {
		return fmt.Errorf("store: finish job: %w", err)
	}
	return nil
}

// FailStaleJobs marks jobs left PENDING or RUNNING by a previous process as failed.
func (db *DB) FailStaleJobs(ctx context.Context) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE jobs SET status = 'FAILURE', error = 'interrupted by shutdown', updated_at = ?
		WHERE status IN ('PENDING', 'RUNNING')
	`, db.now())
	if err != nil {
		return 0, fmt.Errorf("store: fail stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// PurgeFinishedJobs deletes terminal job records older than age.
func (db *DB) PurgeFinishedJobs(ctx context.Context, age time.Duration) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		DELETE FROM jobs WHERE status IN ('SUCCESS', 'FAILURE') AND updated_at < ?
	`, db.now().Add(-age))
	if err != nil {
		return 0, fmt.Errorf("store: purge jobs: %w", err)
	}
	return res.RowsAffected()
}
