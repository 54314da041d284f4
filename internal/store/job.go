package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateJob inserts a new job in the queued state.
func (s *Store) CreateJob(ctx context.Context, id, storeFilter string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO capture_jobs (id, status, store_filter, created_at) VALUES (?, ?, ?, ?)`,
		id, JobQueued, storeFilter, time.Now().UnixMilli())
	return err
}

// GetJob retrieves a job snapshot. Returns nil, nil when not found. Safe to
// call concurrently with an in-flight run.
func (s *Store) GetJob(ctx context.Context, id string) (*CaptureJob, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, status, store_filter, created_at, started_at, finished_at, message
		FROM capture_jobs WHERE id = ?`, id)
	var j CaptureJob
	err := row.Scan(&j.ID, &j.Status, &j.StoreFilter, &j.CreatedAt, &j.StartedAt, &j.FinishedAt, &j.Message)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return &j, nil
}

// MarkJobRunning transitions a queued job to running, records started_at,
// and clears any previous message. The status guard keeps terminal states
// terminal even if called twice.
func (s *Store) MarkJobRunning(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE capture_jobs SET status = ?, started_at = ?, message = ''
		WHERE id = ? AND status = ?`,
		JobRunning, time.Now().UnixMilli(), id, JobQueued)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("job %s is not queued", id)
	}
	return nil
}

// SetJobMessage updates the progress message of a running job.
func (s *Store) SetJobMessage(ctx context.Context, id, message string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE capture_jobs SET message = ? WHERE id = ?`, message, id)
	return err
}

// FinishJob moves a job to a terminal state and records finished_at. The
// status guard enforces the transition rules at the database, not just by
// worker discipline: a job already done or errored is never rewritten.
func (s *Store) FinishJob(ctx context.Context, id, status, message string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE capture_jobs SET status = ?, finished_at = ?, message = ?
		WHERE id = ? AND status IN (?, ?)`,
		status, time.Now().UnixMilli(), message, id, JobQueued, JobRunning)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("job %s is already finished", id)
	}
	return nil
}

// ResetRunningJobs marks every job still marked running as errored. Called
// once at process start: a job can only be running while the single worker
// holds it, so a running row at startup means the previous worker died
// mid-job. Returns the number of jobs reset.
func (s *Store) ResetRunningJobs(ctx context.Context) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE capture_jobs SET status = ?, finished_at = ?, message = 'worker restarted'
		WHERE status = ?`,
		JobError, time.Now().UnixMilli(), JobRunning)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
