package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Enqueue adds id to the indexing queue and reports whether a job was
// created or refreshed.
//
// A plain enqueue is a no-op when the id is already queued or has a
// recorded failure. A forced enqueue clears any failure and resets the
// job so it is claimable immediately with a fresh attempt budget.
func (s *SQLiteStorage) Enqueue(ctx context.Context, id string, force bool) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}

	now := s.now().UnixMilli()

	if !force {
		res, err := s.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO index_jobs (screenshot_id, visible_at, created_at)
			SELECT ?, ?, ?
			WHERE NOT EXISTS (SELECT 1 FROM index_failures WHERE screenshot_id = ?)
		`, id, now, now, id)
		if err != nil {
			return false, fmt.Errorf("failed to enqueue %s: %w", id, err)
		}
		n, _ := res.RowsAffected()
		return n > 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM index_failures WHERE screenshot_id = ?", id,
	); err != nil {
		return false, fmt.Errorf("failed to clear failure for %s: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO index_jobs (screenshot_id, visible_at, created_at, attempts, force, last_error)
		VALUES (?, ?, ?, 0, 1, '')
		ON CONFLICT(screenshot_id) DO UPDATE SET
			visible_at = excluded.visible_at,
			attempts = 0,
			force = 1,
			last_error = ''
	`, id, now, now); err != nil {
		return false, fmt.Errorf("failed to force enqueue %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit enqueue: %w", err)
	}
	return true, nil
}

// Claim takes the oldest visible job, hides it for visibility and bumps
// its attempt counter. It returns nil, nil when nothing is claimable.
func (s *SQLiteStorage) Claim(ctx context.Context, visibility time.Duration) (*Job, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	now := s.now()
	row := s.db.QueryRowContext(ctx, `
		UPDATE index_jobs
		SET visible_at = ?, attempts = attempts + 1
		WHERE screenshot_id = (
			SELECT screenshot_id FROM index_jobs
			WHERE visible_at <= ?
			ORDER BY visible_at ASC, created_at ASC
			LIMIT 1
		)
		RETURNING screenshot_id, attempts, force, last_error, visible_at, created_at
	`, now.Add(visibility).UnixMilli(), now.UnixMilli())

	var job Job
	var force int
	var visibleMs, createdMs int64
	err := row.Scan(&job.ScreenshotID, &job.Attempts, &force, &job.LastError, &visibleMs, &createdMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	job.Force = force != 0
	job.VisibleAt = time.UnixMilli(visibleMs)
	job.CreatedAt = time.UnixMilli(createdMs)
	return &job, nil
}

// Complete removes a finished job. It returns ErrJobSuperseded when the
// job was reset or reclaimed after job was claimed; the newer row stays
// queued.
func (s *SQLiteStorage) Complete(ctx context.Context, job *Job) error {
	if err := s.ready(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM index_jobs WHERE screenshot_id = ? AND visible_at = ? AND attempts = ?",
		job.ScreenshotID, job.VisibleAt.UnixMilli(), job.Attempts,
	)
	if err != nil {
		return fmt.Errorf("failed to complete job %s: %w", job.ScreenshotID, err)
	}
	return leaseHeld(res, job)
}

// Retry hides the job until delay has elapsed and records why.
func (s *SQLiteStorage) Retry(ctx context.Context, job *Job, delay time.Duration, reason string) error {
	if err := s.ready(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE index_jobs SET visible_at = ?, last_error = ?
		WHERE screenshot_id = ? AND visible_at = ? AND attempts = ?
	`, s.now().Add(delay).UnixMilli(), reason, job.ScreenshotID, job.VisibleAt.UnixMilli(), job.Attempts)
	if err != nil {
		return fmt.Errorf("failed to reschedule job %s: %w", job.ScreenshotID, err)
	}
	return leaseHeld(res, job)
}

// Fail moves the job to the failure log. Nothing is recorded when the
// job was superseded by a newer request.
func (s *SQLiteStorage) Fail(ctx context.Context, job *Job, reason string) error {
	if err := s.ready(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"DELETE FROM index_jobs WHERE screenshot_id = ? AND visible_at = ? AND attempts = ?",
		job.ScreenshotID, job.VisibleAt.UnixMilli(), job.Attempts,
	)
	if err != nil {
		return fmt.Errorf("failed to remove job %s: %w", job.ScreenshotID, err)
	}
	if err := leaseHeld(res, job); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO index_failures (screenshot_id, attempts, reason, failed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(screenshot_id) DO UPDATE SET
			attempts = excluded.attempts,
			reason = excluded.reason,
			failed_at = excluded.failed_at
	`, job.ScreenshotID, job.Attempts, reason, s.now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to record failure %s: %w", job.ScreenshotID, err)
	}

	return tx.Commit()
}

// leaseHeld maps a write that matched no row to ErrJobSuperseded.
func leaseHeld(res sql.Result, job *Job) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("job %s: %w", job.ScreenshotID, ErrJobSuperseded)
	}
	return nil
}

// Failure returns the failure record for id, or ErrNotFound.
func (s *SQLiteStorage) Failure(ctx context.Context, id string) (*Failure, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	var f Failure
	var failedMs int64
	err := s.db.QueryRowContext(ctx, `
		SELECT screenshot_id, attempts, reason, failed_at
		FROM index_failures WHERE screenshot_id = ?
	`, id).Scan(&f.ScreenshotID, &f.Attempts, &f.Reason, &failedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failure %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get failure: %w", err)
	}
	f.FailedAt = time.UnixMilli(failedMs)
	return &f, nil
}

// Failures lists recorded failures, most recent first.
func (s *SQLiteStorage) Failures(ctx context.Context, limit int) ([]Failure, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT screenshot_id, attempts, reason, failed_at
		FROM index_failures
		ORDER BY failed_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list failures: %w", err)
	}
	defer rows.Close()

	var out []Failure
	for rows.Next() {
		var f Failure
		var failedMs int64
		if err := rows.Scan(&f.ScreenshotID, &f.Attempts, &f.Reason, &failedMs); err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		f.FailedAt = time.UnixMilli(failedMs)
		out = append(out, f)
	}
	return out, rows.Err()
}

// QueueStats counts pending jobs and recorded failures.
func (s *SQLiteStorage) QueueStats(ctx context.Context) (QueueStats, error) {
	var stats QueueStats
	if err := s.ready(); err != nil {
		return stats, err
	}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM index_jobs),
			(SELECT COUNT(*) FROM index_failures)
	`).Scan(&stats.Pending, &stats.Failed)
	if err != nil {
		return stats, fmt.Errorf("failed to read queue stats: %w", err)
	}
	return stats, nil
}
