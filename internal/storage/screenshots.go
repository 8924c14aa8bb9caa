package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/khanglvm/monitome/internal/activity"
)

// Append writes the image bytes and records the screenshot.
//
// A capture either lands completely (file and row) or not at all; on any
// error the partial file is removed and ErrWriteFailed is returned.
// Subscribers registered with OnCaptureCompleted run after the write lock
// is released.
func (s *SQLiteStorage) Append(ctx context.Context, shot *Screenshot, image []byte) error {
	if shot == nil || shot.ID == "" {
		return fmt.Errorf("%w: screenshot id is required", ErrWriteFailed)
	}

	if err := s.append(ctx, shot, image); err != nil {
		return err
	}

	s.completed.Publish(*shot)
	return nil
}

func (s *SQLiteStorage) append(ctx context.Context, shot *Screenshot, image []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	dir := filepath.Join(s.imageDir, shot.Date)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	path := filepath.Join(dir, shot.ID+".png")

	// The row is inserted first so a duplicate id never touches the
	// existing image; the file lands before the row is committed.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO screenshots (id, created_at, date, time, path, trigger_kind)
		VALUES (?, ?, ?, ?, ?, ?)
	`, shot.ID, shot.CreatedAt.UnixMilli(), shot.Date, shot.Time, path, shot.Trigger); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, image, 0600); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	if err := tx.Commit(); err != nil {
		os.Remove(path)
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	shot.Path = path
	return nil
}

// Get looks up a screenshot by id.
func (s *SQLiteStorage) Get(ctx context.Context, id string) (*Screenshot, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, date, time, path, trigger_kind
		FROM screenshots WHERE id = ?
	`, id)

	shot, err := scanScreenshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("screenshot %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get screenshot: %w", err)
	}
	return shot, nil
}

// LoadImage reads the image bytes referenced by shot.
func (s *SQLiteStorage) LoadImage(ctx context.Context, shot *Screenshot) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(shot.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("image for %s: %w", shot.ID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return data, nil
}

// TodayCount counts screenshots dated today in local time.
func (s *SQLiteStorage) TodayCount(ctx context.Context) (int, error) {
	return s.CountOn(ctx, s.now().Local().Format(activity.DateLayout))
}

// CountOn counts screenshots on the given YYYY-MM-DD date.
func (s *SQLiteStorage) CountOn(ctx context.Context, date string) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}

	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM screenshots WHERE date = ?", date,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count screenshots: %w", err)
	}
	return n, nil
}

// ListSince returns screenshots created at or after since, oldest first.
func (s *SQLiteStorage) ListSince(ctx context.Context, since time.Time) ([]Screenshot, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, date, time, path, trigger_kind
		FROM screenshots
		WHERE created_at >= ?
		ORDER BY created_at ASC, id ASC
	`, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to list screenshots: %w", err)
	}
	defer rows.Close()

	var shots []Screenshot
	for rows.Next() {
		shot, err := scanScreenshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan screenshot: %w", err)
		}
		shots = append(shots, *shot)
	}
	return shots, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanScreenshot(row scanner) (*Screenshot, error) {
	var shot Screenshot
	var createdMs int64
	if err := row.Scan(&shot.ID, &createdMs, &shot.Date, &shot.Time, &shot.Path, &shot.Trigger); err != nil {
		return nil, err
	}
	shot.CreatedAt = time.UnixMilli(createdMs)
	return &shot, nil
}
