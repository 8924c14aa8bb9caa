package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Preference keys for the persisted recording toggles.
const (
	PrefCaptureEnabled = "capture_enabled"
	PrefEventTriggers  = "event_triggers_enabled"
)

// Bool reads a boolean preference, returning def when it was never set.
func (s *SQLiteStorage) Bool(key string, def bool) (bool, error) {
	if err := s.ready(); err != nil {
		return def, err
	}

	var raw string
	err := s.db.QueryRow("SELECT value FROM preferences WHERE key = ?", key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("failed to read preference %s: %w", key, err)
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def, fmt.Errorf("preference %s has invalid value %q", key, raw)
	}
	return v, nil
}

// SetBool persists a boolean preference.
func (s *SQLiteStorage) SetBool(key string, value bool) error {
	if err := s.ready(); err != nil {
		return err
	}

	_, err := s.db.Exec(`
		INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, strconv.FormatBool(value), s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save preference %s: %w", key, err)
	}
	return nil
}
