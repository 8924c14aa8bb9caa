package storage

import (
	"fmt"
	"time"
)

// RecordSearch records a search query for analytics.
func (s *SQLiteStorage) RecordSearch(search SearchRecord) error {
	if err := s.ready(); err != nil {
		return err
	}

	query := `
		INSERT INTO search_history (search_id, query_hash, timestamp, results_count)
		VALUES (?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		search.SearchID,
		search.QueryHash,
		search.Timestamp.UTC().Format(time.RFC3339),
		search.ResultsCount,
	)
	if err != nil {
		return fmt.Errorf("failed to record search: %w", err)
	}

	return nil
}

// SearchCount returns the number of recorded searches.
func (s *SQLiteStorage) SearchCount() (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM search_history").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count searches: %w", err)
	}
	return n, nil
}

// Cleanup removes search history older than retention.
func (s *SQLiteStorage) Cleanup(retention time.Duration) error {
	if err := s.ready(); err != nil {
		return err
	}

	cutoff := s.now().Add(-retention).UTC().Format(time.RFC3339)
	if _, err := s.db.Exec(
		"DELETE FROM search_history WHERE timestamp < ?", cutoff,
	); err != nil {
		return fmt.Errorf("failed to cleanup search history: %w", err)
	}

	return nil
}
