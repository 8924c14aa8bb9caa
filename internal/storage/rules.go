package storage

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// AppendRule stores a learned extraction rule.
func (s *SQLiteStorage) AppendRule(ctx context.Context, text string) (*LearnedRule, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("rule text is required")
	}

	now := s.now()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO learned_rules (text, created_at) VALUES (?, ?)",
		text, now.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save rule: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read rule id: %w", err)
	}

	return &LearnedRule{ID: id, Text: text, CreatedAt: time.UnixMilli(now.UnixMilli())}, nil
}

// Rules lists learned rules, oldest first.
func (s *SQLiteStorage) Rules(ctx context.Context) ([]LearnedRule, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, text, created_at FROM learned_rules ORDER BY id ASC",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []LearnedRule
	for rows.Next() {
		var r LearnedRule
		var createdMs int64
		if err := rows.Scan(&r.ID, &r.Text, &createdMs); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		r.CreatedAt = time.UnixMilli(createdMs)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}
