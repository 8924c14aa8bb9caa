/*
Package learning holds the feedback loops around extraction and search.

A Rulebook accumulates learned corrections that are appended to every
extraction request. A Tracker records search activity in the background
without blocking the caller.
*/
package learning

import (
	"time"

	"github.com/google/uuid"
	"github.com/khanglvm/monitome/internal/storage"
)

// SearchEvent represents one search performed against the activity index.
type SearchEvent struct {
	// SearchID identifies the search session.
	SearchID string

	// QueryHash is the SHA256 hash of the query for privacy.
	QueryHash string

	// Timestamp is when the search ran.
	Timestamp time.Time

	// ResultsCount is the number of hits returned.
	ResultsCount int
}

// NewSearchEvent creates a search event with a fresh id.
func NewSearchEvent(query string, results int) SearchEvent {
	return SearchEvent{
		SearchID:     uuid.NewString(),
		QueryHash:    storage.HashQuery(query),
		Timestamp:    time.Now(),
		ResultsCount: results,
	}
}

// ToStorage converts the event to its storage model.
func (e SearchEvent) ToStorage() storage.SearchRecord {
	return storage.SearchRecord{
		SearchID:     e.SearchID,
		QueryHash:    e.QueryHash,
		Timestamp:    e.Timestamp,
		ResultsCount: e.ResultsCount,
	}
}
