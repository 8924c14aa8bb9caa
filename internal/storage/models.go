/*
Package storage provides data models for captures and indexing state.

These models represent persisted screenshots, indexing jobs and failures,
learned extraction rules, and search history.
*/
package storage

import (
	"time"

	"github.com/khanglvm/monitome/internal/activity"
)

// Screenshot is an immutable capture record.
type Screenshot struct {
	// ID is a time-sortable ULID.
	ID string `json:"id"`

	// CreatedAt is when the capture was taken.
	CreatedAt time.Time `json:"created_at"`

	// Date is the local calendar date (YYYY-MM-DD) of CreatedAt.
	Date string `json:"date"`

	// Time is the local time of day (HH:MM:SS) of CreatedAt.
	Time string `json:"time"`

	// Path is where the image bytes are stored.
	Path string `json:"path"`

	// Trigger is the reason the capture was taken (periodic, manual, ...).
	Trigger string `json:"trigger"`
}

// NewScreenshot builds a record for a capture taken at the given instant.
// Path is filled in by Append.
func NewScreenshot(id string, at time.Time, trigger string) Screenshot {
	local := at.Local()
	return Screenshot{
		ID:        id,
		CreatedAt: at,
		Date:      local.Format(activity.DateLayout),
		Time:      local.Format("15:04:05"),
		Trigger:   trigger,
	}
}

// Job is a pending indexing request for one screenshot.
type Job struct {
	// ScreenshotID identifies the capture to index.
	ScreenshotID string `json:"screenshot_id"`

	// Attempts counts claims, including the current one.
	Attempts int `json:"attempts"`

	// Force re-indexes even when an entry already exists.
	Force bool `json:"force"`

	// LastError is the reason for the previous retry, if any.
	LastError string `json:"last_error,omitempty"`

	// VisibleAt is when the job can next be claimed. Together with
	// Attempts it identifies one claim.
	VisibleAt time.Time `json:"visible_at"`

	// CreatedAt is when the job was enqueued.
	CreatedAt time.Time `json:"created_at"`
}

// Failure records a screenshot that reached the terminal failed state.
type Failure struct {
	ScreenshotID string    `json:"screenshot_id"`
	Attempts     int       `json:"attempts"`
	Reason       string    `json:"reason"`
	FailedAt     time.Time `json:"failed_at"`
}

// QueueStats summarizes the indexing backlog.
type QueueStats struct {
	Pending int `json:"pending"`
	Failed  int `json:"failed"`
}

// LearnedRule is one accumulated correction appended to extraction requests.
type LearnedRule struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// SearchRecord represents a search query for analytics.
type SearchRecord struct {
	// SearchID is a unique identifier for this search (UUID).
	SearchID string `json:"search_id"`

	// QueryHash is the SHA256 hash of the search query for privacy.
	QueryHash string `json:"query_hash"`

	// Timestamp is when the search was performed.
	Timestamp time.Time `json:"timestamp"`

	// ResultsCount is the number of results returned.
	ResultsCount int `json:"results_count"`
}
