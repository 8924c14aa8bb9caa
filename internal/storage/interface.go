/*
Package storage implements the persistent storage layer for captures.

This package provides SQLite-based storage for screenshot records, the
durable indexing queue, persisted recording toggles, learned extraction
rules, and search history. Image bytes live next to the database under
<dataDir>/screenshots/<date>/<id>.png.

The database is stored at <dataDir>/monitome.db and uses modernc.org/sqlite
(a pure Go, CGo-free implementation) in WAL mode so the CLI and the
running agent can share it.
*/
package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/khanglvm/monitome/internal/events"
	_ "modernc.org/sqlite"
)

var (
	// ErrWriteFailed reports an unrecoverable I/O error while persisting a
	// capture. The capture is dropped; callers do not retry.
	ErrWriteFailed = errors.New("storage write failed")

	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrJobSuperseded is returned when a claimed indexing job was reset
	// by a forced enqueue or reclaimed after its visibility expired.
	ErrJobSuperseded = errors.New("indexing job superseded")
)

// Storage defines the interface for persistent storage operations.
type Storage interface {
	// Init initializes the database and runs migrations.
	Init() error

	// Append persists the image and its screenshot record, then notifies
	// capture-completed subscribers.
	Append(ctx context.Context, shot *Screenshot, image []byte) error

	// Get looks up a screenshot by id.
	Get(ctx context.Context, id string) (*Screenshot, error)

	// LoadImage reads the image bytes referenced by a screenshot.
	LoadImage(ctx context.Context, shot *Screenshot) ([]byte, error)

	// TodayCount counts persisted screenshots dated today.
	TodayCount(ctx context.Context) (int, error)

	// ListSince returns screenshots created at or after since, oldest first.
	ListSince(ctx context.Context, since time.Time) ([]Screenshot, error)

	// OnCaptureCompleted registers a capture-completed subscriber.
	OnCaptureCompleted(fn func(Screenshot)) (unsubscribe func())

	// Enqueue adds a screenshot id to the indexing queue.
	Enqueue(ctx context.Context, id string, force bool) (bool, error)

	// Claim takes the oldest visible indexing job and hides it.
	Claim(ctx context.Context, visibility time.Duration) (*Job, error)

	// Complete removes a finished job if it is still claimed as job.
	Complete(ctx context.Context, job *Job) error

	// Retry hides a claimed job until delay has elapsed.
	Retry(ctx context.Context, job *Job, delay time.Duration, reason string) error

	// Fail removes a claimed job and records it as permanently failed.
	Fail(ctx context.Context, job *Job, reason string) error

	// Bool reads a persisted boolean preference.
	Bool(key string, def bool) (bool, error)

	// SetBool persists a boolean preference.
	SetBool(key string, value bool) error

	// AppendRule stores a learned extraction rule.
	AppendRule(ctx context.Context, text string) (*LearnedRule, error)

	// Rules lists learned rules, oldest first.
	Rules(ctx context.Context) ([]LearnedRule, error)

	// RecordSearch records a search query for analytics.
	RecordSearch(search SearchRecord) error

	// Cleanup removes old search history based on retention policy.
	Cleanup(retention time.Duration) error

	// Close closes the database connection.
	Close() error
}

// SQLiteStorage implements the Storage interface using SQLite.
type SQLiteStorage struct {
	db       *sql.DB
	dbPath   string
	imageDir string
	mu       sync.Mutex
	initOnce sync.Once

	// now is the clock used for dates and queue visibility.
	now func() time.Time

	completed *events.Bus[Screenshot]
}

// NewStorage creates a new SQLite storage instance rooted at dataDir.
//
// The database is created at <dataDir>/monitome.db on Init.
// If the directory doesn't exist, it will be created.
func NewStorage(dataDir string) *SQLiteStorage {
	return &SQLiteStorage{
		dbPath:    filepath.Join(dataDir, "monitome.db"),
		imageDir:  filepath.Join(dataDir, "screenshots"),
		now:       time.Now,
		completed: events.NewBus[Screenshot](),
	}
}

// Init initializes the database and runs migrations.
func (s *SQLiteStorage) Init() error {
	var initErr error
	s.initOnce.Do(func() {
		// Ensure directories exist
		if err := os.MkdirAll(filepath.Dir(s.dbPath), 0700); err != nil {
			initErr = fmt.Errorf("failed to create db directory: %w", err)
			return
		}
		if err := os.MkdirAll(s.imageDir, 0700); err != nil {
			initErr = fmt.Errorf("failed to create image directory: %w", err)
			return
		}

		// Pragmas in the DSN apply to every pooled connection
		dsn := s.dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			initErr = fmt.Errorf("failed to open database: %w", err)
			return
		}

		// Test connection
		if err := db.Ping(); err != nil {
			db.Close()
			initErr = fmt.Errorf("failed to ping database: %w", err)
			return
		}
		s.db = db

		// Run migrations
		if err := s.runMigrations(); err != nil {
			db.Close()
			s.db = nil
			initErr = fmt.Errorf("failed to run migrations: %w", err)
			return
		}
	})

	return initErr
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.db = nil
	return nil
}

// DB exposes the underlying handle for diagnostics.
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// OnCaptureCompleted registers fn to run after every successful Append.
func (s *SQLiteStorage) OnCaptureCompleted(fn func(Screenshot)) (unsubscribe func()) {
	return s.completed.Subscribe(fn)
}

// HashQuery creates a SHA256 hash of a query string for privacy.
func HashQuery(query string) string {
	hash := sha256.Sum256([]byte(query))
	return hex.EncodeToString(hash[:])
}

var errNotInitialized = errors.New("storage not initialized")

func (s *SQLiteStorage) ready() error {
	if s.db == nil {
		return errNotInitialized
	}
	return nil
}
