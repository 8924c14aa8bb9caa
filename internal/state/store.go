/*
Package state holds the process-wide recording state.

A Store is constructed once by the pipeline and passed to every component
that needs it. Toggle mutations persist first and notify second, so no
subscriber ever observes a value that is not yet durable. The daily
capture count is re-read from storage on every capture-completed event
rather than incremented in place.
*/
package state

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/khanglvm/monitome/internal/events"
	"github.com/khanglvm/monitome/internal/storage"
)

// Change names what changed. Subscribers re-read the store.
type Change int

const (
	RecordingChanged Change = iota
	EventTriggersChanged
	CountChanged
)

func (c Change) String() string {
	switch c {
	case RecordingChanged:
		return "recording"
	case EventTriggersChanged:
		return "event_triggers"
	case CountChanged:
		return "today_count"
	default:
		return "unknown"
	}
}

// Prefs persists boolean toggles.
type Prefs interface {
	Bool(key string, def bool) (bool, error)
	SetBool(key string, value bool) error
}

// Counter counts today's captures.
type Counter interface {
	TodayCount(ctx context.Context) (int, error)
}

// Snapshot is a point-in-time copy of the state.
type Snapshot struct {
	CaptureEnabled       bool `json:"capture_enabled" yaml:"capture_enabled"`
	EventTriggersEnabled bool `json:"event_triggers_enabled" yaml:"event_triggers_enabled"`
	TodayCount           int  `json:"today_count" yaml:"today_count"`
}

// Store is the reactive state container.
type Store struct {
	prefs   Prefs
	counter Counter
	logger  *slog.Logger
	bus     *events.Bus[Change]

	// mu orders toggle writes with their notifications.
	mu      sync.Mutex
	countMu sync.Mutex

	captureEnabled atomic.Bool
	eventTriggers  atomic.Bool
	todayCount     atomic.Int64
}

// Options configures a Store.
type Options struct {
	// AutoStart is the first-run value of CaptureEnabled.
	AutoStart bool

	Logger *slog.Logger
}

// NewStore loads persisted toggles and the current count.
// Event triggers default to enabled on first run.
func NewStore(ctx context.Context, prefs Prefs, counter Counter, opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Store{
		prefs:   prefs,
		counter: counter,
		logger:  opts.Logger.With("component", "state"),
		bus:     events.NewBus[Change](),
	}

	capture, err := prefs.Bool(storage.PrefCaptureEnabled, opts.AutoStart)
	if err != nil {
		return nil, fmt.Errorf("failed to load capture toggle: %w", err)
	}
	triggers, err := prefs.Bool(storage.PrefEventTriggers, true)
	if err != nil {
		return nil, fmt.Errorf("failed to load event trigger toggle: %w", err)
	}
	s.captureEnabled.Store(capture)
	s.eventTriggers.Store(triggers)

	n, err := counter.TodayCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load today count: %w", err)
	}
	s.todayCount.Store(int64(n))

	return s, nil
}

// CaptureEnabled reports whether recording is on.
func (s *Store) CaptureEnabled() bool { return s.captureEnabled.Load() }

// EventTriggersEnabled reports whether activity events may trigger captures.
func (s *Store) EventTriggersEnabled() bool { return s.eventTriggers.Load() }

// TodayCount is the number of captures dated today.
func (s *Store) TodayCount() int { return int(s.todayCount.Load()) }

// Snapshot returns all values at once.
func (s *Store) Snapshot() Snapshot {
	return Snapshot{
		CaptureEnabled:       s.CaptureEnabled(),
		EventTriggersEnabled: s.EventTriggersEnabled(),
		TodayCount:           s.TodayCount(),
	}
}

// Subscribe registers fn for change notifications. Notifications are
// delivered synchronously before the mutating call returns.
func (s *Store) Subscribe(fn func(Change)) (unsubscribe func()) {
	return s.bus.Subscribe(fn)
}

// SetCaptureEnabled persists and publishes the recording toggle. On a
// persistence error the previous value is kept and nobody is notified.
func (s *Store) SetCaptureEnabled(v bool) error {
	return s.set(storage.PrefCaptureEnabled, &s.captureEnabled, v, RecordingChanged)
}

// SetEventTriggersEnabled persists and publishes the event trigger toggle.
func (s *Store) SetEventTriggersEnabled(v bool) error {
	return s.set(storage.PrefEventTriggers, &s.eventTriggers, v, EventTriggersChanged)
}

// ToggleCapture flips the recording toggle and returns the new value.
func (s *Store) ToggleCapture() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := !s.captureEnabled.Load()
	if err := s.apply(storage.PrefCaptureEnabled, &s.captureEnabled, next, RecordingChanged); err != nil {
		return !next, err
	}
	return next, nil
}

func (s *Store) set(key string, field *atomic.Bool, v bool, change Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(key, field, v, change)
}

func (s *Store) apply(key string, field *atomic.Bool, v bool, change Change) error {
	if err := s.prefs.SetBool(key, v); err != nil {
		s.logger.Error("failed to persist toggle", "key", key, "value", v, "error", err)
		return fmt.Errorf("failed to persist %s: %w", key, err)
	}
	field.Store(v)
	s.logger.Info("toggle changed", "key", key, "value", v)
	s.bus.Publish(change)
	return nil
}

// RefreshCount re-reads today's count from storage and publishes it.
func (s *Store) RefreshCount(ctx context.Context) error {
	s.countMu.Lock()
	defer s.countMu.Unlock()

	n, err := s.counter.TodayCount(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh today count: %w", err)
	}
	if int64(n) != s.todayCount.Swap(int64(n)) {
		s.bus.Publish(CountChanged)
	}
	return nil
}
