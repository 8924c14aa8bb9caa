package learning

import (
	"log/slog"
	"sync"
	"time"

	"github.com/khanglvm/monitome/internal/storage"
)

const (
	// eventQueueSize is the buffer size for the event queue.
	// If full, events are dropped (non-blocking).
	eventQueueSize = 1000

	// batchFlushSize is the number of events that triggers an immediate flush.
	batchFlushSize = 10

	// flushInterval is how often pending events are written.
	flushInterval = 50 * time.Millisecond
)

// SearchRecorder persists search history.
type SearchRecorder interface {
	RecordSearch(search storage.SearchRecord) error
}

// Tracker records searches in the background with non-blocking writes.
type Tracker struct {
	store      SearchRecorder
	logger     *slog.Logger
	eventQueue chan SearchEvent
	stopChan   chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

// NewTracker creates a tracker and starts its background writer.
func NewTracker(store SearchRecorder, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		store:      store,
		logger:     logger.With("component", "search-tracker"),
		eventQueue: make(chan SearchEvent, eventQueueSize),
		stopChan:   make(chan struct{}),
	}

	t.wg.Add(1)
	go t.processEvents()

	return t
}

// Track queues a search event. If the queue is full the event is dropped.
func (t *Tracker) Track(event SearchEvent) {
	select {
	case <-t.stopChan:
		return
	default:
	}

	select {
	case t.eventQueue <- event:
	default:
		t.logger.Warn("search history queue full, dropping event", "search_id", event.SearchID)
	}
}

// Stop flushes pending events and stops the background writer.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopChan)
		t.wg.Wait()
	})
}

// Pending returns the number of queued events.
func (t *Tracker) Pending() int {
	return len(t.eventQueue)
}

// processEvents runs in the background, batching and flushing events.
func (t *Tracker) processEvents() {
	defer t.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]SearchEvent, 0, batchFlushSize)

	for {
		select {
		case event := <-t.eventQueue:
			batch = append(batch, event)
			if len(batch) >= batchFlushSize {
				t.flush(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				t.flush(batch)
				batch = batch[:0]
			}

		case <-t.stopChan:
			// Drain whatever is still queued, then exit.
			for {
				select {
				case event := <-t.eventQueue:
					batch = append(batch, event)
				default:
					t.flush(batch)
					return
				}
			}
		}
	}
}

// flush writes a batch of events to storage.
func (t *Tracker) flush(events []SearchEvent) {
	for _, event := range events {
		if err := t.store.RecordSearch(event.ToStorage()); err != nil {
			t.logger.Warn("failed to record search", "search_id", event.SearchID, "error", err)
		}
	}
}
