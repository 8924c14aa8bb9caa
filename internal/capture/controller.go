package capture

import (
	"log/slog"
	"sync"
)

// EventSource emits Event triggers while running.
type EventSource interface {
	Start() error
	Stop()
}

// Toggles is a read view of the recording switches.
type Toggles interface {
	CaptureEnabled() bool
	EventTriggersEnabled() bool
}

// Controller keeps the event source running exactly when capture and
// event triggers are both enabled.
type Controller struct {
	source  EventSource
	toggles Toggles
	logger  *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewController creates a controller in the Stopped state. Call Reconcile
// to apply the current toggles.
func NewController(source EventSource, toggles Toggles, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		source:  source,
		toggles: toggles,
		logger:  logger.With("component", "controller"),
	}
}

// Reconcile re-reads the toggles and starts or stops the event source to
// match. It is idempotent and safe to call concurrently; toggles are read
// under the controller lock so the most recent values always win.
func (c *Controller) Reconcile() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	want := c.toggles.CaptureEnabled() && c.toggles.EventTriggersEnabled()

	switch {
	case want && !c.running:
		if err := c.source.Start(); err != nil {
			c.logger.Error("failed to start event source", "error", err)
			return err
		}
		c.running = true
		c.logger.Info("event triggers running")
	case !want && c.running:
		c.source.Stop()
		c.running = false
		c.logger.Info("event triggers stopped")
	}
	return nil
}

// Running reports whether the event source is running.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Shutdown stops the event source regardless of toggles.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		c.source.Stop()
		c.running = false
	}
}
