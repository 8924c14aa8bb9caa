package capture

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Window identifies the foreground window.
type Window struct {
	App   string `json:"app"`
	Title string `json:"title"`
}

// WindowProbe reports the foreground window.
type WindowProbe interface {
	Active(ctx context.Context) (Window, error)
}

// MonitorOptions configures an ActivityMonitor.
type MonitorOptions struct {
	// Probe is polled for app switches. Nil means only Notify emits events.
	Probe WindowProbe

	// Interval between probes. Default 1s.
	Interval time.Duration

	Logger *slog.Logger
}

// ActivityMonitor is the event-trigger source. While running it turns
// foreground app switches and externally reported activity into Event
// triggers.
type ActivityMonitor struct {
	sink   func(Trigger)
	opts   MonitorOptions
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewActivityMonitor creates a stopped monitor that sends triggers to sink.
func NewActivityMonitor(sink func(Trigger), opts MonitorOptions) *ActivityMonitor {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &ActivityMonitor{
		sink:   sink,
		opts:   opts,
		logger: opts.Logger.With("component", "activity-monitor"),
	}
}

// Start begins polling. Starting a running monitor is a no-op.
func (m *ActivityMonitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}
	m.running = true

	if m.opts.Probe != nil {
		ctx, cancel := context.WithCancel(context.Background())
		m.cancel = cancel
		m.wg.Add(1)
		go m.poll(ctx)
	}
	return nil
}

// Stop halts polling and waits for the poller to exit.
func (m *ActivityMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

// Running reports whether the monitor is emitting events.
func (m *ActivityMonitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Notify reports externally detected activity. It is ignored while the
// monitor is stopped and reports whether an event was emitted.
func (m *ActivityMonitor) Notify(reason string) bool {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()

	if !running {
		m.logger.Debug("event ignored, monitor stopped", "reason", reason)
		return false
	}
	m.sink(EventTrigger(reason))
	return true
}

func (m *ActivityMonitor) poll(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	var last string
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		w, err := m.opts.Probe.Active(ctx)
		if err != nil {
			if ctx.Err() == nil {
				m.logger.Debug("window probe failed", "error", err)
			}
			continue
		}

		app := strings.TrimSpace(w.App)
		if app == "" {
			continue
		}
		if last != "" && app != last && ctx.Err() == nil {
			m.sink(EventTrigger("app switch: " + app))
		}
		last = app
	}
}
