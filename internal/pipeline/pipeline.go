/*
Package pipeline is the single point of construction and teardown for the
capture agent.

New builds every component from configuration and wires them together:

	activity monitor ─┐
	periodic timer  ──┼─> coordinator ─> recorder ─> storage
	manual command  ──┘                                │ capture completed
	                              ┌────────────────────┴───────────┐
	                          state (today count)            indexer queue
	                                                               │
	                                   extraction service <── workers ──> search index

Recording toggles live in the state store. Every toggle change is
applied to the coordinator (periodic and event acceptance) and to the
controller (event source) before the setter returns.
*/
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/khanglvm/monitome/internal/activity"
	"github.com/khanglvm/monitome/internal/capture"
	"github.com/khanglvm/monitome/internal/config"
	"github.com/khanglvm/monitome/internal/extraction"
	"github.com/khanglvm/monitome/internal/indexer"
	"github.com/khanglvm/monitome/internal/learning"
	"github.com/khanglvm/monitome/internal/search"
	"github.com/khanglvm/monitome/internal/spawner"
	"github.com/khanglvm/monitome/internal/state"
	"github.com/khanglvm/monitome/internal/storage"
)

var (
	// ErrRecordingDisabled is returned by CaptureNow while recording is off.
	ErrRecordingDisabled = errors.New("recording is disabled")

	// ErrNoActivity is returned by Summary for a day without entries.
	ErrNoActivity = errors.New("no activity recorded")
)

// searchHistoryRetention bounds how long search history is kept.
const searchHistoryRetention = 90 * 24 * time.Hour

// summaryPage is the page size used to collect a day for Summary.
const summaryPage = 500

// Analyzer is the analysis service as the pipeline uses it.
type Analyzer interface {
	extraction.Client
	Summarize(ctx context.Context, entries []*activity.Entry) (*extraction.Summary, error)
	Health(ctx context.Context) error
}

// Options overrides collaborators built from config. Zero values use
// the configured command-line tools and the HTTP analysis client.
type Options struct {
	Grabber  capture.Grabber
	Probe    capture.WindowProbe
	Analyzer Analyzer

	// MemIndex keeps the search index in memory.
	MemIndex bool

	Logger *slog.Logger
}

// Pipeline owns every component of a running agent.
type Pipeline struct {
	cfg    *config.Config
	logger *slog.Logger

	store    *storage.SQLiteStorage
	index    *search.Index
	rules    *learning.Rulebook
	tracker  *learning.Tracker
	analyzer Analyzer
	sidecar  *spawner.Supervisor

	perms       capture.Permissions
	recorder    *capture.Recorder
	coordinator *capture.Coordinator
	monitor     *capture.ActivityMonitor
	controller  *capture.Controller

	state *state.Store
	agent *indexer.Agent

	unsubscribe []func()

	mu      sync.Mutex
	started bool
	closed  bool
}

// New builds a pipeline from cfg. Nothing runs until Start.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Pipeline, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	logger := opts.Logger

	dataDir, err := cfg.ResolveDataDir()
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:    cfg,
		logger: logger.With("component", "pipeline"),
		perms: capture.StaticPermissions{
			Capture:       cfg.Capture.PermissionGranted,
			Accessibility: cfg.Capture.AccessibilityGranted,
		},
	}

	p.store = storage.NewStorage(dataDir)
	if err := p.store.Init(); err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	if opts.MemIndex {
		p.index, err = search.NewMemIndex()
	} else {
		p.index, err = search.NewIndexWithPath(filepath.Join(dataDir, "index.bleve"))
	}
	if err != nil {
		p.store.Close()
		return nil, fmt.Errorf("failed to open search index: %w", err)
	}

	p.rules = learning.NewRulebook(p.store)
	p.tracker = learning.NewTracker(p.store, logger)

	p.analyzer = opts.Analyzer
	if p.analyzer == nil {
		p.analyzer = extraction.NewHTTPClient(cfg.Analysis.URL)
	}
	if cfg.Analysis.Command != "" {
		p.sidecar = spawner.NewSupervisor(spawner.Spec{
			Name:    "analysis",
			Command: cfg.Analysis.Command,
			Args:    cfg.Analysis.Args,
			Env:     cfg.Analysis.Env,
		}, p.analyzer.Health, spawner.Options{
			HealthInterval: cfg.Analysis.HealthInterval(),
			Logger:         logger,
		})
	}

	p.state, err = state.NewStore(ctx, p.store, p.store, state.Options{
		AutoStart: cfg.Capture.AutoStart,
		Logger:    logger,
	})
	if err != nil {
		p.index.Close()
		p.store.Close()
		return nil, err
	}

	grabber := opts.Grabber
	if grabber == nil {
		grabber = &capture.CommandGrabber{
			Command: cfg.Capture.Command,
			Args:    cfg.Capture.Args,
			TempDir: filepath.Join(dataDir, "tmp"),
		}
	}
	probe := opts.Probe
	if probe == nil && cfg.Capture.ProbeCommand != "" {
		probe = &capture.CommandProbe{
			Command: cfg.Capture.ProbeCommand,
			Args:    cfg.Capture.ProbeArgs,
		}
	}

	p.recorder = capture.NewRecorder(grabber, p.perms, p.store, logger)
	p.coordinator = capture.NewCoordinator(p.recorder, capture.CoordinatorOptions{
		Interval: cfg.Capture.Interval(),
		Cooldown: cfg.Capture.Cooldown(),
		Logger:   logger,
	})
	p.monitor = capture.NewActivityMonitor(p.coordinator.Submit, capture.MonitorOptions{
		Probe:    probe,
		Interval: cfg.Capture.ProbeInterval(),
		Logger:   logger,
	})
	p.controller = capture.NewController(p.monitor, p.state, logger)

	p.agent = indexer.NewAgent(p.store, p.index, p.analyzer, p.rules, indexer.Options{
		Workers:     cfg.Indexing.Workers,
		MaxAttempts: cfg.Indexing.MaxAttempts,
		Backoff:     cfg.Indexing.Backoff(),
		MaxBackoff:  cfg.Indexing.MaxBackoff(),
		Timeout:     cfg.Indexing.Timeout(),
		Poll:        cfg.Indexing.Poll(),
		Sweep:       cfg.Indexing.Sweep(),
		Logger:      logger,
	})

	return p, nil
}

// Start launches the sidecar and the indexer, then applies the persisted
// recording toggles.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errors.New("pipeline closed")
	}
	if p.started {
		return nil
	}
	p.started = true

	if err := p.store.Cleanup(searchHistoryRetention); err != nil {
		p.logger.Warn("search history cleanup failed", "error", err)
	}

	if p.sidecar != nil {
		// The indexer retries while the sidecar is down, so a failed
		// start is not fatal.
		if err := p.sidecar.Start(ctx); err != nil {
			p.logger.Error("failed to start analysis sidecar", "error", err)
		}
	}

	p.unsubscribe = append(p.unsubscribe,
		p.store.OnCaptureCompleted(p.captureCompleted),
		p.state.Subscribe(p.stateChanged),
	)

	if err := p.agent.Start(ctx); err != nil {
		return err
	}

	if p.state.CaptureEnabled() && !p.perms.CaptureGranted() {
		p.logger.Warn("screen capture permission not granted, recording turned off")
		if err := p.state.SetCaptureEnabled(false); err != nil {
			p.logger.Error("failed to persist recording toggle", "error", err)
		}
	}
	p.applyRecording()

	snap := p.state.Snapshot()
	p.logger.Info("pipeline started",
		"capture_enabled", snap.CaptureEnabled,
		"event_triggers_enabled", snap.EventTriggersEnabled,
		"today_count", snap.TodayCount)
	return nil
}

// Close stops capture, drains in-flight indexing and releases storage.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.controller.Shutdown()
	p.coordinator.Close()
	p.agent.Stop()
	p.tracker.Stop()

	for _, unsubscribe := range p.unsubscribe {
		unsubscribe()
	}

	var errs []error
	if p.sidecar != nil {
		errs = append(errs, p.sidecar.Close())
	}
	errs = append(errs, p.index.Close(), p.store.Close())

	p.logger.Info("pipeline closed")
	return errors.Join(errs...)
}

// captureCompleted runs after every successful storage write.
func (p *Pipeline) captureCompleted(shot storage.Screenshot) {
	if err := p.state.RefreshCount(context.Background()); err != nil {
		p.logger.Warn("failed to refresh today count", "error", err)
	}
	p.agent.Notify(shot)
}

// stateChanged runs synchronously inside every toggle mutation.
func (p *Pipeline) stateChanged(c state.Change) {
	switch c {
	case state.RecordingChanged:
		p.applyRecording()
	case state.EventTriggersChanged:
		p.reconcile()
	}
}

// applyRecording gates periodic capture on the recording toggle and
// capture permission, then re-evaluates the event source.
func (p *Pipeline) applyRecording() {
	if p.state.CaptureEnabled() && p.perms.CaptureGranted() {
		p.coordinator.Start()
	} else {
		p.coordinator.Stop()
	}
	p.reconcile()
}

func (p *Pipeline) reconcile() {
	if err := p.controller.Reconcile(); err != nil {
		p.logger.Error("failed to reconcile event triggers", "error", err)
	}
}
