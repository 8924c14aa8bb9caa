package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/khanglvm/monitome/internal/activity"
	"github.com/khanglvm/monitome/internal/capture"
	"github.com/khanglvm/monitome/internal/extraction"
	"github.com/khanglvm/monitome/internal/indexer"
	"github.com/khanglvm/monitome/internal/learning"
	"github.com/khanglvm/monitome/internal/search"
	"github.com/khanglvm/monitome/internal/state"
	"github.com/khanglvm/monitome/internal/storage"
)

// Status is a snapshot of the whole agent.
type Status struct {
	State          state.Snapshot     `json:"state" yaml:"state"`
	PeriodicActive bool               `json:"periodic_active" yaml:"periodic_active"`
	EventsActive   bool               `json:"events_active" yaml:"events_active"`
	Queue          storage.QueueStats `json:"queue" yaml:"queue"`
	Indexed        uint64             `json:"indexed" yaml:"indexed"`
	Sidecar        string             `json:"sidecar" yaml:"sidecar"`
	Permissions    PermissionStatus   `json:"permissions" yaml:"permissions"`
}

// PermissionStatus mirrors the host-granted permissions.
type PermissionStatus struct {
	Capture       bool `json:"capture" yaml:"capture"`
	Accessibility bool `json:"accessibility" yaml:"accessibility"`
}

// CaptureNow takes a manual screenshot. Manual captures bypass the
// cooldown but still require recording to be on.
func (p *Pipeline) CaptureNow(ctx context.Context) (*storage.Screenshot, error) {
	if !p.state.CaptureEnabled() {
		return nil, ErrRecordingDisabled
	}

	r, err := p.coordinator.Do(ctx, capture.ManualTrigger())
	if err != nil {
		return nil, err
	}

	switch r.Outcome {
	case capture.Captured:
		return r.Shot, nil
	case capture.Failed:
		return nil, r.Err
	case capture.Coalesced:
		if r.Shot != nil {
			return r.Shot, nil
		}
	}
	return nil, fmt.Errorf("%w: trigger %s", capture.ErrCaptureFailed, r.Outcome)
}

// SetRecording turns recording on or off. Turning it on without capture
// permission fails with capture.ErrPermissionDenied and changes nothing.
func (p *Pipeline) SetRecording(enabled bool) error {
	if enabled && !p.perms.CaptureGranted() {
		return capture.ErrPermissionDenied
	}
	return p.state.SetCaptureEnabled(enabled)
}

// ToggleRecording flips recording and returns the new value.
func (p *Pipeline) ToggleRecording() (bool, error) {
	if !p.state.CaptureEnabled() && !p.perms.CaptureGranted() {
		return false, capture.ErrPermissionDenied
	}
	return p.state.ToggleCapture()
}

// SetEventTriggers enables or disables activity-event captures.
func (p *Pipeline) SetEventTriggers(enabled bool) error {
	return p.state.SetEventTriggersEnabled(enabled)
}

// ReportActivity forwards externally detected activity to the event
// source. It reports false when event triggers are not running.
func (p *Pipeline) ReportActivity(reason string) bool {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "external"
	}
	return p.monitor.Notify(reason)
}

// Search queries the index and records the search in history.
func (p *Pipeline) Search(ctx context.Context, q search.Query) (*search.Results, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := p.index.Search(q)
	if err != nil {
		return nil, err
	}
	p.tracker.Track(learning.NewSearchEvent(q.Text, len(res.Hits)))
	return res, nil
}

// Entry returns the indexed entry for a screenshot.
func (p *Pipeline) Entry(ctx context.Context, id string) (*activity.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := p.index.Get(id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("entry %s: %w", id, storage.ErrNotFound)
	}
	return e, nil
}

// Failure returns the indexing failure recorded for a screenshot.
func (p *Pipeline) Failure(ctx context.Context, id string) (*storage.Failure, error) {
	return p.store.Failure(ctx, id)
}

// Failures lists recent indexing failures.
func (p *Pipeline) Failures(ctx context.Context, limit int) ([]storage.Failure, error) {
	return p.store.Failures(ctx, limit)
}

// Reindex re-runs extraction for a screenshot, replacing its entry.
func (p *Pipeline) Reindex(ctx context.Context, id string) error {
	return p.agent.Reindex(ctx, id)
}

// OnIndexed registers fn for every indexing attempt result.
func (p *Pipeline) OnIndexed(fn func(indexer.Result)) (unsubscribe func()) {
	return p.agent.Subscribe(fn)
}

// OnStateChange registers fn for toggle and count changes.
func (p *Pipeline) OnStateChange(fn func(state.Change)) (unsubscribe func()) {
	return p.state.Subscribe(fn)
}

// Rules lists learned extraction rules.
func (p *Pipeline) Rules(ctx context.Context) ([]storage.LearnedRule, error) {
	return p.rules.Rules(ctx)
}

// Learn appends an extraction rule. Requests already in flight keep the
// rules they started with.
func (p *Pipeline) Learn(ctx context.Context, text string) (*storage.LearnedRule, error) {
	rule, err := p.rules.Learn(ctx, text)
	if err != nil {
		return nil, err
	}
	p.logger.Info("rule learned", "rule_id", rule.ID)
	return rule, nil
}

// Summary asks the analysis service to digest one day of entries.
func (p *Pipeline) Summary(ctx context.Context, date string) (*extraction.Summary, error) {
	entries, err := p.dayEntries(ctx, date)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w on %s", ErrNoActivity, date)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CapturedAt.Before(entries[j].CapturedAt)
	})
	return p.analyzer.Summarize(ctx, entries)
}

// dayEntries pages through every entry captured on date. Entries indexed
// while paging can shift offsets, so ids are de-duplicated.
func (p *Pipeline) dayEntries(ctx context.Context, date string) ([]*activity.Entry, error) {
	var entries []*activity.Entry
	seen := map[string]bool{}
	q := search.Query{Date: date, Limit: summaryPage}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := p.index.Search(q)
		if err != nil {
			return nil, err
		}
		for _, e := range res.Entries() {
			if !seen[e.ScreenshotID] {
				seen[e.ScreenshotID] = true
				entries = append(entries, e)
			}
		}
		q.Offset += len(res.Hits)
		if len(res.Hits) == 0 || uint64(q.Offset) >= res.Total {
			return entries, nil
		}
	}
}

// Status reports the current state of every component.
func (p *Pipeline) Status(ctx context.Context) (*Status, error) {
	queue, err := p.store.QueueStats(ctx)
	if err != nil {
		return nil, err
	}
	indexed, err := p.index.Count()
	if err != nil {
		return nil, err
	}

	sidecar := "external"
	if p.sidecar != nil {
		sidecar = "stopped"
		if p.sidecar.Running() {
			sidecar = "running"
		}
	}

	return &Status{
		State:          p.state.Snapshot(),
		PeriodicActive: p.coordinator.Running(),
		EventsActive:   p.controller.Running(),
		Queue:          queue,
		Indexed:        indexed,
		Sidecar:        sidecar,
		Permissions: PermissionStatus{
			Capture:       p.perms.CaptureGranted(),
			Accessibility: p.perms.AccessibilityGranted(),
		},
	}, nil
}
