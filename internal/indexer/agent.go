/*
Package indexer turns persisted captures into searchable activity entries.

The Agent drains the durable indexing queue kept in storage with a fixed
number of workers. Each worker loads the screenshot, asks the extraction
service to analyze it together with the learned rules, and writes the
resulting entry to the search index. Retryable failures are rescheduled
with exponential backoff; permanent failures and exhausted jobs are moved
to the failure log.

Indexing is decoupled from capture: stopping recording never cancels a
job that a worker has already claimed.
*/
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/khanglvm/monitome/internal/activity"
	"github.com/khanglvm/monitome/internal/events"
	"github.com/khanglvm/monitome/internal/extraction"
	"github.com/khanglvm/monitome/internal/storage"
)

// Queue is the storage the agent works from.
type Queue interface {
	Enqueue(ctx context.Context, id string, force bool) (bool, error)
	Claim(ctx context.Context, visibility time.Duration) (*storage.Job, error)
	Complete(ctx context.Context, job *storage.Job) error
	Retry(ctx context.Context, job *storage.Job, delay time.Duration, reason string) error
	Fail(ctx context.Context, job *storage.Job, reason string) error
	Get(ctx context.Context, id string) (*storage.Screenshot, error)
	LoadImage(ctx context.Context, shot *storage.Screenshot) ([]byte, error)
	ListSince(ctx context.Context, since time.Time) ([]storage.Screenshot, error)
}

// Index is where entries are written.
type Index interface {
	Has(id string) (bool, error)
	Put(e *activity.Entry) error
}

// Rules supplies the learned-rule text sent with every request.
type Rules interface {
	Text(ctx context.Context) (string, error)
}

// Options configures an Agent. Zero values take defaults.
type Options struct {
	// Workers bounds concurrent extraction calls. Default 2.
	Workers int

	// MaxAttempts bounds how often one screenshot is tried. Default 3.
	MaxAttempts int

	// Backoff is the delay before the first retry; it doubles per
	// attempt up to MaxBackoff. Defaults 2s and 60s.
	Backoff    time.Duration
	MaxBackoff time.Duration

	// Timeout bounds one extraction call. Default 60s.
	Timeout time.Duration

	// Poll is how often the queue is checked when idle. Default 500ms.
	Poll time.Duration

	// Sweep is how often storage is re-scanned for screenshots without
	// an entry, looking back Backlog. Defaults 5m and 24h.
	Sweep   time.Duration
	Backlog time.Duration

	Now    func() time.Time
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.Backoff <= 0 {
		o.Backoff = 2 * time.Second
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 60 * time.Second
	}
	if o.MaxBackoff < o.Backoff {
		o.MaxBackoff = o.Backoff
	}
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	if o.Poll <= 0 {
		o.Poll = 500 * time.Millisecond
	}
	if o.Sweep <= 0 {
		o.Sweep = 5 * time.Minute
	}
	if o.Backlog <= 0 {
		o.Backlog = 24 * time.Hour
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Status is the outcome of one job attempt.
type Status int

const (
	// Indexed means an entry was written.
	Indexed Status = iota
	// Retrying means the attempt failed and the job was rescheduled.
	Retrying
	// Failed means the job reached its terminal failed state.
	Failed
	// Skipped means an entry already existed.
	Skipped
)

func (s Status) String() string {
	switch s {
	case Indexed:
		return "indexed"
	case Retrying:
		return "retrying"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Result is published after every job attempt.
type Result struct {
	ScreenshotID string
	Status       Status
	Attempts     int
	Entry        *activity.Entry
	Err          error
	RetryIn      time.Duration
}

// Agent is the activity indexing worker pool.
type Agent struct {
	queue     Queue
	index     Index
	extractor extraction.Client
	rules     Rules
	opts      Options
	logger    *slog.Logger

	results *events.Bus[Result]

	sem  chan struct{}
	wake chan struct{}

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
	stopped bool

	wg       sync.WaitGroup
	inflight sync.WaitGroup
}

// NewAgent creates an agent. Call Start to begin processing.
func NewAgent(q Queue, idx Index, extractor extraction.Client, rules Rules, opts Options) *Agent {
	opts.defaults()
	return &Agent{
		queue:     q,
		index:     idx,
		extractor: extractor,
		rules:     rules,
		opts:      opts,
		logger:    opts.Logger.With("component", "indexer"),
		results:   events.NewBus[Result](),
		sem:       make(chan struct{}, opts.Workers),
		wake:      make(chan struct{}, 1),
	}
}

// Subscribe registers fn for every job result. fn runs on a worker
// goroutine and must not block.
func (a *Agent) Subscribe(fn func(Result)) (unsubscribe func()) {
	return a.results.Subscribe(fn)
}

// Start sweeps the whole of storage for screenshots without an entry and
// then runs the dispatcher until Stop. Start may be called once.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return errors.New("indexer already started")
	}
	a.started = true

	ctx, a.cancel = context.WithCancel(ctx)

	a.wg.Add(1)
	go a.run(ctx)

	a.logger.Info("indexer started",
		"workers", a.opts.Workers,
		"max_attempts", a.opts.MaxAttempts,
		"timeout", a.opts.Timeout)
	return nil
}

// Stop stops claiming new jobs and waits for in-flight ones to finish.
func (a *Agent) Stop() {
	a.mu.Lock()
	if !a.started || a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	a.cancel()
	a.mu.Unlock()

	a.wg.Wait()
	a.inflight.Wait()
	a.logger.Info("indexer stopped")
}

// Notify enqueues a freshly captured screenshot. It matches the storage
// capture-completed callback. Screenshots that already have an entry are
// ignored; lost notifications are picked up by the periodic sweep.
func (a *Agent) Notify(shot storage.Screenshot) {
	if err := a.enqueue(context.Background(), shot.ID); err != nil {
		a.logger.Warn("failed to enqueue screenshot", "screenshot_id", shot.ID, "error", err)
	}
}

// Reindex forces id through extraction again. Any failure record is
// cleared and the new entry replaces the old one.
func (a *Agent) Reindex(ctx context.Context, id string) error {
	if _, err := a.queue.Get(ctx, id); err != nil {
		return err
	}
	if _, err := a.queue.Enqueue(ctx, id, true); err != nil {
		return err
	}
	a.logger.Info("reindex requested", "screenshot_id", id)
	a.poke()
	return nil
}

// Sweep enqueues every screenshot created at or after since that has no
// entry yet, and returns how many jobs were created.
func (a *Agent) Sweep(ctx context.Context, since time.Time) (int, error) {
	shots, err := a.queue.ListSince(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("failed to list backlog: %w", err)
	}

	created := 0
	for _, shot := range shots {
		has, err := a.index.Has(shot.ID)
		if err != nil {
			return created, err
		}
		if has {
			continue
		}
		ok, err := a.queue.Enqueue(ctx, shot.ID, false)
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}

	if created > 0 {
		a.logger.Info("backlog enqueued", "count", created)
		a.poke()
	}
	return created, nil
}

func (a *Agent) enqueue(ctx context.Context, id string) error {
	has, err := a.index.Has(id)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	if _, err := a.queue.Enqueue(ctx, id, false); err != nil {
		return err
	}
	a.poke()
	return nil
}

func (a *Agent) poke() {
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

// visibility hides a claimed job long enough for one call to finish.
func (a *Agent) visibility() time.Duration {
	return a.opts.Timeout + 30*time.Second
}

// backoff returns min(Backoff * 2^(attempt-1), MaxBackoff).
func (a *Agent) backoff(attempt int) time.Duration {
	d := a.opts.Backoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= a.opts.MaxBackoff {
			return a.opts.MaxBackoff
		}
	}
	return d
}

func (a *Agent) run(ctx context.Context) {
	defer a.wg.Done()

	if _, err := a.Sweep(ctx, time.Unix(0, 0)); err != nil && ctx.Err() == nil {
		a.logger.Warn("startup sweep failed", "error", err)
	}

	ticker := time.NewTicker(a.opts.Poll)
	defer ticker.Stop()
	sweep := time.NewTicker(a.opts.Sweep)
	defer sweep.Stop()

	for {
		a.dispatch(ctx)

		select {
		case <-ctx.Done():
			return
		case <-a.wake:
		case <-ticker.C:
		case <-sweep.C:
			if _, err := a.Sweep(ctx, a.opts.Now().Add(-a.opts.Backlog)); err != nil && ctx.Err() == nil {
				a.logger.Warn("sweep failed", "error", err)
			}
		}
	}
}

// dispatch claims jobs until the queue is empty. When every worker is
// busy it waits for a free slot.
func (a *Agent) dispatch(ctx context.Context) {
	for {
		select {
		case a.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		job, err := a.queue.Claim(ctx, a.visibility())
		if err != nil || job == nil {
			<-a.sem
			if err != nil && ctx.Err() == nil {
				a.logger.Warn("claim failed", "error", err)
			}
			return
		}

		a.inflight.Add(1)
		go func(job *storage.Job) {
			defer a.inflight.Done()
			defer func() {
				<-a.sem
				a.poke()
			}()
			a.publish(a.process(job))
		}(job)
	}
}

// process runs one attempt. It uses its own context so in-flight work
// outlives Stop.
func (a *Agent) process(job *storage.Job) Result {
	ctx := context.Background()
	id := job.ScreenshotID
	res := Result{ScreenshotID: id, Attempts: job.Attempts}

	// A crashed worker can leave a job that was claimed too often.
	if job.Attempts > a.opts.MaxAttempts {
		return a.fail(ctx, job, res, fmt.Errorf("exceeded %d attempts: %s", a.opts.MaxAttempts, job.LastError))
	}

	if !job.Force {
		has, err := a.index.Has(id)
		if err != nil {
			return a.retry(ctx, job, res, err)
		}
		if has {
			a.complete(ctx, job)
			res.Status = Skipped
			return res
		}
	}

	shot, err := a.queue.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return a.fail(ctx, job, res, err)
	}
	if err != nil {
		return a.retry(ctx, job, res, err)
	}

	image, err := a.queue.LoadImage(ctx, shot)
	if errors.Is(err, storage.ErrNotFound) {
		return a.fail(ctx, job, res, err)
	}
	if err != nil {
		return a.retry(ctx, job, res, err)
	}

	// Snapshot of the rules for this request only.
	rules, err := a.rules.Text(ctx)
	if err != nil {
		return a.retry(ctx, job, res, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	analysis, err := a.extractor.Extract(callCtx, extraction.Request{
		Image:     image,
		MediaType: "image/png",
		Timestamp: shot.CreatedAt,
		Rules:     rules,
	})
	cancel()
	if err != nil {
		if extraction.IsRetryable(err) {
			return a.retry(ctx, job, res, err)
		}
		return a.fail(ctx, job, res, err)
	}

	entry := activity.NewEntry(shot.ID, shot.CreatedAt, analysis, a.opts.Now())
	if err := a.index.Put(entry); err != nil {
		return a.retry(ctx, job, res, err)
	}
	// The entry is written; a redelivery is skipped by the Has check.
	a.complete(ctx, job)

	a.logger.Info("screenshot indexed", "screenshot_id", id, "attempt", job.Attempts, "tags", entry.Tags)
	res.Status = Indexed
	res.Entry = entry
	return res
}

// complete removes the finished job unless a newer request replaced it.
func (a *Agent) complete(ctx context.Context, job *storage.Job) {
	err := a.queue.Complete(ctx, job)
	switch {
	case errors.Is(err, storage.ErrJobSuperseded):
		a.logger.Info("job superseded, leaving newer request queued", "screenshot_id", job.ScreenshotID)
		a.poke()
	case err != nil:
		a.logger.Warn("failed to complete job", "screenshot_id", job.ScreenshotID, "error", err)
	}
}

func (a *Agent) retry(ctx context.Context, job *storage.Job, res Result, cause error) Result {
	if res.Attempts >= a.opts.MaxAttempts {
		return a.fail(ctx, job, res, cause)
	}

	delay := a.backoff(res.Attempts)
	if err := a.queue.Retry(ctx, job, delay, cause.Error()); errors.Is(err, storage.ErrJobSuperseded) {
		a.logger.Info("job superseded, skipping retry", "screenshot_id", res.ScreenshotID)
		a.poke()
	} else if err != nil {
		// The claim expires on its own and the job is redelivered.
		a.logger.Error("failed to reschedule job", "screenshot_id", res.ScreenshotID, "error", err)
	}

	a.logger.Warn("extraction failed, retrying",
		"screenshot_id", res.ScreenshotID,
		"attempt", res.Attempts,
		"retry_in", delay,
		"error", cause)

	res.Status = Retrying
	res.Err = cause
	res.RetryIn = delay
	return res
}

func (a *Agent) fail(ctx context.Context, job *storage.Job, res Result, cause error) Result {
	if err := a.queue.Fail(ctx, job, cause.Error()); errors.Is(err, storage.ErrJobSuperseded) {
		a.logger.Info("job superseded, not recording failure", "screenshot_id", res.ScreenshotID)
		a.poke()
	} else if err != nil {
		a.logger.Error("failed to record indexing failure", "screenshot_id", res.ScreenshotID, "error", err)
	}

	a.logger.Error("indexing failed permanently",
		"screenshot_id", res.ScreenshotID,
		"attempt", res.Attempts,
		"error", cause)

	res.Status = Failed
	res.Err = cause
	return res
}

func (a *Agent) publish(res Result) {
	a.results.Publish(res)
}
