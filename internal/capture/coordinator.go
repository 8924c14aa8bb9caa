package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/khanglvm/monitome/internal/storage"
)

// Outcome is what happened to one trigger.
type Outcome int

const (
	// Captured means a screenshot was taken and stored.
	Captured Outcome = iota
	// Failed means the capture was attempted and failed.
	Failed
	// Cooldown means a non-manual trigger arrived inside the cooldown window.
	Cooldown
	// Stopped means a non-manual trigger arrived while the coordinator was stopped.
	Stopped
	// Coalesced means a higher-priority trigger queued alongside it was handled instead.
	Coalesced
	// Full means the inbox had no room and the trigger was dropped on submit.
	Full
)

func (o Outcome) String() string {
	switch o {
	case Captured:
		return "captured"
	case Failed:
		return "failed"
	case Cooldown:
		return "cooldown"
	case Stopped:
		return "stopped"
	case Coalesced:
		return "coalesced"
	case Full:
		return "full"
	default:
		return "unknown"
	}
}

// Report describes the handling of one trigger.
type Report struct {
	Trigger Trigger
	Outcome Outcome

	// Shot is the capture taken for this trigger, or for the trigger it
	// was coalesced into.
	Shot *storage.Screenshot
	Err  error
	At   time.Time
}

// Capturer takes one screenshot.
type Capturer interface {
	CaptureNow(ctx context.Context, t Trigger) (*storage.Screenshot, error)
}

// CoordinatorOptions configures a Coordinator. Zero values take defaults.
type CoordinatorOptions struct {
	// Interval between periodic triggers. Default 60s.
	Interval time.Duration

	// Cooldown is the minimum gap between the end of the last accepted
	// capture and the next non-manual one. Default 5s. Negative disables it.
	Cooldown time.Duration

	// AutoStart starts periodic and event acceptance on construction.
	AutoStart bool

	// InboxSize bounds pending triggers. Default 16.
	InboxSize int

	// CaptureTimeout bounds one capture. Default 30s.
	CaptureTimeout time.Duration

	// OnOutcome, if set, is called for every trigger. Outcomes are
	// reported from the coordinator goroutine, except Full, which is
	// reported on the goroutine calling Submit before it returns. The
	// hook must therefore be safe for concurrent use.
	OnOutcome func(Report)

	Now    func() time.Time
	Logger *slog.Logger
}

func (o *CoordinatorOptions) defaults() {
	if o.Interval <= 0 {
		o.Interval = 60 * time.Second
	}
	if o.Cooldown == 0 {
		o.Cooldown = 5 * time.Second
	}
	if o.InboxSize <= 0 {
		o.InboxSize = 16
	}
	if o.CaptureTimeout <= 0 {
		o.CaptureTimeout = 30 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

type request struct {
	trigger Trigger
	reply   chan Report
}

// Coordinator serializes triggers onto a single goroutine so captures
// never overlap.
type Coordinator struct {
	capturer Capturer
	opts     CoordinatorOptions
	logger   *slog.Logger

	inbox chan request

	mu       sync.Mutex
	running  bool
	tickStop chan struct{}

	// lastDone is only touched by the loop goroutine.
	lastDone time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// NewCoordinator creates a coordinator and starts its loop.
func NewCoordinator(c Capturer, opts CoordinatorOptions) *Coordinator {
	opts.defaults()

	ctx, cancel := context.WithCancel(context.Background())
	co := &Coordinator{
		capturer: c,
		opts:     opts,
		logger:   opts.Logger.With("component", "coordinator"),
		inbox:    make(chan request, opts.InboxSize),
		ctx:      ctx,
		cancel:   cancel,
	}

	co.wg.Add(1)
	go co.loop()

	if opts.AutoStart {
		co.Start()
	}
	return co
}

// Start accepts periodic and event triggers and starts the interval timer.
// Calling Start on a running coordinator is a no-op.
func (c *Coordinator) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running || c.closed {
		return
	}
	c.running = true
	c.tickStop = make(chan struct{})

	c.wg.Add(1)
	go c.tick(c.tickStop)

	c.logger.Info("capture started", "interval", c.opts.Interval, "cooldown", c.opts.Cooldown)
}

// Stop cancels the interval timer and rejects further periodic and event
// triggers. Manual triggers are still handled. Calling Stop on a stopped
// coordinator is a no-op.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}
	c.running = false
	close(c.tickStop)
	c.tickStop = nil

	c.logger.Info("capture stopped")
}

// Running reports whether periodic and event triggers are accepted.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Submit queues a trigger without blocking. When the inbox is full the
// trigger is dropped and reported as Full on the calling goroutine.
func (c *Coordinator) Submit(t Trigger) {
	select {
	case c.inbox <- request{trigger: t}:
	default:
		c.report(Report{Trigger: t, Outcome: Full, At: c.opts.Now()})
	}
}

// Do queues a trigger and waits for its outcome.
func (c *Coordinator) Do(ctx context.Context, t Trigger) (Report, error) {
	reply := make(chan Report, 1)

	select {
	case c.inbox <- request{trigger: t, reply: reply}:
	case <-ctx.Done():
		return Report{}, ctx.Err()
	case <-c.ctx.Done():
		return Report{}, errors.New("coordinator closed")
	}

	select {
	case r := <-reply:
		return r, nil
	case <-ctx.Done():
		return Report{}, ctx.Err()
	case <-c.ctx.Done():
		return Report{}, errors.New("coordinator closed")
	}
}

// Close stops the coordinator and waits for an in-progress capture.
func (c *Coordinator) Close() {
	c.Stop()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

func (c *Coordinator) tick(stop chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Submit(PeriodicTrigger())
		case <-stop:
			return
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Coordinator) loop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case first := <-c.inbox:
			c.handle(c.coalesce(first))
		}
	}
}

// coalesce drains triggers already waiting in the inbox and returns the
// highest-priority one. Others are reported as coalesced once the winner
// has been handled.
func (c *Coordinator) coalesce(first request) []request {
	batch := []request{first}
	for {
		select {
		case r := <-c.inbox:
			batch = append(batch, r)
		default:
			// Stable: among equal kinds the earliest wins.
			best := 0
			for i, r := range batch {
				if r.trigger.Kind > batch[best].trigger.Kind {
					best = i
				}
			}
			batch[0], batch[best] = batch[best], batch[0]
			return batch
		}
	}
}

func (c *Coordinator) handle(batch []request) {
	winner := batch[0]
	r := c.process(winner.trigger)
	c.deliver(winner, r)

	for _, other := range batch[1:] {
		c.deliver(other, Report{
			Trigger: other.trigger,
			Outcome: Coalesced,
			Shot:    r.Shot,
			At:      r.At,
		})
	}
}

func (c *Coordinator) process(t Trigger) Report {
	now := c.opts.Now()

	if t.Kind != Manual {
		if !c.Running() {
			return Report{Trigger: t, Outcome: Stopped, At: now}
		}
		if c.opts.Cooldown > 0 && !c.lastDone.IsZero() && now.Sub(c.lastDone) < c.opts.Cooldown {
			return Report{Trigger: t, Outcome: Cooldown, At: now}
		}
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.opts.CaptureTimeout)
	shot, err := c.capturer.CaptureNow(ctx, t)
	cancel()

	done := c.opts.Now()
	c.lastDone = done

	if err != nil {
		return Report{Trigger: t, Outcome: Failed, Err: err, At: done}
	}
	return Report{Trigger: t, Outcome: Captured, Shot: shot, At: done}
}

func (c *Coordinator) deliver(req request, r Report) {
	c.report(r)
	if req.reply != nil {
		req.reply <- r
	}
}

func (c *Coordinator) report(r Report) {
	attrs := []any{"trigger", r.Trigger.String(), "outcome", r.Outcome.String()}
	switch r.Outcome {
	case Captured:
		c.logger.Info("capture complete", append(attrs, "screenshot_id", r.Shot.ID)...)
	case Failed:
		c.logger.Warn("capture failed", append(attrs, "error", r.Err)...)
	default:
		c.logger.Debug("trigger dropped", attrs...)
	}

	if c.opts.OnOutcome != nil {
		c.opts.OnOutcome(r)
	}
}
