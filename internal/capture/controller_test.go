package capture

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"pgregory.net/rapid"
)

type fakeToggles struct {
	capture atomic.Bool
	events  atomic.Bool
}

func (f *fakeToggles) CaptureEnabled() bool       { return f.capture.Load() }
func (f *fakeToggles) EventTriggersEnabled() bool { return f.events.Load() }

type fakeSource struct {
	mu      sync.Mutex
	running bool
	starts  int
	stops   int
	err     error
}

func (s *fakeSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.running {
		panic("started twice")
	}
	s.running = true
	s.starts++
	return nil
}

func (s *fakeSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		panic("stopped twice")
	}
	s.running = false
	s.stops++
}

func (s *fakeSource) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func TestController_Transitions(t *testing.T) {
	toggles := &fakeToggles{}
	src := &fakeSource{}
	c := NewController(src, toggles, nil)

	tests := []struct {
		capture, events bool
		want            bool
	}{
		{false, false, false},
		{true, false, false},
		{true, true, true},
		{true, true, true},
		{false, true, false},
		{true, true, true},
		{true, false, false},
	}

	for i, tt := range tests {
		toggles.capture.Store(tt.capture)
		toggles.events.Store(tt.events)
		if err := c.Reconcile(); err != nil {
			t.Fatalf("step %d: Reconcile failed: %v", i, err)
		}
		if c.Running() != tt.want || src.isRunning() != tt.want {
			t.Fatalf("step %d: capture=%v events=%v: expected running=%v", i, tt.capture, tt.events, tt.want)
		}
	}

	if src.starts != 2 || src.stops != 2 {
		t.Errorf("expected 2 starts and 2 stops, got %d/%d", src.starts, src.stops)
	}
}

func TestController_StartFailureStaysStopped(t *testing.T) {
	toggles := &fakeToggles{}
	toggles.capture.Store(true)
	toggles.events.Store(true)
	src := &fakeSource{err: errors.New("probe missing")}
	c := NewController(src, toggles, nil)

	if err := c.Reconcile(); err == nil {
		t.Fatal("expected start error")
	}
	if c.Running() {
		t.Error("controller must stay stopped when the source fails to start")
	}
}

func TestController_InvariantUnderConcurrentToggles(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		toggles := &fakeToggles{}
		src := &fakeSource{}
		c := NewController(src, toggles, nil)

		type op struct {
			capture bool
			value   bool
		}
		ops := rapid.SliceOfN(rapid.Custom(func(t *rapid.T) op {
			return op{capture: rapid.Bool().Draw(t, "capture"), value: rapid.Bool().Draw(t, "value")}
		}), 1, 30).Draw(rt, "ops")

		var wg sync.WaitGroup
		for _, o := range ops {
			wg.Add(1)
			go func(o op) {
				defer wg.Done()
				if o.capture {
					toggles.capture.Store(o.value)
				} else {
					toggles.events.Store(o.value)
				}
				c.Reconcile()
			}(o)
		}
		wg.Wait()

		want := toggles.CaptureEnabled() && toggles.EventTriggersEnabled()
		if src.isRunning() != want || c.Running() != want {
			rt.Fatalf("source running=%v, want %v", src.isRunning(), want)
		}
	})
}

func TestController_Shutdown(t *testing.T) {
	toggles := &fakeToggles{}
	toggles.capture.Store(true)
	toggles.events.Store(true)
	src := &fakeSource{}
	c := NewController(src, toggles, nil)

	c.Reconcile()
	c.Shutdown()
	c.Shutdown()

	if src.isRunning() {
		t.Error("expected source stopped after Shutdown")
	}
}
