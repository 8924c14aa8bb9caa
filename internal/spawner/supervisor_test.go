package spawner

import (
	"context"
	"errors"
	"os/exec"
	"sync/atomic"
	"testing"
	"time"
)

func fastOptions() Options {
	return Options{
		HealthInterval: 20 * time.Millisecond,
		HealthFailures: 1,
		MinBackoff:     10 * time.Millisecond,
		MaxBackoff:     40 * time.Millisecond,
		GracePeriod:    200 * time.Millisecond,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestOptionsDefaults(t *testing.T) {
	var o Options
	o.defaults()

	if o.HealthInterval != 10*time.Second {
		t.Errorf("Expected 10s health interval, got %v", o.HealthInterval)
	}
	if o.MinBackoff != time.Second || o.MaxBackoff != 30*time.Second {
		t.Errorf("Expected 1s..30s backoff, got %v..%v", o.MinBackoff, o.MaxBackoff)
	}
	if o.GracePeriod != 2*time.Second {
		t.Errorf("Expected 2s grace period, got %v", o.GracePeriod)
	}
	if o.Logger == nil {
		t.Error("Logger not defaulted")
	}
}

func TestSupervisor_StartAndGracefulClose(t *testing.T) {
	// cat exits as soon as stdin is closed.
	opts := fastOptions()
	opts.GracePeriod = time.Second
	sup := NewSupervisor(Spec{Name: "cat", Command: "cat"}, nil, opts)

	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !sup.Running() {
		t.Fatal("expected process to be running")
	}

	start := time.Now()
	if err := sup.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed >= opts.GracePeriod {
		t.Errorf("graceful close took %v, expected exit on stdin close", elapsed)
	}
	if sup.Running() {
		t.Error("process still running after Close")
	}
}

func TestSupervisor_ForceKillAfterGracePeriod(t *testing.T) {
	sup := NewSupervisor(Spec{Command: "sleep", Args: []string{"30"}}, nil, fastOptions())

	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	start := time.Now()
	if err := sup.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("force kill took too long: %v", elapsed)
	}
}

func TestSupervisor_RestartsOnExit(t *testing.T) {
	sup := NewSupervisor(Spec{Command: "sh", Args: []string{"-c", "exit 1"}}, nil, fastOptions())

	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sup.Close()

	waitFor(t, 3*time.Second, func() bool { return sup.Restarts() >= 2 })
}

func TestSupervisor_RestartsOnHealthFailure(t *testing.T) {
	var checks atomic.Int32
	health := func(ctx context.Context) error {
		checks.Add(1)
		return errors.New("unhealthy")
	}

	sup := NewSupervisor(Spec{Command: "cat"}, health, fastOptions())
	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sup.Close()

	waitFor(t, 3*time.Second, func() bool { return sup.Restarts() >= 1 })
	if checks.Load() == 0 {
		t.Error("health check never ran")
	}
}

func TestSupervisor_HealthyProcessIsNotRestarted(t *testing.T) {
	health := func(ctx context.Context) error { return nil }

	sup := NewSupervisor(Spec{Command: "cat"}, health, fastOptions())
	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sup.Close()

	time.Sleep(150 * time.Millisecond)
	if n := sup.Restarts(); n != 0 {
		t.Errorf("Expected 0 restarts, got %d", n)
	}
}

func TestSupervisor_StartFailure(t *testing.T) {
	sup := NewSupervisor(Spec{Command: "/nonexistent/monitome-sidecar"}, nil, fastOptions())
	if err := sup.Start(context.Background()); err == nil {
		sup.Close()
		t.Fatal("expected start error for missing binary")
	}
	if err := sup.Close(); err != nil {
		t.Errorf("Close after failed start returned error: %v", err)
	}
}

func TestExecCommandVariable(t *testing.T) {
	originalExec := execCommand
	defer func() { execCommand = originalExec }()

	var gotName string
	var gotArgs []string
	execCommand = func(name string, args ...string) *exec.Cmd {
		gotName = name
		gotArgs = args
		return exec.Command("cat")
	}

	sup := NewSupervisor(Spec{Command: "uvicorn", Args: []string{"main:app", "--port", "8420"}}, nil, fastOptions())
	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sup.Close()

	if gotName != "uvicorn" || len(gotArgs) != 3 {
		t.Errorf("unexpected command %s %v", gotName, gotArgs)
	}
}
