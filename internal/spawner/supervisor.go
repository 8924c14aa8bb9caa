/*
Package spawner supervises the analysis service as a child process.

The supervisor handles:
  - Starting the sidecar with its configured command and environment
  - Periodic health checks
  - Restart on crash or repeated health failures, with exponential backoff
  - Graceful shutdown: close stdin, wait, then force kill
*/
package spawner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

// Spec describes the process to run.
type Spec struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
}

// HealthFunc reports whether the running sidecar is healthy.
type HealthFunc func(ctx context.Context) error

// Options tunes supervision. Zero values take defaults.
type Options struct {
	// HealthInterval is the time between health checks. Default 10s.
	HealthInterval time.Duration

	// HealthFailures is how many consecutive failed checks trigger a
	// restart. Default 3.
	HealthFailures int

	// MinBackoff and MaxBackoff bound the restart delay. Defaults 1s, 30s.
	MinBackoff time.Duration
	MaxBackoff time.Duration

	// GracePeriod is how long Close waits after closing stdin. Default 2s.
	GracePeriod time.Duration

	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.HealthInterval <= 0 {
		o.HealthInterval = 10 * time.Second
	}
	if o.HealthFailures <= 0 {
		o.HealthFailures = 3
	}
	if o.MinBackoff <= 0 {
		o.MinBackoff = time.Second
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Second
	}
	if o.GracePeriod <= 0 {
		o.GracePeriod = 2 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Supervisor keeps one sidecar process running.
type Supervisor struct {
	spec   Spec
	health HealthFunc
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	proc     *process
	restarts int
	closed   bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// process is one running instance of the sidecar.
type process struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	done  chan struct{}
	err   error
}

// NewSupervisor creates a supervisor. health may be nil to rely on
// process exit alone.
func NewSupervisor(spec Spec, health HealthFunc, opts Options) *Supervisor {
	opts.defaults()
	if spec.Name == "" {
		spec.Name = spec.Command
	}
	return &Supervisor{
		spec:   spec,
		health: health,
		opts:   opts,
		logger: opts.Logger.With("component", "spawner", "process", spec.Name),
	}
}

// Start launches the sidecar and the supervision loop.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("supervisor closed")
	}
	if s.cancel != nil {
		return nil
	}

	proc, err := s.spawn()
	if err != nil {
		return err
	}
	s.proc = proc

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.supervise(ctx)

	s.logger.Info("sidecar started", "pid", proc.cmd.Process.Pid)
	return nil
}

// Running reports whether a sidecar process is currently alive.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		return false
	}
	select {
	case <-s.proc.done:
		return false
	default:
		return true
	}
}

// Restarts returns how many times the sidecar has been restarted.
func (s *Supervisor) Restarts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts
}

// Close stops supervision and terminates the sidecar.
// Implements graceful shutdown: closes stdin first, waits, then force kills.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	s.mu.Lock()
	proc := s.proc
	s.proc = nil
	s.mu.Unlock()

	if proc == nil {
		return nil
	}
	return s.terminate(proc)
}

// supervise watches the current process and restarts it when it exits or
// fails enough health checks.
func (s *Supervisor) supervise(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.HealthInterval)
	defer ticker.Stop()

	backoff := s.opts.MinBackoff
	failures := 0

	for {
		s.mu.Lock()
		proc := s.proc
		s.mu.Unlock()

		restart := false
		select {
		case <-ctx.Done():
			return

		case <-proc.done:
			s.logger.Warn("sidecar exited", "error", proc.err)
			restart = true

		case <-ticker.C:
			if s.health == nil {
				continue
			}
			hctx, cancel := context.WithTimeout(ctx, s.opts.HealthInterval)
			err := s.health(hctx)
			cancel()
			if err == nil {
				failures = 0
				backoff = s.opts.MinBackoff
				continue
			}
			failures++
			s.logger.Warn("sidecar health check failed", "failures", failures, "error", err)
			if failures >= s.opts.HealthFailures {
				s.terminate(proc)
				restart = true
			}
		}

		if !restart {
			continue
		}
		failures = 0

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}

			next, err := s.spawn()
			backoff = min(backoff*2, s.opts.MaxBackoff)
			if err != nil {
				s.logger.Error("sidecar restart failed", "error", err, "retry_in", backoff)
				continue
			}

			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				s.terminate(next)
				return
			}
			s.proc = next
			s.restarts++
			s.mu.Unlock()

			s.logger.Info("sidecar restarted", "pid", next.cmd.Process.Pid)
			break
		}
	}
}

// execCommand is a variable that allows tests to mock exec.Command
var execCommand = exec.Command

// spawn starts a new sidecar process.
func (s *Supervisor) spawn() (*process, error) {
	cmd := execCommand(s.spec.Command, s.spec.Args...)

	// Set environment variables
	cmd.Env = os.Environ()
	for key, value := range s.spec.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, value))
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	// Drain stderr so a chatty sidecar never blocks on a full pipe.
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start process: %w", err)
	}

	proc := &process{cmd: cmd, stdin: stdin, done: make(chan struct{})}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			s.logger.Debug("sidecar output", "line", scanner.Text())
		}
		proc.err = cmd.Wait()
		close(proc.done)
	}()

	return proc, nil
}

// terminate closes stdin, waits for the grace period, then kills.
func (s *Supervisor) terminate(proc *process) error {
	select {
	case <-proc.done:
		return nil
	default:
	}

	// Step 1: Close stdin (graceful signal to child)
	if err := proc.stdin.Close(); err != nil {
		s.logger.Debug("failed to close stdin", "error", err)
	}

	// Step 2: Wait briefly for graceful exit
	select {
	case <-proc.done:
		return nil
	case <-time.After(s.opts.GracePeriod):
	}

	// Step 3: Force kill
	s.logger.Warn("sidecar did not exit gracefully, force killing")
	if err := proc.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill %s: %w", s.spec.Name, err)
	}
	<-proc.done
	return nil
}
