package indiserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Status represents the current state of the supervised server.
type Status string

const (
	StatusStopped    Status = "stopped"
	StatusStarting   Status = "starting"
	StatusRunning    Status = "running"
	StatusRestarting Status = "restarting"
	StatusFailed     Status = "failed"
)

const (
	// maxHealthFailures is the number of consecutive failed dials after
	// which a running server is killed and restarted.
	maxHealthFailures = 3

	healthDialTimeout = 2 * time.Second
	readyPollInterval = 100 * time.Millisecond

	// waitDelay bounds how long Wait keeps copying output after the server
	// exits while a forked driver still holds the pipes.
	waitDelay = time.Second

	// maxLineLength flushes partial output lines that never end.
	maxLineLength = 4096
)

// ErrStopRequested is returned by Start when Stop runs concurrently.
var ErrStopRequested = errors.New("indiserver: stop requested")

// Logger defines the logging interface for the supervisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// run is one launched process. err is valid once exited is closed.
type run struct {
	cmd     *exec.Cmd
	started time.Time
	exited  chan struct{}
	err     error
}

// Supervisor runs indiserver as a child process and keeps it running.
//
// All methods are safe for concurrent use.
type Supervisor struct {
	cfg     Config
	logger  Logger
	command func(name string, args ...string) *exec.Cmd

	mu            sync.RWMutex
	run           *run
	status        Status
	restarts      int // consecutive failures since the last stable run
	totalRestarts int
	lastError     error
	stopRequested bool
	stop          chan struct{}
	done          chan struct{}
}

// New validates cfg, applies defaults and returns a stopped supervisor.
func New(cfg Config) (*Supervisor, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid indiserver config: %w", err)
	}
	return &Supervisor{
		cfg:     cfg,
		logger:  noopLogger{},
		command: exec.Command,
		status:  StatusStopped,
	}, nil
}

// SetLogger sets the logger for the supervisor.
func (s *Supervisor) SetLogger(logger Logger) {
	s.mu.Lock()
	s.logger = logger
	s.mu.Unlock()
}

func (s *Supervisor) log() Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logger
}

// Address returns the loopback address of the supervised server.
func (s *Supervisor) Address() string {
	return s.cfg.Address()
}

// Start launches indiserver and waits until its port accepts connections.
// The process is then monitored and restarted on failure until Stop is
// called or ctx is cancelled.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.status == StatusRunning || s.status == StatusStarting || s.status == StatusRestarting {
		s.mu.Unlock()
		return fmt.Errorf("indiserver is already running")
	}
	s.status = StatusStarting
	s.stopRequested = false
	s.restarts = 0
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	r, err := s.startProcess()
	if err == nil {
		err = s.waitForReady(ctx, r)
		if err != nil {
			//nolint:errcheck // startup already failed; report that error
			s.terminate(r)
		}
	}
	if err != nil {
		s.mu.Lock()
		s.status = StatusFailed
		s.lastError = err
		s.mu.Unlock()
		close(done)
		return err
	}

	go s.monitor(ctx, r, done)
	return nil
}

// startProcess launches one indiserver in a new process group.
func (s *Supervisor) startProcess() (*run, error) {
	args := s.cfg.BuildArgs()
	logger := s.log()

	cmd := s.command(s.cfg.Binary, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdout = newLineWriter(func(line string) {
		logger.Debug("indiserver output", "stream", "stdout", "line", line)
	})
	cmd.Stderr = newLineWriter(func(line string) {
		logger.Info("indiserver output", "stream", "stderr", "line", line)
	})
	cmd.WaitDelay = waitDelay

	s.mu.Lock()
	if s.stopRequested {
		s.mu.Unlock()
		return nil, ErrStopRequested
	}
	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("starting %s: %w", s.cfg.Binary, err)
	}
	r := &run{cmd: cmd, started: time.Now(), exited: make(chan struct{})}
	s.run = r
	s.status = StatusRunning
	s.mu.Unlock()

	go func() {
		r.err = cmd.Wait()
		close(r.exited)
	}()

	logger.Info("indiserver started", "pid", cmd.Process.Pid, "args", strings.Join(args, " "))
	return r, nil
}

// waitForReady polls the port until it accepts a connection.
func (s *Supervisor) waitForReady(ctx context.Context, r *run) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ReadyTimeout)
	defer cancel()

	for {
		if err := s.dial(ctx); err == nil {
			return nil
		}
		select {
		case <-r.exited:
			return fmt.Errorf("indiserver exited during startup: %w", exitError(r.err))
		case <-ctx.Done():
			return fmt.Errorf("indiserver not accepting connections on %s: %w", s.cfg.Address(), ctx.Err())
		case <-time.After(readyPollInterval):
		}
	}
}

// monitor watches the running process and restarts it after failures.
func (s *Supervisor) monitor(ctx context.Context, r *run, done chan struct{}) {
	defer close(done)

	for {
		cancelled, exitErr := s.watch(ctx, r)
		if cancelled {
			//nolint:errcheck // shutdown path; terminate logs its own failures
			s.terminate(r)
			s.setStatus(StatusStopped)
			s.log().Info("indiserver stopped with context")
			return
		}
		if s.isStopRequested() {
			s.setStatus(StatusStopped)
			s.log().Info("indiserver stopped as requested")
			return
		}

		s.log().Warn("indiserver exited unexpectedly", "error", exitErr, "ran_for", time.Since(r.started).Round(time.Millisecond))
		s.recordFailure(exitErr, time.Since(r.started))

		next, ok := s.restart(ctx)
		if !ok {
			return
		}
		r = next
	}
}

// watch blocks until the process exits, ctx ends, or the health check
// fails repeatedly, in which case the process group is killed.
func (s *Supervisor) watch(ctx context.Context, r *run) (cancelled bool, exitErr error) {
	ticker := time.NewTicker(s.cfg.HealthCheckInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-r.exited:
			return false, exitError(r.err)
		case <-ctx.Done():
			return true, nil
		case <-ticker.C:
			err := s.dial(ctx)
			if err == nil {
				if failures > 0 {
					s.log().Info("indiserver health check recovered", "previous_failures", failures)
				}
				failures = 0
				continue
			}
			failures++
			s.log().Warn("indiserver health check failed", "error", err, "consecutive_failures", failures)
			if failures < maxHealthFailures {
				continue
			}
			s.log().Error("indiserver unresponsive, killing process group", "failures", failures)
			signalGroup(r, syscall.SIGKILL)
			<-r.exited
			return false, fmt.Errorf("killed after %d failed health checks", failures)
		}
	}
}

// restart waits out the backoff and launches a new process. It returns
// false when the supervisor should give up.
func (s *Supervisor) restart(ctx context.Context) (*run, bool) {
	for {
		s.mu.Lock()
		if s.cfg.MaxRestarts > 0 && s.restarts >= s.cfg.MaxRestarts {
			attempts := s.restarts
			s.status = StatusFailed
			s.mu.Unlock()
			s.log().Error("indiserver max restart attempts reached", "attempts", attempts)
			return nil, false
		}
		s.restarts++
		s.totalRestarts++
		attempt := s.restarts
		stop := s.stop
		s.status = StatusRestarting
		s.mu.Unlock()

		delay := s.backoff(attempt)
		s.log().Info("restarting indiserver", "attempt", attempt, "delay", delay)

		select {
		case <-ctx.Done():
			s.setStatus(StatusStopped)
			return nil, false
		case <-stop:
			s.setStatus(StatusStopped)
			return nil, false
		case <-time.After(delay):
		}

		r, err := s.startProcess()
		if err == nil {
			return r, true
		}
		if errors.Is(err, ErrStopRequested) {
			s.setStatus(StatusStopped)
			return nil, false
		}
		s.log().Error("failed to restart indiserver", "error", err)
		s.mu.Lock()
		s.lastError = err
		s.mu.Unlock()
	}
}

// backoff returns RestartDelay doubled per consecutive attempt, capped at
// MaxRestartDelay.
func (s *Supervisor) backoff(attempt int) time.Duration {
	delay := s.cfg.RestartDelay
	for i := 1; i < attempt && delay < s.cfg.MaxRestartDelay; i++ {
		delay *= 2
	}
	return min(delay, s.cfg.MaxRestartDelay)
}

func (s *Supervisor) recordFailure(err error, ranFor time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = err
	s.status = StatusFailed
	if ranFor >= s.cfg.StableThreshold {
		s.restarts = 0
	}
}

// Stop sends SIGTERM to the process group, escalates to SIGKILL after
// GracefulTimeout, and waits for the monitor to finish. Safe to call
// multiple times and before Start.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if s.done == nil || s.stopRequested {
		s.mu.Unlock()
		return nil
	}
	s.stopRequested = true
	close(s.stop)
	r := s.run
	done := s.done
	s.mu.Unlock()

	var err error
	if r != nil {
		s.log().Info("stopping indiserver", "pid", r.cmd.Process.Pid)
		err = s.terminate(r)
	}
	<-done
	s.setStatus(StatusStopped)
	return err
}

// terminate signals the process group and waits for the server to exit.
func (s *Supervisor) terminate(r *run) error {
	select {
	case <-r.exited:
		return nil
	default:
	}

	signalGroup(r, syscall.SIGTERM)
	select {
	case <-r.exited:
		return nil
	case <-time.After(s.cfg.GracefulTimeout):
		s.log().Warn("indiserver ignored SIGTERM, sending SIGKILL", "timeout", s.cfg.GracefulTimeout)
	}

	if err := syscall.Kill(-r.cmd.Process.Pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("killing indiserver process group: %w", err)
	}
	<-r.exited
	return nil
}

// signalGroup signals every process in the server's group, which includes
// the drivers it forked.
func signalGroup(r *run, sig syscall.Signal) {
	//nolint:errcheck // ESRCH means the group is already gone
	syscall.Kill(-r.cmd.Process.Pid, sig)
}

// HealthCheck dials the server port.
func (s *Supervisor) HealthCheck(ctx context.Context) error {
	if status := s.Status(); status != StatusRunning {
		return fmt.Errorf("indiserver is %s", status)
	}
	return s.dial(ctx)
}

func (s *Supervisor) dial(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthDialTimeout)
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", s.cfg.Address())
	if err != nil {
		return err
	}
	return conn.Close()
}

// Status returns the current supervisor state.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Supervisor) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *Supervisor) isStopRequested() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopRequested
}

// Stats reports the supervised process for monitoring.
type Stats struct {
	Status        Status  `json:"status"`
	Address       string  `json:"address"`
	PID           int     `json:"pid,omitempty"`
	UptimeSeconds float64 `json:"uptime_seconds,omitempty"`
	Restarts      int     `json:"restarts"`
	TotalRestarts int     `json:"total_restarts"`
	LastError     string  `json:"last_error,omitempty"`
}

// Stats returns current statistics for the server process.
func (s *Supervisor) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		Status:        s.status,
		Address:       s.cfg.Address(),
		Restarts:      s.restarts,
		TotalRestarts: s.totalRestarts,
	}
	if s.run != nil && s.status == StatusRunning {
		stats.PID = s.run.cmd.Process.Pid
		stats.UptimeSeconds = time.Since(s.run.started).Seconds()
	}
	if s.lastError != nil {
		stats.LastError = s.lastError.Error()
	}
	return stats
}

// exitError names a clean exit, which is still a failure for a server.
func exitError(err error) error {
	if err == nil {
		return errors.New("exited with status 0")
	}
	return err
}

// lineWriter splits process output into lines for the logger.
type lineWriter struct {
	mu   sync.Mutex
	buf  []byte
	emit func(string)
}

func newLineWriter(emit func(string)) *lineWriter {
	return &lineWriter{emit: emit}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emitLine(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) >= maxLineLength {
		w.emitLine(w.buf)
		w.buf = w.buf[:0]
	}
	return len(p), nil
}

func (w *lineWriter) emitLine(b []byte) {
	if line := strings.TrimRight(string(b), "\r"); line != "" {
		w.emit(line)
	}
}
