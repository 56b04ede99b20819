package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status represents the current state of a supervised process.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
	StatusWaiting Status = "waiting" // between a crash and the restart
	StatusFailed  Status = "failed"  // gave up restarting
)

// ErrGaveUp is returned by Run when the restart budget is exhausted.
var ErrGaveUp = errors.New("process: restart attempts exhausted")

// Config describes a supervised child process.
type Config struct {
	// Name identifies the process in logs.
	Name string

	// Binary is the executable, resolved through PATH.
	Binary string

	// Args are passed to Binary.
	Args []string

	// Env is appended to the parent environment.
	Env []string

	// RestartOnFailure restarts the child when it exits on its own.
	RestartOnFailure bool

	// RestartDelay is the first restart delay. It doubles per crash up to
	// MaxRestartDelay and resets once the child stays up StableThreshold.
	RestartDelay    time.Duration
	MaxRestartDelay time.Duration
	StableThreshold time.Duration

	// MaxRestartAttempts bounds consecutive restarts. 0 means unlimited.
	MaxRestartAttempts int

	// GracefulTimeout is how long the child gets after SIGTERM.
	GracefulTimeout time.Duration
}

// Logger is the logging surface the supervisor needs.
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

// Manager supervises one child process.
//
// Run owns the lifecycle: it starts the child, restarts it after crashes
// with a doubling delay, and stops it when the context ends. State
// accessors are safe from any goroutine.
type Manager struct {
	cfg    Config
	logger Logger

	mu        sync.RWMutex
	status    Status
	pid       int
	startTime time.Time
	restarts  int
	lastError error
}

// NewManager creates a supervisor, filling unset timings.
func NewManager(cfg Config) *Manager {
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = 5 * time.Second
	}
	if cfg.MaxRestartDelay <= 0 {
		cfg.MaxRestartDelay = 5 * time.Minute
	}
	if cfg.MaxRestartDelay < cfg.RestartDelay {
		cfg.MaxRestartDelay = cfg.RestartDelay
	}
	if cfg.StableThreshold <= 0 {
		cfg.StableThreshold = 2 * time.Minute
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = 10 * time.Second
	}
	return &Manager{cfg: cfg, logger: noopLogger{}, status: StatusStopped}
}

// SetLogger sets the logger. Call before Run.
func (m *Manager) SetLogger(logger Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Run supervises the child until ctx is cancelled, then stops it and
// returns nil. It returns an error when the child cannot be started the
// first time, or ErrGaveUp once restarts are exhausted.
func (m *Manager) Run(ctx context.Context) error {
	delay := m.cfg.RestartDelay
	attempts := 0
	first := true

	for {
		cmd, err := m.start()
		if err != nil {
			m.setFailed(err)
			if first {
				return err
			}
			m.logger.Error("restarting process failed", "name", m.cfg.Name, "error", err)
		} else {
			first = false
			started := time.Now()
			exitErr, stopped := m.wait(ctx, cmd)
			if stopped {
				m.setStatus(StatusStopped)
				m.logger.Info("process stopped", "name", m.cfg.Name)
				return nil
			}

			m.mu.Lock()
			m.lastError = exitErr
			m.pid = 0
			m.mu.Unlock()
			m.logger.Warn("process exited", "name", m.cfg.Name, "error", exitErr, "uptime", time.Since(started).Round(time.Second))

			if time.Since(started) >= m.cfg.StableThreshold {
				delay = m.cfg.RestartDelay
				attempts = 0
			}
		}

		if !m.cfg.RestartOnFailure {
			m.setStatus(StatusFailed)
			return nil
		}
		attempts++
		if m.cfg.MaxRestartAttempts > 0 && attempts > m.cfg.MaxRestartAttempts {
			m.setStatus(StatusFailed)
			m.logger.Error("giving up on process", "name", m.cfg.Name, "attempts", attempts-1)
			return fmt.Errorf("%w: %s", ErrGaveUp, m.cfg.Name)
		}

		m.setStatus(StatusWaiting)
		m.logger.Info("restarting process", "name", m.cfg.Name, "attempt", attempts, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.setStatus(StatusStopped)
			return nil
		case <-timer.C:
		}

		m.mu.Lock()
		m.restarts++
		m.mu.Unlock()

		delay *= 2
		if delay > m.cfg.MaxRestartDelay {
			delay = m.cfg.MaxRestartDelay
		}
	}
}

func (m *Manager) start() (*exec.Cmd, error) {
	//nolint:gosec // Binary comes from operator configuration
	cmd := exec.Command(m.cfg.Binary, m.cfg.Args...)

	// Own process group so the whole tree can be signalled on shutdown.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if len(m.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), m.cfg.Env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", m.cfg.Name, err)
	}

	m.mu.Lock()
	m.status = StatusRunning
	m.pid = cmd.Process.Pid
	m.startTime = time.Now()
	m.mu.Unlock()

	go m.captureOutput("stdout", stdout)
	go m.captureOutput("stderr", stderr)

	m.logger.Info("process started", "name", m.cfg.Name, "pid", cmd.Process.Pid)
	return cmd, nil
}

// captureOutput logs the child's output line by line.
func (m *Manager) captureOutput(stream string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		m.logger.Debug("process output", "name", m.cfg.Name, "stream", stream, "line", scanner.Text())
	}
}

// wait blocks until the child exits or ctx ends. stopped is true when the
// exit was requested.
func (m *Manager) wait(ctx context.Context, cmd *exec.Cmd) (exitErr error, stopped bool) {
	exitCh := make(chan error, 1)
	go func() { exitCh <- cmd.Wait() }()

	select {
	case err := <-exitCh:
		return err, false
	case <-ctx.Done():
	}

	pid := cmd.Process.Pid
	m.logger.Info("stopping process", "name", m.cfg.Name, "pid", pid)
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		m.logger.Warn("sending SIGTERM failed", "name", m.cfg.Name, "error", err)
	}

	timer := time.NewTimer(m.cfg.GracefulTimeout)
	defer timer.Stop()
	select {
	case <-exitCh:
		return nil, true
	case <-timer.C:
	}

	m.logger.Warn("graceful stop timed out, killing", "name", m.cfg.Name, "timeout", m.cfg.GracefulTimeout)
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		m.logger.Error("sending SIGKILL failed", "name", m.cfg.Name, "error", err)
	}
	<-exitCh
	return nil, true
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	if s != StatusRunning {
		m.pid = 0
	}
	m.mu.Unlock()
}

func (m *Manager) setFailed(err error) {
	m.mu.Lock()
	m.status = StatusFailed
	m.lastError = err
	m.pid = 0
	m.mu.Unlock()
}

// Status returns the current status.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// HealthCheck reports an error unless the child is running.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status == StatusRunning {
		return nil
	}
	if m.lastError != nil {
		return fmt.Errorf("%s %s: %w", m.cfg.Name, m.status, m.lastError)
	}
	return fmt.Errorf("%s %s", m.cfg.Name, m.status)
}

// Stats is a point-in-time view of the supervised process.
type Stats struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	PID       int           `json:"pid,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
	Restarts  int           `json:"restarts"`
	LastError string        `json:"last_error,omitempty"`
}

// Stats returns current statistics.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{
		Name:     m.cfg.Name,
		Status:   m.status,
		PID:      m.pid,
		Restarts: m.restarts,
	}
	if m.status == StatusRunning {
		s.Uptime = time.Since(m.startTime)
	}
	if m.lastError != nil {
		s.LastError = m.lastError.Error()
	}
	return s
}
