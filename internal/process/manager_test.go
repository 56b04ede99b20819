package process

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewManager_Defaults(t *testing.T) {
	m := NewManager(Config{Name: "sim", Binary: "/bin/true"})

	if m.cfg.RestartDelay != 5*time.Second {
		t.Errorf("RestartDelay = %v, want %v", m.cfg.RestartDelay, 5*time.Second)
	}
	if m.cfg.MaxRestartDelay != 5*time.Minute {
		t.Errorf("MaxRestartDelay = %v, want %v", m.cfg.MaxRestartDelay, 5*time.Minute)
	}
	if m.cfg.StableThreshold != 2*time.Minute {
		t.Errorf("StableThreshold = %v, want %v", m.cfg.StableThreshold, 2*time.Minute)
	}
	if m.cfg.GracefulTimeout != 10*time.Second {
		t.Errorf("GracefulTimeout = %v, want %v", m.cfg.GracefulTimeout, 10*time.Second)
	}
	if m.Status() != StatusStopped {
		t.Errorf("Status() = %q, want %q", m.Status(), StatusStopped)
	}
}

func TestNewManager_MaxDelayNotBelowInitial(t *testing.T) {
	m := NewManager(Config{RestartDelay: time.Minute, MaxRestartDelay: time.Second})
	if m.cfg.MaxRestartDelay != time.Minute {
		t.Errorf("MaxRestartDelay = %v, want %v", m.cfg.MaxRestartDelay, time.Minute)
	}
}

func TestManager_InvalidBinary(t *testing.T) {
	m := NewManager(Config{Name: "missing", Binary: "/nonexistent/garagesim", RestartOnFailure: true})

	err := m.Run(context.Background())
	if err == nil {
		t.Fatal("Run() should fail for a missing binary")
	}
	if m.Status() != StatusFailed {
		t.Errorf("Status() = %q, want %q", m.Status(), StatusFailed)
	}
	if m.HealthCheck(context.Background()) == nil {
		t.Error("HealthCheck() should fail after a failed start")
	}
}

func TestManager_RunAndCancel(t *testing.T) {
	m := NewManager(Config{
		Name:            "sleeper",
		Binary:          "/bin/sleep",
		Args:            []string{"60"},
		GracefulTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for m.Status() != StatusRunning && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if m.Status() != StatusRunning {
		t.Fatalf("Status() = %q, want running", m.Status())
	}
	if err := m.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() = %v", err)
	}
	if m.Stats().PID == 0 {
		t.Error("Stats().PID should be set while running")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	if m.Status() != StatusStopped {
		t.Errorf("Status() = %q, want stopped", m.Status())
	}
	if m.Stats().PID != 0 {
		t.Error("Stats().PID should be cleared after stop")
	}
}

func TestManager_NoRestart(t *testing.T) {
	m := NewManager(Config{Name: "oneshot", Binary: "/bin/sh", Args: []string{"-c", "exit 3"}})

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v, want nil", err)
	}
	if m.Status() != StatusFailed {
		t.Errorf("Status() = %q, want failed", m.Status())
	}
	if m.Stats().LastError == "" {
		t.Error("LastError should record the exit status")
	}
}

func TestManager_GivesUpAfterMaxAttempts(t *testing.T) {
	m := NewManager(Config{
		Name:               "crasher",
		Binary:             "/bin/sh",
		Args:               []string{"-c", "exit 1"},
		RestartOnFailure:   true,
		RestartDelay:       10 * time.Millisecond,
		MaxRestartDelay:    20 * time.Millisecond,
		MaxRestartAttempts: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := m.Run(ctx)
	if !errors.Is(err, ErrGaveUp) {
		t.Fatalf("Run() = %v, want ErrGaveUp", err)
	}
	if got := m.Stats().Restarts; got != 2 {
		t.Errorf("Restarts = %d, want 2", got)
	}
	if m.Status() != StatusFailed {
		t.Errorf("Status() = %q, want failed", m.Status())
	}
}

func TestManager_CancelDuringRestartDelay(t *testing.T) {
	m := NewManager(Config{
		Name:             "crasher",
		Binary:           "/bin/sh",
		Args:             []string{"-c", "exit 1"},
		RestartOnFailure: true,
		RestartDelay:     time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for m.Status() != StatusWaiting && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
