package adapters

import (
	"context"

	"github.com/nerrad567/garagegate/internal/door"
)

// Source produces door commands from one kind of input.
type Source interface {
	// Name identifies the source in logs, metrics and the status board.
	Name() string

	// Poll waits for the next piece of evidence. It returns (cmd, nil)
	// when it has a command, (nil, nil) when it looked and found nothing
	// (no motion, silence, no recognised plate), and (nil, err) when the
	// source itself failed. Poll must return promptly once ctx is done.
	Poll(ctx context.Context) (*door.Command, error)
}

// Submitter accepts commands for processing. The coordinator implements it.
type Submitter interface {
	Submit(ctx context.Context, cmd door.Command) error
}

// Logger is the logging interface used by the runner and the sources.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NoopLogger discards everything.
type NoopLogger struct{}

func (NoopLogger) Debug(string, ...any) {}
func (NoopLogger) Info(string, ...any)  {}
func (NoopLogger) Warn(string, ...any)  {}
func (NoopLogger) Error(string, ...any) {}
