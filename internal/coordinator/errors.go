package coordinator

import "errors"

var (
	// ErrInboxFull is returned by Submit when the inbox stayed full until
	// the caller's context ended.
	ErrInboxFull = errors.New("coordinator: inbox full")

	// ErrStopped is returned by Submit after Run has returned.
	ErrStopped = errors.New("coordinator: stopped")

	// ErrInvalidCommand is returned by Submit for commands that can never
	// be processed, such as an unknown source.
	ErrInvalidCommand = errors.New("coordinator: invalid command")
)
