package adapters

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnavailable means the source's device (camera, microphone) is
	// missing or stopped delivering data.
	ErrUnavailable = errors.New("adapter: device unavailable")

	// ErrServiceFailure means a remote recognition service failed.
	ErrServiceFailure = errors.New("adapter: service failure")
)

// RetryAfterError asks the runner to wait at least Delay before the next
// poll, regardless of the current backoff.
type RetryAfterError struct {
	Err   error
	Delay time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("%v (retry after %v)", e.Err, e.Delay)
}

func (e *RetryAfterError) Unwrap() error { return e.Err }

// RetryAfter wraps err with a minimum retry delay.
func RetryAfter(err error, delay time.Duration) error {
	return &RetryAfterError{Err: err, Delay: delay}
}
