package adapters

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/nerrad567/garagegate/internal/door"
)

// Runner defaults.
const (
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = 60 * time.Second
)

// Options controls how Run drives a source.
type Options struct {
	// Interval is the pause between successful polls. Zero polls again
	// immediately, which suits sources whose Poll blocks.
	Interval time.Duration

	// PollTimeout bounds a single Poll. A poll that runs out of time
	// counts as "nothing found". Zero means no bound.
	PollTimeout time.Duration

	// SubmitTimeout bounds handing a command to the coordinator. Zero
	// means no bound beyond ctx.
	SubmitTimeout time.Duration

	// InitialBackoff and MaxBackoff bound the exponential retry delay
	// after a source error.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (o Options) withDefaults() Options {
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = DefaultInitialBackoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = DefaultMaxBackoff
	}
	if o.MaxBackoff < o.InitialBackoff {
		o.MaxBackoff = o.InitialBackoff
	}
	return o
}

// Run polls src until ctx is cancelled and submits every command it
// produces. Source errors are logged, recorded on status and retried with
// exponential backoff; they never stop the loop. If src implements
// io.Closer it is closed before Run returns.
//
// Run returns nil on cancellation.
func Run(ctx context.Context, src Source, sub Submitter, opts Options, status *StatusBoard, logger Logger) error {
	opts = opts.withDefaults()
	if logger == nil {
		logger = NoopLogger{}
	}
	if status == nil {
		status = NewStatusBoard(nil)
	}
	name := src.Name()

	if c, ok := src.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				logger.Warn("closing adapter", "adapter", name, "error", err)
			}
		}()
	}
	defer status.stopped(name)

	status.starting(name)
	logger.Info("adapter started", "adapter", name)

	backoff := opts.InitialBackoff
	for {
		if ctx.Err() != nil {
			logger.Info("adapter stopped", "adapter", name)
			return nil
		}

		cmd, err := poll(ctx, src, opts.PollTimeout)
		if ctx.Err() != nil {
			logger.Info("adapter stopped", "adapter", name)
			return nil
		}

		if err != nil {
			status.degraded(name, err)
			delay := backoff
			var ra *RetryAfterError
			if errors.As(err, &ra) && ra.Delay > delay {
				delay = ra.Delay
			}
			logger.Warn("adapter poll failed", "adapter", name, "error", err, "retry_in", delay)
			if !sleep(ctx, delay) {
				return nil
			}
			backoff *= 2
			if backoff > opts.MaxBackoff {
				backoff = opts.MaxBackoff
			}
			continue
		}

		status.healthy(name)
		backoff = opts.InitialBackoff

		if cmd != nil {
			submit(ctx, sub, *cmd, opts.SubmitTimeout, status, name, logger)
		}

		if opts.Interval > 0 && !sleep(ctx, opts.Interval) {
			return nil
		}
	}
}

func poll(ctx context.Context, src Source, timeout time.Duration) (*door.Command, error) {
	if timeout <= 0 {
		return src.Poll(ctx)
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd, err := src.Poll(pctx)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		// The poll ran out of time; treat as no evidence.
		return nil, nil
	}
	return cmd, err
}

func submit(ctx context.Context, sub Submitter, cmd door.Command, timeout time.Duration, status *StatusBoard, name string, logger Logger) {
	sctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := sub.Submit(sctx, cmd); err != nil {
		status.submitted(name, false)
		if ctx.Err() == nil {
			logger.Warn("command dropped", "adapter", name, "kind", cmd.Kind, "error", err)
		}
		return
	}
	status.submitted(name, true)
	logger.Debug("command submitted", "adapter", name, "kind", cmd.Kind, "command_id", cmd.ID)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
