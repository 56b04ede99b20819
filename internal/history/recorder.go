package history

import (
	"context"
	"time"

	"github.com/nerrad567/garagegate/internal/door"
)

// Logger is the logging interface used by the recorder.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

const (
	defaultRecorderBuffer = 128
	writeTimeout          = 5 * time.Second
)

type entry struct {
	transition *door.StateChangeEvent
	decision   *Decision
}

// Recorder writes transitions and decisions to a Repository from its own
// goroutine. The hot path only enqueues; a full buffer or a failed write
// is logged and never blocks or fails the door.
type Recorder struct {
	repo   Repository
	logger Logger
	queue  chan entry
}

// NewRecorder creates a Recorder. Call Run to start writing.
func NewRecorder(repo Repository, logger Logger) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{
		repo:   repo,
		logger: logger,
		queue:  make(chan entry, defaultRecorderBuffer),
	}
}

// ObserveTransition queues a transition. It lets the recorder be
// registered as a publisher observer.
func (r *Recorder) ObserveTransition(evt door.StateChangeEvent) {
	r.enqueue(entry{transition: &evt})
}

// RecordDecision queues a decision.
func (r *Recorder) RecordDecision(d Decision) {
	r.enqueue(entry{decision: &d})
}

func (r *Recorder) enqueue(e entry) {
	select {
	case r.queue <- e:
	default:
		r.logger.Warn("history buffer full, entry dropped")
	}
}

// Run writes queued entries until ctx is cancelled, then flushes what is
// left using a short background deadline.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.flush()
			return nil
		case e := <-r.queue:
			r.write(ctx, e)
		}
	}
}

func (r *Recorder) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	for {
		select {
		case e := <-r.queue:
			r.write(ctx, e)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, e entry) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	switch {
	case e.transition != nil:
		if err := r.repo.RecordTransition(ctx, *e.transition); err != nil {
			r.logger.Error("recording transition failed", "seq", e.transition.Seq, "error", err)
		}
	case e.decision != nil:
		if err := r.repo.RecordDecision(ctx, *e.decision); err != nil {
			r.logger.Error("recording decision failed", "command_id", e.decision.CommandID, "error", err)
		}
	}
}
