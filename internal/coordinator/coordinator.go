package coordinator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/garagegate/internal/access"
	"github.com/nerrad567/garagegate/internal/adapters"
	"github.com/nerrad567/garagegate/internal/door"
	"github.com/nerrad567/garagegate/internal/history"
	"github.com/nerrad567/garagegate/internal/infrastructure/metrics"
)

// DefaultInboxSize is used when Config.InboxSize is not positive.
const DefaultInboxSize = 64

// Validator decides whether a command may run.
type Validator interface {
	Validate(cmd door.Command, now time.Time) access.Decision
}

// Publisher receives every state change event. Publish must not block.
type Publisher interface {
	Publish(evt door.StateChangeEvent) bool
}

// DecisionRecorder stores validator verdicts. RecordDecision must not block.
type DecisionRecorder interface {
	RecordDecision(d history.Decision)
}

// Logger is the logging interface used by the coordinator.
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

// Config configures a Coordinator.
type Config struct {
	Clock     door.Clock
	AutoClose time.Duration
	InboxSize int

	// Initial is the door state assumed at startup.
	Initial door.State
}

// Snapshot is a read-only view of the door, safe to take from any goroutine.
type Snapshot struct {
	State       door.State `json:"state"`
	Seq         uint64     `json:"seq"`
	UpdatedAt   time.Time  `json:"updated_at"`
	AutoCloseAt *time.Time `json:"auto_close_at,omitempty"`
}

type registration struct {
	src  adapters.Source
	opts adapters.Options
}

// Coordinator owns the door machine and the command inbox.
type Coordinator struct {
	clock     door.Clock
	machine   *door.Machine
	validator Validator
	publisher Publisher
	recorders []DecisionRecorder
	metrics   *metrics.Metrics
	logger    Logger

	sources []registration
	status  *adapters.StatusBoard

	inbox    chan door.Command
	done     chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	snapshot atomic.Pointer[Snapshot]
}

// New creates a Coordinator. Call Run to start processing.
func New(cfg Config, validator Validator, publisher Publisher) *Coordinator {
	if cfg.Clock == nil {
		cfg.Clock = door.SystemClock{}
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = DefaultInboxSize
	}

	c := &Coordinator{
		clock:     cfg.Clock,
		validator: validator,
		publisher: publisher,
		logger:    noopLogger{},
		inbox:     make(chan door.Command, cfg.InboxSize),
		done:      make(chan struct{}),
	}
	c.machine = door.NewMachine(door.MachineConfig{
		Clock:     cfg.Clock,
		AutoClose: cfg.AutoClose,
		OnExpire:  c.onExpire,
		Initial:   cfg.Initial,
	})
	c.storeSnapshot()
	return c
}

// SetLogger sets the logger. Call before Run.
func (c *Coordinator) SetLogger(logger Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// SetMetrics attaches Prometheus instruments. Call before Run.
func (c *Coordinator) SetMetrics(m *metrics.Metrics) {
	c.metrics = m
	if m != nil {
		c.updateDoorGauge()
	}
}

// AddRecorder attaches a decision recorder. Call before Run.
func (c *Coordinator) AddRecorder(r DecisionRecorder) {
	if r != nil {
		c.recorders = append(c.recorders, r)
	}
}

// Submit queues cmd for processing. A missing ID or timestamp is filled
// in. Submit blocks while the inbox is full, until ctx ends.
func (c *Coordinator) Submit(ctx context.Context, cmd door.Command) error {
	if !cmd.Source.Valid() {
		return fmt.Errorf("%w: unknown source %q", ErrInvalidCommand, cmd.Source)
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = c.clock.Now()
	}

	select {
	case <-c.done:
		return ErrStopped
	default:
	}

	select {
	case c.inbox <- cmd:
		c.observeDepth()
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrInboxFull, ctx.Err())
	}
}

// Snapshot returns the latest door state.
func (c *Coordinator) Snapshot() Snapshot {
	return *c.snapshot.Load()
}

// Register adds a source to be driven by Run. Call before Run.
func (c *Coordinator) Register(src adapters.Source, opts adapters.Options) {
	c.sources = append(c.sources, registration{src: src, opts: opts})
}

// SetStatusBoard sets the board that registered sources report to.
func (c *Coordinator) SetStatusBoard(b *adapters.StatusBoard) {
	c.status = b
}

// Run starts every registered source and processes commands until ctx is
// cancelled. On return any armed auto-close timer has been cancelled,
// commands still queued have been discarded and every source has stopped.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return fmt.Errorf("coordinator: already running")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.loop(gctx)
	})
	for _, reg := range c.sources {
		g.Go(func() error {
			return adapters.Run(gctx, reg.src, c, reg.opts, c.status, c.logger)
		})
	}
	return g.Wait()
}

func (c *Coordinator) loop(ctx context.Context) error {
	defer c.stop()

	c.logger.Info("coordinator started", "state", c.machine.State(), "sources", len(c.sources))
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-c.inbox:
			c.observeDepth()
			c.process(cmd)
		}
	}
}

func (c *Coordinator) stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		c.machine.Shutdown()
		c.storeSnapshot()

		dropped := 0
	drain:
		for {
			select {
			case <-c.inbox:
				dropped++
			default:
				break drain
			}
		}
		c.logger.Info("coordinator stopped", "state", c.machine.State(), "discarded", dropped)
	})
}

// onExpire runs on the timer's goroutine. It only enqueues; the machine
// decides whether the generation is still current.
func (c *Coordinator) onExpire(generation uint64, firedAt time.Time) {
	cmd := door.Command{
		ID:         uuid.NewString(),
		Kind:       door.KindClose,
		Source:     door.SourceTimer,
		Timestamp:  firedAt,
		Generation: generation,
	}
	select {
	case c.inbox <- cmd:
		c.observeDepth()
	case <-c.done:
	}
}

func (c *Coordinator) process(cmd door.Command) {
	start := time.Now()
	now := c.clock.Now()

	decision := c.validator.Validate(cmd, now)
	c.countCommand(cmd, decision)

	if !decision.Accepted {
		c.logger.Warn("command rejected",
			"command_id", cmd.ID,
			"kind", cmd.Kind,
			"source", cmd.Source,
			"reason", decision.Reason,
		)
		c.record(cmd, decision, "rejected", now)
		return
	}

	evt, outcome := c.machine.Apply(cmd)
	switch outcome {
	case door.Transitioned:
		c.logger.Info("door transitioned",
			"seq", evt.Seq,
			"from", evt.From,
			"state", evt.State,
			"source", evt.Source,
			"command_id", cmd.ID,
		)
		c.storeSnapshot()
		c.updateDoorGauge()
		if c.metrics != nil {
			c.metrics.TransitionsTotal.WithLabelValues(evt.State.String(), string(evt.Source)).Inc()
		}
		if !c.publisher.Publish(evt) {
			c.logger.Warn("state event not queued for publishing", "seq", evt.Seq)
		}
	case door.NoOp:
		c.logger.Debug("door already in requested state",
			"kind", cmd.Kind,
			"source", cmd.Source,
			"state", c.machine.State(),
		)
	case door.StaleTimer:
		c.logger.Debug("stale auto-close timer ignored", "generation", cmd.Generation)
		if c.metrics != nil {
			c.metrics.StaleTimersTotal.Inc()
		}
		// Stale expiries are internal noise, not access decisions.
		return
	}

	c.record(cmd, decision, outcome.String(), now)
	if c.metrics != nil {
		c.metrics.CommandLatency.Observe(time.Since(start).Seconds())
	}
}

func (c *Coordinator) record(cmd door.Command, verdict access.Decision, outcome string, now time.Time) {
	if len(c.recorders) == 0 {
		return
	}
	d := history.Decision{
		CommandID: cmd.ID,
		Kind:      string(cmd.Kind),
		Source:    string(cmd.Source),
		Plate:     cmd.Evidence.Plate,
		Accepted:  verdict.Accepted,
		Reason:    string(verdict.Reason),
		Outcome:   outcome,
		DecidedAt: now,
	}
	for _, r := range c.recorders {
		r.RecordDecision(d)
	}
}

func (c *Coordinator) countCommand(cmd door.Command, d access.Decision) {
	if c.metrics == nil {
		return
	}
	result := "accepted"
	if !d.Accepted {
		result = "rejected"
		c.metrics.RejectionsTotal.WithLabelValues(string(cmd.Source), string(d.Reason)).Inc()
	}
	c.metrics.CommandsTotal.WithLabelValues(string(cmd.Source), string(cmd.Kind), result).Inc()
}

func (c *Coordinator) storeSnapshot() {
	s := &Snapshot{
		State:     c.machine.State(),
		Seq:       c.machine.Seq(),
		UpdatedAt: c.clock.Now(),
	}
	if deadline, ok := c.machine.Deadline(); ok {
		s.AutoCloseAt = &deadline
	}
	c.snapshot.Store(s)
}

func (c *Coordinator) updateDoorGauge() {
	if c.metrics == nil {
		return
	}
	v := 0.0
	if c.machine.State() == door.StateOpen {
		v = 1
	}
	c.metrics.DoorOpen.Set(v)
}

func (c *Coordinator) observeDepth() {
	if c.metrics != nil {
		c.metrics.InboxDepth.Set(float64(len(c.inbox)))
	}
}
