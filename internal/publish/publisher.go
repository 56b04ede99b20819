package publish

import (
	"context"
	"sync"

	"github.com/nerrad567/garagegate/internal/door"
	"github.com/nerrad567/garagegate/internal/infrastructure/metrics"
)

// Transport sends a retained message. *mqtt.Client satisfies it.
type Transport interface {
	PublishRetained(topic string, payload []byte) error
}

// Observer is notified once per event, from the publisher's worker
// goroutine. Implementations must not block for long.
type Observer interface {
	ObserveTransition(evt door.StateChangeEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(evt door.StateChangeEvent)

// ObserveTransition calls f(evt).
func (f ObserverFunc) ObserveTransition(evt door.StateChangeEvent) { f(evt) }

// Logger is the logging interface used by the publisher.
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

// Config configures a Publisher.
type Config struct {
	Topic     string
	Token     string
	QueueSize int
}

const defaultQueueSize = 32

// Publisher is the State Publisher. Publish and Retry may be called from
// any goroutine; Run must be running for events to be delivered.
type Publisher struct {
	transport Transport
	topic     string
	token     string
	logger    Logger
	metrics   *metrics.Metrics

	queue chan door.StateChangeEvent
	retry chan struct{}

	mu            sync.Mutex
	observers     []Observer
	lastEnqueued  uint64
	lastDelivered uint64
	backlog       []door.StateChangeEvent
	backlogCap    int
}

// New creates a Publisher. The worker is started by Run.
func New(transport Transport, cfg Config) *Publisher {
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Publisher{
		transport:  transport,
		topic:      cfg.Topic,
		token:      cfg.Token,
		logger:     noopLogger{},
		queue:      make(chan door.StateChangeEvent, size),
		retry:      make(chan struct{}, 1),
		backlogCap: size,
	}
}

// SetLogger sets the logger.
func (p *Publisher) SetLogger(logger Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// SetMetrics enables publish counters.
func (p *Publisher) SetMetrics(m *metrics.Metrics) {
	p.metrics = m
}

// AddObserver registers an observer. Call before Run.
func (p *Publisher) AddObserver(o Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, o)
}

// Publish queues evt for delivery without blocking. It returns false if
// the event was already queued (same or older Seq) or the queue is full.
func (p *Publisher) Publish(evt door.StateChangeEvent) bool {
	p.mu.Lock()
	if evt.Seq <= p.lastEnqueued {
		p.mu.Unlock()
		p.count("duplicate")
		return false
	}
	p.lastEnqueued = evt.Seq
	p.mu.Unlock()

	select {
	case p.queue <- evt:
		return true
	default:
		p.count("dropped")
		p.logger.Error("state publish queue full, event dropped",
			"seq", evt.Seq,
			"state", evt.State.String(),
		)
		return false
	}
}

// Retry asks the worker to flush the backlog. Wire it to the broker's
// reconnect callback.
func (p *Publisher) Retry() {
	select {
	case p.retry <- struct{}{}:
	default:
	}
}

// Run delivers events until ctx is cancelled, then makes one last attempt
// at whatever is still queued.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return nil
		case evt := <-p.queue:
			p.handle(evt)
		case <-p.retry:
			p.flush()
		}
	}
}

func (p *Publisher) drain() {
	for {
		select {
		case evt := <-p.queue:
			p.handle(evt)
		default:
			return
		}
	}
}

func (p *Publisher) handle(evt door.StateChangeEvent) {
	p.notify(evt)

	p.mu.Lock()
	if len(p.backlog) == p.backlogCap {
		dropped := p.backlog[0]
		p.backlog = p.backlog[1:]
		p.logger.Warn("state publish backlog full, oldest event abandoned", "seq", dropped.Seq)
		p.count("dropped")
	}
	p.backlog = append(p.backlog, evt)
	p.mu.Unlock()

	p.flush()
}

// flush delivers backlogged events in order, stopping at the first failure.
func (p *Publisher) flush() {
	for {
		p.mu.Lock()
		if len(p.backlog) == 0 {
			p.mu.Unlock()
			return
		}
		evt := p.backlog[0]
		if evt.Seq <= p.lastDelivered {
			p.backlog = p.backlog[1:]
			p.mu.Unlock()
			continue
		}
		p.mu.Unlock()

		if err := p.deliver(evt); err != nil {
			p.count("failed")
			p.logger.Warn("state publish failed, will retry",
				"seq", evt.Seq,
				"state", evt.State.String(),
				"error", err,
			)
			return
		}
		p.count("ok")

		p.mu.Lock()
		p.lastDelivered = evt.Seq
		p.backlog = p.backlog[1:]
		p.mu.Unlock()

		p.logger.Debug("state published", "seq", evt.Seq, "state", evt.State.String(), "topic", p.topic)
	}
}

func (p *Publisher) deliver(evt door.StateChangeEvent) error {
	payload, err := EncodeState(evt, p.token)
	if err != nil {
		return err
	}
	return p.transport.PublishRetained(p.topic, payload)
}

func (p *Publisher) notify(evt door.StateChangeEvent) {
	p.mu.Lock()
	observers := append([]Observer(nil), p.observers...)
	p.mu.Unlock()

	for _, o := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("state observer panic recovered", "seq", evt.Seq, "panic", r)
				}
			}()
			o.ObserveTransition(evt)
		}()
	}
}

// Backlog returns the number of events awaiting delivery.
func (p *Publisher) Backlog() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.backlog)
}

// LastDelivered returns the Seq of the newest event the broker accepted.
func (p *Publisher) LastDelivered() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastDelivered
}

func (p *Publisher) count(result string) {
	if p.metrics != nil {
		p.metrics.PublishTotal.WithLabelValues(result).Inc()
	}
}
