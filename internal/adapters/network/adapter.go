package network

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/garagegate/internal/access"
	"github.com/nerrad567/garagegate/internal/adapters"
	"github.com/nerrad567/garagegate/internal/door"
	"github.com/nerrad567/garagegate/internal/infrastructure/mqtt"
)

// Name is the source name used in logs, metrics and status.
const Name = "network"

const queueSize = 16

// Subscriber is the part of the MQTT client the adapter needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Config wires an Adapter.
type Config struct {
	Topic        string
	QoS          byte
	SharedSecret string
	Logger       adapters.Logger
	Now          func() time.Time
}

// Adapter is the network Source. MQTT callbacks push parsed commands into
// a small queue that Poll drains.
type Adapter struct {
	sub    Subscriber
	cfg    Config
	secret []byte
	queue  chan door.Command
}

// New subscribes to the control topic.
func New(sub Subscriber, cfg Config) (*Adapter, error) {
	if cfg.Logger == nil {
		cfg.Logger = adapters.NoopLogger{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	a := &Adapter{
		sub:    sub,
		cfg:    cfg,
		secret: []byte(cfg.SharedSecret),
		queue:  make(chan door.Command, queueSize),
	}
	if err := sub.Subscribe(cfg.Topic, cfg.QoS, a.handle); err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", cfg.Topic, err)
	}
	return a, nil
}

// Name implements adapters.Source.
func (a *Adapter) Name() string { return Name }

// Poll implements adapters.Source. It blocks until a command arrives.
func (a *Adapter) Poll(ctx context.Context) (*door.Command, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case cmd := <-a.queue:
		return &cmd, nil
	}
}

// Close unsubscribes from the control topic.
func (a *Adapter) Close() error {
	return a.sub.Unsubscribe(a.cfg.Topic)
}

// handle runs on the MQTT client's goroutine. Returned errors are logged
// by the client. A retained message is only accepted with a timestamp, so
// the replay window applies to it.
func (a *Adapter) handle(_ string, payload []byte, retained bool) error {
	msg, err := decodeControl(payload)
	if err != nil {
		return err
	}
	if retained && msg.Timestamp == "" {
		return ErrRetained
	}
	cmd, err := msg.command(a.cfg.Now())
	if err != nil {
		return err
	}
	if !access.TokenMatches(cmd.Token, a.secret) {
		return ErrBadToken
	}

	select {
	case a.queue <- cmd:
		a.cfg.Logger.Info("remote command received", "kind", cmd.Kind)
		return nil
	default:
		return fmt.Errorf("network: command queue full, dropping %s", cmd.Kind)
	}
}
