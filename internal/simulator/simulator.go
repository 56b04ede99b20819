// Package simulator renders the published door state as a text animation.
//
// It is the controller's stand-in for a physical door: it follows the
// retained state topic and moves a virtual door between fully closed (0)
// and fully open (MaxHeight) one Step per frame.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/garagegate/internal/access"
	"github.com/nerrad567/garagegate/internal/door"
	"github.com/nerrad567/garagegate/internal/infrastructure/mqtt"
	"github.com/nerrad567/garagegate/internal/publish"
)

// Door geometry and animation speed.
const (
	// MaxHeight is the opening of a fully open door.
	MaxHeight = 400

	// Step is how far the door moves per frame.
	Step = 5

	// FrameRate is the number of animation frames per second.
	FrameRate = 30

	barWidth = 40
)

// ErrBadToken is returned for state messages not signed with the shared secret.
var ErrBadToken = errors.New("simulator: state message token mismatch")

// Model is the door position. It is safe for concurrent use.
type Model struct {
	mu     sync.Mutex
	height int
	open   bool
}

// SetOpen sets the target position.
func (m *Model) SetOpen(open bool) {
	m.mu.Lock()
	m.open = open
	m.mu.Unlock()
}

// Advance moves the door one step toward its target and reports whether
// it moved.
func (m *Model) Advance() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.open && m.height < MaxHeight:
		m.height = min(m.height+Step, MaxHeight)
		return true
	case !m.open && m.height > 0:
		m.height = max(m.height-Step, 0)
		return true
	}
	return false
}

// Height returns the current opening, 0..MaxHeight.
func (m *Model) Height() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.height
}

// Target reports whether the door is heading open.
func (m *Model) Target() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// Render draws the door as a single status line.
func (m *Model) Render() string {
	m.mu.Lock()
	height, open := m.height, m.open
	m.mu.Unlock()

	filled := barWidth - height*barWidth/MaxHeight
	status := "CLOSED"
	if open {
		status = "OPEN"
	}
	return fmt.Sprintf("GARAGE: %-6s [%s%s] %3d%%",
		status,
		strings.Repeat("#", filled),
		strings.Repeat(" ", barWidth-filled),
		height*100/MaxHeight,
	)
}

// Subscriber is the part of the MQTT client the simulator needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Logger is the logging surface the simulator uses.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Simulator follows the state topic and animates a Model.
type Simulator struct {
	model  *Model
	out    io.Writer
	secret []byte
	logger Logger
	frame  time.Duration
}

// New creates a simulator writing frames to out. With an empty secret
// every well-formed state message is accepted.
func New(out io.Writer, secret string, logger Logger) *Simulator {
	return &Simulator{
		model:  &Model{},
		out:    out,
		secret: []byte(secret),
		logger: logger,
		frame:  time.Second / FrameRate,
	}
}

// Model returns the simulated door.
func (s *Simulator) Model() *Model { return s.model }

// Subscribe attaches the simulator to the state topic.
func (s *Simulator) Subscribe(sub Subscriber, topic string, qos byte) error {
	if err := sub.Subscribe(topic, qos, s.HandleState); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	return nil
}

// HandleState applies one state message.
func (s *Simulator) HandleState(_ string, payload []byte, _ bool) error {
	msg, state, err := publish.DecodeState(payload)
	if err != nil {
		return err
	}
	if len(s.secret) > 0 && !access.TokenMatches(msg.Token, s.secret) {
		return ErrBadToken
	}

	open := state == door.StateOpen
	if open != s.model.Target() {
		s.logger.Info("door state received", "state", state, "correlation_id", msg.CorrelationID)
	}
	s.model.SetOpen(open)
	return nil
}

// Run animates the door at FrameRate until ctx ends. A frame is written
// only when the door moves.
func (s *Simulator) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.frame)
	defer ticker.Stop()

	fmt.Fprintf(s.out, "\r%s", s.model.Render())
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out)
			return nil
		case <-ticker.C:
			if s.model.Advance() {
				fmt.Fprintf(s.out, "\r%s", s.model.Render())
			}
		}
	}
}
