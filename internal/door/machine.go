package door

import (
	"fmt"
	"time"
)

// Outcome describes what Apply did with a command.
type Outcome int

const (
	// Transitioned means the door moved and an event was produced.
	Transitioned Outcome = iota

	// NoOp means the door was already in the requested state.
	NoOp

	// StaleTimer means a timer command arrived for a timer that is no
	// longer armed. It is dropped.
	StaleTimer
)

func (o Outcome) String() string {
	switch o {
	case Transitioned:
		return "transitioned"
	case NoOp:
		return "noop"
	case StaleTimer:
		return "stale_timer"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ExpiryFunc is called from the timer's goroutine when the auto-close
// delay elapses. The receiver must turn it into a Source=timer CLOSE
// command carrying generation and route it back into Apply.
type ExpiryFunc func(generation uint64, firedAt time.Time)

// MachineConfig configures a Machine.
type MachineConfig struct {
	Clock     Clock
	AutoClose time.Duration
	OnExpire  ExpiryFunc

	// Initial is the state assumed at startup. Transient states are
	// treated as closed.
	Initial State
}

// Machine is the door state machine. It owns the current state and at
// most one auto-close timer.
type Machine struct {
	clock     Clock
	autoClose time.Duration
	onExpire  ExpiryFunc

	state  State
	seq    uint64
	lastTS time.Time

	timer      Timer
	armed      bool
	generation uint64
	deadline   time.Time
}

// NewMachine creates a Machine resting in cfg.Initial.
func NewMachine(cfg MachineConfig) *Machine {
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.OnExpire == nil {
		cfg.OnExpire = func(uint64, time.Time) {}
	}
	initial := cfg.Initial
	if !initial.Resting() {
		initial = StateClosed
	}
	return &Machine{
		clock:     cfg.Clock,
		autoClose: cfg.AutoClose,
		onExpire:  cfg.OnExpire,
		state:     initial,
	}
}

// State returns the current resting state.
func (m *Machine) State() State { return m.state }

// Seq returns the sequence number of the last emitted event.
func (m *Machine) Seq() uint64 { return m.seq }

// ArmedTimers returns 1 while an auto-close timer is pending, otherwise 0.
func (m *Machine) ArmedTimers() int {
	if m.armed {
		return 1
	}
	return 0
}

// Generation returns the generation of the most recently armed timer.
func (m *Machine) Generation() uint64 { return m.generation }

// Deadline returns when the armed timer will fire. ok is false when no
// timer is armed.
func (m *Machine) Deadline() (deadline time.Time, ok bool) {
	return m.deadline, m.armed
}

// Apply runs an already-validated command through the machine.
//
// A CLOSE from the timer is honoured only if its generation matches the
// armed timer. Every transition cancels any prior timer; an OPEN arms
// exactly one new timer.
func (m *Machine) Apply(cmd Command) (StateChangeEvent, Outcome) {
	if cmd.Source == SourceTimer {
		if !m.armed || cmd.Generation != m.generation {
			return StateChangeEvent{}, StaleTimer
		}
		// The timer has fired; it is no longer pending.
		m.armed = false
		m.timer = nil
		m.deadline = time.Time{}
	}

	target := cmd.Kind.Target()
	if m.state == target {
		return StateChangeEvent{}, NoOp
	}

	from := m.state
	switch target {
	case StateOpen:
		m.state = StateOpening
		m.disarm()
		m.state = StateOpen
		m.arm()
	case StateClosed:
		m.state = StateClosing
		m.disarm()
		m.state = StateClosed
	}

	return m.emit(from, cmd), Transitioned
}

// Shutdown cancels any pending timer. The machine remains usable.
func (m *Machine) Shutdown() {
	m.disarm()
}

func (m *Machine) emit(from State, cmd Command) StateChangeEvent {
	ts := m.clock.Now()
	if ts.Before(m.lastTS) {
		ts = m.lastTS
	}
	m.lastTS = ts
	m.seq++

	return StateChangeEvent{
		Seq:              m.seq,
		From:             from,
		State:            m.state,
		Timestamp:        ts,
		CorrelationToken: cmd.ID,
		Source:           cmd.Source,
		CommandID:        cmd.ID,
	}
}

// arm starts a new auto-close timer. Arming while a timer is pending
// would allow two closes per open and is a programming error.
func (m *Machine) arm() {
	if m.armed {
		panic(fmt.Sprintf("door: arming timer while generation %d is pending", m.generation))
	}
	m.generation++
	gen := m.generation
	m.armed = true
	m.deadline = m.clock.Now().Add(m.autoClose)
	m.timer = m.clock.AfterFunc(m.autoClose, func() {
		m.onExpire(gen, m.clock.Now())
	})
}

func (m *Machine) disarm() {
	if !m.armed {
		return
	}
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = nil
	m.armed = false
	m.deadline = time.Time{}
}
