package door

import (
	"fmt"
	"strings"
	"time"
)

// State is the door's position.
type State int

// Door states. Opening and Closing are transient: the Machine passes
// through them inside a single Apply and never rests in them.
const (
	StateClosed State = iota
	StateOpening
	StateOpen
	StateClosing
)

// String returns the wire name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Resting reports whether s is a state the door can remain in.
func (s State) Resting() bool {
	return s == StateOpen || s == StateClosed
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseState converts a wire name back into a State.
func ParseState(v string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "closed":
		return StateClosed, nil
	case "opening":
		return StateOpening, nil
	case "open":
		return StateOpen, nil
	case "closing":
		return StateClosing, nil
	}
	return StateClosed, fmt.Errorf("%w: %q", ErrUnknownState, v)
}

// Kind is what a command asks the door to do.
type Kind string

// Command kinds.
const (
	KindOpen  Kind = "open"
	KindClose Kind = "close"
)

// Valid reports whether k is a known command kind.
func (k Kind) Valid() bool {
	return k == KindOpen || k == KindClose
}

// Target returns the resting state the command drives the door towards.
func (k Kind) Target() State {
	if k == KindOpen {
		return StateOpen
	}
	return StateClosed
}

// ParseKind normalises a free-form command word.
func ParseKind(v string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(v)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, v)
	}
	return k, nil
}

// Source identifies which producer created a command.
type Source string

// Command sources.
const (
	SourceVision  Source = "vision"
	SourceVoice   Source = "voice"
	SourceNetwork Source = "network"
	SourceManual  Source = "manual"
	SourceTimer   Source = "timer"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceVision, SourceVoice, SourceNetwork, SourceManual, SourceTimer:
		return true
	}
	return false
}

// AuthorizationRecord is an entry from the authorised plate store.
type AuthorizationRecord struct {
	PlateID   string            `json:"plate_id"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Evidence is the source-specific material backing a command.
type Evidence struct {
	// Plate is the cleaned plate text read by the vision pipeline.
	Plate string

	// Transcript is the recognised utterance for voice commands.
	Transcript string

	// Authorization is the store record matching Plate, if any.
	Authorization *AuthorizationRecord
}

// Command is a request to move the door. It is consumed exactly once by
// the validator and never persisted.
type Command struct {
	ID        string
	Kind      Kind
	Source    Source
	Token     string
	Timestamp time.Time
	Evidence  Evidence

	// Generation identifies the auto-close timer that produced a
	// Source=timer command. Zero for every other source.
	Generation uint64
}

// StateChangeEvent records one transition between resting states.
type StateChangeEvent struct {
	Seq              uint64    `json:"seq"`
	From             State     `json:"from"`
	State            State     `json:"state"`
	Timestamp        time.Time `json:"timestamp"`
	CorrelationToken string    `json:"correlation_id,omitempty"`
	Source           Source    `json:"source"`
	CommandID        string    `json:"command_id,omitempty"`
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	v, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
