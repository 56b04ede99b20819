package network

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/nerrad567/garagegate/internal/door"
)

var (
	// ErrMalformed is returned for payloads that are not a control message.
	ErrMalformed = errors.New("network: malformed control message")

	// ErrBadToken is returned when the token does not match the shared secret.
	ErrBadToken = errors.New("network: invalid command token")

	// ErrRetained is returned for a retained control message with no
	// timestamp. The broker replays it on every subscribe, so it cannot be
	// told apart from a fresh command.
	ErrRetained = errors.New("network: retained control message without timestamp")
)

// maxTimestamp bounds accepted unix timestamps (around the year 8800).
const maxTimestamp = math.MaxInt32 * 100

// ControlMessage is the control topic payload.
type ControlMessage struct {
	Command   string      `json:"command"`
	Token     string      `json:"token"`
	Timestamp json.Number `json:"timestamp,omitempty"`
}

// ParseControl decodes payload into a network command. The timestamp is
// unix seconds and may be fractional; when absent, received is used.
func ParseControl(payload []byte, received time.Time) (door.Command, error) {
	msg, err := decodeControl(payload)
	if err != nil {
		return door.Command{}, err
	}
	return msg.command(received)
}

func decodeControl(payload []byte) (ControlMessage, error) {
	var msg ControlMessage
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&msg); err != nil {
		return ControlMessage{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return msg, nil
}

func (msg ControlMessage) command(received time.Time) (door.Command, error) {
	kind, err := door.ParseKind(msg.Command)
	if err != nil {
		return door.Command{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	ts := received
	if msg.Timestamp != "" {
		secs, err := msg.Timestamp.Float64()
		if err != nil || secs <= 0 || secs > maxTimestamp {
			return door.Command{}, fmt.Errorf("%w: bad timestamp %q", ErrMalformed, msg.Timestamp)
		}
		whole, frac := math.Modf(secs)
		ts = time.Unix(int64(whole), int64(frac*1e9))
	}

	return door.Command{
		Kind:      kind,
		Source:    door.SourceNetwork,
		Token:     msg.Token,
		Timestamp: ts,
	}, nil
}
