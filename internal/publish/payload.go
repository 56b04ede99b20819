package publish

import (
	"encoding/json"
	"fmt"

	"github.com/nerrad567/garagegate/internal/door"
)

// StateMessage is the JSON body published on the state topic.
type StateMessage struct {
	State         string `json:"state"`
	Timestamp     int64  `json:"timestamp"`
	Token         string `json:"token"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// EncodeState renders evt as a StateMessage. token is the shared secret
// that subscribers use to recognise genuine state messages.
func EncodeState(evt door.StateChangeEvent, token string) ([]byte, error) {
	if !evt.State.Resting() {
		return nil, fmt.Errorf("encoding state: %s is not a resting state", evt.State)
	}
	b, err := json.Marshal(StateMessage{
		State:         evt.State.String(),
		Timestamp:     evt.Timestamp.Unix(),
		Token:         token,
		CorrelationID: evt.CorrelationToken,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding state: %w", err)
	}
	return b, nil
}

// DecodeState parses a state message.
func DecodeState(payload []byte) (StateMessage, door.State, error) {
	var msg StateMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return StateMessage{}, door.StateClosed, fmt.Errorf("decoding state: %w", err)
	}
	state, err := door.ParseState(msg.State)
	if err != nil {
		return msg, door.StateClosed, err
	}
	return msg, state, nil
}
