package door

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"open", KindOpen, false},
		{" CLOSE ", KindClose, false},
		{"toggle", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseKind(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, ErrUnknownKind) {
			t.Errorf("ParseKind(%q) err = %v, want ErrUnknownKind", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseKind(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestState_TextRoundTrip(t *testing.T) {
	for _, s := range []State{StateClosed, StateOpening, StateOpen, StateClosing} {
		var back State
		b, _ := s.MarshalText()
		if err := back.UnmarshalText(b); err != nil || back != s {
			t.Errorf("round trip %s -> %q -> %s (%v)", s, b, back, err)
		}
	}
	if _, err := ParseState("ajar"); !errors.Is(err, ErrUnknownState) {
		t.Errorf("ParseState(ajar) err = %v", err)
	}
}

func TestStateChangeEvent_JSONUsesNames(t *testing.T) {
	evt := StateChangeEvent{Seq: 1, From: StateClosed, State: StateOpen, Timestamp: time.Unix(10, 0).UTC(), Source: SourceManual}
	b, err := json.Marshal(evt)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	if m["state"] != "open" || m["from"] != "closed" {
		t.Errorf("json = %s", b)
	}
}

func TestSourceValid(t *testing.T) {
	for _, s := range []Source{SourceVision, SourceVoice, SourceNetwork, SourceManual, SourceTimer} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if Source("bluetooth").Valid() {
		t.Error("unknown source reported valid")
	}
}

type stubTimer struct{}

func (stubTimer) Stop() bool { return true }

type stubClock struct{}

func (stubClock) Now() time.Time { return time.Unix(0, 0) }
func (stubClock) AfterFunc(time.Duration, func()) Timer { return stubTimer{} }

func TestMachine_ArmTwicePanics(t *testing.T) {
	m := NewMachine(MachineConfig{Clock: stubClock{}, AutoClose: time.Second})
	m.arm()

	defer func() {
		if recover() == nil {
			t.Error("second arm did not panic")
		}
	}()
	m.arm()
}
