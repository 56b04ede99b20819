package network

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nerrad567/garagegate/internal/access"
	"github.com/nerrad567/garagegate/internal/door"
	"github.com/nerrad567/garagegate/internal/infrastructure/mqtt"
)

const secret = "network-test-secret"

var received = time.Unix(1_760_000_500, 0)

func TestParseControl(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		kind    door.Kind
		ts      time.Time
		wantErr bool
	}{
		{name: "open with timestamp", payload: `{"command":"open","token":"t","timestamp":1760000000}`, kind: door.KindOpen, ts: time.Unix(1_760_000_000, 0)},
		{name: "fractional timestamp", payload: `{"command":"close","token":"t","timestamp":1760000000.5}`, kind: door.KindClose, ts: time.Unix(1_760_000_000, 500_000_000)},
		{name: "upper case command", payload: `{"command":"OPEN","token":"t"}`, kind: door.KindOpen, ts: received},
		{name: "missing timestamp uses receive time", payload: `{"command":"close","token":"t"}`, kind: door.KindClose, ts: received},
		{name: "unknown command", payload: `{"command":"toggle","token":"t"}`, wantErr: true},
		{name: "not json", payload: `open`, wantErr: true},
		{name: "negative timestamp", payload: `{"command":"open","timestamp":-5}`, wantErr: true},
		{name: "timestamp beyond range", payload: `{"command":"open","timestamp":1e300}`, wantErr: true},
		{name: "timestamp overflows float", payload: `{"command":"open","timestamp":1e400}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := ParseControl([]byte(tt.payload), received)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformed) {
					t.Errorf("ParseControl() error = %v, want ErrMalformed", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseControl() error = %v", err)
			}
			if cmd.Kind != tt.kind || cmd.Source != door.SourceNetwork || !cmd.Timestamp.Equal(tt.ts) {
				t.Errorf("ParseControl() = %+v, want %s at %v", cmd, tt.kind, tt.ts)
			}
		})
	}
}

type fakeSubscriber struct {
	topic        string
	handler      mqtt.MessageHandler
	unsubscribed bool
}

func (f *fakeSubscriber) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	f.topic = topic
	f.handler = handler
	return nil
}

func (f *fakeSubscriber) Unsubscribe(topic string) error {
	if topic == f.topic {
		f.unsubscribed = true
	}
	return nil
}

func newAdapter(t *testing.T) (*Adapter, *fakeSubscriber) {
	t.Helper()
	sub := &fakeSubscriber{}
	a, err := New(sub, Config{
		Topic:        "garage/control",
		SharedSecret: secret,
		Now:          func() time.Time { return received },
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a, sub
}

func TestAdapter_DeliversAuthenticatedCommands(t *testing.T) {
	a, sub := newAdapter(t)
	if sub.topic != "garage/control" {
		t.Fatalf("subscribed to %q", sub.topic)
	}

	if err := sub.handler("garage/control", []byte(`{"command":"open","token":"`+secret+`"}`), false); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	cmd, err := a.Poll(ctx)
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if cmd.Kind != door.KindOpen || cmd.Token != secret {
		t.Errorf("Poll() = %+v", cmd)
	}

	if err := a.Close(); err != nil || !sub.unsubscribed {
		t.Errorf("Close() error = %v, unsubscribed = %v", err, sub.unsubscribed)
	}
}

func TestAdapter_DropsBadMessages(t *testing.T) {
	a, sub := newAdapter(t)

	if err := sub.handler("garage/control", []byte(`{"command":"open","token":"wrong"}`), false); !errors.Is(err, ErrBadToken) {
		t.Errorf("wrong token error = %v, want ErrBadToken", err)
	}
	if err := sub.handler("garage/control", []byte(`{{`), false); !errors.Is(err, ErrMalformed) {
		t.Errorf("malformed error = %v, want ErrMalformed", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if cmd, err := a.Poll(ctx); cmd != nil || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Poll() = (%+v, %v), want nothing queued", cmd, err)
	}
}

func TestAdapter_QueueFull(t *testing.T) {
	_, sub := newAdapter(t)
	msg := []byte(`{"command":"close","token":"` + secret + `"}`)
	for i := 0; i < queueSize; i++ {
		if err := sub.handler("garage/control", msg, false); err != nil {
			t.Fatalf("handler %d error = %v", i, err)
		}
	}
	if err := sub.handler("garage/control", msg, false); err == nil {
		t.Error("handler accepted a message into a full queue")
	}
}

func TestAdapter_RetainedControlMessages(t *testing.T) {
	a, sub := newAdapter(t)

	// Replayed on every reconnect with a fresh receive time: never accepted.
	untimed := []byte(`{"command":"open","token":"` + secret + `"}`)
	for i := 0; i < 3; i++ {
		if err := sub.handler("garage/control", untimed, true); !errors.Is(err, ErrRetained) {
			t.Fatalf("delivery %d error = %v, want ErrRetained", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if cmd, err := a.Poll(ctx); cmd != nil || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Poll() = (%+v, %v), want nothing queued", cmd, err)
	}

	// A timestamped retained message keeps its own time, so the replay
	// window rejects it once it is stale.
	timed := []byte(fmt.Sprintf(`{"command":"open","token":%q,"timestamp":%d}`, secret, received.Unix()))
	if err := sub.handler("garage/control", timed, true); err != nil {
		t.Fatalf("timestamped retained message error = %v", err)
	}
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	cmd, err := a.Poll(ctx2)
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if !cmd.Timestamp.Equal(received) {
		t.Fatalf("Timestamp = %v, want %v", cmd.Timestamp, received)
	}

	v := access.NewValidator(secret, 30*time.Second)
	for _, tt := range []struct {
		after time.Duration
		want  bool
	}{
		{0, true},
		{time.Hour, false},
		{24 * time.Hour, false},
	} {
		if got := v.Validate(*cmd, received.Add(tt.after)); got.Accepted != tt.want {
			t.Errorf("Validate at +%v accepted = %v (%s), want %v", tt.after, got.Accepted, got.Reason, tt.want)
		}
	}
}
