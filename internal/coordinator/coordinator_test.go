package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nerrad567/garagegate/internal/access"
	"github.com/nerrad567/garagegate/internal/adapters"
	"github.com/nerrad567/garagegate/internal/door"
	"github.com/nerrad567/garagegate/internal/door/doortest"
	"github.com/nerrad567/garagegate/internal/history"
	"github.com/nerrad567/garagegate/internal/infrastructure/metrics"
)

const (
	testSecret    = "coordinator-test-secret"
	testAutoClose = 120 * time.Second
)

type fakePublisher struct {
	events chan door.StateChangeEvent
}

func (p *fakePublisher) Publish(evt door.StateChangeEvent) bool {
	p.events <- evt
	return true
}

type fakeRecorder struct {
	decisions chan history.Decision
}

func (r *fakeRecorder) RecordDecision(d history.Decision) {
	r.decisions <- d
}

type fixture struct {
	clock    *doortest.ManualClock
	coord    *Coordinator
	pub      *fakePublisher
	rec      *fakeRecorder
	metrics  *metrics.Metrics
	cancel   context.CancelFunc
	finished chan error

	stopOnce sync.Once
	runErr   error
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock:    doortest.NewManualClock(time.Unix(1_760_000_000, 0)),
		pub:      &fakePublisher{events: make(chan door.StateChangeEvent, 256)},
		rec:      &fakeRecorder{decisions: make(chan history.Decision, 256)},
		metrics:  metrics.New(),
		finished: make(chan error, 1),
	}
	f.coord = New(Config{Clock: f.clock, AutoClose: testAutoClose, InboxSize: 16},
		access.NewValidator(testSecret, 30*time.Second), f.pub)
	f.coord.AddRecorder(f.rec)
	f.coord.SetMetrics(f.metrics)

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go func() { f.finished <- f.coord.Run(ctx) }()
	t.Cleanup(f.stop)
	return f
}

func (f *fixture) stop() {
	f.stopOnce.Do(func() {
		f.cancel()
		f.runErr = <-f.finished
	})
}

func (f *fixture) submit(t *testing.T, cmd door.Command) {
	t.Helper()
	if err := f.coord.Submit(context.Background(), cmd); err != nil {
		t.Fatalf("Submit(%s/%s) error = %v", cmd.Source, cmd.Kind, err)
	}
}

func (f *fixture) nextEvent(t *testing.T) door.StateChangeEvent {
	t.Helper()
	select {
	case evt := <-f.pub.events:
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for state event")
		return door.StateChangeEvent{}
	}
}

func (f *fixture) nextDecision(t *testing.T) history.Decision {
	t.Helper()
	select {
	case d := <-f.rec.decisions:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for decision")
		return history.Decision{}
	}
}

func (f *fixture) expectNoEvent(t *testing.T) {
	t.Helper()
	select {
	case evt := <-f.pub.events:
		t.Fatalf("unexpected event %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func (f *fixture) networkCommand(kind door.Kind, token string) door.Command {
	return door.Command{Kind: kind, Source: door.SourceNetwork, Token: token, Timestamp: f.clock.Now()}
}

func (f *fixture) visionCommand(plate string, auth *door.AuthorizationRecord) door.Command {
	return door.Command{
		Kind:      door.KindOpen,
		Source:    door.SourceVision,
		Timestamp: f.clock.Now(),
		Evidence:  door.Evidence{Plate: plate, Authorization: auth},
	}
}

func TestCoordinator_OpenThenNetworkClose(t *testing.T) {
	f := newFixture(t)

	f.submit(t, door.Command{Kind: door.KindOpen, Source: door.SourceManual, Timestamp: f.clock.Now()})
	opened := f.nextEvent(t)
	if opened.State != door.StateOpen || opened.Seq != 1 {
		t.Fatalf("first event = %+v, want open seq 1", opened)
	}

	f.clock.Advance(10 * time.Second)
	f.submit(t, f.networkCommand(door.KindClose, testSecret))
	closed := f.nextEvent(t)
	if closed.State != door.StateClosed || closed.Source != door.SourceNetwork || closed.Seq != 2 {
		t.Fatalf("second event = %+v, want network close seq 2", closed)
	}

	// The original deadline passes without a second close.
	f.clock.Advance(2 * testAutoClose)
	f.expectNoEvent(t)
	if f.clock.Pending() != 0 {
		t.Errorf("clock has %d pending timers, want 0", f.clock.Pending())
	}
}

func TestCoordinator_AutoCloseAfterVisionOpen(t *testing.T) {
	f := newFixture(t)
	auth := &door.AuthorizationRecord{PlateID: "ABC123"}

	f.submit(t, f.visionCommand("ABC123", auth))
	opened := f.nextEvent(t)
	if opened.Source != door.SourceVision {
		t.Fatalf("open source = %s, want vision", opened.Source)
	}

	snap := f.coord.Snapshot()
	if snap.State != door.StateOpen || snap.AutoCloseAt == nil {
		t.Fatalf("snapshot = %+v, want open with auto-close deadline", snap)
	}
	if want := f.clock.Now().Add(testAutoClose); !snap.AutoCloseAt.Equal(want) {
		t.Errorf("AutoCloseAt = %v, want %v", snap.AutoCloseAt, want)
	}

	f.clock.Advance(testAutoClose)
	closed := f.nextEvent(t)
	if closed.State != door.StateClosed || closed.Source != door.SourceTimer {
		t.Fatalf("expiry event = %+v, want timer close", closed)
	}
	if snap := f.coord.Snapshot(); snap.State != door.StateClosed || snap.AutoCloseAt != nil {
		t.Errorf("snapshot after expiry = %+v", snap)
	}
}

func TestCoordinator_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		cmd    func(f *fixture) door.Command
		reason access.Reason
	}{
		{
			name:   "unauthorised plate",
			cmd:    func(f *fixture) door.Command { return f.visionCommand("ZZZ999", nil) },
			reason: access.ReasonNotAuthorized,
		},
		{
			name:   "wrong network token",
			cmd:    func(f *fixture) door.Command { return f.networkCommand(door.KindOpen, "not-the-secret") },
			reason: access.ReasonBadToken,
		},
		{
			name: "stale network command",
			cmd: func(f *fixture) door.Command {
				c := f.networkCommand(door.KindOpen, testSecret)
				c.Timestamp = c.Timestamp.Add(-time.Hour)
				return c
			},
			reason: access.ReasonStale,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.submit(t, tt.cmd(f))

			d := f.nextDecision(t)
			if d.Accepted || d.Reason != string(tt.reason) || d.Outcome != "rejected" {
				t.Errorf("decision = %+v, want rejected with %s", d, tt.reason)
			}
			f.expectNoEvent(t)
			if snap := f.coord.Snapshot(); snap.State != door.StateClosed {
				t.Errorf("state = %s, want closed", snap.State)
			}
			got := testutil.ToFloat64(f.metrics.RejectionsTotal.WithLabelValues(string(d.Source), d.Reason))
			if got != 1 {
				t.Errorf("rejections metric = %v, want 1", got)
			}
		})
	}
}

func TestCoordinator_RecordsAcceptedDecisions(t *testing.T) {
	f := newFixture(t)

	f.submit(t, door.Command{Kind: door.KindClose, Source: door.SourceVoice, Timestamp: f.clock.Now()})
	d := f.nextDecision(t)
	if !d.Accepted || d.Outcome != door.NoOp.String() || d.CommandID == "" {
		t.Errorf("decision = %+v, want accepted noop with generated id", d)
	}
	f.expectNoEvent(t)
}

func TestCoordinator_ConcurrentSubmitsAreSerialised(t *testing.T) {
	f := newFixture(t)
	const n = 40

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			kind := door.KindOpen
			if i%2 == 1 {
				kind = door.KindClose
			}
			cmd := door.Command{Kind: kind, Source: door.SourceManual, Timestamp: f.clock.Now()}
			if err := f.coord.Submit(context.Background(), cmd); err != nil {
				t.Errorf("Submit() error = %v", err)
			}
		}()
	}
	wg.Wait()

	for range n {
		f.nextDecision(t)
	}

	var events []door.StateChangeEvent
collect:
	for {
		select {
		case evt := <-f.pub.events:
			events = append(events, evt)
		default:
			break collect
		}
	}
	if len(events) == 0 {
		t.Fatal("no events published")
	}
	for i, evt := range events {
		if evt.Seq != uint64(i+1) {
			t.Errorf("event %d seq = %d, want %d", i, evt.Seq, i+1)
		}
		if i > 0 && evt.From != events[i-1].State {
			t.Errorf("event %d from %s does not follow %s", i, evt.From, events[i-1].State)
		}
		if evt.From == evt.State {
			t.Errorf("event %d is a self transition", i)
		}
	}
	last := events[len(events)-1]
	if snap := f.coord.Snapshot(); snap.State != last.State || snap.Seq != last.Seq {
		t.Errorf("snapshot = %+v, last event = %+v", snap, last)
	}
}

func TestCoordinator_SubmitValidation(t *testing.T) {
	c := New(Config{InboxSize: 1}, access.NewValidator(testSecret, time.Minute), &fakePublisher{})

	err := c.Submit(context.Background(), door.Command{Kind: door.KindOpen, Source: "carrier-pigeon"})
	if !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("Submit(unknown source) error = %v, want ErrInvalidCommand", err)
	}

	cmd := door.Command{Kind: door.KindOpen, Source: door.SourceManual}
	if err := c.Submit(context.Background(), cmd); err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := c.Submit(ctx, cmd); !errors.Is(err, ErrInboxFull) {
		t.Errorf("Submit(full inbox) error = %v, want ErrInboxFull", err)
	}
}

func TestCoordinator_StopCancelsTimerAndRejectsSubmits(t *testing.T) {
	f := newFixture(t)

	f.submit(t, door.Command{Kind: door.KindOpen, Source: door.SourceManual, Timestamp: f.clock.Now()})
	f.nextEvent(t)
	if f.clock.Pending() != 1 {
		t.Fatalf("pending timers = %d, want 1", f.clock.Pending())
	}

	f.stop()
	if f.runErr != nil {
		t.Fatalf("Run() error = %v", f.runErr)
	}

	if f.clock.Pending() != 0 {
		t.Errorf("pending timers after stop = %d, want 0", f.clock.Pending())
	}
	err := f.coord.Submit(context.Background(), door.Command{Kind: door.KindClose, Source: door.SourceManual})
	if !errors.Is(err, ErrStopped) {
		t.Errorf("Submit() after stop error = %v, want ErrStopped", err)
	}
}

type onceSource struct {
	cmd  *door.Command
	sent bool
}

func (s *onceSource) Name() string { return "once" }

func (s *onceSource) Poll(ctx context.Context) (*door.Command, error) {
	if !s.sent {
		s.sent = true
		return s.cmd, nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCoordinator_RunsRegisteredSources(t *testing.T) {
	clock := doortest.NewManualClock(time.Unix(1_760_000_000, 0))
	pub := &fakePublisher{events: make(chan door.StateChangeEvent, 4)}
	c := New(Config{Clock: clock, AutoClose: testAutoClose}, access.NewValidator(testSecret, time.Minute), pub)

	board := adapters.NewStatusBoard(nil)
	c.SetStatusBoard(board)
	c.Register(&onceSource{cmd: &door.Command{Kind: door.KindOpen, Source: door.SourceManual}}, adapters.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case evt := <-pub.events:
		if evt.State != door.StateOpen {
			t.Errorf("event state = %s, want open", evt.State)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("registered source never opened the door")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if st, ok := board.Get("once"); !ok || st.Health != adapters.HealthStopped {
		t.Errorf("source status = %+v, want stopped", st)
	}
	if clock.Pending() != 0 {
		t.Errorf("pending timers after Run = %d, want 0", clock.Pending())
	}
}
