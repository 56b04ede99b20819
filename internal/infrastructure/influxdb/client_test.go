package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/garagegate/internal/door"
	"github.com/nerrad567/garagegate/internal/history"
	"github.com/nerrad567/garagegate/internal/infrastructure/config"
	"github.com/nerrad567/garagegate/internal/infrastructure/influxdb"
)

// fakeInflux answers the two endpoints the client uses: /ping and
// /api/v2/write. Written line protocol is collected.
type fakeInflux struct {
	mu      sync.Mutex
	lines   []string
	healthy bool
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ping":
		f.mu.Lock()
		healthy := f.healthy
		f.mu.Unlock()
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case "/api/v2/write":
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
			if line != "" {
				f.lines = append(f.lines, line)
			}
		}
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeInflux) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "garagegate-test-token",
		Org:           "garagegate",
		Bucket:        "door",
		BatchSize:     100,
		FlushInterval: 1,
		Tags:          map[string]string{"site": "test-garage"},
	}
}

func connect(t *testing.T) (*influxdb.Client, *fakeInflux) {
	t.Helper()
	fake := &fakeInflux{healthy: true}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := influxdb.Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client, fake
}

func TestConnect(t *testing.T) {
	client, _ := connect(t)
	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Enabled = false

	_, err := influxdb.Connect(context.Background(), cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unhealthy(t *testing.T) {
	srv := httptest.NewServer(&fakeInflux{healthy: false})
	defer srv.Close()

	_, err := influxdb.Connect(context.Background(), testConfig(srv.URL))
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := influxdb.Connect(ctx, testConfig("http://127.0.0.1:59999"))
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestWriteTransitionAndDecision(t *testing.T) {
	client, fake := connect(t)
	ts := time.Unix(1_760_000_000, 0)

	client.ObserveTransition(door.StateChangeEvent{
		Seq:       7,
		From:      door.StateClosed,
		State:     door.StateOpen,
		Timestamp: ts,
		Source:    door.SourceVision,
	})
	client.RecordDecision(history.Decision{
		CommandID: "cmd-1",
		Kind:      "open",
		Source:    "network",
		Plate:     "ABC123",
		Reason:    "bad_token",
		Outcome:   "rejected",
		DecidedAt: ts,
	})
	client.Flush()

	lines := fake.written()
	if len(lines) != 2 {
		t.Fatalf("wrote %d lines, want 2: %q", len(lines), lines)
	}

	transition := lines[0]
	for _, want := range []string{influxdb.MeasurementTransitions + ",", "state=open", "source=vision", "site=test-garage", "seq=7i", "is_open=1i"} {
		if !strings.Contains(transition, want) {
			t.Errorf("transition line %q missing %q", transition, want)
		}
	}

	decision := lines[1]
	for _, want := range []string{influxdb.MeasurementDecisions + ",", "reason=bad_token", "accepted=0i"} {
		if !strings.Contains(decision, want) {
			t.Errorf("decision line %q missing %q", decision, want)
		}
	}
	if strings.Contains(decision, "ABC123") {
		t.Errorf("decision line leaks plate: %q", decision)
	}
}

func TestWritesAfterCloseAreDropped(t *testing.T) {
	client, fake := connect(t)
	client.Close()

	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	client.WriteTransition(door.StateChangeEvent{Seq: 1, State: door.StateOpen})
	client.Flush()

	if n := len(fake.written()); n != 0 {
		t.Errorf("wrote %d lines after Close(), want 0", n)
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close() error = %v, want ErrNotConnected", err)
	}
}

func TestClose_Idempotent(t *testing.T) {
	client, _ := connect(t)
	if err := client.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	client.Flush()
}
