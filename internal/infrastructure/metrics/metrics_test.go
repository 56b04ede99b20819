package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_IndependentRegistries(t *testing.T) {
	a := New()
	b := New()

	a.DoorOpen.Set(1)
	if got := testutil.ToFloat64(b.DoorOpen); got != 0 {
		t.Errorf("second Metrics shares state: DoorOpen = %v", got)
	}
}

func TestHandler_ExposesInstruments(t *testing.T) {
	m := New()
	m.CommandsTotal.WithLabelValues("manual", "open", "accepted").Inc()
	m.TransitionsTotal.WithLabelValues("open", "manual").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`garage_commands_total{kind="open",result="accepted",source="manual"} 1`,
		`garage_door_transitions_total{source="manual",state="open"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
