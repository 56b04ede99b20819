package influxdb

import (
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/garagegate/internal/door"
	"github.com/nerrad567/garagegate/internal/history"
)

// Measurement names.
const (
	MeasurementTransitions = "door_transitions"
	MeasurementDecisions   = "access_decisions"
)

// WriteTransition records a door state change.
//
// Tags carry the low-cardinality dimensions (resulting state, source);
// the sequence number and an is_open flag are fields so dashboards can
// plot door position over time.
//
// The write is non-blocking; points are batched and sent asynchronously.
func (c *Client) WriteTransition(evt door.StateChangeEvent) {
	if !c.IsConnected() {
		return
	}

	open := 0
	if evt.State == door.StateOpen {
		open = 1
	}

	point := write.NewPoint(
		MeasurementTransitions,
		map[string]string{
			"state":  evt.State.String(),
			"source": string(evt.Source),
		},
		map[string]interface{}{
			"seq":     int64(evt.Seq), // #nosec G115 -- sequence numbers stay far below MaxInt64
			"is_open": open,
			"from":    evt.From.String(),
		},
		evt.Timestamp,
	)
	c.writeAPI.WritePoint(point)
}

// ObserveTransition lets the client subscribe to the state publisher.
func (c *Client) ObserveTransition(evt door.StateChangeEvent) {
	c.WriteTransition(evt)
}

// RecordDecision writes an access decision. Plate text is not written;
// it stays in the local audit trail.
//
// Parameters:
//   - d: The validator verdict as produced by the coordinator
func (c *Client) RecordDecision(d history.Decision) {
	if !c.IsConnected() {
		return
	}

	accepted := 0
	if d.Accepted {
		accepted = 1
	}

	point := write.NewPoint(
		MeasurementDecisions,
		map[string]string{
			"source": d.Source,
			"kind":   d.Kind,
			"reason": d.Reason,
		},
		map[string]interface{}{
			"accepted": accepted,
			"outcome":  d.Outcome,
		},
		d.DecidedAt,
	)
	c.writeAPI.WritePoint(point)
}
