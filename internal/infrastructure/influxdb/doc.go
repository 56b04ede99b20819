// Package influxdb writes door telemetry to InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health monitoring.
//
// # Purpose
//
// The local SQLite audit trail answers "what happened recently". This
// package feeds long-term dashboards:
//   - door_transitions: every state change, tagged by state and source
//   - access_decisions: every validator verdict, tagged by source, kind
//     and reason
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	publisher.AddObserver(client)
//
// # Error Handling
//
// Writes are non-blocking and batch errors are delivered via the
// SetOnError callback. Connection and health check errors are returned
// directly.
package influxdb
