// Package publish delivers door state changes to the outside world.
//
// The coordinator hands each StateChangeEvent to Publisher.Publish, which
// never blocks. A single worker goroutine encodes the event, publishes it
// retained on the state topic and notifies local observers (display hub,
// history, telemetry). Events are identified by their sequence number, so
// the same event is never delivered twice. A failed publish is kept in a
// small backlog and retried when the next event arrives or when the
// broker connection comes back; the door state is never rolled back.
package publish
