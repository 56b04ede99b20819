// Package coordinator serialises every door command through a single
// goroutine.
//
// Adapters, the HTTP API and the auto-close timer all call Submit. The
// Run loop is the only consumer: it validates each command, applies it
// to the door.Machine, hands resulting events to the publisher and
// records the decision. Because the machine is touched by exactly one
// goroutine, conflicting commands are resolved purely by arrival order.
package coordinator
