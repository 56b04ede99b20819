// Package door models the garage door: its state, the commands that move it,
// the events emitted when it moves, and the state machine that owns the
// auto-close safety timer.
//
// The Machine is not safe for concurrent use. Exactly one goroutine (the
// coordinator's event loop) owns it; everything else talks to that goroutine
// through commands. Timer expiry is reported through a callback and must be
// fed back into Apply as an ordinary CLOSE command carrying the timer's
// generation, so a superseded timer can never close the door.
package door
