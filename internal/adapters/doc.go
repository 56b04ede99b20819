// Package adapters defines the contract between event sources and the
// coordinator, and the supervised loop that drives every source.
//
// A Source turns one kind of raw input (camera frames, microphone audio,
// MQTT messages, console keys) into door commands. Poll returns a typed
// result: a command, nothing, or an error. Errors never reach the
// coordinator: Run logs them, marks the source degraded on the
// StatusBoard and retries with exponential backoff.
//
// Subpackages provide the concrete sources: vision, voice, network and
// manual.
package adapters
