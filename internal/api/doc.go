// Package api implements the HTTP REST API and WebSocket server.
//
// This package provides:
//   - Door status, remote open/close and the local audit trail
//   - Authorised plate administration
//   - Adapter health and runtime statistics
//   - Prometheus metrics exposition
//   - A WebSocket hub that pushes every door transition
//
// # Security
//
// Mutating and audit endpoints require "Authorization: Bearer <secret>"
// with the controller's shared secret. WebSocket clients pass the same
// secret as the token query parameter. Door state and health are public.
//
// # Graceful Degradation
//
// The server runs without MQTT or InfluxDB. Remote commands go straight to
// the coordinator, so the door can be operated over HTTP while the broker
// is down.
package api
