// Package network accepts remote door commands from the MQTT control topic.
//
// Messages look like {"command": "open", "token": "...", "timestamp": 1760000000}.
// The token must equal the shared secret; messages that fail to parse or
// authenticate are logged and dropped before they reach the coordinator.
package network
