// Package auth issues and verifies short-lived API session tokens.
//
// The shared secret is the root credential. Holders can exchange it for
// an HS256 JWT with a scope:
//   - control: may operate the door and manage plates
//   - monitor: read-only (state, history, WebSocket events)
//
// Dashboards and browsers then carry a token that expires and, for the
// monitor scope, cannot open the door. Tokens are validated by signature
// and expiry only; there is no revocation list.
package auth
