// Package access decides whether a door command may be executed.
//
// The Validator checks each command against its source's trust rules:
// remote commands must carry the shared secret, vision commands must carry
// an authorization record matching the plate they saw, and commands from
// the network or camera must be fresh. Manual, voice and timer commands
// are trusted.
//
// The package also owns the authorised plate store. The vision adapter
// looks plates up before it produces a command; the validator only
// verifies the evidence attached to it.
package access
