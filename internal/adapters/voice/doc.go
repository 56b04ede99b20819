// Package voice turns spoken phrases such as "open the garage" into door
// commands. Audio is captured in short windows by an external recorder
// process and transcribed by an HTTP speech service.
package voice
