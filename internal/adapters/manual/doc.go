// Package manual implements the operator console: single-letter commands
// typed on standard input.
//
//	o, open     open the door
//	c, close    close the door
//	p, preview  toggle the camera preview
//	q, quit     shut the controller down
package manual
