package access

import "errors"

var (
	// ErrPlateNotAuthorized is returned by Lookup when the plate is not in
	// the store. It is an expected result, not a failure.
	ErrPlateNotAuthorized = errors.New("plate not authorized")

	// ErrInvalidPlate is returned when a plate cleans to the empty string.
	ErrInvalidPlate = errors.New("invalid plate")
)
