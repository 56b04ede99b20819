package door

import "errors"

var (
	// ErrUnknownState is returned when parsing an unrecognised state name.
	ErrUnknownState = errors.New("unknown door state")

	// ErrUnknownKind is returned when parsing an unrecognised command word.
	ErrUnknownKind = errors.New("unknown command kind")
)
