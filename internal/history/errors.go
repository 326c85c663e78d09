package history

import "errors"

var (
	// ErrInvalidDevice is returned when the device id is the nil UUID.
	ErrInvalidDevice = errors.New("history: device id is required")

	// ErrInvalidScope is returned for a scope outside the known set.
	ErrInvalidScope = errors.New("history: invalid scope")

	// ErrInvalidKey is returned for an empty attribute key.
	ErrInvalidKey = errors.New("history: attribute key is required")
)
