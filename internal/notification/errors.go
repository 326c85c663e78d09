package notification

import (
	"errors"
	"fmt"
)

// ErrDecode is the root of every decode failure. A payload that decodes to
// zero updates is not an error.
//
//	if errors.Is(err, notification.ErrDecode) {
//	    // payload could not be interpreted
//	}
var ErrDecode = errors.New("notification: decode failed")

// Finer decode failures. All of them wrap ErrDecode.
var (
	// ErrMalformedPayload is returned when the payload is not a JSON object.
	ErrMalformedPayload = fmt.Errorf("%w: malformed payload", ErrDecode)

	// ErrMissingField is returned when a required top-level field is absent.
	ErrMissingField = fmt.Errorf("%w: expected field missing", ErrDecode)

	// ErrInvalidField is returned when a field has the wrong shape or type.
	ErrInvalidField = fmt.Errorf("%w: invalid field", ErrDecode)
)

// ErrInvalidSubscription is returned when a subscription command cannot be built.
var ErrInvalidSubscription = errors.New("notification: invalid subscription")
