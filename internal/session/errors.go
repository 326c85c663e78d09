package session

import "errors"

// Domain errors for the session package.
var (
	// ErrInvalidDevice is returned when a session is created without a device id.
	ErrInvalidDevice = errors.New("session: invalid device id")

	// ErrInvalidScope is returned for a scope the twin does not know.
	ErrInvalidScope = errors.New("session: invalid scope")

	// ErrUnknownSubscription is returned when a notification carries a
	// subscription id this session never issued.
	ErrUnknownSubscription = errors.New("session: unknown subscription")

	// ErrNoPublisher is returned by Push when no publisher is configured.
	ErrNoPublisher = errors.New("session: no publisher configured")
)
