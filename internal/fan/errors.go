package fan

import "errors"

// Domain errors for the fan control surface.
var (
	// ErrNotConnected is returned when a control operation is attempted
	// while the transmitter link is down. The request is rejected
	// outright; no state is mutated and nothing is queued.
	ErrNotConnected = errors.New("fan: transmitter not connected")

	// ErrInvalidSpeed is returned when a speed outside [0, 100] is requested.
	ErrInvalidSpeed = errors.New("fan: speed out of range")

	// ErrClosed is returned when the reconciler has been shut down.
	ErrClosed = errors.New("fan: reconciler closed")
)
