package transmit

import "errors"

// Domain errors for the transmission engine.
var (
	// ErrNotConnected is returned when a transmission is requested while
	// the serial link is down. The engine does not queue or retry in
	// this state; the caller decides what the failure means.
	ErrNotConnected = errors.New("transmit: transmitter not connected")

	// ErrTransmissionFailed is returned when every attempt at sending a
	// signal's full chunk sequence has failed.
	ErrTransmissionFailed = errors.New("transmit: transmission failed")
)
