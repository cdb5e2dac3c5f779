package serial

import "errors"

// Domain errors for the serial link package.
var (
	// ErrNotConnected is returned when an operation requires an open port
	// but the link is not connected to the transmitter.
	ErrNotConnected = errors.New("serial: not connected to transmitter")

	// ErrOpenFailed is returned when opening the serial device fails.
	ErrOpenFailed = errors.New("serial: open failed")

	// ErrWriteFailed is returned when writing to the serial port fails.
	ErrWriteFailed = errors.New("serial: write failed")

	// ErrDrainFailed is returned when flushing the transmit buffer fails.
	ErrDrainFailed = errors.New("serial: drain failed")

	// ErrClosed is returned when an operation is attempted after Close.
	ErrClosed = errors.New("serial: link closed")
)
