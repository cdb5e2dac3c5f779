package bridge

import "errors"

// Domain errors for the MQTT bridge.
var (
	// ErrUnknownCommand is returned when a command name is not recognised.
	ErrUnknownCommand = errors.New("bridge: unknown command")
)
