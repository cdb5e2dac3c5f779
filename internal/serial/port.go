package serial

import (
	"fmt"
	"time"

	bugst "go.bug.st/serial"
)

// Port is the subset of the serial device surface the link needs.
// It allows substituting a fake device in tests.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Drain() error
	SetReadTimeout(t time.Duration) error
	Close() error
}

// Opener opens a serial device at the given baud rate.
// The default implementation uses go.bug.st/serial; tests inject fakes.
type Opener func(device string, baudRate int) (Port, error)

// OpenDevice opens a real serial device in 8N1 mode.
//
// Parameters:
//   - device: Device path, e.g. "/dev/ttyUSB0"
//   - baudRate: Line speed in bits per second
//
// Returns:
//   - Port: Open serial port
//   - error: Wrapping ErrOpenFailed if the device cannot be opened
func OpenDevice(device string, baudRate int) (Port, error) {
	mode := &bugst.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	}

	port, err := bugst.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOpenFailed, device, err)
	}
	return port, nil
}
