// Package bridge exposes the fan over MQTT.
//
// It handles:
//   - Receiving commands from the broker and applying them to the fan
//   - Publishing retained state after every settle
//   - Acknowledging each command with success or a machine-readable
//     error code
//   - Periodic health reporting with link and engine statistics
//
// The bridge is a thin translation layer: validation and debouncing
// live in the fan package, transmission in the transmit package. A
// command that the fan rejects (transmitter unplugged, bad speed) is
// acked as failed and otherwise forgotten.
package bridge
