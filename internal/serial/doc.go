// Package serial maintains the connection to the IR transmitter over a
// serial device.
//
// The Link owns the port lifecycle: it opens the device, runs a read
// drain loop, and re-establishes the connection when the device
// disappears (USB unplug, transmitter reset). Reconnection is driven by
// a single fixed-period timer rather than backoff: the transmitter is a
// local device, so the failure mode is "unplugged until someone plugs
// it back in" and a constant retry cadence gives a predictable
// worst-case recovery time. At most one reconnect timer is ever
// pending, no matter how many failure paths fire concurrently.
//
// Everything the transmitter prints on its console is read, split into
// lines, and logged verbatim. The link never interprets device output;
// commands are fire-and-forget and the console text exists only for
// diagnostics.
//
// Writes fail fast with ErrNotConnected while the port is down. Callers
// treat that as a precondition failure, not a queue-for-later.
package serial
