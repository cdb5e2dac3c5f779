// Package transmit turns IR signal captures into serial commands for
// the transmitter.
//
// The transmitter's console accepts one line per burst:
//
//	ir tx RAW F:38000 DC:33 9000 4500 560 560 ...\r\n
//
// Its line buffer is small, so long captures are split into chunks of
// at most 64 samples and sent as separate commands, with a drain and a
// short pause after each so the device finishes modulating one burst
// before the next line arrives.
//
// A transmission is all-or-nothing at the sequence level: if any chunk
// fails, the whole sequence restarts from the first chunk on the next
// attempt, because a partially sent capture is meaningless to the fan.
// Attempts are capped; after the last one the engine gives up and
// reports the failure.
//
// A single mutex serializes transmissions. Overlapping IR bursts would
// interleave on the device, so concurrent callers queue here.
package transmit
