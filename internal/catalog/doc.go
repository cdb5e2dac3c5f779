// Package catalog loads and validates the IR signal catalog.
//
// The catalog is a JSON file mapping signal names to raw IR timing
// captures (carrier frequency, duty cycle, and mark/space durations in
// microseconds). It is loaded once at startup and is immutable
// afterwards, so lookups need no locking.
//
// Validation is eager: every signal must carry a positive carrier
// frequency, a duty cycle percentage in [0, 100], and a non-empty
// sample list of non-negative durations. The fan's four required
// signals (power off plus the three speed bands) must all be present.
// Any violation fails startup rather than surfacing during a
// transmission.
package catalog
