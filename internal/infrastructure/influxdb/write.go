package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteTransmission records one IR transmission outcome.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - fanID: Fan identifier
//   - signal: Catalog signal name (e.g., "speed_low")
//   - success: Whether the sequence was fully sent
//   - attempts: Full-sequence attempts made
//   - chunks: Commands the sequence was split into
//   - duration: Wall time of the transmission
func (c *Client) WriteTransmission(fanID, signal string, success bool, attempts, chunks int, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"transmission",
		map[string]string{
			"fan_id": fanID,
			"signal": signal,
		},
		map[string]interface{}{
			"success":     success,
			"attempts":    attempts,
			"chunks":      chunks,
			"duration_ms": duration.Milliseconds(),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteStateChange records a settled fan state.
//
// Parameters:
//   - fanID: Fan identifier
//   - on: Power state
//   - speed: Speed percentage
//   - band: Discrete band the speed maps to
func (c *Client) WriteStateChange(fanID string, on bool, speed float64, band string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"fan_state",
		map[string]string{
			"fan_id": fanID,
			"band":   band,
		},
		map[string]interface{}{
			"on":    on,
			"speed": speed,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteLinkEvent records a serial link connectivity transition.
//
// Parameters:
//   - device: Serial device path
//   - connected: New connectivity state
//   - reconnects: Cumulative successful reconnections
func (c *Client) WriteLinkEvent(device string, connected bool, reconnects uint64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"link",
		map[string]string{
			"device": device,
		},
		map[string]interface{}{
			"connected":  connected,
			"reconnects": int64(reconnects), //nolint:gosec // Counter fits int64
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}
