// Package influxdb records fanlink telemetry in InfluxDB v2.
//
// Three measurements are written:
//   - transmission: one point per IR transmission (success, attempts,
//     chunk count, duration)
//   - fan_state: one point per settled state change (power, speed, band)
//   - link: serial link connectivity transitions and reconnect counts
//
// Writes use the non-blocking batched WriteAPI, so recording telemetry
// never stalls a transmission. Async write errors surface through the
// SetOnError callback. The whole package is optional; when disabled in
// config the daemon runs without it.
package influxdb
