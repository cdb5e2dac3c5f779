package bridge

import (
	"time"

	"github.com/nerrad567/fanlink/internal/fan"
)

// MQTT message types for the fanlink command surface.

// CommandMessage is an inbound control request.
// Topic: fanlink/command/fan/{fan_id}
type CommandMessage struct {
	// ID uniquely identifies this command for correlation with acks.
	ID string `json:"id"`

	// Timestamp is when the command was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Command is the command name: "on", "off" or "speed".
	Command string `json:"command"`

	// Parameters contains command-specific values.
	// For "speed": {"speed": 66}
	Parameters map[string]any `json:"parameters,omitempty"`

	// Source indicates where the command originated (optional).
	Source string `json:"source,omitempty"`
}

// Command names accepted by the bridge.
const (
	CommandOn    = "on"
	CommandOff   = "off"
	CommandSpeed = "speed"
)

// AckStatus represents the acknowledgment status of a command.
type AckStatus string

const (
	// AckAccepted indicates the command was accepted by the fan.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command was rejected.
	AckFailed AckStatus = "failed"
)

// AckMessage acknowledges a command.
// Topic: fanlink/ack/fan/{fan_id}
type AckMessage struct {
	// CommandID is the ID from the original command.
	CommandID string `json:"command_id"`

	// Timestamp is when the acknowledgment was sent (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// FanID is the fan the command addressed.
	FanID string `json:"fan_id"`

	// Status indicates the acknowledgment status.
	Status AckStatus `json:"status"`

	// Error contains details if status is "failed".
	Error *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	// Code is the machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`
}

// Error codes for command failures.
const (
	ErrCodeNotConnected      = "NOT_CONNECTED"
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// StateMessage carries the fan's settled state.
// Topic: fanlink/state/fan/{fan_id}, QoS 1, retained.
type StateMessage struct {
	// FanID is the fan identifier.
	FanID string `json:"fan_id"`

	// Timestamp is when the state settled (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// On is the power state.
	On bool `json:"on"`

	// Speed is the speed percentage.
	Speed float64 `json:"speed"`

	// Band is the discrete band the speed maps to.
	Band fan.Band `json:"band"`
}

// HealthStatus represents the bridge's health state.
type HealthStatus string

const (
	// HealthOnline indicates the bridge and transmitter link are up.
	HealthOnline HealthStatus = "online"

	// HealthDegraded indicates the bridge is up but the transmitter
	// link is down.
	HealthDegraded HealthStatus = "degraded"

	// HealthStopping indicates a graceful shutdown in progress.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is the periodic health report.
// Topic: fanlink/health/fan, QoS 1, retained.
type HealthMessage struct {
	BridgeID  string       `json:"bridge_id"`
	Timestamp time.Time    `json:"timestamp"`
	Status    HealthStatus `json:"status"`
	Reason    string       `json:"reason,omitempty"`
	UptimeSec int64        `json:"uptime_sec"`
	Version   string       `json:"version"`

	Link   LinkHealth   `json:"link"`
	Engine EngineHealth `json:"engine"`
}

// LinkHealth summarizes serial link statistics.
type LinkHealth struct {
	Connected       bool   `json:"connected"`
	Device          string `json:"device"`
	ReconnectsTotal uint64 `json:"reconnects_total"`
	ErrorsTotal     uint64 `json:"errors_total"`
	LinesRx         uint64 `json:"lines_rx"`
}

// EngineHealth summarizes transmission engine statistics.
type EngineHealth struct {
	TransmissionsTotal  uint64 `json:"transmissions_total"`
	TransmissionsFailed uint64 `json:"transmissions_failed"`
	RetriesTotal        uint64 `json:"retries_total"`
}
