package mqtt

import "fmt"

// TopicPrefix is the root of all fanlink topics.
//
// Topic scheme: fanlink/{category}/fan/{fan_id}
//   - command: inbound control requests
//   - state: retained fan state after every settle
//   - ack: per-command acknowledgements
//   - health: periodic link/engine health (retained)
const TopicPrefix = "fanlink"

// Topics provides builders for fanlink MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
type Topics struct{}

// FanCommand returns the inbound command topic for a fan.
//
// Example: fanlink/command/fan/living-room
func (Topics) FanCommand(fanID string) string {
	return fmt.Sprintf("%s/command/fan/%s", TopicPrefix, fanID)
}

// FanState returns the retained state topic for a fan.
//
// Example: fanlink/state/fan/living-room
func (Topics) FanState(fanID string) string {
	return fmt.Sprintf("%s/state/fan/%s", TopicPrefix, fanID)
}

// FanAck returns the acknowledgement topic for a fan.
//
// Example: fanlink/ack/fan/living-room
func (Topics) FanAck(fanID string) string {
	return fmt.Sprintf("%s/ack/fan/%s", TopicPrefix, fanID)
}

// FanHealth returns the retained health topic.
//
// Example: fanlink/health/fan
func (Topics) FanHealth() string {
	return fmt.Sprintf("%s/health/fan", TopicPrefix)
}

// SystemStatus returns the daemon status topic (retained, also the LWT).
//
// Example: fanlink/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", TopicPrefix)
}

// AllFanCommands returns a pattern matching commands for every fan.
//
// Pattern: fanlink/command/fan/+
func (Topics) AllFanCommands() string {
	return fmt.Sprintf("%s/command/fan/+", TopicPrefix)
}

// FanIDFromCommandTopic extracts the fan ID from a command topic.
// Returns "" if the topic does not match the command scheme.
func FanIDFromCommandTopic(topic string) string {
	prefix := fmt.Sprintf("%s/command/fan/", TopicPrefix)
	if len(topic) <= len(prefix) || topic[:len(prefix)] != prefix {
		return ""
	}
	return topic[len(prefix):]
}
