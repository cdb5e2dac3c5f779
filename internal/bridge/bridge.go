package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/fanlink/internal/fan"
	"github.com/nerrad567/fanlink/internal/infrastructure/mqtt"
)

// Bridge operation constants.
const (
	// defaultQoS is used when no QoS is configured.
	defaultQoS = 1
)

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error

	// Unsubscribe removes a subscription.
	Unsubscribe(topic string) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// FanControl is the fan surface the bridge drives.
type FanControl interface {
	SetOn(on bool) error
	SetSpeed(speed float64) error
	State() fan.State
	Band() fan.Band
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Options holds configuration for creating a bridge.
type Options struct {
	// FanID is the fan addressed by command and state topics.
	FanID string

	// MQTT is the broker client.
	MQTT MQTTClient

	// Fan is the control surface commands are applied to.
	Fan FanControl

	// QoS for published messages. Default: 1.
	QoS byte
}

// Bridge translates between MQTT and the fan control surface.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	fanID string
	mqtt  MQTTClient
	fc    FanControl
	qos   byte

	topics mqtt.Topics

	// Statistics (atomic for performance)
	commandsProcessed atomic.Uint64
	commandsFailed    atomic.Uint64

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a bridge.
//
// Parameters:
//   - opts: Bridge options; FanID, MQTT and Fan are required
//
// Returns:
//   - *Bridge: Unstarted bridge
//   - error: If a required option is missing
func New(opts Options) (*Bridge, error) {
	if opts.FanID == "" {
		return nil, errors.New("bridge: fan ID is required")
	}
	if opts.MQTT == nil {
		return nil, errors.New("bridge: MQTT client is required")
	}
	if opts.Fan == nil {
		return nil, errors.New("bridge: fan control is required")
	}

	qos := opts.QoS
	if qos == 0 {
		qos = defaultQoS
	}

	return &Bridge{
		fanID: opts.FanID,
		mqtt:  opts.MQTT,
		fc:    opts.Fan,
		qos:   qos,
	}, nil
}

// Start subscribes to the fan's command topic and publishes the
// current state so subscribers see it immediately.
func (b *Bridge) Start() error {
	topic := b.topics.FanCommand(b.fanID)
	if err := b.mqtt.Subscribe(topic, b.qos, b.handleCommand); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}

	b.logInfo("bridge started", "fan_id", b.fanID, "command_topic", topic)

	if err := b.PublishState(b.fc.State(), b.fc.Band()); err != nil {
		b.logWarn("initial state publish failed", "error", err)
	}
	return nil
}

// Stop unsubscribes from the command topic.
func (b *Bridge) Stop() error {
	if err := b.mqtt.Unsubscribe(b.topics.FanCommand(b.fanID)); err != nil {
		return fmt.Errorf("unsubscribing: %w", err)
	}
	b.logInfo("bridge stopped", "fan_id", b.fanID)
	return nil
}

// handleCommand processes one inbound command message.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.commandsFailed.Add(1)
		b.logWarn("dropping malformed command", "topic", topic, "error", err)
		return fmt.Errorf("parsing command: %w", err)
	}

	b.logDebug("command received",
		"fan_id", b.fanID,
		"command", cmd.Command,
		"command_id", cmd.ID,
		"source", cmd.Source)

	if err := b.execute(cmd); err != nil {
		b.commandsFailed.Add(1)
		b.publishAckError(cmd.ID, err)
		return nil // Handled: the failure went out as an ack.
	}

	b.commandsProcessed.Add(1)
	b.publishAck(cmd.ID)
	return nil
}

// execute applies a command to the fan.
func (b *Bridge) execute(cmd CommandMessage) error {
	switch cmd.Command {
	case CommandOn:
		return b.fc.SetOn(true)
	case CommandOff:
		return b.fc.SetOn(false)
	case CommandSpeed:
		speed, ok := numberParam(cmd.Parameters, "speed")
		if !ok {
			return fmt.Errorf("%w: missing or non-numeric speed parameter", fan.ErrInvalidSpeed)
		}
		return b.fc.SetSpeed(speed)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Command)
	}
}

// PublishState publishes the fan state, retained, to the state topic.
// Wired as a settle hook so every reconciled change reaches the broker.
func (b *Bridge) PublishState(st fan.State, band fan.Band) error {
	msg := StateMessage{
		FanID:     b.fanID,
		Timestamp: time.Now().UTC(),
		On:        st.On,
		Speed:     st.Speed,
		Band:      band,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	if err := b.mqtt.Publish(b.topics.FanState(b.fanID), payload, b.qos, true); err != nil {
		return fmt.Errorf("publishing state: %w", err)
	}
	return nil
}

// publishAck publishes a success acknowledgement.
func (b *Bridge) publishAck(commandID string) {
	b.sendAck(AckMessage{
		CommandID: commandID,
		Timestamp: time.Now().UTC(),
		FanID:     b.fanID,
		Status:    AckAccepted,
	})
}

// publishAckError publishes a failure acknowledgement with a mapped
// error code.
func (b *Bridge) publishAckError(commandID string, cmdErr error) {
	b.sendAck(AckMessage{
		CommandID: commandID,
		Timestamp: time.Now().UTC(),
		FanID:     b.fanID,
		Status:    AckFailed,
		Error: &AckError{
			Code:    errorCode(cmdErr),
			Message: cmdErr.Error(),
		},
	})
}

func (b *Bridge) sendAck(ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("encoding ack failed", "error", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.FanAck(b.fanID), payload, b.qos, false); err != nil {
		b.logWarn("publishing ack failed", "command_id", ack.CommandID, "error", err)
	}
}

// errorCode maps a command error to its ack error code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, fan.ErrNotConnected):
		return ErrCodeNotConnected
	case errors.Is(err, fan.ErrInvalidSpeed):
		return ErrCodeInvalidParameters
	case errors.Is(err, ErrUnknownCommand):
		return ErrCodeInvalidCommand
	default:
		return ErrCodeBridgeError
	}
}

// numberParam extracts a numeric parameter, accepting the types JSON
// decoding can produce.
func numberParam(params map[string]any, key string) (float64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Stats returns command counters for health reporting.
func (b *Bridge) Stats() (processed, failed uint64) {
	return b.commandsProcessed.Load(), b.commandsFailed.Load()
}

// SetLogger sets the logger for this bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, keysAndValues...)
	}
}
