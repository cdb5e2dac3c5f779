package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/fanlink/internal/infrastructure/mqtt"
	"github.com/nerrad567/fanlink/internal/serial"
	"github.com/nerrad567/fanlink/internal/transmit"
)

// defaultHealthInterval is used when no reporting interval is configured.
const defaultHealthInterval = 30 * time.Second

// HealthPublisher is the interface for publishing health messages.
// This is typically implemented by an MQTT client.
type HealthPublisher interface {
	// Publish sends a message to a topic with the specified QoS and retention.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// IsConnected returns true if the publisher is connected.
	IsConnected() bool
}

// LinkStats provides serial link statistics for health reports.
type LinkStats interface {
	Stats() serial.Stats
}

// EngineStats provides transmission engine statistics for health reports.
type EngineStats interface {
	Stats() transmit.Stats
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// BridgeID identifies this daemon instance in health messages.
	BridgeID string

	// Version is the daemon software version.
	Version string

	// Interval is how often to publish health status.
	// Default: 30 seconds.
	Interval time.Duration

	// Publisher is the MQTT client for publishing messages.
	Publisher HealthPublisher

	// Link provides serial link statistics.
	Link LinkStats

	// Engine provides transmission engine statistics.
	Engine EngineStats
}

// HealthReporter manages periodic health status reporting.
// It publishes health messages to MQTT at regular intervals.
type HealthReporter struct {
	bridgeID  string
	version   string
	startTime time.Time
	interval  time.Duration
	publisher HealthPublisher
	link      LinkStats
	engine    EngineStats

	topics mqtt.Topics

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex
}

// NewHealthReporter creates a new health reporter.
//
// Parameters:
//   - cfg: Configuration for the health reporter
//
// Returns:
//   - *HealthReporter: Ready to start (call Start to begin reporting)
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultHealthInterval
	}

	return &HealthReporter{
		bridgeID:  cfg.BridgeID,
		version:   cfg.Version,
		startTime: time.Now(),
		interval:  interval,
		publisher: cfg.Publisher,
		link:      cfg.Link,
		engine:    cfg.Engine,
		done:      make(chan struct{}),
	}
}

// Start begins periodic health reporting.
// Must be called after creation. Call Stop to shut down.
//
// Parameters:
//   - ctx: Context for cancellation (will stop reporting when cancelled)
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop gracefully stops health reporting.
// Publishes a final "stopping" status before returning.
// Safe to call multiple times (uses sync.Once).
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		// Best-effort during shutdown, nothing we can do if it fails.
		//nolint:errcheck
		h.publishStatus(HealthStopping, "shutting down")
	})
}

// PublishNow publishes the current health status immediately.
// Useful for forcing an update after a significant event.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// reportLoop runs the periodic health reporting.
func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	// Publish initial status
	if err := h.PublishNow(); err != nil {
		h.logReportError("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logReportError("failed to publish health", err)
			}
		}
	}
}

// determineStatus evaluates the current daemon status.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}

	if h.link == nil || !h.link.Stats().Connected {
		return HealthDegraded, "transmitter disconnected"
	}

	return HealthOnline, ""
}

// publishStatus publishes a health status message.
func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil // No publisher configured
	}

	msg := HealthMessage{
		BridgeID:  h.bridgeID,
		Timestamp: time.Now().UTC(),
		Status:    status,
		Reason:    reason,
		UptimeSec: int64(time.Since(h.startTime).Seconds()),
		Version:   h.version,
	}

	if h.link != nil {
		ls := h.link.Stats()
		msg.Link = LinkHealth{
			Connected:       ls.Connected,
			Device:          ls.Device,
			ReconnectsTotal: ls.ReconnectsTotal,
			ErrorsTotal:     ls.ErrorsTotal,
			LinesRx:         ls.LinesRx,
		}
	}

	if h.engine != nil {
		es := h.engine.Stats()
		msg.Engine = EngineHealth{
			TransmissionsTotal:  es.TransmissionsTotal,
			TransmissionsFailed: es.TransmissionsFailed,
			RetriesTotal:        es.RetriesTotal,
		}
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	// QoS 1, retained so new subscribers see the latest report.
	return h.publisher.Publish(h.topics.FanHealth(), payload, 1, true)
}

// logReportError logs an error if a logger is set.
func (h *HealthReporter) logReportError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
