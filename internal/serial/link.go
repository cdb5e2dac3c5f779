package serial

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Defaults and tuning for the serial link.
const (
	// defaultBaudRate matches the transmitter's console speed.
	defaultBaudRate = 230400

	// defaultReconnectInterval is the fixed delay between reconnection attempts.
	defaultReconnectInterval = 5 * time.Second

	// defaultReadBufferSize is the size of a single read from the port.
	defaultReadBufferSize = 4096

	// readPollTimeout bounds a blocking read so the drain loop can
	// notice shutdown without data arriving.
	readPollTimeout = 500 * time.Millisecond

	// maxPendingLine caps how much of an unterminated console line is
	// retained before it is discarded. Prevents unbounded growth if the
	// device streams garbage without newlines.
	maxPendingLine = 32 * 1024
)

// Config holds serial link configuration.
type Config struct {
	// Device is the serial device path, e.g. "/dev/ttyUSB0".
	Device string

	// BaudRate is the line speed. Default: 230400.
	BaudRate int

	// ReconnectInterval is the fixed delay between reconnection attempts.
	// The retry cadence is deliberately constant, not backed off: the
	// device is local and recovery time should be predictable.
	// Default: 5 seconds.
	ReconnectInterval time.Duration

	// ReadBufferSize is the size of a single read from the port.
	// Default: 4096.
	ReadBufferSize int
}

// Stats holds operational statistics for the link.
type Stats struct {
	Connected       bool
	Reconnecting    bool // True if a reconnect timer is pending
	BytesTx         uint64
	LinesRx         uint64
	ErrorsTotal     uint64
	ReconnectsTotal uint64 // Successful reconnections
	LastActivity    time.Time
	Device          string
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Conn is the link surface consumers depend on.
// This allows mocking the serial link in tests.
type Conn interface {
	Write(data []byte) error
	Drain() error
	IsConnected() bool
	Stats() Stats
	Close() error
}

// Ensure Link implements Conn.
var _ Conn = (*Link)(nil)

// Link manages the serial connection to the IR transmitter.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//
// Auto-Reconnection:
//   - When the port fails to open or dies mid-flight, the link schedules
//     a single retry after ReconnectInterval. The interval is constant.
//   - At most one reconnect timer is pending at any moment, regardless
//     of how many failure paths fire concurrently.
//   - Reconnection stops only when Close() is called.
type Link struct {
	cfg  Config
	open Opener

	// Port state
	portMu    sync.RWMutex
	port      Port
	connected bool

	// Reconnect timer singularity guard
	reconnectPending atomic.Bool

	// Shutdown coordination (closeOnce prevents double-close panics)
	done *closeOnce
	wg   sync.WaitGroup

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex

	// Statistics (atomic for performance)
	bytesTx         atomic.Uint64
	linesRx         atomic.Uint64
	errorsTotal     atomic.Uint64
	reconnectsTotal atomic.Uint64
	lastActivity    atomic.Int64 // Unix timestamp
}

// New creates a serial link. It does not touch the device; call Start.
//
// Parameters:
//   - cfg: Link configuration (zero fields get defaults)
//   - opener: Device opener, or nil for the real serial driver
//
// Returns:
//   - *Link: Unstarted link
func New(cfg Config, opener Opener) *Link {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = defaultBaudRate
	}
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}
	if cfg.ReadBufferSize == 0 {
		cfg.ReadBufferSize = defaultReadBufferSize
	}
	if opener == nil {
		opener = OpenDevice
	}

	return &Link{
		cfg:  cfg,
		open: opener,
		done: newCloseOnce(),
	}
}

// Start attempts the initial connection.
//
// A failed first attempt is not an error: the link logs it and falls
// into the reconnect cycle, so the daemon starts whether or not the
// transmitter is plugged in.
func (l *Link) Start() {
	if err := l.connect(); err != nil {
		l.errorsTotal.Add(1)
		l.logWarn("initial open failed, will retry",
			"device", l.cfg.Device,
			"retry_in", l.cfg.ReconnectInterval.String(),
			"error", err)
		l.scheduleReconnect()
	}
}

// connect opens the device and starts its read drain loop.
func (l *Link) connect() error {
	port, err := l.open(l.cfg.Device, l.cfg.BaudRate)
	if err != nil {
		return err
	}

	if err := port.SetReadTimeout(readPollTimeout); err != nil {
		port.Close() //nolint:errcheck // Best effort cleanup on error path
		return fmt.Errorf("%w: set read timeout: %w", ErrOpenFailed, err)
	}

	l.portMu.Lock()
	l.port = port
	l.connected = true
	l.portMu.Unlock()

	l.lastActivity.Store(time.Now().Unix())
	l.logInfo("serial port opened", "device", l.cfg.Device, "baud", l.cfg.BaudRate)

	l.wg.Add(1)
	go l.readLoop(port)

	return nil
}

// readLoop continuously drains the transmitter's console output.
//
// The device prints status text after every command; leaving it in the
// OS buffer would eventually stall the transmitter, so everything is
// read, split into lines, and logged. Output is never interpreted.
// Partial trailing lines are kept until their newline arrives.
func (l *Link) readLoop(port Port) {
	defer l.wg.Done()

	buf := make([]byte, l.cfg.ReadBufferSize)
	var pending []byte

	for {
		select {
		case <-l.done.Done():
			return
		default:
		}

		n, err := port.Read(buf)
		if n > 0 {
			pending = l.consumeConsole(append(pending, buf[:n]...))
		}
		if err != nil {
			if l.isClosed() {
				return
			}
			l.errorsTotal.Add(1)
			l.logWarn("serial read failed", "device", l.cfg.Device, "error", err)
			l.handleDisconnect(port)
			return
		}
		// n == 0 with nil error is a poll timeout; loop to re-check shutdown.
	}
}

// consumeConsole logs complete console lines and returns the unterminated tail.
func (l *Link) consumeConsole(pending []byte) []byte {
	for {
		idx := bytes.IndexByte(pending, '\n')
		if idx < 0 {
			break
		}
		line := bytes.TrimRight(pending[:idx], "\r")
		pending = pending[idx+1:]

		if len(line) == 0 {
			continue
		}
		l.linesRx.Add(1)
		l.lastActivity.Store(time.Now().Unix())
		l.logDebug("transmitter console", "line", string(line))
	}

	if len(pending) > maxPendingLine {
		l.errorsTotal.Add(1)
		l.logWarn("discarding oversized unterminated console line", "bytes", len(pending))
		return nil
	}
	return pending
}

// handleDisconnect tears down a failed port and schedules reconnection.
// The port argument guards against a stale loop or writer closing a
// newer connection.
func (l *Link) handleDisconnect(failed Port) {
	l.portMu.Lock()
	current := l.port == failed
	if current {
		l.port = nil
		l.connected = false
	}
	l.portMu.Unlock()

	if !current {
		return // A newer connection already replaced this port.
	}

	failed.Close() //nolint:errcheck // Device may already be gone

	l.logInfo("connection lost, will attempt reconnection",
		"device", l.cfg.Device,
		"retry_in", l.cfg.ReconnectInterval.String())
	l.scheduleReconnect()
}

// scheduleReconnect arms the reconnect timer if one is not already pending.
// The CompareAndSwap guarantees at most one pending timer even when the
// read loop and a writer detect the same failure concurrently.
func (l *Link) scheduleReconnect() {
	if l.isClosed() {
		return
	}
	if !l.reconnectPending.CompareAndSwap(false, true) {
		return
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		select {
		case <-l.done.Done():
			l.reconnectPending.Store(false)
			return
		case <-time.After(l.cfg.ReconnectInterval):
		}
		l.reconnectPending.Store(false)

		l.attemptReconnect()
	}()
}

// attemptReconnect tears down any stale handle and tries a fresh open.
func (l *Link) attemptReconnect() {
	if l.isClosed() {
		return
	}

	// A previous handle may still be held if the failure was detected
	// elsewhere; the old descriptor must be released before reopening.
	l.portMu.Lock()
	if l.port != nil {
		l.port.Close() //nolint:errcheck // Device may already be gone
		l.port = nil
	}
	l.connected = false
	l.portMu.Unlock()

	if err := l.connect(); err != nil {
		l.errorsTotal.Add(1)
		l.logWarn("reconnect failed, will retry",
			"device", l.cfg.Device,
			"retry_in", l.cfg.ReconnectInterval.String(),
			"error", err)
		l.scheduleReconnect()
		return
	}

	l.reconnectsTotal.Add(1)
	l.logInfo("reconnection successful", "total_reconnects", l.reconnectsTotal.Load())
}

// Write sends raw bytes to the transmitter.
//
// Parameters:
//   - data: Bytes to write, including any trailing terminator
//
// Returns:
//   - error: ErrNotConnected if the port is down, or a wrapped
//     ErrWriteFailed on device failure (which also triggers reconnection)
func (l *Link) Write(data []byte) error {
	l.portMu.RLock()
	port := l.port
	connected := l.connected
	l.portMu.RUnlock()

	if !connected || port == nil {
		return ErrNotConnected
	}

	n, err := port.Write(data)
	if err != nil {
		l.errorsTotal.Add(1)
		l.handleDisconnect(port)
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	l.bytesTx.Add(uint64(n)) //nolint:gosec // Write count is never negative
	l.lastActivity.Store(time.Now().Unix())
	return nil
}

// Drain blocks until the OS transmit buffer has been handed to the device.
//
// Returns:
//   - error: ErrNotConnected if the port is down, or a wrapped
//     ErrDrainFailed on device failure (which also triggers reconnection)
func (l *Link) Drain() error {
	l.portMu.RLock()
	port := l.port
	connected := l.connected
	l.portMu.RUnlock()

	if !connected || port == nil {
		return ErrNotConnected
	}

	if err := port.Drain(); err != nil {
		l.errorsTotal.Add(1)
		l.handleDisconnect(port)
		return fmt.Errorf("%w: %w", ErrDrainFailed, err)
	}
	return nil
}

// IsConnected returns true if the port is currently open.
func (l *Link) IsConnected() bool {
	l.portMu.RLock()
	defer l.portMu.RUnlock()
	return l.connected
}

// isClosed returns true if the link has been closed.
func (l *Link) isClosed() bool {
	select {
	case <-l.done.Done():
		return true
	default:
		return false
	}
}

// Close shuts the link down.
//
// It stops the reconnect cycle, closes the port, and waits for the
// read loop to exit. Safe to call multiple times.
//
// Returns:
//   - error: nil (closing is best-effort)
func (l *Link) Close() error {
	l.done.Close()

	l.portMu.Lock()
	if l.port != nil {
		l.port.Close() //nolint:errcheck // Best effort
		l.port = nil
	}
	l.connected = false
	l.portMu.Unlock()

	l.wg.Wait()

	l.logInfo("serial link closed", "device", l.cfg.Device)
	return nil
}

// SetLogger sets the logger for this link.
func (l *Link) SetLogger(logger Logger) {
	l.loggerMu.Lock()
	l.logger = logger
	l.loggerMu.Unlock()
}

// Stats returns current operational statistics.
func (l *Link) Stats() Stats {
	return Stats{
		Connected:       l.IsConnected(),
		Reconnecting:    l.reconnectPending.Load(),
		BytesTx:         l.bytesTx.Load(),
		LinesRx:         l.linesRx.Load(),
		ErrorsTotal:     l.errorsTotal.Load(),
		ReconnectsTotal: l.reconnectsTotal.Load(),
		LastActivity:    time.Unix(l.lastActivity.Load(), 0),
		Device:          l.cfg.Device,
	}
}

func (l *Link) getLogger() Logger {
	l.loggerMu.RLock()
	defer l.loggerMu.RUnlock()
	return l.logger
}

func (l *Link) logDebug(msg string, keysAndValues ...any) {
	if logger := l.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (l *Link) logInfo(msg string, keysAndValues ...any) {
	if logger := l.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (l *Link) logWarn(msg string, keysAndValues ...any) {
	if logger := l.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}
