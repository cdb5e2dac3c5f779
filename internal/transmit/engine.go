package transmit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/fanlink/internal/catalog"
)

// Defaults for the transmission engine.
const (
	// defaultChunkSize is the maximum samples per command line. Bounded
	// by the transmitter's console line buffer.
	defaultChunkSize = 64

	// defaultMaxAttempts is how many times a full sequence is tried.
	defaultMaxAttempts = 3

	// defaultInterChunkDelay gives the device time to modulate one
	// burst before the next command line arrives.
	defaultInterChunkDelay = 100 * time.Millisecond
)

// Config holds transmission engine configuration.
type Config struct {
	// ChunkSize is the maximum samples per command. Default: 64.
	ChunkSize int

	// MaxAttempts is how many times the full sequence is tried before
	// giving up. Default: 3.
	MaxAttempts int

	// InterChunkDelay is the pause after each chunk. Default: 100ms.
	InterChunkDelay time.Duration
}

// Link is the serial surface the engine writes to.
// This allows mocking the serial link in tests.
type Link interface {
	Write(data []byte) error
	Drain() error
	IsConnected() bool
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Result describes one completed (or abandoned) transmission.
type Result struct {
	// Chunks is how many commands the sequence was split into.
	Chunks int

	// Attempts is how many full-sequence attempts were made.
	Attempts int

	// Duration is wall time from first write to final drain.
	Duration time.Duration
}

// Stats holds operational statistics for the engine.
type Stats struct {
	TransmissionsTotal  uint64
	TransmissionsFailed uint64
	ChunksTx            uint64
	RetriesTotal        uint64 // Sequence restarts after a chunk failure
	LastTransmission    time.Time
}

// Engine sends IR signals over the serial link.
//
// Thread Safety:
//   - Transmit is safe for concurrent use; a single mutex serializes
//     transmissions so bursts never interleave on the device.
type Engine struct {
	cfg  Config
	link Link

	// txMu serializes whole transmissions, not individual writes.
	txMu sync.Mutex

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex

	// Statistics (atomic for performance)
	transmissionsTotal  atomic.Uint64
	transmissionsFailed atomic.Uint64
	chunksTx            atomic.Uint64
	retriesTotal        atomic.Uint64
	lastTransmission    atomic.Int64 // Unix timestamp
}

// New creates a transmission engine over the given link.
//
// Parameters:
//   - cfg: Engine configuration (zero fields get defaults)
//   - link: Serial link to write commands to
//
// Returns:
//   - *Engine: Ready engine
func New(cfg Config, link Link) *Engine {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.InterChunkDelay <= 0 {
		cfg.InterChunkDelay = defaultInterChunkDelay
	}

	return &Engine{
		cfg:  cfg,
		link: link,
	}
}

// Transmit sends a signal's full sample sequence to the transmitter.
//
// The sequence is chunked, each chunk written and drained with a pause
// after it. If any chunk fails, the whole sequence restarts from the
// first chunk, up to MaxAttempts times.
//
// Parameters:
//   - ctx: Context for cancellation between chunks and attempts
//   - sig: Validated signal from the catalog
//
// Returns:
//   - Result: Chunk count, attempts made, and elapsed time
//   - error: ErrNotConnected if the link is down (no attempt is made),
//     ErrTransmissionFailed after all attempts are exhausted, or the
//     context error if cancelled mid-sequence
func (e *Engine) Transmit(ctx context.Context, sig catalog.Signal) (Result, error) {
	if !e.link.IsConnected() {
		e.logWarn("transmission skipped, transmitter not connected", "signal", sig.Name)
		return Result{}, ErrNotConnected
	}

	e.txMu.Lock()
	defer e.txMu.Unlock()

	e.transmissionsTotal.Add(1)
	chunks := chunkSamples(sig.Samples, e.cfg.ChunkSize)
	started := time.Now()
	res := Result{Chunks: len(chunks)}

	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		res.Attempts = attempt
		if attempt > 1 {
			e.retriesTotal.Add(1)
		}

		err := e.sendSequence(ctx, sig, chunks)
		if err == nil {
			res.Duration = time.Since(started)
			e.lastTransmission.Store(time.Now().Unix())
			e.logDebug("transmission complete",
				"signal", sig.Name,
				"chunks", len(chunks),
				"attempt", attempt)
			return res, nil
		}
		if ctx.Err() != nil {
			res.Duration = time.Since(started)
			e.transmissionsFailed.Add(1)
			return res, fmt.Errorf("%w: %w", ErrTransmissionFailed, ctx.Err())
		}

		lastErr = err
		e.logWarn("transmission attempt failed",
			"signal", sig.Name,
			"attempt", attempt,
			"max_attempts", e.cfg.MaxAttempts,
			"error", err)
	}

	res.Duration = time.Since(started)
	e.transmissionsFailed.Add(1)
	e.logError("transmission failed, attempts exhausted", "signal", sig.Name, "error", lastErr)
	return res, fmt.Errorf("%w: %s: %w", ErrTransmissionFailed, sig.Name, lastErr)
}

// sendSequence sends every chunk of one attempt, first to last.
func (e *Engine) sendSequence(ctx context.Context, sig catalog.Signal, chunks [][]int) error {
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}

		cmd := buildCommand(sig.Frequency, sig.DutyCycle, chunk)
		if err := e.link.Write(cmd); err != nil {
			return fmt.Errorf("chunk %d/%d: write: %w", i+1, len(chunks), err)
		}
		if err := e.link.Drain(); err != nil {
			return fmt.Errorf("chunk %d/%d: drain: %w", i+1, len(chunks), err)
		}
		e.chunksTx.Add(1)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.cfg.InterChunkDelay):
		}
	}
	return nil
}

// IsReady reports whether a transmission would be attempted right now.
func (e *Engine) IsReady() bool {
	return e.link.IsConnected()
}

// Stats returns current operational statistics.
func (e *Engine) Stats() Stats {
	return Stats{
		TransmissionsTotal:  e.transmissionsTotal.Load(),
		TransmissionsFailed: e.transmissionsFailed.Load(),
		ChunksTx:            e.chunksTx.Load(),
		RetriesTotal:        e.retriesTotal.Load(),
		LastTransmission:    time.Unix(e.lastTransmission.Load(), 0),
	}
}

// SetLogger sets the logger for this engine.
func (e *Engine) SetLogger(logger Logger) {
	e.loggerMu.Lock()
	e.logger = logger
	e.loggerMu.Unlock()
}

// chunkSamples splits samples into slices of at most size elements.
// The final chunk holds the remainder; 130 samples at size 64 yields
// chunks of 64, 64 and 2.
func chunkSamples(samples []int, size int) [][]int {
	chunks := make([][]int, 0, (len(samples)+size-1)/size)
	for start := 0; start < len(samples); start += size {
		end := min(start+size, len(samples))
		chunks = append(chunks, samples[start:end])
	}
	return chunks
}

// buildCommand renders one chunk as a transmitter console command.
// Format: "ir tx RAW F:<freq> DC:<duty> <samples...>\r\n"
func buildCommand(frequency int, dutyCycle float64, samples []int) []byte {
	var b strings.Builder
	b.Grow(32 + len(samples)*6)

	b.WriteString("ir tx RAW F:")
	b.WriteString(strconv.Itoa(frequency))
	b.WriteString(" DC:")
	b.WriteString(strconv.FormatFloat(dutyCycle, 'g', -1, 64))
	for _, s := range samples {
		b.WriteByte(' ')
		b.WriteString(strconv.Itoa(s))
	}
	b.WriteString("\r\n")

	return []byte(b.String())
}

func (e *Engine) getLogger() Logger {
	e.loggerMu.RLock()
	defer e.loggerMu.RUnlock()
	return e.logger
}

func (e *Engine) logDebug(msg string, keysAndValues ...any) {
	if logger := e.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (e *Engine) logWarn(msg string, keysAndValues ...any) {
	if logger := e.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (e *Engine) logError(msg string, keysAndValues ...any) {
	if logger := e.getLogger(); logger != nil {
		logger.Error(msg, keysAndValues...)
	}
}
