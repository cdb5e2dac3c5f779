package fan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/fanlink/internal/catalog"
	"github.com/nerrad567/fanlink/internal/transmit"
)

// Reconciler tuning.
const (
	// defaultDebounce is the settle window for rapid repeated writes.
	defaultDebounce = 300 * time.Millisecond

	// persistTimeout bounds database work done during a settle.
	persistTimeout = 5 * time.Second
)

// Debounce slot names. Each property settles independently.
const (
	slotOn    = "on"
	slotSpeed = "speed"
)

// Transmitter sends catalog signals to the device.
// This allows mocking the engine in tests.
type Transmitter interface {
	Transmit(ctx context.Context, sig catalog.Signal) (transmit.Result, error)
	IsReady() bool
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Config holds reconciler configuration.
type Config struct {
	// FanID identifies the fan in persistence and telemetry.
	FanID string

	// Debounce is the settle window per property. Default: 300ms.
	Debounce time.Duration

	// Thresholds map speed percentages to bands.
	Thresholds Thresholds

	// Signals are the catalog names for each fan action.
	Signals SignalNames
}

// SettleEvent describes one completed settle, for state publishers and
// telemetry.
type SettleEvent struct {
	// Property is the debounce slot that settled ("on" or "speed").
	Property string

	// State is the state after the settle.
	State State

	// Signal is the catalog signal transmitted, or "" for a no-op settle.
	Signal string

	// Result holds transmission metadata when Signal is non-empty.
	Result transmit.Result

	// Err is the transmission error, nil on success or no-op.
	Err error
}

// Reconciler debounces state writes and reconciles settled state
// against the device.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Settle hooks are invoked sequentially from timer goroutines.
type Reconciler struct {
	cfg Config
	cat *catalog.Catalog
	tx  Transmitter

	// store is optional; a nil store skips persistence.
	store Store

	// stateMu guards current, previous, timers and closed.
	stateMu  sync.Mutex
	current  State
	previous State
	timers   map[string]*time.Timer
	closed   bool

	// settleMu serializes the settle body from snapshot through the
	// advance of previous, so two slots firing in one window diff one
	// at a time and the second sees the first's advance.
	settleMu sync.Mutex

	// ctx cancels in-flight transmissions on Close.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Settle hooks
	hooksMu sync.RWMutex
	hooks   []func(SettleEvent)

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex
}

// NewReconciler creates a reconciler.
//
// Parameters:
//   - cfg: Reconciler configuration (zero Debounce gets the default)
//   - cat: Validated signal catalog
//   - tx: Transmission engine
//   - store: State persistence, or nil to run in-memory only
//
// Returns:
//   - *Reconciler: Ready reconciler with zero state
func NewReconciler(cfg Config, cat *catalog.Catalog, tx Transmitter, store Store) *Reconciler {
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Reconciler{
		cfg:    cfg,
		cat:    cat,
		tx:     tx,
		store:  store,
		timers: make(map[string]*time.Timer),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Restore loads persisted state into both state copies.
//
// Called once at startup, before any writes. The restored state is not
// transmitted: the fan is wherever it was, and we resume believing the
// last thing we told it.
func (r *Reconciler) Restore(ctx context.Context) error {
	if r.store == nil {
		return nil
	}

	st, found, err := r.store.LoadState(ctx, r.cfg.FanID)
	if err != nil {
		return fmt.Errorf("restoring fan state: %w", err)
	}
	if !found {
		return nil
	}

	r.stateMu.Lock()
	r.current = st
	r.previous = st
	r.stateMu.Unlock()

	r.logInfo("fan state restored", "fan_id", r.cfg.FanID, "on", st.On, "speed", st.Speed)
	return nil
}

// SetOn records a power request and arms the "on" debounce slot.
//
// The write is visible to readers immediately; the device sees it only
// after the slot settles.
func (r *Reconciler) SetOn(on bool) error {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()

	if r.closed {
		return ErrClosed
	}

	r.current.On = on
	r.current.UpdatedAt = time.Now()
	r.schedule(slotOn)
	return nil
}

// SetSpeed records a speed request and arms the "speed" debounce slot.
func (r *Reconciler) SetSpeed(speed float64) error {
	if speed < 0 || speed > 100 {
		return fmt.Errorf("%w: %g", ErrInvalidSpeed, speed)
	}

	r.stateMu.Lock()
	defer r.stateMu.Unlock()

	if r.closed {
		return ErrClosed
	}

	r.current.Speed = speed
	r.current.UpdatedAt = time.Now()
	r.schedule(slotSpeed)
	return nil
}

// State returns the latest requested state.
func (r *Reconciler) State() State {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return r.current
}

// LastApplied returns the state last reconciled against the device.
func (r *Reconciler) LastApplied() State {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return r.previous
}

// Band returns the speed band for the current state.
func (r *Reconciler) Band() Band {
	return r.cfg.Thresholds.Band(r.State().Speed)
}

// OnSettle registers a hook invoked after every settle.
// Hooks must not block; they run on the settle goroutine.
func (r *Reconciler) OnSettle(fn func(SettleEvent)) {
	r.hooksMu.Lock()
	r.hooks = append(r.hooks, fn)
	r.hooksMu.Unlock()
}

// schedule arms (or re-arms) a debounce slot. Caller holds stateMu.
//
// Cancel-and-replace: an armed timer for the slot is stopped and a
// fresh full window started, so only the last value within a burst is
// ever reconciled.
func (r *Reconciler) schedule(slot string) {
	if old, ok := r.timers[slot]; ok {
		if old.Stop() {
			r.wg.Done() // Stopped before firing; its settle will never run.
		}
	}

	r.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(r.cfg.Debounce, func() {
		defer r.wg.Done()
		r.settle(slot, t)
	})
	r.timers[slot] = t
}

// settle reconciles the settled state for one slot against the device.
//
// Settles run one at a time. When the "on" and "speed" slots fire in
// the same window the second waits for the first to finish and advance
// previous, then evaluates the merged state as a no-op instead of
// repeating the transmission.
func (r *Reconciler) settle(slot string, self *time.Timer) {
	r.stateMu.Lock()
	if r.timers[slot] == self {
		delete(r.timers, slot)
	}
	closed := r.closed
	r.stateMu.Unlock()
	if closed {
		return
	}

	r.settleMu.Lock()
	defer r.settleMu.Unlock()

	r.stateMu.Lock()
	cur := r.current
	prev := r.previous
	r.stateMu.Unlock()

	r.persist(cur)

	signalName := r.decide(prev, cur)
	event := SettleEvent{Property: slot, State: cur, Signal: signalName}

	if signalName != "" {
		event.Result, event.Err = r.send(signalName)
	} else {
		r.logDebug("settle is a no-op", "fan_id", r.cfg.FanID, "slot", slot)
	}

	// The belief advances once the attempt completes, success or not.
	// The device cannot acknowledge, so retrying a failed send forever
	// would just replay stale commands; the next diff starts from here.
	r.stateMu.Lock()
	r.previous = cur
	r.stateMu.Unlock()

	r.notify(event)
}

// decide picks the signal that moves the device from prev to cur, or
// "" when nothing needs to be sent.
func (r *Reconciler) decide(prev, cur State) string {
	switch {
	case cur.On && !prev.On:
		return r.cfg.Signals.ForBand(r.cfg.Thresholds.Band(cur.Speed))
	case !cur.On && prev.On:
		// Power off wins regardless of any speed change in the same window.
		return r.cfg.Signals.Off
	case cur.On && prev.On && cur.Speed != prev.Speed:
		return r.cfg.Signals.ForBand(r.cfg.Thresholds.Band(cur.Speed))
	default:
		return ""
	}
}

// send transmits one catalog signal and records the outcome.
func (r *Reconciler) send(name string) (transmit.Result, error) {
	sig, err := r.cat.Get(name)
	if err != nil {
		// Catalog is validated at startup; this indicates misconfiguration.
		r.logError("signal lookup failed", "signal", name, "error", err)
		return transmit.Result{}, err
	}

	res, err := r.tx.Transmit(r.ctx, sig)
	if err != nil {
		r.logWarn("reconcile transmission failed",
			"fan_id", r.cfg.FanID,
			"signal", name,
			"attempts", res.Attempts,
			"error", err)
	} else {
		r.logInfo("signal transmitted",
			"fan_id", r.cfg.FanID,
			"signal", name,
			"chunks", res.Chunks,
			"attempts", res.Attempts,
			"duration", res.Duration.String())
	}

	r.logOutcome(name, res, err)
	return res, err
}

// persist saves the settled state. Persistence failures are logged,
// never escalated; losing a restore row must not break the fan.
func (r *Reconciler) persist(st State) {
	if r.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := r.store.SaveState(ctx, r.cfg.FanID, st); err != nil {
		r.logError("persisting fan state failed", "fan_id", r.cfg.FanID, "error", err)
	}
}

// logOutcome appends a transmission log row.
func (r *Reconciler) logOutcome(signal string, res transmit.Result, txErr error) {
	if r.store == nil {
		return
	}

	rec := TransmissionRecord{
		FanID:    r.cfg.FanID,
		Signal:   signal,
		Chunks:   res.Chunks,
		Attempts: res.Attempts,
		Success:  txErr == nil,
		Duration: res.Duration,
	}
	if txErr != nil {
		rec.Error = txErr.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := r.store.LogTransmission(ctx, rec); err != nil {
		r.logError("recording transmission failed", "fan_id", r.cfg.FanID, "error", err)
	}
}

// notify invokes settle hooks, recovering panics so a bad subscriber
// cannot kill the settle goroutine.
func (r *Reconciler) notify(event SettleEvent) {
	r.hooksMu.RLock()
	hooks := r.hooks
	r.hooksMu.RUnlock()

	for _, fn := range hooks {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.logError("settle hook panic", "panic", fmt.Sprintf("%v", rec))
				}
			}()
			fn(event)
		}()
	}
}

// Close stops pending timers, cancels in-flight transmissions, and
// waits for settle goroutines to finish. Safe to call multiple times.
func (r *Reconciler) Close() error {
	r.stateMu.Lock()
	if r.closed {
		r.stateMu.Unlock()
		return nil
	}
	r.closed = true
	for slot, t := range r.timers {
		if t.Stop() {
			r.wg.Done()
		}
		delete(r.timers, slot)
	}
	r.stateMu.Unlock()

	r.cancel()
	r.wg.Wait()
	return nil
}

// SetLogger sets the logger for this reconciler.
func (r *Reconciler) SetLogger(logger Logger) {
	r.loggerMu.Lock()
	r.logger = logger
	r.loggerMu.Unlock()
}

func (r *Reconciler) getLogger() Logger {
	r.loggerMu.RLock()
	defer r.loggerMu.RUnlock()
	return r.logger
}

func (r *Reconciler) logDebug(msg string, keysAndValues ...any) {
	if logger := r.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (r *Reconciler) logInfo(msg string, keysAndValues ...any) {
	if logger := r.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (r *Reconciler) logWarn(msg string, keysAndValues ...any) {
	if logger := r.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (r *Reconciler) logError(msg string, keysAndValues ...any) {
	if logger := r.getLogger(); logger != nil {
		logger.Error(msg, keysAndValues...)
	}
}
