package fan

// Readiness reports whether the transmitter can currently be driven.
type Readiness interface {
	IsReady() bool
}

// Accessory is the user-facing control surface for one fan.
//
// Every operation, reads included, requires the transmitter link to be
// up. A fan that cannot be driven should present as unreachable rather
// than silently accepting requests, and a rejected request mutates
// nothing.
type Accessory struct {
	// ID identifies the fan in commands and topics.
	ID string

	// Name is the human-readable fan name.
	Name string

	rec   *Reconciler
	ready Readiness
}

// NewAccessory creates the control surface over a reconciler.
func NewAccessory(id, name string, rec *Reconciler, ready Readiness) *Accessory {
	return &Accessory{
		ID:    id,
		Name:  name,
		rec:   rec,
		ready: ready,
	}
}

// SetOn requests a power state change.
//
// Returns:
//   - error: ErrNotConnected if the transmitter link is down
func (a *Accessory) SetOn(on bool) error {
	if !a.ready.IsReady() {
		return ErrNotConnected
	}
	return a.rec.SetOn(on)
}

// GetOn reads the power state.
//
// Returns:
//   - bool: Latest requested power state
//   - error: ErrNotConnected if the transmitter link is down
func (a *Accessory) GetOn() (bool, error) {
	if !a.ready.IsReady() {
		return false, ErrNotConnected
	}
	return a.rec.State().On, nil
}

// SetSpeed requests a speed change.
//
// Returns:
//   - error: ErrInvalidSpeed for values outside [0, 100], or
//     ErrNotConnected if the transmitter link is down
func (a *Accessory) SetSpeed(speed float64) error {
	if speed < 0 || speed > 100 {
		return ErrInvalidSpeed
	}
	if !a.ready.IsReady() {
		return ErrNotConnected
	}
	return a.rec.SetSpeed(speed)
}

// GetSpeed reads the speed percentage.
//
// Returns:
//   - float64: Latest requested speed
//   - error: ErrNotConnected if the transmitter link is down
func (a *Accessory) GetSpeed() (float64, error) {
	if !a.ready.IsReady() {
		return 0, ErrNotConnected
	}
	return a.rec.State().Speed, nil
}

// Band returns the speed band for the latest requested state.
func (a *Accessory) Band() Band {
	return a.rec.Band()
}

// State returns the latest requested state without a connectivity check.
// Internal consumers (API, state publishers) use this; the accessory
// surface itself stays strict.
func (a *Accessory) State() State {
	return a.rec.State()
}
