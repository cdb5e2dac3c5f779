package fan

import "time"

// State is a point-in-time fan state.
type State struct {
	// On is the power state.
	On bool `json:"on"`

	// Speed is the requested speed as a percentage in [0, 100].
	// Retained while the fan is off so turning it back on restores
	// the last speed band.
	Speed float64 `json:"speed"`

	// UpdatedAt is when this state was last modified.
	UpdatedAt time.Time `json:"updated_at"`
}

// Band is one of the three discrete speeds the fan's IR protocol knows.
type Band string

// Speed bands.
const (
	BandLow  Band = "low"
	BandMed  Band = "med"
	BandHigh Band = "high"
)

// Thresholds divide the percentage range into bands.
type Thresholds struct {
	// Medium is the lowest percentage that maps to the medium band.
	Medium float64

	// High is the lowest percentage that maps to the high band.
	High float64
}

// Band maps a speed percentage to its band. The thresholds themselves
// belong to the upper band: with defaults 33/66, a speed of 33 is
// medium and 66 is high.
func (t Thresholds) Band(speed float64) Band {
	switch {
	case speed < t.Medium:
		return BandLow
	case speed < t.High:
		return BandMed
	default:
		return BandHigh
	}
}

// SignalNames maps fan actions to catalog signal names.
type SignalNames struct {
	Off  string
	Low  string
	Med  string
	High string
}

// ForBand returns the signal name for a speed band.
func (s SignalNames) ForBand(b Band) string {
	switch b {
	case BandLow:
		return s.Low
	case BandMed:
		return s.Med
	default:
		return s.High
	}
}

// All returns every signal name, for catalog validation at startup.
func (s SignalNames) All() []string {
	return []string{s.Off, s.Low, s.Med, s.High}
}
