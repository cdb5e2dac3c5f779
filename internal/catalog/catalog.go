package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Signal is a raw IR capture ready for transmission.
type Signal struct {
	// Name is the catalog key, e.g. "speed_low".
	Name string `json:"name"`

	// Frequency is the carrier frequency in hertz, typically 38000.
	Frequency int `json:"frequency"`

	// DutyCycle is the carrier duty cycle as a percentage in [0, 100].
	DutyCycle float64 `json:"duty_cycle"`

	// Samples are alternating mark/space durations in microseconds.
	Samples []int `json:"samples"`
}

// Validate checks a single signal definition.
//
// Returns:
//   - error: wrapping ErrInvalidSignal with the specific violation
func (s Signal) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidSignal)
	}
	if s.Frequency <= 0 {
		return fmt.Errorf("%w: signal %q: frequency must be positive, got %d", ErrInvalidSignal, s.Name, s.Frequency)
	}
	if s.DutyCycle < 0 || s.DutyCycle > 100 {
		return fmt.Errorf("%w: signal %q: duty cycle must be in [0, 100] percent, got %g", ErrInvalidSignal, s.Name, s.DutyCycle)
	}
	if len(s.Samples) == 0 {
		return fmt.Errorf("%w: signal %q: no samples", ErrInvalidSignal, s.Name)
	}
	for i, sample := range s.Samples {
		if sample < 0 {
			return fmt.Errorf("%w: signal %q: sample %d must be non-negative, got %d", ErrInvalidSignal, s.Name, i, sample)
		}
	}
	return nil
}

// Catalog is an immutable, validated set of named IR signals.
type Catalog struct {
	signals map[string]Signal
}

// catalogFile is the on-disk JSON layout.
type catalogFile struct {
	Signals map[string]signalEntry `json:"signals"`
}

// signalEntry is a signal as stored in the file; the name is the map key.
type signalEntry struct {
	Frequency int     `json:"frequency"`
	DutyCycle float64 `json:"duty_cycle"`
	Samples   []int   `json:"samples"`
}

// Load reads and validates the signal catalog from a JSON file.
//
// Parameters:
//   - path: Filesystem path to the catalog JSON
//   - required: Signal names that must be present (the fan's command set)
//
// Returns:
//   - *Catalog: Validated catalog
//   - error: If the file is unreadable, malformed, fails validation,
//     or lacks a required signal
func Load(path string, required ...string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}

	var file catalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing catalog %s: %w", path, err)
	}
	if len(file.Signals) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyCatalog, path)
	}

	signals := make(map[string]Signal, len(file.Signals))
	for name, entry := range file.Signals {
		sig := Signal{
			Name:      name,
			Frequency: entry.Frequency,
			DutyCycle: entry.DutyCycle,
			Samples:   entry.Samples,
		}
		if err := sig.Validate(); err != nil {
			return nil, err
		}
		signals[name] = sig
	}

	for _, name := range required {
		if _, ok := signals[name]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingRequired, name)
		}
	}

	return &Catalog{signals: signals}, nil
}

// Get returns the signal with the given name.
//
// Returns:
//   - Signal: The signal definition
//   - error: ErrSignalNotFound if the name is unknown
func (c *Catalog) Get(name string) (Signal, error) {
	sig, ok := c.signals[name]
	if !ok {
		return Signal{}, fmt.Errorf("%w: %q", ErrSignalNotFound, name)
	}
	return sig, nil
}

// Names returns all signal names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.signals))
	for name := range c.signals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of signals in the catalog.
func (c *Catalog) Len() int {
	return len(c.signals)
}
