package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeCatalog(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "signals.json")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing catalog fixture: %v", err)
	}
	return path
}

const validCatalog = `{
	"signals": {
		"power_off": {"frequency": 38000, "duty_cycle": 33, "samples": [9000, 4500, 560, 560]},
		"speed_low": {"frequency": 38000, "duty_cycle": 33, "samples": [9000, 4500, 560, 1690]},
		"speed_med": {"frequency": 38000, "duty_cycle": 33, "samples": [9000, 4500, 1690, 560]},
		"speed_high": {"frequency": 38000, "duty_cycle": 33, "samples": [9000, 4500, 1690, 1690]}
	}
}`

func TestLoadValid(t *testing.T) {
	path := writeCatalog(t, validCatalog)

	cat, err := Load(path, "power_off", "speed_low", "speed_med", "speed_high")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cat.Len() != 4 {
		t.Errorf("Len() = %d, want 4", cat.Len())
	}

	sig, err := cat.Get("speed_low")
	if err != nil {
		t.Fatalf("Get(speed_low) error = %v", err)
	}
	if sig.Name != "speed_low" {
		t.Errorf("Name = %q, want speed_low", sig.Name)
	}
	if sig.Frequency != 38000 {
		t.Errorf("Frequency = %d, want 38000", sig.Frequency)
	}
	if len(sig.Samples) != 4 {
		t.Errorf("len(Samples) = %d, want 4", len(sig.Samples))
	}
}

func TestLoadMissingRequired(t *testing.T) {
	path := writeCatalog(t, validCatalog)

	_, err := Load(path, "power_off", "speed_turbo")
	if !errors.Is(err, ErrMissingRequired) {
		t.Errorf("Load() error = %v, want ErrMissingRequired", err)
	}
}

func TestLoadAllowsZeroSample(t *testing.T) {
	path := writeCatalog(t, `{"signals": {"a": {"frequency": 38000, "duty_cycle": 33, "samples": [100, 0, 560]}}}`)

	cat, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v, want zero-valued samples accepted", err)
	}
	if cat.Len() != 1 {
		t.Errorf("Len() = %d, want 1", cat.Len())
	}
}

func TestLoadInvalidSignals(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			"zero frequency",
			`{"signals": {"a": {"frequency": 0, "duty_cycle": 33, "samples": [100]}}}`,
		},
		{
			"duty cycle over hundred",
			`{"signals": {"a": {"frequency": 38000, "duty_cycle": 101, "samples": [100]}}}`,
		},
		{
			"negative duty cycle",
			`{"signals": {"a": {"frequency": 38000, "duty_cycle": -1, "samples": [100]}}}`,
		},
		{
			"empty samples",
			`{"signals": {"a": {"frequency": 38000, "duty_cycle": 33, "samples": []}}}`,
		},
		{
			"negative sample",
			`{"signals": {"a": {"frequency": 38000, "duty_cycle": 33, "samples": [100, -50]}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeCatalog(t, tt.content)
			_, err := Load(path)
			if !errors.Is(err, ErrInvalidSignal) {
				t.Errorf("Load() error = %v, want ErrInvalidSignal", err)
			}
		})
	}
}

func TestLoadEmptyCatalog(t *testing.T) {
	path := writeCatalog(t, `{"signals": {}}`)

	_, err := Load(path)
	if !errors.Is(err, ErrEmptyCatalog) {
		t.Errorf("Load() error = %v, want ErrEmptyCatalog", err)
	}
}

func TestLoadMalformedJSON(t *testing.T) {
	path := writeCatalog(t, `{not json`)

	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for malformed JSON")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestGetUnknownSignal(t *testing.T) {
	path := writeCatalog(t, validCatalog)

	cat, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if _, err := cat.Get("nonexistent"); !errors.Is(err, ErrSignalNotFound) {
		t.Errorf("Get() error = %v, want ErrSignalNotFound", err)
	}
}

func TestNamesSorted(t *testing.T) {
	path := writeCatalog(t, validCatalog)

	cat, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	names := cat.Names()
	want := []string{"power_off", "speed_high", "speed_low", "speed_med"}
	if len(names) != len(want) {
		t.Fatalf("Names() len = %d, want %d", len(names), len(want))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}
