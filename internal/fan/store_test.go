package fan

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/fanlink/internal/infrastructure/database"
	_ "github.com/nerrad567/fanlink/migrations"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{
		Path:        filepath.Join(t.TempDir(), "fanlink.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	return NewSQLiteStore(db)
}

func TestSQLiteStoreStateRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, found, err := store.LoadState(ctx, "living-room")
	if err != nil {
		t.Fatalf("LoadState() error = %v", err)
	}
	if found {
		t.Fatal("LoadState() found a row in an empty database")
	}

	st := State{On: true, Speed: 66, UpdatedAt: time.Now()}
	if err := store.SaveState(ctx, "living-room", st); err != nil {
		t.Fatalf("SaveState() error = %v", err)
	}

	// Upsert path.
	st.Speed = 20
	st.On = false
	if err := store.SaveState(ctx, "living-room", st); err != nil {
		t.Fatalf("SaveState() upsert error = %v", err)
	}

	got, found, err := store.LoadState(ctx, "living-room")
	if err != nil || !found {
		t.Fatalf("LoadState() = %v, %v", found, err)
	}
	if got.On || got.Speed != 20 {
		t.Errorf("loaded state = %+v, want off at speed 20", got)
	}
}

func TestSQLiteStoreTransmissionLog(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	recs := []TransmissionRecord{
		{FanID: "living-room", Signal: "speed_low", Chunks: 3, Attempts: 1, Success: true, Duration: 450 * time.Millisecond},
		{FanID: "living-room", Signal: "power_off", Chunks: 2, Attempts: 3, Success: false, Error: "transmit: transmission failed", Duration: time.Second},
		{FanID: "bedroom", Signal: "speed_high", Chunks: 3, Attempts: 1, Success: true, Duration: 400 * time.Millisecond},
	}
	for i, rec := range recs {
		rec.CreatedAt = time.Now().Add(time.Duration(i) * time.Second)
		if err := store.LogTransmission(ctx, rec); err != nil {
			t.Fatalf("LogTransmission() error = %v", err)
		}
	}

	got, err := store.RecentTransmissions(ctx, "living-room", 10)
	if err != nil {
		t.Fatalf("RecentTransmissions() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("rows = %d, want 2 (scoped to fan)", len(got))
	}
	// Newest first.
	if got[0].Signal != "power_off" {
		t.Errorf("newest row signal = %q, want power_off", got[0].Signal)
	}
	if got[0].Success {
		t.Error("failed transmission loaded as success")
	}
	if got[0].Error == "" {
		t.Error("error text not round-tripped")
	}
	if got[0].ID == "" {
		t.Error("ID was not generated")
	}
	if got[1].Duration != 450*time.Millisecond {
		t.Errorf("duration = %v, want 450ms", got[1].Duration)
	}
}
