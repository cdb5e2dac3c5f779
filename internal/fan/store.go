package fan

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/fanlink/internal/infrastructure/database"
)

// TransmissionRecord is one row of the transmission log.
type TransmissionRecord struct {
	ID        string        `json:"id"`
	FanID     string        `json:"fan_id"`
	Signal    string        `json:"signal"`
	Chunks    int           `json:"chunks"`
	Attempts  int           `json:"attempts"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}

// Store persists fan state across restarts and records transmission
// outcomes. Implementations must be safe for concurrent use.
type Store interface {
	SaveState(ctx context.Context, fanID string, st State) error
	LoadState(ctx context.Context, fanID string) (State, bool, error)
	LogTransmission(ctx context.Context, rec TransmissionRecord) error
}

// SQLiteStore implements Store on the fanlink database.
type SQLiteStore struct {
	db *database.DB
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a store over an open, migrated database.
func NewSQLiteStore(db *database.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// SaveState upserts the fan's state row.
func (s *SQLiteStore) SaveState(ctx context.Context, fanID string, st State) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fan_state (fan_id, is_on, speed, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(fan_id) DO UPDATE SET
			is_on = excluded.is_on,
			speed = excluded.speed,
			updated_at = excluded.updated_at
	`, fanID, boolToInt(st.On), st.Speed, st.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving fan state: %w", err)
	}
	return nil
}

// LoadState reads the fan's state row.
//
// Returns:
//   - State: Persisted state, zero if not found
//   - bool: True if a row existed
//   - error: On query failure
func (s *SQLiteStore) LoadState(ctx context.Context, fanID string) (State, bool, error) {
	var (
		isOn      int
		speed     float64
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT is_on, speed, updated_at FROM fan_state WHERE fan_id = ?",
		fanID,
	).Scan(&isOn, &speed, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("loading fan state: %w", err)
	}

	st := State{
		On:    isOn != 0,
		Speed: speed,
	}
	st.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // Format is controlled
	return st, true, nil
}

// LogTransmission appends a transmission outcome row.
// An empty ID is filled with a fresh UUID.
func (s *SQLiteStore) LogTransmission(ctx context.Context, rec TransmissionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var errText any
	if rec.Error != "" {
		errText = rec.Error
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transmission_log
			(id, fan_id, signal_name, chunks, attempts, success, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID, rec.FanID, rec.Signal, rec.Chunks, rec.Attempts,
		boolToInt(rec.Success), errText,
		rec.Duration.Milliseconds(),
		rec.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("logging transmission: %w", err)
	}
	return nil
}

// RecentTransmissions returns the newest transmission log rows, newest first.
func (s *SQLiteStore) RecentTransmissions(ctx context.Context, fanID string, limit int) ([]TransmissionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, fan_id, signal_name, chunks, attempts, success, error, duration_ms, created_at
		FROM transmission_log
		WHERE fan_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, fanID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying transmission log: %w", err)
	}
	defer rows.Close()

	var records []TransmissionRecord
	for rows.Next() {
		var (
			rec        TransmissionRecord
			success    int
			errText    sql.NullString
			durationMs int64
			createdAt  string
		)
		if err := rows.Scan(&rec.ID, &rec.FanID, &rec.Signal, &rec.Chunks, &rec.Attempts,
			&success, &errText, &durationMs, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning transmission row: %w", err)
		}
		rec.Success = success != 0
		rec.Error = errText.String
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // Format is controlled
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transmission log: %w", err)
	}
	return records, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
