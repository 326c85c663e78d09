package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-twin/internal/twin"
)

const (
	// DefaultLimit is used when GetHistory is called with a non-positive limit.
	DefaultLimit = 50

	// MaxLimit caps the number of rows a single query returns.
	MaxLimit = 500
)

// Entry is one recorded attribute update.
type Entry struct {
	ID         int64      `json:"id"`
	DeviceID   uuid.UUID  `json:"device_id"`
	Scope      twin.Scope `json:"scope"`
	Key        string     `json:"key"`
	Value      twin.Value `json:"value"`
	Timestamp  int64      `json:"ts"`
	RecordedAt time.Time  `json:"recorded_at"`
}

// SQLiteRepository stores attribute history in the attribute_history table.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository returns a repository backed by db. The schema must
// already be migrated.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// RecordUpdate appends u for the given device and scope.
func (r *SQLiteRepository) RecordUpdate(ctx context.Context, deviceID uuid.UUID, scope twin.Scope, u twin.AttributeUpdate) error {
	if err := validate(deviceID, scope, u.Key); err != nil {
		return err
	}

	valueJSON, err := json.Marshal(u.Value)
	if err != nil {
		return fmt.Errorf("marshalling value for %q: %w", u.Key, err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO attribute_history (device_id, scope, attr_key, value_kind, value_json, ts, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		deviceID.String(),
		string(scope),
		u.Key,
		u.Value.Kind().String(),
		string(valueJSON),
		u.Timestamp,
		r.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting attribute history: %w", err)
	}
	return nil
}

// GetHistory returns up to limit entries for one attribute, newest device
// timestamp first. Entries sharing a timestamp come back in reverse insertion
// order.
func (r *SQLiteRepository) GetHistory(ctx context.Context, deviceID uuid.UUID, scope twin.Scope, key string, limit int) ([]Entry, error) {
	if err := validate(deviceID, scope, key); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, value_json, ts, recorded_at
		 FROM attribute_history
		 WHERE device_id = ? AND scope = ? AND attr_key = ?
		 ORDER BY ts DESC, id DESC
		 LIMIT ?`,
		deviceID.String(),
		string(scope),
		key,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying attribute history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		entry := Entry{DeviceID: deviceID, Scope: scope, Key: key}
		var valueJSON, recordedAt string

		if err := rows.Scan(&entry.ID, &valueJSON, &entry.Timestamp, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning attribute history: %w", err)
		}
		if err := json.Unmarshal([]byte(valueJSON), &entry.Value); err != nil {
			return nil, fmt.Errorf("unmarshalling value of row %d: %w", entry.ID, err)
		}
		if entry.RecordedAt, err = time.Parse(time.RFC3339, recordedAt); err != nil {
			return nil, fmt.Errorf("parsing recorded_at of row %d: %w", entry.ID, err)
		}

		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating attribute history: %w", err)
	}

	return entries, nil
}

// Prune deletes entries written more than olderThan ago and reports how many
// rows were removed.
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := r.now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx, "DELETE FROM attribute_history WHERE recorded_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting attribute history: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

func validate(deviceID uuid.UUID, scope twin.Scope, key string) error {
	switch {
	case deviceID == uuid.Nil:
		return ErrInvalidDevice
	case !scope.Valid():
		return fmt.Errorf("%w: %q", ErrInvalidScope, scope)
	case key == "":
		return ErrInvalidKey
	}
	return nil
}
