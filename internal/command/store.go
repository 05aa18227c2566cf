package command

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const timeFormat = time.RFC3339

// PendingCommand is one command queued for a device that was offline at
// send time.
type PendingCommand struct {
	ID         int64          `json:"id"`
	DeviceID   string         `json:"device_id"`
	Command    string         `json:"command"`
	Payload    map[string]any `json:"payload,omitempty"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}

// Store defines the interface for the pending-command queue.
type Store interface {
	// Enqueue appends a command to a device's queue.
	Enqueue(ctx context.Context, deviceID, cmd string, payload map[string]any) error

	// Pending retrieves a device's queued commands in enqueue order,
	// excluding entries past the retention window.
	Pending(ctx context.Context, deviceID string) ([]PendingCommand, error)

	// Remove deletes one queued command by row id. Used to retire each
	// command individually as it is delivered, so entries enqueued
	// concurrently are never swept away with the drained batch.
	Remove(ctx context.Context, id int64) error

	// Clear removes all of a device's queued commands without
	// delivering them.
	Clear(ctx context.Context, deviceID string) error

	// PurgeExpired deletes entries past the retention window for all
	// devices and reports how many were removed.
	PurgeExpired(ctx context.Context) (int64, error)
}

// SQLiteStore implements Store using the pending_commands table.
type SQLiteStore struct {
	db        *sql.DB
	retention time.Duration
}

// NewSQLiteStore creates a SQLite-backed pending-command store.
// Commands older than retention are treated as expired.
func NewSQLiteStore(db *sql.DB, retention time.Duration) *SQLiteStore {
	return &SQLiteStore{db: db, retention: retention}
}

// Enqueue appends a command to a device's queue.
func (s *SQLiteStore) Enqueue(ctx context.Context, deviceID, cmd string, payload map[string]any) error {
	encoded := []byte("{}")
	if len(payload) > 0 {
		var err error
		if encoded, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("encoding command payload: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_commands (device_id, command, payload, enqueued_at)
		VALUES (?, ?, ?, ?)`,
		deviceID, cmd, string(encoded), time.Now().UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("enqueuing command: %w", err)
	}
	return nil
}

// Pending retrieves a device's queued commands in enqueue order.
func (s *SQLiteStore) Pending(ctx context.Context, deviceID string) ([]PendingCommand, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, device_id, command, payload, enqueued_at
		FROM pending_commands
		WHERE device_id = ? AND enqueued_at >= ?
		ORDER BY id`,
		deviceID, s.cutoff())
	if err != nil {
		return nil, fmt.Errorf("querying pending commands: %w", err)
	}
	defer rows.Close()

	var pending []PendingCommand
	for rows.Next() {
		var (
			pc          PendingCommand
			payloadJSON string
			enqueuedAt  string
		)
		if err := rows.Scan(&pc.ID, &pc.DeviceID, &pc.Command, &payloadJSON, &enqueuedAt); err != nil {
			return nil, fmt.Errorf("scanning pending command: %w", err)
		}
		if err := json.Unmarshal([]byte(payloadJSON), &pc.Payload); err != nil {
			return nil, fmt.Errorf("decoding command payload: %w", err)
		}
		if pc.EnqueuedAt, err = time.Parse(timeFormat, enqueuedAt); err != nil {
			return nil, fmt.Errorf("parsing enqueued_at: %w", err)
		}
		pending = append(pending, pc)
	}
	return pending, rows.Err()
}

// Remove deletes one queued command by row id.
func (s *SQLiteStore) Remove(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_commands WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("removing pending command: %w", err)
	}
	return nil
}

// Clear removes all of a device's queued commands.
func (s *SQLiteStore) Clear(ctx context.Context, deviceID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_commands WHERE device_id = ?`, deviceID)
	if err != nil {
		return fmt.Errorf("clearing pending commands: %w", err)
	}
	return nil
}

// PurgeExpired deletes entries past the retention window.
func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_commands WHERE enqueued_at < ?`, s.cutoff())
	if err != nil {
		return 0, fmt.Errorf("purging expired commands: %w", err)
	}
	return result.RowsAffected()
}

func (s *SQLiteStore) cutoff() string {
	return time.Now().Add(-s.retention).UTC().Format(timeFormat)
}
