package alerting

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const timeFormat = time.RFC3339

// Repository defines the interface for alert persistence operations.
type Repository interface {
	// GetByID retrieves an alert by ID.
	// Returns ErrAlertNotFound if it does not exist.
	GetByID(ctx context.Context, id string) (*Alert, error)

	// FindUnresolved retrieves the most recent unresolved alert for a
	// (deviceID, parameter) pair. Returns ErrAlertNotFound if none exists.
	FindUnresolved(ctx context.Context, deviceID, parameter string) (*Alert, error)

	// Create inserts a new alert, assigning an ID if unset.
	Create(ctx context.Context, alert *Alert) error

	// RecordOccurrence absorbs a repeat breach into an existing alert:
	// occurrence_count increments, last_occurrence and current_value are
	// refreshed. Nothing else changes.
	RecordOccurrence(ctx context.Context, id string, value float64, at time.Time) error

	// Acknowledge marks an alert acknowledged. It stays unresolved.
	Acknowledge(ctx context.Context, id string) error

	// Resolve closes an alert. The next breach of its (device, parameter)
	// pair creates a fresh record.
	Resolve(ctx context.Context, id string) error

	// ListActive retrieves all unresolved alerts, most recent first.
	ListActive(ctx context.Context) ([]Alert, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed alert repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const alertColumns = `id, device_id, parameter, severity, value, threshold, message,
	status, occurrence_count, first_occurrence, last_occurrence, current_value,
	created_at, updated_at`

// GetByID retrieves an alert by ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Alert, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)

	alert, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAlertNotFound
		}
		return nil, fmt.Errorf("querying alert by id: %w", err)
	}
	return alert, nil
}

// FindUnresolved retrieves the most recent unresolved alert for a pair.
func (r *SQLiteRepository) FindUnresolved(ctx context.Context, deviceID, parameter string) (*Alert, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+alertColumns+` FROM alerts
		WHERE device_id = ? AND parameter = ? AND status <> ?
		ORDER BY last_occurrence DESC
		LIMIT 1`,
		deviceID, parameter, string(StatusResolved))

	alert, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAlertNotFound
		}
		return nil, fmt.Errorf("querying unresolved alert: %w", err)
	}
	return alert, nil
}

// Create inserts a new alert, assigning an ID if unset.
func (r *SQLiteRepository) Create(ctx context.Context, alert *Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}

	now := time.Now().UTC()
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = now
	}
	alert.UpdatedAt = now
	if alert.Status == "" {
		alert.Status = StatusActive
	}
	if alert.OccurrenceCount == 0 {
		alert.OccurrenceCount = 1
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO alerts (id, device_id, parameter, severity, value, threshold, message,
			status, occurrence_count, first_occurrence, last_occurrence, current_value,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID,
		alert.DeviceID,
		alert.Parameter,
		string(alert.Severity),
		alert.Value,
		alert.Threshold,
		alert.Message,
		string(alert.Status),
		alert.OccurrenceCount,
		alert.FirstOccurrence.UTC().Format(timeFormat),
		alert.LastOccurrence.UTC().Format(timeFormat),
		alert.CurrentValue,
		alert.CreatedAt.Format(timeFormat),
		alert.UpdatedAt.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting alert: %w", err)
	}
	return nil
}

// RecordOccurrence absorbs a repeat breach into an existing alert.
func (r *SQLiteRepository) RecordOccurrence(ctx context.Context, id string, value float64, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE alerts
		SET occurrence_count = occurrence_count + 1,
			last_occurrence = ?,
			current_value = ?,
			updated_at = ?
		WHERE id = ?`,
		at.UTC().Format(timeFormat),
		value,
		time.Now().UTC().Format(timeFormat),
		id,
	)
	if err != nil {
		return fmt.Errorf("recording occurrence: %w", err)
	}
	return requireRowAffected(result)
}

// Acknowledge marks an alert acknowledged.
func (r *SQLiteRepository) Acknowledge(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, StatusAcknowledged)
}

// Resolve closes an alert.
func (r *SQLiteRepository) Resolve(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, StatusResolved)
}

func (r *SQLiteRepository) setStatus(ctx context.Context, id string, status AlertStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET status = ?, updated_at = ? WHERE id = ?`,
		string(status),
		time.Now().UTC().Format(timeFormat),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating alert status: %w", err)
	}
	return requireRowAffected(result)
}

// ListActive retrieves all unresolved alerts, most recent first.
func (r *SQLiteRepository) ListActive(ctx context.Context) ([]Alert, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+alertColumns+` FROM alerts
		WHERE status <> ?
		ORDER BY last_occurrence DESC`,
		string(StatusResolved))
	if err != nil {
		return nil, fmt.Errorf("querying active alerts: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning alert: %w", err)
		}
		alerts = append(alerts, *alert)
	}
	return alerts, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanAlert(row scannable) (*Alert, error) {
	var (
		a               Alert
		severity        string
		status          string
		firstOccurrence string
		lastOccurrence  string
		createdAt       string
		updatedAt       string
	)

	err := row.Scan(&a.ID, &a.DeviceID, &a.Parameter, &severity, &a.Value,
		&a.Threshold, &a.Message, &status, &a.OccurrenceCount,
		&firstOccurrence, &lastOccurrence, &a.CurrentValue, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	a.Severity = Severity(severity)
	a.Status = AlertStatus(status)

	if a.FirstOccurrence, err = time.Parse(timeFormat, firstOccurrence); err != nil {
		return nil, fmt.Errorf("parsing first_occurrence: %w", err)
	}
	if a.LastOccurrence, err = time.Parse(timeFormat, lastOccurrence); err != nil {
		return nil, fmt.Errorf("parsing last_occurrence: %w", err)
	}
	if a.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if a.UpdatedAt, err = time.Parse(timeFormat, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &a, nil
}

func requireRowAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return ErrAlertNotFound
	}
	return nil
}
