package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// timeFormat is how timestamps are stored in SQLite TEXT columns.
const timeFormat = time.RFC3339

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a device by its unique identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// List retrieves all devices ordered by ID.
	List(ctx context.Context) ([]Device, error)

	// ListRegisteredIDs retrieves the IDs of approved devices.
	// This is the minimal projection the presence poller needs per cycle.
	ListRegisteredIDs(ctx context.Context) ([]string, error)

	// Create inserts a new device.
	// Returns ErrDeviceExists if a device with the same ID already exists.
	Create(ctx context.Context, device *Device) error

	// UpdateMetadata refreshes the registration-reported metadata fields.
	// Empty fields in info leave the stored values untouched.
	UpdateMetadata(ctx context.Context, id string, info RegistrationInfo) error

	// TouchLastSeen updates only the last-seen timestamp.
	TouchLastSeen(ctx context.Context, id string, at time.Time) error

	// SetRegistration flips the approval gate and registration status together.
	SetRegistration(ctx context.Context, id string, registered bool) error

	// UpdateStatus sets the reachability status of one device.
	UpdateStatus(ctx context.Context, id string, status Status) error

	// UpdateStatusBatch sets the reachability status of many devices in one
	// write. Used by the presence poller for online→offline transitions.
	UpdateStatusBatch(ctx context.Context, ids []string, status Status) error

	// Delete removes a device. Associated alerts cascade at the schema level.
	// Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `id, status, registration_status, is_registered, last_seen,
	firmware_version, mac_address, ip_address, sensors, created_at, updated_at`

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return device, nil
}

// List retrieves all devices ordered by ID.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *device)
	}
	return devices, rows.Err()
}

// ListRegisteredIDs retrieves the IDs of approved devices.
func (r *SQLiteRepository) ListRegisteredIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM devices WHERE is_registered = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying registered device ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning device id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	sensors, err := json.Marshal(device.Sensors)
	if err != nil {
		return fmt.Errorf("encoding sensors: %w", err)
	}
	if device.Sensors == nil {
		sensors = []byte("[]")
	}

	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO devices (id, status, registration_status, is_registered, last_seen,
			firmware_version, mac_address, ip_address, sensors, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		device.ID,
		string(device.Status),
		string(device.RegistrationStatus),
		boolToInt(device.IsRegistered),
		nullableTime(device.LastSeen),
		device.FirmwareVersion,
		device.MACAddress,
		device.IPAddress,
		string(sensors),
		device.CreatedAt.Format(timeFormat),
		device.UpdatedAt.Format(timeFormat),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && errors.Is(sqliteErr.ExtendedCode, sqlite3.ErrConstraintPrimaryKey) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// UpdateMetadata refreshes the registration-reported metadata fields.
func (r *SQLiteRepository) UpdateMetadata(ctx context.Context, id string, info RegistrationInfo) error {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC().Format(timeFormat)}

	if info.FirmwareVersion != "" {
		sets = append(sets, "firmware_version = ?")
		args = append(args, info.FirmwareVersion)
	}
	if info.MACAddress != "" {
		sets = append(sets, "mac_address = ?")
		args = append(args, info.MACAddress)
	}
	if info.IPAddress != "" {
		sets = append(sets, "ip_address = ?")
		args = append(args, info.IPAddress)
	}
	if len(info.Sensors) > 0 {
		sensors, err := json.Marshal(info.Sensors)
		if err != nil {
			return fmt.Errorf("encoding sensors: %w", err)
		}
		sets = append(sets, "sensors = ?")
		args = append(args, string(sensors))
	}

	args = append(args, id)
	result, err := r.db.ExecContext(ctx,
		`UPDATE devices SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("updating device metadata: %w", err)
	}
	return requireRowAffected(result)
}

// TouchLastSeen updates only the last-seen timestamp.
func (r *SQLiteRepository) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE devices SET last_seen = ?, updated_at = ? WHERE id = ?`,
		at.UTC().Format(timeFormat),
		time.Now().UTC().Format(timeFormat),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating last seen: %w", err)
	}
	return requireRowAffected(result)
}

// SetRegistration flips the approval gate and registration status together.
func (r *SQLiteRepository) SetRegistration(ctx context.Context, id string, registered bool) error {
	status := RegistrationPending
	if registered {
		status = RegistrationRegistered
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE devices SET is_registered = ?, registration_status = ?, updated_at = ? WHERE id = ?`,
		boolToInt(registered),
		string(status),
		time.Now().UTC().Format(timeFormat),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating registration: %w", err)
	}
	return requireRowAffected(result)
}

// UpdateStatus sets the reachability status of one device.
func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id string, status Status) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE devices SET status = ?, updated_at = ? WHERE id = ?`,
		string(status),
		time.Now().UTC().Format(timeFormat),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating device status: %w", err)
	}
	return requireRowAffected(result)
}

// UpdateStatusBatch sets the reachability status of many devices in one
// write. Rows already in the target status are left untouched, so calling
// this with the full non-responder set only writes actual transitions.
func (r *SQLiteRepository) UpdateStatusBatch(ctx context.Context, ids []string, status Status) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(ids)+3)
	args = append(args, string(status), time.Now().UTC().Format(timeFormat), string(status))
	for _, id := range ids {
		args = append(args, id)
	}

	_, err := r.db.ExecContext(ctx,
		`UPDATE devices SET status = ?, updated_at = ? WHERE status <> ? AND id IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return fmt.Errorf("batch updating device status: %w", err)
	}
	return nil
}

// Delete removes a device. Associated alerts cascade at the schema level.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return requireRowAffected(result)
}

// scannable abstracts *sql.Row and *sql.Rows for scanDevice.
type scannable interface {
	Scan(dest ...any) error
}

// scanDevice reads one device row.
func scanDevice(row scannable) (*Device, error) {
	var (
		d               Device
		status          string
		regStatus       string
		isRegistered    int
		lastSeen        sql.NullString
		firmwareVersion sql.NullString
		macAddress      sql.NullString
		ipAddress       sql.NullString
		sensorsJSON     string
		createdAt       string
		updatedAt       string
	)

	err := row.Scan(&d.ID, &status, &regStatus, &isRegistered, &lastSeen,
		&firmwareVersion, &macAddress, &ipAddress, &sensorsJSON, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	d.Status = Status(status)
	d.RegistrationStatus = RegistrationStatus(regStatus)
	d.IsRegistered = isRegistered != 0

	if lastSeen.Valid {
		t, err := time.Parse(timeFormat, lastSeen.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_seen: %w", err)
		}
		d.LastSeen = &t
	}
	if firmwareVersion.Valid {
		d.FirmwareVersion = &firmwareVersion.String
	}
	if macAddress.Valid {
		d.MACAddress = &macAddress.String
	}
	if ipAddress.Valid {
		d.IPAddress = &ipAddress.String
	}

	if err := json.Unmarshal([]byte(sensorsJSON), &d.Sensors); err != nil {
		return nil, fmt.Errorf("decoding sensors: %w", err)
	}

	if d.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if d.UpdatedAt, err = time.Parse(timeFormat, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &d, nil
}

// requireRowAffected converts a zero-row update into ErrDeviceNotFound.
func requireRowAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// nullableTime formats an optional timestamp for storage.
func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeFormat)
}

// boolToInt converts a bool to SQLite's integer representation.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
