package device

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// testDB opens an in-memory SQLite database with the devices schema.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("opening in-memory database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// In-memory databases exist per connection.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE devices (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL DEFAULT 'offline',
			registration_status TEXT NOT NULL DEFAULT 'pending',
			is_registered INTEGER NOT NULL DEFAULT 0,
			last_seen TEXT,
			firmware_version TEXT,
			mac_address TEXT,
			ip_address TEXT,
			sensors TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		) STRICT`)
	if err != nil {
		t.Fatalf("creating devices table: %v", err)
	}
	return db
}

func seedDevice(t *testing.T, repo *SQLiteRepository, id string, registered bool) {
	t.Helper()

	dev := &Device{
		ID:                 id,
		Status:             StatusOffline,
		RegistrationStatus: RegistrationPending,
	}
	if err := repo.Create(context.Background(), dev); err != nil {
		t.Fatalf("seeding device %s: %v", id, err)
	}
	if registered {
		if err := repo.SetRegistration(context.Background(), id, true); err != nil {
			t.Fatalf("registering device %s: %v", id, err)
		}
	}
}

func TestSQLiteRepository_CreateAndGet(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()

	firmware := "2.1.0"
	mac := "AA:BB:CC:DD:EE:FF"
	lastSeen := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	dev := &Device{
		ID:                 "pond-01",
		Status:             StatusOnline,
		RegistrationStatus: RegistrationPending,
		LastSeen:           &lastSeen,
		FirmwareVersion:    &firmware,
		MACAddress:         &mac,
		Sensors:            []string{"ph", "turbidity"},
	}
	if err := repo.Create(ctx, dev); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByID(ctx, "pond-01")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != StatusOnline {
		t.Errorf("Status = %q, want %q", got.Status, StatusOnline)
	}
	if got.IsRegistered {
		t.Error("IsRegistered = true, want false")
	}
	if got.FirmwareVersion == nil || *got.FirmwareVersion != firmware {
		t.Errorf("FirmwareVersion = %v, want %q", got.FirmwareVersion, firmware)
	}
	if got.LastSeen == nil || !got.LastSeen.Equal(lastSeen) {
		t.Errorf("LastSeen = %v, want %v", got.LastSeen, lastSeen)
	}
	if len(got.Sensors) != 2 || got.Sensors[0] != "ph" {
		t.Errorf("Sensors = %v, want [ph turbidity]", got.Sensors)
	}
}

func TestSQLiteRepository_CreateDuplicate(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	seedDevice(t, repo, "pond-01", false)

	err := repo.Create(context.Background(), &Device{ID: "pond-01"})
	if !errors.Is(err, ErrDeviceExists) {
		t.Errorf("Create duplicate = %v, want ErrDeviceExists", err)
	}
}

func TestSQLiteRepository_GetByID_NotFound(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))

	_, err := repo.GetByID(context.Background(), "nope")
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByID = %v, want ErrDeviceNotFound", err)
	}
}

func TestSQLiteRepository_ListRegisteredIDs(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	seedDevice(t, repo, "pond-01", true)
	seedDevice(t, repo, "pond-02", false)
	seedDevice(t, repo, "pond-03", true)

	ids, err := repo.ListRegisteredIDs(context.Background())
	if err != nil {
		t.Fatalf("ListRegisteredIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != "pond-01" || ids[1] != "pond-03" {
		t.Errorf("ListRegisteredIDs = %v, want [pond-01 pond-03]", ids)
	}
}

func TestSQLiteRepository_UpdateMetadata(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()

	firmware := "1.0.0"
	mac := "AA:BB:CC:DD:EE:FF"
	dev := &Device{ID: "pond-01", FirmwareVersion: &firmware, MACAddress: &mac}
	if err := repo.Create(ctx, dev); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Empty fields must leave stored values untouched.
	err := repo.UpdateMetadata(ctx, "pond-01", RegistrationInfo{
		FirmwareVersion: "2.0.0",
		IPAddress:       "10.0.0.5",
	})
	if err != nil {
		t.Fatalf("UpdateMetadata: %v", err)
	}

	got, err := repo.GetByID(ctx, "pond-01")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.FirmwareVersion == nil || *got.FirmwareVersion != "2.0.0" {
		t.Errorf("FirmwareVersion = %v, want 2.0.0", got.FirmwareVersion)
	}
	if got.MACAddress == nil || *got.MACAddress != mac {
		t.Errorf("MACAddress = %v, want %q preserved", got.MACAddress, mac)
	}
	if got.IPAddress == nil || *got.IPAddress != "10.0.0.5" {
		t.Errorf("IPAddress = %v, want 10.0.0.5", got.IPAddress)
	}
}

func TestSQLiteRepository_SetRegistration(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()
	seedDevice(t, repo, "pond-01", false)

	if err := repo.SetRegistration(ctx, "pond-01", true); err != nil {
		t.Fatalf("SetRegistration: %v", err)
	}
	got, _ := repo.GetByID(ctx, "pond-01")
	if !got.IsRegistered || got.RegistrationStatus != RegistrationRegistered {
		t.Errorf("after approve: IsRegistered=%v RegistrationStatus=%q",
			got.IsRegistered, got.RegistrationStatus)
	}

	if err := repo.SetRegistration(ctx, "pond-01", false); err != nil {
		t.Fatalf("SetRegistration revert: %v", err)
	}
	got, _ = repo.GetByID(ctx, "pond-01")
	if got.IsRegistered || got.RegistrationStatus != RegistrationPending {
		t.Errorf("after revert: IsRegistered=%v RegistrationStatus=%q",
			got.IsRegistered, got.RegistrationStatus)
	}

	if err := repo.SetRegistration(ctx, "ghost", true); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("SetRegistration unknown = %v, want ErrDeviceNotFound", err)
	}
}

func TestSQLiteRepository_UpdateStatusBatch(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		seedDevice(t, repo, id, true)
		if err := repo.UpdateStatus(ctx, id, StatusOnline); err != nil {
			t.Fatalf("UpdateStatus: %v", err)
		}
	}

	if err := repo.UpdateStatusBatch(ctx, []string{"a", "c"}, StatusOffline); err != nil {
		t.Fatalf("UpdateStatusBatch: %v", err)
	}

	wantStatus := map[string]Status{"a": StatusOffline, "b": StatusOnline, "c": StatusOffline}
	for id, want := range wantStatus {
		got, err := repo.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID(%s): %v", id, err)
		}
		if got.Status != want {
			t.Errorf("device %s status = %q, want %q", id, got.Status, want)
		}
	}

	// Empty batch is a no-op, not an error.
	if err := repo.UpdateStatusBatch(ctx, nil, StatusOffline); err != nil {
		t.Errorf("UpdateStatusBatch(nil) = %v, want nil", err)
	}
}

func TestSQLiteRepository_TouchLastSeen(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()
	seedDevice(t, repo, "pond-01", false)

	at := time.Date(2026, 8, 22, 14, 30, 0, 0, time.UTC)
	if err := repo.TouchLastSeen(ctx, "pond-01", at); err != nil {
		t.Fatalf("TouchLastSeen: %v", err)
	}

	got, _ := repo.GetByID(ctx, "pond-01")
	if got.LastSeen == nil || !got.LastSeen.Equal(at) {
		t.Errorf("LastSeen = %v, want %v", got.LastSeen, at)
	}
}

func TestSQLiteRepository_Delete(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()
	seedDevice(t, repo, "pond-01", false)

	if err := repo.Delete(ctx, "pond-01"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.GetByID(ctx, "pond-01"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByID after delete = %v, want ErrDeviceNotFound", err)
	}
	if err := repo.Delete(ctx, "pond-01"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Delete again = %v, want ErrDeviceNotFound", err)
	}
}
