package database

import (
	"context"
	"embed"
	"path/filepath"
	"testing"
)

//go:embed testdata/*.sql
var testMigrationsFS embed.FS

// useTestMigrations swaps in the test migration files for the duration of a test.
func useTestMigrations(t *testing.T) {
	t.Helper()

	prevFS := MigrationsFS
	prevDir := MigrationsDir
	MigrationsFS = testMigrationsFS
	MigrationsDir = "testdata"
	t.Cleanup(func() {
		MigrationsFS = prevFS
		MigrationsDir = prevDir
	})
}

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(context.Background(), Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func TestOpen(t *testing.T) {
	db := openTestDB(t)

	if err := db.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestMigrate(t *testing.T) {
	useTestMigrations(t)
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	// The migrated table is usable.
	if _, err := db.ExecContext(ctx, `INSERT INTO widgets (id, name) VALUES ('w1', 'test')`); err != nil {
		t.Errorf("inserting into migrated table: %v", err)
	}

	// Both migrations are recorded.
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("counting applied migrations: %v", err)
	}
	if count != 2 {
		t.Errorf("applied migrations = %d, want 2", count)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	useTestMigrations(t)
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("first Migrate() error = %v", err)
	}
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("counting applied migrations: %v", err)
	}
	if count != 2 {
		t.Errorf("applied migrations after re-run = %d, want 2", count)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		wantVersion string
		wantName    string
		wantUp      bool
		wantOK      bool
	}{
		{
			name:        "up migration",
			filename:    "20260815_120000_initial_schema.up.sql",
			wantVersion: "20260815_120000",
			wantName:    "initial_schema",
			wantUp:      true,
			wantOK:      true,
		},
		{
			name:        "down migration",
			filename:    "20260815_120000_initial_schema.down.sql",
			wantVersion: "20260815_120000",
			wantName:    "initial_schema",
			wantUp:      false,
			wantOK:      true,
		},
		{
			name:     "not a migration",
			filename: "README.md",
			wantOK:   false,
		},
		{
			name:     "missing description",
			filename: "20260815.up.sql",
			wantOK:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, name, up, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if version != tt.wantVersion {
				t.Errorf("version = %q, want %q", version, tt.wantVersion)
			}
			if name != tt.wantName {
				t.Errorf("name = %q, want %q", name, tt.wantName)
			}
			if up != tt.wantUp {
				t.Errorf("up = %v, want %v", up, tt.wantUp)
			}
		})
	}
}
