package alerting

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aquasentinel/core/internal/infrastructure/config"
)

// testDB opens an in-memory SQLite database with the alerts schema.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening in-memory database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE alerts (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL,
			parameter TEXT NOT NULL,
			severity TEXT NOT NULL,
			value REAL NOT NULL,
			threshold REAL NOT NULL,
			message TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			occurrence_count INTEGER NOT NULL DEFAULT 1,
			first_occurrence TEXT NOT NULL,
			last_occurrence TEXT NOT NULL,
			current_value REAL NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		) STRICT`)
	if err != nil {
		t.Fatalf("creating alerts table: %v", err)
	}
	return db
}

func testAlertingConfig() config.AlertingConfig {
	return config.AlertingConfig{
		CooldownSeconds: 300,
		Thresholds: map[string]config.ThresholdBand{
			"ph": {WarningMin: 6.5, WarningMax: 8.5, CriticalMin: 6.0, CriticalMax: 9.0},
		},
	}
}

func newTestEvaluator(t *testing.T) (*Evaluator, *SQLiteRepository) {
	t.Helper()
	repo := NewSQLiteRepository(testDB(t))
	return NewEvaluator(repo, testAlertingConfig(), nil, nil), repo
}

func TestClassify(t *testing.T) {
	band := config.ThresholdBand{
		WarningMin: 6.5, WarningMax: 8.5,
		CriticalMin: 6.0, CriticalMax: 9.0,
	}

	tests := []struct {
		name         string
		value        float64
		wantSeverity Severity
		wantBreach   bool
	}{
		{"in band", 7.0, "", false},
		{"at warning min", 6.5, "", false},
		{"below warning", 6.2, SeverityWarning, true},
		{"above warning", 8.8, SeverityWarning, true},
		{"below critical", 5.5, SeverityCritical, true},
		{"above critical", 9.5, SeverityCritical, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			severity, _, breached := classify(tt.value, band)
			if breached != tt.wantBreach {
				t.Fatalf("breached = %v, want %v", breached, tt.wantBreach)
			}
			if severity != tt.wantSeverity {
				t.Errorf("severity = %q, want %q", severity, tt.wantSeverity)
			}
		})
	}
}

func TestEvaluate_InBandCreatesNothing(t *testing.T) {
	eval, repo := newTestEvaluator(t)
	ctx := context.Background()

	err := eval.Evaluate(ctx, "pond-01", map[string]float64{"ph": 7.2}, time.Now())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	alerts, err := repo.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("alerts = %v, want none", alerts)
	}
}

func TestEvaluate_UnknownParameterIgnored(t *testing.T) {
	eval, repo := newTestEvaluator(t)
	ctx := context.Background()

	err := eval.Evaluate(ctx, "pond-01", map[string]float64{"salinity": 9999}, time.Now())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if alerts, _ := repo.ListActive(ctx); len(alerts) != 0 {
		t.Errorf("alerts = %v, want none", alerts)
	}
}

func TestEvaluate_CooldownDeduplicates(t *testing.T) {
	eval, repo := newTestEvaluator(t)
	ctx := context.Background()

	at := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	eval.now = func() time.Time { return at }

	// ph 5.5 is below the critical minimum 6.0.
	if err := eval.Evaluate(ctx, "pond-01", map[string]float64{"ph": 5.5}, at); err != nil {
		t.Fatalf("first Evaluate: %v", err)
	}

	// Ten seconds later, still breaching.
	later := at.Add(10 * time.Second)
	eval.now = func() time.Time { return later }
	if err := eval.Evaluate(ctx, "pond-01", map[string]float64{"ph": 5.4}, later); err != nil {
		t.Fatalf("second Evaluate: %v", err)
	}

	alerts, err := repo.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("active alerts = %d, want exactly 1", len(alerts))
	}

	alert := alerts[0]
	if alert.Severity != SeverityCritical {
		t.Errorf("Severity = %q, want critical", alert.Severity)
	}
	if alert.OccurrenceCount != 2 {
		t.Errorf("OccurrenceCount = %d, want 2", alert.OccurrenceCount)
	}
	if alert.CurrentValue != 5.4 {
		t.Errorf("CurrentValue = %v, want 5.4", alert.CurrentValue)
	}
	if alert.Value != 5.5 {
		t.Errorf("Value = %v, want original 5.5", alert.Value)
	}
	if !alert.LastOccurrence.Equal(later) {
		t.Errorf("LastOccurrence = %v, want %v", alert.LastOccurrence, later)
	}
}

func TestEvaluate_NewAlertAfterCooldown(t *testing.T) {
	eval, repo := newTestEvaluator(t)
	ctx := context.Background()

	at := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	eval.now = func() time.Time { return at }
	if err := eval.Evaluate(ctx, "pond-01", map[string]float64{"ph": 5.5}, at); err != nil {
		t.Fatalf("first Evaluate: %v", err)
	}

	// Past the 300s cooldown the stale record is closed and a fresh one
	// starts a new count.
	later := at.Add(301 * time.Second)
	eval.now = func() time.Time { return later }
	if err := eval.Evaluate(ctx, "pond-01", map[string]float64{"ph": 5.6}, later); err != nil {
		t.Fatalf("second Evaluate: %v", err)
	}

	active, err := repo.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("active alerts = %d, want 1", len(active))
	}
	if active[0].OccurrenceCount != 1 {
		t.Errorf("new alert OccurrenceCount = %d, want 1", active[0].OccurrenceCount)
	}
	if active[0].CurrentValue != 5.6 {
		t.Errorf("new alert CurrentValue = %v, want 5.6", active[0].CurrentValue)
	}
}

func TestEvaluate_PairsAreIndependent(t *testing.T) {
	eval, repo := newTestEvaluator(t)
	ctx := context.Background()
	at := time.Now()

	if err := eval.Evaluate(ctx, "pond-01", map[string]float64{"ph": 5.5}, at); err != nil {
		t.Fatalf("Evaluate pond-01: %v", err)
	}
	if err := eval.Evaluate(ctx, "pond-02", map[string]float64{"ph": 5.5}, at); err != nil {
		t.Fatalf("Evaluate pond-02: %v", err)
	}

	active, _ := repo.ListActive(ctx)
	if len(active) != 2 {
		t.Errorf("active alerts = %d, want 2 (one per device)", len(active))
	}
}

func TestEvaluate_ConcurrentBreachesSinglePair(t *testing.T) {
	eval, repo := newTestEvaluator(t)
	ctx := context.Background()
	at := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := eval.Evaluate(ctx, "pond-01", map[string]float64{"ph": 5.5}, at); err != nil {
				t.Errorf("Evaluate: %v", err)
			}
		}()
	}
	wg.Wait()

	active, err := repo.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("active alerts = %d, want exactly 1", len(active))
	}
	if active[0].OccurrenceCount != 8 {
		t.Errorf("OccurrenceCount = %d, want 8", active[0].OccurrenceCount)
	}
}

func TestRepository_AcknowledgeStaysUnresolved(t *testing.T) {
	_, repo := newTestEvaluator(t)
	ctx := context.Background()

	now := time.Now()
	alert := &Alert{
		DeviceID:        "pond-01",
		Parameter:       "ph",
		Severity:        SeverityWarning,
		Value:           6.2,
		Threshold:       6.5,
		Message:         "test",
		FirstOccurrence: now,
		LastOccurrence:  now,
		CurrentValue:    6.2,
	}
	if err := repo.Create(ctx, alert); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := repo.Acknowledge(ctx, alert.ID); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if _, err := repo.FindUnresolved(ctx, "pond-01", "ph"); err != nil {
		t.Errorf("acknowledged alert should still be unresolved: %v", err)
	}

	if err := repo.Resolve(ctx, alert.ID); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	_, err := repo.FindUnresolved(ctx, "pond-01", "ph")
	if !errors.Is(err, ErrAlertNotFound) {
		t.Errorf("FindUnresolved after resolve = %v, want ErrAlertNotFound", err)
	}
}

func TestRepository_NotFound(t *testing.T) {
	_, repo := newTestEvaluator(t)
	ctx := context.Background()

	if _, err := repo.GetByID(ctx, "ghost"); !errors.Is(err, ErrAlertNotFound) {
		t.Errorf("GetByID = %v, want ErrAlertNotFound", err)
	}
	if err := repo.RecordOccurrence(ctx, "ghost", 1, time.Now()); !errors.Is(err, ErrAlertNotFound) {
		t.Errorf("RecordOccurrence = %v, want ErrAlertNotFound", err)
	}
	if err := repo.Resolve(ctx, "ghost"); !errors.Is(err, ErrAlertNotFound) {
		t.Errorf("Resolve = %v, want ErrAlertNotFound", err)
	}
}
