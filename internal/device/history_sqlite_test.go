package device

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nerrad567/indi-bridge/internal/indi"
)

// setupHistoryTestDB creates an in-memory SQLite database with the
// property_history table.
func setupHistoryTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	schema := `
		CREATE TABLE property_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device TEXT NOT NULL,
			property TEXT NOT NULL,
			element TEXT NOT NULL,
			kind TEXT NOT NULL,
			value_num REAL,
			value_text TEXT,
			state TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		) STRICT;
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func applyAll(t *testing.T, s *Store, cmds ...indi.Command) []Change {
	t.Helper()
	changes := make([]Change, 0, len(cmds))
	for _, cmd := range cmds {
		changes = append(changes, mustApply(t, s, cmd))
	}
	return changes
}

func TestHistory_RecordAndGet(t *testing.T) {
	db := setupHistoryTestDB(t)
	repo := NewSQLiteHistoryRepository(db, 0)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	changes := applyAll(t, newTestStore(),
		simulatorSettings(),
		&indi.SetNumberVector{Device: "CCD Simulator", Name: "SIMULATOR_SETTINGS", State: indi.StateOk, Timestamp: now,
			Numbers: []indi.OneNumber{{Name: "SIM_YRES", Value: 2048}}},
	)

	n, err := repo.RecordChange(ctx, changes[0])
	if err != nil || n != 3 {
		t.Fatalf("RecordChange(define) = %d, %v, want 3 rows", n, err)
	}
	n, err = repo.RecordChange(ctx, changes[1])
	if err != nil || n != 1 {
		t.Fatalf("RecordChange(update) = %d, %v, want 1 row", n, err)
	}

	entries, err := repo.GetHistory(ctx, "CCD Simulator", "SIMULATOR_SETTINGS", 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("len(entries) = %d, want 4", len(entries))
	}

	latest := entries[0]
	if latest.Element != "SIM_YRES" || latest.ValueNum == nil || *latest.ValueNum != 2048 {
		t.Errorf("latest entry = %+v, want SIM_YRES=2048", latest)
	}
	if latest.State != indi.StateOk || latest.Kind != indi.KindNumber {
		t.Errorf("latest state/kind = %q/%q", latest.State, latest.Kind)
	}
	if !latest.Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v, want %v", latest.Timestamp, now)
	}
	if latest.ValueText != nil {
		t.Errorf("ValueText = %q, want nil for number", *latest.ValueText)
	}
}

func TestHistory_TextualKinds(t *testing.T) {
	db := setupHistoryTestDB(t)
	repo := NewSQLiteHistoryRepository(db, 0)
	ctx := context.Background()

	changes := applyAll(t, newTestStore(),
		debugSwitch(),
		&indi.SetSwitchVector{Device: "CCD Simulator", Name: "DEBUG", State: indi.StateOk,
			Switches: []indi.OneSwitch{{Name: "ENABLE", Value: indi.SwitchOn}}},
	)
	if _, err := repo.RecordChange(ctx, changes[1]); err != nil {
		t.Fatalf("RecordChange() error = %v", err)
	}

	entries, err := repo.GetHistory(ctx, "CCD Simulator", "DEBUG", 0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 1 || entries[0].ValueText == nil || *entries[0].ValueText != "On" {
		t.Errorf("entries = %+v, want one row with value On", entries)
	}
}

func TestHistory_IgnoresDeletesAndMessages(t *testing.T) {
	db := setupHistoryTestDB(t)
	repo := NewSQLiteHistoryRepository(db, 0)
	ctx := context.Background()

	changes := applyAll(t, newTestStore(),
		debugSwitch(),
		&indi.Message{Message: "hello"},
		&indi.DelProperty{Device: "CCD Simulator"},
	)
	for _, c := range changes[1:] {
		n, err := repo.RecordChange(ctx, c)
		if err != nil || n != 0 {
			t.Errorf("RecordChange(%s) = %d, %v, want no rows", c.Op, n, err)
		}
	}
}

func TestHistory_MaxRowsPerProperty(t *testing.T) {
	db := setupHistoryTestDB(t)
	repo := NewSQLiteHistoryRepository(db, 3)
	ctx := context.Background()

	s := newTestStore()
	mustApply(t, s, simulatorSettings())
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 5 {
		c := mustApply(t, s, &indi.SetNumberVector{
			Device: "CCD Simulator", Name: "SIMULATOR_SETTINGS", State: indi.StateOk,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Numbers:   []indi.OneNumber{{Name: "SIM_XRES", Value: float64(100 + i)}},
		})
		if _, err := repo.RecordChange(ctx, c); err != nil {
			t.Fatalf("RecordChange() error = %v", err)
		}
	}

	entries, err := repo.GetHistory(ctx, "CCD Simulator", "SIMULATOR_SETTINGS", 50)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	if *entries[0].ValueNum != 104 || *entries[2].ValueNum != 102 {
		t.Errorf("kept values = %v..%v, want newest three", *entries[0].ValueNum, *entries[2].ValueNum)
	}
}

func TestHistory_LimitClamped(t *testing.T) {
	db := setupHistoryTestDB(t)
	repo := NewSQLiteHistoryRepository(db, 0)
	ctx := context.Background()

	s := newTestStore()
	mustApply(t, s, simulatorSettings())
	for i := range maxHistoryLimit + 10 {
		c := mustApply(t, s, &indi.SetNumberVector{
			Device: "CCD Simulator", Name: "SIMULATOR_SETTINGS", State: indi.StateOk,
			Numbers: []indi.OneNumber{{Name: "SIM_XRES", Value: float64(i)}},
		})
		if _, err := repo.RecordChange(ctx, c); err != nil {
			t.Fatalf("RecordChange() error = %v", err)
		}
	}

	entries, err := repo.GetHistory(ctx, "CCD Simulator", "SIMULATOR_SETTINGS", 1000)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != maxHistoryLimit {
		t.Errorf("len(entries) = %d, want %d", len(entries), maxHistoryLimit)
	}

	entries, err = repo.GetHistory(ctx, "CCD Simulator", "SIMULATOR_SETTINGS", 0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != defaultHistoryLimit {
		t.Errorf("len(entries) = %d, want default %d", len(entries), defaultHistoryLimit)
	}
}

func TestHistory_Prune(t *testing.T) {
	db := setupHistoryTestDB(t)
	repo := NewSQLiteHistoryRepository(db, 0)
	ctx := context.Background()

	s := newTestStore()
	mustApply(t, s, simulatorSettings())
	old := mustApply(t, s, &indi.SetNumberVector{
		Device: "CCD Simulator", Name: "SIMULATOR_SETTINGS", State: indi.StateOk,
		Timestamp: time.Now().UTC().Add(-48 * time.Hour),
		Numbers:   []indi.OneNumber{{Name: "SIM_XRES", Value: 1}},
	})
	recent := mustApply(t, s, &indi.SetNumberVector{
		Device: "CCD Simulator", Name: "SIMULATOR_SETTINGS", State: indi.StateOk,
		Timestamp: time.Now().UTC(),
		Numbers:   []indi.OneNumber{{Name: "SIM_XRES", Value: 2}},
	})
	for _, c := range []Change{old, recent} {
		if _, err := repo.RecordChange(ctx, c); err != nil {
			t.Fatalf("RecordChange() error = %v", err)
		}
	}

	n, err := repo.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Prune() = %d, want 1", n)
	}

	if _, err := repo.Prune(ctx, 0); err == nil {
		t.Error("Prune(0) error = nil, want error")
	}
}
