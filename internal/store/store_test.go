package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewMemory()
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// insertActivity is a test helper that inserts an activity starting at ts.
func insertActivity(t *testing.T, s *Store, id string, ts time.Time) *Activity {
	t.Helper()
	a := &Activity{
		ID:          id,
		Fingerprint: id,
		Name:        id + ".fit",
		FileName:    id + ".fit",
		Path:        "/fit/" + id + ".fit",
		Timestamp:   ts,
		Sport:       "running",
		Summary:     ActivitySummary{Distance: 5000, Duration: 1500},
		ImportedAt:  time.Now(),
	}
	if err := s.InsertActivity(a); err != nil {
		t.Fatalf("insert activity: %v", err)
	}
	return a
}

// ============================================================
// Store initialization
// ============================================================

func TestNewMemory(t *testing.T) {
	s, err := NewMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	var version int
	s.db.QueryRow("PRAGMA user_version").Scan(&version)
	if version != currentVersion {
		t.Fatalf("expected user_version %d, got %d", currentVersion, version)
	}
}

func TestNewWithPath(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "database"))
	if err != nil {
		t.Fatal(err)
	}
	if s.Path() != filepath.Join(dir, "database", FileName) {
		t.Fatalf("unexpected path %s", s.Path())
	}
	s.Close()

	// Reopen: should succeed and not re-migrate
	s2, err := Open(filepath.Join(dir, "database"))
	if err != nil {
		t.Fatal(err)
	}
	s2.Close()
}

func TestDefaultDataDir(t *testing.T) {
	path, err := DefaultDataDir()
	if err != nil {
		t.Fatal(err)
	}
	if path == "" {
		t.Fatal("empty path")
	}
}

func TestMigrationIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.migrate(); err != nil {
		t.Fatalf("second migration failed: %v", err)
	}
}

func TestMigrateFromVersion1(t *testing.T) {
	s := newTestStore(t)
	for _, stmt := range []string{
		"ALTER TABLE fingerprints DROP COLUMN previous_status",
		"ALTER TABLE fingerprints DROP COLUMN previous_imported_at",
		"PRAGMA user_version = 1",
	} {
		if _, err := s.db.Exec(stmt); err != nil {
			t.Fatalf("%s: %v", stmt, err)
		}
	}
	if _, err := s.db.Exec(`INSERT INTO fingerprints (digest, kind, status, imported_at)
		VALUES ('old', 'activity', 'imported', '2024-01-01T00:00:00Z')`); err != nil {
		t.Fatal(err)
	}

	if err := s.migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	f, err := s.GetFingerprint("old")
	if err != nil {
		t.Fatal(err)
	}
	if f.PreviousStatus != "" || !f.PreviousImportedAt.IsZero() {
		t.Fatalf("expected no previous entry, got %+v", f)
	}
}

func TestCheckHealthyDatabase(t *testing.T) {
	s := newTestStore(t)
	insertActivity(t, s, "a", time.Now())
	if err := s.Check(); err != nil {
		t.Fatalf("check: %v", err)
	}
	if err := s.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err := s.Compact(); err != nil {
		t.Fatalf("compact: %v", err)
	}
}

// ============================================================
// Transactions
// ============================================================

func TestWithTxCommits(t *testing.T) {
	s := newTestStore(t)
	err := s.WithTx(context.Background(), func(tx *Tx) error {
		return tx.PutFingerprint(Fingerprint{Digest: "abc", Kind: KindActivity, Status: StatusImported, ImportedAt: time.Now()})
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetFingerprint("abc"); err != nil {
		t.Fatalf("fingerprint should be committed: %v", err)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	boom := errors.New("boom")
	err := s.WithTx(context.Background(), func(tx *Tx) error {
		if err := tx.PutFingerprint(Fingerprint{Digest: "abc", Kind: KindActivity, Status: StatusImported}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := s.GetFingerprint("abc"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("fingerprint should be rolled back, got %v", err)
	}
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	s := newTestStore(t)
	func() {
		defer func() { recover() }()
		s.WithTx(context.Background(), func(tx *Tx) error {
			tx.SetSetting("import_dir", "/mnt")
			panic("boom")
		})
	}()
	if _, err := s.GetSetting("import_dir"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("setting should be rolled back, got %v", err)
	}
}

// ============================================================
// Config
// ============================================================

func TestDefaultConfig(t *testing.T) {
	s := newTestStore(t)
	c, err := s.LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if c.UnitSystem != "metric" {
		t.Fatalf("expected metric, got %q", c.UnitSystem)
	}
	if c.WeekStartDay != 1 {
		t.Fatalf("expected week start 1, got %d", c.WeekStartDay)
	}
	if c.Version != "" {
		t.Fatalf("fresh archive should have no version, got %q", c.Version)
	}
}

func TestSetSettingOverwrites(t *testing.T) {
	s := newTestStore(t)
	s.SetSetting(KeyHTMLDir, "/a")
	s.SetSetting(KeyHTMLDir, "/b")
	v, err := s.GetSetting(KeyHTMLDir)
	if err != nil {
		t.Fatal(err)
	}
	if v != "/b" {
		t.Fatalf("expected /b, got %q", v)
	}
}

func TestLoadConfigRejectsBadWeekStart(t *testing.T) {
	s := newTestStore(t)
	s.SetSetting(KeyWeekStartDay, "9")
	if _, err := s.LoadConfig(); err == nil {
		t.Fatal("expected error for week_start_day 9")
	}
}

// ============================================================
// Activities
// ============================================================

func TestInsertAndGetActivity(t *testing.T) {
	s := newTestStore(t)
	ts := time.Date(2024, 5, 1, 7, 30, 0, 0, time.UTC)
	insertActivity(t, s, "abc", ts)

	a, err := s.GetActivity("abc")
	if err != nil {
		t.Fatal(err)
	}
	if !a.Timestamp.Equal(ts) {
		t.Fatalf("timestamp mismatch: %v", a.Timestamp)
	}
	if a.Name != "abc.fit" || a.Sport != "running" || a.Summary.Distance != 5000 {
		t.Fatalf("unexpected activity: %+v", a)
	}
	if a.NoRecord {
		t.Fatal("new activity should not be norecord")
	}
}

func TestGetActivityNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetActivity("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListActivitiesOrderedByTimestamp(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	insertActivity(t, s, "c", base.Add(2*time.Hour))
	insertActivity(t, s, "a", base)
	insertActivity(t, s, "b", base.Add(time.Hour))
	// Same timestamp as "a": ordered by ID.
	insertActivity(t, s, "0", base)

	list, err := s.ListActivities(ActivityFilter{})
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, a := range list {
		ids = append(ids, a.ID)
	}
	want := []string{"0", "a", "b", "c"}
	if len(ids) != len(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, ids)
		}
	}
}

func TestListActivitiesFilter(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	insertActivity(t, s, "a", base)
	insertActivity(t, s, "b", base.AddDate(0, 0, 1))
	insertActivity(t, s, "c", base.AddDate(0, 0, 2))

	from := base.AddDate(0, 0, 1)
	to := base.AddDate(0, 0, 2)
	list, err := s.ListActivities(ActivityFilter{From: &from, To: &to})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != "b" {
		t.Fatalf("expected only b, got %+v", list)
	}
}

func TestUpdateActivity(t *testing.T) {
	s := newTestStore(t)
	a := insertActivity(t, s, "a", time.Now())
	a.Name = "Morning run"
	a.Note = "windy"
	a.NoRecord = true
	if err := s.UpdateActivity(a); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetActivity("a")
	if got.Name != "Morning run" || got.Note != "windy" || !got.NoRecord {
		t.Fatalf("update not persisted: %+v", got)
	}
}

func TestDeleteActivity(t *testing.T) {
	s := newTestStore(t)
	insertActivity(t, s, "a", time.Now())
	if err := s.DeleteActivity("a"); err != nil {
		t.Fatal(err)
	}
	n, _ := s.CountActivities()
	if n != 0 {
		t.Fatalf("expected 0 activities, got %d", n)
	}
	if err := s.DeleteActivity("a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestActivitiesByFingerprint(t *testing.T) {
	s := newTestStore(t)
	a := insertActivity(t, s, "fp", time.Now())
	dup := *a
	dup.ID = "fp+1"
	if err := s.InsertActivity(&dup); err != nil {
		t.Fatal(err)
	}
	list, err := s.ActivitiesByFingerprint("fp")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 activities, got %d", len(list))
	}
}

// ============================================================
// Monitoring
// ============================================================

func TestPutMonitoringReplacesSameDate(t *testing.T) {
	s := newTestStore(t)
	m := &MonitoringEntry{Date: "2024-03-01", Fingerprint: "one", FileName: "a.fit", Path: "/a", Summary: MonitoringSummary{Steps: 100}}
	if err := s.PutMonitoring(m); err != nil {
		t.Fatal(err)
	}
	m.Fingerprint = "two"
	m.Summary.Steps = 9000
	if err := s.PutMonitoring(m); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetMonitoring("2024-03-01")
	if err != nil {
		t.Fatal(err)
	}
	if got.Fingerprint != "two" || got.Summary.Steps != 9000 {
		t.Fatalf("expected replaced entry, got %+v", got)
	}

	list, _ := s.ListMonitoring("2024-03-01", "2024-03-02")
	if len(list) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(list))
	}
}

func TestListMonitoringRange(t *testing.T) {
	s := newTestStore(t)
	for _, d := range []string{"2024-03-01", "2024-03-02", "2024-03-08"} {
		s.PutMonitoring(&MonitoringEntry{Date: d, Fingerprint: d})
	}
	list, err := s.ListMonitoring("2024-03-01", "2024-03-08")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(list))
	}
}

// ============================================================
// Fingerprints and records
// ============================================================

func TestFingerprintStatus(t *testing.T) {
	s := newTestStore(t)
	s.PutFingerprint(Fingerprint{Digest: "d", Kind: KindActivity, Status: StatusImported, ImportedAt: time.Now()})
	if err := s.SetFingerprintStatus("d", StatusDeleted); err != nil {
		t.Fatal(err)
	}
	f, _ := s.GetFingerprint("d")
	if f.Status != StatusDeleted {
		t.Fatalf("expected deleted, got %s", f.Status)
	}
	if err := s.SetFingerprintStatus("missing", StatusDeleted); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFingerprintKeepsPreviousEntry(t *testing.T) {
	s := newTestStore(t)
	first := time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC)
	again := first.Add(24 * time.Hour)
	s.PutFingerprint(Fingerprint{Digest: "d", Kind: KindActivity, Status: StatusImported, ImportedAt: first})
	err := s.PutFingerprint(Fingerprint{
		Digest:             "d",
		Kind:               KindActivity,
		Status:             StatusImported,
		ImportedAt:         again,
		PreviousStatus:     StatusDeleted,
		PreviousImportedAt: first,
	})
	if err != nil {
		t.Fatal(err)
	}

	fps, err := s.ListFingerprints()
	if err != nil {
		t.Fatal(err)
	}
	if len(fps) != 1 {
		t.Fatalf("expected 1 fingerprint, got %d", len(fps))
	}
	f := fps[0]
	if !f.ImportedAt.Equal(again) || f.PreviousStatus != StatusDeleted || !f.PreviousImportedAt.Equal(first) {
		t.Fatalf("unexpected fingerprint %+v", f)
	}
}

func TestReplaceRecords(t *testing.T) {
	s := newTestStore(t)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.ReplaceRecords([]Record{{Sport: "running", Metric: "longest_distance", Value: 10, ActivityID: "a", Timestamp: ts}})
	s.ReplaceRecords([]Record{{Sport: "cycling", Metric: "longest_distance", Value: 50, ActivityID: "b", Timestamp: ts}})

	records, err := s.ListRecords()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Sport != "cycling" {
		t.Fatalf("expected only the cycling record, got %+v", records)
	}
}
