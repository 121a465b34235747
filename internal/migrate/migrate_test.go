package migrate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sadopc/fitarchive/internal/archive"
	"github.com/sadopc/fitarchive/internal/fitfile"
	"github.com/sadopc/fitarchive/internal/legacy"
	"github.com/sadopc/fitarchive/internal/records"
	"github.com/sadopc/fitarchive/internal/store"
)

var ctx = context.Background()

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// ============================================================
// Schema upgrade
// ============================================================

type stepLog struct {
	applied []string
}

func (l *stepLog) step(version string) Step {
	return Step{Version: version, Apply: func(_ context.Context, _ *store.Tx, _, _ string) error {
		l.applied = append(l.applied, version)
		return nil
	}}
}

func TestSchemaFreshArchiveSetsVersion(t *testing.T) {
	s := newStore(t)
	log := &stepLog{}
	u := &SchemaUpgrader{Store: s, Version: "1.2.0", Steps: []Step{log.step("1.1.0")}}
	require.NoError(t, u.Run(ctx))

	v, err := s.GetSetting(store.KeyVersion)
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", v)
	assert.Empty(t, log.applied)
}

func TestSchemaFreshArchiveGetsDefaults(t *testing.T) {
	s := newStore(t)
	u := &SchemaUpgrader{Store: s, Version: "1.2.0", Defaults: map[string]string{store.KeyUnitSystem: "statute"}}
	require.NoError(t, u.Run(ctx))

	unit, err := s.GetSetting(store.KeyUnitSystem)
	require.NoError(t, err)
	assert.Equal(t, "statute", unit)

	// Defaults never overwrite an existing archive.
	require.NoError(t, s.SetSetting(store.KeyUnitSystem, "metric"))
	require.NoError(t, u.Run(ctx))
	unit, _ = s.GetSetting(store.KeyUnitSystem)
	assert.Equal(t, "metric", unit)
}

func TestSchemaVersionlessArchiveKeepsSettings(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.SetSetting(store.KeyUnitSystem, "statute"))

	u := &SchemaUpgrader{Store: s, Version: "1.2.0", Defaults: map[string]string{
		store.KeyUnitSystem:   "metric",
		store.KeyWeekStartDay: "0",
	}}
	require.NoError(t, u.Run(ctx))

	cfg, err := s.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "statute", cfg.UnitSystem)
	assert.Equal(t, 0, cfg.WeekStartDay)
	assert.Equal(t, "1.2.0", cfg.Version)
}

func TestSchemaUpgradeRunsPendingStepsOnce(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.SetSetting(store.KeyVersion, "1.0.0"))

	log := &stepLog{}
	steps := []Step{log.step("1.3.0"), log.step("1.1.0"), log.step("0.9.0"), log.step("1.2.0"), log.step("1.0.0")}
	u := &SchemaUpgrader{Store: s, Version: "1.2.0", Steps: steps}

	require.NoError(t, u.Run(ctx))
	assert.Equal(t, []string{"1.1.0", "1.2.0"}, log.applied)

	v, err := s.GetSetting(store.KeyVersion)
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", v)

	// A second start with the same release changes nothing.
	require.NoError(t, u.Run(ctx))
	assert.Equal(t, []string{"1.1.0", "1.2.0"}, log.applied)
}

func TestSchemaNewerArchiveIsLeftAlone(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.SetSetting(store.KeyVersion, "2.0.0"))
	log := &stepLog{}
	u := &SchemaUpgrader{Store: s, Version: "1.2.0", Steps: []Step{log.step("1.2.0")}}

	require.NoError(t, u.Run(ctx))
	assert.Empty(t, log.applied)
	v, _ := s.GetSetting(store.KeyVersion)
	assert.Equal(t, "2.0.0", v)
}

func TestSchemaFailedStepRollsBack(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.SetSetting(store.KeyVersion, "1.0.0"))

	u := &SchemaUpgrader{Store: s, Version: "1.2.0", Steps: []Step{
		{Version: "1.1.0", Apply: func(_ context.Context, tx *store.Tx, _, _ string) error {
			return tx.SetSetting(store.KeyUnitSystem, "statute")
		}},
		{Version: "1.2.0", Apply: func(context.Context, *store.Tx, string, string) error {
			return errors.New("boom")
		}},
	}}
	err := u.Run(ctx)
	assert.ErrorIs(t, err, ErrMigrationFailure)

	v, _ := s.GetSetting(store.KeyVersion)
	assert.Equal(t, "1.0.0", v)
	_, err = s.GetSetting(store.KeyUnitSystem)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSchemaRejectsInvalidVersions(t *testing.T) {
	s := newStore(t)
	assert.ErrorIs(t, (&SchemaUpgrader{Store: s, Version: "latest"}).Run(ctx), ErrMigrationFailure)

	require.NoError(t, s.SetSetting(store.KeyVersion, "garbage"))
	assert.ErrorIs(t, (&SchemaUpgrader{Store: s, Version: "1.0.0"}).Run(ctx), ErrMigrationFailure)
}

func TestDefaultStepsNormaliseAndRecompute(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.SetSetting(store.KeyVersion, "1.0.0"))
	require.NoError(t, s.InsertActivity(&store.Activity{
		ID: "a", Fingerprint: "a", Name: "a", Timestamp: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		Sport: "Running", SubSport: "Trail", Summary: store.ActivitySummary{Distance: 1000},
	}))

	require.NoError(t, (&SchemaUpgrader{Store: s, Version: "1.2.0", Steps: DefaultSteps()}).Run(ctx))

	a, err := s.GetActivity("a")
	require.NoError(t, err)
	assert.Equal(t, "running", a.Sport)
	assert.Equal(t, "trail", a.SubSport)

	recs, err := s.ListRecords()
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	assert.Equal(t, "running", recs[0].Sport)
}

// ============================================================
// Legacy archive import
// ============================================================

type legacyFixture struct {
	dataDir string
	store   *store.Store
	archive *archive.Archive
}

func newLegacyFixture(t *testing.T) *legacyFixture {
	t.Helper()
	dataDir := t.TempDir()
	s := newStore(t)
	a := archive.New(s, archive.Options{DataDir: dataDir, Decoder: fitfile.Fake{}})
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, "fit"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, "metadata"), 0o755))
	return &legacyFixture{dataDir: dataDir, store: s, archive: a}
}

func (f *legacyFixture) writeFit(t *testing.T, name string, start time.Time, distance string) {
	t.Helper()
	body := "kind=activity\nstart=" + start.Format(time.RFC3339) + "\nsport=running\ndistance=" + distance + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(f.dataDir, "fit", name), []byte(body), 0o644))
}

func (f *legacyFixture) writeArchive(t *testing.T, entries []legacy.ArchiveEntry) {
	t.Helper()
	require.NoError(t, legacy.WriteArchive(filepath.Join(f.dataDir, LegacyArchiveFile), entries))
}

func (f *legacyFixture) run(t *testing.T) *LegacyReport {
	t.Helper()
	report, err := (&LegacyImporter{Archive: f.archive, DataDir: f.dataDir}).Run(ctx)
	require.NoError(t, err)
	return report
}

func TestLegacyImportTwoActivities(t *testing.T) {
	f := newLegacyFixture(t)
	t1 := time.Date(2015, 3, 1, 9, 0, 0, 0, time.UTC)
	t2 := t1.Add(48 * time.Hour)
	f.writeFit(t, "A.FIT", t1, "5000")
	f.writeFit(t, "B.FIT", t2, "9000")
	// Listed newest first on purpose; the import runs oldest first.
	f.writeArchive(t, []legacy.ArchiveEntry{
		{FitFile: "B.FIT", Name: "Long run", Sport: "running", SubSport: "trail", NoRecord: true, Timestamp: t2},
		{FitFile: "A.FIT", Name: "Short run", Sport: "cycling", Timestamp: t1},
	})

	report := f.run(t)
	assert.Equal(t, 2, report.Imported)
	assert.Empty(t, report.Failed)

	acts, err := f.archive.List()
	require.NoError(t, err)
	require.Len(t, acts, 2)
	assert.Equal(t, "Long run", acts[0].Name)
	assert.Equal(t, "trail", acts[0].SubSport)
	assert.True(t, acts[0].NoRecord)
	assert.Equal(t, "Short run", acts[1].Name)
	assert.Equal(t, "cycling", acts[1].Sport)

	for _, name := range []string{"A.FIT", "B.FIT"} {
		assert.NoFileExists(t, filepath.Join(f.dataDir, "fit", name))
		assert.FileExists(t, filepath.Join(f.dataDir, "old_fit", name))
	}
	assert.NoFileExists(t, filepath.Join(f.dataDir, LegacyArchiveFile))
	assert.FileExists(t, filepath.Join(f.dataDir, LegacyArchiveFile+".bak"))

	// The norecord flag is in effect for records computed during import.
	recs, err := f.archive.Records()
	require.NoError(t, err)
	assert.True(t, records.FromRecords(recs).Equal(records.Recompute(mustList(t, f.store))))
	for _, r := range recs {
		assert.NotEqual(t, acts[0].ID, r.ActivityID)
	}

	// Nothing left to do on the next start.
	again := f.run(t)
	assert.Zero(t, again.Imported)
}

func TestLegacyImportMissingFile(t *testing.T) {
	f := newLegacyFixture(t)
	t1 := time.Date(2015, 3, 1, 9, 0, 0, 0, time.UTC)
	f.writeFit(t, "A.FIT", t1, "5000")
	f.writeArchive(t, []legacy.ArchiveEntry{
		{FitFile: "A.FIT", Timestamp: t1},
		{FitFile: "GONE.FIT", Timestamp: t1.Add(time.Hour)},
	})

	report := f.run(t)
	assert.Equal(t, 1, report.Imported)
	assert.Equal(t, 1, report.Missing)

	acts, err := f.archive.List()
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, "A.FIT", acts[0].Name)
	assert.FileExists(t, filepath.Join(f.dataDir, LegacyArchiveFile+".bak"))
}

func TestLegacyImportDuplicateMovesFile(t *testing.T) {
	f := newLegacyFixture(t)
	t1 := time.Date(2015, 3, 1, 9, 0, 0, 0, time.UTC)
	f.writeFit(t, "A.FIT", t1, "5000")
	_, err := f.archive.Import(ctx, filepath.Join(f.dataDir, "fit", "A.FIT"), archive.ImportOptions{})
	require.NoError(t, err)
	f.writeArchive(t, []legacy.ArchiveEntry{{FitFile: "A.FIT", Timestamp: t1}})

	report := f.run(t)
	assert.Equal(t, 1, report.Duplicates)
	assert.Zero(t, report.Imported)
	assert.FileExists(t, filepath.Join(f.dataDir, "old_fit", "A.FIT"))
}

func TestLegacyImportFailureKeepsFile(t *testing.T) {
	f := newLegacyFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.dataDir, "fit", "BAD.FIT"), []byte("corrupt\n"), 0o644))
	f.writeArchive(t, []legacy.ArchiveEntry{{FitFile: "BAD.FIT"}})

	report := f.run(t)
	require.Len(t, report.Failed, 1)
	assert.FileExists(t, filepath.Join(f.dataDir, "fit", "BAD.FIT"))
}

func TestLegacyImportWithoutArchive(t *testing.T) {
	f := newLegacyFixture(t)
	report := f.run(t)
	assert.Zero(t, report.Imported)
}

func mustList(t *testing.T, s *store.Store) []store.Activity {
	t.Helper()
	acts, err := s.ListActivities(store.ActivityFilter{})
	require.NoError(t, err)
	return acts
}

// ============================================================
// Engine migration
// ============================================================

func writeLegacyEngine(t *testing.T, dir string) {
	t.Helper()
	eng, err := legacy.OpenEngine(dir)
	require.NoError(t, err)
	defer eng.Close()

	t1 := time.Date(2019, 6, 1, 7, 0, 0, 0, time.UTC)
	require.NoError(t, eng.Put(ctx, legacy.PrefixConfig+store.KeyVersion, "1.0.0"))
	require.NoError(t, eng.Put(ctx, legacy.PrefixConfig+store.KeyUnitSystem, "statute"))
	for i, d := range []float64{10000, 21000} {
		id := []string{"aaaa", "bbbb"}[i]
		require.NoError(t, eng.PutActivity(ctx, store.Activity{
			ID: id, Fingerprint: id, Name: id, Timestamp: t1.AddDate(0, 0, i),
			Sport: "running", Summary: store.ActivitySummary{Distance: d},
		}))
		require.NoError(t, eng.PutFingerprint(ctx, store.Fingerprint{Digest: id, Kind: store.KindActivity, Status: store.StatusImported}))
	}
	require.NoError(t, eng.PutMonitoring(ctx, store.MonitoringEntry{Date: "2019-06-01", Fingerprint: "cccc"}))
}

func openCurrent(t *testing.T, dataDir string) *store.Store {
	t.Helper()
	s, err := store.Open(DatabaseDir(dataDir))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEngineMigration(t *testing.T) {
	dataDir := t.TempDir()
	writeLegacyEngine(t, DatabaseDir(dataDir))

	m := &EngineMigrator{DataDir: dataDir}
	require.NoError(t, m.Run(ctx))

	assert.FileExists(t, filepath.Join(DatabaseDir(dataDir), store.FileName))
	assert.True(t, legacy.IsEngine(DatabaseDir(dataDir)+"-old"))
	assert.NoDirExists(t, DatabaseDir(dataDir)+"-new")

	s := openCurrent(t, dataDir)
	acts := mustList(t, s)
	require.Len(t, acts, 2)
	unit, err := s.GetSetting(store.KeyUnitSystem)
	require.NoError(t, err)
	assert.Equal(t, "statute", unit)
	fp, err := s.GetFingerprint("bbbb")
	require.NoError(t, err)
	assert.Equal(t, store.StatusImported, fp.Status)
	_, err = s.GetMonitoring("2019-06-01")
	require.NoError(t, err)

	recs, err := s.ListRecords()
	require.NoError(t, err)
	held := records.FromRecords(recs)[records.Key{Sport: "running", Metric: records.LongestDistance}]
	assert.Equal(t, "bbbb", held.ActivityID)

	// Converting again is a no-op.
	require.NoError(t, m.Run(ctx))
	assert.Len(t, mustList(t, s), 2)
}

func TestEngineMigrationKeepsEarlierBackup(t *testing.T) {
	dataDir := t.TempDir()
	writeLegacyEngine(t, DatabaseDir(dataDir))
	require.NoError(t, os.MkdirAll(DatabaseDir(dataDir)+"-old", 0o755))

	m := &EngineMigrator{DataDir: dataDir, now: func() time.Time { return time.Unix(1700000000, 0) }}
	require.NoError(t, m.Run(ctx))
	assert.True(t, legacy.IsEngine(DatabaseDir(dataDir)+"-old-1700000000"))
}

func TestEngineMigrationRemovesLeftoverCopy(t *testing.T) {
	dataDir := t.TempDir()
	writeLegacyEngine(t, DatabaseDir(dataDir))
	// A run that died while copying left a partial database behind.
	leftover := DatabaseDir(dataDir) + "-new"
	require.NoError(t, os.MkdirAll(leftover, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(leftover, store.FileName), []byte("partial"), 0o644))

	require.NoError(t, (&EngineMigrator{DataDir: dataDir}).Run(ctx))
	assert.Len(t, mustList(t, openCurrent(t, dataDir)), 2)
}

func TestEngineMigrationFinishesInterruptedSwap(t *testing.T) {
	dataDir := t.TempDir()
	writeLegacyEngine(t, DatabaseDir(dataDir))
	require.NoError(t, (&EngineMigrator{DataDir: dataDir}).Run(ctx))

	// Simulate a crash between the two renames.
	current := DatabaseDir(dataDir)
	require.NoError(t, os.Rename(current, current+"-new"))

	require.NoError(t, (&EngineMigrator{DataDir: dataDir}).Run(ctx))
	assert.NoDirExists(t, current+"-new")
	assert.Len(t, mustList(t, openCurrent(t, dataDir)), 2)
}

func TestEngineMigrationFailureKeepsOriginal(t *testing.T) {
	dataDir := t.TempDir()
	current := DatabaseDir(dataDir)
	writeLegacyEngine(t, current)
	eng, err := legacy.OpenEngine(current)
	require.NoError(t, err)
	// Loads fine but collides with aaaa while the copy is written.
	require.NoError(t, eng.Put(ctx, legacy.PrefixActivity+"zzzz",
		`{"id":"aaaa","fingerprint":"zzzz","name":"copy","timestamp":"2019-06-03T07:00:00Z"}`))
	require.NoError(t, eng.Close())

	err = (&EngineMigrator{DataDir: dataDir}).Run(ctx)
	require.ErrorIs(t, err, ErrMigrationFailure)

	assert.True(t, legacy.IsEngine(current))
	assert.NoDirExists(t, current+"-new")
	assert.NoDirExists(t, current+"-old")

	eng, err = legacy.OpenEngine(current)
	require.NoError(t, err)
	defer eng.Close()
	n := 0
	require.NoError(t, eng.Scan(ctx, legacy.PrefixActivity, func(string, []byte) error {
		n++
		return nil
	}))
	assert.Equal(t, 3, n)
}

func TestEngineMigrationNothingToDo(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, (&EngineMigrator{DataDir: dataDir}).Run(ctx))
	assert.NoDirExists(t, DatabaseDir(dataDir))
}

// ============================================================
// Pipeline
// ============================================================

func TestPipelineFreshArchive(t *testing.T) {
	dataDir := t.TempDir()
	p := &Pipeline{DataDir: dataDir, Version: "1.2.0", Archive: archive.Options{Decoder: fitfile.Fake{}}}

	st, a, err := p.Open(ctx)
	require.NoError(t, err)
	defer st.Close()

	v, err := st.GetSetting(store.KeyVersion)
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", v)
	assert.Equal(t, dataDir, a.DataDir())
}

func TestPipelineKeepsConvertedSettings(t *testing.T) {
	dataDir := t.TempDir()
	eng, err := legacy.OpenEngine(DatabaseDir(dataDir))
	require.NoError(t, err)
	require.NoError(t, eng.Put(ctx, legacy.PrefixConfig+store.KeyUnitSystem, "statute"))
	require.NoError(t, eng.Close())

	p := &Pipeline{
		DataDir:  dataDir,
		Version:  "1.2.0",
		Defaults: map[string]string{store.KeyUnitSystem: "metric", store.KeyWeekStartDay: "0"},
		Archive:  archive.Options{Decoder: fitfile.Fake{}},
	}
	st, a, err := p.Open(ctx)
	require.NoError(t, err)
	defer st.Close()

	cfg, err := a.Config()
	require.NoError(t, err)
	assert.Equal(t, "statute", cfg.UnitSystem)
	assert.Equal(t, 0, cfg.WeekStartDay)
	assert.Equal(t, "1.2.0", cfg.Version)
}

func TestPipelineConvertsLegacyEngine(t *testing.T) {
	dataDir := t.TempDir()
	writeLegacyEngine(t, DatabaseDir(dataDir))

	p := &Pipeline{DataDir: dataDir, Version: "1.2.0", Archive: archive.Options{Decoder: fitfile.Fake{}}}
	st, a, err := p.Open(ctx)
	require.NoError(t, err)
	defer st.Close()

	acts, err := a.List()
	require.NoError(t, err)
	assert.Len(t, acts, 2)
	v, err := st.GetSetting(store.KeyVersion)
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", v)
}
