package migrate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/sadopc/fitarchive/internal/legacy"
	"github.com/sadopc/fitarchive/internal/logger"
	"github.com/sadopc/fitarchive/internal/records"
	"github.com/sadopc/fitarchive/internal/store"
)

// EngineMigrator converts a Badger database directory into the SQLite
// layout. The new database is built next to the old one and swapped in
// with two renames, so an interruption leaves either the old directory
// untouched or a finished copy waiting to be moved into place.
type EngineMigrator struct {
	DataDir string
	now     func() time.Time
}

func (m *EngineMigrator) paths() (current, next, old string) {
	current = DatabaseDir(m.DataDir)
	return current, current + "-new", current + "-old"
}

// Run converts the database if it is still in the legacy format and
// completes a swap that an earlier run did not finish.
func (m *EngineMigrator) Run(ctx context.Context) error {
	current, next, old := m.paths()

	if !exists(current) && exists(next) {
		if !exists(filepath.Join(next, store.FileName)) {
			return fmt.Errorf("%w: %s has no %s", ErrMigrationFailure, next, store.FileName)
		}
		logger.Warn("finishing interrupted database conversion", zap.String("dir", current))
		if err := os.Rename(next, current); err != nil {
			return fmt.Errorf("%w: %w", ErrMigrationFailure, err)
		}
		return nil
	}

	if !legacy.IsEngine(current) {
		return nil
	}

	logger.Warn("converting database to the current format", zap.String("dir", current))
	if err := os.RemoveAll(next); err != nil {
		return fmt.Errorf("%w: remove leftover %s: %w", ErrMigrationFailure, next, err)
	}

	snap, err := loadLegacy(ctx, current)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMigrationFailure, err)
	}
	err = writeSnapshot(ctx, next, snap)
	if err == nil {
		err = verify(next, len(snap.Activities))
	}
	if err != nil {
		if rerr := os.RemoveAll(next); rerr != nil {
			logger.Warn("cannot remove partial database", zap.String("dir", next), zap.Error(rerr))
		}
		return fmt.Errorf("%w: %w", ErrMigrationFailure, err)
	}

	if exists(old) {
		old += "-" + strconv.FormatInt(m.clock().Unix(), 10)
	}
	if err := os.Rename(current, old); err != nil {
		return fmt.Errorf("%w: %w", ErrMigrationFailure, err)
	}
	if err := os.Rename(next, current); err != nil {
		return fmt.Errorf("%w: %w", ErrMigrationFailure, err)
	}
	logger.Warn("database conversion completed",
		zap.Int("activities", len(snap.Activities)), zap.String("backup", old))
	return nil
}

func (m *EngineMigrator) clock() time.Time {
	if m.now != nil {
		return m.now()
	}
	return time.Now()
}

func loadLegacy(ctx context.Context, dir string) (*legacy.Snapshot, error) {
	eng, err := legacy.OpenEngineReadOnly(dir)
	if err != nil {
		return nil, err
	}
	defer eng.Close()
	return eng.Load(ctx)
}

func writeSnapshot(ctx context.Context, dir string, snap *legacy.Snapshot) error {
	st, err := store.Open(dir)
	if err != nil {
		return err
	}
	defer st.Close()

	err = st.WithTx(ctx, func(tx *store.Tx) error {
		for k, v := range snap.Config {
			if err := tx.SetSetting(k, v); err != nil {
				return err
			}
		}
		for i := range snap.Activities {
			if err := tx.InsertActivity(&snap.Activities[i]); err != nil {
				return err
			}
		}
		for i := range snap.Monitoring {
			if err := tx.PutMonitoring(&snap.Monitoring[i]); err != nil {
				return err
			}
		}
		for _, f := range snap.Fingerprints {
			if err := tx.PutFingerprint(f); err != nil {
				return err
			}
		}
		return tx.ReplaceRecords(records.Recompute(snap.Activities).Records())
	})
	if err != nil {
		return fmt.Errorf("copy legacy data: %w", err)
	}
	return st.Sync()
}

// verify reopens the converted database and checks it before it replaces
// the original.
func verify(dir string, activities int) error {
	st, err := store.Open(dir)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Check(); err != nil {
		return err
	}
	n, err := st.CountActivities()
	if err != nil {
		return err
	}
	if n != activities {
		return fmt.Errorf("converted database holds %d activities, expected %d", n, activities)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, os.ErrNotExist)
}
