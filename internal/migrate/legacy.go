package migrate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/sadopc/fitarchive/internal/archive"
	"github.com/sadopc/fitarchive/internal/ingest"
	"github.com/sadopc/fitarchive/internal/legacy"
	"github.com/sadopc/fitarchive/internal/logger"
	"github.com/sadopc/fitarchive/internal/store"
)

// LegacyArchiveFile is the metadata file of releases that kept activities
// in YAML, relative to the data directory.
var LegacyArchiveFile = filepath.Join("metadata", "activities.yml")

// LegacyImporter moves activities listed in the YAML metadata file into
// the archive. Each activity is imported in its own transaction and its
// file is moved out of fit/ before that transaction commits, so a restart
// only sees the activities that still need importing.
type LegacyImporter struct {
	Archive *archive.Archive
	DataDir string
}

// LegacyReport summarises one run.
type LegacyReport struct {
	Imported   int
	Duplicates int
	Missing    int
	Failed     []error
}

// Run imports the legacy archive if there is one and renames the metadata
// file to activities.yml.bak afterwards.
func (l *LegacyImporter) Run(ctx context.Context) (*LegacyReport, error) {
	report := &LegacyReport{}
	path := filepath.Join(l.DataDir, LegacyArchiveFile)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return report, nil
	}

	entries, err := legacy.ReadArchive(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMigrationFailure, err)
	}
	logger.Warn("importing legacy archive", zap.Int("activities", len(entries)))

	oldDir := filepath.Join(l.DataDir, "old_fit")
	if err := os.MkdirAll(oldDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMigrationFailure, err)
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("%w: %w", ErrMigrationFailure, err)
		}
		l.importEntry(ctx, e, oldDir, report)
	}

	if err := os.Rename(path, path+".bak"); err != nil {
		return report, fmt.Errorf("%w: %w", ErrMigrationFailure, err)
	}
	logger.Warn("legacy archive imported",
		zap.Int("imported", report.Imported), zap.Int("duplicates", report.Duplicates),
		zap.Int("missing", report.Missing), zap.Int("failed", len(report.Failed)))
	return report, nil
}

func (l *LegacyImporter) importEntry(ctx context.Context, e legacy.ArchiveEntry, oldDir string, report *LegacyReport) {
	src := filepath.Join(l.DataDir, "fit", e.FitFile)
	dst := filepath.Join(oldDir, e.FitFile)

	data, err := os.ReadFile(src)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("legacy activity file is missing", zap.String("file", e.FitFile))
		report.Missing++
		return
	}
	if err != nil {
		report.Failed = append(report.Failed, fmt.Errorf("%s: %w", e.FitFile, err))
		return
	}

	moved := false
	_, err = l.Archive.ImportData(ctx, src, data, archive.ImportOptions{
		Name: e.Name,
		Adjust: func(tx *store.Tx, res *ingest.Result) error {
			if a := res.Activity; a != nil {
				if e.Sport != "" {
					a.Sport = e.Sport
				}
				if e.SubSport != "" {
					a.SubSport = e.SubSport
				}
				a.NoRecord = e.NoRecord
				if err := tx.UpdateActivity(a); err != nil {
					return err
				}
			}
			if err := os.Rename(src, dst); err != nil {
				return err
			}
			moved = true
			return nil
		},
	})

	switch {
	case err == nil:
		report.Imported++
	case errors.Is(err, ingest.ErrAlreadyImported):
		logger.Warn("legacy activity already imported", zap.String("file", e.FitFile))
		report.Duplicates++
		if err := os.Rename(src, dst); err != nil {
			report.Failed = append(report.Failed, fmt.Errorf("%s: %w", e.FitFile, err))
		}
	default:
		if moved {
			if rerr := os.Rename(dst, src); rerr != nil {
				logger.Warn("cannot move legacy file back", zap.String("file", e.FitFile), zap.Error(rerr))
			}
		}
		logger.Warn("cannot import legacy activity", zap.String("file", e.FitFile), zap.Error(err))
		report.Failed = append(report.Failed, fmt.Errorf("%s: %w", e.FitFile, err))
	}
}
