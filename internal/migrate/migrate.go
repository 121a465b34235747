// Package migrate brings an archive written by an older release up to
// date before any command touches it. Each stage is idempotent and may be
// interrupted at any point; the next start picks up where it stopped.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/sadopc/fitarchive/internal/archive"
	"github.com/sadopc/fitarchive/internal/logger"
	"github.com/sadopc/fitarchive/internal/store"
)

// ErrMigrationFailure marks failures that leave the archive unusable by
// this release.
var ErrMigrationFailure = errors.New("archive migration failed")

// Pipeline runs the engine migration, the schema upgrade and the legacy
// import in that order and hands out the opened archive.
type Pipeline struct {
	DataDir string
	// Version is the running release, e.g. "1.2.0".
	Version string
	// Steps defaults to DefaultSteps.
	Steps []Step
	// Defaults fill config keys missing from an archive without a version.
	Defaults map[string]string
	Archive  archive.Options
}

// DatabaseDir is the directory that holds the current storage engine.
func DatabaseDir(dataDir string) string {
	return filepath.Join(dataDir, "database")
}

// Open migrates the archive in p.DataDir and opens it. The caller owns the
// returned store.
func (p *Pipeline) Open(ctx context.Context) (*store.Store, *archive.Archive, error) {
	engine := &EngineMigrator{DataDir: p.DataDir}
	if err := engine.Run(ctx); err != nil {
		return nil, nil, err
	}

	st, err := store.Open(DatabaseDir(p.DataDir))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrMigrationFailure, err)
	}

	steps := p.Steps
	if steps == nil {
		steps = DefaultSteps()
	}
	upgrader := &SchemaUpgrader{Store: st, Version: p.Version, Steps: steps, Defaults: p.Defaults}
	if err := upgrader.Run(ctx); err != nil {
		st.Close()
		return nil, nil, err
	}

	opts := p.Archive
	opts.DataDir = p.DataDir
	a := archive.New(st, opts)

	importer := &LegacyImporter{Archive: a, DataDir: p.DataDir}
	report, err := importer.Run(ctx)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	for _, f := range report.Failed {
		logger.Warn("legacy activity not imported", zap.Error(f))
	}
	return st, a, nil
}
