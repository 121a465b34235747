package migrate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/mod/semver"

	"github.com/sadopc/fitarchive/internal/logger"
	"github.com/sadopc/fitarchive/internal/records"
	"github.com/sadopc/fitarchive/internal/store"
)

// Step upgrades archive content written by releases older than Version.
// from and to are the stored and the running release.
type Step struct {
	Version string
	Apply   func(ctx context.Context, tx *store.Tx, from, to string) error
}

// SchemaUpgrader runs the steps between the stored and the running
// release. The steps and the version update share one transaction.
type SchemaUpgrader struct {
	Store   *store.Store
	Version string
	Steps   []Step
	// Defaults are config values written once, when an archive without a
	// version gets its first one. Keys the archive already holds are kept.
	Defaults map[string]string
}

// Run upgrades the archive. A missing version marks a fresh archive and is
// simply set; an equal or newer stored version leaves everything as is.
func (u *SchemaUpgrader) Run(ctx context.Context) error {
	running := canonical(u.Version)
	if !semver.IsValid(running) {
		return fmt.Errorf("%w: invalid running version %q", ErrMigrationFailure, u.Version)
	}

	err := u.Store.WithTx(ctx, func(tx *store.Tx) error {
		raw, err := tx.GetSetting(store.KeyVersion)
		if errors.Is(err, store.ErrNotFound) {
			// A converted archive has no version yet but keeps its settings.
			for k, v := range u.Defaults {
				_, err := tx.GetSetting(k)
				if err == nil {
					continue
				}
				if !errors.Is(err, store.ErrNotFound) {
					return err
				}
				if err := tx.SetSetting(k, v); err != nil {
					return err
				}
			}
			return tx.SetSetting(store.KeyVersion, u.Version)
		}
		if err != nil {
			return err
		}

		stored := canonical(raw)
		if !semver.IsValid(stored) {
			return fmt.Errorf("stored version %q is not a valid version", raw)
		}
		switch c := semver.Compare(stored, running); {
		case c == 0:
			return nil
		case c > 0:
			logger.Warn("archive was written by a newer release", zap.String("archive", raw), zap.String("running", u.Version))
			return nil
		}

		logger.Warn("upgrading archive", zap.String("from", raw), zap.String("to", u.Version))
		for _, s := range pending(u.Steps, stored, running) {
			if err := ctx.Err(); err != nil {
				return err
			}
			logger.Debug("applying upgrade step", zap.String("version", s.Version))
			if err := s.Apply(ctx, tx, raw, u.Version); err != nil {
				return fmt.Errorf("upgrade step %s: %w", s.Version, err)
			}
		}
		return tx.SetSetting(store.KeyVersion, u.Version)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMigrationFailure, err)
	}
	return nil
}

// pending returns the steps with stored < version <= running in ascending
// version order.
func pending(steps []Step, stored, running string) []Step {
	var out []Step
	for _, s := range steps {
		v := canonical(s.Version)
		if semver.Compare(v, stored) > 0 && semver.Compare(v, running) <= 0 {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return semver.Compare(canonical(out[i].Version), canonical(out[j].Version)) < 0
	})
	return out
}

func canonical(v string) string {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// DefaultSteps are the upgrades shipped with this release.
func DefaultSteps() []Step {
	return []Step{
		{Version: "1.1.0", Apply: normaliseSports},
		{Version: "1.2.0", Apply: recomputeRecords},
	}
}

// normaliseSports lower-cases sport names written by releases that kept
// the device's spelling.
func normaliseSports(_ context.Context, tx *store.Tx, _, _ string) error {
	acts, err := tx.ListActivities(store.ActivityFilter{})
	if err != nil {
		return err
	}
	for i := range acts {
		a := &acts[i]
		sport, sub := strings.ToLower(a.Sport), strings.ToLower(a.SubSport)
		if sport == a.Sport && sub == a.SubSport {
			continue
		}
		a.Sport, a.SubSport = sport, sub
		if err := tx.UpdateActivity(a); err != nil {
			return err
		}
	}
	return nil
}

// recomputeRecords rebuilds the records after the fastest-time metrics
// were added.
func recomputeRecords(_ context.Context, tx *store.Tx, _, _ string) error {
	acts, err := tx.ListActivities(store.ActivityFilter{})
	if err != nil {
		return err
	}
	return tx.ReplaceRecords(records.Recompute(acts).Records())
}
