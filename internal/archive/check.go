package archive

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sadopc/fitarchive/internal/fitfile"
	"github.com/sadopc/fitarchive/internal/store"
)

// Failure is one problem found by Check. ActivityID is empty for problems
// that are not tied to a single activity.
type Failure struct {
	ActivityID string
	Path       string
	Err        error
}

func (f Failure) String() string {
	switch {
	case f.ActivityID != "":
		return fmt.Sprintf("%s (%s): %v", shortID(f.ActivityID), f.Path, f.Err)
	case f.Path != "":
		return fmt.Sprintf("%s: %v", f.Path, f.Err)
	}
	return f.Err.Error()
}

// Check verifies the stored files of the activities reference designates,
// or of the whole archive when reference is empty, and runs the storage
// engine's integrity check. It reports and never repairs. The error wraps
// ErrStorageCorruption when anything was found.
func (a *Archive) Check(ctx context.Context, reference string) ([]Failure, error) {
	var acts []store.Activity
	var err error
	if reference == "" {
		acts, err = a.store.ListActivities(store.ActivityFilter{})
	} else {
		acts, err = a.mustFind(reference)
	}
	if err != nil {
		return nil, err
	}

	var failures []Failure
	if err := a.store.Check(); err != nil {
		failures = append(failures, Failure{Err: err})
	}

	for _, act := range acts {
		if err := ctx.Err(); err != nil {
			return failures, err
		}
		if err := a.checkFile(act.Path, act.Fingerprint); err != nil {
			failures = append(failures, Failure{ActivityID: act.ID, Path: act.Path, Err: err})
			continue
		}
		fp, err := a.store.GetFingerprint(act.Fingerprint)
		switch {
		case errors.Is(err, store.ErrNotFound):
			failures = append(failures, Failure{ActivityID: act.ID, Path: act.Path, Err: errors.New("fingerprint missing from index")})
		case err != nil:
			return failures, err
		case fp.Status != store.StatusImported:
			failures = append(failures, Failure{ActivityID: act.ID, Path: act.Path, Err: fmt.Errorf("fingerprint marked %s", fp.Status)})
		}
	}

	if reference == "" {
		entries, err := a.store.ListMonitoring("", "")
		if err != nil {
			return failures, err
		}
		for _, m := range entries {
			if err := a.checkFile(m.Path, m.Fingerprint); err != nil {
				failures = append(failures, Failure{Path: m.Path, Err: err})
			}
		}
	}

	if len(failures) > 0 {
		return failures, fmt.Errorf("%w: %d problem(s)", ErrStorageCorruption, len(failures))
	}
	return nil, nil
}

func (a *Archive) checkFile(path, fingerprint string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if got := fitfile.Fingerprint(data); got != fingerprint {
		return fmt.Errorf("content changed: fingerprint %s", shortID(got))
	}
	if _, err := a.decoder.Decode(data); err != nil {
		return err
	}
	return nil
}
