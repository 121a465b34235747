package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/sadopc/fitarchive/internal/logger"
	"github.com/sadopc/fitarchive/internal/records"
	"github.com/sadopc/fitarchive/internal/store"
)

// Attribute names accepted by SetAttribute.
const (
	AttrName     = "name"
	AttrType     = "type"
	AttrSubType  = "subtype"
	AttrNote     = "note"
	AttrNoRecord = "norecord"
)

// attributes maps each settable attribute to whether changing it can move
// a record.
var attributes = map[string]bool{
	AttrName:     false,
	AttrType:     true,
	AttrSubType:  true,
	AttrNote:     false,
	AttrNoRecord: true,
}

// Delete removes the activities reference designates. Their fingerprints
// stay in the index marked deleted, so the same bytes are only imported
// again when forced.
func (a *Archive) Delete(ctx context.Context, reference string) ([]store.Activity, error) {
	acts, err := a.mustFind(reference)
	if err != nil {
		return nil, err
	}

	var orphaned []string
	err = a.store.WithTx(ctx, func(tx *store.Tx) error {
		orphaned = orphaned[:0]
		for _, act := range acts {
			if err := tx.DeleteActivity(act.ID); err != nil {
				return err
			}
		}
		for _, act := range acts {
			left, err := tx.ActivitiesByFingerprint(act.Fingerprint)
			if err != nil {
				return err
			}
			if len(left) > 0 {
				continue
			}
			err = tx.SetFingerprintStatus(act.Fingerprint, store.StatusDeleted)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			orphaned = append(orphaned, act.Path)
		}

		remaining, err := tx.ListActivities(store.ActivityFilter{})
		if err != nil {
			return err
		}
		current, err := tx.ListRecords()
		if err != nil {
			return err
		}
		set := records.FromRecords(current)
		for _, act := range acts {
			set = records.Delete(set, act, remaining)
		}
		return saveRecords(tx, set)
	})
	if err != nil {
		return nil, fmt.Errorf("delete %s: %w", reference, err)
	}

	for _, path := range orphaned {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("cannot remove content file", zap.String("path", path), zap.Error(err))
		}
	}
	for _, act := range acts {
		logger.Info("deleted activity", zap.String("id", shortID(act.ID)), zap.String("name", act.Name))
	}
	a.regenerate(ctx, Change{Removed: acts})
	return acts, nil
}

// Rename sets the name of every activity reference designates.
func (a *Archive) Rename(ctx context.Context, reference, name string) ([]store.Activity, error) {
	return a.SetAttribute(ctx, reference, AttrName, name)
}

// SetAttribute changes one attribute of every activity reference
// designates and returns the updated activities.
func (a *Archive) SetAttribute(ctx context.Context, reference, key, value string) ([]store.Activity, error) {
	affectsRecords, ok := attributes[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAttribute, key)
	}
	var noRecord bool
	if key == AttrNoRecord {
		switch value {
		case "true":
			noRecord = true
		case "false":
		default:
			return nil, fmt.Errorf("%w: %s must be true or false, got %q", ErrInvalidValue, key, value)
		}
	}
	if key == AttrName && value == "" {
		return nil, fmt.Errorf("%w: %s must not be empty", ErrInvalidValue, key)
	}

	acts, err := a.mustFind(reference)
	if err != nil {
		return nil, err
	}

	err = a.store.WithTx(ctx, func(tx *store.Tx) error {
		for i := range acts {
			act := &acts[i]
			switch key {
			case AttrName:
				act.Name = value
			case AttrType:
				act.Sport = value
			case AttrSubType:
				act.SubSport = value
			case AttrNote:
				act.Note = value
			case AttrNoRecord:
				act.NoRecord = noRecord
			}
			if err := tx.UpdateActivity(act); err != nil {
				return err
			}
		}
		if affectsRecords {
			return recomputeRecords(tx)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("set %s on %s: %w", key, reference, err)
	}

	a.regenerate(ctx, Change{Changed: acts})
	return acts, nil
}

// SetUnits switches the unit system used by reports and artifacts.
func (a *Archive) SetUnits(ctx context.Context, unit string) error {
	if unit != "metric" && unit != "statute" {
		return fmt.Errorf("%w: %q", ErrInvalidUnitSystem, unit)
	}
	if err := a.setConfig(ctx, store.KeyUnitSystem, unit); err != nil {
		return err
	}
	a.regenerate(ctx, Change{Full: true})
	return nil
}

// SetHTMLDir moves artifact output to dir and rebuilds everything there.
func (a *Archive) SetHTMLDir(ctx context.Context, dir string) error {
	if dir == "" {
		return ErrEmptyHTMLDirectory
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", dir, err)
	}
	if err := a.setConfig(ctx, store.KeyHTMLDir, abs); err != nil {
		return err
	}
	a.regenerate(ctx, Change{Full: true})
	return nil
}

// RememberImportDir stores dir as the default import source.
func (a *Archive) RememberImportDir(ctx context.Context, dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", dir, err)
	}
	return a.setConfig(ctx, store.KeyImportDir, abs)
}

func (a *Archive) setConfig(ctx context.Context, key, value string) error {
	return a.store.WithTx(ctx, func(tx *store.Tx) error {
		return tx.SetSetting(key, value)
	})
}
