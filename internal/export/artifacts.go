package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sadopc/fitarchive/internal/archive"
	"github.com/sadopc/fitarchive/internal/logger"
)

const (
	IndexFile     = "index.json"
	CSVFile       = "activities.csv"
	ActivitiesDir = "activities"
)

// Artifacts keeps the output directory in step with the archive: the
// index, the CSV table and one JSON document per activity.
type Artifacts struct {
	now func() time.Time
}

var _ archive.Regenerator = (*Artifacts)(nil)

func NewArtifacts() *Artifacts {
	return &Artifacts{now: time.Now}
}

// ActivityPath is the document path of activity id inside dir.
func ActivityPath(dir, id string) string {
	return filepath.Join(dir, ActivitiesDir, id+".json")
}

func (g *Artifacts) Regenerate(ctx context.Context, c archive.Change) error {
	dir := c.Config.HTMLDir
	if dir == "" {
		return errors.New("no output directory configured")
	}
	if err := os.MkdirAll(filepath.Join(dir, ActivitiesDir), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	system := c.Config.UnitSystem

	present := make(map[string]bool, len(c.Activities))
	for _, a := range c.Activities {
		present[a.ID] = true
	}

	for _, a := range c.Removed {
		if present[a.ID] {
			continue
		}
		if err := os.Remove(ActivityPath(dir, a.ID)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", a.ID, err)
		}
	}

	changed := c.Changed
	if c.Full {
		changed = c.Activities
		if err := removeStale(dir, present); err != nil {
			return err
		}
	}
	for _, a := range changed {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := ActivityJSON(a, system, ActivityPath(dir, a.ID)); err != nil {
			return fmt.Errorf("write %s: %w", a.ID, err)
		}
	}

	if err := IndexJSON(c.Activities, c.Records, system, g.now(), filepath.Join(dir, IndexFile)); err != nil {
		return err
	}
	if err := ActivitiesCSV(c.Activities, system, filepath.Join(dir, CSVFile)); err != nil {
		return err
	}
	logger.Debug("regenerated artifacts",
		zap.String("dir", dir), zap.Int("changed", len(changed)), zap.Int("removed", len(c.Removed)))
	return nil
}

func removeStale(dir string, present map[string]bool) error {
	entries, err := os.ReadDir(filepath.Join(dir, ActivitiesDir))
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	for _, e := range entries {
		id, ok := strings.CutSuffix(e.Name(), ".json")
		if !ok || present[id] {
			continue
		}
		if err := os.Remove(filepath.Join(dir, ActivitiesDir, e.Name())); err != nil {
			return fmt.Errorf("remove stale document: %w", err)
		}
	}
	return nil
}
