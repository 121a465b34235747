package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sadopc/fitarchive/internal/store"
	"github.com/sadopc/fitarchive/internal/units"
)

// ActivitiesCSV writes one row per activity in index order.
func ActivitiesCSV(activities []store.Activity, system, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	// Header
	if err := w.Write([]string{"ID", "Name", "Start", "Sport", "Sub Sport", "Distance (m)", "Distance", "Duration (s)", "Duration", "Ascent", "Note"}); err != nil {
		return err
	}

	for _, a := range activities {
		row := []string{
			a.ID,
			a.Name,
			a.Timestamp.UTC().Format(time.RFC3339),
			a.Sport,
			a.SubSport,
			strconv.FormatFloat(a.Summary.Distance, 'f', 1, 64),
			units.Distance(a.Summary.Distance, system),
			strconv.FormatFloat(a.Summary.Duration, 'f', 0, 64),
			units.Duration(a.Summary.Duration),
			units.Elevation(a.Summary.Ascent, system),
			a.Note,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}
