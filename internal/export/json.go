package export

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sadopc/fitarchive/internal/store"
	"github.com/sadopc/fitarchive/internal/units"
)

type jsonIndex struct {
	GeneratedAt string       `json:"generated_at"`
	UnitSystem  string       `json:"unit_system"`
	Count       int          `json:"count"`
	Activities  []jsonEntry  `json:"activities"`
	Records     []jsonRecord `json:"records"`
}

type jsonEntry struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	StartTime   string  `json:"start_time"`
	Sport       string  `json:"sport"`
	SubSport    string  `json:"sub_sport,omitempty"`
	DistanceM   float64 `json:"distance_meters"`
	Distance    string  `json:"distance"`
	DurationSec float64 `json:"duration_seconds"`
	Duration    string  `json:"duration"`
	Pace        string  `json:"pace"`
	Note        string  `json:"note,omitempty"`
	NoRecord    bool    `json:"norecord,omitempty"`
}

type jsonRecord struct {
	Sport      string  `json:"sport"`
	Metric     string  `json:"metric"`
	Value      float64 `json:"value"`
	ActivityID string  `json:"activity_id"`
	Date       string  `json:"date"`
}

// jsonActivity is the per-activity document.
type jsonActivity struct {
	jsonEntry
	FileName   string                `json:"file_name"`
	Ascent     string                `json:"ascent"`
	Summary    store.ActivitySummary `json:"summary"`
	ImportedAt string                `json:"imported_at"`
}

func entryFor(a store.Activity, system string) jsonEntry {
	return jsonEntry{
		ID:          a.ID,
		Name:        a.Name,
		StartTime:   a.Timestamp.UTC().Format(time.RFC3339),
		Sport:       a.Sport,
		SubSport:    a.SubSport,
		DistanceM:   a.Summary.Distance,
		Distance:    units.Distance(a.Summary.Distance, system),
		DurationSec: a.Summary.Duration,
		Duration:    units.Duration(a.Summary.Duration),
		Pace:        units.Pace(a.Summary.AvgSpeed, system),
		Note:        a.Note,
		NoRecord:    a.NoRecord,
	}
}

// IndexJSON writes the archive index, newest activity first.
func IndexJSON(activities []store.Activity, recs []store.Record, system string, now time.Time, path string) error {
	index := jsonIndex{
		GeneratedAt: now.UTC().Format(time.RFC3339),
		UnitSystem:  system,
		Count:       len(activities),
		Activities:  []jsonEntry{},
		Records:     []jsonRecord{},
	}
	for i := len(activities) - 1; i >= 0; i-- {
		index.Activities = append(index.Activities, entryFor(activities[i], system))
	}
	for _, r := range recs {
		index.Records = append(index.Records, jsonRecord{
			Sport:      r.Sport,
			Metric:     r.Metric,
			Value:      r.Value,
			ActivityID: r.ActivityID,
			Date:       r.Timestamp.UTC().Format(time.DateOnly),
		})
	}
	return writeJSON(index, path)
}

// ActivityJSON writes the document of one activity.
func ActivityJSON(a store.Activity, system, path string) error {
	return writeJSON(jsonActivity{
		jsonEntry:  entryFor(a, system),
		FileName:   a.FileName,
		Ascent:     units.Elevation(a.Summary.Ascent, system),
		Summary:    a.Summary,
		ImportedAt: a.ImportedAt.UTC().Format(time.RFC3339),
	}, path)
}

func writeJSON(v any, path string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write json file: %w", err)
	}
	return nil
}
