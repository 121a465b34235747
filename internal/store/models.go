package store

import "time"

// Fingerprint kinds.
const (
	KindActivity   = "activity"
	KindMonitoring = "monitoring"
)

// Fingerprint statuses.
const (
	StatusImported   = "imported"
	StatusDeleted    = "deleted"
	StatusSuperseded = "superseded"
)

type Activity struct {
	ID          string
	Fingerprint string
	Name        string
	FileName    string
	Path        string
	Timestamp   time.Time
	Sport       string
	SubSport    string
	Note        string
	NoRecord    bool
	Summary     ActivitySummary
	ImportedAt  time.Time
}

// ActivitySummary is the decoded session content kept alongside an activity.
type ActivitySummary struct {
	Distance     float64            `json:"distance"`  // meters
	Duration     float64            `json:"duration"`  // seconds
	Ascent       float64            `json:"ascent"`    // meters
	AvgSpeed     float64            `json:"avg_speed"` // m/s
	AvgHeartRate int                `json:"avg_heart_rate,omitempty"`
	Calories     int                `json:"calories,omitempty"`
	BestTimes    map[string]float64 `json:"best_times,omitempty"` // distance label -> seconds
}

type MonitoringEntry struct {
	Date        string // YYYY-MM-DD
	Fingerprint string
	FileName    string
	Path        string
	Summary     MonitoringSummary
	ImportedAt  time.Time
}

type MonitoringSummary struct {
	Steps          int     `json:"steps"`
	Distance       float64 `json:"distance"` // meters
	ActiveCalories int     `json:"active_calories"`
	Samples        int     `json:"samples"`
}

type Fingerprint struct {
	Digest     string
	Kind       string
	Status     string
	ImportedAt time.Time
	// A forced re-import keeps the status and import time of the entry it
	// superseded. Both are empty for a first import.
	PreviousStatus     string
	PreviousImportedAt time.Time
}

// Record is the best known value of one metric for one sport.
type Record struct {
	Sport      string
	Metric     string
	Value      float64
	ActivityID string
	Timestamp  time.Time
}

// ActivityFilter is used to filter activities in queries.
type ActivityFilter struct {
	From *time.Time
	To   *time.Time
}

// Config is the archive-wide configuration record.
type Config struct {
	Version      string
	UnitSystem   string
	WeekStartDay int
	DataDir      string
	HTMLDir      string
	ImportDir    string
}
