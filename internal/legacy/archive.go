package legacy

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// ArchiveEntry is one activity listed in the flat metadata file used before
// activities were kept in a database. The FIT file itself lives in the
// data directory's fit/ folder under FitFile.
type ArchiveEntry struct {
	FitFile   string    `yaml:"fit_file"`
	Name      string    `yaml:"name,omitempty"`
	Sport     string    `yaml:"sport,omitempty"`
	SubSport  string    `yaml:"sub_sport,omitempty"`
	NoRecord  bool      `yaml:"norecord,omitempty"`
	Timestamp time.Time `yaml:"timestamp"`
}

// ReadArchive parses the metadata file at path and returns its entries
// ordered by timestamp, oldest first.
func ReadArchive(path string) ([]ArchiveEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read legacy archive: %w", err)
	}

	var entries []ArchiveEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse legacy archive %s: %w", path, err)
	}
	for i, e := range entries {
		if e.FitFile == "" {
			return nil, fmt.Errorf("parse legacy archive %s: entry %d has no fit_file", path, i)
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

// WriteArchive writes entries in the metadata file format.
func WriteArchive(path string, entries []ArchiveEntry) error {
	raw, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode legacy archive: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write legacy archive: %w", err)
	}
	return nil
}
