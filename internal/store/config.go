package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// Config keys.
const (
	KeyVersion      = "version"
	KeyUnitSystem   = "unit_system"
	KeyWeekStartDay = "week_start_day"
	KeyDataDir      = "data_dir"
	KeyHTMLDir      = "html_dir"
	KeyImportDir    = "import_dir"
)

// Values LoadConfig reports for keys the archive has never stored.
const (
	DefaultUnitSystem   = "metric"
	DefaultWeekStartDay = 1
)

type Setting struct {
	Key   string
	Value string
}

func (o ops) GetSetting(key string) (string, error) {
	var value string
	err := o.q.QueryRow(`SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("get setting %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, nil
}

func (o ops) SetSetting(key, value string) error {
	_, err := o.q.Exec(
		`INSERT INTO config (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

func (o ops) GetAllSettings() ([]Setting, error) {
	rows, err := o.q.Query(`SELECT key, value FROM config ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	var settings []Setting
	for rows.Next() {
		var s Setting
		if err := rows.Scan(&s.Key, &s.Value); err != nil {
			return nil, err
		}
		settings = append(settings, s)
	}
	return settings, rows.Err()
}

// LoadConfig reads the whole config record. A missing unit system or week
// start gets its default; other missing keys stay empty.
func (o ops) LoadConfig() (Config, error) {
	settings, err := o.GetAllSettings()
	if err != nil {
		return Config{}, err
	}

	c := Config{UnitSystem: DefaultUnitSystem, WeekStartDay: DefaultWeekStartDay}
	for _, s := range settings {
		switch s.Key {
		case KeyVersion:
			c.Version = s.Value
		case KeyUnitSystem:
			c.UnitSystem = s.Value
		case KeyWeekStartDay:
			day, err := strconv.Atoi(s.Value)
			if err != nil || day < 0 || day > 6 {
				return Config{}, fmt.Errorf("invalid %s %q", KeyWeekStartDay, s.Value)
			}
			c.WeekStartDay = day
		case KeyDataDir:
			c.DataDir = s.Value
		case KeyHTMLDir:
			c.HTMLDir = s.Value
		case KeyImportDir:
			c.ImportDir = s.Value
		}
	}
	return c, nil
}
