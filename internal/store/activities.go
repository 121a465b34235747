package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

const activityColumns = `id, fingerprint, name, file_name, path, timestamp, sport, sub_sport, note, norecord, summary, imported_at`

func (o ops) InsertActivity(a *Activity) error {
	summary, err := json.Marshal(a.Summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	_, err = o.q.Exec(
		`INSERT INTO activities (`+activityColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Fingerprint, a.Name, a.FileName, a.Path, formatTime(a.Timestamp),
		a.Sport, a.SubSport, a.Note, boolToInt(a.NoRecord), string(summary), formatTime(a.ImportedAt),
	)
	if err != nil {
		return fmt.Errorf("insert activity %s: %w", a.ID, err)
	}
	return nil
}

func (o ops) GetActivity(id string) (*Activity, error) {
	row := o.q.QueryRow(`SELECT `+activityColumns+` FROM activities WHERE id = ?`, id)
	a, err := scanActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get activity %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get activity %s: %w", id, err)
	}
	return a, nil
}

// ListActivities returns activities in index order: ascending timestamp,
// ties broken by ID.
func (o ops) ListActivities(f ActivityFilter) ([]Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE 1=1`
	var args []any

	if f.From != nil {
		query += ` AND timestamp >= ?`
		args = append(args, formatTime(*f.From))
	}
	if f.To != nil {
		query += ` AND timestamp < ?`
		args = append(args, formatTime(*f.To))
	}
	query += ` ORDER BY timestamp, id`

	rows, err := o.q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	var activities []Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, *a)
	}
	return activities, rows.Err()
}

// ActivitiesByFingerprint returns all activities created from the same bytes.
func (o ops) ActivitiesByFingerprint(digest string) ([]Activity, error) {
	rows, err := o.q.Query(`SELECT `+activityColumns+` FROM activities WHERE fingerprint = ? ORDER BY id`, digest)
	if err != nil {
		return nil, fmt.Errorf("activities by fingerprint: %w", err)
	}
	defer rows.Close()

	var activities []Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, *a)
	}
	return activities, rows.Err()
}

func (o ops) CountActivities() (int, error) {
	var n int
	if err := o.q.QueryRow(`SELECT COUNT(*) FROM activities`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count activities: %w", err)
	}
	return n, nil
}

// UpdateActivity writes the user-editable attributes of a.
func (o ops) UpdateActivity(a *Activity) error {
	res, err := o.q.Exec(
		`UPDATE activities SET name = ?, sport = ?, sub_sport = ?, note = ?, norecord = ? WHERE id = ?`,
		a.Name, a.Sport, a.SubSport, a.Note, boolToInt(a.NoRecord), a.ID,
	)
	if err != nil {
		return fmt.Errorf("update activity %s: %w", a.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update activity %s: %w", a.ID, ErrNotFound)
	}
	return nil
}

func (o ops) DeleteActivity(id string) error {
	res, err := o.q.Exec(`DELETE FROM activities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete activity %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete activity %s: %w", id, ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanActivity(row scanner) (*Activity, error) {
	a := &Activity{}
	var timestamp, importedAt, summary string
	var norecord int
	err := row.Scan(&a.ID, &a.Fingerprint, &a.Name, &a.FileName, &a.Path, &timestamp,
		&a.Sport, &a.SubSport, &a.Note, &norecord, &summary, &importedAt)
	if err != nil {
		return nil, err
	}
	a.NoRecord = norecord == 1
	a.Timestamp = parseTime(timestamp)
	a.ImportedAt = parseTime(importedAt)
	if err := json.Unmarshal([]byte(summary), &a.Summary); err != nil {
		return nil, fmt.Errorf("decode summary of %s: %w", a.ID, err)
	}
	return a, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
