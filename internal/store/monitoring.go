package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PutMonitoring inserts the entry, replacing any entry for the same date.
func (o ops) PutMonitoring(m *MonitoringEntry) error {
	summary, err := json.Marshal(m.Summary)
	if err != nil {
		return fmt.Errorf("encode monitoring summary: %w", err)
	}
	_, err = o.q.Exec(
		`INSERT INTO monitoring (date, fingerprint, file_name, path, summary, imported_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(date) DO UPDATE SET fingerprint = excluded.fingerprint, file_name = excluded.file_name,
		 path = excluded.path, summary = excluded.summary, imported_at = excluded.imported_at`,
		m.Date, m.Fingerprint, m.FileName, m.Path, string(summary), formatTime(m.ImportedAt),
	)
	if err != nil {
		return fmt.Errorf("put monitoring %s: %w", m.Date, err)
	}
	return nil
}

func (o ops) GetMonitoring(date string) (*MonitoringEntry, error) {
	row := o.q.QueryRow(`SELECT date, fingerprint, file_name, path, summary, imported_at FROM monitoring WHERE date = ?`, date)
	m, err := scanMonitoring(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get monitoring %s: %w", date, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get monitoring %s: %w", date, err)
	}
	return m, nil
}

// ListMonitoring returns entries with from <= date < to, ordered by date.
// Empty bounds are open.
func (o ops) ListMonitoring(from, to string) ([]MonitoringEntry, error) {
	query := `SELECT date, fingerprint, file_name, path, summary, imported_at FROM monitoring WHERE 1=1`
	var args []any
	if from != "" {
		query += ` AND date >= ?`
		args = append(args, from)
	}
	if to != "" {
		query += ` AND date < ?`
		args = append(args, to)
	}
	query += ` ORDER BY date`

	rows, err := o.q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list monitoring: %w", err)
	}
	defer rows.Close()

	var entries []MonitoringEntry
	for rows.Next() {
		m, err := scanMonitoring(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *m)
	}
	return entries, rows.Err()
}

func scanMonitoring(row scanner) (*MonitoringEntry, error) {
	m := &MonitoringEntry{}
	var summary, importedAt string
	if err := row.Scan(&m.Date, &m.Fingerprint, &m.FileName, &m.Path, &summary, &importedAt); err != nil {
		return nil, err
	}
	m.ImportedAt = parseTime(importedAt)
	if err := json.Unmarshal([]byte(summary), &m.Summary); err != nil {
		return nil, fmt.Errorf("decode monitoring summary of %s: %w", m.Date, err)
	}
	return m, nil
}
