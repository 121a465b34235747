package store

import "fmt"

// ReplaceRecords swaps the persisted record set for records. Call it inside
// a transaction so readers never observe a partial set.
func (o ops) ReplaceRecords(records []Record) error {
	if _, err := o.q.Exec(`DELETE FROM records`); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	for _, r := range records {
		_, err := o.q.Exec(
			`INSERT INTO records (sport, metric, value, activity_id, timestamp) VALUES (?, ?, ?, ?, ?)`,
			r.Sport, r.Metric, r.Value, r.ActivityID, formatTime(r.Timestamp),
		)
		if err != nil {
			return fmt.Errorf("insert record %s/%s: %w", r.Sport, r.Metric, err)
		}
	}
	return nil
}

func (o ops) ListRecords() ([]Record, error) {
	rows, err := o.q.Query(`SELECT sport, metric, value, activity_id, timestamp FROM records ORDER BY sport, metric`)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var timestamp string
		if err := rows.Scan(&r.Sport, &r.Metric, &r.Value, &r.ActivityID, &timestamp); err != nil {
			return nil, err
		}
		r.Timestamp = parseTime(timestamp)
		records = append(records, r)
	}
	return records, rows.Err()
}
