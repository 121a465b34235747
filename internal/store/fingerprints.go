package store

import (
	"database/sql"
	"errors"
	"fmt"
)

func (o ops) GetFingerprint(digest string) (*Fingerprint, error) {
	f := &Fingerprint{}
	var importedAt, previousAt string
	err := o.q.QueryRow(
		`SELECT digest, kind, status, imported_at, previous_status, previous_imported_at
		 FROM fingerprints WHERE digest = ?`, digest,
	).Scan(&f.Digest, &f.Kind, &f.Status, &importedAt, &f.PreviousStatus, &previousAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get fingerprint %s: %w", digest, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get fingerprint %s: %w", digest, err)
	}
	f.ImportedAt = parseTime(importedAt)
	f.PreviousImportedAt = parseTime(previousAt)
	return f, nil
}

// PutFingerprint inserts or overwrites the index entry for f.Digest.
func (o ops) PutFingerprint(f Fingerprint) error {
	_, err := o.q.Exec(
		`INSERT INTO fingerprints (digest, kind, status, imported_at, previous_status, previous_imported_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(digest) DO UPDATE SET kind = excluded.kind, status = excluded.status,
		   imported_at = excluded.imported_at, previous_status = excluded.previous_status,
		   previous_imported_at = excluded.previous_imported_at`,
		f.Digest, f.Kind, f.Status, formatTime(f.ImportedAt), f.PreviousStatus, formatOptionalTime(f.PreviousImportedAt),
	)
	if err != nil {
		return fmt.Errorf("put fingerprint %s: %w", f.Digest, err)
	}
	return nil
}

func (o ops) SetFingerprintStatus(digest, status string) error {
	res, err := o.q.Exec(`UPDATE fingerprints SET status = ? WHERE digest = ?`, status, digest)
	if err != nil {
		return fmt.Errorf("set fingerprint status %s: %w", digest, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set fingerprint status %s: %w", digest, ErrNotFound)
	}
	return nil
}

func (o ops) ListFingerprints() ([]Fingerprint, error) {
	rows, err := o.q.Query(`SELECT digest, kind, status, imported_at, previous_status, previous_imported_at
		FROM fingerprints ORDER BY digest`)
	if err != nil {
		return nil, fmt.Errorf("list fingerprints: %w", err)
	}
	defer rows.Close()

	var fps []Fingerprint
	for rows.Next() {
		var f Fingerprint
		var importedAt, previousAt string
		if err := rows.Scan(&f.Digest, &f.Kind, &f.Status, &importedAt, &f.PreviousStatus, &previousAt); err != nil {
			return nil, err
		}
		f.ImportedAt = parseTime(importedAt)
		f.PreviousImportedAt = parseTime(previousAt)
		fps = append(fps, f)
	}
	return fps, rows.Err()
}
