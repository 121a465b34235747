package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const currentVersion = 2

// FileName is the name of the SQLite file inside an archive's database
// directory.
const FileName = "archive.db"

var (
	// ErrNotFound is returned when a keyed lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrCorrupt is returned by Check when the engine reports damage.
	ErrCorrupt = errors.New("database integrity check failed")
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// ops holds the entity operations shared by Store and Tx.
type ops struct {
	q querier
}

type Store struct {
	ops
	db   *sql.DB
	path string
}

// Tx is an open read-write transaction. Entity methods on a Tx only become
// visible to other readers once WithTx commits.
type Tx struct {
	ops
	tx *sql.Tx
}

// New opens (or creates) the SQLite database at dbPath and runs migrations.
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", p, err)
		}
	}

	s := &Store{ops: ops{q: db}, db: db, path: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// NewMemory creates an in-memory store for testing.
func NewMemory() (*Store, error) {
	return New(":memory:")
}

// Open opens the archive database that lives in directory dir.
func Open(dir string) (*Store, error) {
	return New(filepath.Join(dir, FileName))
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// WithTx runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise, including on panic.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			sqlTx.Rollback()
		}
	}()

	if err = fn(&Tx{ops: ops{q: sqlTx}, tx: sqlTx}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Sync flushes the write-ahead log into the main database file.
func (s *Store) Sync() error {
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("checkpoint wal: %w", err)
	}
	return nil
}

// Check runs SQLite's structural integrity check. It reports problems and
// never repairs them.
func (s *Store) Check() error {
	rows, err := s.db.Query("PRAGMA integrity_check")
	if err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	defer rows.Close()

	var problems []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return fmt.Errorf("integrity check: %w", err)
		}
		if line != "ok" {
			problems = append(problems, line)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrCorrupt, strings.Join(problems, "; "))
	}
	return nil
}

// Compact rebuilds the database file to reclaim free pages.
func (s *Store) Compact() error {
	if _, err := s.db.Exec("VACUUM"); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}

func (s *Store) migrate() error {
	var version int
	err := s.db.QueryRow("PRAGMA user_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	if version >= currentVersion {
		return nil
	}

	if version < 1 {
		if err := s.migrateV1(); err != nil {
			return err
		}
	}
	if version < 2 {
		if err := s.migrateV2(); err != nil {
			return err
		}
	}

	_, err = s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentVersion))
	return err
}

func (s *Store) migrateV1() error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS config (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS fingerprints (
		digest      TEXT PRIMARY KEY,
		kind        TEXT NOT NULL,
		status      TEXT NOT NULL,
		imported_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS activities (
		id          TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		name        TEXT NOT NULL,
		file_name   TEXT NOT NULL,
		path        TEXT NOT NULL,
		timestamp   TEXT NOT NULL,
		sport       TEXT NOT NULL DEFAULT '',
		sub_sport   TEXT NOT NULL DEFAULT '',
		note        TEXT NOT NULL DEFAULT '',
		norecord    INTEGER NOT NULL DEFAULT 0,
		summary     TEXT NOT NULL DEFAULT '{}',
		imported_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_activities_timestamp   ON activities(timestamp, id);
	CREATE INDEX IF NOT EXISTS idx_activities_fingerprint ON activities(fingerprint);

	CREATE TABLE IF NOT EXISTS monitoring (
		date        TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		file_name   TEXT NOT NULL,
		path        TEXT NOT NULL,
		summary     TEXT NOT NULL DEFAULT '{}',
		imported_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS records (
		sport       TEXT NOT NULL,
		metric      TEXT NOT NULL,
		value       REAL NOT NULL,
		activity_id TEXT NOT NULL,
		timestamp   TEXT NOT NULL,
		PRIMARY KEY (sport, metric)
	);
	`
	_, err := s.db.Exec(ddl)
	return err
}

// migrateV2 records what a forced re-import superseded.
func (s *Store) migrateV2() error {
	const ddl = `
	ALTER TABLE fingerprints ADD COLUMN previous_status      TEXT NOT NULL DEFAULT '';
	ALTER TABLE fingerprints ADD COLUMN previous_imported_at TEXT NOT NULL DEFAULT '';
	`
	_, err := s.db.Exec(ddl)
	return err
}

// DefaultDataDir returns ~/.fitarchive
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".fitarchive"), nil
}

const timeLayout = "2006-01-02T15:04:05Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// formatOptionalTime stores the zero time as an empty string.
func formatOptionalTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return formatTime(t)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}
