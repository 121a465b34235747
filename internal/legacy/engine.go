// Package legacy reads the archive formats of earlier releases: the Badger
// key/value engine and the flat activities.yml metadata file.
package legacy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/sadopc/fitarchive/internal/logger"
	"github.com/sadopc/fitarchive/internal/store"
)

// Key prefixes of the Badger layout. Values are JSON documents, except for
// config values which are raw strings.
const (
	PrefixConfig      = "config/"
	PrefixActivity    = "activity/"
	PrefixMonitoring  = "monitoring/"
	PrefixFingerprint = "fingerprint/"
)

// Marker is the file whose presence identifies a Badger directory.
const Marker = "MANIFEST"

// IsEngine reports whether dir holds a Badger database.
func IsEngine(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, Marker))
	return err == nil
}

// zapLogger routes Badger's internal logging to zap. Badger is chatty at
// info level, so info goes to debug.
type zapLogger struct {
	l *zap.SugaredLogger
}

func (z zapLogger) Errorf(format string, args ...interface{})   { z.l.Errorf(format, args...) }
func (z zapLogger) Warningf(format string, args ...interface{}) { z.l.Warnf(format, args...) }
func (z zapLogger) Infof(format string, args ...interface{})    { z.l.Debugf(format, args...) }
func (z zapLogger) Debugf(format string, args ...interface{})   { z.l.Debugf(format, args...) }

// Engine is an open Badger archive.
type Engine struct {
	db   *badger.DB
	path string
}

// OpenEngine opens (or creates) the Badger database in path.
func OpenEngine(path string) (*Engine, error) {
	if path == "" {
		return nil, errors.New("path is required for legacy database")
	}
	if err := os.MkdirAll(path, 0o750); err != nil {
		return nil, fmt.Errorf("create database directory %s: %w", path, err)
	}
	return open(path, false)
}

// OpenEngineReadOnly opens an existing Badger database without writing to
// its directory. Put and WithTxn fail on the returned engine.
func OpenEngineReadOnly(path string) (*Engine, error) {
	if !IsEngine(path) {
		return nil, fmt.Errorf("open badger database: %s has no %s", path, Marker)
	}
	return open(path, true)
}

func open(path string, readOnly bool) (*Engine, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(readOnly).
		WithSyncWrites(!readOnly).
		WithNumVersionsToKeep(1).
		WithLogger(zapLogger{l: logger.Default().Named("badger").Sugar()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Engine{db: db, path: path}, nil
}

func (e *Engine) Close() error {
	return e.db.Close()
}

func (e *Engine) Path() string {
	return e.path
}

// WithTxn runs fn in a read-write transaction that commits when fn
// returns nil.
func (e *Engine) WithTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	txn := e.db.NewTransaction(true)
	defer txn.Discard()

	if err := fn(txn); err != nil {
		return err
	}
	return txn.Commit()
}

// Put stores value under key. Strings are written as-is, everything else
// as JSON.
func (e *Engine) Put(ctx context.Context, key string, value any) error {
	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		var err error
		if raw, err = json.Marshal(v); err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
	}
	return e.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set([]byte(key), raw)
	})
}

// Scan calls fn for every key with the given prefix in key order. The
// value slice is only valid during the call.
func (e *Engine) Scan(ctx context.Context, prefix string, fn func(key string, value []byte) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	return e.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				return fn(string(item.Key()), val)
			})
			if err != nil {
				return fmt.Errorf("scan %s: %w", item.Key(), err)
			}
		}
		return nil
	})
}

// activityDoc is the JSON layout of an activity value.
type activityDoc struct {
	ID          string                `json:"id"`
	Fingerprint string                `json:"fingerprint"`
	Name        string                `json:"name"`
	FileName    string                `json:"file_name"`
	Path        string                `json:"path"`
	Timestamp   time.Time             `json:"timestamp"`
	Sport       string                `json:"sport"`
	SubSport    string                `json:"sub_sport"`
	Note        string                `json:"note,omitempty"`
	NoRecord    bool                  `json:"norecord,omitempty"`
	Summary     store.ActivitySummary `json:"summary"`
	ImportedAt  time.Time             `json:"imported_at"`
}

type monitoringDoc struct {
	Date        string                  `json:"date"`
	Fingerprint string                  `json:"fingerprint"`
	FileName    string                  `json:"file_name"`
	Path        string                  `json:"path"`
	Summary     store.MonitoringSummary `json:"summary"`
	ImportedAt  time.Time               `json:"imported_at"`
}

type fingerprintDoc struct {
	Kind       string    `json:"kind"`
	Status     string    `json:"status"`
	ImportedAt time.Time `json:"imported_at"`
}

// Snapshot is the whole content of a legacy engine.
type Snapshot struct {
	Config       map[string]string
	Activities   []store.Activity
	Monitoring   []store.MonitoringEntry
	Fingerprints []store.Fingerprint
}

// Load reads every entity from the engine.
func (e *Engine) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{Config: map[string]string{}}

	err := e.Scan(ctx, PrefixConfig, func(key string, value []byte) error {
		snap.Config[key[len(PrefixConfig):]] = string(value)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = e.Scan(ctx, PrefixActivity, func(key string, value []byte) error {
		var d activityDoc
		if err := json.Unmarshal(value, &d); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		snap.Activities = append(snap.Activities, store.Activity{
			ID:          d.ID,
			Fingerprint: d.Fingerprint,
			Name:        d.Name,
			FileName:    d.FileName,
			Path:        d.Path,
			Timestamp:   d.Timestamp.UTC(),
			Sport:       d.Sport,
			SubSport:    d.SubSport,
			Note:        d.Note,
			NoRecord:    d.NoRecord,
			Summary:     d.Summary,
			ImportedAt:  d.ImportedAt.UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = e.Scan(ctx, PrefixMonitoring, func(key string, value []byte) error {
		var d monitoringDoc
		if err := json.Unmarshal(value, &d); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		snap.Monitoring = append(snap.Monitoring, store.MonitoringEntry{
			Date:        d.Date,
			Fingerprint: d.Fingerprint,
			FileName:    d.FileName,
			Path:        d.Path,
			Summary:     d.Summary,
			ImportedAt:  d.ImportedAt.UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = e.Scan(ctx, PrefixFingerprint, func(key string, value []byte) error {
		var d fingerprintDoc
		if err := json.Unmarshal(value, &d); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		snap.Fingerprints = append(snap.Fingerprints, store.Fingerprint{
			Digest:     key[len(PrefixFingerprint):],
			Kind:       d.Kind,
			Status:     d.Status,
			ImportedAt: d.ImportedAt.UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// PutActivity writes a in the legacy layout.
func (e *Engine) PutActivity(ctx context.Context, a store.Activity) error {
	return e.Put(ctx, PrefixActivity+a.ID, activityDoc{
		ID:          a.ID,
		Fingerprint: a.Fingerprint,
		Name:        a.Name,
		FileName:    a.FileName,
		Path:        a.Path,
		Timestamp:   a.Timestamp,
		Sport:       a.Sport,
		SubSport:    a.SubSport,
		Note:        a.Note,
		NoRecord:    a.NoRecord,
		Summary:     a.Summary,
		ImportedAt:  a.ImportedAt,
	})
}

func (e *Engine) PutMonitoring(ctx context.Context, m store.MonitoringEntry) error {
	return e.Put(ctx, PrefixMonitoring+m.Date, monitoringDoc{
		Date:        m.Date,
		Fingerprint: m.Fingerprint,
		FileName:    m.FileName,
		Path:        m.Path,
		Summary:     m.Summary,
		ImportedAt:  m.ImportedAt,
	})
}

func (e *Engine) PutFingerprint(ctx context.Context, f store.Fingerprint) error {
	return e.Put(ctx, PrefixFingerprint+f.Digest, fingerprintDoc{
		Kind:       f.Kind,
		Status:     f.Status,
		ImportedAt: f.ImportedAt,
	})
}
