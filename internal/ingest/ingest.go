// Package ingest turns source files into archive entities exactly once.
//
// Ingestion is split in two. Prepare does everything that may be slow or
// may fail without touching the database: fingerprinting, the duplicate
// check, decoding, and copying the bytes into the content store. Commit
// then writes the fingerprint and the entity inside the caller's
// transaction, so an import is either fully visible or not at all.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/sadopc/fitarchive/internal/fitfile"
	"github.com/sadopc/fitarchive/internal/logger"
	"github.com/sadopc/fitarchive/internal/store"
)

var (
	ErrAlreadyImported     = errors.New("file already imported")
	ErrParse               = errors.New("cannot parse file")
	ErrUnrecognizedContent = errors.New("file is neither an activity nor monitoring data")
)

// ForcePolicy decides what a forced re-import does with the entity that
// was imported from the same bytes before.
type ForcePolicy string

const (
	// PolicyReplace removes the earlier activity and reuses its ID.
	PolicyReplace ForcePolicy = "replace"
	// PolicyAppend keeps the earlier activity and adds another one with the
	// ID "<fingerprint>+<n>".
	PolicyAppend ForcePolicy = "append"
)

func ParsePolicy(s string) (ForcePolicy, error) {
	switch p := ForcePolicy(s); p {
	case PolicyReplace, PolicyAppend:
		return p, nil
	case "":
		return PolicyReplace, nil
	}
	return "", fmt.Errorf("unknown force policy %q", s)
}

type Options struct {
	Force  bool
	Name   string // activity name; defaults to the source file name
	Policy ForcePolicy
}

// Candidate is a decoded file whose bytes are already in the content store
// but which is not yet part of the archive.
type Candidate struct {
	Fingerprint string
	SourcePath  string
	StoredPath  string
	Content     *fitfile.Content
	opts        Options
}

func (c *Candidate) FileName() string {
	return filepath.Base(c.SourcePath)
}

// Result describes what Commit changed.
type Result struct {
	Kind       fitfile.Kind
	Activity   *store.Activity
	Monitoring *store.MonitoringEntry
	// Removed holds activities dropped by a forced re-import under
	// PolicyReplace.
	Removed []store.Activity
}

// FingerprintIndex is the read side of the fingerprint table.
type FingerprintIndex interface {
	GetFingerprint(digest string) (*store.Fingerprint, error)
}

type Ingestor struct {
	index   FingerprintIndex
	decoder fitfile.Decoder
	dataDir string
	now     func() time.Time
}

func New(index FingerprintIndex, decoder fitfile.Decoder, dataDir string) *Ingestor {
	return &Ingestor{
		index:   index,
		decoder: decoder,
		dataDir: dataDir,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ContentPath is where the bytes with fingerprint fp live inside dataDir.
func ContentPath(dataDir, fp string) string {
	return filepath.Join(dataDir, "fit", fp[:2], fp+".fit")
}

// Prepare fingerprints data, rejects known fingerprints unless opts.Force
// is set, decodes and classifies the content and stores a copy of the
// bytes. The decoder is never called for a rejected duplicate.
func (in *Ingestor) Prepare(ctx context.Context, path string, data []byte, opts Options) (*Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fp := fitfile.Fingerprint(data)

	prev, err := in.index.GetFingerprint(fp)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("look up fingerprint: %w", err)
	}
	if prev != nil && !opts.Force {
		return nil, fmt.Errorf("%w: %s (%s, %s)", ErrAlreadyImported, path, fp[:12], prev.Status)
	}

	content, err := in.decoder.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrParse, path, err)
	}
	if content.Kind != fitfile.KindActivity && content.Kind != fitfile.KindMonitoring {
		return nil, fmt.Errorf("%w: %s", ErrUnrecognizedContent, path)
	}
	// The index keeps whole seconds; ordering must not depend on what was
	// dropped.
	content.Start = content.Start.UTC().Truncate(time.Second)

	stored := ContentPath(in.dataDir, fp)
	if err := writeAtomic(stored, data); err != nil {
		return nil, fmt.Errorf("store %s: %w", path, err)
	}

	if opts.Policy == "" {
		opts.Policy = PolicyReplace
	}
	return &Candidate{
		Fingerprint: fp,
		SourcePath:  path,
		StoredPath:  stored,
		Content:     content,
		opts:        opts,
	}, nil
}

// Commit records the candidate inside tx. The duplicate check is repeated
// against the transaction's view of the index.
func (in *Ingestor) Commit(tx *store.Tx, c *Candidate) (*Result, error) {
	now := in.now()

	prev, err := tx.GetFingerprint(c.Fingerprint)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("look up fingerprint: %w", err)
	}
	entry := store.Fingerprint{
		Digest:     c.Fingerprint,
		Status:     store.StatusImported,
		ImportedAt: now,
	}
	if prev != nil {
		if !c.opts.Force {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyImported, c.SourcePath)
		}
		entry.PreviousStatus = prev.Status
		entry.PreviousImportedAt = prev.ImportedAt
		logger.Debug("superseding fingerprint",
			zap.String("fingerprint", c.Fingerprint), zap.String("status", prev.Status))
	}

	res := &Result{Kind: c.Content.Kind}
	kind := store.KindActivity
	switch c.Content.Kind {
	case fitfile.KindActivity:
		a, removed, err := in.commitActivity(tx, c, now)
		if err != nil {
			return nil, err
		}
		res.Activity, res.Removed = a, removed
	case fitfile.KindMonitoring:
		kind = store.KindMonitoring
		m, err := in.commitMonitoring(tx, c, now)
		if err != nil {
			return nil, err
		}
		res.Monitoring = m
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnrecognizedContent, c.SourcePath)
	}

	entry.Kind = kind
	if err := tx.PutFingerprint(entry); err != nil {
		return nil, err
	}
	return res, nil
}

func (in *Ingestor) commitActivity(tx *store.Tx, c *Candidate, now time.Time) (*store.Activity, []store.Activity, error) {
	prior, err := tx.ActivitiesByFingerprint(c.Fingerprint)
	if err != nil {
		return nil, nil, err
	}

	id := c.Fingerprint
	var removed []store.Activity
	if len(prior) > 0 {
		switch c.opts.Policy {
		case PolicyAppend:
			id, err = nextID(tx, c.Fingerprint, len(prior))
			if err != nil {
				return nil, nil, err
			}
		default:
			for _, p := range prior {
				if err := tx.DeleteActivity(p.ID); err != nil {
					return nil, nil, err
				}
			}
			removed = prior
		}
	}

	name := c.opts.Name
	if name == "" {
		name = c.FileName()
	}
	a := &store.Activity{
		ID:          id,
		Fingerprint: c.Fingerprint,
		Name:        name,
		FileName:    c.FileName(),
		Path:        c.StoredPath,
		Timestamp:   c.Content.Start,
		Sport:       c.Content.Sport,
		SubSport:    c.Content.SubSport,
		Summary:     c.Content.Activity,
		ImportedAt:  now,
	}
	if err := tx.InsertActivity(a); err != nil {
		return nil, nil, err
	}
	return a, removed, nil
}

// nextID finds the first free "<fp>+<n>" starting at n.
func nextID(tx *store.Tx, fp string, n int) (string, error) {
	for ; ; n++ {
		id := fp + "+" + strconv.Itoa(n)
		_, err := tx.GetActivity(id)
		if errors.Is(err, store.ErrNotFound) {
			return id, nil
		}
		if err != nil {
			return "", err
		}
	}
}

func (in *Ingestor) commitMonitoring(tx *store.Tx, c *Candidate, now time.Time) (*store.MonitoringEntry, error) {
	old, err := tx.GetMonitoring(c.Content.Date)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if old != nil && old.Fingerprint != c.Fingerprint {
		if err := tx.SetFingerprintStatus(old.Fingerprint, store.StatusSuperseded); err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	m := &store.MonitoringEntry{
		Date:        c.Content.Date,
		Fingerprint: c.Fingerprint,
		FileName:    c.FileName(),
		Path:        c.StoredPath,
		Summary:     c.Content.Monitoring,
		ImportedAt:  now,
	}
	if err := tx.PutMonitoring(m); err != nil {
		return nil, err
	}
	return m, nil
}

// writeAtomic writes data next to path and renames it into place.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".import-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
