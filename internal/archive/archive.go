// Package archive is the activity archive: the ordered activity index, the
// fingerprint index and the records derived from them. Every mutation runs
// in one store transaction together with the records update it implies,
// and signals the Regenerator once it has committed.
package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/sadopc/fitarchive/internal/fitfile"
	"github.com/sadopc/fitarchive/internal/ingest"
	"github.com/sadopc/fitarchive/internal/logger"
	"github.com/sadopc/fitarchive/internal/records"
	"github.com/sadopc/fitarchive/internal/ref"
	"github.com/sadopc/fitarchive/internal/store"
)

var (
	ErrNotFound           = errors.New("no matching activities")
	ErrUnknownAttribute   = errors.New("unknown attribute")
	ErrInvalidValue       = errors.New("invalid attribute value")
	ErrStorageCorruption  = errors.New("archive storage is corrupted")
	ErrInvalidUnitSystem  = errors.New("unit system must be metric or statute")
	ErrEmptyHTMLDirectory = errors.New("html directory must not be empty")
)

// Change describes the archive after a committed mutation.
type Change struct {
	Config     store.Config
	Activities []store.Activity // whole index, oldest first
	Records    []store.Record
	// Changed and Removed list the activities the mutation touched. Full
	// asks for every artifact to be rebuilt.
	Changed []store.Activity
	Removed []store.Activity
	Full    bool
}

// Regenerator rebuilds derived artifacts after a mutation.
type Regenerator interface {
	Regenerate(ctx context.Context, c Change) error
}

type Options struct {
	DataDir     string
	Decoder     fitfile.Decoder
	Regenerator Regenerator // optional
	Policy      ingest.ForcePolicy
}

type Archive struct {
	store   *store.Store
	ingest  *ingest.Ingestor
	decoder fitfile.Decoder
	regen   Regenerator
	policy  ingest.ForcePolicy
	dataDir string
}

func New(s *store.Store, opts Options) *Archive {
	if opts.Decoder == nil {
		opts.Decoder = fitfile.FIT{}
	}
	if opts.Policy == "" {
		opts.Policy = ingest.PolicyReplace
	}
	return &Archive{
		store:   s,
		ingest:  ingest.New(s, opts.Decoder, opts.DataDir),
		decoder: opts.Decoder,
		regen:   opts.Regenerator,
		policy:  opts.Policy,
		dataDir: opts.DataDir,
	}
}

func (a *Archive) Store() *store.Store {
	return a.store
}

func (a *Archive) DataDir() string {
	return a.dataDir
}

// Config returns the archive config with defaults for unset directories
// filled in.
func (a *Archive) Config() (store.Config, error) {
	cfg, err := a.store.LoadConfig()
	if err != nil {
		return store.Config{}, fmt.Errorf("load config: %w", err)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = a.dataDir
	}
	if cfg.HTMLDir == "" {
		cfg.HTMLDir = filepath.Join(a.dataDir, "html")
	}
	return cfg, nil
}

// ImportOptions controls a single import.
type ImportOptions struct {
	Force bool
	Name  string
	// Adjust runs inside the import transaction after the entity has been
	// written and before records are updated. Returning an error aborts
	// the import.
	Adjust func(tx *store.Tx, res *ingest.Result) error
}

// Import reads path and adds it to the archive.
func (a *Archive) Import(ctx context.Context, path string, opts ImportOptions) (*ingest.Result, error) {
	res, err := a.importFile(ctx, path, opts)
	if err != nil {
		return nil, err
	}
	a.regenerate(ctx, changeFor(res))
	return res, nil
}

// ImportData adds the file content data, read from path, to the archive.
func (a *Archive) ImportData(ctx context.Context, path string, data []byte, opts ImportOptions) (*ingest.Result, error) {
	res, err := a.importData(ctx, path, data, opts)
	if err != nil {
		return nil, err
	}
	a.regenerate(ctx, changeFor(res))
	return res, nil
}

func (a *Archive) importData(ctx context.Context, path string, data []byte, opts ImportOptions) (*ingest.Result, error) {
	cand, err := a.ingest.Prepare(ctx, path, data, ingest.Options{
		Force:  opts.Force,
		Name:   opts.Name,
		Policy: a.policy,
	})
	if err != nil {
		return nil, err
	}

	var res *ingest.Result
	err = a.store.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		if res, err = a.ingest.Commit(tx, cand); err != nil {
			return err
		}
		if opts.Adjust != nil {
			if err := opts.Adjust(tx, res); err != nil {
				return err
			}
		}
		if res.Activity == nil {
			return nil
		}
		return updateRecordsAfterInsert(tx, *res.Activity, len(res.Removed) > 0)
	})
	if err != nil {
		return nil, err
	}

	if res.Activity != nil {
		logger.Info("imported activity",
			zap.String("file", path), zap.String("id", shortID(res.Activity.ID)), zap.String("sport", res.Activity.Sport))
	} else {
		logger.Info("imported monitoring data", zap.String("file", path), zap.String("date", res.Monitoring.Date))
	}
	return res, nil
}

// BatchResult counts the outcome of ImportPaths.
type BatchResult struct {
	Imported int
	Skipped  int // already imported
	Failed   int
}

// ImportPaths imports files and the *.fit files directly inside
// directories. Failures are logged and collected; files that were already
// imported are reported but do not fail the batch.
func (a *Archive) ImportPaths(ctx context.Context, paths []string, opts ImportOptions) (BatchResult, error) {
	var result BatchResult
	files, errs := expandPaths(paths)
	result.Failed = len(errs)

	var change Change
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := a.importFile(ctx, path, opts)
		switch {
		case errors.Is(err, ingest.ErrAlreadyImported):
			logger.Warn("skipping file", zap.String("file", path), zap.String("reason", "already imported"))
			result.Skipped++
		case err != nil:
			logger.Warn("cannot import file", zap.String("file", path), zap.Error(err))
			errs = append(errs, err)
			result.Failed++
		default:
			result.Imported++
			c := changeFor(res)
			change.Changed = append(change.Changed, c.Changed...)
			change.Removed = append(change.Removed, c.Removed...)
		}
	}
	if result.Imported > 0 {
		// Use a fresh context so an interrupted batch still leaves artifacts
		// that match what was committed.
		a.regenerate(context.WithoutCancel(ctx), change)
	}

	if len(errs) > 0 {
		return result, fmt.Errorf("import: %d error(s): %w", len(errs), errors.Join(errs...))
	}
	return result, nil
}

func (a *Archive) importFile(ctx context.Context, path string, opts ImportOptions) (*ingest.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return a.importData(ctx, path, data, opts)
}

func expandPaths(paths []string) ([]string, []error) {
	var files []string
	var errs []error
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			logger.Warn("cannot import path", zap.String("path", p), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			logger.Warn("cannot read directory", zap.String("path", p), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		for _, e := range entries {
			if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), ".fit") {
				files = append(files, filepath.Join(p, e.Name()))
			}
		}
	}
	return files, errs
}

// List returns all activities, newest first.
func (a *Archive) List() ([]store.Activity, error) {
	acts, err := a.store.ListActivities(store.ActivityFilter{})
	if err != nil {
		return nil, err
	}
	reverse(acts)
	return acts, nil
}

// Find resolves a reference against the newest-first index. A valid
// reference on an empty archive yields an empty result.
func (a *Archive) Find(reference string) ([]store.Activity, error) {
	acts, err := a.List()
	if err != nil {
		return nil, err
	}
	return ref.Find(acts, reference)
}

// Summary returns the activities a reference designates, failing with
// ErrNotFound when there are none.
func (a *Archive) Summary(reference string) ([]store.Activity, error) {
	return a.mustFind(reference)
}

func (a *Archive) mustFind(reference string) ([]store.Activity, error) {
	acts, err := a.Find(reference)
	if err != nil {
		return nil, err
	}
	if len(acts) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, reference)
	}
	return acts, nil
}

// Records returns the current personal records ordered by sport and
// metric.
func (a *Archive) Records() ([]store.Record, error) {
	return a.store.ListRecords()
}

// RecomputeRecords rebuilds the record table from the whole history.
func (a *Archive) RecomputeRecords(ctx context.Context) error {
	return a.store.WithTx(ctx, recomputeRecords)
}

func recomputeRecords(tx *store.Tx) error {
	history, err := tx.ListActivities(store.ActivityFilter{})
	if err != nil {
		return err
	}
	return saveRecords(tx, records.Recompute(history))
}

func updateRecordsAfterInsert(tx *store.Tx, added store.Activity, replaced bool) error {
	history, err := tx.ListActivities(store.ActivityFilter{})
	if err != nil {
		return err
	}
	if replaced {
		return saveRecords(tx, records.Recompute(history))
	}
	for _, h := range history {
		if h.ID == added.ID {
			added = h
			break
		}
	}
	current, err := tx.ListRecords()
	if err != nil {
		return err
	}
	return saveRecords(tx, records.Insert(records.FromRecords(current), added, history))
}

func saveRecords(tx *store.Tx, set records.Set) error {
	current, err := tx.ListRecords()
	if err != nil {
		return err
	}
	old := records.FromRecords(current)
	if set.Equal(old) {
		return nil
	}
	for k, r := range set {
		if prev, ok := old[k]; !ok || prev.ActivityID != r.ActivityID {
			logger.Info("record holder changed",
				zap.String("sport", r.Sport), zap.String("metric", r.Metric), zap.Float64("value", r.Value))
		}
	}
	return tx.ReplaceRecords(set.Records())
}

func changeFor(res *ingest.Result) Change {
	var c Change
	if res.Activity != nil {
		c.Changed = []store.Activity{*res.Activity}
		c.Removed = res.Removed
	}
	return c
}

// regenerate fills in the archive state and hands c to the Regenerator.
// The mutation has already committed, so failures are only logged.
func (a *Archive) regenerate(ctx context.Context, c Change) {
	if a.regen == nil {
		return
	}
	if err := a.fillChange(&c); err != nil {
		logger.Warn("cannot regenerate artifacts", zap.Error(err))
		return
	}
	if err := a.regen.Regenerate(ctx, c); err != nil {
		logger.Warn("cannot regenerate artifacts", zap.Error(err))
	}
}

func (a *Archive) fillChange(c *Change) error {
	cfg, err := a.Config()
	if err != nil {
		return err
	}
	acts, err := a.store.ListActivities(store.ActivityFilter{})
	if err != nil {
		return err
	}
	recs, err := a.store.ListRecords()
	if err != nil {
		return err
	}
	c.Config, c.Activities, c.Records = cfg, acts, recs
	return nil
}

// Regenerate rebuilds every artifact.
func (a *Archive) Regenerate(ctx context.Context) {
	a.regenerate(ctx, Change{Full: true})
}

func reverse(acts []store.Activity) {
	for i, j := 0, len(acts)-1; i < j; i, j = i+1, j-1 {
		acts[i], acts[j] = acts[j], acts[i]
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
