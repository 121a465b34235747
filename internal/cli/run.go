package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"go.uber.org/zap"

	"github.com/sadopc/fitarchive/internal/archive"
	"github.com/sadopc/fitarchive/internal/fitfile"
	"github.com/sadopc/fitarchive/internal/logger"
	"github.com/sadopc/fitarchive/internal/ref"
	"github.com/sadopc/fitarchive/internal/tui"
	"github.com/sadopc/fitarchive/internal/units"
	"github.com/sadopc/fitarchive/internal/view"
)

var errNeedsTerminal = errors.New("the activity browser needs a terminal; pass a reference or a date")

// runner executes commands against an opened archive.
type runner struct {
	archive     *archive.Archive
	decoder     fitfile.Decoder
	out         io.Writer
	interactive bool
	width       int
	confirm     func(title string) (bool, error)
	browse      func(ctx context.Context, src tui.Source) error
}

func (r *runner) run(ctx context.Context, c Command) error {
	switch c := c.(type) {
	case CheckCmd:
		return r.check(ctx, c)
	case ReportCmd:
		return r.report(c.Period, c.Date)
	case DeleteCmd:
		return r.delete(ctx, c)
	case ImportCmd:
		return r.importFiles(ctx, c)
	case ListCmd:
		return r.list()
	case RecordsCmd:
		return r.records()
	case RenameCmd:
		acts, err := r.archive.Rename(ctx, c.Ref, c.Name)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "Renamed %d activit%s to %q.\n", len(acts), plural(len(acts)), c.Name)
		return nil
	case SetCmd:
		acts, err := r.archive.SetAttribute(ctx, c.Ref, c.Attr, c.Value)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "Set %s of %d activit%s to %q.\n", c.Attr, len(acts), plural(len(acts)), c.Value)
		return nil
	case ShowCmd:
		return r.show(ctx, c)
	case SummaryCmd:
		return r.summary(c.Ref)
	case UnitsCmd:
		if err := r.archive.SetUnits(ctx, c.System); err != nil {
			return err
		}
		fmt.Fprintf(r.out, "Unit system set to %s.\n", c.System)
		return nil
	case HTMLDirCmd:
		if err := r.archive.SetHTMLDir(ctx, c.Dir); err != nil {
			return err
		}
		cfg, err := r.archive.Config()
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "HTML directory set to %s.\n", cfg.HTMLDir)
		return nil
	}
	return fmt.Errorf("unsupported command %T", c)
}

func (r *runner) system() string {
	cfg, err := r.archive.Config()
	if err != nil || cfg.UnitSystem == "" {
		return units.Metric
	}
	return cfg.UnitSystem
}

func (r *runner) check(ctx context.Context, c CheckCmd) error {
	if len(c.Targets) == 0 {
		failures, err := r.archive.Check(ctx, "")
		if verr := view.Failures(r.out, failures); verr != nil {
			return verr
		}
		if err != nil {
			return err
		}
		logger.Debug("compacting archive")
		return r.archive.Store().Compact()
	}

	var failures []archive.Failure
	var errs []error
	for _, target := range c.Targets {
		if ref.IsReference(target) {
			fs, err := r.archive.Check(ctx, target)
			failures = append(failures, fs...)
			if err != nil {
				errs = append(errs, err)
			}
			continue
		}
		if err := r.checkFile(target); err != nil {
			failures = append(failures, archive.Failure{Path: target, Err: err})
			errs = append(errs, fmt.Errorf("%s: %w", target, err))
		}
	}
	if err := view.Failures(r.out, failures); err != nil {
		return err
	}
	if len(errs) > 0 {
		return fmt.Errorf("check: %w", errors.Join(errs...))
	}
	return nil
}

// checkFile decodes a file that is not part of the archive.
func (r *runner) checkFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	content, err := r.decoder.Decode(data)
	if err != nil {
		return err
	}
	logger.Debug("file decoded", zap.String("file", path), zap.Stringer("kind", content.Kind))
	return nil
}

var reportTitles = map[Period]string{
	Daily:   "Daily report",
	Weekly:  "Weekly report",
	Monthly: "Monthly report",
}

func (r *runner) report(p Period, date time.Time) error {
	var rep *archive.Report
	var err error
	switch p {
	case Daily:
		rep, err = r.archive.Daily(date)
	case Weekly:
		rep, err = r.archive.Weekly(date)
	case Monthly:
		rep, err = r.archive.Monthly(date)
	default:
		return fmt.Errorf("unknown report period %q", p)
	}
	if err != nil {
		return err
	}
	return view.Report(r.out, reportTitles[p], rep, r.width)
}

func (r *runner) delete(ctx context.Context, c DeleteCmd) error {
	acts, err := r.archive.Find(c.Ref)
	if err != nil {
		return err
	}
	if len(acts) > 1 && r.interactive && r.confirm != nil {
		ok, err := r.confirm(fmt.Sprintf("Delete %d activities?", len(acts)))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(r.out, "Nothing deleted.")
			return nil
		}
	}
	deleted, err := r.archive.Delete(ctx, c.Ref)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Deleted %d activit%s.\n", len(deleted), plural(len(deleted)))
	return nil
}

func (r *runner) importFiles(ctx context.Context, c ImportCmd) error {
	paths := c.Paths
	if len(paths) == 0 {
		cfg, err := r.archive.Config()
		if err != nil {
			return err
		}
		if cfg.ImportDir == "" {
			return errors.New("no import directory remembered yet; pass files or a directory")
		}
		paths = []string{cfg.ImportDir}
	} else if len(paths) == 1 {
		if info, err := os.Stat(paths[0]); err == nil && info.IsDir() {
			if err := r.archive.RememberImportDir(ctx, paths[0]); err != nil {
				return err
			}
		}
	}

	res, err := r.archive.ImportPaths(ctx, paths, archive.ImportOptions{Force: c.Force, Name: c.Name})
	fmt.Fprintf(r.out, "Imported %d, skipped %d already imported, %d failed.\n", res.Imported, res.Skipped, res.Failed)
	return err
}

func (r *runner) list() error {
	acts, err := r.archive.List()
	if err != nil {
		return err
	}
	return view.Activities(r.out, acts, r.system())
}

func (r *runner) records() error {
	recs, err := r.archive.Records()
	if err != nil {
		return err
	}
	acts, err := r.archive.List()
	if err != nil {
		return err
	}
	names := make(map[string]string, len(acts))
	for _, a := range acts {
		names[a.ID] = a.Name
	}
	return view.Records(r.out, recs, names, r.system())
}

func (r *runner) show(ctx context.Context, c ShowCmd) error {
	switch {
	case c.Ref != "":
		return r.summary(c.Ref)
	case !c.Date.IsZero():
		return r.report(Daily, c.Date)
	}
	if !r.interactive || r.browse == nil {
		return errNeedsTerminal
	}
	return r.browse(ctx, r.archive)
}

func (r *runner) summary(reference string) error {
	acts, err := r.archive.Summary(reference)
	if err != nil {
		return err
	}
	system := r.system()
	var total archive.Totals
	for _, a := range acts {
		if err := view.Summary(r.out, a, system); err != nil {
			return err
		}
		total.Activities++
		total.Distance += a.Summary.Distance
		total.Duration += a.Summary.Duration
		total.Ascent += a.Summary.Ascent
	}
	if len(acts) > 1 {
		fmt.Fprintf(r.out, "%d activities, %s, %s, %s ascent\n", total.Activities,
			units.Distance(total.Distance, system), units.Duration(total.Duration), units.Elevation(total.Ascent, system))
	}
	return nil
}

func plural(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}

// confirmPrompt asks a yes/no question on the terminal.
func confirmPrompt(title string) (bool, error) {
	ok := false
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Affirmative("Delete").
				Negative("Cancel").
				Value(&ok),
		),
	).Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return ok, err
}
