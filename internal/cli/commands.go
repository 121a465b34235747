package cli

import (
	"fmt"
	"time"

	"github.com/sadopc/fitarchive/internal/archive"
	"github.com/sadopc/fitarchive/internal/ref"
)

// Command is one parsed invocation. The set of variants is closed; cobra
// only turns arguments into one of them and run dispatches on the type.
type Command interface {
	command()
}

// Period selects the span of a report.
type Period string

const (
	Daily   Period = "daily"
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
)

type (
	// CheckCmd verifies the archive. Targets are references or external
	// files; none means the whole archive.
	CheckCmd struct {
		Targets []string
	}
	ReportCmd struct {
		Period Period
		Date   time.Time
	}
	DeleteCmd struct {
		Ref string
	}
	// ImportCmd imports files and directories. No paths means the
	// remembered import directory.
	ImportCmd struct {
		Paths []string
		Force bool
		Name  string
	}
	ListCmd    struct{}
	RecordsCmd struct{}
	RenameCmd  struct {
		Name string
		Ref  string
	}
	SetCmd struct {
		Attr  string
		Value string
		Ref   string
	}
	// ShowCmd shows activities for a reference or the daily report for a
	// date. An empty target opens the browser.
	ShowCmd struct {
		Ref  string
		Date time.Time
	}
	SummaryCmd struct {
		Ref string
	}
	UnitsCmd struct {
		System string
	}
	HTMLDirCmd struct {
		Dir string
	}
)

func (CheckCmd) command()   {}
func (ReportCmd) command()  {}
func (DeleteCmd) command()  {}
func (ImportCmd) command()  {}
func (ListCmd) command()    {}
func (RecordsCmd) command() {}
func (RenameCmd) command()  {}
func (SetCmd) command()     {}
func (ShowCmd) command()    {}
func (SummaryCmd) command() {}
func (UnitsCmd) command()   {}
func (HTMLDirCmd) command() {}

// parseDate reads an optional YYYY-MM-DD argument in local time.
func parseDate(args []string, now time.Time) (time.Time, error) {
	if len(args) == 0 {
		return now, nil
	}
	d, err := time.ParseInLocation(time.DateOnly, args[0], time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", args[0])
	}
	return d, nil
}

func parseShow(args []string) (ShowCmd, error) {
	if len(args) == 0 {
		return ShowCmd{}, nil
	}
	if ref.IsReference(args[0]) {
		if _, err := ref.Parse(args[0]); err != nil {
			return ShowCmd{}, err
		}
		return ShowCmd{Ref: args[0]}, nil
	}
	d, err := parseDate(args, time.Time{})
	if err != nil {
		return ShowCmd{}, fmt.Errorf("%q is neither an activity reference nor a date", args[0])
	}
	return ShowCmd{Date: d}, nil
}

// parseSet routes name changes to RenameCmd.
func parseSet(args []string) (Command, error) {
	attr, value, reference := args[0], args[1], args[2]
	if attr == archive.AttrName {
		return RenameCmd{Name: value, Ref: reference}, nil
	}
	return SetCmd{Attr: attr, Value: value, Ref: reference}, nil
}
