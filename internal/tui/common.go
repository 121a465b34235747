package tui

import (
	"context"
	"time"

	"github.com/sadopc/fitarchive/internal/archive"
	"github.com/sadopc/fitarchive/internal/store"
)

// Source is the archive as seen by the browser.
type Source interface {
	List() ([]store.Activity, error)
	Records() ([]store.Record, error)
	Config() (store.Config, error)
	Weekly(date time.Time) (*archive.Report, error)
	Monthly(date time.Time) (*archive.Report, error)
	Rename(ctx context.Context, reference, name string) ([]store.Activity, error)
	Regenerate(ctx context.Context)
}

// viewState represents the currently active view.
type viewState int

const (
	viewActivities viewState = iota
	viewRecords
	viewReports
)

var viewNames = []string{"Activities", "Records", "Reports"}

// --- Messages ---

type statusMsg struct {
	text    string
	isError bool
}

type renamedMsg struct {
	name string
}

type regeneratedMsg struct {
	dir string
}

func errStatus(err error) statusMsg {
	return statusMsg{text: "Error: " + err.Error(), isError: true}
}
