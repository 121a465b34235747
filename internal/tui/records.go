package tui

import (
	"bytes"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/fitarchive/internal/store"
	"github.com/sadopc/fitarchive/internal/view"
)

type recordsModel struct {
	src    Source
	width  int
	height int

	recs   []store.Record
	names  map[string]string
	system string
}

func newRecordsModel(src Source) recordsModel {
	return recordsModel{src: src}
}

func (r *recordsModel) setSize(w, h int) {
	r.width = w
	r.height = h
}

type recordsDataMsg struct {
	recs   []store.Record
	names  map[string]string
	system string
	err    error
}

func (r recordsModel) refresh() tea.Cmd {
	return func() tea.Msg {
		recs, err := r.src.Records()
		if err != nil {
			return recordsDataMsg{err: err}
		}
		acts, err := r.src.List()
		if err != nil {
			return recordsDataMsg{err: err}
		}
		cfg, err := r.src.Config()
		if err != nil {
			return recordsDataMsg{err: err}
		}
		names := make(map[string]string, len(acts))
		for _, a := range acts {
			names[a.ID] = a.Name
		}
		return recordsDataMsg{recs: recs, names: names, system: cfg.UnitSystem}
	}
}

func (r recordsModel) update(msg tea.Msg) (recordsModel, tea.Cmd) {
	if msg, ok := msg.(recordsDataMsg); ok {
		if msg.err != nil {
			return r, func() tea.Msg { return errStatus(msg.err) }
		}
		r.recs, r.names, r.system = msg.recs, msg.names, msg.system
	}
	return r, nil
}

func (r recordsModel) view() string {
	var buf bytes.Buffer
	if err := view.Records(&buf, r.recs, r.names, r.system); err != nil {
		return errorStyle.Render(err.Error())
	}
	return panelStyle.Width(r.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render("Personal Records"), "", buf.String()),
	)
}
