package tui

import (
	"bytes"
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/fitarchive/internal/store"
	"github.com/sadopc/fitarchive/internal/units"
	"github.com/sadopc/fitarchive/internal/view"
)

type activitiesModel struct {
	ctx    context.Context
	src    Source
	width  int
	height int

	acts    []store.Activity
	system  string
	table   table.Model
	showing bool // details of the selected activity

	formActive bool
	form       *huh.Form
	// Form field pointer (survives value copies)
	formName *string
	renaming int
}

func newActivitiesModel(ctx context.Context, src Source) activitiesModel {
	name := ""
	t := table.New(table.WithFocused(true), table.WithHeight(10))
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colorSubtle).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(colorPrimary)
	t.SetStyles(styles)

	m := activitiesModel{
		ctx:      ctx,
		src:      src,
		table:    t,
		system:   units.Metric,
		formName: &name,
	}
	m.layout()
	return m
}

func (m *activitiesModel) setSize(w, h int) {
	m.width = w
	m.height = h
	m.layout()
}

// layout gives the name column whatever width the fixed columns leave.
func (m *activitiesModel) layout() {
	fixed := []int{5, 16, 0, 14, 11, 9, 9}
	used := 0
	for _, w := range fixed {
		used += w + 2
	}
	nameWidth := m.width - 8 - used
	if nameWidth < 12 {
		nameWidth = 12
	}
	cols := make([]table.Column, len(view.ActivityHeaders))
	for i, title := range view.ActivityHeaders {
		w := fixed[i]
		if w == 0 {
			w = nameWidth
		}
		cols[i] = table.Column{Title: title, Width: w}
	}
	m.table.SetColumns(cols)
	if h := m.height - 8; h > 3 {
		m.table.SetHeight(h)
	}
}

type activitiesDataMsg struct {
	acts   []store.Activity
	system string
	err    error
}

func (m activitiesModel) refresh() tea.Cmd {
	return func() tea.Msg {
		acts, err := m.src.List()
		if err != nil {
			return activitiesDataMsg{err: err}
		}
		cfg, err := m.src.Config()
		if err != nil {
			return activitiesDataMsg{err: err}
		}
		return activitiesDataMsg{acts: acts, system: cfg.UnitSystem}
	}
}

func (m activitiesModel) selected() (int, bool) {
	i := m.table.Cursor()
	return i, i >= 0 && i < len(m.acts)
}

func (m activitiesModel) update(msg tea.Msg) (activitiesModel, tea.Cmd) {
	if msg, ok := msg.(activitiesDataMsg); ok {
		return m.load(msg)
	}
	if m.formActive && m.form != nil {
		return m.updateForm(msg)
	}

	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, keys.Enter):
			if _, ok := m.selected(); ok {
				m.showing = !m.showing
			}
			return m, nil
		case key.Matches(msg, keys.Back):
			m.showing = false
			return m, nil
		case key.Matches(msg, keys.Rename):
			if i, ok := m.selected(); ok {
				return m.showRenameForm(i)
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m activitiesModel) load(msg activitiesDataMsg) (activitiesModel, tea.Cmd) {
	if msg.err != nil {
		return m, func() tea.Msg { return errStatus(msg.err) }
	}
	m.acts = msg.acts
	if msg.system != "" {
		m.system = msg.system
	}
	m.table.SetRows(toRows(view.ActivityRows(m.acts, m.system)))
	if m.table.Cursor() >= len(m.acts) {
		m.table.SetCursor(max(0, len(m.acts)-1))
	}
	if len(m.acts) == 0 {
		m.showing = false
	}
	return m, nil
}

func toRows(rows [][]string) []table.Row {
	out := make([]table.Row, len(rows))
	for i, r := range rows {
		out[i] = table.Row(r)
	}
	return out
}

func (m activitiesModel) showRenameForm(i int) (activitiesModel, tea.Cmd) {
	*m.formName = m.acts[i].Name
	m.renaming = i
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Activity Name").
				Value(m.formName).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("name must not be empty")
					}
					return nil
				}),
		),
	).WithShowHelp(true).WithShowErrors(true)

	m.formActive = true
	return m, m.form.Init()
}

func (m activitiesModel) updateForm(msg tea.Msg) (activitiesModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "esc" {
		m.formActive = false
		m.form = nil
		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.formActive = false
		m.form = nil
		return m, m.rename(m.renaming, *m.formName)
	}
	return m, cmd
}

func (m activitiesModel) rename(i int, name string) tea.Cmd {
	reference := fmt.Sprintf(":%d", i+1)
	return func() tea.Msg {
		if _, err := m.src.Rename(m.ctx, reference, name); err != nil {
			return errStatus(err)
		}
		return renamedMsg{name: name}
	}
}

func (m activitiesModel) view() string {
	w := m.width - 4

	if m.formActive && m.form != nil {
		content := lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render("Rename Activity"), "", m.form.View())
		return activePanelStyle.Width(w).Render(content)
	}

	if len(m.acts) == 0 {
		return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Activities"),
			mutedStyle.Render("No activities yet. Import some with: fitarchive import <files>"),
		))
	}

	if i, ok := m.selected(); ok && m.showing {
		var buf bytes.Buffer
		if err := view.Summary(&buf, m.acts[i], m.system); err != nil {
			return errorStyle.Render(err.Error())
		}
		hint := mutedStyle.Render(fmt.Sprintf("  :%d  esc: back  n: rename", i+1))
		return activePanelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, buf.String(), hint))
	}

	header := titleStyle.Render("Activities") + "  " + mutedStyle.Render(fmt.Sprintf("%d total", len(m.acts)))
	return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, header, "", m.table.View()))
}
