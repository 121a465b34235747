// Package tui is the interactive activity browser behind `show`.
package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// App is the root Bubble Tea model.
type App struct {
	ctx    context.Context
	src    Source
	width  int
	height int

	activeView viewState
	showHelp   bool

	activities activitiesModel
	records    recordsModel
	reports    reportsModel

	help        help.Model
	status      string
	statusError bool
}

func NewApp(ctx context.Context, src Source) App {
	h := help.New()
	h.ShowAll = false

	return App{
		ctx:        ctx,
		src:        src,
		activeView: viewActivities,
		activities: newActivitiesModel(ctx, src),
		records:    newRecordsModel(src),
		reports:    newReportsModel(src),
		help:       h,
	}
}

// Run starts the browser on the terminal and blocks until it quits.
func Run(ctx context.Context, src Source) error {
	p := tea.NewProgram(NewApp(ctx, src), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

func (a App) Init() tea.Cmd {
	return a.activities.refresh()
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		contentHeight := a.height - 4 // header + footer
		a.activities.setSize(a.width, contentHeight)
		a.records.setSize(a.width, contentHeight)
		a.reports.setSize(a.width, contentHeight)
		return a, nil

	case tea.KeyMsg:
		// A form captures every key until it is done.
		if a.activities.formActive {
			return a.updateActiveView(msg)
		}

		switch {
		case key.Matches(msg, keys.Quit):
			return a, tea.Quit
		case key.Matches(msg, keys.Help):
			a.showHelp = !a.showHelp
			a.help.ShowAll = a.showHelp
			return a, nil
		case key.Matches(msg, keys.Export):
			return a, a.regenerate()
		case key.Matches(msg, keys.Tab1):
			a.activeView = viewActivities
			return a, a.activities.refresh()
		case key.Matches(msg, keys.Tab2):
			a.activeView = viewRecords
			return a, a.records.refresh()
		case key.Matches(msg, keys.Tab3):
			a.activeView = viewReports
			return a, a.reports.refresh()
		case key.Matches(msg, keys.Tab):
			a.activeView = (a.activeView + 1) % viewState(len(viewNames))
			return a, a.refreshCurrentView()
		}

	case statusMsg:
		a.status = msg.text
		a.statusError = msg.isError
		return a, nil

	case renamedMsg:
		a.status = "Renamed to " + msg.name
		a.statusError = false
		return a, a.activities.refresh()

	case regeneratedMsg:
		a.status = "HTML directory updated: " + msg.dir
		a.statusError = false
		return a, nil

	// Data arrives for a view even after the user switched away from it.
	case activitiesDataMsg:
		var cmd tea.Cmd
		a.activities, cmd = a.activities.update(msg)
		return a, cmd
	case recordsDataMsg:
		var cmd tea.Cmd
		a.records, cmd = a.records.update(msg)
		return a, cmd
	case reportsDataMsg:
		var cmd tea.Cmd
		a.reports, cmd = a.reports.update(msg)
		return a, cmd
	}

	return a.updateActiveView(msg)
}

func (a App) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch a.activeView {
	case viewActivities:
		a.activities, cmd = a.activities.update(msg)
	case viewRecords:
		a.records, cmd = a.records.update(msg)
	case viewReports:
		a.reports, cmd = a.reports.update(msg)
	}
	return a, cmd
}

func (a App) refreshCurrentView() tea.Cmd {
	switch a.activeView {
	case viewActivities:
		return a.activities.refresh()
	case viewRecords:
		return a.records.refresh()
	case viewReports:
		return a.reports.refresh()
	}
	return nil
}

func (a App) regenerate() tea.Cmd {
	return func() tea.Msg {
		cfg, err := a.src.Config()
		if err != nil {
			return errStatus(err)
		}
		a.src.Regenerate(a.ctx)
		return regeneratedMsg{dir: cfg.HTMLDir}
	}
}

func (a App) View() string {
	if a.width == 0 {
		return "Loading..."
	}

	header := a.renderHeader()
	footer := a.renderFooter()

	var content string
	switch a.activeView {
	case viewActivities:
		content = a.activities.view()
	case viewRecords:
		content = a.records.view()
	case viewReports:
		content = a.reports.view()
	}

	contentHeight := a.height - lipgloss.Height(header) - lipgloss.Height(footer)
	if contentHeight < 1 {
		contentHeight = 1
	}

	content = lipgloss.NewStyle().
		Width(a.width).
		Height(contentHeight).
		Render(content)

	return lipgloss.JoinVertical(lipgloss.Left, header, content, footer)
}

func (a App) renderHeader() string {
	var tabs []string
	for i, name := range viewNames {
		if viewState(i) == a.activeView {
			tabs = append(tabs, activeTabStyle.Render(name))
		} else {
			tabs = append(tabs, inactiveTabStyle.Render(name))
		}
	}

	tabRow := lipgloss.JoinHorizontal(lipgloss.Bottom, tabs...)

	title := lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).Render("fitarchive")
	gap := a.width - lipgloss.Width(title) - lipgloss.Width(tabRow) - 4
	if gap < 1 {
		gap = 1
	}
	spacer := lipgloss.NewStyle().Width(gap).Render("")

	return headerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Bottom, title, spacer, tabRow),
	)
}

func (a App) renderFooter() string {
	left := footerStyle.Render(a.help.View(keys))

	status := ""
	if a.status != "" {
		style := successStyle
		if a.statusError {
			style = errorStyle
		}
		status = style.Render(" " + a.status)
	}

	gap := a.width - lipgloss.Width(left) - lipgloss.Width(status) - 2
	if gap < 1 {
		gap = 1
	}
	spacer := lipgloss.NewStyle().Width(gap).Render("")

	return lipgloss.JoinHorizontal(lipgloss.Bottom, left, spacer, status)
}
