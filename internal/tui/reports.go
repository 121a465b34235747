package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/fitarchive/internal/archive"
	"github.com/sadopc/fitarchive/internal/units"
	"github.com/sadopc/fitarchive/internal/view"
)

type reportMode int

const (
	reportWeekly reportMode = iota
	reportMonthly
)

type reportsModel struct {
	src    Source
	width  int
	height int
	now    func() time.Time

	mode   reportMode
	report *archive.Report
	offset int // weeks or months back from the current one

	chart barchart.Model
}

func newReportsModel(src Source) reportsModel {
	return reportsModel{
		src:   src,
		now:   time.Now,
		chart: barchart.New(60, 12),
	}
}

func (r *reportsModel) setSize(w, h int) {
	r.width = w
	r.height = h
}

type reportsDataMsg struct {
	report *archive.Report
	err    error
}

// date returns a day inside the period the model currently shows.
func (r reportsModel) date() time.Time {
	if r.mode == reportMonthly {
		now := r.now()
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return first.AddDate(0, -r.offset, 0)
	}
	return r.now().AddDate(0, 0, -7*r.offset)
}

func (r reportsModel) refresh() tea.Cmd {
	date, mode := r.date(), r.mode
	return func() tea.Msg {
		var rep *archive.Report
		var err error
		if mode == reportMonthly {
			rep, err = r.src.Monthly(date)
		} else {
			rep, err = r.src.Weekly(date)
		}
		return reportsDataMsg{report: rep, err: err}
	}
}

func (r reportsModel) update(msg tea.Msg) (reportsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case reportsDataMsg:
		if msg.err != nil {
			return r, func() tea.Msg { return errStatus(msg.err) }
		}
		r.report = msg.report
		r.buildChart()
		return r, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Left):
			r.offset++
			return r, r.refresh()
		case key.Matches(msg, keys.Right):
			if r.offset > 0 {
				r.offset--
			}
			return r, r.refresh()
		case key.Matches(msg, keys.Mode):
			if r.mode == reportWeekly {
				r.mode = reportMonthly
			} else {
				r.mode = reportWeekly
			}
			r.offset = 0
			return r, r.refresh()
		}
	}
	return r, nil
}

func (r *reportsModel) buildChart() {
	chartWidth := r.width - 8
	if chartWidth < 20 {
		chartWidth = 20
	}
	chartHeight := 12
	if r.height > 30 {
		chartHeight = 16
	}

	r.chart = barchart.New(chartWidth, chartHeight)
	if r.report == nil || r.report.Totals.Distance == 0 {
		return
	}
	r.chart.PushAll(view.Bars(r.report))
	r.chart.Draw()
}

func (r reportsModel) view() string {
	w := r.width - 4

	weeklyTab := inactiveTabStyle.Render("Weekly")
	monthlyTab := inactiveTabStyle.Render("Monthly")
	if r.mode == reportWeekly {
		weeklyTab = activeTabStyle.Render("Weekly")
	} else {
		monthlyTab = activeTabStyle.Render("Monthly")
	}
	modeTabs := lipgloss.JoinHorizontal(lipgloss.Bottom, weeklyTab, monthlyTab)

	nav := mutedStyle.Render("  ←/→: navigate  m: switch mode")
	if r.report == nil {
		return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left,
			lipgloss.JoinHorizontal(lipgloss.Bottom, titleStyle.Render("Reports"), "  ", modeTabs),
			"", mutedStyle.Render("Loading..."), "", nav,
		))
	}

	last := r.report.To.AddDate(0, 0, -1)
	dateLabel := mutedStyle.Render(fmt.Sprintf("%s .. %s", r.report.From.Format("Jan 02"), last.Format("Jan 02, 2006")))
	header := lipgloss.JoinHorizontal(lipgloss.Bottom,
		titleStyle.Render("Reports"), "  ", modeTabs, "  ", dateLabel,
	)

	return panelStyle.Width(w).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header, "", r.chart.View(), "", r.renderTotals(), "", r.renderDays(w), "", nav,
		),
	)
}

func (r reportsModel) renderTotals() string {
	t, system := r.report.Totals, r.report.UnitSystem
	parts := []string{
		highlightStyle.Render(fmt.Sprintf("%d activities", t.Activities)),
		units.Distance(t.Distance, system),
		units.Duration(t.Duration),
		units.Elevation(t.Ascent, system) + " ascent",
	}
	if r.report.Steps > 0 {
		parts = append(parts, fmt.Sprintf("%d steps", r.report.Steps))
	}
	return "  " + strings.Join(parts, mutedStyle.Render("  ·  "))
}

func (r reportsModel) renderDays(w int) string {
	var rows []string
	rows = append(rows, mutedStyle.Render(fmt.Sprintf("  %-12s %-24s %10s %10s", "Date", "Activities", "Distance", "Duration")))
	rows = append(rows, mutedStyle.Render("  "+strings.Repeat("─", min(w-6, 60))))

	active := 0
	for _, d := range r.report.Days {
		if len(d.Activities) == 0 {
			continue
		}
		active++
		names := make([]string, len(d.Activities))
		for i, a := range d.Activities {
			names[i] = a.Name
		}
		rows = append(rows, fmt.Sprintf("  %-12s %-24s %10s %10s",
			d.Date.Format("Mon Jan 02"), truncate(strings.Join(names, ", "), 24),
			units.Distance(d.Totals.Distance, r.report.UnitSystem), units.Duration(d.Totals.Duration),
		))
	}
	if active == 0 {
		return mutedStyle.Render("  No activities in this period")
	}
	return strings.Join(rows, "\n")
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
