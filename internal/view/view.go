// Package view renders archive data for the terminal: lipgloss tables for
// lists and summaries, ntcharts bar charts for reports.
package view

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/sadopc/fitarchive/internal/archive"
	"github.com/sadopc/fitarchive/internal/records"
	"github.com/sadopc/fitarchive/internal/store"
	"github.com/sadopc/fitarchive/internal/units"
)

var (
	colorPrimary = lipgloss.Color("#F28C28")
	colorMuted   = lipgloss.Color("#7A7A7A")
	colorSubtle  = lipgloss.Color("#3B4252")
	colorError   = lipgloss.Color("#E5484D")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorMuted)
	errorStyle  = lipgloss.NewStyle().Foreground(colorError)
	borderStyle = lipgloss.NewStyle().Foreground(colorSubtle)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func render(w io.Writer, parts ...string) error {
	_, err := fmt.Fprintln(w, lipgloss.JoinVertical(lipgloss.Left, parts...))
	return err
}

// ActivityHeaders and ActivityRows describe the activity list. Rows carry
// the reference of each activity, so acts must be ordered newest first.
var ActivityHeaders = []string{"Ref", "Date", "Name", "Sport", "Distance", "Duration", "Pace"}

func ActivityRows(acts []store.Activity, system string) [][]string {
	rows := make([][]string, len(acts))
	for i, a := range acts {
		rows[i] = []string{
			fmt.Sprintf(":%d", i+1),
			a.Timestamp.Local().Format("2006-01-02 15:04"),
			a.Name,
			sport(a),
			units.Distance(a.Summary.Distance, system),
			units.Duration(a.Summary.Duration),
			units.Pace(a.Summary.AvgSpeed, system),
		}
	}
	return rows
}

// Activities writes the activity list.
func Activities(w io.Writer, acts []store.Activity, system string) error {
	if len(acts) == 0 {
		return render(w, mutedStyle.Render("No activities."))
	}
	t := newTable(ActivityHeaders...).Rows(ActivityRows(acts, system)...)
	return render(w, t.Render())
}

// Summary writes the details of one activity.
func Summary(w io.Writer, a store.Activity, system string) error {
	s := a.Summary
	rows := [][]string{
		{"Name", a.Name},
		{"ID", a.ID},
		{"Date", a.Timestamp.Local().Format("Mon 2006-01-02 15:04")},
		{"Sport", sport(a)},
		{"Distance", units.Distance(s.Distance, system)},
		{"Duration", units.Duration(s.Duration)},
		{"Ascent", units.Elevation(s.Ascent, system)},
		{"Pace", units.Pace(s.AvgSpeed, system)},
	}
	if s.AvgHeartRate > 0 {
		rows = append(rows, []string{"Heart rate", fmt.Sprintf("%d bpm", s.AvgHeartRate)})
	}
	if s.Calories > 0 {
		rows = append(rows, []string{"Calories", fmt.Sprintf("%d kcal", s.Calories)})
	}
	for _, d := range records.StandardDistances {
		if secs, ok := s.BestTimes[d.Label]; ok {
			rows = append(rows, []string{"Best " + d.Label, units.Duration(secs)})
		}
	}
	if a.Note != "" {
		rows = append(rows, []string{"Note", a.Note})
	}
	if a.NoRecord {
		rows = append(rows, []string{"Records", "excluded"})
	}

	t := newTable("Field", "Value").Rows(rows...)
	return render(w, titleStyle.Render(a.Name), t.Render())
}

// RecordLabel turns a metric name into a column label.
func RecordLabel(metric string) string {
	switch metric {
	case records.LongestDistance:
		return "Longest distance"
	case records.LongestDuration:
		return "Longest duration"
	case records.MostAscent:
		return "Most ascent"
	}
	for _, d := range records.StandardDistances {
		if metric == records.FastestMetric(d.Label) {
			return "Fastest " + strings.ReplaceAll(d.Label, "_", " ")
		}
	}
	return metric
}

// RecordValue formats the value of r in the unit its metric measures.
func RecordValue(r store.Record, system string) string {
	switch r.Metric {
	case records.LongestDistance:
		return units.Distance(r.Value, system)
	case records.MostAscent:
		return units.Elevation(r.Value, system)
	}
	return units.Duration(r.Value)
}

// Records writes the personal records. names maps activity IDs to names.
func Records(w io.Writer, recs []store.Record, names map[string]string, system string) error {
	if len(recs) == 0 {
		return render(w, mutedStyle.Render("No records yet."))
	}
	t := newTable("Sport", "Record", "Value", "Activity", "Date")
	for _, r := range recs {
		name := names[r.ActivityID]
		if name == "" {
			name = r.ActivityID
		}
		t.Row(r.Sport, RecordLabel(r.Metric), RecordValue(r, system), name, r.Timestamp.Local().Format(time.DateOnly))
	}
	return render(w, t.Render())
}

// Report writes a daily, weekly or monthly report. Reports spanning more
// than one day get a distance chart above the table.
func Report(w io.Writer, title string, r *archive.Report, width int) error {
	last := r.To.AddDate(0, 0, -1)
	heading := titleStyle.Render(title) + "  " +
		mutedStyle.Render(fmt.Sprintf("%s .. %s", r.From.Format(time.DateOnly), last.Format(time.DateOnly)))

	t := newTable("Date", "Activities", "Distance", "Duration", "Ascent", "Steps")
	for _, d := range r.Days {
		steps := "-"
		if d.Monitoring != nil {
			steps = fmt.Sprintf("%d", d.Monitoring.Steps)
		}
		t.Row(d.Date.Format("Mon 2006-01-02"), activityNames(d.Activities),
			units.Distance(d.Totals.Distance, r.UnitSystem), units.Duration(d.Totals.Duration),
			units.Elevation(d.Totals.Ascent, r.UnitSystem), steps)
	}
	t.Row("Total", fmt.Sprintf("%d", r.Totals.Activities),
		units.Distance(r.Totals.Distance, r.UnitSystem), units.Duration(r.Totals.Duration),
		units.Elevation(r.Totals.Ascent, r.UnitSystem), fmt.Sprintf("%d", r.Steps))

	parts := []string{heading}
	if len(r.Days) > 1 && r.Totals.Distance > 0 {
		parts = append(parts, Chart(r, width, 12))
	}
	parts = append(parts, t.Render(), sportBreakdown(r))
	return render(w, parts...)
}

func activityNames(acts []store.Activity) string {
	if len(acts) == 0 {
		return "-"
	}
	names := make([]string, len(acts))
	for i, a := range acts {
		names[i] = a.Name
	}
	return strings.Join(names, ", ")
}

func sportBreakdown(r *archive.Report) string {
	bySport := map[string]float64{}
	for _, d := range r.Days {
		for _, a := range d.Activities {
			bySport[sport(a)] += a.Summary.Distance
		}
	}
	if len(bySport) == 0 {
		return mutedStyle.Render("No activities in this period.")
	}
	names := make([]string, 0, len(bySport))
	for s := range bySport {
		names = append(names, s)
	}
	sort.Strings(names)
	items := make([]string, len(names))
	for i, s := range names {
		items[i] = fmt.Sprintf("%s %s", s, units.Distance(bySport[s], r.UnitSystem))
	}
	return mutedStyle.Render(strings.Join(items, "  "))
}

// Failures writes the problems found by a check.
func Failures(w io.Writer, failures []archive.Failure) error {
	if len(failures) == 0 {
		return render(w, "No problems found.")
	}
	lines := make([]string, len(failures))
	for i, f := range failures {
		lines[i] = errorStyle.Render("✗ ") + f.String()
	}
	return render(w, lines...)
}

func sport(a store.Activity) string {
	switch {
	case a.Sport == "":
		return "-"
	case a.SubSport != "" && a.SubSport != "generic":
		return a.Sport + "/" + a.SubSport
	}
	return a.Sport
}
