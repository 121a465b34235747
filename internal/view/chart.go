package view

import (
	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/fitarchive/internal/archive"
	"github.com/sadopc/fitarchive/internal/units"
)

var (
	barStyle   = lipgloss.NewStyle().Foreground(colorPrimary)
	emptyStyle = lipgloss.NewStyle().Foreground(colorSubtle)
)

// Chart draws the distance of every day of r as a bar chart.
func Chart(r *archive.Report, width, height int) string {
	if width < 20 {
		width = 20
	}
	chart := barchart.New(width, height)
	chart.PushAll(Bars(r))
	chart.Draw()
	return chart.View()
}

// Bars converts the days of r into chart bars in the report's unit system.
// Weeks are labelled by weekday, longer periods by day of month.
func Bars(r *archive.Report) []barchart.BarData {
	layout := "Mon"
	if len(r.Days) > 7 {
		layout = "02"
	}
	bars := make([]barchart.BarData, len(r.Days))
	for i, d := range r.Days {
		v, unit := units.DistanceIn(d.Totals.Distance, r.UnitSystem)
		style := barStyle
		if v == 0 {
			style = emptyStyle
		}
		bars[i] = barchart.BarData{
			Label:  d.Date.Format(layout),
			Values: []barchart.BarValue{{Name: unit, Value: v, Style: style}},
		}
	}
	return bars
}
