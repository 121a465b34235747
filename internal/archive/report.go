package archive

import (
	"time"

	"github.com/sadopc/fitarchive/internal/store"
)

// Totals sums up activities.
type Totals struct {
	Activities int
	Distance   float64 // meters
	Duration   float64 // seconds
	Ascent     float64 // meters
}

func (t *Totals) add(a store.Activity) {
	t.Activities++
	t.Distance += a.Summary.Distance
	t.Duration += a.Summary.Duration
	t.Ascent += a.Summary.Ascent
}

func (t *Totals) merge(o Totals) {
	t.Activities += o.Activities
	t.Distance += o.Distance
	t.Duration += o.Duration
	t.Ascent += o.Ascent
}

// Day is one calendar day of a report.
type Day struct {
	Date       time.Time
	Monitoring *store.MonitoringSummary // nil without monitoring data
	Activities []store.Activity
	Totals     Totals
}

// Report is the data behind the daily, weekly and monthly views. Days
// cover [From, To) in From's location.
type Report struct {
	From       time.Time
	To         time.Time
	Days       []Day
	Totals     Totals
	Steps      int
	UnitSystem string
}

// Daily reports the calendar day containing date.
func (a *Archive) Daily(date time.Time) (*Report, error) {
	from := startOfDay(date)
	return a.report(from, from.AddDate(0, 0, 1))
}

// Weekly reports the week containing date. Weeks start on the configured
// week_start_day.
func (a *Archive) Weekly(date time.Time) (*Report, error) {
	cfg, err := a.Config()
	if err != nil {
		return nil, err
	}
	from := startOfWeek(date, time.Weekday(cfg.WeekStartDay))
	return a.report(from, from.AddDate(0, 0, 7))
}

// Monthly reports the calendar month containing date.
func (a *Archive) Monthly(date time.Time) (*Report, error) {
	from := time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, date.Location())
	return a.report(from, from.AddDate(0, 1, 0))
}

func (a *Archive) report(from, to time.Time) (*Report, error) {
	cfg, err := a.Config()
	if err != nil {
		return nil, err
	}

	fromUTC, toUTC := from.UTC(), to.UTC()
	acts, err := a.store.ListActivities(store.ActivityFilter{From: &fromUTC, To: &toUTC})
	if err != nil {
		return nil, err
	}
	monitoring, err := a.store.ListMonitoring(from.Format(time.DateOnly), to.Format(time.DateOnly))
	if err != nil {
		return nil, err
	}
	byDate := make(map[string]store.MonitoringSummary, len(monitoring))
	for _, m := range monitoring {
		byDate[m.Date] = m.Summary
	}

	r := &Report{From: from, To: to, UnitSystem: cfg.UnitSystem}
	loc := from.Location()
	i := 0
	for day := from; day.Before(to); day = day.AddDate(0, 0, 1) {
		d := Day{Date: day}
		if m, ok := byDate[day.Format(time.DateOnly)]; ok {
			d.Monitoring = &m
			r.Steps += m.Steps
		}
		next := day.AddDate(0, 0, 1)
		for ; i < len(acts) && acts[i].Timestamp.In(loc).Before(next); i++ {
			d.Activities = append(d.Activities, acts[i])
			d.Totals.add(acts[i])
		}
		r.Totals.merge(d.Totals)
		r.Days = append(r.Days, d)
	}
	return r, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func startOfWeek(t time.Time, first time.Weekday) time.Time {
	back := (int(t.Weekday()) - int(first) + 7) % 7
	return startOfDay(t).AddDate(0, 0, -back)
}
