package view

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sadopc/fitarchive/internal/archive"
	"github.com/sadopc/fitarchive/internal/records"
	"github.com/sadopc/fitarchive/internal/store"
	"github.com/sadopc/fitarchive/internal/units"
)

var day = time.Date(2024, 5, 6, 7, 30, 0, 0, time.UTC)

func sample() []store.Activity {
	return []store.Activity{
		{ID: "b", Name: "Tempo", Sport: "running", SubSport: "track", Timestamp: day.Add(24 * time.Hour),
			Summary: store.ActivitySummary{Distance: 8000, Duration: 2400, AvgSpeed: 8000.0 / 2400}},
		{ID: "a", Name: "Easy", Sport: "running", Timestamp: day,
			Summary: store.ActivitySummary{Distance: 5000, Duration: 1500, Ascent: 40,
				BestTimes: map[string]float64{"1k": 290, "5k": 1500}}},
	}
}

func TestActivities(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Activities(&buf, sample(), units.Metric))
	out := buf.String()
	for _, want := range []string{":1", ":2", "Tempo", "Easy", "running/track", "8.00 km", "00:40:00", "5:00/km"} {
		assert.Contains(t, out, want)
	}
}

func TestActivitiesEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Activities(&buf, nil, units.Metric))
	assert.Contains(t, buf.String(), "No activities.")
}

func TestActivityRowsFollowOrder(t *testing.T) {
	rows := ActivityRows(sample(), units.Statute)
	require.Len(t, rows, 2)
	assert.Equal(t, ":1", rows[0][0])
	assert.Equal(t, "Tempo", rows[0][2])
	assert.Equal(t, "3.11 mi", rows[1][4])
	assert.Len(t, rows[0], len(ActivityHeaders))
}

func TestSummary(t *testing.T) {
	a := sample()[1]
	a.Note = "felt good"
	a.NoRecord = true

	var buf bytes.Buffer
	require.NoError(t, Summary(&buf, a, units.Metric))
	out := buf.String()
	for _, want := range []string{"Easy", "5.00 km", "40 m", "Best 1k", "00:04:50", "felt good", "excluded"} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "Heart rate")
}

func TestRecordLabelAndValue(t *testing.T) {
	assert.Equal(t, "Longest distance", RecordLabel(records.LongestDistance))
	assert.Equal(t, "Fastest half marathon", RecordLabel(records.FastestMetric("half_marathon")))
	assert.Equal(t, "custom", RecordLabel("custom"))

	assert.Equal(t, "10.00 km", RecordValue(store.Record{Metric: records.LongestDistance, Value: 10000}, units.Metric))
	assert.Equal(t, "328 ft", RecordValue(store.Record{Metric: records.MostAscent, Value: 100}, units.Statute))
	assert.Equal(t, "00:25:00", RecordValue(store.Record{Metric: records.FastestMetric("5k"), Value: 1500}, units.Metric))
}

func TestRecords(t *testing.T) {
	recs := records.Recompute(sample()).Records()
	names := map[string]string{"a": "Easy", "b": "Tempo"}

	var buf bytes.Buffer
	require.NoError(t, Records(&buf, recs, names, units.Metric))
	out := buf.String()
	assert.Contains(t, out, "Longest distance")
	assert.Contains(t, out, "Tempo")
	assert.Contains(t, out, "Fastest 5k")

	buf.Reset()
	require.NoError(t, Records(&buf, nil, names, units.Metric))
	assert.Contains(t, buf.String(), "No records yet.")
}

func weekReport() *archive.Report {
	from := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	acts := sample()
	r := &archive.Report{From: from, To: from.AddDate(0, 0, 7), UnitSystem: units.Metric}
	for i := 0; i < 7; i++ {
		d := archive.Day{Date: from.AddDate(0, 0, i)}
		switch i {
		case 0:
			d.Activities = []store.Activity{acts[1]}
			d.Monitoring = &store.MonitoringSummary{Steps: 9000}
		case 1:
			d.Activities = []store.Activity{acts[0]}
		}
		for _, a := range d.Activities {
			d.Totals.Activities++
			d.Totals.Distance += a.Summary.Distance
			d.Totals.Duration += a.Summary.Duration
		}
		r.Totals.Activities += d.Totals.Activities
		r.Totals.Distance += d.Totals.Distance
		r.Totals.Duration += d.Totals.Duration
		r.Days = append(r.Days, d)
	}
	r.Steps = 9000
	return r
}

func TestBars(t *testing.T) {
	bars := Bars(weekReport())
	require.Len(t, bars, 7)
	assert.Equal(t, "Mon", bars[0].Label)
	assert.Equal(t, 5.0, bars[0].Values[0].Value)
	assert.Equal(t, "km", bars[0].Values[0].Name)
	assert.Equal(t, 8.0, bars[1].Values[0].Value)
	assert.Zero(t, bars[2].Values[0].Value)
}

func TestReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Report(&buf, "Weekly", weekReport(), 60))
	out := buf.String()
	for _, want := range []string{"Weekly", "2024-05-06 .. 2024-05-12", "Total", "13.00 km", "9000", "Easy", "running"} {
		assert.Contains(t, out, want)
	}
}

func TestReportEmptyDay(t *testing.T) {
	from := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	r := &archive.Report{From: from, To: from.AddDate(0, 0, 1), Days: []archive.Day{{Date: from}}}

	var buf bytes.Buffer
	require.NoError(t, Report(&buf, "Daily", r, 60))
	assert.Contains(t, buf.String(), "No activities in this period.")
}

func TestFailures(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Failures(&buf, nil))
	assert.Contains(t, buf.String(), "No problems found.")

	buf.Reset()
	require.NoError(t, Failures(&buf, []archive.Failure{{Path: "/x.fit", Err: errors.New("bad crc")}}))
	assert.Contains(t, buf.String(), "/x.fit: bad crc")
}
