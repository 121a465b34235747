package fitfile

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/tormoder/fit"
)

// FIT decodes Garmin FIT files.
type FIT struct{}

var _ Decoder = FIT{}

// fitEpoch is the zero point of FIT timestamps. Invalid timestamps decode
// to it or to the zero time.
var fitEpoch = time.Date(1989, 12, 31, 0, 0, 0, 0, time.UTC)

func (FIT) Decode(data []byte) (*Content, error) {
	f, err := fit.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	switch f.Type() {
	case fit.FileTypeActivity:
		a, err := f.Activity()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return activityContent(a)
	case fit.FileTypeMonitoringB:
		m, err := f.MonitoringB()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return monitoringContent(m)
	}
	return &Content{Kind: KindUnknown}, nil
}

func activityContent(a *fit.ActivityFile) (*Content, error) {
	if len(a.Sessions) == 0 {
		return nil, fmt.Errorf("%w: activity has no session", ErrDecode)
	}

	first := a.Sessions[0]
	c := &Content{
		Kind:     KindActivity,
		Start:    first.StartTime.UTC(),
		Sport:    enumName(first.Sport.String(), "Sport"),
		SubSport: enumName(first.SubSport.String(), "SubSport"),
	}
	if !validTime(first.StartTime) {
		return nil, fmt.Errorf("%w: session has no start time", ErrDecode)
	}

	var hrSum, hrSessions int
	for _, s := range a.Sessions {
		c.Activity.Distance += scaled32(s.TotalDistance, 100)
		c.Activity.Duration += scaled32(s.TotalTimerTime, 1000)
		if s.TotalAscent != math.MaxUint16 {
			c.Activity.Ascent += float64(s.TotalAscent)
		}
		if s.TotalCalories != math.MaxUint16 {
			c.Activity.Calories += int(s.TotalCalories)
		}
		if s.AvgHeartRate != math.MaxUint8 && s.AvgHeartRate > 0 {
			hrSum += int(s.AvgHeartRate)
			hrSessions++
		}
	}
	if c.Activity.Duration > 0 {
		c.Activity.AvgSpeed = c.Activity.Distance / c.Activity.Duration
	}
	if hrSessions > 0 {
		c.Activity.AvgHeartRate = hrSum / hrSessions
	}

	points := make([]point, 0, len(a.Records))
	for _, r := range a.Records {
		if r.Distance == math.MaxUint32 || !validTime(r.Timestamp) {
			continue
		}
		points = append(points, point{
			seconds: r.Timestamp.Sub(first.StartTime).Seconds(),
			meters:  float64(r.Distance) / 100,
		})
	}
	c.Activity.BestTimes = bestTimes(sortPoints(points))
	return c, nil
}

func monitoringContent(m *fit.MonitoringBFile) (*Content, error) {
	var day time.Time
	if m.MonitoringInfo != nil && validTime(m.MonitoringInfo.Timestamp) {
		day = m.MonitoringInfo.Timestamp
	}

	// Steps, distance and calories are cumulative per activity type, so the
	// daily value is the sum of each type's maximum.
	steps := map[fit.ActivityType]uint32{}
	distance := map[fit.ActivityType]uint32{}
	calories := map[fit.ActivityType]uint16{}
	c := &Content{Kind: KindMonitoring}

	for _, s := range m.Monitorings {
		if day.IsZero() && validTime(s.Timestamp) {
			day = s.Timestamp
		}
		c.Monitoring.Samples++
		walking := s.ActivityType == fit.ActivityTypeWalking || s.ActivityType == fit.ActivityTypeRunning
		if walking && s.Cycles != math.MaxUint32 && s.Cycles > steps[s.ActivityType] {
			steps[s.ActivityType] = s.Cycles
		}
		if s.Distance != math.MaxUint32 && s.Distance > distance[s.ActivityType] {
			distance[s.ActivityType] = s.Distance
		}
		if s.Calories != math.MaxUint16 && s.Calories > calories[s.ActivityType] {
			calories[s.ActivityType] = s.Calories
		}
	}
	if day.IsZero() {
		return nil, fmt.Errorf("%w: monitoring file has no timestamp", ErrDecode)
	}

	for _, v := range steps {
		c.Monitoring.Steps += int(v)
	}
	for _, v := range distance {
		c.Monitoring.Distance += float64(v) / 100
	}
	for _, v := range calories {
		c.Monitoring.ActiveCalories += int(v)
	}
	c.Date = day.UTC().Format(time.DateOnly)
	return c, nil
}

func scaled32(v uint32, scale float64) float64 {
	if v == math.MaxUint32 {
		return 0
	}
	return float64(v) / scale
}

func validTime(t time.Time) bool {
	return !t.IsZero() && t.After(fitEpoch)
}

// enumName normalises generated enum names ("Running", "SportRunning",
// "TrailRunning") to the lower snake case stored in the archive.
func enumName(s, prefix string) string {
	s = strings.TrimPrefix(s, prefix)
	if s == "" || s == "Invalid" || strings.ContainsRune(s, '(') {
		return ""
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}
