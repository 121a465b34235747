// Package records derives personal records from the activity history.
//
// The record set is a pure function of the activities that do not carry the
// norecord flag, replayed in timestamp order. A value only replaces the
// current holder when it is strictly better, so ties keep the earlier
// activity. Insert and Delete are shortcuts that fall back to Recompute
// whenever they cannot guarantee the same result.
package records

import (
	"sort"

	"github.com/sadopc/fitarchive/internal/store"
)

// Distance is a standard race distance tracked for fastest times.
type Distance struct {
	Label  string
	Meters float64
}

// StandardDistances are the distances for which fastest times are kept.
var StandardDistances = []Distance{
	{"1k", 1000},
	{"1mi", 1609.344},
	{"5k", 5000},
	{"10k", 10000},
	{"half_marathon", 21097.5},
	{"marathon", 42195},
}

// Metric names.
const (
	LongestDistance = "longest_distance"
	LongestDuration = "longest_duration"
	MostAscent      = "most_ascent"
	fastestPrefix   = "fastest_"
)

type metric struct {
	name          string
	lowerIsBetter bool
	value         func(s store.ActivitySummary) (float64, bool)
}

func (m metric) better(candidate, current float64) bool {
	if m.lowerIsBetter {
		return candidate < current
	}
	return candidate > current
}

var metrics = buildMetrics()

func buildMetrics() []metric {
	ms := []metric{
		{name: LongestDistance, value: positive(func(s store.ActivitySummary) float64 { return s.Distance })},
		{name: LongestDuration, value: positive(func(s store.ActivitySummary) float64 { return s.Duration })},
		{name: MostAscent, value: positive(func(s store.ActivitySummary) float64 { return s.Ascent })},
	}
	for _, d := range StandardDistances {
		label := d.Label
		ms = append(ms, metric{
			name:          FastestMetric(label),
			lowerIsBetter: true,
			value: func(s store.ActivitySummary) (float64, bool) {
				secs, ok := s.BestTimes[label]
				return secs, ok && secs > 0
			},
		})
	}
	return ms
}

func positive(f func(store.ActivitySummary) float64) func(store.ActivitySummary) (float64, bool) {
	return func(s store.ActivitySummary) (float64, bool) {
		v := f(s)
		return v, v > 0
	}
}

// FastestMetric returns the metric name for the fastest time over a
// standard distance label.
func FastestMetric(label string) string {
	return fastestPrefix + label
}

// Key identifies one record.
type Key struct {
	Sport  string
	Metric string
}

// Set maps each (sport, metric) to its current holder.
type Set map[Key]store.Record

// FromRecords rebuilds a Set from persisted records.
func FromRecords(rs []store.Record) Set {
	set := make(Set, len(rs))
	for _, r := range rs {
		set[Key{r.Sport, r.Metric}] = r
	}
	return set
}

// Records returns the set ordered by sport and metric.
func (s Set) Records() []store.Record {
	out := make([]store.Record, 0, len(s))
	for _, r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sport != out[j].Sport {
			return out[i].Sport < out[j].Sport
		}
		return out[i].Metric < out[j].Metric
	})
	return out
}

// HeldBy reports whether the activity holds at least one record.
func (s Set) HeldBy(activityID string) bool {
	for _, r := range s {
		if r.ActivityID == activityID {
			return true
		}
	}
	return false
}

// Equal reports whether both sets contain the same holders and values.
func (s Set) Equal(o Set) bool {
	if len(s) != len(o) {
		return false
	}
	for k, r := range s {
		other, ok := o[k]
		if !ok || other.ActivityID != r.ActivityID || other.Value != r.Value {
			return false
		}
	}
	return true
}

func (s Set) apply(a store.Activity) {
	if a.NoRecord {
		return
	}
	for _, m := range metrics {
		v, ok := m.value(a.Summary)
		if !ok {
			continue
		}
		k := Key{Sport: a.Sport, Metric: m.name}
		if cur, exists := s[k]; exists && !m.better(v, cur.Value) {
			continue
		}
		s[k] = store.Record{
			Sport:      a.Sport,
			Metric:     m.name,
			Value:      v,
			ActivityID: a.ID,
			Timestamp:  a.Timestamp,
		}
	}
}

// Recompute replays activities in timestamp order and returns the
// resulting record set. The input slice is not modified.
func Recompute(activities []store.Activity) Set {
	ordered := make([]store.Activity, len(activities))
	copy(ordered, activities)
	sort.SliceStable(ordered, func(i, j int) bool {
		return before(ordered[i], ordered[j])
	})

	set := Set{}
	for _, a := range ordered {
		set.apply(a)
	}
	return set
}

// Insert updates set for a newly added activity. history is the activity
// index after the insertion. The incremental path is taken only when a is
// the newest activity; anything older may displace a tying holder, so that
// case is recomputed.
func Insert(set Set, a store.Activity, history []store.Activity) Set {
	for _, h := range history {
		if h.ID != a.ID && before(a, h) {
			return Recompute(history)
		}
	}
	out := make(Set, len(set))
	for k, r := range set {
		out[k] = r
	}
	out.apply(a)
	return out
}

// Delete updates set after a was removed. remaining is the activity index
// after the removal. Removing a holder requires the next best historical
// value, which only a full replay can produce.
func Delete(set Set, a store.Activity, remaining []store.Activity) Set {
	if set.HeldBy(a.ID) {
		return Recompute(remaining)
	}
	return set
}

func before(a, b store.Activity) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.ID < b.ID
}
