package fitfile

import (
	"sort"

	"github.com/sadopc/fitarchive/internal/records"
)

// point is one sample of the cumulative distance stream.
type point struct {
	seconds float64 // since session start
	meters  float64 // cumulative
}

// bestTimes returns, per standard distance label, the shortest elapsed
// time between two samples that are at least that distance apart. Samples
// must be ordered by time; distances that were never covered are absent.
func bestTimes(points []point) map[string]float64 {
	if len(points) < 2 {
		return nil
	}

	out := map[string]float64{}
	for _, d := range records.StandardDistances {
		best := -1.0
		i := 0
		for j := 1; j < len(points); j++ {
			if points[j].meters-points[i].meters < d.Meters {
				continue
			}
			// Tighten the window from the left while it still covers d.
			for i+1 < j && points[j].meters-points[i+1].meters >= d.Meters {
				i++
			}
			if t := points[j].seconds - points[i].seconds; best < 0 || t < best {
				best = t
			}
		}
		if best > 0 {
			out[d.Label] = best
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// sortPoints orders samples by time and drops samples whose cumulative
// distance went backwards, which some devices emit after a pause.
func sortPoints(points []point) []point {
	sort.SliceStable(points, func(i, j int) bool { return points[i].seconds < points[j].seconds })
	out := points[:0]
	for _, p := range points {
		if len(out) > 0 && p.meters < out[len(out)-1].meters {
			continue
		}
		out = append(out, p)
	}
	return out
}
