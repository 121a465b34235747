// Package units formats archive quantities in the configured unit system.
package units

import (
	"fmt"
	"math"
)

const (
	Metric  = "metric"
	Statute = "statute"

	metersPerMile = 1609.344
	feetPerMeter  = 3.28084
)

// DistanceIn converts meters to km or miles and returns the unit label.
func DistanceIn(meters float64, system string) (float64, string) {
	if system == Statute {
		return meters / metersPerMile, "mi"
	}
	return meters / 1000, "km"
}

// Distance formats meters as km or miles.
func Distance(meters float64, system string) string {
	v, unit := DistanceIn(meters, system)
	return fmt.Sprintf("%.2f %s", v, unit)
}

// Elevation formats meters as m or ft.
func Elevation(meters float64, system string) string {
	if system == Statute {
		return fmt.Sprintf("%.0f ft", meters*feetPerMeter)
	}
	return fmt.Sprintf("%.0f m", meters)
}

// Pace formats a speed in m/s as time per km or per mile.
func Pace(speed float64, system string) string {
	if speed <= 0 {
		return "-"
	}
	unit, per := "/km", 1000.0
	if system == Statute {
		unit, per = "/mi", metersPerMile
	}
	secs := int64(math.Round(per / speed))
	return fmt.Sprintf("%d:%02d%s", secs/60, secs%60, unit)
}

// Duration formats seconds as hh:mm:ss.
func Duration(seconds float64) string {
	secs := int64(math.Round(seconds))
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
