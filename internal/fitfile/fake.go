package fitfile

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Fake decodes a line-oriented text stand-in for FIT files. It is
// deterministic in the file bytes, so equal files share a fingerprint and
// decode to equal content. Recognised lines:
//
//	kind=activity|monitoring|<other>
//	start=<RFC3339>          sport=<name>      sub_sport=<name>
//	distance=<m>             duration=<s>      ascent=<m>
//	best.<label>=<s>
//	date=<YYYY-MM-DD>        steps=<n>         calories=<n>
//
// Unknown keys are ignored, which lets tests vary the bytes (and with them
// the fingerprint) without changing the content. A first line of "corrupt"
// makes Decode fail.
type Fake struct{}

var _ Decoder = Fake{}

func (Fake) Decode(data []byte) (*Content, error) {
	c := &Content{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if line == 1 && text == "corrupt" {
			return nil, fmt.Errorf("%w: corrupt header", ErrDecode)
		}
		key, value, ok := strings.Cut(text, "=")
		if !ok {
			return nil, fmt.Errorf("%w: line %d: missing '='", ErrDecode, line)
		}
		if err := c.setFake(key, value); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrDecode, line, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	switch c.Kind {
	case KindActivity:
		if c.Start.IsZero() {
			return nil, fmt.Errorf("%w: activity without start", ErrDecode)
		}
		if c.Activity.Duration > 0 {
			c.Activity.AvgSpeed = c.Activity.Distance / c.Activity.Duration
		}
	case KindMonitoring:
		if c.Date == "" {
			return nil, fmt.Errorf("%w: monitoring without date", ErrDecode)
		}
	}
	return c, nil
}

func (c *Content) setFake(key, value string) error {
	var err error
	switch {
	case key == "kind":
		switch value {
		case "activity":
			c.Kind = KindActivity
		case "monitoring":
			c.Kind = KindMonitoring
		default:
			c.Kind = KindUnknown
		}
	case key == "start":
		c.Start, err = time.Parse(time.RFC3339, value)
		c.Start = c.Start.UTC()
	case key == "sport":
		c.Sport = value
	case key == "sub_sport":
		c.SubSport = value
	case key == "distance":
		c.Activity.Distance, err = strconv.ParseFloat(value, 64)
	case key == "duration":
		c.Activity.Duration, err = strconv.ParseFloat(value, 64)
	case key == "ascent":
		c.Activity.Ascent, err = strconv.ParseFloat(value, 64)
	case strings.HasPrefix(key, "best."):
		var secs float64
		secs, err = strconv.ParseFloat(value, 64)
		if c.Activity.BestTimes == nil {
			c.Activity.BestTimes = map[string]float64{}
		}
		c.Activity.BestTimes[strings.TrimPrefix(key, "best.")] = secs
	case key == "date":
		_, err = time.Parse(time.DateOnly, value)
		c.Date = value
	case key == "steps":
		c.Monitoring.Steps, err = strconv.Atoi(value)
	case key == "calories":
		c.Monitoring.ActiveCalories, err = strconv.Atoi(value)
	}
	return err
}
