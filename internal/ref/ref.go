// Package ref parses and resolves symbolic activity references.
//
// A reference addresses activities by position in the archive's
// newest-first order:
//
//	:N     the N-th newest activity (:1 is the newest)
//	:-N    the N-th oldest activity (:-1 is the oldest)
//	:A-B   the inclusive range from position A to position B
//	:A--B  the same, with a negative second bound (:1--1 is everything)
package ref

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Marker prefixes every reference so it cannot be mistaken for a file path.
const Marker = ":"

var ErrInvalidReference = errors.New("invalid activity reference")

var (
	singlePattern = regexp.MustCompile(`^(-?\d+)$`)
	rangePattern  = regexp.MustCompile(`^(-?\d+)-(-?\d+)$`)
)

// Ref is a parsed reference. Start and End are signed 1-based positions;
// they are equal for single references.
type Ref struct {
	Start int
	End   int
	raw   string
}

func (r Ref) String() string {
	return r.raw
}

// IsRange reports whether r was written as a range.
func (r Ref) IsRange() bool {
	body := strings.TrimPrefix(strings.TrimPrefix(r.raw, Marker), "-")
	return strings.Contains(body, "-")
}

// IsReference reports whether s carries the reference marker.
func IsReference(s string) bool {
	return strings.HasPrefix(s, Marker)
}

func Parse(s string) (Ref, error) {
	if !IsReference(s) {
		return Ref{}, fmt.Errorf("%w: %q must start with %q", ErrInvalidReference, s, Marker)
	}
	body := s[len(Marker):]

	if m := singlePattern.FindStringSubmatch(body); m != nil {
		p, err := parsePosition(m[1], s)
		if err != nil {
			return Ref{}, err
		}
		return Ref{Start: p, End: p, raw: s}, nil
	}
	if m := rangePattern.FindStringSubmatch(body); m != nil {
		start, err := parsePosition(m[1], s)
		if err != nil {
			return Ref{}, err
		}
		end, err := parsePosition(m[2], s)
		if err != nil {
			return Ref{}, err
		}
		return Ref{Start: start, End: end, raw: s}, nil
	}
	return Ref{}, fmt.Errorf("%w: %q", ErrInvalidReference, s)
}

func parsePosition(digits, raw string) (int, error) {
	p, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidReference, raw, err)
	}
	if p == 0 {
		return 0, fmt.Errorf("%w: %q: index must not be 0", ErrInvalidReference, raw)
	}
	return p, nil
}

// Resolve maps r onto n activities ordered newest first and returns the
// half-open index interval [lo, hi). An empty archive resolves every
// reference to the empty interval. Out-of-range positions and ranges whose
// start lies after their end are errors; nothing is clamped.
func (r Ref) Resolve(n int) (lo, hi int, err error) {
	if n == 0 {
		return 0, 0, nil
	}
	a, err := index(r.Start, n)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q: %v", ErrInvalidReference, r.raw, err)
	}
	b, err := index(r.End, n)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q: %v", ErrInvalidReference, r.raw, err)
	}
	if a > b {
		return 0, 0, fmt.Errorf("%w: %q: range start lies after its end", ErrInvalidReference, r.raw)
	}
	return a, b + 1, nil
}

func index(p, n int) (int, error) {
	switch {
	case p > 0 && p <= n:
		return p - 1, nil
	case p < 0 && -p <= n:
		return n + p, nil
	}
	return 0, fmt.Errorf("index %d outside 1..%d", p, n)
}

// Select returns the items r designates. items must be ordered newest first.
func Select[T any](items []T, r Ref) ([]T, error) {
	lo, hi, err := r.Resolve(len(items))
	if err != nil {
		return nil, err
	}
	return items[lo:hi], nil
}

// Find parses s and selects from items in one step.
func Find[T any](items []T, s string) ([]T, error) {
	r, err := Parse(s)
	if err != nil {
		return nil, err
	}
	return Select(items, r)
}
