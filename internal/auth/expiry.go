package auth

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var expiryPattern = regexp.MustCompile(`^(-?\d*\.?\d+)\s*([a-z]*)$`)

const (
	msPerSecond = 1000
	msPerMinute = 60 * msPerSecond
	msPerHour   = 60 * msPerMinute
	msPerDay    = 24 * msPerHour
	msPerWeek   = 7 * msPerDay
	msPerYear   = 365.25 * msPerDay

	// largest window that still fits in a time.Duration
	maxExpiryMs = math.MaxInt64 / int64(time.Millisecond)
)

var expiryUnits = map[string]float64{
	"":             1,
	"ms":           1,
	"msec":         1,
	"msecs":        1,
	"millisecond":  1,
	"milliseconds": 1,
	"s":            msPerSecond,
	"sec":          msPerSecond,
	"secs":         msPerSecond,
	"second":       msPerSecond,
	"seconds":      msPerSecond,
	"m":            msPerMinute,
	"min":          msPerMinute,
	"mins":         msPerMinute,
	"minute":       msPerMinute,
	"minutes":      msPerMinute,
	"h":            msPerHour,
	"hr":           msPerHour,
	"hrs":          msPerHour,
	"hour":         msPerHour,
	"hours":        msPerHour,
	"d":            msPerDay,
	"day":          msPerDay,
	"days":         msPerDay,
	"w":            msPerWeek,
	"week":         msPerWeek,
	"weeks":        msPerWeek,
	"y":            msPerYear,
	"yr":           msPerYear,
	"yrs":          msPerYear,
	"year":         msPerYear,
	"years":        msPerYear,
}

// ParseExpiry converts a human-readable window such as "15m", "1h" or "30d" into
// milliseconds. A bare number is taken as milliseconds.
func ParseExpiry(value string) (int64, error) {
	s := strings.ToLower(strings.TrimSpace(value))
	if s == "" || len(s) > 100 {
		return 0, fmt.Errorf("invalid expiry %q", value)
	}
	m := expiryPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid expiry %q", value)
	}
	unit, ok := expiryUnits[m[2]]
	if !ok {
		return 0, fmt.Errorf("invalid expiry %q: unknown unit %q", value, m[2])
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid expiry %q: %w", value, err)
	}
	ms := math.Round(n * unit)
	if ms <= 0 {
		return 0, fmt.Errorf("invalid expiry %q: must be positive", value)
	}
	if ms > float64(maxExpiryMs) {
		return 0, fmt.Errorf("invalid expiry %q: exceeds maximum duration", value)
	}
	return int64(ms), nil
}

// ExpirySeconds parses value and floors it to whole seconds for signing
func ExpirySeconds(value string) (int64, error) {
	ms, err := ParseExpiry(value)
	if err != nil {
		return 0, err
	}
	secs := ms / msPerSecond
	if secs < 1 {
		return 0, fmt.Errorf("invalid expiry %q: shorter than one second", value)
	}
	return secs, nil
}
