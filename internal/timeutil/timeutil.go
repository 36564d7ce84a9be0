// Package timeutil formats and parses the UTC timestamps exchanged with the UI.
package timeutil

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// TimestampLayout is the canonical text form: no zone suffix, UTC implied,
	// fractional seconds only when present.
	TimestampLayout = "2006-01-02T15:04:05.999999"
	// DateLayout is the calendar-date form used by the timeline.
	DateLayout = "2006-01-02"
)

// ErrInvalidTimestamp is returned for input that matches none of the accepted forms.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

var parseLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
	DateLayout,
}

// FormatTimestamp renders t in UTC using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp accepts YYYY-MM-DDTHH:MM:SS[.fff…], the same with a space
// separator, RFC 3339, or a bare date. Values without a zone are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidTimestamp)
	}
	for _, layout := range parseLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}

// ParseDate parses a YYYY-MM-DD calendar date as UTC midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
	}
	return t, nil
}

// StartOfDay truncates t to UTC midnight.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayBounds returns [midnight, next midnight) in UTC for the day containing t.
func DayBounds(t time.Time) (time.Time, time.Time) {
	start := StartOfDay(t)
	return start, start.Add(24 * time.Hour)
}

// DateString formats the UTC calendar date of t.
func DateString(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// Clock abstracts the time source.
type Clock interface {
	Now() time.Time
}

// UTCClock reads the system clock in UTC.
type UTCClock struct{}

func (UTCClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant.
type FixedClock time.Time

func (c FixedClock) Now() time.Time { return time.Time(c) }
