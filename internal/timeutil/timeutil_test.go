package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want string
	}{
		{"whole seconds", time.Date(2026, 2, 25, 10, 30, 0, 0, time.UTC), "2026-02-25T10:30:00"},
		{"micros", time.Date(2026, 2, 25, 10, 30, 0, 123456000, time.UTC), "2026-02-25T10:30:00.123456"},
		{"trailing zeros trimmed", time.Date(2026, 2, 25, 10, 30, 0, 500000000, time.UTC), "2026-02-25T10:30:00.5"},
		{"converted to UTC", time.Date(2026, 2, 25, 12, 0, 0, 0, time.FixedZone("CET", 3600)), "2026-02-25T11:00:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatTimestamp(tt.in))
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2026, 2, 25, 1, 0, 0, 0, time.UTC)
	for _, in := range []string{
		"2026-02-25T01:00:00",
		"2026-02-25 01:00:00",
		"2026-02-25T01:00:00Z",
		"2026-02-25T02:00:00+01:00",
	} {
		got, err := ParseTimestamp(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), "%s parsed as %s", in, got)
	}

	got, err := ParseTimestamp("2026-02-25T01:00:00.25")
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, time.Duration(got.Nanosecond()))

	got, err = ParseTimestamp("2026-02-25")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 25, 0, 0, 0, 0, time.UTC), got)
}

func TestParseTimestamp_Invalid(t *testing.T) {
	for _, in := range []string{"", "yesterday", "2026-13-01", "2026-02-25T25:00:00", "'; DROP TABLE detections; --"} {
		_, err := ParseTimestamp(in)
		assert.ErrorIs(t, err, ErrInvalidTimestamp, in)
	}
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2026-02-25")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 25, 0, 0, 0, 0, time.UTC), got)

	_, err = ParseDate("25/02/2026")
	assert.ErrorIs(t, err, ErrInvalidTimestamp)
	_, err = ParseDate("2026-02-25T10:00:00")
	assert.ErrorIs(t, err, ErrInvalidTimestamp)
}

func TestDayBounds(t *testing.T) {
	start, end := DayBounds(time.Date(2026, 2, 25, 17, 45, 12, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 2, 25, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 2, 26, 0, 0, 0, 0, time.UTC), end)
	assert.Equal(t, "2026-02-25", DateString(start))
}

func TestFixedClock(t *testing.T) {
	at := time.Date(2026, 2, 25, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, at, FixedClock(at).Now())
}
