package utils

import (
	"fmt"
	"time"
)

// ParseRFC3339 returns a time from the provided string or an error. A 'Z'
// suffix yields UTC; explicit offsets are preserved.
func ParseRFC3339(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time: %w", err)
	}
	return t, nil
}

// ClockOffset returns the wall-clock time of day of t in its own location.
func ClockOffset(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
}

// FormatClockRange renders two instants as "HH:MM - HH:MM".
func FormatClockRange(start, end time.Time) string {
	return fmt.Sprintf("%s - %s", start.Format("15:04"), end.Format("15:04"))
}
