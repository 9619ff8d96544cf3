package utils

import (
	"fmt"
	"strconv"
	"time"
)

// ParseRFC3339 returns a time from the provided string or an error.
func ParseRFC3339(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time: %w", err)
	}
	return t, nil
}

// ParseTimestamp accepts epoch seconds, epoch milliseconds, or RFC3339 (with
// or without a zone, naive times read as UTC). Empty input means now.
func ParseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Now().UTC(), nil
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		// Epoch milliseconds once the magnitude leaves plausible
		// second territory.
		if f > 1e12 {
			f /= 1000
		}
		sec := int64(f)
		nsec := int64((f - float64(sec)) * float64(time.Second))
		return time.Unix(sec, nsec).UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05", value); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", value)
}

// DurationMinutes converts a pair of timestamps into minute duration.
func DurationMinutes(start, end time.Time) float64 {
	if end.Before(start) {
		start, end = end, start
	}
	return end.Sub(start).Minutes()
}
