package model

import (
	"time"
)

// NormalizeInstant converts t to the canonical instant used for storage and
// timestamp comparisons: UTC, truncated to microsecond precision.
func NormalizeInstant(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// ParseInstant parses an RFC 3339 timestamp into its canonical instant.
func ParseInstant(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, err
	}
	return NormalizeInstant(t), nil
}
