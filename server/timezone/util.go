// Package timezone provides timezone utilities shared by the dispatch
// scheduler's business-hours checks and log formatting.
package timezone

import (
	"fmt"
	"time"
)

// UTC is the coordinated universal time timezone.
var UTC = time.UTC

// TimezoneSaoPaulo is the default operating timezone of the prospect base.
const TimezoneSaoPaulo = "America/Sao_Paulo"

// LocationSaoPaulo is the pre-loaded America/Sao_Paulo location.
var LocationSaoPaulo = MustParseTimezone(TimezoneSaoPaulo)

// ParseTimezone parses an IANA timezone identifier (e.g., "America/Sao_Paulo").
// If the timezone is invalid, returns UTC and an error.
func ParseTimezone(tz string) (*time.Location, error) {
	if tz == "" || tz == "UTC" {
		return UTC, nil
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return UTC, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}

	return loc, nil
}

// MustParseTimezone parses a timezone or panics if invalid.
// Use this for constants that are known to be valid at compile time.
func MustParseTimezone(tz string) *time.Location {
	loc, err := ParseTimezone(tz)
	if err != nil {
		panic(err)
	}
	return loc
}

// IsValidTimezone checks if a timezone identifier is valid.
func IsValidTimezone(tz string) bool {
	if tz == "" || tz == "UTC" {
		return true
	}

	_, err := time.LoadLocation(tz)
	return err == nil
}

// ToLocal converts a Unix timestamp to the given timezone.
func ToLocal(ts int64, tz *time.Location) time.Time {
	if tz == nil {
		tz = UTC
	}
	return time.Unix(ts, 0).In(tz)
}

// FormatTimestamp formats a Unix timestamp in the given timezone.
// The format should be a valid Go time format string (e.g., "2006-01-02 15:04").
func FormatTimestamp(ts int64, tz *time.Location, format string) string {
	if tz == nil {
		tz = UTC
	}
	return time.Unix(ts, 0).In(tz).Format(format)
}

// StartOfDay returns the start of the day (00:00:00) in the given timezone.
func StartOfDay(t time.Time, tz *time.Location) time.Time {
	if tz == nil {
		tz = UTC
	}
	local := t.In(tz)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, tz)
}

// EndOfDay returns the end of the day (23:59:59.999999999) in the given timezone.
func EndOfDay(t time.Time, tz *time.Location) time.Time {
	if tz == nil {
		tz = UTC
	}
	local := t.In(tz)
	return time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, 999999999, tz)
}

// NowInTimezone returns the current time in the given timezone.
func NowInTimezone(tz *time.Location) time.Time {
	if tz == nil {
		tz = UTC
	}
	return time.Now().In(tz)
}
