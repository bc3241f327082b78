package storage

import (
	"fmt"
	"strings"
	"time"
)

// DefaultZone is the civil time zone of the deployment.
const DefaultZone = "America/New_York"

// TimestampLayout is the stored text form. Values are always UTC so every
// stored timestamp has the same width and compares lexically in time order.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

const (
	displayDayLayout  = "Mon Jan 2"
	displayTimeLayout = "3:04 PM"
	debugLayout       = "2006-01-02 15:04 MST"
)

// isoLayouts are tried in order by ParseISO for values without an offset.
var isoLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

func LoadZone(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load time zone %q: %w", name, err)
	}
	return loc, nil
}

// FormatTimestamp renders t in the stored text form.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp reads a stored timestamp back as a UTC instant.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// InZone keeps the wall clock of t and moves it to loc.
// It is used for values parsed without any zone information.
func InZone(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}

// ParseLocal parses a naive value with layout in loc.
func ParseLocal(layout, value string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(layout, strings.TrimSpace(value), loc)
}

// ParseISO parses ISO-8601 text. Values with an offset keep it,
// values without one are placed in loc.
func ParseISO(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrMissingStart
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported time %q", value)
}
