// Package timeutil provides timezone-aware calendar helpers for period windows.
// The platform runs in Almaty time (UTC+5) by default, but every helper takes
// an explicit location so callers can rank in any configured zone.
// No external dependencies - uses only standard library.
package timeutil

import (
	"time"
)

// AlmatyTZ is the Almaty timezone (UTC+5, no DST).
// Kazakhstan abolished DST in 2005, so this is constant year-round.
var AlmatyTZ = time.FixedZone("Asia/Almaty", 5*60*60)

// DateKeyLayout is the layout of bucket keys ("2006-01-02").
const DateKeyLayout = "2006-01-02"

// LoadLocation resolves an IANA zone name, falling back to AlmatyTZ when the
// name is empty or the tz database does not know it.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return AlmatyTZ
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return AlmatyTZ
	}
	return loc
}

func orDefault(loc *time.Location) *time.Location {
	if loc == nil {
		return AlmatyTZ
	}
	return loc
}

// StartOfDay returns local midnight of the day containing t.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	loc = orDefault(loc)
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// StartOfWeek returns Monday 00:00 of the week containing t.
// Monday is fixed so a calendar week always maps to the same window.
func StartOfWeek(t time.Time, loc *time.Location) time.Time {
	loc = orDefault(loc)
	local := t.In(loc)
	weekday := int(local.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	return StartOfDay(local.AddDate(0, 0, -(weekday - 1)), loc)
}

// StartOfMonth returns the first day of the month containing t, at midnight.
func StartOfMonth(t time.Time, loc *time.Location) time.Time {
	loc = orDefault(loc)
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
}

// DateKey formats t as a YYYY-MM-DD key in the given location.
func DateKey(t time.Time, loc *time.Location) string {
	return t.In(orDefault(loc)).Format(DateKeyLayout)
}
