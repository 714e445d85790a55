package types

import "time"

// DayWindow is a half-open [Start, End) calendar day in a location.
type DayWindow struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w DayWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// DayOf returns the calendar day containing t as observed in loc.
// A nil loc means UTC. End is computed with AddDate so days that are
// 23 or 25 hours long around DST changes keep their real length.
func DayOf(t time.Time, loc *time.Location) DayWindow {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return DayWindow{Start: start, End: start.AddDate(0, 0, 1)}
}

// LoadLocation resolves an IANA zone name, falling back to def when the
// name is empty or unknown.
func LoadLocation(name string, def *time.Location) *time.Location {
	if def == nil {
		def = time.UTC
	}
	if name == "" {
		return def
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return def
	}
	return loc
}
