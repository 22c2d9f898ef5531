package clippings

import (
	"strconv"
	"strings"
	"time"
)

// Location is a numeric position range extracted from a metadata line.
// End is nil for single-position entries ("location 512").
type Location struct {
	Start int
	End   *int
}

// Date formats observed in the wild, plus ISO variants some export tools
// produce.
var dateFormats = []string{
	"Monday, January 2, 2006 3:04:05 PM",
	"Monday, January 2, 2006 15:04:05",
	"Monday, 2 January 2006 3:04:05 PM",
	"Monday, 2 January 2006 15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseAddedDate parses the free-text portion after "Added on". The second
// return value is false when no format matched; callers are expected to fall
// back to their current processing time rather than reject the entry.
func ParseAddedDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseLocationRange parses "N" or "N-M" into a Location. Returns nil when
// the string is not a usable range; such entries proceed without a location
// and dedup falls back to content-hash keying.
func ParseLocationRange(s string) *Location {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	start, end, found := strings.Cut(s, "-")
	startVal, err := strconv.Atoi(strings.TrimSpace(start))
	if err != nil || startVal < 0 {
		return nil
	}

	loc := &Location{Start: startVal}
	if found {
		endVal, err := strconv.Atoi(strings.TrimSpace(end))
		if err != nil || endVal < startVal {
			return nil
		}
		loc.End = &endVal
	}
	return loc
}

// EffectiveEnd returns the range end, or the start for single-position
// locations. Association matching keys off this value.
func (l *Location) EffectiveEnd() int {
	if l.End != nil {
		return *l.End
	}
	return l.Start
}
