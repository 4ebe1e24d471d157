package tracking

import (
	"fmt"
	"strconv"
	"time"
)

const dateLayout = "2006-01-02"

// DefaultDayOffset is India Standard Time, the civil day used for routes.
const DefaultDayOffset = "+05:30"

// ParseOffset turns "+HH:MM" or "-HH:MM" into a fixed zone.
func ParseOffset(s string) (*time.Location, error) {
	if len(s) != 6 || (s[0] != '+' && s[0] != '-') || s[3] != ':' {
		return nil, fmt.Errorf("offset %q: want +HH:MM or -HH:MM", s)
	}
	hh, err := strconv.Atoi(s[1:3])
	if err != nil || hh > 14 {
		return nil, fmt.Errorf("offset %q: bad hours", s)
	}
	mm, err := strconv.Atoi(s[4:6])
	if err != nil || mm > 59 {
		return nil, fmt.Errorf("offset %q: bad minutes", s)
	}
	secs := hh*3600 + mm*60
	if s[0] == '-' {
		secs = -secs
	}
	return time.FixedZone("UTC"+s, secs), nil
}

// DayWindow returns the inclusive [start, end] instants of the civil day date
// (YYYY-MM-DD) in loc. end is the last millisecond of the day.
func DayWindow(date string, loc *time.Location) (time.Time, time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := d
	end := d.AddDate(0, 0, 1).Add(-time.Millisecond)
	return start.UTC(), end.UTC(), nil
}

// CivilDate is the YYYY-MM-DD of t as seen in loc.
func CivilDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(dateLayout)
}
