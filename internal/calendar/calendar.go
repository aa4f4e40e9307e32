package calendar

import (
	"time"
)

// DateLayout is the ISO layout used for date keys.
const DateLayout = "2006-01-02"

// DateKey formats the civil date of t.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses an ISO date into a civil date at UTC midnight.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// CivilDate strips the clock from t keeping its year, month and day.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayCount is the number of civil dates from..to inclusive, or zero when to precedes from.
// It never allocates, so callers can cap a range before listing it.
func DayCount(from, to time.Time) int64 {
	from, to = CivilDate(from), CivilDate(to)
	if to.Before(from) {
		return 0
	}
	return (to.Unix()-from.Unix())/86400 + 1
}

// DaysBetween lists the civil dates from..to inclusive. It returns nil when to precedes from.
func DaysBetween(from, to time.Time) []time.Time {
	from, to = CivilDate(from), CivilDate(to)
	if to.Before(from) {
		return nil
	}
	var days []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// SpannedDates lists the civil dates in loc touched by iv.
func SpannedDates(iv Interval, loc *time.Location) []time.Time {
	if iv.Empty() {
		return nil
	}
	return DaysBetween(iv.Start.In(loc), iv.End.Add(-time.Nanosecond).In(loc))
}

// Calendar is one engineer's schedule model: a recurring weekly template, per-date
// overrides and blackout intervals. A present override key with an empty slice marks
// the date as unavailable all day.
type Calendar struct {
	Location  *time.Location
	Template  map[time.Weekday][]TimeRange
	Overrides map[string][]TimeRange
	Blackouts []Interval
}

func New(loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return &Calendar{
		Location:  loc,
		Template:  make(map[time.Weekday][]TimeRange),
		Overrides: make(map[string][]TimeRange),
	}
}

func (c *Calendar) AddWeekly(day time.Weekday, r TimeRange) {
	c.Template[day] = append(c.Template[day], r)
}

// SetOverride replaces the template for the civil date of day. An empty slice closes the date.
func (c *Calendar) SetOverride(day time.Time, ranges []TimeRange) {
	c.Overrides[DateKey(day)] = append([]TimeRange{}, ranges...)
}

func (c *Calendar) AddOverrideRange(day time.Time, r TimeRange) {
	key := DateKey(day)
	c.Overrides[key] = append(c.Overrides[key], r)
}

func (c *Calendar) HasOverride(day time.Time) bool {
	_, ok := c.Overrides[DateKey(day)]
	return ok
}

func (c *Calendar) AddBlackout(iv Interval) {
	if iv.Valid() {
		c.Blackouts = append(c.Blackouts, iv)
	}
}

// DeclaredWindowsFor returns the windows the engineer declared for the civil date of day:
// the override if one exists, otherwise the template for that weekday. Blackouts are
// not applied.
func (c *Calendar) DeclaredWindowsFor(day time.Time) []Interval {
	ranges, ok := c.Overrides[DateKey(day)]
	if !ok {
		ranges = c.Template[day.Weekday()]
	}

	out := make([]Interval, 0, len(ranges))
	for _, r := range ranges {
		if !r.Valid() {
			continue
		}
		out = append(out, r.On(day, c.Location))
	}
	SortIntervals(out)
	return out
}

// WindowsFor returns the declared windows for the date minus every blackout.
func (c *Calendar) WindowsFor(day time.Time) []Interval {
	return Subtract(c.DeclaredWindowsFor(day), c.Blackouts)
}
