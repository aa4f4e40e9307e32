package models

import (
	"fmt"
	"strings"
	"time"

	"studiobook/internal/calendar"
)

var weekdayNames = map[string]time.Weekday{
	"SUNDAY":    time.Sunday,
	"MONDAY":    time.Monday,
	"TUESDAY":   time.Tuesday,
	"WEDNESDAY": time.Wednesday,
	"THURSDAY":  time.Thursday,
	"FRIDAY":    time.Friday,
	"SATURDAY":  time.Saturday,
}

// WeekOrder lists weekdays Monday first.
var WeekOrder = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday,
}

// Day identifies either a recurring weekday of the template or one calendar date of an
// override. Exactly one of the two is meaningful: Date is zero for weekly days.
type Day struct {
	Weekday time.Weekday
	Date    time.Time
}

func WeeklyDay(w time.Weekday) Day {
	return Day{Weekday: w}
}

func DateDay(d time.Time) Day {
	d = calendar.CivilDate(d)
	return Day{Weekday: d.Weekday(), Date: d}
}

// ParseDay accepts an English weekday name (any case) or an ISO date.
func ParseDay(s string) (Day, error) {
	s = strings.TrimSpace(s)
	if w, ok := weekdayNames[strings.ToUpper(s)]; ok {
		return WeeklyDay(w), nil
	}
	d, err := calendar.ParseDate(s)
	if err != nil {
		return Day{}, fmt.Errorf("day %q is neither a weekday name nor a YYYY-MM-DD date", s)
	}
	return DateDay(d), nil
}

func (d Day) IsDate() bool {
	return !d.Date.IsZero()
}

func (d Day) String() string {
	if d.IsDate() {
		return calendar.DateKey(d.Date)
	}
	return strings.ToUpper(d.Weekday.String())
}

func (d Day) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Day) UnmarshalText(text []byte) error {
	parsed, err := ParseDay(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Availability is one window of an engineer's schedule. A weekly Day makes it part of
// the recurring template, a dated Day part of that date's override.
type Availability struct {
	ID         int64          `json:"id"`
	EngineerID int64          `json:"engineerId"`
	Day        Day            `json:"day"`
	Start      calendar.Clock `json:"start"`
	End        calendar.Clock `json:"end"`
}

func (a *Availability) Range() calendar.TimeRange {
	return calendar.TimeRange{Start: a.Start, End: a.End}
}

// Schedule is everything needed to build one engineer's calendar.
type Schedule struct {
	EngineerID int64
	Weekly     []Availability
	Dated      []Availability
	ClosedDays []time.Time
}
