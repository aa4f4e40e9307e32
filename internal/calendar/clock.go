package calendar

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay is the number of minutes between two midnights on a day without DST changes.
const MinutesPerDay = 24 * 60

var (
	ErrInvalidClock = errors.New("invalid time of day, expected HH:MM")
	ErrInvalidRange = errors.New("time range start must be before end")
	ErrOverlapRange = errors.New("time ranges overlap")
)

// Clock is a wall-clock time of day expressed in minutes since midnight.
// The value MinutesPerDay ("24:00") is allowed as the end of a range.
type Clock int

// ParseClock parses "HH:MM". "24:00" is accepted, any other hour above 23 is not.
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return Clock(h*60 + m), nil
}

// MustClock is ParseClock for literals; it panics on malformed input.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) Valid() bool {
	return c >= 0 && c <= MinutesPerDay
}

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// On anchors the clock on the civil date of day in loc. "24:00" yields the next midnight.
func (c Clock) On(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, c.Hour(), c.Minute(), 0, 0, loc)
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(text []byte) error {
	parsed, err := ParseClock(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// TimeRange is a half-open [Start, End) range of wall-clock times within one day.
type TimeRange struct {
	Start Clock `json:"start"`
	End   Clock `json:"end"`
}

func (r TimeRange) Valid() bool {
	return r.Start.Valid() && r.End.Valid() && r.Start < r.End
}

func (r TimeRange) Overlaps(o TimeRange) bool {
	return r.Start < o.End && o.Start < r.End
}

func (r TimeRange) String() string {
	return r.Start.String() + "-" + r.End.String()
}

// On turns the range into an absolute interval on the given civil date.
func (r TimeRange) On(day time.Time, loc *time.Location) Interval {
	return Interval{Start: r.Start.On(day, loc), End: r.End.On(day, loc)}
}

// ValidateRanges checks that every range is well formed and that no two ranges overlap.
// Touching ranges are allowed.
func ValidateRanges(ranges []TimeRange) error {
	for i, r := range ranges {
		if !r.Valid() {
			return fmt.Errorf("%w: %s", ErrInvalidRange, r)
		}
		for _, other := range ranges[i+1:] {
			if r.Overlaps(other) {
				return fmt.Errorf("%w: %s and %s", ErrOverlapRange, r, other)
			}
		}
	}
	return nil
}
