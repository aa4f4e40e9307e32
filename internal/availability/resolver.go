package availability

import (
	"context"
	"fmt"
	"sort"
	"time"

	"studiobook/internal/apperr"
	"studiobook/internal/calendar"
	"studiobook/internal/domain"
	"studiobook/internal/models"
)

// DaySlots is the free time of one engineer on one date.
type DaySlots struct {
	Date  string              `json:"date"`
	Slots []calendar.Interval `json:"slots"`
}

// DayAvailability describes one date: what the engineer declared and what is still free.
type DayAvailability struct {
	Date      string              `json:"date"`
	Override  bool                `json:"override"`
	Windows   []calendar.Interval `json:"windows"`
	FreeSlots []calendar.Interval `json:"freeSlots"`
}

// Resolver computes free slots from the weekly template, date overrides, confirmed
// holidays and active bookings of an engineer.
type Resolver struct {
	store        domain.ScheduleReader
	loc          *time.Location
	maxRangeDays int
}

func NewResolver(store domain.ScheduleReader, loc *time.Location, maxRangeDays int) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	if maxRangeDays <= 0 {
		maxRangeDays = models.DefaultMaxRangeDays
	}
	return &Resolver{store: store, loc: loc, maxRangeDays: maxRangeDays}
}

func (r *Resolver) Location() *time.Location {
	return r.loc
}

// Bounds returns the absolute span covering the civil dates from..to in the resolver's location.
func (r *Resolver) Bounds(from, to time.Time) calendar.Interval {
	start := calendar.Clock(0).On(from, r.loc)
	end := calendar.Clock(0).On(calendar.CivilDate(to).AddDate(0, 0, 1), r.loc)
	return calendar.Interval{Start: start, End: end}
}

// BuildCalendar assembles the calendar model. Only confirmed holidays become blackouts.
func BuildCalendar(loc *time.Location, schedule *models.Schedule, holidays []*models.Holiday) *calendar.Calendar {
	cal := calendar.New(loc)
	if schedule != nil {
		for _, w := range schedule.Weekly {
			cal.AddWeekly(w.Day.Weekday, w.Range())
		}
		for _, d := range schedule.ClosedDays {
			cal.SetOverride(d, nil)
		}
		for _, w := range schedule.Dated {
			cal.AddOverrideRange(w.Day.Date, w.Range())
		}
	}
	for _, h := range holidays {
		if h.Blocks() {
			cal.AddBlackout(h.Interval())
		}
	}
	return cal
}

// LoadCalendar reads everything needed to answer questions about [span.Start, span.End).
func (r *Resolver) LoadCalendar(ctx context.Context, engineerID int64, span calendar.Interval) (*calendar.Calendar, error) {
	return loadCalendar(ctx, r.store, r.loc, engineerID, span)
}

func loadCalendar(ctx context.Context, store domain.ScheduleReader, loc *time.Location, engineerID int64, span calendar.Interval) (*calendar.Calendar, error) {
	schedule, err := store.GetSchedule(ctx, engineerID, span.Start, span.End)
	if err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	holidays, err := store.ListHolidays(ctx, engineerID, span.Start, span.End)
	if err != nil {
		return nil, fmt.Errorf("load holidays: %w", err)
	}
	return BuildCalendar(loc, schedule, holidays), nil
}

// load returns the calendar and the busy intervals of span, read from one snapshot
// when the store supports it.
func (r *Resolver) load(ctx context.Context, engineerID int64, span calendar.Interval) (*calendar.Calendar, []calendar.Interval, error) {
	var (
		cal  *calendar.Calendar
		busy []calendar.Interval
	)
	read := func(store domain.ScheduleReader) error {
		var err error
		if cal, err = loadCalendar(ctx, store, r.loc, engineerID, span); err != nil {
			return err
		}
		busy, err = busyIntervals(ctx, store, engineerID, span)
		return err
	}

	var err error
	if snap, ok := r.store.(domain.SnapshotReader); ok {
		err = snap.ReadSnapshot(ctx, read)
	} else {
		err = read(r.store)
	}
	if err != nil {
		return nil, nil, err
	}
	return cal, busy, nil
}

// ComputeFreeSlots returns, for every date from..to inclusive, the declared windows
// minus blackouts and active bookings. Slots shorter than minDuration are dropped.
func (r *Resolver) ComputeFreeSlots(ctx context.Context, engineerID int64, from, to time.Time, minDuration time.Duration) ([]DaySlots, error) {
	days, err := r.days(from, to)
	if err != nil {
		return nil, err
	}

	cal, busy, err := r.load(ctx, engineerID, r.Bounds(from, to))
	if err != nil {
		return nil, err
	}

	out := make([]DaySlots, 0, len(days))
	for _, day := range days {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		free := calendar.Subtract(cal.WindowsFor(day), busy)
		out = append(out, DaySlots{
			Date:  calendar.DateKey(day),
			Slots: calendar.FilterMinDuration(free, minDuration),
		})
	}
	return out, nil
}

// FreeSlotsForDate describes a single date.
func (r *Resolver) FreeSlotsForDate(ctx context.Context, engineerID int64, date time.Time) (*DayAvailability, error) {
	cal, busy, err := r.load(ctx, engineerID, r.Bounds(date, date))
	if err != nil {
		return nil, err
	}

	windows := cal.WindowsFor(date)
	return &DayAvailability{
		Date:      calendar.DateKey(date),
		Override:  cal.HasOverride(date),
		Windows:   windows,
		FreeSlots: calendar.Subtract(windows, busy),
	}, nil
}

// WeeklyAvailability returns the recurring template ordered Monday first, then by start.
func (r *Resolver) WeeklyAvailability(ctx context.Context, engineerID int64) ([]models.Availability, error) {
	schedule, err := r.store.GetSchedule(ctx, engineerID, time.Time{}, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}

	rank := make(map[time.Weekday]int, len(models.WeekOrder))
	for i, d := range models.WeekOrder {
		rank[d] = i
	}

	out := append([]models.Availability(nil), schedule.Weekly...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Day.Weekday != out[j].Day.Weekday {
			return rank[out[i].Day.Weekday] < rank[out[j].Day.Weekday]
		}
		return out[i].Start < out[j].Start
	})
	return out, nil
}

func (r *Resolver) days(from, to time.Time) ([]time.Time, error) {
	n := calendar.DayCount(from, to)
	if n == 0 {
		return nil, apperr.New(apperr.KindInvalidInterval, "range start %s is after end %s",
			calendar.DateKey(from), calendar.DateKey(to))
	}
	if n > int64(r.maxRangeDays) {
		return nil, apperr.New(apperr.KindInvalidInterval, "range spans %d days, at most %d allowed",
			n, r.maxRangeDays)
	}
	return calendar.DaysBetween(from, to), nil
}

func busyIntervals(ctx context.Context, store domain.ScheduleReader, engineerID int64, span calendar.Interval) ([]calendar.Interval, error) {
	bookings, err := store.ListEngineerBookings(ctx, engineerID, span.Start, span.End)
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}
	busy := make([]calendar.Interval, 0, len(bookings))
	for _, b := range bookings {
		if b.Active() {
			busy = append(busy, b.Interval())
		}
	}
	return busy, nil
}
