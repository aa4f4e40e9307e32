package domain

import (
	"context"
	"time"

	"studiobook/internal/calendar"
	"studiobook/internal/models"
)

// ScheduleReader loads the inputs of an engineer's calendar for an absolute time range.
type ScheduleReader interface {
	GetSchedule(ctx context.Context, engineerID int64, from, to time.Time) (*models.Schedule, error)
	ListHolidays(ctx context.Context, userID int64, from, to time.Time) ([]*models.Holiday, error)
	ListEngineerBookings(ctx context.Context, engineerID int64, from, to time.Time) ([]*models.Booking, error)
}

// SnapshotReader is implemented by stores that can serve several reads from one
// consistent state.
type SnapshotReader interface {
	ReadSnapshot(ctx context.Context, fn func(ScheduleReader) error) error
}

type ScheduleStore interface {
	ScheduleReader
	GetAvailability(ctx context.Context, id int64) (*models.Availability, error)
	ListDayWindows(ctx context.Context, engineerID int64, day models.Day) ([]*models.Availability, error)
	CreateAvailability(ctx context.Context, a *models.Availability) error
	UpdateAvailability(ctx context.Context, a *models.Availability) error
	DeleteAvailability(ctx context.Context, id int64) error
	ReplaceDayOverride(ctx context.Context, engineerID int64, date time.Time, ranges []calendar.TimeRange) ([]*models.Availability, error)
	ClearDayOverride(ctx context.Context, engineerID int64, date time.Time) error
}

type BookingStore interface {
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error)
	ListStudioBookings(ctx context.Context, studioID int64, from, to time.Time) ([]*models.Booking, error)
	CreateBooking(ctx context.Context, booking *models.Booking) error
	UpdateBookingState(ctx context.Context, id, fromVersion int64, state models.BookingState) (*models.Booking, error)
}

type HolidayStore interface {
	GetHoliday(ctx context.Context, id int64) (*models.Holiday, error)
	ListUserHolidays(ctx context.Context, userID int64) ([]*models.Holiday, error)
	CreateHoliday(ctx context.Context, holiday *models.Holiday) error
	UpdateHolidayState(ctx context.Context, id int64, state models.HolidayState) (*models.Holiday, error)
}

type DirectoryStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id int64) (*models.User, error)
	UpdateUserRole(ctx context.Context, id int64, role models.Role) (*models.User, error)
	CreateEntity(ctx context.Context, entity *models.Entity) error
	GetEntity(ctx context.Context, id int64) (*models.Entity, error)
	ListEntities(ctx context.Context) ([]*models.Entity, error)
	CreateReport(ctx context.Context, report *models.Report) error
	ListReports(ctx context.Context) ([]*models.Report, error)
}

// Store is the full persistence surface of the coordination engine.
type Store interface {
	ScheduleStore
	BookingStore
	HolidayStore
	DirectoryStore
}

// Locker serializes work on a set of schedule keys. The returned release func must be
// called exactly once.
type Locker interface {
	Acquire(ctx context.Context, keys ...string) (release func(), err error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
