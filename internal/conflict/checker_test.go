package conflict

import (
	"testing"
	"time"

	"studiobook/internal/apperr"
	"studiobook/internal/calendar"
	"studiobook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const monday = "2025-06-02"

func at(t *testing.T, day, clock string) time.Time {
	t.Helper()
	d, err := calendar.ParseDate(day)
	require.NoError(t, err)
	return calendar.MustClock(clock).On(d, time.UTC)
}

func mondayCalendar() *calendar.Calendar {
	cal := calendar.New(time.UTC)
	cal.AddWeekly(time.Monday, calendar.TimeRange{Start: calendar.MustClock("10:00"), End: calendar.MustClock("18:00")})
	return cal
}

func booking(t *testing.T, id, fonico, studio int64, start, end string, state models.BookingState) *models.Booking {
	return &models.Booking{
		ID:       id,
		UserID:   100,
		FonicoID: fonico,
		StudioID: studio,
		Start:    at(t, monday, start),
		End:      at(t, monday, end),
		State:    state,
	}
}

func TestValidateBookingRequest(t *testing.T) {
	checker := NewChecker(0)
	existing := booking(t, 1, 7, 3, "12:00", "13:00", models.BookingConfirmed)

	tests := []struct {
		name      string
		candidate *models.Booking
		snapshot  Snapshot
		wantKind  apperr.Kind
	}{
		{
			name:      "Valid",
			candidate: booking(t, 0, 7, 3, "10:00", "12:00", models.BookingToContact),
			snapshot:  Snapshot{Calendar: mondayCalendar(), EngineerBookings: []*models.Booking{existing}, StudioBookings: []*models.Booking{existing}},
		},
		{
			name:      "TouchingExistingBooking",
			candidate: booking(t, 0, 7, 3, "13:00", "14:00", models.BookingToContact),
			snapshot:  Snapshot{Calendar: mondayCalendar(), EngineerBookings: []*models.Booking{existing}, StudioBookings: []*models.Booking{existing}},
		},
		{
			name:      "InvalidInterval",
			candidate: booking(t, 0, 7, 3, "12:00", "12:00", models.BookingToContact),
			snapshot:  Snapshot{Calendar: mondayCalendar()},
			wantKind:  apperr.KindInvalidInterval,
		},
		{
			name:      "OutsideAvailability",
			candidate: booking(t, 0, 7, 3, "17:00", "19:00", models.BookingToContact),
			snapshot:  Snapshot{Calendar: mondayCalendar()},
			wantKind:  apperr.KindOutsideAvailability,
		},
		{
			name:      "EngineerDoubleBooked",
			candidate: booking(t, 0, 7, 4, "11:30", "12:30", models.BookingToContact),
			snapshot:  Snapshot{Calendar: mondayCalendar(), EngineerBookings: []*models.Booking{existing}},
			wantKind:  apperr.KindEngineerDoubleBooked,
		},
		{
			name:      "EngineerCheckedBeforeStudio",
			candidate: booking(t, 0, 7, 3, "11:30", "12:30", models.BookingToContact),
			snapshot:  Snapshot{Calendar: mondayCalendar(), EngineerBookings: []*models.Booking{existing}, StudioBookings: []*models.Booking{existing}},
			wantKind:  apperr.KindEngineerDoubleBooked,
		},
		{
			name:      "StudioDoubleBooked",
			candidate: booking(t, 0, 8, 3, "12:30", "13:30", models.BookingToContact),
			snapshot: func() Snapshot {
				cal := calendar.New(time.UTC)
				cal.AddWeekly(time.Monday, calendar.TimeRange{Start: calendar.MustClock("09:00"), End: calendar.MustClock("20:00")})
				return Snapshot{Calendar: cal, StudioBookings: []*models.Booking{existing}}
			}(),
			wantKind: apperr.KindStudioDoubleBooked,
		},
		{
			name:      "CancelledBookingsIgnored",
			candidate: booking(t, 0, 7, 3, "12:00", "13:00", models.BookingToContact),
			snapshot: Snapshot{
				Calendar:         mondayCalendar(),
				EngineerBookings: []*models.Booking{booking(t, 2, 7, 3, "12:00", "13:00", models.BookingCancelled)},
				StudioBookings:   []*models.Booking{booking(t, 2, 7, 3, "12:00", "13:00", models.BookingCancelled)},
			},
		},
		{
			name:      "HolidayConflict",
			candidate: booking(t, 0, 7, 3, "15:00", "16:00", models.BookingToContact),
			snapshot: Snapshot{
				Calendar: mondayCalendar(),
				Holidays: []*models.Holiday{{ID: 9, UserID: 7, Start: at(t, monday, "14:00"), End: at(t, monday, "18:00"), State: models.HolidayConfirmed}},
			},
			wantKind: apperr.KindHolidayConflict,
		},
		{
			name:      "PendingHolidayDoesNotBlock",
			candidate: booking(t, 0, 7, 3, "15:00", "16:00", models.BookingToContact),
			snapshot: Snapshot{
				Calendar: mondayCalendar(),
				Holidays: []*models.Holiday{{ID: 9, UserID: 7, Start: at(t, monday, "14:00"), End: at(t, monday, "18:00"), State: models.HolidayPending}},
			},
		},
		{
			name:      "NoCalendar",
			candidate: booking(t, 0, 7, 3, "15:00", "16:00", models.BookingToContact),
			wantKind:  apperr.KindOutsideAvailability,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checker.ValidateBookingRequest(tt.candidate, tt.snapshot)
			if tt.wantKind == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, apperr.KindOf(err))
		})
	}
}

func TestValidateBookingRequestAdjacentWindows(t *testing.T) {
	cal := calendar.New(time.UTC)
	cal.AddWeekly(time.Monday, calendar.TimeRange{Start: calendar.MustClock("10:00"), End: calendar.MustClock("12:00")})
	cal.AddWeekly(time.Monday, calendar.TimeRange{Start: calendar.MustClock("12:00"), End: calendar.MustClock("14:00")})

	err := NewChecker(0).ValidateBookingRequest(booking(t, 0, 7, 3, "11:00", "13:00", models.BookingToContact), Snapshot{Calendar: cal})
	assert.NoError(t, err)
}

func TestValidateBookingRequestIgnoresItself(t *testing.T) {
	self := booking(t, 5, 7, 3, "12:00", "13:00", models.BookingContacted)
	snap := Snapshot{Calendar: mondayCalendar(), EngineerBookings: []*models.Booking{self}, StudioBookings: []*models.Booking{self}}

	assert.NoError(t, NewChecker(0).ValidateBookingRequest(self, snap))
}

func TestValidateHolidayRequest(t *testing.T) {
	checker := NewChecker(30)
	existing := []*models.Holiday{
		{ID: 1, UserID: 7, Start: at(t, "2025-08-01", "00:00"), End: at(t, "2025-08-10", "00:00"), State: models.HolidayPending},
		{ID: 2, UserID: 7, Start: at(t, "2025-09-01", "00:00"), End: at(t, "2025-09-10", "00:00"), State: models.HolidayCancelled},
		{ID: 3, UserID: 8, Start: at(t, "2025-10-01", "00:00"), End: at(t, "2025-10-10", "00:00"), State: models.HolidayConfirmed},
	}

	holiday := func(from, to string) *models.Holiday {
		return &models.Holiday{UserID: 7, Start: at(t, from, "00:00"), End: at(t, to, "00:00"), State: models.HolidayPending}
	}

	assert.NoError(t, checker.ValidateHolidayRequest(holiday("2025-08-10", "2025-08-12"), existing), "touching")
	assert.NoError(t, checker.ValidateHolidayRequest(holiday("2025-09-02", "2025-09-04"), existing), "cancelled ignored")
	assert.NoError(t, checker.ValidateHolidayRequest(holiday("2025-10-02", "2025-10-04"), existing), "other user ignored")

	err := checker.ValidateHolidayRequest(holiday("2025-08-09", "2025-08-12"), existing)
	assert.ErrorIs(t, err, apperr.HolidayConflict)

	err = checker.ValidateHolidayRequest(holiday("2025-08-12", "2025-08-12"), existing)
	assert.ErrorIs(t, err, apperr.InvalidInterval)

	err = checker.ValidateHolidayRequest(holiday("2025-11-01", "2025-12-15"), existing)
	assert.ErrorIs(t, err, apperr.InvalidInterval)
}

func TestHolidayWarnings(t *testing.T) {
	h := &models.Holiday{ID: 1, UserID: 7, Start: at(t, monday, "11:00"), End: at(t, monday, "15:00"), State: models.HolidayConfirmed}
	bookings := []*models.Booking{
		booking(t, 10, 7, 3, "12:00", "13:00", models.BookingConfirmed),
		booking(t, 11, 7, 3, "13:00", "14:00", models.BookingCancelled),
		booking(t, 12, 7, 3, "15:00", "16:00", models.BookingToContact),
	}

	warnings := HolidayWarnings(h, bookings)
	require.Len(t, warnings, 1)
	assert.Equal(t, int64(10), warnings[0].BookingID)
	assert.Equal(t, apperr.KindHolidayConflict, warnings[0].Kind)

	assert.Nil(t, HolidayWarnings(h, nil))
}
