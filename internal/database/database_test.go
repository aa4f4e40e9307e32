package database

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"studiobook/internal/calendar"
	"studiobook/internal/domain"
	"studiobook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func at(day int, hh, mm int) time.Time {
	return time.Date(2025, time.June, day, hh, mm, 0, 0, time.UTC)
}

func newBooking(fonico, studio int64, start, end time.Time) *models.Booking {
	return &models.Booking{
		UserID:   100,
		FonicoID: fonico,
		StudioID: studio,
		Start:    start,
		End:      end,
		Services: []int64{3, 1, 3},
		Phone:    "+39000",
		State:    models.BookingToContact,
	}
}

func TestNewDB_DirectoryCreation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	logger := zerolog.Nop()

	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, dbPath)
	assert.NoError(t, db.PingContext(context.Background()))
}

func TestSchedule(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	monday := &models.Availability{EngineerID: 7, Day: models.WeeklyDay(time.Monday),
		Start: calendar.MustClock("10:00"), End: calendar.MustClock("14:00")}
	require.NoError(t, db.CreateAvailability(ctx, monday))
	assert.NotZero(t, monday.ID)

	dated := &models.Availability{EngineerID: 7, Day: models.DateDay(at(3, 0, 0)),
		Start: calendar.MustClock("15:00"), End: calendar.MustClock("18:00")}
	require.NoError(t, db.CreateAvailability(ctx, dated))
	assert.NotEqual(t, monday.ID, dated.ID)

	_, err := db.ReplaceDayOverride(ctx, 7, at(4, 0, 0), nil)
	require.NoError(t, err)

	t.Run("GetSchedule", func(t *testing.T) {
		s, err := db.GetSchedule(ctx, 7, at(2, 0, 0), at(9, 0, 0))
		require.NoError(t, err)
		require.Len(t, s.Weekly, 1)
		assert.Equal(t, time.Monday, s.Weekly[0].Day.Weekday)
		require.Len(t, s.Dated, 1)
		assert.Equal(t, "2025-06-03", s.Dated[0].Day.String())
		require.Len(t, s.ClosedDays, 1)
		assert.Equal(t, "2025-06-04", calendar.DateKey(s.ClosedDays[0]))
	})

	t.Run("TemplateOnly", func(t *testing.T) {
		s, err := db.GetSchedule(ctx, 7, time.Time{}, time.Time{})
		require.NoError(t, err)
		assert.Len(t, s.Weekly, 1)
		assert.Empty(t, s.Dated)
		assert.Empty(t, s.ClosedDays)
	})

	t.Run("OutOfRangeDates", func(t *testing.T) {
		s, err := db.GetSchedule(ctx, 7, at(20, 0, 0), at(25, 0, 0))
		require.NoError(t, err)
		assert.Empty(t, s.Dated)
		assert.Empty(t, s.ClosedDays)
	})

	t.Run("UpdateAndGet", func(t *testing.T) {
		monday.End = calendar.MustClock("16:00")
		require.NoError(t, db.UpdateAvailability(ctx, monday))
		got, err := db.GetAvailability(ctx, monday.ID)
		require.NoError(t, err)
		assert.Equal(t, calendar.MustClock("16:00"), got.End)
	})

	t.Run("ListDayWindows", func(t *testing.T) {
		ws, err := db.ListDayWindows(ctx, 7, models.WeeklyDay(time.Monday))
		require.NoError(t, err)
		assert.Len(t, ws, 1)
		ws, err = db.ListDayWindows(ctx, 7, models.DateDay(at(3, 0, 0)))
		require.NoError(t, err)
		assert.Len(t, ws, 1)
	})

	t.Run("ReplaceOverride", func(t *testing.T) {
		created, err := db.ReplaceDayOverride(ctx, 7, at(4, 0, 0), []calendar.TimeRange{
			{Start: calendar.MustClock("09:00"), End: calendar.MustClock("11:00")},
			{Start: calendar.MustClock("12:00"), End: calendar.MustClock("13:00")},
		})
		require.NoError(t, err)
		assert.Len(t, created, 2)

		s, err := db.GetSchedule(ctx, 7, at(4, 0, 0), at(5, 0, 0))
		require.NoError(t, err)
		assert.Empty(t, s.ClosedDays)
		assert.Len(t, s.Dated, 2)
	})

	t.Run("DatedWindowReopensClosedDay", func(t *testing.T) {
		_, err := db.ReplaceDayOverride(ctx, 7, at(6, 0, 0), nil)
		require.NoError(t, err)
		require.NoError(t, db.CreateAvailability(ctx, &models.Availability{EngineerID: 7, Day: models.DateDay(at(6, 0, 0)),
			Start: calendar.MustClock("10:00"), End: calendar.MustClock("11:00")}))

		s, err := db.GetSchedule(ctx, 7, at(6, 0, 0), at(7, 0, 0))
		require.NoError(t, err)
		assert.Empty(t, s.ClosedDays)
	})

	t.Run("ClearOverride", func(t *testing.T) {
		require.NoError(t, db.ClearDayOverride(ctx, 7, at(4, 0, 0)))
		ws, err := db.ListDayWindows(ctx, 7, models.DateDay(at(4, 0, 0)))
		require.NoError(t, err)
		assert.Empty(t, ws)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, db.DeleteAvailability(ctx, dated.ID))
		_, err := db.GetAvailability(ctx, dated.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, db.DeleteAvailability(ctx, dated.ID), ErrNotFound)

		// The date keeps its override, now empty.
		s, err := db.GetSchedule(ctx, 7, at(3, 0, 0), at(4, 0, 0))
		require.NoError(t, err)
		require.Len(t, s.ClosedDays, 1)
		assert.Equal(t, "2025-06-03", calendar.DateKey(s.ClosedDays[0]))

		missing := &models.Availability{ID: dated.ID, EngineerID: 7, Day: models.WeeklyDay(time.Friday),
			Start: calendar.MustClock("10:00"), End: calendar.MustClock("11:00")}
		assert.ErrorIs(t, db.UpdateAvailability(ctx, missing), ErrNotFound)
	})
}

func TestBookings(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first := newBooking(7, 1, at(2, 10, 0), at(2, 12, 0))
	require.NoError(t, db.CreateBooking(ctx, first))
	assert.Equal(t, int64(1), first.Version)
	assert.Equal(t, []int64{3, 1}, first.Services)

	t.Run("Get", func(t *testing.T) {
		got, err := db.GetBooking(ctx, first.ID)
		require.NoError(t, err)
		assert.True(t, got.Start.Equal(first.Start))
		assert.Equal(t, []int64{3, 1}, got.Services)
		assert.Equal(t, models.BookingToContact, got.State)

		_, err = db.GetBooking(ctx, 999)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("EngineerOverlap", func(t *testing.T) {
		err := db.CreateBooking(ctx, newBooking(7, 2, at(2, 11, 30), at(2, 12, 30)))
		assert.ErrorIs(t, err, ErrEngineerBusy)
	})

	t.Run("StudioOverlap", func(t *testing.T) {
		err := db.CreateBooking(ctx, newBooking(8, 1, at(2, 11, 0), at(2, 13, 0)))
		assert.ErrorIs(t, err, ErrStudioBusy)
	})

	t.Run("TouchingIsFree", func(t *testing.T) {
		require.NoError(t, db.CreateBooking(ctx, newBooking(7, 1, at(2, 12, 0), at(2, 13, 0))))
	})

	t.Run("Listings", func(t *testing.T) {
		bs, err := db.ListEngineerBookings(ctx, 7, at(2, 0, 0), at(3, 0, 0))
		require.NoError(t, err)
		assert.Len(t, bs, 2)

		bs, err = db.ListStudioBookings(ctx, 1, at(2, 12, 0), at(2, 12, 30))
		require.NoError(t, err)
		assert.Len(t, bs, 1)

		bs, err = db.ListBookings(ctx, models.BookingFilter{FonicoID: 7, State: models.BookingToContact, From: at(2, 11, 0), To: at(2, 11, 30)})
		require.NoError(t, err)
		require.Len(t, bs, 1)
		assert.Equal(t, first.ID, bs[0].ID)
	})

	t.Run("StateWithVersion", func(t *testing.T) {
		updated, err := db.UpdateBookingState(ctx, first.ID, 1, models.BookingCancelled)
		require.NoError(t, err)
		assert.Equal(t, int64(2), updated.Version)
		assert.Equal(t, models.BookingCancelled, updated.State)

		_, err = db.UpdateBookingState(ctx, first.ID, 1, models.BookingContacted)
		assert.ErrorIs(t, err, ErrConcurrentModification)

		_, err = db.UpdateBookingState(ctx, 999, 1, models.BookingContacted)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("CancelledFreesInterval", func(t *testing.T) {
		bs, err := db.ListEngineerBookings(ctx, 7, at(2, 0, 0), at(3, 0, 0))
		require.NoError(t, err)
		assert.Len(t, bs, 1)
		require.NoError(t, db.CreateBooking(ctx, newBooking(9, 1, at(2, 10, 0), at(2, 11, 0))))
	})
}

func TestBookings_SubSecondPrecision(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	end := at(2, 13, 0).Add(800 * time.Millisecond)
	first := newBooking(7, 3, at(2, 12, 0), end)
	require.NoError(t, db.CreateBooking(ctx, first))

	got, err := db.GetBooking(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, got.End.Equal(end), "stored end %s", got.End)

	err = db.CreateBooking(ctx, newBooking(8, 3, at(2, 13, 0).Add(300*time.Millisecond), at(2, 14, 0)))
	assert.ErrorIs(t, err, ErrStudioBusy)

	require.NoError(t, db.CreateBooking(ctx, newBooking(8, 3, end, at(2, 14, 0))))

	h := &models.Holiday{UserID: 7, Start: at(5, 0, 0).Add(time.Nanosecond), End: at(6, 0, 0), State: models.HolidayPending}
	require.NoError(t, db.CreateHoliday(ctx, h))
	stored, err := db.GetHoliday(ctx, h.ID)
	require.NoError(t, err)
	assert.True(t, stored.Start.Equal(h.Start))
}

func TestReadSnapshot(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateAvailability(ctx, &models.Availability{EngineerID: 7, Day: models.WeeklyDay(time.Monday),
		Start: calendar.MustClock("10:00"), End: calendar.MustClock("18:00")}))
	_, err := db.ReplaceDayOverride(ctx, 7, at(3, 0, 0), nil)
	require.NoError(t, err)
	require.NoError(t, db.CreateHoliday(ctx, &models.Holiday{UserID: 7, Start: at(4, 0, 0), End: at(5, 0, 0), State: models.HolidayConfirmed}))
	require.NoError(t, db.CreateBooking(ctx, newBooking(7, 3, at(2, 12, 0), at(2, 13, 0))))

	err = db.ReadSnapshot(ctx, func(r domain.ScheduleReader) error {
		s, err := r.GetSchedule(ctx, 7, at(2, 0, 0), at(9, 0, 0))
		require.NoError(t, err)
		assert.Len(t, s.Weekly, 1)
		assert.Len(t, s.ClosedDays, 1)

		hs, err := r.ListHolidays(ctx, 7, at(2, 0, 0), at(9, 0, 0))
		require.NoError(t, err)
		assert.Len(t, hs, 1)

		bs, err := r.ListEngineerBookings(ctx, 7, at(2, 0, 0), at(3, 0, 0))
		require.NoError(t, err)
		assert.Len(t, bs, 1)
		return nil
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	assert.ErrorIs(t, db.ReadSnapshot(ctx, func(domain.ScheduleReader) error { return boom }), boom)

	// The connection is released after a failed read.
	_, err = db.GetSchedule(ctx, 7, at(2, 0, 0), at(9, 0, 0))
	assert.NoError(t, err)
}

func TestConcurrentBooking(t *testing.T) {
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "concurrency.db"), &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	const numGoroutines = 10
	var wg sync.WaitGroup
	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			// Different engineers, same studio and slot.
			results <- db.CreateBooking(ctx, newBooking(int64(id+1), 5, at(10, 15, 0), at(10, 17, 0)))
		}(i)
	}
	wg.Wait()
	close(results)

	success := 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		assert.True(t, errors.Is(err, ErrStudioBusy), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, success)

	bs, err := db.ListStudioBookings(ctx, 5, at(10, 0, 0), at(11, 0, 0))
	require.NoError(t, err)
	assert.Len(t, bs, 1)
}

func TestHolidays(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	h := &models.Holiday{UserID: 7, Start: at(9, 0, 0), End: at(12, 0, 0), Reason: "ferie", State: models.HolidayPending}
	require.NoError(t, db.CreateHoliday(ctx, h))
	require.NotZero(t, h.ID)

	got, err := db.GetHoliday(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, "ferie", got.Reason)
	assert.True(t, got.End.Equal(h.End))

	hs, err := db.ListHolidays(ctx, 7, at(11, 0, 0), at(13, 0, 0))
	require.NoError(t, err)
	assert.Len(t, hs, 1)

	hs, err = db.ListHolidays(ctx, 7, at(12, 0, 0), at(13, 0, 0))
	require.NoError(t, err)
	assert.Empty(t, hs)

	updated, err := db.UpdateHolidayState(ctx, h.ID, models.HolidayConfirmed)
	require.NoError(t, err)
	assert.Equal(t, models.HolidayConfirmed, updated.State)

	all, err := db.ListUserHolidays(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = db.UpdateHolidayState(ctx, 999, models.HolidayConfirmed)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDirectory(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	e := &models.Entity{Name: "Label"}
	require.NoError(t, db.CreateEntity(ctx, e))
	assert.ErrorIs(t, db.CreateEntity(ctx, &models.Entity{Name: "Label"}), ErrDuplicate)

	u := &models.User{Username: "mario", Role: models.RoleUser, EntityID: &e.ID}
	require.NoError(t, db.CreateUser(ctx, u))
	assert.ErrorIs(t, db.CreateUser(ctx, &models.User{Username: "mario", Role: models.RoleUser}), ErrDuplicate)

	got, err := db.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.EntityID)
	assert.Equal(t, e.ID, *got.EntityID)

	byName, err := db.GetUserByUsername(ctx, "mario")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byName.ID)

	promoted, err := db.UpdateUserRole(ctx, u.ID, models.RoleEngineer)
	require.NoError(t, err)
	assert.Equal(t, models.RoleEngineer, promoted.Role)

	_, err = db.GetUser(ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.CreateReport(ctx, &models.Report{Phone: "+39111", Reason: "no show"}))
	require.NoError(t, db.CreateReport(ctx, &models.Report{UserID: &u.ID, Reason: "late"}))
	reports, err := db.ListReports(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.NotNil(t, reports[0].UserID)
	assert.Nil(t, reports[1].UserID)

	entities, err := db.ListEntities(ctx)
	require.NoError(t, err)
	assert.Len(t, entities, 1)
}

func TestOutbox(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	msg := &models.OutboxMessage{EventType: "booking_created", Payload: `{"booking_id":1}`}
	require.NoError(t, db.CreateOutboxMessage(ctx, msg))
	assert.Equal(t, models.OutboxPending, msg.Status)

	pending, err := db.GetPendingOutboxMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	next := time.Now().Add(time.Hour)
	require.NoError(t, db.UpdateOutboxStatus(ctx, msg.ID, models.OutboxRetry, "boom", &next))
	pending, err = db.GetPendingOutboxMessages(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	got, err := db.GetOutboxMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RetryCount)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "boom", *got.LastError)

	require.NoError(t, db.UpdateOutboxStatus(ctx, msg.ID, models.OutboxFailed, "gave up", nil))
	failed, err := db.GetFailedOutboxMessages(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.NotNil(t, failed[0].ProcessedAt)
}

func TestDB_ErrorPaths(t *testing.T) {
	logger := zerolog.Nop()
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	db.Close()

	ctx := context.Background()
	_, err = db.GetBooking(ctx, 1)
	assert.Error(t, err)
	assert.Error(t, db.CreateBooking(ctx, newBooking(1, 1, at(2, 10, 0), at(2, 11, 0))))
	_, err = db.GetSchedule(ctx, 1, at(2, 0, 0), at(3, 0, 0))
	assert.Error(t, err)
	_, err = db.ListHolidays(ctx, 1, at(2, 0, 0), at(3, 0, 0))
	assert.Error(t, err)
	_, err = db.GetPendingOutboxMessages(ctx, 1)
	assert.Error(t, err)
}
