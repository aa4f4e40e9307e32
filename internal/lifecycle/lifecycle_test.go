package lifecycle

import (
	"testing"

	"studiobook/internal/apperr"
	"studiobook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	admin     = models.Actor{ID: 1, Role: models.RoleAdmin}
	secretary = models.Actor{ID: 2, Role: models.RoleSecretary}
	engineer  = models.Actor{ID: 7, Role: models.RoleEngineer}
	customer  = models.Actor{ID: 100, Role: models.RoleUser}
	stranger  = models.Actor{ID: 55, Role: models.RoleEngineer}
)

var bookingStates = []models.BookingState{
	models.BookingToContact, models.BookingContacted, models.BookingConfirmed, models.BookingCancelled,
}

func TestBookingTransitionTable(t *testing.T) {
	allowed := map[[2]models.BookingState]bool{
		{models.BookingToContact, models.BookingContacted}: true,
		{models.BookingContacted, models.BookingConfirmed}: true,
		{models.BookingToContact, models.BookingCancelled}: true,
		{models.BookingContacted, models.BookingCancelled}: true,
	}

	for _, from := range bookingStates {
		for _, to := range bookingStates {
			b := &models.Booking{ID: 1, UserID: 100, FonicoID: 7, State: from}
			changed, err := Booking(admin, b, to)

			switch {
			case from == to:
				require.NoError(t, err, "%s -> %s", from, to)
				assert.False(t, changed)
			case allowed[[2]models.BookingState{from, to}]:
				require.NoError(t, err, "%s -> %s", from, to)
				assert.True(t, changed)
			default:
				assert.ErrorIs(t, err, apperr.IllegalTransition, "%s -> %s", from, to)
				assert.Equal(t, from, b.State, "record must stay unchanged")
			}
		}
	}

	assert.True(t, BookingTerminal(models.BookingConfirmed))
	assert.True(t, BookingTerminal(models.BookingCancelled))
	assert.False(t, BookingTerminal(models.BookingToContact))
}

func TestHolidayTransitionTable(t *testing.T) {
	states := []models.HolidayState{models.HolidayPending, models.HolidayConfirmed, models.HolidayCancelled}
	for _, from := range states {
		for _, to := range states {
			h := &models.Holiday{ID: 1, UserID: 7, State: from}
			changed, err := Holiday(secretary, h, to)

			switch {
			case from == to:
				require.NoError(t, err)
				assert.False(t, changed)
			case from == models.HolidayPending:
				require.NoError(t, err)
				assert.True(t, changed)
			default:
				assert.ErrorIs(t, err, apperr.IllegalTransition, "%s -> %s", from, to)
			}
		}
	}
}

func TestTerminalStatesReported(t *testing.T) {
	_, err := Booking(admin, &models.Booking{ID: 4, UserID: 100, FonicoID: 7, State: models.BookingCancelled}, models.BookingContacted)
	require.ErrorIs(t, err, apperr.IllegalTransition)
	assert.Contains(t, err.Error(), "booking 4 is ANNULLATO and can no longer change")

	_, err = Booking(admin, &models.Booking{ID: 5, UserID: 100, FonicoID: 7, State: models.BookingToContact}, models.BookingConfirmed)
	require.ErrorIs(t, err, apperr.IllegalTransition)
	assert.Contains(t, err.Error(), "cannot move from")

	assert.True(t, HolidayTerminal(models.HolidayConfirmed))
	assert.False(t, HolidayTerminal(models.HolidayPending))
	_, err = Holiday(secretary, &models.Holiday{ID: 9, UserID: 7, State: models.HolidayConfirmed}, models.HolidayCancelled)
	require.ErrorIs(t, err, apperr.IllegalTransition)
	assert.Contains(t, err.Error(), "holiday 9 is CONFERMATO and can no longer change")
}

func TestBookingRoleGating(t *testing.T) {
	b := func() *models.Booking {
		return &models.Booking{ID: 1, UserID: 100, FonicoID: 7, State: models.BookingToContact}
	}

	_, err := Booking(engineer, b(), models.BookingContacted)
	assert.NoError(t, err, "owning engineer advances")

	_, err = Booking(stranger, b(), models.BookingContacted)
	assert.ErrorIs(t, err, apperr.Forbidden)

	_, err = Booking(customer, b(), models.BookingContacted)
	assert.ErrorIs(t, err, apperr.Forbidden)

	_, err = Booking(customer, b(), models.BookingCancelled)
	assert.NoError(t, err, "customer may cancel")

	_, err = Booking(admin, b(), models.BookingState("DONE"))
	assert.ErrorIs(t, err, apperr.Validation)
}

func TestResetBooking(t *testing.T) {
	b := &models.Booking{ID: 1, UserID: 100, FonicoID: 7, State: models.BookingCancelled}

	changed, err := ResetBooking(admin, b, models.BookingToContact)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = ResetBooking(secretary, b, models.BookingCancelled)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = ResetBooking(engineer, b, models.BookingToContact)
	assert.ErrorIs(t, err, apperr.Forbidden)
}

func TestHolidayRoleGating(t *testing.T) {
	h := &models.Holiday{ID: 3, UserID: 7, State: models.HolidayPending}

	_, err := Holiday(engineer, h, models.HolidayConfirmed)
	assert.NoError(t, err)

	_, err = Holiday(stranger, h, models.HolidayCancelled)
	assert.ErrorIs(t, err, apperr.Forbidden)
}

func TestCreationAndScheduleGuards(t *testing.T) {
	assert.NoError(t, CanCreateFor(customer, customer.ID))
	assert.NoError(t, CanCreateFor(engineer, engineer.ID))
	assert.NoError(t, CanCreateFor(admin, 999))
	assert.ErrorIs(t, CanCreateFor(customer, 999), apperr.Forbidden)
	assert.ErrorIs(t, CanCreateFor(models.Actor{ID: 3}, 3), apperr.Forbidden)

	assert.NoError(t, CanEditSchedule(engineer, engineer.ID))
	assert.NoError(t, CanEditSchedule(secretary, engineer.ID))
	assert.ErrorIs(t, CanEditSchedule(stranger, engineer.ID), apperr.Forbidden)
	assert.ErrorIs(t, CanEditSchedule(customer, customer.ID), apperr.Forbidden)

	assert.NoError(t, CanManageUsers(admin))
	assert.ErrorIs(t, CanManageUsers(engineer), apperr.Forbidden)
}
