package lifecycle

import (
	"studiobook/internal/apperr"
	"studiobook/internal/models"
)

var bookingTransitions = map[models.BookingState][]models.BookingState{
	models.BookingToContact: {models.BookingContacted, models.BookingCancelled},
	models.BookingContacted: {models.BookingConfirmed, models.BookingCancelled},
}

var holidayTransitions = map[models.HolidayState][]models.HolidayState{
	models.HolidayPending: {models.HolidayConfirmed, models.HolidayCancelled},
}

// BookingAllowed reports whether from -> to is a normal booking transition.
func BookingAllowed(from, to models.BookingState) bool {
	for _, s := range bookingTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func HolidayAllowed(from, to models.HolidayState) bool {
	for _, s := range holidayTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func BookingTerminal(s models.BookingState) bool {
	return len(bookingTransitions[s]) == 0
}

func HolidayTerminal(s models.HolidayState) bool {
	return len(holidayTransitions[s]) == 0
}

// Booking decides a normal booking state change. It returns changed=false when the
// booking is already in the target state.
func Booking(actor models.Actor, b *models.Booking, to models.BookingState) (changed bool, err error) {
	if !to.Valid() {
		return false, apperr.New(apperr.KindValidation, "unknown booking state %q", to)
	}
	if err := authorizeBooking(actor, b, to); err != nil {
		return false, err
	}
	if b.State == to {
		return false, nil
	}
	if BookingTerminal(b.State) {
		return false, apperr.New(apperr.KindIllegalTransition, "booking %d is %s and can no longer change", b.ID, b.State)
	}
	if !BookingAllowed(b.State, to) {
		return false, apperr.New(apperr.KindIllegalTransition, "booking %d cannot move from %s to %s", b.ID, b.State, to)
	}
	return true, nil
}

// ResetBooking decides an administrative reset: any target state, privileged actors only.
func ResetBooking(actor models.Actor, b *models.Booking, to models.BookingState) (changed bool, err error) {
	if !to.Valid() {
		return false, apperr.New(apperr.KindValidation, "unknown booking state %q", to)
	}
	if !actor.Privileged() {
		return false, apperr.New(apperr.KindForbidden, "only administrators may reset a booking")
	}
	return b.State != to, nil
}

func Holiday(actor models.Actor, h *models.Holiday, to models.HolidayState) (changed bool, err error) {
	if !to.Valid() {
		return false, apperr.New(apperr.KindValidation, "unknown holiday state %q", to)
	}
	if !actor.Owns(h.UserID) {
		return false, apperr.New(apperr.KindForbidden, "only the holiday owner or an administrator may change holiday %d", h.ID)
	}
	if h.State == to {
		return false, nil
	}
	if HolidayTerminal(h.State) {
		return false, apperr.New(apperr.KindIllegalTransition, "holiday %d is %s and can no longer change", h.ID, h.State)
	}
	if !HolidayAllowed(h.State, to) {
		return false, apperr.New(apperr.KindIllegalTransition, "holiday %d cannot move from %s to %s", h.ID, h.State, to)
	}
	return true, nil
}

// authorizeBooking: privileged actors and the owning engineer may perform any normal
// transition, the customer may only cancel.
func authorizeBooking(actor models.Actor, b *models.Booking, to models.BookingState) error {
	if actor.Privileged() || actor.ID == b.FonicoID {
		return nil
	}
	if actor.ID == b.UserID && to == models.BookingCancelled {
		return nil
	}
	return apperr.New(apperr.KindForbidden, "actor %d may not move booking %d to %s", actor.ID, b.ID, to)
}

// CanCreateFor reports whether actor may create a booking or holiday owned by userID.
func CanCreateFor(actor models.Actor, userID int64) error {
	switch actor.Role {
	case models.RoleAdmin, models.RoleSecretary:
		return nil
	case models.RoleEngineer, models.RoleUser:
		if actor.ID == userID {
			return nil
		}
		return apperr.New(apperr.KindForbidden, "actor %d may only create records for themselves", actor.ID)
	}
	return apperr.New(apperr.KindForbidden, "role %q may not create records", actor.Role)
}

// CanEditSchedule reports whether actor may change the availability of engineerID.
func CanEditSchedule(actor models.Actor, engineerID int64) error {
	if actor.Privileged() || (actor.Role == models.RoleEngineer && actor.ID == engineerID) {
		return nil
	}
	return apperr.New(apperr.KindForbidden, "actor %d may not edit the schedule of engineer %d", actor.ID, engineerID)
}

// CanManageUsers guards role changes and directory administration.
func CanManageUsers(actor models.Actor) error {
	if actor.Privileged() {
		return nil
	}
	return apperr.New(apperr.KindForbidden, "only administrators may manage users")
}
