package conflict

import (
	"time"

	"studiobook/internal/apperr"
	"studiobook/internal/calendar"
	"studiobook/internal/models"
)

// Snapshot is the state a booking request is validated against. EngineerBookings and
// StudioBookings hold whatever the store returned for the candidate's span; cancelled
// entries and the candidate itself are skipped.
type Snapshot struct {
	Calendar         *calendar.Calendar
	Holidays         []*models.Holiday
	EngineerBookings []*models.Booking
	StudioBookings   []*models.Booking
}

type Checker struct {
	maxHolidayDays int
}

func NewChecker(maxHolidayDays int) *Checker {
	if maxHolidayDays <= 0 {
		maxHolidayDays = models.DefaultMaxHolidayDays
	}
	return &Checker{maxHolidayDays: maxHolidayDays}
}

// ValidateBookingRequest runs the booking checks in order and returns the first failure:
// interval sanity, declared availability, engineer overlap, studio overlap, confirmed holidays.
func (c *Checker) ValidateBookingRequest(candidate *models.Booking, snap Snapshot) error {
	iv := candidate.Interval()
	if !iv.Valid() {
		return apperr.New(apperr.KindInvalidInterval, "booking start must be before end")
	}

	if err := checkAvailability(iv, snap.Calendar); err != nil {
		return err
	}

	if err := CheckDoubleBooking(candidate, snap); err != nil {
		return err
	}

	for _, h := range snap.Holidays {
		if h.Blocks() && h.UserID == candidate.FonicoID && h.Interval().Overlaps(iv) {
			return apperr.New(apperr.KindHolidayConflict,
				"engineer %d is on holiday from %s to %s", candidate.FonicoID,
				h.Start.Format(time.RFC3339), h.End.Format(time.RFC3339))
		}
	}
	return nil
}

// CheckDoubleBooking runs only the engineer and studio overlap checks.
func CheckDoubleBooking(candidate *models.Booking, snap Snapshot) error {
	iv := candidate.Interval()

	if other := firstOverlap(candidate, iv, snap.EngineerBookings, func(b *models.Booking) bool {
		return b.FonicoID == candidate.FonicoID
	}); other != nil {
		return apperr.New(apperr.KindEngineerDoubleBooked,
			"engineer %d already has booking %d in this interval", candidate.FonicoID, other.ID)
	}

	if other := firstOverlap(candidate, iv, snap.StudioBookings, func(b *models.Booking) bool {
		return b.StudioID == candidate.StudioID
	}); other != nil {
		return apperr.New(apperr.KindStudioDoubleBooked,
			"studio %d already has booking %d in this interval", candidate.StudioID, other.ID)
	}
	return nil
}

// ValidateHolidayRequest checks interval sanity and that the holiday does not overlap
// another active holiday of the same user. Bookings are not considered.
func (c *Checker) ValidateHolidayRequest(candidate *models.Holiday, existing []*models.Holiday) error {
	iv := candidate.Interval()
	if !iv.Valid() {
		return apperr.New(apperr.KindInvalidInterval, "holiday start must be before end")
	}
	if iv.Duration() > time.Duration(c.maxHolidayDays)*24*time.Hour {
		return apperr.New(apperr.KindInvalidInterval, "holiday may last at most %d days", c.maxHolidayDays)
	}

	for _, h := range existing {
		if h.ID == candidate.ID || h.UserID != candidate.UserID || !h.Active() {
			continue
		}
		if h.Interval().Overlaps(iv) {
			return apperr.New(apperr.KindHolidayConflict,
				"user %d already has holiday %d in this interval", candidate.UserID, h.ID)
		}
	}
	return nil
}

// BookingsOverlapping lists the active bookings that intersect iv.
func BookingsOverlapping(iv calendar.Interval, bookings []*models.Booking) []*models.Booking {
	var out []*models.Booking
	for _, b := range bookings {
		if b.Active() && b.Interval().Overlaps(iv) {
			out = append(out, b)
		}
	}
	return out
}

// HolidayWarnings turns bookings overlapping a confirmed holiday into warnings.
func HolidayWarnings(h *models.Holiday, bookings []*models.Booking) []apperr.Warning {
	overlapping := BookingsOverlapping(h.Interval(), bookings)
	if len(overlapping) == 0 {
		return nil
	}
	warnings := make([]apperr.Warning, 0, len(overlapping))
	for _, b := range overlapping {
		warnings = append(warnings, apperr.Warning{
			Kind:      apperr.KindHolidayConflict,
			BookingID: b.ID,
			Message:   "booking overlaps the confirmed holiday",
		})
	}
	return warnings
}

func checkAvailability(iv calendar.Interval, cal *calendar.Calendar) error {
	if cal == nil {
		return apperr.New(apperr.KindOutsideAvailability, "engineer has no availability")
	}
	var windows []calendar.Interval
	for _, day := range calendar.SpannedDates(iv, cal.Location) {
		windows = append(windows, cal.DeclaredWindowsFor(day)...)
	}
	if !calendar.Covers(windows, iv) {
		return apperr.New(apperr.KindOutsideAvailability, "requested interval is outside the engineer's availability")
	}
	return nil
}

func firstOverlap(candidate *models.Booking, iv calendar.Interval, bookings []*models.Booking, same func(*models.Booking) bool) *models.Booking {
	for _, b := range bookings {
		if candidate.ID != 0 && b.ID == candidate.ID {
			continue
		}
		if b.Active() && same(b) && b.Interval().Overlaps(iv) {
			return b
		}
	}
	return nil
}
