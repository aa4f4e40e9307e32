package service

import (
	"context"
	"strings"
	"time"

	"studiobook/internal/apperr"
	"studiobook/internal/conflict"
	"studiobook/internal/events"
	"studiobook/internal/lifecycle"
	"studiobook/internal/logging"
	"studiobook/internal/models"
)

// BookingRequest is the input of CreateBooking. UserID defaults to the actor.
type BookingRequest struct {
	UserID    int64     `json:"userId"`
	FonicoID  int64     `json:"fonicoId"`
	StudioID  int64     `json:"studioId"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Services  []int64   `json:"services"`
	Notes     string    `json:"notes"`
	Phone     string    `json:"phone"`
	Instagram string    `json:"instagram"`
}

// CreateBooking validates the request against the engineer's calendar, the engineer's
// and studio's bookings and confirmed holidays, then stores it in CONTATTARE.
func (s *CoordinationService) CreateBooking(ctx context.Context, actor models.Actor, req BookingRequest) (*models.Booking, error) {
	const op = "create_booking"

	if req.UserID == 0 {
		req.UserID = actor.ID
	}
	if err := lifecycle.CanCreateFor(actor, req.UserID); err != nil {
		return nil, observe(op, err)
	}
	if req.FonicoID <= 0 || req.StudioID <= 0 {
		return nil, observe(op, apperr.New(apperr.KindValidation, "fonicoId and studioId are required"))
	}
	for _, id := range req.Services {
		if id <= 0 {
			return nil, observe(op, apperr.New(apperr.KindValidation, "service id %d is invalid", id))
		}
	}

	candidate := &models.Booking{
		UserID:    req.UserID,
		FonicoID:  req.FonicoID,
		StudioID:  req.StudioID,
		Start:     req.Start.In(s.loc),
		End:       req.End.In(s.loc),
		Services:  models.DedupServices(req.Services),
		Notes:     strings.TrimSpace(req.Notes),
		Phone:     strings.TrimSpace(req.Phone),
		Instagram: strings.TrimSpace(req.Instagram),
		State:     models.BookingToContact,
	}
	if !candidate.Interval().Valid() {
		return nil, observe(op, apperr.New(apperr.KindInvalidInterval, "booking start must be before end"))
	}

	booking, err := s.createBooking(ctx, candidate)
	if err != nil {
		return nil, observe(op, s.translate(op, err))
	}

	logging.ForActor(s.logger, actor).Info().
		Int64("booking_id", booking.ID).
		Int64("fonico_id", booking.FonicoID).
		Int64("studio_id", booking.StudioID).
		Dict("interval", logging.Interval(booking.Interval())).
		Msg("booking created")
	s.publishBooking(events.EventBookingCreated, booking, "", actor)
	return booking, observe(op, nil)
}

func (s *CoordinationService) createBooking(ctx context.Context, candidate *models.Booking) (*models.Booking, error) {
	release, err := s.acquire(ctx, s.bookingKeys(candidate)...)
	if err != nil {
		return nil, err
	}
	defer release()

	snap, err := s.snapshot(ctx, candidate)
	if err != nil {
		return nil, err
	}
	if err := s.checker.ValidateBookingRequest(candidate, snap); err != nil {
		return nil, err
	}
	if err := s.store.CreateBooking(ctx, candidate); err != nil {
		return nil, err
	}
	return s.localize(candidate), nil
}

// snapshot loads everything the conflict checker needs for candidate's span.
func (s *CoordinationService) snapshot(ctx context.Context, candidate *models.Booking) (conflict.Snapshot, error) {
	iv := candidate.Interval()
	span := s.resolver.Bounds(iv.Start.In(s.loc), iv.End.Add(-time.Nanosecond).In(s.loc))

	cal, err := s.resolver.LoadCalendar(ctx, candidate.FonicoID, span)
	if err != nil {
		return conflict.Snapshot{}, err
	}
	snap, err := s.doubleBookingSnapshot(ctx, candidate)
	if err != nil {
		return conflict.Snapshot{}, err
	}
	holidays, err := s.store.ListHolidays(ctx, candidate.FonicoID, iv.Start, iv.End)
	if err != nil {
		return conflict.Snapshot{}, err
	}
	snap.Calendar = cal
	snap.Holidays = holidays
	return snap, nil
}

func (s *CoordinationService) doubleBookingSnapshot(ctx context.Context, candidate *models.Booking) (conflict.Snapshot, error) {
	engineer, err := s.store.ListEngineerBookings(ctx, candidate.FonicoID, candidate.Start, candidate.End)
	if err != nil {
		return conflict.Snapshot{}, err
	}
	studio, err := s.store.ListStudioBookings(ctx, candidate.StudioID, candidate.Start, candidate.End)
	if err != nil {
		return conflict.Snapshot{}, err
	}
	return conflict.Snapshot{EngineerBookings: engineer, StudioBookings: studio}, nil
}

// UpdateBookingState applies a normal lifecycle transition. Requesting the current
// state returns the booking unchanged without writing or publishing.
func (s *CoordinationService) UpdateBookingState(ctx context.Context, actor models.Actor, id int64, to models.BookingState) (*models.Booking, error) {
	const op = "update_booking_state"

	var from models.BookingState
	booking, changed, err := s.changeBookingState(ctx, id, to, func(b *models.Booking) (bool, error) {
		from = b.State
		return lifecycle.Booking(actor, b, to)
	})
	if err != nil {
		return nil, observe(op, s.translate(op, err))
	}
	if changed {
		logging.ForActor(s.logger, actor).Info().Int64("booking_id", id).Str("from", string(from)).Str("to", string(to)).Msg("booking state changed")
		s.publishBooking(events.EventBookingStateChanged, booking, from, actor)
	}
	return booking, observe(op, nil)
}

// ResetBookingState lets a privileged actor force any state. Reopening into an active
// state re-runs the engineer and studio overlap checks.
func (s *CoordinationService) ResetBookingState(ctx context.Context, actor models.Actor, id int64, to models.BookingState) (*models.Booking, error) {
	const op = "reset_booking_state"

	var from models.BookingState
	booking, changed, err := s.changeBookingState(ctx, id, to, func(b *models.Booking) (bool, error) {
		from = b.State
		changed, err := lifecycle.ResetBooking(actor, b, to)
		if err != nil || !changed {
			return changed, err
		}
		if to != models.BookingCancelled && !b.Active() {
			reopened := *b
			reopened.State = to
			snap, err := s.doubleBookingSnapshot(ctx, &reopened)
			if err != nil {
				return false, err
			}
			if err := conflict.CheckDoubleBooking(&reopened, snap); err != nil {
				return false, err
			}
		}
		return true, nil
	})
	if err != nil {
		return nil, observe(op, s.translate(op, err))
	}
	if changed {
		logging.ForActor(s.logger, actor).Warn().Int64("booking_id", id).Str("from", string(from)).Str("to", string(to)).Msg("booking state reset")
		s.publishBooking(events.EventBookingReset, booking, from, actor)
	}
	return booking, observe(op, nil)
}

// changeBookingState locks the booking's engineer and studio dates, reloads it and lets
// decide accept the move to `to` before writing with the version check.
func (s *CoordinationService) changeBookingState(ctx context.Context, id int64, to models.BookingState, decide func(*models.Booking) (bool, error)) (*models.Booking, bool, error) {
	current, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, false, err
	}

	release, err := s.acquire(ctx, s.bookingKeys(current)...)
	if err != nil {
		return nil, false, err
	}
	defer release()

	current, err = s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, false, err
	}
	changed, err := decide(current)
	if err != nil {
		return nil, false, err
	}
	if !changed {
		return s.localize(current), false, nil
	}

	updated, err := s.store.UpdateBookingState(ctx, id, current.Version, to)
	if err != nil {
		return nil, false, err
	}
	return s.localize(updated), true, nil
}

func (s *CoordinationService) localize(b *models.Booking) *models.Booking {
	b.Start = b.Start.In(s.loc)
	b.End = b.End.In(s.loc)
	return b
}

func (s *CoordinationService) publishBooking(eventType string, b *models.Booking, from models.BookingState, actor models.Actor) {
	s.publish(eventType, events.BookingEventPayload{
		BookingID:  b.ID,
		UserID:     b.UserID,
		FonicoID:   b.FonicoID,
		StudioID:   b.StudioID,
		Start:      b.Start,
		End:        b.End,
		State:      string(b.State),
		FromState:  string(from),
		ChangedBy:  actor.ID,
		ChangeRole: string(actor.Role),
	})
}

// GetBooking is visible to privileged actors, the customer and the engineer.
func (s *CoordinationService) GetBooking(ctx context.Context, actor models.Actor, id int64) (*models.Booking, error) {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, s.translate("get_booking", err)
	}
	if !actor.Privileged() && actor.ID != b.UserID && actor.ID != b.FonicoID {
		return nil, apperr.New(apperr.KindForbidden, "actor %d may not read booking %d", actor.ID, id)
	}
	return s.localize(b), nil
}

// ListBookings applies filter. Non-privileged actors only see bookings they take part in.
func (s *CoordinationService) ListBookings(ctx context.Context, actor models.Actor, filter models.BookingFilter) ([]*models.Booking, error) {
	if filter.State != "" && !filter.State.Valid() {
		return nil, apperr.New(apperr.KindValidation, "unknown booking state %q", filter.State)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.From.Before(filter.To) {
		return nil, apperr.New(apperr.KindInvalidInterval, "from must be before to")
	}
	if !actor.Privileged() && filter.UserID != actor.ID && filter.FonicoID != actor.ID {
		if actor.Role == models.RoleEngineer {
			filter.FonicoID = actor.ID
		} else {
			filter.UserID = actor.ID
		}
	}

	bookings, err := s.store.ListBookings(ctx, filter)
	if err != nil {
		return nil, s.translate("list_bookings", err)
	}
	for _, b := range bookings {
		s.localize(b)
	}
	return bookings, nil
}
