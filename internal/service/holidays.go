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

type HolidayRequest struct {
	UserID int64     `json:"userId"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Reason string    `json:"reason"`
}

// HolidayResult carries the holiday and any bookings its confirmation now overlaps.
type HolidayResult struct {
	Holiday  *models.Holiday  `json:"holiday"`
	Warnings []apperr.Warning `json:"warnings"`
}

// CreateHoliday stores a pending holiday after checking it against the user's other
// active holidays. Bookings are never considered here.
func (s *CoordinationService) CreateHoliday(ctx context.Context, actor models.Actor, req HolidayRequest) (*models.Holiday, error) {
	const op = "create_holiday"

	if req.UserID == 0 {
		req.UserID = actor.ID
	}
	if err := lifecycle.CanCreateFor(actor, req.UserID); err != nil {
		return nil, observe(op, err)
	}

	candidate := &models.Holiday{
		UserID: req.UserID,
		Start:  req.Start.In(s.loc),
		End:    req.End.In(s.loc),
		Reason: strings.TrimSpace(req.Reason),
		State:  models.HolidayPending,
	}
	// Sanity and length first so an absurd range never reaches the locker.
	if err := s.checker.ValidateHolidayRequest(candidate, nil); err != nil {
		return nil, observe(op, err)
	}

	holiday, err := s.createHoliday(ctx, candidate)
	if err != nil {
		return nil, observe(op, s.translate(op, err))
	}

	logging.ForActor(s.logger, actor).Info().
		Int64("holiday_id", holiday.ID).
		Int64("user_id", holiday.UserID).
		Dict("interval", logging.Interval(holiday.Interval())).
		Msg("holiday requested")
	s.publishHoliday(events.EventHolidayCreated, holiday, "", actor, nil)
	return holiday, observe(op, nil)
}

func (s *CoordinationService) createHoliday(ctx context.Context, candidate *models.Holiday) (*models.Holiday, error) {
	release, err := s.acquire(ctx, s.engineerKeys(candidate.UserID, candidate.Interval())...)
	if err != nil {
		return nil, err
	}
	defer release()

	existing, err := s.store.ListHolidays(ctx, candidate.UserID, candidate.Start, candidate.End)
	if err != nil {
		return nil, err
	}
	if err := s.checker.ValidateHolidayRequest(candidate, existing); err != nil {
		return nil, err
	}
	if err := s.store.CreateHoliday(ctx, candidate); err != nil {
		return nil, err
	}
	return s.localizeHoliday(candidate), nil
}

// UpdateHolidayState applies a holiday transition. Confirming a holiday that overlaps
// active bookings of its user succeeds and reports each of them as a warning.
func (s *CoordinationService) UpdateHolidayState(ctx context.Context, actor models.Actor, id int64, to models.HolidayState) (*HolidayResult, error) {
	const op = "update_holiday_state"

	result, from, changed, err := s.changeHolidayState(ctx, actor, id, to)
	if err != nil {
		return nil, observe(op, s.translate(op, err))
	}
	if changed {
		conflicting := make([]int64, 0, len(result.Warnings))
		for _, w := range result.Warnings {
			conflicting = append(conflicting, w.BookingID)
		}
		if len(conflicting) > 0 {
			s.logger.Warn().Int64("holiday_id", id).Ints64("conflicting_bookings", conflicting).
				Str("to", string(to)).Msg("holiday confirmed over existing bookings")
		} else {
			s.logger.Info().Int64("holiday_id", id).Str("from", string(from)).Str("to", string(to)).Msg("holiday state changed")
		}
		s.publishHoliday(events.EventHolidayStateChanged, result.Holiday, from, actor, conflicting)
	}
	return result, observe(op, nil)
}

func (s *CoordinationService) changeHolidayState(ctx context.Context, actor models.Actor, id int64, to models.HolidayState) (*HolidayResult, models.HolidayState, bool, error) {
	current, err := s.store.GetHoliday(ctx, id)
	if err != nil {
		return nil, "", false, err
	}

	release, err := s.acquire(ctx, s.engineerKeys(current.UserID, current.Interval())...)
	if err != nil {
		return nil, "", false, err
	}
	defer release()

	current, err = s.store.GetHoliday(ctx, id)
	if err != nil {
		return nil, "", false, err
	}
	from := current.State
	changed, err := lifecycle.Holiday(actor, current, to)
	if err != nil {
		return nil, from, false, err
	}
	if !changed {
		return &HolidayResult{Holiday: s.localizeHoliday(current), Warnings: []apperr.Warning{}}, from, false, nil
	}

	updated, err := s.store.UpdateHolidayState(ctx, id, to)
	if err != nil {
		return nil, from, false, err
	}

	warnings := []apperr.Warning{}
	if updated.Blocks() {
		bookings, err := s.store.ListEngineerBookings(ctx, updated.UserID, updated.Start, updated.End)
		if err != nil {
			return nil, from, false, err
		}
		if found := conflict.HolidayWarnings(updated, bookings); found != nil {
			warnings = found
		}
	}
	return &HolidayResult{Holiday: s.localizeHoliday(updated), Warnings: warnings}, from, true, nil
}

// ListHolidays returns every holiday of userID, visible to the user and privileged actors.
func (s *CoordinationService) ListHolidays(ctx context.Context, actor models.Actor, userID int64) ([]*models.Holiday, error) {
	if userID == 0 {
		userID = actor.ID
	}
	if !actor.Owns(userID) {
		return nil, apperr.New(apperr.KindForbidden, "actor %d may not read holidays of user %d", actor.ID, userID)
	}
	holidays, err := s.store.ListUserHolidays(ctx, userID)
	if err != nil {
		return nil, s.translate("list_holidays", err)
	}
	for _, h := range holidays {
		s.localizeHoliday(h)
	}
	return holidays, nil
}

func (s *CoordinationService) localizeHoliday(h *models.Holiday) *models.Holiday {
	h.Start = h.Start.In(s.loc)
	h.End = h.End.In(s.loc)
	return h
}

func (s *CoordinationService) publishHoliday(eventType string, h *models.Holiday, from models.HolidayState, actor models.Actor, conflicting []int64) {
	s.publish(eventType, events.HolidayEventPayload{
		HolidayID:           h.ID,
		UserID:              h.UserID,
		Start:               h.Start,
		End:                 h.End,
		State:               string(h.State),
		FromState:           string(from),
		ChangedBy:           actor.ID,
		ConflictingBookings: conflicting,
	})
}
