package service

import (
	"context"
	"errors"
	"time"

	"studiobook/internal/apperr"
	"studiobook/internal/calendar"
	"studiobook/internal/events"
	"studiobook/internal/lifecycle"
	"studiobook/internal/lock"
	"studiobook/internal/models"
)

// CreateAvailability adds a weekly or dated window to an engineer's schedule. A dated
// window joins that date's override, which then replaces the template for the date.
func (s *CoordinationService) CreateAvailability(ctx context.Context, actor models.Actor, a *models.Availability) (*models.Availability, error) {
	const op = "create_availability"

	if err := lifecycle.CanEditSchedule(actor, a.EngineerID); err != nil {
		return nil, observe(op, err)
	}
	if err := validateWindow(a); err != nil {
		return nil, observe(op, err)
	}

	err := s.withDayLocks(ctx, []int64{a.EngineerID}, []models.Day{a.Day}, func() error {
		if err := s.checkWindowOverlap(ctx, a); err != nil {
			return err
		}
		return s.store.CreateAvailability(ctx, a)
	})
	if err != nil {
		return nil, observe(op, s.translate(op, err))
	}

	s.publishAvailability(a.EngineerID, "created", a.Day, actor)
	return a, observe(op, nil)
}

// UpdateAvailability changes the day or hours of a window. The owning engineer stays fixed.
func (s *CoordinationService) UpdateAvailability(ctx context.Context, actor models.Actor, id int64, a *models.Availability) (*models.Availability, error) {
	const op = "update_availability"

	current, err := s.store.GetAvailability(ctx, id)
	if err != nil {
		return nil, observe(op, s.translate(op, err))
	}
	if err := lifecycle.CanEditSchedule(actor, current.EngineerID); err != nil {
		return nil, observe(op, err)
	}

	updated := *a
	updated.ID = id
	updated.EngineerID = current.EngineerID
	if err := validateWindow(&updated); err != nil {
		return nil, observe(op, err)
	}

	err = s.withDayLocks(ctx, []int64{current.EngineerID}, []models.Day{current.Day, updated.Day}, func() error {
		if err := s.checkWindowOverlap(ctx, &updated); err != nil {
			return err
		}
		return s.store.UpdateAvailability(ctx, &updated)
	})
	if err != nil {
		return nil, observe(op, s.translate(op, err))
	}

	s.publishAvailability(updated.EngineerID, "updated", updated.Day, actor)
	return &updated, observe(op, nil)
}

func (s *CoordinationService) DeleteAvailability(ctx context.Context, actor models.Actor, id int64) error {
	const op = "delete_availability"

	current, err := s.store.GetAvailability(ctx, id)
	if err != nil {
		return observe(op, s.translate(op, err))
	}
	if err := lifecycle.CanEditSchedule(actor, current.EngineerID); err != nil {
		return observe(op, err)
	}

	err = s.withDayLocks(ctx, []int64{current.EngineerID}, []models.Day{current.Day}, func() error {
		return s.store.DeleteAvailability(ctx, id)
	})
	if err != nil {
		return observe(op, s.translate(op, err))
	}

	s.publishAvailability(current.EngineerID, "deleted", current.Day, actor)
	return observe(op, nil)
}

// SetDayOverride replaces the schedule of one date. An empty ranges list closes the day.
func (s *CoordinationService) SetDayOverride(ctx context.Context, actor models.Actor, engineerID int64, date time.Time, ranges []calendar.TimeRange) ([]*models.Availability, error) {
	const op = "set_day_override"

	if err := lifecycle.CanEditSchedule(actor, engineerID); err != nil {
		return nil, observe(op, err)
	}
	if err := calendar.ValidateRanges(ranges); err != nil {
		return nil, observe(op, rangeError(err))
	}

	day := models.DateDay(date)
	var created []*models.Availability
	err := s.withDayLocks(ctx, []int64{engineerID}, []models.Day{day}, func() error {
		var err error
		created, err = s.store.ReplaceDayOverride(ctx, engineerID, day.Date, ranges)
		return err
	})
	if err != nil {
		return nil, observe(op, s.translate(op, err))
	}

	action := "override_set"
	if len(ranges) == 0 {
		action = "day_closed"
	}
	s.publishAvailability(engineerID, action, day, actor)
	return created, observe(op, nil)
}

// ClearDayOverride makes the weekly template apply to date again.
func (s *CoordinationService) ClearDayOverride(ctx context.Context, actor models.Actor, engineerID int64, date time.Time) error {
	const op = "clear_day_override"

	if err := lifecycle.CanEditSchedule(actor, engineerID); err != nil {
		return observe(op, err)
	}

	day := models.DateDay(date)
	err := s.withDayLocks(ctx, []int64{engineerID}, []models.Day{day}, func() error {
		return s.store.ClearDayOverride(ctx, engineerID, day.Date)
	})
	if err != nil {
		return observe(op, s.translate(op, err))
	}

	s.publishAvailability(engineerID, "override_cleared", day, actor)
	return observe(op, nil)
}

// withDayLocks runs fn holding the template key for weekly days and the date key for
// dated days.
func (s *CoordinationService) withDayLocks(ctx context.Context, engineerIDs []int64, days []models.Day, fn func() error) error {
	var keys []string
	for _, id := range engineerIDs {
		for _, d := range days {
			if d.IsDate() {
				keys = append(keys, lock.EngineerDateKey(id, calendar.DateKey(d.Date)))
			} else {
				keys = append(keys, lock.TemplateKey(id))
			}
		}
	}

	release, err := s.acquire(ctx, keys...)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

func (s *CoordinationService) checkWindowOverlap(ctx context.Context, a *models.Availability) error {
	existing, err := s.store.ListDayWindows(ctx, a.EngineerID, a.Day)
	if err != nil {
		return err
	}
	for _, w := range existing {
		if w.ID != a.ID && w.Range().Overlaps(a.Range()) {
			return apperr.New(apperr.KindValidation, "window %s overlaps window %d (%s) on %s",
				a.Range(), w.ID, w.Range(), a.Day)
		}
	}
	return nil
}

func validateWindow(a *models.Availability) error {
	if a.EngineerID <= 0 {
		return apperr.New(apperr.KindValidation, "engineerId is required")
	}
	if !a.Range().Valid() {
		return apperr.New(apperr.KindInvalidInterval, "window start %s must be before end %s", a.Start, a.End)
	}
	return nil
}

func rangeError(err error) error {
	if errors.Is(err, calendar.ErrOverlapRange) {
		return apperr.Wrap(apperr.KindValidation, err, "%s", err.Error())
	}
	return apperr.Wrap(apperr.KindInvalidInterval, err, "%s", err.Error())
}

func (s *CoordinationService) publishAvailability(engineerID int64, action string, day models.Day, actor models.Actor) {
	s.logger.Info().Int64("engineer_id", engineerID).Str("action", action).Str("day", day.String()).Msg("availability changed")
	s.publish(events.EventAvailabilityChanged, events.AvailabilityEventPayload{
		EngineerID: engineerID,
		Action:     action,
		Day:        day.String(),
		ChangedBy:  actor.ID,
	})
}
