package service

import (
	"context"
	"errors"
	"time"

	"studiobook/internal/apperr"
	"studiobook/internal/availability"
	"studiobook/internal/calendar"
	"studiobook/internal/conflict"
	"studiobook/internal/database"
	"studiobook/internal/domain"
	"studiobook/internal/lock"
	"studiobook/internal/metrics"
	"studiobook/internal/models"

	"github.com/rs/zerolog"
)

// Options tunes the coordination rules. Zero values fall back to the package defaults.
type Options struct {
	Location       *time.Location
	MaxRangeDays   int
	MaxHolidayDays int
}

// CoordinationService is the single entry point for schedule mutations. Every write
// takes the keyed locks of the dates it touches, loads fresh state, validates, writes,
// releases and only then publishes its event.
type CoordinationService struct {
	store    domain.Store
	locker   domain.Locker
	eventBus domain.EventPublisher
	resolver *availability.Resolver
	checker  *conflict.Checker
	loc      *time.Location
	logger   *zerolog.Logger
}

func NewCoordinationService(store domain.Store, locker domain.Locker, eventBus domain.EventPublisher, opts Options, logger *zerolog.Logger) *CoordinationService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if locker == nil {
		locker = lock.NewMemoryLocker(models.DefaultLockTimeout)
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &CoordinationService{
		store:    store,
		locker:   locker,
		eventBus: eventBus,
		resolver: availability.NewResolver(store, opts.Location, opts.MaxRangeDays),
		checker:  conflict.NewChecker(opts.MaxHolidayDays),
		loc:      opts.Location,
		logger:   logger,
	}
}

func (s *CoordinationService) Location() *time.Location {
	return s.loc
}

// acquire takes the keyed locks and records how long the wait took.
func (s *CoordinationService) acquire(ctx context.Context, keys ...string) (func(), error) {
	started := time.Now()
	release, err := s.locker.Acquire(ctx, keys...)
	metrics.ObserveLockWait(time.Since(started))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, apperr.Busy) {
			return nil, err
		}
		return nil, apperr.Wrap(apperr.KindBusy, err, "schedule is locked, retry later")
	}
	return release, nil
}

// engineerKeys lists the per-date lock keys of an engineer for the dates iv touches.
func (s *CoordinationService) engineerKeys(engineerID int64, iv calendar.Interval) []string {
	dates := calendar.SpannedDates(iv, s.loc)
	keys := make([]string, 0, len(dates))
	for _, d := range dates {
		keys = append(keys, lock.EngineerDateKey(engineerID, calendar.DateKey(d)))
	}
	return keys
}

func (s *CoordinationService) bookingKeys(b *models.Booking) []string {
	iv := b.Interval()
	keys := s.engineerKeys(b.FonicoID, iv)
	for _, d := range calendar.SpannedDates(iv, s.loc) {
		keys = append(keys, lock.StudioDateKey(b.StudioID, calendar.DateKey(d)))
	}
	return keys
}

// translate maps store failures onto the error taxonomy. Unknown failures are logged
// here with their cause and leave as Unexpected.
func (s *CoordinationService) translate(op string, err error) error {
	return translateError(s.logger, op, err)
}

func translateError(logger *zerolog.Logger, op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, database.ErrNotFound):
		return apperr.Wrap(apperr.KindNotFound, err, "%s", err.Error())
	case errors.Is(err, database.ErrConcurrentModification):
		return apperr.Wrap(apperr.KindBusy, err, "record changed concurrently, retry")
	case errors.Is(err, database.ErrEngineerBusy):
		return apperr.Wrap(apperr.KindEngineerDoubleBooked, err, "engineer already booked in this interval")
	case errors.Is(err, database.ErrStudioBusy):
		return apperr.Wrap(apperr.KindStudioDoubleBooked, err, "studio already booked in this interval")
	case errors.Is(err, database.ErrDuplicate):
		return apperr.Wrap(apperr.KindValidation, err, "%s", err.Error())
	}
	logger.Error().Err(err).Str("operation", op).Msg("unexpected failure")
	return apperr.Wrap(apperr.KindUnexpected, err, "%s failed", op)
}

// observe counts the outcome of op and passes err through.
func observe(op string, err error) error {
	outcome := "ok"
	if err != nil {
		outcome = string(apperr.KindOf(err))
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			outcome = "Cancelled"
		}
	}
	metrics.ObserveOperation(op, outcome)
	return err
}

func (s *CoordinationService) publish(eventType string, payload interface{}) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}

// GetEngineerAvailability describes one date of an engineer: declared windows and free slots.
func (s *CoordinationService) GetEngineerAvailability(ctx context.Context, engineerID int64, date time.Time) (*availability.DayAvailability, error) {
	day, err := s.resolver.FreeSlotsForDate(ctx, engineerID, date)
	return day, observe("get_engineer_availability", s.translate("get_engineer_availability", err))
}

// GetWeeklyAvailability returns the recurring template, Monday first.
func (s *CoordinationService) GetWeeklyAvailability(ctx context.Context, engineerID int64) ([]models.Availability, error) {
	weekly, err := s.resolver.WeeklyAvailability(ctx, engineerID)
	return weekly, observe("get_weekly_availability", s.translate("get_weekly_availability", err))
}

// ComputeFreeSlots lists free time per date from..to inclusive.
func (s *CoordinationService) ComputeFreeSlots(ctx context.Context, engineerID int64, from, to time.Time, minDuration time.Duration) ([]availability.DaySlots, error) {
	if minDuration < 0 {
		return nil, observe("compute_free_slots", apperr.New(apperr.KindValidation, "minimum duration must not be negative"))
	}
	slots, err := s.resolver.ComputeFreeSlots(ctx, engineerID, from, to, minDuration)
	return slots, observe("compute_free_slots", s.translate("compute_free_slots", err))
}
