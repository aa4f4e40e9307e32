package service

import (
	"context"
	"time"

	"studiobook/internal/export"
	"studiobook/internal/lifecycle"
	"studiobook/internal/models"
)

// ExportSchedule gathers an engineer's template, free slots and bookings for the dates
// from..to. Only the engineer and privileged actors may export it.
func (s *CoordinationService) ExportSchedule(ctx context.Context, actor models.Actor, engineerID int64, from, to time.Time) (*export.Schedule, error) {
	const op = "export_schedule"

	if err := lifecycle.CanEditSchedule(actor, engineerID); err != nil {
		return nil, observe(op, err)
	}

	slots, err := s.resolver.ComputeFreeSlots(ctx, engineerID, from, to, 0)
	if err != nil {
		return nil, observe(op, s.translate(op, err))
	}
	weekly, err := s.resolver.WeeklyAvailability(ctx, engineerID)
	if err != nil {
		return nil, observe(op, s.translate(op, err))
	}

	span := s.resolver.Bounds(from, to)
	bookings, err := s.store.ListBookings(ctx, models.BookingFilter{FonicoID: engineerID, From: span.Start, To: span.End})
	if err != nil {
		return nil, observe(op, s.translate(op, err))
	}
	for _, b := range bookings {
		s.localize(b)
	}

	return &export.Schedule{
		EngineerID: engineerID,
		From:       from,
		To:         to,
		Location:   s.loc,
		Weekly:     weekly,
		FreeSlots:  slots,
		Bookings:   bookings,
	}, observe(op, nil)
}
