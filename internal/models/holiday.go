package models

import (
	"time"

	"studiobook/internal/calendar"
)

type HolidayState string

const (
	HolidayPending   HolidayState = "CONFERMARE"
	HolidayConfirmed HolidayState = "CONFERMATO"
	HolidayCancelled HolidayState = "ANNULLATO"
)

func (s HolidayState) Valid() bool {
	switch s {
	case HolidayPending, HolidayConfirmed, HolidayCancelled:
		return true
	}
	return false
}

type Holiday struct {
	ID        int64        `json:"id"`
	UserID    int64        `json:"userId"`
	Start     time.Time    `json:"start"`
	End       time.Time    `json:"end"`
	Reason    string       `json:"reason"`
	State     HolidayState `json:"state"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

func (h *Holiday) Interval() calendar.Interval {
	return calendar.Interval{Start: h.Start, End: h.End}
}

func (h *Holiday) Active() bool {
	return h.State != HolidayCancelled
}

// Blocks reports whether the holiday blacks out its user's calendar.
func (h *Holiday) Blocks() bool {
	return h.State == HolidayConfirmed
}
