package models

import (
	"time"

	"studiobook/internal/calendar"
)

type BookingState string

const (
	BookingToContact BookingState = "CONTATTARE"
	BookingContacted BookingState = "CONTATTATO"
	BookingConfirmed BookingState = "CONFERMATO"
	BookingCancelled BookingState = "ANNULLATO"
)

func (s BookingState) Valid() bool {
	switch s {
	case BookingToContact, BookingContacted, BookingConfirmed, BookingCancelled:
		return true
	}
	return false
}

type Booking struct {
	ID        int64        `json:"id"`
	UserID    int64        `json:"userId"`
	FonicoID  int64        `json:"fonicoId"`
	StudioID  int64        `json:"studioId"`
	Start     time.Time    `json:"start"`
	End       time.Time    `json:"end"`
	Services  []int64      `json:"services"`
	Notes     string       `json:"notes,omitempty"`
	Phone     string       `json:"phone"`
	Instagram string       `json:"instagram"`
	State     BookingState `json:"state"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
	Version   int64        `json:"version"`
}

func (b *Booking) Interval() calendar.Interval {
	return calendar.Interval{Start: b.Start, End: b.End}
}

// Active bookings occupy their engineer and studio.
func (b *Booking) Active() bool {
	return b.State != BookingCancelled
}

// DedupServices keeps the first occurrence of every service id, preserving order.
func DedupServices(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// BookingFilter narrows booking listings. Zero values are ignored.
type BookingFilter struct {
	UserID   int64
	FonicoID int64
	StudioID int64
	State    BookingState
	From     time.Time
	To       time.Time
}
