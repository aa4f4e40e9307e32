package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventBookingCreated      = "booking_created"
	EventBookingStateChanged = "booking_state_changed"
	EventBookingReset        = "booking_reset"
	EventHolidayCreated      = "holiday_created"
	EventHolidayStateChanged = "holiday_state_changed"
	EventAvailabilityChanged = "availability_changed"
	EventUserRoleChanged     = "user_role_changed"
	EventReportCreated       = "report_created"
)

// AllTypes lists every event type the coordination engine publishes.
var AllTypes = []string{
	EventBookingCreated,
	EventBookingStateChanged,
	EventBookingReset,
	EventHolidayCreated,
	EventHolidayStateChanged,
	EventAvailabilityChanged,
	EventUserRoleChanged,
	EventReportCreated,
}

// BookingEventPayload describes the booking snapshot for event consumers.
type BookingEventPayload struct {
	BookingID  int64     `json:"booking_id"`
	UserID     int64     `json:"user_id"`
	FonicoID   int64     `json:"fonico_id"`
	StudioID   int64     `json:"studio_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	State      string    `json:"state"`
	FromState  string    `json:"from_state,omitempty"`
	ChangedBy  int64     `json:"changed_by"`
	ChangeRole string    `json:"changed_by_role"`
}

// HolidayEventPayload describes a holiday change. ConflictingBookings is set when a
// confirmation overlaps existing bookings.
type HolidayEventPayload struct {
	HolidayID           int64     `json:"holiday_id"`
	UserID              int64     `json:"user_id"`
	Start               time.Time `json:"start"`
	End                 time.Time `json:"end"`
	State               string    `json:"state"`
	FromState           string    `json:"from_state,omitempty"`
	ChangedBy           int64     `json:"changed_by"`
	ConflictingBookings []int64   `json:"conflicting_bookings,omitempty"`
}

// AvailabilityEventPayload tells consumers which engineer schedule changed.
type AvailabilityEventPayload struct {
	EngineerID int64  `json:"engineer_id"`
	Action     string `json:"action"`
	Day        string `json:"day"`
	ChangedBy  int64  `json:"changed_by"`
}

type UserEventPayload struct {
	UserID    int64  `json:"user_id"`
	Role      string `json:"role"`
	FromRole  string `json:"from_role,omitempty"`
	ChangedBy int64  `json:"changed_by"`
}

type ReportEventPayload struct {
	ReportID  int64  `json:"report_id"`
	UserID    *int64 `json:"user_id,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Reason    string `json:"reason"`
	CreatedBy int64  `json:"created_by"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	onError     func(event *Event, err error)
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// OnError installs a callback for handler failures. Handlers keep running after one fails.
func (b *EventBus) OnError(fn func(event *Event, err error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onError = fn
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers the handler for every type in AllTypes.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	for _, t := range AllTypes {
		b.Subscribe(t, handler)
	}
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	onError := b.onError
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil && onError != nil {
			onError(event, err)
		}
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
