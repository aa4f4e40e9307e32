package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a coordination failure.
type Kind string

const (
	KindValidation           Kind = "Validation"
	KindInvalidInterval      Kind = "InvalidInterval"
	KindOutsideAvailability  Kind = "OutsideAvailability"
	KindEngineerDoubleBooked Kind = "EngineerDoubleBooked"
	KindStudioDoubleBooked   Kind = "StudioDoubleBooked"
	KindHolidayConflict      Kind = "HolidayConflict"
	KindIllegalTransition    Kind = "IllegalTransition"
	KindNotFound             Kind = "NotFound"
	KindForbidden            Kind = "Forbidden"
	KindBusy                 Kind = "Busy"
	KindUnexpected           Kind = "Unexpected"
)

// InternalMessage replaces the message of unexpected failures before they leave the process.
const InternalMessage = "internal error"

// StatusCode maps a kind to its HTTP status class.
func (k Kind) StatusCode() int {
	switch k {
	case KindValidation, KindInvalidInterval:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindOutsideAvailability, KindEngineerDoubleBooked, KindStudioDoubleBooked,
		KindHolidayConflict, KindIllegalTransition:
		return http.StatusConflict
	case KindBusy:
		return http.StatusLocked
	default:
		return http.StatusInternalServerError
	}
}

// Error is a typed coordination failure. Err keeps the underlying cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, apperr.Busy) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Sentinels for errors.Is checks; they match any error of their kind.
var (
	Validation           = &Error{Kind: KindValidation}
	InvalidInterval      = &Error{Kind: KindInvalidInterval}
	OutsideAvailability  = &Error{Kind: KindOutsideAvailability}
	EngineerDoubleBooked = &Error{Kind: KindEngineerDoubleBooked}
	StudioDoubleBooked   = &Error{Kind: KindStudioDoubleBooked}
	HolidayConflict      = &Error{Kind: KindHolidayConflict}
	IllegalTransition    = &Error{Kind: KindIllegalTransition}
	NotFound             = &Error{Kind: KindNotFound}
	Forbidden            = &Error{Kind: KindForbidden}
	Busy                 = &Error{Kind: KindBusy}
	Unexpected           = &Error{Kind: KindUnexpected}
)

// KindOf returns the kind of err, or KindUnexpected for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

// Response is the normalized failure shape returned to clients.
type Response struct {
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
	Kind       Kind   `json:"kind,omitempty"`
}

// Normalize turns any error into the client-facing shape. Unexpected failures never
// expose their message.
func Normalize(err error) Response {
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindUnexpected {
		return Response{
			Message:    InternalMessage,
			StatusCode: http.StatusInternalServerError,
			Kind:       KindUnexpected,
		}
	}

	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	return Response{Message: msg, StatusCode: e.Kind.StatusCode(), Kind: e.Kind}
}

// Warning is a non-fatal finding attached to a successful result.
type Warning struct {
	Kind      Kind   `json:"kind"`
	BookingID int64  `json:"bookingId,omitempty"`
	Message   string `json:"message"`
}
