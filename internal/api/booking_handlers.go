package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"studiobook/internal/apperr"
	"studiobook/internal/models"
	"studiobook/internal/service"
)

type bookingStateRequest struct {
	State models.BookingState `json:"state"`
}

type holidayStateRequest struct {
	State models.HolidayState `json:"state"`
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var body service.BookingRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	booking, err := s.coord.CreateBooking(r.Context(), actor(r), body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter models.BookingFilter
	var err error

	if filter.UserID, err = queryInt(q.Get("userId"), "userId"); err != nil {
		writeError(w, err)
		return
	}
	if filter.FonicoID, err = queryInt(q.Get("fonicoId"), "fonicoId"); err != nil {
		writeError(w, err)
		return
	}
	if filter.StudioID, err = queryInt(q.Get("studioId"), "studioId"); err != nil {
		writeError(w, err)
		return
	}
	filter.State = models.BookingState(strings.ToUpper(strings.TrimSpace(q.Get("state"))))
	if filter.From, err = queryTime(q.Get("from"), "from"); err != nil {
		writeError(w, err)
		return
	}
	if filter.To, err = queryTime(q.Get("to"), "to"); err != nil {
		writeError(w, err)
		return
	}

	bookings, err := s.coord.ListBookings(r.Context(), actor(r), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if bookings == nil {
		bookings = []*models.Booking{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	booking, err := s.coord.GetBooking(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleUpdateBookingState(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body bookingStateRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	booking, err := s.coord.UpdateBookingState(r.Context(), actor(r), id, body.State)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleResetBookingState(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body bookingStateRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	booking, err := s.coord.ResetBookingState(r.Context(), actor(r), id, body.State)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleCreateHoliday(w http.ResponseWriter, r *http.Request) {
	var body service.HolidayRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	holiday, err := s.coord.CreateHoliday(r.Context(), actor(r), body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, holiday)
}

func (s *HTTPServer) handleListHolidays(w http.ResponseWriter, r *http.Request) {
	userID, err := queryInt(r.URL.Query().Get("userId"), "userId")
	if err != nil {
		writeError(w, err)
		return
	}
	holidays, err := s.coord.ListHolidays(r.Context(), actor(r), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if holidays == nil {
		holidays = []*models.Holiday{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"holidays": holidays})
}

func (s *HTTPServer) handleUpdateHolidayState(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body holidayStateRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	result, err := s.coord.UpdateHolidayState(r.Context(), actor(r), id, body.State)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func queryInt(raw, name string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, apperr.New(apperr.KindValidation, "%s must be a positive integer", name)
	}
	return v, nil
}

func queryTime(raw, name string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, apperr.Wrap(apperr.KindValidation, err, "%s must be an RFC 3339 timestamp", name)
	}
	return t, nil
}
