package api

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"
	"time"

	"studiobook/internal/apperr"
	"studiobook/internal/calendar"
	"studiobook/internal/models"

	"github.com/gorilla/mux"
)

type overrideRequest struct {
	Ranges []calendar.TimeRange `json:"ranges"`
}

func (s *HTTPServer) handleCreateAvailability(w http.ResponseWriter, r *http.Request) {
	var body models.Availability
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	body.ID = 0
	created, err := s.coord.CreateAvailability(r.Context(), actor(r), &body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *HTTPServer) handleUpdateAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body models.Availability
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	updated, err := s.coord.UpdateAvailability(r.Context(), actor(r), id, &body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *HTTPServer) handleDeleteAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.coord.DeleteAvailability(r.Context(), actor(r), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleDayAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	date, err := s.queryDate(r, "date")
	if err != nil {
		writeError(w, err)
		return
	}
	day, err := s.coord.GetEngineerAvailability(r.Context(), id, date)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, day)
}

func (s *HTTPServer) handleWeeklyAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	weekly, err := s.coord.GetWeeklyAvailability(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if weekly == nil {
		weekly = []models.Availability{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"engineerId": id, "windows": weekly})
}

func (s *HTTPServer) handleFreeSlots(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	from, to, err := s.queryRange(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var minDuration time.Duration
	if raw := strings.TrimSpace(r.URL.Query().Get("min_minutes")); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, apperr.New(apperr.KindValidation, "min_minutes must be an integer"))
			return
		}
		minDuration = time.Duration(minutes) * time.Minute
	}

	days, err := s.coord.ComputeFreeSlots(r.Context(), id, from, to, minDuration)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"engineerId": id, "days": days})
}

func (s *HTTPServer) handleSetOverride(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	date, err := calendar.ParseDate(mux.Vars(r)["date"])
	if err != nil {
		writeError(w, apperr.Wrap(apperr.KindValidation, err, "date must be YYYY-MM-DD"))
		return
	}
	var body overrideRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	windows, err := s.coord.SetDayOverride(r.Context(), actor(r), id, date, body.Ranges)
	if err != nil {
		writeError(w, err)
		return
	}
	if windows == nil {
		windows = []*models.Availability{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"engineerId": id,
		"date":       calendar.DateKey(date),
		"closed":     len(body.Ranges) == 0,
		"windows":    windows,
	})
}

func (s *HTTPServer) handleClearOverride(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	date, err := calendar.ParseDate(mux.Vars(r)["date"])
	if err != nil {
		writeError(w, apperr.Wrap(apperr.KindValidation, err, "date must be YYYY-MM-DD"))
		return
	}
	if err := s.coord.ClearDayOverride(r.Context(), actor(r), id, date); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleExportSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	from, to, err := s.queryRange(r)
	if err != nil {
		writeError(w, err)
		return
	}
	schedule, err := s.coord.ExportSchedule(r.Context(), actor(r), id, from, to)
	if err != nil {
		writeError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := schedule.Write(&buf); err != nil {
		s.logger.Error().Err(err).Int64("engineer_id", id).Msg("schedule export failed")
		writeError(w, apperr.Wrap(apperr.KindUnexpected, err, "export failed"))
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+schedule.FileName()+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// queryDate parses a YYYY-MM-DD parameter. A missing value means today in the studio's zone.
func (s *HTTPServer) queryDate(r *http.Request, name string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return calendar.CivilDate(time.Now().In(s.coord.Location())), nil
	}
	d, err := calendar.ParseDate(raw)
	if err != nil {
		return time.Time{}, apperr.Wrap(apperr.KindValidation, err, "%s must be YYYY-MM-DD", name)
	}
	return d, nil
}

// queryRange reads from and to. to defaults to from, from defaults to today.
func (s *HTTPServer) queryRange(r *http.Request) (time.Time, time.Time, error) {
	from, err := s.queryDate(r, "from")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if strings.TrimSpace(r.URL.Query().Get("to")) == "" {
		return from, from, nil
	}
	to, err := s.queryDate(r, "to")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}
