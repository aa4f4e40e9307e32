package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"studiobook/internal/apperr"
	"studiobook/internal/config"
	"studiobook/internal/models"
	"studiobook/internal/service"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// HTTPServer exposes the coordination and directory services as a JSON API.
type HTTPServer struct {
	coord   *service.CoordinationService
	dir     *service.DirectoryService
	ready   func(ctx context.Context) error
	auth    *JWTAuth
	limiter *rateLimiter
	server  *http.Server
	logger  *zerolog.Logger
}

func NewHTTPServer(
	cfg config.APIConfig,
	authCfg config.AuthConfig,
	coord *service.CoordinationService,
	dir *service.DirectoryService,
	ready func(ctx context.Context) error,
	logger *zerolog.Logger,
) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	srv := &HTTPServer{
		coord:   coord,
		dir:     dir,
		ready:   ready,
		auth:    NewJWTAuth(authCfg),
		limiter: newRateLimiter(cfg.RateLimit),
		logger:  logger,
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return srv
}

func (s *HTTPServer) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.accessLog)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()

	// Self registration works without a token.
	api.Handle("/users", s.auth.Optional(s.limiter.Middleware(http.HandlerFunc(s.handleRegisterUser)))).
		Methods(http.MethodPost)

	protected := api.PathPrefix("").Subrouter()
	protected.Use(s.auth.Required, s.limiter.Middleware)

	protected.HandleFunc("/availability", s.handleCreateAvailability).Methods(http.MethodPost)
	protected.HandleFunc("/availability/{id:[0-9]+}", s.handleUpdateAvailability).Methods(http.MethodPut)
	protected.HandleFunc("/availability/{id:[0-9]+}", s.handleDeleteAvailability).Methods(http.MethodDelete)
	protected.HandleFunc("/engineers/{id:[0-9]+}/availability", s.handleDayAvailability).Methods(http.MethodGet)
	protected.HandleFunc("/engineers/{id:[0-9]+}/availability/weekly", s.handleWeeklyAvailability).Methods(http.MethodGet)
	protected.HandleFunc("/engineers/{id:[0-9]+}/free-slots", s.handleFreeSlots).Methods(http.MethodGet)
	protected.HandleFunc("/engineers/{id:[0-9]+}/overrides/{date}", s.handleSetOverride).Methods(http.MethodPut)
	protected.HandleFunc("/engineers/{id:[0-9]+}/overrides/{date}", s.handleClearOverride).Methods(http.MethodDelete)
	protected.HandleFunc("/engineers/{id:[0-9]+}/schedule.xlsx", s.handleExportSchedule).Methods(http.MethodGet)

	protected.HandleFunc("/bookings", s.handleCreateBooking).Methods(http.MethodPost)
	protected.HandleFunc("/bookings", s.handleListBookings).Methods(http.MethodGet)
	protected.HandleFunc("/bookings/{id:[0-9]+}", s.handleGetBooking).Methods(http.MethodGet)
	protected.HandleFunc("/bookings/{id:[0-9]+}/state", s.handleUpdateBookingState).Methods(http.MethodPatch)
	protected.HandleFunc("/bookings/{id:[0-9]+}/reset", s.handleResetBookingState).Methods(http.MethodPost)

	protected.HandleFunc("/holidays", s.handleCreateHoliday).Methods(http.MethodPost)
	protected.HandleFunc("/holidays", s.handleListHolidays).Methods(http.MethodGet)
	protected.HandleFunc("/holidays/{id:[0-9]+}/state", s.handleUpdateHolidayState).Methods(http.MethodPatch)

	protected.HandleFunc("/users/{id:[0-9]+}", s.handleGetUser).Methods(http.MethodGet)
	protected.HandleFunc("/users/{id:[0-9]+}/role", s.handleUpdateUserRole).Methods(http.MethodPatch)
	protected.HandleFunc("/entities", s.handleCreateEntity).Methods(http.MethodPost)
	protected.HandleFunc("/entities", s.handleListEntities).Methods(http.MethodGet)
	protected.HandleFunc("/entities/{id:[0-9]+}", s.handleGetEntity).Methods(http.MethodGet)
	protected.HandleFunc("/reports", s.handleCreateReport).Methods(http.MethodPost)
	protected.HandleFunc("/reports", s.handleListReports).Methods(http.MethodGet)

	return r
}

func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("readiness check failed")
			writeStatus(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// actor returns the authenticated caller. Routes behind Required always have one.
func actor(r *http.Request) models.Actor {
	a, _ := ActorFromContext(r.Context())
	return a
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.New(apperr.KindValidation, "invalid id %q", mux.Vars(r)["id"])
	}
	return id, nil
}

// decodeJSON reads a single JSON object into dst. Malformed bodies are validation errors.
func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return apperr.Wrap(apperr.KindValidation, err, "invalid JSON body: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError is the single place failures leave the process.
func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		writeStatus(w, http.StatusServiceUnavailable, "request cancelled")
		return
	}
	resp := apperr.Normalize(err)
	writeJSON(w, resp.StatusCode, resp)
}

func writeStatus(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, apperr.Response{Message: message, StatusCode: statusCode})
}
