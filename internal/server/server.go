// Package server exposes journey planning and the leave reminder as a JSON API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/aviv1ron1/the-commuter-il/internal/flow"
	"github.com/aviv1ron1/the-commuter-il/internal/planner"
	"github.com/aviv1ron1/the-commuter-il/internal/reminder"
)

const maxBodyBytes = 64 << 10

// Reminders is the reminder coordinator as used by the API.
type Reminders interface {
	Schedule(ctx context.Context, option planner.JourneyOption) (*reminder.Reminder, error)
	CancelActive(ctx context.Context) error
	GetActive(ctx context.Context) (*reminder.Reminder, error)
	RememberedStation(ctx context.Context) string
}

var _ Reminders = (*reminder.Coordinator)(nil)

type Server struct {
	planner   flow.Planner
	reminders Reminders
	logger    *logrus.Logger
	loc       *time.Location
	now       func() time.Time
}

// New creates the API. Times without a zone are read in loc.
func New(p flow.Planner, reminders Reminders, loc *time.Location, logger *logrus.Logger) *Server {
	if loc == nil {
		loc = time.Local
	}
	return &Server{
		planner:   p,
		reminders: reminders,
		logger:    logger,
		loc:       loc,
		now:       time.Now,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestSize(maxBodyBytes))

	r.Get("/healthz", s.health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/location", s.detectLocation)
		r.Get("/stations", s.stations)
		r.Get("/plan", s.planJourney)
		r.Get("/plan/return", s.planReturn)

		r.Get("/reminder", s.getReminder)
		r.Post("/reminder", s.scheduleReminder)
		r.Delete("/reminder", s.cancelReminder)
	})

	return r
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithField("error", err).Warn("failed to write response")
	}
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	s.writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{Code: "invalid_request", Message: err.Error()}})
}

// writeError maps planning and reminder errors to a status code. Input errors
// are the caller's fault; anything else is reported as a server error.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case planner.IsInputError(err), errors.Is(err, flow.ErrInvalidTransition):
		s.badRequest(w, err)
	case errors.Is(err, planner.ErrUnknownStation):
		s.logger.WithFields(logrus.Fields{
			"path":  r.URL.Path,
			"error": err,
		}).Error("station configuration error")
		s.writeJSON(w, http.StatusInternalServerError, errorBody{Error: errorDetail{Code: "configuration_error", Message: err.Error()}})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: errorDetail{Code: "cancelled", Message: err.Error()}})
	default:
		s.logger.WithFields(logrus.Fields{
			"path":  r.URL.Path,
			"error": err,
		}).Error("request failed")
		s.writeJSON(w, http.StatusInternalServerError, errorBody{Error: errorDetail{Code: "internal_error", Message: "internal error"}})
	}
}
