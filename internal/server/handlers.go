package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/aviv1ron1/the-commuter-il/internal/flow"
	"github.com/aviv1ron1/the-commuter-il/internal/geo"
	"github.com/aviv1ron1/the-commuter-il/internal/locate"
	"github.com/aviv1ron1/the-commuter-il/internal/places"
	"github.com/aviv1ron1/the-commuter-il/internal/planner"
	"github.com/aviv1ron1/the-commuter-il/internal/reminder"
)

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type locationInfo struct {
	Location          string `json:"location"`
	ShowDestinations  bool   `json:"show_destinations"`
	ReturnDestination string `json:"return_destination,omitempty"`
	RememberedStation string `json:"remembered_station,omitempty"`
}

func (s *Server) detectLocation(w http.ResponseWriter, r *http.Request) {
	var c *geo.Coordinate
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil || c == nil {
		s.badRequest(w, fmt.Errorf("body must be {\"latitude\": ..., \"longitude\": ...}"))
		return
	}
	if !c.Valid() {
		s.badRequest(w, fmt.Errorf("coordinate %s out of range", c))
		return
	}

	place := locate.Classify(*c)
	info := locationInfo{
		Location:          place.Label(),
		ShowDestinations:  place.ShowDestinations(),
		ReturnDestination: place.ReturnDestination(),
	}
	if place.Kind == locate.KindOffice {
		info.RememberedStation = places.DisplayName(s.reminders.RememberedStation(r.Context()))
	}
	s.writeJSON(w, http.StatusOK, info)
}

type stationInfo struct {
	Name      string `json:"name"`
	DriveTime int    `json:"drive_time"`
}

func (s *Server) stations(w http.ResponseWriter, _ *http.Request) {
	list := places.Stations()
	out := make([]stationInfo, len(list))
	for i, st := range list {
		out[i] = stationInfo{Name: places.DisplayName(st.Name), DriveTime: st.DriveMinutes}
	}
	s.writeJSON(w, http.StatusOK, map[string][]stationInfo{"stations": out})
}

func (s *Server) planJourney(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.plan(w, r, q.Get("destination"), "")
}

func (s *Server) planReturn(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	station := q.Get("station")
	if station == "" {
		station = s.reminders.RememberedStation(r.Context())
	}
	s.plan(w, r, q.Get("from"), station)
}

func (s *Server) plan(w http.ResponseWriter, r *http.Request, officeID, parkedStation string) {
	q := r.URL.Query()
	now := s.now().In(s.loc)

	when, err := flow.ParseTiming(q.Get("timing"))
	if err != nil {
		s.badRequest(w, err)
		return
	}
	t, err := flow.ParseTime(q.Get("time"), now)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	opts, err := planOptions(q.Get("sort"), q.Get("direct_only"))
	if err != nil {
		s.badRequest(w, err)
		return
	}

	req, err := flow.NewRequest(officeID, parkedStation, when, t, now)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	plan, err := req.Run(r.Context(), s.planner, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, plan)
}

func planOptions(sort, directOnly string) (planner.Options, error) {
	var opts planner.Options
	mode, err := planner.ParseSortMode(sort)
	if err != nil {
		return opts, err
	}
	opts.Sort = mode
	if directOnly != "" {
		v, err := strconv.ParseBool(directOnly)
		if err != nil {
			return opts, fmt.Errorf("invalid direct_only %q", directOnly)
		}
		opts.DirectOnly = v
	}
	return opts, nil
}

type reminderResponse struct {
	Reminder *reminder.Reminder `json:"reminder"`
	Message  string             `json:"message,omitempty"`
}

func (s *Server) getReminder(w http.ResponseWriter, r *http.Request) {
	active, err := s.reminders.GetActive(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, reminderResponse{Reminder: active})
}

func (s *Server) scheduleReminder(w http.ResponseWriter, r *http.Request) {
	var option planner.JourneyOption
	if err := json.NewDecoder(r.Body).Decode(&option); err != nil {
		s.badRequest(w, fmt.Errorf("decoding journey option: %w", err))
		return
	}
	if option.LeaveTime.IsZero() || option.TrainDeparture.IsZero() {
		s.badRequest(w, fmt.Errorf("leave_time and train_departure are required"))
		return
	}

	scheduled, err := s.reminders.Schedule(r.Context(), option)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if scheduled == nil {
		s.writeJSON(w, http.StatusOK, reminderResponse{Message: "too late to remind, leave now"})
		return
	}
	s.writeJSON(w, http.StatusCreated, reminderResponse{Reminder: scheduled})
}

func (s *Server) cancelReminder(w http.ResponseWriter, r *http.Request) {
	if err := s.reminders.CancelActive(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
