package routes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aviv1ron1/the-commuter-il/internal/api/rail"
)

const suspiciousDurationMinutes = 20

// Searcher is the part of the rail client the adapter needs.
type Searcher interface {
	Search(ctx context.Context, fromID, toID int, t time.Time) (*rail.SearchResponse, error)
}

// RailSource fetches routes from the Israel Railways timetable.
type RailSource struct {
	client   Searcher
	stations *rail.Stations
	loc      *time.Location
	logger   *logrus.Logger
}

// NewRailSource creates a rail adapter. Timestamps without a zone are read in loc.
func NewRailSource(client Searcher, stations *rail.Stations, loc *time.Location, logger *logrus.Logger) *RailSource {
	if loc == nil {
		loc = time.Local
	}
	return &RailSource{
		client:   client,
		stations: stations,
		loc:      loc,
		logger:   logger,
	}
}

func (s *RailSource) FetchRoutes(ctx context.Context, from, to string, day time.Time) ([]RawRoute, error) {
	fromID, ok := s.stations.ID(from)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStation, from)
	}
	toID, ok := s.stations.ID(to)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStation, to)
	}

	local := day.In(s.loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)

	resp, err := s.client.Search(ctx, fromID, toID, dayStart)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.WithFields(logrus.Fields{
			"from":  from,
			"to":    to,
			"date":  dayStart.Format("2006-01-02"),
			"error": err,
		}).Warn("route search failed, treating as no routes")
		return nil, nil
	}

	travels := resp.AllTravels()
	routes := make([]RawRoute, 0, len(travels))
	dropped := 0

	for i, tr := range travels {
		route, err := s.parseTravel(tr, from, to, dayStart)
		if err != nil {
			dropped++
			s.logger.WithFields(logrus.Fields{
				"index": i,
				"error": err,
			}).Debug("dropping malformed travel")
			continue
		}
		if !sameDay(route.DepartureTime, dayStart) {
			continue
		}
		if route.DurationMinutes < suspiciousDurationMinutes {
			s.logger.WithFields(logrus.Fields{
				"from":     route.DepartureStation,
				"to":       route.ArrivalStation,
				"duration": route.DurationMinutes,
			}).Warn("suspiciously short train duration")
		}
		routes = append(routes, route)
	}

	fields := logrus.Fields{
		"from":    from,
		"to":      to,
		"date":    dayStart.Format("2006-01-02"),
		"total":   len(travels),
		"parsed":  len(routes),
		"dropped": dropped,
	}
	if dropped > 0 {
		s.logger.WithFields(fields).Warn("some travels could not be parsed")
	} else {
		s.logger.WithFields(fields).Debug("routes fetched")
	}

	return routes, nil
}

func (s *RailSource) parseTravel(tr rail.Travel, from, to string, day time.Time) (RawRoute, error) {
	if tr.DepartureTime == "" || tr.ArrivalTime == "" {
		return RawRoute{}, errors.New("missing departure or arrival time")
	}

	dep, depClock, err := parseTimestamp(tr.DepartureTime, day, s.loc)
	if err != nil {
		return RawRoute{}, fmt.Errorf("departure time: %w", err)
	}
	arr, arrClock, err := parseTimestamp(tr.ArrivalTime, day, s.loc)
	if err != nil {
		return RawRoute{}, fmt.Errorf("arrival time: %w", err)
	}
	// Bare clock times past midnight belong to the next day.
	if depClock && arrClock && arr.Before(dep) {
		arr = arr.AddDate(0, 0, 1)
	}
	if !arr.After(dep) {
		return RawRoute{}, fmt.Errorf("arrival %s not after departure %s", tr.ArrivalTime, tr.DepartureTime)
	}

	route := RawRoute{
		DepartureStation: from,
		ArrivalStation:   to,
		DepartureTime:    dep,
		ArrivalTime:      arr,
		DurationMinutes:  int(arr.Sub(dep) / time.Minute),
		IsDirect:         len(tr.Trains) == 1,
	}

	if len(tr.Trains) > 0 {
		first := tr.Trains[0]
		last := tr.Trains[len(tr.Trains)-1]

		route.DepartureStation = s.stationName(first.Origin(), from)
		route.ArrivalStation = s.stationName(last.Destination(), to)
		route.TrainNumber = string(first.TrainNumber)
		route.Platform = string(first.Platform)
	}

	return route, nil
}

func (s *RailSource) stationName(id, fallback string) string {
	if id == "" {
		return fallback
	}
	if name, ok := s.stations.NameFromString(id); ok {
		return name
	}
	return "Unknown Station " + id
}

var timestampLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
}

// parseTimestamp reads a full timestamp, or a bare HH:MM anchored to day.
// clock reports whether the value was a bare time of day.
func parseTimestamp(s string, day time.Time, loc *time.Location) (t time.Time, clock bool, err error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, false, nil
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), false, nil
	}

	hm, err := time.Parse("15:04", s)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("unrecognised time %q", s)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hm.Hour(), hm.Minute(), 0, 0, loc), true, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
