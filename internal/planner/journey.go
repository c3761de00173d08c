package planner

import (
	"errors"
	"fmt"
	"time"

	"github.com/aviv1ron1/the-commuter-il/internal/routes"
)

var (
	// ErrMissingTime is returned when a planning call lacks its reference time.
	ErrMissingTime = errors.New("missing reference time")
	// ErrUnknownOffice is returned for an office ID that is not in the registry.
	ErrUnknownOffice = errors.New("unknown office")
	// ErrNotCandidateStation is returned when the parked station is not a candidate station.
	ErrNotCandidateStation = errors.New("not a candidate station")
	// ErrUnknownStation is returned when the route source cannot resolve a
	// registry station name. It indicates broken configuration.
	ErrUnknownStation = routes.ErrUnknownStation
)

// IsInputError reports whether err was caused by the caller's arguments.
func IsInputError(err error) bool {
	return errors.Is(err, ErrMissingTime) ||
		errors.Is(err, ErrUnknownOffice) ||
		errors.Is(err, ErrNotCandidateStation)
}

// SortMode selects the ordering of planned options.
type SortMode int

const (
	// SortByArrival orders by final arrival. Arrive-by plans list the latest
	// safe arrival first, the other plans the earliest arrival first.
	SortByArrival SortMode = iota
	// SortByLeaveTime lists the latest possible leave time first.
	SortByLeaveTime
)

func (m SortMode) String() string {
	switch m {
	case SortByArrival:
		return "arrival_time"
	case SortByLeaveTime:
		return "leave_time"
	default:
		return fmt.Sprintf("SortMode(%d)", int(m))
	}
}

// ParseSortMode parses "arrival_time" or "leave_time". An empty string is SortByArrival.
func ParseSortMode(s string) (SortMode, error) {
	switch s {
	case "", "arrival_time", "arrival":
		return SortByArrival, nil
	case "leave_time", "leave":
		return SortByLeaveTime, nil
	default:
		return SortByArrival, fmt.Errorf("invalid sort mode %q", s)
	}
}

// JourneyOption is one door-to-door plan: a transfer, a train and a final transfer.
//
// DepartureStation is where the user boards. For a trip home that is the
// office station, not the parked station; the parked station is carried by
// Plan.ParkedStation.
type JourneyOption struct {
	DepartureStation      string    `json:"departure_station"`
	LeaveTime             time.Time `json:"leave_time"`
	TrainDeparture        time.Time `json:"train_departure"`
	TrainArrival          time.Time `json:"train_arrival"`
	FinalArrival          time.Time `json:"final_arrival"`
	TotalDurationMinutes  int       `json:"total_duration_minutes"`
	DriveTimeMinutes      int       `json:"drive_time_minutes"`
	TrainDurationMinutes  int       `json:"train_duration_minutes"`
	FinalTransportMinutes int       `json:"final_transport_minutes"`
	IsDirect              bool      `json:"is_direct"`
	TrainNumber           string    `json:"train_number,omitempty"`
	DeparturePlatform     string    `json:"departure_platform,omitempty"`
}

// Plan is the result of a planning call. Outbound plans set Destination;
// return plans set FromLocation and ParkedStation, and their options depart
// from the office station.
type Plan struct {
	Destination   string          `json:"destination,omitempty"`
	FromLocation  string          `json:"from_location,omitempty"`
	ParkedStation string          `json:"parked_station,omitempty"`
	ReferenceTime time.Time       `json:"reference_time"`
	Options       []JourneyOption `json:"options"`
}

// Options tunes a planning call. The zero value uses the defaults.
type Options struct {
	// Window overrides the default search window of the planning mode.
	Window time.Duration
	Sort   SortMode
	// DirectOnly drops options that need a change of trains.
	DirectOnly bool
}

func newOption(station string, r routes.RawRoute, leave, final time.Time, driveMinutes, finalMinutes int) JourneyOption {
	return JourneyOption{
		DepartureStation:      station,
		LeaveTime:             leave,
		TrainDeparture:        r.DepartureTime,
		TrainArrival:          r.ArrivalTime,
		FinalArrival:          final,
		TotalDurationMinutes:  int(final.Sub(leave) / time.Minute),
		DriveTimeMinutes:      driveMinutes,
		TrainDurationMinutes:  r.DurationMinutes,
		FinalTransportMinutes: finalMinutes,
		IsDirect:              r.IsDirect,
		TrainNumber:           r.TrainNumber,
		DeparturePlatform:     r.Platform,
	}
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
