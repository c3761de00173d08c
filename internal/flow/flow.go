// Package flow is the screen-by-screen state of an interactive planning
// session: where the user is, where they go, when, and the resulting request.
package flow

import (
	"errors"
	"fmt"
	"time"

	"github.com/aviv1ron1/the-commuter-il/internal/locate"
	"github.com/aviv1ron1/the-commuter-il/internal/places"
	"github.com/aviv1ron1/the-commuter-il/internal/planner"
)

// ErrInvalidTransition is returned when an action does not apply to the current screen.
var ErrInvalidTransition = errors.New("invalid transition")

// Screen is one of LocationScreen, DestinationScreen, TimingScreen or ResultsScreen.
type Screen interface {
	Name() string
	isScreen()
}

// LocationScreen asks where the user is.
type LocationScreen struct{}

// DestinationScreen offers the offices, or the trip home when at an office.
// RememberedStation is only set away from home.
type DestinationScreen struct {
	Place             locate.Place
	RememberedStation string
}

// TimingScreen asks when to travel. For a return trip Office is where the
// trip starts and ParkedStation where it ends.
type TimingScreen struct {
	Destination   DestinationScreen
	Office        string
	Return        bool
	ParkedStation string
}

// ResultsScreen holds everything needed to plan.
type ResultsScreen struct {
	Timing TimingScreen
	When   Timing
	Time   time.Time
}

func (LocationScreen) Name() string    { return "location" }
func (DestinationScreen) Name() string { return "destination" }
func (TimingScreen) Name() string      { return "timing" }
func (ResultsScreen) Name() string     { return "results" }

func (LocationScreen) isScreen()    {}
func (DestinationScreen) isScreen() {}
func (TimingScreen) isScreen()      {}
func (ResultsScreen) isScreen()     {}

// Navigator moves between screens. It is not safe for concurrent use.
type Navigator struct {
	current    Screen
	remembered func() string
}

// NewNavigator starts at the location screen. remembered returns the station
// parked at this morning; nil means places.DefaultReturnStation.
func NewNavigator(remembered func() string) *Navigator {
	if remembered == nil {
		remembered = func() string { return places.DefaultReturnStation }
	}
	return &Navigator{current: LocationScreen{}, remembered: remembered}
}

func (n *Navigator) Current() Screen {
	return n.current
}

func (n *Navigator) SelectLocation(place locate.Place) (DestinationScreen, error) {
	if _, ok := n.current.(LocationScreen); !ok {
		return DestinationScreen{}, n.invalid("select location")
	}
	next := DestinationScreen{Place: place}
	if place.Kind != locate.KindHome {
		next.RememberedStation = n.remembered()
	}
	n.current = next
	return next, nil
}

func (n *Navigator) ChooseDestination(officeID string) (TimingScreen, error) {
	cur, ok := n.current.(DestinationScreen)
	if !ok {
		return TimingScreen{}, n.invalid("choose destination")
	}
	if _, ok := places.OfficeByID(officeID); !ok {
		return TimingScreen{}, fmt.Errorf("%w: %q", planner.ErrUnknownOffice, officeID)
	}
	next := TimingScreen{Destination: cur, Office: officeID}
	n.current = next
	return next, nil
}

// StartReturn plans the trip home from officeID, or from the office the user
// is at when officeID is empty.
func (n *Navigator) StartReturn(officeID string) (TimingScreen, error) {
	cur, ok := n.current.(DestinationScreen)
	if !ok {
		return TimingScreen{}, n.invalid("start return")
	}
	if officeID == "" {
		officeID = cur.Place.ReturnDestination()
	}
	if officeID == "" {
		return TimingScreen{}, fmt.Errorf("%w: not at an office", ErrInvalidTransition)
	}
	if _, ok := places.OfficeByID(officeID); !ok {
		return TimingScreen{}, fmt.Errorf("%w: %q", planner.ErrUnknownOffice, officeID)
	}

	parked := cur.RememberedStation
	if parked == "" {
		parked = places.DefaultReturnStation
	}
	next := TimingScreen{
		Destination:   cur,
		Office:        officeID,
		Return:        true,
		ParkedStation: parked,
	}
	n.current = next
	return next, nil
}

func (n *Navigator) ChooseTiming(when Timing, t time.Time) (ResultsScreen, error) {
	cur, ok := n.current.(TimingScreen)
	if !ok {
		return ResultsScreen{}, n.invalid("choose timing")
	}
	if when == TimingLater && t.IsZero() {
		return ResultsScreen{}, fmt.Errorf("a later trip needs a time: %w", planner.ErrMissingTime)
	}
	next := ResultsScreen{Timing: cur, When: when, Time: t}
	n.current = next
	return next, nil
}

// Back returns to the previous screen. On the location screen it does nothing.
func (n *Navigator) Back() Screen {
	switch cur := n.current.(type) {
	case DestinationScreen:
		n.current = LocationScreen{}
	case TimingScreen:
		n.current = cur.Destination
	case ResultsScreen:
		n.current = cur.Timing
	}
	return n.current
}

func (n *Navigator) invalid(action string) error {
	return fmt.Errorf("%w: cannot %s on the %s screen", ErrInvalidTransition, action, n.current.Name())
}
