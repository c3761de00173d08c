package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/aviv1ron1/the-commuter-il/internal/locate"
	"github.com/aviv1ron1/the-commuter-il/internal/places"
	"github.com/aviv1ron1/the-commuter-il/internal/planner"
)

// Timing is "now" or "later".
type Timing string

const (
	TimingNow   Timing = "now"
	TimingLater Timing = "later"
)

// ParseTiming accepts "now", "later" and the empty string for now.
func ParseTiming(s string) (Timing, error) {
	switch Timing(s) {
	case "", TimingNow:
		return TimingNow, nil
	case TimingLater:
		return TimingLater, nil
	default:
		return "", fmt.Errorf("invalid timing %q, want now or later", s)
	}
}

type Mode int

const (
	ModeArriveBy Mode = iota
	ModeDepartAfter
	ModeReturnHome
)

func (m Mode) String() string {
	switch m {
	case ModeArriveBy:
		return "arrive_by"
	case ModeDepartAfter:
		return "depart_after"
	default:
		return "return_home"
	}
}

// Request is a planning call ready to run.
type Request struct {
	Mode          Mode
	Office        string
	ParkedStation string
	Time          time.Time
}

// Request turns the results screen into a planning call. Going out now plans
// forward from now; going out later plans backward from the chosen arrival
// time. Going home always plans forward.
func (r ResultsScreen) Request(now time.Time) Request {
	t := r.Time
	if r.When == TimingNow {
		t = now
	}
	req := Request{Office: r.Timing.Office, Time: t}
	switch {
	case r.Timing.Return:
		req.Mode = ModeReturnHome
		req.ParkedStation = r.Timing.ParkedStation
	case r.When == TimingNow:
		req.Mode = ModeDepartAfter
	default:
		req.Mode = ModeArriveBy
	}
	return req
}

// NewRequest builds a request without walking the screens by hand. A
// non-empty parkedStation makes it a return trip; it may be a display label
// such as "Lehavim".
func NewRequest(officeID, parkedStation string, when Timing, t, now time.Time) (Request, error) {
	place := locate.Place{Kind: locate.KindHome}
	if parkedStation != "" {
		place = locate.Place{Kind: locate.KindOffice, Office: officeID}
	}
	nav := NewNavigator(func() string { return places.CanonicalStation(parkedStation) })
	if _, err := nav.SelectLocation(place); err != nil {
		return Request{}, err
	}

	var err error
	if parkedStation != "" {
		_, err = nav.StartReturn(officeID)
	} else {
		_, err = nav.ChooseDestination(officeID)
	}
	if err != nil {
		return Request{}, err
	}

	results, err := nav.ChooseTiming(when, t)
	if err != nil {
		return Request{}, err
	}
	return results.Request(now), nil
}

// Planner is the planning engine as seen by a request.
type Planner interface {
	PlanArriveBy(ctx context.Context, officeID string, deadline time.Time, opts planner.Options) (*planner.Plan, error)
	PlanDepartAfter(ctx context.Context, officeID string, start time.Time, opts planner.Options) (*planner.Plan, error)
	PlanReturnHome(ctx context.Context, officeID, parkedStation string, departTime time.Time, opts planner.Options) (*planner.Plan, error)
}

var _ Planner = (*planner.Planner)(nil)

// Run executes the request.
func (r Request) Run(ctx context.Context, p Planner, opts planner.Options) (*planner.Plan, error) {
	switch r.Mode {
	case ModeArriveBy:
		return p.PlanArriveBy(ctx, r.Office, r.Time, opts)
	case ModeDepartAfter:
		return p.PlanDepartAfter(ctx, r.Office, r.Time, opts)
	default:
		return p.PlanReturnHome(ctx, r.Office, r.ParkedStation, r.Time, opts)
	}
}

var timeLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ParseTime reads an RFC 3339 timestamp, a local "2006-01-02T15:04" or a bare
// "15:04" on the day of now. Local forms use the location of now.
func ParseTime(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(now.Location()), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return t, nil
		}
	}
	hm, err := time.Parse("15:04", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q, want RFC 3339 or HH:MM", s)
	}
	return time.Date(now.Year(), now.Month(), now.Day(), hm.Hour(), hm.Minute(), 0, 0, now.Location()), nil
}
