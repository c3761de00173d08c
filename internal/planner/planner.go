// Package planner turns raw train routes into ranked door-to-door journey
// options for the three commute scenarios.
package planner

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"github.com/aviv1ron1/the-commuter-il/internal/places"
	"github.com/aviv1ron1/the-commuter-il/internal/routes"
)

const (
	DefaultArriveByWindow    = 3 * time.Hour
	DefaultDepartAfterWindow = 12 * time.Hour
	DefaultReturnWindow      = 3 * time.Hour

	// Extra slack before leaving home when departing now.
	departBufferMinutes = 15
	// Slack for getting out of the office on the way home.
	returnBufferMinutes = 10

	defaultMaxConcurrent = 4
)

// mode selects how the shared pipeline windows, assembles and orders options.
type mode int

const (
	arriveBy mode = iota
	departAfter
	returnHome
)

func (m mode) String() string {
	switch m {
	case arriveBy:
		return "arrive_by"
	case departAfter:
		return "depart_after"
	default:
		return "return_home"
	}
}

// leg is one station pair searched by a planning call.
type leg struct {
	index   int
	station places.Station
	office  places.Office
	from    string
	to      string
}

type request struct {
	mode      mode
	reference time.Time
	window    time.Duration
	opts      Options
	legs      []leg
}

// Planner plans journeys against a route source.
type Planner struct {
	source        routes.Source
	logger        *logrus.Logger
	maxConcurrent int
}

// New creates a planner.
func New(source routes.Source, logger *logrus.Logger) *Planner {
	return &Planner{
		source:        source,
		logger:        logger,
		maxConcurrent: defaultMaxConcurrent,
	}
}

// PlanArriveBy finds trains from every candidate station that get the user to
// the office no later than deadline.
func (p *Planner) PlanArriveBy(ctx context.Context, officeID string, deadline time.Time, opts Options) (*Plan, error) {
	if deadline.IsZero() {
		return nil, fmt.Errorf("arrive-by plan needs a deadline: %w", ErrMissingTime)
	}
	office, ok := places.OfficeByID(officeID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOffice, officeID)
	}

	options, err := p.run(ctx, request{
		mode:      arriveBy,
		reference: deadline,
		window:    windowOr(opts.Window, DefaultArriveByWindow),
		opts:      opts,
		legs:      outboundLegs(office),
	})
	if err != nil {
		return nil, err
	}

	return &Plan{
		Destination:   office.ID,
		ReferenceTime: deadline,
		Options:       options,
	}, nil
}

// PlanDepartAfter finds trains from every candidate station that the user can
// still catch when leaving home at or after start.
func (p *Planner) PlanDepartAfter(ctx context.Context, officeID string, start time.Time, opts Options) (*Plan, error) {
	if start.IsZero() {
		return nil, fmt.Errorf("depart-after plan needs a start time: %w", ErrMissingTime)
	}
	office, ok := places.OfficeByID(officeID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOffice, officeID)
	}

	options, err := p.run(ctx, request{
		mode:      departAfter,
		reference: start,
		window:    windowOr(opts.Window, DefaultDepartAfterWindow),
		opts:      opts,
		legs:      outboundLegs(office),
	})
	if err != nil {
		return nil, err
	}

	return &Plan{
		Destination:   office.ID,
		ReferenceTime: start,
		Options:       options,
	}, nil
}

// PlanReturnHome finds trains from the office back to the station where the
// car was parked that morning.
func (p *Planner) PlanReturnHome(ctx context.Context, officeID, parkedStation string, departTime time.Time, opts Options) (*Plan, error) {
	if departTime.IsZero() {
		return nil, fmt.Errorf("return plan needs a departure time: %w", ErrMissingTime)
	}
	office, ok := places.OfficeByID(officeID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOffice, officeID)
	}
	parkedStation = places.CanonicalStation(parkedStation)
	index := places.StationIndex(parkedStation)
	if index < 0 {
		return nil, fmt.Errorf("%w: %q", ErrNotCandidateStation, parkedStation)
	}
	station, _ := places.StationByName(parkedStation)

	options, err := p.run(ctx, request{
		mode:      returnHome,
		reference: departTime,
		window:    windowOr(opts.Window, DefaultReturnWindow),
		opts:      opts,
		legs: []leg{{
			index:   index,
			station: station,
			office:  office,
			from:    office.Station,
			to:      station.Name,
		}},
	})
	if err != nil {
		return nil, err
	}

	return &Plan{
		FromLocation:  office.ID,
		ParkedStation: station.Name,
		ReferenceTime: departTime,
		Options:       options,
	}, nil
}

func outboundLegs(office places.Office) []leg {
	stations := places.Stations()
	legs := make([]leg, len(stations))
	for i, s := range stations {
		legs[i] = leg{
			index:   i,
			station: s,
			office:  office,
			from:    s.Name,
			to:      office.Station,
		}
	}
	return legs
}

func windowOr(w, def time.Duration) time.Duration {
	if w > 0 {
		return w
	}
	return def
}

type ranked struct {
	option       JourneyOption
	stationIndex int
}

// run fetches every leg concurrently, filters and assembles the routes and
// returns the options in a deterministic order.
func (p *Planner) run(ctx context.Context, req request) ([]JourneyOption, error) {
	results := make([][]ranked, len(req.legs))

	cp := pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(p.maxConcurrent)

	for i, l := range req.legs {
		i, l := i, l
		cp.Go(func(ctx context.Context) error {
			found, err := p.searchLeg(ctx, req, l)
			if err != nil {
				return err
			}
			results[i] = found
			return nil
		})
	}

	if err := cp.Wait(); err != nil {
		p.logger.WithFields(logrus.Fields{
			"mode":  req.mode,
			"error": err,
		}).Error("planning failed")
		return nil, err
	}

	var all []ranked
	for _, r := range results {
		all = append(all, r...)
	}
	slices.SortStableFunc(all, func(a, b ranked) int {
		return compareOptions(req.mode, req.opts.Sort, a, b)
	})

	options := make([]JourneyOption, len(all))
	for i, r := range all {
		options[i] = r.option
	}

	p.logger.WithFields(logrus.Fields{
		"mode":      req.mode,
		"reference": req.reference.Format(time.RFC3339),
		"window":    req.window,
		"sort":      req.opts.Sort,
		"options":   len(options),
	}).Info("journey plan computed")

	return options, nil
}

func (p *Planner) searchLeg(ctx context.Context, req request, l leg) ([]ranked, error) {
	start, end, byArrival := searchWindow(req.mode, req.reference, req.window, l)

	// The source returns the whole calendar day of the window anchor.
	day := end
	if !byArrival {
		day = start
	}

	raw, err := p.source.FetchRoutes(ctx, l.from, l.to, day)
	if err != nil {
		return nil, fmt.Errorf("fetching routes %s -> %s: %w", l.from, l.to, err)
	}

	var found []ranked
	for _, r := range raw {
		t := r.DepartureTime
		if byArrival {
			t = r.ArrivalTime
		}
		if t.Before(start) || t.After(end) {
			continue
		}
		if req.opts.DirectOnly && !r.IsDirect {
			continue
		}
		option, ok := assemble(req.mode, req.reference, l, r)
		if !ok {
			continue
		}
		found = append(found, ranked{option: option, stationIndex: l.index})
	}

	p.logger.WithFields(logrus.Fields{
		"from":   l.from,
		"to":     l.to,
		"routes": len(raw),
		"kept":   len(found),
		"start":  start.Format("15:04"),
		"end":    end.Format("15:04"),
	}).Debug("station searched")

	return found, nil
}

// searchWindow returns the closed interval a route's departure (or, when
// byArrival is set, its arrival) must fall in.
func searchWindow(m mode, reference time.Time, window time.Duration, l leg) (start, end time.Time, byArrival bool) {
	switch m {
	case arriveBy:
		requiredTrainArrival := reference.Add(-minutes(l.office.WalkMinutes))
		return requiredTrainArrival.Add(-window), requiredTrainArrival, true
	default:
		return reference, reference.Add(window), false
	}
}

// assemble builds the journey option for a route that passed the window, or
// reports false when the option is not feasible.
func assemble(m mode, reference time.Time, l leg, r routes.RawRoute) (JourneyOption, bool) {
	switch m {
	case arriveBy, departAfter:
		if m == departAfter {
			leaveHome := r.DepartureTime.Add(-minutes(l.station.PreTrainMinutes() + departBufferMinutes))
			if leaveHome.Before(reference) {
				return JourneyOption{}, false
			}
		}
		leave := r.DepartureTime.Add(-minutes(l.station.PreTrainMinutes()))
		final := r.ArrivalTime.Add(minutes(l.office.WalkMinutes))
		if m == arriveBy && final.After(reference) {
			return JourneyOption{}, false
		}
		return newOption(l.station.Name, r, leave, final, l.station.DriveMinutes, l.office.WalkMinutes), true

	default:
		leave := r.DepartureTime.Add(-minutes(l.office.WalkMinutes + returnBufferMinutes))
		final := r.ArrivalTime.Add(minutes(l.station.DriveMinutes))
		return newOption(l.office.Station, r, leave, final, l.station.DriveMinutes, l.office.WalkMinutes), true
	}
}

// compareOptions is a total order: the sort key of the mode, then station
// registry order, then train departure and train number.
func compareOptions(m mode, sortBy SortMode, a, b ranked) int {
	var c int
	switch {
	case sortBy == SortByLeaveTime:
		c = b.option.LeaveTime.Compare(a.option.LeaveTime)
	case m == arriveBy:
		c = b.option.FinalArrival.Compare(a.option.FinalArrival)
	default:
		c = a.option.FinalArrival.Compare(b.option.FinalArrival)
	}
	if c != 0 {
		return c
	}
	if c = cmp.Compare(a.stationIndex, b.stationIndex); c != 0 {
		return c
	}
	if c = a.option.TrainDeparture.Compare(b.option.TrainDeparture); c != 0 {
		return c
	}
	return cmp.Compare(a.option.TrainNumber, b.option.TrainNumber)
}
