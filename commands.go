package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aviv1ron1/the-commuter-il/internal/flow"
	"github.com/aviv1ron1/the-commuter-il/internal/geo"
	"github.com/aviv1ron1/the-commuter-il/internal/locate"
	"github.com/aviv1ron1/the-commuter-il/internal/places"
	"github.com/aviv1ron1/the-commuter-il/internal/planner"
	"github.com/aviv1ron1/the-commuter-il/internal/server"
)

type planFlags struct {
	Sort       string        `help:"Order options by arrival_time or leave_time" default:"arrival_time" enum:"arrival_time,leave_time"`
	DirectOnly bool          `help:"Only show trains without a change" name:"direct-only"`
	Window     time.Duration `help:"Override the search window, e.g. 2h"`
	JSON       bool          `help:"Print JSON instead of a table" name:"json"`
}

func (f planFlags) options() (planner.Options, error) {
	mode, err := planner.ParseSortMode(f.Sort)
	if err != nil {
		return planner.Options{}, err
	}
	return planner.Options{Window: f.Window, Sort: mode, DirectOnly: f.DirectOnly}, nil
}

type ArriveByCmd struct {
	To    string    `help:"Office to arrive at" required:"" enum:"TLV,Haifa"`
	By    string    `help:"Latest arrival at the office, HH:MM or RFC 3339" required:""`
	Flags planFlags `embed:""`
}

func (c *ArriveByCmd) Run(ctx context.Context, app *App) error {
	deadline, err := flow.ParseTime(c.By, app.now())
	if err != nil {
		return err
	}
	opts, err := c.Flags.options()
	if err != nil {
		return err
	}
	plan, err := app.planner.PlanArriveBy(ctx, c.To, deadline, opts)
	if err != nil {
		return err
	}
	return app.printPlan(plan, c.Flags.JSON)
}

type DepartAfterCmd struct {
	To    string    `help:"Office to go to" required:"" enum:"TLV,Haifa"`
	At    string    `help:"Earliest time to leave home, HH:MM or RFC 3339 (default now)"`
	Flags planFlags `embed:""`
}

func (c *DepartAfterCmd) Run(ctx context.Context, app *App) error {
	start, err := timeOrNow(c.At, app.now())
	if err != nil {
		return err
	}
	opts, err := c.Flags.options()
	if err != nil {
		return err
	}
	plan, err := app.planner.PlanDepartAfter(ctx, c.To, start, opts)
	if err != nil {
		return err
	}
	return app.printPlan(plan, c.Flags.JSON)
}

type ReturnCmd struct {
	From    string    `help:"Office to leave from" required:"" enum:"TLV,Haifa"`
	Station string    `help:"Station the car is parked at (default: remembered from this morning)"`
	At      string    `help:"Earliest time to leave the office, HH:MM or RFC 3339 (default now)"`
	Flags   planFlags `embed:""`
}

func (c *ReturnCmd) Run(ctx context.Context, app *App) error {
	depart, err := timeOrNow(c.At, app.now())
	if err != nil {
		return err
	}
	opts, err := c.Flags.options()
	if err != nil {
		return err
	}
	station := c.Station
	if station == "" {
		station = app.reminders.RememberedStation(ctx)
	}
	plan, err := app.planner.PlanReturnHome(ctx, c.From, station, depart, opts)
	if err != nil {
		return err
	}
	return app.printPlan(plan, c.Flags.JSON)
}

type LocateCmd struct {
	Coords string `help:"Current position as lat,lon (default: IP lookup)"`
}

func (c *LocateCmd) Run(ctx context.Context, app *App) error {
	fix, err := app.locate(ctx, c.Coords)
	if err != nil {
		return err
	}
	place := locate.Classify(fix.Coord)
	fmt.Fprintf(app.out, "Position: %s (%s)\n", fix.Coord, fix.Source)
	fmt.Fprintf(app.out, "Location: %s\n", place.Label())
	if office := place.ReturnDestination(); office != "" {
		fmt.Fprintf(app.out, "Going home from %s, car at %s\n", office, places.DisplayName(app.reminders.RememberedStation(ctx)))
	}
	return nil
}

type GoCmd struct {
	Coords  string    `help:"Current position as lat,lon (default: IP lookup)"`
	To      string    `help:"Office to go to when not at an office"`
	Home    bool      `help:"Go home even when not detected at an office"`
	From    string    `help:"Office to leave from with --home"`
	Station string    `help:"Station the car is parked at for the trip home"`
	Later   string    `help:"Arrive by (outbound) or leave at (home) this time instead of now"`
	Flags   planFlags `embed:""`
}

func (c *GoCmd) Run(ctx context.Context, app *App) error {
	fix, err := app.locate(ctx, c.Coords)
	if err != nil {
		return err
	}
	place := locate.Classify(fix.Coord)
	app.logger.WithFields(logrus.Fields{
		"position": fix.Coord.String(),
		"source":   fix.Source,
		"location": place.Label(),
	}).Info("located")

	nav := flow.NewNavigator(func() string {
		if c.Station != "" {
			return places.CanonicalStation(c.Station)
		}
		return app.reminders.RememberedStation(ctx)
	})
	if _, err := chooseTrip(nav, place, c.To, c.From, c.Home); err != nil {
		return err
	}

	now := app.now()
	when, t := flow.TimingNow, time.Time{}
	if c.Later != "" {
		when = flow.TimingLater
		if t, err = flow.ParseTime(c.Later, now); err != nil {
			return err
		}
	}
	results, err := nav.ChooseTiming(when, t)
	if err != nil {
		return err
	}

	opts, err := c.Flags.options()
	if err != nil {
		return err
	}
	plan, err := results.Request(now).Run(ctx, app.planner, opts)
	if err != nil {
		return err
	}
	return app.printPlan(plan, c.Flags.JSON)
}

// chooseTrip walks nav from the location screen to the timing screen. With
// home set away from an office, the detected location is corrected to the
// office named by from.
func chooseTrip(nav *flow.Navigator, place locate.Place, to, from string, home bool) (flow.TimingScreen, error) {
	if _, err := nav.SelectLocation(place); err != nil {
		return flow.TimingScreen{}, err
	}

	switch {
	case home && place.Kind != locate.KindOffice && from != "":
		nav.Back()
		if _, err := nav.SelectLocation(locate.Place{Kind: locate.KindOffice, Office: from}); err != nil {
			return flow.TimingScreen{}, err
		}
		return nav.StartReturn(from)
	case home || place.Kind == locate.KindOffice:
		return nav.StartReturn(from)
	case to == "":
		return flow.TimingScreen{}, fmt.Errorf("at %s: pass --to TLV or --to Haifa, or --home --from <office>", place.Label())
	default:
		return nav.ChooseDestination(to)
	}
}

type StationsCmd struct{}

func (c *StationsCmd) Run(app *App) error {
	return app.printStations()
}

type RemindSetCmd struct {
	To      string    `help:"Office to go to"`
	From    string    `help:"Office to leave from, for the trip home"`
	Station string    `help:"Station the car is parked at for the trip home"`
	At      string    `help:"Arrive by (outbound) or leave at (home) this time instead of now"`
	Pick    int       `help:"Option number from the plan to be reminded of" default:"1"`
	Wait    bool      `help:"Stay running until the reminder fires" default:"true" negatable:""`
	Flags   planFlags `embed:""`
}

func (c *RemindSetCmd) Run(ctx context.Context, app *App) error {
	office, parked := c.To, ""
	if c.From != "" {
		office = c.From
		parked = c.Station
		if parked == "" {
			parked = app.reminders.RememberedStation(ctx)
		}
	}
	if office == "" {
		return errors.New("pass --to for the trip to the office or --from for the trip home")
	}

	now := app.now()
	when, t := flow.TimingNow, time.Time{}
	if c.At != "" {
		var err error
		when = flow.TimingLater
		if t, err = flow.ParseTime(c.At, now); err != nil {
			return err
		}
	}
	req, err := flow.NewRequest(office, parked, when, t, now)
	if err != nil {
		return err
	}
	opts, err := c.Flags.options()
	if err != nil {
		return err
	}
	plan, err := req.Run(ctx, app.planner, opts)
	if err != nil {
		return err
	}
	if c.Pick < 1 || c.Pick > len(plan.Options) {
		return fmt.Errorf("option %d not available, the plan has %d options", c.Pick, len(plan.Options))
	}
	option := plan.Options[c.Pick-1]

	r, err := app.reminders.Schedule(ctx, option)
	if err != nil {
		return err
	}
	if r == nil {
		fmt.Fprintf(app.out, "Too late for a reminder: leave now (%s) for train #%s from %s.\n",
			option.LeaveTime.Format("15:04"), option.TrainNumber, option.DepartureStation)
		return nil
	}
	app.printReminder(r)

	if !c.Wait {
		return nil
	}
	app.scheduler.Start(ctx)
	return app.waitForAlert(ctx, r.NotificationID)
}

// waitForAlert blocks until the alert is sent or the reminder is cancelled
// or replaced, possibly by another process.
func (a *App) waitForAlert(ctx context.Context, notificationID string) error {
	check := time.NewTicker(a.cfg.Scheduler.Tick)
	defer check.Stop()

	for {
		select {
		case <-a.scheduler.Fired():
			return nil
		case <-ctx.Done():
			return nil
		case <-check.C:
			if !a.reminders.IsActive(ctx, notificationID) {
				fmt.Fprintln(a.out, "Reminder was cancelled or replaced.")
				return nil
			}
		}
	}
}

type RemindCancelCmd struct{}

func (c *RemindCancelCmd) Run(ctx context.Context, app *App) error {
	if err := app.reminders.CancelActive(ctx); err != nil {
		return err
	}
	fmt.Fprintln(app.out, "Reminder cancelled.")
	return nil
}

type RemindStatusCmd struct{}

func (c *RemindStatusCmd) Run(ctx context.Context, app *App) error {
	r, err := app.reminders.GetActive(ctx)
	if err != nil {
		return err
	}
	if r == nil {
		fmt.Fprintln(app.out, "No active reminder.")
		return nil
	}
	app.printReminder(r)
	return nil
}

type ServeCmd struct {
	Addr string `help:"Listen address (default from config)"`
}

func (c *ServeCmd) Run(ctx context.Context, app *App) error {
	addr := c.Addr
	if addr == "" {
		addr = app.cfg.Server.Addr
	}

	app.scheduler.Start(ctx)
	if _, err := app.reminders.Restore(ctx); err != nil {
		app.logger.WithField("error", err).Warn("failed to restore reminder")
	}

	api := server.New(app.planner, app.reminders, app.cfg.TZ(), app.logger)
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		app.logger.WithField("addr", addr).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serving: %w", err)
		}
	case <-ctx.Done():
	}

	app.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	app.logger.Info("server stopped")
	return nil
}

func timeOrNow(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return now, nil
	}
	return flow.ParseTime(s, now)
}

// parseCoords reads "lat,lon".
func parseCoords(s string) (geo.Coordinate, error) {
	lat, lon, ok := strings.Cut(s, ",")
	if !ok {
		return geo.Coordinate{}, fmt.Errorf("invalid coordinates %q, want lat,lon", s)
	}
	var c geo.Coordinate
	var err error
	if c.Lat, err = strconv.ParseFloat(strings.TrimSpace(lat), 64); err != nil {
		return geo.Coordinate{}, fmt.Errorf("invalid latitude %q", lat)
	}
	if c.Lon, err = strconv.ParseFloat(strings.TrimSpace(lon), 64); err != nil {
		return geo.Coordinate{}, fmt.Errorf("invalid longitude %q", lon)
	}
	if !c.Valid() {
		return geo.Coordinate{}, fmt.Errorf("coordinates %s out of range", c)
	}
	return c, nil
}

func (a *App) locate(ctx context.Context, coords string) (locate.Fix, error) {
	var explicit *geo.Coordinate
	if coords != "" {
		c, err := parseCoords(coords)
		if err != nil {
			return locate.Fix{}, err
		}
		explicit = &c
	}
	return a.locator(explicit).Locate(ctx), nil
}
