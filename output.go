package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/aviv1ron1/the-commuter-il/internal/places"
	"github.com/aviv1ron1/the-commuter-il/internal/planner"
	"github.com/aviv1ron1/the-commuter-il/internal/reminder"
)

func (a *App) printPlan(plan *planner.Plan, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	}

	switch {
	case plan.Destination != "":
		fmt.Fprintf(a.out, "To %s, reference %s\n", plan.Destination, plan.ReferenceTime.Format("Mon 15:04"))
	default:
		fmt.Fprintf(a.out, "Home from %s via %s, reference %s\n",
			plan.FromLocation, places.DisplayName(plan.ParkedStation), plan.ReferenceTime.Format("Mon 15:04"))
	}

	if len(plan.Options) == 0 {
		fmt.Fprintln(a.out, "No trains found.")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tLEAVE\tSTATION\tTRAIN\tDEPART\tARRIVE\tDOOR\tTOTAL\tDIRECT\tPLATFORM")
	for i, o := range plan.Options {
		direct := "no"
		if o.IsDirect {
			direct = "yes"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%dm\t%s\t%s\n",
			i+1,
			o.LeaveTime.Format("15:04"),
			places.DisplayName(o.DepartureStation),
			o.TrainNumber,
			o.TrainDeparture.Format("15:04"),
			o.TrainArrival.Format("15:04"),
			o.FinalArrival.Format("15:04"),
			o.TotalDurationMinutes,
			direct,
			o.DeparturePlatform,
		)
	}
	return tw.Flush()
}

func (a *App) printStations() error {
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STATION\tDRIVE\tPARK")
	for _, s := range places.Stations() {
		fmt.Fprintf(tw, "%s\t%dm\t%dm\n", places.DisplayName(s.Name), s.DriveMinutes, s.ParkMinutes)
	}
	return tw.Flush()
}

func (a *App) printReminder(r *reminder.Reminder) {
	fmt.Fprintf(a.out, "Reminder %s: train #%s from %s at %s, leave at %s, alert at %s.\n",
		r.NotificationID,
		r.TrainNumber,
		r.DepartureStation,
		r.DepartureTime.Format("15:04"),
		r.LeaveTime.Format("15:04"),
		r.NotifyAt.Format("15:04"),
	)
}
