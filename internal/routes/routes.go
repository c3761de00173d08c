// Package routes defines the raw train connections the planner works from and
// the adapters that fetch them.
package routes

import (
	"context"
	"errors"
	"time"
)

// ErrUnknownStation is returned when a canonical station name cannot be
// resolved to the data source's station identifier.
var ErrUnknownStation = errors.New("unknown station")

// RawRoute is one train connection between two stations on a single day.
type RawRoute struct {
	DepartureStation string
	ArrivalStation   string
	DepartureTime    time.Time
	ArrivalTime      time.Time
	DurationMinutes  int
	IsDirect         bool
	TrainNumber      string
	Platform         string
}

// Source returns every route between two stations on the calendar day of day.
//
// A source never filters by time of day. Malformed records are dropped and
// transport failures yield an empty list; the returned error is reserved for
// unknown stations (ErrUnknownStation) and context cancellation.
type Source interface {
	FetchRoutes(ctx context.Context, from, to string, day time.Time) ([]RawRoute, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, from, to string, day time.Time) ([]RawRoute, error)

func (f SourceFunc) FetchRoutes(ctx context.Context, from, to string, day time.Time) ([]RawRoute, error) {
	return f(ctx, from, to, day)
}
