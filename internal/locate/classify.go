// Package locate works out where the user is: it classifies a coordinate
// against the known places and acquires a coordinate when none is given.
package locate

import (
	"strings"

	"github.com/aviv1ron1/the-commuter-il/internal/geo"
	"github.com/aviv1ron1/the-commuter-il/internal/places"
)

type Kind string

const (
	KindHome    Kind = "home"
	KindOffice  Kind = "office"
	KindUnknown Kind = "unknown"
)

// Place is the result of classifying a coordinate. Office is set for KindOffice.
type Place struct {
	Kind   Kind
	Office string
}

// Label is the location name used by the API, such as "tlv_office".
func (p Place) Label() string {
	if p.Kind == KindOffice {
		return strings.ToLower(p.Office) + "_office"
	}
	return string(p.Kind)
}

// ShowDestinations reports whether the user should be asked where to go.
// At an office the only sensible trip is home.
func (p Place) ShowDestinations() bool {
	return p.Kind != KindOffice
}

// ReturnDestination is the office to plan the return trip from, if any.
func (p Place) ReturnDestination() string {
	if p.Kind == KindOffice {
		return p.Office
	}
	return ""
}

// Classify checks home first, then each office in registry order. The first
// place within the default threshold wins.
func Classify(c geo.Coordinate) Place {
	if geo.IsAtLocation(c, places.HomePlace().Coord, geo.DefaultThresholdKm) {
		return Place{Kind: KindHome}
	}
	for _, o := range places.Offices() {
		if geo.IsAtLocation(c, o.Coord, geo.DefaultThresholdKm) {
			return Place{Kind: KindOffice, Office: o.ID}
		}
	}
	return Place{Kind: KindUnknown}
}
