// Package places is the fixed catalogue of home, offices and candidate train
// stations, together with the transfer times around each of them.
package places

import (
	"github.com/aviv1ron1/the-commuter-il/internal/geo"
)

// Home is where the car is parked overnight.
type Home struct {
	Name  string
	Coord geo.Coordinate
}

// Office is a workplace reached by train, plus a walk or taxi from its station.
type Office struct {
	ID          string
	Name        string
	Coord       geo.Coordinate
	Station     string
	WalkMinutes int
}

// Station is a candidate departure station near home.
type Station struct {
	Name         string
	Coord        geo.Coordinate
	DriveMinutes int
	ParkMinutes  int
}

// PreTrainMinutes is the drive plus the park-and-walk to the platform.
func (s Station) PreTrainMinutes() int {
	return s.DriveMinutes + s.ParkMinutes
}

const (
	OfficeTLV   = "TLV"
	OfficeHaifa = "Haifa"
)

var home = Home{
	Name:  "Home",
	Coord: geo.Coordinate{Lat: 31.445083, Lon: 34.673111},
}

var offices = []Office{
	{
		ID:          OfficeTLV,
		Name:        "TLV Office",
		Coord:       geo.Coordinate{Lat: 32.080028, Lon: 34.799806},
		Station:     "Tel Aviv-Savidor Center",
		WalkMinutes: 10,
	},
	{
		ID:          OfficeHaifa,
		Name:        "Haifa Office",
		Coord:       geo.Coordinate{Lat: 32.765122, Lon: 35.015306},
		Station:     "Haifa-Hof HaKarmel (Razi`el)",
		WalkMinutes: 30, // taxi
	},
}

var stations = []Station{
	{
		Name:         "Netivot",
		Coord:        geo.Coordinate{Lat: 31.411306, Lon: 34.571861},
		DriveMinutes: 20,
		ParkMinutes:  15,
	},
	{
		Name:         "Kiryat Gat",
		Coord:        geo.Coordinate{Lat: 31.603444, Lon: 34.776472},
		DriveMinutes: 30,
		ParkMinutes:  15,
	},
	{
		Name:         "Lehavim-Rahat",
		Coord:        geo.Coordinate{Lat: 31.369750, Lon: 34.798167},
		DriveMinutes: 20,
		ParkMinutes:  15,
	},
}

// Short labels shown to the user that differ from the canonical station name.
var labels = map[string]string{
	"Lehavim": "Lehavim-Rahat",
}

// DefaultReturnStation is assumed when no station was remembered from the morning.
const DefaultReturnStation = "Netivot"

// HomePlace returns the home location.
func HomePlace() Home {
	return home
}

// Offices returns the offices in declaration order.
func Offices() []Office {
	out := make([]Office, len(offices))
	copy(out, offices)
	return out
}

// OfficeByID looks up an office by its ID.
func OfficeByID(id string) (Office, bool) {
	for _, o := range offices {
		if o.ID == id {
			return o, true
		}
	}
	return Office{}, false
}

// Stations returns the candidate stations in declaration order.
func Stations() []Station {
	out := make([]Station, len(stations))
	copy(out, stations)
	return out
}

// StationByName looks up a candidate station by its canonical name (case-sensitive).
func StationByName(name string) (Station, bool) {
	if i := StationIndex(name); i >= 0 {
		return stations[i], true
	}
	return Station{}, false
}

// StationIndex returns the declaration index of a candidate station, or -1.
func StationIndex(name string) int {
	for i, s := range stations {
		if s.Name == name {
			return i
		}
	}
	return -1
}

// CanonicalStation maps a user-facing label to the canonical station name.
// Names that are already canonical, or unknown, are returned unchanged.
func CanonicalStation(label string) string {
	if name, ok := labels[label]; ok {
		return name
	}
	return label
}

// DisplayName maps a canonical station name back to its short label.
func DisplayName(name string) string {
	for label, canonical := range labels {
		if canonical == name {
			return label
		}
	}
	return name
}

// StationNames returns every canonical station name the registry refers to:
// the candidate stations followed by the office stations.
func StationNames() []string {
	names := make([]string, 0, len(stations)+len(offices))
	for _, s := range stations {
		names = append(names, s.Name)
	}
	for _, o := range offices {
		names = append(names, o.Station)
	}
	return names
}
