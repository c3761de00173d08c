package rail

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed stations.yaml
var stationsYAML []byte

type stationRecord struct {
	ID  int      `yaml:"id"`
	Eng []string `yaml:"eng"`
}

// Stations translates between station names and timetable station IDs.
type Stations struct {
	byID   map[int]stationRecord
	byName map[string]int
}

// LoadStations parses the embedded station table.
func LoadStations() (*Stations, error) {
	return ParseStations(stationsYAML)
}

// ParseStations parses a station table in the embedded YAML format.
func ParseStations(data []byte) (*Stations, error) {
	var records []stationRecord
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing station table: %w", err)
	}

	s := &Stations{
		byID:   make(map[int]stationRecord, len(records)),
		byName: make(map[string]int),
	}
	for _, r := range records {
		if len(r.Eng) == 0 {
			return nil, fmt.Errorf("station %d has no name", r.ID)
		}
		if _, dup := s.byID[r.ID]; dup {
			return nil, fmt.Errorf("duplicate station id %d", r.ID)
		}
		s.byID[r.ID] = r
		for _, name := range r.Eng {
			s.byName[strings.ToLower(name)] = r.ID
		}
	}
	return s, nil
}

// ID returns the station ID for a name, matched case-insensitively.
func (s *Stations) ID(name string) (int, bool) {
	id, ok := s.byName[strings.ToLower(name)]
	return id, ok
}

// Name returns the canonical name of a station ID.
func (s *Stations) Name(id int) (string, bool) {
	r, ok := s.byID[id]
	if !ok {
		return "", false
	}
	return r.Eng[0], true
}

// NameFromString is Name for an ID as it appears in API responses.
func (s *Stations) NameFromString(id string) (string, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(id))
	if err != nil {
		return "", false
	}
	return s.Name(n)
}
