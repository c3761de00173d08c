package rail

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// SearchResponse represents the response from the timetable search endpoint.
type SearchResponse struct {
	CreationDate  string       `json:"creationDate"`
	Version       string       `json:"version"`
	SuccessStatus int          `json:"successStatus"`
	StatusCode    int          `json:"statusCode"`
	ErrorMessages []string     `json:"errorMessages"`
	Result        SearchResult `json:"result"`

	// Older API versions returned the travels at the top level.
	Travels []Travel `json:"travels"`
}

// SearchResult holds the travels of a search.
type SearchResult struct {
	NumOfResultsToShow int      `json:"numOfResultsToShow"`
	StartIndex         int      `json:"startIndex"`
	Travels            []Travel `json:"travels"`
}

// AllTravels returns the travels wherever the API placed them.
func (r *SearchResponse) AllTravels() []Travel {
	if len(r.Result.Travels) > 0 {
		return r.Result.Travels
	}
	return r.Travels
}

// Travel is one connection between the searched stations, made of one or more trains.
type Travel struct {
	DepartureTime string  `json:"departureTime"`
	ArrivalTime   string  `json:"arrivalTime"`
	FreeSeats     int     `json:"freeSeats"`
	Trains        []Train `json:"trains"`
}

// Train is a single train leg of a travel.
type Train struct {
	TrainNumber        FlexString `json:"trainNumber"`
	OrignStation       FlexString `json:"orignStation"`
	OriginStation      FlexString `json:"originStation"`
	DestinationStation FlexString `json:"destinationStation"`
	ArrivalStation     FlexString `json:"arrivalStation"`
	DepartureTime      string     `json:"departureTime"`
	ArrivalTime        string     `json:"arrivalTime"`
	Platform           FlexString `json:"platform"`
	DestPlatform       FlexString `json:"destPlatform"`
}

// Origin returns the departure station ID of the leg.
func (t Train) Origin() string {
	if t.OrignStation != "" {
		return string(t.OrignStation)
	}
	return string(t.OriginStation)
}

// Destination returns the arrival station ID of the leg.
func (t Train) Destination() string {
	if t.DestinationStation != "" {
		return string(t.DestinationStation)
	}
	return string(t.ArrivalStation)
}

// FlexString decodes a JSON string or number into a string.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if i, err := n.Int64(); err == nil {
		*f = FlexString(strconv.FormatInt(i, 10))
		return nil
	}
	*f = FlexString(n.String())
	return nil
}
