package routes

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aviv1ron1/the-commuter-il/internal/api/rail"
)

type fakeSearcher struct {
	search func(ctx context.Context, fromID, toID int, t time.Time) (*rail.SearchResponse, error)
}

func (f *fakeSearcher) Search(ctx context.Context, fromID, toID int, t time.Time) (*rail.SearchResponse, error) {
	return f.search(ctx, fromID, toID, t)
}

var _ Searcher = (*fakeSearcher)(nil)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestSource(t *testing.T, travels []rail.Travel, err error) (*RailSource, *[]time.Time) {
	t.Helper()
	stations, lerr := rail.LoadStations()
	require.NoError(t, lerr)

	var calls []time.Time
	searcher := &fakeSearcher{
		search: func(_ context.Context, _, _ int, at time.Time) (*rail.SearchResponse, error) {
			calls = append(calls, at)
			if err != nil {
				return nil, err
			}
			return &rail.SearchResponse{Result: rail.SearchResult{Travels: travels}}, nil
		},
	}
	return NewRailSource(searcher, stations, time.UTC, testLogger()), &calls
}

func direct(dep, arr string) rail.Travel {
	return rail.Travel{
		DepartureTime: dep,
		ArrivalTime:   arr,
		Trains: []rail.Train{
			{TrainNumber: "53", OrignStation: "9650", DestinationStation: "3700", Platform: "2"},
		},
	}
}

func TestRailSource_FetchRoutes(t *testing.T) {
	travels := []rail.Travel{
		direct("2025-03-02T07:30:00", "2025-03-02T08:20:00"),
		{
			DepartureTime: "2025-03-02T08:05:00",
			ArrivalTime:   "2025-03-02T09:15:00",
			Trains: []rail.Train{
				{TrainNumber: "61", OrignStation: "9650", DestinationStation: "7320", Platform: "1"},
				{TrainNumber: "315", OriginStation: "7320", ArrivalStation: "3700", Platform: "3"},
			},
		},
	}
	src, calls := newTestSource(t, travels, nil)

	day := time.Date(2025, 3, 2, 17, 45, 0, 0, time.UTC)
	got, err := src.FetchRoutes(context.Background(), "Netivot", "Tel Aviv-Savidor Center", day)
	require.NoError(t, err)
	require.Len(t, got, 2)

	require.Len(t, *calls, 1)
	assert.Equal(t, time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC), (*calls)[0], "whole day is requested")

	assert.Equal(t, RawRoute{
		DepartureStation: "Netivot",
		ArrivalStation:   "Tel Aviv-Savidor Center",
		DepartureTime:    time.Date(2025, 3, 2, 7, 30, 0, 0, time.UTC),
		ArrivalTime:      time.Date(2025, 3, 2, 8, 20, 0, 0, time.UTC),
		DurationMinutes:  50,
		IsDirect:         true,
		TrainNumber:      "53",
		Platform:         "2",
	}, got[0])

	assert.False(t, got[1].IsDirect)
	assert.Equal(t, 70, got[1].DurationMinutes)
	assert.Equal(t, "Tel Aviv-Savidor Center", got[1].ArrivalStation)
	assert.Equal(t, "61", got[1].TrainNumber)
}

func TestRailSource_DropsMalformedTravels(t *testing.T) {
	travels := []rail.Travel{
		direct("", "2025-03-02T08:20:00"),
		direct("2025-03-02T07:30:00", "soon"),
		direct("2025-03-02T09:00:00", "2025-03-02T08:00:00"),
		direct("2025-03-02T09:00:00", "2025-03-02T09:00:00"),
		direct("2025-03-02T10:00:00", "2025-03-02T10:55:00"),
	}
	src, _ := newTestSource(t, travels, nil)

	got, err := src.FetchRoutes(context.Background(), "Netivot", "Tel Aviv-Savidor Center", time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 10, got[0].DepartureTime.Hour())
}

func TestRailSource_OtherDaysAreExcluded(t *testing.T) {
	travels := []rail.Travel{
		direct("2025-03-02T23:10:00", "2025-03-03T00:05:00"),
		direct("2025-03-03T05:10:00", "2025-03-03T06:05:00"),
	}
	src, _ := newTestSource(t, travels, nil)

	got, err := src.FetchRoutes(context.Background(), "Netivot", "Tel Aviv-Savidor Center", time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 23, got[0].DepartureTime.Hour())
}

func TestRailSource_ClockTimes(t *testing.T) {
	travels := []rail.Travel{
		direct("07:30", "08:20"),
		direct("23:40", "00:35"),
	}
	src, _ := newTestSource(t, travels, nil)

	got, err := src.FetchRoutes(context.Background(), "Netivot", "Tel Aviv-Savidor Center", time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, time.Date(2025, 3, 2, 7, 30, 0, 0, time.UTC), got[0].DepartureTime)
	assert.Equal(t, time.Date(2025, 3, 3, 0, 35, 0, 0, time.UTC), got[1].ArrivalTime, "arrival rolls over midnight")
	assert.Equal(t, 55, got[1].DurationMinutes)
}

func TestRailSource_UnknownStation(t *testing.T) {
	src, calls := newTestSource(t, nil, nil)

	_, err := src.FetchRoutes(context.Background(), "Lehavim", "Tel Aviv-Savidor Center", time.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownStation))
	assert.Contains(t, err.Error(), "Lehavim")

	_, err = src.FetchRoutes(context.Background(), "Netivot", "Jerusalem", time.Now())
	assert.ErrorIs(t, err, ErrUnknownStation)
	assert.Empty(t, *calls, "no request for unresolvable stations")
}

func TestRailSource_SearchFailureIsEmpty(t *testing.T) {
	src, _ := newTestSource(t, nil, errors.New("connection refused"))

	got, err := src.FetchRoutes(context.Background(), "Netivot", "Tel Aviv-Savidor Center", time.Now())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRailSource_CancelledContext(t *testing.T) {
	src, _ := newTestSource(t, nil, context.Canceled)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.FetchRoutes(ctx, "Netivot", "Tel Aviv-Savidor Center", time.Now())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRailSource_UnknownStationIDInResponse(t *testing.T) {
	travels := []rail.Travel{{
		DepartureTime: "2025-03-02T07:30:00",
		ArrivalTime:   "2025-03-02T08:20:00",
		Trains:        []rail.Train{{OrignStation: "1234"}},
	}}
	src, _ := newTestSource(t, travels, nil)

	got, err := src.FetchRoutes(context.Background(), "Netivot", "Tel Aviv-Savidor Center", time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Unknown Station 1234", got[0].DepartureStation)
	assert.Equal(t, "Tel Aviv-Savidor Center", got[0].ArrivalStation, "missing id falls back to the requested station")
}

func TestParseTimestamp(t *testing.T) {
	jerusalem := time.FixedZone("IST", 2*60*60)
	day := time.Date(2025, 3, 2, 0, 0, 0, 0, jerusalem)

	ts, clock, err := parseTimestamp("2025-03-02T07:30:00", day, jerusalem)
	require.NoError(t, err)
	assert.False(t, clock)
	assert.Equal(t, time.Date(2025, 3, 2, 7, 30, 0, 0, jerusalem), ts)

	ts, _, err = parseTimestamp("2025-03-02T05:30:00Z", day, jerusalem)
	require.NoError(t, err)
	assert.True(t, ts.Equal(time.Date(2025, 3, 2, 7, 30, 0, 0, jerusalem)))

	ts, clock, err = parseTimestamp("07:30", day, jerusalem)
	require.NoError(t, err)
	assert.True(t, clock)
	assert.Equal(t, time.Date(2025, 3, 2, 7, 30, 0, 0, jerusalem), ts)

	_, _, err = parseTimestamp("7.30am", day, jerusalem)
	assert.Error(t, err)
}
