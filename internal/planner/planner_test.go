package planner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aviv1ron1/the-commuter-il/internal/places"
	"github.com/aviv1ron1/the-commuter-il/internal/routes"
)

const (
	savidor     = "Tel Aviv-Savidor Center"
	hofHaKarmel = "Haifa-Hof HaKarmel (Razi`el)"
)

// fakeSource serves canned routes keyed by "from|to" and records its calls.
type fakeSource struct {
	mu     sync.Mutex
	routes map[string][]routes.RawRoute
	errs   map[string]error
	calls  []fetchCall
}

type fetchCall struct {
	from, to string
	day      time.Time
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		routes: make(map[string][]routes.RawRoute),
		errs:   make(map[string]error),
	}
}

func (f *fakeSource) add(r routes.RawRoute) {
	key := r.DepartureStation + "|" + r.ArrivalStation
	f.routes[key] = append(f.routes[key], r)
}

func (f *fakeSource) FetchRoutes(_ context.Context, from, to string, day time.Time) ([]routes.RawRoute, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fetchCall{from: from, to: to, day: day})
	key := from + "|" + to
	if err := f.errs[key]; err != nil {
		return nil, err
	}
	return f.routes[key], nil
}

var _ routes.Source = (*fakeSource)(nil)

func at(h, m int) time.Time {
	return time.Date(2025, 3, 2, h, m, 0, 0, time.UTC)
}

func route(from, to string, dep, arr time.Time, direct bool, train string) routes.RawRoute {
	return routes.RawRoute{
		DepartureStation: from,
		ArrivalStation:   to,
		DepartureTime:    dep,
		ArrivalTime:      arr,
		DurationMinutes:  int(arr.Sub(dep) / time.Minute),
		IsDirect:         direct,
		TrainNumber:      train,
		Platform:         "1",
	}
}

func newTestPlanner(src routes.Source) *Planner {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return New(src, logger)
}

func TestPlanArriveBy_Scenario(t *testing.T) {
	src := newFakeSource()
	src.add(route("Netivot", savidor, at(7, 30), at(8, 20), true, "53"))

	plan, err := newTestPlanner(src).PlanArriveBy(context.Background(), "TLV", at(8, 40), Options{})
	require.NoError(t, err)

	assert.Equal(t, "TLV", plan.Destination)
	assert.Equal(t, at(8, 40), plan.ReferenceTime)
	require.Len(t, plan.Options, 1)

	o := plan.Options[0]
	assert.Equal(t, "Netivot", o.DepartureStation)
	assert.Equal(t, at(6, 55), o.LeaveTime)
	assert.Equal(t, at(7, 30), o.TrainDeparture)
	assert.Equal(t, at(8, 20), o.TrainArrival)
	assert.Equal(t, at(8, 30), o.FinalArrival)
	assert.Equal(t, 95, o.TotalDurationMinutes)
	assert.Equal(t, 20, o.DriveTimeMinutes)
	assert.Equal(t, 50, o.TrainDurationMinutes)
	assert.Equal(t, 10, o.FinalTransportMinutes)
	assert.True(t, o.IsDirect)
	assert.Equal(t, "53", o.TrainNumber)
	assert.Equal(t, "1", o.DeparturePlatform)
}

func TestPlanArriveBy_TooLateIsExcluded(t *testing.T) {
	src := newFakeSource()
	src.add(route("Netivot", savidor, at(8, 0), at(8, 50), true, "57"))

	plan, err := newTestPlanner(src).PlanArriveBy(context.Background(), "TLV", at(8, 40), Options{})
	require.NoError(t, err)
	assert.Empty(t, plan.Options)
	assert.NotNil(t, plan.Options, "empty plans encode as []")
}

func TestPlanArriveBy_WindowBoundaries(t *testing.T) {
	src := newFakeSource()
	// Required train arrival for an 08:40 deadline is 08:30; window starts 05:30.
	src.add(route("Netivot", savidor, at(4, 30), at(5, 29), true, "a"))
	src.add(route("Netivot", savidor, at(4, 40), at(5, 30), true, "b"))
	src.add(route("Netivot", savidor, at(7, 40), at(8, 30), true, "c"))
	src.add(route("Netivot", savidor, at(7, 41), at(8, 31), true, "d"))

	plan, err := newTestPlanner(src).PlanArriveBy(context.Background(), "TLV", at(8, 40), Options{})
	require.NoError(t, err)

	var trains []string
	for _, o := range plan.Options {
		trains = append(trains, o.TrainNumber)
		assert.False(t, o.FinalArrival.After(at(8, 40)))
	}
	assert.Equal(t, []string{"c", "b"}, trains)
}

func TestPlanArriveBy_SortsAcrossStations(t *testing.T) {
	src := newFakeSource()
	src.add(route("Netivot", savidor, at(6, 30), at(7, 20), true, "n1"))
	src.add(route("Netivot", savidor, at(7, 30), at(8, 20), true, "n2"))
	src.add(route("Kiryat Gat", savidor, at(7, 35), at(8, 20), true, "k1"))
	src.add(route("Lehavim-Rahat", savidor, at(7, 0), at(8, 5), false, "l1"))

	p := newTestPlanner(src)

	plan, err := p.PlanArriveBy(context.Background(), "TLV", at(8, 40), Options{})
	require.NoError(t, err)
	var got []string
	for _, o := range plan.Options {
		got = append(got, o.TrainNumber)
	}
	// n2 and k1 tie on final arrival; registry order puts Netivot first.
	assert.Equal(t, []string{"n2", "k1", "l1", "n1"}, got)

	plan, err = p.PlanArriveBy(context.Background(), "TLV", at(8, 40), Options{Sort: SortByLeaveTime})
	require.NoError(t, err)
	got = nil
	for _, o := range plan.Options {
		got = append(got, fmt.Sprintf("%s@%s", o.TrainNumber, o.LeaveTime.Format("15:04")))
	}
	assert.Equal(t, []string{"n2@06:55", "k1@06:50", "l1@06:25", "n1@05:55"}, got)
}

func TestPlanArriveBy_FetchesEveryStationOnRequiredDay(t *testing.T) {
	src := newFakeSource()

	deadline := time.Date(2025, 3, 3, 0, 5, 0, 0, time.UTC)
	_, err := newTestPlanner(src).PlanArriveBy(context.Background(), "TLV", deadline, Options{})
	require.NoError(t, err)

	require.Len(t, src.calls, 3)
	seen := map[string]bool{}
	for _, c := range src.calls {
		seen[c.from] = true
		assert.Equal(t, savidor, c.to)
		assert.Equal(t, 2, c.day.Day(), "required train arrival 23:55 falls on the previous day")
	}
	assert.Equal(t, map[string]bool{"Netivot": true, "Kiryat Gat": true, "Lehavim-Rahat": true}, seen)
}

func TestPlanArriveBy_Haifa(t *testing.T) {
	src := newFakeSource()
	src.add(route("Kiryat Gat", hofHaKarmel, at(6, 0), at(8, 0), false, "k"))

	plan, err := newTestPlanner(src).PlanArriveBy(context.Background(), "Haifa", at(8, 30), Options{})
	require.NoError(t, err)
	require.Len(t, plan.Options, 1)
	assert.Equal(t, at(5, 15), plan.Options[0].LeaveTime)
	assert.Equal(t, at(8, 30), plan.Options[0].FinalArrival)
	assert.Equal(t, 30, plan.Options[0].FinalTransportMinutes)
}

func TestPlanDepartAfter(t *testing.T) {
	src := newFakeSource()
	// Netivot needs 20+15+15 minutes before departure.
	src.add(route("Netivot", savidor, at(6, 49), at(7, 40), true, "too-soon"))
	src.add(route("Netivot", savidor, at(6, 50), at(7, 40), true, "first"))
	src.add(route("Netivot", savidor, at(9, 0), at(9, 50), true, "later"))
	src.add(route("Netivot", savidor, at(18, 0), at(18, 50), true, "edge"))
	src.add(route("Netivot", savidor, at(18, 1), at(18, 51), true, "outside"))
	src.add(route("Kiryat Gat", savidor, at(7, 0), at(7, 35), true, "kg"))

	plan, err := newTestPlanner(src).PlanDepartAfter(context.Background(), "TLV", at(6, 0), Options{})
	require.NoError(t, err)

	var got []string
	for _, o := range plan.Options {
		got = append(got, o.TrainNumber)
		leaveHome := o.TrainDeparture.Add(-minutes(o.DriveTimeMinutes + 15 + 15))
		assert.False(t, leaveHome.Before(at(6, 0)))
	}
	assert.Equal(t, []string{"kg", "first", "later", "edge"}, got, "earliest arrival first")

	first := plan.Options[1]
	assert.Equal(t, at(6, 15), first.LeaveTime, "leave time excludes the safety buffer")
	assert.Equal(t, at(7, 50), first.FinalArrival)
	assert.Equal(t, 95, first.TotalDurationMinutes)

	plan, err = newTestPlanner(src).PlanDepartAfter(context.Background(), "TLV", at(6, 0), Options{Sort: SortByLeaveTime})
	require.NoError(t, err)
	got = nil
	for _, o := range plan.Options {
		got = append(got, o.TrainNumber)
	}
	// kg and first share a 06:15 leave time; Netivot comes first in the registry.
	assert.Equal(t, []string{"edge", "later", "first", "kg"}, got)
}

func TestPlanDepartAfter_WindowOverride(t *testing.T) {
	src := newFakeSource()
	src.add(route("Netivot", savidor, at(7, 0), at(7, 50), true, "a"))
	src.add(route("Netivot", savidor, at(9, 0), at(9, 50), true, "b"))

	plan, err := newTestPlanner(src).PlanDepartAfter(context.Background(), "TLV", at(6, 0), Options{Window: 2 * time.Hour})
	require.NoError(t, err)
	require.Len(t, plan.Options, 1)
	assert.Equal(t, "a", plan.Options[0].TrainNumber)
}

func TestPlanReturnHome(t *testing.T) {
	src := newFakeSource()
	src.add(route(savidor, "Lehavim-Rahat", at(16, 29), at(17, 30), true, "early"))
	src.add(route(savidor, "Lehavim-Rahat", at(17, 0), at(18, 5), true, "r1"))
	src.add(route(savidor, "Lehavim-Rahat", at(16, 45), at(18, 10), false, "r2"))
	src.add(route(savidor, "Lehavim-Rahat", at(19, 30), at(20, 30), true, "edge"))
	src.add(route(savidor, "Lehavim-Rahat", at(19, 31), at(20, 31), true, "outside"))

	plan, err := newTestPlanner(src).PlanReturnHome(context.Background(), "TLV", "Lehavim", at(16, 30), Options{})
	require.NoError(t, err)

	assert.Equal(t, "TLV", plan.FromLocation)
	assert.Equal(t, "Lehavim-Rahat", plan.ParkedStation)
	require.Len(t, src.calls, 1)
	assert.Equal(t, savidor, src.calls[0].from)
	assert.Equal(t, "Lehavim-Rahat", src.calls[0].to)

	var got []string
	for _, o := range plan.Options {
		got = append(got, o.TrainNumber)
		assert.Equal(t, o.TrainDeparture.Add(-20*time.Minute), o.LeaveTime)
		assert.Equal(t, o.TrainArrival.Add(20*time.Minute), o.FinalArrival)
	}
	assert.Equal(t, []string{"r1", "r2", "edge"}, got)

	r1 := plan.Options[0]
	assert.Equal(t, at(16, 40), r1.LeaveTime)
	assert.Equal(t, at(18, 25), r1.FinalArrival)
	assert.Equal(t, 105, r1.TotalDurationMinutes)
	assert.Equal(t, savidor, r1.DepartureStation, "return options board at the office station")
	assert.NotEqual(t, plan.ParkedStation, r1.DepartureStation)
}

func TestPlanReturnHome_SortByLeaveTime(t *testing.T) {
	src := newFakeSource()
	src.add(route(hofHaKarmel, "Netivot", at(17, 0), at(19, 30), true, "a"))
	src.add(route(hofHaKarmel, "Netivot", at(17, 30), at(19, 20), true, "b"))

	plan, err := newTestPlanner(src).PlanReturnHome(context.Background(), "Haifa", "Netivot", at(16, 0), Options{Sort: SortByLeaveTime})
	require.NoError(t, err)
	require.Len(t, plan.Options, 2)
	assert.Equal(t, "b", plan.Options[0].TrainNumber)
	assert.Equal(t, at(16, 50), plan.Options[0].LeaveTime, "30 minute taxi plus 10 minute buffer")
}

func TestPlanReturnHome_UnknownParkedStation(t *testing.T) {
	src := newFakeSource()
	_, err := newTestPlanner(src).PlanReturnHome(context.Background(), "TLV", "Sderot", at(16, 0), Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotCandidateStation)
	assert.True(t, IsInputError(err))
	assert.Empty(t, src.calls)
}

func TestPlan_MissingTime(t *testing.T) {
	src := newFakeSource()
	p := newTestPlanner(src)

	_, err := p.PlanArriveBy(context.Background(), "TLV", time.Time{}, Options{})
	assert.ErrorIs(t, err, ErrMissingTime)
	_, err = p.PlanDepartAfter(context.Background(), "TLV", time.Time{}, Options{})
	assert.ErrorIs(t, err, ErrMissingTime)
	_, err = p.PlanReturnHome(context.Background(), "TLV", "Netivot", time.Time{}, Options{})
	assert.ErrorIs(t, err, ErrMissingTime)
	assert.True(t, IsInputError(err))

	assert.Empty(t, src.calls, "no work before validation")
}

func TestPlan_UnknownOffice(t *testing.T) {
	_, err := newTestPlanner(newFakeSource()).PlanArriveBy(context.Background(), "Jerusalem", at(8, 0), Options{})
	assert.ErrorIs(t, err, ErrUnknownOffice)
	assert.True(t, IsInputError(err))
}

func TestPlan_ConfigurationErrorAborts(t *testing.T) {
	src := newFakeSource()
	src.add(route("Netivot", savidor, at(7, 30), at(8, 20), true, "53"))
	src.errs["Kiryat Gat|"+savidor] = fmt.Errorf("%w: %q", routes.ErrUnknownStation, "Kiryat Gat")

	_, err := newTestPlanner(src).PlanArriveBy(context.Background(), "TLV", at(8, 40), Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownStation)
	assert.False(t, IsInputError(err))
	assert.Contains(t, err.Error(), "Kiryat Gat")
}

func TestPlan_EmptyStationsDoNotBlockOthers(t *testing.T) {
	src := newFakeSource()
	// Kiryat Gat and Lehavim return nothing, as after a failed request.
	src.add(route("Netivot", savidor, at(7, 30), at(8, 20), true, "53"))

	plan, err := newTestPlanner(src).PlanArriveBy(context.Background(), "TLV", at(8, 40), Options{})
	require.NoError(t, err)
	assert.Len(t, plan.Options, 1)
	assert.Len(t, src.calls, 3)
}

func TestPlan_DirectOnly(t *testing.T) {
	src := newFakeSource()
	src.add(route("Netivot", savidor, at(7, 30), at(8, 20), true, "direct"))
	src.add(route("Kiryat Gat", savidor, at(7, 0), at(8, 10), false, "change"))

	plan, err := newTestPlanner(src).PlanArriveBy(context.Background(), "TLV", at(8, 40), Options{DirectOnly: true})
	require.NoError(t, err)
	require.Len(t, plan.Options, 1)
	assert.Equal(t, "direct", plan.Options[0].TrainNumber)
}

func TestPlan_CancelledContext(t *testing.T) {
	src := routes.SourceFunc(func(ctx context.Context, _, _ string, _ time.Time) ([]routes.RawRoute, error) {
		return nil, ctx.Err()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestPlanner(src).PlanArriveBy(ctx, "TLV", at(8, 40), Options{})
	assert.True(t, errors.Is(err, context.Canceled))
}

// randomSource produces a reproducible day of routes for every station pair.
func randomSource(seed int64) *fakeSource {
	rng := rand.New(rand.NewSource(seed))
	src := newFakeSource()

	var pairs [][2]string
	for _, s := range places.Stations() {
		for _, o := range places.Offices() {
			pairs = append(pairs, [2]string{s.Name, o.Station}, [2]string{o.Station, s.Name})
		}
	}
	for _, p := range pairs {
		for i := 0; i < 40; i++ {
			dep := at(4, 0).Add(time.Duration(rng.Intn(20*60)) * time.Minute)
			arr := dep.Add(time.Duration(20+rng.Intn(150)) * time.Minute)
			src.add(route(p[0], p[1], dep, arr, rng.Intn(2) == 0, fmt.Sprintf("%d", rng.Intn(50))))
		}
	}
	return src
}

func checkInvariants(t *testing.T, options []JourneyOption) {
	t.Helper()
	for _, o := range options {
		assert.False(t, o.LeaveTime.After(o.TrainDeparture), "leave <= train departure")
		assert.False(t, o.TrainDeparture.After(o.TrainArrival), "train departure <= train arrival")
		assert.False(t, o.TrainArrival.After(o.FinalArrival), "train arrival <= final arrival")
		assert.Equal(t, int(o.FinalArrival.Sub(o.LeaveTime)/time.Minute), o.TotalDurationMinutes)
	}
}

func TestPlan_Properties(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		t.Run(fmt.Sprintf("seed %d", seed), func(t *testing.T) {
			p := newTestPlanner(randomSource(seed))
			ctx := context.Background()

			for _, office := range places.Offices() {
				deadline := at(9, 0)
				plan, err := p.PlanArriveBy(ctx, office.ID, deadline, Options{})
				require.NoError(t, err)
				checkInvariants(t, plan.Options)
				required := deadline.Add(-minutes(office.WalkMinutes))
				for _, o := range plan.Options {
					assert.False(t, o.FinalArrival.After(deadline))
					assert.False(t, o.TrainArrival.After(required))
					assert.False(t, o.TrainArrival.Before(required.Add(-DefaultArriveByWindow)))
				}

				start := at(6, 30)
				plan, err = p.PlanDepartAfter(ctx, office.ID, start, Options{})
				require.NoError(t, err)
				checkInvariants(t, plan.Options)
				for _, o := range plan.Options {
					s, ok := places.StationByName(o.DepartureStation)
					require.True(t, ok)
					leaveHome := o.TrainDeparture.Add(-minutes(s.PreTrainMinutes() + 15))
					assert.False(t, leaveHome.Before(start))
					assert.False(t, o.TrainDeparture.After(start.Add(DefaultDepartAfterWindow)))
				}

				for _, s := range places.Stations() {
					depart := at(16, 0)
					plan, err = p.PlanReturnHome(ctx, office.ID, s.Name, depart, Options{})
					require.NoError(t, err)
					checkInvariants(t, plan.Options)
					for _, o := range plan.Options {
						assert.Equal(t, o.TrainDeparture.Add(-minutes(office.WalkMinutes+10)), o.LeaveTime)
						assert.Equal(t, o.TrainArrival.Add(minutes(s.DriveMinutes)), o.FinalArrival)
						assert.False(t, o.TrainDeparture.Before(depart))
						assert.False(t, o.TrainDeparture.After(depart.Add(DefaultReturnWindow)))
					}
				}
			}
		})
	}
}

func TestPlan_Idempotent(t *testing.T) {
	p := newTestPlanner(randomSource(42))
	ctx := context.Background()

	for _, sortBy := range []SortMode{SortByArrival, SortByLeaveTime} {
		first, err := p.PlanDepartAfter(ctx, "TLV", at(5, 0), Options{Sort: sortBy})
		require.NoError(t, err)
		require.NotEmpty(t, first.Options)

		for i := 0; i < 5; i++ {
			again, err := p.PlanDepartAfter(ctx, "TLV", at(5, 0), Options{Sort: sortBy})
			require.NoError(t, err)
			assert.Equal(t, first.Options, again.Options)
		}
	}
}

func TestParseSortMode(t *testing.T) {
	tests := []struct {
		in      string
		want    SortMode
		wantErr bool
	}{
		{"", SortByArrival, false},
		{"arrival_time", SortByArrival, false},
		{"leave_time", SortByLeaveTime, false},
		{"leave", SortByLeaveTime, false},
		{"fastest", SortByArrival, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSortMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, must(ParseSortMode(got.String())))
		})
	}
}

func must(m SortMode, err error) SortMode {
	if err != nil {
		panic(err)
	}
	return m
}
