package solver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/route-planner/internal/model"
)

var (
	mon = time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	tue = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
)

func route(name string, start time.Time, maxOrders int) model.Route {
	return model.Route{Name: name, StartDepot: name, Earliest: start, Latest: start.Add(10 * time.Hour), MaxOrderCount: maxOrders}
}

func byID(res *model.SolveResult) map[string]model.SolvedOrder {
	out := make(map[string]model.SolvedOrder, len(res.SolvedOrders))
	for _, o := range res.SolvedOrders {
		out[o.OrderID] = o
	}
	return out
}

func TestNearestNeighbor_GreedyOrder(t *testing.T) {
	req := model.SolveRequest{
		Depots: []model.Depot{{Name: "D1", Centroid: model.Point{Lon: 0, Lat: 0}}},
		Routes: []model.Route{route("D1", mon, 10)},
		Orders: []model.Order{
			{ID: "far", Location: model.Point{Lon: 0.3, Lat: 0}},
			{ID: "near", Location: model.Point{Lon: 0.1, Lat: 0}},
			{ID: "mid", Location: model.Point{Lon: 0.2, Lat: 0}},
		},
	}

	res, err := NewNearestNeighbor().Solve(context.Background(), req)
	require.NoError(t, err)
	got := byID(res)

	assert.Equal(t, 1, got["near"].Sequence)
	assert.Equal(t, 2, got["mid"].Sequence)
	assert.Equal(t, 3, got["far"].Sequence)
	for _, o := range res.SolvedOrders {
		assert.True(t, o.Routed())
	}
	require.Len(t, res.Routes, 1)
	assert.Equal(t, 3, res.Routes[0].Stops)
	assert.InDelta(t, 33.36, res.Routes[0].DistanceKM, 0.1)

	// 11.1 km at 40 km/h is ~16.7 minutes.
	first := got["near"].ArriveTime.Sub(mon)
	assert.InDelta(t, 16.7, first.Minutes(), 0.2)
	// Second stop adds 30 minutes of service plus another leg.
	assert.InDelta(t, 16.7*2+30, got["mid"].ArriveTime.Sub(mon).Minutes(), 0.4)
}

func TestNearestNeighbor_MaxOrderCount(t *testing.T) {
	req := model.SolveRequest{
		Depots: []model.Depot{{Name: "D1"}},
		Routes: []model.Route{route("D1", mon, 1)},
		Orders: []model.Order{
			{ID: "a", Location: model.Point{Lon: 0.01}},
			{ID: "b", Location: model.Point{Lon: 0.02}},
		},
	}
	res, err := NewNearestNeighbor().Solve(context.Background(), req)
	require.NoError(t, err)
	got := byID(res)

	assert.True(t, got["a"].Routed())
	assert.False(t, got["b"].Routed())
	assert.Equal(t, []string{ViolationMaxOrderCount}, got["b"].ViolatedConstraints)
	assert.Empty(t, got["b"].RouteName)
}

func TestNearestNeighbor_MaxTotalDistance(t *testing.T) {
	maxKM := 5.0
	r := route("D1", mon, 10)
	r.MaxTotalDistance = &maxKM
	req := model.SolveRequest{
		Depots: []model.Depot{{Name: "D1"}},
		Routes: []model.Route{r},
		Orders: []model.Order{
			{ID: "close", Location: model.Point{Lon: 0.01}},
			{ID: "away", Location: model.Point{Lon: 1}},
		},
	}
	res, err := NewNearestNeighbor().Solve(context.Background(), req)
	require.NoError(t, err)
	got := byID(res)
	assert.True(t, got["close"].Routed())
	assert.Equal(t, []string{ViolationMaxTotalDistance}, got["away"].ViolatedConstraints)
}

func TestNearestNeighbor_AppointmentsFirstAndOnTheirDay(t *testing.T) {
	window := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	req := model.SolveRequest{
		Depots: []model.Depot{
			{Name: "MON", Centroid: model.Point{Lon: 0.5, Lat: 0}},
			{Name: "TUE", Centroid: model.Point{Lon: 0, Lat: 0}},
		},
		Routes: []model.Route{route("MON", mon, 10), route("TUE", tue, 10)},
		Orders: []model.Order{
			{ID: "walkin", Location: model.Point{Lon: 0.001}},
			// Closer to MON's depot but booked on Tuesday.
			{ID: "appt", Location: model.Point{Lon: 0.4}, Window: &model.TimeWindow{Start: window, End: window.Add(time.Hour)}},
		},
	}
	res, err := NewNearestNeighbor().Solve(context.Background(), req)
	require.NoError(t, err)
	got := byID(res)

	assert.Equal(t, "TUE", got["appt"].RouteName)
	assert.Equal(t, 1, got["appt"].Sequence)
	require.NotNil(t, got["appt"].TimeWindowStart)
	assert.True(t, window.Equal(*got["appt"].TimeWindowStart))
	assert.Equal(t, "TUE", got["walkin"].RouteName)
	assert.Equal(t, 2, got["walkin"].Sequence)
}

func TestNearestNeighbor_WaitsForWindow(t *testing.T) {
	window := time.Date(2026, 3, 9, 11, 0, 0, 0, time.UTC)
	req := model.SolveRequest{
		Depots: []model.Depot{{Name: "D1"}},
		Routes: []model.Route{route("D1", mon, 10)},
		Orders: []model.Order{{ID: "a", Location: model.Point{Lon: 0.01}, Window: &model.TimeWindow{Start: window}}},
	}
	res, err := NewNearestNeighbor().Solve(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, window.Equal(res.SolvedOrders[0].ArriveTime))
}

func TestNearestNeighbor_PreserveRoute(t *testing.T) {
	req := model.SolveRequest{
		Depots: []model.Depot{
			{Name: "A", Centroid: model.Point{Lon: 0}},
			{Name: "B", Centroid: model.Point{Lon: 1}},
		},
		Routes: []model.Route{route("A", mon, 10), route("B", mon, 10)},
		Orders: []model.Order{
			{ID: "kept", Location: model.Point{Lon: 0.01}, RouteName: "B", AssignmentRule: model.AssignmentPreserveRoute},
			{ID: "moved", Location: model.Point{Lon: 0.01}, RouteName: "B", AssignmentRule: model.AssignmentOverride},
		},
	}
	res, err := NewNearestNeighbor().Solve(context.Background(), req)
	require.NoError(t, err)
	got := byID(res)
	assert.Equal(t, "B", got["kept"].RouteName)
	assert.Equal(t, model.AssignmentPreserveRoute, got["kept"].AssignmentRule)
	assert.Equal(t, "A", got["moved"].RouteName)
}

func TestNearestNeighbor_Errors(t *testing.T) {
	s := NewNearestNeighbor()

	_, err := s.Solve(context.Background(), model.SolveRequest{Orders: []model.Order{{ID: "a"}}})
	assert.Error(t, err)

	_, err = s.Solve(context.Background(), model.SolveRequest{
		Routes: []model.Route{route("X", mon, 1)},
	})
	assert.Error(t, err, "unknown depot")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Solve(ctx, model.SolveRequest{
		Depots: []model.Depot{{Name: "D1"}},
		Routes: []model.Route{route("D1", mon, 1)},
	})
	assert.Error(t, err)

	res, err := s.Solve(context.Background(), model.SolveRequest{})
	require.NoError(t, err)
	assert.Empty(t, res.SolvedOrders)
}
