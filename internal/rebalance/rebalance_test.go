package rebalance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/route-planner/internal/model"
	"github.com/sells-group/route-planner/internal/solver"
)

type recordingMover struct {
	moves map[string]model.Point
	err   error
}

func (m *recordingMover) MoveDepot(_ context.Context, name string, to model.Point) error {
	if m.err != nil {
		return m.err
	}
	if m.moves == nil {
		m.moves = make(map[string]model.Point)
	}
	m.moves[name] = to
	return nil
}

var nine = time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)

func appt(id, route string, windowStart time.Time, late time.Duration, loc model.Point) model.SolvedOrder {
	ws := windowStart
	return model.SolvedOrder{
		OrderID:         id,
		RouteName:       route,
		ArriveTime:      windowStart.Add(late),
		TimeWindowStart: &ws,
		Location:        loc,
	}
}

func TestLateness_TruncatesSeconds(t *testing.T) {
	assert.Equal(t, 9*time.Minute, Lateness(appt("a", "R", nine, 9*time.Minute+59*time.Second, model.Point{})))
	assert.Equal(t, 10*time.Minute, Lateness(appt("a", "R", nine, 10*time.Minute, model.Point{})))
	assert.Equal(t, time.Duration(0), Lateness(model.SolvedOrder{ArriveTime: nine}))
}

func TestCheck_Tolerance(t *testing.T) {
	r := New(0)
	assert.Equal(t, Tolerance, r.Tolerance)

	out := r.Check([]model.SolvedOrder{
		appt("ok", "R1", nine, 9*time.Minute+59*time.Second, model.Point{Lon: 1}),
		appt("early", "R1", nine, -time.Hour, model.Point{Lon: 2}),
		{OrderID: "walkin", RouteName: "R1", ArriveTime: nine.Add(5 * time.Hour)},
	})
	assert.False(t, out.ExistsOutOfHours)
	assert.Empty(t, out.Moves)

	out = r.Check([]model.SolvedOrder{appt("late", "R1", nine, 10*time.Minute, model.Point{Lon: 3})})
	assert.True(t, out.ExistsOutOfHours)
	require.Len(t, out.Moves, 1)
	assert.Equal(t, "R1", out.Moves[0].DepotName)
	assert.Equal(t, model.Point{Lon: 3}, out.Moves[0].Location)
}

func TestCheck_EarliestLateAppointmentWinsPerRoute(t *testing.T) {
	out := New(Tolerance).Check([]model.SolvedOrder{
		appt("second", "R1", nine.Add(3*time.Hour), time.Hour, model.Point{Lon: 2}),
		appt("first", "R1", nine, 30*time.Minute, model.Point{Lon: 1}),
		appt("other", "R2", nine, 15*time.Minute, model.Point{Lon: 9}),
	})
	require.Len(t, out.Moves, 2)
	assert.Equal(t, "R1", out.Moves[0].DepotName)
	assert.Equal(t, model.Point{Lon: 1}, out.Moves[0].Location)
	assert.Equal(t, "R2", out.Moves[1].DepotName)
}

func TestCheck_IgnoresUnroutedOrders(t *testing.T) {
	o := appt("x", "", nine, time.Hour, model.Point{})
	o.ViolatedConstraints = []string{solver.ViolationMaxOrderCount}
	assert.False(t, New(0).Check([]model.SolvedOrder{o}).ExistsOutOfHours)
}

func TestApply(t *testing.T) {
	m := &recordingMover{}
	outcome := Outcome{ExistsOutOfHours: true, Moves: []DepotMove{{DepotName: "R1", Location: model.Point{Lon: 5, Lat: 6}}}}
	require.NoError(t, New(0).Apply(context.Background(), m, outcome))
	assert.Equal(t, model.Point{Lon: 5, Lat: 6}, m.moves["R1"])

	err := New(0).Apply(context.Background(), &recordingMover{err: assert.AnError}, outcome)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestPreserveAppointments(t *testing.T) {
	orders := []model.SolvedOrder{
		appt("a", "R1", nine, 0, model.Point{}),
		{OrderID: "b", RouteName: "R1", AssignmentRule: model.AssignmentOverride},
	}
	PreserveAppointments(orders)
	assert.Equal(t, model.AssignmentPreserveRoute, orders[0].AssignmentRule)
	assert.Equal(t, model.AssignmentOverride, orders[1].AssignmentRule)
}

func TestPreserveAppointments_SkipsUnrouted(t *testing.T) {
	rejected := appt("a", "", nine, 0, model.Point{})
	rejected.AssignmentRule = model.AssignmentOverride
	violated := appt("b", "R1", nine, 0, model.Point{})
	violated.AssignmentRule = model.AssignmentOverride
	violated.ViolatedConstraints = []string{"time_window"}

	orders := []model.SolvedOrder{rejected, violated}
	PreserveAppointments(orders)
	assert.Equal(t, model.AssignmentOverride, orders[0].AssignmentRule)
	assert.Equal(t, model.AssignmentOverride, orders[1].AssignmentRule)
}

func TestResolve_MovesDepotAndResolves(t *testing.T) {
	// The appointment is ~44 km from the depot: at 40 km/h the first
	// solve arrives over an hour late. After the depot moves onto it the
	// route starts there and waits for the window.
	start := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	window := time.Date(2026, 3, 9, 8, 10, 0, 0, time.UTC)
	apptLoc := model.Point{Lon: 0.4, Lat: 0}

	req := model.SolveRequest{
		Depots: []model.Depot{{Name: "T1#20260309", Day: start}},
		Routes: []model.Route{{Name: "T1#20260309", StartDepot: "T1#20260309", Earliest: start, Latest: start.Add(10 * time.Hour), MaxOrderCount: 10}},
		Orders: []model.Order{
			{ID: "appt", Location: apptLoc, Window: &model.TimeWindow{Start: window, End: window.Add(time.Hour)}},
			{ID: "walkin", Location: model.Point{Lon: 0.41}},
		},
	}
	m := &recordingMover{}

	res, outcome, err := New(0).Resolve(context.Background(), solver.NewNearestNeighbor(), req, m, 2)
	require.NoError(t, err)
	assert.False(t, outcome.ExistsOutOfHours)
	assert.Equal(t, apptLoc, m.moves["T1#20260309"])

	for _, o := range res.SolvedOrders {
		if o.OrderID == "appt" {
			assert.Equal(t, model.AssignmentPreserveRoute, o.AssignmentRule)
			assert.True(t, window.Equal(o.ArriveTime))
		} else {
			assert.Empty(t, o.AssignmentRule)
		}
	}
}

type lateSolver struct{ calls int }

func (s *lateSolver) Solve(_ context.Context, _ model.SolveRequest) (*model.SolveResult, error) {
	s.calls++
	return &model.SolveResult{SolvedOrders: []model.SolvedOrder{appt("a", "R1", nine, time.Hour, model.Point{Lon: 1})}}, nil
}

func TestResolve_StopsAfterMaxPasses(t *testing.T) {
	s := &lateSolver{}
	_, outcome, err := New(0).Resolve(context.Background(), s, model.SolveRequest{}, &recordingMover{}, 2)
	require.NoError(t, err)
	assert.True(t, outcome.ExistsOutOfHours)
	assert.Equal(t, 3, s.calls)

	s = &lateSolver{}
	_, _, err = New(0).Resolve(context.Background(), s, model.SolveRequest{}, &recordingMover{}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, s.calls)
}

func TestResolve_MoveError(t *testing.T) {
	_, _, err := New(0).Resolve(context.Background(), &lateSolver{}, model.SolveRequest{}, &recordingMover{err: assert.AnError}, 1)
	assert.Error(t, err)
}
