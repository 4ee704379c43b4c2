// Package solver defines the route-solver boundary and a greedy
// nearest-neighbour implementation used for local runs and tests.
package solver

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/route-planner/internal/geo"
	"github.com/sells-group/route-planner/internal/model"
)

// Solver orders stops on routes.
type Solver interface {
	Solve(ctx context.Context, req model.SolveRequest) (*model.SolveResult, error)
}

// Violated constraint names reported on orders that could not be placed.
const (
	ViolationMaxOrderCount    = "MaxOrderCount"
	ViolationMaxTotalDistance = "MaxTotalDistance"
	ViolationMaxTotalTime     = "MaxTotalTime"
)

// NearestNeighbor assigns each order to the route whose depot is closest,
// then visits appointments in time order followed by the remaining stops
// greedily by haversine distance. It does not optimise globally.
type NearestNeighbor struct {
	SpeedKMH    float64
	ServiceTime time.Duration
}

// NewNearestNeighbor returns a solver travelling at 40 km/h with 30 minutes
// per stop.
func NewNearestNeighbor() *NearestNeighbor {
	return &NearestNeighbor{SpeedKMH: 40, ServiceTime: 30 * time.Minute}
}

type routeState struct {
	route  model.Route
	depot  model.Point
	orders []model.Order
}

// Solve implements Solver.
func (s *NearestNeighbor) Solve(ctx context.Context, req model.SolveRequest) (*model.SolveResult, error) {
	if len(req.Orders) > 0 && len(req.Routes) == 0 {
		return nil, eris.New("solver: no routes to assign orders to")
	}

	depots := make(map[string]model.Point, len(req.Depots))
	for _, d := range req.Depots {
		depots[d.Name] = d.Centroid
	}

	routes := make([]*routeState, len(req.Routes))
	byName := make(map[string]*routeState, len(req.Routes))
	for i, r := range req.Routes {
		loc, ok := depots[r.StartDepot]
		if !ok {
			return nil, eris.Errorf("solver: route %s references unknown depot %s", r.Name, r.StartDepot)
		}
		routes[i] = &routeState{route: r, depot: loc}
		byName[r.Name] = routes[i]
	}

	for _, o := range req.Orders {
		if rs, ok := byName[o.RouteName]; ok && o.AssignmentRule == model.AssignmentPreserveRoute {
			rs.orders = append(rs.orders, o)
			continue
		}
		rs := nearestRoute(o, routes)
		rs.orders = append(rs.orders, o)
	}

	res := &model.SolveResult{}
	var rejected []model.SolvedOrder
	for _, rs := range routes {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "solver: cancelled")
		}
		placed, dropped, stats := s.sequence(rs)
		res.SolvedOrders = append(res.SolvedOrders, placed...)
		rejected = append(rejected, dropped...)
		res.Routes = append(res.Routes, stats)
	}
	res.SolvedOrders = append(res.SolvedOrders, rejected...)
	return res, nil
}

// nearestRoute picks the route whose depot is closest to o. Appointment
// orders only consider routes on the appointment's date when any exist.
func nearestRoute(o model.Order, routes []*routeState) *routeState {
	candidates := routes
	if o.Window != nil {
		var sameDay []*routeState
		for _, rs := range routes {
			if model.SameDay(rs.route.Earliest, o.Window.Start) {
				sameDay = append(sameDay, rs)
			}
		}
		if len(sameDay) > 0 {
			candidates = sameDay
		}
	}

	best := candidates[0]
	bestDist := geo.Haversine(o.Location, best.depot)
	for _, rs := range candidates[1:] {
		if d := geo.Haversine(o.Location, rs.depot); d < bestDist {
			best, bestDist = rs, d
		}
	}
	return best
}

// sequence orders one route's stops and reports the ones that did not fit.
func (s *NearestNeighbor) sequence(rs *routeState) ([]model.SolvedOrder, []model.SolvedOrder, model.RouteStats) {
	var appts, rest []model.Order
	for _, o := range rs.orders {
		if o.Window != nil {
			appts = append(appts, o)
		} else {
			rest = append(rest, o)
		}
	}
	sort.SliceStable(appts, func(i, j int) bool { return appts[i].Window.Start.Before(appts[j].Window.Start) })

	var (
		placed   []model.SolvedOrder
		dropped  []model.SolvedOrder
		cur      = rs.depot
		clock    = rs.route.Earliest
		distance float64
	)

	visit := func(o model.Order) {
		if violation := s.check(rs.route, len(placed), distance, clock, cur, o); violation != "" {
			dropped = append(dropped, unplaced(o, violation))
			return
		}
		leg := geo.Haversine(cur, o.Location)
		arrive := clock.Add(s.travel(leg))
		if o.Window != nil && arrive.Before(o.Window.Start) {
			arrive = o.Window.Start
		}

		so := model.SolvedOrder{
			OrderID:        o.ID,
			RouteName:      rs.route.Name,
			Sequence:       len(placed) + 1,
			ArriveTime:     arrive,
			Location:       o.Location,
			AssignmentRule: o.AssignmentRule,
		}
		if o.Window != nil {
			start := o.Window.Start
			so.TimeWindowStart = &start
		}
		placed = append(placed, so)

		distance += leg
		cur = o.Location
		clock = arrive.Add(s.ServiceTime)
	}

	for _, o := range appts {
		visit(o)
	}
	for len(rest) > 0 {
		i := nearestOrder(cur, rest)
		o := rest[i]
		rest = append(rest[:i], rest[i+1:]...)
		visit(o)
	}

	return placed, dropped, model.RouteStats{Name: rs.route.Name, Stops: len(placed), DistanceKM: distance}
}

// check returns the constraint visiting o would violate, or "".
func (s *NearestNeighbor) check(r model.Route, stops int, distance float64, clock time.Time, from model.Point, o model.Order) string {
	if r.MaxOrderCount > 0 && stops >= r.MaxOrderCount {
		return ViolationMaxOrderCount
	}
	leg := geo.Haversine(from, o.Location)
	if r.MaxTotalDistance != nil && distance+leg > *r.MaxTotalDistance {
		return ViolationMaxTotalDistance
	}
	if !r.Latest.IsZero() && clock.Add(s.travel(leg)).After(r.Latest) {
		return ViolationMaxTotalTime
	}
	return ""
}

func (s *NearestNeighbor) travel(km float64) time.Duration {
	if s.SpeedKMH <= 0 {
		return 0
	}
	return time.Duration(km / s.SpeedKMH * float64(time.Hour))
}

// nearestOrder returns the index of the order closest to p, ties broken by ID.
func nearestOrder(p model.Point, orders []model.Order) int {
	best := 0
	bestDist := geo.Haversine(p, orders[0].Location)
	for i := 1; i < len(orders); i++ {
		d := geo.Haversine(p, orders[i].Location)
		if d < bestDist || (d == bestDist && orders[i].ID < orders[best].ID) {
			best, bestDist = i, d
		}
	}
	return best
}

func unplaced(o model.Order, violation string) model.SolvedOrder {
	so := model.SolvedOrder{
		OrderID:             o.ID,
		Location:            o.Location,
		ViolatedConstraints: []string{violation},
		AssignmentRule:      o.AssignmentRule,
	}
	if o.Window != nil {
		start := o.Window.Start
		so.TimeWindowStart = &start
	}
	return so
}
