// Package rebalance detects appointments served late after a solve and moves
// the affected day's depot onto the appointment so the next solve starts there.
package rebalance

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/route-planner/internal/model"
	"github.com/sells-group/route-planner/internal/solver"
)

// Tolerance is the default lateness allowed on an appointment.
const Tolerance = 10 * time.Minute

// DepotMover relocates a depot by name.
type DepotMover interface {
	MoveDepot(ctx context.Context, name string, to model.Point) error
}

// DepotMove relocates the depot of one route.
type DepotMove struct {
	DepotName string
	Location  model.Point

	// At is the appointment start that triggered the move.
	At time.Time
}

// Outcome is the result of checking a solve.
type Outcome struct {
	ExistsOutOfHours bool
	Moves            []DepotMove
}

// Rebalancer checks solved orders against their appointment windows.
type Rebalancer struct {
	Tolerance time.Duration
}

// New returns a Rebalancer with the given tolerance; zero means Tolerance.
func New(tolerance time.Duration) *Rebalancer {
	if tolerance <= 0 {
		tolerance = Tolerance
	}
	return &Rebalancer{Tolerance: tolerance}
}

// Lateness is ArriveTime minus TimeWindowStart truncated to whole minutes.
// Orders without a window are never late.
func Lateness(o model.SolvedOrder) time.Duration {
	if o.TimeWindowStart == nil {
		return 0
	}
	return o.ArriveTime.Sub(*o.TimeWindowStart).Truncate(time.Minute)
}

// Check flags every routed appointment order that arrived at least the
// tolerance late. Each late route yields one move, to the location of its
// earliest late appointment. Moves are in first-seen route order.
func (r *Rebalancer) Check(orders []model.SolvedOrder) Outcome {
	tol := r.Tolerance
	if tol <= 0 {
		tol = Tolerance
	}

	var out Outcome
	index := make(map[string]int)
	for _, o := range orders {
		if o.RouteName == "" || o.TimeWindowStart == nil {
			continue
		}
		if Lateness(o) < tol {
			continue
		}
		out.ExistsOutOfHours = true

		move := DepotMove{DepotName: o.RouteName, Location: o.Location, At: *o.TimeWindowStart}
		if i, ok := index[o.RouteName]; ok {
			if move.At.Before(out.Moves[i].At) {
				out.Moves[i] = move
			}
			continue
		}
		index[o.RouteName] = len(out.Moves)
		out.Moves = append(out.Moves, move)
	}
	return out
}

// Apply issues every move in outcome.
func (r *Rebalancer) Apply(ctx context.Context, mover DepotMover, outcome Outcome) error {
	for _, m := range outcome.Moves {
		if err := mover.MoveDepot(ctx, m.DepotName, m.Location); err != nil {
			return eris.Wrapf(err, "rebalance: move depot %s", m.DepotName)
		}
		zap.L().Info("depot moved to late appointment",
			zap.String("component", "rebalance"),
			zap.String("depot", m.DepotName),
			zap.Float64("lon", m.Location.Lon),
			zap.Float64("lat", m.Location.Lat),
		)
	}
	return nil
}

// PreserveAppointments marks routed orders with a window preserve_route.
// Unrouted appointment orders keep their rule.
func PreserveAppointments(orders []model.SolvedOrder) {
	for i := range orders {
		if orders[i].TimeWindowStart != nil && orders[i].Routed() {
			orders[i].AssignmentRule = model.AssignmentPreserveRoute
		}
	}
}

// Resolve solves req, then while appointments are late moves their depots
// and solves again, at most maxPasses extra times. Depot moves are mirrored
// into req so each re-solve starts from the new locations. The final result
// has its appointment orders marked preserve_route.
func (r *Rebalancer) Resolve(ctx context.Context, s solver.Solver, req model.SolveRequest, mover DepotMover, maxPasses int) (*model.SolveResult, Outcome, error) {
	res, err := s.Solve(ctx, req)
	if err != nil {
		return nil, Outcome{}, eris.Wrap(err, "rebalance: solve")
	}

	outcome := r.Check(res.SolvedOrders)
	for pass := 0; pass < maxPasses && outcome.ExistsOutOfHours; pass++ {
		if err := r.Apply(ctx, mover, outcome); err != nil {
			return nil, outcome, err
		}
		req = withMoves(req, outcome.Moves)

		if res, err = s.Solve(ctx, req); err != nil {
			return nil, outcome, eris.Wrapf(err, "rebalance: re-solve pass %d", pass+1)
		}
		outcome = r.Check(res.SolvedOrders)
	}

	if outcome.ExistsOutOfHours {
		zap.L().Warn("appointments still late after rebalancing",
			zap.String("component", "rebalance"),
			zap.Int("late_routes", len(outcome.Moves)),
			zap.Int("max_passes", maxPasses),
		)
	}

	PreserveAppointments(res.SolvedOrders)
	return res, outcome, nil
}

// withMoves returns a copy of req with the moved depots relocated.
func withMoves(req model.SolveRequest, moves []DepotMove) model.SolveRequest {
	moved := make(map[string]model.Point, len(moves))
	for _, m := range moves {
		moved[m.DepotName] = m.Location
	}

	depots := make([]model.Depot, len(req.Depots))
	for i, d := range req.Depots {
		if loc, ok := moved[d.Name]; ok {
			d.Centroid = loc
		}
		depots[i] = d
	}
	req.Depots = depots
	return req
}
