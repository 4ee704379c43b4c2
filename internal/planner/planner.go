// Package planner runs the full routing pipeline: allocation, per-group
// depot planning, solving, rebalancing and output.
package planner

import (
	"context"
	"runtime"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/route-planner/internal/allocator"
	"github.com/sells-group/route-planner/internal/calendar"
	"github.com/sells-group/route-planner/internal/depot"
	"github.com/sells-group/route-planner/internal/model"
	"github.com/sells-group/route-planner/internal/rebalance"
	"github.com/sells-group/route-planner/internal/sink"
	"github.com/sells-group/route-planner/internal/solver"
)

// Store is the persistence the pipeline needs.
type Store interface {
	depot.Store
	rebalance.DepotMover
}

// Options tune one run.
type Options struct {
	RunID            string
	TotalRoutes      int
	VisitsPerRoute   int
	RouteDayStart    *time.Time
	Workers          int
	Workday          time.Duration
	MaxResolvePasses int
}

// Summary reports what a run produced.
type Summary struct {
	RunID        string        `json:"run_id"`
	Groups       int           `json:"groups"`
	GroupsFailed int           `json:"groups_failed"`
	Discarded    int           `json:"discarded"`
	Routed       int           `json:"routed"`
	Unrouted     int           `json:"unrouted"`
	Routes       int           `json:"routes"`
	LateRoutes   int           `json:"late_routes"`
	Elapsed      time.Duration `json:"elapsed"`
}

// Planner wires the pipeline stages together.
type Planner struct {
	Walker     *calendar.Walker
	Store      Store
	Solver     solver.Solver
	Rebalancer *rebalance.Rebalancer
	Seed       int64

	// NewSink builds the output sink for a run.
	NewSink func(runID string) *sink.Sink
}

// DefaultWorkers is one worker per core, leaving one core free.
func DefaultWorkers() int {
	return max(1, runtime.NumCPU()-1)
}

// Run allocates companies into route groups and plans each group
// concurrently. A failing group is logged and its orders are written as
// unrouted; sibling groups keep running.
func (p *Planner) Run(ctx context.Context, companies []model.Company, opts Options) (*Summary, error) {
	if p.NewSink == nil {
		return nil, eris.New("planner: no sink configured")
	}
	start := time.Now()

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers()
	}

	log := zap.L().With(zap.String("component", "planner"), zap.String("run_id", runID))
	out := p.NewSink(runID)

	alloc := allocator.GroupByVRP(allocator.GroupCompanies(companies), opts.TotalRoutes, opts.VisitsPerRoute)
	kept := alloc.Kept()

	log.Info("allocation complete",
		zap.Int("companies", len(companies)),
		zap.Int("groups", len(kept)),
		zap.Int("routes", alloc.TotalRoutes()),
		zap.Int("discarded", len(alloc.RouteNotRoteirized)),
	)

	if len(alloc.RouteNotRoteirized) > 0 {
		leads := make([]model.UnroutedLead, len(alloc.RouteNotRoteirized))
		for i, c := range alloc.RouteNotRoteirized {
			leads[i] = model.UnroutedLead{Company: c, Reason: model.ReasonGroupOverflow}
		}
		if err := out.Unrouted.Insert(ctx, leads...); err != nil {
			return nil, eris.Wrap(err, "planner: write discarded leads")
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var failed, late atomic.Int64

	for _, group := range kept {
		g.Go(func() error {
			glog := log.With(zap.String("group", group.Key))

			n, err := p.planGroup(gctx, group, opts, out)
			if err != nil {
				failed.Add(1)
				glog.Error("route group failed", zap.Error(err), zap.Int("orders", len(group.Orders)))
				leads := make([]model.UnroutedLead, len(group.Orders))
				for i, c := range group.Orders {
					leads[i] = model.UnroutedLead{Company: c, Reason: model.ReasonGroupFailed}
				}
				if wErr := out.Unrouted.Insert(gctx, leads...); wErr != nil {
					glog.Warn("failed to record unrouted leads for failed group", zap.Error(wErr))
				}
				return nil // don't abort siblings on individual failure
			}
			late.Add(int64(n))
			glog.Debug("route group planned")
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "planner: run groups")
	}

	routed, unrouted, routes := out.Counts()
	sum := &Summary{
		RunID:        runID,
		Groups:       len(kept),
		GroupsFailed: int(failed.Load()),
		Discarded:    len(alloc.RouteNotRoteirized),
		Routed:       routed,
		Unrouted:     unrouted,
		Routes:       routes,
		LateRoutes:   int(late.Load()),
		Elapsed:      time.Since(start),
	}

	log.Info("run complete",
		zap.Int("groups_failed", sum.GroupsFailed),
		zap.Int("routed", sum.Routed),
		zap.Int("unrouted", sum.Unrouted),
		zap.Int("routes", sum.Routes),
		zap.Duration("elapsed", sum.Elapsed),
	)
	return sum, nil
}

// planGroup plans depots for one group and solves it once per year the
// plan touches. Orders rejected in one year are offered to the next.
// It returns the number of routes still late after rebalancing.
func (p *Planner) planGroup(ctx context.Context, group *model.RouteGroup, opts Options, out *sink.Sink) (int, error) {
	if len(group.Orders) == 0 {
		return 0, nil
	}

	territory := group.Orders[0].TerritoryID
	// The group key is the work area, so depots are named and stored per
	// group ("<group key>#<YYYYMMDD>") and sibling groups of one territory
	// keep separate generations.
	dp := depot.New(p.Walker, depot.Scope(p.Store, territory, group.Orders), p.Seed)
	plan, err := dp.Plan(ctx, model.WorkArea{ID: group.Key, Companies: group.Orders}, opts.RouteDayStart)
	if err != nil {
		return 0, err
	}

	selected := plan.Depots
	if group.NumRoutes > 0 && group.NumRoutes < len(selected) {
		selected = selected[:group.NumRoutes]
	}

	byID := make(map[string]model.Company, len(group.Orders))
	for _, c := range group.Orders {
		byID[c.ID] = c
	}

	var (
		pending    = group.Orders
		routed     []model.SolvedOrder
		routes     []model.RouteSummary
		lateRoutes int
	)
	for _, year := range plan.Years {
		depots := depot.ForYear(selected, year)
		if len(depots) == 0 || len(pending) == 0 {
			continue
		}

		req, deferred := buildRequest(group, depots, pending, year, opts.Workday)
		if len(req.Orders) == 0 {
			pending = deferred
			continue
		}

		res, outcome, err := p.rebalancer().Resolve(ctx, p.Solver, req, p.Store, opts.MaxResolvePasses)
		if err != nil {
			return 0, eris.Wrapf(err, "planner: solve %s for %d", group.Key, year)
		}
		if outcome.ExistsOutOfHours {
			lateRoutes += len(outcome.Moves)
		}

		rejected := deferred
		for _, o := range res.SolvedOrders {
			if o.Routed() {
				routed = append(routed, o)
			} else if c, ok := byID[o.OrderID]; ok {
				rejected = append(rejected, c)
			}
		}
		routes = append(routes, summaries(out.RunID, group.Key, depots, res.Routes)...)
		pending = rejected
	}

	// Output is written only once every year has solved, so a failed group
	// leaves no partial rows behind.
	if err := out.Routed.Insert(ctx, routed...); err != nil {
		return 0, eris.Wrap(err, "planner: write routed orders")
	}
	if err := out.Routes.Insert(ctx, routes...); err != nil {
		return 0, eris.Wrap(err, "planner: write routes")
	}
	if len(pending) > 0 {
		leads := make([]model.UnroutedLead, len(pending))
		for i, c := range pending {
			leads[i] = model.UnroutedLead{Company: c, Reason: model.ReasonSolverReject}
		}
		if err := out.Unrouted.Insert(ctx, leads...); err != nil {
			return 0, eris.Wrap(err, "planner: write rejected orders")
		}
	}
	return lateRoutes, nil
}

func (p *Planner) rebalancer() *rebalance.Rebalancer {
	if p.Rebalancer != nil {
		return p.Rebalancer
	}
	return rebalance.New(rebalance.Tolerance)
}

// buildRequest turns the pending orders into a solve request over depots.
// Appointment orders dated outside year are returned as deferred.
func buildRequest(group *model.RouteGroup, depots []model.Depot, pending []model.Company, year int, workday time.Duration) (model.SolveRequest, []model.Company) {
	if workday <= 0 {
		workday = 10 * time.Hour
	}

	req := model.SolveRequest{Depots: depots}
	for _, d := range depots {
		r := model.Route{
			Name:          d.Name,
			StartDepot:    d.Name,
			Earliest:      d.Day,
			Latest:        d.Day.Add(workday),
			MaxOrderCount: group.LimitVisit,
		}
		if group.LimitKM != nil && *group.LimitKM > 0 {
			km := float64(*group.LimitKM) / 1000
			r.MaxTotalDistance = &km
		}
		req.Routes = append(req.Routes, r)
	}

	var deferred []model.Company
	for _, c := range pending {
		o := model.Order{
			ID:             c.ID,
			Location:       c.Point(),
			Priority:       c.PriorityFlag,
			AssignmentRule: model.AssignmentOverride,
		}
		if c.HasAppointment() {
			if c.AppointmentAt.Year() != year {
				deferred = append(deferred, c)
				continue
			}
			at := *c.AppointmentAt
			o.Window = &model.TimeWindow{Start: at, End: at}
		}
		req.Orders = append(req.Orders, o)
	}
	return req, deferred
}

func summaries(runID, groupKey string, depots []model.Depot, stats []model.RouteStats) []model.RouteSummary {
	days := make(map[string]model.Depot, len(depots))
	for _, d := range depots {
		days[d.Name] = d
	}

	out := make([]model.RouteSummary, 0, len(stats))
	for _, s := range stats {
		if s.Stops == 0 {
			continue
		}
		d := days[s.Name]
		out = append(out, model.RouteSummary{
			RunID:      runID,
			Name:       s.Name,
			GroupKey:   groupKey,
			Depot:      d.Name,
			Day:        d.Day,
			Stops:      s.Stops,
			DistanceKM: s.DistanceKM,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out
}
