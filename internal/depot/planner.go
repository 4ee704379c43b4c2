// Package depot places one cluster centroid per route day for a work area,
// snapping a day's depot to the centroid nearest its earliest appointment.
package depot

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/route-planner/internal/calendar"
	"github.com/sells-group/route-planner/internal/geo"
	"github.com/sells-group/route-planner/internal/model"
)

// Store is the persistence the planner needs.
type Store interface {
	ListAppointments(ctx context.Context, territoryID string) ([]model.Appointment, error)
	ReplaceDepots(ctx context.Context, territoryID string, depots []model.Depot) error
}

// ClusterFunc returns k centroids for points.
type ClusterFunc func(points []model.Point, k int, seed int64) ([]model.Point, error)

// Planner creates the depot generation for a work area.
type Planner struct {
	Clusterer ClusterFunc
	Walker    *calendar.Walker
	Store     Store
	Seed      int64
}

// New returns a Planner using k-means++ seeding.
func New(walker *calendar.Walker, store Store, seed int64) *Planner {
	return &Planner{Clusterer: geo.Cluster, Walker: walker, Store: store, Seed: seed}
}

// Plan is one depot generation.
type Plan struct {
	Depots []model.Depot
	Days   []time.Time
	Years  []int
}

// Create plans and persists depots for workArea and returns the sorted
// years the plan touches. An empty work area writes nothing and returns nil.
func (p *Planner) Create(ctx context.Context, workArea model.WorkArea, routeDayStart *time.Time) ([]int, error) {
	plan, err := p.Plan(ctx, workArea, routeDayStart)
	if err != nil || plan == nil {
		return nil, err
	}
	return plan.Years, nil
}

// Plan is Create returning the full generation.
func (p *Planner) Plan(ctx context.Context, workArea model.WorkArea, routeDayStart *time.Time) (*Plan, error) {
	log := zap.L().With(zap.String("component", "depot"), zap.String("work_area", workArea.ID))

	if len(workArea.Companies) == 0 {
		log.Info("work area has no companies, skipping depot planning")
		return nil, nil
	}

	points := make([]model.Point, len(workArea.Companies))
	for i, c := range workArea.Companies {
		points[i] = c.Point()
	}

	k := geo.ClusterCount(len(points))
	if distinct := geo.DistinctCount(points); k > distinct {
		k = distinct
	}

	cluster := p.Clusterer
	if cluster == nil {
		cluster = geo.Cluster
	}
	centroids, err := cluster(points, k, p.Seed)
	if err != nil {
		return nil, eris.Wrapf(err, "depot: cluster work area %s", workArea.ID)
	}

	days, years := p.IdentifyDaysAndYears(len(centroids), routeDayStart)

	appts, err := p.Store.ListAppointments(ctx, workArea.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "depot: list appointments for %s", workArea.ID)
	}

	var scheduled []model.Appointment
	if len(appts) > 0 {
		scheduled = GroupBySchedulesPerDay(appts, days, centroids)
	}

	depots := assignDepots(workArea.ID, days, centroids, scheduled)

	if err := p.Store.ReplaceDepots(ctx, workArea.ID, depots); err != nil {
		return nil, eris.Wrapf(err, "depot: replace depots for %s", workArea.ID)
	}

	log.Info("depots planned",
		zap.Int("companies", len(points)),
		zap.Int("depots", len(depots)),
		zap.Int("appointment_days", len(scheduled)),
		zap.Ints("years", years),
	)
	return &Plan{Depots: depots, Days: days, Years: years}, nil
}

// IdentifyDaysAndYears returns n consecutive route days and the sorted
// distinct years they touch. The first day is routeDayStart when given,
// otherwise the next route day after today.
func (p *Planner) IdentifyDaysAndYears(n int, routeDayStart *time.Time) ([]time.Time, []int) {
	if n <= 0 {
		return nil, nil
	}

	days := make([]time.Time, 0, n)
	var day time.Time
	if routeDayStart != nil {
		day = *routeDayStart
	} else {
		day = p.Walker.NextRouteDay(p.Walker.Today())
	}
	days = append(days, day)
	for len(days) < n {
		day = p.Walker.NextRouteDay(day)
		days = append(days, day)
	}

	seen := make(map[int]struct{})
	var years []int
	for _, d := range days {
		if _, ok := seen[d.Year()]; !ok {
			seen[d.Year()] = struct{}{}
			years = append(years, d.Year())
		}
	}
	sort.Ints(years)
	return days, years
}

// RemoveScheduleOutsideRoutePeriod keeps appointments that fall on one of
// days and have a location.
func RemoveScheduleOutsideRoutePeriod(appts []model.Appointment, days []time.Time) []model.Appointment {
	planned := make(map[string]struct{}, len(days))
	for _, d := range days {
		planned[d.Format(model.DayLayout)] = struct{}{}
	}

	var out []model.Appointment
	for _, a := range appts {
		if a.Location == nil {
			zap.L().Debug("depot: appointment without location ignored", zap.String("company_id", a.CompanyID))
			continue
		}
		if _, ok := planned[a.At.Format(model.DayLayout)]; ok {
			out = append(out, a)
		}
	}
	return out
}

// GroupBySchedulesPerDay keeps the earliest appointment of each planned day
// and sets its ClusterCloser to the planar-nearest centroid. The result is
// ordered by appointment time.
func GroupBySchedulesPerDay(appts []model.Appointment, days []time.Time, centroids []model.Point) []model.Appointment {
	earliest := make(map[string]model.Appointment)
	for _, a := range RemoveScheduleOutsideRoutePeriod(appts, days) {
		key := a.At.Format(model.DayLayout)
		if cur, ok := earliest[key]; !ok || a.At.Before(cur.At) {
			earliest[key] = a
		}
	}

	out := make([]model.Appointment, 0, len(earliest))
	for _, a := range earliest {
		if c, idx := geo.Nearest(*a.Location, centroids); idx >= 0 {
			closer := c
			a.ClusterCloser = &closer
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

// assignDepots gives each day its appointment's ClusterCloser when one
// exists, otherwise the next centroid not claimed by an appointment.
func assignDepots(workAreaID string, days []time.Time, centroids []model.Point, scheduled []model.Appointment) []model.Depot {
	byDay := make(map[string]model.Point, len(scheduled))
	claimed := make(map[model.Point]struct{}, len(scheduled))
	for _, a := range scheduled {
		if a.ClusterCloser == nil {
			continue
		}
		byDay[a.At.Format(model.DayLayout)] = *a.ClusterCloser
		claimed[*a.ClusterCloser] = struct{}{}
	}

	var free []model.Point
	for _, c := range centroids {
		if _, ok := claimed[c]; !ok {
			free = append(free, c)
		}
	}

	depots := make([]model.Depot, 0, len(days))
	for _, day := range days {
		loc, ok := byDay[day.Format(model.DayLayout)]
		if !ok {
			if len(free) == 0 {
				// More appointment days than distinct centroids; reuse in order.
				free = append(free, centroids...)
			}
			loc, free = free[0], free[1:]
		}
		depots = append(depots, model.Depot{
			Name:     model.DepotName(workAreaID, day),
			Day:      day,
			Centroid: loc,
		})
	}
	return depots
}

// ForYear filters a depot generation to the days of one year.
func ForYear(depots []model.Depot, year int) []model.Depot {
	var out []model.Depot
	for _, d := range depots {
		if d.Day.Year() == year {
			out = append(out, d)
		}
	}
	return out
}
