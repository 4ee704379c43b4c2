// Package allocator bins leads into route groups under a global route budget.
package allocator

import (
	"go.uber.org/zap"

	"github.com/sells-group/route-planner/internal/model"
	"github.com/sells-group/route-planner/internal/textnorm"
)

// GroupsByKey is an insertion-ordered map of companies by sub-area key.
type GroupsByKey struct {
	Keys   []string
	Groups map[string][]model.Company
}

// Add appends c to the group for key, registering the key on first use.
func (g *GroupsByKey) Add(key string, c model.Company) {
	if g.Groups == nil {
		g.Groups = make(map[string][]model.Company)
	}
	if _, ok := g.Groups[key]; !ok {
		g.Keys = append(g.Keys, key)
	}
	g.Groups[key] = append(g.Groups[key], c)
}

// Len returns the number of groups.
func (g GroupsByKey) Len() int { return len(g.Keys) }

// GroupCompanies groups companies by their normalised sub-area key, in
// first-seen order.
func GroupCompanies(companies []model.Company) GroupsByKey {
	var g GroupsByKey
	for _, c := range companies {
		g.Add(textnorm.Key(c.SubAreaKey), c)
	}
	return g
}

// Result is the outcome of one allocation pass.
type Result struct {
	Keys               []string
	Companies          map[string]*model.RouteGroup
	RouteNotRoteirized []model.Company
	// Removed counts route decrements made to fit the budget.
	Removed int
}

// TotalRoutes sums NumRoutes over the kept groups.
func (r *Result) TotalRoutes() int {
	total := 0
	for _, k := range r.Keys {
		total += r.Companies[k].NumRoutes
	}
	return total
}

// Kept returns the kept groups in working order.
func (r *Result) Kept() []*model.RouteGroup {
	out := make([]*model.RouteGroup, 0, len(r.Keys))
	for _, k := range r.Keys {
		out = append(out, r.Companies[k])
	}
	return out
}

// GroupByVRP allocates route counts to groups.
//
// Groups holding a priority company move to the front, keeping relative
// order on both sides. When there are more groups than totalRoutes, only the
// first totalRoutes survive and every company of the rest is reported in
// RouteNotRoteirized. Each kept group takes the first non-zero visit and
// distance override among its companies, and needs ceil(len/limit) routes,
// at least one. If the sum still exceeds totalRoutes, groups are trimmed one
// route at a time scanning from the most recently inserted, in repeated
// passes, until the sum fits or every group is down to one route.
func GroupByVRP(groups GroupsByKey, totalRoutes, defaultVisitsPerRoute int) Result {
	log := zap.L().With(zap.String("component", "allocator"))

	totalGroup := groups.Len()
	order := priorityOrder(groups)

	res := Result{Companies: make(map[string]*model.RouteGroup, len(order))}

	if totalGroup > totalRoutes {
		for _, key := range order[max(totalRoutes, 0):] {
			res.RouteNotRoteirized = append(res.RouteNotRoteirized, groups.Groups[key]...)
		}
		order = order[:max(totalRoutes, 0)]
		log.Info("route groups exceed budget, discarding overflow",
			zap.Int("groups", totalGroup),
			zap.Int("total_routes", totalRoutes),
			zap.Int("discarded_companies", len(res.RouteNotRoteirized)),
		)
	}

	for _, key := range order {
		orders := groups.Groups[key]
		g := &model.RouteGroup{
			Key:        key,
			Orders:     orders,
			LimitVisit: defaultVisitsPerRoute,
		}
		if v := firstOverride(orders, func(c model.Company) *int { return c.VisitLimitOverride }); v != nil {
			g.LimitVisit = *v
		}
		g.LimitKM = firstOverride(orders, func(c model.Company) *int { return c.DistanceLimitOverride })
		g.NumRoutes = numRoutes(len(orders), g.LimitVisit)

		res.Keys = append(res.Keys, key)
		res.Companies[key] = g
	}

	res.Removed = trimToBudget(res.Keys, res.Companies, totalRoutes)
	if sum := res.TotalRoutes(); sum > totalRoutes {
		log.Warn("route budget exceeded after trimming, accepting slack",
			zap.Int("routes", sum),
			zap.Int("total_routes", totalRoutes),
		)
	}
	return res
}

// priorityOrder lists priority groups first, then the rest, each in
// insertion order.
func priorityOrder(groups GroupsByKey) []string {
	var priority, rest []string
	for _, key := range groups.Keys {
		if hasPriority(groups.Groups[key]) {
			priority = append(priority, key)
		} else {
			rest = append(rest, key)
		}
	}
	return append(priority, rest...)
}

func hasPriority(cs []model.Company) bool {
	for _, c := range cs {
		if c.IsPriority() {
			return true
		}
	}
	return false
}

// firstOverride returns the first non-nil, non-zero override.
func firstOverride(cs []model.Company, field func(model.Company) *int) *int {
	for _, c := range cs {
		if v := field(c); v != nil && *v != 0 {
			n := *v
			return &n
		}
	}
	return nil
}

func numRoutes(orders, limit int) int {
	if limit <= 0 {
		return 1
	}
	n := (orders + limit - 1) / limit
	if n < 1 {
		return 1
	}
	return n
}

// trimToBudget decrements NumRoutes over keys in reverse until the sum
// equals budget or no group can lose a route. Returns the decrement count.
func trimToBudget(keys []string, groups map[string]*model.RouteGroup, budget int) int {
	sum := 0
	for _, k := range keys {
		sum += groups[k].NumRoutes
	}

	removed := 0
	for sum > budget {
		progressed := false
		for i := len(keys) - 1; i >= 0 && sum > budget; i-- {
			g := groups[keys[i]]
			if g.NumRoutes > 1 {
				g.NumRoutes--
				sum--
				removed++
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	return removed
}
