package model

import "time"

// AssignmentRule controls whether a resolve may move an order between routes.
type AssignmentRule string

const (
	AssignmentOverride      AssignmentRule = "override"
	AssignmentPreserveRoute AssignmentRule = "preserve_route"
)

// TimeWindow is a fixed appointment window for an order.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Order is one stop handed to the route solver.
type Order struct {
	ID             string         `json:"id"`
	Location       Point          `json:"location"`
	Priority       int            `json:"priority"`
	Window         *TimeWindow    `json:"window,omitempty"`
	AssignmentRule AssignmentRule `json:"assignment_rule,omitempty"`
	RouteName      string         `json:"route_name,omitempty"`
}

// Route is one executive's day, starting at a named depot.
type Route struct {
	Name             string    `json:"name"`
	StartDepot       string    `json:"start_depot"`
	Earliest         time.Time `json:"earliest"`
	Latest           time.Time `json:"latest"`
	MaxOrderCount    int       `json:"max_order_count"`
	MaxTotalDistance *float64  `json:"max_total_distance,omitempty"` // km
}

// SolvedOrder is one order as returned by the route solver.
type SolvedOrder struct {
	OrderID             string         `json:"order_id"`
	RouteName           string         `json:"route_name"`
	Sequence            int            `json:"sequence"`
	ArriveTime          time.Time      `json:"arrive_time"`
	TimeWindowStart     *time.Time     `json:"time_window_start,omitempty"`
	Location            Point          `json:"location"`
	ViolatedConstraints []string       `json:"violated_constraints,omitempty"`
	AssignmentRule      AssignmentRule `json:"assignment_rule,omitempty"`
}

// Routed reports whether the solver placed the order on a route.
func (o SolvedOrder) Routed() bool {
	return o.RouteName != "" && len(o.ViolatedConstraints) == 0
}

// RouteSummary is the persisted payload for one solved route.
type RouteSummary struct {
	RunID      string    `json:"run_id"`
	Name       string    `json:"name"`
	GroupKey   string    `json:"group_key"`
	Depot      string    `json:"depot"`
	Day        time.Time `json:"day"`
	Stops      int       `json:"stops"`
	DistanceKM float64   `json:"distance_km"`
}

// SolveRequest is the input handed to a route solver.
type SolveRequest struct {
	Orders []Order `json:"orders"`
	Depots []Depot `json:"depots"`
	Routes []Route `json:"routes"`
}

// RouteStats summarises one solved route.
type RouteStats struct {
	Name       string  `json:"name"`
	Stops      int     `json:"stops"`
	DistanceKM float64 `json:"distance_km"`
}

// SolveResult is the solver output.
type SolveResult struct {
	SolvedOrders []SolvedOrder `json:"solved_orders"`
	Routes       []RouteStats  `json:"routes,omitempty"`
}
