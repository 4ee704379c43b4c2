package model

import "time"

// Company is a geocoded lead tied to a sales territory ("carteira").
// SubAreaKey groups leads into one route family, e.g. "territory#municipality".
type Company struct {
	ID                    string     `json:"id"`
	TerritoryID           string     `json:"territory_id"`
	SubAreaKey            string     `json:"sub_area_key"`
	Name                  string     `json:"name,omitempty"`
	Lat                   float64    `json:"lat"`
	Lon                   float64    `json:"lon"`
	PriorityFlag          int        `json:"priority_flag"`
	VisitLimitOverride    *int       `json:"visit_limit_override,omitempty"`    // LIMITE_VISITAS
	DistanceLimitOverride *int       `json:"distance_limit_override,omitempty"` // LIMITE_METROS
	AppointmentAt         *time.Time `json:"appointment_at,omitempty"`
}

// Point returns the company location.
func (c Company) Point() Point {
	return Point{Lon: c.Lon, Lat: c.Lat}
}

// IsPriority reports whether the company carries the priority flag.
func (c Company) IsPriority() bool {
	return c.PriorityFlag == 1
}

// HasAppointment reports whether the company has a fixed-time visit.
func (c Company) HasAppointment() bool {
	return c.AppointmentAt != nil && !c.AppointmentAt.IsZero()
}

// WorkArea is one territory's post-allocation order set.
type WorkArea struct {
	ID        string    `json:"id"`
	Companies []Company `json:"companies"`
}

// RouteGroup is a set of orders that share one route family and its limits.
// It is derived on every allocation pass and never persisted.
type RouteGroup struct {
	Key        string    `json:"key"`
	Orders     []Company `json:"orders"`
	LimitVisit int       `json:"limit_visit"`
	LimitKM    *int      `json:"limit_km,omitempty"`
	NumRoutes  int       `json:"num_routes"`
}

// HasPriority reports whether any order in the group is priority-flagged.
func (g *RouteGroup) HasPriority() bool {
	for _, c := range g.Orders {
		if c.IsPriority() {
			return true
		}
	}
	return false
}

// UnroutedLead is a company that did not make it onto any route, with the
// reason it was left out.
type UnroutedLead struct {
	Company Company `json:"company"`
	Reason  string  `json:"reason"`
}

// Reasons recorded for unrouted leads.
const (
	ReasonGroupOverflow = "group_overflow"
	ReasonSolverReject  = "solver_rejected"
	ReasonGroupFailed   = "group_failed"
)
