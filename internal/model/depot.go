package model

import (
	"fmt"
	"time"
)

// DayLayout is the date layout used in depot and route names.
const DayLayout = "20060102"

// Depot is the start location of one route-day for a territory.
type Depot struct {
	Name     string    `json:"name"`
	Day      time.Time `json:"day"`
	Centroid Point     `json:"centroid"`
}

// DepotName formats "<work_area_id>#<YYYYMMDD>". For a whole territory
// that is the territory ID; the planning pipeline passes its route-group
// key instead.
func DepotName(territoryID string, day time.Time) string {
	return fmt.Sprintf("%s#%s", territoryID, day.Format(DayLayout))
}

// Appointment is a fixed-time visit to a company. Appointments are keyed by
// (CompanyID, date) and are read-only input to depot placement.
type Appointment struct {
	CompanyID string    `json:"company_id"`
	At        time.Time `json:"at"`
	Location  *Point    `json:"location,omitempty"`

	// ClusterCloser is the centroid nearest to Location, set during planning.
	ClusterCloser *Point `json:"cluster_closer,omitempty"`
}

// Date returns the appointment day at midnight in its own location.
func (a Appointment) Date() time.Time {
	return DateOf(a.At)
}

// DateOf truncates t to midnight, keeping its location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SameDay reports whether a and b fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
