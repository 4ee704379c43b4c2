package depot

import (
	"context"

	"github.com/sells-group/route-planner/internal/model"
)

// scopedStore narrows a territory store to a work area smaller than its
// territory. Appointments are read by territory and kept only for the work
// area's companies; depots are stored under the work-area ID.
type scopedStore struct {
	inner     Store
	territory string
	members   map[string]struct{}
}

// Scope returns a Store for a work area drawn from territoryID. Plan asks
// the store for appointments by work-area ID, which only matches the stored
// territory when the work area is the whole territory.
func Scope(inner Store, territoryID string, companies []model.Company) Store {
	s := &scopedStore{inner: inner, territory: territoryID, members: make(map[string]struct{}, len(companies))}
	for _, c := range companies {
		s.members[c.ID] = struct{}{}
	}
	return s
}

func (s *scopedStore) ListAppointments(ctx context.Context, _ string) ([]model.Appointment, error) {
	appts, err := s.inner.ListAppointments(ctx, s.territory)
	if err != nil {
		return nil, err
	}
	var out []model.Appointment
	for _, a := range appts {
		if _, ok := s.members[a.CompanyID]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *scopedStore) ReplaceDepots(ctx context.Context, workAreaID string, depots []model.Depot) error {
	return s.inner.ReplaceDepots(ctx, workAreaID, depots)
}
