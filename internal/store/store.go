// Package store persists leads, appointments, depots and solved routes.
package store

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/route-planner/internal/model"
)

// ErrNotFound is returned when an update targets a row that does not exist.
var ErrNotFound = eris.New("store: not found")

// CompanyFilter narrows ListCompanies.
type CompanyFilter struct {
	TerritoryID string `json:"territory_id,omitempty"`
	SubAreaKey  string `json:"sub_area_key,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

// Store defines the persistence interface for route planning.
type Store interface {
	// Companies
	UpsertCompanies(ctx context.Context, companies []model.Company) (int64, error)
	ListCompanies(ctx context.Context, filter CompanyFilter) ([]model.Company, error)

	// Appointments. Locations are joined from the company; an appointment
	// whose company is unknown comes back with a nil Location.
	UpsertAppointments(ctx context.Context, territoryID string, appts []model.Appointment) error
	ListAppointments(ctx context.Context, territoryID string) ([]model.Appointment, error)

	// Depots. ReplaceDepots deletes every depot of the territory and inserts
	// the new generation atomically.
	ReplaceDepots(ctx context.Context, territoryID string, depots []model.Depot) error
	ListDepots(ctx context.Context, territoryID string) ([]model.Depot, error)
	MoveDepot(ctx context.Context, name string, to model.Point) error

	// Output sinks
	InsertRouted(ctx context.Context, runID string, order model.SolvedOrder) error
	InsertUnrouted(ctx context.Context, runID string, leads []model.UnroutedLead) error
	InsertRoute(ctx context.Context, route model.RouteSummary) error
	ListRouted(ctx context.Context, runID string) ([]model.SolvedOrder, error)
	ListUnrouted(ctx context.Context, runID string) ([]model.UnroutedLead, error)
	ListRoutes(ctx context.Context, runID string) ([]model.RouteSummary, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the store for driver ("sqlite" or "postgres") and migrates it.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	var (
		s   Store
		err error
	)
	switch driver {
	case "", "sqlite":
		s, err = NewSQLite(dsn)
	case "postgres":
		s, err = NewPostgres(ctx, dsn, 0)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close() //nolint:errcheck
		return nil, err
	}
	zap.L().Debug("store opened", zap.String("driver", driver))
	return s, nil
}
