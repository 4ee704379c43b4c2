package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/route-planner/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresWithPool(mock), mock
}

func TestPostgres_PointEWKBRoundTrip(t *testing.T) {
	p := model.Point{Lon: -46.633, Lat: -23.55}
	b, err := encodePoint(p)
	require.NoError(t, err)

	got, err := decodePoint(b)
	require.NoError(t, err)
	assert.InDelta(t, p.Lon, got.Lon, 1e-12)
	assert.InDelta(t, p.Lat, got.Lat, 1e-12)

	zero, err := decodePoint(nil)
	require.NoError(t, err)
	assert.True(t, zero.IsZero())

	_, err = decodePoint([]byte{0x01, 0x02})
	assert.Error(t, err)
}

func TestPostgres_Migrate(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS routing").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ReplaceDepots(t *testing.T) {
	s, mock := newMockStore(t)
	d1 := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM routing.depots").WithArgs("T1").WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec("INSERT INTO routing.depots").
		WithArgs("T1#20260309", "T1", d1, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO routing.depots").
		WithArgs("T1#20260310", "T1", d2, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.ReplaceDepots(context.Background(), "T1", []model.Depot{
		{Name: "T1#20260309", Day: d1, Centroid: model.Point{Lon: 1, Lat: 1}},
		{Name: "T1#20260310", Day: d2, Centroid: model.Point{Lon: 2, Lat: 2}},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ReplaceDepots_RollsBackOnInsertError(t *testing.T) {
	s, mock := newMockStore(t)
	d1 := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM routing.depots").WithArgs("T1").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("INSERT INTO routing.depots").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := s.ReplaceDepots(context.Background(), "T1", []model.Depot{{Name: "T1#20260309", Day: d1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert depot T1#20260309")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListDepots(t *testing.T) {
	s, mock := newMockStore(t)
	day := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	g, err := encodePoint(model.Point{Lon: -46.6, Lat: -23.5})
	require.NoError(t, err)

	mock.ExpectQuery("SELECT name, day, ST_AsEWKB").WithArgs("T1").
		WillReturnRows(pgxmock.NewRows([]string{"name", "day", "geom"}).AddRow("T1#20260309", day, g))

	depots, err := s.ListDepots(context.Background(), "T1")
	require.NoError(t, err)
	require.Len(t, depots, 1)
	assert.Equal(t, "T1#20260309", depots[0].Name)
	assert.InDelta(t, -46.6, depots[0].Centroid.Lon, 1e-12)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_MoveDepot(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE routing.depots SET geom").
		WithArgs(pgxmock.AnyArg(), "T1#20260309").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE routing.depots SET geom").
		WithArgs(pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, s.MoveDepot(context.Background(), "T1#20260309", model.Point{Lon: 1, Lat: 2}))
	err := s.MoveDepot(context.Background(), "missing", model.Point{})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpsertCompanies(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_routing_companies"}, companyColumns).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "routing"."companies"`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := s.UpsertCompanies(context.Background(), []model.Company{
		{ID: "c1", TerritoryID: "T1", SubAreaKey: "T1#A", Lon: 1, Lat: 1},
		{ID: "c2", TerritoryID: "T1", SubAreaKey: "T1#A", Lon: 2, Lat: 2, PriorityFlag: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_InsertUnrouted(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"routing", "unrouted"}, unroutedColumns).WillReturnResult(1)

	err := s.InsertUnrouted(context.Background(), "run1", []model.UnroutedLead{
		{Company: model.Company{ID: "c1", TerritoryID: "T1", SubAreaKey: "T1#A"}, Reason: model.ReasonGroupOverflow},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_InsertRoute(t *testing.T) {
	s, mock := newMockStore(t)
	day := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO routing.routes").
		WithArgs("run1", "T1#20260309", "T1#A", "T1#20260309", day, 4, 21.5).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.InsertRoute(context.Background(), model.RouteSummary{
		RunID: "run1", Name: "T1#20260309", GroupKey: "T1#A", Depot: "T1#20260309",
		Day: day, Stops: 4, DistanceKM: 21.5,
	}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListRoutes(t *testing.T) {
	s, mock := newMockStore(t)
	day := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM routing.routes").WithArgs("run1").
		WillReturnRows(pgxmock.NewRows([]string{"run_id", "name", "group_key", "depot", "day", "stops", "distance_km"}).
			AddRow("run1", "T1#20260309", "T1#A", "T1#20260309", day, 3, 9.75))

	routes, err := s.ListRoutes(context.Background(), "run1")
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, 3, routes[0].Stops)
	assert.InDelta(t, 9.75, routes[0].DistanceKM, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}
