package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/route-planner/internal/db"
	"github.com/sells-group/route-planner/internal/model"
)

// PostgresStore implements Store on Postgres with PostGIS point columns.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres connects to Postgres and returns a store.
func NewPostgres(ctx context.Context, connString string, maxConns int32) (*PostgresStore, error) {
	pool, err := db.Open(ctx, connString, maxConns)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: open")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool; Close is a no-op.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;
CREATE SCHEMA IF NOT EXISTS routing;

CREATE TABLE IF NOT EXISTS routing.companies (
	id             TEXT PRIMARY KEY,
	territory_id   TEXT NOT NULL,
	sub_area_key   TEXT NOT NULL,
	name           TEXT NOT NULL DEFAULT '',
	geom           geometry(Point, 4326) NOT NULL,
	priority_flag  INTEGER NOT NULL DEFAULT 0,
	limit_visits   INTEGER,
	limit_meters   INTEGER,
	appointment_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS routing.appointments (
	company_id   TEXT NOT NULL,
	day          DATE NOT NULL,
	territory_id TEXT NOT NULL,
	at           TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (company_id, day)
);

CREATE TABLE IF NOT EXISTS routing.depots (
	name         TEXT PRIMARY KEY,
	territory_id TEXT NOT NULL,
	day          TIMESTAMPTZ NOT NULL,
	geom         geometry(Point, 4326) NOT NULL
);

CREATE TABLE IF NOT EXISTS routing.routed (
	run_id          TEXT NOT NULL,
	order_id        TEXT NOT NULL,
	route_name      TEXT NOT NULL,
	sequence        INTEGER NOT NULL,
	arrive_time     TIMESTAMPTZ NOT NULL,
	window_start    TIMESTAMPTZ,
	geom            geometry(Point, 4326) NOT NULL,
	assignment_rule TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS routing.unrouted (
	run_id       TEXT NOT NULL,
	company_id   TEXT NOT NULL,
	territory_id TEXT NOT NULL,
	sub_area_key TEXT NOT NULL,
	geom         geometry(Point, 4326) NOT NULL,
	reason       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS routing.routes (
	run_id      TEXT NOT NULL,
	name        TEXT NOT NULL,
	group_key   TEXT NOT NULL,
	depot       TEXT NOT NULL,
	day         TIMESTAMPTZ NOT NULL,
	stops       INTEGER NOT NULL,
	distance_km DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, name)
);

CREATE INDEX IF NOT EXISTS idx_companies_territory ON routing.companies(territory_id);
CREATE INDEX IF NOT EXISTS idx_companies_geom ON routing.companies USING GIST (geom);
CREATE INDEX IF NOT EXISTS idx_appointments_territory ON routing.appointments(territory_id);
CREATE INDEX IF NOT EXISTS idx_depots_territory ON routing.depots(territory_id);
CREATE INDEX IF NOT EXISTS idx_routed_run ON routing.routed(run_id);
CREATE INDEX IF NOT EXISTS idx_unrouted_run ON routing.unrouted(run_id);
`

// Migrate creates the routing schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool when the store owns it.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// encodePoint renders p as EWKB for ST_GeomFromEWKB.
func encodePoint(p model.Point) ([]byte, error) {
	b, err := ewkb.Marshal(p.ToGeom(), ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: encode point")
	}
	return b, nil
}

// decodePoint parses EWKB returned by ST_AsEWKB.
func decodePoint(b []byte) (model.Point, error) {
	if len(b) == 0 {
		return model.Point{}, nil
	}
	g, err := ewkb.Unmarshal(b)
	if err != nil {
		return model.Point{}, eris.Wrap(err, "postgres: decode point")
	}
	pt, ok := g.(*geom.Point)
	if !ok {
		return model.Point{}, eris.Errorf("postgres: expected point geometry, got %T", g)
	}
	return model.PointFromGeom(pt), nil
}

var companyColumns = []string{
	"id", "territory_id", "sub_area_key", "name", "geom",
	"priority_flag", "limit_visits", "limit_meters", "appointment_at",
}

func (s *PostgresStore) UpsertCompanies(ctx context.Context, companies []model.Company) (int64, error) {
	rows := make([][]any, 0, len(companies))
	for _, c := range companies {
		g, err := encodePoint(c.Point())
		if err != nil {
			return 0, err
		}
		rows = append(rows, []any{
			c.ID, c.TerritoryID, c.SubAreaKey, c.Name, g,
			c.PriorityFlag, c.VisitLimitOverride, c.DistanceLimitOverride, c.AppointmentAt,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "routing.companies",
		Columns:      companyColumns,
		ConflictKeys: []string{"id"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert companies")
	}
	return n, nil
}

func (s *PostgresStore) ListCompanies(ctx context.Context, filter CompanyFilter) ([]model.Company, error) {
	query := `
		SELECT id, territory_id, sub_area_key, name, ST_AsEWKB(geom),
		       priority_flag, limit_visits, limit_meters, appointment_at
		FROM routing.companies
		WHERE ($1 = '' OR territory_id = $1) AND ($2 = '' OR sub_area_key = $2)
		ORDER BY territory_id, sub_area_key, id`
	args := []any{filter.TerritoryID, filter.SubAreaKey}
	if filter.Limit > 0 {
		query += ` LIMIT $3`
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list companies")
	}
	defer rows.Close()

	var out []model.Company
	for rows.Next() {
		var c model.Company
		var g []byte
		if err := rows.Scan(&c.ID, &c.TerritoryID, &c.SubAreaKey, &c.Name, &g,
			&c.PriorityFlag, &c.VisitLimitOverride, &c.DistanceLimitOverride, &c.AppointmentAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan company")
		}
		p, err := decodePoint(g)
		if err != nil {
			return nil, err
		}
		c.Lon, c.Lat = p.Lon, p.Lat
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list companies iterate")
}

func (s *PostgresStore) UpsertAppointments(ctx context.Context, territoryID string, appts []model.Appointment) error {
	if len(appts) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, a := range appts {
		batch.Queue(`
			INSERT INTO routing.appointments (company_id, day, territory_id, at) VALUES ($1, $2, $3, $4)
			ON CONFLICT (company_id, day) DO UPDATE SET territory_id = EXCLUDED.territory_id, at = EXCLUDED.at`,
			a.CompanyID, a.Date(), territoryID, a.At)
	}
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, batch)
		for range appts {
			if _, err := br.Exec(); err != nil {
				br.Close() //nolint:errcheck
				return eris.Wrap(err, "postgres: upsert appointment")
			}
		}
		return eris.Wrap(br.Close(), "postgres: close appointment batch")
	})
}

func (s *PostgresStore) ListAppointments(ctx context.Context, territoryID string) ([]model.Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.company_id, a.at, ST_AsEWKB(c.geom)
		FROM routing.appointments a
		LEFT JOIN routing.companies c ON c.id = a.company_id
		WHERE a.territory_id = $1
		ORDER BY a.at`, territoryID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list appointments")
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		var a model.Appointment
		var g []byte
		if err := rows.Scan(&a.CompanyID, &a.At, &g); err != nil {
			return nil, eris.Wrap(err, "postgres: scan appointment")
		}
		if len(g) > 0 {
			p, err := decodePoint(g)
			if err != nil {
				return nil, err
			}
			a.Location = &p
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list appointments iterate")
}

func (s *PostgresStore) ReplaceDepots(ctx context.Context, territoryID string, depots []model.Depot) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM routing.depots WHERE territory_id = $1`, territoryID); err != nil {
			return eris.Wrapf(err, "postgres: clear depots for %s", territoryID)
		}
		for _, d := range depots {
			g, err := encodePoint(d.Centroid)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO routing.depots (name, territory_id, day, geom) VALUES ($1, $2, $3, ST_GeomFromEWKB($4))`,
				d.Name, territoryID, d.Day, g,
			); err != nil {
				return eris.Wrapf(err, "postgres: insert depot %s", d.Name)
			}
		}
		return nil
	})
}

func (s *PostgresStore) ListDepots(ctx context.Context, territoryID string) ([]model.Depot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, day, ST_AsEWKB(geom) FROM routing.depots WHERE territory_id = $1 ORDER BY day`, territoryID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list depots")
	}
	defer rows.Close()

	var out []model.Depot
	for rows.Next() {
		var d model.Depot
		var g []byte
		if err := rows.Scan(&d.Name, &d.Day, &g); err != nil {
			return nil, eris.Wrap(err, "postgres: scan depot")
		}
		if d.Centroid, err = decodePoint(g); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list depots iterate")
}

func (s *PostgresStore) MoveDepot(ctx context.Context, name string, to model.Point) error {
	g, err := encodePoint(to)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE routing.depots SET geom = ST_GeomFromEWKB($1) WHERE name = $2`, g, name)
	if err != nil {
		return eris.Wrapf(err, "postgres: move depot %s", name)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "depot %s", name)
	}
	return nil
}

func (s *PostgresStore) InsertRouted(ctx context.Context, runID string, o model.SolvedOrder) error {
	g, err := encodePoint(o.Location)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO routing.routed (run_id, order_id, route_name, sequence, arrive_time, window_start, geom, assignment_rule)
		VALUES ($1, $2, $3, $4, $5, $6, ST_GeomFromEWKB($7), $8)`,
		runID, o.OrderID, o.RouteName, o.Sequence, o.ArriveTime, o.TimeWindowStart, g, string(o.AssignmentRule),
	)
	return eris.Wrapf(err, "postgres: insert routed %s", o.OrderID)
}

var unroutedColumns = []string{"run_id", "company_id", "territory_id", "sub_area_key", "geom", "reason"}

func (s *PostgresStore) InsertUnrouted(ctx context.Context, runID string, leads []model.UnroutedLead) error {
	rows := make([][]any, 0, len(leads))
	for _, l := range leads {
		g, err := encodePoint(l.Company.Point())
		if err != nil {
			return err
		}
		rows = append(rows, []any{runID, l.Company.ID, l.Company.TerritoryID, l.Company.SubAreaKey, g, l.Reason})
	}
	_, err := db.CopyFrom(ctx, s.pool, "routing.unrouted", unroutedColumns, rows)
	return eris.Wrap(err, "postgres: insert unrouted")
}

func (s *PostgresStore) InsertRoute(ctx context.Context, r model.RouteSummary) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO routing.routes (run_id, name, group_key, depot, day, stops, distance_km)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id, name) DO UPDATE SET
			group_key = EXCLUDED.group_key, depot = EXCLUDED.depot, day = EXCLUDED.day,
			stops = EXCLUDED.stops, distance_km = EXCLUDED.distance_km`,
		r.RunID, r.Name, r.GroupKey, r.Depot, r.Day, r.Stops, r.DistanceKM,
	)
	return eris.Wrapf(err, "postgres: insert route %s", r.Name)
}

func (s *PostgresStore) ListRouted(ctx context.Context, runID string) ([]model.SolvedOrder, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT order_id, route_name, sequence, arrive_time, window_start, ST_AsEWKB(geom), assignment_rule
		FROM routing.routed WHERE run_id = $1 ORDER BY route_name, sequence`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list routed")
	}
	defer rows.Close()

	var out []model.SolvedOrder
	for rows.Next() {
		var o model.SolvedOrder
		var g []byte
		var rule string
		if err := rows.Scan(&o.OrderID, &o.RouteName, &o.Sequence, &o.ArriveTime, &o.TimeWindowStart, &g, &rule); err != nil {
			return nil, eris.Wrap(err, "postgres: scan routed")
		}
		if o.Location, err = decodePoint(g); err != nil {
			return nil, err
		}
		o.AssignmentRule = model.AssignmentRule(rule)
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list routed iterate")
}

func (s *PostgresStore) ListUnrouted(ctx context.Context, runID string) ([]model.UnroutedLead, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT company_id, territory_id, sub_area_key, ST_AsEWKB(geom), reason
		FROM routing.unrouted WHERE run_id = $1`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list unrouted")
	}
	defer rows.Close()

	var out []model.UnroutedLead
	for rows.Next() {
		var l model.UnroutedLead
		var g []byte
		if err := rows.Scan(&l.Company.ID, &l.Company.TerritoryID, &l.Company.SubAreaKey, &g, &l.Reason); err != nil {
			return nil, eris.Wrap(err, "postgres: scan unrouted")
		}
		p, err := decodePoint(g)
		if err != nil {
			return nil, err
		}
		l.Company.Lon, l.Company.Lat = p.Lon, p.Lat
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list unrouted iterate")
}

func (s *PostgresStore) ListRoutes(ctx context.Context, runID string) ([]model.RouteSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, name, group_key, depot, day, stops, distance_km
		FROM routing.routes WHERE run_id = $1 ORDER BY day, name`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list routes")
	}
	defer rows.Close()

	var out []model.RouteSummary
	for rows.Next() {
		var r model.RouteSummary
		if err := rows.Scan(&r.RunID, &r.Name, &r.GroupKey, &r.Depot, &r.Day, &r.Stops, &r.DistanceKM); err != nil {
			return nil, eris.Wrap(err, "postgres: scan route")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list routes iterate")
}
