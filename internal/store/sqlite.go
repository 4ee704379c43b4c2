package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/route-planner/internal/model"
)

// timeLayout is how timestamps are stored in SQLite TEXT columns.
const timeLayout = time.RFC3339Nano

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas below are per connection; a single connection keeps them
	// applied and serialises planner workers writing concurrently.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id                 TEXT PRIMARY KEY,
	territory_id       TEXT NOT NULL,
	sub_area_key       TEXT NOT NULL,
	name               TEXT NOT NULL DEFAULT '',
	lon                REAL NOT NULL,
	lat                REAL NOT NULL,
	priority_flag      INTEGER NOT NULL DEFAULT 0,
	limit_visits       INTEGER,
	limit_meters       INTEGER,
	appointment_at     TEXT
);

CREATE TABLE IF NOT EXISTS appointments (
	company_id   TEXT NOT NULL,
	day          TEXT NOT NULL,
	territory_id TEXT NOT NULL,
	at           TEXT NOT NULL,
	PRIMARY KEY (company_id, day)
);

CREATE TABLE IF NOT EXISTS depots (
	name         TEXT PRIMARY KEY,
	territory_id TEXT NOT NULL,
	day          TEXT NOT NULL,
	lon          REAL NOT NULL,
	lat          REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS routed (
	run_id          TEXT NOT NULL,
	order_id        TEXT NOT NULL,
	route_name      TEXT NOT NULL,
	sequence        INTEGER NOT NULL,
	arrive_time     TEXT NOT NULL,
	window_start    TEXT,
	lon             REAL NOT NULL,
	lat             REAL NOT NULL,
	assignment_rule TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS unrouted (
	run_id       TEXT NOT NULL,
	company_id   TEXT NOT NULL,
	territory_id TEXT NOT NULL,
	sub_area_key TEXT NOT NULL,
	lon          REAL NOT NULL,
	lat          REAL NOT NULL,
	reason       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS routes (
	run_id      TEXT NOT NULL,
	name        TEXT NOT NULL,
	group_key   TEXT NOT NULL,
	depot       TEXT NOT NULL,
	day         TEXT NOT NULL,
	stops       INTEGER NOT NULL,
	distance_km REAL NOT NULL,
	PRIMARY KEY (run_id, name)
);

CREATE INDEX IF NOT EXISTS idx_companies_territory ON companies(territory_id);
CREATE INDEX IF NOT EXISTS idx_appointments_territory ON appointments(territory_id);
CREATE INDEX IF NOT EXISTS idx_depots_territory ON depots(territory_id);
CREATE INDEX IF NOT EXISTS idx_routed_run ON routed(run_id);
CREATE INDEX IF NOT EXISTS idx_unrouted_run ON unrouted(run_id);
`

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertCompanies(ctx context.Context, companies []model.Company) (int64, error) {
	if len(companies) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert companies")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO companies (id, territory_id, sub_area_key, name, lon, lat, priority_flag, limit_visits, limit_meters, appointment_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			territory_id = excluded.territory_id,
			sub_area_key = excluded.sub_area_key,
			name = excluded.name,
			lon = excluded.lon,
			lat = excluded.lat,
			priority_flag = excluded.priority_flag,
			limit_visits = excluded.limit_visits,
			limit_meters = excluded.limit_meters,
			appointment_at = excluded.appointment_at`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert companies")
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for _, c := range companies {
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.TerritoryID, c.SubAreaKey, c.Name, c.Lon, c.Lat, c.PriorityFlag,
			nullInt(c.VisitLimitOverride), nullInt(c.DistanceLimitOverride), nullTime(c.AppointmentAt),
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert company %s", c.ID)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert companies")
	}
	return n, nil
}

func (s *SQLiteStore) ListCompanies(ctx context.Context, filter CompanyFilter) ([]model.Company, error) {
	query := `SELECT id, territory_id, sub_area_key, name, lon, lat, priority_flag, limit_visits, limit_meters, appointment_at
		FROM companies WHERE 1=1`
	var args []any
	if filter.TerritoryID != "" {
		query += ` AND territory_id = ?`
		args = append(args, filter.TerritoryID)
	}
	if filter.SubAreaKey != "" {
		query += ` AND sub_area_key = ?`
		args = append(args, filter.SubAreaKey)
	}
	query += ` ORDER BY rowid`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list companies")
	}
	defer rows.Close()

	var out []model.Company
	for rows.Next() {
		var c model.Company
		var visits, meters sql.NullInt64
		var appt sql.NullString
		if err := rows.Scan(&c.ID, &c.TerritoryID, &c.SubAreaKey, &c.Name, &c.Lon, &c.Lat,
			&c.PriorityFlag, &visits, &meters, &appt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan company")
		}
		c.VisitLimitOverride = intPtr(visits)
		c.DistanceLimitOverride = intPtr(meters)
		if c.AppointmentAt, err = parseNullTime(appt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list companies iterate")
}

func (s *SQLiteStore) UpsertAppointments(ctx context.Context, territoryID string, appts []model.Appointment) error {
	for _, a := range appts {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO appointments (company_id, day, territory_id, at) VALUES (?, ?, ?, ?)
			ON CONFLICT (company_id, day) DO UPDATE SET territory_id = excluded.territory_id, at = excluded.at`,
			a.CompanyID, a.At.Format(model.DayLayout), territoryID, a.At.Format(timeLayout),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: upsert appointment %s", a.CompanyID)
		}
	}
	return nil
}

func (s *SQLiteStore) ListAppointments(ctx context.Context, territoryID string) ([]model.Appointment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.company_id, a.at, c.lon, c.lat
		FROM appointments a LEFT JOIN companies c ON c.id = a.company_id
		WHERE a.territory_id = ?
		ORDER BY a.at`, territoryID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list appointments")
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		var a model.Appointment
		var at string
		var lon, lat sql.NullFloat64
		if err := rows.Scan(&a.CompanyID, &at, &lon, &lat); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan appointment")
		}
		if a.At, err = time.Parse(timeLayout, at); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse appointment time %q", at)
		}
		if lon.Valid && lat.Valid {
			a.Location = &model.Point{Lon: lon.Float64, Lat: lat.Float64}
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list appointments iterate")
}

func (s *SQLiteStore) ReplaceDepots(ctx context.Context, territoryID string, depots []model.Depot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace depots")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM depots WHERE territory_id = ?`, territoryID); err != nil {
		return eris.Wrapf(err, "sqlite: clear depots for %s", territoryID)
	}
	for _, d := range depots {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO depots (name, territory_id, day, lon, lat) VALUES (?, ?, ?, ?, ?)`,
			d.Name, territoryID, d.Day.Format(timeLayout), d.Centroid.Lon, d.Centroid.Lat,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert depot %s", d.Name)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit replace depots")
}

func (s *SQLiteStore) ListDepots(ctx context.Context, territoryID string) ([]model.Depot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, day, lon, lat FROM depots WHERE territory_id = ? ORDER BY day`, territoryID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list depots")
	}
	defer rows.Close()

	var out []model.Depot
	for rows.Next() {
		var d model.Depot
		var day string
		if err := rows.Scan(&d.Name, &day, &d.Centroid.Lon, &d.Centroid.Lat); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan depot")
		}
		if d.Day, err = time.Parse(timeLayout, day); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse depot day %q", day)
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list depots iterate")
}

func (s *SQLiteStore) MoveDepot(ctx context.Context, name string, to model.Point) error {
	res, err := s.db.ExecContext(ctx, `UPDATE depots SET lon = ?, lat = ? WHERE name = ?`, to.Lon, to.Lat, name)
	if err != nil {
		return eris.Wrapf(err, "sqlite: move depot %s", name)
	}
	return checkRowsAffected(res, "depot", name)
}

func (s *SQLiteStore) InsertRouted(ctx context.Context, runID string, o model.SolvedOrder) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO routed (run_id, order_id, route_name, sequence, arrive_time, window_start, lon, lat, assignment_rule)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, o.OrderID, o.RouteName, o.Sequence, o.ArriveTime.Format(timeLayout), nullTime(o.TimeWindowStart),
		o.Location.Lon, o.Location.Lat, string(o.AssignmentRule),
	)
	return eris.Wrapf(err, "sqlite: insert routed %s", o.OrderID)
}

func (s *SQLiteStore) InsertUnrouted(ctx context.Context, runID string, leads []model.UnroutedLead) error {
	for _, l := range leads {
		c := l.Company
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO unrouted (run_id, company_id, territory_id, sub_area_key, lon, lat, reason)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, c.ID, c.TerritoryID, c.SubAreaKey, c.Lon, c.Lat, l.Reason,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert unrouted %s", c.ID)
		}
	}
	return nil
}

func (s *SQLiteStore) InsertRoute(ctx context.Context, r model.RouteSummary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO routes (run_id, name, group_key, depot, day, stops, distance_km)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, name) DO UPDATE SET
			group_key = excluded.group_key, depot = excluded.depot, day = excluded.day,
			stops = excluded.stops, distance_km = excluded.distance_km`,
		r.RunID, r.Name, r.GroupKey, r.Depot, r.Day.Format(timeLayout), r.Stops, r.DistanceKM,
	)
	return eris.Wrapf(err, "sqlite: insert route %s", r.Name)
}

func (s *SQLiteStore) ListRouted(ctx context.Context, runID string) ([]model.SolvedOrder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, route_name, sequence, arrive_time, window_start, lon, lat, assignment_rule
		FROM routed WHERE run_id = ? ORDER BY route_name, sequence`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list routed")
	}
	defer rows.Close()

	var out []model.SolvedOrder
	for rows.Next() {
		var o model.SolvedOrder
		var arrive, rule string
		var window sql.NullString
		if err := rows.Scan(&o.OrderID, &o.RouteName, &o.Sequence, &arrive, &window,
			&o.Location.Lon, &o.Location.Lat, &rule); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan routed")
		}
		if o.ArriveTime, err = time.Parse(timeLayout, arrive); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse arrive time %q", arrive)
		}
		if o.TimeWindowStart, err = parseNullTime(window); err != nil {
			return nil, err
		}
		o.AssignmentRule = model.AssignmentRule(rule)
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list routed iterate")
}

func (s *SQLiteStore) ListUnrouted(ctx context.Context, runID string) ([]model.UnroutedLead, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT company_id, territory_id, sub_area_key, lon, lat, reason
		FROM unrouted WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list unrouted")
	}
	defer rows.Close()

	var out []model.UnroutedLead
	for rows.Next() {
		var l model.UnroutedLead
		if err := rows.Scan(&l.Company.ID, &l.Company.TerritoryID, &l.Company.SubAreaKey,
			&l.Company.Lon, &l.Company.Lat, &l.Reason); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan unrouted")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list unrouted iterate")
}

func (s *SQLiteStore) ListRoutes(ctx context.Context, runID string) ([]model.RouteSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, name, group_key, depot, day, stops, distance_km
		FROM routes WHERE run_id = ? ORDER BY day, name`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list routes")
	}
	defer rows.Close()

	var out []model.RouteSummary
	for rows.Next() {
		var r model.RouteSummary
		var day string
		if err := rows.Scan(&r.RunID, &r.Name, &r.GroupKey, &r.Depot, &day, &r.Stops, &r.DistanceKM); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan route")
		}
		if r.Day, err = time.Parse(timeLayout, day); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse route day %q", day)
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list routes iterate")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.Format(timeLayout)
}

func parseNullTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil, nil
	}
	t, err := time.Parse(timeLayout, v.String)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: parse time %q", v.String)
	}
	return &t, nil
}
