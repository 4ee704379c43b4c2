package store

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/route-planner/internal/model"
	"github.com/sells-group/route-planner/internal/textnorm"
	"github.com/sells-group/route-planner/pkg/featureserver"
)

// FieldMap names the feature-layer attributes read into companies.
type FieldMap struct {
	ID            string `mapstructure:"id"`
	Territory     string `mapstructure:"territory"`
	Municipality  string `mapstructure:"municipality"`
	Name          string `mapstructure:"name"`
	Priority      string `mapstructure:"priority"`
	VisitLimit    string `mapstructure:"visit_limit"`
	DistanceLimit string `mapstructure:"distance_limit"`
	Appointment   string `mapstructure:"appointment"`
}

// DefaultFieldMap matches the lead layer's attribute names.
func DefaultFieldMap() FieldMap {
	return FieldMap{
		ID:            "ID",
		Territory:     "CARTEIRA",
		Municipality:  "MUNICIPIO",
		Name:          "RAZAO_SOCIAL",
		Priority:      "PRIORIDADE",
		VisitLimit:    "LIMITE_VISITAS",
		DistanceLimit: "LIMITE_METROS",
		Appointment:   "AGENDAMENTO",
	}
}

// OutFields lists the attributes to request.
func (f FieldMap) OutFields() []string {
	return []string{f.ID, f.Territory, f.Municipality, f.Name, f.Priority, f.VisitLimit, f.DistanceLimit, f.Appointment}
}

// CompanyFromRecord decodes a lead feature. Records without an id or a
// geometry are rejected.
func CompanyFromRecord(r featureserver.Record, f FieldMap, loc *time.Location) (model.Company, error) {
	c := model.Company{
		ID:          r.String(f.ID),
		TerritoryID: r.String(f.Territory),
		Name:        r.String(f.Name),
	}
	if c.ID == "" {
		return c, eris.Errorf("store: record has no %s attribute", f.ID)
	}
	if r.Geometry == nil {
		return c, eris.Errorf("store: record %s has no geometry", c.ID)
	}
	c.Lon, c.Lat = r.Geometry.X, r.Geometry.Y
	c.SubAreaKey = textnorm.SubAreaKey(c.TerritoryID, r.String(f.Municipality))

	if p, ok := r.Int(f.Priority); ok {
		c.PriorityFlag = p
	}
	if v, ok := r.Int(f.VisitLimit); ok {
		c.VisitLimitOverride = &v
	}
	if m, ok := r.Int(f.DistanceLimit); ok {
		c.DistanceLimitOverride = &m
	}
	if at, ok := r.Time(f.Appointment, loc); ok {
		c.AppointmentAt = &at
	}
	return c, nil
}

// CompaniesFromRecords decodes every record, skipping invalid ones. The
// number skipped is returned alongside.
func CompaniesFromRecords(records []featureserver.Record, f FieldMap, loc *time.Location) ([]model.Company, int) {
	out := make([]model.Company, 0, len(records))
	skipped := 0
	for _, r := range records {
		c, err := CompanyFromRecord(r, f, loc)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, c)
	}
	return out, skipped
}

// AppointmentsFromCompanies derives the appointment table from companies that
// carry an appointment time.
func AppointmentsFromCompanies(companies []model.Company) []model.Appointment {
	var out []model.Appointment
	for _, c := range companies {
		if !c.HasAppointment() {
			continue
		}
		p := c.Point()
		out = append(out, model.Appointment{CompanyID: c.ID, At: *c.AppointmentAt, Location: &p})
	}
	return out
}

// RoutedRecord encodes a solved order for the routed layer.
func RoutedRecord(runID string, o model.SolvedOrder) featureserver.Record {
	attrs := map[string]any{
		"RUN_ID":     runID,
		"ID":         o.OrderID,
		"ROTA":       o.RouteName,
		"SEQUENCIA":  o.Sequence,
		"CHEGADA":    featureserver.EpochMillis(o.ArriveTime),
		"ATRIBUICAO": string(o.AssignmentRule),
	}
	if o.TimeWindowStart != nil {
		attrs["JANELA_INICIO"] = featureserver.EpochMillis(*o.TimeWindowStart)
	}
	return featureserver.Record{
		Attributes: attrs,
		Geometry:   &featureserver.Geometry{X: o.Location.Lon, Y: o.Location.Lat},
	}
}

// UnroutedRecord encodes an unrouted lead.
func UnroutedRecord(runID string, l model.UnroutedLead) featureserver.Record {
	return featureserver.Record{
		Attributes: map[string]any{
			"RUN_ID":   runID,
			"ID":       l.Company.ID,
			"CARTEIRA": l.Company.TerritoryID,
			"SUBAREA":  l.Company.SubAreaKey,
			"MOTIVO":   l.Reason,
		},
		Geometry: &featureserver.Geometry{X: l.Company.Lon, Y: l.Company.Lat},
	}
}

// RouteRecord encodes a route summary. Routes carry no geometry.
func RouteRecord(r model.RouteSummary) featureserver.Record {
	return featureserver.Record{
		Attributes: map[string]any{
			"RUN_ID":       r.RunID,
			"NOME":         r.Name,
			"GRUPO":        r.GroupKey,
			"DEPOSITO":     r.Depot,
			"DIA":          featureserver.EpochMillis(r.Day),
			"PARADAS":      r.Stops,
			"DISTANCIA_KM": r.DistanceKM,
		},
	}
}
