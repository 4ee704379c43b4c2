// Package export writes planning results to spreadsheets and shapefiles and
// reads lead spreadsheets for import.
package export

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/route-planner/internal/model"
	"github.com/sells-group/route-planner/internal/textnorm"
)

// Report is one run's output.
type Report struct {
	Routes   []model.RouteSummary
	Routed   []model.SolvedOrder
	Unrouted []model.UnroutedLead
}

// Sheet names in the exported workbook.
const (
	SheetRoutes   = "routes"
	SheetRouted   = "routed"
	SheetUnrouted = "unrouted"
)

const timeFormat = "2006-01-02 15:04"

// WriteXLSX writes the report as a workbook with one sheet per output.
func WriteXLSX(path string, r Report) error {
	f := xlsx.NewFile()

	routes, err := f.AddSheet(SheetRoutes)
	if err != nil {
		return eris.Wrap(err, "export: add routes sheet")
	}
	addRow(routes, "route", "group", "depot", "day", "stops", "distance_km")
	for _, rt := range r.Routes {
		row := routes.AddRow()
		row.AddCell().SetString(rt.Name)
		row.AddCell().SetString(rt.GroupKey)
		row.AddCell().SetString(rt.Depot)
		row.AddCell().SetString(rt.Day.Format("2006-01-02"))
		row.AddCell().SetInt(rt.Stops)
		row.AddCell().SetFloat(rt.DistanceKM)
	}

	routed, err := f.AddSheet(SheetRouted)
	if err != nil {
		return eris.Wrap(err, "export: add routed sheet")
	}
	addRow(routed, "route", "sequence", "company_id", "arrive", "window_start", "lon", "lat", "assignment")
	for _, o := range r.Routed {
		row := routed.AddRow()
		row.AddCell().SetString(o.RouteName)
		row.AddCell().SetInt(o.Sequence)
		row.AddCell().SetString(o.OrderID)
		row.AddCell().SetString(o.ArriveTime.Format(timeFormat))
		window := ""
		if o.TimeWindowStart != nil {
			window = o.TimeWindowStart.Format(timeFormat)
		}
		row.AddCell().SetString(window)
		row.AddCell().SetFloat(o.Location.Lon)
		row.AddCell().SetFloat(o.Location.Lat)
		row.AddCell().SetString(string(o.AssignmentRule))
	}

	unrouted, err := f.AddSheet(SheetUnrouted)
	if err != nil {
		return eris.Wrap(err, "export: add unrouted sheet")
	}
	addRow(unrouted, "company_id", "territory", "sub_area", "lon", "lat", "reason")
	for _, l := range r.Unrouted {
		row := unrouted.AddRow()
		row.AddCell().SetString(l.Company.ID)
		row.AddCell().SetString(l.Company.TerritoryID)
		row.AddCell().SetString(l.Company.SubAreaKey)
		row.AddCell().SetFloat(l.Company.Lon)
		row.AddCell().SetFloat(l.Company.Lat)
		row.AddCell().SetString(l.Reason)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

// LeadColumns are the header names ReadLeadsXLSX understands. Only id,
// territory, lon and lat are required.
var LeadColumns = []string{
	"id", "territory", "municipality", "name", "lon", "lat",
	"priority", "visit_limit", "distance_limit", "appointment",
}

// ReadLeadsXLSX reads companies from the first sheet of a workbook whose
// first row is a header naming LeadColumns (any order, case-insensitive).
// Appointments are parsed as "2006-01-02 15:04" in loc.
func ReadLeadsXLSX(path string, loc *time.Location) ([]model.Company, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "export: open %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("export: %s has no sheets", path)
	}
	sheet := f.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, nil
	}
	if loc == nil {
		loc = time.UTC
	}

	header := rowToStrings(sheet.Rows[0])
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, req := range []string{"id", "territory", "lon", "lat"} {
		if _, ok := idx[req]; !ok {
			return nil, eris.Errorf("export: %s is missing column %q", path, req)
		}
	}

	var out []model.Company
	for n, row := range sheet.Rows[1:] {
		cells := rowToStrings(row)
		get := func(col string) string {
			i, ok := idx[col]
			if !ok || i >= len(cells) {
				return ""
			}
			return strings.TrimSpace(cells[i])
		}

		line := n + 2
		c := model.Company{ID: get("id"), TerritoryID: get("territory"), Name: get("name")}
		if c.ID == "" {
			continue
		}
		if c.Lon, err = strconv.ParseFloat(get("lon"), 64); err != nil {
			return nil, eris.Wrapf(err, "export: row %d lon", line)
		}
		if c.Lat, err = strconv.ParseFloat(get("lat"), 64); err != nil {
			return nil, eris.Wrapf(err, "export: row %d lat", line)
		}
		c.SubAreaKey = textnorm.SubAreaKey(c.TerritoryID, get("municipality"))
		c.PriorityFlag = atoiOrZero(get("priority"))
		if v := atoiOrZero(get("visit_limit")); v != 0 {
			c.VisitLimitOverride = &v
		}
		if m := atoiOrZero(get("distance_limit")); m != 0 {
			c.DistanceLimitOverride = &m
		}
		if s := get("appointment"); s != "" {
			at, err := time.ParseInLocation(timeFormat, s, loc)
			if err != nil {
				return nil, eris.Wrapf(err, "export: row %d appointment", line)
			}
			c.AppointmentAt = &at
		}
		out = append(out, c)
	}
	return out, nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

func atoiOrZero(s string) int {
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int(f)
}
