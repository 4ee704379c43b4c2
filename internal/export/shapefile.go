package export

import (
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"

	"github.com/sells-group/route-planner/internal/model"
)

// WriteDepotShapefile writes depots as a point shapefile with NAME and DAY
// attributes. path is the .shp file; the .shx and .dbf siblings are created
// next to it.
func WriteDepotShapefile(path string, depots []model.Depot) error {
	w, err := shp.Create(path, shp.POINT)
	if err != nil {
		return eris.Wrapf(err, "export: create shapefile %s", path)
	}
	defer w.Close()

	if err := w.SetFields([]shp.Field{
		shp.StringField("NAME", 64),
		shp.DateField("DAY"),
	}); err != nil {
		return eris.Wrap(err, "export: set shapefile fields")
	}

	for _, d := range depots {
		row := int(w.Write(&shp.Point{X: d.Centroid.Lon, Y: d.Centroid.Lat}))
		if err := w.WriteAttribute(row, 0, d.Name); err != nil {
			return eris.Wrapf(err, "export: write NAME for %s", d.Name)
		}
		if err := w.WriteAttribute(row, 1, d.Day.Format(model.DayLayout)); err != nil {
			return eris.Wrapf(err, "export: write DAY for %s", d.Name)
		}
	}
	return nil
}
