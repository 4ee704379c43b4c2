// Package model defines the records shared by route planning: leads, route
// groups, depots, appointments and solver results.
package model

import (
	"github.com/twpayne/go-geom"
)

// SRID is the spatial reference used for every stored geometry (WGS 84).
const SRID = 4326

// Point is a (longitude, latitude) pair in decimal degrees.
type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// ToGeom converts the point to a go-geom point tagged with SRID 4326.
func (p Point) ToGeom() *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{p.Lon, p.Lat}).SetSRID(SRID)
}

// PointFromGeom reads the first coordinate of a go-geom point.
func PointFromGeom(g *geom.Point) Point {
	if g == nil || g.Empty() {
		return Point{}
	}
	return Point{Lon: g.X(), Lat: g.Y()}
}

// IsZero reports whether the point has never been set.
func (p Point) IsZero() bool {
	return p.Lon == 0 && p.Lat == 0
}
