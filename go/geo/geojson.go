package geo

import (
	"github.com/ctessum/geom"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/eocube/eocube/go/skerr"
)

// ToOrb converts a polygonal geometry into its orb equivalent with closed
// rings, ready for GeoJSON serialization.
func ToOrb(p geom.Polygonal) orb.Geometry {
	if p == nil {
		return orb.Polygon{}
	}
	polys := p.Polygons()
	out := make(orb.MultiPolygon, 0, len(polys))
	for _, poly := range polys {
		op := make(orb.Polygon, 0, len(poly))
		for _, ring := range poly {
			or := make(orb.Ring, 0, len(ring)+1)
			for _, pt := range ring {
				or = append(or, orb.Point{pt.X, pt.Y})
			}
			if len(or) > 0 && or[0] != or[len(or)-1] {
				or = append(or, or[0])
			}
			op = append(op, or)
		}
		out = append(out, op)
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

// PolygonalFromOrb converts an orb Polygon or MultiPolygon into a geom
// Polygonal, dropping the rings' closing points.
func PolygonalFromOrb(g orb.Geometry) (geom.Polygonal, error) {
	switch v := g.(type) {
	case orb.Polygon:
		return polygonFromOrb(v), nil
	case orb.MultiPolygon:
		out := make(geom.MultiPolygon, 0, len(v))
		for _, p := range v {
			out = append(out, polygonFromOrb(p))
		}
		return out, nil
	}
	return nil, skerr.Fmt("geometry type %T is not polygonal", g)
}

func polygonFromOrb(p orb.Polygon) geom.Polygon {
	out := make(geom.Polygon, 0, len(p))
	for _, ring := range p {
		r := make([]geom.Point, 0, len(ring))
		for _, pt := range ring {
			r = append(r, geom.Point{X: pt[0], Y: pt[1]})
		}
		if len(r) > 1 && r[0] == r[len(r)-1] {
			r = r[:len(r)-1]
		}
		out = append(out, r)
	}
	return out
}

// ParseRegion reads a WGS84 region from GeoJSON bytes. A Geometry, a
// Feature, or a FeatureCollection is accepted; multiple polygonal features
// are unioned.
func ParseRegion(data []byte) (geom.Polygonal, error) {
	if fc, err := geojson.UnmarshalFeatureCollection(data); err == nil {
		var union geom.Polygonal
		for _, f := range fc.Features {
			p, err := PolygonalFromOrb(f.Geometry)
			if err != nil {
				continue // points and lines don't contribute to a region
			}
			if union == nil {
				union = p
			} else {
				union = union.Union(p)
			}
		}
		if union == nil {
			return nil, skerr.Fmt("region contains no polygons")
		}
		return union, nil
	}
	if f, err := geojson.UnmarshalFeature(data); err == nil {
		return PolygonalFromOrb(f.Geometry)
	}
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, skerr.Wrapf(err, "region is not valid GeoJSON")
	}
	return PolygonalFromOrb(g.Geometry())
}
