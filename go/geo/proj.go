package geo

import (
	"fmt"
	"math"
	"sync"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"

	"github.com/eocube/eocube/go/skerr"
)

const wgs84Proj4 = "+proj=longlat +datum=WGS84 +no_defs"

// Proj4 returns the proj4 definition for the EPSG codes the pipeline uses:
// WGS84 and the UTM grids. UTM is spelled out as an explicit transverse
// Mercator so the projection parser needs no EPSG database.
func Proj4(epsg int) (string, error) {
	switch {
	case epsg == WGS84:
		return wgs84Proj4, nil
	case epsg > 32600 && epsg <= 32660:
		return fmt.Sprintf("+proj=tmerc +lat_0=0 +lon_0=%d +k=0.9996 +x_0=500000 +y_0=0 +datum=WGS84 +units=m +no_defs", CentralMeridian(epsg-32600)), nil
	case epsg > 32700 && epsg <= 32760:
		return fmt.Sprintf("+proj=tmerc +lat_0=0 +lon_0=%d +k=0.9996 +x_0=500000 +y_0=10000000 +datum=WGS84 +units=m +no_defs", CentralMeridian(epsg-32700)), nil
	}
	return "", skerr.Fmt("unsupported EPSG code: %d", epsg)
}

var (
	srCacheMtx sync.Mutex
	srCache    = map[int]*proj.SR{}
)

// SR returns the parsed spatial reference for an EPSG code. Parses are
// cached for the life of the process.
func SR(epsg int) (*proj.SR, error) {
	srCacheMtx.Lock()
	defer srCacheMtx.Unlock()
	if sr, ok := srCache[epsg]; ok {
		return sr, nil
	}
	p4, err := Proj4(epsg)
	if err != nil {
		return nil, err
	}
	sr, err := proj.Parse(p4)
	if err != nil {
		return nil, skerr.Wrapf(err, "parsing %q", p4)
	}
	srCache[epsg] = sr
	return sr, nil
}

// NewTransform returns a transformer from one EPSG code to another.
func NewTransform(fromEPSG, toEPSG int) (proj.Transformer, error) {
	src, err := SR(fromEPSG)
	if err != nil {
		return nil, err
	}
	dst, err := SR(toEPSG)
	if err != nil {
		return nil, err
	}
	t, err := src.NewTransform(dst)
	if err != nil {
		return nil, skerr.Wrapf(err, "building transform %d -> %d", fromEPSG, toEPSG)
	}
	return t, nil
}

// TransformPolygonal projects p with t, requiring a polygonal result.
func TransformPolygonal(p geom.Polygonal, t proj.Transformer) (geom.Polygonal, error) {
	g, err := p.Transform(t)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	out, ok := g.(geom.Polygonal)
	if !ok {
		return nil, skerr.Fmt("projection produced %T, not a polygon", g)
	}
	return out, nil
}

// TransformBounds projects the four corners of b with t and returns their
// bounding box in the target system.
func TransformBounds(b *geom.Bounds, t proj.Transformer) (*geom.Bounds, error) {
	corners := [][2]float64{
		{b.Min.X, b.Min.Y},
		{b.Max.X, b.Min.Y},
		{b.Max.X, b.Max.Y},
		{b.Min.X, b.Max.Y},
	}
	out := &geom.Bounds{
		Min: geom.Point{X: math.Inf(1), Y: math.Inf(1)},
		Max: geom.Point{X: math.Inf(-1), Y: math.Inf(-1)},
	}
	for _, c := range corners {
		x, y, err := t(c[0], c[1])
		if err != nil {
			return nil, skerr.Wrap(err)
		}
		out.Min.X = math.Min(out.Min.X, x)
		out.Min.Y = math.Min(out.Min.Y, y)
		out.Max.X = math.Max(out.Max.X, x)
		out.Max.Y = math.Max(out.Max.Y, y)
	}
	return out, nil
}
