package types

import (
	"fmt"

	"github.com/ctessum/geom"

	"github.com/eocube/eocube/go/geo"
	"github.com/eocube/eocube/go/skerr"
)

// Tile is an axis-aligned square region in a single UTM projection. Tiles
// are immutable once built; all derived values are computed from the corner
// coordinates.
type Tile struct {
	Zone int    `json:"zone"`
	Row  string `json:"row"`
	EPSG int    `json:"epsg"`
	// Corner coordinates in meters, in the projection identified by EPSG.
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// BboxSizeX returns the tile width in meters.
func (t Tile) BboxSizeX() float64 {
	return t.MaxX - t.MinX
}

// BboxSizeY returns the tile height in meters.
func (t Tile) BboxSizeY() float64 {
	return t.MaxY - t.MinY
}

// XLoc returns the tile's column in the origin-aligned grid of
// bbox-size squares covering its UTM zone.
func (t Tile) XLoc() int {
	return int(t.MinX / t.BboxSizeX())
}

// YLoc returns the tile's row in the origin-aligned grid of bbox-size
// squares covering its UTM zone.
func (t Tile) YLoc() int {
	return int(t.MinY / t.BboxSizeY())
}

// ID returns the stable tile identifier, e.g. "30_U_10000_58_621". Two
// tiles from the same (region, bbox size) partition never share an ID.
func (t Tile) ID() string {
	return fmt.Sprintf("%d_%s_%d_%d_%d", t.Zone, t.Row, int(t.BboxSizeX()), t.XLoc(), t.YLoc())
}

// Bounds returns the tile bounding box in its UTM coordinates.
func (t Tile) Bounds() *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: t.MinX, Y: t.MinY},
		Max: geom.Point{X: t.MaxX, Y: t.MaxY},
	}
}

// Polygon returns the tile outline in its UTM coordinates.
func (t Tile) Polygon() geom.Polygon {
	return geom.Polygon{{
		{X: t.MinX, Y: t.MinY},
		{X: t.MaxX, Y: t.MinY},
		{X: t.MaxX, Y: t.MaxY},
		{X: t.MinX, Y: t.MaxY},
	}}
}

// Contains reports whether other lies entirely inside t. Tiles in
// different projections never contain each other.
func (t Tile) Contains(other Tile) bool {
	return t.EPSG == other.EPSG &&
		t.MinX <= other.MinX && t.MinY <= other.MinY &&
		t.MaxX >= other.MaxX && t.MaxY >= other.MaxY
}

// FootprintWGS84 returns the tile outline reprojected to WGS84 lon/lat, as
// the axis-aligned box over the transformed corner coordinates.
func (t Tile) FootprintWGS84() (geom.Polygon, error) {
	tr, err := geo.NewTransform(t.EPSG, geo.WGS84)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	minX, minY, err := tr(t.MinX, t.MinY)
	if err != nil {
		return nil, skerr.Wrapf(err, "reprojecting tile %s", t.ID())
	}
	maxX, maxY, err := tr(t.MaxX, t.MaxY)
	if err != nil {
		return nil, skerr.Wrapf(err, "reprojecting tile %s", t.ID())
	}
	return geom.Polygon{{
		{X: minX, Y: minY},
		{X: maxX, Y: minY},
		{X: maxX, Y: maxY},
		{X: minX, Y: maxY},
	}}, nil
}

// Validate returns ErrInvalidArgument if the tile is not a square with
// positive extent.
func (t Tile) Validate() error {
	if t.MaxX <= t.MinX || t.MaxY <= t.MinY {
		return skerr.Wrapf(ErrInvalidArgument, "tile in zone %d%s has non-positive extent", t.Zone, t.Row)
	}
	if t.BboxSizeX() != t.BboxSizeY() {
		return skerr.Wrapf(ErrInvalidArgument, "tile %s is not square: %f x %f", t.ID(), t.BboxSizeX(), t.BboxSizeY())
	}
	return nil
}
