// Package tiler partitions a WGS84 region into the square, UTM-aligned
// tiles that form the spatial grid of the archive.
package tiler

import (
	"math"
	"sort"

	"github.com/ctessum/geom"

	"github.com/eocube/eocube/go/geo"
	"github.com/eocube/eocube/go/skerr"
	"github.com/eocube/eocube/go/types"
)

// Split partitions a WGS84 region into square tiles with sides of the given
// size in meters, aligned to multiples of the size in every UTM zone the
// region touches. A tile is emitted for each grid square whose interior
// intersects the region, so tile IDs are stable across runs for a fixed
// (region, size) pair. The two size arguments must be equal; rectangular
// tiles are rejected with ErrInvalidArgument.
func Split(region geom.Polygonal, bboxSizeX, bboxSizeY float64) ([]types.Tile, error) {
	if bboxSizeX != bboxSizeY {
		return nil, skerr.Wrapf(types.ErrInvalidArgument, "tiles must be square, got %v x %v", bboxSizeX, bboxSizeY)
	}
	size := bboxSizeX
	if size <= 0 {
		return nil, skerr.Wrapf(types.ErrInvalidArgument, "tile size must be positive, got %v", size)
	}

	var tiles []types.Tile
	for _, zone := range geo.ZonesForBounds(region.Bounds()) {
		zonePoly, err := geo.ZonePolygon(zone)
		if err != nil {
			return nil, skerr.Wrap(err)
		}
		overlap := region.Intersection(zonePoly)
		if overlap.Area() == 0 {
			continue
		}
		// The UTM grids of the two hemispheres have different false
		// northings, so each side of the equator is tiled separately.
		for _, north := range []bool{true, false} {
			part := clipToHemisphere(overlap, north)
			if part.Area() == 0 {
				continue
			}
			zoneTiles, err := splitZone(part, zone, north, size)
			if err != nil {
				return nil, skerr.Wrap(err)
			}
			tiles = append(tiles, zoneTiles...)
		}
	}
	sort.Slice(tiles, func(i, j int) bool {
		a, b := tiles[i], tiles[j]
		if a.Zone != b.Zone {
			return a.Zone < b.Zone
		}
		if a.Row != b.Row {
			return a.Row < b.Row
		}
		if a.MinX != b.MinX {
			return a.MinX < b.MinX
		}
		return a.MinY < b.MinY
	})
	return tiles, nil
}

// clipToHemisphere clips a WGS84 polygon to one side of the equator.
func clipToHemisphere(p geom.Polygonal, north bool) geom.Polygonal {
	minLat, maxLat := -80.0, 0.0
	if north {
		minLat, maxLat = 0.0, 84.0
	}
	return p.Intersection(geom.Polygon{{
		{X: -180, Y: minLat},
		{X: 180, Y: minLat},
		{X: 180, Y: maxLat},
		{X: -180, Y: maxLat},
	}})
}

// splitZone tiles the part of the region falling in one UTM zone and
// hemisphere. The part is projected into the zone's CRS and overlaid with a
// grid of size-by-size squares aligned to the UTM origin.
func splitZone(part geom.Polygonal, zone int, north bool, size float64) ([]types.Tile, error) {
	epsg := geo.EPSG(zone, north)
	toUTM, err := geo.NewTransform(geo.WGS84, epsg)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	toWGS, err := geo.NewTransform(epsg, geo.WGS84)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	utmPart, err := geo.TransformPolygonal(part, toUTM)
	if err != nil {
		return nil, skerr.Wrap(err)
	}

	b := utmPart.Bounds()
	x0, x1 := int(math.Floor(b.Min.X/size)), int(math.Ceil(b.Max.X/size))
	y0, y1 := int(math.Floor(b.Min.Y/size)), int(math.Ceil(b.Max.Y/size))
	var tiles []types.Tile
	for xi := x0; xi < x1; xi++ {
		for yi := y0; yi < y1; yi++ {
			minX, minY := float64(xi)*size, float64(yi)*size
			square := geom.Polygon{{
				{X: minX, Y: minY},
				{X: minX + size, Y: minY},
				{X: minX + size, Y: minY + size},
				{X: minX, Y: minY + size},
			}}
			if square.Intersection(utmPart).Area() == 0 {
				continue
			}
			// The latitude band is read off the tile center.
			_, lat, err := toWGS(minX+size/2, minY+size/2)
			if err != nil {
				return nil, skerr.Wrap(err)
			}
			row, err := geo.Row(lat)
			if err != nil {
				return nil, skerr.Wrap(err)
			}
			tiles = append(tiles, types.Tile{
				Zone: zone,
				Row:  row,
				EPSG: epsg,
				MinX: minX,
				MinY: minY,
				MaxX: minX + size,
				MaxY: minY + size,
			})
		}
	}
	return tiles, nil
}
