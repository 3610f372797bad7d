// Package geo provides the geodesy the pipeline is built on: UTM zone and
// latitude-band derivation with the Norway and Svalbard exceptions, EPSG
// codes and proj4 definitions for the WGS84 UTM grids, cached coordinate
// transforms, GeoJSON geometry conversion, and revisit date bucketing.
package geo

import (
	"sort"

	"github.com/ctessum/geom"

	"github.com/eocube/eocube/go/skerr"
)

// WGS84 is the EPSG code of the lon/lat coordinate system used for
// footprints and regions.
const WGS84 = 4326

// rowLetters are the UTM latitude bands from 80S to 84N, 8 degrees each
// ("I" and "O" are skipped). "X" appears twice so latitude 84 falls into the
// stretched northernmost band.
const rowLetters = "CDEFGHJKLMNPQRSTUVWXX"

// Zone returns the UTM zone for a WGS84 coordinate, honoring the zone 32V
// widening over southern Norway and the even-zone suppression around
// Svalbard.
func Zone(lat, lon float64) int {
	if lat >= 56 && lat < 64 && lon >= 3 && lon < 12 {
		return 32
	}
	if lat >= 72 && lat <= 84 && lon >= 0 && lon < 42 {
		switch {
		case lon < 9:
			return 31
		case lon < 21:
			return 33
		case lon < 33:
			return 35
		default:
			return 37
		}
	}
	zone := int((lon+180)/6) + 1
	if zone > 60 {
		zone = 60
	}
	if zone < 1 {
		zone = 1
	}
	return zone
}

// Row returns the UTM latitude band letter for a WGS84 latitude.
func Row(lat float64) (string, error) {
	if lat < -80 || lat > 84 {
		return "", skerr.Fmt("latitude %f is outside the UTM grid", lat)
	}
	return string(rowLetters[int(lat+80)>>3]), nil
}

// IsNorthRow reports whether a latitude band is in the northern hemisphere.
func IsNorthRow(row string) bool {
	return row >= "N"
}

// EPSG returns the EPSG code of the WGS84 UTM grid for the given zone and
// hemisphere.
func EPSG(zone int, north bool) int {
	if north {
		return 32600 + zone
	}
	return 32700 + zone
}

// CentralMeridian returns the central meridian of a UTM zone in degrees.
func CentralMeridian(zone int) int {
	return zone*6 - 183
}

func rect(minLon, minLat, maxLon, maxLat float64) geom.Polygon {
	return geom.Polygon{{
		{X: minLon, Y: minLat},
		{X: maxLon, Y: minLat},
		{X: maxLon, Y: maxLat},
		{X: minLon, Y: maxLat},
	}}
}

// zoneExceptions lists, per affected zone, the WGS84 rectangles removed
// from and added to the nominal 6-degree band. Derived from the same rules
// as Zone.
var zoneExceptions = map[int]struct{ cuts, adds []geom.Polygon }{
	31: {cuts: []geom.Polygon{rect(3, 56, 6, 64)},
		adds: []geom.Polygon{rect(6, 72, 9, 84)}},
	32: {cuts: []geom.Polygon{rect(6, 72, 12, 84)},
		adds: []geom.Polygon{rect(3, 56, 6, 64)}},
	33: {adds: []geom.Polygon{rect(9, 72, 12, 84), rect(18, 72, 21, 84)}},
	34: {cuts: []geom.Polygon{rect(18, 72, 24, 84)}},
	35: {adds: []geom.Polygon{rect(21, 72, 24, 84), rect(30, 72, 33, 84)}},
	36: {cuts: []geom.Polygon{rect(30, 72, 36, 84)}},
	37: {adds: []geom.Polygon{rect(33, 72, 36, 84)}},
}

// ZonePolygon returns the WGS84 coverage of a UTM zone, including the
// Norway and Svalbard exceptions.
func ZonePolygon(zone int) (geom.Polygonal, error) {
	if zone < 1 || zone > 60 {
		return nil, skerr.Fmt("no such UTM zone: %d", zone)
	}
	minLon := float64(CentralMeridian(zone) - 3)
	var poly geom.Polygonal = rect(minLon, -80, minLon+6, 84)
	exc, ok := zoneExceptions[zone]
	if !ok {
		return poly, nil
	}
	for _, c := range exc.cuts {
		poly = poly.Difference(c)
	}
	for _, a := range exc.adds {
		poly = poly.Union(a)
	}
	return poly, nil
}

// ZonesForBounds returns the UTM zones whose coverage can intersect the
// given WGS84 bounds, ascending. The list may include zones whose exact
// coverage misses the region; callers intersect with ZonePolygon and skip
// empties.
func ZonesForBounds(b *geom.Bounds) []int {
	seen := map[int]bool{}
	lats := []float64{b.Min.Y, b.Max.Y, 56, 63.9, 72, 84}
	for _, lat := range lats {
		if lat < b.Min.Y || lat > b.Max.Y {
			continue
		}
		// 1-degree sampling is finer than the narrowest exception band.
		for lon := b.Min.X; ; lon++ {
			if lon > b.Max.X {
				lon = b.Max.X
			}
			seen[Zone(lat, lon)] = true
			if lon >= b.Max.X {
				break
			}
		}
	}
	zones := make([]int, 0, len(seen))
	for z := range seen {
		zones = append(zones, z)
	}
	sort.Ints(zones)
	return zones
}
