package geo

import (
	"testing"
	"time"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZone_NominalBands(t *testing.T) {
	assert.Equal(t, 30, Zone(51.5, -0.1)) // London
	assert.Equal(t, 31, Zone(48.8, 2.35)) // Paris
	assert.Equal(t, 33, Zone(52.5, 13.4)) // Berlin
	assert.Equal(t, 60, Zone(-41.3, 174.8))
	assert.Equal(t, 1, Zone(64.8, -177.5))
}

func TestZone_NorwayException_WidensZone32(t *testing.T) {
	// Southern Norway at 58N 5E is zone 32, not 31.
	assert.Equal(t, 32, Zone(58, 5))
	// South of the exception band it stays zone 31.
	assert.Equal(t, 31, Zone(55, 5))
	// North of 64 it reverts as well.
	assert.Equal(t, 31, Zone(65, 5))
}

func TestZone_SvalbardException_SkipsEvenZones(t *testing.T) {
	assert.Equal(t, 31, Zone(78, 7))
	assert.Equal(t, 33, Zone(78, 11))
	assert.Equal(t, 33, Zone(78, 20))
	assert.Equal(t, 35, Zone(78, 25))
	assert.Equal(t, 37, Zone(78, 38))
	// The same longitudes south of 72 use the nominal bands.
	assert.Equal(t, 32, Zone(70, 11))
	assert.Equal(t, 34, Zone(70, 20))
}

func TestRow_LatitudeBands(t *testing.T) {
	for lat, want := range map[float64]string{
		-80:  "C",
		-33:  "H",
		0:    "N",
		52.5: "U",
		60:   "V",
		75:   "X",
		84:   "X",
	} {
		got, err := Row(lat)
		require.NoError(t, err)
		assert.Equalf(t, want, got, "latitude %f", lat)
	}

	_, err := Row(-80.5)
	require.Error(t, err)
	_, err = Row(84.5)
	require.Error(t, err)
}

func TestEPSG_Hemispheres(t *testing.T) {
	assert.Equal(t, 32630, EPSG(30, true))
	assert.Equal(t, 32730, EPSG(30, false))
	assert.True(t, IsNorthRow("N"))
	assert.True(t, IsNorthRow("X"))
	assert.False(t, IsNorthRow("M"))
	assert.False(t, IsNorthRow("C"))
}

func TestProj4_KnownCodes(t *testing.T) {
	s, err := Proj4(32633)
	require.NoError(t, err)
	assert.Contains(t, s, "+lon_0=15")
	assert.Contains(t, s, "+y_0=0 ")

	s, err = Proj4(32733)
	require.NoError(t, err)
	assert.Contains(t, s, "+y_0=10000000")

	s, err = Proj4(WGS84)
	require.NoError(t, err)
	assert.Contains(t, s, "+proj=longlat")

	_, err = Proj4(3857)
	require.Error(t, err)
}

func TestNewTransform_RoundTripsCoordinates(t *testing.T) {
	fwd, err := NewTransform(WGS84, 32632)
	require.NoError(t, err)
	inv, err := NewTransform(32632, WGS84)
	require.NoError(t, err)

	// The central meridian of zone 32 maps to easting 500000.
	x, y, err := fwd(9, 52)
	require.NoError(t, err)
	assert.InDelta(t, 500000, x, 1)
	assert.Greater(t, y, 5000000.0)

	lon, lat, err := inv(x, y)
	require.NoError(t, err)
	assert.InDelta(t, 9, lon, 1e-6)
	assert.InDelta(t, 52, lat, 1e-6)
}

func TestZonePolygon_ExceptionCoverage(t *testing.T) {
	z32, err := ZonePolygon(32)
	require.NoError(t, err)
	// The Norway widening belongs to zone 32...
	assert.Equal(t, geom.Inside, geom.Point{X: 5, Y: 58}.Within(z32))
	// ...and Svalbard does not.
	assert.Equal(t, geom.Outside, geom.Point{X: 10, Y: 78}.Within(z32))

	z31, err := ZonePolygon(31)
	require.NoError(t, err)
	assert.Equal(t, geom.Outside, geom.Point{X: 5, Y: 58}.Within(z31))
	assert.Equal(t, geom.Inside, geom.Point{X: 7, Y: 78}.Within(z31))

	z33, err := ZonePolygon(33)
	require.NoError(t, err)
	assert.Equal(t, geom.Inside, geom.Point{X: 10, Y: 78}.Within(z33))
	assert.Equal(t, geom.Inside, geom.Point{X: 20, Y: 78}.Within(z33))

	_, err = ZonePolygon(61)
	require.Error(t, err)
}

func TestZonesForBounds_CoversExceptionEdges(t *testing.T) {
	// A box over southern Norway touches zones 31 and 32.
	b := &geom.Bounds{Min: geom.Point{X: 2, Y: 57}, Max: geom.Point{X: 7, Y: 59}}
	zones := ZonesForBounds(b)
	assert.Contains(t, zones, 31)
	assert.Contains(t, zones, 32)

	// A small mid-ocean box resolves to a single zone.
	b = &geom.Bounds{Min: geom.Point{X: -30, Y: 10}, Max: geom.Point{X: -29, Y: 11}}
	assert.Equal(t, []int{26}, ZonesForBounds(b))
}

func TestParseRegion_AcceptsAllGeoJSONForms(t *testing.T) {
	geometry := `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}`
	feature := `{"type":"Feature","properties":{},"geometry":` + geometry + `}`
	collection := `{"type":"FeatureCollection","features":[` + feature + `]}`

	for _, body := range []string{geometry, feature, collection} {
		p, err := ParseRegion([]byte(body))
		require.NoError(t, err)
		assert.InDelta(t, 1.0, p.Area(), 1e-9)
	}

	_, err := ParseRegion([]byte(`{"type":"Point","coordinates":[0,0]}`))
	require.Error(t, err)
}

func TestToOrb_RoundTrip(t *testing.T) {
	p := geom.Polygon{{
		{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 2}, {X: 0, Y: 2},
	}}
	back, err := PolygonalFromOrb(ToOrb(p))
	require.NoError(t, err)
	assert.InDelta(t, p.Area(), back.Area(), 1e-9)
}

func TestBuckets_CoversEndInclusive(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2020, 1, 10, 0, 0, 0, 0, time.UTC)
	width := 5 * 24 * time.Hour

	buckets, err := Buckets(start, end, width)
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.Equal(t, start, buckets[0].Start)
	assert.True(t, buckets[1].Contains(end))

	// Half-open: a bucket does not contain its own End.
	assert.False(t, buckets[0].Contains(buckets[0].End))
	assert.True(t, buckets[1].Contains(buckets[1].Start))

	// Degenerate range still yields one bucket.
	buckets, err = Buckets(start, start, width)
	require.NoError(t, err)
	assert.Len(t, buckets, 1)

	_, err = Buckets(end, start, width)
	require.Error(t, err)
	_, err = Buckets(start, end, 0)
	require.Error(t, err)
}
