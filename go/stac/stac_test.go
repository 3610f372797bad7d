package stac

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/iterator"

	"github.com/eocube/eocube/go/bands"
	"github.com/eocube/eocube/go/types"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// searchRegion is a small box over the south coast of England, UTM zone 30N.
func searchRegion() geom.Polygon {
	return geom.Polygon{{
		{X: -3.5, Y: 50.2},
		{X: -3.1, Y: 50.2},
		{X: -3.1, Y: 50.5},
		{X: -3.5, Y: 50.5},
	}}
}

func sentinelTestRow() sentinelRow {
	return sentinelRow{
		GranuleID:   "L1C_T30UVA_A014758_20200103T111336",
		ProductID:   "S2B_MSIL1C_20200103T111339_N0208_R137_T30UVA_20200103T121941",
		MGRSTile:    "30UVA",
		SensingTime: time.Date(2020, 1, 3, 11, 13, 39, 0, time.UTC),
		CloudCover:  12.5,
		NorthLat:    50.5,
		SouthLat:    50.2,
		WestLon:     -3.5,
		EastLon:     -3.1,
		BaseURL:     "gs://gcp-public-data-sentinel-2/tiles/30/U/VA/S2B_MSIL1C_20200103T111339_N0208_R137_T30UVA_20200103T121941.SAFE",
	}
}

func landsatTestRow() landsatRow {
	return landsatRow{
		SceneID:     "LC82020242020005LGN00",
		ProductID:   "LC08_L1TP_202024_20200105_20200113_01_T1",
		SensingTime: time.Date(2020, 1, 5, 10, 54, 12, 0, time.UTC),
		CloudCover:  33.0,
		NorthLat:    50.5,
		SouthLat:    50.2,
		WestLon:     -3.5,
		EastLon:     -3.1,
		BaseURL:     "gs://gcp-public-data-landsat/LC08/01/202/024/LC08_L1TP_202024_20200105_20200113_01_T1",
	}
}

func TestSearch_Sentinel2(t *testing.T) {
	client := &fakeQueryClient{rows: [][]interface{}{{sentinelTestRow()}}}
	c := &BigQueryCatalog{client: client}

	items, err := c.Search(context.Background(), searchRegion(), date(2020, time.January, 1), date(2020, time.February, 1), bands.Sentinel2)
	require.NoError(t, err)
	require.Len(t, items, 1)

	require.Len(t, client.queries, 1)
	q := client.queries[0]
	assert.Contains(t, q, "`bigquery-public-data.cloud_storage_geo_index.sentinel_2_index`")
	assert.Contains(t, q, `DATE(sensing_time) >= "2020-01-01"`)
	assert.Contains(t, q, `DATE(sensing_time) <= "2020-02-01"`)
	assert.Contains(t, q, "west_lon <= -3.1")
	assert.Contains(t, q, "east_lon >= -3.5")
	assert.Contains(t, q, "north_lat >= 50.2")
	assert.Contains(t, q, "south_lat <= 50.5")
	assert.Contains(t, q, `NOT REGEXP_CONTAINS(granule_id, "S2A_OPER")`)

	item := items[0]
	assert.Equal(t, "L1C_T30UVA_A014758_20200103T111336", item.ID)
	assert.Equal(t, bands.Sentinel2, item.Constellation)
	assert.Equal(t, time.Date(2020, 1, 3, 11, 13, 39, 0, time.UTC), item.SensingTime)
	assert.Equal(t, 12.5, item.CloudCover)
	assert.Equal(t, 32630, item.EPSG)

	// One asset per band, named by the datatake timestamp of the product ID.
	assert.Len(t, item.Assets, 13)
	assert.Equal(t, types.Asset{
		Href: "gs://gcp-public-data-sentinel-2/tiles/30/U/VA/S2B_MSIL1C_20200103T111339_N0208_R137_T30UVA_20200103T121941.SAFE/GRANULE/L1C_T30UVA_A014758_20200103T111336/IMG_DATA/T30UVA_20200103T111339_B04.jp2",
		GSD:  10,
	}, item.Assets["B04"])
	assert.Equal(t, 20.0, item.Assets["B8A"].GSD)

	b := item.Footprint.Bounds()
	assert.Equal(t, -3.5, b.Min.X)
	assert.Equal(t, -3.1, b.Max.X)
	assert.Equal(t, 50.2, b.Min.Y)
	assert.Equal(t, 50.5, b.Max.Y)
}

func TestSearch_Landsat8(t *testing.T) {
	client := &fakeQueryClient{rows: [][]interface{}{{landsatTestRow()}}}
	c := &BigQueryCatalog{client: client}

	items, err := c.Search(context.Background(), searchRegion(), date(2020, time.January, 1), date(2020, time.February, 1), bands.Landsat8)
	require.NoError(t, err)
	require.Len(t, items, 1)

	require.Len(t, client.queries, 1)
	q := client.queries[0]
	assert.Contains(t, q, "`bigquery-public-data.cloud_storage_geo_index.landsat_index`")
	assert.Contains(t, q, `spacecraft_id = "LANDSAT_8"`)
	assert.Contains(t, q, `data_type = "L1TP"`)
	assert.Contains(t, q, `sensor_id = "OLI_TIRS"`)
	assert.NotContains(t, q, "REGEXP_CONTAINS")

	item := items[0]
	assert.Equal(t, "LC82020242020005LGN00", item.ID)
	assert.Equal(t, bands.Landsat8, item.Constellation)
	assert.Equal(t, 32630, item.EPSG)

	// Eleven spectral bands plus the quality band.
	assert.Len(t, item.Assets, 12)
	assert.Equal(t, types.Asset{
		Href: "gs://gcp-public-data-landsat/LC08/01/202/024/LC08_L1TP_202024_20200105_20200113_01_T1/LC08_L1TP_202024_20200105_20200113_01_T1_B4.TIF",
		GSD:  30,
	}, item.Assets["B4"])
	assert.Equal(t, 15.0, item.Assets["B8"].GSD)
	assert.Equal(t, types.Asset{
		Href: "gs://gcp-public-data-landsat/LC08/01/202/024/LC08_L1TP_202024_20200105_20200113_01_T1/LC08_L1TP_202024_20200105_20200113_01_T1_BQA.TIF",
		GSD:  30,
	}, item.Assets["BQA"])
}

func TestSearch_LandsatSensorFilters(t *testing.T) {
	test := func(constellation, spacecraft, sensor string) {
		t.Run(constellation, func(t *testing.T) {
			client := &fakeQueryClient{}
			c := &BigQueryCatalog{client: client}
			_, err := c.Search(context.Background(), searchRegion(), date(2020, time.January, 1), date(2020, time.February, 1), constellation)
			require.NoError(t, err)
			require.Len(t, client.queries, 1)
			assert.Contains(t, client.queries[0], fmt.Sprintf("spacecraft_id = %q", spacecraft))
			assert.Contains(t, client.queries[0], fmt.Sprintf("sensor_id = %q", sensor))
		})
	}
	test(bands.Landsat5, "LANDSAT_5", "TM")
	test(bands.Landsat7, "LANDSAT_7", "ETM")
	test(bands.Landsat8, "LANDSAT_8", "OLI_TIRS")
}

func TestSearch_DeduplicatesByProductID(t *testing.T) {
	first := sentinelTestRow()
	// A reprocessed duplicate of the same product under another granule ID.
	second := sentinelTestRow()
	second.GranuleID = "L1C_T30UVA_A014759_20200103T111336"

	client := &fakeQueryClient{rows: [][]interface{}{{first, second}}}
	c := &BigQueryCatalog{client: client}

	items, err := c.Search(context.Background(), searchRegion(), date(2020, time.January, 1), date(2020, time.February, 1), bands.Sentinel2)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, first.GranuleID, items[0].ID)
}

func TestSearch_MultipolygonQueriesEachPart(t *testing.T) {
	capeTown := geom.Polygon{{
		{X: 18.3, Y: -34.2},
		{X: 18.6, Y: -34.2},
		{X: 18.6, Y: -33.9},
		{X: 18.3, Y: -33.9},
	}}
	region := geom.MultiPolygon{searchRegion(), capeTown}

	// The same product shows up in both bounding-box queries; it must only
	// be reported once.
	client := &fakeQueryClient{rows: [][]interface{}{
		{sentinelTestRow()},
		{sentinelTestRow()},
	}}
	c := &BigQueryCatalog{client: client}

	items, err := c.Search(context.Background(), region, date(2020, time.January, 1), date(2020, time.February, 1), bands.Sentinel2)
	require.NoError(t, err)
	require.Len(t, client.queries, 2)
	assert.Contains(t, client.queries[0], "west_lon <= -3.1")
	assert.Contains(t, client.queries[1], "west_lon <= 18.6")
	assert.Contains(t, client.queries[1], "north_lat >= -34.2")
	require.Len(t, items, 1)
}

func TestSearch_SortsBySensingTime(t *testing.T) {
	late := sentinelTestRow()
	early := sentinelTestRow()
	early.GranuleID = "L1C_T30UVA_A014601_20200101T112345"
	early.ProductID = "S2B_MSIL1C_20200101T112345_N0208_R137_T30UVA_20200101T121941"
	early.SensingTime = time.Date(2020, 1, 1, 11, 23, 45, 0, time.UTC)

	client := &fakeQueryClient{rows: [][]interface{}{{late, early}}}
	c := &BigQueryCatalog{client: client}

	items, err := c.Search(context.Background(), searchRegion(), date(2020, time.January, 1), date(2020, time.February, 1), bands.Sentinel2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, early.GranuleID, items[0].ID)
	assert.Equal(t, late.GranuleID, items[1].ID)
}

func TestSearch_SouthernHemisphereEPSG(t *testing.T) {
	row := landsatTestRow()
	row.NorthLat = -33.9
	row.SouthLat = -34.2
	row.WestLon = 18.3
	row.EastLon = 18.6

	client := &fakeQueryClient{rows: [][]interface{}{{row}}}
	c := &BigQueryCatalog{client: client}

	items, err := c.Search(context.Background(), searchRegion(), date(2020, time.January, 1), date(2020, time.February, 1), bands.Landsat8)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 32734, items[0].EPSG)
}

func TestSearch_UnknownConstellation(t *testing.T) {
	c := &BigQueryCatalog{client: &fakeQueryClient{}}
	_, err := c.Search(context.Background(), searchRegion(), date(2020, time.January, 1), date(2020, time.February, 1), "sentinel-9")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrInvalidArgument))
}

func TestSearch_EmptyResultIsNotAnError(t *testing.T) {
	c := &BigQueryCatalog{client: &fakeQueryClient{}}
	items, err := c.Search(context.Background(), searchRegion(), date(2020, time.January, 1), date(2020, time.February, 1), bands.Sentinel2)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestSearch_QueryError(t *testing.T) {
	c := &BigQueryCatalog{client: &fakeQueryClient{err: fmt.Errorf("quota exceeded")}}
	_, err := c.Search(context.Background(), searchRegion(), date(2020, time.January, 1), date(2020, time.February, 1), bands.Sentinel2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestSearch_MalformedProductID(t *testing.T) {
	row := sentinelTestRow()
	row.ProductID = "NOT-A-PRODUCT-ID"

	client := &fakeQueryClient{rows: [][]interface{}{{row}}}
	c := &BigQueryCatalog{client: client}

	_, err := c.Search(context.Background(), searchRegion(), date(2020, time.January, 1), date(2020, time.February, 1), bands.Sentinel2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrDataCorruption))
}

// fakeQueryClient implements queryClient, recording query text and replaying
// one canned row batch per query.
type fakeQueryClient struct {
	queries []string
	rows    [][]interface{}
	err     error
}

func (f *fakeQueryClient) Query(ctx context.Context, q string) (rowIterator, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	idx := len(f.queries) - 1
	if idx >= len(f.rows) {
		return &fakeRowIterator{}, nil
	}
	return &fakeRowIterator{rows: f.rows[idx]}, nil
}

// fakeRowIterator implements rowIterator over canned rows.
type fakeRowIterator struct {
	rows []interface{}
	next int
}

func (f *fakeRowIterator) Next(dst interface{}) error {
	if f.next >= len(f.rows) {
		return iterator.Done
	}
	row := f.rows[f.next]
	f.next++
	switch d := dst.(type) {
	case *sentinelRow:
		*d = row.(sentinelRow)
	case *landsatRow:
		*d = row.(landsatRow)
	default:
		return fmt.Errorf("unexpected row type %T", dst)
	}
	return nil
}

var _ queryClient = (*fakeQueryClient)(nil)
var _ rowIterator = (*fakeRowIterator)(nil)
