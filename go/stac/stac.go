// Package stac finds source scenes in the public Google Cloud imagery
// catalogs. Scenes come back as CatalogItems with per-band asset URLs
// reconstructed from the constellation's bucket layout.
package stac

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/ctessum/geom"
	"golang.org/x/oauth2"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/eocube/eocube/go/bands"
	"github.com/eocube/eocube/go/geo"
	"github.com/eocube/eocube/go/skerr"
	"github.com/eocube/eocube/go/types"
)

const (
	// Google's public scene indexes for the Cloud Storage mirrors of the
	// Sentinel-2 and Landsat archives.
	sentinelIndex = "bigquery-public-data.cloud_storage_geo_index.sentinel_2_index"
	landsatIndex  = "bigquery-public-data.cloud_storage_geo_index.landsat_index"

	dateFormat = "2006-01-02"

	// Landsat scenes ship a categorical quality band next to the spectral
	// bands. It is exposed as an asset but is not part of the archive's
	// band axis.
	landsatQABand = "BQA"
	landsatQAGSD  = 30.0
)

// Catalog finds the source scenes covering a region in a time window.
type Catalog interface {
	// Search returns every catalog item of the given constellation whose
	// index bounding box overlaps the region and whose sensing date falls in
	// [start, end], ordered by sensing time. An empty result is not an
	// error.
	Search(ctx context.Context, region geom.Polygonal, start, end time.Time, constellation string) (types.ItemCollection, error)
}

// queryClient abstracts bigquery.Client, used for testing.
type queryClient interface {
	Query(ctx context.Context, q string) (rowIterator, error)
}

// rowIterator abstracts bigquery.RowIterator, used for testing.
type rowIterator interface {
	Next(dst interface{}) error
}

// bqClientWrapper wraps a bigquery.Client to implement queryClient.
type bqClientWrapper struct {
	client *bigquery.Client
}

// Query implements queryClient.
func (w *bqClientWrapper) Query(ctx context.Context, q string) (rowIterator, error) {
	return w.client.Query(q).Read(ctx)
}

// BigQueryCatalog is a Catalog over the public cloud_storage_geo_index
// tables.
type BigQueryCatalog struct {
	client queryClient
}

// NewBigQueryCatalog returns a Catalog which queries the public scene
// indexes, billing the given project. ts may be nil to use application
// default credentials.
func NewBigQueryCatalog(ctx context.Context, project string, ts oauth2.TokenSource) (*BigQueryCatalog, error) {
	opts := []option.ClientOption{}
	if ts != nil {
		opts = append(opts, option.WithTokenSource(ts))
	}
	client, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, skerr.Wrapf(err, "creating BigQuery client for project %s", project)
	}
	return &BigQueryCatalog{client: &bqClientWrapper{client: client}}, nil
}

// sentinelRow is the subset of sentinel_2_index columns the catalog reads.
type sentinelRow struct {
	GranuleID   string    `bigquery:"granule_id"`
	ProductID   string    `bigquery:"product_id"`
	MGRSTile    string    `bigquery:"mgrs_tile"`
	SensingTime time.Time `bigquery:"sensing_time"`
	CloudCover  float64   `bigquery:"cloud_cover"`
	NorthLat    float64   `bigquery:"north_lat"`
	SouthLat    float64   `bigquery:"south_lat"`
	WestLon     float64   `bigquery:"west_lon"`
	EastLon     float64   `bigquery:"east_lon"`
	BaseURL     string    `bigquery:"base_url"`
}

// landsatRow is the subset of landsat_index columns the catalog reads.
type landsatRow struct {
	SceneID     string    `bigquery:"scene_id"`
	ProductID   string    `bigquery:"product_id"`
	SensingTime time.Time `bigquery:"sensing_time"`
	CloudCover  float64   `bigquery:"cloud_cover"`
	NorthLat    float64   `bigquery:"north_lat"`
	SouthLat    float64   `bigquery:"south_lat"`
	WestLon     float64   `bigquery:"west_lon"`
	EastLon     float64   `bigquery:"east_lon"`
	BaseURL     string    `bigquery:"base_url"`
}

// Search implements Catalog. Multipolygon regions issue one query per
// sub-polygon bounding box; results are de-duplicated by product ID, first
// row wins.
func (c *BigQueryCatalog) Search(ctx context.Context, region geom.Polygonal, start, end time.Time, constellation string) (types.ItemCollection, error) {
	if !bands.IsValidConstellation(constellation) {
		return nil, skerr.Wrapf(types.ErrInvalidArgument, "unknown constellation %q", constellation)
	}
	var items types.ItemCollection
	seen := map[string]bool{}
	for _, poly := range region.Polygons() {
		var sub types.ItemCollection
		var err error
		if constellation == bands.Sentinel2 {
			sub, err = c.searchSentinel(ctx, poly.Bounds(), start, end, seen)
		} else {
			sub, err = c.searchLandsat(ctx, poly.Bounds(), start, end, constellation, seen)
		}
		if err != nil {
			return nil, skerr.Wrap(err)
		}
		items = append(items, sub...)
	}
	items.SortBySensingTime()
	return items, nil
}

func (c *BigQueryCatalog) searchSentinel(ctx context.Context, b *geom.Bounds, start, end time.Time, seen map[string]bool) (types.ItemCollection, error) {
	// The S2A_OPER granules are an older naming convention with a different
	// bucket layout; the index carries both generations.
	q := fmt.Sprintf(`SELECT granule_id, product_id, mgrs_tile, sensing_time, cloud_cover, north_lat, south_lat, west_lon, east_lon, base_url
FROM `+"`"+sentinelIndex+"`"+`
WHERE DATE(sensing_time) >= %q AND DATE(sensing_time) <= %q
AND west_lon <= %v AND east_lon >= %v
AND north_lat >= %v AND south_lat <= %v
AND NOT REGEXP_CONTAINS(granule_id, "S2A_OPER")`,
		start.Format(dateFormat), end.Format(dateFormat),
		b.Max.X, b.Min.X, b.Min.Y, b.Max.Y)

	it, err := c.client.Query(ctx, q)
	if err != nil {
		return nil, skerr.Wrapf(err, "querying the Sentinel-2 index")
	}
	var items types.ItemCollection
	for {
		var row sentinelRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, skerr.Wrapf(err, "reading the Sentinel-2 index")
		}
		if seen[row.ProductID] {
			continue
		}
		seen[row.ProductID] = true
		item, err := sentinelItem(row)
		if err != nil {
			return nil, skerr.Wrap(err)
		}
		items = append(items, item)
	}
	return items, nil
}

func (c *BigQueryCatalog) searchLandsat(ctx context.Context, b *geom.Bounds, start, end time.Time, constellation string, seen map[string]bool) (types.ItemCollection, error) {
	props, err := bands.LandsatQueryProperties(constellation)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	spacecraft := strings.ToUpper(strings.ReplaceAll(constellation, "-", "_"))
	q := fmt.Sprintf(`SELECT scene_id, product_id, sensing_time, cloud_cover, north_lat, south_lat, west_lon, east_lon, base_url
FROM `+"`"+landsatIndex+"`"+`
WHERE DATE(sensing_time) >= %q AND DATE(sensing_time) <= %q
AND spacecraft_id = %q
AND data_type = %q
AND sensor_id = %q
AND west_lon <= %v AND east_lon >= %v
AND north_lat >= %v AND south_lat <= %v`,
		start.Format(dateFormat), end.Format(dateFormat),
		spacecraft, props.DataType, props.SensorID,
		b.Max.X, b.Min.X, b.Min.Y, b.Max.Y)

	it, err := c.client.Query(ctx, q)
	if err != nil {
		return nil, skerr.Wrapf(err, "querying the Landsat index")
	}
	var items types.ItemCollection
	for {
		var row landsatRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, skerr.Wrapf(err, "reading the Landsat index")
		}
		if seen[row.ProductID] {
			continue
		}
		seen[row.ProductID] = true
		item, err := landsatItem(row, constellation)
		if err != nil {
			return nil, skerr.Wrap(err)
		}
		items = append(items, item)
	}
	return items, nil
}

// sentinelItem converts an index row to a CatalogItem with one JPEG2000
// asset per band at
// {base_url}/GRANULE/{granule_id}/IMG_DATA/T{mgrs}_{datatake}_{band}.jp2.
func sentinelItem(row sentinelRow) (types.CatalogItem, error) {
	// The datatake sensing time is the third component of the product ID,
	// eg. S2B_MSIL1C_20200103T111339_N0208_R137_T30UVA_20200103T121941.
	parts := strings.Split(row.ProductID, "_")
	if len(parts) < 3 {
		return types.CatalogItem{}, skerr.Wrapf(types.ErrDataCorruption, "malformed Sentinel-2 product_id %q", row.ProductID)
	}
	datatake := parts[2]

	constellationBands, err := bands.Bands(bands.Sentinel2)
	if err != nil {
		return types.CatalogItem{}, skerr.Wrap(err)
	}
	assets := make(map[string]types.Asset, len(constellationBands))
	for _, band := range constellationBands {
		assets[band.Name] = types.Asset{
			Href: fmt.Sprintf("%s/GRANULE/%s/IMG_DATA/T%s_%s_%s.jp2", row.BaseURL, row.GranuleID, row.MGRSTile, datatake, band.Name),
			GSD:  band.GSD,
		}
	}
	return types.CatalogItem{
		ID:            row.GranuleID,
		Constellation: bands.Sentinel2,
		SensingTime:   row.SensingTime.UTC(),
		Footprint:     footprint(row.WestLon, row.SouthLat, row.EastLon, row.NorthLat),
		Assets:        assets,
		CloudCover:    row.CloudCover,
		EPSG:          sceneEPSG(row.WestLon, row.SouthLat, row.EastLon, row.NorthLat),
	}, nil
}

// landsatItem converts an index row to a CatalogItem with one GeoTIFF asset
// per band at {base_url}/{product_id}_{band}.TIF, plus the BQA quality band.
func landsatItem(row landsatRow, constellation string) (types.CatalogItem, error) {
	constellationBands, err := bands.Bands(constellation)
	if err != nil {
		return types.CatalogItem{}, skerr.Wrap(err)
	}
	// The product ID is the final path segment of the base URL.
	segments := strings.Split(row.BaseURL, "/")
	product := segments[len(segments)-1]

	assets := make(map[string]types.Asset, len(constellationBands)+1)
	for _, band := range constellationBands {
		assets[band.Name] = types.Asset{
			Href: fmt.Sprintf("%s/%s_%s.TIF", row.BaseURL, product, band.Name),
			GSD:  band.GSD,
		}
	}
	assets[landsatQABand] = types.Asset{
		Href: fmt.Sprintf("%s/%s_%s.TIF", row.BaseURL, product, landsatQABand),
		GSD:  landsatQAGSD,
	}
	return types.CatalogItem{
		ID:            row.SceneID,
		Constellation: constellation,
		SensingTime:   row.SensingTime.UTC(),
		Footprint:     footprint(row.WestLon, row.SouthLat, row.EastLon, row.NorthLat),
		Assets:        assets,
		CloudCover:    row.CloudCover,
		EPSG:          sceneEPSG(row.WestLon, row.SouthLat, row.EastLon, row.NorthLat),
	}, nil
}

// footprint builds the WGS84 outline from the index bounding box. The index
// stores available-pixel bounds, not exact granule outlines; that is good
// enough for the containment tests downstream.
func footprint(west, south, east, north float64) geom.Polygon {
	return geom.Polygon{{
		{X: west, Y: south},
		{X: east, Y: south},
		{X: east, Y: north},
		{X: west, Y: north},
	}}
}

// sceneEPSG derives the UTM CRS of the scene's rasters from the scene
// center.
func sceneEPSG(west, south, east, north float64) int {
	lat := (south + north) / 2
	lon := (west + east) / 2
	return geo.EPSG(geo.Zone(lat, lon), lat > 0)
}

var _ Catalog = (*BigQueryCatalog)(nil)
var _ queryClient = (*bqClientWrapper)(nil)
