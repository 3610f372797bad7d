package types

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/ctessum/geom"
	"github.com/paulmach/orb/geojson"

	"github.com/eocube/eocube/go/geo"
	"github.com/eocube/eocube/go/skerr"
)

// Asset is one downloadable raster belonging to a catalog item.
type Asset struct {
	Href string `json:"href"`
	// GSD is the ground sample distance of this asset in meters, if known.
	GSD float64 `json:"gsd,omitempty"`
}

// CatalogItem is one source scene found in the imagery catalog. Items
// serialize as GeoJSON Features with the footprint as geometry and the
// scalar fields under properties.
type CatalogItem struct {
	ID            string
	Constellation string
	// SensingTime is the scene acquisition instant, UTC.
	SensingTime time.Time
	// Footprint is the scene outline in WGS84 lon/lat.
	Footprint geom.Polygonal
	// Assets maps band name to that band's raster asset.
	Assets     map[string]Asset
	CloudCover float64
	// EPSG identifies the native projection of the scene's rasters.
	EPSG int
}

func (i CatalogItem) feature() *geojson.Feature {
	f := geojson.NewFeature(geo.ToOrb(i.Footprint))
	f.ID = i.ID
	f.Properties = geojson.Properties{
		"datetime":       i.SensingTime.UTC().Format(time.RFC3339Nano),
		"constellation":  i.Constellation,
		"eo:cloud_cover": i.CloudCover,
		"proj:epsg":      i.EPSG,
		"assets":         i.Assets,
	}
	return f
}

func itemFromFeature(f *geojson.Feature) (CatalogItem, error) {
	item := CatalogItem{}
	if id, ok := f.ID.(string); ok {
		item.ID = id
	}
	footprint, err := geo.PolygonalFromOrb(f.Geometry)
	if err != nil {
		return item, skerr.Wrapf(err, "item %q has an unusable footprint", item.ID)
	}
	item.Footprint = footprint
	item.Constellation = f.Properties.MustString("constellation", "")
	item.CloudCover = f.Properties.MustFloat64("eo:cloud_cover", 0)
	item.EPSG = f.Properties.MustInt("proj:epsg", 0)
	if ts := f.Properties.MustString("datetime", ""); ts != "" {
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return item, skerr.Wrapf(err, "item %q has a malformed datetime", item.ID)
		}
		item.SensingTime = t.UTC()
	}
	if assets, ok := f.Properties["assets"]; ok {
		b, err := json.Marshal(assets)
		if err != nil {
			return item, skerr.Wrap(err)
		}
		if err := json.Unmarshal(b, &item.Assets); err != nil {
			return item, skerr.Wrapf(err, "item %q has malformed assets", item.ID)
		}
	}
	return item, nil
}

// MarshalJSON writes the item in its GeoJSON Feature form.
func (i CatalogItem) MarshalJSON() ([]byte, error) {
	return i.feature().MarshalJSON()
}

// UnmarshalJSON reads the item from its GeoJSON Feature form.
func (i *CatalogItem) UnmarshalJSON(data []byte) error {
	f, err := geojson.UnmarshalFeature(data)
	if err != nil {
		return skerr.Wrap(err)
	}
	item, err := itemFromFeature(f)
	if err != nil {
		return skerr.Wrap(err)
	}
	*i = item
	return nil
}

// ItemCollection is a set of catalog items, serialized as a GeoJSON
// FeatureCollection.
type ItemCollection []CatalogItem

// MarshalJSON writes the collection in its GeoJSON FeatureCollection form.
func (ic ItemCollection) MarshalJSON() ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	for _, item := range ic {
		fc.Append(item.feature())
	}
	return fc.MarshalJSON()
}

// UnmarshalJSON reads the collection from its GeoJSON FeatureCollection
// form.
func (ic *ItemCollection) UnmarshalJSON(data []byte) error {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return skerr.Wrap(err)
	}
	items := make(ItemCollection, 0, len(fc.Features))
	for _, f := range fc.Features {
		item, err := itemFromFeature(f)
		if err != nil {
			return skerr.Wrap(err)
		}
		items = append(items, item)
	}
	*ic = items
	return nil
}

// SortBySensingTime orders items oldest first. Ties are broken by ID so
// downstream mosaic order is deterministic.
func (ic ItemCollection) SortBySensingTime() {
	sort.Slice(ic, func(a, b int) bool {
		if ic[a].SensingTime.Equal(ic[b].SensingTime) {
			return ic[a].ID < ic[b].ID
		}
		return ic[a].SensingTime.Before(ic[b].SensingTime)
	})
}

// SensingTimeRange returns the earliest and latest sensing times in the
// collection. ok is false when the collection is empty.
func (ic ItemCollection) SensingTimeRange() (start, end time.Time, ok bool) {
	if len(ic) == 0 {
		return time.Time{}, time.Time{}, false
	}
	start, end = ic[0].SensingTime, ic[0].SensingTime
	for _, item := range ic[1:] {
		if item.SensingTime.Before(start) {
			start = item.SensingTime
		}
		if item.SensingTime.After(end) {
			end = item.SensingTime
		}
	}
	return start, end, true
}

// FilterConstellation returns the items observed by the given constellation.
func (ic ItemCollection) FilterConstellation(constellation string) ItemCollection {
	var out ItemCollection
	for _, item := range ic {
		if item.Constellation == constellation {
			out = append(out, item)
		}
	}
	return out
}

// Constellations returns the sorted set of constellations present in the
// collection.
func (ic ItemCollection) Constellations() []string {
	seen := map[string]bool{}
	for _, item := range ic {
		seen[item.Constellation] = true
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// UnionFootprint returns the union of all item footprints in WGS84, or nil
// for an empty collection.
func (ic ItemCollection) UnionFootprint() geom.Polygonal {
	var union geom.Polygonal
	for _, item := range ic {
		if item.Footprint == nil {
			continue
		}
		if union == nil {
			union = item.Footprint
		} else {
			union = union.Union(item.Footprint)
		}
	}
	return union
}
