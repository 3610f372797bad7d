package tiler

import (
	"encoding/json"
	"io"

	"github.com/paulmach/orb/geojson"

	"github.com/eocube/eocube/go/geo"
	"github.com/eocube/eocube/go/skerr"
	"github.com/eocube/eocube/go/types"
	"github.com/eocube/eocube/go/util"
)

// SaveTiles writes tiles to path as a GeoJSON FeatureCollection. The
// feature geometry is the tile outline in WGS84 so the file opens in GIS
// tools; the UTM corner coordinates under properties are what LoadTiles
// reads back.
func SaveTiles(path string, tiles []types.Tile) error {
	fc := geojson.NewFeatureCollection()
	for _, t := range tiles {
		footprint, err := t.FootprintWGS84()
		if err != nil {
			return skerr.Wrap(err)
		}
		f := geojson.NewFeature(geo.ToOrb(footprint))
		f.ID = t.ID()
		f.Properties = geojson.Properties{
			"zone":  t.Zone,
			"row":   t.Row,
			"epsg":  t.EPSG,
			"min_x": t.MinX,
			"min_y": t.MinY,
			"max_x": t.MaxX,
			"max_y": t.MaxY,
		}
		fc.Append(f)
	}
	err := util.WithWriteFile(path, func(w io.Writer) error {
		return json.NewEncoder(w).Encode(fc)
	})
	if err != nil {
		return skerr.Wrapf(err, "writing tiles to %s", path)
	}
	return nil
}

// LoadTiles reads a tile list written by SaveTiles.
func LoadTiles(path string) ([]types.Tile, error) {
	var fc geojson.FeatureCollection
	err := util.WithReadFile(path, func(r io.Reader) error {
		return json.NewDecoder(r).Decode(&fc)
	})
	if err != nil {
		return nil, skerr.Wrapf(err, "reading tiles from %s", path)
	}
	tiles := make([]types.Tile, 0, len(fc.Features))
	for _, f := range fc.Features {
		t := types.Tile{
			Zone: f.Properties.MustInt("zone", 0),
			Row:  f.Properties.MustString("row", ""),
			EPSG: f.Properties.MustInt("epsg", 0),
			MinX: f.Properties.MustFloat64("min_x", 0),
			MinY: f.Properties.MustFloat64("min_y", 0),
			MaxX: f.Properties.MustFloat64("max_x", 0),
			MaxY: f.Properties.MustFloat64("max_y", 0),
		}
		if err := t.Validate(); err != nil {
			return nil, skerr.Wrapf(err, "tile %v in %s", f.ID, path)
		}
		tiles = append(tiles, t)
	}
	return tiles, nil
}
