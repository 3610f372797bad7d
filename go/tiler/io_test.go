package tiler

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eocube/eocube/go/types"
)

func TestSaveLoadTiles_RoundTrip(t *testing.T) {
	tiles := []types.Tile{
		{Zone: 30, Row: "U", EPSG: 32630, MinX: 580000, MinY: 5610000, MaxX: 590000, MaxY: 5620000},
		{Zone: 30, Row: "U", EPSG: 32630, MinX: 590000, MinY: 5610000, MaxX: 600000, MaxY: 5620000},
	}
	path := filepath.Join(t.TempDir(), "tiles.geojson")

	require.NoError(t, SaveTiles(path, tiles))

	// On disk the tiles are a GeoJSON FeatureCollection keyed by tile id.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var fc geojson.FeatureCollection
	require.NoError(t, json.Unmarshal(raw, &fc))
	require.Len(t, fc.Features, 2)
	assert.Equal(t, "30_U_10000_58_561", fc.Features[0].ID)
	assert.NotNil(t, fc.Features[0].Geometry)

	loaded, err := LoadTiles(path)
	require.NoError(t, err)
	assert.Equal(t, tiles, loaded)
}

func TestLoadTiles_RejectsMalformedTile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiles.geojson")
	fc := geojson.NewFeatureCollection()
	f := geojson.NewFeature(nil)
	f.Properties = geojson.Properties{
		"zone": 30, "row": "U", "epsg": 32630,
		"min_x": 590000.0, "min_y": 5610000.0, "max_x": 580000.0, "max_y": 5620000.0,
	}
	fc.Append(f)
	b, err := json.Marshal(fc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0644))

	_, err = LoadTiles(path)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestLoadTiles_MissingFile(t *testing.T) {
	_, err := LoadTiles(filepath.Join(t.TempDir(), "nope.geojson"))
	require.Error(t, err)
}
