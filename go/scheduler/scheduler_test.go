package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eocube/eocube/go/types"
	"github.com/eocube/eocube/go/zarr"
)

// Test tiles are 10 km squares in UTM zone 30 north, around 50.6N 1.8W.
// tileA and tileB share the 100 km split square [500000, 600000); tileC
// falls in the next square east.
var (
	tileA = schedTile(580000, 5610000)
	tileB = schedTile(590000, 5610000)
	tileC = schedTile(610000, 5610000)
)

func schedTile(minX, minY float64) types.Tile {
	return types.Tile{
		Zone: 30,
		Row:  "U",
		EPSG: 32630,
		MinX: minX,
		MinY: minY,
		MaxX: minX + 10000,
		MaxY: minY + 10000,
	}
}

func box(w, s, e, n float64) geom.Polygonal {
	return geom.Polygon{{
		{X: w, Y: s}, {X: e, Y: s}, {X: e, Y: n}, {X: w, Y: n},
	}}
}

// wideFootprint covers all three test tiles with room to spare.
func wideFootprint() geom.Polygonal {
	return box(-2.5, 50.3, -1.0, 51.0)
}

// westFootprint covers tileA but stops short of tileB's eastern edge.
func westFootprint() geom.Polygonal {
	return box(-2.0, 50.5, -1.70, 50.8)
}

func item(id, constellation string, ts time.Time, fp geom.Polygonal) types.CatalogItem {
	return types.CatalogItem{
		ID:            id,
		Constellation: constellation,
		SensingTime:   ts,
		Footprint:     fp,
		EPSG:          32630,
	}
}

func TestSchedule_EmitsPerClusterWindowBand(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2020, 1, 1, 10, 0, 0, 0, time.UTC)
	items := types.ItemCollection{
		item("scene-1", "sentinel-2", t0, wideFootprint()),
		item("scene-2", "sentinel-2", t0.AddDate(0, 0, 11), wideFootprint()),
	}

	tasks, err := Schedule(ctx, nil, []types.Tile{tileA, tileB, tileC}, items, []string{"sentinel-2"}, []string{"B04", "B08"}, 5, 100000, true, 4)
	require.NoError(t, err)

	// Two scenes land in revisit windows 1 and 3 of three; each window
	// emits two clusters x two bands.
	require.Len(t, tasks, 8)
	for i, task := range tasks {
		assert.Equal(t, []string{"0", "1", "2", "3", "4", "5", "6", "7"}[i], task.TaskID)
		assert.Equal(t, "sentinel-2", task.Constellation)
		require.NoError(t, task.Validate())
	}

	first := tasks[0]
	assert.Equal(t, []types.Tile{tileA, tileB}, first.Tiles)
	assert.Equal(t, "B04", first.Band)
	assert.True(t, first.SensingTime.Equal(t0))
	require.Len(t, first.ItemCollection, 1)
	assert.Equal(t, "scene-1", first.ItemCollection[0].ID)
	assert.Equal(t, "B08", tasks[1].Band)
	assert.Equal(t, []types.Tile{tileC}, tasks[2].Tiles)

	// The second scene's window starts 10 days in, not at the scene time.
	late := tasks[4]
	assert.True(t, late.SensingTime.Equal(t0.AddDate(0, 0, 10)))
	require.Len(t, late.ItemCollection, 1)
	assert.Equal(t, "scene-2", late.ItemCollection[0].ID)
}

func TestSchedule_PartialCoverageDropsTiles(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	items := types.ItemCollection{item("scene-1", "sentinel-2", t0, westFootprint())}

	tasks, err := Schedule(ctx, nil, []types.Tile{tileA, tileB}, items, []string{"sentinel-2"}, []string{"B04"}, 5, 100000, true, 4)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, []types.Tile{tileA}, tasks[0].Tiles)
}

func TestSchedule_NoCoverageEmitsNothing(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	// The scene intersects tileA without containing it.
	items := types.ItemCollection{item("scene-1", "sentinel-2", t0, box(-2.0, 50.5, -1.80, 50.8))}

	tasks, err := Schedule(ctx, nil, []types.Tile{tileA}, items, []string{"sentinel-2"}, []string{"B04"}, 5, 100000, true, 4)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestSchedule_RequestedBandsKeepTableOrder(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	items := types.ItemCollection{item("scene-1", "sentinel-2", t0, wideFootprint())}

	tasks, err := Schedule(ctx, nil, []types.Tile{tileA}, items, []string{"sentinel-2"}, []string{"B08", "B04"}, 5, 100000, true, 4)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "B04", tasks[0].Band)
	assert.Equal(t, "B08", tasks[1].Band)
}

func TestSchedule_MixedConstellations(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	items := types.ItemCollection{
		item("s2-scene", "sentinel-2", t0, wideFootprint()),
		item("l8-scene", "landsat-8", t0, wideFootprint()),
	}

	tasks, err := Schedule(ctx, nil, []types.Tile{tileA}, items, []string{"sentinel-2", "landsat-8"}, nil, 5, 100000, true, 4)
	require.NoError(t, err)

	// Full band tables: 13 Sentinel-2 tasks then 11 Landsat-8 tasks, with
	// one id sequence across constellations.
	require.Len(t, tasks, 24)
	assert.Equal(t, "sentinel-2", tasks[0].Constellation)
	assert.Equal(t, "B01", tasks[0].Band)
	require.Len(t, tasks[0].ItemCollection, 1)
	assert.Equal(t, "s2-scene", tasks[0].ItemCollection[0].ID)
	assert.Equal(t, "landsat-8", tasks[13].Constellation)
	assert.Equal(t, "B1", tasks[13].Band)
	assert.Equal(t, "13", tasks[13].TaskID)
	require.Len(t, tasks[13].ItemCollection, 1)
	assert.Equal(t, "l8-scene", tasks[13].ItemCollection[0].ID)
}

func TestSchedule_SkipsAlreadyExtracted(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2020, 1, 1, 10, 0, 0, 0, time.UTC)
	store := zarr.NewMemStore()
	require.NoError(t, zarr.WriteTimestamps(ctx, store, tileA.ID()+"/sentinel-2/timestamps", []time.Time{t0}))

	items := types.ItemCollection{
		item("scene-1", "sentinel-2", t0, wideFootprint()),
		item("scene-2", "sentinel-2", t0.AddDate(0, 0, 6), wideFootprint()),
	}
	tasks, err := Schedule(ctx, store, []types.Tile{tileA}, items, []string{"sentinel-2"}, []string{"B04"}, 5, 100000, false, 4)
	require.NoError(t, err)

	// The first window is already in the archive; the survivor keeps its
	// original id.
	require.Len(t, tasks, 1)
	assert.Equal(t, "1", tasks[0].TaskID)
	assert.True(t, tasks[0].SensingTime.Equal(t0.AddDate(0, 0, 5)))
}

func TestSchedule_MissingArchiveCountsAsNotExtracted(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2020, 1, 1, 10, 0, 0, 0, time.UTC)
	items := types.ItemCollection{item("scene-1", "sentinel-2", t0, wideFootprint())}

	tasks, err := Schedule(ctx, zarr.NewMemStore(), []types.Tile{tileA}, items, []string{"sentinel-2"}, []string{"B04"}, 5, 100000, false, 4)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestSchedule_CorruptTimestampsCountAsNotExtracted(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2020, 1, 1, 10, 0, 0, 0, time.UTC)
	store := zarr.NewMemStore()
	require.NoError(t, store.Set(ctx, tileA.ID()+"/sentinel-2/timestamps/.zarray", []byte("not json")))

	items := types.ItemCollection{item("scene-1", "sentinel-2", t0, wideFootprint())}
	tasks, err := Schedule(ctx, store, []types.Tile{tileA}, items, []string{"sentinel-2"}, []string{"B04"}, 5, 100000, false, 4)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestSchedule_EmptyInputs(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2020, 1, 1, 10, 0, 0, 0, time.UTC)

	tasks, err := Schedule(ctx, nil, nil, types.ItemCollection{item("scene-1", "sentinel-2", t0, wideFootprint())}, []string{"sentinel-2"}, nil, 5, 100000, true, 4)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	tasks, err = Schedule(ctx, nil, []types.Tile{tileA}, nil, []string{"sentinel-2"}, nil, 5, 100000, true, 4)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestSchedule_TilesOutsideSplitGridAreDropped(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2020, 1, 1, 10, 0, 0, 0, time.UTC)
	items := types.ItemCollection{item("scene-1", "sentinel-2", t0, wideFootprint())}

	// 15 km split squares never contain a grid-aligned 10 km tile.
	tasks, err := Schedule(ctx, nil, []types.Tile{tileA}, items, []string{"sentinel-2"}, nil, 5, 15000, true, 4)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestSchedule_InvalidArguments(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2020, 1, 1, 10, 0, 0, 0, time.UTC)
	tiles := []types.Tile{tileA}
	items := types.ItemCollection{item("scene-1", "sentinel-2", t0, wideFootprint())}

	_, err := Schedule(ctx, nil, tiles, items, []string{"modis"}, nil, 5, 100000, true, 4)
	require.ErrorIs(t, err, types.ErrInvalidArgument)

	_, err = Schedule(ctx, nil, tiles, items, []string{"sentinel-2"}, []string{"B99"}, 5, 100000, true, 4)
	require.ErrorIs(t, err, types.ErrInvalidArgument)

	_, err = Schedule(ctx, nil, tiles, items, []string{"sentinel-2"}, nil, 0, 100000, true, 4)
	require.ErrorIs(t, err, types.ErrInvalidArgument)

	_, err = Schedule(ctx, nil, tiles, items, []string{"sentinel-2"}, nil, 5, -1, true, 4)
	require.ErrorIs(t, err, types.ErrInvalidArgument)

	_, err = Schedule(ctx, nil, tiles, items, []string{"sentinel-2"}, nil, 5, 100000, false, 4)
	require.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestSchedule_BandForOtherConstellationIsNotAnError(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	items := types.ItemCollection{
		item("s2-scene", "sentinel-2", t0, wideFootprint()),
		item("l8-scene", "landsat-8", t0, wideFootprint()),
	}

	// B8A exists for Sentinel-2 only, so Landsat-8 contributes no tasks.
	tasks, err := Schedule(ctx, nil, []types.Tile{tileA}, items, []string{"sentinel-2", "landsat-8"}, []string{"B8A"}, 5, 100000, true, 4)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "sentinel-2", tasks[0].Constellation)
	assert.Equal(t, "B8A", tasks[0].Band)
}
