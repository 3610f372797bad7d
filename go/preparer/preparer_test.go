package preparer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eocube/eocube/go/types"
	"github.com/eocube/eocube/go/zarr"
)

var (
	t1 = time.Date(2020, 1, 1, 10, 30, 0, 0, time.UTC)
	t2 = time.Date(2020, 1, 11, 10, 30, 0, 0, time.UTC)
	t3 = time.Date(2020, 1, 21, 10, 30, 0, 0, time.UTC)
)

// testTile returns a 40 m tile; with sentinel-2's 10 m minimum GSD and a
// patch size of 40 the slots are 4x4 px.
func testTile(minX float64) types.Tile {
	return types.Tile{
		Zone: 30,
		Row:  "U",
		EPSG: 32630,
		MinX: minX,
		MinY: 5500000,
		MaxX: minX + 40,
		MaxY: 5500040,
	}
}

func TestSensingTimesFromTasks(t *testing.T) {
	tileA := testTile(300000)
	tileB := testTile(300040)
	tasks := []types.ExtractionTask{
		{TaskID: "0", Tiles: []types.Tile{tileA, tileB}, Band: "B02", Constellation: "sentinel-2", SensingTime: t2},
		{TaskID: "1", Tiles: []types.Tile{tileA}, Band: "B02", Constellation: "sentinel-2", SensingTime: t1},
		// One task per band duplicates the bucket instant.
		{TaskID: "2", Tiles: []types.Tile{tileA}, Band: "B03", Constellation: "sentinel-2", SensingTime: t1},
		{TaskID: "3", Tiles: []types.Tile{tileA}, Band: "B4", Constellation: "landsat-8", SensingTime: t3},
	}

	got := SensingTimesFromTasks([]types.Tile{tileA, tileB}, []string{"sentinel-2", "landsat-8"}, tasks)

	assert.Equal(t, []time.Time{t1, t2}, got[tileA.ID()]["sentinel-2"])
	assert.Equal(t, []time.Time{t2}, got[tileB.ID()]["sentinel-2"])
	assert.Equal(t, []time.Time{t3}, got[tileA.ID()]["landsat-8"])
	assert.Empty(t, got[tileB.ID()]["landsat-8"])
}

func TestPrepare_OverwriteCreatesFreshArchive(t *testing.T) {
	ctx := context.Background()
	store := zarr.NewMemStore()
	tile := testTile(300000)
	times := SensingTimes{tile.ID(): {"sentinel-2": {t1, t2}}}

	require.NoError(t, Prepare(ctx, store, []types.Tile{tile}, []string{"sentinel-2"}, 40, 4, times, true, 1))

	root := tile.ID() + "/sentinel-2"
	data, err := zarr.Open(ctx, store, root+"/data")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 13, 4, 4}, data.Shape())
	assert.Equal(t, []int{1, 1, 4, 4}, data.Chunks())
	assert.Equal(t, "<u2", data.Dtype())

	stored, err := zarr.ReadTimestamps(ctx, store, root+"/timestamps")
	require.NoError(t, err)
	assert.Equal(t, []time.Time{t1, t2}, stored)

	// Group markers exist for the tile and the constellation.
	ok, err := store.Exists(ctx, tile.ID()+"/.zgroup")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.Exists(ctx, root+"/.zgroup")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPrepare_EmptySensingTimesWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := zarr.NewMemStore()
	tile := testTile(300000)

	require.NoError(t, Prepare(ctx, store, []types.Tile{tile}, []string{"sentinel-2"}, 40, 4, SensingTimes{}, true, 1))

	keys, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestPrepare_AppendGrowsArchive(t *testing.T) {
	ctx := context.Background()
	store := zarr.NewMemStore()
	tile := testTile(300000)
	root := tile.ID() + "/sentinel-2"

	require.NoError(t, Prepare(ctx, store, []types.Tile{tile}, []string{"sentinel-2"}, 40, 4, SensingTimes{tile.ID(): {"sentinel-2": {t1}}}, true, 1))

	// Fill the first slot, and plant a mask array to be tracked.
	data, err := zarr.Open(ctx, store, root+"/data")
	require.NoError(t, err)
	written := make([]uint16, 16)
	for i := range written {
		written[i] = uint16(i + 1)
	}
	require.NoError(t, data.WriteSlot(ctx, 0, 0, written))
	_, err = zarr.Create(ctx, store, root+"/mask/clouds", []int{1, 4, 4}, []int{1, 4, 4}, "<u1")
	require.NoError(t, err)

	require.NoError(t, Prepare(ctx, store, []types.Tile{tile}, []string{"sentinel-2"}, 40, 4, SensingTimes{tile.ID(): {"sentinel-2": {t2, t3}}}, false, 1))

	stored, err := zarr.ReadTimestamps(ctx, store, root+"/timestamps")
	require.NoError(t, err)
	assert.Equal(t, []time.Time{t1, t2, t3}, stored)

	data, err = zarr.Open(ctx, store, root+"/data")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 13, 4, 4}, data.Shape())
	kept, err := data.ReadSlot(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, written, kept)

	mask, err := zarr.Open(ctx, store, root+"/mask/clouds")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 4}, mask.Shape())
}

func TestPrepare_AppendOlderTimesUnions(t *testing.T) {
	ctx := context.Background()
	store := zarr.NewMemStore()
	tile := testTile(300000)
	root := tile.ID() + "/sentinel-2"

	require.NoError(t, Prepare(ctx, store, []types.Tile{tile}, []string{"sentinel-2"}, 40, 4, SensingTimes{tile.ID(): {"sentinel-2": {t2}}}, true, 1))
	// Re-running over an earlier window warns but proceeds with the union.
	require.NoError(t, Prepare(ctx, store, []types.Tile{tile}, []string{"sentinel-2"}, 40, 4, SensingTimes{tile.ID(): {"sentinel-2": {t1, t2}}}, false, 1))

	stored, err := zarr.ReadTimestamps(ctx, store, root+"/timestamps")
	require.NoError(t, err)
	assert.Equal(t, []time.Time{t1, t2}, stored)

	data, err := zarr.Open(ctx, store, root+"/data")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 13, 4, 4}, data.Shape())
}

func TestPrepare_AppendWithMissingDataCreatesIt(t *testing.T) {
	ctx := context.Background()
	store := zarr.NewMemStore()
	tile := testTile(300000)
	root := tile.ID() + "/sentinel-2"

	require.NoError(t, zarr.WriteTimestamps(ctx, store, root+"/timestamps", []time.Time{t1}))

	require.NoError(t, Prepare(ctx, store, []types.Tile{tile}, []string{"sentinel-2"}, 40, 4, SensingTimes{tile.ID(): {"sentinel-2": {t2}}}, false, 1))

	data, err := zarr.Open(ctx, store, root+"/data")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 13, 4, 4}, data.Shape())
}

func TestPrepare_CorruptTimestampsTreatedAsEmpty(t *testing.T) {
	ctx := context.Background()
	store := zarr.NewMemStore()
	tile := testTile(300000)
	root := tile.ID() + "/sentinel-2"

	require.NoError(t, store.Set(ctx, root+"/timestamps/.zarray", []byte("not json")))

	require.NoError(t, Prepare(ctx, store, []types.Tile{tile}, []string{"sentinel-2"}, 40, 4, SensingTimes{tile.ID(): {"sentinel-2": {t1}}}, false, 1))

	stored, err := zarr.ReadTimestamps(ctx, store, root+"/timestamps")
	require.NoError(t, err)
	assert.Equal(t, []time.Time{t1}, stored)
}

func TestPrepare_InvalidArguments(t *testing.T) {
	ctx := context.Background()
	store := zarr.NewMemStore()
	tile := testTile(300000)
	times := SensingTimes{tile.ID(): {"sentinel-2": {t1}}}

	err := Prepare(ctx, store, []types.Tile{tile}, []string{"sentinel-9"}, 40, 4, times, true, 1)
	assert.True(t, errors.Is(err, types.ErrInvalidArgument))

	err = Prepare(ctx, store, []types.Tile{tile}, []string{"sentinel-2"}, 0, 4, times, true, 1)
	assert.True(t, errors.Is(err, types.ErrInvalidArgument))

	err = Prepare(ctx, store, []types.Tile{tile}, []string{"sentinel-2"}, 40, 0, times, true, 1)
	assert.True(t, errors.Is(err, types.ErrInvalidArgument))
}

func TestSortUnique(t *testing.T) {
	assert.Nil(t, sortUnique(nil))
	assert.Equal(t, []time.Time{t1, t2, t3}, sortUnique([]time.Time{t3, t1, t2, t1, t3}))
}
