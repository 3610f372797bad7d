package zarr

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eocube/eocube/go/types"
)

func TestFormatTimestamp(t *testing.T) {
	in := time.Date(2020, 1, 3, 11, 13, 39, 123456000, time.UTC)
	assert.Equal(t, "2020-01-03T11:13:39.123456", FormatTimestamp(in))

	// Always microsecond precision, never a zone suffix.
	whole := time.Date(2020, 1, 3, 11, 13, 39, 0, time.UTC)
	assert.Equal(t, "2020-01-03T11:13:39.000000", FormatTimestamp(whole))
	assert.Len(t, FormatTimestamp(whole), 26)
}

func TestTimestamps_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	times := []time.Time{
		time.Date(2020, 1, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2020, 1, 3, 11, 13, 39, 123456000, time.UTC),
		time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, WriteTimestamps(ctx, store, "tile/s2/timestamps", times))

	got, err := ReadTimestamps(ctx, store, "tile/s2/timestamps")
	require.NoError(t, err)
	assert.Equal(t, times, got)

	// One chunk, declared <U27.
	raw, err := store.Get(ctx, "tile/s2/timestamps/.zarray")
	require.NoError(t, err)
	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, "<U27", meta["dtype"])
	assert.Equal(t, []interface{}{float64(3)}, meta["shape"])
	assert.Equal(t, []interface{}{float64(3)}, meta["chunks"])
	ok, err := store.Exists(ctx, "tile/s2/timestamps/0")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTimestamps_RewriteReplacesAll(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	first := []time.Time{time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, WriteTimestamps(ctx, store, "ts", first))

	second := []time.Time{
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, WriteTimestamps(ctx, store, "ts", second))

	got, err := ReadTimestamps(ctx, store, "ts")
	require.NoError(t, err)
	assert.Equal(t, second, got)
}

func TestTimestamps_Empty(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	require.NoError(t, WriteTimestamps(ctx, store, "ts", nil))
	got, err := ReadTimestamps(ctx, store, "ts")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadTimestamps_Missing(t *testing.T) {
	_, err := ReadTimestamps(context.Background(), NewMemStore(), "ts")
	require.Error(t, err)
	assert.True(t, IsNotExist(err))
}

func TestReadTimestamps_CorruptChunk(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	require.NoError(t, WriteTimestamps(ctx, store, "ts", []time.Time{time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}))
	require.NoError(t, store.Set(ctx, "ts/0", []byte("garbage")))

	_, err := ReadTimestamps(ctx, store, "ts")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrDataCorruption))
}

func TestReadTimestamps_SecondPrecision(t *testing.T) {
	// Archives written by other tooling may store whole-second instants
	// with no fractional part; those must still parse.
	ctx := context.Background()
	store := NewMemStore()

	require.NoError(t, WriteTimestamps(ctx, store, "ts", []time.Time{time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}))

	s := "2021-06-01T12:30:00"
	raw := make([]byte, timestampRunes*4)
	for j, r := range []rune(s) {
		off := j * 4
		raw[off] = byte(r)
		raw[off+1] = byte(r >> 8)
		raw[off+2] = byte(r >> 16)
		raw[off+3] = byte(r >> 24)
	}
	enc, err := compress(&compressor{ID: "zlib", Level: defaultZlibLevel}, raw)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "ts/0", enc))

	got, err := ReadTimestamps(ctx, store, "ts")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, time.Date(2021, 6, 1, 12, 30, 0, 0, time.UTC), got[0])
}
