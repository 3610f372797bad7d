package zarr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eocube/eocube/go/gcs/mem_gcsclient"
)

func TestMemStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	_, err := s.Get(ctx, "a")
	require.Error(t, err)
	assert.True(t, IsNotExist(err))

	require.NoError(t, s.Set(ctx, "dir/a", []byte("one")))
	require.NoError(t, s.Set(ctx, "dir/b", []byte("two")))
	require.NoError(t, s.Set(ctx, "other/c", []byte("three")))

	got, err := s.Get(ctx, "dir/a")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), got)

	// Mutating the returned slice must not affect the store.
	got[0] = 'X'
	again, err := s.Get(ctx, "dir/a")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), again)

	ok, err := s.Exists(ctx, "dir/b")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Exists(ctx, "dir/z")
	require.NoError(t, err)
	assert.False(t, ok)

	keys, err := s.List(ctx, "dir/")
	require.NoError(t, err)
	assert.Equal(t, []string{"dir/a", "dir/b"}, keys)

	require.NoError(t, s.Delete(ctx, "dir/a"))
	_, err = s.Get(ctx, "dir/a")
	assert.True(t, IsNotExist(err))

	// Deleting an absent key is not an error.
	require.NoError(t, s.Delete(ctx, "dir/a"))
}

func TestGCSStore(t *testing.T) {
	ctx := context.Background()
	client := mem_gcsclient.New("test-bucket")
	s := NewGCSStore(client, "archives/coastal")

	_, err := s.Get(ctx, "tile/data/.zarray")
	require.Error(t, err)
	assert.True(t, IsNotExist(err))

	require.NoError(t, s.Set(ctx, "tile/data/.zarray", []byte("{}")))
	require.NoError(t, s.Set(ctx, "tile/data/0.0.0.0", []byte("chunk")))

	// Objects land under the store prefix.
	raw, err := client.GetFileContents(ctx, "archives/coastal/tile/data/0.0.0.0")
	require.NoError(t, err)
	assert.Equal(t, []byte("chunk"), raw)

	got, err := s.Get(ctx, "tile/data/0.0.0.0")
	require.NoError(t, err)
	assert.Equal(t, []byte("chunk"), got)

	ok, err := s.Exists(ctx, "tile/data/.zarray")
	require.NoError(t, err)
	assert.True(t, ok)

	keys, err := s.List(ctx, "tile/data/")
	require.NoError(t, err)
	assert.Equal(t, []string{"tile/data/.zarray", "tile/data/0.0.0.0"}, keys)

	require.NoError(t, s.Delete(ctx, "tile/data/0.0.0.0"))
	_, err = s.Get(ctx, "tile/data/0.0.0.0")
	assert.True(t, IsNotExist(err))

	require.NoError(t, s.Delete(ctx, "tile/data/0.0.0.0"))
}

func TestGCSStore_EmptyPrefix(t *testing.T) {
	ctx := context.Background()
	client := mem_gcsclient.New("test-bucket")
	s := NewGCSStore(client, "")

	require.NoError(t, s.Set(ctx, "tile/timestamps/.zarray", []byte("{}")))
	raw, err := client.GetFileContents(ctx, "tile/timestamps/.zarray")
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), raw)

	keys, err := s.List(ctx, "tile/")
	require.NoError(t, err)
	assert.Equal(t, []string{"tile/timestamps/.zarray"}, keys)
}

func TestArrayOnGCSStore(t *testing.T) {
	// The array layer works identically over the GCS- and memory-backed
	// stores.
	ctx := context.Background()
	s := NewGCSStore(mem_gcsclient.New("test-bucket"), "root")

	a, err := Create(ctx, s, "tile/s2/data", []int{1, 1, 6, 6}, []int{1, 1, 4, 4}, "<u2")
	require.NoError(t, err)
	want := slotData(6, 6, 7)
	require.NoError(t, a.WriteSlot(ctx, 0, 0, want))

	got, err := a.ReadSlot(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
