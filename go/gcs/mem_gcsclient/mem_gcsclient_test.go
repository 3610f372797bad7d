package mem_gcsclient

import (
	"context"
	"io"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"

	"github.com/eocube/eocube/go/gcs"
)

func TestMemGCSClient(t *testing.T) {
	ctx := context.Background()
	c := New("test-bucket")
	require.Equal(t, "test-bucket", c.Bucket())

	// Missing objects behave like GCS.
	_, err := c.GetFileContents(ctx, "nope")
	require.Equal(t, storage.ErrObjectNotExist, err)
	exists, err := c.DoesFileExist(ctx, "nope")
	require.NoError(t, err)
	require.False(t, exists)

	// Round-trip contents and attrs.
	opts := gcs.FileWriteOptions{ContentType: "application/octet-stream"}
	require.NoError(t, c.SetFileContents(ctx, "dir/a", opts, []byte("hello world")))
	got, err := c.GetFileContents(ctx, "dir/a")
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), got)
	attrs, err := c.GetFileObjectAttrs(ctx, "dir/a")
	require.NoError(t, err)
	require.Equal(t, int64(11), attrs.Size)
	require.Equal(t, "application/octet-stream", attrs.ContentType)

	// Writes are not visible until Close.
	w := c.FileWriter(ctx, "dir/b", gcs.FileWriteOptions{})
	_, err = w.Write([]byte("pending"))
	require.NoError(t, err)
	exists, err = c.DoesFileExist(ctx, "dir/b")
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, w.Close())
	exists, err = c.DoesFileExist(ctx, "dir/b")
	require.NoError(t, err)
	require.True(t, exists)

	// Range reads.
	r, err := c.FileRangeReader(ctx, "dir/a", 6, 5)
	require.NoError(t, err)
	got, err = io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.Equal(t, []byte("world"), got)
	r, err = c.FileRangeReader(ctx, "dir/a", 6, -1)
	require.NoError(t, err)
	got, err = io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.Equal(t, []byte("world"), got)

	// Listing is sorted and honors the prefix.
	require.NoError(t, c.SetFileContents(ctx, "other/c", gcs.FileWriteOptions{}, []byte("x")))
	var listed []string
	require.NoError(t, c.AllFilesInDirectory(ctx, "dir/", func(item *storage.ObjectAttrs) error {
		listed = append(listed, item.Name)
		return nil
	}))
	require.Equal(t, []string{"dir/a", "dir/b"}, listed)

	// Deletion.
	require.NoError(t, c.DeleteFile(ctx, "dir/a"))
	require.Equal(t, storage.ErrObjectNotExist, c.DeleteFile(ctx, "dir/a"))
	exists, err = c.DoesFileExist(ctx, "dir/a")
	require.NoError(t, err)
	require.False(t, exists)
}
