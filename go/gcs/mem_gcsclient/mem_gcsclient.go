// Package mem_gcsclient provides an in-memory implementation of
// gcs.GCSClient for use in tests.
package mem_gcsclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"

	"github.com/eocube/eocube/go/gcs"
)

// memGCSClient implements gcs.GCSClient in memory.
type memGCSClient struct {
	bucket string
	data   map[string][]byte
	opts   map[string]gcs.FileWriteOptions
	mtx    sync.RWMutex
}

// New returns an in-memory gcs.GCSClient.
func New(bucket string) gcs.GCSClient {
	return &memGCSClient{
		bucket: bucket,
		data:   map[string][]byte{},
		opts:   map[string]gcs.FileWriteOptions{},
	}
}

// See documentation for gcs.GCSClient interface.
func (c *memGCSClient) FileReader(ctx context.Context, path string) (io.ReadCloser, error) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	contents, ok := c.data[path]
	if !ok {
		return nil, storage.ErrObjectNotExist
	}
	return io.NopCloser(bytes.NewReader(contents)), nil
}

// See documentation for gcs.GCSClient interface.
func (c *memGCSClient) FileRangeReader(ctx context.Context, path string, offset, length int64) (io.ReadCloser, error) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	contents, ok := c.data[path]
	if !ok {
		return nil, storage.ErrObjectNotExist
	}
	if offset < 0 || offset > int64(len(contents)) {
		return nil, fmt.Errorf("Invalid offset %d for object of size %d", offset, len(contents))
	}
	end := int64(len(contents))
	if length >= 0 && offset+length < end {
		end = offset + length
	}
	return io.NopCloser(bytes.NewReader(contents[offset:end])), nil
}

// memObjectWriter implements io.WriteCloser and commits the object on Close.
type memObjectWriter struct {
	buf    bytes.Buffer
	client *memGCSClient
	path   string
	opts   gcs.FileWriteOptions
}

// Write implements io.Writer.
func (w *memObjectWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

// Close implements io.Closer.
func (w *memObjectWriter) Close() error {
	w.client.mtx.Lock()
	defer w.client.mtx.Unlock()
	w.client.data[w.path] = append([]byte{}, w.buf.Bytes()...)
	w.client.opts[w.path] = w.opts
	return nil
}

// See documentation for gcs.GCSClient interface.
func (c *memGCSClient) FileWriter(ctx context.Context, path string, opts gcs.FileWriteOptions) io.WriteCloser {
	return &memObjectWriter{
		client: c,
		path:   path,
		opts:   opts,
	}
}

// See documentation for gcs.GCSClient interface.
func (c *memGCSClient) DoesFileExist(ctx context.Context, path string) (bool, error) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	_, ok := c.data[path]
	return ok, nil
}

// See documentation for gcs.GCSClient interface.
func (c *memGCSClient) GetFileContents(ctx context.Context, path string) ([]byte, error) {
	r, err := c.FileReader(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = r.Close()
	}()
	return io.ReadAll(r)
}

// See documentation for gcs.GCSClient interface.
func (c *memGCSClient) SetFileContents(ctx context.Context, path string, opts gcs.FileWriteOptions, contents []byte) error {
	w := c.FileWriter(ctx, path, opts)
	if _, err := w.Write(contents); err != nil {
		return err
	}
	return w.Close()
}

// See documentation for gcs.GCSClient interface.
func (c *memGCSClient) GetFileObjectAttrs(ctx context.Context, path string) (*storage.ObjectAttrs, error) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	contents, ok := c.data[path]
	if !ok {
		return nil, storage.ErrObjectNotExist
	}
	opts := c.opts[path]
	return &storage.ObjectAttrs{
		Bucket:             c.bucket,
		Name:               path,
		Size:               int64(len(contents)),
		ContentEncoding:    opts.ContentEncoding,
		ContentType:        opts.ContentType,
		ContentLanguage:    opts.ContentLanguage,
		ContentDisposition: opts.ContentDisposition,
		Metadata:           opts.Metadata,
		Updated:            time.Now(),
	}, nil
}

// See documentation for gcs.GCSClient interface.
func (c *memGCSClient) AllFilesInDirectory(ctx context.Context, prefix string, callback func(item *storage.ObjectAttrs) error) error {
	c.mtx.RLock()
	paths := make([]string, 0, len(c.data))
	for path := range c.data {
		if strings.HasPrefix(path, prefix) {
			paths = append(paths, path)
		}
	}
	c.mtx.RUnlock()
	sort.Strings(paths)
	for _, path := range paths {
		attrs, err := c.GetFileObjectAttrs(ctx, path)
		if err != nil {
			return err
		}
		if err := callback(attrs); err != nil {
			return err
		}
	}
	return nil
}

// See documentation for gcs.GCSClient interface.
func (c *memGCSClient) DeleteFile(ctx context.Context, path string) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if _, ok := c.data[path]; !ok {
		return storage.ErrObjectNotExist
	}
	delete(c.data, path)
	delete(c.opts, path)
	return nil
}

// See documentation for gcs.GCSClient interface.
func (c *memGCSClient) Bucket() string {
	return c.bucket
}

// Assert that memGCSClient implements the GCSClient interface.
var _ gcs.GCSClient = (*memGCSClient)(nil)
