package vfs

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/eocube/eocube/go/gcs"
	"github.com/eocube/eocube/go/skerr"
)

// errStopListing is used to end object listing early.
var errStopListing = errors.New("stop listing")

// InGCS returns a FS backed by the given GCS client, rooted at the given path
// prefix within the client's bucket. GCS has no real directories; a path is
// treated as a directory if any object exists below it.
func InGCS(client gcs.GCSClient, root string) FS {
	return &gcsFS{
		client: client,
		root:   strings.Trim(root, "/"),
	}
}

// gcsFS implements FS on top of a GCS bucket.
type gcsFS struct {
	client gcs.GCSClient
	root   string
}

// objPath resolves the given name to an object path within the bucket.
func (g *gcsFS) objPath(name string) string {
	p := path.Join(g.root, name)
	if p == "." {
		p = ""
	}
	return strings.Trim(p, "/")
}

// Open implements FS.
func (g *gcsFS) Open(ctx context.Context, name string) (File, error) {
	p := g.objPath(name)
	if p != "" {
		attrs, err := g.client.GetFileObjectAttrs(ctx, p)
		if err == nil {
			return &gcsFile{client: g.client, path: p, attrs: attrs}, nil
		}
		if err != storage.ErrObjectNotExist {
			return nil, skerr.Wrap(err)
		}
	}
	// Not an object; it is a directory if anything exists below it.
	isDir, err := g.anyObjectBelow(ctx, p)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	if !isDir {
		return nil, skerr.Wrapf(fs.ErrNotExist, "gs://%s/%s", g.client.Bucket(), p)
	}
	return &gcsFile{client: g.client, path: p, isDir: true}, nil
}

// Create implements FS.
func (g *gcsFS) Create(ctx context.Context, name string) (File, error) {
	p := g.objPath(name)
	if p == "" {
		return nil, skerr.Fmt("cannot create object with empty name in gs://%s", g.client.Bucket())
	}
	return &gcsFile{
		client: g.client,
		path:   p,
		writer: g.client.FileWriter(ctx, p, gcs.FileWriteOptions{}),
	}, nil
}

// Close implements FS.
func (g *gcsFS) Close(_ context.Context) error {
	return nil
}

// anyObjectBelow returns true if at least one object exists under the given
// prefix.
func (g *gcsFS) anyObjectBelow(ctx context.Context, p string) (bool, error) {
	prefix := ""
	if p != "" {
		prefix = p + "/"
	}
	found := false
	err := g.client.AllFilesInDirectory(ctx, prefix, func(item *storage.ObjectAttrs) error {
		found = true
		return errStopListing
	})
	if err != nil && !errors.Is(err, errStopListing) {
		return false, err
	}
	return found, nil
}

// gcsFile implements File for a GCS object or implicit directory.
type gcsFile struct {
	client gcs.GCSClient
	path   string
	attrs  *storage.ObjectAttrs
	isDir  bool

	// reader is lazily opened by the first call to Read.
	reader io.ReadCloser
	// writer is non-nil for files opened via Create.
	writer io.WriteCloser
}

// Read implements File.
func (f *gcsFile) Read(ctx context.Context, buf []byte) (int, error) {
	if f.isDir {
		return 0, skerr.Fmt("%s is a directory", f.path)
	}
	if f.writer != nil {
		return 0, skerr.Fmt("%s is opened for writing", f.path)
	}
	if f.reader == nil {
		r, err := f.client.FileReader(ctx, f.path)
		if err != nil {
			return 0, skerr.Wrap(err)
		}
		f.reader = r
	}
	return f.reader.Read(buf)
}

// ReadAt implements File.
func (f *gcsFile) ReadAt(ctx context.Context, buf []byte, off int64) (int, error) {
	if f.isDir {
		return 0, skerr.Fmt("%s is a directory", f.path)
	}
	if f.writer != nil {
		return 0, skerr.Fmt("%s is opened for writing", f.path)
	}
	r, err := f.client.FileRangeReader(ctx, f.path, off, int64(len(buf)))
	if err != nil {
		return 0, skerr.Wrap(err)
	}
	defer func() {
		_ = r.Close()
	}()
	n, err := io.ReadFull(r, buf)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		// The range extended past the end of the object.
		return n, io.EOF
	}
	return n, err
}

// Write implements File.
func (f *gcsFile) Write(_ context.Context, buf []byte) (int, error) {
	if f.writer == nil {
		return 0, skerr.Fmt("%s is not opened for writing", f.path)
	}
	return f.writer.Write(buf)
}

// Stat implements File.
func (f *gcsFile) Stat(_ context.Context) (fs.FileInfo, error) {
	if f.isDir {
		return FileInfo{
			Name:  path.Base(f.path),
			Mode:  os.ModeDir | 0755,
			IsDir: true,
		}.Get(), nil
	}
	if f.attrs == nil {
		return nil, skerr.Fmt("no object attrs for %s", f.path)
	}
	return fileInfoFromAttrs(f.attrs), nil
}

// ReadDir implements File.
func (f *gcsFile) ReadDir(ctx context.Context, n int) ([]fs.FileInfo, error) {
	if !f.isDir {
		return nil, skerr.Fmt("%s is not a directory", f.path)
	}
	prefix := ""
	if f.path != "" {
		prefix = f.path + "/"
	}
	// GCS has no real directories, so subdirectories are inferred from the
	// object paths below the prefix.
	dirs := map[string]bool{}
	var rv []fs.FileInfo
	if err := f.client.AllFilesInDirectory(ctx, prefix, func(item *storage.ObjectAttrs) error {
		rel := strings.TrimPrefix(item.Name, prefix)
		if idx := strings.Index(rel, "/"); idx >= 0 {
			dirs[rel[:idx]] = true
			return nil
		}
		rv = append(rv, fileInfoFromAttrs(item))
		return nil
	}); err != nil {
		return nil, skerr.Wrap(err)
	}
	for name := range dirs {
		rv = append(rv, FileInfo{
			Name:  name,
			Mode:  os.ModeDir | 0755,
			IsDir: true,
		}.Get())
	}
	sort.Slice(rv, func(i, j int) bool {
		return rv[i].Name() < rv[j].Name()
	})
	if n > 0 && len(rv) > n {
		rv = rv[:n]
	}
	return rv, nil
}

// Close implements File.
func (f *gcsFile) Close(_ context.Context) error {
	if f.reader != nil {
		reader := f.reader
		f.reader = nil
		if err := reader.Close(); err != nil {
			return skerr.Wrap(err)
		}
	}
	if f.writer != nil {
		writer := f.writer
		f.writer = nil
		if err := writer.Close(); err != nil {
			return skerr.Wrap(err)
		}
	}
	return nil
}

// fileInfoFromAttrs converts storage.ObjectAttrs to an fs.FileInfo.
func fileInfoFromAttrs(attrs *storage.ObjectAttrs) fs.FileInfo {
	return FileInfo{
		Name:    path.Base(attrs.Name),
		Size:    attrs.Size,
		Mode:    0644,
		ModTime: attrs.Updated,
		IsDir:   false,
		Sys:     attrs,
	}.Get()
}

// Ensure that gcsFile implements File.
var _ File = &gcsFile{}
