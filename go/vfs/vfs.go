package vfs

/*
Package vfs provides a minimal virtual filesystem over remote storage.

The interfaces follow io/fs, except that every call takes a Context and
files support random-access reads and writes. Scene rasters are read as
windows out of large remote objects, so ReadAt matters more here than a
plain sequential Read.
*/

import (
	"context"
	"io/fs"
	"os"
	"time"
)

// FS represents a virtual filesystem.
type FS interface {
	// Open the given path for reading. If the path is a directory,
	// implementations should return a File whose ReadDir method works.
	Open(ctx context.Context, name string) (File, error)

	// Create opens the given path for writing, creating it if it does not
	// exist and truncating it otherwise. Parent directories are created as
	// needed. The write is not guaranteed to be visible until the returned
	// File is closed.
	Create(ctx context.Context, name string) (File, error)

	// Close causes any resources associated with the FS to be cleaned up.
	Close(ctx context.Context) error
}

// File represents a virtual file.
type File interface {
	// Close the File.
	Close(ctx context.Context) error
	// Read behaves like io.Reader. It should return an error if this is a
	// directory or if the File was opened for writing.
	Read(ctx context.Context, buf []byte) (int, error)
	// ReadAt behaves like io.ReaderAt. It should return an error if this is a
	// directory or if the File was opened for writing.
	ReadAt(ctx context.Context, buf []byte, off int64) (int, error)
	// Write behaves like io.Writer. It should return an error if the File was
	// not opened for writing.
	Write(ctx context.Context, buf []byte) (int, error)
	// Stat returns FileInfo associated with the File.
	Stat(ctx context.Context) (fs.FileInfo, error)

	// ReadDir returns the contents of the File if it is a directory, and
	// returns an error otherwise. Should behave the same as os.File.Readdir.
	ReadDir(ctx context.Context, n int) ([]fs.FileInfo, error)
}

// ReuseContextFile is a File which reuses the same Context for all calls.
// This is how a File is handed to library functions which expect plain
// io.Reader or io.ReaderAt implementations.
type ReuseContextFile struct {
	File
	ctx context.Context
}

// Close closes the ReuseContextFile.
func (f *ReuseContextFile) Close() error {
	return f.File.Close(f.ctx)
}

// Read reads from the ReuseContextFile.
func (f *ReuseContextFile) Read(buf []byte) (int, error) {
	return f.File.Read(f.ctx, buf)
}

// ReadAt reads from the ReuseContextFile at the given offset.
func (f *ReuseContextFile) ReadAt(buf []byte, off int64) (int, error) {
	return f.File.ReadAt(f.ctx, buf, off)
}

// Write writes to the ReuseContextFile.
func (f *ReuseContextFile) Write(buf []byte) (int, error) {
	return f.File.Write(f.ctx, buf)
}

// Stat returns the fs.FileInfo describing the ReuseContextFile.
func (f *ReuseContextFile) Stat() (fs.FileInfo, error) {
	return f.File.Stat(f.ctx)
}

// WithContext returns a ReuseContextFile which wraps the given File.
func WithContext(ctx context.Context, f File) *ReuseContextFile {
	return &ReuseContextFile{
		File: f,
		ctx:  ctx,
	}
}

// FileInfo implements fs.FileInfo by simply filling out the return values
// for all of the methods.
type FileInfo struct {
	Name    string
	Size    int64
	Mode    os.FileMode
	ModTime time.Time
	IsDir   bool
	Sys     interface{}
}

// Get returns an fs.FileInfo backed by this FileInfo.
func (fi FileInfo) Get() *FileInfoImpl {
	return &FileInfoImpl{fi}
}

// FileInfoImpl implements fs.FileInfo.
type FileInfoImpl struct {
	FileInfo
}

// Name implements fs.FileInfo.
func (fi *FileInfoImpl) Name() string {
	return fi.FileInfo.Name
}

// Size implements fs.FileInfo.
func (fi *FileInfoImpl) Size() int64 {
	return fi.FileInfo.Size
}

// Mode implements fs.FileInfo.
func (fi *FileInfoImpl) Mode() os.FileMode {
	return fi.FileInfo.Mode
}

// ModTime implements fs.FileInfo.
func (fi *FileInfoImpl) ModTime() time.Time {
	return fi.FileInfo.ModTime
}

// IsDir implements fs.FileInfo.
func (fi *FileInfoImpl) IsDir() bool {
	return fi.FileInfo.IsDir
}

// Sys implements fs.FileInfo.
func (fi *FileInfoImpl) Sys() interface{} {
	return fi.FileInfo.Sys
}

// Ensure that FileInfoImpl implements fs.FileInfo.
var _ fs.FileInfo = &FileInfoImpl{}
