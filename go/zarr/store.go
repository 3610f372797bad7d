package zarr

import (
	"context"
	"errors"
	"io/fs"
	"sort"
	"strings"
	"sync"

	"cloud.google.com/go/storage"

	"github.com/eocube/eocube/go/gcs"
	"github.com/eocube/eocube/go/skerr"
)

// Store is the flat key/value blob space an archive lives in. Keys use "/"
// separators; Get on a missing key returns an error satisfying
// errors.Is(err, fs.ErrNotExist).
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Exists(ctx context.Context, key string) (bool, error)
	// List returns every key beginning with prefix, in unspecified order.
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
}

// IsNotExist reports whether err means a key was absent.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// MemStore is an in-memory Store, used in tests and dry runs. Safe for
// concurrent use.
type MemStore struct {
	mtx  sync.RWMutex
	data map[string][]byte
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{data: map[string][]byte{}}
}

// Get implements Store.
func (s *MemStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	value, ok := s.data[key]
	if !ok {
		return nil, skerr.Wrapf(fs.ErrNotExist, "key %s", key)
	}
	return append([]byte(nil), value...), nil
}

// Set implements Store.
func (s *MemStore) Set(ctx context.Context, key string, value []byte) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.data[key] = append([]byte(nil), value...)
	return nil
}

// Exists implements Store.
func (s *MemStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	_, ok := s.data[key]
	return ok, nil
}

// List implements Store.
func (s *MemStore) List(ctx context.Context, prefix string) ([]string, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	var keys []string
	for key := range s.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete implements Store.
func (s *MemStore) Delete(ctx context.Context, key string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	delete(s.data, key)
	return nil
}

// GCSStore keeps chunks as objects under a prefix in a GCS bucket.
type GCSStore struct {
	client gcs.GCSClient
	prefix string
}

// NewGCSStore returns a Store writing under the given object prefix, which
// may be empty for the bucket root.
func NewGCSStore(client gcs.GCSClient, prefix string) *GCSStore {
	return &GCSStore{client: client, prefix: strings.Trim(prefix, "/")}
}

func (s *GCSStore) object(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

// Get implements Store.
func (s *GCSStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.GetFileContents(ctx, s.object(key))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, skerr.Wrapf(fs.ErrNotExist, "key %s", key)
		}
		return nil, skerr.Wrapf(err, "reading gs://%s/%s", s.client.Bucket(), s.object(key))
	}
	return value, nil
}

// Set implements Store.
func (s *GCSStore) Set(ctx context.Context, key string, value []byte) error {
	opts := gcs.FileWriteOptions{ContentType: "application/octet-stream"}
	return skerr.Wrapf(s.client.SetFileContents(ctx, s.object(key), opts, value), "writing gs://%s/%s", s.client.Bucket(), s.object(key))
}

// Exists implements Store.
func (s *GCSStore) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.DoesFileExist(ctx, s.object(key))
	if err != nil {
		return false, skerr.Wrapf(err, "checking gs://%s/%s", s.client.Bucket(), s.object(key))
	}
	return ok, nil
}

// List implements Store.
func (s *GCSStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	trim := ""
	if s.prefix != "" {
		trim = s.prefix + "/"
	}
	err := s.client.AllFilesInDirectory(ctx, s.object(prefix), func(item *storage.ObjectAttrs) error {
		keys = append(keys, strings.TrimPrefix(item.Name, trim))
		return nil
	})
	if err != nil {
		return nil, skerr.Wrapf(err, "listing gs://%s/%s", s.client.Bucket(), s.object(prefix))
	}
	return keys, nil
}

// Delete implements Store.
func (s *GCSStore) Delete(ctx context.Context, key string) error {
	if err := s.client.DeleteFile(ctx, s.object(key)); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return skerr.Wrapf(err, "deleting gs://%s/%s", s.client.Bucket(), s.object(key))
	}
	return nil
}

var _ Store = (*MemStore)(nil)
var _ Store = (*GCSStore)(nil)
