package extractor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"

	"github.com/eocube/eocube/go/exec"
	"github.com/eocube/eocube/go/gcs"
	"github.com/eocube/eocube/go/gcs/gcsclient"
	"github.com/eocube/eocube/go/geotiff"
	"github.com/eocube/eocube/go/skerr"
	"github.com/eocube/eocube/go/types"
	"github.com/eocube/eocube/go/util"
	"github.com/eocube/eocube/go/vfs"
)

const (
	// decodeTimeout bounds one JPEG2000 to GeoTIFF conversion.
	decodeTimeout = 5 * time.Minute

	// maxDecoderOutput limits how much decoder output ends up in errors.
	maxDecoderOutput = 1024
)

// Opener opens raster assets addressed by URL for random-access reads.
type Opener interface {
	Open(ctx context.Context, url string) (vfs.File, error)
}

// GCSOpener opens gs:// asset URLs, building one vfs per bucket lazily from
// a shared storage client. The public imagery buckets differ per
// constellation, so one task may touch several.
type GCSOpener struct {
	client *storage.Client

	mtx sync.Mutex
	fss map[string]vfs.FS
}

// NewGCSOpener returns a GCSOpener over the given storage client.
func NewGCSOpener(client *storage.Client) *GCSOpener {
	return &GCSOpener{
		client: client,
		fss:    map[string]vfs.FS{},
	}
}

// Open implements Opener.
func (o *GCSOpener) Open(ctx context.Context, url string) (vfs.File, error) {
	rest, ok := strings.CutPrefix(url, "gs://")
	if !ok {
		return nil, skerr.Wrapf(types.ErrInvalidArgument, "asset URL %q is not a gs:// URL", url)
	}
	bucket, object := gcs.SplitGSPath(rest)
	if bucket == "" || object == "" {
		return nil, skerr.Wrapf(types.ErrInvalidArgument, "asset URL %q has no object path", url)
	}
	return o.fs(bucket).Open(ctx, object)
}

func (o *GCSOpener) fs(bucket string) vfs.FS {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	fs, ok := o.fss[bucket]
	if !ok {
		fs = vfs.InGCS(gcsclient.New(o.client, bucket), "")
		o.fss[bucket] = fs
	}
	return fs
}

// openRaster opens an asset for windowed reads. JPEG2000 sources cannot be
// window-read, so they are downloaded whole and converted to GeoTIFF by the
// external decoder first; everything else is read in place by range.
func (e *Extractor) openRaster(ctx context.Context, href string, idx int, tmpDir, taskID string) (*geotiff.Reader, func(), error) {
	if isJPEG2000(href) {
		local, err := e.decodeJPEG2000(ctx, href, idx, tmpDir, taskID)
		if err != nil {
			return nil, nil, err
		}
		f, err := os.Open(local)
		if err != nil {
			return nil, nil, skerr.Wrap(err)
		}
		rd, err := geotiff.NewReader(f)
		if err != nil {
			util.Close(f)
			return nil, nil, classify(err, href)
		}
		return rd, func() { util.Close(f) }, nil
	}
	f, err := e.opener.Open(ctx, href)
	if err != nil {
		return nil, nil, classify(err, href)
	}
	rd, err := geotiff.NewReader(vfs.WithContext(ctx, f))
	if err != nil {
		util.LogErr(f.Close(ctx))
		return nil, nil, classify(err, href)
	}
	return rd, func() { util.LogErr(f.Close(ctx)) }, nil
}

// decodeJPEG2000 downloads the asset into the task scratch dir and converts
// it to a GeoTIFF the windowed reader understands. Returns the converted
// path.
func (e *Extractor) decodeJPEG2000(ctx context.Context, href string, idx int, tmpDir, taskID string) (string, error) {
	src := filepath.Join(tmpDir, fmt.Sprintf("%s_%d.jp2", taskID, idx))
	if err := e.download(ctx, href, src); err != nil {
		return "", err
	}
	dst := filepath.Join(tmpDir, fmt.Sprintf("%s_%d_dec.tif", taskID, idx))
	output := bytes.Buffer{}
	err := exec.Run(ctx, &exec.Command{
		Name:           e.decoder,
		Args:           []string{"-of", "GTiff", src, dst},
		CombinedOutput: &output,
		Timeout:        decodeTimeout,
	})
	if err != nil {
		return "", skerr.Wrapf(types.ErrDataCorruption, "decoding %s: %s: %s", href, err, util.Truncate(output.String(), maxDecoderOutput))
	}
	return dst, nil
}

// download copies the whole asset to a local path, logging the transfer
// volume while it runs.
func (e *Extractor) download(ctx context.Context, href, dst string) (rvErr error) {
	f, err := e.opener.Open(ctx, href)
	if err != nil {
		return classify(err, href)
	}
	defer func() {
		closeErr := f.Close(ctx)
		if rvErr == nil && closeErr != nil {
			rvErr = classify(closeErr, href)
		}
	}()
	out, err := os.Create(dst)
	if err != nil {
		return skerr.Wrap(err)
	}
	e.progress.Start()
	defer e.progress.Stop()
	if _, err := io.Copy(out, e.progress.Reader(vfs.WithContext(ctx, f))); err != nil {
		util.Close(out)
		return classify(err, href)
	}
	return skerr.Wrap(out.Close())
}

func isJPEG2000(href string) bool {
	return strings.HasSuffix(strings.ToLower(href), ".jp2")
}

// Ensure that GCSOpener implements Opener.
var _ Opener = (*GCSOpener)(nil)
