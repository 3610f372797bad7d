package deployer

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/eocube/eocube/go/gcs"
	"github.com/eocube/eocube/go/parallel"
	"github.com/eocube/eocube/go/skerr"
	"github.com/eocube/eocube/go/sklog"
	"github.com/eocube/eocube/go/types"
	"github.com/eocube/eocube/go/util"
	"github.com/eocube/eocube/go/vfs"
)

// AssetOpener resolves catalog asset URLs to readable files. The
// extractor's GCSOpener satisfies it.
type AssetOpener interface {
	Open(ctx context.Context, url string) (vfs.File, error)
}

// mtlSourceBand is the asset whose URL locates a Landsat scene's MTL
// metadata sidecar: the sidecar sits next to it in the scene directory.
const mtlSourceBand = "B1"

// CopyMTLFiles copies Landsat MTL metadata sidecars into the archive, one
// per (tile, constellation, sensing date), at
// {storagePath}/{tile}/{constellation}/metadata/{date}_MTL.txt. Tasks
// whose scenes carry no such sidecar (Sentinel-2) are skipped, as are
// sidecars missing from the source bucket. workers bounds the concurrent
// copies.
func CopyMTLFiles(ctx context.Context, opener AssetOpener, gcsClient gcs.GCSClient, tasks []*types.ExtractionTask, storagePath string, workers int) error {
	root, err := objectRoot(gcsClient, storagePath)
	if err != nil {
		return skerr.Wrap(err)
	}

	type copyJob struct {
		src string
		dst string
	}
	seen := map[string]bool{}
	var jobs []copyJob
	for _, task := range tasks {
		if len(task.ItemCollection) == 0 {
			continue
		}
		asset, ok := task.ItemCollection[0].Assets[mtlSourceBand]
		if !ok {
			continue
		}
		src, ok := strings.CutSuffix(asset.Href, mtlSourceBand+".TIF")
		if !ok {
			continue
		}
		src += "MTL.txt"
		date := task.SensingTime.UTC().Format("2006-01-02")
		for _, tile := range task.Tiles {
			dst := joinObject(root, tile.ID(), task.Constellation, "metadata", date+"_MTL.txt")
			if seen[dst] {
				continue
			}
			seen[dst] = true
			jobs = append(jobs, copyJob{src: src, dst: dst})
		}
	}
	if len(jobs) == 0 {
		return nil
	}

	sklog.Infof("Copying %d MTL metadata files to gs://%s.", len(jobs), gcsClient.Bucket())
	return parallel.Map(ctx, len(jobs), workers, func(ctx context.Context, i int) error {
		return copyMTL(ctx, opener, gcsClient, jobs[i].src, jobs[i].dst)
	})
}

func copyMTL(ctx context.Context, opener AssetOpener, gcsClient gcs.GCSClient, src, dst string) error {
	f, err := opener.Open(ctx, src)
	if err != nil {
		if missingObject(err) {
			sklog.Infof("No MTL sidecar at %s; skipping.", src)
			return nil
		}
		return skerr.Wrapf(err, "opening %s", src)
	}
	defer func() {
		util.LogErr(f.Close(ctx))
	}()
	b, err := io.ReadAll(vfs.WithContext(ctx, f))
	if err != nil {
		if missingObject(err) {
			sklog.Infof("No MTL sidecar at %s; skipping.", src)
			return nil
		}
		return skerr.Wrapf(err, "reading %s", src)
	}
	return skerr.Wrapf(gcsClient.SetFileContents(ctx, dst, gcs.FILE_WRITE_OPTS_TEXT, b), "writing %s", dst)
}

func missingObject(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, storage.ErrObjectNotExist)
}
