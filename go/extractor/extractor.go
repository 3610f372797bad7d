// Package extractor materializes the pixel patches of an extraction task:
// it reads one band of every catalog item windowed to the task's tiles,
// reprojects and resamples onto a shared mosaic canvas, merges, and crops
// one patch per tile.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/eocube/eocube/go/bands"
	"github.com/eocube/eocube/go/geotiff"
	"github.com/eocube/eocube/go/progress"
	"github.com/eocube/eocube/go/skerr"
	"github.com/eocube/eocube/go/sklog"
	"github.com/eocube/eocube/go/timer"
	"github.com/eocube/eocube/go/types"
	"github.com/eocube/eocube/go/util"
)

const (
	// DefaultDecoder converts downloaded JPEG2000 assets to GeoTIFF.
	DefaultDecoder = "gdal_translate"

	// DefaultWorkers bounds concurrent per-item asset reads.
	DefaultWorkers = 4
)

// Method selects how overlapping scene pixels merge in the mosaic.
type Method string

const (
	// First keeps the earliest item's pixel; zero counts as no data.
	First Method = "first"
	// Max keeps the per-pixel maximum across items.
	Max Method = "max"
)

// Patch is the extracted raster for a single tile.
type Patch struct {
	Tile   types.Tile
	Width  int
	Height int
	// Data holds Width*Height samples in row-major order.
	Data []uint16
}

// Options configures an Extractor. The zero value uses the defaults.
type Options struct {
	// Decoder is the external JPEG2000 to GeoTIFF converter, invoked as
	// "<decoder> -of GTiff <src> <dst>".
	Decoder string
	// Workers bounds concurrent per-item reads within a task.
	Workers int
	// TempDir is the parent of per-task scratch directories. Empty means
	// the system temp dir.
	TempDir string
}

// Extractor turns extraction tasks into per-tile pixel patches.
type Extractor struct {
	opener  Opener
	decoder string
	workers int
	tempDir string
	// progress logs bytes moved while whole-asset downloads are running.
	progress *progress.Tracker
}

// New returns an Extractor reading assets through the given Opener.
func New(opener Opener, opts Options) *Extractor {
	e := &Extractor{
		opener:   opener,
		decoder:  opts.Decoder,
		workers:  opts.Workers,
		tempDir:  opts.TempDir,
		progress: progress.NewTracker(),
	}
	if e.decoder == "" {
		e.decoder = DefaultDecoder
	}
	if e.workers <= 0 {
		e.workers = DefaultWorkers
	}
	return e
}

// Extract reads the task's band from every catalog item, mosaics the results
// at the given resolution in meters, and returns one patch per task tile, in
// tile order. Patches beyond the imagery are zero-filled.
func (e *Extractor) Extract(ctx context.Context, task *types.ExtractionTask, resolution int, method Method) ([]Patch, error) {
	if err := task.Validate(); err != nil {
		return nil, err
	}
	if resolution <= 0 {
		return nil, skerr.Wrapf(types.ErrInvalidArgument, "resolution %d is not positive", resolution)
	}
	if method != First && method != Max {
		return nil, skerr.Wrapf(types.ErrInvalidArgument, "unknown mosaic method %q", method)
	}
	if len(task.ItemCollection) == 0 {
		return nil, skerr.Wrapf(types.ErrInvalidArgument, "task %s has no catalog items", task.TaskID)
	}
	defer timer.New("extracting task " + task.TaskID).Stop()

	// Mosaic order must be deterministic so that merge ties always resolve
	// the same way.
	items := make(types.ItemCollection, len(task.ItemCollection))
	copy(items, task.ItemCollection)
	items.SortBySensingTime()

	cv := newCanvas(task.Tiles, resolution)
	categorical := bands.IsCategorical(task.Band)

	tmp, err := os.MkdirTemp(e.tempDir, fmt.Sprintf("extract_%s_", task.TaskID))
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	defer util.RemoveAll(tmp)

	sklog.Infof("Task %s: %d items, %d tiles, %dx%d px canvas in EPSG:%d.",
		task.TaskID, len(items), len(task.Tiles), cv.width, cv.height, cv.epsg)

	files := make([]string, len(items))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(e.workers)
	for i, item := range items {
		eg.Go(func() error {
			asset, ok := item.Assets[task.Band]
			if !ok {
				return skerr.Wrapf(types.ErrInvalidArgument, "item %s has no %q asset", item.ID, task.Band)
			}
			data, err := e.itemRaster(egCtx, asset.Href, i, cv, tmp, task.TaskID, categorical)
			if err != nil {
				return err
			}
			out := filepath.Join(tmp, fmt.Sprintf("%s_%d.tif", task.TaskID, i))
			if err := writeCanvasTIFF(out, data, cv); err != nil {
				return err
			}
			files[i] = out
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, skerr.Wrap(err)
	}

	mosaic, err := merge(files, cv, method)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	patches, err := crop(mosaic, cv, task.Tiles)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	return patches, nil
}

// itemRaster reads one item's asset resampled onto the canvas grid.
func (e *Extractor) itemRaster(ctx context.Context, href string, idx int, cv canvas, tmpDir, taskID string, categorical bool) ([]uint16, error) {
	rd, cleanup, err := e.openRaster(ctx, href, idx, tmpDir, taskID)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	data, err := sampleToCanvas(rd, cv, categorical)
	if err != nil {
		return nil, classify(err, href)
	}
	return data, nil
}

// writeCanvasTIFF stores one item's canvas raster as a GeoTIFF in the task
// scratch dir.
func writeCanvasTIFF(path string, data []uint16, cv canvas) (rvErr error) {
	f, err := os.Create(path)
	if err != nil {
		return skerr.Wrap(err)
	}
	defer func() {
		closeErr := f.Close()
		if rvErr == nil {
			rvErr = skerr.Wrap(closeErr)
		}
	}()
	return geotiff.Write(f, data, cv.width, cv.height, cv.epsg, cv.transform())
}

// merge folds the per-item canvas files into one mosaic, in item order.
func merge(paths []string, cv canvas, method Method) ([]uint16, error) {
	out := make([]uint16, cv.width*cv.height)
	for _, p := range paths {
		data, err := readCanvasTIFF(p, cv)
		if err != nil {
			return nil, skerr.Wrap(err)
		}
		if method == Max {
			for i, v := range data {
				if v > out[i] {
					out[i] = v
				}
			}
		} else {
			for i, v := range data {
				if out[i] == 0 {
					out[i] = v
				}
			}
		}
	}
	return out, nil
}

func readCanvasTIFF(path string, cv canvas) ([]uint16, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	defer util.Close(f)
	rd, err := geotiff.NewReader(f)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	return rd.ReadWindow(0, 0, cv.width, cv.height)
}

// crop cuts one patch per tile out of the mosaic. Rows and columns beyond
// the canvas stay zero.
func crop(mosaic []uint16, cv canvas, tiles []types.Tile) ([]Patch, error) {
	inv, err := cv.transform().Invert()
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	patches := make([]Patch, 0, len(tiles))
	for _, tile := range tiles {
		colF, rowF := inv.Apply(tile.MinX, tile.MaxY)
		col, row := int(math.Floor(colF)), int(math.Floor(rowF))
		pw := int(tile.BboxSizeX()) / cv.res
		ph := int(tile.BboxSizeY()) / cv.res
		data := make([]uint16, pw*ph)
		for y := 0; y < ph; y++ {
			sy := row + y
			if sy < 0 || sy >= cv.height {
				continue
			}
			x0 := util.MaxInt(col, 0)
			x1 := util.MinInt(col+pw, cv.width)
			if x1 <= x0 {
				continue
			}
			copy(data[y*pw+x0-col:y*pw+x1-col], mosaic[sy*cv.width+x0:sy*cv.width+x1])
		}
		patches = append(patches, Patch{Tile: tile, Width: pw, Height: ph, Data: data})
	}
	return patches, nil
}

// canvas is the mosaic grid shared by all of a task's per-item reads: the
// integer-snapped union of the tile bboxes at the task resolution, in the
// tiles' shared projection.
type canvas struct {
	epsg          int
	res           int
	ulx, uly      float64
	lrx, lry      float64
	width, height int
}

func newCanvas(tiles []types.Tile, res int) canvas {
	ulx, uly := tiles[0].MinX, tiles[0].MaxY
	lrx, lry := tiles[0].MaxX, tiles[0].MinY
	for _, t := range tiles[1:] {
		ulx = math.Min(ulx, t.MinX)
		uly = math.Max(uly, t.MaxY)
		lrx = math.Max(lrx, t.MaxX)
		lry = math.Min(lry, t.MinY)
	}
	cv := canvas{
		epsg: tiles[0].EPSG,
		res:  res,
		ulx:  float64(int(ulx)),
		uly:  float64(int(uly)),
		lrx:  float64(int(lrx)),
		lry:  float64(int(lry)),
	}
	cv.width = int(cv.lrx-cv.ulx) / res
	cv.height = int(cv.uly-cv.lry) / res
	return cv
}

func (c canvas) transform() geotiff.Affine {
	return geotiff.NorthUp(float64(c.res), c.ulx, c.uly)
}

// classify maps an asset access failure onto the pipeline error taxonomy.
// Undecodable content and caller mistakes keep their sentinel; anything else
// is assumed to be a transport failure worth a redelivery.
func classify(err error, href string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, types.ErrDataCorruption) || errors.Is(err, types.ErrInvalidArgument) {
		return skerr.Wrapf(err, "asset %s", href)
	}
	return skerr.Wrapf(types.ErrTransientIO, "asset %s: %s", href, err)
}
