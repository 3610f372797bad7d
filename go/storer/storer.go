// Package storer writes extracted pixel patches into their (time, band)
// slot of the tile archives laid out by the preparer.
//
// Each archive holds a 4-D uint16 data array indexed as (time, band, row,
// col) plus a timestamps vector naming the time axis. The storer never
// grows an archive: a sensing time or band that is not already on its axis
// means the preparer was skipped or the archive was mutated out-of-band,
// and the task fails with types.ErrArchiveInconsistency.
package storer

import (
	"context"
	"image"
	"image/color"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/nfnt/resize"
	"github.com/patrickmn/go-cache"

	"github.com/eocube/eocube/go/extractor"
	"github.com/eocube/eocube/go/skerr"
	"github.com/eocube/eocube/go/sklog"
	"github.com/eocube/eocube/go/timer"
	"github.com/eocube/eocube/go/types"
	"github.com/eocube/eocube/go/zarr"
)

// timestampsTTL bounds how long a cached copy of an archive's time axis is
// trusted. Axes only change when an operator re-runs the preparer.
const timestampsTTL = 15 * time.Minute

// Storer writes patches into prepared tile archives.
//
// Safe for concurrent use. Time axes are cached across calls because every
// task against the same archive reads the same vector.
type Storer struct {
	times *cache.Cache
}

// New returns a Storer with an empty time axis cache.
func New() *Storer {
	return &Storer{
		times: cache.New(timestampsTTL, 2*timestampsTTL),
	}
}

// Store writes one patch per tile of the task into that tile's archive, at
// the slot addressed by the task's sensing time and band. bandsOrder is the
// band axis the archives were prepared with. patchRes is the resolution the
// patches were extracted at and archiveRes the resolution of the archive
// grid, both in meters per pixel; when they differ the patch is resampled
// by their ratio before writing.
//
// Tiles fail independently; the returned error aggregates all failures.
func (s *Storer) Store(ctx context.Context, store zarr.Store, patches []extractor.Patch, task *types.ExtractionTask, bandsOrder []string, patchRes, archiveRes int) error {
	if err := task.Validate(); err != nil {
		return skerr.Wrap(err)
	}
	if patchRes <= 0 || archiveRes <= 0 {
		return skerr.Wrapf(types.ErrInvalidArgument, "resolutions must be positive, got patch %d m and archive %d m", patchRes, archiveRes)
	}
	bandIdx, ok := indexOfBand(bandsOrder, task.Band)
	if !ok {
		return skerr.Wrapf(types.ErrArchiveInconsistency, "band %s of task %s is not on the archive band axis %v", task.Band, task.TaskID, bandsOrder)
	}
	defer timer.New("storing task " + task.TaskID).Stop()

	var result *multierror.Error
	for _, p := range patches {
		if err := s.storeOne(ctx, store, p, task, bandIdx, patchRes, archiveRes); err != nil {
			result = multierror.Append(result, skerr.Wrapf(err, "tile %s", p.Tile.ID()))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return err
	}
	sklog.Infof("Stored %d patches of band %s at t=%s for task %s.", len(patches), task.Band, zarr.FormatTimestamp(task.SensingTime), task.TaskID)
	return nil
}

func (s *Storer) storeOne(ctx context.Context, store zarr.Store, p extractor.Patch, task *types.ExtractionTask, bandIdx, patchRes, archiveRes int) error {
	if len(p.Data) != p.Width*p.Height {
		return skerr.Wrapf(types.ErrInvalidArgument, "patch carries %d samples for %dx%d pixels", len(p.Data), p.Width, p.Height)
	}
	root := p.Tile.ID() + "/" + task.Constellation
	timeIdx, err := s.timeIndex(ctx, store, root+"/timestamps", task.SensingTime)
	if err != nil {
		return err
	}

	data, width, height := p.Data, p.Width, p.Height
	if patchRes != archiveRes {
		data, width, height = resample(data, width, height, patchRes, archiveRes)
	}

	slotW := int(p.Tile.BboxSizeX()) / archiveRes
	slotH := int(p.Tile.BboxSizeY()) / archiveRes
	if width > slotW || height > slotH {
		return skerr.Wrapf(types.ErrInvalidArgument, "patch is %dx%d pixels but the slot is %dx%d at %d m", width, height, slotW, slotH, archiveRes)
	}
	if width < slotW || height < slotH {
		data = padToSlot(data, width, height, slotW, slotH)
	}

	arr, err := zarr.Open(ctx, store, root+"/data")
	if err != nil {
		if zarr.IsNotExist(err) {
			return skerr.Wrapf(types.ErrArchiveInconsistency, "archive %s has no data array; was it prepared?", root)
		}
		return skerr.Wrap(err)
	}
	shape := arr.Shape()
	if shape[2] != slotH || shape[3] != slotW {
		return skerr.Wrapf(types.ErrArchiveInconsistency, "archive %s holds %dx%d slots, want %dx%d at %d m", root, shape[3], shape[2], slotW, slotH, archiveRes)
	}
	if timeIdx >= shape[0] {
		return skerr.Wrapf(types.ErrArchiveInconsistency, "archive %s time axis names %d times but the data array holds %d", root, timeIdx+1, shape[0])
	}
	if bandIdx >= shape[1] {
		return skerr.Wrapf(types.ErrArchiveInconsistency, "archive %s holds %d bands, band %s is index %d", root, shape[1], task.Band, bandIdx)
	}
	return skerr.Wrap(arr.WriteSlot(ctx, timeIdx, bandIdx, data))
}

// timeIndex resolves the sensing time to its index on the archive's time
// axis. The axis is served from the cache; a miss against a cached copy
// re-reads the axis once in case the archive was re-prepared since.
func (s *Storer) timeIndex(ctx context.Context, store zarr.Store, path string, t time.Time) (int, error) {
	times, cached := s.cachedTimes(path)
	if !cached {
		var err error
		if times, err = s.readTimes(ctx, store, path); err != nil {
			return 0, err
		}
	}
	if i, ok := indexOfTime(times, t); ok {
		return i, nil
	}
	if cached {
		var err error
		if times, err = s.readTimes(ctx, store, path); err != nil {
			return 0, err
		}
		if i, ok := indexOfTime(times, t); ok {
			return i, nil
		}
	}
	return 0, skerr.Wrapf(types.ErrArchiveInconsistency, "sensing time %s is not on the time axis of %s", zarr.FormatTimestamp(t), path)
}

func (s *Storer) cachedTimes(path string) ([]time.Time, bool) {
	v, ok := s.times.Get(path)
	if !ok {
		return nil, false
	}
	return v.([]time.Time), true
}

func (s *Storer) readTimes(ctx context.Context, store zarr.Store, path string) ([]time.Time, error) {
	times, err := zarr.ReadTimestamps(ctx, store, path)
	if err != nil {
		if zarr.IsNotExist(err) {
			return nil, skerr.Wrapf(types.ErrArchiveInconsistency, "archive has no time axis at %s; was it prepared?", path)
		}
		return nil, skerr.Wrap(err)
	}
	s.times.Set(path, times, cache.DefaultExpiration)
	return times, nil
}

func indexOfTime(times []time.Time, t time.Time) (int, bool) {
	for i, v := range times {
		if v.Equal(t) {
			return i, true
		}
	}
	return 0, false
}

// indexOfBand is case-insensitive: catalogs name Landsat bands B4 while
// task payloads may carry b4.
func indexOfBand(order []string, band string) (int, bool) {
	for i, b := range order {
		if strings.EqualFold(b, band) {
			return i, true
		}
	}
	return 0, false
}

// resample scales the patch from patchRes to archiveRes meters per pixel
// with bicubic interpolation. Coarse bands are extracted at their native
// resolution and upsampled here onto the archive grid.
func resample(data []uint16, w, h, patchRes, archiveRes int) ([]uint16, int, int) {
	outW := w * patchRes / archiveRes
	outH := h * patchRes / archiveRes
	if outW <= 0 || outH <= 0 || (outW == w && outH == h) {
		return data, w, h
	}
	img := image.NewGray16(image.Rect(0, 0, w, h))
	for i, v := range data {
		img.Pix[2*i] = uint8(v >> 8)
		img.Pix[2*i+1] = uint8(v)
	}
	scaled := resize.Resize(uint(outW), uint(outH), img, resize.Bicubic)
	out := make([]uint16, outW*outH)
	if gray, ok := scaled.(*image.Gray16); ok {
		for i := range out {
			out[i] = uint16(gray.Pix[2*i])<<8 | uint16(gray.Pix[2*i+1])
		}
		return out, outW, outH
	}
	for y := 0; y < outH; y++ {
		for x := 0; x < outW; x++ {
			out[y*outW+x] = color.Gray16Model.Convert(scaled.At(x, y)).(color.Gray16).Y
		}
	}
	return out, outW, outH
}

// padToSlot grows the patch to the slot shape with zeros on the bottom and
// right, keeping the origin at the tile's upper left corner. Callers
// guarantee w <= slotW and h <= slotH.
func padToSlot(data []uint16, w, h, slotW, slotH int) []uint16 {
	out := make([]uint16, slotW*slotH)
	for y := 0; y < h; y++ {
		copy(out[y*slotW:y*slotW+w], data[y*w:(y+1)*w])
	}
	return out
}
