// Package preparer creates and grows the per-tile archive skeletons that
// extraction workers later fill: the 4-D data array, the timestamps vector
// and any mask arrays, laid out per constellation under each tile root.
package preparer

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/eocube/eocube/go/bands"
	"github.com/eocube/eocube/go/parallel"
	"github.com/eocube/eocube/go/skerr"
	"github.com/eocube/eocube/go/sklog"
	"github.com/eocube/eocube/go/types"
	"github.com/eocube/eocube/go/zarr"
)

// SensingTimes holds, per tile ID and constellation, the sorted unique
// instants the archive must cover.
type SensingTimes map[string]map[string][]time.Time

// SensingTimesFromTasks aggregates the sensing times of the given tasks
// into the per-(tile, constellation) form Prepare consumes. Every requested
// (tile, constellation) pair gets an entry, possibly empty.
func SensingTimesFromTasks(tiles []types.Tile, constellations []string, tasks []types.ExtractionTask) SensingTimes {
	out := SensingTimes{}
	for _, tile := range tiles {
		byConstellation := map[string][]time.Time{}
		for _, c := range constellations {
			byConstellation[c] = nil
		}
		out[tile.ID()] = byConstellation
	}
	for _, task := range tasks {
		for _, tile := range task.Tiles {
			byConstellation, ok := out[tile.ID()]
			if !ok {
				continue
			}
			if _, ok := byConstellation[task.Constellation]; !ok {
				continue
			}
			byConstellation[task.Constellation] = append(byConstellation[task.Constellation], task.SensingTime)
		}
	}
	for _, byConstellation := range out {
		for c, times := range byConstellation {
			byConstellation[c] = sortUnique(times)
		}
	}
	return out
}

// Prepare builds or grows the archive under store for every (tile,
// constellation) pair with at least one sensing time. With overwrite the
// data and timestamps arrays are recreated from scratch; otherwise the new
// times are unioned into the existing ones, data and mask arrays are
// resized on the time axis first and timestamps are rewritten last, so a
// mid-run crash never leaves timestamps longer than data.
func Prepare(ctx context.Context, store zarr.Store, tiles []types.Tile, constellations []string, patchSize, chunkSize int, times SensingTimes, overwrite bool, workers int) error {
	if patchSize <= 0 || chunkSize <= 0 {
		return skerr.Wrapf(types.ErrInvalidArgument, "patch size %d and chunk size %d must be positive", patchSize, chunkSize)
	}
	for _, c := range constellations {
		if !bands.IsValidConstellation(c) {
			return skerr.Wrapf(types.ErrInvalidArgument, "unknown constellation %q", c)
		}
	}

	type job struct {
		tile          types.Tile
		constellation string
	}
	jobs := make([]job, 0, len(tiles)*len(constellations))
	for _, tile := range tiles {
		for _, c := range constellations {
			jobs = append(jobs, job{tile: tile, constellation: c})
		}
	}

	return parallel.Map(ctx, len(jobs), workers, func(ctx context.Context, i int) error {
		j := jobs[i]
		return prepareOne(ctx, store, j.tile, j.constellation, patchSize, chunkSize, times[j.tile.ID()][j.constellation], overwrite)
	})
}

func prepareOne(ctx context.Context, store zarr.Store, tile types.Tile, constellation string, patchSize, chunkSize int, times []time.Time, overwrite bool) error {
	if len(times) == 0 {
		return nil
	}
	bandList, err := bands.Bands(constellation)
	if err != nil {
		return skerr.Wrap(err)
	}
	gsd, err := bands.MinGSD(constellation)
	if err != nil {
		return skerr.Wrap(err)
	}
	pixels := int(float64(patchSize) / gsd)
	if pixels <= 0 {
		return skerr.Wrapf(types.ErrInvalidArgument, "patch size %d is below one %s pixel", patchSize, constellation)
	}

	tileRoot := tile.ID()
	root := tileRoot + "/" + constellation
	if err := zarr.EnsureGroup(ctx, store, tileRoot); err != nil {
		return skerr.Wrap(err)
	}
	if err := zarr.EnsureGroup(ctx, store, root); err != nil {
		return skerr.Wrap(err)
	}
	dataPath := root + "/data"
	timestampsPath := root + "/timestamps"

	if overwrite {
		if _, err := zarr.Create(ctx, store, dataPath, []int{len(times), len(bandList), pixels, pixels}, []int{1, 1, chunkSize, chunkSize}, "<u2"); err != nil {
			return skerr.Wrap(err)
		}
		return skerr.Wrap(zarr.WriteTimestamps(ctx, store, timestampsPath, times))
	}

	existing, err := zarr.ReadTimestamps(ctx, store, timestampsPath)
	if err != nil {
		// Absent or unreadable history counts as an empty archive; transport
		// failures propagate.
		if !zarr.IsNotExist(err) && !errors.Is(err, types.ErrDataCorruption) {
			return skerr.Wrap(err)
		}
		existing = nil
	}
	if len(existing) > 0 {
		maxExisting := existing[0]
		for _, t := range existing[1:] {
			if t.After(maxExisting) {
				maxExisting = t
			}
		}
		if times[0].Before(maxExisting) {
			sklog.Warningf("Archive %s can only append data newer than %s; got sensing times back to %s. Proceeding with the union.", timestampsPath, zarr.FormatTimestamp(maxExisting), zarr.FormatTimestamp(times[0]))
		}
	}
	union := sortUnique(append(append([]time.Time{}, existing...), times...))

	// Resize data before rewriting timestamps: timestamps.length is the
	// authoritative T for readers.
	data, err := zarr.Open(ctx, store, dataPath)
	switch {
	case err == nil:
		if err := data.Resize(ctx, len(union)); err != nil {
			return skerr.Wrap(err)
		}
	case zarr.IsNotExist(err):
		if _, err := zarr.Create(ctx, store, dataPath, []int{len(union), len(bandList), pixels, pixels}, []int{1, 1, chunkSize, chunkSize}, "<u2"); err != nil {
			return skerr.Wrap(err)
		}
	default:
		return skerr.Wrap(err)
	}

	maskNames, err := zarr.ListArrays(ctx, store, root+"/mask")
	if err != nil {
		return skerr.Wrap(err)
	}
	for _, name := range maskNames {
		mask, err := zarr.Open(ctx, store, root+"/mask/"+name)
		if err != nil {
			return skerr.Wrap(err)
		}
		if err := mask.Resize(ctx, len(union)); err != nil {
			return skerr.Wrap(err)
		}
	}

	return skerr.Wrap(zarr.WriteTimestamps(ctx, store, timestampsPath, union))
}

// sortUnique returns the times sorted ascending with duplicate instants
// collapsed.
func sortUnique(times []time.Time) []time.Time {
	if len(times) == 0 {
		return nil
	}
	out := append([]time.Time{}, times...)
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	dedup := out[:1]
	for _, t := range out[1:] {
		if !t.Equal(dedup[len(dedup)-1]) {
			dedup = append(dedup, t)
		}
	}
	return dedup
}
