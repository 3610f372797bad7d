// Package scheduler turns a tile grid and a scene catalog into the set of
// extraction tasks that bring an archive up to date.
//
// Tiles are first clustered with a coarser UTM grid so that every task
// covers a bounded geographic extent, then each cluster is matched against
// the catalog per revisit window. One task is emitted per (cluster, window,
// band) whose surviving tiles are fully covered by the window's imagery.
package scheduler

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/ctessum/geom/proj"

	"github.com/eocube/eocube/go/bands"
	"github.com/eocube/eocube/go/geo"
	"github.com/eocube/eocube/go/parallel"
	"github.com/eocube/eocube/go/skerr"
	"github.com/eocube/eocube/go/sklog"
	"github.com/eocube/eocube/go/tiler"
	"github.com/eocube/eocube/go/types"
	"github.com/eocube/eocube/go/util"
	"github.com/eocube/eocube/go/zarr"
)

// containsSlack absorbs the float noise polygon clipping leaves along
// shared edges when testing whether imagery contains a tile.
const containsSlack = 1e-9

// cluster is a group of tiles assigned to one split square. footprints[i]
// is the WGS84 outline of tiles[i]; the MultiPolygon as a whole is the
// cluster region matched against the catalog.
type cluster struct {
	tiles      []types.Tile
	footprints geom.MultiPolygon
}

// emission is one (cluster, revisit window) pairing that produced work.
type emission struct {
	sensingTime time.Time
	tiles       []types.Tile
	items       types.ItemCollection
}

// itemSpatial adapts one catalog item footprint for the R-tree.
type itemSpatial struct {
	idx    int
	bounds *geom.Bounds
}

func (s *itemSpatial) Bounds() *geom.Bounds { return s.bounds }

func (s *itemSpatial) Similar(g geom.Geom, tolerance float64) bool {
	return s.bounds.Similar(g, tolerance)
}

func (s *itemSpatial) Transform(t proj.Transformer) (geom.Geom, error) {
	return s.bounds.Transform(t)
}

func (s *itemSpatial) Len() int { return s.bounds.Len() }

func (s *itemSpatial) Points() func() geom.Point { return s.bounds.Points() }

// Schedule plans the extraction tasks that cover tiles with the given
// catalog items. Tiles are grouped by a splitM-sized UTM grid, the catalog
// is sliced into intervalDays revisit windows per constellation, and one
// task is emitted per (group, window, band) whose tiles are contained by
// the union of the window's scene footprints. Emitted tasks carry
// sensing_time = window start and their items sorted by sensing time.
//
// bandNames nil or empty selects every band of each constellation;
// otherwise each constellation runs the intersection of its band table
// with bandNames, in table order. A requested band unknown to all
// requested constellations is an ErrInvalidArgument.
//
// With overwrite false, store must hold the target archive: tasks whose
// sensing time is already recorded there are dropped. Task IDs are
// assigned before that filter, so surviving IDs keep their gaps.
func Schedule(ctx context.Context, store zarr.Store, tiles []types.Tile, items types.ItemCollection, constellations, bandNames []string, intervalDays int, splitM float64, overwrite bool, workers int) ([]types.ExtractionTask, error) {
	if intervalDays <= 0 {
		return nil, skerr.Wrapf(types.ErrInvalidArgument, "revisit interval must be positive, got %d days", intervalDays)
	}
	if !overwrite && store == nil {
		return nil, skerr.Wrapf(types.ErrInvalidArgument, "scheduling without overwrite needs an archive to check against")
	}
	runBands, err := resolveBands(constellations, bandNames)
	if err != nil {
		return nil, skerr.Wrap(err)
	}

	clusters, err := clusterTiles(tiles, splitM)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	if len(clusters) == 0 {
		sklog.Infof("No tiles to schedule.")
		return nil, nil
	}

	// Tasks carry their items sorted by sensing time; mosaic policies rely
	// on that order for deterministic ties.
	sorted := make(types.ItemCollection, len(items))
	copy(sorted, items)
	sorted.SortBySensingTime()

	interval := time.Duration(intervalDays) * 24 * time.Hour
	var tasks []types.ExtractionTask
	for _, constellation := range constellations {
		cItems := sorted.FilterConstellation(constellation)
		start, end, ok := cItems.SensingTimeRange()
		if !ok {
			sklog.Infof("Catalog has no %s items, skipping.", constellation)
			continue
		}
		windows, err := geo.Buckets(start, end, interval)
		if err != nil {
			return nil, skerr.Wrap(err)
		}
		emissions, err := matchWindows(ctx, clusters, cItems, windows, workers)
		if err != nil {
			return nil, skerr.Wrap(err)
		}
		for _, em := range emissions {
			for _, band := range runBands[constellation] {
				tasks = append(tasks, types.ExtractionTask{
					TaskID:         strconv.Itoa(len(tasks)),
					Tiles:          em.tiles,
					ItemCollection: em.items,
					Band:           band,
					Constellation:  constellation,
					SensingTime:    em.sensingTime,
				})
			}
		}
	}
	sklog.Infof("Planned %d extraction tasks across %d tile clusters.", len(tasks), len(clusters))
	if overwrite {
		return tasks, nil
	}

	kept, err := dropExtracted(ctx, store, tasks)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	if n := len(tasks) - len(kept); n > 0 {
		sklog.Infof("Dropped %d tasks already present in the archive.", n)
	}
	return kept, nil
}

// resolveBands maps each constellation to the bands tasks are emitted for:
// the constellation's full band table, or its intersection with the
// requested names, in table order either way. A requested band unknown to
// every requested constellation is an error; one known to only some
// constellations simply emits no tasks for the others.
func resolveBands(constellations, requested []string) (map[string][]string, error) {
	out := make(map[string][]string, len(constellations))
	known := map[string]bool{}
	for _, c := range constellations {
		names, err := bands.Names(c)
		if err != nil {
			return nil, skerr.Wrap(err)
		}
		if len(requested) == 0 {
			out[c] = names
			continue
		}
		var run []string
		for _, name := range names {
			known[name] = true
			if util.In(name, requested) {
				run = append(run, name)
			}
		}
		out[c] = run
	}
	for _, name := range requested {
		if !known[name] {
			return nil, skerr.Wrapf(types.ErrInvalidArgument, "band %q is not produced by any of %v", name, constellations)
		}
	}
	return out, nil
}

// clusterTiles groups tiles by the splitM-sized grid square that contains
// them. Containment requires the square and the tile to share a
// projection, so a square on a zone boundary never captures tiles from the
// neighboring zone. Tiles contained by no square are not scheduled.
func clusterTiles(tiles []types.Tile, splitM float64) ([]cluster, error) {
	if len(tiles) == 0 {
		return nil, nil
	}
	footprints := make([]geom.Polygon, len(tiles))
	region := make(geom.MultiPolygon, len(tiles))
	for i, t := range tiles {
		fp, err := t.FootprintWGS84()
		if err != nil {
			return nil, skerr.Wrap(err)
		}
		footprints[i] = fp
		region[i] = fp
	}
	splits, err := tiler.Split(region, splitM, splitM)
	if err != nil {
		return nil, skerr.Wrap(err)
	}

	var clusters []cluster
	assigned := 0
	for _, split := range splits {
		var c cluster
		for i, t := range tiles {
			if !split.Contains(t) {
				continue
			}
			c.tiles = append(c.tiles, t)
			c.footprints = append(c.footprints, footprints[i])
		}
		if len(c.tiles) == 0 {
			continue
		}
		assigned += len(c.tiles)
		clusters = append(clusters, c)
	}
	if assigned < len(tiles) {
		sklog.Warningf("%d of %d tiles fit in no split square and will not be scheduled. Is split_m a multiple of the tile size?", len(tiles)-assigned, len(tiles))
	}
	return clusters, nil
}

// matchWindows pairs every cluster with every revisit window and keeps the
// pairs where the window's imagery fully contains at least one tile.
// Geometric candidates are found once per cluster through an R-tree over
// the item footprints; the per-window time refinement runs in parallel.
func matchWindows(ctx context.Context, clusters []cluster, items types.ItemCollection, windows []geo.TimeRange, workers int) ([]emission, error) {
	tree := rtree.NewTree(25, 50)
	for i := range items {
		if items[i].Footprint == nil {
			continue
		}
		tree.Insert(&itemSpatial{idx: i, bounds: items[i].Footprint.Bounds()})
	}
	candidates := make([][]int, len(clusters))
	for ci := range clusters {
		region := clusters[ci].footprints
		for _, hit := range tree.SearchIntersect(region.Bounds()) {
			idx := hit.(*itemSpatial).idx
			if items[idx].Footprint.Intersection(region).Area() == 0 {
				continue
			}
			candidates[ci] = append(candidates[ci], idx)
		}
		// items is sorted by sensing time, so ascending indexes keep the
		// per-window item sets in time order.
		sort.Ints(candidates[ci])
	}

	perWindow := make([][]emission, len(windows))
	err := parallel.Map(ctx, len(windows), workers, func(_ context.Context, wi int) error {
		window := windows[wi]
		for ci := range clusters {
			var windowItems types.ItemCollection
			for _, idx := range candidates[ci] {
				if window.Contains(items[idx].SensingTime) {
					windowItems = append(windowItems, items[idx])
				}
			}
			if len(windowItems) == 0 {
				continue
			}
			covered := coveredTiles(&clusters[ci], windowItems.UnionFootprint())
			if len(covered) == 0 {
				continue
			}
			perWindow[wi] = append(perWindow[wi], emission{
				sensingTime: window.Start,
				tiles:       covered,
				items:       windowItems,
			})
		}
		return nil
	})
	if err != nil {
		return nil, skerr.Wrap(err)
	}

	var out []emission
	for _, ems := range perWindow {
		out = append(out, ems...)
	}
	return out, nil
}

// coveredTiles returns the cluster tiles whose footprint lies inside the
// imagery union. Clipping leaves noise slivers along shared edges, so a
// difference below containsSlack still counts as contained.
func coveredTiles(c *cluster, union geom.Polygonal) []types.Tile {
	if union == nil {
		return nil
	}
	var out []types.Tile
	for i, t := range c.tiles {
		if c.footprints[i].Difference(union).Area() < containsSlack {
			out = append(out, t)
		}
	}
	return out
}

// dropExtracted removes tasks whose sensing time is already recorded in
// the archive. All tiles of a task share one timestamps array layout, so
// only the first tile's archive is consulted. Absent or unreadable
// timestamps count as not yet extracted.
func dropExtracted(ctx context.Context, store zarr.Store, tasks []types.ExtractionTask) ([]types.ExtractionTask, error) {
	stored := map[string][]time.Time{}
	var kept []types.ExtractionTask
	for _, task := range tasks {
		path := task.Tiles[0].ID() + "/" + task.Constellation + "/timestamps"
		times, ok := stored[path]
		if !ok {
			var err error
			times, err = zarr.ReadTimestamps(ctx, store, path)
			switch {
			case err == nil:
			case zarr.IsNotExist(err) || errors.Is(err, types.ErrDataCorruption):
				times = nil
			default:
				return nil, skerr.Wrap(err)
			}
			stored[path] = times
		}
		if hasTime(times, task.SensingTime) {
			continue
		}
		kept = append(kept, task)
	}
	return kept, nil
}

func hasTime(times []time.Time, t time.Time) bool {
	for _, el := range times {
		if el.Equal(t) {
			return true
		}
	}
	return false
}

var _ geom.Geom = (*itemSpatial)(nil)
