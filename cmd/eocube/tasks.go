package main

import (
	"context"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/ctessum/geom"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"

	"github.com/eocube/eocube/go/auth"
	"github.com/eocube/eocube/go/builder"
	"github.com/eocube/eocube/go/config"
	"github.com/eocube/eocube/go/deployer"
	"github.com/eocube/eocube/go/extractor"
	"github.com/eocube/eocube/go/fileutil"
	"github.com/eocube/eocube/go/gcs"
	"github.com/eocube/eocube/go/gcs/gcsclient"
	"github.com/eocube/eocube/go/geo"
	"github.com/eocube/eocube/go/preparer"
	"github.com/eocube/eocube/go/scheduler"
	"github.com/eocube/eocube/go/skerr"
	"github.com/eocube/eocube/go/sklog"
	"github.com/eocube/eocube/go/stac"
	"github.com/eocube/eocube/go/tiler"
	"github.com/eocube/eocube/go/types"
	"github.com/eocube/eocube/go/util"
	"github.com/eocube/eocube/go/zarr"
)

// pipeline carries the configuration and credentials shared by the tasks
// of one invocation.
type pipeline struct {
	cfg       *config.Config
	overwrite bool
	workers   int

	// out receives the task summary tables.
	out io.Writer

	// ts is built on first use so credential-free tasks, tile in
	// particular, run without any cloud setup.
	ts oauth2.TokenSource
}

func newPipeline(cfg *config.Config, flags *pipelineFlags) *pipeline {
	return &pipeline{
		cfg:       cfg,
		overwrite: flags.Overwrite,
		workers:   flags.Workers,
		out:       os.Stdout,
	}
}

func (p *pipeline) runTask(ctx context.Context, task string) error {
	switch task {
	case "build":
		return p.build(ctx)
	case "stac":
		return p.searchCatalog(ctx)
	case "tile":
		return p.tile(ctx)
	case "schedule":
		return p.schedule(ctx)
	case "prepare":
		return p.prepare(ctx)
	case "deploy":
		return p.deploy(ctx)
	}
	return skerr.Fmt("unknown task %q", task)
}

// build provisions the task bus and the status table. Reruns converge:
// existing resources are updated in place.
func (p *pipeline) build(ctx context.Context) error {
	cloud := p.cfg.Cloud
	ts, err := p.tokenSource(ctx)
	if err != nil {
		return err
	}
	psClient, err := pubsub.NewClient(ctx, cloud.Project, option.WithTokenSource(ts))
	if err != nil {
		return skerr.Wrap(err)
	}
	defer util.Close(psClient)
	bqClient, err := bigquery.NewClient(ctx, cloud.Project, option.WithTokenSource(ts))
	if err != nil {
		return skerr.Wrap(err)
	}
	defer util.Close(bqClient)
	params := builder.Params{
		Project:        cloud.Project,
		UserID:         cloud.UserID,
		PushEndpoint:   cloud.PushEndpoint,
		ServiceAccount: cloud.ServiceAccount,
	}
	if err := builder.Build(ctx, psClient, builder.NewBigQueryAdmin(bqClient), params); err != nil {
		return err
	}
	sklog.Infof("Point the worker's MONITOR_TABLE at %s.", params.MonitorTable())
	return nil
}

// searchCatalog finds the scenes covering the region in the configured
// window and writes them to the item collection path.
func (p *pipeline) searchCatalog(ctx context.Context) error {
	path := p.cfg.ItemCollection
	if !p.overwrite && fileutil.FileExists(path) {
		sklog.Infof("Item collection %s already exists. Skipping.", path)
		return nil
	}
	region, err := regionFromConfig(p.cfg)
	if err != nil {
		return err
	}
	start, end, err := p.cfg.Window()
	if err != nil {
		return err
	}
	ts, err := p.tokenSource(ctx)
	if err != nil {
		return err
	}
	catalog, err := stac.NewBigQueryCatalog(ctx, p.cfg.Cloud.Project, ts)
	if err != nil {
		return err
	}
	var items types.ItemCollection
	for _, constellation := range p.cfg.Constellations {
		found, err := catalog.Search(ctx, region, start, end, constellation)
		if err != nil {
			return skerr.Wrapf(err, "searching for %s scenes", constellation)
		}
		items = append(items, found...)
	}
	if len(items) == 0 {
		sklog.Warningf("No scenes found between %s and %s.", p.cfg.StartDate, p.cfg.EndDate)
	}
	if err := stac.SaveItemCollection(path, items); err != nil {
		return err
	}
	sklog.Infof("Saved %s items to %s.", humanize.Comma(int64(len(items))), path)
	printItemSummary(p.out, items)
	return nil
}

// tile partitions the region into bbox-size squares and writes them to the
// tiles path.
func (p *pipeline) tile(ctx context.Context) error {
	path := p.cfg.Tiles
	if !p.overwrite && fileutil.FileExists(path) {
		sklog.Infof("Tiles %s already exist. Skipping.", path)
		return nil
	}
	region, err := regionFromConfig(p.cfg)
	if err != nil {
		return err
	}
	size := float64(p.cfg.Tiler.BBoxSize)
	tiles, err := tiler.Split(region, size, size)
	if err != nil {
		return err
	}
	if len(tiles) == 0 {
		return skerr.Fmt("the region produced no tiles")
	}
	if err := tiler.SaveTiles(path, tiles); err != nil {
		return err
	}
	zones := map[int]bool{}
	for _, t := range tiles {
		zones[t.Zone] = true
	}
	sklog.Infof("Saved %s tiles across %d UTM zones to %s.", humanize.Comma(int64(len(tiles))), len(zones), path)
	return nil
}

// schedule plans the extraction tasks from the tiles and the catalog
// items and writes them to the extraction tasks path. Work the archive
// already holds is dropped unless scheduler.overwrite is configured.
func (p *pipeline) schedule(ctx context.Context) error {
	path := p.cfg.ExtractionTasks
	if !p.overwrite && fileutil.FileExists(path) {
		sklog.Infof("Extraction tasks %s already exist. Skipping.", path)
		return nil
	}
	tiles, err := tiler.LoadTiles(p.cfg.Tiles)
	if err != nil {
		return err
	}
	items, err := stac.LoadItemCollection(p.cfg.ItemCollection)
	if err != nil {
		return err
	}
	store, closer, err := p.openStore(ctx)
	if err != nil {
		return err
	}
	defer util.Close(closer)
	tasks, err := scheduler.Schedule(ctx, store, tiles, items, p.cfg.Constellations, nil,
		p.cfg.Scheduler.IntervalDays, float64(p.cfg.Scheduler.SplitM),
		p.cfg.Scheduler.Overwrite, p.workers)
	if err != nil {
		return err
	}
	if err := scheduler.SaveTasks(path, tasks); err != nil {
		return err
	}
	sklog.Infof("Saved %s extraction tasks to %s.", humanize.Comma(int64(len(tasks))), path)
	printTaskSummary(p.out, tasks)
	return nil
}

// prepare creates or grows the archive arrays so every scheduled task has
// a slot to write into.
func (p *pipeline) prepare(ctx context.Context) error {
	tiles, err := tiler.LoadTiles(p.cfg.Tiles)
	if err != nil {
		return err
	}
	tasks, err := scheduler.LoadTasks(p.cfg.ExtractionTasks)
	if err != nil {
		return err
	}
	store, closer, err := p.openStore(ctx)
	if err != nil {
		return err
	}
	defer util.Close(closer)
	times := preparer.SensingTimesFromTasks(tiles, p.cfg.Constellations, tasks)
	err = preparer.Prepare(ctx, store, tiles, p.cfg.Constellations,
		p.cfg.Preparer.PatchSize, p.cfg.Preparer.ChunkSize, times, p.overwrite, p.workers)
	if err != nil {
		return err
	}
	sklog.Infof("Prepared the archive at %s.", p.cfg.StoragePath())
	return nil
}

// deploy publishes every scheduled task to the bus and copies the Landsat
// MTL sidecars next to the patches they describe.
func (p *pipeline) deploy(ctx context.Context) error {
	loaded, err := scheduler.LoadTasks(p.cfg.ExtractionTasks)
	if err != nil {
		return err
	}
	tasks := make([]*types.ExtractionTask, len(loaded))
	for i := range loaded {
		tasks[i] = &loaded[i]
	}
	project, topicID, err := splitTopic(p.cfg.Topic())
	if err != nil {
		return err
	}
	ts, err := p.tokenSource(ctx)
	if err != nil {
		return err
	}
	psClient, err := pubsub.NewClient(ctx, project, option.WithTokenSource(ts))
	if err != nil {
		return skerr.Wrap(err)
	}
	defer util.Close(psClient)
	topic := psClient.Topic(topicID)
	defer topic.Stop()

	bucket, _, err := splitStoragePath(p.cfg.StoragePath())
	if err != nil {
		return err
	}
	client, err := p.newStorageClient(ctx)
	if err != nil {
		return err
	}
	defer util.Close(client)
	gcsClient := gcsclient.New(client, bucket)

	jobID, err := deployer.Deploy(ctx, topic, gcsClient, tasks, p.cfg.StoragePath(),
		p.cfg.Preparer.ChunkSize, p.cfg.Deployer.PublishTimeout.Duration)
	if err != nil {
		return err
	}
	err = deployer.CopyMTLFiles(ctx, extractor.NewGCSOpener(client), gcsClient, tasks,
		p.cfg.StoragePath(), p.workers)
	if err != nil {
		return err
	}
	sklog.Infof("Deployed job %s: %s tasks published to %s.",
		jobID, humanize.Comma(int64(len(tasks))), p.cfg.Topic())
	return nil
}

func (p *pipeline) tokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	if p.ts != nil {
		return p.ts, nil
	}
	ts, err := auth.NewTokenSource(ctx, p.cfg.Cloud.Credentials,
		auth.ScopeReadWrite, auth.ScopePubSub, auth.ScopeBigQuery)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	p.ts = ts
	return ts, nil
}

func (p *pipeline) newStorageClient(ctx context.Context) (*storage.Client, error) {
	ts, err := p.tokenSource(ctx)
	if err != nil {
		return nil, err
	}
	client, err := storage.NewClient(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	return client, nil
}

// openStore opens the archive store under the configured storage path.
// The returned closer releases the client behind the store.
func (p *pipeline) openStore(ctx context.Context) (zarr.Store, io.Closer, error) {
	bucket, root, err := splitStoragePath(p.cfg.StoragePath())
	if err != nil {
		return nil, nil, err
	}
	client, err := p.newStorageClient(ctx)
	if err != nil {
		return nil, nil, err
	}
	return zarr.NewGCSStore(gcsclient.New(client, bucket), root), client, nil
}

// splitStoragePath splits "gs://bucket/root/dataset" into the bucket and
// the object root.
func splitStoragePath(storagePath string) (bucket, root string, err error) {
	rest, ok := strings.CutPrefix(storagePath, "gs://")
	if !ok {
		return "", "", skerr.Wrapf(types.ErrInvalidArgument, "storage path %q is not a gs:// URL", storagePath)
	}
	bucket, root = gcs.SplitGSPath(rest)
	if root == "" {
		return "", "", skerr.Wrapf(types.ErrInvalidArgument, "storage path %q has no object root", storagePath)
	}
	return bucket, root, nil
}

// splitTopic splits a fully qualified "projects/<p>/topics/<t>" name.
func splitTopic(topic string) (project, id string, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != "projects" || parts[2] != "topics" || parts[1] == "" || parts[3] == "" {
		return "", "", skerr.Wrapf(types.ErrInvalidArgument, "topic %q is not of the form projects/<project>/topics/<topic>", topic)
	}
	return parts[1], parts[3], nil
}

// regionFromConfig resolves the area of interest: the union of the GeoJSON
// features at cfg.Region, or the inline bbox.
func regionFromConfig(cfg *config.Config) (geom.Polygonal, error) {
	if cfg.Region != "" {
		data, err := os.ReadFile(cfg.Region)
		if err != nil {
			return nil, skerr.Wrapf(err, "reading region %s", cfg.Region)
		}
		region, err := geo.ParseRegion(data)
		if err != nil {
			return nil, skerr.Wrapf(err, "parsing region %s", cfg.Region)
		}
		return region, nil
	}
	b := cfg.BBox
	if len(b) != 4 {
		return nil, skerr.Wrapf(types.ErrInvalidArgument, "bbox needs [min_lon, min_lat, max_lon, max_lat], got %v", b)
	}
	return geom.Polygon{{
		{X: b[0], Y: b[1]},
		{X: b[2], Y: b[1]},
		{X: b[2], Y: b[3]},
		{X: b[0], Y: b[3]},
	}}, nil
}

// printItemSummary renders one row per constellation with the item count
// and the sensing time range.
func printItemSummary(w io.Writer, items types.ItemCollection) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Constellation", "Items", "First", "Last"})
	for _, constellation := range items.Constellations() {
		sub := items.FilterConstellation(constellation)
		first, last, ok := sub.SensingTimeRange()
		if !ok {
			continue
		}
		table.Append([]string{
			constellation,
			humanize.Comma(int64(len(sub))),
			first.Format(config.DateFormat),
			last.Format(config.DateFormat),
		})
	}
	table.Render()
}

// printTaskSummary renders one row per constellation with the task count
// and the tile and revisit counts behind it.
func printTaskSummary(w io.Writer, tasks []types.ExtractionTask) {
	type counts struct {
		tasks, tiles int
		revisits     map[time.Time]bool
	}
	byConstellation := map[string]*counts{}
	for _, task := range tasks {
		c := byConstellation[task.Constellation]
		if c == nil {
			c = &counts{revisits: map[time.Time]bool{}}
			byConstellation[task.Constellation] = c
		}
		c.tasks++
		c.tiles += len(task.Tiles)
		c.revisits[task.SensingTime] = true
	}
	names := make([]string, 0, len(byConstellation))
	for name := range byConstellation {
		names = append(names, name)
	}
	sort.Strings(names)
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Constellation", "Tasks", "Tiles", "Revisits"})
	for _, name := range names {
		c := byConstellation[name]
		table.Append([]string{
			name,
			humanize.Comma(int64(c.tasks)),
			humanize.Comma(int64(c.tiles)),
			humanize.Comma(int64(len(c.revisits))),
		})
	}
	table.Render()
}
