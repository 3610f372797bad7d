// eocube_worker serves extraction tasks pushed by the bus. One instance
// handles many tasks; each POST carries one task payload.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"strings"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/storage"
	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"

	"github.com/eocube/eocube/go/auth"
	"github.com/eocube/eocube/go/common"
	"github.com/eocube/eocube/go/extractor"
	"github.com/eocube/eocube/go/httputils"
	"github.com/eocube/eocube/go/monitor"
	"github.com/eocube/eocube/go/skerr"
	"github.com/eocube/eocube/go/sklog"
	"github.com/eocube/eocube/go/sklog/sklogimpl"
	"github.com/eocube/eocube/go/sklog/structuredlogging"
	"github.com/eocube/eocube/go/storer"
	"github.com/eocube/eocube/go/worker"
)

var (
	decoder      = flag.String("decoder", extractor.DefaultDecoder, "External JPEG2000 to GeoTIFF converter binary.")
	local        = flag.Bool("local", false, "Running locally if true. As opposed to in production.")
	monitorTable = flag.String("monitor_table", os.Getenv("MONITOR_TABLE"), "BigQuery status table as project.dataset.table. Defaults to the MONITOR_TABLE environment variable. Empty logs task statuses instead.")
	port         = flag.String("port", defaultPort(), "HTTP service port (e.g., ':8080'). Defaults to the PORT environment variable.")
	promPort     = flag.String("prom_port", ":20000", "Metrics service address (e.g., ':10110')")
	taskBudget   = flag.Duration("task_budget", worker.DefaultTaskBudget, "Wall clock budget for a single task.")
	workers      = flag.Int("workers", extractor.DefaultWorkers, "Concurrent asset reads within a task.")
)

func defaultPort() string {
	if p := os.Getenv("PORT"); p != "" {
		return ":" + p
	}
	return ":8080"
}

// monitorFactory returns the per-task status sink constructor. With no table
// configured, statuses only reach the log.
func monitorFactory(ctx context.Context, ts oauth2.TokenSource, table string) (worker.MonitorFactory, error) {
	var client *bigquery.Client
	if table != "" {
		project := bigquery.DetectProjectID
		if parts := strings.Split(table, "."); len(parts) == 3 {
			project = parts[0]
		}
		var err error
		client, err = bigquery.NewClient(ctx, project, option.WithTokenSource(ts))
		if err != nil {
			return nil, skerr.Wrapf(err, "creating BigQuery client for table %s", table)
		}
	}
	return func(storagePath, jobID, taskID, constellation string) (monitor.Monitor, error) {
		return monitor.New(client, table, storagePath, jobID, taskID, constellation)
	}, nil
}

func main() {
	common.InitWithMust(
		"eocube_worker",
		common.PrometheusOpt(promPort),
		common.MetricsLoggingOpt(),
	)
	defer common.Defer()
	if !*local {
		sklogimpl.SetLogger(structuredlogging.Logger())
	}
	ctx := context.Background()

	ts, err := auth.NewDefaultTokenSource(ctx, auth.ScopeReadWrite, auth.ScopeBigQuery)
	if err != nil {
		sklog.Fatalf("Failed to create token source: %s", err)
	}
	gcsClient, err := storage.NewClient(ctx, option.WithTokenSource(ts))
	if err != nil {
		sklog.Fatalf("Failed to create storage client: %s", err)
	}
	monitors, err := monitorFactory(ctx, ts, *monitorTable)
	if err != nil {
		sklog.Fatalf("Failed to set up the monitor: %s", err)
	}

	ext := extractor.New(extractor.NewGCSOpener(gcsClient), extractor.Options{
		Decoder: *decoder,
		Workers: *workers,
	})
	w := worker.New(ext, storer.New(), worker.NewGCSStores(gcsClient), monitors, worker.Options{
		TaskBudget: *taskBudget,
	})

	r := chi.NewRouter()
	r.Post("/", w.TaskHandler)
	h := httputils.LoggingRequestResponse(r)
	if !*local {
		h = httputils.HealthzAndHTTPS(h)
	}
	http.Handle("/", h)
	sklog.Infof("Ready to serve on %s", *port)
	sklog.Fatal(http.ListenAndServe(*port, nil))
}
