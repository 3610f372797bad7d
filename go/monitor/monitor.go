// Package monitor posts task lifecycle events to the run's status table.
//
// Every worker invocation reports STARTED when it accepts a task, then
// FINISHED or FAILED. Rows land in a BigQuery table provisioned by the
// builder, one row per event, so a run can be audited with a single query
// over (job_id, task_id).
package monitor

import (
	"context"
	"strings"

	"cloud.google.com/go/bigquery"

	"github.com/eocube/eocube/go/now"
	"github.com/eocube/eocube/go/skerr"
	"github.com/eocube/eocube/go/sklog"
	"github.com/eocube/eocube/go/types"
	"github.com/eocube/eocube/go/util"
)

// Status is the lifecycle stage a task reports.
type Status string

const (
	Started  Status = "STARTED"
	Finished Status = "FINISHED"
	Failed   Status = "FAILED"
)

// timestampLayout matches the archive's timestamp format so rows and
// archives line up in queries.
const timestampLayout = "2006-01-02T15:04:05.000000"

// maxPayload bounds msg_payload. FAILED events carry stack traces, which
// can run long; BigQuery rejects oversized rows outright.
const maxPayload = 16 * 1024

// Monitor posts the lifecycle events of one extraction task.
type Monitor interface {
	// PostStatus records one event. payload is free-form diagnostic text.
	PostStatus(ctx context.Context, status Status, payload string) error
}

// New returns a BigQuery-backed monitor when table is non-empty, and a
// log-only monitor otherwise. table names the destination as
// "project.dataset.table"; "dataset.table" resolves against the client's
// project.
func New(client *bigquery.Client, table, storagePath, jobID, taskID, constellation string) (Monitor, error) {
	if table == "" {
		sklog.Warningf("No monitor table configured; task %s statuses go to the log only.", taskID)
		return NewLog(jobID, taskID), nil
	}
	return NewBigQuery(client, table, storagePath, jobID, taskID, constellation)
}

// statusRow is one event in the status table. All fields are REQUIRED
// STRING columns, in the order the builder creates them.
type statusRow struct {
	Timestamp     string `bigquery:"timestamp"`
	JobID         string `bigquery:"job_id"`
	TaskID        string `bigquery:"task_id"`
	StorageGSPath string `bigquery:"storage_gs_path"`
	MsgType       string `bigquery:"msg_type"`
	MsgPayload    string `bigquery:"msg_payload"`
	DatasetName   string `bigquery:"dataset_name"`
	Constellation string `bigquery:"constellation"`
}

// rowInserter is the slice of *bigquery.Inserter used by BigQueryMonitor.
type rowInserter interface {
	Put(ctx context.Context, src interface{}) error
}

// BigQueryMonitor writes one row per event, bound to a single task.
type BigQueryMonitor struct {
	inserter      rowInserter
	storagePath   string
	jobID         string
	taskID        string
	constellation string
	datasetName   string
}

// NewBigQuery returns a monitor for one task writing to the given table.
func NewBigQuery(client *bigquery.Client, table, storagePath, jobID, taskID, constellation string) (*BigQueryMonitor, error) {
	inserter, err := inserterForTable(client, table)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	return &BigQueryMonitor{
		inserter:      inserter,
		storagePath:   storagePath,
		jobID:         jobID,
		taskID:        taskID,
		constellation: constellation,
		datasetName:   datasetName(storagePath),
	}, nil
}

// PostStatus implements Monitor.
func (m *BigQueryMonitor) PostStatus(ctx context.Context, status Status, payload string) error {
	if status != Started && status != Finished && status != Failed {
		return skerr.Wrapf(types.ErrInvalidArgument, "status %q is not one of STARTED, FINISHED, FAILED", status)
	}
	row := &statusRow{
		Timestamp:     now.Now(ctx).UTC().Format(timestampLayout),
		JobID:         m.jobID,
		TaskID:        m.taskID,
		StorageGSPath: m.storagePath,
		MsgType:       string(status),
		MsgPayload:    util.Truncate(payload, maxPayload),
		DatasetName:   m.datasetName,
		Constellation: m.constellation,
	}
	if err := m.inserter.Put(ctx, row); err != nil {
		return skerr.Wrapf(err, "posting %s for task %s", status, m.taskID)
	}
	return nil
}

// inserterForTable resolves "project.dataset.table" or "dataset.table".
func inserterForTable(client *bigquery.Client, table string) (*bigquery.Inserter, error) {
	parts := strings.Split(table, ".")
	switch len(parts) {
	case 3:
		return client.DatasetInProject(parts[0], parts[1]).Table(parts[2]).Inserter(), nil
	case 2:
		return client.Dataset(parts[0]).Table(parts[1]).Inserter(), nil
	default:
		return nil, skerr.Wrapf(types.ErrInvalidArgument, "monitor table %q must name project.dataset.table", table)
	}
}

// datasetName is the last path segment of the archive root, e.g.
// "gs://bucket/root/mydata" reports "mydata".
func datasetName(storagePath string) string {
	parts := strings.Split(storagePath, "/")
	return parts[len(parts)-1]
}

// LogMonitor reports statuses to the process log only.
type LogMonitor struct {
	jobID  string
	taskID string
}

// NewLog returns a log-only monitor for one task.
func NewLog(jobID, taskID string) *LogMonitor {
	return &LogMonitor{jobID: jobID, taskID: taskID}
}

// PostStatus implements Monitor.
func (m *LogMonitor) PostStatus(ctx context.Context, status Status, payload string) error {
	sklog.Infof("Task %s (job %s) %s: %s", m.taskID, m.jobID, status, util.Truncate(payload, maxPayload))
	return nil
}

var _ Monitor = (*BigQueryMonitor)(nil)
var _ Monitor = (*LogMonitor)(nil)
