// Package deployer publishes scheduled extraction tasks to the task bus.
//
// One bus message per task, all published up front and waited on together.
// The manifest of the published tasks is written under the storage root
// before anything is published, so every job id found in the status table
// can be traced back to its exact task list. The deployer does no
// idempotency filtering; the scheduler already dropped tasks whose sensing
// times are recorded in the archive.
package deployer

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/eocube/eocube/go/bands"
	"github.com/eocube/eocube/go/gcs"
	"github.com/eocube/eocube/go/skerr"
	"github.com/eocube/eocube/go/sklog"
	"github.com/eocube/eocube/go/timer"
	"github.com/eocube/eocube/go/types"
)

// defaultPublishBudget bounds how long each message may wait for the bus
// to accept it, queueing and retries included, when the caller passes no
// budget of its own.
const defaultPublishBudget = 60 * time.Second

// manifestName is the file recording a job's published tasks, written
// under {storagePath}/{jobID}/.
const manifestName = "extraction_tasks.json"

// Deploy publishes one message per task to the topic and writes the task
// manifest to {storagePath}/{jobID}/extraction_tasks.json. gcsClient must
// be bound to the storagePath bucket. chunkSize is the chunk edge the
// archives were prepared with, forwarded to workers in the payload.
// publishTimeout bounds each publish, zero or negative meaning the 60
// second default.
//
// Returns the generated job id.
func Deploy(ctx context.Context, topic *pubsub.Topic, gcsClient gcs.GCSClient, tasks []*types.ExtractionTask, storagePath string, chunkSize int, publishTimeout time.Duration) (string, error) {
	if len(tasks) == 0 {
		return "", skerr.Wrapf(types.ErrInvalidArgument, "no tasks to deploy")
	}
	if chunkSize <= 0 {
		return "", skerr.Wrapf(types.ErrInvalidArgument, "chunk size %d must be positive", chunkSize)
	}
	if publishTimeout <= 0 {
		publishTimeout = defaultPublishBudget
	}
	jobID := uuid.New().String()
	defer timer.New("deploying job " + jobID).Stop()

	// Encode every payload before touching the bus or the bucket so a bad
	// task aborts the job with nothing published.
	payloads := make([][]byte, len(tasks))
	for i, task := range tasks {
		bandNames, err := bands.Names(task.Constellation)
		if err != nil {
			return "", skerr.Wrap(err)
		}
		p := &types.TaskPayload{
			StorageGSPath:  storagePath,
			JobID:          jobID,
			ExtractionTask: task,
			Bands:          bandNames,
			Chunks:         []int{1, 1, chunkSize, chunkSize},
		}
		if err := p.Validate(); err != nil {
			return "", skerr.Wrap(err)
		}
		b, err := json.Marshal(p)
		if err != nil {
			return "", skerr.Wrapf(err, "encoding task %s", task.TaskID)
		}
		payloads[i] = b
	}

	if err := writeManifest(ctx, gcsClient, storagePath, jobID, tasks); err != nil {
		return "", skerr.Wrap(err)
	}

	sklog.Infof("Deploying %d tasks with job id %s.", len(tasks), jobID)
	topic.PublishSettings.Timeout = publishTimeout
	results := make([]*pubsub.PublishResult, len(payloads))
	for i, b := range payloads {
		results[i] = topic.Publish(ctx, &pubsub.Message{Data: b})
	}
	var result *multierror.Error
	for i, res := range results {
		if _, err := res.Get(ctx); err != nil {
			result = multierror.Append(result, skerr.Wrapf(err, "publishing task %s", tasks[i].TaskID))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return "", err
	}
	sklog.Infof("Published %d tasks.", len(tasks))
	return jobID, nil
}

func writeManifest(ctx context.Context, gcsClient gcs.GCSClient, storagePath, jobID string, tasks []*types.ExtractionTask) error {
	b, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return skerr.Wrap(err)
	}
	root, err := objectRoot(gcsClient, storagePath)
	if err != nil {
		return skerr.Wrap(err)
	}
	path := joinObject(root, jobID, manifestName)
	if err := gcsClient.SetFileContents(ctx, path, gcs.FILE_WRITE_OPTS_TEXT, b); err != nil {
		return skerr.Wrapf(err, "writing manifest %s", path)
	}
	sklog.Infof("Wrote task manifest gs://%s/%s.", gcsClient.Bucket(), path)
	return nil
}

// objectRoot strips the scheme and bucket from storagePath, checking the
// bucket is the one the client writes to.
func objectRoot(gcsClient gcs.GCSClient, storagePath string) (string, error) {
	rest, ok := strings.CutPrefix(storagePath, "gs://")
	if !ok {
		return "", skerr.Wrapf(types.ErrInvalidArgument, "storage path %q is not a gs:// URL", storagePath)
	}
	bucket, root := gcs.SplitGSPath(rest)
	if bucket != gcsClient.Bucket() {
		return "", skerr.Wrapf(types.ErrInvalidArgument, "storage path %q is not in bucket %s", storagePath, gcsClient.Bucket())
	}
	return root, nil
}

// joinObject joins object path segments, dropping empty ones.
func joinObject(segments ...string) string {
	nonEmpty := make([]string, 0, len(segments))
	for _, s := range segments {
		if s != "" {
			nonEmpty = append(nonEmpty, s)
		}
	}
	return strings.Join(nonEmpty, "/")
}
