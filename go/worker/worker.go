// Package worker executes extraction tasks delivered by the bus. It decodes
// push deliveries, extracts the task's patches, writes them into the
// archive, and reports STARTED/FINISHED/FAILED task events to the monitor.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/eocube/eocube/go/bands"
	"github.com/eocube/eocube/go/extractor"
	"github.com/eocube/eocube/go/gcs"
	"github.com/eocube/eocube/go/gcs/gcsclient"
	"github.com/eocube/eocube/go/httputils"
	"github.com/eocube/eocube/go/monitor"
	"github.com/eocube/eocube/go/skerr"
	"github.com/eocube/eocube/go/sklog"
	"github.com/eocube/eocube/go/storer"
	"github.com/eocube/eocube/go/timer"
	"github.com/eocube/eocube/go/types"
	"github.com/eocube/eocube/go/zarr"
)

// DefaultTaskBudget bounds one task's wall clock. The subscription's ack
// deadline must exceed it or the bus redelivers tasks that are still
// running.
const DefaultTaskBudget = 15 * time.Minute

// MonitorFactory builds the status sink for one task.
type MonitorFactory func(storagePath, jobID, taskID, constellation string) (monitor.Monitor, error)

// StoreOpener maps a task's storage path to the archive store rooted there.
type StoreOpener interface {
	OpenStore(ctx context.Context, storagePath string) (zarr.Store, error)
}

// GCSStores opens archive stores for gs:// storage paths.
type GCSStores struct {
	client *storage.Client
}

// NewGCSStores returns a StoreOpener backed by the given client.
func NewGCSStores(client *storage.Client) *GCSStores {
	return &GCSStores{client: client}
}

// OpenStore implements StoreOpener.
func (s *GCSStores) OpenStore(_ context.Context, storagePath string) (zarr.Store, error) {
	rest, ok := strings.CutPrefix(storagePath, "gs://")
	if !ok {
		return nil, skerr.Wrapf(types.ErrInvalidArgument, "storage path %q is not a gs:// URL", storagePath)
	}
	bucket, prefix := gcs.SplitGSPath(rest)
	return zarr.NewGCSStore(gcsclient.New(s.client, bucket), prefix), nil
}

// Options configures a Worker. The zero value uses the defaults.
type Options struct {
	// TaskBudget bounds one task's wall clock. Zero means
	// DefaultTaskBudget.
	TaskBudget time.Duration
}

// Worker runs extraction tasks end to end.
type Worker struct {
	extractor *extractor.Extractor
	storer    *storer.Storer
	stores    StoreOpener
	monitors  MonitorFactory
	budget    time.Duration
}

// New returns a Worker. The storer is shared across tasks so its time axis
// cache survives between deliveries.
func New(ext *extractor.Extractor, st *storer.Storer, stores StoreOpener, monitors MonitorFactory, opts Options) *Worker {
	w := &Worker{
		extractor: ext,
		storer:    st,
		stores:    stores,
		monitors:  monitors,
		budget:    opts.TaskBudget,
	}
	if w.budget <= 0 {
		w.budget = DefaultTaskBudget
	}
	return w
}

// TaskHandler accepts one task delivery. The response code steers the bus:
// 2xx acks, 4xx acks malformed deliveries so they do not redeliver forever,
// 5xx nacks so the bus retries and eventually dead-letters.
func (w *Worker) TaskHandler(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputils.ReportError(rw, err, "Failed to read request body.", http.StatusBadRequest)
		return
	}
	payload, err := decodePayload(body)
	if err != nil {
		httputils.ReportError(rw, err, "Bad Request: invalid bus message.", http.StatusBadRequest)
		return
	}
	task := payload.ExtractionTask
	mon, err := w.monitors(payload.StorageGSPath, payload.JobID, task.TaskID, task.Constellation)
	if err != nil {
		httputils.ReportError(rw, err, "Failed to build status sink.", http.StatusInternalServerError)
		return
	}
	count, err := w.runTask(r.Context(), mon, payload)
	if err != nil {
		// The task context may have timed out; the FAILED event must
		// still reach the monitor.
		w.postStatus(context.WithoutCancel(r.Context()), mon, monitor.Failed, err.Error())
		httputils.ReportError(rw, err, "Extraction failed.", http.StatusInternalServerError)
		return
	}
	_, _ = fmt.Fprintf(rw, "Extracted %d patches.", count)
}

func (w *Worker) runTask(ctx context.Context, mon monitor.Monitor, payload *types.TaskPayload) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, w.budget)
	defer cancel()
	task := payload.ExtractionTask
	defer timer.New("task " + task.TaskID).Stop()
	tic := time.Now()

	sklog.Infof("Ready to extract %d tiles.", len(task.Tiles))
	w.postStatus(ctx, mon, monitor.Started, fmt.Sprintf("Extracting %d tiles", len(task.Tiles)))

	minGSD, err := bands.MinGSD(task.Constellation)
	if err != nil {
		return 0, skerr.Wrap(err)
	}
	resolution := int(minGSD)

	patches, err := w.extractor.Extract(ctx, task, resolution, extractor.Max)
	if err != nil {
		return 0, skerr.Wrapf(err, "extracting task %s", task.TaskID)
	}

	store, err := w.stores.OpenStore(ctx, payload.StorageGSPath)
	if err != nil {
		return 0, skerr.Wrap(err)
	}
	sklog.Infof("Ready to store %d patches at %s.", len(patches), payload.StorageGSPath)
	if err := w.storer.Store(ctx, store, patches, task, payload.Bands, resolution, resolution); err != nil {
		return 0, skerr.Wrapf(err, "storing task %s", task.TaskID)
	}

	w.postStatus(ctx, mon, monitor.Finished, fmt.Sprintf("Elapsed time: %s", time.Since(tic)))
	return len(patches), nil
}

// postStatus logs and swallows sink errors. A failed status write must not
// fail the task and trigger a redelivery.
func (w *Worker) postStatus(ctx context.Context, mon monitor.Monitor, status monitor.Status, payload string) {
	if err := mon.PostStatus(ctx, status, payload); err != nil {
		sklog.Warningf("Failed to post %s for the task: %s", status, err)
	}
}

// decodePayload extracts the task payload from an HTTP body, unwrapping the
// bus push envelope when one is present.
func decodePayload(body []byte) (*types.TaskPayload, error) {
	raw, err := unwrapEnvelope(body)
	if err != nil {
		return nil, err
	}
	payload := &types.TaskPayload{}
	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, skerr.Wrapf(types.ErrInvalidArgument, "decoding task payload: %s", err)
	}
	if err := payload.Validate(); err != nil {
		return nil, skerr.Wrap(err)
	}
	return payload, nil
}

// unwrapEnvelope returns the payload JSON carried by body. Push deliveries
// wrap it as {"message": {"data": <base64 or inline JSON>}}; a bare payload
// passes through, which keeps manual curl deliveries working.
func unwrapEnvelope(body []byte) ([]byte, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, skerr.Wrapf(types.ErrInvalidArgument, "no bus message received")
	}
	var envelope struct {
		Message *struct {
			Data json.RawMessage `json:"data"`
		} `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, skerr.Wrapf(types.ErrInvalidArgument, "request body is not JSON: %s", err)
	}
	if envelope.Message == nil {
		return body, nil
	}
	data := bytes.TrimSpace(envelope.Message.Data)
	if len(data) == 0 {
		return nil, skerr.Wrapf(types.ErrInvalidArgument, "bus message has no data")
	}
	if data[0] == '{' {
		return data, nil
	}
	var decoded []byte
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, skerr.Wrapf(types.ErrInvalidArgument, "bus message data is not base64: %s", err)
	}
	return decoded, nil
}

var _ StoreOpener = (*GCSStores)(nil)
