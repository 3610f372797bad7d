package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eocube/eocube/go/bands"
	"github.com/eocube/eocube/go/extractor"
	"github.com/eocube/eocube/go/gcs"
	"github.com/eocube/eocube/go/gcs/mem_gcsclient"
	"github.com/eocube/eocube/go/geotiff"
	"github.com/eocube/eocube/go/geotiff/tifftest"
	"github.com/eocube/eocube/go/monitor"
	"github.com/eocube/eocube/go/skerr"
	"github.com/eocube/eocube/go/storer"
	"github.com/eocube/eocube/go/types"
	"github.com/eocube/eocube/go/vfs"
	"github.com/eocube/eocube/go/zarr"
)

const storagePath = "gs://archive/root/mydata"

var sensed = time.Date(2020, 1, 5, 11, 13, 40, 0, time.UTC)

// workerTile is a 1500 m zone 30 tile aligned to the 15 m landsat-8 archive
// grid.
func workerTile() types.Tile {
	return types.Tile{
		Zone: 30, Row: "U", EPSG: 32630,
		MinX: 580500, MinY: 5610000, MaxX: 582000, MaxY: 5611500,
	}
}

func workerPayload(t *testing.T, tile types.Tile, href string) *types.TaskPayload {
	names, err := bands.Names("landsat-8")
	require.NoError(t, err)
	item := types.CatalogItem{
		ID:            "s1",
		Constellation: "landsat-8",
		SensingTime:   sensed,
		Assets:        map[string]types.Asset{"B4": {Href: href}},
		EPSG:          32630,
	}
	return &types.TaskPayload{
		StorageGSPath: storagePath,
		JobID:         "job-1",
		ExtractionTask: &types.ExtractionTask{
			TaskID:         "42",
			Tiles:          []types.Tile{tile},
			ItemCollection: types.ItemCollection{item},
			Band:           "B4",
			Constellation:  "landsat-8",
			SensingTime:    sensed,
		},
		Bands:  names,
		Chunks: []int{1, 1, 50, 50},
	}
}

type statusEvent struct {
	status  monitor.Status
	payload string
}

// monitorRecorder is both the factory and the sink, recording what the
// worker reports.
type monitorRecorder struct {
	calls         int
	storagePath   string
	jobID         string
	taskID        string
	constellation string
	err           error
	events        []statusEvent
}

func (m *monitorRecorder) factory(storagePath, jobID, taskID, constellation string) (monitor.Monitor, error) {
	m.calls++
	m.storagePath = storagePath
	m.jobID = jobID
	m.taskID = taskID
	m.constellation = constellation
	return m, nil
}

func (m *monitorRecorder) PostStatus(_ context.Context, status monitor.Status, payload string) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, statusEvent{status: status, payload: payload})
	return nil
}

// imageryOpener serves gs://imagery/ asset URLs from an in-memory bucket.
type imageryOpener struct {
	fs vfs.FS
}

func (o imageryOpener) Open(ctx context.Context, url string) (vfs.File, error) {
	return o.fs.Open(ctx, strings.TrimPrefix(url, "gs://imagery/"))
}

// memStores hands out in-memory archive stores by storage path.
type memStores struct {
	stores map[string]zarr.Store
}

func (m memStores) OpenStore(_ context.Context, path string) (zarr.Store, error) {
	store, ok := m.stores[path]
	if !ok {
		return nil, skerr.Wrapf(types.ErrInvalidArgument, "unknown storage path %q", path)
	}
	return store, nil
}

func newTestWorker(t *testing.T, files map[string][]byte, mon *monitorRecorder) (*Worker, zarr.Store) {
	ctx := context.Background()
	client := mem_gcsclient.New("imagery")
	for path, b := range files {
		require.NoError(t, client.SetFileContents(ctx, path, gcs.FileWriteOptions{}, b))
	}
	ext := extractor.New(imageryOpener{fs: vfs.InGCS(client, "")}, extractor.Options{TempDir: t.TempDir(), Workers: 2})
	store := zarr.NewMemStore()
	stores := memStores{stores: map[string]zarr.Store{storagePath: store}}
	return New(ext, storer.New(), stores, mon.factory, Options{}), store
}

// prepareArchive creates the tile's data and time axis the way the preparer
// lays them out.
func prepareArchive(ctx context.Context, t *testing.T, store zarr.Store, tile types.Tile, numBands int) {
	root := tile.ID() + "/landsat-8"
	_, err := zarr.Create(ctx, store, root+"/data", []int{1, numBands, 100, 100}, []int{1, 1, 50, 50}, "<u2")
	require.NoError(t, err)
	require.NoError(t, zarr.WriteTimestamps(ctx, store, root+"/timestamps", []time.Time{sensed}))
}

func post(w *Worker, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	w.TaskHandler(rec, req)
	return rec
}

// envelope wraps payload JSON the way a push delivery does, base64 inside
// "data".
func envelope(t *testing.T, payload *types.TaskPayload) []byte {
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	body, err := json.Marshal(map[string]interface{}{
		"message":      map[string]interface{}{"data": raw, "messageId": "11"},
		"subscription": "projects/my-project/subscriptions/alice-eocube",
	})
	require.NoError(t, err)
	return body
}

func TestTaskHandler_ExtractsAndStores(t *testing.T) {
	ctx := context.Background()
	tile := workerTile()
	// One 15 m scene exactly covering the tile.
	raw := tifftest.Build(t, tifftest.Uniform(100, 100, 777), 100, 100, 32630, geotiff.NorthUp(15, 580500, 5611500))
	mon := &monitorRecorder{}
	w, store := newTestWorker(t, map[string][]byte{"scenes/s1_B4.TIF": raw}, mon)

	names, err := bands.Names("landsat-8")
	require.NoError(t, err)
	prepareArchive(ctx, t, store, tile, len(names))

	rec := post(w, envelope(t, workerPayload(t, tile, "gs://imagery/scenes/s1_B4.TIF")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Extracted 1 patches.", rec.Body.String())

	assert.Equal(t, 1, mon.calls)
	assert.Equal(t, storagePath, mon.storagePath)
	assert.Equal(t, "job-1", mon.jobID)
	assert.Equal(t, "42", mon.taskID)
	assert.Equal(t, "landsat-8", mon.constellation)
	require.Len(t, mon.events, 2)
	assert.Equal(t, monitor.Started, mon.events[0].status)
	assert.Equal(t, "Extracting 1 tiles", mon.events[0].payload)
	assert.Equal(t, monitor.Finished, mon.events[1].status)
	assert.True(t, strings.HasPrefix(mon.events[1].payload, "Elapsed time: "), mon.events[1].payload)

	// B4 is the fourth band of the landsat-8 archive axis.
	arr, err := zarr.Open(ctx, store, tile.ID()+"/landsat-8/data")
	require.NoError(t, err)
	data, err := arr.ReadSlot(ctx, 0, 3)
	require.NoError(t, err)
	for i, v := range data {
		require.Equal(t, uint16(777), v, "pixel %d", i)
	}
}

func TestTaskHandler_AcceptsRawPayload(t *testing.T) {
	ctx := context.Background()
	tile := workerTile()
	raw := tifftest.Build(t, tifftest.Uniform(100, 100, 5), 100, 100, 32630, geotiff.NorthUp(15, 580500, 5611500))
	mon := &monitorRecorder{}
	w, store := newTestWorker(t, map[string][]byte{"scenes/s1_B4.TIF": raw}, mon)
	prepareArchive(ctx, t, store, tile, 11)

	body, err := json.Marshal(workerPayload(t, tile, "gs://imagery/scenes/s1_B4.TIF"))
	require.NoError(t, err)
	rec := post(w, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, mon.events, 2)
}

func TestTaskHandler_AcceptsInlineEnvelopeData(t *testing.T) {
	ctx := context.Background()
	tile := workerTile()
	raw := tifftest.Build(t, tifftest.Uniform(100, 100, 6), 100, 100, 32630, geotiff.NorthUp(15, 580500, 5611500))
	mon := &monitorRecorder{}
	w, store := newTestWorker(t, map[string][]byte{"scenes/s1_B4.TIF": raw}, mon)
	prepareArchive(ctx, t, store, tile, 11)

	payloadJSON, err := json.Marshal(workerPayload(t, tile, "gs://imagery/scenes/s1_B4.TIF"))
	require.NoError(t, err)
	body, err := json.Marshal(map[string]interface{}{
		"message": map[string]interface{}{"data": json.RawMessage(payloadJSON)},
	})
	require.NoError(t, err)

	rec := post(w, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, mon.events, 2)
}

func TestTaskHandler_MalformedDeliveriesAreBadRequests(t *testing.T) {
	mon := &monitorRecorder{}
	w, _ := newTestWorker(t, nil, mon)

	valid := workerPayload(t, workerTile(), "gs://imagery/scenes/s1_B4.TIF")
	valid.StorageGSPath = ""
	invalidPayload, err := json.Marshal(valid)
	require.NoError(t, err)

	bodies := map[string][]byte{
		"empty":              nil,
		"not JSON":           []byte("definitely not json"),
		"message, no data":   []byte(`{"message": {}}`),
		"data not base64":    []byte(`{"message": {"data": "%%%"}}`),
		"payload incomplete": invalidPayload,
	}
	for name, body := range bodies {
		rec := post(w, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
	// No status sink is built for deliveries that never became tasks.
	assert.Equal(t, 0, mon.calls)
	assert.Empty(t, mon.events)
}

func TestTaskHandler_FailedTaskPostsFailure(t *testing.T) {
	ctx := context.Background()
	tile := workerTile()
	mon := &monitorRecorder{}
	// The bucket has no scene, so extraction fails with a transient error.
	w, store := newTestWorker(t, nil, mon)
	prepareArchive(ctx, t, store, tile, 11)

	rec := post(w, envelope(t, workerPayload(t, tile, "gs://imagery/scenes/gone_B4.TIF")))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Extraction failed.")

	require.Len(t, mon.events, 2)
	assert.Equal(t, monitor.Started, mon.events[0].status)
	assert.Equal(t, monitor.Failed, mon.events[1].status)
	assert.Contains(t, mon.events[1].payload, "extracting task 42")
	// The failure payload carries the call stack annotations.
	assert.Contains(t, mon.events[1].payload, " At ")
}

func TestTaskHandler_SinkErrorsDoNotFailTheTask(t *testing.T) {
	ctx := context.Background()
	tile := workerTile()
	raw := tifftest.Build(t, tifftest.Uniform(100, 100, 9), 100, 100, 32630, geotiff.NorthUp(15, 580500, 5611500))
	mon := &monitorRecorder{err: skerr.Fmt("insert quota exceeded")}
	w, store := newTestWorker(t, map[string][]byte{"scenes/s1_B4.TIF": raw}, mon)
	prepareArchive(ctx, t, store, tile, 11)

	rec := post(w, envelope(t, workerPayload(t, tile, "gs://imagery/scenes/s1_B4.TIF")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	arr, err := zarr.Open(ctx, store, tile.ID()+"/landsat-8/data")
	require.NoError(t, err)
	data, err := arr.ReadSlot(ctx, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, uint16(9), data[0])
}

func TestUnwrapEnvelope(t *testing.T) {
	payload := []byte(`{"job_id": "j"}`)

	// Raw payloads pass through.
	got, err := unwrapEnvelope(payload)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	// Base64 data decodes.
	body, err := json.Marshal(map[string]interface{}{
		"message": map[string]interface{}{"data": payload},
	})
	require.NoError(t, err)
	got, err = unwrapEnvelope(body)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	// Inline JSON data passes through.
	got, err = unwrapEnvelope([]byte(`{"message": {"data": {"job_id": "j"}}}`))
	require.NoError(t, err)
	assert.JSONEq(t, string(payload), string(got))

	_, err = unwrapEnvelope(nil)
	require.ErrorIs(t, err, types.ErrInvalidArgument)

	_, err = unwrapEnvelope([]byte(`{"message": {"data": ""}}`))
	require.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestGCSStores_RejectsNonGSPaths(t *testing.T) {
	stores := NewGCSStores(nil)
	_, err := stores.OpenStore(context.Background(), "https://example.com/mydata")
	require.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestNew_DefaultsTaskBudget(t *testing.T) {
	w := New(nil, nil, nil, nil, Options{})
	assert.Equal(t, DefaultTaskBudget, w.budget)
	w = New(nil, nil, nil, nil, Options{TaskBudget: time.Minute})
	assert.Equal(t, time.Minute, w.budget)
}
