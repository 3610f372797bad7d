package config

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/eocube/eocube/go/testutils"
	"github.com/flynn/json5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Cloud: Cloud{
			Project:       "eo-test-project",
			Region:        "europe-west1",
			UserID:        "tester",
			StoragePrefix: "gs:/",
			StorageRoot:   "eo-test-bucket/archives",
		},
		DatasetName:     "coastal_monitoring",
		Region:          "aoi/region.geojson",
		StartDate:       "2020-01-01",
		EndDate:         "2020-02-01",
		Constellations:  []string{"sentinel-2", "landsat-8"},
		Tiles:           "artifacts/tiles.json",
		ItemCollection:  "artifacts/item_collection.json.gz",
		ExtractionTasks: "artifacts/extraction_tasks.json",
		Tiler:           Tiler{BBoxSize: 10000},
		Scheduler:       Scheduler{SplitM: 100000, IntervalDays: 1},
		Preparer:        Preparer{PatchSize: 10000, ChunkSize: 1000},
	}
}

func TestLoadFromJSON5_Success(t *testing.T) {
	path := filepath.Join(testutils.TestDataDir(t), "pipeline.json5")

	var cfg Config
	err := LoadFromJSON5(&cfg, path)
	require.NoError(t, err)

	expected := validConfig()
	expected.Deployer = Deployer{PublishTimeout: Duration{Duration: 90 * time.Second}}
	expected.MonitorTable = "eo-test-project.eocube.tester"
	assert.Equal(t, expected, cfg)
}

func TestLoadFromJSON5_RequiredFieldMissing_Error(t *testing.T) {
	path := filepath.Join(testutils.TestDataDir(t), "missing_dataset.json5")

	var cfg Config
	err := LoadFromJSON5(&cfg, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DatasetName")
}

func TestLoadFromJSON5_InvalidWindow_Error(t *testing.T) {
	path := filepath.Join(testutils.TestDataDir(t), "bad_window.json5")

	var cfg Config
	err := LoadFromJSON5(&cfg, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "end_date")
}

func TestLoadFromJSON5_MissingFile_Error(t *testing.T) {
	var cfg Config
	err := LoadFromJSON5(&cfg, filepath.Join(testutils.TestDataDir(t), "no_such.json5"))
	require.Error(t, err)
}

func TestConfig_StoragePath(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "gs://eo-test-bucket/archives/coastal_monitoring", cfg.StoragePath())
}

func TestConfig_Topic(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "projects/eo-test-project/topics/tester-eocube", cfg.Topic())

	cfg.Deployer.Topic = "projects/other/topics/custom"
	assert.Equal(t, "projects/other/topics/custom", cfg.Topic())
}

func TestConfig_Window(t *testing.T) {
	cfg := validConfig()
	start, end, err := cfg.Window()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestConfig_Validate(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	// An inline bbox replaces the region file.
	cfg = validConfig()
	cfg.Region = ""
	cfg.BBox = []float64{-3.5, 50.2, -3.1, 50.5}
	require.NoError(t, cfg.Validate())

	cfg = validConfig()
	cfg.Region = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "region or bbox")

	cfg = validConfig()
	cfg.Region = ""
	cfg.BBox = []float64{-3.5, 50.2, -3.1}
	require.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Constellations = []string{"sentinel-9"}
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sentinel-9")

	cfg = validConfig()
	cfg.Constellations = nil
	require.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Scheduler.SplitM = cfg.Tiler.BBoxSize / 2
	require.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Scheduler.IntervalDays = 0
	require.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Preparer.ChunkSize = 0
	require.Error(t, cfg.Validate())
}

func TestDuration_UnmarshalJSON(t *testing.T) {
	type holder struct {
		D Duration `json:"d"`
	}

	var h holder
	require.NoError(t, json5.Unmarshal([]byte(`{d: "3h"}`), &h))
	assert.Equal(t, 3*time.Hour, h.D.Duration)

	// A bare number is nanoseconds.
	require.NoError(t, json5.Unmarshal([]byte(`{d: 1500000000}`), &h))
	assert.Equal(t, 1500*time.Millisecond, h.D.Duration)

	require.Error(t, json5.Unmarshal([]byte(`{d: "not a duration"}`), &h))
	require.Error(t, json5.Unmarshal([]byte(`{d: [1]}`), &h))
}

func TestDuration_MarshalJSON(t *testing.T) {
	type holder struct {
		D Duration `json:"d"`
	}

	b, err := json.Marshal(holder{D: Duration{Duration: 90 * time.Second}})
	require.NoError(t, err)
	assert.Equal(t, `{"d":"1m30s"}`, string(b))
}
