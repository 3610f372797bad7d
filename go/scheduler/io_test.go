package scheduler

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eocube/eocube/go/types"
)

func TestSaveLoadTasks_RoundTrip(t *testing.T) {
	sensed := time.Date(2020, 1, 5, 11, 13, 40, 0, time.UTC)
	tasks := []types.ExtractionTask{
		{
			TaskID:         "0",
			Tiles:          []types.Tile{tileA, tileB},
			ItemCollection: types.ItemCollection{item("s1", "landsat-8", sensed, wideFootprint())},
			Band:           "B4",
			Constellation:  "landsat-8",
			SensingTime:    sensed,
		},
		{
			TaskID:         "1",
			Tiles:          []types.Tile{tileC},
			ItemCollection: types.ItemCollection{item("s2", "landsat-8", sensed, wideFootprint())},
			Band:           "B5",
			Constellation:  "landsat-8",
			SensingTime:    sensed,
		},
	}
	path := filepath.Join(t.TempDir(), "extraction_tasks.json")

	require.NoError(t, SaveTasks(path, tasks))
	loaded, err := LoadTasks(path)
	require.NoError(t, err)
	assert.Equal(t, tasks, loaded)
}

func TestLoadTasks_MissingFile(t *testing.T) {
	_, err := LoadTasks(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}
