package scheduler

import (
	"encoding/json"
	"io"

	"github.com/eocube/eocube/go/skerr"
	"github.com/eocube/eocube/go/types"
	"github.com/eocube/eocube/go/util"
)

// SaveTasks writes tasks to path as a JSON array.
func SaveTasks(path string, tasks []types.ExtractionTask) error {
	err := util.WithWriteFile(path, func(w io.Writer) error {
		return json.NewEncoder(w).Encode(tasks)
	})
	if err != nil {
		return skerr.Wrapf(err, "writing extraction tasks to %s", path)
	}
	return nil
}

// LoadTasks reads a task list written by SaveTasks.
func LoadTasks(path string) ([]types.ExtractionTask, error) {
	var tasks []types.ExtractionTask
	err := util.WithReadFile(path, func(r io.Reader) error {
		return json.NewDecoder(r).Decode(&tasks)
	})
	if err != nil {
		return nil, skerr.Wrapf(err, "reading extraction tasks from %s", path)
	}
	return tasks, nil
}
