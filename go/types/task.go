package types

import (
	"time"

	"github.com/eocube/eocube/go/skerr"
)

// ExtractionTask is the unit of work dispatched to workers: extract one band
// of one revisit bucket for a cluster of tiles sharing a projection.
type ExtractionTask struct {
	// TaskID is a stringified monotonically increasing integer, unique
	// within a scheduling run.
	TaskID string `json:"task_id"`
	// Tiles all share the same EPSG.
	Tiles []Tile `json:"tiles"`
	// ItemCollection holds the catalog items whose footprints cover the
	// tiles within this task's revisit bucket.
	ItemCollection ItemCollection `json:"item_collection"`
	Band           string         `json:"band"`
	Constellation  string         `json:"constellation"`
	// SensingTime is the start of the task's revisit bucket.
	SensingTime time.Time `json:"sensing_time"`
}

// Validate returns ErrInvalidArgument when the task violates its
// construction invariants.
func (t *ExtractionTask) Validate() error {
	if t.TaskID == "" {
		return skerr.Wrapf(ErrInvalidArgument, "task has no task_id")
	}
	if len(t.Tiles) == 0 {
		return skerr.Wrapf(ErrInvalidArgument, "task %s has no tiles", t.TaskID)
	}
	epsg := t.Tiles[0].EPSG
	for _, tile := range t.Tiles[1:] {
		if tile.EPSG != epsg {
			return skerr.Wrapf(ErrInvalidArgument, "task %s mixes projections: %d and %d", t.TaskID, epsg, tile.EPSG)
		}
	}
	if t.Band == "" {
		return skerr.Wrapf(ErrInvalidArgument, "task %s has no band", t.TaskID)
	}
	if t.Constellation == "" {
		return skerr.Wrapf(ErrInvalidArgument, "task %s has no constellation", t.TaskID)
	}
	return nil
}

// EPSG returns the shared projection of the task's tiles.
func (t *ExtractionTask) EPSG() int {
	return t.Tiles[0].EPSG
}

// TaskPayload is the message published to the bus for each task, and the
// body workers receive (possibly wrapped in a push envelope).
type TaskPayload struct {
	// StorageGSPath is the archive root, e.g. "gs://bucket/dataset".
	StorageGSPath  string          `json:"storage_gs_path"`
	JobID          string          `json:"job_id"`
	ExtractionTask *ExtractionTask `json:"extraction_task"`
	// Bands is the archive band order for the task's constellation.
	Bands []string `json:"bands"`
	// Chunks is the archive chunk shape (1, 1, C, C).
	Chunks []int `json:"chunks"`
}

// Validate returns ErrInvalidArgument when the payload cannot be executed.
func (p *TaskPayload) Validate() error {
	if p.StorageGSPath == "" {
		return skerr.Wrapf(ErrInvalidArgument, "payload has no storage_gs_path")
	}
	if p.ExtractionTask == nil {
		return skerr.Wrapf(ErrInvalidArgument, "payload has no extraction_task")
	}
	if len(p.Bands) == 0 {
		return skerr.Wrapf(ErrInvalidArgument, "payload has no bands")
	}
	return p.ExtractionTask.Validate()
}
