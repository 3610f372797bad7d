package config

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"time"

	"github.com/eocube/eocube/go/bands"
	"github.com/eocube/eocube/go/skerr"
	"github.com/eocube/eocube/go/util"
	"github.com/flynn/json5"
)

// DateFormat is the layout of the start_date and end_date fields.
const DateFormat = "2006-01-02"

// Config is the full configuration of an extraction pipeline run. A single
// JSON5 file drives every task; each task reads the subset it needs.
type Config struct {
	// Cloud holds the Google Cloud settings shared by every task.
	Cloud Cloud `json:"cloud"`

	// DatasetName names the archive under the storage root. The archive
	// lives at "<storage_prefix>/<storage_root>/<dataset_name>".
	DatasetName string `json:"dataset_name"`

	// Region is the path of a GeoJSON file whose union of features bounds
	// the area of interest. Exactly one of Region and BBox must be set.
	Region string `json:"region" optional:"true"`

	// BBox bounds the area of interest directly as
	// [min_lon, min_lat, max_lon, max_lat] in WGS84. Ignored when Region is
	// set.
	BBox []float64 `json:"bbox" optional:"true"`

	// StartDate and EndDate bound the catalog search, inclusive, in
	// "2006-01-02" format.
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`

	// Constellations lists the constellations to extract, eg.
	// ["sentinel-2", "landsat-8"].
	Constellations []string `json:"constellations"`

	// Tiles is the path where the tile task writes the generated tiles.
	Tiles string `json:"tiles"`

	// ItemCollection is the path where the stac task writes the catalog
	// search results. A ".gz" suffix enables gzip compression.
	ItemCollection string `json:"item_collection"`

	// ExtractionTasks is the path where the schedule task writes the
	// generated extraction tasks.
	ExtractionTasks string `json:"extraction_tasks"`

	Tiler     Tiler     `json:"tiler"`
	Scheduler Scheduler `json:"scheduler"`
	Preparer  Preparer  `json:"preparer"`
	Deployer  Deployer  `json:"deployer"`

	// MonitorTable is the fully-qualified BigQuery table
	// ("project.dataset.table") which receives task status rows. Empty
	// means statuses are only logged.
	MonitorTable string `json:"monitor_table" optional:"true"`
}

// Cloud holds the Google Cloud settings shared by every task.
type Cloud struct {
	// Project is the GCP project ID.
	Project string `json:"project"`

	// Region is the GCP region the extraction service runs in, eg.
	// "europe-west1".
	Region string `json:"region"`

	// UserID prefixes every provisioned resource name so that multiple
	// users can share a project.
	UserID string `json:"user_id"`

	// Credentials is the path of a service account key file. Empty uses
	// application default credentials.
	Credentials string `json:"credentials" optional:"true"`

	// PushEndpoint is the worker URL the build task points the task
	// subscription at. Empty provisions a pull subscription.
	PushEndpoint string `json:"push_endpoint" optional:"true"`

	// ServiceAccount is the email of the service account the bus
	// authenticates push deliveries as. Only read when PushEndpoint is set.
	ServiceAccount string `json:"service_account" optional:"true"`

	// StoragePrefix is the scheme prefix of the storage path, eg. "gs:/"
	// for Google Cloud Storage or "." for a local archive.
	StoragePrefix string `json:"storage_prefix"`

	// StorageRoot is the bucket and directory under which archives are
	// written, eg. "my-bucket/eo".
	StorageRoot string `json:"storage_root"`
}

// Tiler configures the tile task.
type Tiler struct {
	// BBoxSize is the tile side length in meters. Tiles are aligned to
	// multiples of this size in their UTM zone.
	BBoxSize int `json:"bbox_size"`
}

// Scheduler configures the schedule task.
type Scheduler struct {
	// SplitM is the side length in meters of the UTM squares used to
	// cluster tiles into tasks. Must be at least the tile size.
	SplitM int `json:"split_m"`

	// IntervalDays is the length in days of the revisit buckets; items
	// whose sensing times fall in the same bucket extract as one task.
	IntervalDays int `json:"interval_days"`

	// Overwrite schedules every task even when the archive already holds
	// its sensing time.
	Overwrite bool `json:"overwrite"`
}

// Preparer configures the prepare task.
type Preparer struct {
	// PatchSize is the side length in meters of the patch stored per tile.
	PatchSize int `json:"patch_size"`

	// ChunkSize is the zarr chunk side length in pixels.
	ChunkSize int `json:"chunk_size"`
}

// Deployer configures the deploy task.
type Deployer struct {
	// Topic overrides the fully-qualified extraction topic. Empty derives
	// "projects/<project>/topics/<user_id>-eocube".
	Topic string `json:"topic" optional:"true"`

	// PublishTimeout bounds the retries of a single publish. Zero uses a
	// 60 second budget.
	PublishTimeout Duration `json:"publish_timeout" optional:"true"`
}

// StoragePath returns the root path of the dataset archive, eg.
// "gs://my-bucket/eo/my_dataset".
func (c *Config) StoragePath() string {
	return fmt.Sprintf("%s/%s/%s", c.Cloud.StoragePrefix, c.Cloud.StorageRoot, c.DatasetName)
}

// Topic returns the fully-qualified Pub/Sub topic extraction tasks are
// published to.
func (c *Config) Topic() string {
	if c.Deployer.Topic != "" {
		return c.Deployer.Topic
	}
	return fmt.Sprintf("projects/%s/topics/%s-eocube", c.Cloud.Project, c.Cloud.UserID)
}

// Window returns the parsed start and end dates of the extraction window.
func (c *Config) Window() (time.Time, time.Time, error) {
	start, err := time.Parse(DateFormat, c.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, skerr.Wrapf(err, "parsing start_date %q", c.StartDate)
	}
	end, err := time.Parse(DateFormat, c.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, skerr.Wrapf(err, "parsing end_date %q", c.EndDate)
	}
	return start, end, nil
}

// Validate implements util.Validator. It checks the cross-field rules which
// the required-field pass cannot express.
func (c *Config) Validate() error {
	start, end, err := c.Window()
	if err != nil {
		return skerr.Wrap(err)
	}
	if end.Before(start) {
		return skerr.Fmt("end_date %s precedes start_date %s", c.EndDate, c.StartDate)
	}
	if c.Region == "" && len(c.BBox) == 0 {
		return skerr.Fmt("one of region or bbox is required")
	}
	if c.Region == "" && len(c.BBox) != 4 {
		return skerr.Fmt("bbox must be [min_lon, min_lat, max_lon, max_lat], got %d values", len(c.BBox))
	}
	if len(c.Constellations) == 0 {
		return skerr.Fmt("at least one constellation is required")
	}
	for _, constellation := range c.Constellations {
		if !bands.IsValidConstellation(constellation) {
			return skerr.Fmt("unknown constellation %q; supported constellations are %v", constellation, bands.Constellations())
		}
	}
	if c.Tiler.BBoxSize <= 0 {
		return skerr.Fmt("tiler.bbox_size must be positive")
	}
	if c.Scheduler.SplitM < c.Tiler.BBoxSize {
		return skerr.Fmt("scheduler.split_m %d is smaller than tiler.bbox_size %d", c.Scheduler.SplitM, c.Tiler.BBoxSize)
	}
	if c.Scheduler.IntervalDays <= 0 {
		return skerr.Fmt("scheduler.interval_days must be positive")
	}
	if c.Preparer.PatchSize <= 0 {
		return skerr.Fmt("preparer.patch_size must be positive")
	}
	if c.Preparer.ChunkSize <= 0 {
		return skerr.Fmt("preparer.chunk_size must be positive")
	}
	return nil
}

var _ util.Validator = (*Config)(nil)

// LoadFromJSON5 reads the contents of path and decodes the JSON5 there into
// the provided struct. The passed in struct pointer is expected to have
// "json" struct tags for all fields. An error is returned if any non-struct,
// non-bool field is its zero value *unless* it is tagged with
// `optional:"true"`. If dst implements util.Validator it is validated after
// decoding.
func LoadFromJSON5(dst interface{}, path string) error {
	// Elem() dereferences a pointer or panics.
	rType := reflect.TypeOf(dst).Elem()
	if rType.Kind() != reflect.Struct {
		return skerr.Fmt("Input must be a pointer to a struct, got %T", dst)
	}
	err := util.WithReadFile(path, func(r io.Reader) error {
		return json5.NewDecoder(r).Decode(&dst)
	})
	if err != nil {
		return skerr.Wrapf(err, "reading config at %s", path)
	}

	rValue := reflect.Indirect(reflect.ValueOf(dst))
	if err := checkRequired(rValue); err != nil {
		return skerr.Wrapf(err, "validating config at %s", path)
	}
	if v, ok := dst.(util.Validator); ok {
		if err := v.Validate(); err != nil {
			return skerr.Wrapf(err, "validating config at %s", path)
		}
	}
	return nil
}

// checkRequired returns an error if any non-struct, non-bool fields of the
// given value have a zero value *unless* they have an optional tag with value
// true.
func checkRequired(rValue reflect.Value) error {
	rType := rValue.Type()
	for i := 0; i < rValue.NumField(); i++ {
		field := rType.Field(i)
		if field.Type.Kind() == reflect.Struct {
			if err := checkRequired(rValue.Field(i)); err != nil {
				return err
			}
			continue
		}
		if field.Type.Kind() == reflect.Bool {
			// For ease of use, booleans aren't compared against their zero
			// value, since that would effectively make them required to be
			// true always.
			continue
		}
		isJSON := field.Tag.Get("json")
		if isJSON == "" {
			// don't validate struct values w/o json tags (e.g.
			// Duration.Duration).
			continue
		}
		isOptional := field.Tag.Get("optional")
		if isOptional == "true" {
			continue
		}
		// defaults to being required
		if rValue.Field(i).IsZero() {
			return skerr.Fmt("Required %s to be non-zero", field.Name)
		}
	}
	return nil
}

// Duration is a time.Duration which may be unmarshaled from a JSON5 number of
// nanoseconds or a string understood by time.ParseDuration, eg. "90s" or
// "3h".
type Duration struct {
	time.Duration
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json5.Unmarshal(b, &v); err != nil {
		return skerr.Wrap(err)
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
	case string:
		var err error
		d.Duration, err = time.ParseDuration(value)
		if err != nil {
			return skerr.Wrapf(err, "parsing duration %q", value)
		}
	default:
		return skerr.Fmt("invalid duration: %v", v)
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}
