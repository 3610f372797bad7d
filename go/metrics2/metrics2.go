// Package metrics2 provides client interfaces for recording metrics, backed
// by Prometheus. Metrics are identified by a measurement name plus a
// map[string]string of tags; in many cases no extra tags are needed and nil
// can be passed.
package metrics2

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eocube/eocube/go/sklog"
)

// Timer is a struct used for measuring elapsed time. Unlike the other
// metrics, Timer does not continuously report data; a single data point is
// reported when Stop() is called.
type Timer interface {
	// Start starts or resets the timer.
	Start()

	// Stop stops the timer and reports the elapsed time.
	Stop() time.Duration
}

// Liveness keeps a time-since-last-successful-update metric.
//
// The unit of the metric is in seconds.
//
// It is used to keep track of periodic processes to make sure that they are
// running successfully. Every liveness metric should have a corresponding
// alert set up that will fire if the time-since-last-successful-update metric
// gets too large.
type Liveness interface {
	// Get returns the current value of the Liveness.
	Get() int64

	// ManualReset sets the last-successful-update time of the Liveness to a
	// specific value. Useful for tracking processes whose lifetimes are
	// outside of that of the current process, but should not be needed in
	// most cases.
	ManualReset(lastSuccessfulUpdate time.Time)

	// Reset should be called when some work has been successfully completed.
	Reset()

	// Close stops the liveness from updating its metric.
	Close()
}

// Int64Metric is a metric which reports an int64 value.
type Int64Metric interface {
	// Delete removes the metric from its Client's registry.
	Delete() error

	// Get returns the current value of the metric.
	Get() int64

	// Update adds a data point to the metric.
	Update(v int64)
}

// Float64Metric is a metric which reports a float64 value.
type Float64Metric interface {
	// Delete removes the metric from its Client's registry.
	Delete() error

	// Get returns the current value of the metric.
	Get() float64

	// Update adds a data point to the metric.
	Update(v float64)
}

// Float64SummaryMetric is a metric which reports a summary of many float64
// values.
type Float64SummaryMetric interface {
	// Observe adds a data point to the metric.
	Observe(v float64)
}

// Counter is a struct used for tracking metrics which increment or decrement.
type Counter interface {
	// Dec decrements the counter by the given quantity.
	Dec(i int64)

	// Delete removes the counter from metrics.
	Delete() error

	// Get returns the current value in the counter.
	Get() int64

	// Inc increments the counter by the given quantity.
	Inc(i int64)

	// Reset sets the counter to zero.
	Reset()
}

// Client represents a set of metrics.
type Client interface {
	// Flush pushes any queued data immediately. Long running apps shouldn't
	// worry about this as the Client will auto-push every so often.
	Flush() error

	// GetCounter creates or retrieves a Counter with the given name and tag
	// set and returns it.
	GetCounter(name string, tagsList ...map[string]string) Counter

	// GetFloat64Metric creates or retrieves a Float64Metric with the given
	// name and tag set and returns it.
	GetFloat64Metric(name string, tagsList ...map[string]string) Float64Metric

	// GetInt64Metric creates or retrieves an Int64Metric with the given name
	// and tag set and returns it.
	GetInt64Metric(name string, tagsList ...map[string]string) Int64Metric

	// GetFloat64SummaryMetric creates or retrieves a Float64SummaryMetric
	// with the given name and tag set and returns it.
	GetFloat64SummaryMetric(name string, tagsList ...map[string]string) Float64SummaryMetric

	// NewLiveness creates a new Liveness metric helper. The current time is
	// used as the last successful update time.
	NewLiveness(name string, tagsList ...map[string]string) Liveness

	// NewTimer creates and returns a new started Timer.
	NewTimer(name string, tagsList ...map[string]string) Timer
}

var defaultClient Client = newPromClient()

// GetDefaultClient returns the default Client.
func GetDefaultClient() Client {
	return defaultClient
}

// InitPrometheus initializes metrics to be reported to Prometheus.
//
// port - string, the port on which to serve the metrics, e.g. ":20000".
func InitPrometheus(port string) {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	go func() {
		sklog.Fatal(http.ListenAndServe(port, r))
	}()
}

// GetCounter creates or retrieves a Counter with the given name and tag set
// from the default client and returns it.
func GetCounter(name string, tags ...map[string]string) Counter {
	return defaultClient.GetCounter(name, tags...)
}

// GetFloat64Metric creates or retrieves a Float64Metric with the given name
// and tag set from the default client and returns it.
func GetFloat64Metric(name string, tags ...map[string]string) Float64Metric {
	return defaultClient.GetFloat64Metric(name, tags...)
}

// GetInt64Metric creates or retrieves an Int64Metric with the given name and
// tag set from the default client and returns it.
func GetInt64Metric(name string, tags ...map[string]string) Int64Metric {
	return defaultClient.GetInt64Metric(name, tags...)
}

// GetFloat64SummaryMetric creates or retrieves a Float64SummaryMetric with
// the given name and tag set from the default client and returns it.
func GetFloat64SummaryMetric(name string, tags ...map[string]string) Float64SummaryMetric {
	return defaultClient.GetFloat64SummaryMetric(name, tags...)
}

// NewLiveness creates a new Liveness metric helper using the default client.
func NewLiveness(name string, tags ...map[string]string) Liveness {
	return defaultClient.NewLiveness(name, tags...)
}

// NewTimer creates and returns a new started Timer using the default client.
func NewTimer(name string, tags ...map[string]string) Timer {
	return defaultClient.NewTimer(name, tags...)
}

// Flush pushes any queued data from the default client immediately.
func Flush() error {
	return defaultClient.Flush()
}
