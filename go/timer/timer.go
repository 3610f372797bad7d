// timer makes timing operations easier.
package timer

import (
	"time"

	"github.com/eocube/eocube/go/metrics2"
	"github.com/eocube/eocube/go/sklog"
)

// Timer is for timing events. When finished the duration is reported
// via sklog and, if a summary metric is attached, observed there too.
//
// The standard way to use Timer is at the top of the func you
// want to measure:
//
//	defer timer.New("mosaic merge time").Stop()
type Timer struct {
	Begin   time.Time
	Name    string
	Summary metrics2.Float64SummaryMetric
}

func New(name string) *Timer {
	return &Timer{
		Begin: time.Now(),
		Name:  name,
	}
}

// NewWithSummary returns a Timer that also records the measured duration, in
// seconds, to the given summary metric.
func NewWithSummary(name string, summary metrics2.Float64SummaryMetric) *Timer {
	return &Timer{
		Begin:   time.Now(),
		Name:    name,
		Summary: summary,
	}
}

func (t Timer) Stop() {
	duration := time.Now().Sub(t.Begin)
	sklog.Infof("%s %v", t.Name, duration)
	if t.Summary != nil {
		t.Summary.Observe(duration.Seconds())
	}
}
