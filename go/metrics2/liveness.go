package metrics2

import (
	"fmt"
	"sync"
	"time"
)

const (
	livenessReportFrequency = time.Minute
	measurementLiveness     = "liveness"
)

// liveness implements the Liveness interface.
type liveness struct {
	lastSuccessfulUpdate time.Time
	m                    Int64Metric
	mtx                  sync.Mutex
	stop                 chan struct{}
	stopOnce             sync.Once
}

// newLiveness creates a new Liveness metric helper using the given Client.
// The current time is used as the last successful update time. If startTicker
// is true, the metric is updated in the background every reporting interval;
// tests pass false and drive updates themselves.
func newLiveness(c Client, name string, startTicker bool, tagsList ...map[string]string) Liveness {
	tags := map[string]string{}
	for _, t := range tagsList {
		for k, v := range t {
			tags[k] = v
		}
	}
	l := &liveness{
		lastSuccessfulUpdate: time.Now(),
		m:                    c.GetInt64Metric(fmt.Sprintf("%s_%s_s", measurementLiveness, clean(name)), tags),
		stop:                 make(chan struct{}),
	}
	l.update()
	if startTicker {
		go func() {
			ticker := time.NewTicker(livenessReportFrequency)
			defer ticker.Stop()
			for {
				select {
				case <-l.stop:
					return
				case <-ticker.C:
					l.update()
				}
			}
		}()
	}
	return l
}

// update sets the metric to the time since the last successful update, in
// seconds.
func (l *liveness) update() {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.m.Update(int64(time.Since(l.lastSuccessfulUpdate).Seconds()))
}

// Get implements the Liveness interface.
func (l *liveness) Get() int64 {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.m.Get()
}

// Reset implements the Liveness interface.
func (l *liveness) Reset() {
	l.ManualReset(time.Now())
}

// ManualReset implements the Liveness interface.
func (l *liveness) ManualReset(lastSuccessfulUpdate time.Time) {
	l.mtx.Lock()
	l.lastSuccessfulUpdate = lastSuccessfulUpdate
	l.mtx.Unlock()
	l.update()
}

// Close implements the Liveness interface.
func (l *liveness) Close() {
	l.stopOnce.Do(func() {
		close(l.stop)
	})
}

var _ Liveness = (*liveness)(nil)
