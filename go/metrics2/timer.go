package metrics2

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

const (
	// NAME_FUNC_TIMER is the name of the metric recorded by FuncTimer.
	NAME_FUNC_TIMER = "func_timer"
)

// timer implements the Timer interface.
type timer struct {
	begin time.Time
	m     Float64SummaryMetric
}

// newTimer creates a new Timer using the given Client. The timer records
// elapsed durations, in nanoseconds, to a summary metric. If start is true
// the timer is started immediately.
func newTimer(c Client, name string, start bool, tagsList ...map[string]string) Timer {
	t := &timer{
		m: c.GetFloat64SummaryMetric(fmt.Sprintf("timer_%s_ns", clean(name)), tagsList...),
	}
	if start {
		t.Start()
	}
	return t
}

// Start implements the Timer interface.
func (t *timer) Start() {
	t.begin = time.Now()
}

// Stop implements the Timer interface.
func (t *timer) Stop() time.Duration {
	duration := time.Since(t.begin)
	t.m.Observe(float64(duration.Nanoseconds()))
	return duration
}

// FuncTimer is specifically intended for measuring the duration of functions.
// It uses the default client.
//
// The standard way to use FuncTimer is at the top of the func you want to
// measure:
//
//	func myfunc() {
//	    defer metrics2.FuncTimer().Stop()
//	}
func FuncTimer() Timer {
	pc := make([]uintptr, 10)
	runtime.Callers(2, pc)
	f := runtime.FuncForPC(pc[0])
	split := strings.Split(f.Name(), ".")
	fn := "unknown"
	pkg := "unknown"
	if len(split) >= 2 {
		fn = split[len(split)-1]
		pkg = strings.Join(split[:len(split)-1], ".")
	}
	return NewTimer(NAME_FUNC_TIMER, map[string]string{"package": pkg, "func": fn})
}

var _ Timer = (*timer)(nil)
