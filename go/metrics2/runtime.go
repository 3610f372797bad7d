package metrics2

import (
	"runtime"
	"time"
)

const (
	RUNTIME_STATS_FREQUENCY = time.Minute
)

func newRuntimeStat(metric string) Int64Metric {
	return GetInt64Metric("runtime_metrics", map[string]string{"metric": metric})
}

// RuntimeMetrics periodically reports runtime metrics, including an uptime
// liveness.
func RuntimeMetrics() {
	heapObjects := newRuntimeStat("heap_objects")
	heapInuse := newRuntimeStat("heap_in_use")
	pauseTotalNs := newRuntimeStat("pause_total_ns")
	numGoroutine := newRuntimeStat("num_goroutine")
	go func() {
		for range time.Tick(RUNTIME_STATS_FREQUENCY) {
			stats := new(runtime.MemStats)
			runtime.ReadMemStats(stats)

			heapObjects.Update(int64(stats.HeapObjects))
			heapInuse.Update(int64(stats.HeapInuse))
			pauseTotalNs.Update(int64(stats.PauseTotalNs))
			numGoroutine.Update(int64(runtime.NumGoroutine()))
		}
	}()

	// App uptime.
	_ = NewLiveness("uptime", nil)
}
