package cleanup

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRepeatThenCleanup(t *testing.T) {
	resetContext()
	var ticks, cleanups, exits int64
	Repeat(time.Millisecond, func() {
		atomic.AddInt64(&ticks, 1)
	}, func() {
		atomic.AddInt64(&cleanups, 1)
	})
	AtExit(func() {
		atomic.AddInt64(&exits, 1)
	})

	// The tick function runs at least once before shutdown; it is invoked
	// immediately when registered.
	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&ticks) >= 1
	}, 5*time.Second, time.Millisecond)

	Cleanup()
	require.GreaterOrEqual(t, atomic.LoadInt64(&ticks), int64(1))
	require.Equal(t, int64(1), atomic.LoadInt64(&cleanups))
	require.Equal(t, int64(1), atomic.LoadInt64(&exits))

	// Ticks stop after Cleanup.
	stopped := atomic.LoadInt64(&ticks)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, stopped, atomic.LoadInt64(&ticks))
}
