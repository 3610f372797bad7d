package cleanup

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/eocube/eocube/go/sklog"
	"github.com/eocube/eocube/go/util"
)

var (
	cancel context.CancelFunc
	ctx    context.Context
	wg     sync.WaitGroup

	atExitFns []func()
	atExitMtx sync.Mutex
)

// Initialize the package.
func init() {
	resetContext()
}

// Reset the context. This is in a non-init function for testing purposes.
func resetContext() {
	// The below should be unnecessary but makes "go vet" happy.
	newContext, newCancel := context.WithCancel(context.Background())
	ctx = newContext
	cancel = newCancel
}

// Enable causes SIGINT and SIGTERM to trigger the clean shutdown procedure
// before the process exits.
func Enable() {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-interrupt
		sklog.Warningf("Caught %s", sig)
		Cleanup()
		sklog.Flush()
		os.Exit(0)
	}()
}

// Repeat runs the tick function immediately and on the given timer. When
// Cleanup() is called, the optional cleanup function is run after waiting for
// the tick function to finish.
func Repeat(tickFrequency time.Duration, tick, cleanup func()) {
	wg.Add(1)
	go func() {
		// Returns after the package context is canceled AND tick is finished.
		util.RepeatCtx(tickFrequency, ctx, tick)
		if cleanup != nil {
			cleanup()
		}
		wg.Done()
	}()
}

// AtExit runs the given function when Cleanup() is called.
func AtExit(fn func()) {
	atExitMtx.Lock()
	defer atExitMtx.Unlock()
	atExitFns = append(atExitFns, fn)
}

// Cleanup cancels all tick functions registered via Repeat(), waits for them
// to fully stop running and for their cleanup functions to run, then runs the
// functions registered via AtExit.
func Cleanup() {
	sklog.Warningf("Shutdown request received")
	cancel()
	wg.Wait()
	atExitMtx.Lock()
	defer atExitMtx.Unlock()
	for _, fn := range atExitFns {
		fn()
	}
	atExitFns = nil
	sklog.Warningf("Finished clean shutdown procedure.")
}
