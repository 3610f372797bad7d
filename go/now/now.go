// Package now returns the current time in a way tests can override
// through the context.
package now

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type contextKeyType string

// ContextKey is the context value key Now looks up. Tests store either a
// fixed time.Time or a NowProvider under it:
//
//	ctx = context.WithValue(ctx, now.ContextKey, time.Unix(12, 0).UTC())
const ContextKey contextKeyType = "overwriteNow"

// NowProvider is a function evaluated on every Now call made with the
// context it is stored in. It must be threadsafe if the context crosses
// goroutines.
type NowProvider func() time.Time

// Now returns the current time, or the time stored in the context.
func Now(ctx context.Context) time.Time {
	if ts := ctx.Value(ContextKey); ts != nil {
		switch v := ts.(type) {
		case NowProvider:
			return v()
		case time.Time:
			return v
		default:
			panic(fmt.Sprintf("Unknown value for ContextKey: %v", v))
		}
	}
	return time.Now()
}

// TimeTravelCtx is a context whose apparent time can be moved during a
// test:
//
//	ctx := now.TimeTravelingContext(start)
//	first := doSomething(ctx)
//	ctx.SetTime(start.Add(2 * time.Minute))
//	second := doSomething(ctx)
type TimeTravelCtx struct {
	context.Context

	mutex sync.RWMutex
	ts    time.Time
}

// TimeTravelingContext returns a *TimeTravelCtx derived from the
// background context, starting at the given time.
func TimeTravelingContext(start time.Time) *TimeTravelCtx {
	t := &TimeTravelCtx{
		ts: start,
	}
	t.Context = context.WithValue(context.Background(), ContextKey, NowProvider(t.now))
	return t
}

func (t *TimeTravelCtx) now() time.Time {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.ts
}

// SetTime moves the apparent time. It is threadsafe.
func (t *TimeTravelCtx) SetTime(newTime time.Time) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.ts = newTime
}
