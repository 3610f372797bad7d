package now

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNow_FixedValueInContext(t *testing.T) {
	mockTime := time.Unix(12, 11).UTC()
	backgroundCtx := context.Background()
	ctx := context.WithValue(backgroundCtx, ContextKey, mockTime)

	require.Equal(t, mockTime, Now(ctx))
	require.NotEqual(t, mockTime, Now(backgroundCtx))
}

func TestNow_ProviderInContext_EvaluatedEveryCall(t *testing.T) {
	var calls int64
	provider := func() time.Time {
		calls++
		return time.Unix(calls, 0).UTC()
	}
	ctx := context.WithValue(context.Background(), ContextKey, NowProvider(provider))

	require.Equal(t, int64(1), Now(ctx).Unix())
	require.Equal(t, int64(2), Now(ctx).Unix())
	require.Equal(t, int64(2), calls)

	// A context without the key never touches the provider.
	require.NotEqual(t, int64(3), Now(context.Background()).Unix())
	require.Equal(t, int64(2), calls)
}

func TestNow_InvalidValue_Panics(t *testing.T) {
	ctx := context.WithValue(context.Background(), ContextKey, "not a time")

	require.Panics(t, func() {
		Now(ctx)
	})
}

func TestTimeTravelingContext_SetTimeMovesTheClock(t *testing.T) {
	start := time.Date(2020, 1, 5, 11, 13, 40, 0, time.UTC)
	ctx := TimeTravelingContext(start)

	require.Equal(t, start, Now(ctx))

	later := start.Add(2 * time.Minute)
	ctx.SetTime(later)
	require.Equal(t, later, Now(ctx))
}
