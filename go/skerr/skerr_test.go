package skerr

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSentinel = errors.New("my sentinel error")

func TestWrap_NilError_ReturnsNil(t *testing.T) {
	require.NoError(t, Wrap(nil))
	require.NoError(t, Wrapf(nil, "this is ignored"))
}

func TestWrap_ErrorIncludesCallStack(t *testing.T) {
	err := Wrap(errSentinel)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "my sentinel error")
	assert.Contains(t, err.Error(), "skerr/skerr_test.go")
}

func TestWrapf_MessagePrefixesWrappedError(t *testing.T) {
	err := Wrapf(errSentinel, "loading tile %d", 17)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "loading tile 17: my sentinel error"))
}

func TestWrap_ErrorsIsFindsSentinel(t *testing.T) {
	err := Wrapf(Wrap(errSentinel), "outer context")
	require.ErrorIs(t, err, errSentinel)
}

func TestUnwrap_NestedWrapping_ReturnsOriginal(t *testing.T) {
	err := Wrapf(Wrap(errSentinel), "outer context")
	require.Equal(t, errSentinel, Unwrap(err))

	// Non-wrapped errors come back unchanged.
	plain := fmt.Errorf("plain")
	require.Equal(t, plain, Unwrap(plain))
}

func TestFmt_FormatsAndAttachesStack(t *testing.T) {
	err := Fmt("unknown constellation %q", "sentinel-9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown constellation "sentinel-9"`)
	assert.Contains(t, err.Error(), " At ")
}

func TestCallStack_SkipsRequestedFrames(t *testing.T) {
	var inner []StackTrace
	func() {
		inner = CallStack(2, 0)
	}()
	require.NotEmpty(t, inner)
	assert.Contains(t, inner[0].String(), "skerr_test.go")
}
