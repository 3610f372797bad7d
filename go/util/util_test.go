package util

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	assert "github.com/stretchr/testify/require"
)

func TestIn(t *testing.T) {
	testcases := []struct {
		s    string
		a    []string
		want bool
	}{
		{
			s:    "a",
			a:    []string{"a", "b"},
			want: true,
		},
		{
			s:    "c",
			a:    []string{"a", "b"},
			want: false,
		},
		{
			s:    "a",
			a:    []string{},
			want: false,
		},
		{
			s:    "a",
			a:    nil,
			want: false,
		},
	}
	for _, tc := range testcases {
		if got, want := In(tc.s, tc.a), tc.want; got != want {
			t.Errorf("In(%q, %#v): Got %v Want %v", tc.s, tc.a, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	s := "abcdef"
	assert.Equal(t, "", Truncate(s, 0))
	assert.Equal(t, "a", Truncate(s, 1))
	assert.Equal(t, "ab", Truncate(s, 2))
	assert.Equal(t, "abc", Truncate(s, 3))
	assert.Equal(t, "a...", Truncate(s, 4))
	assert.Equal(t, "ab...", Truncate(s, 5))
	assert.Equal(t, s, Truncate(s, 6))
	assert.Equal(t, s, Truncate(s, 7))
}

func TestTimeIsZero(t *testing.T) {
	assert.True(t, TimeIsZero(time.Time{}))
	assert.True(t, TimeIsZero(time.Unix(0, 0)))
	assert.True(t, TimeIsZero(time.Unix(0, 0).UTC()))
	assert.False(t, TimeIsZero(time.Unix(1500000000, 0)))
	assert.False(t, TimeIsZero(time.Now()))
}

func TestCopyStringSlice(t *testing.T) {
	assert.Nil(t, CopyStringSlice(nil))
	assert.Equal(t, []string{}, CopyStringSlice([]string{}))
	orig := []string{"a", "b"}
	cpy := CopyStringSlice(orig)
	assert.Equal(t, orig, cpy)
	cpy[0] = "c"
	assert.Equal(t, "a", orig[0])
}

func TestCopyStringMap(t *testing.T) {
	assert.Nil(t, CopyStringMap(nil))
	orig := map[string]string{"a": "1"}
	cpy := CopyStringMap(orig)
	assert.Equal(t, orig, cpy)
	cpy["a"] = "2"
	assert.Equal(t, "1", orig["a"])
}

func TestAddParams(t *testing.T) {
	a := map[string]string{"a": "1"}
	b := map[string]string{"b": "2"}
	c := map[string]string{"a": "3"}
	assert.Equal(t, map[string]string{"a": "3", "b": "2"}, AddParams(a, b, c))
	assert.Equal(t, map[string]string{"b": "2"}, AddParams(nil, b))
}

func TestChunkIter(t *testing.T) {
	chunks := [][]int{}
	assert.NoError(t, ChunkIter(10, 3, func(start, end int) error {
		chunks = append(chunks, []int{start, end})
		return nil
	}))
	assert.Equal(t, [][]int{{0, 3}, {3, 6}, {6, 9}, {9, 10}}, chunks)

	assert.Error(t, ChunkIter(10, 0, func(start, end int) error {
		return nil
	}))

	expectErr := errors.New("nope")
	assert.Equal(t, expectErr, ChunkIter(10, 5, func(start, end int) error {
		return expectErr
	}))
}

func TestIterTimeChunks(t *testing.T) {
	start := time.Unix(1715000000, 0).UTC()
	end := start.Add(50 * time.Hour)
	chunks := [][]time.Time{}
	assert.NoError(t, IterTimeChunks(start, end, 24*time.Hour, func(chunkStart, chunkEnd time.Time) error {
		chunks = append(chunks, []time.Time{chunkStart, chunkEnd})
		return nil
	}))
	assert.Len(t, chunks, 3)
	assert.Equal(t, start, chunks[0][0])
	assert.Equal(t, start.Add(24*time.Hour), chunks[0][1])
	assert.Equal(t, end, chunks[2][1])

	// Empty range runs zero chunks.
	assert.NoError(t, IterTimeChunks(start, start, 24*time.Hour, func(chunkStart, chunkEnd time.Time) error {
		return errors.New("should not be called")
	}))
}

func TestWithWriteFileAndWithReadFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "out.txt")
	assert.NoError(t, WithWriteFile(file, func(w io.Writer) error {
		_, err := w.Write([]byte("hello"))
		return err
	}))
	var got []byte
	assert.NoError(t, WithReadFile(file, func(r io.Reader) error {
		var err error
		got, err = io.ReadAll(r)
		return err
	}))
	assert.Equal(t, "hello", string(got))

	// A failed write leaves no file behind.
	file2 := filepath.Join(t.TempDir(), "out2.txt")
	assert.Error(t, WithWriteFile(file2, func(w io.Writer) error {
		return errors.New("write failed")
	}))
	_, err := os.Stat(file2)
	assert.True(t, os.IsNotExist(err))
}

func TestNamedErrGroup(t *testing.T) {
	g := NewNamedErrGroup()
	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("fn%d", i)
		idx := i
		g.Go(name, func() error {
			if idx%2 == 1 {
				return fmt.Errorf("error %d", idx)
			}
			return nil
		})
	}
	err := g.Wait()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "fn1: error 1")
	assert.Contains(t, err.Error(), "fn3: error 3")
	assert.NotContains(t, err.Error(), "fn0")

	g2 := NewNamedErrGroup()
	g2.Go("ok", func() error { return nil })
	assert.NoError(t, g2.Wait())
}
