package zarr

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/eocube/eocube/go/skerr"
	"github.com/eocube/eocube/go/types"
)

const (
	// Timestamps are fixed-width UTF-32 strings, 27 code points, NUL
	// padded. The instants are written as naive UTC with microseconds and
	// no zone suffix so sibling tooling can parse them with plain ISO-8601
	// parsers.
	dtypeTimestamps = "<U27"
	timestampRunes  = 27

	timestampWriteLayout = "2006-01-02T15:04:05.000000"
	timestampParseLayout = "2006-01-02T15:04:05"
)

// FormatTimestamp renders t the way the timestamps array stores it.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampWriteLayout)
}

// WriteTimestamps replaces the array at path with the given instants, one
// chunk, in the order given. Callers keep them sorted and unique.
func WriteTimestamps(ctx context.Context, store Store, path string, times []time.Time) error {
	n := len(times)
	chunk := n
	if chunk == 0 {
		chunk = 1
	}
	if err := clear(ctx, store, path); err != nil {
		return skerr.Wrap(err)
	}
	meta := arrayMeta{
		Chunks:     []int{chunk},
		Compressor: &compressor{ID: "zlib", Level: defaultZlibLevel},
		Dtype:      dtypeTimestamps,
		FillValue:  "",
		Order:      "C",
		Shape:      []int{n},
		ZarrFormat: 2,
	}
	a := &Array{store: store, path: path, meta: meta}
	if err := a.writeMeta(ctx); err != nil {
		return skerr.Wrap(err)
	}
	if n == 0 {
		return nil
	}
	raw := make([]byte, n*timestampRunes*4)
	for i, t := range times {
		for j, r := range []rune(FormatTimestamp(t)) {
			if j >= timestampRunes {
				break
			}
			off := (i*timestampRunes + j) * 4
			raw[off] = byte(r)
			raw[off+1] = byte(r >> 8)
			raw[off+2] = byte(r >> 16)
			raw[off+3] = byte(r >> 24)
		}
	}
	enc, err := compress(meta.Compressor, raw)
	if err != nil {
		return skerr.Wrap(err)
	}
	return skerr.Wrapf(store.Set(ctx, path+"/0", enc), "writing timestamps at %s", path)
}

// ReadTimestamps reads the instants stored at path, in stored order. A
// missing array reports fs.ErrNotExist; an undecodable one reports
// DataCorruption.
func ReadTimestamps(ctx context.Context, store Store, path string) ([]time.Time, error) {
	data, err := store.Get(ctx, path+"/"+metaKey)
	if err != nil {
		return nil, skerr.Wrapf(err, "reading timestamps descriptor at %s", path)
	}
	var meta arrayMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, skerr.Wrapf(types.ErrDataCorruption, "malformed timestamps descriptor at %s: %s", path, err)
	}
	if len(meta.Shape) != 1 || len(meta.Chunks) != 1 || meta.Chunks[0] < 1 {
		return nil, skerr.Wrapf(types.ErrDataCorruption, "timestamps at %s must be 1-D, got shape %v chunks %v", path, meta.Shape, meta.Chunks)
	}
	if len(meta.Dtype) < 3 || meta.Dtype[1] != 'U' {
		return nil, skerr.Wrapf(types.ErrDataCorruption, "timestamps at %s have dtype %q, want a unicode dtype", path, meta.Dtype)
	}
	runes, err := strconv.Atoi(meta.Dtype[2:])
	if err != nil || runes < 1 {
		return nil, skerr.Wrapf(types.ErrDataCorruption, "timestamps at %s have dtype %q", path, meta.Dtype)
	}

	n := meta.Shape[0]
	csize := meta.Chunks[0]
	out := make([]time.Time, 0, n)
	for c := 0; c*csize < n; c++ {
		enc, err := store.Get(ctx, path+"/"+strconv.Itoa(c))
		if err != nil {
			return nil, skerr.Wrapf(err, "reading timestamps chunk %d at %s", c, path)
		}
		raw, err := decompress(meta.Compressor, enc, csize*runes*4)
		if err != nil {
			return nil, skerr.Wrapf(err, "timestamps chunk %d at %s", c, path)
		}
		for i := 0; i < csize && c*csize+i < n; i++ {
			rs := make([]rune, 0, runes)
			for j := 0; j < runes; j++ {
				off := (i*runes + j) * 4
				v := uint32(raw[off]) | uint32(raw[off+1])<<8 | uint32(raw[off+2])<<16 | uint32(raw[off+3])<<24
				if v == 0 {
					break
				}
				rs = append(rs, rune(v))
			}
			t, err := time.Parse(timestampParseLayout, string(rs))
			if err != nil {
				return nil, skerr.Wrapf(types.ErrDataCorruption, "timestamp %q at %s: %s", string(rs), path, err)
			}
			out = append(out, t.UTC())
		}
	}
	return out, nil
}
