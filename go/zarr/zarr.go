// Package zarr reads and writes the chunked-array format used by the patch
// archive. Arrays follow the zarr v2 layout: a ".zarray" JSON descriptor
// plus one zlib-compressed C-order blob per chunk, keyed by the
// dot-separated chunk indices. Only the subset the archive needs is
// implemented: uint16 slot I/O on 4-D arrays chunked (1, 1, h, w),
// first-dimension resizes on arrays of any dtype, and the UTF-32 timestamp
// vectors.
package zarr

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/json"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/eocube/eocube/go/skerr"
	"github.com/eocube/eocube/go/types"
	"github.com/eocube/eocube/go/util"
)

const (
	metaKey  = ".zarray"
	groupKey = ".zgroup"

	dtypeUint16 = "<u2"

	// numcodecs' default zlib level.
	defaultZlibLevel = 1
)

// arrayMeta is the ".zarray" descriptor document.
type arrayMeta struct {
	Chunks     []int       `json:"chunks"`
	Compressor *compressor `json:"compressor"`
	Dtype      string      `json:"dtype"`
	FillValue  interface{} `json:"fill_value"`
	Filters    interface{} `json:"filters"`
	Order      string      `json:"order"`
	Shape      []int       `json:"shape"`
	ZarrFormat int         `json:"zarr_format"`
}

type compressor struct {
	ID    string `json:"id"`
	Level int    `json:"level"`
}

// Array is one stored array. All methods go straight to the Store; nothing
// is cached beyond the descriptor.
type Array struct {
	store Store
	path  string
	meta  arrayMeta
}

// Create writes a fresh array descriptor at path, deleting any existing
// array there first. Chunks must be positive; shape may contain zeros.
func Create(ctx context.Context, store Store, path string, shape, chunks []int, dtype string) (*Array, error) {
	if len(shape) == 0 || len(shape) != len(chunks) {
		return nil, skerr.Wrapf(types.ErrInvalidArgument, "shape %v and chunks %v must be non-empty and of equal rank", shape, chunks)
	}
	for i := range shape {
		if shape[i] < 0 || chunks[i] < 1 {
			return nil, skerr.Wrapf(types.ErrInvalidArgument, "invalid shape %v / chunks %v", shape, chunks)
		}
	}
	if _, err := itemSize(dtype); err != nil {
		return nil, skerr.Wrap(err)
	}
	if err := clear(ctx, store, path); err != nil {
		return nil, skerr.Wrap(err)
	}
	meta := arrayMeta{
		Chunks:     append([]int(nil), chunks...),
		Compressor: &compressor{ID: "zlib", Level: defaultZlibLevel},
		Dtype:      dtype,
		FillValue:  fillValueFor(dtype),
		Order:      "C",
		Shape:      append([]int(nil), shape...),
		ZarrFormat: 2,
	}
	a := &Array{store: store, path: path, meta: meta}
	if err := a.writeMeta(ctx); err != nil {
		return nil, skerr.Wrap(err)
	}
	return a, nil
}

// Open reads the descriptor of an existing array. A missing array reports
// fs.ErrNotExist through the returned error.
func Open(ctx context.Context, store Store, path string) (*Array, error) {
	data, err := store.Get(ctx, path+"/"+metaKey)
	if err != nil {
		return nil, skerr.Wrapf(err, "reading array descriptor at %s", path)
	}
	var meta arrayMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, skerr.Wrapf(types.ErrDataCorruption, "malformed array descriptor at %s: %s", path, err)
	}
	if meta.ZarrFormat != 2 {
		return nil, skerr.Wrapf(types.ErrDataCorruption, "array at %s has zarr_format %d, want 2", path, meta.ZarrFormat)
	}
	if meta.Order != "C" {
		return nil, skerr.Wrapf(types.ErrDataCorruption, "array at %s has order %q, only C order is supported", path, meta.Order)
	}
	if len(meta.Shape) == 0 || len(meta.Shape) != len(meta.Chunks) {
		return nil, skerr.Wrapf(types.ErrDataCorruption, "array at %s has shape %v with chunks %v", path, meta.Shape, meta.Chunks)
	}
	for i := range meta.Shape {
		if meta.Shape[i] < 0 || meta.Chunks[i] < 1 {
			return nil, skerr.Wrapf(types.ErrDataCorruption, "array at %s has shape %v with chunks %v", path, meta.Shape, meta.Chunks)
		}
	}
	if meta.Compressor != nil && meta.Compressor.ID != "zlib" {
		return nil, skerr.Wrapf(types.ErrDataCorruption, "array at %s uses unsupported compressor %q", path, meta.Compressor.ID)
	}
	if _, err := itemSize(meta.Dtype); err != nil {
		return nil, skerr.Wrapf(err, "array at %s", path)
	}
	return &Array{store: store, path: path, meta: meta}, nil
}

// Shape returns a copy of the array shape.
func (a *Array) Shape() []int {
	return append([]int(nil), a.meta.Shape...)
}

// Chunks returns a copy of the chunk shape.
func (a *Array) Chunks() []int {
	return append([]int(nil), a.meta.Chunks...)
}

// Dtype returns the array dtype string, eg. "<u2".
func (a *Array) Dtype() string {
	return a.meta.Dtype
}

// Resize grows or shrinks the first dimension to n. Shrinking deletes the
// chunks that fall entirely out of bounds; growing leaves the new region
// reading as the fill value.
func (a *Array) Resize(ctx context.Context, n int) error {
	if n < 0 {
		return skerr.Wrapf(types.ErrInvalidArgument, "cannot resize %s to length %d", a.path, n)
	}
	old := a.meta.Shape[0]
	a.meta.Shape[0] = n
	if err := a.writeMeta(ctx); err != nil {
		a.meta.Shape[0] = old
		return skerr.Wrap(err)
	}
	if n >= old {
		return nil
	}
	keep := ceilDiv(n, a.meta.Chunks[0])
	keys, err := a.store.List(ctx, a.path+"/")
	if err != nil {
		return skerr.Wrapf(err, "listing chunks of %s", a.path)
	}
	for _, key := range keys {
		idx, ok := parseChunkKey(strings.TrimPrefix(key, a.path+"/"), len(a.meta.Shape))
		if !ok || idx[0] < keep {
			continue
		}
		if err := a.store.Delete(ctx, key); err != nil {
			return skerr.Wrapf(err, "deleting out-of-bounds chunk %s", key)
		}
	}
	return nil
}

// WriteSlot writes data as the full (height, width) plane at time index t,
// band index b. The array must be 4-D uint16 with chunk layout (1, 1, h, w)
// so the write touches no chunk shared with another slot.
func (a *Array) WriteSlot(ctx context.Context, t, b int, data []uint16) error {
	if err := a.checkSlot(t, b); err != nil {
		return skerr.Wrap(err)
	}
	h, w := a.meta.Shape[2], a.meta.Shape[3]
	if len(data) != h*w {
		return skerr.Wrapf(types.ErrInvalidArgument, "slot of %s is %dx%d px, got %d values", a.path, h, w, len(data))
	}
	cy, cx := a.meta.Chunks[2], a.meta.Chunks[3]
	for ci := 0; ci*cy < h; ci++ {
		for cj := 0; cj*cx < w; cj++ {
			// Edge chunks are stored at the full chunk shape, zero padded.
			block := make([]uint16, cy*cx)
			for y := 0; y < cy; y++ {
				srcY := ci*cy + y
				if srcY >= h {
					break
				}
				srcX := cj * cx
				n := cx
				if srcX+n > w {
					n = w - srcX
				}
				copy(block[y*cx:y*cx+n], data[srcY*w+srcX:srcY*w+srcX+n])
			}
			enc, err := compress(a.meta.Compressor, encodeUint16(block))
			if err != nil {
				return skerr.Wrap(err)
			}
			key := a.path + "/" + chunkKey([]int{t, b, ci, cj})
			if err := a.store.Set(ctx, key, enc); err != nil {
				return skerr.Wrapf(err, "writing chunk %s", key)
			}
		}
	}
	return nil
}

// ReadSlot reads the (height, width) plane at time index t, band index b.
// Missing chunks read as the fill value.
func (a *Array) ReadSlot(ctx context.Context, t, b int) ([]uint16, error) {
	if err := a.checkSlot(t, b); err != nil {
		return nil, skerr.Wrap(err)
	}
	h, w := a.meta.Shape[2], a.meta.Shape[3]
	cy, cx := a.meta.Chunks[2], a.meta.Chunks[3]
	out := make([]uint16, h*w)
	if fill := fillUint16(a.meta.FillValue); fill != 0 {
		for i := range out {
			out[i] = fill
		}
	}
	for ci := 0; ci*cy < h; ci++ {
		for cj := 0; cj*cx < w; cj++ {
			key := a.path + "/" + chunkKey([]int{t, b, ci, cj})
			enc, err := a.store.Get(ctx, key)
			if err != nil {
				if IsNotExist(err) {
					continue
				}
				return nil, skerr.Wrapf(err, "reading chunk %s", key)
			}
			raw, err := decompress(a.meta.Compressor, enc, cy*cx*2)
			if err != nil {
				return nil, skerr.Wrapf(err, "chunk %s", key)
			}
			block := decodeUint16(raw)
			for y := 0; y < cy; y++ {
				dstY := ci*cy + y
				if dstY >= h {
					break
				}
				dstX := cj * cx
				n := cx
				if dstX+n > w {
					n = w - dstX
				}
				copy(out[dstY*w+dstX:dstY*w+dstX+n], block[y*cx:y*cx+n])
			}
		}
	}
	return out, nil
}

func (a *Array) checkSlot(t, b int) error {
	if a.meta.Dtype != dtypeUint16 {
		return skerr.Wrapf(types.ErrInvalidArgument, "slot I/O on %s requires dtype %s, got %s", a.path, dtypeUint16, a.meta.Dtype)
	}
	if len(a.meta.Shape) != 4 {
		return skerr.Wrapf(types.ErrInvalidArgument, "slot I/O on %s requires a 4-D array, got shape %v", a.path, a.meta.Shape)
	}
	if a.meta.Chunks[0] != 1 || a.meta.Chunks[1] != 1 {
		return skerr.Wrapf(types.ErrInvalidArgument, "slot I/O on %s requires chunk layout (1,1,h,w), got %v", a.path, a.meta.Chunks)
	}
	if t < 0 || t >= a.meta.Shape[0] {
		return skerr.Wrapf(types.ErrInvalidArgument, "time index %d out of range [0, %d) in %s", t, a.meta.Shape[0], a.path)
	}
	if b < 0 || b >= a.meta.Shape[1] {
		return skerr.Wrapf(types.ErrInvalidArgument, "band index %d out of range [0, %d) in %s", b, a.meta.Shape[1], a.path)
	}
	return nil
}

func (a *Array) writeMeta(ctx context.Context) error {
	data, err := json.MarshalIndent(a.meta, "", "    ")
	if err != nil {
		return skerr.Wrap(err)
	}
	return skerr.Wrapf(a.store.Set(ctx, a.path+"/"+metaKey, data), "writing array descriptor at %s", a.path)
}

// EnsureGroup writes a ".zgroup" marker at path if one is not present.
func EnsureGroup(ctx context.Context, store Store, path string) error {
	key := path + "/" + groupKey
	ok, err := store.Exists(ctx, key)
	if err != nil {
		return skerr.Wrap(err)
	}
	if ok {
		return nil
	}
	return skerr.Wrapf(store.Set(ctx, key, []byte("{\n    \"zarr_format\": 2\n}")), "writing group marker at %s", path)
}

// ListArrays returns the names of the arrays directly under path, sorted.
func ListArrays(ctx context.Context, store Store, path string) ([]string, error) {
	prefix := path + "/"
	keys, err := store.List(ctx, prefix)
	if err != nil {
		return nil, skerr.Wrapf(err, "listing %s", path)
	}
	var names []string
	for _, key := range keys {
		parts := strings.Split(strings.TrimPrefix(key, prefix), "/")
		if len(parts) == 2 && parts[1] == metaKey {
			names = append(names, parts[0])
		}
	}
	sort.Strings(names)
	return names, nil
}

// clear deletes every key under path.
func clear(ctx context.Context, store Store, path string) error {
	keys, err := store.List(ctx, path+"/")
	if err != nil {
		return skerr.Wrapf(err, "listing %s", path)
	}
	for _, key := range keys {
		if err := store.Delete(ctx, key); err != nil {
			return skerr.Wrapf(err, "deleting %s", key)
		}
	}
	return nil
}

func chunkKey(idx []int) string {
	parts := make([]string, 0, len(idx))
	for _, i := range idx {
		parts = append(parts, strconv.Itoa(i))
	}
	return strings.Join(parts, ".")
}

// parseChunkKey reports whether key names a chunk of the given rank, and if
// so its indices. Descriptor keys and nested paths don't parse.
func parseChunkKey(key string, rank int) ([]int, bool) {
	parts := strings.Split(key, ".")
	if len(parts) != rank || strings.Contains(key, "/") {
		return nil, false
	}
	idx := make([]int, rank)
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 {
			return nil, false
		}
		idx[i] = v
	}
	return idx, true
}

// itemSize returns the per-element byte width of a numpy-style dtype
// string. Unicode dtypes count 4 bytes per code point.
func itemSize(dtype string) (int, error) {
	if len(dtype) < 3 || (dtype[0] != '<' && dtype[0] != '|') {
		return 0, skerr.Wrapf(types.ErrDataCorruption, "unsupported dtype %q", dtype)
	}
	n, err := strconv.Atoi(dtype[2:])
	if err != nil || n <= 0 {
		return 0, skerr.Wrapf(types.ErrDataCorruption, "unsupported dtype %q", dtype)
	}
	if dtype[1] == 'U' {
		return n * 4, nil
	}
	return n, nil
}

func fillValueFor(dtype string) interface{} {
	if len(dtype) > 1 && dtype[1] == 'U' {
		return ""
	}
	return 0
}

func fillUint16(v interface{}) uint16 {
	if f, ok := v.(float64); ok && f > 0 {
		return uint16(f)
	}
	return 0
}

func encodeUint16(vals []uint16) []byte {
	out := make([]byte, len(vals)*2)
	for i, v := range vals {
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

func decodeUint16(raw []byte) []uint16 {
	out := make([]uint16, len(raw)/2)
	for i := range out {
		out[i] = uint16(raw[i*2]) | uint16(raw[i*2+1])<<8
	}
	return out
}

func compress(c *compressor, raw []byte) ([]byte, error) {
	if c == nil {
		return raw, nil
	}
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, c.Level)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	if _, err := w.Write(raw); err != nil {
		return nil, skerr.Wrap(err)
	}
	if err := w.Close(); err != nil {
		return nil, skerr.Wrap(err)
	}
	return buf.Bytes(), nil
}

func decompress(c *compressor, enc []byte, want int) ([]byte, error) {
	raw := enc
	if c != nil {
		r, err := zlib.NewReader(bytes.NewReader(enc))
		if err != nil {
			return nil, skerr.Wrapf(types.ErrDataCorruption, "undecodable chunk: %s", err)
		}
		defer util.Close(r)
		raw, err = io.ReadAll(r)
		if err != nil {
			return nil, skerr.Wrapf(types.ErrDataCorruption, "undecodable chunk: %s", err)
		}
	}
	if len(raw) != want {
		return nil, skerr.Wrapf(types.ErrDataCorruption, "chunk holds %d bytes, want %d", len(raw), want)
	}
	return raw, nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
