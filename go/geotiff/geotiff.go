// Package geotiff reads and writes the rasters the extraction pipeline
// moves pixels through: windowed reads of single-band uint16 sources over
// range-read storage, and tiled writes of intermediate mosaics. Only the
// baseline features the supported catalogs produce are implemented:
// classic little- or big-endian TIFF, tiled or striped layout, none, LZW
// or deflate compression, and the horizontal predictor.
package geotiff

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"
	"math"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/image/tiff/lzw"

	"github.com/eocube/eocube/go/skerr"
	"github.com/eocube/eocube/go/types"
	"github.com/eocube/eocube/go/util"
)

// TIFF tags used by the reader and writer.
const (
	tagImageWidth          = 256
	tagImageLength         = 257
	tagBitsPerSample       = 258
	tagCompression         = 259
	tagPhotometric         = 262
	tagStripOffsets        = 273
	tagSamplesPerPixel     = 277
	tagRowsPerStrip        = 278
	tagStripByteCounts     = 279
	tagPredictor           = 317
	tagTileWidth           = 322
	tagTileLength          = 323
	tagTileOffsets         = 324
	tagTileByteCounts      = 325
	tagSampleFormat        = 339
	tagModelPixelScale     = 33550
	tagModelTiepoint       = 33922
	tagModelTransformation = 34264
	tagGeoKeyDirectory     = 34735
)

// TIFF field types.
const (
	typeShort  = 3
	typeLong   = 4
	typeDouble = 12
)

// TIFF compression schemes.
const (
	compressionNone       = 1
	compressionLZW        = 5
	compressionDeflate    = 8
	compressionDeflateOld = 32946
)

const (
	predictorNone       = 1
	predictorHorizontal = 2
)

// GeoTIFF keys carrying the coordinate reference system.
const (
	keyModelType       = 1024
	keyRasterType      = 1025
	keyGeographicType  = 2048
	keyProjectedCSType = 3072
)

// userDefinedCS marks a CRS the file describes by parameters instead of an
// EPSG code.
const userDefinedCS = 32767

// blockCacheEntries bounds the decoded blocks held per Reader. At the
// usual 256x256 uint16 block size the cache tops out at 8 MiB.
const blockCacheEntries = 64

// Reader decodes a single-band uint16 raster lazily: the structure is
// parsed up front, pixel blocks are fetched and decompressed on demand and
// kept in a small LRU cache. Reads over object storage therefore touch
// only the byte ranges a window needs. Safe for concurrent use if the
// underlying io.ReaderAt is.
type Reader struct {
	r     io.ReaderAt
	order binary.ByteOrder

	width  int
	height int
	bits   int

	compression uint16
	predictor   uint16

	tiled        bool
	blockW       int
	blockH       int
	blocksAcross int
	offsets      []int64
	counts       []int64

	epsg      int
	transform Affine
	blocks    *lru.Cache
}

// NewReader parses the raster structure of the TIFF readable from r.
func NewReader(r io.ReaderAt) (*Reader, error) {
	var hdr [8]byte
	if err := readAt(r, hdr[:], 0); err != nil {
		return nil, skerr.Wrapf(err, "reading TIFF header")
	}
	rd := &Reader{r: r}
	switch string(hdr[:2]) {
	case "II":
		rd.order = binary.LittleEndian
	case "MM":
		rd.order = binary.BigEndian
	default:
		return nil, skerr.Wrapf(types.ErrDataCorruption, "not a TIFF file")
	}
	switch magic := rd.order.Uint16(hdr[2:4]); magic {
	case 42:
	case 43:
		return nil, skerr.Wrapf(types.ErrDataCorruption, "BigTIFF is not supported")
	default:
		return nil, skerr.Wrapf(types.ErrDataCorruption, "bad TIFF magic %d", magic)
	}
	entries, err := rd.readIFD(int64(rd.order.Uint32(hdr[4:8])))
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	if err := rd.parseRaster(entries); err != nil {
		return nil, skerr.Wrap(err)
	}
	if err := rd.parseGeo(entries); err != nil {
		return nil, skerr.Wrap(err)
	}
	blocks, err := lru.New(blockCacheEntries)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	rd.blocks = blocks
	return rd, nil
}

// Width returns the raster width in pixels.
func (r *Reader) Width() int { return r.width }

// Height returns the raster height in pixels.
func (r *Reader) Height() int { return r.height }

// EPSG returns the raster's coordinate reference system, or 0 when the
// file does not name one by code.
func (r *Reader) EPSG() int { return r.epsg }

// Transform returns the raster's geotransform. Rasters without
// georeferencing tags read as north-up pixel space.
func (r *Reader) Transform() Affine { return r.transform }

// ReadWindow reads a w x h pixel window whose upper-left corner is at
// (x0, y0), returned row-major. The window may extend beyond the raster;
// pixels outside it are zero.
func (r *Reader) ReadWindow(x0, y0, w, h int) ([]uint16, error) {
	if w <= 0 || h <= 0 {
		return nil, skerr.Wrapf(types.ErrInvalidArgument, "window %dx%d must be positive", w, h)
	}
	out := make([]uint16, w*h)
	ix0, iy0 := util.MaxInt(x0, 0), util.MaxInt(y0, 0)
	ix1, iy1 := util.MinInt(x0+w, r.width), util.MinInt(y0+h, r.height)
	if ix0 >= ix1 || iy0 >= iy1 {
		return out, nil
	}
	for by := iy0 / r.blockH; by <= (iy1-1)/r.blockH; by++ {
		for bx := ix0 / r.blockW; bx <= (ix1-1)/r.blockW; bx++ {
			block, err := r.block(bx, by)
			if err != nil {
				return nil, skerr.Wrap(err)
			}
			cx0, cx1 := util.MaxInt(ix0, bx*r.blockW), util.MinInt(ix1, (bx+1)*r.blockW)
			cy0, cy1 := util.MaxInt(iy0, by*r.blockH), util.MinInt(iy1, (by+1)*r.blockH)
			for y := cy0; y < cy1; y++ {
				src := (y-by*r.blockH)*r.blockW + (cx0 - bx*r.blockW)
				dst := (y-y0)*w + (cx0 - x0)
				copy(out[dst:dst+(cx1-cx0)], block[src:src+(cx1-cx0)])
			}
		}
	}
	return out, nil
}

// block returns the decoded pixels of block (bx, by) at full block shape,
// zero padded on ragged edges.
func (r *Reader) block(bx, by int) ([]uint16, error) {
	key := by*r.blocksAcross + bx
	if v, ok := r.blocks.Get(key); ok {
		return v.([]uint16), nil
	}
	raw := make([]byte, r.counts[key])
	if err := readAt(r.r, raw, r.offsets[key]); err != nil {
		return nil, skerr.Wrapf(err, "reading block %d", key)
	}
	data, err := r.decompress(raw)
	if err != nil {
		return nil, skerr.Wrapf(err, "block %d", key)
	}
	// Strips store only the rows inside the image; tiles are always padded
	// to full shape.
	rows := r.blockH
	if !r.tiled && (by+1)*r.blockH > r.height {
		rows = r.height - by*r.blockH
	}
	want := r.blockW * rows * (r.bits / 8)
	if len(data) < want {
		return nil, skerr.Wrapf(types.ErrDataCorruption, "block %d decodes to %d bytes, want %d", key, len(data), want)
	}
	px := make([]uint16, r.blockW*r.blockH)
	r.decodeSamples(data[:want], px)
	r.blocks.Add(key, px)
	return px, nil
}

func (r *Reader) decompress(raw []byte) ([]byte, error) {
	switch r.compression {
	case compressionNone:
		return raw, nil
	case compressionLZW:
		rc := lzw.NewReader(bytes.NewReader(raw), lzw.MSB, 8)
		defer util.Close(rc)
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, skerr.Wrapf(types.ErrDataCorruption, "undecodable LZW data: %s", err)
		}
		return data, nil
	default:
		// Deflate; anything else was rejected at parse time.
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, skerr.Wrapf(types.ErrDataCorruption, "undecodable deflate data: %s", err)
		}
		defer util.Close(zr)
		data, err := io.ReadAll(zr)
		if err != nil {
			return nil, skerr.Wrapf(types.ErrDataCorruption, "undecodable deflate data: %s", err)
		}
		return data, nil
	}
}

// decodeSamples expands raw sample bytes into px, undoing the horizontal
// predictor. Differencing wraps at the native sample width, so 8-bit
// samples are accumulated before widening.
func (r *Reader) decodeSamples(data []byte, px []uint16) {
	if r.bits == 8 {
		if r.predictor == predictorHorizontal {
			for row := 0; row*r.blockW < len(data); row++ {
				line := data[row*r.blockW : (row+1)*r.blockW]
				for i := 1; i < len(line); i++ {
					line[i] += line[i-1]
				}
			}
		}
		for i, b := range data {
			px[i] = uint16(b)
		}
		return
	}
	n := len(data) / 2
	for i := 0; i < n; i++ {
		px[i] = r.order.Uint16(data[2*i:])
	}
	if r.predictor == predictorHorizontal {
		for row := 0; row*r.blockW < n; row++ {
			line := px[row*r.blockW : (row+1)*r.blockW]
			for i := 1; i < len(line); i++ {
				line[i] += line[i-1]
			}
		}
	}
}

// ifdEntry is one parsed IFD field: its type, count, and raw value bytes.
type ifdEntry struct {
	typ   uint16
	count uint32
	raw   []byte
}

func typeSize(typ uint16) int {
	switch typ {
	case 1, 2, 6, 7:
		return 1
	case 3, 8:
		return 2
	case 4, 9, 11:
		return 4
	case 5, 10, 12:
		return 8
	}
	return 0
}

// uints decodes an integer field of SHORT or LONG type.
func (e *ifdEntry) uints(order binary.ByteOrder) ([]uint32, error) {
	switch e.typ {
	case typeShort:
		out := make([]uint32, e.count)
		for i := range out {
			out[i] = uint32(order.Uint16(e.raw[2*i:]))
		}
		return out, nil
	case typeLong:
		out := make([]uint32, e.count)
		for i := range out {
			out[i] = order.Uint32(e.raw[4*i:])
		}
		return out, nil
	}
	return nil, skerr.Wrapf(types.ErrDataCorruption, "field type %d is not an integer type", e.typ)
}

func (e *ifdEntry) shorts(order binary.ByteOrder) ([]uint16, error) {
	if e.typ != typeShort {
		return nil, skerr.Wrapf(types.ErrDataCorruption, "field type %d, want SHORT", e.typ)
	}
	out := make([]uint16, e.count)
	for i := range out {
		out[i] = order.Uint16(e.raw[2*i:])
	}
	return out, nil
}

func (e *ifdEntry) doubles(order binary.ByteOrder) ([]float64, error) {
	if e.typ != typeDouble {
		return nil, skerr.Wrapf(types.ErrDataCorruption, "field type %d, want DOUBLE", e.typ)
	}
	out := make([]float64, e.count)
	for i := range out {
		out[i] = math.Float64frombits(order.Uint64(e.raw[8*i:]))
	}
	return out, nil
}

// readIFD reads the first image file directory. Overview directories of
// cloud optimized files are chained after it and never read.
func (r *Reader) readIFD(off int64) (map[uint16]*ifdEntry, error) {
	var nbuf [2]byte
	if err := readAt(r.r, nbuf[:], off); err != nil {
		return nil, skerr.Wrapf(err, "reading IFD at offset %d", off)
	}
	n := int(r.order.Uint16(nbuf[:]))
	if n == 0 {
		return nil, skerr.Wrapf(types.ErrDataCorruption, "empty IFD")
	}
	buf := make([]byte, n*12)
	if err := readAt(r.r, buf, off+2); err != nil {
		return nil, skerr.Wrapf(err, "reading %d IFD entries", n)
	}
	entries := make(map[uint16]*ifdEntry, n)
	for i := 0; i < n; i++ {
		b := buf[i*12 : (i+1)*12]
		e := &ifdEntry{
			typ:   r.order.Uint16(b[2:4]),
			count: r.order.Uint32(b[4:8]),
		}
		size := typeSize(e.typ) * int(e.count)
		switch {
		case size == 0:
			continue
		case size <= 4:
			e.raw = append([]byte(nil), b[8:8+size]...)
		default:
			if size > 1<<20 {
				return nil, skerr.Wrapf(types.ErrDataCorruption, "implausible %d byte IFD field", size)
			}
			e.raw = make([]byte, size)
			if err := readAt(r.r, e.raw, int64(r.order.Uint32(b[8:12]))); err != nil {
				return nil, skerr.Wrapf(err, "reading IFD field value")
			}
		}
		entries[r.order.Uint16(b[0:2])] = e
	}
	return entries, nil
}

func (r *Reader) parseRaster(entries map[uint16]*ifdEntry) error {
	var err error
	if r.width, err = r.intField(entries, tagImageWidth, 0); err != nil {
		return skerr.Wrap(err)
	}
	if r.height, err = r.intField(entries, tagImageLength, 0); err != nil {
		return skerr.Wrap(err)
	}
	if r.width <= 0 || r.height <= 0 {
		return skerr.Wrapf(types.ErrDataCorruption, "bad raster dimensions %dx%d", r.width, r.height)
	}
	samples, err := r.intField(entries, tagSamplesPerPixel, 1)
	if err != nil {
		return skerr.Wrap(err)
	}
	if samples != 1 {
		return skerr.Wrapf(types.ErrDataCorruption, "only single-band rasters are supported, got %d samples per pixel", samples)
	}
	if r.bits, err = r.intField(entries, tagBitsPerSample, 1); err != nil {
		return skerr.Wrap(err)
	}
	if r.bits != 8 && r.bits != 16 {
		return skerr.Wrapf(types.ErrDataCorruption, "unsupported bit depth %d", r.bits)
	}
	format, err := r.intField(entries, tagSampleFormat, 1)
	if err != nil {
		return skerr.Wrap(err)
	}
	if format != 1 {
		return skerr.Wrapf(types.ErrDataCorruption, "only unsigned integer samples are supported, got sample format %d", format)
	}
	compression, err := r.intField(entries, tagCompression, compressionNone)
	if err != nil {
		return skerr.Wrap(err)
	}
	r.compression = uint16(compression)
	switch r.compression {
	case compressionNone, compressionLZW, compressionDeflate, compressionDeflateOld:
	default:
		return skerr.Wrapf(types.ErrDataCorruption, "unsupported compression %d", r.compression)
	}
	predictor, err := r.intField(entries, tagPredictor, predictorNone)
	if err != nil {
		return skerr.Wrap(err)
	}
	r.predictor = uint16(predictor)
	if r.predictor != predictorNone && r.predictor != predictorHorizontal {
		return skerr.Wrapf(types.ErrDataCorruption, "unsupported predictor %d", r.predictor)
	}

	if _, ok := entries[tagTileWidth]; ok {
		r.tiled = true
		if r.blockW, err = r.intField(entries, tagTileWidth, 0); err != nil {
			return skerr.Wrap(err)
		}
		if r.blockH, err = r.intField(entries, tagTileLength, 0); err != nil {
			return skerr.Wrap(err)
		}
		if r.blockW <= 0 || r.blockH <= 0 {
			return skerr.Wrapf(types.ErrDataCorruption, "bad tile size %dx%d", r.blockW, r.blockH)
		}
		if r.offsets, err = r.offsetField(entries, tagTileOffsets); err != nil {
			return skerr.Wrap(err)
		}
		if r.counts, err = r.offsetField(entries, tagTileByteCounts); err != nil {
			return skerr.Wrap(err)
		}
	} else {
		rows, err := r.intField(entries, tagRowsPerStrip, r.height)
		if err != nil {
			return skerr.Wrap(err)
		}
		// A missing or oversized RowsPerStrip means a single strip.
		if rows <= 0 || rows > r.height {
			rows = r.height
		}
		r.blockW, r.blockH = r.width, rows
		if r.offsets, err = r.offsetField(entries, tagStripOffsets); err != nil {
			return skerr.Wrap(err)
		}
		if r.counts, err = r.offsetField(entries, tagStripByteCounts); err != nil {
			return skerr.Wrap(err)
		}
	}
	r.blocksAcross = ceilDiv(r.width, r.blockW)
	want := r.blocksAcross * ceilDiv(r.height, r.blockH)
	if len(r.offsets) != want || len(r.counts) != want {
		return skerr.Wrapf(types.ErrDataCorruption, "raster needs %d blocks, file has %d offsets and %d sizes", want, len(r.offsets), len(r.counts))
	}
	return nil
}

func (r *Reader) parseGeo(entries map[uint16]*ifdEntry) error {
	r.transform = NorthUp(1, 0, 0)
	if e, ok := entries[tagModelTransformation]; ok {
		m, err := e.doubles(r.order)
		if err != nil || len(m) < 8 {
			return skerr.Wrapf(types.ErrDataCorruption, "bad model transformation")
		}
		r.transform = Affine{m[0], m[1], m[3], m[4], m[5], m[7]}
	} else if se, ok := entries[tagModelPixelScale]; ok {
		te, ok := entries[tagModelTiepoint]
		if !ok {
			return skerr.Wrapf(types.ErrDataCorruption, "pixel scale without a tiepoint")
		}
		scale, err := se.doubles(r.order)
		if err != nil || len(scale) < 2 {
			return skerr.Wrapf(types.ErrDataCorruption, "bad pixel scale")
		}
		tie, err := te.doubles(r.order)
		if err != nil || len(tie) < 6 {
			return skerr.Wrapf(types.ErrDataCorruption, "bad tiepoint")
		}
		r.transform = Affine{scale[0], 0, tie[3] - tie[0]*scale[0], 0, -scale[1], tie[4] + tie[1]*scale[1]}
	}
	if e, ok := entries[tagGeoKeyDirectory]; ok {
		dir, err := e.shorts(r.order)
		if err != nil {
			return skerr.Wrap(err)
		}
		r.epsg = parseGeoKeys(dir)
	}
	return nil
}

// parseGeoKeys pulls the CRS code out of a GeoKey directory, preferring
// the projected CRS over the geographic one.
func parseGeoKeys(dir []uint16) int {
	if len(dir) < 4 {
		return 0
	}
	projected, geographic := 0, 0
	n := int(dir[3])
	for i := 0; i < n; i++ {
		base := 4 + i*4
		if base+4 > len(dir) {
			break
		}
		id, loc, count, value := dir[base], dir[base+1], dir[base+2], dir[base+3]
		if loc != 0 || count != 1 || value == userDefinedCS {
			continue
		}
		switch id {
		case keyProjectedCSType:
			projected = int(value)
		case keyGeographicType:
			geographic = int(value)
		}
	}
	if projected != 0 {
		return projected
	}
	return geographic
}

func (r *Reader) intField(entries map[uint16]*ifdEntry, tag uint16, def int) (int, error) {
	e, ok := entries[tag]
	if !ok {
		return def, nil
	}
	vals, err := e.uints(r.order)
	if err != nil || len(vals) == 0 {
		return 0, skerr.Wrapf(types.ErrDataCorruption, "bad integer field %d", tag)
	}
	return int(vals[0]), nil
}

func (r *Reader) offsetField(entries map[uint16]*ifdEntry, tag uint16) ([]int64, error) {
	e, ok := entries[tag]
	if !ok {
		return nil, skerr.Wrapf(types.ErrDataCorruption, "missing required field %d", tag)
	}
	vals, err := e.uints(r.order)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	out := make([]int64, len(vals))
	for i, v := range vals {
		out[i] = int64(v)
	}
	return out, nil
}

// readAt fills buf from off, tolerating readers which signal io.EOF on a
// read ending exactly at the end of the source.
func readAt(r io.ReaderAt, buf []byte, off int64) error {
	n, err := r.ReadAt(buf, off)
	if err != nil && !(err == io.EOF && n == len(buf)) {
		return skerr.Wrapf(err, "short read of %d bytes at offset %d", len(buf), off)
	}
	return nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
