package geotiff

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"
	"math"

	"github.com/eocube/eocube/go/skerr"
	"github.com/eocube/eocube/go/types"
)

// writeTileSize is the block size of written rasters, matching the layout
// of the cloud optimized sources.
const writeTileSize = 256

const epsgWGS84 = 4326

// Write encodes a single-band uint16 raster as a tiled, deflate-compressed
// little-endian GeoTIFF. The transform must be north-up; a zero epsg omits
// the CRS keys.
func Write(w io.Writer, data []uint16, width, height, epsg int, transform Affine) error {
	if width <= 0 || height <= 0 || len(data) != width*height {
		return skerr.Wrapf(types.ErrInvalidArgument, "raster %dx%d does not match %d samples", width, height, len(data))
	}
	if transform[1] != 0 || transform[3] != 0 {
		return skerr.Wrapf(types.ErrInvalidArgument, "only north-up transforms are written, got %v", transform)
	}

	across, down := ceilDiv(width, writeTileSize), ceilDiv(height, writeTileSize)
	tiles := make([][]byte, 0, across*down)
	for ty := 0; ty < down; ty++ {
		for tx := 0; tx < across; tx++ {
			tile, err := deflateTile(data, width, height, tx, ty)
			if err != nil {
				return skerr.Wrap(err)
			}
			tiles = append(tiles, tile)
		}
	}
	n := len(tiles)

	numEntries := 13
	if epsg != 0 {
		numEntries++
	}
	ifdEnd := 8 + 2 + numEntries*12 + 4

	// External value area: offset and size arrays when they don't fit
	// inline, then the georeferencing doubles and keys.
	extSize := 24 + 48
	if n > 1 {
		extSize += 8 * n
	}
	if epsg != 0 {
		extSize += 32
	}
	dataStart := ifdEnd + extSize

	offs := make([]uint32, n)
	sizes := make([]uint32, n)
	running := uint32(dataStart)
	for i, tile := range tiles {
		offs[i] = running
		sizes[i] = uint32(len(tile))
		running += sizes[i]
	}

	var ext bytes.Buffer
	extOff := func() uint32 { return uint32(ifdEnd + ext.Len()) }

	offsValue, sizesValue := offs[0], sizes[0]
	if n > 1 {
		offsValue = extOff()
		for _, v := range offs {
			put32(&ext, v)
		}
		sizesValue = extOff()
		for _, v := range sizes {
			put32(&ext, v)
		}
	}
	scaleOff := extOff()
	putDoubles(&ext, []float64{transform[0], -transform[4], 0})
	tieOff := extOff()
	putDoubles(&ext, []float64{0, 0, 0, transform[2], transform[5], 0})

	var keysOff uint32
	if epsg != 0 {
		keysOff = extOff()
		crsKey, modelType := uint16(keyProjectedCSType), uint16(1)
		if epsg == epsgWGS84 {
			crsKey, modelType = keyGeographicType, 2
		}
		putShorts(&ext, []uint16{
			1, 1, 0, 3,
			keyModelType, 0, 1, modelType,
			keyRasterType, 0, 1, 1, // PixelIsArea
			crsKey, 0, 1, uint16(epsg),
		})
	}

	type field struct {
		tag   uint16
		typ   uint16
		count uint32
		value uint32
	}
	fields := []field{
		{tagImageWidth, typeLong, 1, uint32(width)},
		{tagImageLength, typeLong, 1, uint32(height)},
		{tagBitsPerSample, typeShort, 1, 16},
		{tagCompression, typeShort, 1, compressionDeflate},
		{tagPhotometric, typeShort, 1, 1}, // BlackIsZero
		{tagSamplesPerPixel, typeShort, 1, 1},
		{tagTileWidth, typeShort, 1, writeTileSize},
		{tagTileLength, typeShort, 1, writeTileSize},
		{tagTileOffsets, typeLong, uint32(n), offsValue},
		{tagTileByteCounts, typeLong, uint32(n), sizesValue},
		{tagSampleFormat, typeShort, 1, 1},
		{tagModelPixelScale, typeDouble, 3, scaleOff},
		{tagModelTiepoint, typeDouble, 6, tieOff},
	}
	if epsg != 0 {
		fields = append(fields, field{tagGeoKeyDirectory, typeShort, 16, keysOff})
	}

	var out bytes.Buffer
	out.Grow(int(running))
	out.WriteString("II")
	put16(&out, 42)
	put32(&out, 8)
	put16(&out, uint16(numEntries))
	for _, f := range fields {
		put16(&out, f.tag)
		put16(&out, f.typ)
		put32(&out, f.count)
		put32(&out, f.value)
	}
	put32(&out, 0) // no next IFD
	out.Write(ext.Bytes())
	for _, tile := range tiles {
		out.Write(tile)
	}
	_, err := w.Write(out.Bytes())
	return skerr.Wrap(err)
}

// deflateTile compresses one full-shape tile, zero padded on ragged edges.
func deflateTile(data []uint16, width, height, tx, ty int) ([]byte, error) {
	raw := make([]byte, writeTileSize*writeTileSize*2)
	for y := 0; y < writeTileSize; y++ {
		sy := ty*writeTileSize + y
		if sy >= height {
			break
		}
		for x := 0; x < writeTileSize; x++ {
			sx := tx*writeTileSize + x
			if sx >= width {
				break
			}
			binary.LittleEndian.PutUint16(raw[2*(y*writeTileSize+x):], data[sy*width+sx])
		}
	}
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, skerr.Wrap(err)
	}
	if err := zw.Close(); err != nil {
		return nil, skerr.Wrap(err)
	}
	return buf.Bytes(), nil
}

func put16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func put32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func putShorts(buf *bytes.Buffer, vals []uint16) {
	for _, v := range vals {
		put16(buf, v)
	}
}

func putDoubles(buf *bytes.Buffer, vals []float64) {
	for _, v := range vals {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
		buf.Write(b[:])
	}
}
