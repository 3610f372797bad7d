// Package tifftest provides helpers for building small GeoTIFF rasters in
// tests.
package tifftest

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eocube/eocube/go/geotiff"
)

// Gradient returns a w x h raster whose pixel at (x, y) is base + y*w + x
// modulo 65536, making window contents easy to predict.
func Gradient(w, h int, base uint16) []uint16 {
	out := make([]uint16, w*h)
	for i := range out {
		out[i] = base + uint16(i)
	}
	return out
}

// Uniform returns a w x h raster filled with v.
func Uniform(w, h int, v uint16) []uint16 {
	out := make([]uint16, w*h)
	for i := range out {
		out[i] = v
	}
	return out
}

// Build encodes data as a GeoTIFF and returns the raw bytes.
func Build(t *testing.T, data []uint16, width, height, epsg int, transform geotiff.Affine) []byte {
	var buf bytes.Buffer
	require.NoError(t, geotiff.Write(&buf, data, width, height, epsg, transform))
	return buf.Bytes()
}

// Open encodes data as a GeoTIFF and opens a Reader over it.
func Open(t *testing.T, data []uint16, width, height, epsg int, transform geotiff.Affine) *geotiff.Reader {
	r, err := geotiff.NewReader(bytes.NewReader(Build(t, data, width, height, epsg, transform)))
	require.NoError(t, err)
	return r
}

// WriteFile encodes data as a GeoTIFF at dir/name and returns the path.
func WriteFile(t *testing.T, dir, name string, data []uint16, width, height, epsg int, transform geotiff.Affine) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, Build(t, data, width, height, epsg, transform), 0644))
	return path
}
