package geotiff

import (
	"github.com/eocube/eocube/go/skerr"
	"github.com/eocube/eocube/go/types"
)

// Affine is a 2-D geotransform in (a, b, c, d, e, f) order:
//
//	x = a*col + b*row + c
//	y = d*col + e*row + f
//
// North-up rasters have b = d = 0, a = pixel width, e = negative pixel
// height, and (c, f) the world coordinates of the upper-left corner.
type Affine [6]float64

// NorthUp returns the transform of a north-up raster with square pixels of
// the given size whose upper-left corner sits at (ulx, uly).
func NorthUp(res, ulx, uly float64) Affine {
	return Affine{res, 0, ulx, 0, -res, uly}
}

// Apply maps pixel (col, row) to world coordinates.
func (a Affine) Apply(col, row float64) (x, y float64) {
	return a[0]*col + a[1]*row + a[2], a[3]*col + a[4]*row + a[5]
}

// Invert returns the transform mapping world coordinates back to pixel
// (col, row) space.
func (a Affine) Invert() (Affine, error) {
	det := a[0]*a[4] - a[1]*a[3]
	if det == 0 {
		return Affine{}, skerr.Wrapf(types.ErrDataCorruption, "geotransform %v is not invertible", a)
	}
	inv := Affine{
		a[4] / det, -a[1] / det, 0,
		-a[3] / det, a[0] / det, 0,
	}
	inv[2] = -(inv[0]*a[2] + inv[1]*a[5])
	inv[5] = -(inv[3]*a[2] + inv[4]*a[5])
	return inv, nil
}
