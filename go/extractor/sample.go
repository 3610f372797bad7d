package extractor

import (
	"image"
	"image/color"
	"math"

	"github.com/ctessum/geom"
	"github.com/nfnt/resize"

	"github.com/eocube/eocube/go/geo"
	"github.com/eocube/eocube/go/geotiff"
	"github.com/eocube/eocube/go/skerr"
	"github.com/eocube/eocube/go/sklog"
	"github.com/eocube/eocube/go/types"
	"github.com/eocube/eocube/go/util"
)

// warpMargin pads reprojected source windows, in source pixels. Transformed
// bounding boxes are taken from the corners only, so bowed edges need slack.
const warpMargin = 2

// sampleToCanvas reads the part of rd covering the canvas and resamples it
// onto the canvas grid. Pixels outside the source raster are zero. Source
// rasters in the canvas projection are read windowed and scaled; anything
// else is warped pixel by pixel.
func sampleToCanvas(rd *geotiff.Reader, cv canvas, categorical bool) ([]uint16, error) {
	srcInv, err := rd.Transform().Invert()
	if err != nil {
		return nil, err
	}
	if rd.EPSG() == cv.epsg {
		return sampleDirect(rd, srcInv, cv, categorical)
	}
	return sampleWarped(rd, srcInv, cv, categorical)
}

func sampleDirect(rd *geotiff.Reader, srcInv geotiff.Affine, cv canvas, categorical bool) ([]uint16, error) {
	c0, r0 := srcInv.Apply(cv.ulx, cv.uly)
	c1, r1 := srcInv.Apply(cv.lrx, cv.lry)
	x0, y0 := int(math.Floor(c0)), int(math.Floor(r0))
	x1, y1 := int(math.Ceil(c1)), int(math.Ceil(r1))
	if x1 <= x0 || y1 <= y0 {
		return make([]uint16, cv.width*cv.height), nil
	}
	w, h := x1-x0, y1-y0
	src, err := rd.ReadWindow(x0, y0, w, h)
	if err != nil {
		return nil, err
	}
	// Aligned grids at the target resolution need no resampling. The public
	// imagery pixel grids are origin-aligned UTM multiples, so this is the
	// common path.
	if w == cv.width && h == cv.height && c0 == float64(x0) && r0 == float64(y0) {
		return src, nil
	}
	return scale(src, w, h, cv.width, cv.height, categorical), nil
}

// sampleWarped reprojects by sampling the source at every canvas pixel
// center through the projection pair, after one bounding windowed read.
func sampleWarped(rd *geotiff.Reader, srcInv geotiff.Affine, cv canvas, categorical bool) ([]uint16, error) {
	fwd, err := geo.NewTransform(cv.epsg, rd.EPSG())
	if err != nil {
		return nil, skerr.Wrapf(types.ErrDataCorruption, "asset projection EPSG:%d is unusable: %s", rd.EPSG(), err)
	}
	b, err := geo.TransformBounds(&geom.Bounds{
		Min: geom.Point{X: cv.ulx, Y: cv.lry},
		Max: geom.Point{X: cv.lrx, Y: cv.uly},
	}, fwd)
	if err != nil {
		return nil, skerr.Wrapf(types.ErrDataCorruption, "canvas does not project into EPSG:%d: %s", rd.EPSG(), err)
	}
	c0, r0 := srcInv.Apply(b.Min.X, b.Max.Y)
	c1, r1 := srcInv.Apply(b.Max.X, b.Min.Y)
	x0 := util.MaxInt(int(math.Floor(c0))-warpMargin, 0)
	y0 := util.MaxInt(int(math.Floor(r0))-warpMargin, 0)
	x1 := util.MinInt(int(math.Ceil(c1))+warpMargin, rd.Width())
	y1 := util.MinInt(int(math.Ceil(r1))+warpMargin, rd.Height())

	out := make([]uint16, cv.width*cv.height)
	if x1 <= x0 || y1 <= y0 {
		return out, nil
	}
	w, h := x1-x0, y1-y0
	src, err := rd.ReadWindow(x0, y0, w, h)
	if err != nil {
		return nil, err
	}

	res := float64(cv.res)
	badPoints := 0
	for j := 0; j < cv.height; j++ {
		cy := cv.uly - (float64(j)+0.5)*res
		for i := 0; i < cv.width; i++ {
			cx := cv.ulx + (float64(i)+0.5)*res
			sx, sy, err := fwd(cx, cy)
			if err != nil {
				badPoints++
				continue
			}
			fc, fr := srcInv.Apply(sx, sy)
			fc -= float64(x0)
			fr -= float64(y0)
			if categorical {
				out[j*cv.width+i] = pick(src, w, h, int(math.Floor(fc)), int(math.Floor(fr)))
			} else {
				out[j*cv.width+i] = bilinear(src, w, h, fc, fr)
			}
		}
	}
	if badPoints > 0 {
		sklog.Warningf("%d of %d canvas pixels do not project into EPSG:%d; left as zero.", badPoints, len(out), rd.EPSG())
	}
	return out, nil
}

// pick returns the sample at (x, y), or zero outside the raster.
func pick(src []uint16, w, h, x, y int) uint16 {
	if x < 0 || y < 0 || x >= w || y >= h {
		return 0
	}
	return src[y*w+x]
}

// bilinear interpolates at the continuous pixel position (fc, fr), where
// integer values are pixel edges. Positions outside the raster return zero;
// positions within half a pixel of the edge clamp to the edge row/column.
func bilinear(src []uint16, w, h int, fc, fr float64) uint16 {
	if fc < 0 || fr < 0 || fc >= float64(w) || fr >= float64(h) {
		return 0
	}
	x := math.Min(math.Max(fc-0.5, 0), float64(w-1))
	y := math.Min(math.Max(fr-0.5, 0), float64(h-1))
	x0, y0 := int(x), int(y)
	x1 := util.MinInt(x0+1, w-1)
	y1 := util.MinInt(y0+1, h-1)
	dx := x - float64(x0)
	dy := y - float64(y0)
	v := (1-dy)*((1-dx)*float64(src[y0*w+x0])+dx*float64(src[y0*w+x1])) +
		dy*((1-dx)*float64(src[y1*w+x0])+dx*float64(src[y1*w+x1]))
	return uint16(math.Round(v))
}

// scale resamples a raster to the given output dimensions, bilinear for
// measurements and nearest-neighbor for categorical bands.
func scale(data []uint16, w, h, outW, outH int, categorical bool) []uint16 {
	img := image.NewGray16(image.Rect(0, 0, w, h))
	for i, v := range data {
		img.Pix[2*i] = uint8(v >> 8)
		img.Pix[2*i+1] = uint8(v)
	}
	interp := resize.Bilinear
	if categorical {
		interp = resize.NearestNeighbor
	}
	scaled := resize.Resize(uint(outW), uint(outH), img, interp)
	out := make([]uint16, outW*outH)
	if g, ok := scaled.(*image.Gray16); ok {
		for i := range out {
			out[i] = uint16(g.Pix[2*i])<<8 | uint16(g.Pix[2*i+1])
		}
		return out
	}
	for y := 0; y < outH; y++ {
		for x := 0; x < outW; x++ {
			out[y*outW+x] = color.Gray16Model.Convert(scaled.At(x, y)).(color.Gray16).Y
		}
	}
	return out
}
