// Package bands describes the spectral bands of the supported satellite
// constellations. The order of the bands in each table is the order of the
// band axis in extracted archives, so it must never change for a
// constellation once archives exist.
package bands

import (
	"sort"
	"strings"

	"github.com/eocube/eocube/go/skerr"
	"github.com/eocube/eocube/go/types"
)

// Constellation names as they appear in catalog items, archive paths, and
// configuration files.
const (
	Sentinel2 = "sentinel-2"
	Landsat5  = "landsat-5"
	Landsat7  = "landsat-7"
	Landsat8  = "landsat-8"
)

// Band describes a single spectral band of a constellation.
type Band struct {
	// Name is the provider's band identifier, eg. "B04" or "B6_VCID_1". It
	// is the key used in catalog item assets and in task payloads.
	Name string

	// CommonName is the harmonized electro-optical name, eg. "red".
	CommonName string

	// CenterWavelength is the band center in micrometers.
	CenterWavelength float64

	// FullWidthHalfMax is the bandwidth in micrometers, or zero if the
	// provider does not publish one.
	FullWidthHalfMax float64

	// GSD is the ground sample distance in meters of assets for this band.
	GSD float64
}

// LandsatProperties are the index facts which identify the Landsat product
// tier and sensor for a constellation in the public catalog index.
type LandsatProperties struct {
	DataType string
	SensorID string
}

var sentinel2Bands = []Band{
	{Name: "B01", CommonName: "coastal", CenterWavelength: 0.443, GSD: 60},
	{Name: "B02", CommonName: "blue", CenterWavelength: 0.490, GSD: 10},
	{Name: "B03", CommonName: "green", CenterWavelength: 0.560, GSD: 10},
	{Name: "B04", CommonName: "red", CenterWavelength: 0.665, GSD: 10},
	{Name: "B05", CommonName: "rededge1", CenterWavelength: 0.705, GSD: 20},
	{Name: "B06", CommonName: "rededge2", CenterWavelength: 0.740, GSD: 20},
	{Name: "B07", CommonName: "rededge3", CenterWavelength: 0.783, GSD: 20},
	{Name: "B08", CommonName: "nir", CenterWavelength: 0.842, GSD: 10},
	{Name: "B8A", CommonName: "nir08", CenterWavelength: 0.865, GSD: 20},
	{Name: "B09", CommonName: "nir09", CenterWavelength: 0.945, GSD: 60},
	{Name: "B10", CommonName: "cirrus", CenterWavelength: 1.375, GSD: 60},
	{Name: "B11", CommonName: "swir1", CenterWavelength: 1.610, GSD: 20},
	{Name: "B12", CommonName: "swir2", CenterWavelength: 2.190, GSD: 20},
}

var landsat8Bands = []Band{
	{Name: "B1", CommonName: "coastal", CenterWavelength: 0.48, FullWidthHalfMax: 0.02, GSD: 30},
	{Name: "B2", CommonName: "blue", CenterWavelength: 0.44, FullWidthHalfMax: 0.06, GSD: 30},
	{Name: "B3", CommonName: "green", CenterWavelength: 0.56, FullWidthHalfMax: 0.06, GSD: 30},
	{Name: "B4", CommonName: "red", CenterWavelength: 0.65, FullWidthHalfMax: 0.04, GSD: 30},
	{Name: "B5", CommonName: "nir", CenterWavelength: 0.86, FullWidthHalfMax: 0.03, GSD: 30},
	{Name: "B6", CommonName: "swir1", CenterWavelength: 1.6, FullWidthHalfMax: 0.08, GSD: 30},
	{Name: "B7", CommonName: "swir2", CenterWavelength: 2.2, FullWidthHalfMax: 0.2, GSD: 30},
	{Name: "B8", CommonName: "pan", CenterWavelength: 0.59, FullWidthHalfMax: 0.18, GSD: 15},
	{Name: "B9", CommonName: "cirrus", CenterWavelength: 1.37, FullWidthHalfMax: 0.02, GSD: 30},
	{Name: "B10", CommonName: "tirs1", CenterWavelength: 10.9, FullWidthHalfMax: 0.8, GSD: 100},
	{Name: "B11", CommonName: "tirs2", CenterWavelength: 12.0, FullWidthHalfMax: 1.0, GSD: 100},
}

var landsat7Bands = []Band{
	{Name: "B1", CommonName: "blue", CenterWavelength: 0.485, FullWidthHalfMax: 0.035, GSD: 30},
	{Name: "B2", CommonName: "green", CenterWavelength: 0.56, FullWidthHalfMax: 0.04, GSD: 30},
	{Name: "B3", CommonName: "red", CenterWavelength: 0.66, FullWidthHalfMax: 0.03, GSD: 30},
	{Name: "B4", CommonName: "nir", CenterWavelength: 0.835, FullWidthHalfMax: 0.065, GSD: 30},
	{Name: "B5", CommonName: "swir1", CenterWavelength: 1.65, FullWidthHalfMax: 0.10, GSD: 30},
	{Name: "B6_VCID_1", CommonName: "low-gain thermal infrared 1", CenterWavelength: 11.45, FullWidthHalfMax: 1.05, GSD: 60},
	{Name: "B6_VCID_2", CommonName: "high-gain thermal infrared 2", CenterWavelength: 11.45, FullWidthHalfMax: 1.05, GSD: 60},
	{Name: "B7", CommonName: "swir2", CenterWavelength: 2.215, FullWidthHalfMax: 0.135, GSD: 30},
	{Name: "B8", CommonName: "pan", CenterWavelength: 0.71, FullWidthHalfMax: 0.24, GSD: 15},
}

var landsat5Bands = []Band{
	{Name: "B1", CommonName: "blue", CenterWavelength: 0.485, FullWidthHalfMax: 0.035, GSD: 30},
	{Name: "B2", CommonName: "green", CenterWavelength: 0.56, FullWidthHalfMax: 0.04, GSD: 30},
	{Name: "B3", CommonName: "red", CenterWavelength: 0.66, FullWidthHalfMax: 0.03, GSD: 30},
	{Name: "B4", CommonName: "nir", CenterWavelength: 0.835, FullWidthHalfMax: 0.065, GSD: 30},
	{Name: "B5", CommonName: "swir1", CenterWavelength: 1.65, FullWidthHalfMax: 0.10, GSD: 30},
	{Name: "B6", CommonName: "thermal infrared 1", CenterWavelength: 11.45, FullWidthHalfMax: 1.05, GSD: 60},
	{Name: "B7", CommonName: "swir2", CenterWavelength: 2.215, FullWidthHalfMax: 0.135, GSD: 30},
}

var byConstellation = map[string][]Band{
	Sentinel2: sentinel2Bands,
	Landsat5:  landsat5Bands,
	Landsat7:  landsat7Bands,
	Landsat8:  landsat8Bands,
}

var landsatProperties = map[string]LandsatProperties{
	Landsat5: {DataType: "L1TP", SensorID: "TM"},
	Landsat7: {DataType: "L1TP", SensorID: "ETM"},
	Landsat8: {DataType: "L1TP", SensorID: "OLI_TIRS"},
}

// Constellations returns the names of all supported constellations, sorted.
func Constellations() []string {
	rv := make([]string, 0, len(byConstellation))
	for name := range byConstellation {
		rv = append(rv, name)
	}
	sort.Strings(rv)
	return rv
}

// IsValidConstellation returns true if the given constellation is supported.
func IsValidConstellation(constellation string) bool {
	_, ok := byConstellation[constellation]
	return ok
}

// IsLandsat returns true if the constellation is part of the Landsat program.
func IsLandsat(constellation string) bool {
	_, ok := landsatProperties[constellation]
	return ok
}

// Bands returns the bands of the given constellation in archive order. The
// returned slice must not be modified by the caller.
func Bands(constellation string) ([]Band, error) {
	b, ok := byConstellation[constellation]
	if !ok {
		return nil, skerr.Wrapf(types.ErrInvalidArgument, "unknown constellation %q", constellation)
	}
	return b, nil
}

// Names returns the band names of the given constellation in archive order.
func Names(constellation string) ([]string, error) {
	b, ok := byConstellation[constellation]
	if !ok {
		return nil, skerr.Wrapf(types.ErrInvalidArgument, "unknown constellation %q", constellation)
	}
	rv := make([]string, 0, len(b))
	for _, band := range b {
		rv = append(rv, band.Name)
	}
	return rv, nil
}

// Get returns the band of the given constellation with the given name. Band
// names are matched case-insensitively.
func Get(constellation, name string) (Band, error) {
	b, ok := byConstellation[constellation]
	if !ok {
		return Band{}, skerr.Wrapf(types.ErrInvalidArgument, "unknown constellation %q", constellation)
	}
	for _, band := range b {
		if strings.EqualFold(band.Name, name) {
			return band, nil
		}
	}
	return Band{}, skerr.Wrapf(types.ErrInvalidArgument, "unknown band %q for constellation %q", name, constellation)
}

// Index returns the position of the named band along the band axis of the
// constellation's archives. Band names are matched case-insensitively.
func Index(constellation, name string) (int, error) {
	b, ok := byConstellation[constellation]
	if !ok {
		return 0, skerr.Wrapf(types.ErrInvalidArgument, "unknown constellation %q", constellation)
	}
	for i, band := range b {
		if strings.EqualFold(band.Name, name) {
			return i, nil
		}
	}
	return 0, skerr.Wrapf(types.ErrInvalidArgument, "unknown band %q for constellation %q", name, constellation)
}

// MinGSD returns the finest ground sample distance across the bands of the
// given constellation. Archives store every band resampled to this
// resolution.
func MinGSD(constellation string) (float64, error) {
	b, ok := byConstellation[constellation]
	if !ok {
		return 0, skerr.Wrapf(types.ErrInvalidArgument, "unknown constellation %q", constellation)
	}
	min := b[0].GSD
	for _, band := range b[1:] {
		if band.GSD < min {
			min = band.GSD
		}
	}
	return min, nil
}

// LandsatQueryProperties returns the product tier and sensor identifier used
// to filter the public catalog index for the given Landsat constellation.
func LandsatQueryProperties(constellation string) (LandsatProperties, error) {
	p, ok := landsatProperties[constellation]
	if !ok {
		return LandsatProperties{}, skerr.Wrapf(types.ErrInvalidArgument, "constellation %q is not a Landsat mission", constellation)
	}
	return p, nil
}

// IsCategorical returns true if the named band holds categorical values,
// such as quality assessment bitmasks, which must only ever be resampled
// with nearest-neighbor so that no new category values are invented.
func IsCategorical(name string) bool {
	upper := strings.ToUpper(name)
	return strings.HasPrefix(upper, "QA") || strings.HasPrefix(upper, "BQA")
}
