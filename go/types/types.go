// Package types defines the data model shared across the extraction
// pipeline: tiles, catalog items, extraction tasks, the wire payload
// published to the message bus, and the error taxonomy other packages match
// against with errors.Is.
package types

import (
	"strings"

	"github.com/eocube/eocube/go/skerr"
)

// MosaicMethod selects how overlapping scene reads are merged into one
// patch.
type MosaicMethod int

const (
	// MosaicFirst keeps the first valid (non-zero) pixel in item order.
	MosaicFirst MosaicMethod = iota
	// MosaicMax keeps the per-pixel maximum.
	MosaicMax
)

// String representations for MosaicMethods. The order must match the order
// above.
var mosaicMethodStringRepresentation = []string{
	"first",
	"max",
}

func (m MosaicMethod) String() string {
	return mosaicMethodStringRepresentation[m]
}

// ParseMosaicMethod converts a config string into a MosaicMethod.
func ParseMosaicMethod(s string) (MosaicMethod, error) {
	for i, name := range mosaicMethodStringRepresentation {
		if strings.EqualFold(s, name) {
			return MosaicMethod(i), nil
		}
	}
	return MosaicFirst, skerr.Wrapf(ErrInvalidArgument, "unknown mosaic method %q", s)
}
