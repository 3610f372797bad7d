package stac

import (
	"compress/gzip"
	"encoding/json"
	"io"
	"strings"

	"github.com/eocube/eocube/go/skerr"
	"github.com/eocube/eocube/go/types"
	"github.com/eocube/eocube/go/util"
)

// SaveItemCollection writes items to path as a GeoJSON FeatureCollection,
// gzip-compressed when path ends in ".gz".
func SaveItemCollection(path string, items types.ItemCollection) error {
	err := util.WithWriteFile(path, func(w io.Writer) error {
		if strings.HasSuffix(path, ".gz") {
			return util.WithGzipWriter(w, func(w io.Writer) error {
				return json.NewEncoder(w).Encode(items)
			})
		}
		return json.NewEncoder(w).Encode(items)
	})
	if err != nil {
		return skerr.Wrapf(err, "writing item collection to %s", path)
	}
	return nil
}

// LoadItemCollection reads a GeoJSON FeatureCollection written by
// SaveItemCollection, transparently decompressing ".gz" files.
func LoadItemCollection(path string) (types.ItemCollection, error) {
	var items types.ItemCollection
	err := util.WithReadFile(path, func(r io.Reader) error {
		if strings.HasSuffix(path, ".gz") {
			gzr, err := gzip.NewReader(r)
			if err != nil {
				return skerr.Wrap(err)
			}
			defer util.Close(gzr)
			return json.NewDecoder(gzr).Decode(&items)
		}
		return json.NewDecoder(r).Decode(&items)
	})
	if err != nil {
		return nil, skerr.Wrapf(err, "reading item collection from %s", path)
	}
	return items, nil
}
