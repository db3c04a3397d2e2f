// Package reader implements the model importers used by the geometry store.
package reader

import (
	"fmt"
	"path/filepath"

	"github.com/ML200/RoyalTracer-DX/asset"
)

// The Reader interface is implemented by all model readers.
type Reader interface {
	// Read a model from a resource.
	Read(*asset.Resource) (*asset.Model, error)
}

// FileImporter opens model files and selects a reader based on the file
// extension. Relative model names are resolved against SearchDir.
type FileImporter struct {
	SearchDir string
}

// Import a model by name.
func (fi FileImporter) Import(name string) (*asset.Model, error) {
	var reader Reader
	switch {
	case asset.HasExtension(name, ".obj"):
		reader = NewWavefront()
	default:
		return nil, fmt.Errorf("reader: unsupported model format for %q", name)
	}

	location := name
	if fi.SearchDir != "" && !filepath.IsAbs(name) && !isURL(name) {
		location = filepath.Join(fi.SearchDir, name)
	}

	res, err := asset.NewResource(location, nil)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	return reader.Read(res)
}

func isURL(name string) bool {
	u, err := asset.Resolve(name, nil)
	return err == nil && u.Scheme != ""
}
