package geometry

import "errors"

var (
	ErrUnknownModel  = errors.New("geometry: unknown model handle")
	ErrNoImporter    = errors.New("geometry: no model importer configured")
	ErrStoreUploaded = errors.New("geometry: the material buffers have already been uploaded")
)
