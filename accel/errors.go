package accel

import "errors"

var (
	ErrRefitBeforeBuild   = errors.New("accel: top-level structure refit requested before a full build")
	ErrInstanceSetChanged = errors.New("accel: instance count changed since the last full build; a full rebuild is required")
	ErrMissingBottomLevel = errors.New("accel: no bottom-level structure for instance model")
	ErrUnknownInstance    = errors.New("accel: unknown instance handle")
	ErrArenaSealed        = errors.New("accel: instances cannot be added after the instance set has been sealed")
	ErrEmptyGeometry      = errors.New("accel: bottom-level structure requires a vertex buffer")
)
