package renderer

import "errors"

var (
	ErrNoFrames    = errors.New("renderer: frame count must be positive")
	ErrInterrupted = errors.New("renderer: interrupted while rendering")
)
