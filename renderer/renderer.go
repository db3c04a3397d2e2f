// Package renderer drives a tracer either headless, writing the presented
// image to a file, or interactively inside a window.
package renderer

import (
	"github.com/ML200/RoyalTracer-DX/log"
)

var logger = log.New("renderer")

type Renderer interface {
	// Render frames until done or until the user closes the window.
	Render() error

	// Shutdown renderer and the attached tracer.
	Close()

	// Get render statistics.
	Stats() FrameStats
}
