package tracer

import (
	"fmt"
	"math"
)

// The number of output texture layers visible to the dispatch stages.
const OutputLayers = 30

// The largest supported frame width or height; matches the 2D texture
// dimension limit of ray-tracing capable devices.
const MaxFrameDim = 16384

// Options configure a Tracer.
type Options struct {
	// Frame dimensions.
	FrameW uint32
	FrameH uint32

	// The ordered dispatch stages.
	Passes PassList

	// Reject pass lists that omit barriers between dependent stages.
	StrictBarriers bool

	// Directory containing the shader libraries.
	ShaderDir string

	// Output layers that can be selected for display.
	DisplayLayers []uint32

	// Perspective projection parameters. FovY is specified in degrees.
	FovY float32
	Near float32
	Far  float32

	// Rotate instance 1 on every frame.
	Animate bool
}

// Get the default tracer options.
func DefaultOptions() Options {
	return Options{
		FrameW:        1280,
		FrameH:        720,
		Passes:        DefaultPassList(),
		ShaderDir:     "shaders",
		DisplayLayers: []uint32{0, 10, 11, 12, 13, 14, 15, 16, 17, 20, 21, 22, 23, 24, 25, 26, 27, 28},
		FovY:          60,
		Near:          0.1,
		Far:           1000,
	}
}

// Get the frame aspect ratio.
func (o Options) Aspect() float32 {
	return float32(o.FrameW) / float32(o.FrameH)
}

// Get the number of pixels in a frame.
func (o Options) Pixels() int {
	return int(o.FrameW) * int(o.FrameH)
}

// Get the vertical field of view in radians.
func (o Options) FovYRadians() float32 {
	return o.FovY * math.Pi / 180
}

// Validate the options.
func (o Options) Validate() error {
	if o.FrameW == 0 || o.FrameH == 0 || o.FrameW > MaxFrameDim || o.FrameH > MaxFrameDim {
		return fmt.Errorf("%w: got %dx%d; dimensions must be in [1, %d]", ErrInvalidFrameSize, o.FrameW, o.FrameH, MaxFrameDim)
	}
	if len(o.Passes.Stages()) == 0 {
		return ErrEmptyPassList
	}
	if o.StrictBarriers {
		if err := o.Passes.Validate(); err != nil {
			return err
		}
	}
	if len(o.DisplayLayers) == 0 {
		return fmt.Errorf("%w: no display layers", ErrInvalidLayer)
	}
	for _, layer := range o.DisplayLayers {
		if layer >= OutputLayers {
			return fmt.Errorf("%w: display layer %d; output has %d layers", ErrInvalidLayer, layer, OutputLayers)
		}
	}
	if o.FovY <= 0 || o.FovY >= 180 || o.Near <= 0 || o.Far <= o.Near {
		return fmt.Errorf("tracer: invalid projection (fovY %f, near %f, far %f)", o.FovY, o.Near, o.Far)
	}
	return nil
}
