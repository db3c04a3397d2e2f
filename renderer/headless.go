package renderer

import (
	"context"
	"image/png"
	"io"
	"os"
	"time"

	"github.com/ML200/RoyalTracer-DX/scene"
	"github.com/ML200/RoyalTracer-DX/tracer"
)

// A renderer that renders a fixed number of frames and optionally writes
// the last presented image to a PNG file.
type headlessRenderer struct {
	ctx     context.Context
	tracer  *tracer.Tracer
	camera  *scene.Camera
	options Options

	// Opens the output image file.
	create func(name string) (io.WriteCloser, error)

	renderTime time.Duration
}

// Create a headless renderer for a loaded tracer. Rendering stops early with
// ErrInterrupted if ctx is cancelled.
func NewHeadless(ctx context.Context, tr *tracer.Tracer, camera *scene.Camera, opts Options) (Renderer, error) {
	if opts.Frames <= 0 {
		return nil, ErrNoFrames
	}
	return &headlessRenderer{
		ctx:     ctx,
		tracer:  tr,
		camera:  camera,
		options: opts,
		create: func(name string) (io.WriteCloser, error) {
			return os.Create(name)
		},
	}, nil
}

func (r *headlessRenderer) Render() error {
	start := time.Now()
	for frame := 0; frame < r.options.Frames; frame++ {
		select {
		case <-r.ctx.Done():
			return ErrInterrupted
		default:
		}

		if err := r.tracer.Frame(r.camera.ViewMat); err != nil {
			return err
		}
	}
	r.renderTime = time.Since(start)
	logger.Noticef("rendered %d frames in %d ms", r.options.Frames, r.renderTime.Nanoseconds()/1e6)

	if r.options.OutFile == "" {
		return nil
	}
	return r.writeImage()
}

func (r *headlessRenderer) writeImage() error {
	img, err := r.tracer.Snapshot()
	if err != nil {
		return err
	}

	f, err := r.create(r.options.OutFile)
	if err != nil {
		return err
	}

	start := time.Now()
	if err = png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	logger.Noticef("wrote layer %d to %s in %d ms", r.tracer.Layer(), r.options.OutFile, time.Since(start).Nanoseconds()/1e6)
	return nil
}

func (r *headlessRenderer) Close() {
	r.tracer.Close()
}

func (r *headlessRenderer) Stats() FrameStats {
	return frameStats(r.tracer, r.renderTime)
}
