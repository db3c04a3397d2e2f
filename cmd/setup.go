package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/ML200/RoyalTracer-DX/asset/reader"
	"github.com/ML200/RoyalTracer-DX/tracer"
	"github.com/ML200/RoyalTracer-DX/tracer/device"
	"github.com/ML200/RoyalTracer-DX/tracer/device/emulated"
	"github.com/urfave/cli"
)

// The scene loaded when no model files are specified.
var defaultModels = []string{"garage.obj", "monke.obj"}

// Build tracer options from the command flags.
func tracerOptions(ctx *cli.Context) (tracer.Options, error) {
	opts := tracer.DefaultOptions()
	width, height := ctx.Int("width"), ctx.Int("height")
	if width <= 0 || height <= 0 || width > tracer.MaxFrameDim || height > tracer.MaxFrameDim {
		return opts, fmt.Errorf("%w: got %dx%d; dimensions must be in [1, %d]", tracer.ErrInvalidFrameSize, width, height, tracer.MaxFrameDim)
	}
	opts.FrameW = uint32(width)
	opts.FrameH = uint32(height)
	opts.ShaderDir = ctx.String("shader-dir")
	opts.StrictBarriers = ctx.Bool("strict-barriers")
	opts.Animate = ctx.Bool("animate")

	switch preset := ctx.String("preset"); preset {
	case "default":
		opts.Passes = tracer.DefaultPassList()
	case "restir":
		opts.Passes = tracer.ReSTIRPassList()
	default:
		return opts, fmt.Errorf("unknown pass preset %q; supported presets: default, restir", preset)
	}

	if passes := ctx.String("passes"); passes != "" {
		list, err := tracer.ParsePassList(passes)
		if err != nil {
			return opts, err
		}
		opts.Passes = list
	}

	if ctx.IsSet("layer") {
		if err := selectLayer(&opts, uint32(ctx.Int("layer"))); err != nil {
			return opts, err
		}
	}

	return opts, nil
}

// Rotate the display layer list so that it starts at layer.
func selectLayer(opts *tracer.Options, layer uint32) error {
	for index, candidate := range opts.DisplayLayers {
		if candidate != layer {
			continue
		}
		layers := append([]uint32{}, opts.DisplayLayers[index:]...)
		opts.DisplayLayers = append(layers, opts.DisplayLayers[:index]...)
		return nil
	}
	return fmt.Errorf("%w: layer %d is not one of the display layers %v", tracer.ErrInvalidLayer, layer, opts.DisplayLayers)
}

// Create an emulated device and load the scene whose model files are passed
// as command arguments.
func setupTracer(ctx *cli.Context) (*tracer.Tracer, device.Device, error) {
	opts, err := tracerOptions(ctx)
	if err != nil {
		return nil, nil, err
	}

	models := []string(ctx.Args())
	if len(models) == 0 {
		models = defaultModels
	}
	logger.Noticef("loading scene: %s", strings.Join(models, ", "))
	logger.Infof("dispatch passes: %s", opts.Passes)

	dev := emulated.New("emulated")
	tr, err := tracer.New(dev, reader.FileImporter{SearchDir: ctx.String("model-dir")}, opts)
	if err != nil {
		dev.Close()
		return nil, nil, err
	}

	if err = tr.Load(context.Background(), tracer.DefaultScene(models...)); err != nil {
		tr.Close()
		dev.Close()
		return nil, nil, err
	}

	return tr, dev, nil
}
