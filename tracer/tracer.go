// Package tracer drives the per-frame work of the path tracer: it uploads the
// scene, streams per-frame camera and instance data to the device and records
// the ray dispatch sequence described by a pass list.
package tracer

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/ML200/RoyalTracer-DX/accel"
	"github.com/ML200/RoyalTracer-DX/fault"
	"github.com/ML200/RoyalTracer-DX/geometry"
	"github.com/ML200/RoyalTracer-DX/lights"
	"github.com/ML200/RoyalTracer-DX/log"
	"github.com/ML200/RoyalTracer-DX/tracer/device"
	"github.com/ML200/RoyalTracer-DX/types"
)

// A scene to be loaded by the tracer. Instance model handles refer to
// positions in the Models list.
type Scene struct {
	Models    []string
	Instances []accel.Instance
}

// Create a scene that places each model once with an identity transform.
func DefaultScene(models ...string) Scene {
	scene := Scene{Models: models}
	for index := range models {
		scene.Instances = append(scene.Instances, accel.Instance{
			Model:     geometry.ModelHandle(index),
			Transform: types.Ident4(),
		})
	}
	return scene
}

// UpdateFunc is invoked at the start of every frame, before the instance
// transforms are streamed to the device.
type UpdateFunc func(arena *accel.Arena, frame uint64) error

// The transform applied to instance 1 by the animation hook.
func AnimatedTransform() types.Mat4 {
	return types.Scale4(types.XYZ(1, 1, 1)).
		Mul4(types.RotateY4(1.57)).
		Mul4(types.Translate4(types.XYZ(0, 1, 0)))
}

// Animate moves the second instance of the scene if there is one.
func Animate(arena *accel.Arena, _ uint64) error {
	if arena.Len() < 2 {
		return nil
	}
	return arena.SetTransform(1, AnimatedTransform())
}

// Tracer owns the device resources of a loaded scene and renders frames.
type Tracer struct {
	logger log.Logger
	opts   Options
	dev    device.Device

	store     *geometry.Store
	arena     *accel.Arena
	structs   *accel.Manager
	sampler   *lights.Sampler
	instances *InstanceStream
	camera    *CameraStream
	buffers   *bufferSet

	heap      device.DescriptorHeap
	pipeline  device.Pipeline
	sbt       *ShaderBindingTable
	sequencer *Sequencer

	update UpdateFunc

	layerIndex int
	raster     bool
	loaded     bool

	stats Stats
}

// Create a tracer that renders on dev and imports models through importer.
func New(dev device.Device, importer geometry.Importer, opts Options) (*Tracer, error) {
	if err := opts.Validate(); err != nil {
		return nil, fault.LoadErr("validate options", err)
	}

	tr := &Tracer{
		logger:    log.New("tracer"),
		opts:      opts,
		dev:       dev,
		store:     geometry.NewStore(dev, importer),
		arena:     accel.NewArena(),
		structs:   accel.NewManager(dev),
		sequencer: NewSequencer(opts.Passes),
	}
	if opts.Animate {
		tr.update = Animate
	}
	return tr, nil
}

// Set a function to be invoked at the start of every frame. It replaces the
// animation hook enabled by Options.Animate.
func (tr *Tracer) SetUpdateFunc(fn UpdateFunc) {
	tr.update = fn
}

// Load the scene and create every device resource needed for rendering.
// The instance set is frozen once Load returns.
func (tr *Tracer) Load(ctx context.Context, scene Scene) error {
	if tr.loaded {
		return fault.LoadErr("load scene", ErrAlreadyLoaded)
	}

	start := time.Now()
	if err := tr.loadGeometry(ctx, scene); err != nil {
		return err
	}
	if err := tr.buildStructures(); err != nil {
		return err
	}
	if err := tr.createFrameResources(); err != nil {
		return err
	}
	if err := tr.createPipeline(); err != nil {
		return err
	}

	tr.arena.Seal()
	tr.loaded = true
	tr.stats.Scene = tr.sceneStats()

	tr.logger.Noticef("loaded scene in %d ms", time.Since(start).Nanoseconds()/1e6)
	return nil
}

func (tr *Tracer) loadGeometry(ctx context.Context, scene Scene) error {
	handles, err := tr.store.AddModels(ctx, scene.Models)
	if err != nil {
		return err
	}
	if err = tr.store.Upload(); err != nil {
		return err
	}

	for index, inst := range scene.Instances {
		if int(inst.Model) >= len(handles) {
			return fault.LoadErr("add instance", fmt.Errorf("%w: instance %d references model %d", geometry.ErrUnknownModel, index, inst.Model))
		}
		if _, err = tr.arena.Add(handles[inst.Model], inst.Transform); err != nil {
			return fault.LoadErr("add instance", err)
		}
	}
	return nil
}

// Record and execute the structure builds and the light upload.
func (tr *Tracer) buildStructures() error {
	start := time.Now()

	cl := tr.dev.CommandList()
	if err := cl.Reset(); err != nil {
		return fault.LoadErr("reset command list", err)
	}
	if err := tr.structs.BuildAll(cl, tr.store, tr.arena); err != nil {
		return err
	}

	tris, err := lights.CollectEmissiveTriangles(tr.arena, tr.store, tr.logger)
	if err != nil {
		return fault.LoadErr("collect emissive triangles", err)
	}
	tr.sampler = lights.NewSampler(tris)
	if err = tr.sampler.Upload(tr.dev, cl); err != nil {
		return fault.LoadErr("upload light data", err)
	}

	if err = tr.submit(cl); err != nil {
		return fault.LoadErr("build structures", err)
	}
	tr.sampler.ReleaseStaging()

	tr.logger.Noticef(
		"built acceleration structures and %d emissive triangles in %d ms",
		tr.sampler.Len(), time.Since(start).Nanoseconds()/1e6,
	)
	return nil
}

func (tr *Tracer) createFrameResources() error {
	var err error

	if tr.buffers, err = newBufferSet(tr.dev); err != nil {
		return fault.LoadErr("allocate constant buffers", err)
	}
	if err = tr.buffers.Resize(tr.dev, tr.opts.FrameW, tr.opts.FrameH); err != nil {
		return fault.LoadErr("allocate frame buffers", err)
	}
	if tr.instances, err = NewInstanceStream(tr.dev, tr.arena.Len()); err != nil {
		return fault.LoadErr("allocate instance stream", err)
	}
	if err = tr.instances.Update(tr.arena); err != nil {
		return fault.LoadErr("upload instance properties", err)
	}
	if tr.camera, err = NewCameraStream(tr.dev, tr.opts); err != nil {
		return fault.LoadErr("allocate camera stream", err)
	}

	tr.heap, err = BuildBindingTable(tr.dev, Sources{
		Output:             tr.buffers.Output,
		Persistent:         tr.buffers.Persistent,
		TopLevel:           tr.structs.TopLevel().Result,
		Camera:             tr.camera.Buffer(),
		InstanceProperties: tr.instances.Buffer(),
		NumInstances:       tr.instances.Len(),
		Materials:          tr.store.MaterialBuffer(),
		NumMaterials:       len(tr.store.Materials()),
		MaterialIDs:        tr.store.MaterialIDBuffer(),
		NumMaterialIDs:     len(tr.store.MaterialIDs()),
		ReservoirsDI:       tr.buffers.ReservoirsDI,
		ReservoirsGI:       tr.buffers.ReservoirsGI,
		Samples:            tr.buffers.Samples,
		Pixels:             tr.opts.Pixels(),
		LightTriangles:     tr.sampler.TriangleBuffer,
		AliasProb:          tr.sampler.ProbBuffer,
		AliasIdx:           tr.sampler.AliasBuffer,
		NumLights:          tr.sampler.Len(),
	})
	return err
}

func (tr *Tracer) createPipeline() error {
	start := time.Now()

	var err error
	tr.pipeline, err = tr.dev.NewPipeline(NewPipelineDesc(tr.opts.Passes, tr.opts.ShaderDir))
	if err != nil {
		return fault.LoadErr("create pipeline", err)
	}

	var hitArgs []HitGroupArgs
	for _, h := range tr.arena.Handles() {
		binding, err := tr.arena.Resolve(h)
		if err != nil {
			return fault.LoadErr("create shader table", err)
		}
		model, err := tr.store.Model(binding.Model)
		if err != nil {
			return fault.LoadErr("create shader table", err)
		}
		hitArgs = append(hitArgs, HitGroupArgs{
			VertexBuffer: model.VertexBuffer.GPUAddress(),
			IndexBuffer:  model.IndexBuffer.GPUAddress(),
			Constants:    tr.buffers.InstanceCBs[0].GPUAddress(),
		})
	}

	tr.sbt = NewShaderBindingTable(tr.opts.Passes.Stages(), tr.heap.GPUStart(), hitArgs)
	if err = tr.sbt.Generate(tr.dev, tr.pipeline); err != nil {
		return fault.LoadErr("generate shader table", err)
	}

	tr.logger.Noticef(
		"created pipeline with %d stages and a %d byte shader table in %d ms",
		len(tr.opts.Passes.Stages()), tr.sbt.Size(), time.Since(start).Nanoseconds()/1e6,
	)
	return nil
}

// Render a frame using the given view matrix. The call blocks until the
// device has finished executing the frame.
func (tr *Tracer) Frame(view types.Mat4) error {
	if !tr.loaded {
		return fault.FrameErr("render frame", ErrNotLoaded)
	}

	start := time.Now()
	if tr.update != nil {
		if err := tr.update(tr.arena, tr.stats.Frames); err != nil {
			return fault.FrameErr("update scene", err)
		}
	}
	if err := tr.instances.Update(tr.arena); err != nil {
		return fault.FrameErr("upload instance properties", err)
	}
	if err := tr.camera.Update(view); err != nil {
		return fault.FrameErr("upload camera", err)
	}

	cl := tr.dev.CommandList()
	if err := cl.Reset(); err != nil {
		return fault.FrameErr("reset command list", err)
	}
	err := tr.sequencer.RecordFrame(cl, FrameResources{
		Refit: func(cl device.CommandList) error {
			return tr.structs.BuildOrRefitTopLevel(cl, tr.arena, true)
		},
		Heap:         tr.heap,
		Pipeline:     tr.pipeline,
		ShaderTable:  tr.sbt,
		Output:       tr.buffers.Output,
		RenderTarget: tr.buffers.RenderTarget,
		Layer:        tr.Layer(),
		FrameW:       tr.opts.FrameW,
		FrameH:       tr.opts.FrameH,
	})
	if err != nil {
		return err
	}

	submitStart := time.Now()
	if err = tr.submit(cl); err != nil {
		tr.sequencer.Abort()
		return fault.FrameErr("submit frame", err)
	}
	if err = tr.sequencer.Complete(); err != nil {
		return err
	}

	tr.stats.Frames++
	tr.stats.LastFrame = FrameStats{
		Timings:    tr.sequencer.Timings(),
		SubmitTime: time.Since(submitStart),
		RenderTime: time.Since(start),
		Layer:      tr.Layer(),
		Raster:     tr.raster,
	}
	return nil
}

// Close and execute a command list and wait for the device to finish.
func (tr *Tracer) submit(cl device.CommandList) error {
	if err := cl.Close(); err != nil {
		return err
	}
	if err := tr.dev.Execute(cl); err != nil {
		return err
	}
	fence, err := tr.dev.Signal()
	if err != nil {
		return err
	}
	return tr.dev.Wait(fence)
}

// Select the next display layer and return it.
func (tr *Tracer) CycleLayer() uint32 {
	tr.layerIndex = (tr.layerIndex + 1) % len(tr.opts.DisplayLayers)
	layer := tr.Layer()
	tr.logger.Noticef("displaying output layer %d", layer)
	return layer
}

// Get the output layer copied to the render target.
func (tr *Tracer) Layer() uint32 {
	return tr.opts.DisplayLayers[tr.layerIndex]
}

// Toggle the raster flag and return its new value.
func (tr *Tracer) ToggleRaster() bool {
	tr.raster = !tr.raster
	tr.logger.Noticef("raster: %t", tr.raster)
	return tr.raster
}

func (tr *Tracer) Raster() bool {
	return tr.raster
}

// Change the transform of an instance. The change is picked up by the next
// frame.
func (tr *Tracer) SetInstanceTransform(h accel.Handle, transform types.Mat4) error {
	if err := tr.arena.SetTransform(h, transform); err != nil {
		return fault.FrameErr("set instance transform", err)
	}
	return nil
}

func (tr *Tracer) Options() Options {
	return tr.opts
}

func (tr *Tracer) Arena() *accel.Arena {
	return tr.arena
}

func (tr *Tracer) Stats() Stats {
	return tr.stats
}

// Read the presented image.
func (tr *Tracer) Snapshot() (*image.RGBA, error) {
	if !tr.loaded {
		return nil, ErrNotLoaded
	}
	rt, ok := tr.buffers.RenderTarget.(device.ReadableTexture)
	if !ok {
		return nil, fmt.Errorf("tracer: render target of device %s cannot be read back", tr.dev.Name())
	}

	img := image.NewRGBA(image.Rect(0, 0, int(tr.opts.FrameW), int(tr.opts.FrameH)))
	if err := rt.ReadLayer(0, img.Pix); err != nil {
		return nil, err
	}
	return img, nil
}

// Release all device resources.
func (tr *Tracer) Close() {
	if tr.sbt != nil {
		tr.sbt.Release()
	}
	if tr.pipeline != nil {
		tr.pipeline.Release()
	}
	if tr.camera != nil {
		tr.camera.Release()
	}
	if tr.instances != nil {
		tr.instances.Release()
	}
	if tr.buffers != nil {
		tr.buffers.Release()
	}
	if tr.sampler != nil {
		tr.sampler.Release()
	}
	tr.structs.Release()
	tr.store.Release()
	tr.loaded = false
}
