package emulated

import (
	"fmt"

	"github.com/ML200/RoyalTracer-DX/tracer/device"
)

type Op uint8

// Recorded command types.
const (
	OpBuildAccelerationStructure Op = iota
	OpResourceBarrier
	OpCopyBufferRegion
	OpCopyTextureLayer
	OpSetDescriptorHeap
	OpSetPipeline
	OpDispatchRays
)

// Implements Stringer.
func (op Op) String() string {
	switch op {
	case OpBuildAccelerationStructure:
		return "BuildAccelerationStructure"
	case OpResourceBarrier:
		return "ResourceBarrier"
	case OpCopyBufferRegion:
		return "CopyBufferRegion"
	case OpCopyTextureLayer:
		return "CopyTextureLayer"
	case OpSetDescriptorHeap:
		return "SetDescriptorHeap"
	case OpSetPipeline:
		return "SetPipeline"
	case OpDispatchRays:
		return "DispatchRays"
	}
	panic(fmt.Sprintf("emulated device: unsupported op %d", op))
}

// A recorded command. Only the fields relevant to Op are populated.
type Command struct {
	Op Op

	Barrier  device.Barrier
	Build    device.ASBuildDesc
	Dispatch device.DispatchRaysDesc

	// Copy arguments.
	Dst       device.Resource
	Src       device.Resource
	DstOffset int
	SrcOffset int
	Size      int
	Layer     uint32

	Heap     device.DescriptorHeap
	Pipeline device.Pipeline
}

type CommandList struct {
	device   *Device
	commands []Command
	closed   bool
	err      error
}

func (cl *CommandList) Reset() error {
	cl.commands = cl.commands[:0]
	cl.closed = false
	cl.err = nil
	return nil
}

func (cl *CommandList) Close() error {
	if cl.closed {
		return device.ErrCommandListClosed
	}
	cl.closed = true
	return cl.err
}

// Get the recorded commands.
func (cl *CommandList) Commands() []Command {
	return cl.commands
}

func (cl *CommandList) record(cmd Command) {
	if cl.closed {
		if cl.err == nil {
			cl.err = fmt.Errorf("recording %s: %w", cmd.Op, device.ErrCommandListClosed)
		}
		return
	}
	cl.commands = append(cl.commands, cmd)
}

func (cl *CommandList) BuildAccelerationStructure(desc device.ASBuildDesc) {
	cl.record(Command{Op: OpBuildAccelerationStructure, Build: desc})
}

func (cl *CommandList) ResourceBarrier(barriers ...device.Barrier) {
	for _, b := range barriers {
		cl.record(Command{Op: OpResourceBarrier, Barrier: b})
	}
}

func (cl *CommandList) CopyBufferRegion(dst device.Buffer, dstOffset int, src device.Buffer, srcOffset, size int) {
	cl.record(Command{Op: OpCopyBufferRegion, Dst: dst, Src: src, DstOffset: dstOffset, SrcOffset: srcOffset, Size: size})
}

func (cl *CommandList) CopyTextureLayer(dst device.Texture, src device.Texture, srcLayer uint32) {
	cl.record(Command{Op: OpCopyTextureLayer, Dst: dst, Src: src, Layer: srcLayer})
}

func (cl *CommandList) SetDescriptorHeap(heap device.DescriptorHeap) {
	cl.record(Command{Op: OpSetDescriptorHeap, Heap: heap})
}

func (cl *CommandList) SetPipeline(pipeline device.Pipeline) {
	cl.record(Command{Op: OpSetPipeline, Pipeline: pipeline})
}

func (cl *CommandList) DispatchRays(desc device.DispatchRaysDesc) {
	cl.record(Command{Op: OpDispatchRays, Dispatch: desc})
}

type tracked interface {
	base() *resource
}

func (r *resource) base() *resource {
	return r
}

// Resolve the emulated resource behind a device resource.
func baseOf(res device.Resource) (*resource, error) {
	t, ok := res.(tracked)
	if !ok || res == nil {
		return nil, fmt.Errorf("resource %v was not created by the emulated device", res)
	}
	r := t.base()
	if r.released {
		return nil, fmt.Errorf("%s: %w", r.name, device.ErrResourceReleased)
	}
	return r, nil
}

func expectState(r *resource, allowed ...device.ResourceState) error {
	for _, s := range allowed {
		if r.state == s {
			return nil
		}
	}
	return fmt.Errorf("%s is in state %s; expected %v: %w", r.name, r.state, allowed, device.ErrStateMismatch)
}

func (d *Device) execCommand(cmd Command) error {
	switch cmd.Op {
	case OpResourceBarrier:
		return d.execBarrier(cmd.Barrier)
	case OpCopyBufferRegion:
		return d.execCopyBuffer(cmd)
	case OpCopyTextureLayer:
		return d.execCopyTextureLayer(cmd)
	case OpBuildAccelerationStructure:
		return d.execBuild(cmd.Build)
	case OpSetDescriptorHeap:
		heap, ok := cmd.Heap.(*DescriptorHeap)
		if !ok {
			return fmt.Errorf("descriptor heap was not created by the emulated device")
		}
		d.boundHeap = heap
	case OpSetPipeline:
		pipeline, ok := cmd.Pipeline.(*Pipeline)
		if !ok {
			return fmt.Errorf("pipeline was not created by the emulated device")
		}
		d.boundPipeline = pipeline
	case OpDispatchRays:
		return d.execDispatch(cmd.Dispatch)
	}
	return nil
}

func (d *Device) execBarrier(b device.Barrier) error {
	if b.Kind == device.UAVBarrier {
		if b.Resource == nil {
			return nil
		}
		_, err := baseOf(b.Resource)
		return err
	}

	r, err := baseOf(b.Resource)
	if err != nil {
		return err
	}
	if err = expectState(r, b.Before); err != nil {
		return err
	}
	r.state = b.After
	return nil
}

func (d *Device) execCopyBuffer(cmd Command) error {
	dst, ok := cmd.Dst.(*Buffer)
	if !ok {
		return fmt.Errorf("copy destination is not an emulated buffer")
	}
	src, ok := cmd.Src.(*Buffer)
	if !ok {
		return fmt.Errorf("copy source is not an emulated buffer")
	}
	if dst.released || src.released {
		return device.ErrResourceReleased
	}
	if err := expectState(&dst.resource, device.StateCopyDest); err != nil {
		return err
	}
	if err := expectState(&src.resource, device.StateCopySource, device.StateGenericRead); err != nil {
		return err
	}
	if cmd.SrcOffset+cmd.Size > len(src.data) || cmd.DstOffset+cmd.Size > len(dst.data) {
		return fmt.Errorf("copying %d bytes from %s to %s: %w", cmd.Size, src.name, dst.name, device.ErrOutOfBounds)
	}
	copy(dst.data[cmd.DstOffset:cmd.DstOffset+cmd.Size], src.data[cmd.SrcOffset:cmd.SrcOffset+cmd.Size])
	return nil
}

func (d *Device) execCopyTextureLayer(cmd Command) error {
	dst, ok := cmd.Dst.(*Texture)
	if !ok {
		return fmt.Errorf("copy destination is not an emulated texture")
	}
	src, ok := cmd.Src.(*Texture)
	if !ok {
		return fmt.Errorf("copy source is not an emulated texture")
	}
	if err := expectState(&dst.resource, device.StateCopyDest); err != nil {
		return err
	}
	if err := expectState(&src.resource, device.StateCopySource); err != nil {
		return err
	}
	if dst.desc.Width != src.desc.Width || dst.desc.Height != src.desc.Height || dst.desc.Format != src.desc.Format {
		return fmt.Errorf("texture %s is not copy-compatible with %s", src.name, dst.name)
	}

	srcLayer, err := src.layer(cmd.Layer)
	if err != nil {
		return err
	}
	dstLayer, err := dst.layer(0)
	if err != nil {
		return err
	}
	copy(dstLayer, srcLayer)
	return nil
}

func (d *Device) execBuild(desc device.ASBuildDesc) error {
	if desc.Dest == nil || desc.Scratch == nil {
		return fmt.Errorf("structure build requires destination and scratch buffers")
	}

	dst, err := baseOf(desc.Dest)
	if err != nil {
		return err
	}
	if err = expectState(dst, device.StateAccelerationStructure); err != nil {
		return err
	}
	scratch, err := baseOf(desc.Scratch)
	if err != nil {
		return err
	}
	if err = expectState(scratch, device.StateUnorderedAccess); err != nil {
		return err
	}

	if desc.Inputs.Flags&device.ASPerformUpdate != 0 {
		if desc.Source == nil {
			return fmt.Errorf("structure update of %s requires a source structure", dst.name)
		}
		if _, err = baseOf(desc.Source); err != nil {
			return err
		}
	}

	info, err := d.AccelerationStructurePrebuildInfo(desc.Inputs)
	if err != nil {
		return err
	}
	if uint64(dst.size) < info.ResultSize || uint64(scratch.size) < info.ScratchSize {
		return fmt.Errorf("structure buffers %s/%s are smaller than required (%d/%d): %w", dst.name, scratch.name, info.ResultSize, info.ScratchSize, device.ErrOutOfBounds)
	}

	if desc.Inputs.Type == device.TopLevel {
		if desc.Inputs.NumInstances > 0 && desc.Inputs.InstanceDescs == nil {
			return fmt.Errorf("top-level build of %s without instance descriptors", dst.name)
		}
		if desc.Inputs.InstanceDescs != nil && desc.Inputs.InstanceDescs.Size() < int(desc.Inputs.NumInstances)*device.InstanceDescSize {
			return fmt.Errorf("instance descriptor buffer too small for %d instances: %w", desc.Inputs.NumInstances, device.ErrOutOfBounds)
		}
	}
	return nil
}

func (d *Device) execDispatch(desc device.DispatchRaysDesc) error {
	if d.boundHeap == nil || d.boundPipeline == nil {
		return device.ErrMissingPipelineData
	}
	if desc.RayGen.Size == 0 || desc.Width == 0 || desc.Height == 0 || desc.Depth == 0 {
		return fmt.Errorf("invalid dispatch dimensions or empty ray generation record")
	}

	view := d.boundHeap.View(0)
	if view.Kind != device.UnorderedAccessView {
		return nil
	}
	out, ok := view.Resource.(*Texture)
	if !ok || out.desc.Format != device.FormatRGBA8Unorm {
		return nil
	}
	if err := expectState(&out.resource, device.StateUnorderedAccess); err != nil {
		return err
	}

	layer, err := out.layer(0)
	if err != nil {
		return err
	}
	w, h := out.desc.Width, out.desc.Height
	tint := byte(desc.RayGen.Start >> 5)
	for y := uint32(0); y < h && y < desc.Height; y++ {
		for x := uint32(0); x < w && x < desc.Width; x++ {
			offset := int(y*w+x) * 4
			layer[offset] = byte(x * 255 / w)
			layer[offset+1] = byte(y * 255 / h)
			layer[offset+2] = tint
			layer[offset+3] = 255
		}
	}
	return nil
}
