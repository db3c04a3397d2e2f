// Package emulated implements the device capability in host memory. Commands
// are validated against the tracked resource states, copies are executed on
// host memory and every executed command is kept in a history that can be
// inspected. Ray dispatches do not run shaders; instead they write a
// diagnostic gradient into the output texture bound to descriptor slot 0.
package emulated

import (
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/ML200/RoyalTracer-DX/log"
	"github.com/ML200/RoyalTracer-DX/tracer/device"
)

const (
	// The start of the emulated device address space.
	baseAddress uint64 = 0x10000

	// Sizes used for computing structure prebuild info.
	blasBytesPerTriangle    = 64
	blasScratchPerTriangle  = 32
	tlasBytesPerInstance    = 128
	tlasScratchPerInstance  = 64
	structureHeaderSize     = 128
	structureScratchPadding = 64
)

type Option func(*Device)

// Limit the total number of bytes that can be allocated by the device.
func WithMemoryLimit(bytes int) Option {
	return func(d *Device) {
		d.memLimit = bytes
	}
}

// An emulated ray-tracing device.
type Device struct {
	sync.Mutex

	logger log.Logger
	name   string

	nextAddress uint64
	allocated   int
	memLimit    int

	cmdList *CommandList

	fence     uint64
	completed uint64

	history []Command

	// Descriptor heap and pipeline bound by the last executed command list.
	boundHeap     *DescriptorHeap
	boundPipeline *Pipeline
}

// Create a new emulated device.
func New(name string, opts ...Option) *Device {
	d := &Device{
		logger:      log.New("emulated device"),
		name:        name,
		nextAddress: baseAddress,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.cmdList = &CommandList{device: d}
	return d
}

func (d *Device) Name() string {
	return d.name
}

// Get the total number of bytes currently allocated.
func (d *Device) Allocated() int {
	d.Lock()
	defer d.Unlock()
	return d.allocated
}

// Get a copy of all commands executed since the device was created or since
// the last call to ResetHistory.
func (d *Device) History() []Command {
	d.Lock()
	defer d.Unlock()
	out := make([]Command, len(d.history))
	copy(out, d.history)
	return out
}

// Clear the command history.
func (d *Device) ResetHistory() {
	d.Lock()
	defer d.Unlock()
	d.history = d.history[:0]
}

func (d *Device) alloc(name string, size int) (uint64, error) {
	d.Lock()
	defer d.Unlock()

	if d.memLimit > 0 && d.allocated+size > d.memLimit {
		return 0, fmt.Errorf("emulated device (%s): could not allocate %s of size %d: %w", d.name, name, size, device.ErrOutOfMemory)
	}

	addr := d.nextAddress
	d.nextAddress += device.AlignUp(uint64(size)+1, device.AccelerationStructureAlignment)
	d.allocated += size
	return addr, nil
}

func (d *Device) free(size int) {
	d.Lock()
	d.allocated -= size
	d.Unlock()
}

func (d *Device) NewBuffer(name string, size int, heap device.HeapType, state device.ResourceState) (device.Buffer, error) {
	addr, err := d.alloc(name, size)
	if err != nil {
		return nil, err
	}

	d.logger.Debugf("allocated %s buffer %q of size %d at 0x%x", heap, name, size, addr)
	return &Buffer{
		resource: resource{device: d, name: name, size: size, address: addr, state: state},
		heap:     heap,
		data:     make([]byte, size),
	}, nil
}

func (d *Device) NewTexture(name string, desc device.TextureDesc, state device.ResourceState) (device.Texture, error) {
	if desc.ArraySize == 0 {
		desc.ArraySize = 1
	}
	size := desc.LayerSize() * int(desc.ArraySize)
	if size == 0 {
		return nil, fmt.Errorf("emulated device (%s): invalid texture description for %s", d.name, name)
	}

	addr, err := d.alloc(name, size)
	if err != nil {
		return nil, err
	}

	return &Texture{
		resource: resource{device: d, name: name, size: size, address: addr, state: state},
		desc:     desc,
		data:     make([]byte, size),
	}, nil
}

func (d *Device) NewDescriptorHeap(name string, numDescriptors int) (device.DescriptorHeap, error) {
	if numDescriptors <= 0 {
		return nil, fmt.Errorf("emulated device (%s): descriptor heap %s must have at least one slot", d.name, name)
	}

	addr, err := d.alloc(name, numDescriptors*descriptorSize)
	if err != nil {
		return nil, err
	}

	return &DescriptorHeap{
		name:    name,
		address: addr,
		views:   make([]device.View, numDescriptors),
	}, nil
}

func (d *Device) NewPipeline(desc device.PipelineDesc) (device.Pipeline, error) {
	p := &Pipeline{
		desc:        desc,
		identifiers: make(map[string][]byte),
	}

	for _, lib := range desc.Libraries {
		if len(lib.Exports) == 0 {
			return nil, fmt.Errorf("emulated device (%s): shader library %q exports no symbols", d.name, lib.Path)
		}
		for _, export := range lib.Exports {
			p.identifiers[export] = shaderIdentifier(export)
		}
	}

	for _, hg := range desc.HitGroups {
		if _, exists := p.identifiers[hg.ClosestHit]; !exists {
			return nil, fmt.Errorf("emulated device (%s): hit group %q references %q: %w", d.name, hg.Name, hg.ClosestHit, device.ErrUnknownExport)
		}
		p.identifiers[hg.Name] = shaderIdentifier(hg.Name)
	}

	return p, nil
}

func (d *Device) AccelerationStructurePrebuildInfo(inputs device.ASInputs) (device.ASPrebuildInfo, error) {
	var result, scratch uint64

	switch inputs.Type {
	case device.BottomLevel:
		if len(inputs.Geometry) == 0 {
			return device.ASPrebuildInfo{}, fmt.Errorf("emulated device (%s): bottom-level structure requires at least one geometry", d.name)
		}
		var triangles uint64
		for _, geom := range inputs.Geometry {
			if geom.VertexBuffer == nil {
				return device.ASPrebuildInfo{}, fmt.Errorf("emulated device (%s): geometry without a vertex buffer", d.name)
			}
			triangles += uint64(geom.TriangleCount())
		}
		result = structureHeaderSize + triangles*blasBytesPerTriangle
		scratch = structureScratchPadding + triangles*blasScratchPerTriangle
	case device.TopLevel:
		result = structureHeaderSize + uint64(inputs.NumInstances)*tlasBytesPerInstance
		scratch = structureScratchPadding + uint64(inputs.NumInstances)*tlasScratchPerInstance
	}

	return device.ASPrebuildInfo{
		ResultSize:        device.AlignUp(result, device.AccelerationStructureAlignment),
		ScratchSize:       device.AlignUp(scratch, device.AccelerationStructureAlignment),
		UpdateScratchSize: device.AlignUp(scratch, device.AccelerationStructureAlignment),
	}, nil
}

func (d *Device) CommandList() device.CommandList {
	return d.cmdList
}

// Execute runs the commands synchronously. The first failing command aborts
// execution; commands executed before it keep their effects.
func (d *Device) Execute(cl device.CommandList) error {
	list, ok := cl.(*CommandList)
	if !ok || list.device != d {
		return fmt.Errorf("emulated device (%s): command list was not created by this device", d.name)
	}
	if !list.closed {
		return device.ErrCommandListOpen
	}
	if list.err != nil {
		return list.err
	}

	for index, cmd := range list.commands {
		if err := d.execCommand(cmd); err != nil {
			return fmt.Errorf("emulated device (%s): command %d (%s): %w", d.name, index, cmd.Op, err)
		}
		d.Lock()
		d.history = append(d.history, cmd)
		d.Unlock()
	}

	return nil
}

func (d *Device) Signal() (uint64, error) {
	d.Lock()
	defer d.Unlock()
	d.fence++
	// Execution is synchronous so the fence completes immediately.
	d.completed = d.fence
	return d.fence, nil
}

func (d *Device) Wait(fence uint64) error {
	d.Lock()
	defer d.Unlock()
	if fence > d.completed {
		return fmt.Errorf("emulated device (%s): waiting for fence %d (completed %d): %w", d.name, fence, d.completed, device.ErrFenceNotSignaled)
	}
	return nil
}

func (d *Device) Close() {
	d.Lock()
	defer d.Unlock()
	d.history = nil
	d.boundHeap = nil
	d.boundPipeline = nil
}

// Generate a deterministic identifier for a shader export.
func shaderIdentifier(export string) []byte {
	h := fnv.New64a()
	h.Write([]byte(export))
	sum := h.Sum(nil)

	id := make([]byte, device.ShaderIdentifierSize)
	for offset := 0; offset < len(id); offset += len(sum) {
		copy(id[offset:], sum)
	}
	return id
}
