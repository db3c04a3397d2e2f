// Package accel builds and refits the two-level ray-tracing acceleration
// structures: one bottom-level structure per model and a single top-level
// structure over all instances.
package accel

import (
	"fmt"
	"time"

	"github.com/ML200/RoyalTracer-DX/fault"
	"github.com/ML200/RoyalTracer-DX/geometry"
	"github.com/ML200/RoyalTracer-DX/log"
	"github.com/ML200/RoyalTracer-DX/tracer/device"
)

const defaultInstanceMask = 0xFF

// The buffers backing an acceleration structure.
type Buffers struct {
	Scratch device.Buffer
	Result  device.Buffer

	// Only used by top-level structures.
	InstanceDesc device.Buffer
}

// Release all buffers.
func (b *Buffers) Release() {
	for _, buf := range []device.Buffer{b.Scratch, b.Result, b.InstanceDesc} {
		if buf != nil {
			buf.Release()
		}
	}
}

// Triangle geometry for a bottom-level build. IndexBuffer is optional.
type Geometry struct {
	VertexBuffer device.Buffer
	VertexCount  uint32
	VertexStride uint32

	IndexBuffer device.Buffer
	IndexCount  uint32
}

// InstanceDesc is the 64-byte top-level instance record consumed by the
// device.
type InstanceDesc struct {
	// Row-major 3x4 object-to-world transform.
	Transform [12]float32

	// Instance id in the low 24 bits, visibility mask in the high 8 bits.
	InstanceIDAndMask uint32

	// Hit group offset in the low 24 bits, flags in the high 8 bits.
	HitGroupOffsetAndFlags uint32

	BottomLevelAddress uint64
}

func (d InstanceDesc) InstanceID() uint32 {
	return d.InstanceIDAndMask & 0xFFFFFF
}

func (d InstanceDesc) Mask() uint8 {
	return uint8(d.InstanceIDAndMask >> 24)
}

func (d InstanceDesc) HitGroupOffset() uint32 {
	return d.HitGroupOffsetAndFlags & 0xFFFFFF
}

// TopLevel tracks the state of the top-level structure between frames.
type TopLevel struct {
	Buffers

	// Instance count recorded by the last full build.
	NumInstances uint32

	descs []InstanceDesc
	built bool
}

// Manager builds and refits acceleration structures.
type Manager struct {
	logger log.Logger
	dev    device.Device

	bottomLevel []*Buffers
	topLevel    TopLevel
}

// Create a new manager that allocates structures on dev.
func NewManager(dev device.Device) *Manager {
	return &Manager{
		logger: log.New("accel manager"),
		dev:    dev,
	}
}

// Allocate the buffers for a bottom-level structure and record its build.
func (m *Manager) BuildBottomLevel(cl device.CommandList, geom Geometry) (*Buffers, error) {
	if geom.VertexBuffer == nil {
		return nil, ErrEmptyGeometry
	}

	desc := device.GeometryDesc{
		VertexBuffer: geom.VertexBuffer,
		VertexCount:  geom.VertexCount,
		VertexStride: geom.VertexStride,
		VertexFormat: device.FormatRGB32Float,
		IndexBuffer:  geom.IndexBuffer,
		IndexCount:   geom.IndexCount,
		Opaque:       true,
	}
	if geom.IndexBuffer == nil {
		desc.IndexCount = 0
	}

	inputs := device.ASInputs{
		Type:     device.BottomLevel,
		Flags:    device.ASPreferFastTrace,
		Geometry: []device.GeometryDesc{desc},
	}
	info, err := m.dev.AccelerationStructurePrebuildInfo(inputs)
	if err != nil {
		return nil, err
	}

	bufs := &Buffers{}
	bufs.Scratch, err = m.dev.NewBuffer("blasScratch", int(info.ScratchSize), device.DefaultHeap, device.StateUnorderedAccess)
	if err != nil {
		return nil, err
	}
	bufs.Result, err = m.dev.NewBuffer("blasResult", int(info.ResultSize), device.DefaultHeap, device.StateAccelerationStructure)
	if err != nil {
		bufs.Release()
		return nil, err
	}

	cl.BuildAccelerationStructure(device.ASBuildDesc{
		Inputs:  inputs,
		Dest:    bufs.Result,
		Scratch: bufs.Scratch,
	})
	// The top-level build reads the result.
	cl.ResourceBarrier(device.UAV(bufs.Result))

	return bufs, nil
}

// Build the top-level structure over all arena instances or, if updateOnly
// is set, refit it with the current instance transforms. A refit requires a
// prior full build over the same instance set.
func (m *Manager) BuildOrRefitTopLevel(cl device.CommandList, arena *Arena, updateOnly bool) error {
	if updateOnly {
		return fault.FrameErr("refit top-level structure", m.refitTopLevel(cl, arena))
	}
	return fault.LoadErr("build top-level structure", m.buildTopLevel(cl, arena))
}

func (m *Manager) buildTopLevel(cl device.CommandList, arena *Arena) error {
	if m.topLevel.built {
		m.topLevel.Buffers.Release()
	}
	m.topLevel = TopLevel{}

	numInstances := arena.Len()
	descs := make([]InstanceDesc, 0, numInstances)
	for _, h := range arena.Handles() {
		binding, err := arena.Resolve(h)
		if err != nil {
			return err
		}
		if int(binding.Model) >= len(m.bottomLevel) {
			return fmt.Errorf("%w: instance %d references model %d", ErrMissingBottomLevel, h, binding.Model)
		}
		descs = append(descs, InstanceDesc{
			Transform:              binding.Transform.Rows3x4(),
			InstanceIDAndMask:      binding.InstanceID | defaultInstanceMask<<24,
			HitGroupOffsetAndFlags: binding.HitGroupOffset,
			BottomLevelAddress:     m.bottomLevel[binding.Model].Result.GPUAddress(),
		})
	}

	inputs := device.ASInputs{
		Type:         device.TopLevel,
		Flags:        device.ASAllowUpdate,
		NumInstances: uint32(numInstances),
	}
	info, err := m.dev.AccelerationStructurePrebuildInfo(inputs)
	if err != nil {
		return err
	}

	scratchSize := info.ScratchSize
	if info.UpdateScratchSize > scratchSize {
		scratchSize = info.UpdateScratchSize
	}

	var bufs Buffers
	if bufs.Scratch, err = m.dev.NewBuffer("tlasScratch", int(scratchSize), device.DefaultHeap, device.StateUnorderedAccess); err != nil {
		return err
	}
	if bufs.Result, err = m.dev.NewBuffer("tlasResult", int(info.ResultSize), device.DefaultHeap, device.StateAccelerationStructure); err != nil {
		bufs.Release()
		return err
	}
	descSize := numInstances * device.InstanceDescSize
	if descSize == 0 {
		descSize = device.InstanceDescSize
	}
	if bufs.InstanceDesc, err = m.dev.NewBuffer("tlasInstanceDescs", descSize, device.UploadHeap, device.StateGenericRead); err != nil {
		bufs.Release()
		return err
	}
	if err = device.WriteSlice(bufs.InstanceDesc, descs, 0); err != nil {
		bufs.Release()
		return err
	}

	inputs.InstanceDescs = bufs.InstanceDesc
	cl.BuildAccelerationStructure(device.ASBuildDesc{
		Inputs:  inputs,
		Dest:    bufs.Result,
		Scratch: bufs.Scratch,
	})
	cl.ResourceBarrier(device.UAV(bufs.Result))

	m.topLevel = TopLevel{
		Buffers:      bufs,
		NumInstances: uint32(numInstances),
		descs:        descs,
		built:        true,
	}
	return nil
}

func (m *Manager) refitTopLevel(cl device.CommandList, arena *Arena) error {
	if !m.topLevel.built {
		return ErrRefitBeforeBuild
	}
	if uint32(arena.Len()) != m.topLevel.NumInstances {
		return fmt.Errorf("%w: built with %d instances; got %d", ErrInstanceSetChanged, m.topLevel.NumInstances, arena.Len())
	}

	for index, h := range arena.Handles() {
		binding, err := arena.Resolve(h)
		if err != nil {
			return err
		}
		m.topLevel.descs[index].Transform = binding.Transform.Rows3x4()
	}
	if err := device.WriteSlice(m.topLevel.InstanceDesc, m.topLevel.descs, 0); err != nil {
		return err
	}

	result := m.topLevel.Result
	cl.BuildAccelerationStructure(device.ASBuildDesc{
		Inputs: device.ASInputs{
			Type:          device.TopLevel,
			Flags:         device.ASAllowUpdate | device.ASPerformUpdate,
			NumInstances:  m.topLevel.NumInstances,
			InstanceDescs: m.topLevel.InstanceDesc,
		},
		Dest:    result,
		Scratch: m.topLevel.Scratch,
		Source:  result,
	})
	cl.ResourceBarrier(device.UAV(result))
	return nil
}

// Build a bottom-level structure for every model in load order followed by a
// full top-level build over all instances. Structures from an earlier BuildAll
// are released first.
func (m *Manager) BuildAll(cl device.CommandList, store *geometry.Store, arena *Arena) error {
	start := time.Now()

	for _, bufs := range m.bottomLevel {
		bufs.Release()
	}
	m.bottomLevel = m.bottomLevel[:0]

	for _, model := range store.Models() {
		bufs, err := m.BuildBottomLevel(cl, Geometry{
			VertexBuffer: model.VertexBuffer,
			VertexCount:  model.VertexCount,
			VertexStride: geometry.VertexStride,
			IndexBuffer:  model.IndexBuffer,
			IndexCount:   model.IndexCount,
		})
		if err != nil {
			return fault.LoadErr("build bottom-level structure for "+model.Name, err)
		}
		m.bottomLevel = append(m.bottomLevel, bufs)
	}

	if err := m.BuildOrRefitTopLevel(cl, arena, false); err != nil {
		return err
	}

	m.logger.Noticef(
		"recorded %d bottom-level builds and a top-level build over %d instances in %d ms",
		len(m.bottomLevel), arena.Len(), time.Since(start).Nanoseconds()/1e6,
	)
	return nil
}

// Get the bottom-level structure of a model.
func (m *Manager) BottomLevel(model geometry.ModelHandle) *Buffers {
	if int(model) >= len(m.bottomLevel) {
		return nil
	}
	return m.bottomLevel[model]
}

// Get the top-level structure state.
func (m *Manager) TopLevel() *TopLevel {
	return &m.topLevel
}

// Get the instance descriptors of the top-level structure.
func (m *Manager) InstanceDescs() []InstanceDesc {
	return m.topLevel.descs
}

// Release all structures.
func (m *Manager) Release() {
	for _, bufs := range m.bottomLevel {
		bufs.Release()
	}
	m.bottomLevel = nil
	if m.topLevel.built {
		m.topLevel.Buffers.Release()
	}
	m.topLevel = TopLevel{}
}
