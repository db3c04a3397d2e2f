package device

import "fmt"

type HeapType uint8

// Memory heaps.
const (
	// Device-local memory; not writable by the host.
	DefaultHeap HeapType = iota
	// Host-visible memory used for streaming data to the device.
	UploadHeap
)

// Implements Stringer.
func (h HeapType) String() string {
	switch h {
	case DefaultHeap:
		return "default"
	case UploadHeap:
		return "upload"
	}
	panic(fmt.Sprintf("device: unsupported heap type %d", h))
}

type ResourceState uint8

// Resource states tracked by barriers.
const (
	StateCommon ResourceState = iota
	StateGenericRead
	StateCopySource
	StateCopyDest
	StateUnorderedAccess
	StateRenderTarget
	StatePresent
	StateAccelerationStructure
)

// Implements Stringer.
func (s ResourceState) String() string {
	switch s {
	case StateCommon:
		return "COMMON"
	case StateGenericRead:
		return "GENERIC_READ"
	case StateCopySource:
		return "COPY_SOURCE"
	case StateCopyDest:
		return "COPY_DEST"
	case StateUnorderedAccess:
		return "UNORDERED_ACCESS"
	case StateRenderTarget:
		return "RENDER_TARGET"
	case StatePresent:
		return "PRESENT"
	case StateAccelerationStructure:
		return "RAYTRACING_ACCELERATION_STRUCTURE"
	}
	panic(fmt.Sprintf("device: unsupported resource state %d", s))
}

type Format uint8

// Element formats for textures and typed views.
const (
	FormatUnknown Format = iota
	FormatRGBA8Unorm
	FormatRGBA32Float
	FormatRGB32Float
	FormatR32Float
	FormatR32Uint
)

// Get the size of a single element in bytes.
func (f Format) Size() int {
	switch f {
	case FormatRGBA8Unorm, FormatR32Float, FormatR32Uint:
		return 4
	case FormatRGB32Float:
		return 12
	case FormatRGBA32Float:
		return 16
	}
	return 0
}

type TextureDesc struct {
	Width     uint32
	Height    uint32
	ArraySize uint32
	Format    Format
}

// Get the size of a single texture layer in bytes.
func (d TextureDesc) LayerSize() int {
	return int(d.Width) * int(d.Height) * d.Format.Size()
}

type ViewKind uint8

const (
	NullView ViewKind = iota
	ShaderResourceView
	UnorderedAccessView
	ConstantBufferView
	AccelerationStructureView
)

// Implements Stringer.
func (k ViewKind) String() string {
	switch k {
	case NullView:
		return "null"
	case ShaderResourceView:
		return "SRV"
	case UnorderedAccessView:
		return "UAV"
	case ConstantBufferView:
		return "CBV"
	case AccelerationStructureView:
		return "AS"
	}
	panic(fmt.Sprintf("device: unsupported view kind %d", k))
}

// A view describes how a shader accesses a resource.
type View struct {
	Kind     ViewKind
	Resource Resource

	// Typed views use a format; structured views set Stride instead.
	Format      Format
	NumElements uint32
	Stride      uint32

	// Number of texture array layers visible through the view.
	ArraySize uint32
}

type ASType uint8

const (
	BottomLevel ASType = iota
	TopLevel
)

type ASBuildFlags uint8

const (
	ASAllowUpdate ASBuildFlags = 1 << iota
	ASPerformUpdate
	ASPreferFastTrace
)

// Triangle geometry for a bottom-level structure. IndexBuffer may be nil
// for non-indexed geometry.
type GeometryDesc struct {
	VertexBuffer Buffer
	VertexCount  uint32
	VertexStride uint32
	VertexFormat Format

	IndexBuffer Buffer
	IndexCount  uint32

	Opaque bool
}

// Get the number of triangles described by this geometry.
func (g GeometryDesc) TriangleCount() uint32 {
	if g.IndexBuffer != nil {
		return g.IndexCount / 3
	}
	return g.VertexCount / 3
}

type ASInputs struct {
	Type  ASType
	Flags ASBuildFlags

	// Bottom-level inputs.
	Geometry []GeometryDesc

	// Top-level inputs.
	NumInstances  uint32
	InstanceDescs Buffer
}

type ASPrebuildInfo struct {
	ResultSize        uint64
	ScratchSize       uint64
	UpdateScratchSize uint64
}

type ASBuildDesc struct {
	Inputs ASInputs

	Dest    Buffer
	Scratch Buffer

	// Source structure for refits; nil for full builds.
	Source Buffer
}

// A shader library and the entry points it exports.
type Library struct {
	Path    string
	Exports []string
}

type HitGroup struct {
	Name       string
	ClosestHit string
}

type PipelineDesc struct {
	Libraries []Library
	HitGroups []HitGroup

	MaxPayloadSize    uint32
	MaxAttributeSize  uint32
	MaxRecursionDepth uint32
}

type AddressRange struct {
	Start uint64
	Size  uint64
}

type AddressRangeStride struct {
	Start  uint64
	Size   uint64
	Stride uint64
}

type DispatchRaysDesc struct {
	RayGen   AddressRange
	Miss     AddressRangeStride
	HitGroup AddressRangeStride

	Width  uint32
	Height uint32
	Depth  uint32
}

type BarrierKind uint8

const (
	TransitionBarrier BarrierKind = iota
	UAVBarrier
)

type Barrier struct {
	Kind BarrierKind

	// The resource affected by the barrier. A nil resource in a UAV
	// barrier synchronizes all unordered accesses.
	Resource Resource

	Before ResourceState
	After  ResourceState
}

// Create a state transition barrier.
func Transition(res Resource, before, after ResourceState) Barrier {
	return Barrier{Kind: TransitionBarrier, Resource: res, Before: before, After: after}
}

// Create a barrier that completes all pending unordered accesses to res
// before any subsequent ones start.
func UAV(res Resource) Barrier {
	return Barrier{Kind: UAVBarrier, Resource: res}
}
