// Package device defines the capabilities the tracer requires from a
// ray-tracing capable graphics device: allocating buffers and textures,
// creating resource views, building acceleration structures, recording
// command lists and waiting for their completion.
package device

// The alignment rules shared by all device implementations.
const (
	ConstantBufferAlignment        = 256
	AccelerationStructureAlignment = 256
	ShaderIdentifierSize           = 32
	ShaderRecordAlignment          = 32
	ShaderTableAlignment           = 64
	InstanceDescSize               = 64
)

// A device resource that occupies device memory.
type Resource interface {
	// A name for identifying the resource in logs and errors.
	Name() string

	// Allocated size in bytes.
	Size() int

	// The address of the resource in the device address space.
	GPUAddress() uint64

	// Free the device memory backing this resource.
	Release()
}

// A linear device buffer.
type Buffer interface {
	Resource

	// Copy host data into the buffer at the given byte offset. Only
	// buffers allocated on the upload heap may be written by the host.
	Write(offset int, data []byte) error

	// Copy buffer contents starting at offset into out.
	Read(offset int, out []byte) error
}

// A 2D texture array.
type Texture interface {
	Resource

	Desc() TextureDesc
}

// A texture whose layers can be read back by the host.
type ReadableTexture interface {
	Texture

	ReadLayer(layer uint32, out []byte) error
}

// A shader-visible table of resource views.
type DescriptorHeap interface {
	// Number of descriptor slots.
	Len() int

	// Write a view into the given slot.
	Set(slot int, view View) error

	// Get the view stored in the given slot.
	View(slot int) View

	// The address of the first descriptor; used as root data by shader records.
	GPUStart() uint64
}

// A compiled ray-tracing state object.
type Pipeline interface {
	// Get the opaque identifier of an exported shader or hit group.
	ShaderIdentifier(export string) ([]byte, error)

	Release()
}

// A list of recorded device commands. Recording errors are deferred and
// reported by Close.
type CommandList interface {
	// Discard recorded commands and start a new recording.
	Reset() error

	// Finish recording.
	Close() error

	BuildAccelerationStructure(desc ASBuildDesc)
	ResourceBarrier(barriers ...Barrier)
	CopyBufferRegion(dst Buffer, dstOffset int, src Buffer, srcOffset, size int)
	CopyTextureLayer(dst Texture, src Texture, srcLayer uint32)
	SetDescriptorHeap(heap DescriptorHeap)
	SetPipeline(pipeline Pipeline)
	DispatchRays(desc DispatchRaysDesc)
}

// A ray-tracing capable device.
type Device interface {
	Name() string

	NewBuffer(name string, size int, heap HeapType, state ResourceState) (Buffer, error)
	NewTexture(name string, desc TextureDesc, state ResourceState) (Texture, error)
	NewDescriptorHeap(name string, numDescriptors int) (DescriptorHeap, error)
	NewPipeline(desc PipelineDesc) (Pipeline, error)

	// Query the buffer sizes required for building an acceleration structure.
	AccelerationStructurePrebuildInfo(inputs ASInputs) (ASPrebuildInfo, error)

	// Get the command list used for recording device work.
	CommandList() CommandList

	// Submit a closed command list for execution.
	Execute(cl CommandList) error

	// Signal a fence after all submitted work and return its value.
	Signal() (uint64, error)

	// Block until the fence with the given value has been reached.
	Wait(fence uint64) error

	Close()
}

// Round v up to the next multiple of alignment.
func AlignUp(v, alignment uint64) uint64 {
	return (v + alignment - 1) &^ (alignment - 1)
}
