package emulated

import (
	"fmt"

	"github.com/ML200/RoyalTracer-DX/tracer/device"
)

const descriptorSize = 32

type resource struct {
	device   *Device
	name     string
	size     int
	address  uint64
	state    device.ResourceState
	released bool
}

func (r *resource) Name() string {
	return r.name
}

func (r *resource) Size() int {
	return r.size
}

func (r *resource) GPUAddress() uint64 {
	return r.address
}

// Get the currently tracked resource state.
func (r *resource) State() device.ResourceState {
	return r.state
}

func (r *resource) release() bool {
	if r.released {
		return false
	}
	r.released = true
	r.device.free(r.size)
	return true
}

type Buffer struct {
	resource
	heap device.HeapType
	data []byte
}

func (b *Buffer) Write(offset int, data []byte) error {
	if b.released {
		return device.ErrResourceReleased
	}
	if b.heap != device.UploadHeap {
		return fmt.Errorf("emulated device: buffer %s: %w", b.name, device.ErrHostAccessDenied)
	}
	if offset < 0 || offset+len(data) > len(b.data) {
		return fmt.Errorf("emulated device: writing %d bytes at offset %d into buffer %s of size %d: %w", len(data), offset, b.name, b.size, device.ErrOutOfBounds)
	}
	copy(b.data[offset:], data)
	return nil
}

// Read is allowed for all heaps; the emulated device has no readback heap.
func (b *Buffer) Read(offset int, out []byte) error {
	if b.released {
		return device.ErrResourceReleased
	}
	if offset < 0 || offset+len(out) > len(b.data) {
		return fmt.Errorf("emulated device: reading %d bytes at offset %d from buffer %s of size %d: %w", len(out), offset, b.name, b.size, device.ErrOutOfBounds)
	}
	copy(out, b.data[offset:])
	return nil
}

func (b *Buffer) Release() {
	if b.release() {
		b.data = nil
	}
}

type Texture struct {
	resource
	desc device.TextureDesc
	data []byte
}

func (t *Texture) Desc() device.TextureDesc {
	return t.desc
}

func (t *Texture) layer(layer uint32) ([]byte, error) {
	if t.released {
		return nil, device.ErrResourceReleased
	}
	if layer >= t.desc.ArraySize {
		return nil, fmt.Errorf("emulated device: texture %s has %d layers; requested layer %d: %w", t.name, t.desc.ArraySize, layer, device.ErrOutOfBounds)
	}
	layerSize := t.desc.LayerSize()
	return t.data[int(layer)*layerSize : int(layer+1)*layerSize], nil
}

func (t *Texture) ReadLayer(layer uint32, out []byte) error {
	src, err := t.layer(layer)
	if err != nil {
		return err
	}
	copy(out, src)
	return nil
}

func (t *Texture) Release() {
	if t.release() {
		t.data = nil
	}
}

type DescriptorHeap struct {
	name    string
	address uint64
	views   []device.View
}

func (h *DescriptorHeap) Len() int {
	return len(h.views)
}

func (h *DescriptorHeap) Set(slot int, view device.View) error {
	if slot < 0 || slot >= len(h.views) {
		return fmt.Errorf("emulated device: descriptor heap %s has %d slots; got slot %d: %w", h.name, len(h.views), slot, device.ErrInvalidDescriptor)
	}
	h.views[slot] = view
	return nil
}

func (h *DescriptorHeap) View(slot int) device.View {
	if slot < 0 || slot >= len(h.views) {
		return device.View{}
	}
	return h.views[slot]
}

func (h *DescriptorHeap) GPUStart() uint64 {
	return h.address
}

type Pipeline struct {
	desc        device.PipelineDesc
	identifiers map[string][]byte
}

func (p *Pipeline) ShaderIdentifier(export string) ([]byte, error) {
	id, exists := p.identifiers[export]
	if !exists {
		return nil, fmt.Errorf("emulated device: %q: %w", export, device.ErrUnknownExport)
	}
	return id, nil
}

func (p *Pipeline) Release() {
	p.identifiers = nil
}
