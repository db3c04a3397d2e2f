package device

import (
	"fmt"
	"reflect"
	"unsafe"
)

// Write the contents of a slice to a device buffer at the given byte offset.
// The slice elements must not contain pointers as their memory is copied
// verbatim. Writing an empty slice is a no-op.
func WriteSlice(buf Buffer, data interface{}, offset int) error {
	raw := SliceBytes(data)
	if len(raw) == 0 {
		return nil
	}
	if offset+len(raw) > buf.Size() {
		return fmt.Errorf("device: insufficient buffer space (%d) in %s for copying data of length %d at offset %d", buf.Size(), buf.Name(), len(raw), offset)
	}
	return buf.Write(offset, raw)
}

// Allocate an upload heap buffer that is large enough to hold data and copy
// data into it. The allocation size is rounded up to alignment.
func NewBufferWithData(dev Device, name string, data interface{}, alignment uint64) (Buffer, error) {
	raw := SliceBytes(data)
	size := len(raw)
	if alignment > 1 {
		size = int(AlignUp(uint64(size), alignment))
	}

	buf, err := dev.NewBuffer(name, size, UploadHeap, StateGenericRead)
	if err != nil {
		return nil, err
	}

	if len(raw) != 0 {
		if err = buf.Write(0, raw); err != nil {
			buf.Release()
			return nil, err
		}
	}
	return buf, nil
}

// A pending upload of host data into a default heap buffer. The staging
// buffer must be kept alive until the command list that performs the copy
// has finished executing.
type StagedUpload struct {
	Dest    Buffer
	Staging Buffer
}

// Release the staging buffer.
func (su *StagedUpload) ReleaseStaging() {
	if su.Staging != nil {
		su.Staging.Release()
		su.Staging = nil
	}
}

// Copy data into a new default heap buffer via a staging buffer. The copy and
// a transition of the destination buffer to finalState are recorded into cl.
func NewStagedUpload(dev Device, cl CommandList, name string, data interface{}, finalState ResourceState) (*StagedUpload, error) {
	raw := SliceBytes(data)
	if len(raw) == 0 {
		return nil, fmt.Errorf("device: cannot stage empty upload for %s", name)
	}

	staging, err := NewBufferWithData(dev, name+"Staging", data, 0)
	if err != nil {
		return nil, err
	}

	dst, err := dev.NewBuffer(name, len(raw), DefaultHeap, StateCopyDest)
	if err != nil {
		staging.Release()
		return nil, err
	}

	cl.CopyBufferRegion(dst, 0, staging, 0, len(raw))
	cl.ResourceBarrier(Transition(dst, StateCopyDest, finalState))

	return &StagedUpload{Dest: dst, Staging: staging}, nil
}

// Given an interface{} containing a slice return a byte slice aliasing its
// backing memory.
func SliceBytes(data interface{}) []byte {
	reflVal := reflect.ValueOf(data)
	if reflVal.Kind() != reflect.Slice {
		panic("device: SliceBytes only supports slices")
	}

	sliceElemCount := reflVal.Len()
	if sliceElemCount == 0 {
		return nil
	}

	dataLen := sliceElemCount * int(reflVal.Type().Elem().Size())
	return unsafe.Slice((*byte)(unsafe.Pointer(reflVal.Index(0).Addr().Pointer())), dataLen)
}
