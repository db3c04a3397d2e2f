package tracer

import (
	"fmt"
	"unsafe"

	"github.com/ML200/RoyalTracer-DX/accel"
	"github.com/ML200/RoyalTracer-DX/tracer/device"
	"github.com/ML200/RoyalTracer-DX/types"
)

// InstanceProperties holds the current and previous frame transforms of a
// single instance. The previous frame matrices are used for reprojecting
// reservoirs during temporal reuse.
type InstanceProperties struct {
	ObjectToWorld            types.Mat4
	ObjectToWorldInverse     types.Mat4
	PrevObjectToWorld        types.Mat4
	PrevObjectToWorldInverse types.Mat4
	ObjectToWorldNormal      types.Mat4
	PrevObjectToWorldNormal  types.Mat4
}

// The size of an InstanceProperties record in bytes.
const InstancePropertiesStride = uint32(unsafe.Sizeof(InstanceProperties{}))

// InstanceStream uploads per-instance transforms once per frame.
type InstanceStream struct {
	props  []InstanceProperties
	buffer device.Buffer
	primed bool
}

// Allocate an instance property stream for numInstances instances. The
// buffer is never smaller than a single constant buffer block so it can be
// bound even when the scene is empty.
func NewInstanceStream(dev device.Device, numInstances int) (*InstanceStream, error) {
	size := device.AlignUp(uint64(numInstances)*uint64(InstancePropertiesStride), device.ConstantBufferAlignment)
	if size == 0 {
		size = device.ConstantBufferAlignment
	}

	buf, err := dev.NewBuffer("instanceProperties", int(size), device.UploadHeap, device.StateGenericRead)
	if err != nil {
		return nil, err
	}

	return &InstanceStream{
		props:  make([]InstanceProperties, numInstances),
		buffer: buf,
	}, nil
}

// Update the stream with the transforms currently stored in the arena. The
// previous frame matrices receive the values written by the last update; on
// the first update they match the current ones.
func (s *InstanceStream) Update(arena *accel.Arena) error {
	if arena.Len() != len(s.props) {
		return fmt.Errorf("%w: stream has %d instances; arena has %d", accel.ErrInstanceSetChanged, len(s.props), arena.Len())
	}

	for index, h := range arena.Handles() {
		binding, err := arena.Resolve(h)
		if err != nil {
			return err
		}

		p := &s.props[index]
		if s.primed {
			p.PrevObjectToWorld = p.ObjectToWorld
			p.PrevObjectToWorldInverse = p.ObjectToWorldInverse
			p.PrevObjectToWorldNormal = p.ObjectToWorldNormal
		}

		p.ObjectToWorld = binding.Transform
		p.ObjectToWorldInverse = binding.Transform.Inv()
		p.ObjectToWorldNormal = binding.Transform.NormalMat()

		if !s.primed {
			p.PrevObjectToWorld = p.ObjectToWorld
			p.PrevObjectToWorldInverse = p.ObjectToWorldInverse
			p.PrevObjectToWorldNormal = p.ObjectToWorldNormal
		}
	}
	s.primed = true

	return device.WriteSlice(s.buffer, s.props, 0)
}

// Get the host copy of the uploaded properties.
func (s *InstanceStream) Properties() []InstanceProperties {
	return s.props
}

func (s *InstanceStream) Buffer() device.Buffer {
	return s.buffer
}

func (s *InstanceStream) Len() int {
	return len(s.props)
}

func (s *InstanceStream) Release() {
	if s.buffer != nil {
		s.buffer.Release()
		s.buffer = nil
	}
}
