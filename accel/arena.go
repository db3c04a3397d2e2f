package accel

import (
	"fmt"

	"github.com/ML200/RoyalTracer-DX/geometry"
	"github.com/ML200/RoyalTracer-DX/types"
)

// Each instance owns a primary and a shadow hit group record.
const HitGroupsPerInstance = 2

// A stable reference to an instance. Handles are assigned densely in
// insertion order and are never reused.
type Handle uint32

// An instance places a model in the scene.
type Instance struct {
	Model     geometry.ModelHandle
	Transform types.Mat4
}

// Binding lists everything the renderer derives from an instance handle.
type Binding struct {
	Handle    Handle
	Model     geometry.ModelHandle
	Transform types.Mat4

	// The id reported to shaders for hits on this instance.
	InstanceID uint32

	// The offset of the instance's first hit group record.
	HitGroupOffset uint32
}

// Arena owns the scene instances. Once sealed, instances can no longer be
// added but their transforms may still change.
type Arena struct {
	instances []Instance
	sealed    bool
}

func NewArena() *Arena {
	return &Arena{}
}

// Add an instance and return its handle.
func (a *Arena) Add(model geometry.ModelHandle, transform types.Mat4) (Handle, error) {
	if a.sealed {
		return 0, ErrArenaSealed
	}
	a.instances = append(a.instances, Instance{Model: model, Transform: transform})
	return Handle(len(a.instances) - 1), nil
}

// Freeze the instance set.
func (a *Arena) Seal() {
	a.sealed = true
}

func (a *Arena) Sealed() bool {
	return a.sealed
}

// Get the number of instances.
func (a *Arena) Len() int {
	return len(a.instances)
}

// Get all instance handles in top-level structure order.
func (a *Arena) Handles() []Handle {
	handles := make([]Handle, len(a.instances))
	for i := range handles {
		handles[i] = Handle(i)
	}
	return handles
}

// Update the object-to-world transform of an instance.
func (a *Arena) SetTransform(h Handle, transform types.Mat4) error {
	if int(h) >= len(a.instances) {
		return fmt.Errorf("%w: %d", ErrUnknownInstance, h)
	}
	a.instances[h].Transform = transform
	return nil
}

// Resolve maps an instance handle to its model, transform, instance id and
// hit group offset. All consumers of instance data go through this method.
func (a *Arena) Resolve(h Handle) (Binding, error) {
	if int(h) >= len(a.instances) {
		return Binding{}, fmt.Errorf("%w: %d", ErrUnknownInstance, h)
	}
	inst := a.instances[h]
	return Binding{
		Handle:         h,
		Model:          inst.Model,
		Transform:      inst.Transform,
		InstanceID:     uint32(h),
		HitGroupOffset: HitGroupsPerInstance * uint32(h),
	}, nil
}
