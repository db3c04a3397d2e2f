// Package scene contains the interactive camera that produces the view matrix
// consumed by the tracer.
package scene

import (
	"fmt"

	"github.com/ML200/RoyalTracer-DX/types"
	"github.com/go-gl/mathgl/mgl32"
)

// Limits for the orbit distance.
const (
	minDistance float32 = 0.05
	maxDistance float32 = 1000
)

// The camera orbits around a target point. Mouse movements are translated
// into rotations around the target, dolly moves towards it or pans of both
// the eye and the target.
type Camera struct {
	Position types.Vec3
	LookAt   types.Vec3
	Up       types.Vec3

	ViewMat types.Mat4

	// Coefficients for converting cursor deltas into camera motion.
	OrbitSpeed float32
	DollySpeed float32
	PanSpeed   float32
}

// Create a camera located at position looking at the target.
func NewCamera(position, lookAt, up types.Vec3) *Camera {
	c := &Camera{
		Position:   position,
		LookAt:     lookAt,
		Up:         up,
		OrbitSpeed: 0.005,
		DollySpeed: 0.01,
		PanSpeed:   0.002,
	}
	c.Update()
	return c
}

// Create the camera used by the default scene.
func DefaultCamera() *Camera {
	return NewCamera(types.XYZ(-1.5, 1.5, 3.5), types.XYZ(0, 1, 0), types.XYZ(0, 1, 0))
}

func (c *Camera) String() string {
	return fmt.Sprintf(
		"camera eye (%3.3f, %3.3f, %3.3f) target (%3.3f, %3.3f, %3.3f)",
		c.Position[0], c.Position[1], c.Position[2],
		c.LookAt[0], c.LookAt[1], c.LookAt[2],
	)
}

// Recalculate the view matrix.
func (c *Camera) Update() {
	c.ViewMat = types.LookAtV(c.Position, c.LookAt, c.Up)
}

// Rotate the eye around the target. Horizontal movement rotates around the
// up axis; vertical movement rotates around the camera right axis.
func (c *Camera) Orbit(dx, dy float32) {
	offset := mgl32.Vec3(c.Position.Sub(c.LookAt))
	up := mgl32.Vec3(c.Up).Normalize()
	right := offset.Cross(up).Normalize()

	yawQuat := mgl32.QuatRotate(-dx*c.OrbitSpeed, up)
	pitchQuat := mgl32.QuatRotate(dy*c.OrbitSpeed, right)
	rotated := pitchQuat.Mul(yawQuat).Normalize().Rotate(offset)

	// Avoid flipping over the poles.
	if abs(rotated.Normalize().Dot(up)) > 0.99 {
		rotated = yawQuat.Rotate(offset)
	}

	c.Position = c.LookAt.Add(types.Vec3(rotated))
	c.Update()
}

// Move the eye towards (positive delta) or away from the target.
func (c *Camera) Dolly(delta float32) {
	offset := c.Position.Sub(c.LookAt)
	dist := offset.Len() * (1 - delta*c.DollySpeed)
	if dist < minDistance {
		dist = minDistance
	} else if dist > maxDistance {
		dist = maxDistance
	}

	c.Position = c.LookAt.Add(offset.Normalize().Mul(dist))
	c.Update()
}

// Move both the eye and the target along the view plane.
func (c *Camera) Pan(dx, dy float32) {
	dir := c.LookAt.Sub(c.Position)
	scale := dir.Len() * c.PanSpeed
	right := dir.Cross(c.Up).Normalize()
	up := right.Cross(dir).Normalize()

	move := right.Mul(-dx * scale).Add(up.Mul(dy * scale))
	c.Position = c.Position.Add(move)
	c.LookAt = c.LookAt.Add(move)
	c.Update()
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
