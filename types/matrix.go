package types

import "github.com/go-gl/mathgl/mgl32"

// Column-major matrices sharing their memory layout with mgl32 so they can be
// uploaded to device buffers as-is.
type Mat3 mgl32.Mat3
type Mat4 mgl32.Mat4

// Create a 4x4 identity matrix.
func Ident4() Mat4 {
	return Mat4(mgl32.Ident4())
}

// Create a 4x4 translation matrix.
func Translate4(v Vec3) Mat4 {
	return Mat4(mgl32.Translate3D(v[0], v[1], v[2]))
}

// Create a 4x4 scale matrix.
func Scale4(v Vec3) Mat4 {
	return Mat4(mgl32.Scale3D(v[0], v[1], v[2]))
}

// Create a rotation matrix around the Y axis. Angle is specified in radians.
func RotateY4(angle float32) Mat4 {
	return Mat4(mgl32.HomogRotate3DY(angle))
}

// Create a rotation matrix around an arbitrary axis.
func RotateAxis4(angle float32, axis Vec3) Mat4 {
	return Mat4(mgl32.HomogRotate3D(angle, mgl32.Vec3(axis).Normalize()))
}

// Create a right-handed perspective projection. fovY is specified in radians.
func Perspective4(fovY, aspect, near, far float32) Mat4 {
	return Mat4(mgl32.Perspective(fovY, aspect, near, far))
}

// Create a view matrix looking from eye towards center.
func LookAtV(eye, center, up Vec3) Mat4 {
	return Mat4(mgl32.LookAtV(mgl32.Vec3(eye), mgl32.Vec3(center), mgl32.Vec3(up)))
}

// Multiply two matrices.
func (m Mat4) Mul4(m2 Mat4) Mat4 {
	return Mat4(mgl32.Mat4(m).Mul4(mgl32.Mat4(m2)))
}

// Multiply matrix with a column vector.
func (m Mat4) Mul4x1(v Vec4) Vec4 {
	return Vec4(mgl32.Mat4(m).Mul4x1(mgl32.Vec4(v)))
}

// Transform a point (w=1) and drop the homogeneous coordinate.
func (m Mat4) TransformPoint(v Vec3) Vec3 {
	return m.Mul4x1(v.Vec4(1)).Vec3()
}

// Calculate the inverse. A singular matrix yields the zero matrix.
func (m Mat4) Inv() Mat4 {
	return Mat4(mgl32.Mat4(m).Inv())
}

// Transpose matrix.
func (m Mat4) Transpose() Mat4 {
	return Mat4(mgl32.Mat4(m).Transpose())
}

// Extract the top-left 3x3 matrix from a 4x4 matrix.
func (m Mat4) Mat3() Mat3 {
	return Mat3(mgl32.Mat4(m).Mat3())
}

// Calculate the matrix for transforming normals: the inverse-transpose of the
// upper 3x3 block with the translation dropped and an identity homogeneous slot.
func (m Mat4) NormalMat() Mat4 {
	upper := mgl32.Mat4(m).Mat3()
	return Mat4(upper.Inv().Transpose().Mat4())
}

// Compare two matrices using the given per-element threshold.
func (m Mat4) ApproxEqual(m2 Mat4, threshold float32) bool {
	return mgl32.Mat4(m).ApproxEqualThreshold(mgl32.Mat4(m2), threshold)
}

// Get the affine part of the matrix as a row-major 3x4 array; this is the
// layout expected by top-level structure instance descriptors.
func (m Mat4) Rows3x4() [12]float32 {
	var out [12]float32
	for row := 0; row < 3; row++ {
		for col := 0; col < 4; col++ {
			out[row*4+col] = m[col*4+row]
		}
	}
	return out
}
