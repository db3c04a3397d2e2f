package types

import (
	"math"
	"testing"
)

func TestNormalMatOfRotationIsRotation(t *testing.T) {
	angles := []float32{0, 0.3, 1.57, float32(math.Pi), -2.2}
	for index, angle := range angles {
		rot := RotateAxis4(angle, Vec3{1, 2, 3})
		normalMat := rot.NormalMat()
		if !normalMat.ApproxEqual(rot, 1e-5) {
			t.Fatalf("[spec %d] expected normal matrix of pure rotation to equal the rotation\nrot: %v\nnormal: %v", index, rot, normalMat)
		}
	}
}

func TestNormalMatDropsTranslation(t *testing.T) {
	m := Translate4(Vec3{4, 5, 6}).Mul4(Scale4(Vec3{2, 2, 2}))
	normalMat := m.NormalMat()

	exp := Scale4(Vec3{0.5, 0.5, 0.5})
	if !normalMat.ApproxEqual(exp, 1e-6) {
		t.Fatalf("expected normal matrix %v; got %v", exp, normalMat)
	}
	if normalMat[15] != 1 || normalMat[12] != 0 || normalMat[13] != 0 || normalMat[14] != 0 {
		t.Fatalf("expected identity homogeneous slot; got %v", normalMat)
	}
}

func TestRows3x4(t *testing.T) {
	m := Translate4(Vec3{1, 2, 3})
	exp := [12]float32{
		1, 0, 0, 1,
		0, 1, 0, 2,
		0, 0, 1, 3,
	}
	if got := m.Rows3x4(); got != exp {
		t.Fatalf("expected %v; got %v", exp, got)
	}
}

func TestTriangleArea(t *testing.T) {
	area := TriangleArea(Vec3{0, 0, 0}, Vec3{2, 0, 0}, Vec3{0, 2, 0})
	if area != 2 {
		t.Fatalf("expected area 2; got %f", area)
	}
}
