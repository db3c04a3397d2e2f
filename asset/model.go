package asset

import (
	"fmt"

	"github.com/ML200/RoyalTracer-DX/types"
)

// The number of entries in the directional albedo lookup table.
const AlbedoLUTSize = 16

// A mesh vertex as laid out in device memory (32 bytes).
type Vertex struct {
	Position types.Vec3
	Normal   types.Vec3
	UV       types.Vec2
}

// A surface material as laid out in device memory.
type Material struct {
	// Diffuse color; the alpha channel stores the dissolve factor.
	Kd types.Vec4

	// Specular color.
	Ks types.Vec4

	// Emissive color.
	Ke types.Vec4

	Roughness          float32
	Metallic           float32
	Sheen              float32
	Clearcoat          float32
	ClearcoatRoughness float32
	Anisotropy         float32
	AnisotropyRotation float32

	// Index of refraction.
	Ni float32

	// Directional albedo indexed by cos(theta) in [0, 1].
	AlbedoLUT [AlbedoLUTSize]float32
}

// Returns true if the material emits light.
func (m *Material) IsEmissive() bool {
	return m.Ke.Vec3().Sum() > 0
}

// Precompute the directional albedo table. The table holds the Schlick
// approximation of the Fresnel reflectance for the material IOR.
func (m *Material) ComputeAlbedoLUT() {
	ior := m.Ni
	if ior <= 0 {
		ior = 1.5
	}
	f0 := (ior - 1) / (ior + 1)
	f0 *= f0

	for i := 0; i < AlbedoLUTSize; i++ {
		cosTheta := float32(i) / float32(AlbedoLUTSize-1)
		c := 1 - cosTheta
		m.AlbedoLUT[i] = f0 + (1-f0)*c*c*c*c*c
	}
}

// Create a diffuse material with sensible defaults.
func NewMaterial(kd types.Vec3) Material {
	m := Material{
		Kd:        kd.Vec4(1),
		Roughness: 1,
		Ni:        1.5,
	}
	m.ComputeAlbedoLUT()
	return m
}

// A Model is the output of an importer: an indexed triangle mesh, its
// materials and a model-local material id for every index.
type Model struct {
	Name string

	Vertices []Vertex
	Indices  []uint32

	Materials []Material

	// One entry per index; the three corners of a triangle normally share
	// the same id.
	MaterialIDs []uint32
}

// Get the number of triangles in this model.
func (m *Model) TriangleCount() int {
	return len(m.Indices) / 3
}

// Get the three corner positions of a triangle.
func (m *Model) Triangle(tri int) (v0, v1, v2 types.Vec3) {
	base := tri * 3
	return m.Vertices[m.Indices[base]].Position,
		m.Vertices[m.Indices[base+1]].Position,
		m.Vertices[m.Indices[base+2]].Position
}

// Check that the model index and material id arrays are consistent.
func (m *Model) Validate() error {
	if len(m.Indices)%3 != 0 {
		return fmt.Errorf("model %q: index count %d is not a multiple of 3", m.Name, len(m.Indices))
	}
	if len(m.MaterialIDs) != len(m.Indices) {
		return fmt.Errorf("model %q: expected %d material ids; got %d", m.Name, len(m.Indices), len(m.MaterialIDs))
	}
	for i, index := range m.Indices {
		if int(index) >= len(m.Vertices) {
			return fmt.Errorf("model %q: index %d references vertex %d; model has %d vertices", m.Name, i, index, len(m.Vertices))
		}
	}
	return nil
}
