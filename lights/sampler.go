package lights

import (
	"github.com/ML200/RoyalTracer-DX/tracer/device"
)

// Sampler owns the emissive triangle list, its alias table and their device
// buffers.
type Sampler struct {
	Triangles []LightTriangle
	Table     AliasTable

	TriangleBuffer device.Buffer
	ProbBuffer     device.Buffer
	AliasBuffer    device.Buffer

	staged []*device.StagedUpload
}

// Create a sampler for a sorted and normalized triangle list.
func NewSampler(tris []LightTriangle) *Sampler {
	return &Sampler{
		Triangles: tris,
		Table:     BuildAliasTable(tris),
	}
}

// Get the number of emissive triangles.
func (s *Sampler) Len() int {
	return len(s.Triangles)
}

// Record the upload of the triangle list and the alias table into default
// heap buffers. Nothing is allocated when there are no emissive triangles.
// The staging buffers must be kept alive until cl has executed.
func (s *Sampler) Upload(dev device.Device, cl device.CommandList) error {
	if len(s.Triangles) == 0 {
		return nil
	}

	uploads := []struct {
		name   string
		data   interface{}
		target *device.Buffer
	}{
		{"lightTriangles", s.Triangles, &s.TriangleBuffer},
		{"aliasProb", s.Table.Prob, &s.ProbBuffer},
		{"aliasIdx", s.Table.Alias, &s.AliasBuffer},
	}
	for _, u := range uploads {
		staged, err := device.NewStagedUpload(dev, cl, u.name, u.data, device.StateGenericRead)
		if err != nil {
			return err
		}
		s.staged = append(s.staged, staged)
		*u.target = staged.Dest
	}
	return nil
}

// Release the staging buffers once the upload has executed.
func (s *Sampler) ReleaseStaging() {
	for _, staged := range s.staged {
		staged.ReleaseStaging()
	}
	s.staged = nil
}

// Release all device buffers.
func (s *Sampler) Release() {
	s.ReleaseStaging()
	for _, buf := range []device.Buffer{s.TriangleBuffer, s.ProbBuffer, s.AliasBuffer} {
		if buf != nil {
			buf.Release()
		}
	}
	s.TriangleBuffer, s.ProbBuffer, s.AliasBuffer = nil, nil, nil
}
