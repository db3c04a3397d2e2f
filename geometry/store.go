// Package geometry owns the device buffers of every loaded model together
// with the global material array and the per-corner material id array.
package geometry

import (
	"context"
	"fmt"
	"runtime"
	"time"
	"unsafe"

	"github.com/ML200/RoyalTracer-DX/asset"
	"github.com/ML200/RoyalTracer-DX/fault"
	"github.com/ML200/RoyalTracer-DX/log"
	"github.com/ML200/RoyalTracer-DX/tracer/device"
	"github.com/ML200/RoyalTracer-DX/types"
	"golang.org/x/sync/errgroup"
)

// The size of a single vertex in the vertex buffers.
const VertexStride = uint32(unsafe.Sizeof(asset.Vertex{}))

// Importer loads raw model data.
type Importer interface {
	Import(name string) (*asset.Model, error)
}

// ImporterFunc adapts a function to the Importer interface.
type ImporterFunc func(name string) (*asset.Model, error)

func (f ImporterFunc) Import(name string) (*asset.Model, error) {
	return f(name)
}

// A handle to a loaded model. Handles are dense and follow load order.
type ModelHandle uint32

// A loaded model. Models are immutable once added to the store.
type Model struct {
	Name string

	VertexBuffer device.Buffer
	IndexBuffer  device.Buffer
	VertexCount  uint32
	IndexCount   uint32

	// Host copies used for scanning emissive triangles.
	Vertices []asset.Vertex
	Indices  []uint32

	// The index of the first material id of this model in the global
	// material id array.
	MaterialIDOffset uint32

	// The number of materials loaded before this model.
	MaterialBase uint32

	// The number of materials defined by this model.
	MaterialCount uint32
}

// Get the number of triangles in this model.
func (m *Model) TriangleCount() int {
	return int(m.IndexCount / 3)
}

// Get the object-space positions of a triangle's corners.
func (m *Model) Triangle(tri int) (v0, v1, v2 types.Vec3) {
	base := tri * 3
	return m.Vertices[m.Indices[base]].Position,
		m.Vertices[m.Indices[base+1]].Position,
		m.Vertices[m.Indices[base+2]].Position
}

// Store is the geometry store.
type Store struct {
	logger   log.Logger
	dev      device.Device
	importer Importer

	models      []*Model
	materials   []asset.Material
	materialIDs []uint32

	uploaded         bool
	materialBuffer   device.Buffer
	materialIDBuffer device.Buffer
}

// Create a new geometry store that allocates buffers on dev.
func NewStore(dev device.Device, importer Importer) *Store {
	return &Store{
		logger:   log.New("geometry store"),
		dev:      dev,
		importer: importer,
	}
}

// Import a model and append it to the store. The model's material ids are
// offset by the number of materials loaded before it.
func (s *Store) AddModel(name string) (ModelHandle, error) {
	if s.importer == nil {
		return 0, fault.LoadErr("import "+name, ErrNoImporter)
	}

	model, err := s.importer.Import(name)
	if err != nil {
		return 0, fault.LoadErr("import "+name, err)
	}
	return s.commit(name, model)
}

// Import several models concurrently and append them to the store in
// argument order; the returned handles match the argument positions.
func (s *Store) AddModels(ctx context.Context, names []string) ([]ModelHandle, error) {
	if s.importer == nil {
		return nil, fault.LoadErr("import models", ErrNoImporter)
	}

	start := time.Now()
	imported := make([]*asset.Model, len(names))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for index, name := range names {
		index, name := index, name
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			model, err := s.importer.Import(name)
			if err != nil {
				return fault.LoadErr("import "+name, err)
			}
			imported[index] = model
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fault.LoadErr("import models", err)
	}

	handles := make([]ModelHandle, len(names))
	for index, model := range imported {
		h, err := s.commit(names[index], model)
		if err != nil {
			return nil, err
		}
		handles[index] = h
	}

	s.logger.Noticef("loaded %d models in %d ms", len(names), time.Since(start).Nanoseconds()/1e6)
	return handles, nil
}

func (s *Store) commit(name string, src *asset.Model) (ModelHandle, error) {
	if s.uploaded {
		return 0, fault.LoadErr("add "+name, ErrStoreUploaded)
	}
	if err := src.Validate(); err != nil {
		return 0, fault.LoadErr("add "+name, err)
	}
	if src.TriangleCount() == 0 {
		s.logger.Warningf("model %q contains no triangles", name)
	}

	model := &Model{
		Name:             name,
		VertexCount:      uint32(len(src.Vertices)),
		IndexCount:       uint32(len(src.Indices)),
		Vertices:         src.Vertices,
		Indices:          src.Indices,
		MaterialIDOffset: uint32(len(s.materialIDs)),
		MaterialBase:     uint32(len(s.materials)),
		MaterialCount:    uint32(len(src.Materials)),
	}

	var err error
	model.VertexBuffer, err = device.NewBufferWithData(s.dev, fmt.Sprintf("%s.vertices", name), src.Vertices, 0)
	if err != nil {
		return 0, fault.LoadErr("upload vertices of "+name, err)
	}
	model.IndexBuffer, err = device.NewBufferWithData(s.dev, fmt.Sprintf("%s.indices", name), src.Indices, 0)
	if err != nil {
		model.VertexBuffer.Release()
		return 0, fault.LoadErr("upload indices of "+name, err)
	}

	for _, id := range src.MaterialIDs {
		s.materialIDs = append(s.materialIDs, id+model.MaterialBase)
	}
	s.materials = append(s.materials, src.Materials...)
	s.models = append(s.models, model)

	s.logger.Infof(
		"added model %q: %d vertices, %d triangles, material base %d",
		name, model.VertexCount, model.TriangleCount(), model.MaterialBase,
	)
	return ModelHandle(len(s.models) - 1), nil
}

// Upload the global material and material id arrays. No further models may
// be added afterwards. Empty arrays are not allocated; their buffers stay nil.
func (s *Store) Upload() error {
	if s.uploaded {
		return fault.LoadErr("upload materials", ErrStoreUploaded)
	}
	s.uploaded = true

	start := time.Now()
	var err error
	if len(s.materials) != 0 {
		s.materialBuffer, err = device.NewBufferWithData(s.dev, "materials", s.materials, 0)
		if err != nil {
			return fault.LoadErr("upload materials", err)
		}
	}
	if len(s.materialIDs) != 0 {
		s.materialIDBuffer, err = device.NewBufferWithData(s.dev, "materialIDs", s.materialIDs, 0)
		if err != nil {
			return fault.LoadErr("upload material ids", err)
		}
	}

	s.logger.Noticef(
		"uploaded %d materials and %d material ids in %d ms",
		len(s.materials), len(s.materialIDs), time.Since(start).Nanoseconds()/1e6,
	)
	return nil
}

// Get a model by handle.
func (s *Store) Model(h ModelHandle) (*Model, error) {
	if int(h) >= len(s.models) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownModel, h)
	}
	return s.models[h], nil
}

// Get all models in load order.
func (s *Store) Models() []*Model {
	return s.models
}

// Get the global material array.
func (s *Store) Materials() []asset.Material {
	return s.materials
}

// Get the global per-corner material id array.
func (s *Store) MaterialIDs() []uint32 {
	return s.materialIDs
}

func (s *Store) MaterialBuffer() device.Buffer {
	return s.materialBuffer
}

func (s *Store) MaterialIDBuffer() device.Buffer {
	return s.materialIDBuffer
}

// Get the global material ids of the three corners of a model triangle.
func (s *Store) TriangleMaterialIDs(h ModelHandle, tri int) ([3]uint32, error) {
	model, err := s.Model(h)
	if err != nil {
		return [3]uint32{}, err
	}
	if tri < 0 || tri >= model.TriangleCount() {
		return [3]uint32{}, fmt.Errorf("geometry: triangle %d out of range for model %q with %d triangles", tri, model.Name, model.TriangleCount())
	}

	base := int(model.MaterialIDOffset) + tri*3
	return [3]uint32{s.materialIDs[base], s.materialIDs[base+1], s.materialIDs[base+2]}, nil
}

// Release all device buffers owned by the store.
func (s *Store) Release() {
	for _, m := range s.models {
		m.VertexBuffer.Release()
		m.IndexBuffer.Release()
	}
	if s.materialBuffer != nil {
		s.materialBuffer.Release()
	}
	if s.materialIDBuffer != nil {
		s.materialIDBuffer.Release()
	}
	s.models = nil
}
