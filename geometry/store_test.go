package geometry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ML200/RoyalTracer-DX/asset"
	"github.com/ML200/RoyalTracer-DX/fault"
	"github.com/ML200/RoyalTracer-DX/tracer/device"
	"github.com/ML200/RoyalTracer-DX/tracer/device/emulated"
	"github.com/ML200/RoyalTracer-DX/types"
	"github.com/google/go-cmp/cmp"
)

// Build a model with one triangle per material.
func mockModel(name string, numMaterials int) *asset.Model {
	m := &asset.Model{Name: name}
	for i := 0; i < numMaterials; i++ {
		base := uint32(len(m.Vertices))
		x := float32(i)
		m.Vertices = append(m.Vertices,
			asset.Vertex{Position: types.XYZ(x, 0, 0)},
			asset.Vertex{Position: types.XYZ(x+1, 0, 0)},
			asset.Vertex{Position: types.XYZ(x, 1, 0)},
		)
		m.Indices = append(m.Indices, base, base+1, base+2)
		m.MaterialIDs = append(m.MaterialIDs, uint32(i), uint32(i), uint32(i))
		m.Materials = append(m.Materials, asset.NewMaterial(types.XYZ(x, x, x)))
	}
	return m
}

func mockImporter(materialsPerModel map[string]int) Importer {
	return ImporterFunc(func(name string) (*asset.Model, error) {
		n, exists := materialsPerModel[name]
		if !exists {
			return nil, fmt.Errorf("no such model %q", name)
		}
		return mockModel(name, n), nil
	})
}

func TestMaterialIDOffsets(t *testing.T) {
	dev := emulated.New("test")
	defer dev.Close()

	store := NewStore(dev, mockImporter(map[string]int{"garage.obj": 3, "monke.obj": 2}))
	defer store.Release()

	h0, err := store.AddModel("garage.obj")
	if err != nil {
		t.Fatal(err)
	}
	h1, err := store.AddModel("monke.obj")
	if err != nil {
		t.Fatal(err)
	}
	if h0 != 0 || h1 != 1 {
		t.Fatalf("expected handles 0 and 1; got %d and %d", h0, h1)
	}

	expIDs := []uint32{0, 0, 0, 1, 1, 1, 2, 2, 2, 3, 3, 3, 4, 4, 4}
	if diff := cmp.Diff(expIDs, store.MaterialIDs()); diff != "" {
		t.Fatalf("material id mismatch (-want +got):\n%s", diff)
	}

	second, _ := store.Model(h1)
	if second.MaterialBase != 3 || second.MaterialIDOffset != 9 {
		t.Fatalf("expected second model material base 3 and id offset 9; got %d and %d", second.MaterialBase, second.MaterialIDOffset)
	}

	ids, err := store.TriangleMaterialIDs(h1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if ids != [3]uint32{3, 3, 3} {
		t.Fatalf("expected first triangle of second model to use material 3; got %v", ids)
	}
	if len(store.Materials()) != 5 {
		t.Fatalf("expected 5 materials; got %d", len(store.Materials()))
	}

	if _, err = store.TriangleMaterialIDs(h1, 2); err == nil {
		t.Fatal("expected an error for an out of range triangle")
	}
	if _, err = store.Model(2); !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("expected ErrUnknownModel; got %v", err)
	}
}

func TestModelBuffers(t *testing.T) {
	dev := emulated.New("test")
	defer dev.Close()

	store := NewStore(dev, mockImporter(map[string]int{"garage.obj": 2}))
	defer store.Release()

	h, err := store.AddModel("garage.obj")
	if err != nil {
		t.Fatal(err)
	}
	model, _ := store.Model(h)

	if model.VertexCount != 6 || model.IndexCount != 6 {
		t.Fatalf("expected 6 vertices and 6 indices; got %d and %d", model.VertexCount, model.IndexCount)
	}
	if model.VertexBuffer.Size() != int(6*VertexStride) {
		t.Fatalf("expected vertex buffer size %d; got %d", 6*VertexStride, model.VertexBuffer.Size())
	}

	raw := make([]byte, model.IndexBuffer.Size())
	if err = model.IndexBuffer.Read(0, raw); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(device.SliceBytes(model.Indices), raw); diff != "" {
		t.Fatalf("index buffer mismatch (-want +got):\n%s", diff)
	}

	if err = store.Upload(); err != nil {
		t.Fatal(err)
	}
	if store.MaterialBuffer() == nil || store.MaterialIDBuffer() == nil {
		t.Fatal("expected material buffers to be allocated")
	}
	if _, err = store.AddModel("garage.obj"); !errors.Is(err, ErrStoreUploaded) {
		t.Fatalf("expected ErrStoreUploaded; got %v", err)
	}
}

func TestAddModelsPreservesOrder(t *testing.T) {
	dev := emulated.New("test")
	defer dev.Close()

	// The first model finishes importing last.
	delays := map[string]time.Duration{"a.obj": 20 * time.Millisecond, "b.obj": 0, "c.obj": 5 * time.Millisecond}
	importer := ImporterFunc(func(name string) (*asset.Model, error) {
		time.Sleep(delays[name])
		return mockModel(name, 1), nil
	})

	store := NewStore(dev, importer)
	defer store.Release()

	names := []string{"a.obj", "b.obj", "c.obj"}
	handles, err := store.AddModels(context.Background(), names)
	if err != nil {
		t.Fatal(err)
	}

	for index, name := range names {
		if handles[index] != ModelHandle(index) {
			t.Fatalf("expected handle of %s to be %d; got %d", name, index, handles[index])
		}
		model, _ := store.Model(handles[index])
		if model.Name != name {
			t.Fatalf("expected model %d to be %s; got %s", index, name, model.Name)
		}
		if model.MaterialBase != uint32(index) {
			t.Fatalf("expected model %d material base to be %d; got %d", index, index, model.MaterialBase)
		}
	}
}

func TestImportFailuresAreLoadErrors(t *testing.T) {
	dev := emulated.New("test")
	defer dev.Close()

	store := NewStore(dev, mockImporter(map[string]int{"garage.obj": 1}))
	defer store.Release()

	_, err := store.AddModel("missing.obj")
	if !fault.IsLoad(err) {
		t.Fatalf("expected a load error; got %v", err)
	}

	_, err = store.AddModels(context.Background(), []string{"garage.obj", "missing.obj"})
	if !fault.IsLoad(err) {
		t.Fatalf("expected a load error; got %v", err)
	}
	if len(store.Models()) != 0 {
		t.Fatalf("expected no models to be committed after a failed batch; got %d", len(store.Models()))
	}
}

func TestUploadEmptyStore(t *testing.T) {
	dev := emulated.New("test")
	defer dev.Close()

	store := NewStore(dev, mockImporter(map[string]int{"garage.obj": 1}))
	defer store.Release()

	if err := store.Upload(); err != nil {
		t.Fatalf("expected an empty store to upload; got %v", err)
	}
	if store.MaterialBuffer() != nil || store.MaterialIDBuffer() != nil {
		t.Fatal("expected no material buffers to be allocated for an empty store")
	}
	if allocated := dev.Allocated(); allocated != 0 {
		t.Fatalf("expected no device memory to be allocated; got %d bytes", allocated)
	}

	if _, err := store.AddModel("garage.obj"); !errors.Is(err, ErrStoreUploaded) {
		t.Fatalf("expected ErrStoreUploaded; got %v", err)
	}
	if err := store.Upload(); !errors.Is(err, ErrStoreUploaded) || !fault.IsLoad(err) {
		t.Fatalf("expected a second upload to fail with ErrStoreUploaded; got %v", err)
	}
}

func TestDeviceAllocationFailure(t *testing.T) {
	dev := emulated.New("test", emulated.WithMemoryLimit(64))
	defer dev.Close()

	store := NewStore(dev, mockImporter(map[string]int{"garage.obj": 4}))
	defer store.Release()

	_, err := store.AddModel("garage.obj")
	if !errors.Is(err, device.ErrOutOfMemory) || !fault.IsLoad(err) {
		t.Fatalf("expected an out of memory load error; got %v", err)
	}
}
