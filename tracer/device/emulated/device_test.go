package emulated

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ML200/RoyalTracer-DX/tracer/device"
)

func TestBufferHostAccess(t *testing.T) {
	dev := New("test")
	defer dev.Close()

	upload, err := dev.NewBuffer("upload", 16, device.UploadHeap, device.StateGenericRead)
	if err != nil {
		t.Fatal(err)
	}
	defer upload.Release()

	if err = upload.Write(4, []byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	out := make([]byte, 4)
	if err = upload.Read(4, out); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, []byte{1, 2, 3, 4}) {
		t.Fatalf("expected read back data to be [1 2 3 4]; got %v", out)
	}

	if err = upload.Write(14, []byte{1, 2, 3}); !errors.Is(err, device.ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds; got %v", err)
	}

	def, err := dev.NewBuffer("default", 16, device.DefaultHeap, device.StateCommon)
	if err != nil {
		t.Fatal(err)
	}
	defer def.Release()
	if err = def.Write(0, []byte{1}); !errors.Is(err, device.ErrHostAccessDenied) {
		t.Fatalf("expected ErrHostAccessDenied; got %v", err)
	}
}

func TestMemoryLimit(t *testing.T) {
	dev := New("test", WithMemoryLimit(1024))
	defer dev.Close()

	buf, err := dev.NewBuffer("a", 1000, device.UploadHeap, device.StateGenericRead)
	if err != nil {
		t.Fatal(err)
	}

	_, err = dev.NewBuffer("b", 100, device.UploadHeap, device.StateGenericRead)
	if !errors.Is(err, device.ErrOutOfMemory) {
		t.Fatalf("expected ErrOutOfMemory; got %v", err)
	}

	buf.Release()
	if dev.Allocated() != 0 {
		t.Fatalf("expected allocated bytes to be 0 after release; got %d", dev.Allocated())
	}
	if _, err = dev.NewBuffer("b", 100, device.UploadHeap, device.StateGenericRead); err != nil {
		t.Fatalf("expected allocation to succeed after release; got %v", err)
	}
}

func TestAddressesAreAligned(t *testing.T) {
	dev := New("test")
	defer dev.Close()

	for _, size := range []int{1, 255, 256, 1000} {
		buf, err := dev.NewBuffer("buf", size, device.UploadHeap, device.StateGenericRead)
		if err != nil {
			t.Fatal(err)
		}
		if buf.GPUAddress()%device.AccelerationStructureAlignment != 0 {
			t.Fatalf("expected address of buffer with size %d to be aligned; got 0x%x", size, buf.GPUAddress())
		}
	}
}

func TestTransitionStateMismatch(t *testing.T) {
	dev := New("test")
	defer dev.Close()

	buf, err := dev.NewBuffer("buf", 16, device.DefaultHeap, device.StateCopyDest)
	if err != nil {
		t.Fatal(err)
	}

	cl := dev.CommandList()
	cl.Reset()
	cl.ResourceBarrier(device.Transition(buf, device.StateUnorderedAccess, device.StateCopySource))
	if err = cl.Close(); err != nil {
		t.Fatal(err)
	}

	err = dev.Execute(cl)
	if !errors.Is(err, device.ErrStateMismatch) {
		t.Fatalf("expected ErrStateMismatch; got %v", err)
	}

	cl.Reset()
	cl.ResourceBarrier(
		device.Transition(buf, device.StateCopyDest, device.StateUnorderedAccess),
		device.UAV(nil),
		device.Transition(buf, device.StateUnorderedAccess, device.StateCopySource),
	)
	cl.Close()
	if err = dev.Execute(cl); err != nil {
		t.Fatal(err)
	}

	if state := buf.(*Buffer).State(); state != device.StateCopySource {
		t.Fatalf("expected buffer state to be %s; got %s", device.StateCopySource, state)
	}
	if len(dev.History()) != 3 {
		t.Fatalf("expected 3 commands in history; got %d", len(dev.History()))
	}
}

func TestStagedUpload(t *testing.T) {
	dev := New("test")
	defer dev.Close()

	data := []uint32{1, 2, 3, 4}
	cl := dev.CommandList()
	cl.Reset()
	upload, err := device.NewStagedUpload(dev, cl, "ids", data, device.StateGenericRead)
	if err != nil {
		t.Fatal(err)
	}
	if err = cl.Close(); err != nil {
		t.Fatal(err)
	}
	if err = dev.Execute(cl); err != nil {
		t.Fatal(err)
	}
	upload.ReleaseStaging()

	out := make([]byte, 16)
	if err = upload.Dest.Read(0, out); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, device.SliceBytes(data)) {
		t.Fatalf("expected destination buffer to contain %v; got %v", device.SliceBytes(data), out)
	}
	if state := upload.Dest.(*Buffer).State(); state != device.StateGenericRead {
		t.Fatalf("expected destination state to be %s; got %s", device.StateGenericRead, state)
	}
}

func TestRecordOnClosedList(t *testing.T) {
	dev := New("test")
	defer dev.Close()

	cl := dev.CommandList()
	cl.Reset()
	cl.Close()
	cl.DispatchRays(device.DispatchRaysDesc{Width: 1, Height: 1, Depth: 1})

	if err := dev.Execute(cl); !errors.Is(err, device.ErrCommandListClosed) {
		t.Fatalf("expected ErrCommandListClosed; got %v", err)
	}

	cl.Reset()
	cl.SetPipeline(nil)
	if err := dev.Execute(cl); !errors.Is(err, device.ErrCommandListOpen) {
		t.Fatalf("expected ErrCommandListOpen; got %v", err)
	}
}

func TestFence(t *testing.T) {
	dev := New("test")
	defer dev.Close()

	if err := dev.Wait(1); !errors.Is(err, device.ErrFenceNotSignaled) {
		t.Fatalf("expected ErrFenceNotSignaled; got %v", err)
	}

	fence, err := dev.Signal()
	if err != nil {
		t.Fatal(err)
	}
	if fence != 1 {
		t.Fatalf("expected fence value 1; got %d", fence)
	}
	if err = dev.Wait(fence); err != nil {
		t.Fatal(err)
	}
}

func TestPipelineIdentifiers(t *testing.T) {
	dev := New("test")
	defer dev.Close()

	desc := device.PipelineDesc{
		Libraries: []device.Library{
			{Path: "Miss_v6.hlsl", Exports: []string{"Miss"}},
			{Path: "Hit_v7.hlsl", Exports: []string{"ClosestHit"}},
		},
		HitGroups: []device.HitGroup{{Name: "HitGroup", ClosestHit: "ClosestHit"}},
	}
	p, err := dev.NewPipeline(desc)
	if err != nil {
		t.Fatal(err)
	}

	for _, export := range []string{"Miss", "ClosestHit", "HitGroup"} {
		id, err := p.ShaderIdentifier(export)
		if err != nil {
			t.Fatal(err)
		}
		if len(id) != device.ShaderIdentifierSize {
			t.Fatalf("expected identifier for %q to be %d bytes; got %d", export, device.ShaderIdentifierSize, len(id))
		}
	}

	missID, _ := p.ShaderIdentifier("Miss")
	if bytes.Equal(missID, shaderIdentifier("ClosestHit")) {
		t.Fatal("expected distinct exports to have distinct identifiers")
	}

	if _, err = p.ShaderIdentifier("ShadowMiss"); !errors.Is(err, device.ErrUnknownExport) {
		t.Fatalf("expected ErrUnknownExport; got %v", err)
	}

	desc.HitGroups = append(desc.HitGroups, device.HitGroup{Name: "ShadowHitGroup", ClosestHit: "ShadowClosestHit"})
	if _, err = dev.NewPipeline(desc); !errors.Is(err, device.ErrUnknownExport) {
		t.Fatalf("expected ErrUnknownExport for hit group with unknown closest hit shader; got %v", err)
	}
}

func TestDispatchWritesOutputLayer(t *testing.T) {
	dev := New("test")
	defer dev.Close()

	out, err := dev.NewTexture("output", device.TextureDesc{Width: 4, Height: 2, ArraySize: 2, Format: device.FormatRGBA8Unorm}, device.StateUnorderedAccess)
	if err != nil {
		t.Fatal(err)
	}
	heap, err := dev.NewDescriptorHeap("heap", 2)
	if err != nil {
		t.Fatal(err)
	}
	heap.Set(0, device.View{Kind: device.UnorderedAccessView, Resource: out, ArraySize: 2})

	p, err := dev.NewPipeline(device.PipelineDesc{Libraries: []device.Library{{Path: "rg.hlsl", Exports: []string{"rg"}}}})
	if err != nil {
		t.Fatal(err)
	}

	cl := dev.CommandList()
	cl.Reset()
	dispatch := device.DispatchRaysDesc{RayGen: device.AddressRange{Start: 0x10000, Size: 64}, Width: 4, Height: 2, Depth: 1}
	cl.DispatchRays(dispatch)
	cl.Close()
	if err = dev.Execute(cl); !errors.Is(err, device.ErrMissingPipelineData) {
		t.Fatalf("expected ErrMissingPipelineData; got %v", err)
	}

	cl.Reset()
	cl.SetDescriptorHeap(heap)
	cl.SetPipeline(p)
	cl.DispatchRays(dispatch)
	cl.Close()
	if err = dev.Execute(cl); err != nil {
		t.Fatal(err)
	}

	pixels := make([]byte, out.Desc().LayerSize())
	if err = out.(device.ReadableTexture).ReadLayer(0, pixels); err != nil {
		t.Fatal(err)
	}
	// Last pixel of the first row.
	if pixels[3*4] != byte(3*255/4) || pixels[3*4+3] != 255 {
		t.Fatalf("unexpected pixel value %v", pixels[3*4:3*4+4])
	}
}

func TestBuildValidatesBufferSizes(t *testing.T) {
	dev := New("test")
	defer dev.Close()

	vb, _ := dev.NewBuffer("vb", 3*32, device.UploadHeap, device.StateGenericRead)
	inputs := device.ASInputs{
		Type:     device.BottomLevel,
		Geometry: []device.GeometryDesc{{VertexBuffer: vb, VertexCount: 3, VertexStride: 32, VertexFormat: device.FormatRGB32Float}},
	}
	info, err := dev.AccelerationStructurePrebuildInfo(inputs)
	if err != nil {
		t.Fatal(err)
	}
	if info.ResultSize%device.AccelerationStructureAlignment != 0 {
		t.Fatalf("expected result size to be aligned; got %d", info.ResultSize)
	}

	scratch, _ := dev.NewBuffer("scratch", int(info.ScratchSize), device.DefaultHeap, device.StateUnorderedAccess)
	small, _ := dev.NewBuffer("small", 16, device.DefaultHeap, device.StateAccelerationStructure)
	result, _ := dev.NewBuffer("result", int(info.ResultSize), device.DefaultHeap, device.StateAccelerationStructure)

	cl := dev.CommandList()
	cl.Reset()
	cl.BuildAccelerationStructure(device.ASBuildDesc{Inputs: inputs, Dest: small, Scratch: scratch})
	cl.Close()
	if err = dev.Execute(cl); !errors.Is(err, device.ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds; got %v", err)
	}

	cl.Reset()
	cl.BuildAccelerationStructure(device.ASBuildDesc{Inputs: inputs, Dest: result, Scratch: scratch})
	cl.Close()
	if err = dev.Execute(cl); err != nil {
		t.Fatal(err)
	}
}
