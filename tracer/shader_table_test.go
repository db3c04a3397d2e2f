package tracer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/ML200/RoyalTracer-DX/tracer/device"
	"github.com/ML200/RoyalTracer-DX/tracer/device/emulated"
	"github.com/google/go-cmp/cmp"
)

func TestPipelineDesc(t *testing.T) {
	desc := NewPipelineDesc(DefaultPassList(), "shaders")

	expLibs := []device.Library{
		{Path: "shaders/Pass_init_di_v7.hlsl", Exports: []string{"Pass_init_di_v7"}},
		{Path: "shaders/Pass_shading_v7.hlsl", Exports: []string{"Pass_shading_v7"}},
		{Path: "shaders/Miss_v6.hlsl", Exports: []string{MissExport}},
		{Path: "shaders/ShadowRay.hlsl", Exports: []string{ShadowClosestHitExport, ShadowMissExport}},
		{Path: "shaders/Hit_v7.hlsl", Exports: []string{ClosestHitExport}},
	}
	if diff := cmp.Diff(expLibs, desc.Libraries); diff != "" {
		t.Fatalf("library mismatch (-want +got):\n%s", diff)
	}

	expGroups := []device.HitGroup{
		{Name: HitGroupExport, ClosestHit: ClosestHitExport},
		{Name: ShadowHitGroupExport, ClosestHit: ShadowClosestHitExport},
	}
	if diff := cmp.Diff(expGroups, desc.HitGroups); diff != "" {
		t.Fatalf("hit group mismatch (-want +got):\n%s", diff)
	}
	if desc.MaxPayloadSize != 40 || desc.MaxAttributeSize != 8 || desc.MaxRecursionDepth != 2 {
		t.Fatalf("unexpected pipeline limits: %+v", desc)
	}
}

func TestShaderBindingTableLayout(t *testing.T) {
	type spec struct {
		instances   int
		expHitEntry uint64
		expSize     uint64
	}

	specs := []spec{
		// 2 raygen x 64 + 2 miss x 32 + 64 (one shadow record)
		{0, 32, 256},
		// 2 raygen x 64 + 2 miss x 32 + 5 hit x 64
		{2, 64, 512},
		// 2 raygen x 64 + 2 miss x 32 + 9 hit x 64 (576)
		{4, 64, 768},
	}

	for specIndex, s := range specs {
		sbt := NewShaderBindingTable(DefaultPassList().Stages(), 0x1000, make([]HitGroupArgs, s.instances))

		if got := sbt.RayGenEntrySize(); got != 64 {
			t.Fatalf("[spec %d] expected ray generation records to be 64 bytes; got %d", specIndex, got)
		}
		if got := sbt.MissEntrySize(); got != 32 {
			t.Fatalf("[spec %d] expected miss records to be 32 bytes; got %d", specIndex, got)
		}
		if got := sbt.HitGroupEntrySize(); got != s.expHitEntry {
			t.Fatalf("[spec %d] expected hit group records to be %d bytes; got %d", specIndex, s.expHitEntry, got)
		}
		if got := sbt.Size(); got != s.expSize {
			t.Fatalf("[spec %d] expected table size %d; got %d", specIndex, s.expSize, got)
		}

		rayGen, miss, hit := sbt.Counts()
		if rayGen != 2 || miss != 2 || hit != 2*s.instances+1 {
			t.Fatalf("[spec %d] unexpected record counts %d/%d/%d", specIndex, rayGen, miss, hit)
		}
	}
}

func TestShaderBindingTableGenerate(t *testing.T) {
	dev := emulated.New("test")
	defer dev.Close()

	pipeline, err := dev.NewPipeline(NewPipelineDesc(DefaultPassList(), "shaders"))
	if err != nil {
		t.Fatal(err)
	}

	const heapStart = 0xABCD00
	args := []HitGroupArgs{
		{VertexBuffer: 0x100, IndexBuffer: 0x200, Constants: 0x300},
		{VertexBuffer: 0x400, IndexBuffer: 0x500, Constants: 0x300},
	}
	sbt := NewShaderBindingTable(DefaultPassList().Stages(), heapStart, args)
	defer sbt.Release()

	if err = sbt.Generate(dev, pipeline); err != nil {
		t.Fatal(err)
	}

	raw := make([]byte, sbt.Size())
	if err = sbt.Buffer().Read(0, raw); err != nil {
		t.Fatal(err)
	}

	type spec struct {
		offset int
		export string
		args   []uint64
	}

	specs := []spec{
		{0, "Pass_init_di_v7", []uint64{heapStart}},
		{64, "Pass_shading_v7", []uint64{heapStart}},
		{128, MissExport, nil},
		{160, ShadowMissExport, nil},
		{192, HitGroupExport, []uint64{0x100, 0x200, 0x300, heapStart}},
		{256, ShadowHitGroupExport, nil},
		{320, HitGroupExport, []uint64{0x400, 0x500, 0x300, heapStart}},
		{384, ShadowHitGroupExport, nil},
		{448, ShadowHitGroupExport, nil},
	}

	for specIndex, s := range specs {
		id, err := pipeline.ShaderIdentifier(s.export)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(raw[s.offset:s.offset+device.ShaderIdentifierSize], id) {
			t.Fatalf("[spec %d] expected record at offset %d to hold the identifier of %s", specIndex, s.offset, s.export)
		}
		for argIndex, exp := range s.args {
			at := s.offset + device.ShaderIdentifierSize + argIndex*8
			if got := binary.LittleEndian.Uint64(raw[at:]); got != exp {
				t.Fatalf("[spec %d] expected argument %d to be 0x%x; got 0x%x", specIndex, argIndex, exp, got)
			}
		}
	}

	base := sbt.Buffer().GPUAddress()
	exp := device.DispatchRaysDesc{
		RayGen:   device.AddressRange{Start: base + 64, Size: 64},
		Miss:     device.AddressRangeStride{Start: base + 128, Size: 64, Stride: 32},
		HitGroup: device.AddressRangeStride{Start: base + 192, Size: 320, Stride: 64},
		Width:    640,
		Height:   480,
		Depth:    1,
	}
	if diff := cmp.Diff(exp, sbt.DispatchDesc(1, 640, 480)); diff != "" {
		t.Fatalf("dispatch description mismatch (-want +got):\n%s", diff)
	}

	// Regenerating reuses the buffer.
	addr := sbt.Buffer().GPUAddress()
	if err = sbt.Generate(dev, pipeline); err != nil {
		t.Fatal(err)
	}
	if sbt.Buffer().GPUAddress() != addr {
		t.Fatal("expected regeneration to reuse the table buffer")
	}
}

func TestShaderBindingTableUnknownExport(t *testing.T) {
	dev := emulated.New("test")
	defer dev.Close()

	pipeline, err := dev.NewPipeline(NewPipelineDesc(DefaultPassList(), "shaders"))
	if err != nil {
		t.Fatal(err)
	}

	sbt := NewShaderBindingTable(ReSTIRPassList().Stages(), 0, nil)
	defer sbt.Release()

	if err = sbt.Generate(dev, pipeline); !errors.Is(err, device.ErrUnknownExport) {
		t.Fatalf("expected to get ErrUnknownExport; got %v", err)
	}

	empty := NewShaderBindingTable(nil, 0, nil)
	if err = empty.Generate(dev, pipeline); !errors.Is(err, ErrEmptyPassList) {
		t.Fatalf("expected to get ErrEmptyPassList; got %v", err)
	}
}
