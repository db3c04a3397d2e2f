package tracer

import (
	"encoding/binary"
	"fmt"

	"github.com/ML200/RoyalTracer-DX/tracer/device"
)

// The size of a single root argument in a shader record.
const rootArgumentSize = 8

// The root arguments of a primary hit group record.
type HitGroupArgs struct {
	VertexBuffer uint64
	IndexBuffer  uint64
	Constants    uint64
}

type shaderRecord struct {
	export string
	args   []uint64
}

type shaderSection []shaderRecord

// Get the size of a single record in the section. All records share the
// size of the record with the most root arguments.
func (s shaderSection) entrySize() uint64 {
	maxArgs := 0
	for _, rec := range s {
		if len(rec.args) > maxArgs {
			maxArgs = len(rec.args)
		}
	}
	return device.AlignUp(uint64(device.ShaderIdentifierSize+rootArgumentSize*maxArgs), device.ShaderRecordAlignment)
}

func (s shaderSection) size() uint64 {
	return device.AlignUp(s.entrySize()*uint64(len(s)), device.ShaderTableAlignment)
}

// ShaderBindingTable maps ray-generation slots, miss indices and hit group
// offsets to shader records. The table is always regenerated in full.
type ShaderBindingTable struct {
	rayGen shaderSection
	miss   shaderSection
	hit    shaderSection

	buffer device.Buffer
}

// Create a shader binding table for the given stages. Every instance gets a
// primary hit group record followed by a shadow hit group record; the hit
// group offset of instance i is therefore 2i.
func NewShaderBindingTable(stages []Stage, heapStart uint64, instances []HitGroupArgs) *ShaderBindingTable {
	sbt := &ShaderBindingTable{}
	for _, stage := range stages {
		sbt.rayGen = append(sbt.rayGen, shaderRecord{export: stage.Name, args: []uint64{heapStart}})
	}

	sbt.miss = shaderSection{
		{export: MissExport},
		{export: ShadowMissExport},
	}

	for _, inst := range instances {
		sbt.hit = append(sbt.hit,
			shaderRecord{export: HitGroupExport, args: []uint64{inst.VertexBuffer, inst.IndexBuffer, inst.Constants, heapStart}},
			shaderRecord{export: ShadowHitGroupExport},
		)
	}
	sbt.hit = append(sbt.hit, shaderRecord{export: ShadowHitGroupExport})

	return sbt
}

// Get the total table size in bytes.
func (sbt *ShaderBindingTable) Size() uint64 {
	return device.AlignUp(sbt.rayGen.size()+sbt.miss.size()+sbt.hit.size(), device.ConstantBufferAlignment)
}

func (sbt *ShaderBindingTable) RayGenEntrySize() uint64 {
	return sbt.rayGen.entrySize()
}

func (sbt *ShaderBindingTable) MissEntrySize() uint64 {
	return sbt.miss.entrySize()
}

func (sbt *ShaderBindingTable) HitGroupEntrySize() uint64 {
	return sbt.hit.entrySize()
}

// Get the number of records in the ray-generation, miss and hit sections.
func (sbt *ShaderBindingTable) Counts() (rayGen, miss, hit int) {
	return len(sbt.rayGen), len(sbt.miss), len(sbt.hit)
}

func (sbt *ShaderBindingTable) Buffer() device.Buffer {
	return sbt.buffer
}

// Generate writes all shader records into an upload heap buffer. The buffer
// is reallocated if it cannot hold the table.
func (sbt *ShaderBindingTable) Generate(dev device.Device, pipeline device.Pipeline) error {
	if len(sbt.rayGen) == 0 {
		return ErrEmptyPassList
	}

	size := sbt.Size()
	if sbt.buffer != nil && uint64(sbt.buffer.Size()) < size {
		sbt.buffer.Release()
		sbt.buffer = nil
	}
	if sbt.buffer == nil {
		buf, err := dev.NewBuffer("shaderBindingTable", int(size), device.UploadHeap, device.StateGenericRead)
		if err != nil {
			return err
		}
		sbt.buffer = buf
	}

	data := make([]byte, size)
	offset := uint64(0)
	for _, section := range []shaderSection{sbt.rayGen, sbt.miss, sbt.hit} {
		entrySize := section.entrySize()
		for index, rec := range section {
			id, err := pipeline.ShaderIdentifier(rec.export)
			if err != nil {
				return fmt.Errorf("tracer: shader record %d: %w", index, err)
			}

			entry := data[offset+uint64(index)*entrySize:]
			copy(entry, id)
			for argIndex, arg := range rec.args {
				binary.LittleEndian.PutUint64(entry[device.ShaderIdentifierSize+argIndex*rootArgumentSize:], arg)
			}
		}
		offset += section.size()
	}

	return sbt.buffer.Write(0, data)
}

// Get the dispatch description for the ray-generation stage in the given slot.
func (sbt *ShaderBindingTable) DispatchDesc(slot int, frameW, frameH uint32) device.DispatchRaysDesc {
	start := sbt.buffer.GPUAddress()
	rayGenSize := sbt.rayGen.entrySize()
	missStart := start + sbt.rayGen.size()
	hitStart := missStart + sbt.miss.size()

	return device.DispatchRaysDesc{
		RayGen: device.AddressRange{
			Start: start + uint64(slot)*rayGenSize,
			Size:  rayGenSize,
		},
		Miss: device.AddressRangeStride{
			Start:  missStart,
			Size:   sbt.miss.size(),
			Stride: sbt.miss.entrySize(),
		},
		HitGroup: device.AddressRangeStride{
			Start:  hitStart,
			Size:   sbt.hit.size(),
			Stride: sbt.hit.entrySize(),
		},
		Width:  frameW,
		Height: frameH,
		Depth:  1,
	}
}

func (sbt *ShaderBindingTable) Release() {
	if sbt.buffer != nil {
		sbt.buffer.Release()
		sbt.buffer = nil
	}
}
