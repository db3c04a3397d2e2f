package tracer

import (
	"fmt"
	"unsafe"

	"github.com/ML200/RoyalTracer-DX/asset"
	"github.com/ML200/RoyalTracer-DX/fault"
	"github.com/ML200/RoyalTracer-DX/lights"
	"github.com/ML200/RoyalTracer-DX/tracer/device"
)

// Descriptor heap slots. Shader stages declare matching registers.
const (
	SlotOutput = iota
	SlotTopLevel
	SlotCamera
	SlotInstanceProperties
	SlotMaterialIDs
	SlotMaterials
	SlotLightTriangles
	SlotPersistent
	SlotReservoirDI0
	SlotReservoirDI1
	SlotReservoirGI0
	SlotReservoirGI1
	SlotSampleCurrent
	SlotSampleLast
	SlotAliasProb
	SlotAliasIdx

	NumBindingSlots
)

var slotNames = [NumBindingSlots]string{
	"output", "topLevel", "camera", "instanceProperties", "materialIDs", "materials",
	"lightTriangles", "persistent", "reservoirDI0", "reservoirDI1", "reservoirGI0",
	"reservoirGI1", "sampleCurrent", "sampleLast", "aliasProb", "aliasIdx",
}

// Get the name of a binding slot.
func SlotName(slot int) string {
	if slot < 0 || slot >= NumBindingSlots {
		return fmt.Sprintf("slot(%d)", slot)
	}
	return slotNames[slot]
}

// Sources lists the resources referenced by the binding table.
type Sources struct {
	Output     device.Texture
	Persistent device.Texture

	TopLevel device.Buffer
	Camera   device.Buffer

	InstanceProperties device.Buffer
	NumInstances       int

	// Material data may be nil when the matching count is zero.
	Materials      device.Buffer
	NumMaterials   int
	MaterialIDs    device.Buffer
	NumMaterialIDs int

	ReservoirsDI [2]device.Buffer
	ReservoirsGI [2]device.Buffer
	Samples      [2]device.Buffer

	// The number of pixels covered by each per-pixel buffer.
	Pixels int

	// Light data may be nil when NumLights is zero.
	LightTriangles device.Buffer
	AliasProb      device.Buffer
	AliasIdx       device.Buffer
	NumLights      int
}

// Build a descriptor heap with one view per binding slot. Missing required
// sources produce an ErrMissingBindingSource error naming the slot.
func BuildBindingTable(dev device.Device, src Sources) (device.DescriptorHeap, error) {
	views, err := bindingViews(src)
	if err != nil {
		return nil, fault.LoadErr("build binding table", err)
	}

	heap, err := dev.NewDescriptorHeap("bindingTable", NumBindingSlots)
	if err != nil {
		return nil, fault.LoadErr("build binding table", err)
	}
	for slot, view := range views {
		if err = heap.Set(slot, view); err != nil {
			return nil, fault.LoadErr("build binding table", err)
		}
	}
	return heap, nil
}

type slotBinding struct {
	slot int
	res  device.Resource
	view device.View
}

func bindingViews(src Sources) ([NumBindingSlots]device.View, error) {
	var views [NumBindingSlots]device.View

	perPixel := uint32(src.Pixels)
	structured := func(res device.Buffer, count, stride uint32) device.View {
		return device.View{Kind: device.ShaderResourceView, Resource: res, NumElements: count, Stride: stride}
	}
	typed := func(res device.Buffer, count uint32, format device.Format) device.View {
		return device.View{Kind: device.ShaderResourceView, Resource: res, NumElements: count, Format: format}
	}
	rw := func(res device.Buffer, stride uint32) device.View {
		return device.View{Kind: device.UnorderedAccessView, Resource: res, NumElements: perPixel, Stride: stride}
	}

	required := []slotBinding{
		{SlotOutput, src.Output, device.View{Kind: device.UnorderedAccessView, Resource: src.Output, Format: device.FormatRGBA8Unorm, ArraySize: OutputLayers}},
		{SlotTopLevel, src.TopLevel, device.View{Kind: device.AccelerationStructureView, Resource: src.TopLevel}},
		{SlotCamera, src.Camera, device.View{Kind: device.ConstantBufferView, Resource: src.Camera}},
		{SlotInstanceProperties, src.InstanceProperties, structured(src.InstanceProperties, uint32(src.NumInstances), InstancePropertiesStride)},
		{SlotPersistent, src.Persistent, device.View{Kind: device.UnorderedAccessView, Resource: src.Persistent, Format: device.FormatRGBA32Float, ArraySize: 1}},
		{SlotReservoirDI0, src.ReservoirsDI[0], rw(src.ReservoirsDI[0], sizeofDIReservoir)},
		{SlotReservoirDI1, src.ReservoirsDI[1], rw(src.ReservoirsDI[1], sizeofDIReservoir)},
		{SlotReservoirGI0, src.ReservoirsGI[0], rw(src.ReservoirsGI[0], sizeofGIReservoir)},
		{SlotReservoirGI1, src.ReservoirsGI[1], rw(src.ReservoirsGI[1], sizeofGIReservoir)},
		{SlotSampleCurrent, src.Samples[0], rw(src.Samples[0], sizeofSample)},
		{SlotSampleLast, src.Samples[1], rw(src.Samples[1], sizeofSample)},
	}

	// Slots whose source may be absent when its element count is zero.
	numLights := uint32(src.NumLights)
	optional := []struct {
		slotBinding
		count int
	}{
		{slotBinding{SlotMaterialIDs, src.MaterialIDs, typed(src.MaterialIDs, uint32(src.NumMaterialIDs), device.FormatR32Uint)}, src.NumMaterialIDs},
		{slotBinding{SlotMaterials, src.Materials, structured(src.Materials, uint32(src.NumMaterials), uint32(unsafe.Sizeof(asset.Material{})))}, src.NumMaterials},
		{slotBinding{SlotLightTriangles, src.LightTriangles, structured(src.LightTriangles, numLights, uint32(unsafe.Sizeof(lights.LightTriangle{})))}, src.NumLights},
		{slotBinding{SlotAliasProb, src.AliasProb, typed(src.AliasProb, numLights, device.FormatR32Float)}, src.NumLights},
		{slotBinding{SlotAliasIdx, src.AliasIdx, typed(src.AliasIdx, numLights, device.FormatR32Uint)}, src.NumLights},
	}
	for _, entry := range optional {
		if entry.count == 0 {
			views[entry.slot] = device.View{Kind: device.NullView}
			continue
		}
		required = append(required, entry.slotBinding)
	}

	for _, entry := range required {
		if entry.res == nil {
			return views, fmt.Errorf("%w: slot %d (%s)", ErrMissingBindingSource, entry.slot, SlotName(entry.slot))
		}
		views[entry.slot] = entry.view
	}

	return views, nil
}
