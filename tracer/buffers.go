package tracer

import (
	"fmt"
	"reflect"

	"github.com/ML200/RoyalTracer-DX/tracer/device"
	"github.com/ML200/RoyalTracer-DX/types"
)

// Size of per-pixel buffer elements in bytes.
const (
	sizeofDIReservoir = 48
	sizeofGIReservoir = 80
	sizeofSample      = 48
)

// Colour triplets uploaded to the per-instance constant buffers. Hit groups
// bind the first buffer.
var instanceColors = [3][3]types.Vec4{
	{{1, 0, 0, 1}, {1, 0.4, 0, 1}, {1, 0.7, 0, 1}},
	{{0, 1, 0, 1}, {0, 1, 0.4, 1}, {0, 1, 0.7, 1}},
	{{0, 0, 1, 1}, {0.4, 0, 1, 1}, {0.7, 0, 1, 1}},
}

type bufferSet struct {
	// Multi-layer output written by the dispatch stages.
	Output device.Texture

	// Accumulated data that survives between frames.
	Persistent device.Texture

	// The presented image; receives a copy of the selected output layer.
	RenderTarget device.Texture

	// Current and previous frame reservoirs.
	ReservoirsDI [2]device.Buffer
	ReservoirsGI [2]device.Buffer

	// Current and previous frame path samples.
	Samples [2]device.Buffer

	// Per-instance constant buffers.
	InstanceCBs [3]device.Buffer
}

// Allocate the constant buffers that do not depend on the frame dimensions.
func newBufferSet(dev device.Device) (*bufferSet, error) {
	bs := &bufferSet{}
	for index, colors := range instanceColors {
		buf, err := device.NewBufferWithData(dev, fmt.Sprintf("instanceCB%d", index), colors[:], device.ConstantBufferAlignment)
		if err != nil {
			bs.Release()
			return nil, err
		}
		bs.InstanceCBs[index] = buf
	}
	return bs, nil
}

// Release all buffers.
func (bs *bufferSet) Release() {
	reflVal := reflect.ValueOf(bs).Elem()
	for fieldIndex := 0; fieldIndex < reflVal.NumField(); fieldIndex++ {
		field := reflVal.Field(fieldIndex)
		switch field.Kind() {
		case reflect.Interface:
			releaseField(field)
		case reflect.Array:
			for index := 0; index < field.Len(); index++ {
				releaseField(field.Index(index))
			}
		}
	}
}

func releaseField(field reflect.Value) {
	if field.IsNil() {
		return
	}
	if res, ok := field.Interface().(device.Resource); ok {
		res.Release()
	}
	field.Set(reflect.Zero(field.Type()))
}

// Release the frame-sized resources and allocate them for the given frame
// dimensions.
func (bs *bufferSet) Resize(dev device.Device, frameW, frameH uint32) error {
	bs.releaseFrameResources()

	var err error
	bs.Output, err = dev.NewTexture(
		"output",
		device.TextureDesc{Width: frameW, Height: frameH, ArraySize: OutputLayers, Format: device.FormatRGBA8Unorm},
		device.StateCopySource,
	)
	if err != nil {
		return err
	}
	bs.Persistent, err = dev.NewTexture(
		"persistentData",
		device.TextureDesc{Width: frameW, Height: frameH, ArraySize: 1, Format: device.FormatRGBA32Float},
		device.StateUnorderedAccess,
	)
	if err != nil {
		return err
	}
	bs.RenderTarget, err = dev.NewTexture(
		"renderTarget",
		device.TextureDesc{Width: frameW, Height: frameH, ArraySize: 1, Format: device.FormatRGBA8Unorm},
		device.StatePresent,
	)
	if err != nil {
		return err
	}

	pixels := int(frameW) * int(frameH)
	perPixel := []struct {
		name   string
		stride int
		target *device.Buffer
	}{
		{"reservoirDI0", sizeofDIReservoir, &bs.ReservoirsDI[0]},
		{"reservoirDI1", sizeofDIReservoir, &bs.ReservoirsDI[1]},
		{"reservoirGI0", sizeofGIReservoir, &bs.ReservoirsGI[0]},
		{"reservoirGI1", sizeofGIReservoir, &bs.ReservoirsGI[1]},
		{"sampleCurrent", sizeofSample, &bs.Samples[0]},
		{"sampleLast", sizeofSample, &bs.Samples[1]},
	}
	for _, b := range perPixel {
		*b.target, err = dev.NewBuffer(b.name, pixels*b.stride, device.DefaultHeap, device.StateUnorderedAccess)
		if err != nil {
			return err
		}
	}

	return nil
}

func (bs *bufferSet) releaseFrameResources() {
	for _, tex := range []*device.Texture{&bs.Output, &bs.Persistent, &bs.RenderTarget} {
		if *tex != nil {
			(*tex).Release()
			*tex = nil
		}
	}
	for _, group := range []*[2]device.Buffer{&bs.ReservoirsDI, &bs.ReservoirsGI, &bs.Samples} {
		for index, buf := range group {
			if buf != nil {
				buf.Release()
				group[index] = nil
			}
		}
	}
}
