package tracer

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/ML200/RoyalTracer-DX/geometry"
	"github.com/ML200/RoyalTracer-DX/tracer/device"
	"github.com/olekukonko/tablewriter"
)

// Statistics about a loaded scene.
type SceneStats struct {
	Models            int
	Instances         int
	Triangles         int
	Materials         int
	EmissiveTriangles int
	Stages            int

	// Host-side data sizes in bytes.
	VertexBytes       int
	IndexBytes        int
	MaterialBytes     int
	MaterialIDBytes   int
	LightBytes        int
	InstanceBytes     int
	ShaderTableBytes  int
	FrameBufferBytes  int
	StructureBytes    int
	InstanceDescBytes int
}

// Statistics about the last rendered frame.
type FrameStats struct {
	Timings FrameTimings

	// Time spent executing the frame on the device.
	SubmitTime time.Duration

	// Total frame time including uploads.
	RenderTime time.Duration

	Layer  uint32
	Raster bool
}

type Stats struct {
	Scene     SceneStats
	Frames    uint64
	LastFrame FrameStats
}

func (tr *Tracer) sceneStats() SceneStats {
	st := SceneStats{
		Models:            len(tr.store.Models()),
		Instances:         tr.arena.Len(),
		Materials:         len(tr.store.Materials()),
		EmissiveTriangles: tr.sampler.Len(),
		Stages:            len(tr.opts.Passes.Stages()),
		MaterialBytes:     sizeOf(tr.store.Materials()),
		MaterialIDBytes:   sizeOf(tr.store.MaterialIDs()),
		LightBytes:        sizeOf(tr.sampler.Triangles, tr.sampler.Table.Prob, tr.sampler.Table.Alias),
		InstanceBytes:     sizeOf(tr.instances.Properties()),
		InstanceDescBytes: sizeOf(tr.structs.InstanceDescs()),
		ShaderTableBytes:  int(tr.sbt.Size()),
	}
	for index, model := range tr.store.Models() {
		st.Triangles += model.TriangleCount()
		st.VertexBytes += sizeOf(model.Vertices)
		st.IndexBytes += sizeOf(model.Indices)
		if blas := tr.structs.BottomLevel(geometry.ModelHandle(index)); blas != nil {
			st.StructureBytes += blas.Result.Size()
		}
	}
	if tlas := tr.structs.TopLevel(); tlas.Result != nil {
		st.StructureBytes += tlas.Result.Size()
	}
	for _, res := range []device.Resource{tr.buffers.Output, tr.buffers.Persistent, tr.buffers.RenderTarget} {
		st.FrameBufferBytes += res.Size()
	}
	for _, group := range [][2]device.Resource{
		{tr.buffers.ReservoirsDI[0], tr.buffers.ReservoirsDI[1]},
		{tr.buffers.ReservoirsGI[0], tr.buffers.ReservoirsGI[1]},
		{tr.buffers.Samples[0], tr.buffers.Samples[1]},
	} {
		st.FrameBufferBytes += group[0].Size() + group[1].Size()
	}
	return st
}

// Build a tabular representation of scene statistics.
func (st SceneStats) Table() string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Asset Type", "Asset", "Count", "Size"})
	table.Append([]string{"Geometry", "Models", fmt.Sprint(st.Models), fmtBytes(st.VertexBytes + st.IndexBytes)})
	table.Append([]string{"", "Triangles", fmt.Sprint(st.Triangles), fmtBytes(st.IndexBytes)})
	table.Append([]string{"", "Structures", "---", fmtBytes(st.StructureBytes)})
	table.Append([]string{" ", " ", " ", " "})
	table.Append([]string{"Instances", "Descriptors", fmt.Sprint(st.Instances), fmtBytes(st.InstanceDescBytes)})
	table.Append([]string{"", "Properties", fmt.Sprint(st.Instances), fmtBytes(st.InstanceBytes)})
	table.Append([]string{" ", " ", " ", " "})
	table.Append([]string{"Materials", "Mat. nodes", fmt.Sprint(st.Materials), fmtBytes(st.MaterialBytes)})
	table.Append([]string{"", "Mat. indices", "---", fmtBytes(st.MaterialIDBytes)})
	table.Append([]string{" ", " ", " ", " "})
	table.Append([]string{"Lights", "Emissives", fmt.Sprint(st.EmissiveTriangles), fmtBytes(st.LightBytes)})
	table.Append([]string{" ", " ", " ", " "})
	table.Append([]string{"Pipeline", "Stages", fmt.Sprint(st.Stages), fmtBytes(st.ShaderTableBytes)})
	table.Append([]string{"", "Frame buffers", "---", fmtBytes(st.FrameBufferBytes)})
	table.SetFooter([]string{"Total", " ", " ", strings.TrimLeft(fmtBytes(
		st.VertexBytes+st.IndexBytes+st.StructureBytes+st.InstanceDescBytes+st.InstanceBytes+
			st.MaterialBytes+st.MaterialIDBytes+st.LightBytes+st.ShaderTableBytes+st.FrameBufferBytes,
	), " ")})

	table.Render()
	return buf.String()
}

// Sum the total space used by a set of slices.
func sizeOf(items ...interface{}) int {
	total := 0
	for _, item := range items {
		v := reflect.ValueOf(item)
		if v.Kind() != reflect.Slice || v.Len() == 0 {
			continue
		}
		total += int(v.Type().Elem().Size()) * v.Len()
	}
	return total
}

// Format a byte count with the appropriate byte/kb/mb unit.
func fmtBytes(totalBytes int) string {
	switch {
	case totalBytes < 1e3:
		return fmt.Sprintf("%3d bytes", totalBytes)
	case totalBytes < 1e6:
		return fmt.Sprintf("%3.1f kb", float32(totalBytes)/1e3)
	}
	return fmt.Sprintf("%3.1f mb", float32(totalBytes)/1e6)
}
