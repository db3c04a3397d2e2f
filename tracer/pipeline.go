package tracer

import (
	"path/filepath"

	"github.com/ML200/RoyalTracer-DX/tracer/device"
)

// Shader exports shared by all pass lists.
const (
	MissExport             = "Miss"
	ShadowMissExport       = "ShadowMiss"
	ClosestHitExport       = "ClosestHit"
	ShadowClosestHitExport = "ShadowClosestHit"

	HitGroupExport       = "HitGroup"
	ShadowHitGroupExport = "ShadowHitGroup"
)

// Shader libraries shared by all pass lists.
const (
	missLibrary   = "Miss_v6.hlsl"
	shadowLibrary = "ShadowRay.hlsl"
	hitLibrary    = "Hit_v7.hlsl"
)

// Pipeline limits.
const (
	maxPayloadSize    = 40
	maxAttributeSize  = 8
	maxRecursionDepth = 2
)

// Describe the ray-tracing pipeline for a pass list. Each stage is compiled
// from its own library and exports a ray-generation symbol named after the
// library file.
func NewPipelineDesc(passes PassList, shaderDir string) device.PipelineDesc {
	var desc device.PipelineDesc

	for _, stage := range passes.Stages() {
		desc.Libraries = append(desc.Libraries, device.Library{
			Path:    filepath.Join(shaderDir, stage.Path),
			Exports: []string{stage.Name},
		})
	}
	desc.Libraries = append(desc.Libraries,
		device.Library{Path: filepath.Join(shaderDir, missLibrary), Exports: []string{MissExport}},
		device.Library{Path: filepath.Join(shaderDir, shadowLibrary), Exports: []string{ShadowClosestHitExport, ShadowMissExport}},
		device.Library{Path: filepath.Join(shaderDir, hitLibrary), Exports: []string{ClosestHitExport}},
	)

	desc.HitGroups = []device.HitGroup{
		{Name: HitGroupExport, ClosestHit: ClosestHitExport},
		{Name: ShadowHitGroupExport, ClosestHit: ShadowClosestHitExport},
	}

	desc.MaxPayloadSize = maxPayloadSize
	desc.MaxAttributeSize = maxAttributeSize
	desc.MaxRecursionDepth = maxRecursionDepth
	return desc
}
