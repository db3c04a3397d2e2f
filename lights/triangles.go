// Package lights selects emissive triangles for next-event estimation. The
// scene's emissive triangles are weighted by area and emitted power and
// sampled in constant time through a Walker alias table.
package lights

import (
	"sort"
	"time"

	"github.com/ML200/RoyalTracer-DX/accel"
	"github.com/ML200/RoyalTracer-DX/geometry"
	"github.com/ML200/RoyalTracer-DX/log"
	"github.com/ML200/RoyalTracer-DX/types"
)

// LightTriangle is the 80-byte device record of an emissive triangle.
type LightTriangle struct {
	X   types.Vec3
	CDF float32

	Y          types.Vec3
	InstanceID uint32

	Z      types.Vec3
	Weight float32

	Emission types.Vec3
	TriCount uint32

	TotalWeight float32
	_           [3]float32
}

// Calculate the unnormalized sampling weight of a triangle: its area
// multiplied by the average emitted radiance.
func TriangleWeight(v0, v1, v2, emission types.Vec3) float32 {
	return types.TriangleArea(v0, v1, v2) * emission.Sum() / 3
}

// CollectEmissiveTriangles scans every instance for triangles with an
// emissive material and returns them sorted by descending weight with
// normalized weights and a cumulative distribution. Triangles whose corners
// disagree on their material are skipped.
func CollectEmissiveTriangles(arena *accel.Arena, store *geometry.Store, logger log.Logger) ([]LightTriangle, error) {
	start := time.Now()
	materials := store.Materials()
	materialIDs := store.MaterialIDs()

	var tris []LightTriangle
	var totalWeight float32
	skipped := 0
	for _, h := range arena.Handles() {
		binding, err := arena.Resolve(h)
		if err != nil {
			return nil, err
		}
		model, err := store.Model(binding.Model)
		if err != nil {
			return nil, err
		}

		for tri := 0; tri < model.TriangleCount(); tri++ {
			base := int(model.MaterialIDOffset) + tri*3
			matID := materialIDs[base]
			if materialIDs[base+1] != matID || materialIDs[base+2] != matID {
				logger.Warningf(
					"instance %d (%s): skipping triangle %d with conflicting material ids %v",
					h, model.Name, tri, materialIDs[base:base+3],
				)
				skipped++
				continue
			}
			if int(matID) >= len(materials) {
				logger.Warningf("instance %d (%s): skipping triangle %d with unknown material id %d", h, model.Name, tri, matID)
				skipped++
				continue
			}

			emission := materials[matID].Ke.Vec3()
			if emission.Sum() <= 0 {
				continue
			}

			v0, v1, v2 := model.Triangle(tri)
			weight := TriangleWeight(v0, v1, v2, emission)
			if weight <= 0 {
				continue
			}

			tris = append(tris, LightTriangle{
				X:          binding.Transform.TransformPoint(v0),
				Y:          binding.Transform.TransformPoint(v1),
				Z:          binding.Transform.TransformPoint(v2),
				InstanceID: binding.InstanceID,
				Weight:     weight,
				Emission:   emission,
			})
			totalWeight += weight
		}
	}

	// Ties keep their encounter order so that sampling is reproducible.
	sort.SliceStable(tris, func(i, j int) bool {
		return tris[i].Weight > tris[j].Weight
	})

	var cdf float32
	for i := range tris {
		tris[i].Weight /= totalWeight
		cdf += tris[i].Weight
		tris[i].CDF = cdf
		tris[i].TotalWeight = totalWeight
		tris[i].TriCount = uint32(len(tris))
	}
	if len(tris) > 0 {
		tris[len(tris)-1].CDF = 1
	}

	logger.Noticef(
		"collected %d emissive triangles (%d skipped) with total weight %f in %d ms",
		len(tris), skipped, totalWeight, time.Since(start).Nanoseconds()/1e6,
	)
	return tris, nil
}
