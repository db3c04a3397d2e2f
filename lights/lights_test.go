package lights

import (
	"bytes"
	"math"
	"math/rand"
	"os"
	"strings"
	"testing"
	"unsafe"

	"github.com/ML200/RoyalTracer-DX/accel"
	"github.com/ML200/RoyalTracer-DX/asset"
	"github.com/ML200/RoyalTracer-DX/geometry"
	"github.com/ML200/RoyalTracer-DX/log"
	"github.com/ML200/RoyalTracer-DX/tracer/device"
	"github.com/ML200/RoyalTracer-DX/tracer/device/emulated"
	"github.com/ML200/RoyalTracer-DX/types"
)

// A model with one right triangle per entry of emission. Each triangle has
// legs of the given size and uses its own material.
func emissiveModel(sizes []float32, emission []types.Vec3) *asset.Model {
	m := &asset.Model{Name: "lights.obj"}
	for i := range sizes {
		base := uint32(len(m.Vertices))
		z := float32(i)
		m.Vertices = append(m.Vertices,
			asset.Vertex{Position: types.XYZ(0, 0, z)},
			asset.Vertex{Position: types.XYZ(sizes[i], 0, z)},
			asset.Vertex{Position: types.XYZ(0, sizes[i], z)},
		)
		m.Indices = append(m.Indices, base, base+1, base+2)
		m.MaterialIDs = append(m.MaterialIDs, uint32(i), uint32(i), uint32(i))

		mat := asset.NewMaterial(types.XYZ(1, 1, 1))
		mat.Ke = emission[i].Vec4(0)
		m.Materials = append(m.Materials, mat)
	}
	return m
}

func setupLights(t *testing.T, models ...*asset.Model) (*geometry.Store, *accel.Arena) {
	dev := emulated.New("test")
	index := 0
	store := geometry.NewStore(dev, geometry.ImporterFunc(func(string) (*asset.Model, error) {
		m := models[index]
		index++
		return m, nil
	}))

	arena := accel.NewArena()
	for range models {
		h, err := store.AddModel("model.obj")
		if err != nil {
			t.Fatal(err)
		}
		arena.Add(h, types.Ident4())
	}
	arena.Seal()
	return store, arena
}

func TestLightTriangleSize(t *testing.T) {
	if size := unsafe.Sizeof(LightTriangle{}); size != 80 {
		t.Fatalf("expected light triangle record to be 80 bytes; got %d", size)
	}
}

func TestTriangleWeight(t *testing.T) {
	type spec struct {
		size     float32
		emission types.Vec3
		exp      float32
	}
	specs := []spec{
		{2, types.XYZ(3, 3, 3), 6},
		{1, types.XYZ(3, 0, 0), 0.5},
		{1, types.XYZ(0, 0, 0), 0},
	}

	for index, s := range specs {
		got := TriangleWeight(types.XYZ(0, 0, 0), types.XYZ(s.size, 0, 0), types.XYZ(0, s.size, 0), s.emission)
		if math.Abs(float64(got-s.exp)) > 1e-6 {
			t.Fatalf("[spec %d] expected weight %f; got %f", index, s.exp, got)
		}
	}
}

func TestEmptyScene(t *testing.T) {
	store, arena := setupLights(t)
	if arena.Len() != 0 {
		t.Fatalf("expected no instances; got %d", arena.Len())
	}

	tris, err := CollectEmissiveTriangles(arena, store, log.New("test"))
	if err != nil {
		t.Fatal(err)
	}
	if len(tris) != 0 {
		t.Fatalf("expected no emissive triangles; got %d", len(tris))
	}

	table := BuildAliasTable(tris)
	if len(table.Prob) != 0 || len(table.Alias) != 0 {
		t.Fatalf("expected empty alias arrays; got %d probabilities and %d aliases", len(table.Prob), len(table.Alias))
	}

	dev := emulated.New("test")
	cl := dev.CommandList()
	cl.Reset()
	if err = NewSampler(tris).Upload(dev, cl); err != nil {
		t.Fatal(err)
	}
	if dev.Allocated() != 0 {
		t.Fatalf("expected no device memory to be allocated; got %d bytes", dev.Allocated())
	}
}

func TestNoEmissiveTriangles(t *testing.T) {
	store, arena := setupLights(t, emissiveModel([]float32{1, 1}, []types.Vec3{{}, {}}))

	tris, err := CollectEmissiveTriangles(arena, store, log.New("test"))
	if err != nil {
		t.Fatal(err)
	}
	if len(tris) != 0 {
		t.Fatalf("expected no emissive triangles; got %d", len(tris))
	}

	sampler := NewSampler(tris)
	if sampler.Table.Len() != 0 {
		t.Fatalf("expected an empty alias table; got %d entries", sampler.Table.Len())
	}

	dev := emulated.New("test")
	cl := dev.CommandList()
	cl.Reset()
	if err = sampler.Upload(dev, cl); err != nil {
		t.Fatal(err)
	}
	if sampler.TriangleBuffer != nil || sampler.ProbBuffer != nil || sampler.AliasBuffer != nil {
		t.Fatal("expected no buffers to be allocated for an empty light list")
	}
	if dev.Allocated() != 0 {
		t.Fatalf("expected no device memory to be allocated; got %d bytes", dev.Allocated())
	}
}

func TestSingleTriangle(t *testing.T) {
	store, arena := setupLights(t, emissiveModel([]float32{1}, []types.Vec3{{2, 2, 2}}))

	tris, err := CollectEmissiveTriangles(arena, store, log.New("test"))
	if err != nil {
		t.Fatal(err)
	}
	if len(tris) != 1 {
		t.Fatalf("expected 1 emissive triangle; got %d", len(tris))
	}
	if tris[0].CDF != 1 || tris[0].Weight != 1 || tris[0].TriCount != 1 {
		t.Fatalf("expected cdf 1, weight 1 and count 1; got %f, %f and %d", tris[0].CDF, tris[0].Weight, tris[0].TriCount)
	}
	if tris[0].TotalWeight != 1 {
		t.Fatalf("expected total weight 1 (area 0.5 x emission 2); got %f", tris[0].TotalWeight)
	}

	table := BuildAliasTable(tris)
	if table.Prob[0] != 1 || table.Alias[0] != 0 {
		t.Fatalf("expected single entry to always be kept; got prob %f alias %d", table.Prob[0], table.Alias[0])
	}
	for _, u := range []float32{0, 0.5, 0.999} {
		if got := table.SampleUniform(u, u); got != 0 {
			t.Fatalf("expected sample 0; got %d", got)
		}
	}
}

func TestSortingAndCDF(t *testing.T) {
	emission := []types.Vec3{{1, 1, 1}, {0, 0, 0}, {3, 3, 3}, {1, 1, 1}, {2, 2, 2}}
	store, arena := setupLights(t, emissiveModel([]float32{1, 1, 1, 1, 1}, emission))

	tris, err := CollectEmissiveTriangles(arena, store, log.New("test"))
	if err != nil {
		t.Fatal(err)
	}
	if len(tris) != 4 {
		t.Fatalf("expected 4 emissive triangles; got %d", len(tris))
	}

	// Triangles are laid out along z; equal weights keep their encounter order.
	expZ := []float32{2, 4, 0, 3}
	for i, tri := range tris {
		if tri.X[2] != expZ[i] {
			t.Fatalf("expected triangle %d to be the one at z=%f; got z=%f", i, expZ[i], tri.X[2])
		}
		if i > 0 && tri.Weight > tris[i-1].Weight {
			t.Fatalf("expected weights to be sorted in descending order")
		}
		if i > 0 && tri.CDF < tris[i-1].CDF {
			t.Fatalf("expected cdf to be non-decreasing")
		}
	}
	if tris[len(tris)-1].CDF != 1 {
		t.Fatalf("expected last cdf entry to be exactly 1; got %v", tris[len(tris)-1].CDF)
	}
}

func TestCDFIsExactlyOneForManyTriangles(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	sizes := make([]float32, 1000)
	emission := make([]types.Vec3, len(sizes))
	for i := range sizes {
		sizes[i] = 0.01 + rng.Float32()
		emission[i] = types.XYZ(rng.Float32(), rng.Float32(), rng.Float32())
	}
	store, arena := setupLights(t, emissiveModel(sizes, emission))

	tris, err := CollectEmissiveTriangles(arena, store, log.New("test"))
	if err != nil {
		t.Fatal(err)
	}
	if tris[len(tris)-1].CDF != 1.0 {
		t.Fatalf("expected last cdf entry to be exactly 1; got %v", tris[len(tris)-1].CDF)
	}
}

func TestWorldSpacePositions(t *testing.T) {
	store, arena := setupLights(t, emissiveModel([]float32{1}, []types.Vec3{{1, 1, 1}}))
	if err := arena.SetTransform(0, types.Translate4(types.XYZ(10, 0, 0))); err != nil {
		t.Fatal(err)
	}

	tris, err := CollectEmissiveTriangles(arena, store, log.New("test"))
	if err != nil {
		t.Fatal(err)
	}
	if tris[0].X != types.XYZ(10, 0, 0) || tris[0].Y != types.XYZ(11, 0, 0) {
		t.Fatalf("expected world-space positions; got %v %v", tris[0].X, tris[0].Y)
	}
}

func TestConflictingMaterialIDsAreSkipped(t *testing.T) {
	var buf bytes.Buffer
	log.SetSink(&buf)
	defer log.SetSink(os.Stdout)

	model := emissiveModel([]float32{1, 1}, []types.Vec3{{1, 1, 1}, {1, 1, 1}})
	model.MaterialIDs[4] = 0
	store, arena := setupLights(t, model)

	tris, err := CollectEmissiveTriangles(arena, store, log.New("light sampler"))
	if err != nil {
		t.Fatal(err)
	}
	if len(tris) != 1 {
		t.Fatalf("expected 1 emissive triangle; got %d", len(tris))
	}
	if !strings.Contains(buf.String(), "conflicting material ids") {
		t.Fatalf("expected a warning about conflicting material ids; got %q", buf.String())
	}
}

// The probability of each entry implied by the alias table must match its
// weight.
func impliedProbabilities(table AliasTable) []float64 {
	n := table.Len()
	probs := make([]float64, n)
	for i := 0; i < n; i++ {
		probs[i] += float64(table.Prob[i]) / float64(n)
		probs[table.Alias[i]] += float64(1-table.Prob[i]) / float64(n)
	}
	return probs
}

func TestAliasTableReproducesWeights(t *testing.T) {
	type spec struct {
		weights []float32
	}
	specs := []spec{
		{[]float32{0.75, 0.25}},
		{[]float32{0.25, 0.25, 0.25, 0.25}},
		{[]float32{0.5, 0.3, 0.1, 0.05, 0.05}},
		{[]float32{0.97, 0.01, 0.01, 0.01}},
	}

	for index, s := range specs {
		table := BuildAliasTableFromWeights(s.weights)
		for i, p := range impliedProbabilities(table) {
			if math.Abs(p-float64(s.weights[i])) > 1e-5 {
				t.Fatalf("[spec %d] expected entry %d probability %f; got %f", index, i, s.weights[i], p)
			}
		}
		for i := range table.Prob {
			if table.Prob[i] < 0 || table.Prob[i] > 1 || int(table.Alias[i]) >= table.Len() {
				t.Fatalf("[spec %d] invalid entry %d: prob %f alias %d", index, i, table.Prob[i], table.Alias[i])
			}
		}
	}
}

func TestThreeToOneDistribution(t *testing.T) {
	store, arena := setupLights(t, emissiveModel([]float32{1, 1}, []types.Vec3{{1, 1, 1}, {3, 3, 3}}))

	tris, err := CollectEmissiveTriangles(arena, store, log.New("test"))
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(float64(tris[0].Weight)-0.75) > 1e-6 || math.Abs(float64(tris[1].Weight)-0.25) > 1e-6 {
		t.Fatalf("expected normalized weights 0.75 and 0.25; got %f and %f", tris[0].Weight, tris[1].Weight)
	}

	table := BuildAliasTable(tris)
	rng := rand.New(rand.NewSource(1))
	const numSamples = 100000
	counts := make([]int, 2)
	for i := 0; i < numSamples; i++ {
		counts[table.SampleUniform(rng.Float32(), rng.Float32())]++
	}

	freq := float64(counts[0]) / numSamples
	if math.Abs(freq-0.75) > 0.01 {
		t.Fatalf("expected the brighter triangle to be sampled 75%% of the time; got %f", freq)
	}
}

func TestAliasSamplingChiSquared(t *testing.T) {
	weights := []float32{1, 2, 3, 4, 5, 6, 7, 8}
	var total float32
	for _, w := range weights {
		total += w
	}
	for i := range weights {
		weights[i] /= total
	}

	table := BuildAliasTableFromWeights(weights)
	rng := rand.New(rand.NewSource(42))
	const numSamples = 200000
	counts := make([]float64, len(weights))
	for i := 0; i < numSamples; i++ {
		counts[table.SampleUniform(rng.Float32(), rng.Float32())]++
	}

	var chi2 float64
	for i, w := range weights {
		expected := float64(w) * numSamples
		chi2 += (counts[i] - expected) * (counts[i] - expected) / expected
	}

	// Critical value for 7 degrees of freedom at p = 0.001.
	if chi2 > 24.32 {
		t.Fatalf("chi-squared statistic %f exceeds critical value", chi2)
	}
}

func TestSamplerUpload(t *testing.T) {
	store, arena := setupLights(t, emissiveModel([]float32{1, 2}, []types.Vec3{{1, 1, 1}, {1, 1, 1}}))
	tris, err := CollectEmissiveTriangles(arena, store, log.New("test"))
	if err != nil {
		t.Fatal(err)
	}

	dev := emulated.New("test")
	defer dev.Close()

	sampler := NewSampler(tris)
	defer sampler.Release()

	cl := dev.CommandList()
	cl.Reset()
	if err = sampler.Upload(dev, cl); err != nil {
		t.Fatal(err)
	}
	cl.Close()
	if err = dev.Execute(cl); err != nil {
		t.Fatal(err)
	}
	sampler.ReleaseStaging()

	if sampler.TriangleBuffer.Size() != 2*80 {
		t.Fatalf("expected triangle buffer size 160; got %d", sampler.TriangleBuffer.Size())
	}

	raw := make([]byte, sampler.ProbBuffer.Size())
	if err = sampler.ProbBuffer.Read(0, raw); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(raw, device.SliceBytes(sampler.Table.Prob)) {
		t.Fatal("expected probability buffer to contain the alias table probabilities")
	}
	if state := sampler.AliasBuffer.(*emulated.Buffer).State(); state != device.StateGenericRead {
		t.Fatalf("expected alias buffer to be in state %s; got %s", device.StateGenericRead, state)
	}
}
