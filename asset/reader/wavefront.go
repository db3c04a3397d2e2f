package reader

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ML200/RoyalTracer-DX/asset"
	"github.com/ML200/RoyalTracer-DX/log"
	"github.com/ML200/RoyalTracer-DX/types"
)

// Name of the material assigned to faces that precede any usemtl directive.
const defaultMaterialName = ""

// Wavefront reads OBJ models and their MTL material libraries into indexed
// triangle meshes. A Wavefront reader holds no parse state and may be used
// concurrently.
type Wavefront struct {
	logger log.Logger
}

// Create a new wavefront model reader.
func NewWavefront() *Wavefront {
	return &Wavefront{
		logger: log.New("wavefront reader"),
	}
}

// Read a model definition.
func (w *Wavefront) Read(res *asset.Resource) (*asset.Model, error) {
	w.logger.Infof(`parsing model from "%s"`, res.Path())
	start := time.Now()

	p := &wavefrontParser{
		logger:         w.logger,
		model:          &asset.Model{Name: res.Name()},
		matNameToIndex: make(map[string]int),
		vertexIndex:    make(map[asset.Vertex]uint32),
	}
	if err := p.parse(res); err != nil {
		return nil, err
	}

	if err := p.model.Validate(); err != nil {
		return nil, err
	}

	w.logger.Infof(
		"parsed %q in %d ms: %d vertices, %d triangles, %d materials",
		p.model.Name, time.Since(start).Nanoseconds()/1e6,
		len(p.model.Vertices), p.model.TriangleCount(), len(p.model.Materials),
	)
	return p.model, nil
}

type wavefrontParser struct {
	logger log.Logger

	model *asset.Model

	// Material name to model-local material index.
	matNameToIndex map[string]int
	curMaterial    int
	hasMaterial    bool

	// Raw coordinate lists.
	vertexList []types.Vec3
	normalList []types.Vec3
	uvList     []types.Vec2

	// Unique vertices emitted so far.
	vertexIndex map[asset.Vertex]uint32

	// Additional context for errors raised inside included files.
	errStack []string
}

// Generate an error message that also includes any data in the error stack.
func (p *wavefrontParser) emitError(file string, line int, msgFormat string, args ...interface{}) error {
	msg := fmt.Sprintf(msgFormat, args...)
	return errors.New(strings.Trim(
		fmt.Sprintf("[%s: %d] error: %s\n%s", file, line, msg, strings.Join(p.errStack, "\n")),
		"\n",
	))
}

func (p *wavefrontParser) pushFrame(msg string) {
	p.errStack = append([]string{msg}, p.errStack...)
}

func (p *wavefrontParser) popFrame() {
	p.errStack = p.errStack[1:]
}

// Select the default material, creating it on first use.
func (p *wavefrontParser) selectDefaultMaterial() {
	index, exists := p.matNameToIndex[defaultMaterialName]
	if !exists {
		p.model.Materials = append(p.model.Materials, asset.NewMaterial(types.XYZ(0.7, 0.7, 0.7)))
		index = len(p.model.Materials) - 1
		p.matNameToIndex[defaultMaterialName] = index
	}
	p.curMaterial = index
	p.hasMaterial = true
}

func (p *wavefrontParser) parse(res *asset.Resource) error {
	lineNum := 0

	// Included files use 1-based indices relative to their own coordinates.
	relVertexOffset := len(p.vertexList)
	relUvOffset := len(p.uvList)
	relNormalOffset := len(p.normalList)

	scanner := bufio.NewScanner(res)
	for scanner.Scan() {
		lineNum++
		lineTokens := strings.Fields(scanner.Text())
		if len(lineTokens) == 0 || strings.HasPrefix(lineTokens[0], "#") {
			continue
		}

		switch lineTokens[0] {
		case "call", "mtllib":
			if len(lineTokens) != 2 {
				return p.emitError(res.Path(), lineNum, `unsupported syntax for "%s"; expected 1 argument; got %d`, lineTokens[0], len(lineTokens)-1)
			}

			p.pushFrame(fmt.Sprintf("referenced from %s:%d [%s]", res.Path(), lineNum, lineTokens[0]))
			incRes, err := asset.NewResource(lineTokens[1], res)
			if err != nil {
				return p.emitError(res.Path(), lineNum, err.Error())
			}

			if lineTokens[0] == "call" {
				err = p.parse(incRes)
			} else {
				err = p.parseMaterials(incRes)
			}
			incRes.Close()
			if err != nil {
				return err
			}
			p.popFrame()
		case "usemtl":
			if len(lineTokens) != 2 {
				return p.emitError(res.Path(), lineNum, `unsupported syntax for "usemtl"; expected 1 argument; got %d`, len(lineTokens)-1)
			}

			index, exists := p.matNameToIndex[lineTokens[1]]
			if !exists {
				return p.emitError(res.Path(), lineNum, `undefined material with name "%s"`, lineTokens[1])
			}
			p.curMaterial = index
			p.hasMaterial = true
		case "v":
			v, err := parseVec3(lineTokens)
			if err != nil {
				return p.emitError(res.Path(), lineNum, err.Error())
			}
			p.vertexList = append(p.vertexList, v)
		case "vn":
			v, err := parseVec3(lineTokens)
			if err != nil {
				return p.emitError(res.Path(), lineNum, err.Error())
			}
			p.normalList = append(p.normalList, v)
		case "vt":
			v, err := parseVec2(lineTokens)
			if err != nil {
				return p.emitError(res.Path(), lineNum, err.Error())
			}
			p.uvList = append(p.uvList, v)
		case "f":
			if err := p.parseFace(lineTokens, relVertexOffset, relUvOffset, relNormalOffset); err != nil {
				return p.emitError(res.Path(), lineNum, err.Error())
			}
		case "g", "o", "s":
			// Grouping is irrelevant for a single mesh.
		default:
			p.logger.Debugf("[%s: %d] ignoring unsupported directive %q", res.Path(), lineNum, lineTokens[0])
		}
	}

	if err := scanner.Err(); err != nil {
		return p.emitError(res.Path(), lineNum, err.Error())
	}
	return nil
}

// Parse a face definition. Each face argument has one of the formats:
// - vertexIndex
// - vertexIndex/uvIndex
// - vertexIndex//normalIndex
// - vertexIndex/uvIndex/normalIndex
//
// Indices start from 1 and may be negative to indicate an offset off the end
// of the coordinate list. Polygons with more than three vertices are
// triangulated as a fan.
func (p *wavefrontParser) parseFace(lineTokens []string, relVertexOffset, relUvOffset, relNormalOffset int) error {
	if len(lineTokens) < 4 {
		return fmt.Errorf(`unsupported syntax for "f"; expected at least 3 arguments; got %d`, len(lineTokens)-1)
	}

	numCorners := len(lineTokens) - 1
	corners := make([]asset.Vertex, numCorners)
	expIndices := 0
	hasNormals := false
	for arg := 0; arg < numCorners; arg++ {
		vTokens := strings.Split(lineTokens[arg+1], "/")

		// The first arg defines the format for the following args
		if arg == 0 {
			expIndices = len(vTokens)
		} else if len(vTokens) != expIndices {
			return fmt.Errorf("expected each face argument to contain %d indices; arg %d contains %d indices", expIndices, arg, len(vTokens))
		}

		if vTokens[0] == "" {
			return fmt.Errorf("face argument %d does not include a vertex index", arg)
		}

		offset, err := selectFaceCoordIndex(vTokens[0], len(p.vertexList), relVertexOffset)
		if err != nil {
			return fmt.Errorf("could not parse vertex coord for face argument %d: %s", arg, err.Error())
		}
		corners[arg].Position = p.vertexList[offset]

		if expIndices > 1 && vTokens[1] != "" {
			offset, err = selectFaceCoordIndex(vTokens[1], len(p.uvList), relUvOffset)
			if err != nil {
				return fmt.Errorf("could not parse tex coord for face argument %d: %s", arg, err.Error())
			}
			corners[arg].UV = p.uvList[offset]
		}

		if expIndices > 2 && vTokens[2] != "" {
			offset, err = selectFaceCoordIndex(vTokens[2], len(p.normalList), relNormalOffset)
			if err != nil {
				return fmt.Errorf("could not parse normal coord for face argument %d: %s", arg, err.Error())
			}
			corners[arg].Normal = p.normalList[offset]
			hasNormals = true
		}
	}

	if !p.hasMaterial {
		p.selectDefaultMaterial()
	}

	// Generate a flat normal when the face does not define any
	if !hasNormals {
		e01 := corners[1].Position.Sub(corners[0].Position)
		e02 := corners[2].Position.Sub(corners[0].Position)
		faceNormal := e01.Cross(e02).Normalize()
		for i := range corners {
			corners[i].Normal = faceNormal
		}
	}

	for i := 1; i+1 < numCorners; i++ {
		for _, corner := range [3]int{0, i, i + 1} {
			p.model.Indices = append(p.model.Indices, p.emitVertex(corners[corner]))
			p.model.MaterialIDs = append(p.model.MaterialIDs, uint32(p.curMaterial))
		}
	}
	return nil
}

// Get the index of a vertex, appending it if it has not been seen before.
func (p *wavefrontParser) emitVertex(v asset.Vertex) uint32 {
	if index, exists := p.vertexIndex[v]; exists {
		return index
	}
	index := uint32(len(p.model.Vertices))
	p.model.Vertices = append(p.model.Vertices, v)
	p.vertexIndex[v] = index
	return index
}

// Parse a wavefront material library.
func (p *wavefrontParser) parseMaterials(res *asset.Resource) error {
	lineNum := 0
	var err error

	p.logger.Infof(`parsing material library "%s"`, res.Path())

	var curMaterial *asset.Material
	flush := func() {
		if curMaterial != nil {
			curMaterial.ComputeAlbedoLUT()
		}
	}

	scanner := bufio.NewScanner(res)
	for scanner.Scan() {
		lineNum++
		lineTokens := strings.Fields(scanner.Text())
		if len(lineTokens) == 0 || strings.HasPrefix(lineTokens[0], "#") {
			continue
		}

		if lineTokens[0] == "newmtl" {
			if len(lineTokens) != 2 {
				return p.emitError(res.Path(), lineNum, `unsupported syntax for "newmtl"; expected 1 argument; got %d`, len(lineTokens)-1)
			}

			matName := lineTokens[1]
			if _, exists := p.matNameToIndex[matName]; exists {
				return p.emitError(res.Path(), lineNum, `material "%s" already defined`, matName)
			}

			flush()
			p.model.Materials = append(p.model.Materials, asset.NewMaterial(types.Vec3{}))
			p.matNameToIndex[matName] = len(p.model.Materials) - 1
			curMaterial = &p.model.Materials[len(p.model.Materials)-1]
			continue
		}

		if curMaterial == nil {
			return p.emitError(res.Path(), lineNum, `got "%s" without a "newmtl"`, lineTokens[0])
		}

		var v types.Vec3
		switch lineTokens[0] {
		case "include":
			if len(lineTokens) < 2 {
				return p.emitError(res.Path(), lineNum, `unsupported syntax for "%s"; expected 1 argument; got %d`, lineTokens[0], len(lineTokens)-1)
			}
			baseIndex, exists := p.matNameToIndex[lineTokens[1]]
			if !exists {
				return p.emitError(res.Path(), lineNum, `could not include unknown material "%s"`, lineTokens[1])
			}
			*curMaterial = p.model.Materials[baseIndex]
		case "Kd":
			if v, err = parseVec3(lineTokens); err == nil {
				curMaterial.Kd = v.Vec4(curMaterial.Kd[3])
			}
		case "Ks":
			if v, err = parseVec3(lineTokens); err == nil {
				curMaterial.Ks = v.Vec4(0)
			}
		case "Ke":
			if v, err = parseVec3(lineTokens); err == nil {
				curMaterial.Ke = v.Vec4(0)
			}
		case "d":
			curMaterial.Kd[3], err = parseFloat32(lineTokens)
		case "Ni":
			curMaterial.Ni, err = parseFloat32(lineTokens)
		case "Pr":
			curMaterial.Roughness, err = parseFloat32(lineTokens)
		case "Pm":
			curMaterial.Metallic, err = parseFloat32(lineTokens)
		case "Ps":
			curMaterial.Sheen, err = parseFloat32(lineTokens)
		case "Pc":
			curMaterial.Clearcoat, err = parseFloat32(lineTokens)
		case "Pcr":
			curMaterial.ClearcoatRoughness, err = parseFloat32(lineTokens)
		case "aniso":
			curMaterial.Anisotropy, err = parseFloat32(lineTokens)
		case "anisor":
			curMaterial.AnisotropyRotation, err = parseFloat32(lineTokens)
		default:
			p.logger.Debugf("[%s: %d] ignoring unsupported material directive %q", res.Path(), lineNum, lineTokens[0])
		}

		if err != nil {
			return p.emitError(res.Path(), lineNum, err.Error())
		}
	}
	flush()

	if err = scanner.Err(); err != nil {
		return p.emitError(res.Path(), lineNum, err.Error())
	}
	return nil
}

// Given an index for a face coord type (vertex, normal, tex) calculate the
// proper offset into the coord list. Negative indices reference elements from
// the end of the coord list.
func selectFaceCoordIndex(indexToken string, coordListLen int, relOffset int) (int, error) {
	index, err := strconv.ParseInt(indexToken, 10, 32)
	if err != nil {
		return -1, err
	}

	var offset int
	if index < 0 {
		offset = coordListLen + int(index)
	} else {
		offset = relOffset + int(index-1)
	}
	if offset < 0 || offset >= coordListLen {
		return -1, fmt.Errorf("index out of bounds")
	}
	return offset, nil
}

// Parse a float scalar value.
func parseFloat32(lineTokens []string) (float32, error) {
	if len(lineTokens) < 2 {
		return 0, fmt.Errorf(`unsupported syntax for "%s"; expected 1 argument; got %d`, lineTokens[0], len(lineTokens)-1)
	}

	val, err := strconv.ParseFloat(lineTokens[1], 32)
	if err != nil {
		return 0, err
	}
	return float32(val), nil
}

// Parse a Vec3 row.
func parseVec3(lineTokens []string) (types.Vec3, error) {
	if len(lineTokens) < 4 {
		return types.Vec3{}, fmt.Errorf(`unsupported syntax for "%s"; expected 3 arguments; got %d`, lineTokens[0], len(lineTokens)-1)
	}

	v := types.Vec3{}
	for tokIdx := 1; tokIdx <= 3; tokIdx++ {
		coord, err := strconv.ParseFloat(lineTokens[tokIdx], 32)
		if err != nil {
			return v, err
		}
		v[tokIdx-1] = float32(coord)
	}
	return v, nil
}

// Parse a Vec2 row. A third texture coordinate is ignored.
func parseVec2(lineTokens []string) (types.Vec2, error) {
	if len(lineTokens) < 3 {
		return types.Vec2{}, fmt.Errorf(`unsupported syntax for "%s"; expected 2 arguments; got %d`, lineTokens[0], len(lineTokens)-1)
	}

	v := types.Vec2{}
	for tokIdx := 1; tokIdx <= 2; tokIdx++ {
		coord, err := strconv.ParseFloat(lineTokens[tokIdx], 32)
		if err != nil {
			return v, err
		}
		v[tokIdx-1] = float32(coord)
	}
	return v, nil
}
