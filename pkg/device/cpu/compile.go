package cpu

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/blospray-dev/blospray/pkg/device"
)

var subtypes = map[device.Kind][]string{
	device.KindGeometry:         {"mesh", "sphere", "plane", "isosurface"},
	device.KindVolume:           {"structuredRegular"},
	device.KindTransferFunction: {"piecewiseLinear"},
	device.KindMaterial: {"obj", "principled", "glass", "thinGlass", "metal",
		"metallicPaint", "alloy", "carPaint", "luminous"},
	device.KindTexture:         {"texture2d", "volume"},
	device.KindGeometricModel:  {""},
	device.KindVolumetricModel: {""},
	device.KindGroup:           {""},
	device.KindInstance:        {""},
	device.KindLight:           {"ambient", "distant", "sphere", "spot", "quad", "sunSky"},
	device.KindCamera:          {"perspective", "orthographic", "panoramic"},
	device.KindRenderer:        {"scivis", "pathtracer"},
	device.KindWorld:           {""},
}

func validSubtype(kind device.Kind, subtype string) bool {
	for _, s := range subtypes[kind] {
		if s == subtype {
			return true
		}
	}
	return false
}

type meshData struct {
	positions []mgl32.Vec3
	normals   []mgl32.Vec3
	colors    []mgl32.Vec4
	index     []uint32
	bounds    aabb
	tree      *bvh
}

type sphereData struct {
	centers []mgl32.Vec3
	radii   []float32
	colors  []mgl32.Vec4
	bounds  aabb
	tree    *bvh
}

type planeData struct {
	coefficients []mgl32.Vec4
	bounds       *aabb
}

type isosurfaceData struct {
	volume    *gridData
	isovalues []float32
}

type gridData struct {
	dims       [3]int
	values     []float32
	origin     mgl32.Vec3
	spacing    mgl32.Vec3
	valueRange [2]float32
	bounds     aabb
}

type transferFunctionData struct {
	colors     []mgl32.Vec3
	opacity    []float32
	valueRange mgl32.Vec2
}

type materialData struct {
	// renderer is the renderer type the material was created for; empty
	// materials work with any renderer.
	renderer string
	albedo   mgl32.Vec3
	emission mgl32.Vec3
	reflect  float32
	rough    float32
	transmit bool
	texture  *object
}

type texture2DData struct {
	size [2]int
	data []mgl32.Vec4
}

type volumeTextureData struct {
	volume *gridData
	tf     *transferFunctionData
}

type geometricModelData struct {
	geometry *object
	material *object
	color    *mgl32.Vec4
}

type volumetricModelData struct {
	volume       *gridData
	tf           *transferFunctionData
	densityScale float32
	samplingRate float32
}

type groupData struct {
	models  []*object
	volumes []*object
}

type instanceData struct {
	group     *object
	transform mgl32.Mat4
}

type lightData struct {
	subtype   string
	color     mgl32.Vec3
	intensity float32
	direction mgl32.Vec3
	position  mgl32.Vec3
	radius    float32
	visible   bool
}

type cameraData struct {
	subtype       string
	position      mgl32.Vec3
	direction     mgl32.Vec3
	up            mgl32.Vec3
	fovy          float32
	aspect        float32
	height        float32
	nearClip      float32
	imageStart    mgl32.Vec2
	imageEnd      mgl32.Vec2
	focusDistance float32
	aperture      float32
}

type rendererData struct {
	subtype           string
	background        mgl32.Vec4
	backplate         *object
	aoSamples         int
	aoDistance        float32
	aoIntensity       float32
	maxPathLength     int
	minContribution   float32
	varianceThreshold float32
	shadows           bool
}

type worldData struct {
	instances []*object
	lights    []*object
}

// compile validates staged parameters and builds the committed value.
func compile(kind device.Kind, subtype string, p map[string]any) (any, error) {
	switch kind {
	case device.KindGeometry:
		return compileGeometry(subtype, p)
	case device.KindVolume:
		return compileGrid(p)
	case device.KindTransferFunction:
		return compileTransferFunction(p)
	case device.KindMaterial:
		return compileMaterial(subtype, p)
	case device.KindTexture:
		return compileTexture(subtype, p)
	case device.KindGeometricModel:
		return compileGeometricModel(p)
	case device.KindVolumetricModel:
		return compileVolumetricModel(p)
	case device.KindGroup:
		models, err := objectListParam(p, "geometry", device.KindGeometricModel)
		if err != nil {
			return nil, err
		}
		volumes, err := objectListParam(p, "volume", device.KindVolumetricModel)
		if err != nil {
			return nil, err
		}
		return &groupData{models: models, volumes: volumes}, nil
	case device.KindInstance:
		group, err := objectParam(p, "group", device.KindGroup, true)
		if err != nil {
			return nil, err
		}
		xfm, err := param(p, "transform", mgl32.Ident4())
		if err != nil {
			return nil, err
		}
		return &instanceData{group: group, transform: xfm}, nil
	case device.KindLight:
		return compileLight(subtype, p)
	case device.KindCamera:
		return compileCamera(subtype, p)
	case device.KindRenderer:
		return compileRenderer(subtype, p)
	case device.KindWorld:
		instances, err := objectListParam(p, "instance", device.KindInstance)
		if err != nil {
			return nil, err
		}
		lights, err := objectListParam(p, "light", device.KindLight)
		if err != nil {
			return nil, err
		}
		return &worldData{instances: instances, lights: lights}, nil
	case device.KindFrameBuffer:
		return struct{}{}, nil
	}
	return nil, fmt.Errorf("%w: %s", device.ErrUnknownSubtype, kind)
}

func compileGeometry(subtype string, p map[string]any) (any, error) {
	switch subtype {
	case "mesh":
		m := &meshData{}
		var err error
		if m.positions, err = param[[]mgl32.Vec3](p, "vertex.position", nil); err != nil {
			return nil, err
		}
		if m.normals, err = param[[]mgl32.Vec3](p, "vertex.normal", nil); err != nil {
			return nil, err
		}
		if m.colors, err = param[[]mgl32.Vec4](p, "vertex.color", nil); err != nil {
			return nil, err
		}
		if m.index, err = param[[]uint32](p, "index", nil); err != nil {
			return nil, err
		}
		if len(m.positions) == 0 || len(m.index) == 0 {
			return nil, fmt.Errorf("%w: mesh needs vertex.position and index", device.ErrMissingParam)
		}
		if len(m.index)%3 != 0 {
			return nil, fmt.Errorf("%w: index length %d is not a multiple of 3", device.ErrBadParameter, len(m.index))
		}
		if m.normals != nil && len(m.normals) != len(m.positions) {
			return nil, fmt.Errorf("%w: vertex.normal length", device.ErrBadParameter)
		}
		if m.colors != nil && len(m.colors) != len(m.positions) {
			return nil, fmt.Errorf("%w: vertex.color length", device.ErrBadParameter)
		}
		for _, i := range m.index {
			if int(i) >= len(m.positions) {
				return nil, fmt.Errorf("%w: index %d out of range", device.ErrBadParameter, i)
			}
		}
		m.bounds = emptyAABB()
		for _, v := range m.positions {
			m.bounds = m.bounds.extend(v)
		}
		m.tree = buildBVH(len(m.index)/3, func(i int) aabb {
			return emptyAABB().
				extend(m.positions[m.index[3*i]]).
				extend(m.positions[m.index[3*i+1]]).
				extend(m.positions[m.index[3*i+2]])
		})
		return m, nil

	case "sphere":
		s := &sphereData{}
		var err error
		if s.centers, err = param[[]mgl32.Vec3](p, "sphere.position", nil); err != nil {
			return nil, err
		}
		if len(s.centers) == 0 {
			return nil, fmt.Errorf("%w: sphere.position", device.ErrMissingParam)
		}
		radius, err := param(p, "radius", float32(0.01))
		if err != nil {
			return nil, err
		}
		if s.radii, err = param[[]float32](p, "sphere.radius", nil); err != nil {
			return nil, err
		}
		if s.radii == nil {
			s.radii = make([]float32, len(s.centers))
			for i := range s.radii {
				s.radii[i] = radius
			}
		}
		if len(s.radii) != len(s.centers) {
			return nil, fmt.Errorf("%w: sphere.radius length", device.ErrBadParameter)
		}
		if s.colors, err = param[[]mgl32.Vec4](p, "color", nil); err != nil {
			return nil, err
		}
		if s.colors != nil && len(s.colors) != len(s.centers) {
			return nil, fmt.Errorf("%w: color length", device.ErrBadParameter)
		}
		s.bounds = emptyAABB()
		for i, c := range s.centers {
			r := mgl32.Vec3{s.radii[i], s.radii[i], s.radii[i]}
			s.bounds = s.bounds.extend(c.Sub(r)).extend(c.Add(r))
		}
		s.tree = buildBVH(len(s.centers), func(i int) aabb {
			r := mgl32.Vec3{s.radii[i], s.radii[i], s.radii[i]}
			return aabb{min: s.centers[i].Sub(r), max: s.centers[i].Add(r)}
		})
		return s, nil

	case "plane":
		coeffs, err := param[[]mgl32.Vec4](p, "plane.coefficients", nil)
		if err != nil {
			return nil, err
		}
		if len(coeffs) == 0 {
			return nil, fmt.Errorf("%w: plane.coefficients", device.ErrMissingParam)
		}
		pd := &planeData{coefficients: coeffs}
		box, err := param[*[2]mgl32.Vec3](p, "plane.bounds", nil)
		if err != nil {
			return nil, err
		}
		if box != nil {
			pd.bounds = &aabb{min: box[0], max: box[1]}
		}
		return pd, nil

	case "isosurface":
		vol, err := objectParam(p, "volume", device.KindVolume, true)
		if err != nil {
			return nil, err
		}
		iso, err := param[[]float32](p, "isovalue", nil)
		if err != nil {
			return nil, err
		}
		if len(iso) == 0 {
			return nil, fmt.Errorf("%w: isovalue", device.ErrMissingParam)
		}
		return &isosurfaceData{volume: vol.snapshot().(*gridData), isovalues: iso}, nil
	}
	return nil, fmt.Errorf("%w: geometry %q", device.ErrUnknownSubtype, subtype)
}

func compileGrid(p map[string]any) (any, error) {
	g := &gridData{}
	var err error
	if g.dims, err = param(p, "dimensions", [3]int{}); err != nil {
		return nil, err
	}
	if g.values, err = param[[]float32](p, "data", nil); err != nil {
		return nil, err
	}
	if g.origin, err = param(p, "gridOrigin", mgl32.Vec3{}); err != nil {
		return nil, err
	}
	if g.spacing, err = param(p, "gridSpacing", mgl32.Vec3{1, 1, 1}); err != nil {
		return nil, err
	}
	n := g.dims[0] * g.dims[1] * g.dims[2]
	if g.dims[0] < 2 || g.dims[1] < 2 || g.dims[2] < 2 {
		return nil, fmt.Errorf("%w: dimensions %v", device.ErrBadParameter, g.dims)
	}
	if len(g.values) != n {
		return nil, fmt.Errorf("%w: data has %d values, dimensions need %d", device.ErrBadParameter, len(g.values), n)
	}
	g.valueRange = [2]float32{math32.Inf(1), math32.Inf(-1)}
	for _, v := range g.values {
		g.valueRange[0] = math32.Min(g.valueRange[0], v)
		g.valueRange[1] = math32.Max(g.valueRange[1], v)
	}
	extent := mgl32.Vec3{
		g.spacing[0] * float32(g.dims[0]-1),
		g.spacing[1] * float32(g.dims[1]-1),
		g.spacing[2] * float32(g.dims[2]-1),
	}
	g.bounds = aabb{min: g.origin, max: g.origin.Add(extent)}
	return g, nil
}

func compileTransferFunction(p map[string]any) (any, error) {
	tf := &transferFunctionData{}
	var err error
	if tf.colors, err = param[[]mgl32.Vec3](p, "color", nil); err != nil {
		return nil, err
	}
	if tf.opacity, err = param[[]float32](p, "opacity", nil); err != nil {
		return nil, err
	}
	if tf.valueRange, err = param(p, "valueRange", mgl32.Vec2{0, 1}); err != nil {
		return nil, err
	}
	if len(tf.colors) == 0 || len(tf.opacity) == 0 {
		return nil, fmt.Errorf("%w: transfer function needs color and opacity", device.ErrMissingParam)
	}
	return tf, nil
}

// metalReflectance converts complex refractive indices into normal
// incidence reflectance per channel.
func metalReflectance(eta, k mgl32.Vec3) mgl32.Vec3 {
	var r mgl32.Vec3
	for i := 0; i < 3; i++ {
		num := (eta[i]-1)*(eta[i]-1) + k[i]*k[i]
		den := (eta[i]+1)*(eta[i]+1) + k[i]*k[i]
		r[i] = num / den
	}
	return r
}

func compileMaterial(subtype string, p map[string]any) (any, error) {
	m := &materialData{albedo: mgl32.Vec3{0.8, 0.8, 0.8}}
	var err error
	vec := func(name string) (mgl32.Vec3, bool, error) {
		v, ok := p[name]
		if !ok {
			return mgl32.Vec3{}, false, nil
		}
		c, ok := v.(mgl32.Vec3)
		if !ok {
			return mgl32.Vec3{}, false, fmt.Errorf("%w: %q is %T", device.ErrBadParameter, name, v)
		}
		return c, true, nil
	}

	switch subtype {
	case "obj":
		if c, ok, err := vec("kd"); err != nil {
			return nil, err
		} else if ok {
			m.albedo = c
		}
		if ks, ok, err := vec("ks"); err != nil {
			return nil, err
		} else if ok {
			m.reflect = (ks[0] + ks[1] + ks[2]) / 3
		}
		ns, err := param(p, "ns", float32(10))
		if err != nil {
			return nil, err
		}
		m.rough = 1 / (1 + ns)

	case "principled", "carPaint", "metallicPaint":
		if c, ok, err := vec("baseColor"); err != nil {
			return nil, err
		} else if ok {
			m.albedo = c
		}
		metallic, err := param(p, "metallic", float32(0))
		if err != nil {
			return nil, err
		}
		m.reflect = metallic
		if m.rough, err = param(p, "roughness", float32(0.5)); err != nil {
			return nil, err
		}
		transmission, err := param(p, "transmission", float32(0))
		if err != nil {
			return nil, err
		}
		m.transmit = transmission > 0.5

	case "glass", "thinGlass":
		m.albedo = mgl32.Vec3{1, 1, 1}
		if c, ok, err := vec("attenuationColor"); err != nil {
			return nil, err
		} else if ok {
			m.albedo = c
		}
		m.transmit = true

	case "metal":
		eta, _, err := vec("eta")
		if err != nil {
			return nil, err
		}
		k, _, err := vec("k")
		if err != nil {
			return nil, err
		}
		m.albedo = metalReflectance(eta, k)
		m.reflect = 1
		if m.rough, err = param(p, "roughness", float32(0.1)); err != nil {
			return nil, err
		}

	case "alloy":
		if c, ok, err := vec("color"); err != nil {
			return nil, err
		} else if ok {
			m.albedo = c
		}
		m.reflect = 1
		if m.rough, err = param(p, "roughness", float32(0.1)); err != nil {
			return nil, err
		}

	case "luminous":
		c, ok, err := vec("color")
		if err != nil {
			return nil, err
		}
		if !ok {
			c = mgl32.Vec3{1, 1, 1}
		}
		intensity, err := param(p, "intensity", float32(1))
		if err != nil {
			return nil, err
		}
		m.albedo = mgl32.Vec3{}
		m.emission = c.Mul(intensity)

	default:
		return nil, fmt.Errorf("%w: material %q", device.ErrUnknownSubtype, subtype)
	}

	if m.texture, err = objectParam(p, "map_kd", device.KindTexture, false); err != nil {
		return nil, err
	}
	if m.renderer, err = param(p, "renderer", ""); err != nil {
		return nil, err
	}
	if m.renderer != "" && !validSubtype(device.KindRenderer, m.renderer) {
		return nil, fmt.Errorf("%w: material for renderer %q", device.ErrBadParameter, m.renderer)
	}
	return m, nil
}

func compileTexture(subtype string, p map[string]any) (any, error) {
	switch subtype {
	case "texture2d":
		t := &texture2DData{}
		var err error
		if t.size, err = param(p, "size", [2]int{}); err != nil {
			return nil, err
		}
		if t.data, err = param[[]mgl32.Vec4](p, "data", nil); err != nil {
			return nil, err
		}
		if t.size[0] < 1 || t.size[1] < 1 || len(t.data) != t.size[0]*t.size[1] {
			return nil, fmt.Errorf("%w: texture size %v with %d texels", device.ErrBadParameter, t.size, len(t.data))
		}
		return t, nil
	case "volume":
		vol, err := objectParam(p, "volume", device.KindVolume, true)
		if err != nil {
			return nil, err
		}
		tf, err := objectParam(p, "transferFunction", device.KindTransferFunction, true)
		if err != nil {
			return nil, err
		}
		return &volumeTextureData{
			volume: vol.snapshot().(*gridData),
			tf:     tf.snapshot().(*transferFunctionData),
		}, nil
	}
	return nil, fmt.Errorf("%w: texture %q", device.ErrUnknownSubtype, subtype)
}

func compileGeometricModel(p map[string]any) (any, error) {
	geom, err := objectParam(p, "geometry", device.KindGeometry, true)
	if err != nil {
		return nil, err
	}
	mat, err := objectParam(p, "material", device.KindMaterial, false)
	if err != nil {
		return nil, err
	}
	m := &geometricModelData{geometry: geom, material: mat}
	if c, ok := p["color"]; ok {
		v, ok := c.(mgl32.Vec4)
		if !ok {
			return nil, fmt.Errorf("%w: \"color\" is %T", device.ErrBadParameter, c)
		}
		m.color = &v
	}
	return m, nil
}

func compileVolumetricModel(p map[string]any) (any, error) {
	vol, err := objectParam(p, "volume", device.KindVolume, true)
	if err != nil {
		return nil, err
	}
	tf, err := objectParam(p, "transferFunction", device.KindTransferFunction, true)
	if err != nil {
		return nil, err
	}
	m := &volumetricModelData{
		volume: vol.snapshot().(*gridData),
		tf:     tf.snapshot().(*transferFunctionData),
	}
	if m.densityScale, err = param(p, "densityScale", float32(1)); err != nil {
		return nil, err
	}
	if m.samplingRate, err = param(p, "samplingRate", float32(1)); err != nil {
		return nil, err
	}
	if m.samplingRate <= 0 {
		m.samplingRate = 1
	}
	return m, nil
}

func compileLight(subtype string, p map[string]any) (any, error) {
	l := &lightData{subtype: subtype}
	var err error
	if l.color, err = param(p, "color", mgl32.Vec3{1, 1, 1}); err != nil {
		return nil, err
	}
	if l.intensity, err = param(p, "intensity", float32(1)); err != nil {
		return nil, err
	}
	if l.direction, err = param(p, "direction", mgl32.Vec3{0, 0, 1}); err != nil {
		return nil, err
	}
	if l.position, err = param(p, "position", mgl32.Vec3{}); err != nil {
		return nil, err
	}
	if l.radius, err = param(p, "radius", float32(0)); err != nil {
		return nil, err
	}
	if l.visible, err = param(p, "visible", true); err != nil {
		return nil, err
	}
	if l.direction.Len() > 0 {
		l.direction = l.direction.Normalize()
	}
	return l, nil
}

func compileCamera(subtype string, p map[string]any) (any, error) {
	c := &cameraData{subtype: subtype}
	var err error
	if c.position, err = param(p, "position", mgl32.Vec3{}); err != nil {
		return nil, err
	}
	if c.direction, err = param(p, "direction", mgl32.Vec3{0, 0, -1}); err != nil {
		return nil, err
	}
	if c.up, err = param(p, "up", mgl32.Vec3{0, 1, 0}); err != nil {
		return nil, err
	}
	if c.fovy, err = param(p, "fovy", float32(60)); err != nil {
		return nil, err
	}
	if c.aspect, err = param(p, "aspect", float32(1)); err != nil {
		return nil, err
	}
	if c.height, err = param(p, "height", float32(1)); err != nil {
		return nil, err
	}
	if c.nearClip, err = param(p, "nearClip", float32(1e-4)); err != nil {
		return nil, err
	}
	if c.imageStart, err = param(p, "imageStart", mgl32.Vec2{0, 0}); err != nil {
		return nil, err
	}
	if c.imageEnd, err = param(p, "imageEnd", mgl32.Vec2{1, 1}); err != nil {
		return nil, err
	}
	if c.focusDistance, err = param(p, "focusDistance", float32(0)); err != nil {
		return nil, err
	}
	if c.aperture, err = param(p, "apertureRadius", float32(0)); err != nil {
		return nil, err
	}
	if c.direction.Len() == 0 {
		return nil, fmt.Errorf("%w: zero camera direction", device.ErrBadParameter)
	}
	c.direction = c.direction.Normalize()
	return c, nil
}

func compileRenderer(subtype string, p map[string]any) (any, error) {
	r := &rendererData{subtype: subtype}
	var err error
	if r.background, err = param(p, "backgroundColor", mgl32.Vec4{0, 0, 0, 0}); err != nil {
		return nil, err
	}
	if r.backplate, err = objectParam(p, "backplate", device.KindTexture, false); err != nil {
		return nil, err
	}
	if r.aoSamples, err = param(p, "aoSamples", 0); err != nil {
		return nil, err
	}
	if r.aoDistance, err = param(p, "aoDistance", float32(1e20)); err != nil {
		return nil, err
	}
	if r.aoIntensity, err = param(p, "aoIntensity", float32(1)); err != nil {
		return nil, err
	}
	if r.maxPathLength, err = param(p, "maxPathLength", 5); err != nil {
		return nil, err
	}
	if r.minContribution, err = param(p, "minContribution", float32(0.001)); err != nil {
		return nil, err
	}
	if r.varianceThreshold, err = param(p, "varianceThreshold", float32(0)); err != nil {
		return nil, err
	}
	if r.shadows, err = param(p, "shadows", true); err != nil {
		return nil, err
	}
	return r, nil
}
