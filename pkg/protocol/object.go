package protocol

// PluginType is the kind of a plugin instance.
type PluginType uint32

const (
	PluginGeometry PluginType = iota
	PluginVolume
	PluginScene
)

// String returns the plugin kind name used in module file names.
func (t PluginType) String() string {
	switch t {
	case PluginGeometry:
		return "geometry"
	case PluginVolume:
		return "volume"
	case PluginScene:
		return "scene"
	default:
		return "unknown"
	}
}

// UpdatePluginInstance follows UPDATE_PLUGIN_INSTANCE. Parameters and
// properties are JSON objects serialized as strings.
type UpdatePluginInstance struct {
	Type             PluginType
	Name             string
	PluginName       string
	PluginParameters string
	CustomProperties string
}

// EncodeTo implements Message.
func (m *UpdatePluginInstance) EncodeTo(e *Encoder) {
	e.WriteUint32(uint32(m.Type))
	e.WriteString(m.Name)
	e.WriteString(m.PluginName)
	e.WriteString(m.PluginParameters)
	e.WriteString(m.CustomProperties)
}

// DecodeFrom implements Message.
func (m *UpdatePluginInstance) DecodeFrom(d *Decoder) error {
	r := reader{d: d}
	m.Type = PluginType(r.u32())
	m.Name = r.str()
	m.PluginName = r.str()
	m.PluginParameters = r.str()
	m.CustomProperties = r.str()
	return r.err
}

// ObjectType is the variant of a scene object.
type ObjectType uint32

const (
	ObjectMesh ObjectType = iota
	ObjectGeometry
	ObjectScene
	ObjectVolume
	ObjectIsosurfaces
	ObjectSlices
	ObjectLight
)

// String returns the name of the object type.
func (t ObjectType) String() string {
	switch t {
	case ObjectMesh:
		return "mesh"
	case ObjectGeometry:
		return "geometry"
	case ObjectScene:
		return "scene"
	case ObjectVolume:
		return "volume"
	case ObjectIsosurfaces:
		return "isosurfaces"
	case ObjectSlices:
		return "slices"
	case ObjectLight:
		return "light"
	default:
		return "unknown"
	}
}

// UpdateObject follows UPDATE_OBJECT. Volume and isosurfaces objects are
// followed by VolumeSettings, slices by SlicesSettings and lights by
// LightSettings.
type UpdateObject struct {
	Type          ObjectType
	Name          string
	DataLink      string
	ObjectToWorld [16]float32 // column-major
	MaterialLink  string

	// CustomProperties is a JSON object serialized as string.
	CustomProperties string
}

// EncodeTo implements Message.
func (m *UpdateObject) EncodeTo(e *Encoder) {
	e.WriteUint32(uint32(m.Type))
	e.WriteString(m.Name)
	e.WriteString(m.DataLink)
	for _, f := range m.ObjectToWorld {
		e.WriteFloat32(f)
	}
	e.WriteString(m.MaterialLink)
	e.WriteString(m.CustomProperties)
}

// DecodeFrom implements Message.
func (m *UpdateObject) DecodeFrom(d *Decoder) error {
	r := reader{d: d}
	m.Type = ObjectType(r.u32())
	m.Name = r.str()
	m.DataLink = r.str()
	for i := range m.ObjectToWorld {
		m.ObjectToWorld[i] = r.f32()
	}
	m.MaterialLink = r.str()
	m.CustomProperties = r.str()
	return r.err
}

// TransferFunction is a list of user color stops. Colors are flat RGB.
// Alphas is optional; when empty opacity ramps linearly.
type TransferFunction struct {
	Positions []float32
	Colors    []float32
	Alphas    []float32
}

func (tf *TransferFunction) encodeTo(e *Encoder) {
	e.WriteFloat32s(tf.Positions)
	e.WriteFloat32s(tf.Colors)
	e.WriteFloat32s(tf.Alphas)
}

func (tf *TransferFunction) decodeFrom(r *reader) {
	tf.Positions = r.floats()
	tf.Colors = r.floats()
	tf.Alphas = r.floats()
}

// VolumeSettings follows UPDATE_OBJECT for volume and isosurfaces objects.
type VolumeSettings struct {
	SamplingRate     float32
	GradientShading  bool
	TransferFunction TransferFunction
	Isovalues        []float32
}

// EncodeTo implements Message.
func (m *VolumeSettings) EncodeTo(e *Encoder) {
	e.WriteFloat32(m.SamplingRate)
	e.WriteBool(m.GradientShading)
	m.TransferFunction.encodeTo(e)
	e.WriteFloat32s(m.Isovalues)
}

// DecodeFrom implements Message.
func (m *VolumeSettings) DecodeFrom(d *Decoder) error {
	r := reader{d: d}
	m.SamplingRate = r.f32()
	m.GradientShading = r.boolean()
	m.TransferFunction.decodeFrom(&r)
	m.Isovalues = r.floats()
	return r.err
}

// SlicesSettings follows UPDATE_OBJECT for slices objects. Each plane is
// (a, b, c, d) with ax + by + cz + d = 0 in object space.
type SlicesSettings struct {
	Planes           [][4]float32
	TransferFunction TransferFunction
}

// EncodeTo implements Message.
func (m *SlicesSettings) EncodeTo(e *Encoder) {
	e.WriteUvarint(uint64(len(m.Planes)))
	for _, p := range m.Planes {
		e.WriteVec4(p)
	}
	m.TransferFunction.encodeTo(e)
}

// DecodeFrom implements Message.
func (m *SlicesSettings) DecodeFrom(d *Decoder) error {
	n, err := d.ReadCollectionCount(16)
	if err != nil {
		return err
	}
	r := reader{d: d}
	m.Planes = make([][4]float32, n)
	for i := range m.Planes {
		m.Planes[i] = r.vec4()
	}
	m.TransferFunction.decodeFrom(&r)
	return r.err
}

// LightType selects the light source.
type LightType uint32

const (
	LightAmbient LightType = iota
	LightDistant
	LightPoint
	LightSpot
	LightArea
	LightSun
)

// String returns the renderer name of the light type.
func (t LightType) String() string {
	switch t {
	case LightAmbient:
		return "ambient"
	case LightDistant:
		return "distant"
	case LightPoint:
		return "sphere"
	case LightSpot:
		return "spot"
	case LightArea:
		return "quad"
	case LightSun:
		return "sunSky"
	default:
		return "unknown"
	}
}

// LightSettings follows UPDATE_OBJECT for light objects. Position and
// direction are in world space.
type LightSettings struct {
	Type            LightType
	Color           [3]float32
	Intensity       float32
	Visible         bool
	Position        [3]float32
	Direction       [3]float32
	Radius          float32
	AngularDiameter float32
	OpeningAngle    float32
	PenumbraAngle   float32
	Edge1           [3]float32
	Edge2           [3]float32
}

// EncodeTo implements Message.
func (m *LightSettings) EncodeTo(e *Encoder) {
	e.WriteUint32(uint32(m.Type))
	e.WriteVec3(m.Color)
	e.WriteFloat32(m.Intensity)
	e.WriteBool(m.Visible)
	e.WriteVec3(m.Position)
	e.WriteVec3(m.Direction)
	e.WriteFloat32(m.Radius)
	e.WriteFloat32(m.AngularDiameter)
	e.WriteFloat32(m.OpeningAngle)
	e.WriteFloat32(m.PenumbraAngle)
	e.WriteVec3(m.Edge1)
	e.WriteVec3(m.Edge2)
}

// DecodeFrom implements Message.
func (m *LightSettings) DecodeFrom(d *Decoder) error {
	r := reader{d: d}
	m.Type = LightType(r.u32())
	m.Color = r.vec3()
	m.Intensity = r.f32()
	m.Visible = r.boolean()
	m.Position = r.vec3()
	m.Direction = r.vec3()
	m.Radius = r.f32()
	m.AngularDiameter = r.f32()
	m.OpeningAngle = r.f32()
	m.PenumbraAngle = r.f32()
	m.Edge1 = r.vec3()
	m.Edge2 = r.vec3()
	return r.err
}
