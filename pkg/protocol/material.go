package protocol

import "fmt"

// MaterialType enumerates the material kinds.
type MaterialType uint32

const (
	MaterialOBJ MaterialType = iota
	MaterialPrincipled
	MaterialGlass
	MaterialThinGlass
	MaterialMetal
	MaterialMetallicPaint
	MaterialAlloy
	MaterialCarPaint
	MaterialLuminous
)

var materialTypeNames = [...]string{
	MaterialOBJ:           "obj",
	MaterialPrincipled:    "principled",
	MaterialGlass:         "glass",
	MaterialThinGlass:     "thinGlass",
	MaterialMetal:         "metal",
	MaterialMetallicPaint: "metallicPaint",
	MaterialAlloy:         "alloy",
	MaterialCarPaint:      "carPaint",
	MaterialLuminous:      "luminous",
}

// String returns the renderer subtype name of the material kind.
func (t MaterialType) String() string {
	if int(t) < len(materialTypeNames) {
		return materialTypeNames[t]
	}
	return "unknown"
}

// MaterialUpdate follows UPDATE_MATERIAL and announces the body kind.
type MaterialUpdate struct {
	Name string
	Type MaterialType
}

// EncodeTo implements Message.
func (m *MaterialUpdate) EncodeTo(e *Encoder) {
	e.WriteString(m.Name)
	e.WriteUint32(uint32(m.Type))
}

// DecodeFrom implements Message.
func (m *MaterialUpdate) DecodeFrom(d *Decoder) error {
	r := reader{d: d}
	m.Name = r.str()
	m.Type = MaterialType(r.u32())
	return r.err
}

// MaterialBody is the kind-specific body following a MaterialUpdate.
type MaterialBody interface {
	Message
	MaterialType() MaterialType
}

// NewMaterialBody returns an empty body for t, ready to decode into.
func NewMaterialBody(t MaterialType) (MaterialBody, error) {
	switch t {
	case MaterialOBJ:
		return &OBJMaterialSettings{}, nil
	case MaterialPrincipled:
		return &PrincipledSettings{}, nil
	case MaterialGlass:
		return &GlassSettings{}, nil
	case MaterialThinGlass:
		return &ThinGlassSettings{}, nil
	case MaterialMetal:
		return &MetalSettings{}, nil
	case MaterialMetallicPaint:
		return &MetallicPaintSettings{}, nil
	case MaterialAlloy:
		return &AlloySettings{}, nil
	case MaterialCarPaint:
		return &CarPaintSettings{}, nil
	case MaterialLuminous:
		return &LuminousSettings{}, nil
	}
	return nil, fmt.Errorf("protocol: unknown material type %d", t)
}

// OBJMaterialSettings is the Wavefront-style material.
type OBJMaterialSettings struct {
	Kd [3]float32
	Ks [3]float32
	Ns float32
	D  float32
}

func (*OBJMaterialSettings) MaterialType() MaterialType { return MaterialOBJ }

// EncodeTo implements Message.
func (m *OBJMaterialSettings) EncodeTo(e *Encoder) {
	e.WriteVec3(m.Kd)
	e.WriteVec3(m.Ks)
	e.WriteFloat32(m.Ns)
	e.WriteFloat32(m.D)
}

// DecodeFrom implements Message.
func (m *OBJMaterialSettings) DecodeFrom(d *Decoder) error {
	r := reader{d: d}
	m.Kd = r.vec3()
	m.Ks = r.vec3()
	m.Ns = r.f32()
	m.D = r.f32()
	return r.err
}

// PrincipledSettings is the principled BSDF.
type PrincipledSettings struct {
	BaseColor         [3]float32
	EdgeColor         [3]float32
	Metallic          float32
	Diffuse           float32
	Specular          float32
	IOR               float32
	Transmission      float32
	TransmissionColor [3]float32
	TransmissionDepth float32
	Roughness         float32
	Anisotropy        float32
	Rotation          float32
	Thin              bool
	Thickness         float32
	Backlight         float32
	Coat              float32
	CoatIOR           float32
	CoatColor         [3]float32
	CoatThickness     float32
	CoatRoughness     float32
	Sheen             float32
	SheenColor        [3]float32
	SheenTint         float32
	SheenRoughness    float32
	Opacity           float32
}

func (*PrincipledSettings) MaterialType() MaterialType { return MaterialPrincipled }

// EncodeTo implements Message.
func (m *PrincipledSettings) EncodeTo(e *Encoder) {
	e.WriteVec3(m.BaseColor)
	e.WriteVec3(m.EdgeColor)
	e.WriteFloat32(m.Metallic)
	e.WriteFloat32(m.Diffuse)
	e.WriteFloat32(m.Specular)
	e.WriteFloat32(m.IOR)
	e.WriteFloat32(m.Transmission)
	e.WriteVec3(m.TransmissionColor)
	e.WriteFloat32(m.TransmissionDepth)
	e.WriteFloat32(m.Roughness)
	e.WriteFloat32(m.Anisotropy)
	e.WriteFloat32(m.Rotation)
	e.WriteBool(m.Thin)
	e.WriteFloat32(m.Thickness)
	e.WriteFloat32(m.Backlight)
	e.WriteFloat32(m.Coat)
	e.WriteFloat32(m.CoatIOR)
	e.WriteVec3(m.CoatColor)
	e.WriteFloat32(m.CoatThickness)
	e.WriteFloat32(m.CoatRoughness)
	e.WriteFloat32(m.Sheen)
	e.WriteVec3(m.SheenColor)
	e.WriteFloat32(m.SheenTint)
	e.WriteFloat32(m.SheenRoughness)
	e.WriteFloat32(m.Opacity)
}

// DecodeFrom implements Message.
func (m *PrincipledSettings) DecodeFrom(d *Decoder) error {
	r := reader{d: d}
	m.BaseColor = r.vec3()
	m.EdgeColor = r.vec3()
	m.Metallic = r.f32()
	m.Diffuse = r.f32()
	m.Specular = r.f32()
	m.IOR = r.f32()
	m.Transmission = r.f32()
	m.TransmissionColor = r.vec3()
	m.TransmissionDepth = r.f32()
	m.Roughness = r.f32()
	m.Anisotropy = r.f32()
	m.Rotation = r.f32()
	m.Thin = r.boolean()
	m.Thickness = r.f32()
	m.Backlight = r.f32()
	m.Coat = r.f32()
	m.CoatIOR = r.f32()
	m.CoatColor = r.vec3()
	m.CoatThickness = r.f32()
	m.CoatRoughness = r.f32()
	m.Sheen = r.f32()
	m.SheenColor = r.vec3()
	m.SheenTint = r.f32()
	m.SheenRoughness = r.f32()
	m.Opacity = r.f32()
	return r.err
}

// GlassSettings is a solid dielectric.
type GlassSettings struct {
	Eta                 float32
	AttenuationColor    [3]float32
	AttenuationDistance float32
}

func (*GlassSettings) MaterialType() MaterialType { return MaterialGlass }

// EncodeTo implements Message.
func (m *GlassSettings) EncodeTo(e *Encoder) {
	e.WriteFloat32(m.Eta)
	e.WriteVec3(m.AttenuationColor)
	e.WriteFloat32(m.AttenuationDistance)
}

// DecodeFrom implements Message.
func (m *GlassSettings) DecodeFrom(d *Decoder) error {
	r := reader{d: d}
	m.Eta = r.f32()
	m.AttenuationColor = r.vec3()
	m.AttenuationDistance = r.f32()
	return r.err
}

// ThinGlassSettings is a thin dielectric sheet.
type ThinGlassSettings struct {
	Eta                 float32
	AttenuationColor    [3]float32
	AttenuationDistance float32
	Thickness           float32
}

func (*ThinGlassSettings) MaterialType() MaterialType { return MaterialThinGlass }

// EncodeTo implements Message.
func (m *ThinGlassSettings) EncodeTo(e *Encoder) {
	e.WriteFloat32(m.Eta)
	e.WriteVec3(m.AttenuationColor)
	e.WriteFloat32(m.AttenuationDistance)
	e.WriteFloat32(m.Thickness)
}

// DecodeFrom implements Message.
func (m *ThinGlassSettings) DecodeFrom(d *Decoder) error {
	r := reader{d: d}
	m.Eta = r.f32()
	m.AttenuationColor = r.vec3()
	m.AttenuationDistance = r.f32()
	m.Thickness = r.f32()
	return r.err
}

// Metal indices into the server's (eta, k) table.
const (
	MetalAluminium uint32 = iota
	MetalChromium
	MetalCopper
	MetalGold
	MetalSilver
)

// MetalSettings selects a tabulated metal.
type MetalSettings struct {
	Metal     uint32
	Roughness float32
}

func (*MetalSettings) MaterialType() MaterialType { return MaterialMetal }

// EncodeTo implements Message.
func (m *MetalSettings) EncodeTo(e *Encoder) {
	e.WriteUint32(m.Metal)
	e.WriteFloat32(m.Roughness)
}

// DecodeFrom implements Message.
func (m *MetalSettings) DecodeFrom(d *Decoder) error {
	r := reader{d: d}
	m.Metal = r.u32()
	m.Roughness = r.f32()
	return r.err
}

// MetallicPaintSettings is a flaked paint under a clear coat.
type MetallicPaintSettings struct {
	BaseColor   [3]float32
	FlakeAmount float32
	FlakeColor  [3]float32
	FlakeSpread float32
	Eta         float32
}

func (*MetallicPaintSettings) MaterialType() MaterialType { return MaterialMetallicPaint }

// EncodeTo implements Message.
func (m *MetallicPaintSettings) EncodeTo(e *Encoder) {
	e.WriteVec3(m.BaseColor)
	e.WriteFloat32(m.FlakeAmount)
	e.WriteVec3(m.FlakeColor)
	e.WriteFloat32(m.FlakeSpread)
	e.WriteFloat32(m.Eta)
}

// DecodeFrom implements Message.
func (m *MetallicPaintSettings) DecodeFrom(d *Decoder) error {
	r := reader{d: d}
	m.BaseColor = r.vec3()
	m.FlakeAmount = r.f32()
	m.FlakeColor = r.vec3()
	m.FlakeSpread = r.f32()
	m.Eta = r.f32()
	return r.err
}

// AlloySettings is a metal given by its colors.
type AlloySettings struct {
	Color     [3]float32
	EdgeColor [3]float32
	Roughness float32
}

func (*AlloySettings) MaterialType() MaterialType { return MaterialAlloy }

// EncodeTo implements Message.
func (m *AlloySettings) EncodeTo(e *Encoder) {
	e.WriteVec3(m.Color)
	e.WriteVec3(m.EdgeColor)
	e.WriteFloat32(m.Roughness)
}

// DecodeFrom implements Message.
func (m *AlloySettings) DecodeFrom(d *Decoder) error {
	r := reader{d: d}
	m.Color = r.vec3()
	m.EdgeColor = r.vec3()
	m.Roughness = r.f32()
	return r.err
}

// CarPaintSettings is a layered car paint.
type CarPaintSettings struct {
	BaseColor       [3]float32
	Roughness       float32
	FlakeDensity    float32
	FlakeScale      float32
	FlakeSpread     float32
	FlakeJitter     float32
	FlakeRoughness  float32
	Coat            float32
	CoatIOR         float32
	CoatColor       [3]float32
	CoatThickness   float32
	CoatRoughness   float32
	FlipflopColor   [3]float32
	FlipflopFalloff float32
}

func (*CarPaintSettings) MaterialType() MaterialType { return MaterialCarPaint }

// EncodeTo implements Message.
func (m *CarPaintSettings) EncodeTo(e *Encoder) {
	e.WriteVec3(m.BaseColor)
	e.WriteFloat32(m.Roughness)
	e.WriteFloat32(m.FlakeDensity)
	e.WriteFloat32(m.FlakeScale)
	e.WriteFloat32(m.FlakeSpread)
	e.WriteFloat32(m.FlakeJitter)
	e.WriteFloat32(m.FlakeRoughness)
	e.WriteFloat32(m.Coat)
	e.WriteFloat32(m.CoatIOR)
	e.WriteVec3(m.CoatColor)
	e.WriteFloat32(m.CoatThickness)
	e.WriteFloat32(m.CoatRoughness)
	e.WriteVec3(m.FlipflopColor)
	e.WriteFloat32(m.FlipflopFalloff)
}

// DecodeFrom implements Message.
func (m *CarPaintSettings) DecodeFrom(d *Decoder) error {
	r := reader{d: d}
	m.BaseColor = r.vec3()
	m.Roughness = r.f32()
	m.FlakeDensity = r.f32()
	m.FlakeScale = r.f32()
	m.FlakeSpread = r.f32()
	m.FlakeJitter = r.f32()
	m.FlakeRoughness = r.f32()
	m.Coat = r.f32()
	m.CoatIOR = r.f32()
	m.CoatColor = r.vec3()
	m.CoatThickness = r.f32()
	m.CoatRoughness = r.f32()
	m.FlipflopColor = r.vec3()
	m.FlipflopFalloff = r.f32()
	return r.err
}

// LuminousSettings is an emissive surface.
type LuminousSettings struct {
	Color        [3]float32
	Intensity    float32
	Transparency float32
}

func (*LuminousSettings) MaterialType() MaterialType { return MaterialLuminous }

// EncodeTo implements Message.
func (m *LuminousSettings) EncodeTo(e *Encoder) {
	e.WriteVec3(m.Color)
	e.WriteFloat32(m.Intensity)
	e.WriteFloat32(m.Transparency)
}

// DecodeFrom implements Message.
func (m *LuminousSettings) DecodeFrom(d *Decoder) error {
	r := reader{d: d}
	m.Color = r.vec3()
	m.Intensity = r.f32()
	m.Transparency = r.f32()
	return r.err
}
