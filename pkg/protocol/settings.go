package protocol

// RenderSettings follows UPDATE_RENDER_SETTINGS.
type RenderSettings struct {
	AOSamples         uint32
	AORadius          float32
	AOIntensity       float32
	MaxDepth          uint32
	MinContribution   float32
	VarianceThreshold float32
	ShadowsEnabled    bool
}

// EncodeTo implements Message.
func (m *RenderSettings) EncodeTo(e *Encoder) {
	e.WriteUint32(m.AOSamples)
	e.WriteFloat32(m.AORadius)
	e.WriteFloat32(m.AOIntensity)
	e.WriteUint32(m.MaxDepth)
	e.WriteFloat32(m.MinContribution)
	e.WriteFloat32(m.VarianceThreshold)
	e.WriteBool(m.ShadowsEnabled)
}

// DecodeFrom implements Message.
func (m *RenderSettings) DecodeFrom(d *Decoder) error {
	r := reader{d: d}
	m.AOSamples = r.u32()
	m.AORadius = r.f32()
	m.AOIntensity = r.f32()
	m.MaxDepth = r.u32()
	m.MinContribution = r.f32()
	m.VarianceThreshold = r.f32()
	m.ShadowsEnabled = r.boolean()
	return r.err
}

// WorldSettings follows UPDATE_WORLD_SETTINGS.
type WorldSettings struct {
	AmbientColor     [3]float32
	AmbientIntensity float32
	BackgroundColor  [4]float32
}

// EncodeTo implements Message.
func (m *WorldSettings) EncodeTo(e *Encoder) {
	e.WriteVec3(m.AmbientColor)
	e.WriteFloat32(m.AmbientIntensity)
	e.WriteVec4(m.BackgroundColor)
}

// DecodeFrom implements Message.
func (m *WorldSettings) DecodeFrom(d *Decoder) error {
	r := reader{d: d}
	m.AmbientColor = r.vec3()
	m.AmbientIntensity = r.f32()
	m.BackgroundColor = r.vec4()
	return r.err
}

// CameraType selects the projection.
type CameraType uint32

const (
	CameraPerspective CameraType = iota
	CameraOrthographic
	CameraPanoramic
)

// String returns the renderer name of the camera type.
func (t CameraType) String() string {
	switch t {
	case CameraPerspective:
		return "perspective"
	case CameraOrthographic:
		return "orthographic"
	case CameraPanoramic:
		return "panoramic"
	default:
		return "unknown"
	}
}

// CameraSettings follows UPDATE_CAMERA.
type CameraSettings struct {
	ObjectName string
	Type       CameraType
	Position   [3]float32
	ViewDir    [3]float32
	UpDir      [3]float32

	// FovY is the vertical field of view in degrees (perspective).
	FovY   float32
	Aspect float32

	// Height is the view plane height (orthographic).
	Height   float32
	NearClip float32

	DofFocusDistance float32
	DofAperture      float32

	// Border is (min x, min y, max x, max y) in normalized image space.
	HasBorder bool
	Border    [4]float32
}

// EncodeTo implements Message.
func (m *CameraSettings) EncodeTo(e *Encoder) {
	e.WriteString(m.ObjectName)
	e.WriteUint32(uint32(m.Type))
	e.WriteVec3(m.Position)
	e.WriteVec3(m.ViewDir)
	e.WriteVec3(m.UpDir)
	e.WriteFloat32(m.FovY)
	e.WriteFloat32(m.Aspect)
	e.WriteFloat32(m.Height)
	e.WriteFloat32(m.NearClip)
	e.WriteFloat32(m.DofFocusDistance)
	e.WriteFloat32(m.DofAperture)
	e.WriteBool(m.HasBorder)
	e.WriteVec4(m.Border)
}

// DecodeFrom implements Message.
func (m *CameraSettings) DecodeFrom(d *Decoder) error {
	r := reader{d: d}
	m.ObjectName = r.str()
	m.Type = CameraType(r.u32())
	m.Position = r.vec3()
	m.ViewDir = r.vec3()
	m.UpDir = r.vec3()
	m.FovY = r.f32()
	m.Aspect = r.f32()
	m.Height = r.f32()
	m.NearClip = r.f32()
	m.DofFocusDistance = r.f32()
	m.DofAperture = r.f32()
	m.HasBorder = r.boolean()
	m.Border = r.vec4()
	return r.err
}

// FramebufferFormat is carried in UintValue of UPDATE_FRAMEBUFFER.
type FramebufferFormat uint32

const (
	FramebufferNone FramebufferFormat = iota
	FramebufferRGBA8
	FramebufferSRGBA
	FramebufferRGBA32F
)

// String returns the name of the format.
func (f FramebufferFormat) String() string {
	switch f {
	case FramebufferNone:
		return "NONE"
	case FramebufferRGBA8:
		return "RGBA8"
	case FramebufferSRGBA:
		return "SRGBA"
	case FramebufferRGBA32F:
		return "RGBA32F"
	default:
		return "unknown"
	}
}
