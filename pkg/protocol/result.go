package protocol

// ServerStateResult is the reply to GET_SERVER_STATE.
type ServerStateResult struct {
	State string // JSON
}

// EncodeTo implements Message.
func (m *ServerStateResult) EncodeTo(e *Encoder) {
	e.WriteString(m.State)
}

// DecodeFrom implements Message.
func (m *ServerStateResult) DecodeFrom(d *Decoder) error {
	r := reader{d: d}
	m.State = r.str()
	return r.err
}

// QueryBoundResult is the reply to QUERY_BOUND. On success ResultSize
// bytes of a serialized BoundingMesh follow.
type QueryBoundResult struct {
	Success    bool
	Message    string
	ResultSize uint32
}

// EncodeTo implements Message.
func (m *QueryBoundResult) EncodeTo(e *Encoder) {
	e.WriteBool(m.Success)
	e.WriteString(m.Message)
	e.WriteUint32(m.ResultSize)
}

// DecodeFrom implements Message.
func (m *QueryBoundResult) DecodeFrom(d *Decoder) error {
	r := reader{d: d}
	m.Success = r.boolean()
	m.Message = r.str()
	m.ResultSize = r.u32()
	return r.err
}

// GenerateFunctionResult is the reply to UPDATE_PLUGIN_INSTANCE.
type GenerateFunctionResult struct {
	Success bool
	Message string
}

// EncodeTo implements Message.
func (m *GenerateFunctionResult) EncodeTo(e *Encoder) {
	e.WriteBool(m.Success)
	e.WriteString(m.Message)
}

// DecodeFrom implements Message.
func (m *GenerateFunctionResult) DecodeFrom(d *Decoder) error {
	r := reader{d: d}
	m.Success = r.boolean()
	m.Message = r.str()
	return r.err
}

// RenderResultType is the kind of a RenderResult.
type RenderResultType uint32

const (
	RenderFrame RenderResultType = iota
	RenderCanceled
	RenderDone
)

// String returns the name of the result type.
func (t RenderResultType) String() string {
	switch t {
	case RenderFrame:
		return "FRAME"
	case RenderCanceled:
		return "CANCELED"
	case RenderDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// RenderResult reports render progress. A FRAME result is followed by
// FileSize payload bytes: an EXR file in final mode or raw RGBA float32
// pixels in interactive mode.
type RenderResult struct {
	Type            RenderResultType
	Sample          uint32
	ReductionFactor uint32
	Width           uint32
	Height          uint32
	Variance        float32
	MemoryUsage     uint64
	PeakMemoryUsage uint64
	FileName        string
	FileSize        uint64
}

// EncodeTo implements Message.
func (m *RenderResult) EncodeTo(e *Encoder) {
	e.WriteUint32(uint32(m.Type))
	e.WriteUint32(m.Sample)
	e.WriteUint32(m.ReductionFactor)
	e.WriteUint32(m.Width)
	e.WriteUint32(m.Height)
	e.WriteFloat32(m.Variance)
	e.WriteUint64(m.MemoryUsage)
	e.WriteUint64(m.PeakMemoryUsage)
	e.WriteString(m.FileName)
	e.WriteUint64(m.FileSize)
}

// DecodeFrom implements Message.
func (m *RenderResult) DecodeFrom(d *Decoder) error {
	r := reader{d: d}
	m.Type = RenderResultType(r.u32())
	m.Sample = r.u32()
	m.ReductionFactor = r.u32()
	m.Width = r.u32()
	m.Height = r.u32()
	m.Variance = r.f32()
	m.MemoryUsage = r.u64()
	m.PeakMemoryUsage = r.u64()
	m.FileName = r.str()
	m.FileSize = r.u64()
	return r.err
}
