package protocol

// MessageType identifies a client command.
type MessageType uint32

const (
	MsgHello MessageType = iota
	MsgBye
	MsgQuit
	MsgUpdateRendererType
	MsgClearScene
	MsgUpdateRenderSettings
	MsgUpdateWorldSettings
	MsgUpdatePluginInstance
	MsgUpdateBlenderMesh
	MsgUpdateObject
	MsgUpdateFramebuffer
	MsgUpdateCamera
	MsgUpdateMaterial
	MsgGetServerState
	MsgQueryBound
	MsgStartRendering
	MsgCancelRendering
	MsgRequestRenderOutput
)

var messageTypeNames = [...]string{
	MsgHello:                "HELLO",
	MsgBye:                  "BYE",
	MsgQuit:                 "QUIT",
	MsgUpdateRendererType:   "UPDATE_RENDERER_TYPE",
	MsgClearScene:           "CLEAR_SCENE",
	MsgUpdateRenderSettings: "UPDATE_RENDER_SETTINGS",
	MsgUpdateWorldSettings:  "UPDATE_WORLD_SETTINGS",
	MsgUpdatePluginInstance: "UPDATE_PLUGIN_INSTANCE",
	MsgUpdateBlenderMesh:    "UPDATE_BLENDER_MESH",
	MsgUpdateObject:         "UPDATE_OBJECT",
	MsgUpdateFramebuffer:    "UPDATE_FRAMEBUFFER",
	MsgUpdateCamera:         "UPDATE_CAMERA",
	MsgUpdateMaterial:       "UPDATE_MATERIAL",
	MsgGetServerState:       "GET_SERVER_STATE",
	MsgQueryBound:           "QUERY_BOUND",
	MsgStartRendering:       "START_RENDERING",
	MsgCancelRendering:      "CANCEL_RENDERING",
	MsgRequestRenderOutput:  "REQUEST_RENDER_OUTPUT",
}

// String returns the wire name of the message type.
func (t MessageType) String() string {
	if int(t) < len(messageTypeNames) {
		return messageTypeNames[t]
	}
	return "UNKNOWN"
}

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	return t <= MsgRequestRenderOutput
}

// Mutating reports whether the command changes scene or settings and so
// requires the render task to be drained first.
func (t MessageType) Mutating() bool {
	switch t {
	case MsgGetServerState, MsgQueryBound, MsgRequestRenderOutput,
		MsgCancelRendering, MsgBye, MsgQuit:
		return false
	}
	return true
}

// Operand meanings per message type:
//
//	HELLO                  UintValue = protocol version
//	UPDATE_RENDERER_TYPE   StringValue = "scivis" | "pathtracer"
//	CLEAR_SCENE            StringValue = "all" | "keep_plugin_instances"
//	UPDATE_BLENDER_MESH    StringValue = data name
//	UPDATE_FRAMEBUFFER     UintValue = format, UintValue2 = width, UintValue3 = height
//	QUERY_BOUND            StringValue = data name
//	START_RENDERING        StringValue = "final" | "interactive", UintValue = samples,
//	                       UintValue2 = update rate (final) or initial reduction factor

// ClientMessage is the envelope of every client command.
type ClientMessage struct {
	Type         MessageType
	UintValue    uint32
	UintValue2   uint32
	UintValue3   uint32
	StringValue  string
	StringValue2 string
}

// EncodeTo implements Message.
func (m *ClientMessage) EncodeTo(e *Encoder) {
	e.WriteUint32(uint32(m.Type))
	e.WriteUint32(m.UintValue)
	e.WriteUint32(m.UintValue2)
	e.WriteUint32(m.UintValue3)
	e.WriteString(m.StringValue)
	e.WriteString(m.StringValue2)
}

// DecodeFrom implements Message.
func (m *ClientMessage) DecodeFrom(d *Decoder) error {
	r := reader{d: d}
	m.Type = MessageType(r.u32())
	m.UintValue = r.u32()
	m.UintValue2 = r.u32()
	m.UintValue3 = r.u32()
	m.StringValue = r.str()
	m.StringValue2 = r.str()
	return r.err
}

// Renderer type names.
const (
	RendererSciVis     = "scivis"
	RendererPathTracer = "pathtracer"
)

// Clear modes.
const (
	ClearAll                 = "all"
	ClearKeepPluginInstances = "keep_plugin_instances"
)

// Render modes.
const (
	RenderModeFinal       = "final"
	RenderModeInteractive = "interactive"
)
