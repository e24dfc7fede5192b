package plugin

import (
	"encoding/json"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	blerrors "github.com/blospray-dev/blospray/internal/errors"
	"github.com/blospray-dev/blospray/pkg/device"
	"github.com/blospray-dev/blospray/pkg/protocol"
)

// Kind is the payload a plugin produces.
type Kind string

const (
	KindGeometry Kind = "geometry"
	KindVolume   Kind = "volume"
	KindScene    Kind = "scene"
)

// ParseKind validates a plugin kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindGeometry, KindVolume, KindScene:
		return k, nil
	}
	return "", blerrors.New("B406").WithDetailf("%q", s)
}

// ParamType is the scalar type of a schema parameter.
type ParamType int

const (
	ParamInt ParamType = iota
	ParamFloat
	ParamString
	ParamUser
)

func (t ParamType) String() string {
	switch t {
	case ParamInt:
		return "int"
	case ParamFloat:
		return "float"
	case ParamString:
		return "string"
	case ParamUser:
		return "user"
	}
	return fmt.Sprintf("ParamType(%d)", int(t))
}

// Flags modify how a parameter is validated.
type Flags uint32

const (
	FlagOptional Flags = 1 << iota
)

// Parameter describes one entry of a plugin's parameter schema. Length
// greater than one means a JSON array of exactly that many values.
type Parameter struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Length      int       `json:"length"`
	Flags       Flags     `json:"flags"`
	Description string    `json:"description"`
}

// Optional reports whether the parameter may be omitted.
func (p Parameter) Optional() bool { return p.Flags&FlagOptional != 0 }

// Definition is what a plugin module registers with the host.
type Definition struct {
	Parameters       []Parameter
	UsesRendererType bool

	// Generate fills the output fields of the state.
	Generate func(s *State) error

	// ClearData is called before a state produced by Generate is discarded.
	ClearData func(s *State)

	// Load runs once after Initialize, Unload when the host closes.
	Load   func() error
	Unload func()
}

// InitializeFunc is the entry point every plugin module exports.
type InitializeFunc func(def *Definition) error

// SceneInstance places a group in a scene plugin's output.
type SceneInstance struct {
	Group     device.Object
	Transform mgl32.Mat4
}

// State is the record passed to Generate. The input fields are set by the
// host; the plugin sets exactly one payload matching its kind and may attach
// a bounding mesh. Handles stored in the output belong to the state.
type State struct {
	Parameters   json.RawMessage
	Properties   json.RawMessage
	RendererType string
	Device       device.Device

	Geometry  device.Object
	Volume    device.Object
	DataRange [2]float32
	Instances []SceneInstance
	Lights    []device.Object
	Bound     *protocol.BoundingMesh

	// Data is free for the plugin's own bookkeeping.
	Data any

	params map[string]any
	props  map[string]any
}

// Param returns a decoded parameter value as produced by encoding/json.
func (s *State) Param(name string) (any, bool) {
	v, ok := s.params[name]
	return v, ok
}

// Property returns a decoded custom property value.
func (s *State) Property(name string) (any, bool) {
	v, ok := s.props[name]
	return v, ok
}

// Int returns an integer parameter or def.
func (s *State) Int(name string, def int) int {
	if f, ok := s.params[name].(float64); ok {
		return int(f)
	}
	return def
}

// Float returns a float parameter or def.
func (s *State) Float(name string, def float32) float32 {
	if f, ok := s.params[name].(float64); ok {
		return float32(f)
	}
	return def
}

// String returns a string parameter or def.
func (s *State) String(name, def string) string {
	if v, ok := s.params[name].(string); ok {
		return v
	}
	return def
}

// Ints returns an integer array parameter, or nil.
func (s *State) Ints(name string) []int {
	list, ok := s.params[name].([]any)
	if !ok {
		return nil
	}
	out := make([]int, 0, len(list))
	for _, v := range list {
		f, ok := v.(float64)
		if !ok {
			return nil
		}
		out = append(out, int(f))
	}
	return out
}

// Floats returns a float array parameter, or nil.
func (s *State) Floats(name string) []float32 {
	list, ok := s.params[name].([]any)
	if !ok {
		return nil
	}
	out := make([]float32, 0, len(list))
	for _, v := range list {
		f, ok := v.(float64)
		if !ok {
			return nil
		}
		out = append(out, float32(f))
	}
	return out
}

// checkPayload verifies the output fields agree with the plugin kind and
// that the bounding mesh is well formed.
func (s *State) checkPayload(kind Kind) error {
	switch kind {
	case KindGeometry:
		if s.Geometry == nil || s.Volume != nil || len(s.Instances) > 0 {
			return blerrors.New("B405").WithDetail("geometry plugins must set exactly one geometry")
		}
	case KindVolume:
		if s.Volume == nil || s.Geometry != nil || len(s.Instances) > 0 {
			return blerrors.New("B405").WithDetail("volume plugins must set exactly one volume")
		}
		if s.DataRange[0] > s.DataRange[1] {
			return blerrors.New("B405").WithDetailf("data range [%g,%g] is inverted", s.DataRange[0], s.DataRange[1])
		}
	case KindScene:
		if s.Geometry != nil || s.Volume != nil {
			return blerrors.New("B405").WithDetail("scene plugins produce instances and lights only")
		}
		for i, inst := range s.Instances {
			if inst.Group == nil {
				return blerrors.New("B405").WithDetailf("instance %d has no group", i)
			}
		}
	}
	if s.Bound != nil {
		if err := s.Bound.Validate(); err != nil {
			return blerrors.New("B405").WithDetail("bounding mesh").Wrap(err)
		}
	}
	return nil
}

// release drops every handle held in the output fields.
func (s *State) release() {
	if s.Geometry != nil {
		s.Geometry.Release()
		s.Geometry = nil
	}
	if s.Volume != nil {
		s.Volume.Release()
		s.Volume = nil
	}
	for _, inst := range s.Instances {
		if inst.Group != nil {
			inst.Group.Release()
		}
	}
	s.Instances = nil
	for _, l := range s.Lights {
		l.Release()
	}
	s.Lights = nil
}
