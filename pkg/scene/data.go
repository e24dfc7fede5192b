package scene

import (
	"github.com/blospray-dev/blospray/pkg/device"
	"github.com/blospray-dev/blospray/pkg/plugin"
	"github.com/blospray-dev/blospray/pkg/protocol"
)

// DataKind discriminates scene data.
type DataKind string

const (
	DataHostMesh DataKind = "mesh"
	DataPlugin   DataKind = "plugin"
)

// Data is one named entry of scene data.
type Data struct {
	Name string
	Kind DataKind

	// Host mesh fields.
	Mesh         device.Object
	NumVertices  int
	NumTriangles int

	// Plugin fields.
	Plugin *plugin.Instance
}

// PluginKind returns the plugin kind, or "" for host meshes.
func (d *Data) PluginKind() plugin.Kind {
	if d.Kind != DataPlugin || d.Plugin == nil {
		return ""
	}
	return d.Plugin.ID.Kind
}

// State returns the plugin output, or nil for host meshes.
func (d *Data) State() *plugin.State {
	if d.Kind != DataPlugin || d.Plugin == nil {
		return nil
	}
	return d.Plugin.State
}

// Bound returns the bounding mesh a plugin attached, if any.
func (d *Data) Bound() *protocol.BoundingMesh {
	if s := d.State(); s != nil {
		return s.Bound
	}
	return nil
}

// Compatible reports whether an object of type t may link to d.
func (d *Data) Compatible(t protocol.ObjectType) bool {
	switch t {
	case protocol.ObjectMesh:
		return d.Kind == DataHostMesh
	case protocol.ObjectGeometry:
		return d.PluginKind() == plugin.KindGeometry
	case protocol.ObjectScene:
		return d.PluginKind() == plugin.KindScene
	case protocol.ObjectVolume, protocol.ObjectIsosurfaces, protocol.ObjectSlices:
		return d.PluginKind() == plugin.KindVolume
	}
	return false
}
