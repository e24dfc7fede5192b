package scene

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/blospray-dev/blospray/pkg/device"
	"github.com/blospray-dev/blospray/pkg/protocol"
)

// Object is one named placement of data, or a light.
type Object struct {
	Name         string
	Type         protocol.ObjectType
	DataLink     string
	Transform    mgl32.Mat4
	MaterialLink string
	Properties   string

	// Settings that arrived with the update, by type.
	Volume *protocol.VolumeSettings
	Slices *protocol.SlicesSettings
	Light  *protocol.LightSettings

	// DefaultMaterial is set when MaterialLink did not resolve.
	DefaultMaterial bool

	// Handles owned by the object. Each entry holds one reference.
	Instances []device.Object
	Lights    []device.Object
}

// NewObject copies the identity of an update into a fresh Object.
func NewObject(u *protocol.UpdateObject) *Object {
	return &Object{
		Name:         u.Name,
		Type:         u.Type,
		DataLink:     u.DataLink,
		Transform:    mgl32.Mat4(u.ObjectToWorld),
		MaterialLink: u.MaterialLink,
		Properties:   u.CustomProperties,
	}
}

// Update returns the update that recreates o.
func (o *Object) Update() *protocol.UpdateObject {
	return &protocol.UpdateObject{
		Type:             o.Type,
		Name:             o.Name,
		DataLink:         o.DataLink,
		ObjectToWorld:    [16]float32(o.Transform),
		MaterialLink:     o.MaterialLink,
		CustomProperties: o.Properties,
	}
}

// ReleaseHandles drops the object's device handles.
func (o *Object) ReleaseHandles() {
	for _, h := range o.Instances {
		h.Release()
	}
	for _, h := range o.Lights {
		h.Release()
	}
	o.Instances, o.Lights = nil, nil
}
