// Package builtin contains the plugins linked into the server binary.
package builtin

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/blospray-dev/blospray/pkg/device"
	"github.com/blospray-dev/blospray/pkg/plugin"
	"github.com/blospray-dev/blospray/pkg/protocol"
)

// Register adds every built-in plugin to r.
func Register(r *plugin.Registry) {
	r.Register(plugin.KindGeometry, "spheres", initSpheres)
	r.Register(plugin.KindGeometry, "ply", initPLY)
	r.Register(plugin.KindVolume, "procedural", initProcedural)
	r.Register(plugin.KindVolume, "raw", initRaw)
	r.Register(plugin.KindScene, "grid", initGrid)
}

// newCommitted creates, configures and commits a device object. On failure
// the object is released.
func newCommitted(d device.Device, kind device.Kind, subtype string, params map[string]any) (device.Object, error) {
	o, err := d.NewObject(kind, subtype)
	if err != nil {
		return nil, err
	}
	for k, v := range params {
		o.Set(k, v)
	}
	if err := o.Commit(); err != nil {
		o.Release()
		return nil, fmt.Errorf("%s/%s: %w", kind, subtype, err)
	}
	return o, nil
}

func boxBound(b [2]mgl32.Vec3) *protocol.BoundingMesh {
	return protocol.BoxBound([3]float32(b[0]), [3]float32(b[1]))
}

// newGrid builds a structured volume and returns it with its value range.
func newGrid(d device.Device, dims [3]int, values []float32, origin, spacing mgl32.Vec3) (device.Object, [2]float32, error) {
	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	vol, err := newCommitted(d, device.KindVolume, "structuredRegular", map[string]any{
		"data":        values,
		"dimensions":  dims,
		"gridOrigin":  origin,
		"gridSpacing": spacing,
	})
	return vol, [2]float32{lo, hi}, err
}

func gridBounds(dims [3]int, origin, spacing mgl32.Vec3) [2]mgl32.Vec3 {
	extent := mgl32.Vec3{
		spacing[0] * float32(dims[0]-1),
		spacing[1] * float32(dims[1]-1),
		spacing[2] * float32(dims[2]-1),
	}
	return [2]mgl32.Vec3{origin, origin.Add(extent)}
}

func dimensions(s *plugin.State) ([3]int, error) {
	d := s.Ints("dimensions")
	if len(d) != 3 || d[0] < 2 || d[1] < 2 || d[2] < 2 {
		return [3]int{}, fmt.Errorf("dimensions %v: each must be at least 2", d)
	}
	return [3]int{d[0], d[1], d[2]}, nil
}
