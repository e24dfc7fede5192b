package builtin

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/blospray-dev/blospray/pkg/device"
	"github.com/blospray-dev/blospray/pkg/plugin"
)

const maxGridSize = 256

// initGrid sets up a scene plugin that places size x size instances of one
// sphere group in the z=0 plane, lit by a distant light. The light is
// brighter for the path tracer, so the output depends on the renderer type.
func initGrid(def *plugin.Definition) error {
	def.Parameters = []plugin.Parameter{
		{Name: "size", Type: plugin.ParamInt, Length: 1, Description: "instances per side"},
		{Name: "spacing", Type: plugin.ParamFloat, Length: 1, Flags: plugin.FlagOptional, Description: "distance between instances"},
	}
	def.UsesRendererType = true
	def.Generate = generateGrid
	return nil
}

func generateGrid(s *plugin.State) (err error) {
	size := s.Int("size", 0)
	spacing := s.Float("spacing", 1)
	if size < 1 || size > maxGridSize {
		return fmt.Errorf("size %d out of range [1,%d]", size, maxGridSize)
	}

	var created []device.Object
	defer func() {
		for _, o := range created {
			o.Release()
		}
	}()
	mk := func(kind device.Kind, subtype string, params map[string]any) device.Object {
		if err != nil {
			return nil
		}
		var o device.Object
		o, err = newCommitted(s.Device, kind, subtype, params)
		if err == nil {
			created = append(created, o)
		}
		return o
	}

	const radius = 0.4
	geom := mk(device.KindGeometry, "sphere", map[string]any{
		"sphere.position": []mgl32.Vec3{{0, 0, 0}},
		"radius":          float32(radius),
	})
	mat := mk(device.KindMaterial, "obj", map[string]any{"kd": mgl32.Vec3{0.8, 0.5, 0.2}})
	model := mk(device.KindGeometricModel, "", map[string]any{"geometry": geom, "material": mat})
	group := mk(device.KindGroup, "", map[string]any{"geometry": []device.Object{model}})

	intensity := float32(1)
	if s.RendererType == "pathtracer" {
		intensity = math.Pi
	}
	light := mk(device.KindLight, "distant", map[string]any{
		"direction": mgl32.Vec3{-1, -1, -1},
		"intensity": intensity,
	})
	if err != nil {
		return err
	}

	offset := spacing * float32(size-1) / 2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			group.Retain()
			s.Instances = append(s.Instances, plugin.SceneInstance{
				Group:     group,
				Transform: mgl32.Translate3D(float32(x)*spacing-offset, float32(y)*spacing-offset, 0),
			})
		}
	}
	light.Retain()
	s.Lights = append(s.Lights, light)

	lo := mgl32.Vec3{-offset - radius, -offset - radius, -radius}
	s.Bound = boxBound([2]mgl32.Vec3{lo, lo.Mul(-1)})
	return nil
}
