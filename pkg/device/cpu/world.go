package cpu

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/blospray-dev/blospray/pkg/device"
)

// surface is one geometric model resolved for a frame.
type surface struct {
	mesh     *meshData
	spheres  *sphereData
	plane    *planeData
	iso      *isosurfaceData
	material *materialData
	volTex   *volumeTextureData
	color    *mgl32.Vec4
	bounds   aabb
	infinite bool
}

// placed is an instance with its transforms precomputed.
type placed struct {
	xfm       mgl32.Mat4
	inv       mgl32.Mat4
	normalXfm mgl32.Mat3
	surfaces  []surface
	volumes   []*volumetricModelData
	bounds    aabb
	infinite  bool
}

// frameScene is the immutable view of a committed world that one frame
// renders.
type frameScene struct {
	instances []placed
	lights    []*lightData
	ambient   mgl32.Vec3
}

var defaultMaterial = &materialData{albedo: mgl32.Vec3{0.8, 0.8, 0.8}}

func snapshotAs[T any](o *object) (T, error) {
	v, ok := o.snapshot().(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%s", device.ErrNotCommitted, o.kind, o.subtype)
	}
	return v, nil
}

// buildFrameScene flattens a world for one frame rendered by renderer.
func buildFrameScene(w *worldData, renderer string) (*frameScene, error) {
	fs := &frameScene{}
	for _, lo := range w.lights {
		l, err := snapshotAs[*lightData](lo)
		if err != nil {
			return nil, err
		}
		if l.subtype == "ambient" {
			fs.ambient = fs.ambient.Add(l.color.Mul(l.intensity))
			continue
		}
		fs.lights = append(fs.lights, l)
	}

	for _, io := range w.instances {
		inst, err := snapshotAs[*instanceData](io)
		if err != nil {
			return nil, err
		}
		group, err := snapshotAs[*groupData](inst.group)
		if err != nil {
			return nil, err
		}
		p := placed{
			xfm:    inst.transform,
			inv:    inst.transform.Inv(),
			bounds: emptyAABB(),
		}
		p.normalXfm = p.inv.Mat3().Transpose()

		local := emptyAABB()
		for _, mo := range group.models {
			s, err := resolveSurface(mo, renderer)
			if err != nil {
				return nil, err
			}
			if s.infinite {
				p.infinite = true
			} else {
				local = local.union(s.bounds)
			}
			p.surfaces = append(p.surfaces, s)
		}
		for _, vo := range group.volumes {
			vm, err := snapshotAs[*volumetricModelData](vo)
			if err != nil {
				return nil, err
			}
			local = local.union(vm.volume.bounds)
			p.volumes = append(p.volumes, vm)
		}
		if len(p.surfaces) == 0 && len(p.volumes) == 0 {
			continue
		}
		p.bounds = local.transform(p.xfm)
		fs.instances = append(fs.instances, p)
	}
	return fs, nil
}

func resolveSurface(mo *object, renderer string) (surface, error) {
	model, err := snapshotAs[*geometricModelData](mo)
	if err != nil {
		return surface{}, err
	}
	s := surface{material: defaultMaterial, color: model.color}
	if model.material != nil {
		if s.material, err = snapshotAs[*materialData](model.material); err != nil {
			return surface{}, err
		}
		if r := s.material.renderer; r != "" && r != renderer {
			return surface{}, fmt.Errorf("%w: material created for %s used by %s", device.ErrBadParameter, r, renderer)
		}
		if tex := s.material.texture; tex != nil {
			if vt, ok := tex.snapshot().(*volumeTextureData); ok {
				s.volTex = vt
			}
		}
	}

	switch g := model.geometry.snapshot().(type) {
	case *meshData:
		s.mesh, s.bounds = g, g.bounds
	case *sphereData:
		s.spheres, s.bounds = g, g.bounds
	case *planeData:
		s.plane = g
		if g.bounds != nil {
			s.bounds = *g.bounds
		} else {
			s.infinite = true
		}
	case *isosurfaceData:
		s.iso, s.bounds = g, g.volume.bounds
	default:
		return surface{}, fmt.Errorf("%w: geometric model without geometry", device.ErrNotCommitted)
	}
	return s, nil
}
