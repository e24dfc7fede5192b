package binding

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	blerrors "github.com/blospray-dev/blospray/internal/errors"
	"github.com/blospray-dev/blospray/pkg/device"
	"github.com/blospray-dev/blospray/pkg/protocol"
	"github.com/blospray-dev/blospray/pkg/scene"
)

// ObjectSettings is the type-specific body that followed an object update.
type ObjectSettings struct {
	Volume *protocol.VolumeSettings
	Slices *protocol.SlicesSettings
	Light  *protocol.LightSettings
}

// UpdateObject builds the device side of an object and installs it in the
// mirror, replacing any object of the same name. On failure the mirror is
// not changed.
func (b *Binder) UpdateObject(u *protocol.UpdateObject, s ObjectSettings) error {
	o, err := b.buildObject(u, s)
	if err != nil {
		return err
	}
	b.mirror.PutObject(o)
	return nil
}

// rebuild recreates named objects from their stored updates, e.g. after the
// data or material they use was replaced. An object whose data link no longer
// resolves to compatible data is removed; other failures keep the previous
// handles.
func (b *Binder) rebuild(names []string) error {
	var errs []error
	for _, name := range names {
		old, ok := b.mirror.Object(name)
		if !ok {
			continue
		}
		o, err := b.buildObject(old.Update(), ObjectSettings{Volume: old.Volume, Slices: old.Slices, Light: old.Light})
		if err != nil {
			if blerrors.Is(err, blerrors.KindBinding) {
				b.mirror.RemoveObject(name)
				b.logger.Warn("object removed, data link no longer valid", "object", name, "error", err)
			} else {
				b.logger.Warn("object rebuild failed", "object", name, "error", err)
			}
			errs = append(errs, fmt.Errorf("object %q: %w", name, err))
			continue
		}
		b.mirror.PutObject(o)
	}
	return errors.Join(errs...)
}

func (b *Binder) buildObject(u *protocol.UpdateObject, s ObjectSettings) (*scene.Object, error) {
	d, err := b.mirror.Resolve(u)
	if err != nil {
		return nil, err
	}
	if d != nil && d.Kind == scene.DataPlugin && d.State() == nil {
		return nil, blerrors.New("B501").WithDetailf("data %q has no plugin output", d.Name)
	}
	o := scene.NewObject(u)
	o.Volume, o.Slices, o.Light = s.Volume, s.Slices, s.Light

	switch u.Type {
	case protocol.ObjectMesh:
		err = b.buildSurface(o, d.Mesh)
	case protocol.ObjectGeometry:
		err = b.buildSurface(o, d.State().Geometry)
	case protocol.ObjectVolume:
		err = b.buildVolume(o, d)
	case protocol.ObjectIsosurfaces:
		err = b.buildIsosurfaces(o, d)
	case protocol.ObjectSlices:
		err = b.buildSlices(o, d)
	case protocol.ObjectScene:
		err = b.buildScene(o, d)
	case protocol.ObjectLight:
		err = b.buildLight(o)
	}
	if err != nil {
		o.ReleaseHandles()
		return nil, err
	}
	return o, nil
}

func releaseAll(objs []device.Object) {
	for _, o := range objs {
		o.Release()
	}
}

// place wraps models and volumetric models in a group and instances it with
// the object's transform. The caller's references to models and volumes are
// consumed.
func (b *Binder) place(o *scene.Object, models, volumes []device.Object) error {
	defer releaseAll(models)
	defer releaseAll(volumes)

	params := make(map[string]any, 2)
	if len(models) > 0 {
		params["geometry"] = models
	}
	if len(volumes) > 0 {
		params["volume"] = volumes
	}
	group, err := b.newCommitted(device.KindGroup, "", params)
	if err != nil {
		return err
	}
	defer group.Release()

	inst, err := b.newCommitted(device.KindInstance, "", map[string]any{
		"group":     group,
		"transform": o.Transform,
	})
	if err != nil {
		return err
	}
	o.Instances = append(o.Instances, inst)
	return nil
}

func (b *Binder) buildSurface(o *scene.Object, geom device.Object) error {
	if geom == nil {
		return blerrors.New("B501").WithDetailf("data %q has no geometry", o.DataLink)
	}
	mat, isDefault := b.resolveMaterial(o.Name, o.MaterialLink)
	o.DefaultMaterial = isDefault
	model, err := b.newCommitted(device.KindGeometricModel, "", map[string]any{
		"geometry": geom,
		"material": mat,
	})
	if err != nil {
		return err
	}
	return b.place(o, []device.Object{model}, nil)
}

// newTransferFunction resamples tf and maps it onto the data range.
func (b *Binder) newTransferFunction(tf protocol.TransferFunction, dataRange [2]float32) (device.Object, error) {
	colors, opacity, err := ResampleTransferFunction(tf, b.tfEntries)
	if err != nil {
		return nil, err
	}
	lo, hi := dataRange[0], dataRange[1]
	if !(hi > lo) {
		hi = lo + 1
	}
	return b.newCommitted(device.KindTransferFunction, "piecewiseLinear", map[string]any{
		"color":      colors,
		"opacity":    opacity,
		"valueRange": mgl32.Vec2{lo, hi},
	})
}

func volumeSettings(o *scene.Object) protocol.VolumeSettings {
	if o.Volume != nil {
		return *o.Volume
	}
	return protocol.VolumeSettings{SamplingRate: 1}
}

func (b *Binder) buildVolume(o *scene.Object, d *scene.Data) error {
	st := d.State()
	vs := volumeSettings(o)
	tf, err := b.newTransferFunction(vs.TransferFunction, st.DataRange)
	if err != nil {
		return err
	}
	defer tf.Release()
	model, err := b.newCommitted(device.KindVolumetricModel, "", map[string]any{
		"volume":           st.Volume,
		"transferFunction": tf,
		"samplingRate":     vs.SamplingRate,
		"densityScale":     float32(1),
	})
	if err != nil {
		return err
	}
	return b.place(o, nil, []device.Object{model})
}

func (b *Binder) buildIsosurfaces(o *scene.Object, d *scene.Data) error {
	st := d.State()
	isovalues := volumeSettings(o).Isovalues
	if len(isovalues) == 0 {
		mid := (st.DataRange[0] + st.DataRange[1]) / 2
		b.logger.Warn("isosurfaces without isovalues, using mid range", "object", o.Name, "isovalue", mid)
		isovalues = []float32{mid}
	}
	geom, err := b.newCommitted(device.KindGeometry, "isosurface", map[string]any{
		"volume":   st.Volume,
		"isovalue": isovalues,
	})
	if err != nil {
		return err
	}
	defer geom.Release()
	return b.buildSurface(o, geom)
}

// boundBox returns the axis-aligned box around a bounding mesh.
func boundBox(bm *protocol.BoundingMesh) (*[2]mgl32.Vec3, bool) {
	if bm == nil || bm.NumVertices() == 0 {
		return nil, false
	}
	lo := mgl32.Vec3{math32.Inf(1), math32.Inf(1), math32.Inf(1)}
	hi := mgl32.Vec3{math32.Inf(-1), math32.Inf(-1), math32.Inf(-1)}
	for i := 0; i < bm.NumVertices(); i++ {
		for c := 0; c < 3; c++ {
			v := bm.Vertices[3*i+c]
			lo[c] = math32.Min(lo[c], v)
			hi[c] = math32.Max(hi[c], v)
		}
	}
	return &[2]mgl32.Vec3{lo, hi}, true
}

// buildSlices cuts the volume with planes, colored through the transfer
// function by a volume texture.
func (b *Binder) buildSlices(o *scene.Object, d *scene.Data) error {
	if o.Slices == nil || len(o.Slices.Planes) == 0 {
		return blerrors.New("B606").WithDetailf("slices object %q has no planes", o.Name)
	}
	st := d.State()

	coeffs := make([]mgl32.Vec4, len(o.Slices.Planes))
	for i, p := range o.Slices.Planes {
		coeffs[i] = mgl32.Vec4(p)
	}
	params := map[string]any{"plane.coefficients": coeffs}
	if box, ok := boundBox(d.Bound()); ok {
		params["plane.bounds"] = box
	} else {
		b.logger.Warn("slices over data without bound are unbounded", "object", o.Name, "data", d.Name)
	}
	geom, err := b.newCommitted(device.KindGeometry, "plane", params)
	if err != nil {
		return err
	}
	defer geom.Release()

	tf, err := b.newTransferFunction(o.Slices.TransferFunction, st.DataRange)
	if err != nil {
		return err
	}
	defer tf.Release()
	tex, err := b.newCommitted(device.KindTexture, "volume", map[string]any{
		"volume":           st.Volume,
		"transferFunction": tf,
	})
	if err != nil {
		return err
	}
	defer tex.Release()
	mat, err := b.newCommitted(device.KindMaterial, protocol.MaterialOBJ.String(), map[string]any{
		"kd":       mgl32.Vec3{1, 1, 1},
		"map_kd":   tex,
		"renderer": b.rendererType,
	})
	if err != nil {
		return err
	}
	defer mat.Release()

	model, err := b.newCommitted(device.KindGeometricModel, "", map[string]any{
		"geometry": geom,
		"material": mat,
	})
	if err != nil {
		return err
	}
	return b.place(o, []device.Object{model}, nil)
}

// buildScene instances every group a scene plugin produced under the
// object's transform and takes a reference to its lights.
func (b *Binder) buildScene(o *scene.Object, d *scene.Data) error {
	st := d.State()
	for i, si := range st.Instances {
		inst, err := b.newCommitted(device.KindInstance, "", map[string]any{
			"group":     si.Group,
			"transform": o.Transform.Mul4(si.Transform),
		})
		if err != nil {
			return fmt.Errorf("scene instance %d: %w", i, err)
		}
		o.Instances = append(o.Instances, inst)
	}
	for _, l := range st.Lights {
		l.Retain()
		o.Lights = append(o.Lights, l)
	}
	return nil
}

func (b *Binder) buildLight(o *scene.Object) error {
	ls := o.Light
	if ls == nil {
		return blerrors.New("B102").WithDetailf("light object %q without light settings", o.Name)
	}
	params := map[string]any{
		"color":     mgl32.Vec3(ls.Color),
		"intensity": ls.Intensity,
		"visible":   ls.Visible,
	}
	switch ls.Type {
	case protocol.LightAmbient:
	case protocol.LightDistant, protocol.LightSun:
		params["direction"] = mgl32.Vec3(ls.Direction)
		params["angularDiameter"] = ls.AngularDiameter
	case protocol.LightPoint:
		params["position"] = mgl32.Vec3(ls.Position)
		params["radius"] = ls.Radius
	case protocol.LightSpot:
		params["position"] = mgl32.Vec3(ls.Position)
		params["direction"] = mgl32.Vec3(ls.Direction)
		params["radius"] = ls.Radius
		params["openingAngle"] = ls.OpeningAngle
		params["penumbraAngle"] = ls.PenumbraAngle
	case protocol.LightArea:
		params["position"] = mgl32.Vec3(ls.Position)
		params["edge1"] = mgl32.Vec3(ls.Edge1)
		params["edge2"] = mgl32.Vec3(ls.Edge2)
	default:
		return blerrors.New("B606").WithDetailf("light %q has unknown type %d", o.Name, uint32(ls.Type))
	}
	light, err := b.newCommitted(device.KindLight, ls.Type.String(), params)
	if err != nil {
		return err
	}
	o.Lights = append(o.Lights, light)
	return nil
}
