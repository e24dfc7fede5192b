package binding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-gl/mathgl/mgl32"

	blerrors "github.com/blospray-dev/blospray/internal/errors"
	"github.com/blospray-dev/blospray/pkg/device"
	"github.com/blospray-dev/blospray/pkg/plugin"
	"github.com/blospray-dev/blospray/pkg/protocol"
	"github.com/blospray-dev/blospray/pkg/scene"
)

// Renderer types that are created up front.
var rendererTypes = []string{protocol.RendererSciVis, protocol.RendererPathTracer}

// Options configures a Binder.
type Options struct {
	// TransferFunctionEntries is the resampled table size. Zero means
	// DefaultTransferFunctionEntries.
	TransferFunctionEntries int

	Logger *slog.Logger
}

// Binder owns the device side of a session.
type Binder struct {
	dev     device.Device
	mirror  *scene.Mirror
	plugins *plugin.Host
	logger  *slog.Logger

	tfEntries int

	rendererType   string
	renderers      map[string]device.Object
	renderSettings protocol.RenderSettings
	worldSettings  protocol.WorldSettings

	camera         device.Object
	cameraSettings protocol.CameraSettings

	world     device.Object
	ambient   device.Object
	backplate device.Object

	materials       map[string]*material
	defaultMaterial device.Object

	fb framebuffers
}

// New creates the renderers, camera, world, ambient light and default
// material on dev.
func New(dev device.Device, mirror *scene.Mirror, plugins *plugin.Host, opts Options) (*Binder, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	b := &Binder{
		dev:          dev,
		mirror:       mirror,
		plugins:      plugins,
		logger:       logger.With("component", "binding"),
		tfEntries:    opts.TransferFunctionEntries,
		rendererType: protocol.RendererSciVis,
		renderers:    make(map[string]device.Object),
		materials:    make(map[string]*material),
		renderSettings: protocol.RenderSettings{
			AORadius:        1e20,
			AOIntensity:     1,
			MaxDepth:        5,
			MinContribution: 0.001,
			ShadowsEnabled:  true,
		},
		worldSettings: protocol.WorldSettings{
			AmbientColor:     [3]float32{1, 1, 1},
			AmbientIntensity: 0.2,
		},
		cameraSettings: protocol.CameraSettings{
			Type:    protocol.CameraPerspective,
			ViewDir: [3]float32{0, 0, -1},
			UpDir:   [3]float32{0, 1, 0},
			FovY:    60,
			Aspect:  1,
		},
	}
	b.fb.dev = dev
	if b.tfEntries <= 0 {
		b.tfEntries = DefaultTransferFunctionEntries
	}

	if err := b.init(); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *Binder) init() error {
	for _, t := range rendererTypes {
		r, err := b.dev.NewObject(device.KindRenderer, t)
		if err != nil {
			return blerrors.New("B701").WithDetail(t).Wrap(err)
		}
		b.renderers[t] = r
	}
	var err error
	if b.world, err = b.dev.NewObject(device.KindWorld, ""); err != nil {
		return blerrors.New("B701").WithDetail("world").Wrap(err)
	}
	if b.ambient, err = b.dev.NewObject(device.KindLight, protocol.LightAmbient.String()); err != nil {
		return blerrors.New("B701").WithDetail("ambient light").Wrap(err)
	}
	if b.defaultMaterial, err = b.newDefaultMaterial(); err != nil {
		return err
	}
	if err := b.SetCamera(&b.cameraSettings); err != nil {
		return err
	}
	if err := b.SetWorldSettings(&b.worldSettings); err != nil {
		return err
	}
	if err := b.SetRenderSettings(&b.renderSettings); err != nil {
		return err
	}
	b.mirror.MarkAllDirty()
	return b.CommitWorld()
}

// newCommitted creates and commits an object, releasing it on failure.
func (b *Binder) newCommitted(kind device.Kind, subtype string, params map[string]any) (device.Object, error) {
	o, err := b.dev.NewObject(kind, subtype)
	if err != nil {
		return nil, blerrors.New("B701").WithDetailf("%s %q", kind, subtype).Wrap(err)
	}
	for k, v := range params {
		o.Set(k, v)
	}
	if err := o.Commit(); err != nil {
		o.Release()
		return nil, blerrors.New("B702").WithDetailf("%s %q", kind, subtype).Wrap(err)
	}
	return o, nil
}

func commit(o device.Object, what string) error {
	if err := o.Commit(); err != nil {
		return blerrors.New("B702").WithDetail(what).Wrap(err)
	}
	return nil
}

// RendererType returns the current renderer type.
func (b *Binder) RendererType() string { return b.rendererType }

// Renderer returns the handle of the current renderer.
func (b *Binder) Renderer() device.Object { return b.renderers[b.rendererType] }

// SetRendererType switches renderers. On a change every material is
// recreated, renderer-dependent plugin instances are regenerated and every
// object is rebuilt. It reports whether anything changed.
func (b *Binder) SetRendererType(ctx context.Context, t string) (bool, error) {
	if _, ok := b.renderers[t]; !ok {
		return false, blerrors.New("B607").WithDetailf("%q", t).
			WithSuggestion(fmt.Sprintf("Use %q or %q", protocol.RendererSciVis, protocol.RendererPathTracer))
	}
	if t == b.rendererType {
		return false, nil
	}
	b.logger.Info("renderer type changed", "from", b.rendererType, "to", t)
	b.rendererType = t

	if err := b.recreateMaterials(); err != nil {
		return true, err
	}
	b.regenerateRendererDependent(ctx)

	var names []string
	for _, o := range b.mirror.Objects() {
		names = append(names, o.Name)
	}
	return true, b.rebuild(names)
}

// regenerateRendererDependent reruns plugins whose output depends on the
// renderer type. Failures keep the previous output.
func (b *Binder) regenerateRendererDependent(ctx context.Context) {
	for _, d := range b.mirror.AllData() {
		inst := d.Plugin
		if d.Kind != scene.DataPlugin || inst == nil || inst.State == nil || !inst.UsesRendererType {
			continue
		}
		req := plugin.Request{
			Kind:         inst.ID.Kind,
			Name:         inst.ID.Name,
			Parameters:   inst.State.Parameters,
			Properties:   inst.State.Properties,
			RendererType: b.rendererType,
			Device:       b.dev,
		}
		fresh, generated, err := b.plugins.Update(ctx, inst, req)
		if err != nil {
			b.logger.Warn("plugin regeneration failed", "data", d.Name, "plugin", inst.ID, "error", err)
			continue
		}
		if generated {
			b.mirror.PutData(&scene.Data{Name: d.Name, Kind: scene.DataPlugin, Plugin: fresh})
		}
	}
}

// SetRenderSettings applies s to every renderer.
func (b *Binder) SetRenderSettings(s *protocol.RenderSettings) error {
	b.renderSettings = *s
	for _, t := range rendererTypes {
		r := b.renderers[t]
		r.Set("aoSamples", int(s.AOSamples))
		r.Set("aoDistance", s.AORadius)
		r.Set("aoIntensity", s.AOIntensity)
		r.Set("maxPathLength", int(s.MaxDepth))
		r.Set("minContribution", s.MinContribution)
		r.Set("varianceThreshold", s.VarianceThreshold)
		r.Set("shadows", s.ShadowsEnabled)
		if err := commit(r, "renderer "+t); err != nil {
			return err
		}
	}
	return nil
}

// SetWorldSettings applies ambient light and background. The path tracer
// gets the background as a 1x1 backplate texture.
func (b *Binder) SetWorldSettings(s *protocol.WorldSettings) error {
	b.worldSettings = *s

	b.ambient.Set("color", mgl32.Vec3(s.AmbientColor))
	b.ambient.Set("intensity", s.AmbientIntensity)
	if err := commit(b.ambient, "ambient light"); err != nil {
		return err
	}

	bg := mgl32.Vec4(s.BackgroundColor)
	plate, err := b.newCommitted(device.KindTexture, "texture2d", map[string]any{
		"size": [2]int{1, 1},
		"data": []mgl32.Vec4{bg},
	})
	if err != nil {
		return err
	}
	if b.backplate != nil {
		b.backplate.Release()
	}
	b.backplate = plate

	scivis := b.renderers[protocol.RendererSciVis]
	scivis.Set("backgroundColor", bg)
	if err := commit(scivis, "renderer scivis"); err != nil {
		return err
	}
	pt := b.renderers[protocol.RendererPathTracer]
	pt.Set("backgroundColor", bg)
	pt.Set("backplate", plate)
	if err := commit(pt, "renderer pathtracer"); err != nil {
		return err
	}
	b.mirror.MarkAllDirty()
	return nil
}

// SetCamera replaces the camera. A change of projection creates a new
// camera object.
func (b *Binder) SetCamera(s *protocol.CameraSettings) error {
	subtype := s.Type.String()
	if s.Type > protocol.CameraPanoramic {
		return blerrors.New("B606").WithDetailf("camera type %d", uint32(s.Type))
	}
	if b.camera == nil || b.camera.Subtype() != subtype {
		cam, err := b.dev.NewObject(device.KindCamera, subtype)
		if err != nil {
			return blerrors.New("B701").WithDetail("camera").Wrap(err)
		}
		if b.camera != nil {
			b.camera.Release()
		}
		b.camera = cam
	}
	b.cameraSettings = *s

	cam := b.camera
	cam.Set("position", mgl32.Vec3(s.Position))
	cam.Set("direction", mgl32.Vec3(s.ViewDir))
	cam.Set("up", mgl32.Vec3(s.UpDir))
	cam.Set("aspect", s.Aspect)
	cam.Set("nearClip", s.NearClip)
	switch s.Type {
	case protocol.CameraPerspective:
		cam.Set("fovy", s.FovY)
	case protocol.CameraOrthographic:
		cam.Set("height", s.Height)
	}
	if s.HasBorder {
		cam.Set("imageStart", mgl32.Vec2{s.Border[0], s.Border[1]})
		cam.Set("imageEnd", mgl32.Vec2{s.Border[2], s.Border[3]})
	} else {
		cam.Remove("imageStart")
		cam.Remove("imageEnd")
	}
	if s.DofFocusDistance > 0 {
		cam.Set("focusDistance", s.DofFocusDistance)
		cam.Set("apertureRadius", s.DofAperture)
	} else {
		cam.Remove("focusDistance")
		cam.Remove("apertureRadius")
	}
	return commit(cam, "camera")
}

// Camera returns the camera handle.
func (b *Binder) Camera() device.Object { return b.camera }

// World returns the world handle.
func (b *Binder) World() device.Object { return b.world }

// CommitWorld recommits the instance and light lists that changed since the
// last commit.
func (b *Binder) CommitWorld() error {
	instDirty, lightDirty := b.mirror.InstancesDirty(), b.mirror.LightsDirty()
	if !instDirty && !lightDirty {
		return nil
	}
	objects := b.mirror.Objects()
	if instDirty {
		var instances []device.Object
		for _, o := range objects {
			instances = append(instances, o.Instances...)
		}
		b.world.Set("instance", instances)
	}
	if lightDirty {
		lights := []device.Object{b.ambient}
		for _, o := range objects {
			lights = append(lights, o.Lights...)
		}
		b.world.Set("light", lights)
	}
	if err := commit(b.world, "world"); err != nil {
		return err
	}
	b.mirror.MarkClean()
	return nil
}

// Close releases every handle the binder owns. Scene objects and data are
// left to the mirror.
func (b *Binder) Close() {
	b.fb.release()
	for _, m := range b.materials {
		m.handle.Release()
	}
	b.materials = make(map[string]*material)
	for _, o := range []device.Object{b.defaultMaterial, b.backplate, b.camera, b.ambient, b.world} {
		if o != nil {
			o.Release()
		}
	}
	b.defaultMaterial, b.backplate, b.camera, b.ambient, b.world = nil, nil, nil, nil, nil
	for t, r := range b.renderers {
		r.Release()
		delete(b.renderers, t)
	}
}
