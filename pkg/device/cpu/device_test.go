package cpu

import (
	"errors"
	"testing"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blospray-dev/blospray/pkg/device"
)

func newObj(t *testing.T, d *Device, kind device.Kind, subtype string, params map[string]any) device.Object {
	t.Helper()
	o, err := d.NewObject(kind, subtype)
	require.NoError(t, err)
	for k, v := range params {
		o.Set(k, v)
	}
	require.NoError(t, o.Commit())
	return o
}

// sphereScene builds a world with a single sphere of radius 1 at the origin
// and a camera looking at it from +z.
func sphereScene(t *testing.T, d *Device, rendererType string) (renderer, camera, world device.Object) {
	t.Helper()
	geom := newObj(t, d, device.KindGeometry, "sphere", map[string]any{
		"sphere.position": []mgl32.Vec3{{0, 0, 0}},
		"radius":          float32(1),
	})
	mat := newObj(t, d, device.KindMaterial, "obj", map[string]any{"kd": mgl32.Vec3{1, 0, 0}})
	model := newObj(t, d, device.KindGeometricModel, "", map[string]any{"geometry": geom, "material": mat})
	group := newObj(t, d, device.KindGroup, "", map[string]any{"geometry": []device.Object{model}})
	inst := newObj(t, d, device.KindInstance, "", map[string]any{"group": group})
	ambient := newObj(t, d, device.KindLight, "ambient", map[string]any{"intensity": float32(1)})
	world = newObj(t, d, device.KindWorld, "", map[string]any{
		"instance": []device.Object{inst},
		"light":    []device.Object{ambient},
	})
	camera = newObj(t, d, device.KindCamera, "perspective", map[string]any{
		"position":  mgl32.Vec3{0, 0, 5},
		"direction": mgl32.Vec3{0, 0, -1},
		"fovy":      float32(30),
	})
	renderer = newObj(t, d, device.KindRenderer, rendererType, map[string]any{
		"backgroundColor": mgl32.Vec4{0, 0, 1, 1},
	})
	for _, o := range []device.Object{geom, mat, model, group, inst, ambient} {
		o.Release()
	}
	return renderer, camera, world
}

func pixel(px []float32, width, x, y int) mgl32.Vec4 {
	i := 4 * (y*width + x)
	return mgl32.Vec4{px[i], px[i+1], px[i+2], px[i+3]}
}

func TestNewObjectRejectsUnknownSubtype(t *testing.T) {
	d := New(Options{Threads: 2})
	_, err := d.NewObject(device.KindGeometry, "torus")
	assert.ErrorIs(t, err, device.ErrUnknownSubtype)

	_, err = d.NewObject(device.KindCamera, "fisheye")
	assert.ErrorIs(t, err, device.ErrUnknownSubtype)

	_, err = d.NewFrameBuffer(0, 10, device.FormatRGBA32F)
	assert.ErrorIs(t, err, device.ErrInvalidSize)
}

func TestReferenceCounting(t *testing.T) {
	d := New(Options{Threads: 1})
	geom := newObj(t, d, device.KindGeometry, "sphere", map[string]any{
		"sphere.position": []mgl32.Vec3{{0, 0, 0}},
	})
	model := newObj(t, d, device.KindGeometricModel, "", map[string]any{"geometry": geom})
	assert.Equal(t, 2, d.LiveObjects())

	// The model keeps the geometry alive after its creator lets go.
	geom.Release()
	assert.Equal(t, 2, d.LiveObjects())

	model.Release()
	assert.Equal(t, 0, d.LiveObjects())
}

func TestSetReplacesAndReleasesOldValue(t *testing.T) {
	d := New(Options{Threads: 1})
	a := newObj(t, d, device.KindGeometry, "sphere", map[string]any{"sphere.position": []mgl32.Vec3{{}}})
	b := newObj(t, d, device.KindGeometry, "sphere", map[string]any{"sphere.position": []mgl32.Vec3{{}}})
	model := newObj(t, d, device.KindGeometricModel, "", map[string]any{"geometry": a})
	a.Release()
	assert.Equal(t, 3, d.LiveObjects())

	model.Set("geometry", b)
	assert.Equal(t, 2, d.LiveObjects())

	model.Remove("geometry")
	b.Release()
	assert.Equal(t, 1, d.LiveObjects())
}

func TestCommitErrorsReachHandler(t *testing.T) {
	d := New(Options{Threads: 1})
	var reported []error
	d.SetErrorHandler(func(err error) { reported = append(reported, err) })

	mesh, err := d.NewObject(device.KindGeometry, "mesh")
	require.NoError(t, err)
	mesh.Set("vertex.position", []mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}})
	mesh.Set("index", []uint32{0, 1, 7})

	err = mesh.Commit()
	assert.ErrorIs(t, err, device.ErrBadParameter)
	require.Len(t, reported, 1)

	mesh.Set("index", []uint32{0, 1, 2})
	assert.NoError(t, mesh.Commit())

	mesh.Set("index", "not an index array")
	assert.ErrorIs(t, mesh.Commit(), device.ErrBadParameter)
}

func TestCommitRequiresCommittedChildren(t *testing.T) {
	d := New(Options{Threads: 1})
	geom, err := d.NewObject(device.KindGeometry, "sphere")
	require.NoError(t, err)
	model, err := d.NewObject(device.KindGeometricModel, "")
	require.NoError(t, err)
	model.Set("geometry", geom)
	assert.ErrorIs(t, model.Commit(), device.ErrNotCommitted)
}

func TestRenderSphere(t *testing.T) {
	for _, kind := range []string{"scivis", "pathtracer"} {
		t.Run(kind, func(t *testing.T) {
			d := New(Options{Threads: 4})
			renderer, camera, world := sphereScene(t, d, kind)
			fb, err := d.NewFrameBuffer(32, 32, device.FormatRGBA32F)
			require.NoError(t, err)

			f, err := d.RenderFrame(fb, renderer, camera, world)
			require.NoError(t, err)
			f.Wait()
			require.NoError(t, f.Err())
			assert.True(t, f.IsReady())
			assert.True(t, math32.IsInf(fb.Variance(), 1))

			px := fb.Pixels()
			center := pixel(px, 32, 16, 16)
			assert.Greater(t, center[0], float32(0.1), "sphere is red")
			assert.InDelta(t, 0, center[2], 1e-6)
			assert.InDelta(t, 1, center[3], 1e-6)

			corner := pixel(px, 32, 0, 0)
			assert.Equal(t, mgl32.Vec4{0, 0, 1, 1}, corner)

			f, err = d.RenderFrame(fb, renderer, camera, world)
			require.NoError(t, err)
			f.Wait()
			require.NoError(t, f.Err())
			assert.False(t, math32.IsInf(fb.Variance(), 1))

			fb.ResetAccumulation()
			assert.Equal(t, 0, fb.(*frameBuffer).frameCount())
			require.NoError(t, d.Close())
		})
	}
}

func TestMaterialBoundToRenderer(t *testing.T) {
	d := New(Options{Threads: 1})
	defer d.Close()

	bogus, err := d.NewObject(device.KindMaterial, "obj")
	require.NoError(t, err)
	bogus.Set("renderer", "raymarcher")
	assert.ErrorIs(t, bogus.Commit(), device.ErrBadParameter)
	bogus.Release()

	geom := newObj(t, d, device.KindGeometry, "sphere", map[string]any{
		"sphere.position": []mgl32.Vec3{{0, 0, 0}},
		"radius":          float32(1),
	})
	mat := newObj(t, d, device.KindMaterial, "obj", map[string]any{"kd": mgl32.Vec3{1, 0, 0}, "renderer": "scivis"})
	model := newObj(t, d, device.KindGeometricModel, "", map[string]any{"geometry": geom, "material": mat})
	group := newObj(t, d, device.KindGroup, "", map[string]any{"geometry": []device.Object{model}})
	inst := newObj(t, d, device.KindInstance, "", map[string]any{"group": group})
	world := newObj(t, d, device.KindWorld, "", map[string]any{"instance": []device.Object{inst}})
	camera := newObj(t, d, device.KindCamera, "perspective", map[string]any{
		"position":  mgl32.Vec3{0, 0, 5},
		"direction": mgl32.Vec3{0, 0, -1},
	})
	fb, err := d.NewFrameBuffer(4, 4, device.FormatRGBA32F)
	require.NoError(t, err)

	pt := newObj(t, d, device.KindRenderer, "pathtracer", nil)
	_, err = d.RenderFrame(fb, pt, camera, world)
	assert.ErrorIs(t, err, device.ErrBadParameter)

	sv := newObj(t, d, device.KindRenderer, "scivis", nil)
	f, err := d.RenderFrame(fb, sv, camera, world)
	require.NoError(t, err)
	f.Wait()
	assert.NoError(t, f.Err())
	f.Release()
}

func TestCancelInvalidatesFrameBuffer(t *testing.T) {
	d := New(Options{Threads: 1})
	renderer, camera, world := sphereScene(t, d, "pathtracer")
	fb, err := d.NewFrameBuffer(256, 256, device.FormatRGBA32F)
	require.NoError(t, err)

	f, err := d.RenderFrame(fb, renderer, camera, world)
	require.NoError(t, err)
	f.Cancel()
	f.Wait()
	if !errors.Is(f.Err(), device.ErrCanceled) {
		t.Skip("frame finished before the cancel request was observed")
	}

	_, err = d.RenderFrame(fb, renderer, camera, world)
	assert.ErrorIs(t, err, device.ErrInvalidFrame)

	fresh, err := d.NewFrameBuffer(8, 8, device.FormatRGBA32F)
	require.NoError(t, err)
	f, err = d.RenderFrame(fresh, renderer, camera, world)
	require.NoError(t, err)
	f.Wait()
	assert.NoError(t, f.Err())
}

func TestRenderVolumeAndIsosurface(t *testing.T) {
	d := New(Options{Threads: 4})
	const n = 8
	data := make([]float32, n*n*n)
	for z := 0; z < n; z++ {
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				p := mgl32.Vec3{float32(x) - 3.5, float32(y) - 3.5, float32(z) - 3.5}
				data[x+n*(y+n*z)] = p.Len()
			}
		}
	}
	vol := newObj(t, d, device.KindVolume, "structuredRegular", map[string]any{
		"data":        data,
		"dimensions":  [3]int{n, n, n},
		"gridOrigin":  mgl32.Vec3{-1, -1, -1},
		"gridSpacing": mgl32.Vec3{2.0 / 7, 2.0 / 7, 2.0 / 7},
	})
	tf := newObj(t, d, device.KindTransferFunction, "piecewiseLinear", map[string]any{
		"color":      []mgl32.Vec3{{1, 1, 1}, {1, 1, 1}},
		"opacity":    []float32{1, 1},
		"valueRange": mgl32.Vec2{0, 6},
	})
	iso := newObj(t, d, device.KindGeometry, "isosurface", map[string]any{
		"volume":   vol,
		"isovalue": []float32{2},
	})
	camera := newObj(t, d, device.KindCamera, "orthographic", map[string]any{
		"position":  mgl32.Vec3{0, 0, 5},
		"direction": mgl32.Vec3{0, 0, -1},
		"height":    float32(4),
	})
	renderer := newObj(t, d, device.KindRenderer, "scivis", nil)
	ambient := newObj(t, d, device.KindLight, "ambient", nil)

	render := func(group device.Object) []float32 {
		t.Helper()
		inst := newObj(t, d, device.KindInstance, "", map[string]any{"group": group})
		world := newObj(t, d, device.KindWorld, "", map[string]any{
			"instance": []device.Object{inst},
			"light":    []device.Object{ambient},
		})
		fb, err := d.NewFrameBuffer(16, 16, device.FormatRGBA32F)
		require.NoError(t, err)
		f, err := d.RenderFrame(fb, renderer, camera, world)
		require.NoError(t, err)
		f.Wait()
		require.NoError(t, f.Err())
		return fb.Pixels()
	}

	vm := newObj(t, d, device.KindVolumetricModel, "", map[string]any{"volume": vol, "transferFunction": tf})
	px := render(newObj(t, d, device.KindGroup, "", map[string]any{"volume": []device.Object{vm}}))
	assert.Greater(t, pixel(px, 16, 8, 8)[3], float32(0.5))
	assert.InDelta(t, 0, pixel(px, 16, 0, 0)[3], 1e-6)

	model := newObj(t, d, device.KindGeometricModel, "", map[string]any{"geometry": iso})
	px = render(newObj(t, d, device.KindGroup, "", map[string]any{"geometry": []device.Object{model}}))
	assert.InDelta(t, 1, pixel(px, 16, 8, 8)[3], 1e-6)
	assert.InDelta(t, 0, pixel(px, 16, 0, 0)[3], 1e-6)
}

func TestMetalReflectance(t *testing.T) {
	r := metalReflectance(mgl32.Vec3{1, 1, 1}, mgl32.Vec3{0, 0, 0})
	assert.Equal(t, mgl32.Vec3{0, 0, 0}, r)

	silver := metalReflectance(mgl32.Vec3{0.051, 0.043, 0.041}, mgl32.Vec3{5.3, 3.6, 2.3})
	for i := 0; i < 3; i++ {
		assert.Greater(t, silver[i], float32(0.8))
	}
}

func TestAABBIntersect(t *testing.T) {
	b := aabb{min: mgl32.Vec3{-1, -1, -1}, max: mgl32.Vec3{1, 1, 1}}
	t0, t1, ok := b.intersect(ray{origin: mgl32.Vec3{0, 0, 5}, dir: mgl32.Vec3{0, 0, -1}}, 0, math32.Inf(1))
	require.True(t, ok)
	assert.InDelta(t, 4, t0, 1e-6)
	assert.InDelta(t, 6, t1, 1e-6)

	_, _, ok = b.intersect(ray{origin: mgl32.Vec3{3, 0, 5}, dir: mgl32.Vec3{0, 0, -1}}, 0, math32.Inf(1))
	assert.False(t, ok)
}
