// Package cpu is a small software implementation of device.Device.
//
// It is a stand-in for a production ray tracer: a BVH over triangles and
// spheres, ray marched volumes and isosurfaces, and two integrators
// ("scivis" with ambient occlusion and shadows, "pathtracer" with diffuse and
// glossy bounces). Rows of a frame are rendered in parallel.
//
// Parameter value types:
//
//	geometry/mesh           vertex.position, vertex.normal []mgl32.Vec3; vertex.color []mgl32.Vec4; index []uint32
//	geometry/sphere         sphere.position []mgl32.Vec3; radius float32; sphere.radius []float32; color []mgl32.Vec4
//	geometry/plane          plane.coefficients []mgl32.Vec4; plane.bounds *[2]mgl32.Vec3
//	geometry/isosurface     volume Object; isovalue []float32
//	volume/structuredRegular data []float32; dimensions [3]int; gridOrigin, gridSpacing mgl32.Vec3
//	transferFunction        color []mgl32.Vec3; opacity []float32; valueRange mgl32.Vec2
//	texture/texture2d       size [2]int; data []mgl32.Vec4
//	texture/volume          volume, transferFunction Object
//	geometricModel          geometry, material Object; color mgl32.Vec4
//	volumetricModel         volume, transferFunction Object; densityScale, samplingRate float32
//	group                   geometry, volume []Object
//	instance                group Object; transform mgl32.Mat4
//	world                   instance, light []Object
//
// Colors, directions and positions of lights, cameras and materials are
// mgl32.Vec3, scalars are float32 and counts are int.
package cpu

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/blospray-dev/blospray/pkg/device"
)

// Options configures a Device.
type Options struct {
	// Threads bounds the rows rendered concurrently. Zero means GOMAXPROCS.
	Threads int

	Logger *slog.Logger
}

// Device renders on the CPU.
type Device struct {
	threads int
	logger  *slog.Logger
	live    atomic.Int64
	frames  atomic.Uint64

	mu       sync.Mutex
	onError  func(error)
	closed   bool
	inflight sync.WaitGroup
}

var _ device.Device = (*Device)(nil)

// New creates a device.
func New(opts Options) *Device {
	if opts.Threads <= 0 {
		opts.Threads = runtime.GOMAXPROCS(0)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Device{
		threads: opts.Threads,
		logger:  opts.Logger.With("component", "device"),
	}
}

func (d *Device) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// NewObject creates an object of a known kind and subtype.
func (d *Device) NewObject(kind device.Kind, subtype string) (device.Object, error) {
	if d.isClosed() {
		return nil, device.ErrDeviceClosed
	}
	if !validSubtype(kind, subtype) {
		return nil, fmt.Errorf("%w: %s/%q", device.ErrUnknownSubtype, kind, subtype)
	}
	return d.newObject(kind, subtype), nil
}

// NewFrameBuffer creates an empty accumulation buffer.
func (d *Device) NewFrameBuffer(width, height int, format device.Format) (device.FrameBuffer, error) {
	if d.isClosed() {
		return nil, device.ErrDeviceClosed
	}
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("%w: %dx%d", device.ErrInvalidSize, width, height)
	}
	n := width * height
	fb := &frameBuffer{
		object: d.newObject(device.KindFrameBuffer, ""),
		width:  width,
		height: height,
		format: format,
		accum:  make([]float32, 4*n),
		lumSum: make([]float32, n),
		lumSq:  make([]float32, n),
	}
	fb.committed = struct{}{}
	return fb, nil
}

// RenderFrame renders one sample per pixel asynchronously.
func (d *Device) RenderFrame(fbo device.FrameBuffer, renderer, camera, world device.Object) (device.Future, error) {
	fb, ok := fbo.(*frameBuffer)
	if !ok || fb == nil {
		return nil, fmt.Errorf("%w: framebuffer", device.ErrMissingArgument)
	}
	if !fb.usable() {
		return nil, device.ErrInvalidFrame
	}

	task := &frameTask{width: fb.width, height: fb.height}
	for _, arg := range []struct {
		name string
		obj  device.Object
		kind device.Kind
	}{
		{"renderer", renderer, device.KindRenderer},
		{"camera", camera, device.KindCamera},
		{"world", world, device.KindWorld},
	} {
		o, ok := asObject(arg.obj)
		if !ok || o.kind != arg.kind {
			return nil, fmt.Errorf("%w: %s", device.ErrMissingArgument, arg.name)
		}
		switch v := o.snapshot().(type) {
		case *rendererData:
			task.renderer = v
		case *cameraData:
			task.camera = newCameraFrame(v)
		case *worldData:
			scene, err := buildFrameScene(v, task.renderer.subtype)
			if err != nil {
				return nil, err
			}
			task.scene = scene
		default:
			return nil, fmt.Errorf("%w: %s", device.ErrNotCommitted, arg.name)
		}
	}
	if bp := task.renderer.backplate; bp != nil {
		task.backplate, _ = bp.snapshot().(*texture2DData)
	}
	task.seed = d.frames.Add(1)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, device.ErrDeviceClosed
	}
	d.inflight.Add(1)
	d.mu.Unlock()

	f := newFuture()
	go func() {
		defer d.inflight.Done()
		f.finish(d.run(f, fb, task))
	}()
	return f, nil
}

func (d *Device) run(f *future, fb *frameBuffer, task *frameTask) error {
	sample := make([]float32, 4*task.width*task.height)
	var g errgroup.Group
	g.SetLimit(d.threads)
	for y := 0; y < task.height; y++ {
		if f.canceled.Load() {
			break
		}
		g.Go(func() error {
			if f.canceled.Load() {
				return device.ErrCanceled
			}
			task.renderRow(y, sample[4*y*task.width:4*(y+1)*task.width])
			return nil
		})
	}
	err := g.Wait()
	if f.canceled.Load() {
		fb.invalidate()
		return device.ErrCanceled
	}
	if err != nil {
		d.reportError(err)
		return err
	}
	fb.accumulate(sample)
	return nil
}

// SetErrorHandler installs fn for errors raised outside a direct call, such
// as failed commits.
func (d *Device) SetErrorHandler(fn func(error)) {
	d.mu.Lock()
	d.onError = fn
	d.mu.Unlock()
}

func (d *Device) reportError(err error) {
	d.mu.Lock()
	fn := d.onError
	d.mu.Unlock()
	if fn != nil {
		fn(err)
		return
	}
	d.logger.Warn("device error", "error", err)
}

// LiveObjects reports objects whose reference count has not reached zero.
func (d *Device) LiveObjects() int {
	return int(d.live.Load())
}

// Close waits for in-flight frames and rejects further work.
func (d *Device) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.inflight.Wait()
	return nil
}
