// Package device defines the scene-graph and frame-rendering interface of
// the ray tracer the server drives.
//
// Objects are opaque, reference counted handles created by a Device. A new
// object holds one reference owned by its creator. Setting an Object (or a
// []Object) as a parameter of another object retains it; replacing or
// removing the parameter, or releasing the holder for the last time,
// releases it. Parameter changes take effect on Commit. Children must be
// committed before the objects that reference them.
//
// Parameter names follow the usual ray tracer vocabulary, for example
// "vertex.position" on a mesh geometry or "transform" on an instance. The
// value types each implementation accepts are listed in its package.
package device

import (
	"errors"
)

// Kind is the type of an object.
type Kind string

const (
	KindGeometry         Kind = "geometry"
	KindVolume           Kind = "volume"
	KindTransferFunction Kind = "transferFunction"
	KindMaterial         Kind = "material"
	KindTexture          Kind = "texture"
	KindGeometricModel   Kind = "geometricModel"
	KindVolumetricModel  Kind = "volumetricModel"
	KindGroup            Kind = "group"
	KindInstance         Kind = "instance"
	KindLight            Kind = "light"
	KindCamera           Kind = "camera"
	KindRenderer         Kind = "renderer"
	KindWorld            Kind = "world"
	KindFrameBuffer      Kind = "framebuffer"
)

// Format is a framebuffer pixel format.
type Format int

const (
	FormatNone Format = iota
	FormatRGBA8
	FormatSRGBA
	FormatRGBA32F
)

// Errors shared by implementations.
var (
	ErrUnknownSubtype  = errors.New("device: unknown object subtype")
	ErrNotCommitted    = errors.New("device: referenced object was never committed")
	ErrBadParameter    = errors.New("device: parameter has wrong type")
	ErrReleased        = errors.New("device: object already released")
	ErrInvalidFrame    = errors.New("device: framebuffer unusable after cancel")
	ErrInvalidSize     = errors.New("device: invalid framebuffer size")
	ErrDeviceClosed    = errors.New("device: closed")
	ErrCanceled        = errors.New("device: frame canceled")
	ErrMissingArgument = errors.New("device: missing render argument")
	ErrMissingParam    = errors.New("device: required parameter not set")
)

// Object is a reference counted scene-graph handle.
type Object interface {
	Kind() Kind
	Subtype() string

	// Set stages a parameter value. Object and []Object values are retained.
	Set(name string, value any)

	// Remove stages the removal of a parameter.
	Remove(name string)

	// Commit makes staged parameters visible to rendering.
	Commit() error

	Retain()
	Release()
}

// FrameBuffer is an accumulating render target.
type FrameBuffer interface {
	Object

	Width() int
	Height() int
	Format() Format

	// Pixels returns a copy of the accumulated color as RGBA float32 values,
	// row-major from the lower-left corner.
	Pixels() []float32

	// Variance estimates the remaining noise of the accumulated image.
	Variance() float32

	// ResetAccumulation discards accumulated samples.
	ResetAccumulation()
}

// Future is an in-flight frame.
type Future interface {
	// Done is closed when the frame has finished or was canceled.
	Done() <-chan struct{}

	// IsReady reports whether Done is closed without blocking.
	IsReady() bool

	// Wait blocks until the frame has finished.
	Wait()

	// Cancel asks the frame to stop early. Wait must still be called.
	Cancel()

	// Err is the outcome once ready: nil, ErrCanceled or a render failure.
	Err() error

	// Release drops the future.
	Release()
}

// Device creates objects and renders frames.
type Device interface {
	NewObject(kind Kind, subtype string) (Object, error)
	NewFrameBuffer(width, height int, format Format) (FrameBuffer, error)

	// RenderFrame starts rendering one sample per pixel into fb. The frame
	// only reads state committed before the call.
	RenderFrame(fb FrameBuffer, renderer, camera, world Object) (Future, error)

	// SetErrorHandler installs the callback for asynchronous errors.
	SetErrorHandler(func(error))

	// LiveObjects is the number of objects with a non-zero reference count.
	LiveObjects() int

	Close() error
}
