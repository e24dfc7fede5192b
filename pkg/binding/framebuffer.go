package binding

import (
	blerrors "github.com/blospray-dev/blospray/internal/errors"
	"github.com/blospray-dev/blospray/pkg/device"
	"github.com/blospray-dev/blospray/pkg/protocol"
)

// framebuffers is the pyramid of framebuffers, one per reduction factor,
// created on first use.
type framebuffers struct {
	dev    device.Device
	format protocol.FramebufferFormat
	width  int
	height int

	levels   map[int]device.FrameBuffer
	recreate map[int]bool
}

func deviceFormat(f protocol.FramebufferFormat) (device.Format, bool) {
	switch f {
	case protocol.FramebufferNone:
		return device.FormatNone, true
	case protocol.FramebufferRGBA8:
		return device.FormatRGBA8, true
	case protocol.FramebufferSRGBA:
		return device.FormatSRGBA, true
	case protocol.FramebufferRGBA32F:
		return device.FormatRGBA32F, true
	}
	return 0, false
}

// ReducedSize is the framebuffer size at a reduction factor, never smaller
// than one pixel.
func ReducedSize(width, height, factor int) (int, int) {
	if factor < 1 {
		factor = 1
	}
	return max(width/factor, 1), max(height/factor, 1)
}

func (f *framebuffers) release() {
	for _, fb := range f.levels {
		fb.Release()
	}
	f.levels = nil
	f.recreate = nil
}

// level returns the framebuffer for factor, creating it if it does not exist
// or was marked for recreation.
func (f *framebuffers) level(factor int) (device.FrameBuffer, error) {
	if f.width == 0 || f.height == 0 {
		return nil, blerrors.New("B605").WithDetail("no framebuffer configured").
			WithSuggestion("Send UPDATE_FRAMEBUFFER before START_RENDERING")
	}
	if factor < 1 {
		factor = 1
	}
	if fb, ok := f.levels[factor]; ok && !f.recreate[factor] {
		return fb, nil
	}
	if old, ok := f.levels[factor]; ok {
		old.Release()
		delete(f.levels, factor)
	}
	delete(f.recreate, factor)

	format, _ := deviceFormat(f.format)
	w, h := ReducedSize(f.width, f.height, factor)
	fb, err := f.dev.NewFrameBuffer(w, h, format)
	if err != nil {
		return nil, blerrors.New("B701").WithDetailf("framebuffer %dx%d", w, h).Wrap(err)
	}
	if f.levels == nil {
		f.levels = make(map[int]device.FrameBuffer)
	}
	f.levels[factor] = fb
	return fb, nil
}

// SetFramebuffer configures the full-resolution size and drops the pyramid.
func (b *Binder) SetFramebuffer(format protocol.FramebufferFormat, width, height int) error {
	if _, ok := deviceFormat(format); !ok {
		return blerrors.New("B605").WithDetailf("unknown format %d", uint32(format))
	}
	if width < 1 || height < 1 {
		return blerrors.New("B605").WithDetailf("%dx%d", width, height)
	}
	if format == b.fb.format && width == b.fb.width && height == b.fb.height {
		return nil
	}
	b.fb.release()
	b.fb.format, b.fb.width, b.fb.height = format, width, height
	b.logger.Debug("framebuffer configured", "format", format, "width", width, "height", height)
	return nil
}

// FramebufferSize returns the configured full-resolution size.
func (b *Binder) FramebufferSize() (int, int) { return b.fb.width, b.fb.height }

// Framebuffer returns the framebuffer for a reduction factor.
func (b *Binder) Framebuffer(factor int) (device.FrameBuffer, error) {
	return b.fb.level(factor)
}

// MarkFramebufferForRecreation makes the next Framebuffer call for each
// factor return a fresh framebuffer. Used after a canceled frame.
func (b *Binder) MarkFramebufferForRecreation(factors ...int) {
	if b.fb.recreate == nil {
		b.fb.recreate = make(map[int]bool)
	}
	for _, factor := range factors {
		b.fb.recreate[max(factor, 1)] = true
	}
}

// RenderFrame commits the world and starts one frame at factor.
func (b *Binder) RenderFrame(factor int) (device.Future, device.FrameBuffer, error) {
	if err := b.CommitWorld(); err != nil {
		return nil, nil, err
	}
	fb, err := b.Framebuffer(factor)
	if err != nil {
		return nil, nil, err
	}
	fut, err := b.dev.RenderFrame(fb, b.Renderer(), b.camera, b.world)
	if err != nil {
		return nil, nil, blerrors.New("B703").Wrap(err)
	}
	return fut, fb, nil
}
