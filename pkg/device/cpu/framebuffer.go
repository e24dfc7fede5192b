package cpu

import (
	"sync"

	"github.com/chewxy/math32"

	"github.com/blospray-dev/blospray/pkg/device"
)

// frameBuffer accumulates RGBA samples plus per-pixel luminance moments for
// the variance estimate.
type frameBuffer struct {
	*object

	width, height int
	format        device.Format

	mu      sync.Mutex
	accum   []float32
	lumSum  []float32
	lumSq   []float32
	frames  int
	invalid bool
}

var _ device.FrameBuffer = (*frameBuffer)(nil)

func (fb *frameBuffer) Width() int            { return fb.width }
func (fb *frameBuffer) Height() int           { return fb.height }
func (fb *frameBuffer) Format() device.Format { return fb.format }

func (fb *frameBuffer) Pixels() []float32 {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	out := make([]float32, len(fb.accum))
	if fb.frames == 0 {
		return out
	}
	inv := 1 / float32(fb.frames)
	for i, v := range fb.accum {
		out[i] = v * inv
	}
	return out
}

// Variance is the mean standard error of per-pixel luminance. It is
// infinite until two frames have been accumulated.
func (fb *frameBuffer) Variance() float32 {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if fb.frames < 2 {
		return math32.Inf(1)
	}
	n := float32(fb.frames)
	var total float32
	for i := range fb.lumSum {
		mean := fb.lumSum[i] / n
		v := (fb.lumSq[i]/n - mean*mean) * n / (n - 1)
		if v > 0 {
			total += math32.Sqrt(v / n)
		}
	}
	return total / float32(len(fb.lumSum))
}

func (fb *frameBuffer) ResetAccumulation() {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	clear(fb.accum)
	clear(fb.lumSum)
	clear(fb.lumSq)
	fb.frames = 0
}

func (fb *frameBuffer) usable() bool {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return !fb.invalid
}

// invalidate marks the buffer unusable. Accumulation state is undefined
// after a canceled frame, so the owner must create a new buffer.
func (fb *frameBuffer) invalidate() {
	fb.mu.Lock()
	fb.invalid = true
	fb.mu.Unlock()
}

func (fb *frameBuffer) accumulate(sample []float32) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	for i := range fb.lumSum {
		r, g, b := sample[4*i], sample[4*i+1], sample[4*i+2]
		fb.accum[4*i] += r
		fb.accum[4*i+1] += g
		fb.accum[4*i+2] += b
		fb.accum[4*i+3] += sample[4*i+3]
		l := 0.2126*r + 0.7152*g + 0.0722*b
		fb.lumSum[i] += l
		fb.lumSq[i] += l * l
	}
	fb.frames++
}

func (fb *frameBuffer) frameCount() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.frames
}
