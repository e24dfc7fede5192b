package binding

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	blerrors "github.com/blospray-dev/blospray/internal/errors"
	"github.com/blospray-dev/blospray/pkg/protocol"
)

// DefaultTransferFunctionEntries is the resampled table size.
const DefaultTransferFunctionEntries = 256

// coolToWarm is used when the client sends no color stops.
var coolToWarm = protocol.TransferFunction{
	Positions: []float32{0, 0.5, 1},
	Colors: []float32{
		0.231, 0.298, 0.752,
		0.865, 0.865, 0.865,
		0.706, 0.016, 0.150,
	},
}

// ResampleTransferFunction turns user color stops into n evenly spaced
// entries over [0,1] by piecewise-linear interpolation. Values before the
// first or after the last stop are clamped. Without alphas opacity ramps
// linearly from 0 to 1.
func ResampleTransferFunction(tf protocol.TransferFunction, n int) ([]mgl32.Vec3, []float32, error) {
	if n < 2 {
		n = 2
	}
	if len(tf.Positions) == 0 && len(tf.Colors) == 0 && len(tf.Alphas) == 0 {
		tf = coolToWarm
	}
	if err := validateStops(tf); err != nil {
		return nil, nil, err
	}

	colors := make([]mgl32.Vec3, n)
	opacity := make([]float32, n)
	pos := tf.Positions
	seg := 0
	for i := range colors {
		x := float32(i) / float32(n-1)
		for seg < len(pos)-2 && x > pos[seg+1] {
			seg++
		}
		lo, hi, t := seg, seg, float32(0)
		switch {
		case len(pos) == 1 || x <= pos[0]:
			lo, hi = 0, 0
		case x >= pos[len(pos)-1]:
			lo, hi = len(pos)-1, len(pos)-1
		default:
			hi = seg + 1
			t = (x - pos[lo]) / (pos[hi] - pos[lo])
		}
		for c := 0; c < 3; c++ {
			colors[i][c] = lerp(tf.Colors[3*lo+c], tf.Colors[3*hi+c], t)
		}
		if len(tf.Alphas) > 0 {
			opacity[i] = lerp(tf.Alphas[lo], tf.Alphas[hi], t)
		} else {
			opacity[i] = x
		}
	}
	return colors, opacity, nil
}

func validateStops(tf protocol.TransferFunction) error {
	n := len(tf.Positions)
	switch {
	case n == 0:
		return blerrors.New("B604").WithDetail("no color stops")
	case len(tf.Colors) != 3*n:
		return blerrors.New("B604").WithDetailf("%d positions but %d color values", n, len(tf.Colors))
	case len(tf.Alphas) != 0 && len(tf.Alphas) != n:
		return blerrors.New("B604").WithDetailf("%d positions but %d alphas", n, len(tf.Alphas))
	}
	for i, p := range tf.Positions {
		if math32.IsNaN(p) || p < 0 || p > 1 {
			return blerrors.New("B604").WithDetailf("position %g outside [0,1]", p)
		}
		if i > 0 && p <= tf.Positions[i-1] {
			return blerrors.New("B604").WithDetail("positions must be strictly increasing")
		}
	}
	return nil
}

func lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}
