package binding

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	blerrors "github.com/blospray-dev/blospray/internal/errors"
	"github.com/blospray-dev/blospray/pkg/protocol"
)

func TestResampleDefaultRamp(t *testing.T) {
	colors, opacity, err := ResampleTransferFunction(protocol.TransferFunction{}, 3)
	require.NoError(t, err)
	require.Len(t, colors, 3)
	assert.InDeltaSlice(t, []float32{0.231, 0.298, 0.752}, colors[0][:], 1e-6)
	assert.InDeltaSlice(t, []float32{0.865, 0.865, 0.865}, colors[1][:], 1e-6)
	assert.InDeltaSlice(t, []float32{0.706, 0.016, 0.150}, colors[2][:], 1e-6)
	assert.InDeltaSlice(t, []float32{0, 0.5, 1}, opacity, 1e-6)
}

func TestResampleInterpolatesAndClamps(t *testing.T) {
	tf := protocol.TransferFunction{
		Positions: []float32{0.25, 0.75},
		Colors:    []float32{1, 0, 0, 0, 0, 1},
		Alphas:    []float32{0, 1},
	}
	colors, opacity, err := ResampleTransferFunction(tf, 5)
	require.NoError(t, err)

	want := []mgl32.Vec3{{1, 0, 0}, {1, 0, 0}, {0.5, 0, 0.5}, {0, 0, 1}, {0, 0, 1}}
	for i := range want {
		assert.InDeltaSlice(t, want[i][:], colors[i][:], 1e-6, "entry %d", i)
	}
	assert.InDeltaSlice(t, []float32{0, 0, 0.5, 1, 1}, opacity, 1e-6)
}

func TestResampleSingleStop(t *testing.T) {
	colors, _, err := ResampleTransferFunction(protocol.TransferFunction{
		Positions: []float32{0.5},
		Colors:    []float32{0.1, 0.2, 0.3},
	}, 4)
	require.NoError(t, err)
	for _, c := range colors {
		assert.InDeltaSlice(t, []float32{0.1, 0.2, 0.3}, c[:], 1e-6)
	}
}

func TestResampleMinimumEntries(t *testing.T) {
	colors, opacity, err := ResampleTransferFunction(protocol.TransferFunction{}, 0)
	require.NoError(t, err)
	assert.Len(t, colors, 2)
	assert.Len(t, opacity, 2)
}

func TestResampleRejectsInvalidStops(t *testing.T) {
	tests := []struct {
		name string
		tf   protocol.TransferFunction
	}{
		{"colors without positions", protocol.TransferFunction{Colors: []float32{1, 1, 1}}},
		{"color length", protocol.TransferFunction{Positions: []float32{0, 1}, Colors: []float32{1, 1, 1}}},
		{"alpha length", protocol.TransferFunction{Positions: []float32{0, 1}, Colors: make([]float32, 6), Alphas: []float32{1}}},
		{"not increasing", protocol.TransferFunction{Positions: []float32{0.5, 0.5}, Colors: make([]float32, 6)}},
		{"decreasing", protocol.TransferFunction{Positions: []float32{0.6, 0.2}, Colors: make([]float32, 6)}},
		{"above one", protocol.TransferFunction{Positions: []float32{0, 1.5}, Colors: make([]float32, 6)}},
		{"negative", protocol.TransferFunction{Positions: []float32{-0.1, 1}, Colors: make([]float32, 6)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ResampleTransferFunction(tt.tf, 16)
			var coded *blerrors.Error
			require.ErrorAs(t, err, &coded)
			assert.Equal(t, "B604", coded.Code)
		})
	}
}
