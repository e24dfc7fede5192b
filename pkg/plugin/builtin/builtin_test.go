package builtin

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	blerrors "github.com/blospray-dev/blospray/internal/errors"
	"github.com/blospray-dev/blospray/pkg/device"
	"github.com/blospray-dev/blospray/pkg/device/cpu"
	"github.com/blospray-dev/blospray/pkg/plugin"
)

func newHost() (*plugin.Host, device.Device) {
	reg := plugin.NewRegistry()
	Register(reg)
	return plugin.NewHost(nil, reg), cpu.New(cpu.Options{Threads: 1})
}

func generate(t *testing.T, kind plugin.Kind, name, params, renderer string) (*plugin.Host, device.Device, *plugin.Instance, error) {
	t.Helper()
	h, dev := newHost()
	inst, err := h.Generate(context.Background(), plugin.Request{
		Kind:         kind,
		Name:         name,
		Parameters:   []byte(params),
		RendererType: renderer,
		Device:       dev,
	})
	return h, dev, inst, err
}

func TestRegisterListsAllPlugins(t *testing.T) {
	reg := plugin.NewRegistry()
	Register(reg)
	var names []string
	for _, id := range reg.IDs() {
		names = append(names, id.String())
	}
	assert.Equal(t, []string{"geometry/ply", "geometry/spheres", "scene/grid", "volume/procedural", "volume/raw"}, names)
}

func TestSpheres(t *testing.T) {
	for _, params := range []string{`{"count":27,"radius":0.1}`, `{"count":10,"radius":0.1,"seed":42}`} {
		h, dev, inst, err := generate(t, plugin.KindGeometry, "spheres", params, "scivis")
		require.NoError(t, err, params)
		require.NotNil(t, inst.State.Geometry)
		assert.Equal(t, device.KindGeometry, inst.State.Geometry.Kind())
		require.NotNil(t, inst.State.Bound)
		assert.Equal(t, 8, inst.State.Bound.NumVertices())

		h.Release(inst)
		assert.Equal(t, 0, dev.LiveObjects())
	}

	_, _, _, err := generate(t, plugin.KindGeometry, "spheres", `{"count":0,"radius":0.1}`, "scivis")
	assert.True(t, blerrors.Is(err, blerrors.KindPlugin))

	_, _, _, err = generate(t, plugin.KindGeometry, "spheres", `{"count":3}`, "scivis")
	assert.True(t, blerrors.Is(err, blerrors.KindParameter))
}

func TestProceduralVolume(t *testing.T) {
	h, dev, inst, err := generate(t, plugin.KindVolume, "procedural", `{"dimensions":[8,8,8]}`, "scivis")
	require.NoError(t, err)
	require.NotNil(t, inst.State.Volume)
	r := inst.State.DataRange
	assert.GreaterOrEqual(t, r[0], float32(0))
	assert.LessOrEqual(t, r[1], float32(1))
	assert.Less(t, r[0], r[1])
	h.Release(inst)
	assert.Equal(t, 0, dev.LiveObjects())

	_, _, _, err = generate(t, plugin.KindVolume, "procedural", `{"dimensions":[1,8,8]}`, "scivis")
	assert.True(t, blerrors.Is(err, blerrors.KindPlugin))
}

func TestMarschnerLobbRange(t *testing.T) {
	for _, p := range [][3]float64{{0, 0, 0}, {1, 1, 1}, {-1, 0.5, -1}, {0.3, -0.7, 0.2}} {
		v := marschnerLobb(p[0], p[1], p[2], 6, 0.25)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestRawVolume(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.raw")
	values := []float32{0, 1, 2, 3, 4, 5, 6, -7}
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, values))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	params := `{"file":"` + path + `","dimensions":[2,2,2],"spacing":[0.5,0.5,0.5]}`
	h, dev, inst, err := generate(t, plugin.KindVolume, "raw", params, "scivis")
	require.NoError(t, err)
	assert.Equal(t, [2]float32{-7, 6}, inst.State.DataRange)
	h.Release(inst)
	assert.Equal(t, 0, dev.LiveObjects())

	params = `{"file":"` + path + `","dimensions":[3,2,2]}`
	_, _, _, err = generate(t, plugin.KindVolume, "raw", params, "scivis")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "need 48")
}

const asciiSquare = `ply
format ascii 1.0
comment unit square
element vertex 4
property float x
property float y
property float z
property uchar red
property uchar green
property uchar blue
element face 1
property list uchar int vertex_indices
end_header
0 0 0 255 0 0
1 0 0 0 255 0
1 1 0 0 0 255
0 1 0 255 255 255
4 0 1 2 3
`

func TestReadPLYASCII(t *testing.T) {
	m, err := readPLY(bufio.NewReader(strings.NewReader(asciiSquare)))
	require.NoError(t, err)
	assert.Len(t, m.positions, 4)
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, m.indices)
	require.Len(t, m.colors, 4)
	assert.InDelta(t, 1, m.colors[0][0], 1e-6)
	assert.InDelta(t, 1, m.colors[2][2], 1e-6)
	assert.Nil(t, m.normals)
	assert.Equal(t, float32(1), m.bounds[1][0])
}

func TestReadPLYBinary(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("ply\nformat binary_little_endian 1.0\nelement vertex 3\n" +
		"property float x\nproperty float y\nproperty float z\n" +
		"property float nx\nproperty float ny\nproperty float nz\n" +
		"element face 1\nproperty list uchar uint vertex_indices\nend_header\n")
	for _, v := range [][6]float32{{-1, -1, 0, 0, 0, 1}, {1, -1, 0, 0, 0, 1}, {0, 1, 0, 0, 0, 1}} {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, v))
	}
	buf.WriteByte(3)
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, []uint32{0, 1, 2}))

	m, err := readPLY(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1, 2}, m.indices)
	require.Len(t, m.normals, 3)
	assert.Equal(t, float32(1), m.normals[1][2])
}

func TestReadPLYErrors(t *testing.T) {
	tests := map[string]string{
		"not ply":      "obj\n",
		"big endian":   "ply\nformat binary_big_endian 1.0\nend_header\n",
		"no faces":     "ply\nformat ascii 1.0\nelement vertex 1\nproperty float x\nend_header\n0\n",
		"bad index":    "ply\nformat ascii 1.0\nelement vertex 1\nproperty float x\nelement face 1\nproperty list uchar int vertex_indices\nend_header\n0\n3 0 1 2\n",
		"truncated":    "ply\nformat ascii 1.0\nelement vertex 2\nproperty float x\nend_header\n0\n",
		"orphan props": "ply\nformat ascii 1.0\nproperty float x\nend_header\n",
	}
	for name, input := range tests {
		_, err := readPLY(bufio.NewReader(strings.NewReader(input)))
		assert.Error(t, err, name)
	}
}

func TestPLYPlugin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "square.ply")
	require.NoError(t, os.WriteFile(path, []byte(asciiSquare), 0o644))
	h, dev, inst, err := generate(t, plugin.KindGeometry, "ply", `{"file":"`+path+`"}`, "scivis")
	require.NoError(t, err)
	assert.NotNil(t, inst.State.Geometry)
	h.Release(inst)
	assert.Equal(t, 0, dev.LiveObjects())

	_, _, _, err = generate(t, plugin.KindGeometry, "ply", `{"file":"/nonexistent.ply"}`, "scivis")
	assert.True(t, blerrors.Is(err, blerrors.KindPlugin))
}

func TestGridScene(t *testing.T) {
	h, dev, inst, err := generate(t, plugin.KindScene, "grid", `{"size":3,"spacing":2}`, "pathtracer")
	require.NoError(t, err)
	assert.True(t, inst.UsesRendererType)
	require.Len(t, inst.State.Instances, 9)
	require.Len(t, inst.State.Lights, 1)

	first := inst.State.Instances[0].Transform.Col(3)
	assert.InDelta(t, -2, first[0], 1e-6)
	assert.InDelta(t, -2, first[1], 1e-6)

	h.Release(inst)
	assert.Equal(t, 0, dev.LiveObjects())

	_, _, _, err = generate(t, plugin.KindScene, "grid", `{"size":0}`, "scivis")
	assert.Error(t, err)
}
