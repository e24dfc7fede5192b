package scene

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	blerrors "github.com/blospray-dev/blospray/internal/errors"
	"github.com/blospray-dev/blospray/pkg/device"
	"github.com/blospray-dev/blospray/pkg/device/cpu"
	"github.com/blospray-dev/blospray/pkg/plugin"
	"github.com/blospray-dev/blospray/pkg/plugin/builtin"
	"github.com/blospray-dev/blospray/pkg/protocol"
)

type fixture struct {
	dev  *cpu.Device
	host *plugin.Host
	m    *Mirror
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := plugin.NewRegistry()
	builtin.Register(reg)
	f := &fixture{dev: cpu.New(cpu.Options{Threads: 1}), host: plugin.NewHost(nil, reg)}
	f.m = New(f.host, nil)
	t.Cleanup(func() {
		f.host.Close()
		f.dev.Close()
	})
	return f
}

func (f *fixture) mesh(t *testing.T, name string) *Data {
	t.Helper()
	g, err := f.dev.NewObject(device.KindGeometry, "mesh")
	require.NoError(t, err)
	g.Set("vertex.position", []mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}})
	g.Set("index", []uint32{0, 1, 2})
	require.NoError(t, g.Commit())
	return &Data{Name: name, Kind: DataHostMesh, Mesh: g, NumVertices: 3, NumTriangles: 1}
}

func (f *fixture) plugin(t *testing.T, name string, kind plugin.Kind, plug, params string) *Data {
	t.Helper()
	inst, err := f.host.Generate(context.Background(), plugin.Request{
		Kind: kind, Name: plug, Parameters: []byte(params),
		RendererType: protocol.RendererSciVis, Device: f.dev,
	})
	require.NoError(t, err)
	return &Data{Name: name, Kind: DataPlugin, Plugin: inst}
}

// object builds a scene object holding one instance reference.
func (f *fixture) object(t *testing.T, typ protocol.ObjectType, name, link string) *Object {
	t.Helper()
	o := NewObject(&protocol.UpdateObject{Type: typ, Name: name, DataLink: link, ObjectToWorld: [16]float32(mgl32.Ident4())})
	inst, err := f.dev.NewObject(device.KindInstance, "")
	require.NoError(t, err)
	if typ == protocol.ObjectLight {
		o.Lights = append(o.Lights, inst)
	} else {
		o.Instances = append(o.Instances, inst)
	}
	return o
}

func TestPutDataReplacesAcrossKinds(t *testing.T) {
	f := newFixture(t)

	f.m.PutData(f.mesh(t, "thing"))
	k, _ := f.m.Kind("thing")
	assert.Equal(t, DataHostMesh, k)
	assert.Equal(t, 1, f.dev.LiveObjects())

	f.m.PutData(f.plugin(t, "thing", plugin.KindGeometry, "spheres", `{"count": 8, "radius": 0.1}`))
	k, _ = f.m.Kind("thing")
	assert.Equal(t, DataPlugin, k)
	// The mesh is gone; only the sphere geometry remains.
	assert.Equal(t, 1, f.dev.LiveObjects())

	f.m.PutData(f.mesh(t, "thing"))
	k, _ = f.m.Kind("thing")
	assert.Equal(t, DataHostMesh, k)
	assert.Equal(t, 1, f.dev.LiveObjects())
	assert.Nil(t, f.m.PluginInstance("thing"))
}

func TestPutDataSameInstanceKeepsHandles(t *testing.T) {
	f := newFixture(t)
	d := f.plugin(t, "s", plugin.KindGeometry, "spheres", `{"count": 1, "radius": 0.5}`)
	f.m.PutData(d)
	f.m.PutData(&Data{Name: "s", Kind: DataPlugin, Plugin: d.Plugin})
	require.NotNil(t, f.m.PluginInstance("s"))
	assert.NotNil(t, f.m.PluginInstance("s").State)
	assert.Equal(t, 1, f.dev.LiveObjects())
}

func TestPutDataReportsLinkedObjects(t *testing.T) {
	f := newFixture(t)
	f.m.PutData(f.mesh(t, "m"))
	f.m.PutObject(f.object(t, protocol.ObjectMesh, "b", "m"))
	f.m.PutObject(f.object(t, protocol.ObjectMesh, "a", "m"))
	f.m.PutObject(f.object(t, protocol.ObjectLight, "sun", ""))

	assert.Equal(t, []string{"a", "b"}, f.m.PutData(f.mesh(t, "m")))
	assert.Empty(t, f.m.PutData(f.mesh(t, "other")))
}

func TestResolve(t *testing.T) {
	f := newFixture(t)
	f.m.PutData(f.mesh(t, "mesh"))
	f.m.PutData(f.plugin(t, "vol", plugin.KindVolume, "procedural", `{"dimensions": [8, 8, 8]}`))

	tests := []struct {
		name string
		typ  protocol.ObjectType
		link string
		code string
	}{
		{"mesh ok", protocol.ObjectMesh, "mesh", ""},
		{"volume ok", protocol.ObjectVolume, "vol", ""},
		{"isosurfaces ok", protocol.ObjectIsosurfaces, "vol", ""},
		{"slices ok", protocol.ObjectSlices, "vol", ""},
		{"light needs nothing", protocol.ObjectLight, "", ""},
		{"missing", protocol.ObjectMesh, "nope", "B501"},
		{"mesh as volume", protocol.ObjectVolume, "mesh", "B502"},
		{"volume as geometry", protocol.ObjectGeometry, "vol", "B502"},
		{"volume as mesh", protocol.ObjectMesh, "vol", "B502"},
		{"unknown type", protocol.ObjectType(42), "mesh", "B503"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.m.Resolve(&protocol.UpdateObject{Type: tt.typ, Name: "o", DataLink: tt.link})
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			var coded *blerrors.Error
			require.ErrorAs(t, err, &coded)
			assert.Equal(t, tt.code, coded.Code)
			assert.True(t, blerrors.Is(err, blerrors.KindBinding))
		})
	}
}

func TestPutObjectReleasesReplaced(t *testing.T) {
	f := newFixture(t)
	f.m.PutData(f.mesh(t, "m"))
	f.m.PutObject(f.object(t, protocol.ObjectMesh, "o", "m"))
	assert.Equal(t, 2, f.dev.LiveObjects())

	f.m.PutObject(f.object(t, protocol.ObjectMesh, "o", "m"))
	assert.Equal(t, 2, f.dev.LiveObjects())
	assert.Len(t, f.m.Objects(), 1)

	assert.True(t, f.m.RemoveObject("o"))
	assert.False(t, f.m.RemoveObject("o"))
	assert.Equal(t, 1, f.dev.LiveObjects())
}

func TestDirtyFlags(t *testing.T) {
	f := newFixture(t)
	f.m.MarkClean()

	f.m.PutObject(f.object(t, protocol.ObjectLight, "l", ""))
	assert.True(t, f.m.LightsDirty())
	assert.False(t, f.m.InstancesDirty())
	f.m.MarkClean()

	f.m.PutData(f.mesh(t, "m"))
	f.m.PutObject(f.object(t, protocol.ObjectMesh, "o", "m"))
	assert.True(t, f.m.InstancesDirty())
	assert.False(t, f.m.LightsDirty())
	f.m.MarkClean()

	f.m.PutObject(f.object(t, protocol.ObjectScene, "s", ""))
	assert.True(t, f.m.InstancesDirty())
	assert.True(t, f.m.LightsDirty())
}

func TestClear(t *testing.T) {
	t.Run("all", func(t *testing.T) {
		f := newFixture(t)
		f.m.PutData(f.mesh(t, "m"))
		f.m.PutData(f.plugin(t, "p", plugin.KindGeometry, "spheres", `{"count": 2, "radius": 0.1}`))
		f.m.PutObject(f.object(t, protocol.ObjectMesh, "o", "m"))

		require.NoError(t, f.m.Clear(protocol.ClearAll))
		assert.Empty(t, f.m.Objects())
		_, ok := f.m.Data("p")
		assert.False(t, ok)
		_, ok = f.m.Kind("m")
		assert.False(t, ok)
		assert.Equal(t, 0, f.dev.LiveObjects())
	})

	t.Run("keep plugin instances", func(t *testing.T) {
		f := newFixture(t)
		f.m.PutData(f.mesh(t, "m"))
		f.m.PutData(f.plugin(t, "p", plugin.KindGeometry, "spheres", `{"count": 2, "radius": 0.1}`))
		f.m.PutObject(f.object(t, protocol.ObjectGeometry, "o", "p"))

		require.NoError(t, f.m.Clear(protocol.ClearKeepPluginInstances))
		assert.Empty(t, f.m.Objects())
		_, ok := f.m.Data("m")
		assert.False(t, ok)
		require.NotNil(t, f.m.PluginInstance("p"))
		assert.Equal(t, 1, f.dev.LiveObjects())
		assert.True(t, f.m.InstancesDirty())
	})

	t.Run("unknown mode", func(t *testing.T) {
		f := newFixture(t)
		err := f.m.Clear("some")
		assert.True(t, blerrors.Is(err, blerrors.KindProtocol))
	})
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t)
	f.m.PutData(f.mesh(t, "m"))
	f.m.PutData(f.plugin(t, "p", plugin.KindGeometry, "spheres", `{"count": 2, "radius": 0.1}`))
	o := f.object(t, protocol.ObjectMesh, "o", "m")
	o.MaterialLink = "red"
	f.m.PutObject(o)

	raw, err := json.Marshal(f.m.Snapshot())
	require.NoError(t, err)

	var got map[string]map[string]map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "mesh", got["scene_data"]["m"]["kind"])
	assert.EqualValues(t, 1, got["scene_data"]["m"]["num_triangles"])
	assert.Equal(t, "geometry/spheres", got["scene_data"]["p"]["plugin"])
	assert.Equal(t, true, got["scene_data"]["p"]["has_bound"])
	assert.Equal(t, "red", got["scene_objects"]["o"]["material_link"])
	assert.EqualValues(t, 1, got["scene_objects"]["o"]["instances"])
}

func TestObjectUpdateRoundTrip(t *testing.T) {
	u := &protocol.UpdateObject{
		Type: protocol.ObjectVolume, Name: "v", DataLink: "d", MaterialLink: "m",
		ObjectToWorld: [16]float32(mgl32.Translate3D(1, 2, 3)), CustomProperties: `{"x":1}`,
	}
	assert.Equal(t, u, NewObject(u).Update())
}
