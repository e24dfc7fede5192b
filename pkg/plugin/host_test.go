package plugin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	blerrors "github.com/blospray-dev/blospray/internal/errors"
	"github.com/blospray-dev/blospray/pkg/device"
	"github.com/blospray-dev/blospray/pkg/device/cpu"
	"github.com/blospray-dev/blospray/pkg/protocol"
)

// counting is a geometry plugin that records its calls.
type counting struct {
	inits, loads, generates, clears int
	usesRenderer                    bool
	fail                            error
}

func (c *counting) initialize(def *Definition) error {
	c.inits++
	def.Parameters = []Parameter{
		{Name: "a", Type: ParamInt, Length: 1, Description: "required int"},
		{Name: "b", Type: ParamFloat, Length: 3, Flags: FlagOptional},
	}
	def.UsesRendererType = c.usesRenderer
	def.Load = func() error { c.loads++; return nil }
	def.ClearData = func(*State) { c.clears++ }
	def.Generate = func(s *State) error {
		c.generates++
		g, err := s.Device.NewObject(device.KindGeometry, "sphere")
		if err != nil {
			return err
		}
		g.Set("sphere.position", []mgl32.Vec3{{0, 0, 0}})
		s.Geometry = g
		if err := g.Commit(); err != nil {
			return err
		}
		return c.fail
	}
	return nil
}

func newTestHost(t *testing.T, p *counting) (*Host, device.Device) {
	t.Helper()
	reg := NewRegistry()
	reg.Register(KindGeometry, "counting", p.initialize)
	return NewHost(nil, reg), cpu.New(cpu.Options{Threads: 1})
}

func TestParseKind(t *testing.T) {
	for _, s := range []string{"geometry", "volume", "scene"} {
		k, err := ParseKind(s)
		require.NoError(t, err)
		assert.Equal(t, Kind(s), k)
	}
	_, err := ParseKind("mesh")
	assert.True(t, blerrors.Is(err, blerrors.KindPlugin))
}

func TestValidate(t *testing.T) {
	schema := []Parameter{
		{Name: "file", Type: ParamString, Length: 1},
		{Name: "dims", Type: ParamInt, Length: 3},
		{Name: "scale", Type: ParamFloat, Length: 1, Flags: FlagOptional},
		{Name: "extra", Type: ParamUser, Length: 1, Flags: FlagOptional},
	}
	tests := []struct {
		name     string
		json     string
		wantCode string
	}{
		{"valid", `{"file":"x.raw","dims":[1,2,3]}`, ""},
		{"valid with optional", `{"file":"x","dims":[1,2,3],"scale":0.5,"extra":{"k":[1]}}`, ""},
		{"unknown ignored", `{"file":"x","dims":[1,2,3],"color":"red"}`, ""},
		{"missing required", `{"dims":[1,2,3]}`, "B301"},
		{"wrong scalar type", `{"file":1,"dims":[1,2,3]}`, "B302"},
		{"not an array", `{"file":"x","dims":3}`, "B303"},
		{"wrong length", `{"file":"x","dims":[1,2]}`, "B303"},
		{"fractional int", `{"file":"x","dims":[1,2.5,3]}`, "B302"},
		{"optional wrong type", `{"file":"x","dims":[1,2,3],"scale":"big"}`, "B302"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := decodeObject([]byte(tt.json))
			require.NoError(t, err)
			err = Validate(schema, values)
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			var be *blerrors.Error
			require.True(t, errors.As(err, &be), "error = %v", err)
			assert.Equal(t, tt.wantCode, be.Code)
			assert.Equal(t, blerrors.KindParameter, be.Kind)
		})
	}
}

func TestDecodeObject(t *testing.T) {
	m, err := decodeObject(nil)
	require.NoError(t, err)
	assert.Empty(t, m)

	for _, bad := range []string{`[1,2]`, `null`, `{"a":`} {
		_, err := decodeObject([]byte(bad))
		assert.True(t, blerrors.Is(err, blerrors.KindParameter), "input %s", bad)
	}
}

func TestDefinitionIsLoadedOnce(t *testing.T) {
	p := &counting{}
	h, _ := newTestHost(t, p)

	d1, err := h.Definition(KindGeometry, "counting")
	require.NoError(t, err)
	d2, err := h.Definition(KindGeometry, "counting")
	require.NoError(t, err)
	assert.Same(t, d1, d2)
	assert.Equal(t, 1, p.inits)
	assert.Equal(t, 1, p.loads)

	loaded := h.Loaded()
	require.Len(t, loaded, 1)
	assert.Equal(t, "geometry/counting", loaded[0].Name)
}

func TestMissingPluginFailureIsCached(t *testing.T) {
	reg := NewRegistry()
	h := NewHost(nil, reg, SharedObjectLoader{Dir: t.TempDir()})

	_, err := h.Definition(KindVolume, "late")
	var be *blerrors.Error
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "B401", be.Code)

	reg.Register(KindVolume, "late", func(def *Definition) error {
		def.Generate = func(*State) error { return nil }
		return nil
	})
	_, err = h.Definition(KindVolume, "late")
	assert.Error(t, err, "failure stays cached")

	h.Forget(KindVolume, "late")
	_, err = h.Definition(KindVolume, "late")
	assert.NoError(t, err)
}

func TestInitializeErrors(t *testing.T) {
	reg := NewRegistry()
	reg.Register(KindScene, "broken", func(*Definition) error { return errors.New("boom") })
	reg.Register(KindScene, "empty", func(*Definition) error { return nil })
	h := NewHost(nil, reg)

	for _, name := range []string{"broken", "empty"} {
		_, err := h.Definition(KindScene, name)
		var be *blerrors.Error
		require.True(t, errors.As(err, &be), name)
		assert.Equal(t, "B403", be.Code, name)
	}
}

func TestUpdateReusesUnchangedInstance(t *testing.T) {
	p := &counting{}
	h, dev := newTestHost(t, p)
	ctx := context.Background()
	req := Request{
		Kind:         KindGeometry,
		Name:         "counting",
		Parameters:   []byte(`{"a":1}`),
		Properties:   []byte(`{}`),
		RendererType: "scivis",
		Device:       dev,
	}

	first, generated, err := h.Update(ctx, nil, req)
	require.NoError(t, err)
	assert.True(t, generated)

	same, generated, err := h.Update(ctx, first, req)
	require.NoError(t, err)
	assert.False(t, generated)
	assert.Same(t, first, same)

	// Renderer changes do not matter for this plugin.
	req.RendererType = "pathtracer"
	_, generated, err = h.Update(ctx, first, req)
	require.NoError(t, err)
	assert.False(t, generated)
	assert.Equal(t, 1, p.generates)

	req.Parameters = []byte(`{"a":2}`)
	second, generated, err := h.Update(ctx, first, req)
	require.NoError(t, err)
	assert.True(t, generated)
	assert.Equal(t, 2, p.generates)

	h.Release(first)
	h.Release(second)
	assert.Equal(t, 2, p.clears)
	assert.Equal(t, 0, dev.LiveObjects())
}

func TestUpdateRegeneratesOnRendererChange(t *testing.T) {
	p := &counting{usesRenderer: true}
	h, dev := newTestHost(t, p)
	req := Request{Kind: KindGeometry, Name: "counting", Parameters: []byte(`{"a":1}`), RendererType: "scivis", Device: dev}

	first, _, err := h.Update(context.Background(), nil, req)
	require.NoError(t, err)
	req.RendererType = "pathtracer"
	second, generated, err := h.Update(context.Background(), first, req)
	require.NoError(t, err)
	assert.True(t, generated)
	assert.Equal(t, 2, p.generates)
	assert.Equal(t, "pathtracer", second.RendererType)
}

func TestStale(t *testing.T) {
	p := &counting{}
	h, dev := newTestHost(t, p)
	req := Request{Kind: KindGeometry, Name: "counting", Parameters: []byte(`{"a":1}`), Properties: []byte(`{"p":1}`), Device: dev}
	inst, err := h.Generate(context.Background(), req)
	require.NoError(t, err)

	changed := req
	changed.Properties = []byte(`{"p":2}`)
	assert.True(t, inst.Stale(changed))

	changed = req
	changed.Name = "other"
	assert.True(t, inst.Stale(changed))

	changed = req
	changed.Kind = KindVolume
	assert.True(t, inst.Stale(changed))

	assert.False(t, inst.Stale(req))
}

func TestGenerateFailureDiscardsState(t *testing.T) {
	p := &counting{fail: errors.New("no data")}
	h, dev := newTestHost(t, p)
	_, err := h.Generate(context.Background(), Request{
		Kind: KindGeometry, Name: "counting", Parameters: []byte(`{"a":1}`), Device: dev,
	})
	var be *blerrors.Error
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "B404", be.Code)
	assert.Contains(t, err.Error(), "no data")
	assert.Equal(t, 1, p.clears)
	assert.Equal(t, 0, dev.LiveObjects())
}

func TestGenerateRejectsInvalidParameters(t *testing.T) {
	p := &counting{}
	h, dev := newTestHost(t, p)
	_, err := h.Generate(context.Background(), Request{
		Kind: KindGeometry, Name: "counting", Parameters: []byte(`{"b":[1,2,3]}`), Device: dev,
	})
	assert.True(t, blerrors.Is(err, blerrors.KindParameter))
	assert.Equal(t, 0, p.generates)
}

func TestGenerateRejectsWrongPayload(t *testing.T) {
	reg := NewRegistry()
	reg.Register(KindVolume, "liar", func(def *Definition) error {
		def.Generate = func(s *State) error {
			g, err := s.Device.NewObject(device.KindGeometry, "sphere")
			if err != nil {
				return err
			}
			s.Geometry = g
			return nil
		}
		return nil
	})
	h := NewHost(nil, reg)
	dev := cpu.New(cpu.Options{Threads: 1})
	_, err := h.Generate(context.Background(), Request{Kind: KindVolume, Name: "liar", Device: dev})
	var be *blerrors.Error
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "B405", be.Code)
	assert.Equal(t, 0, dev.LiveObjects())
}

func TestGenerateRejectsMalformedBound(t *testing.T) {
	reg := NewRegistry()
	reg.Register(KindGeometry, "lopsided", func(def *Definition) error {
		def.Generate = func(s *State) error {
			g, err := s.Device.NewObject(device.KindGeometry, "sphere")
			if err != nil {
				return err
			}
			g.Set("sphere.position", []mgl32.Vec3{{0, 0, 0}})
			s.Geometry = g
			s.Bound = protocol.BoxBound([3]float32{-1, -1, -1}, [3]float32{1, 1, 1})
			s.Bound.LoopTotal = s.Bound.LoopTotal[:5]
			return g.Commit()
		}
		return nil
	})
	h := NewHost(nil, reg)
	dev := cpu.New(cpu.Options{Threads: 1})
	_, err := h.Generate(context.Background(), Request{Kind: KindGeometry, Name: "lopsided", Device: dev})
	var be *blerrors.Error
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "B405", be.Code)
	assert.ErrorIs(t, err, protocol.ErrBadBound)
	assert.Equal(t, 0, dev.LiveObjects())
}

func TestSharedObjectLoader(t *testing.T) {
	dir := t.TempDir()
	l := SharedObjectLoader{Dir: dir}
	assert.Equal(t, filepath.Join(dir, "volume_raw.so"), l.ModulePath(KindVolume, "raw"))

	_, err := l.Load(KindVolume, "raw")
	assert.ErrorIs(t, err, ErrNotFound)

	for _, name := range []string{"volume_raw.so", "scene_city_blocks.so", "mesh_x.so", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	ids, err := l.Modules()
	require.NoError(t, err)
	assert.ElementsMatch(t, []ID{{KindVolume, "raw"}, {KindScene, "city_blocks"}}, ids)

	// An empty file is not a loadable module.
	_, err = l.Load(KindVolume, "raw")
	assert.True(t, blerrors.Is(err, blerrors.KindPlugin))
}

func TestStateAccessors(t *testing.T) {
	params, err := decodeObject([]byte(`{"n":4,"r":0.5,"s":"x","dims":[1,2,3],"f":[0.5,1.5]}`))
	require.NoError(t, err)
	s := &State{params: params}
	assert.Equal(t, 4, s.Int("n", 0))
	assert.Equal(t, 7, s.Int("missing", 7))
	assert.Equal(t, float32(0.5), s.Float("r", 0))
	assert.Equal(t, "x", s.String("s", ""))
	assert.Equal(t, []int{1, 2, 3}, s.Ints("dims"))
	assert.Equal(t, []float32{0.5, 1.5}, s.Floats("f"))
	assert.Nil(t, s.Ints("s"))
}
