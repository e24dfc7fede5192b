package plugin

import (
	"context"
	"crypto/sha1"
	"errors"
	"log/slog"
	"sort"
	"sync"

	blerrors "github.com/blospray-dev/blospray/internal/errors"
	"github.com/blospray-dev/blospray/pkg/device"
)

// Request asks the host to produce data for one plugin instance.
type Request struct {
	Kind         Kind
	Name         string
	Parameters   []byte
	Properties   []byte
	RendererType string
	Device       device.Device
}

// Instance is the cached result of a Generate call together with the inputs
// that produced it.
type Instance struct {
	ID               ID
	ParametersHash   [sha1.Size]byte
	PropertiesHash   [sha1.Size]byte
	UsesRendererType bool
	RendererType     string
	State            *State
}

// Stale reports whether req must be regenerated instead of reusing inst.
func (inst *Instance) Stale(req Request) bool {
	switch {
	case inst.ID != (ID{req.Kind, req.Name}):
		return true
	case inst.ParametersHash != sha1.Sum(req.Parameters):
		return true
	case inst.PropertiesHash != sha1.Sum(req.Properties):
		return true
	case inst.UsesRendererType && inst.RendererType != req.RendererType:
		return true
	}
	return false
}

type entry struct {
	def *Definition
	err error
}

// Host loads plugin definitions lazily and runs them.
type Host struct {
	loaders []Loader
	logger  *slog.Logger

	mu      sync.Mutex
	entries map[ID]*entry
}

// NewHost creates a host that consults loaders in order.
func NewHost(logger *slog.Logger, loaders ...Loader) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{
		loaders: loaders,
		logger:  logger.With("component", "plugins"),
		entries: make(map[ID]*entry),
	}
}

// Definition returns the cached definition of a plugin, loading and
// initializing it on first use. Load failures are cached as well.
func (h *Host) Definition(kind Kind, name string) (*Definition, error) {
	id := ID{kind, name}
	h.mu.Lock()
	defer h.mu.Unlock()
	if e, ok := h.entries[id]; ok {
		return e.def, e.err
	}
	def, err := h.load(id)
	h.entries[id] = &entry{def: def, err: err}
	if err != nil {
		h.logger.Warn("plugin load failed", "plugin", id, "error", err)
	} else {
		h.logger.Info("plugin loaded", "plugin", id, "uses_renderer_type", def.UsesRendererType)
	}
	return def, err
}

func (h *Host) load(id ID) (*Definition, error) {
	if _, err := ParseKind(string(id.Kind)); err != nil {
		return nil, err
	}
	var init InitializeFunc
	for _, l := range h.loaders {
		fn, err := l.Load(id.Kind, id.Name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		init = fn
		break
	}
	if init == nil {
		return nil, blerrors.New("B401").WithDetail(id.String())
	}

	def := &Definition{}
	if err := init(def); err != nil {
		return nil, blerrors.New("B403").WithDetail(id.String()).Wrap(err)
	}
	if def.Generate == nil {
		return nil, blerrors.New("B403").WithDetailf("%s: no generate function", id)
	}
	if def.Load != nil {
		if err := def.Load(); err != nil {
			return nil, blerrors.New("B403").WithDetailf("%s: load", id).Wrap(err)
		}
	}
	return def, nil
}

// Forget drops a cached definition or load failure so the next use retries.
func (h *Host) Forget(kind Kind, name string) {
	id := ID{kind, name}
	h.mu.Lock()
	e, ok := h.entries[id]
	delete(h.entries, id)
	h.mu.Unlock()
	if ok && e.def != nil && e.def.Unload != nil {
		e.def.Unload()
	}
}

// LoadedPlugin describes a successfully loaded plugin.
type LoadedPlugin struct {
	ID               ID          `json:"-"`
	Name             string      `json:"name"`
	UsesRendererType bool        `json:"uses_renderer_type"`
	Parameters       []Parameter `json:"parameters"`
}

// Loaded lists loaded plugins sorted by ID.
func (h *Host) Loaded() []LoadedPlugin {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]LoadedPlugin, 0, len(h.entries))
	for id, e := range h.entries {
		if e.def == nil {
			continue
		}
		out = append(out, LoadedPlugin{
			ID:               id,
			Name:             id.String(),
			UsesRendererType: e.def.UsesRendererType,
			Parameters:       e.def.Parameters,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Update returns an instance for req. When prev is non-nil and not stale it
// is returned unchanged with generated false. Otherwise the plugin runs and
// a fresh instance is returned; prev is left for the caller to Release.
func (h *Host) Update(ctx context.Context, prev *Instance, req Request) (inst *Instance, generated bool, err error) {
	if prev != nil && !prev.Stale(req) {
		return prev, false, nil
	}
	inst, err = h.Generate(ctx, req)
	if err != nil {
		return nil, false, err
	}
	return inst, true, nil
}

// Generate validates the request and runs the plugin. On failure nothing
// produced by the plugin survives.
func (h *Host) Generate(ctx context.Context, req Request) (*Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	def, err := h.Definition(req.Kind, req.Name)
	if err != nil {
		return nil, err
	}
	params, err := decodeObject(req.Parameters)
	if err != nil {
		return nil, err
	}
	if err := Validate(def.Parameters, params); err != nil {
		return nil, err
	}
	props, err := decodeObject(req.Properties)
	if err != nil {
		return nil, err
	}

	state := &State{
		Parameters:   req.Parameters,
		Properties:   req.Properties,
		RendererType: req.RendererType,
		Device:       req.Device,
		params:       params,
		props:        props,
	}
	id := ID{req.Kind, req.Name}
	if err := def.Generate(state); err != nil {
		h.discard(def, state)
		if blerrors.KindOf(err) != "" {
			return nil, err
		}
		return nil, blerrors.New("B404").WithDetail(id.String()).Wrap(err)
	}
	if err := state.checkPayload(req.Kind); err != nil {
		h.discard(def, state)
		return nil, err
	}

	return &Instance{
		ID:               id,
		ParametersHash:   sha1.Sum(req.Parameters),
		PropertiesHash:   sha1.Sum(req.Properties),
		UsesRendererType: def.UsesRendererType,
		RendererType:     req.RendererType,
		State:            state,
	}, nil
}

// Release frees an instance's data, calling the plugin's ClearData first.
func (h *Host) Release(inst *Instance) {
	if inst == nil || inst.State == nil {
		return
	}
	h.mu.Lock()
	e := h.entries[inst.ID]
	h.mu.Unlock()
	var def *Definition
	if e != nil {
		def = e.def
	}
	h.discard(def, inst.State)
	inst.State = nil
}

func (h *Host) discard(def *Definition, s *State) {
	if def != nil && def.ClearData != nil {
		def.ClearData(s)
	}
	s.release()
}

// Close unloads every plugin.
func (h *Host) Close() {
	h.mu.Lock()
	entries := h.entries
	h.entries = make(map[ID]*entry)
	h.mu.Unlock()
	for _, e := range entries {
		if e.def != nil && e.def.Unload != nil {
			e.def.Unload()
		}
	}
}
