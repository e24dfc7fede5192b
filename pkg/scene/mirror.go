package scene

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	blerrors "github.com/blospray-dev/blospray/internal/errors"
	"github.com/blospray-dev/blospray/pkg/plugin"
	"github.com/blospray-dev/blospray/pkg/protocol"
)

// Mirror is the server-side copy of the client's scene.
//
// Mutation happens on the session goroutine only; the lock exists so the
// admin endpoint can take snapshots concurrently.
type Mirror struct {
	plugins *plugin.Host
	logger  *slog.Logger

	mu      sync.RWMutex
	data    map[string]*Data
	kinds   map[string]DataKind
	objects map[string]*Object

	instancesDirty bool
	lightsDirty    bool
}

// New creates an empty mirror. Plugin data is released through plugins.
func New(plugins *plugin.Host, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{
		plugins: plugins,
		logger:  logger.With("component", "scene"),
		data:    make(map[string]*Data),
		kinds:   make(map[string]DataKind),
		objects: make(map[string]*Object),
	}
}

// Data returns the named scene data.
func (m *Mirror) Data(name string) (*Data, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.data[name]
	return d, ok
}

// Kind returns the recorded kind of a data name.
func (m *Mirror) Kind(name string) (DataKind, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.kinds[name]
	return k, ok
}

// Object returns the named scene object.
func (m *Mirror) Object(name string) (*Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objects[name]
	return o, ok
}

// PluginInstance returns the cached plugin instance stored under name, if the
// name currently holds plugin data.
func (m *Mirror) PluginInstance(name string) *plugin.Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.data[name]; ok && d.Kind == DataPlugin {
		return d.Plugin
	}
	return nil
}

// PutData installs d under d.Name. Whatever was stored under the name before
// is destroyed first, unless it is the very same plugin instance. The names
// of objects linking to the name are returned so the caller can rebuild them
// against the new handles.
func (m *Mirror) PutData(d *Data) []string {
	m.mu.Lock()
	old := m.data[d.Name]
	if old != nil && old.Kind != d.Kind {
		m.logger.Debug("scene data changes kind", "name", d.Name, "from", old.Kind, "to", d.Kind)
	}
	m.data[d.Name] = d
	m.kinds[d.Name] = d.Kind
	m.mu.Unlock()

	if old != nil && !(old.Kind == DataPlugin && d.Kind == DataPlugin && old.Plugin == d.Plugin) {
		m.releaseData(old)
	}
	return m.ObjectsLinkedTo(d.Name)
}

func (m *Mirror) releaseData(d *Data) {
	switch d.Kind {
	case DataHostMesh:
		if d.Mesh != nil {
			d.Mesh.Release()
			d.Mesh = nil
		}
	case DataPlugin:
		if m.plugins != nil {
			m.plugins.Release(d.Plugin)
		}
		d.Plugin = nil
	}
}

// Resolve finds the data an object update links to. Lights link to nothing
// and resolve to nil.
func (m *Mirror) Resolve(u *protocol.UpdateObject) (*Data, error) {
	switch u.Type {
	case protocol.ObjectLight:
		return nil, nil
	case protocol.ObjectMesh, protocol.ObjectGeometry, protocol.ObjectScene,
		protocol.ObjectVolume, protocol.ObjectIsosurfaces, protocol.ObjectSlices:
	default:
		return nil, blerrors.New("B503").WithDetailf("object %q has type %d", u.Name, uint32(u.Type))
	}
	d, ok := m.Data(u.DataLink)
	if !ok {
		return nil, blerrors.New("B501").
			WithDetailf("object %q links to %q", u.Name, u.DataLink).
			WithSuggestion("Send the mesh or plugin instance before the object")
	}
	if !d.Compatible(u.Type) {
		have := string(d.Kind)
		if pk := d.PluginKind(); pk != "" {
			have = string(pk) + " plugin"
		}
		return nil, blerrors.New("B502").
			WithDetailf("%s object %q cannot use %s data %q", u.Type, u.Name, have, u.DataLink)
	}
	return d, nil
}

// PutObject installs o, releasing the handles of the object it replaces.
func (m *Mirror) PutObject(o *Object) {
	m.mu.Lock()
	old := m.objects[o.Name]
	m.objects[o.Name] = o
	m.markDirty(old)
	m.markDirty(o)
	m.mu.Unlock()
	if old != nil && old != o {
		old.ReleaseHandles()
	}
}

// RemoveObject deletes an object and releases its handles.
func (m *Mirror) RemoveObject(name string) bool {
	m.mu.Lock()
	o, ok := m.objects[name]
	delete(m.objects, name)
	m.markDirty(o)
	m.mu.Unlock()
	if ok {
		o.ReleaseHandles()
	}
	return ok
}

func (m *Mirror) markDirty(o *Object) {
	if o == nil {
		return
	}
	if o.Type == protocol.ObjectLight {
		m.lightsDirty = true
		return
	}
	m.instancesDirty = true
	if o.Type == protocol.ObjectScene {
		m.lightsDirty = true
	}
}

// AllData returns all data entries sorted by name.
func (m *Mirror) AllData() []*Data {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Data, 0, len(m.data))
	for _, d := range m.data {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Objects returns all objects sorted by name.
func (m *Mirror) Objects() []*Object {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Object, 0, len(m.objects))
	for _, o := range m.objects {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ObjectsLinkedTo returns the sorted names of objects whose data link is name.
func (m *Mirror) ObjectsLinkedTo(name string) []string {
	return m.objectNames(func(o *Object) bool {
		return o.Type != protocol.ObjectLight && o.DataLink == name
	})
}

// ObjectsUsingMaterial returns the sorted names of objects whose material
// link is name.
func (m *Mirror) ObjectsUsingMaterial(name string) []string {
	return m.objectNames(func(o *Object) bool { return o.MaterialLink == name })
}

func (m *Mirror) objectNames(match func(*Object) bool) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for name, o := range m.objects {
		if match(o) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Clear empties the mirror. With protocol.ClearAll everything goes; with
// protocol.ClearKeepPluginInstances plugin data survives while host meshes
// and every object are released.
func (m *Mirror) Clear(mode string) error {
	keepPlugins := false
	switch mode {
	case protocol.ClearAll, "":
	case protocol.ClearKeepPluginInstances:
		keepPlugins = true
	default:
		return blerrors.New("B102").WithDetailf("unknown clear mode %q", mode)
	}

	m.mu.Lock()
	objects := m.objects
	m.objects = make(map[string]*Object)
	var drop []*Data
	for name, d := range m.data {
		if keepPlugins && d.Kind == DataPlugin {
			continue
		}
		drop = append(drop, d)
		delete(m.data, name)
		delete(m.kinds, name)
	}
	m.instancesDirty = true
	m.lightsDirty = true
	m.mu.Unlock()

	for _, o := range objects {
		o.ReleaseHandles()
	}
	for _, d := range drop {
		m.releaseData(d)
	}
	m.logger.Debug("scene cleared", "mode", mode, "objects", len(objects), "data", len(drop))
	return nil
}

// InstancesDirty reports whether the instance list must be recommitted.
func (m *Mirror) InstancesDirty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.instancesDirty
}

// LightsDirty reports whether the light list must be recommitted.
func (m *Mirror) LightsDirty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lightsDirty
}

// MarkAllDirty forces both lists to be recommitted.
func (m *Mirror) MarkAllDirty() {
	m.mu.Lock()
	m.instancesDirty, m.lightsDirty = true, true
	m.mu.Unlock()
}

// MarkClean resets both dirty flags after a world commit.
func (m *Mirror) MarkClean() {
	m.mu.Lock()
	m.instancesDirty, m.lightsDirty = false, false
	m.mu.Unlock()
}

// DataSnapshot is the JSON form of one data entry.
type DataSnapshot struct {
	Kind         DataKind `json:"kind"`
	NumVertices  int      `json:"num_vertices,omitempty"`
	NumTriangles int      `json:"num_triangles,omitempty"`
	Plugin       string   `json:"plugin,omitempty"`
	Parameters   any      `json:"parameters,omitempty"`
	RendererType string   `json:"renderer_type,omitempty"`
	HasBound     bool     `json:"has_bound,omitempty"`
}

// ObjectSnapshot is the JSON form of one object.
type ObjectSnapshot struct {
	Type            string      `json:"type"`
	DataLink        string      `json:"data_link,omitempty"`
	MaterialLink    string      `json:"material_link,omitempty"`
	DefaultMaterial bool        `json:"default_material,omitempty"`
	Transform       [16]float32 `json:"object2world"`
	Instances       int         `json:"instances"`
	Lights          int         `json:"lights,omitempty"`
}

// Snapshot is the JSON form of the mirror.
type Snapshot struct {
	Data    map[string]DataSnapshot   `json:"scene_data"`
	Objects map[string]ObjectSnapshot `json:"scene_objects"`
}

// Snapshot captures the mirror for state dumps.
func (m *Mirror) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Snapshot{
		Data:    make(map[string]DataSnapshot, len(m.data)),
		Objects: make(map[string]ObjectSnapshot, len(m.objects)),
	}
	for name, d := range m.data {
		ds := DataSnapshot{Kind: d.Kind, NumVertices: d.NumVertices, NumTriangles: d.NumTriangles}
		if d.Kind == DataPlugin && d.Plugin != nil {
			ds.Plugin = d.Plugin.ID.String()
			ds.RendererType = d.Plugin.RendererType
			if st := d.Plugin.State; st != nil {
				var params any
				if len(st.Parameters) > 0 && json.Unmarshal(st.Parameters, &params) == nil {
					ds.Parameters = params
				}
				ds.HasBound = st.Bound != nil
			}
		}
		s.Data[name] = ds
	}
	for name, o := range m.objects {
		s.Objects[name] = ObjectSnapshot{
			Type:            o.Type.String(),
			DataLink:        o.DataLink,
			MaterialLink:    o.MaterialLink,
			DefaultMaterial: o.DefaultMaterial,
			Transform:       [16]float32(o.Transform),
			Instances:       len(o.Instances),
			Lights:          len(o.Lights),
		}
	}
	return s
}
