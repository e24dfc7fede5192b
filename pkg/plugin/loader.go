package plugin

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	goplugin "plugin"
	"sort"
	"strings"
	"sync"

	blerrors "github.com/blospray-dev/blospray/internal/errors"
)

// ErrNotFound is returned by a Loader that has no module for a plugin.
var ErrNotFound = errors.New("plugin: module not found")

// Loader resolves the Initialize entry of a plugin module.
type Loader interface {
	Load(kind Kind, name string) (InitializeFunc, error)
}

// ID names a plugin.
type ID struct {
	Kind Kind
	Name string
}

func (id ID) String() string { return string(id.Kind) + "/" + id.Name }

// Registry is a Loader for plugins compiled into the binary.
type Registry struct {
	mu      sync.RWMutex
	plugins map[ID]InitializeFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[ID]InitializeFunc)}
}

// Register adds a plugin, replacing any previous one with the same ID.
func (r *Registry) Register(kind Kind, name string, init InitializeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[ID{kind, name}] = init
}

// Load implements Loader.
func (r *Registry) Load(kind Kind, name string) (InitializeFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	init, ok := r.plugins[ID{kind, name}]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, kind, name)
	}
	return init, nil
}

// IDs lists the registered plugins in sorted order.
func (r *Registry) IDs() []ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]ID, 0, len(r.plugins))
	for id := range r.plugins {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// SharedObjectLoader opens Go plugin modules from a directory.
type SharedObjectLoader struct {
	Dir string
}

// ModulePath returns the file a plugin is loaded from.
func (l SharedObjectLoader) ModulePath(kind Kind, name string) string {
	return filepath.Join(l.Dir, fmt.Sprintf("%s_%s.so", kind, name))
}

// Load implements Loader.
func (l SharedObjectLoader) Load(kind Kind, name string) (InitializeFunc, error) {
	path := l.ModulePath(kind, name)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, blerrors.New("B401").WithDetail(path).Wrap(err)
	}
	p, err := goplugin.Open(path)
	if err != nil {
		return nil, blerrors.New("B401").WithDetail(path).Wrap(err)
	}
	sym, err := p.Lookup("Initialize")
	if err != nil {
		return nil, blerrors.New("B402").WithDetail(path).Wrap(err)
	}
	switch fn := sym.(type) {
	case func(*Definition) error:
		return fn, nil
	case *InitializeFunc:
		return *fn, nil
	}
	return nil, blerrors.New("B402").WithDetailf("%s: Initialize has type %T", path, sym)
}

// Modules lists the plugin modules present in the directory.
func (l SharedObjectLoader) Modules() ([]ID, error) {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []ID
	for _, e := range entries {
		base, ok := strings.CutSuffix(e.Name(), ".so")
		if !ok || e.IsDir() {
			continue
		}
		kind, name, ok := strings.Cut(base, "_")
		if !ok {
			continue
		}
		if k, err := ParseKind(kind); err == nil {
			ids = append(ids, ID{k, name})
		}
	}
	return ids, nil
}
