package cpu

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/blospray-dev/blospray/pkg/device"
)

// object is the CPU implementation of device.Object. Staged parameters live
// in params; Commit compiles them into an immutable value stored in
// committed, which is what frames read.
type object struct {
	dev     *Device
	kind    device.Kind
	subtype string
	refs    atomic.Int32

	mu        sync.Mutex
	params    map[string]any
	committed any
}

func (d *Device) newObject(kind device.Kind, subtype string) *object {
	o := &object{
		dev:     d,
		kind:    kind,
		subtype: subtype,
		params:  make(map[string]any),
	}
	o.refs.Store(1)
	d.live.Add(1)
	return o
}

func (o *object) Kind() device.Kind { return o.kind }
func (o *object) Subtype() string   { return o.subtype }

func (o *object) Set(name string, value any) {
	retainValue(value)
	o.mu.Lock()
	old, had := o.params[name]
	o.params[name] = value
	o.mu.Unlock()
	if had {
		releaseValue(old)
	}
}

func (o *object) Remove(name string) {
	o.mu.Lock()
	old, had := o.params[name]
	delete(o.params, name)
	o.mu.Unlock()
	if had {
		releaseValue(old)
	}
}

func (o *object) Commit() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.refs.Load() <= 0 {
		return fmt.Errorf("%w: %s/%s", device.ErrReleased, o.kind, o.subtype)
	}
	c, err := compile(o.kind, o.subtype, o.params)
	if err != nil {
		err = fmt.Errorf("commit %s/%s: %w", o.kind, o.subtype, err)
		o.dev.reportError(err)
		return err
	}
	o.committed = c
	return nil
}

func (o *object) Retain() {
	o.refs.Add(1)
}

func (o *object) Release() {
	n := o.refs.Add(-1)
	if n > 0 {
		return
	}
	if n < 0 {
		o.dev.reportError(fmt.Errorf("%w: %s/%s", device.ErrReleased, o.kind, o.subtype))
		return
	}

	o.mu.Lock()
	params := o.params
	o.params = make(map[string]any)
	o.mu.Unlock()

	for _, v := range params {
		releaseValue(v)
	}
	o.dev.live.Add(-1)
}

// snapshot returns the committed value of a child object.
func (o *object) snapshot() any {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.committed
}

func retainValue(v any) {
	switch t := v.(type) {
	case device.Object:
		if t != nil {
			t.Retain()
		}
	case []device.Object:
		for _, o := range t {
			if o != nil {
				o.Retain()
			}
		}
	}
}

func releaseValue(v any) {
	switch t := v.(type) {
	case device.Object:
		if t != nil {
			t.Release()
		}
	case []device.Object:
		for _, o := range t {
			if o != nil {
				o.Release()
			}
		}
	}
}

// asObject unwraps a device.Object created by this package.
func asObject(v any) (*object, bool) {
	switch t := v.(type) {
	case *object:
		return t, t != nil
	case *frameBuffer:
		return t.object, t != nil
	}
	return nil, false
}

func param[T any](params map[string]any, name string, def T) (T, error) {
	v, ok := params[name]
	if !ok || v == nil {
		return def, nil
	}
	t, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %q is %T", device.ErrBadParameter, name, v)
	}
	return t, nil
}

func objectParam(params map[string]any, name string, kind device.Kind, required bool) (*object, error) {
	v, ok := params[name]
	if !ok || v == nil {
		if required {
			return nil, fmt.Errorf("%w: %q", device.ErrMissingParam, name)
		}
		return nil, nil
	}
	o, ok := asObject(v)
	if !ok || o.kind != kind {
		return nil, fmt.Errorf("%w: %q is not a %s", device.ErrBadParameter, name, kind)
	}
	if o.snapshot() == nil {
		return nil, fmt.Errorf("%w: %q", device.ErrNotCommitted, name)
	}
	return o, nil
}

func objectListParam(params map[string]any, name string, kind device.Kind) ([]*object, error) {
	v, ok := params[name]
	if !ok || v == nil {
		return nil, nil
	}
	list, ok := v.([]device.Object)
	if !ok {
		return nil, fmt.Errorf("%w: %q is %T", device.ErrBadParameter, name, v)
	}
	out := make([]*object, 0, len(list))
	for i, item := range list {
		o, ok := asObject(item)
		if !ok || o.kind != kind {
			return nil, fmt.Errorf("%w: %q[%d] is not a %s", device.ErrBadParameter, name, i, kind)
		}
		if o.snapshot() == nil {
			return nil, fmt.Errorf("%w: %q[%d]", device.ErrNotCommitted, name, i)
		}
		out = append(out, o)
	}
	return out, nil
}
