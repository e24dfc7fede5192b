package binding

import (
	"context"

	"github.com/blospray-dev/blospray/pkg/plugin"
	"github.com/blospray-dev/blospray/pkg/protocol"
	"github.com/blospray-dev/blospray/pkg/scene"
)

// UpdatePluginInstance runs (or confirms) the plugin behind a data name.
// When the cached output is still valid nothing changes and generated is
// false. On failure the mirror is left untouched.
func (b *Binder) UpdatePluginInstance(ctx context.Context, u *protocol.UpdatePluginInstance) (generated bool, err error) {
	kind, err := plugin.ParseKind(u.Type.String())
	if err != nil {
		return false, err
	}
	req := plugin.Request{
		Kind:         kind,
		Name:         u.PluginName,
		Parameters:   []byte(u.PluginParameters),
		Properties:   []byte(u.CustomProperties),
		RendererType: b.rendererType,
		Device:       b.dev,
	}
	prev := b.mirror.PluginInstance(u.Name)
	inst, generated, err := b.plugins.Update(ctx, prev, req)
	if err != nil {
		return false, err
	}
	if !generated {
		b.logger.Debug("plugin output reused", "data", u.Name, "plugin", inst.ID)
		return false, nil
	}
	b.logger.Debug("plugin output generated", "data", u.Name, "plugin", inst.ID)
	linked := b.mirror.PutData(&scene.Data{Name: u.Name, Kind: scene.DataPlugin, Plugin: inst})
	return true, b.rebuild(linked)
}
