package server

import (
	"context"

	blerrors "github.com/blospray-dev/blospray/internal/errors"
	"github.com/blospray-dev/blospray/pkg/binding"
	"github.com/blospray-dev/blospray/pkg/protocol"
)

// maxMeshBytes caps the raw buffers of one UPDATE_BLENDER_MESH.
const maxMeshBytes = 1 << 31

// handle runs one command. Failures of the command itself are reported
// through reject and leave the connection open; returned errors close it.
func (ss *session) handle(ctx context.Context, msg *protocol.ClientMessage) (bool, error) {
	switch msg.Type {
	case protocol.MsgHello:
		err := blerrors.New("B103").WithDetail("session already established")
		ss.reject(ctx, msg, err)
		return false, ss.conn.SendMessage(&protocol.HelloResult{Success: false, Message: err.Error()})

	case protocol.MsgBye:
		ss.logger.Info("client said goodbye")
		return true, nil

	case protocol.MsgQuit:
		ss.logger.Info("client requested server shutdown")
		ss.srv.requestQuit()
		return true, nil

	case protocol.MsgUpdateRendererType:
		return false, ss.updateRendererType(ctx, msg)
	case protocol.MsgClearScene:
		return false, ss.clearScene(ctx, msg)
	case protocol.MsgUpdateRenderSettings:
		return false, ss.updateRenderSettings(ctx, msg)
	case protocol.MsgUpdateWorldSettings:
		return false, ss.updateWorldSettings(ctx, msg)
	case protocol.MsgUpdatePluginInstance:
		return false, ss.updatePluginInstance(ctx, msg)
	case protocol.MsgUpdateBlenderMesh:
		return false, ss.updateBlenderMesh(ctx, msg)
	case protocol.MsgUpdateObject:
		return false, ss.updateObject(ctx, msg)
	case protocol.MsgUpdateFramebuffer:
		return false, ss.updateFramebuffer(ctx, msg)
	case protocol.MsgUpdateCamera:
		return false, ss.updateCamera(ctx, msg)
	case protocol.MsgUpdateMaterial:
		return false, ss.updateMaterial(ctx, msg)
	case protocol.MsgGetServerState:
		return false, ss.sendServerState(ctx, msg)
	case protocol.MsgQueryBound:
		return false, ss.queryBound(ctx, msg)
	case protocol.MsgStartRendering:
		return false, ss.startRender(ctx, msg)

	case protocol.MsgCancelRendering:
		if ss.fut == nil {
			ss.logger.Warn("cancel requested while idle")
			return false, nil
		}
		return false, ss.drain(true)

	case protocol.MsgRequestRenderOutput:
		ss.reject(ctx, msg, blerrors.New("B103").
			WithDetail("REQUEST_RENDER_OUTPUT on the primary connection").
			WithSuggestion("Open a second connection and send it as the first message"))
		return false, nil
	}
	return false, blerrors.New("B102").WithDetailf("unhandled message type %s", msg.Type)
}

// withScene runs fn while holding the scene lock.
func (ss *session) withScene(fn func(b *binding.Binder) error) error {
	ss.srv.sceneMu.Lock()
	defer ss.srv.sceneMu.Unlock()
	return fn(ss.srv.binder)
}

func (ss *session) updateRendererType(ctx context.Context, msg *protocol.ClientMessage) error {
	err := ss.withScene(func(b *binding.Binder) error {
		changed, err := b.SetRendererType(ctx, msg.StringValue)
		if changed {
			ss.logger.Info("renderer type changed", "renderer", msg.StringValue)
		}
		return err
	})
	if err != nil {
		ss.reject(ctx, msg, err)
	}
	return nil
}

func (ss *session) clearScene(ctx context.Context, msg *protocol.ClientMessage) error {
	err := ss.withScene(func(*binding.Binder) error {
		return ss.srv.mirror.Clear(msg.StringValue)
	})
	if err != nil {
		ss.reject(ctx, msg, err)
		return nil
	}
	ss.logger.Info("scene cleared", "mode", msg.StringValue)
	return nil
}

func (ss *session) updateRenderSettings(ctx context.Context, msg *protocol.ClientMessage) error {
	var rs protocol.RenderSettings
	if err := ss.conn.ReceiveMessage(&rs); err != nil {
		return err
	}
	if err := ss.withScene(func(b *binding.Binder) error { return b.SetRenderSettings(&rs) }); err != nil {
		ss.reject(ctx, msg, err)
	}
	return nil
}

func (ss *session) updateWorldSettings(ctx context.Context, msg *protocol.ClientMessage) error {
	var ws protocol.WorldSettings
	if err := ss.conn.ReceiveMessage(&ws); err != nil {
		return err
	}
	if err := ss.withScene(func(b *binding.Binder) error { return b.SetWorldSettings(&ws) }); err != nil {
		ss.reject(ctx, msg, err)
	}
	return nil
}

// updatePluginInstance always answers with a GenerateFunctionResult.
func (ss *session) updatePluginInstance(ctx context.Context, msg *protocol.ClientMessage) error {
	var u protocol.UpdatePluginInstance
	if err := ss.conn.ReceiveMessage(&u); err != nil {
		return err
	}

	var generated bool
	err := ss.withScene(func(b *binding.Binder) error {
		var err error
		generated, err = b.UpdatePluginInstance(ctx, &u)
		return err
	})

	m := ss.srv.metrics
	res := &protocol.GenerateFunctionResult{Success: true}
	switch {
	case err != nil && !generated:
		m.pluginErrors.Inc()
		ss.reject(ctx, msg, err)
		res.Success, res.Message = false, err.Error()
	case err != nil:
		// The data was installed but some linked objects failed to rebuild.
		m.pluginGenerates.Inc()
		ss.logger.Warn("plugin instance updated with errors", "data", u.Name, "error", err)
		res.Message = err.Error()
	case generated:
		m.pluginGenerates.Inc()
		ss.logger.Info("plugin instance generated", "data", u.Name, "plugin", u.Type.String()+"/"+u.PluginName)
	default:
		m.pluginCacheHits.Inc()
		ss.logger.Debug("plugin instance unchanged", "data", u.Name)
	}
	return ss.conn.SendMessage(res)
}

func (ss *session) updateBlenderMesh(ctx context.Context, msg *protocol.ClientMessage) error {
	var md protocol.MeshData
	if err := ss.conn.ReceiveMessage(&md); err != nil {
		return err
	}
	total := int64(md.VertexBytes()) + int64(md.TriangleBytes())
	if md.HasNormals() {
		total += int64(md.VertexBytes())
	}
	if md.HasVertexColors() {
		total += int64(md.ColorBytes())
	}
	if total > maxMeshBytes {
		return blerrors.New("B102").WithDetailf("mesh %q announces %d bytes", msg.StringValue, total)
	}

	var buf binding.MeshBuffers
	var err error
	if buf.Vertices, err = ss.receiveFloats(md.VertexBytes()); err != nil {
		return err
	}
	if md.HasNormals() {
		if buf.Normals, err = ss.receiveFloats(md.VertexBytes()); err != nil {
			return err
		}
	}
	if md.HasVertexColors() {
		if buf.Colors, err = ss.receiveFloats(md.ColorBytes()); err != nil {
			return err
		}
	}
	raw, err := ss.conn.ReceiveBytes(md.TriangleBytes())
	if err != nil {
		return err
	}
	if buf.Triangles, err = protocol.BytesUint32(raw); err != nil {
		return blerrors.New("B102").Wrap(err)
	}

	err = ss.withScene(func(b *binding.Binder) error {
		return b.UpdateMesh(msg.StringValue, &md, buf)
	})
	if err != nil {
		ss.reject(ctx, msg, err)
		return nil
	}
	ss.logger.Debug("mesh updated", "data", msg.StringValue,
		"vertices", md.NumVertices, "triangles", md.NumTriangles)
	return nil
}

func (ss *session) receiveFloats(n int) ([]float32, error) {
	raw, err := ss.conn.ReceiveBytes(n)
	if err != nil {
		return nil, err
	}
	v, err := protocol.BytesFloat32(raw)
	if err != nil {
		return nil, blerrors.New("B102").Wrap(err)
	}
	return v, nil
}

// updateObject reads the object header and, for volume, isosurfaces,
// slices and light objects, the settings body that follows it.
func (ss *session) updateObject(ctx context.Context, msg *protocol.ClientMessage) error {
	var u protocol.UpdateObject
	if err := ss.conn.ReceiveMessage(&u); err != nil {
		return err
	}

	var s binding.ObjectSettings
	switch u.Type {
	case protocol.ObjectVolume, protocol.ObjectIsosurfaces:
		s.Volume = new(protocol.VolumeSettings)
		if err := ss.conn.ReceiveMessage(s.Volume); err != nil {
			return err
		}
	case protocol.ObjectSlices:
		s.Slices = new(protocol.SlicesSettings)
		if err := ss.conn.ReceiveMessage(s.Slices); err != nil {
			return err
		}
	case protocol.ObjectLight:
		s.Light = new(protocol.LightSettings)
		if err := ss.conn.ReceiveMessage(s.Light); err != nil {
			return err
		}
	}

	if err := ss.withScene(func(b *binding.Binder) error { return b.UpdateObject(&u, s) }); err != nil {
		ss.reject(ctx, msg, err)
		return nil
	}
	ss.logger.Debug("object updated", "object", u.Name, "type", u.Type, "data", u.DataLink)
	return nil
}

func (ss *session) updateFramebuffer(ctx context.Context, msg *protocol.ClientMessage) error {
	format := protocol.FramebufferFormat(msg.UintValue)
	w, h := int(msg.UintValue2), int(msg.UintValue3)
	if err := ss.withScene(func(b *binding.Binder) error { return b.SetFramebuffer(format, w, h) }); err != nil {
		ss.reject(ctx, msg, err)
	}
	return nil
}

func (ss *session) updateCamera(ctx context.Context, msg *protocol.ClientMessage) error {
	var cs protocol.CameraSettings
	if err := ss.conn.ReceiveMessage(&cs); err != nil {
		return err
	}
	if err := ss.withScene(func(b *binding.Binder) error { return b.SetCamera(&cs) }); err != nil {
		ss.reject(ctx, msg, err)
	}
	return nil
}

// updateMaterial reads the MaterialUpdate header and the body of the kind
// it announces. An unknown kind leaves the body length unknown, so it
// closes the connection.
func (ss *session) updateMaterial(ctx context.Context, msg *protocol.ClientMessage) error {
	var u protocol.MaterialUpdate
	if err := ss.conn.ReceiveMessage(&u); err != nil {
		return err
	}
	body, err := protocol.NewMaterialBody(u.Type)
	if err != nil {
		return blerrors.New("B102").WithDetailf("material %q", u.Name).Wrap(err)
	}
	if err := ss.conn.ReceiveMessage(body); err != nil {
		return err
	}
	if err := ss.withScene(func(b *binding.Binder) error { return b.UpdateMaterial(&u, body) }); err != nil {
		ss.reject(ctx, msg, err)
	}
	return nil
}
