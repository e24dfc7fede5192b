package server

import (
	"context"
	"encoding/json"

	blerrors "github.com/blospray-dev/blospray/internal/errors"
	"github.com/blospray-dev/blospray/pkg/binding"
	"github.com/blospray-dev/blospray/pkg/plugin"
	"github.com/blospray-dev/blospray/pkg/protocol"
	"github.com/blospray-dev/blospray/pkg/scene"
)

// State is the JSON document returned by GET_SERVER_STATE and /state.
type State struct {
	Render  RenderStatus          `json:"render"`
	Binding binding.State         `json:"binding"`
	Scene   scene.Snapshot        `json:"scene"`
	Plugins []plugin.LoadedPlugin `json:"plugins"`
}

// State captures the server for state dumps. It is safe to call from any
// goroutine.
func (s *Server) State() State {
	st := State{
		Render:  RenderStatus{Mode: modeIdle.String(), ReductionFactor: 1},
		Plugins: s.plugins.Loaded(),
	}
	if rs := s.status.Load(); rs != nil {
		st.Render = *rs
	}
	s.sceneMu.Lock()
	st.Binding = s.binder.State()
	st.Scene = s.mirror.Snapshot()
	s.sceneMu.Unlock()
	return st
}

// StateJSON returns State as indented JSON.
func (s *Server) StateJSON() ([]byte, error) {
	return json.MarshalIndent(s.State(), "", "  ")
}

func (ss *session) sendServerState(ctx context.Context, msg *protocol.ClientMessage) error {
	data, err := ss.srv.StateJSON()
	if err != nil {
		ss.reject(ctx, msg, err)
		data = []byte("{}")
	}
	return ss.conn.SendMessage(&protocol.ServerStateResult{State: string(data)})
}

// queryBound answers with the bounding mesh of a plugin instance. On
// success the serialized mesh follows the result.
func (ss *session) queryBound(ctx context.Context, msg *protocol.ClientMessage) error {
	name := msg.StringValue

	var bound *protocol.BoundingMesh
	err := ss.withScene(func(*binding.Binder) error {
		d, ok := ss.srv.mirror.Data(name)
		switch {
		case !ok:
			return blerrors.New("B501").WithDetailf("no scene data named %q", name)
		case d.Kind != scene.DataPlugin:
			return blerrors.New("B502").WithDetailf("%q is a %s, only plugin instances have bounds", name, d.Kind)
		}
		bound = d.Bound()
		if bound == nil {
			return blerrors.New("B501").WithDetailf("plugin instance %q provided no bounding mesh", name)
		}
		return nil
	})
	if err != nil {
		ss.reject(ctx, msg, err)
		return ss.conn.SendMessage(&protocol.QueryBoundResult{Success: false, Message: err.Error()})
	}

	data := bound.Serialize()
	if err := ss.conn.SendMessage(&protocol.QueryBoundResult{Success: true, ResultSize: uint32(len(data))}); err != nil {
		return err
	}
	return ss.conn.SendBytes(data)
}
