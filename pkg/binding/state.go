package binding

import (
	"sort"

	"github.com/blospray-dev/blospray/pkg/protocol"
)

// FramebufferState describes the configured framebuffer.
type FramebufferState struct {
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Levels []int  `json:"reduction_factors,omitempty"`

	// Recreate lists the factors whose framebuffer is replaced on next use.
	Recreate []int `json:"recreate,omitempty"`
}

// MaterialState describes one client material.
type MaterialState struct {
	Type     string `json:"type"`
	Renderer string `json:"renderer"`
}

// State is the JSON form of the binder.
type State struct {
	RendererType   string                   `json:"renderer_type"`
	Framebuffer    FramebufferState         `json:"framebuffer"`
	Camera         protocol.CameraSettings  `json:"camera"`
	RenderSettings protocol.RenderSettings  `json:"render_settings"`
	WorldSettings  protocol.WorldSettings   `json:"world_settings"`
	Materials      map[string]MaterialState `json:"materials"`
}

// State captures the binder for state dumps.
func (b *Binder) State() State {
	s := State{
		RendererType: b.rendererType,
		Framebuffer: FramebufferState{
			Format: b.fb.format.String(),
			Width:  b.fb.width,
			Height: b.fb.height,
		},
		Camera:         b.cameraSettings,
		RenderSettings: b.renderSettings,
		WorldSettings:  b.worldSettings,
		Materials:      make(map[string]MaterialState, len(b.materials)),
	}
	for k := range b.fb.levels {
		s.Framebuffer.Levels = append(s.Framebuffer.Levels, k)
	}
	sort.Ints(s.Framebuffer.Levels)
	for k, ok := range b.fb.recreate {
		if ok {
			s.Framebuffer.Recreate = append(s.Framebuffer.Recreate, k)
		}
	}
	sort.Ints(s.Framebuffer.Recreate)
	for name, m := range b.materials {
		s.Materials[name] = MaterialState{Type: m.typ.String(), Renderer: m.renderer}
	}
	return s
}
