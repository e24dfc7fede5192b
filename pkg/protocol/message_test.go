package protocol

import (
	"reflect"
	"testing"
)

func TestMessageRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   Message
		out  Message
	}{
		{
			name: "start_rendering",
			in: &ClientMessage{
				Type:        MsgStartRendering,
				UintValue:   100,
				UintValue2:  4,
				StringValue: RenderModeInteractive,
			},
			out: &ClientMessage{},
		},
		{
			name: "camera",
			in: &CameraSettings{
				ObjectName: "Camera",
				Type:       CameraPerspective,
				Position:   [3]float32{0, 0, 3},
				ViewDir:    [3]float32{0, 0, -1},
				UpDir:      [3]float32{0, 1, 0},
				FovY:       45,
				Aspect:     1,
				NearClip:   0.1,
				HasBorder:  true,
				Border:     [4]float32{0.25, 0.25, 0.75, 0.75},
			},
			out: &CameraSettings{},
		},
		{
			name: "update_object",
			in: &UpdateObject{
				Type:             ObjectMesh,
				Name:             "obj",
				DataLink:         "t",
				ObjectToWorld:    [16]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1},
				CustomProperties: "{}",
			},
			out: &UpdateObject{},
		},
		{
			name: "volume_settings",
			in: &VolumeSettings{
				SamplingRate: 0.5,
				TransferFunction: TransferFunction{
					Positions: []float32{0, 1},
					Colors:    []float32{0, 0, 0, 1, 1, 1},
				},
				Isovalues: []float32{0.25},
			},
			out: &VolumeSettings{},
		},
		{
			name: "slices_settings",
			in: &SlicesSettings{
				Planes: [][4]float32{{0, 0, 1, 0}, {1, 0, 0, -0.5}},
			},
			out: &SlicesSettings{},
		},
		{
			name: "light",
			in: &LightSettings{
				Type:      LightSpot,
				Color:     [3]float32{1, 1, 1},
				Intensity: 10,
				Visible:   true,
				Position:  [3]float32{0, 5, 0},
				Direction: [3]float32{0, -1, 0},
			},
			out: &LightSettings{},
		},
		{
			name: "render_result",
			in: &RenderResult{
				Type:            RenderFrame,
				Sample:          3,
				ReductionFactor: 1,
				Width:           64,
				Height:          48,
				Variance:        0.01,
				MemoryUsage:     1 << 40,
				FileName:        "/dev/shm/blospray-final-0003.exr",
				FileSize:        12345,
			},
			out: &RenderResult{},
		},
		{
			name: "principled",
			in: &PrincipledSettings{
				BaseColor: [3]float32{0.8, 0.1, 0.1},
				IOR:       1.45,
				Thin:      true,
				Opacity:   1,
			},
			out: &PrincipledSettings{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := Unmarshal(Marshal(tc.in), tc.out); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if !reflect.DeepEqual(tc.in, tc.out) {
				t.Errorf("round trip = %+v, want %+v", tc.out, tc.in)
			}
		})
	}
}

func TestTruncatedMessage(t *testing.T) {
	data := Marshal(&CameraSettings{ObjectName: "cam"})
	var cam CameraSettings
	if err := Unmarshal(data[:len(data)-3], &cam); err == nil {
		t.Error("Unmarshal(truncated) should fail")
	}
}

func TestNewMaterialBody(t *testing.T) {
	for mt := MaterialOBJ; mt <= MaterialLuminous; mt++ {
		body, err := NewMaterialBody(mt)
		if err != nil {
			t.Fatalf("NewMaterialBody(%v) error = %v", mt, err)
		}
		if body.MaterialType() != mt {
			t.Errorf("NewMaterialBody(%v).MaterialType() = %v", mt, body.MaterialType())
		}
	}
	if _, err := NewMaterialBody(MaterialLuminous + 1); err == nil {
		t.Error("NewMaterialBody(unknown) should fail")
	}
}

func TestMessageTypeMutating(t *testing.T) {
	tests := []struct {
		typ  MessageType
		want bool
	}{
		{MsgUpdateObject, true},
		{MsgUpdateCamera, true},
		{MsgStartRendering, true},
		{MsgClearScene, true},
		{MsgGetServerState, false},
		{MsgQueryBound, false},
		{MsgCancelRendering, false},
		{MsgRequestRenderOutput, false},
		{MsgBye, false},
		{MsgQuit, false},
	}
	for _, tc := range tests {
		if got := tc.typ.Mutating(); got != tc.want {
			t.Errorf("%v.Mutating() = %v, want %v", tc.typ, got, tc.want)
		}
	}
}

func TestMessageTypeString(t *testing.T) {
	if got := MsgRequestRenderOutput.String(); got != "REQUEST_RENDER_OUTPUT" {
		t.Errorf("String() = %q", got)
	}
	if got := MessageType(200).String(); got != "UNKNOWN" {
		t.Errorf("String() = %q, want UNKNOWN", got)
	}
	if MessageType(200).Valid() {
		t.Error("MessageType(200).Valid() = true")
	}
}
