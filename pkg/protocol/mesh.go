package protocol

import (
	"fmt"
	"math"
)

// Mesh flags.
const (
	MeshNormals      uint32 = 1 << 0
	MeshVertexColors uint32 = 1 << 1
)

// MeshData follows UPDATE_BLENDER_MESH. It is followed by raw buffers in
// this order: vertices (3 float32 each), normals if MeshNormals, vertex
// colors (4 float32 each) if MeshVertexColors, triangles (3 uint32 each).
type MeshData struct {
	NumVertices  uint32
	NumTriangles uint32
	Flags        uint32
}

// EncodeTo implements Message.
func (m *MeshData) EncodeTo(e *Encoder) {
	e.WriteUint32(m.NumVertices)
	e.WriteUint32(m.NumTriangles)
	e.WriteUint32(m.Flags)
}

// DecodeFrom implements Message.
func (m *MeshData) DecodeFrom(d *Decoder) error {
	r := reader{d: d}
	m.NumVertices = r.u32()
	m.NumTriangles = r.u32()
	m.Flags = r.u32()
	return r.err
}

// HasNormals reports whether a normal buffer follows.
func (m *MeshData) HasNormals() bool { return m.Flags&MeshNormals != 0 }

// HasVertexColors reports whether a vertex color buffer follows.
func (m *MeshData) HasVertexColors() bool { return m.Flags&MeshVertexColors != 0 }

// VertexBytes is the size of the vertex (and normal) buffer.
func (m *MeshData) VertexBytes() int { return int(m.NumVertices) * 12 }

// ColorBytes is the size of the vertex color buffer.
func (m *MeshData) ColorBytes() int { return int(m.NumVertices) * 16 }

// TriangleBytes is the size of the triangle index buffer.
func (m *MeshData) TriangleBytes() int { return int(m.NumTriangles) * 12 }

// Float32Bytes returns the little-endian encoding of v.
func Float32Bytes(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, f := range v {
		u := math.Float32bits(f)
		b[4*i] = byte(u)
		b[4*i+1] = byte(u >> 8)
		b[4*i+2] = byte(u >> 16)
		b[4*i+3] = byte(u >> 24)
	}
	return b
}

// Uint32Bytes returns the little-endian encoding of v.
func Uint32Bytes(v []uint32) []byte {
	b := make([]byte, 4*len(v))
	for i, u := range v {
		b[4*i] = byte(u)
		b[4*i+1] = byte(u >> 8)
		b[4*i+2] = byte(u >> 16)
		b[4*i+3] = byte(u >> 24)
	}
	return b
}

// BytesFloat32 decodes a little-endian float32 buffer.
func BytesFloat32(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("protocol: float32 buffer of %d bytes", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(le32(b[4*i:]))
	}
	return v, nil
}

// BytesUint32 decodes a little-endian uint32 buffer.
func BytesUint32(b []byte) ([]uint32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("protocol: uint32 buffer of %d bytes", len(b))
	}
	v := make([]uint32, len(b)/4)
	for i := range v {
		v[i] = le32(b[4*i:])
	}
	return v, nil
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
