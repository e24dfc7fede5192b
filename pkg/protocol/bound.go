package protocol

import (
	"errors"
	"fmt"
)

// ErrBadBound is returned when a serialized bounding mesh is inconsistent.
var ErrBadBound = errors.New("protocol: malformed bounding mesh")

// BoundingMesh is a lightweight proxy mesh: flat xyz vertex coordinates,
// edge vertex pairs, face vertex indices, and per-face loop spans into Faces.
type BoundingMesh struct {
	Vertices  []float32
	Edges     []uint32
	Faces     []uint32
	LoopStart []uint32
	LoopTotal []uint32
}

// NumVertices returns the number of 3D vertices.
func (b *BoundingMesh) NumVertices() int {
	return len(b.Vertices) / 3
}

// Validate reports whether the mesh can be serialized and decoded by a
// client: whole vertices, edges as index pairs, one total per loop start,
// loops inside Faces and every index naming a vertex.
func (b *BoundingMesh) Validate() error {
	if len(b.Vertices)%3 != 0 {
		return fmt.Errorf("%w: %d vertex coordinates", ErrBadBound, len(b.Vertices))
	}
	if len(b.Edges)%2 != 0 {
		return fmt.Errorf("%w: %d edge indices", ErrBadBound, len(b.Edges))
	}
	if len(b.LoopStart) != len(b.LoopTotal) {
		return fmt.Errorf("%w: %d loop starts, %d loop totals", ErrBadBound, len(b.LoopStart), len(b.LoopTotal))
	}
	for i, start := range b.LoopStart {
		if end := uint64(start) + uint64(b.LoopTotal[i]); end > uint64(len(b.Faces)) {
			return fmt.Errorf("%w: loop %d ends at %d, past %d face indices", ErrBadBound, i, end, len(b.Faces))
		}
	}
	nv := uint32(b.NumVertices())
	for _, arr := range [][]uint32{b.Edges, b.Faces} {
		for _, idx := range arr {
			if idx >= nv {
				return fmt.Errorf("%w: index %d with %d vertices", ErrBadBound, idx, nv)
			}
		}
	}
	return nil
}

// SerializedSize returns the number of bytes Serialize produces.
func (b *BoundingMesh) SerializedSize() int {
	return 4 * (4 + len(b.Vertices) + len(b.Edges) + len(b.Faces) + 2*len(b.LoopStart))
}

// Serialize encodes the mesh as four uint32 counts (vertex coordinates,
// edge indices, face indices, loops) followed by the arrays in that order,
// loop starts before loop totals.
func (b *BoundingMesh) Serialize() []byte {
	e := NewEncoderWithCap(b.SerializedSize())
	e.WriteUint32(uint32(len(b.Vertices)))
	e.WriteUint32(uint32(len(b.Edges)))
	e.WriteUint32(uint32(len(b.Faces)))
	e.WriteUint32(uint32(len(b.LoopStart)))
	for _, v := range b.Vertices {
		e.WriteFloat32(v)
	}
	for _, v := range b.Edges {
		e.WriteUint32(v)
	}
	for _, v := range b.Faces {
		e.WriteUint32(v)
	}
	for _, v := range b.LoopStart {
		e.WriteUint32(v)
	}
	for _, v := range b.LoopTotal {
		e.WriteUint32(v)
	}
	return e.Bytes()
}

// DeserializeBound decodes a bounding mesh. The declared counts must
// account for exactly len(data) bytes.
func DeserializeBound(data []byte) (*BoundingMesh, error) {
	d := NewDecoder(data)
	r := reader{d: d}
	nv, ne, nf, nl := r.u32(), r.u32(), r.u32(), r.u32()
	if r.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadBound, r.err)
	}

	want := 16 + 4*(uint64(nv)+uint64(ne)+uint64(nf)+2*uint64(nl))
	if want != uint64(len(data)) {
		return nil, fmt.Errorf("%w: declared %d bytes, got %d", ErrBadBound, want, len(data))
	}
	if nv%3 != 0 {
		return nil, fmt.Errorf("%w: %d vertex coordinates", ErrBadBound, nv)
	}

	b := &BoundingMesh{
		Vertices:  make([]float32, nv),
		Edges:     make([]uint32, ne),
		Faces:     make([]uint32, nf),
		LoopStart: make([]uint32, nl),
		LoopTotal: make([]uint32, nl),
	}
	for i := range b.Vertices {
		b.Vertices[i] = r.f32()
	}
	for _, arr := range [][]uint32{b.Edges, b.Faces, b.LoopStart, b.LoopTotal} {
		for i := range arr {
			arr[i] = r.u32()
		}
	}
	if r.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadBound, r.err)
	}
	return b, nil
}

// BoxBound returns the bounding mesh of an axis-aligned box.
func BoxBound(min, max [3]float32) *BoundingMesh {
	b := &BoundingMesh{}
	for i := 0; i < 8; i++ {
		x, y, z := min[0], min[1], min[2]
		if i&1 != 0 {
			x = max[0]
		}
		if i&2 != 0 {
			y = max[1]
		}
		if i&4 != 0 {
			z = max[2]
		}
		b.Vertices = append(b.Vertices, x, y, z)
	}
	b.Edges = []uint32{
		0, 1, 2, 3, 4, 5, 6, 7,
		0, 2, 1, 3, 4, 6, 5, 7,
		0, 4, 1, 5, 2, 6, 3, 7,
	}
	b.Faces = []uint32{
		0, 2, 3, 1,
		4, 5, 7, 6,
		0, 1, 5, 4,
		2, 6, 7, 3,
		0, 4, 6, 2,
		1, 3, 7, 5,
	}
	for f := 0; f < 6; f++ {
		b.LoopStart = append(b.LoopStart, uint32(4*f))
		b.LoopTotal = append(b.LoopTotal, 4)
	}
	return b
}
