package protocol

import (
	"encoding/binary"
	"math"
)

// Encoder appends little-endian message fields to a growing buffer.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an encoder sized for a typical command body.
func NewEncoder() *Encoder {
	return NewEncoderWithCap(256)
}

// NewEncoderWithCap returns an encoder whose buffer starts with capacity n.
func NewEncoderWithCap(n int) *Encoder {
	return &Encoder{buf: make([]byte, 0, n)}
}

// Bytes returns the encoded body. It aliases the encoder's buffer.
func (e *Encoder) Bytes() []byte { return e.buf }

// WriteByte appends b.
func (e *Encoder) WriteByte(b byte) {
	e.buf = append(e.buf, b)
}

// WriteUvarint appends v as an unsigned varint, used for string and array
// lengths.
func (e *Encoder) WriteUvarint(v uint64) {
	e.buf = binary.AppendUvarint(e.buf, v)
}

// WriteString appends a length-prefixed string. Names, JSON parameter
// blobs and state dumps all go through here.
func (e *Encoder) WriteString(s string) {
	e.WriteUvarint(uint64(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *Encoder) WriteBool(b bool) {
	var v byte
	if b {
		v = 1
	}
	e.buf = append(e.buf, v)
}

func (e *Encoder) WriteUint32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *Encoder) WriteUint64(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

func (e *Encoder) WriteInt32(v int32) {
	e.WriteUint32(uint32(v))
}

func (e *Encoder) WriteFloat32(v float32) {
	e.WriteUint32(math.Float32bits(v))
}

// WriteVec3 appends a position, direction or color.
func (e *Encoder) WriteVec3(v [3]float32) {
	for _, f := range v {
		e.WriteFloat32(f)
	}
}

// WriteVec4 appends an RGBA color or a camera border.
func (e *Encoder) WriteVec4(v [4]float32) {
	for _, f := range v {
		e.WriteFloat32(f)
	}
}

// WriteFloat32s appends a count-prefixed float32 array such as a transfer
// function or an isovalue list.
func (e *Encoder) WriteFloat32s(v []float32) {
	e.WriteUvarint(uint64(len(v)))
	for _, f := range v {
		e.WriteFloat32(f)
	}
}
