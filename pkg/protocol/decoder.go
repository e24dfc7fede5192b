package protocol

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// Limits applied while decoding untrusted length prefixes.
const (
	// MaxMessageSize bounds one structured message body. Raw mesh and
	// volume buffers travel outside messages and are not subject to it.
	MaxMessageSize = 16 << 20

	// MaxCollectionCount bounds the element count of one array field.
	MaxCollectionCount = 1 << 22
)

var (
	ErrVarintOverflow     = errors.New("protocol: varint overflow")
	ErrAllocationTooLarge = errors.New("protocol: allocation size exceeds limit")
	ErrCollectionTooLarge = errors.New("protocol: collection count exceeds limit")
)

// Decoder reads little-endian message fields from a message body.
type Decoder struct {
	buf []byte
	pos int
}

func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int { return len(d.buf) - d.pos }

// EOF reports whether the body is fully consumed.
func (d *Decoder) EOF() bool { return d.pos >= len(d.buf) }

// take returns the next n bytes, aliasing the body.
func (d *Decoder) take(n int) ([]byte, error) {
	if n < 0 || n > d.Remaining() {
		return nil, io.ErrUnexpectedEOF
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *Decoder) ReadByte() (byte, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Decoder) ReadUvarint() (uint64, error) {
	v, n := binary.Uvarint(d.buf[d.pos:])
	switch {
	case n == 0:
		return 0, io.ErrUnexpectedEOF
	case n < 0:
		return 0, ErrVarintOverflow
	}
	d.pos += n
	return v, nil
}

// ReadString reads a length-prefixed string.
func (d *Decoder) ReadString() (string, error) {
	n, err := d.ReadUvarint()
	if err != nil {
		return "", err
	}
	if n > MaxMessageSize {
		return "", ErrAllocationTooLarge
	}
	if n > uint64(d.Remaining()) {
		return "", io.ErrUnexpectedEOF
	}
	b, _ := d.take(int(n))
	return string(b), nil
}

// ReadBool treats any non-zero byte as true.
func (d *Decoder) ReadBool() (bool, error) {
	b, err := d.ReadByte()
	return b != 0, err
}

func (d *Decoder) ReadUint32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *Decoder) ReadUint64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (d *Decoder) ReadInt32() (int32, error) {
	v, err := d.ReadUint32()
	return int32(v), err
}

func (d *Decoder) ReadFloat32() (float32, error) {
	v, err := d.ReadUint32()
	return math.Float32frombits(v), err
}

func (d *Decoder) readFloats(dst []float32) error {
	for i := range dst {
		f, err := d.ReadFloat32()
		if err != nil {
			return err
		}
		dst[i] = f
	}
	return nil
}

func (d *Decoder) ReadVec3() ([3]float32, error) {
	var v [3]float32
	err := d.readFloats(v[:])
	return v, err
}

func (d *Decoder) ReadVec4() ([4]float32, error) {
	var v [4]float32
	err := d.readFloats(v[:])
	return v, err
}

// ReadFloat32s reads a count-prefixed float32 array.
func (d *Decoder) ReadFloat32s() ([]float32, error) {
	n, err := d.ReadCollectionCount(4)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	v := make([]float32, n)
	if err := d.readFloats(v); err != nil {
		return nil, err
	}
	return v, nil
}

// ReadCollectionCount reads a varint count and validates it against limits.
// itemSize is the minimum encoded size of one item.
func (d *Decoder) ReadCollectionCount(itemSize int) (int, error) {
	count, err := d.ReadUvarint()
	if err != nil {
		return 0, err
	}
	if count > MaxCollectionCount {
		return 0, ErrCollectionTooLarge
	}
	if count*uint64(itemSize) > uint64(d.Remaining()) {
		return 0, io.ErrUnexpectedEOF
	}
	return int(count), nil
}

// reader collects the first error of a sequence of reads so message
// decoders can be written as straight-line field lists.
type reader struct {
	d   *Decoder
	err error
}

func (r *reader) u32() uint32 {
	if r.err != nil {
		return 0
	}
	var v uint32
	v, r.err = r.d.ReadUint32()
	return v
}

func (r *reader) u64() uint64 {
	if r.err != nil {
		return 0
	}
	var v uint64
	v, r.err = r.d.ReadUint64()
	return v
}

func (r *reader) f32() float32 {
	if r.err != nil {
		return 0
	}
	var v float32
	v, r.err = r.d.ReadFloat32()
	return v
}

func (r *reader) boolean() bool {
	if r.err != nil {
		return false
	}
	var v bool
	v, r.err = r.d.ReadBool()
	return v
}

func (r *reader) str() string {
	if r.err != nil {
		return ""
	}
	var v string
	v, r.err = r.d.ReadString()
	return v
}

func (r *reader) vec3() [3]float32 {
	if r.err != nil {
		return [3]float32{}
	}
	var v [3]float32
	v, r.err = r.d.ReadVec3()
	return v
}

func (r *reader) vec4() [4]float32 {
	if r.err != nil {
		return [4]float32{}
	}
	var v [4]float32
	v, r.err = r.d.ReadVec4()
	return v
}

func (r *reader) floats() []float32 {
	if r.err != nil {
		return nil
	}
	var v []float32
	v, r.err = r.d.ReadFloat32s()
	return v
}
